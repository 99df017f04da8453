// Package delivery provides the HTTP client and server for meld's delivery
// service.
//
// The delivery service is an untrusted store-and-forward hop: it sequences
// opaque group messages, holds claimable key packages, and queues welcomes
// for offline members. It never sees plaintext or group membership beyond
// what the envelopes reveal.
//
// Supported operations:
//   - Publishing and claiming key packages by username.
//   - Posting group messages and fetching them by sequence number.
//   - Posting, fetching and acknowledging welcomes.
//
// All requests are JSON over HTTP and accept a context for cancellation and
// deadlines. Non-2xx statuses are returned as errors with the HTTP method,
// path, and status text to aid diagnostics.
package delivery

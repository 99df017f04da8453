// Package keyschedule implements the MLS epoch key schedule and secret tree.
//
// Each commit folds a commit secret into the running init secret to produce
// the epoch's joiner secret, from which every epoch key derives: sender data
// protection, the encryption secret seeding the secret tree, confirmation
// and membership keys, and exporter/external/resumption secrets. Welcome
// messages hand new members the joiner secret so they land on the same
// epoch without seeing any earlier one.
//
// The secret tree fans the encryption secret out to one handshake and one
// application chain per leaf; every message consumes one generation of its
// sender's chain. Out-of-order receipt is handled by ratcheting forward and
// caching the skipped keys, with a hard cap on how far a chain may be run
// ahead.
//
// Concurrency: none of these types are safe for concurrent use. Callers
// must serialise access per group.
package keyschedule

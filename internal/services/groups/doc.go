// Package groups implements group lifecycle operations: creating groups,
// joining from welcomes, syncing against the delivery service, and
// committing membership changes. It layers the protocol state machine in
// internal/group over the encrypted stores and the delivery client.
package groups

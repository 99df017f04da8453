// Package store provides file-based persistence for meld's client state.
//
// It contains concrete implementations of the domain storage interfaces,
// serialising data as JSON on disk. Secret material (the identity, key
// package private halves, group state) is sealed in a passphrase-encrypted
// envelope; plaintext files hold only public bookkeeping such as delivery
// cursors. All methods are concurrency-safe via internal locking. Stored
// files live under the user's configured home directory.
//
// The package includes stores for:
//   - Identity keys (IdentityFileStore)
//   - Key package private halves (KeyPackageFileStore)
//   - Group state and delivery cursors (GroupFileStore)
package store

// Package ratchettree implements the MLS ratchet tree (TreeKEM).
//
// The tree is the group's membership structure and the vehicle for epoch key
// agreement: leaves hold member key packages, internal nodes hold HPKE keys
// known to the members beneath them. A commit refreshes the committer's
// direct path and seals each new path secret to the resolution of the
// corresponding copath node, so every member learns exactly the secrets above
// its own leaf.
//
// Tree, Private and the exported node slice are JSON-serializable; they are
// embedded in the group state snapshot the store persists.
//
// Concurrency: Tree and Private are NOT safe for concurrent use. Callers
// must serialise access per group.
package ratchettree

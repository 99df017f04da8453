// Package group implements the MLS group state machine: creating groups,
// joining from welcomes, proposing and committing roster changes, and
// protecting application messages.
//
// A Group is a snapshot of one epoch: the ratchet tree, the group context,
// the epoch secrets and the secret tree. Commits stage a provisional next
// epoch which becomes current only when ApplyPendingCommit confirms the
// delivery service accepted the commit; incoming commits from other members
// advance the state directly. All exported fields are JSON-serializable so
// the store can persist a group between runs.
package group

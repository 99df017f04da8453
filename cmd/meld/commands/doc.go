// Package commands defines the meld CLI and wires dependencies for subcommands.
//
// Commands
//
//   - init          Create the local identity
//   - fingerprint   Print the identity fingerprint
//   - publish       Publish key packages for others to claim
//   - create-group  Start a new group
//   - join          Join groups you were welcomed into
//   - groups        List groups or print a roster
//   - add           Add a user to a group
//   - remove        Remove a user from a group
//   - update        Rotate your keys in a group
//   - send          Encrypt and send a group message
//   - recv          Fetch and decrypt queued group messages
//
// # Implementation
//
// The root command loads config.toml from the home directory and builds a
// dependency graph (stores, services, delivery client) before any subcommand
// runs, so handlers share one app context. Group ids are passed as hex.
package commands

// Package domain defines core data models and interfaces shared across the app.
// It contains plain types (wire/state) and contracts (interfaces) only.
//
// The wire types mirror the MLS (RFC 9420) message structures: key packages,
// proposals, commits, welcomes and the two framings (PublicMessage for
// handshake traffic, PrivateMessage for application traffic). Binary encoding
// for these types lives in internal/wire; protocol behaviour lives under
// internal/protocol and internal/group.
package domain

package domain

import (
	"bytes"
	"encoding/hex"
)

// ProtocolVersion is the MLS protocol version carried in every message.
type ProtocolVersion uint16

// MLS10 is the only version this implementation speaks.
const MLS10 ProtocolVersion = 1

// CipherSuite identifies the algorithm set a group runs with.
type CipherSuite uint16

// CipherSuiteX25519ChaCha is MLS_128_DHKEMX25519_CHACHA20POLY1305_SHA256_Ed25519,
// the single suite this implementation supports.
const CipherSuiteX25519ChaCha CipherSuite = 3

// Epoch counts key-schedule generations of a group. Epoch 0 is group creation;
// every applied commit increments it by one.
type Epoch uint64

// LeafIndex addresses a member slot in the ratchet tree.
type LeafIndex uint32

// GroupID names a group. It is opaque on the wire; the CLI renders it as hex.
type GroupID []byte

// String returns the hex form used in store filenames and delivery paths.
func (id GroupID) String() string { return hex.EncodeToString(id) }

// Equal compares two group identifiers.
func (id GroupID) Equal(other GroupID) bool { return bytes.Equal(id, other) }

// Fingerprint is a short identifier for public keys presented to users.
type Fingerprint string

// String returns the string form of the fingerprint.
func (f Fingerprint) String() string { return string(f) }

// Username identifies a client on the delivery service.
type Username string

// String returns the string form of the username.
func (u Username) String() string { return string(u) }

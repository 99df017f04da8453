package domain

import "encoding/hex"

// Credential binds a signature key to an application identity. Only basic
// credentials (an opaque identifier, typically a username) are supported.
type Credential struct {
	Identity     []byte        `json:"identity"`
	SignatureKey Ed25519Public `json:"signature_key"`
}

// ExtensionType labels a key package or group extension.
type ExtensionType uint16

const (
	ExtensionLifetime   ExtensionType = 1
	ExtensionParentHash ExtensionType = 2
)

// Extension is an opaque extension entry.
type Extension struct {
	Type ExtensionType `json:"type"`
	Data []byte        `json:"data"`
}

// Lifetime bounds the validity of a key package, seconds since the Unix epoch.
type Lifetime struct {
	NotBefore uint64 `json:"not_before"`
	NotAfter  uint64 `json:"not_after"`
}

// KeyPackage advertises a client's init key and identity so others can add it
// to groups. The signature covers everything above it under the
// "KeyPackageTBS" label.
type KeyPackage struct {
	Version     ProtocolVersion `json:"version"`
	CipherSuite CipherSuite     `json:"cipher_suite"`
	InitKey     HPKEPublicKey   `json:"init_key"`
	Credential  Credential      `json:"credential"`
	Extensions  []Extension     `json:"extensions,omitempty"`
	Signature   []byte          `json:"signature"`
}

// KeyPackageRef is the hash-based identifier of a key package. Welcome
// messages and the key package store are keyed by it.
type KeyPackageRef [32]byte

// String returns the hex form used in store filenames.
func (r KeyPackageRef) String() string { return hex.EncodeToString(r[:]) }

// KeyPackagePrivate is the locally kept secret half of a published key
// package: the HPKE init private key and the signing identity that produced
// the package.
type KeyPackagePrivate struct {
	Ref         KeyPackageRef  `json:"ref"`
	InitPrivate HPKEPrivateKey `json:"init_private"`
	CreatedUTC  int64          `json:"created_utc"`
}

package crypto

import (
	"crypto/sha256"
	"encoding/hex"

	"golang.org/x/crypto/cryptobyte"
)

// RefHash computes a hash-based reference over a wire encoding: the hash of
// {opaque16 label, opaque32 value}. Key package refs and proposal refs use
// this with distinct labels.
func RefHash(label string, value []byte) [32]byte {
	var b cryptobyte.Builder
	b.AddUint16LengthPrefixed(func(b *cryptobyte.Builder) {
		b.AddBytes([]byte(labelPrefix + label))
	})
	b.AddUint32LengthPrefixed(func(b *cryptobyte.Builder) {
		b.AddBytes(value)
	})
	return sha256.Sum256(b.BytesOrPanic())
}

// Fingerprint returns a short hex fingerprint of a public key.
//
// It hashes with SHA-256 and truncates to 10 bytes (20 hex chars).
func Fingerprint(pub []byte) string {
	sum := sha256.Sum256(pub)
	return hex.EncodeToString(sum[:10])
}

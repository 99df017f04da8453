package crypto

import (
	"crypto/hmac"
	"crypto/sha256"
	"io"

	"golang.org/x/crypto/cryptobyte"
	"golang.org/x/crypto/hkdf"
)

// SecretSize is the output size of the suite's KDF (SHA-256).
const SecretSize = 32

// ExtractSecret is HKDF-Extract with SHA-256.
func ExtractSecret(salt, ikm []byte) []byte {
	return hkdf.Extract(sha256.New, ikm, salt)
}

// ExpandWithLabel is HKDF-Expand over the KDFLabel structure
// {length, "MLS 1.0 "+label, context}.
func ExpandWithLabel(secret []byte, label string, context []byte, length uint16) []byte {
	var b cryptobyte.Builder
	b.AddUint16(length)
	b.AddUint8LengthPrefixed(func(b *cryptobyte.Builder) {
		b.AddBytes([]byte(labelPrefix + label))
	})
	b.AddUint32LengthPrefixed(func(b *cryptobyte.Builder) {
		b.AddBytes(context)
	})
	out := make([]byte, length)
	if _, err := io.ReadFull(hkdf.Expand(sha256.New, secret, b.BytesOrPanic()), out); err != nil {
		// Expand only fails when length exceeds 255*Nh, which no caller asks for.
		panic(err)
	}
	return out
}

// DeriveSecret is ExpandWithLabel with an empty context and KDF-sized output.
func DeriveSecret(secret []byte, label string) []byte {
	return ExpandWithLabel(secret, label, nil, SecretSize)
}

// Hash is the suite hash (SHA-256).
func Hash(data []byte) []byte {
	sum := sha256.Sum256(data)
	return sum[:]
}

// HMAC computes HMAC-SHA256. Confirmation and membership tags use this.
func HMAC(key, data []byte) []byte {
	h := hmac.New(sha256.New, key)
	h.Write(data)
	return h.Sum(nil)
}

// HMACEqual compares a MAC in constant time.
func HMACEqual(a, b []byte) bool { return hmac.Equal(a, b) }

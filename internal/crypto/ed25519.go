package crypto

import (
	"crypto/ed25519"
	"crypto/rand"

	"golang.org/x/crypto/cryptobyte"

	"meld/internal/domain"
)

// The "MLS 1.0 " prefix keeps signatures from being replayable in another
// protocol that happens to sign the same bytes.
const labelPrefix = "MLS 1.0 "

// GenerateEd25519 returns a new Ed25519 signing key pair.
func GenerateEd25519() (priv domain.Ed25519Private, pub domain.Ed25519Public, err error) {
	pk, sk, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return priv, pub, err
	}
	copy(priv[:], sk)
	copy(pub[:], pk)
	return priv, pub, nil
}

// SignWithLabel signs content under a domain-separation label.
func SignWithLabel(priv domain.Ed25519Private, label string, content []byte) []byte {
	return ed25519.Sign(ed25519.PrivateKey(priv[:]), signContent(label, content))
}

// VerifyWithLabel verifies a SignWithLabel signature.
func VerifyWithLabel(pub domain.Ed25519Public, label string, content, sig []byte) bool {
	return ed25519.Verify(ed25519.PublicKey(pub[:]), signContent(label, content), sig)
}

// signContent is the SignContent encoding: both fields length-prefixed so the
// label/content split is unambiguous.
func signContent(label string, content []byte) []byte {
	var b cryptobyte.Builder
	b.AddUint16LengthPrefixed(func(b *cryptobyte.Builder) {
		b.AddBytes([]byte(labelPrefix + label))
	})
	b.AddUint32LengthPrefixed(func(b *cryptobyte.Builder) {
		b.AddBytes(content)
	})
	return b.BytesOrPanic()
}

package crypto

import (
	"errors"

	"golang.org/x/crypto/chacha20poly1305"
)

const (
	// AEADKeySize and AEADNonceSize are the suite AEAD's parameters.
	AEADKeySize   = chacha20poly1305.KeySize
	AEADNonceSize = chacha20poly1305.NonceSize
)

var errAEADParams = errors.New("bad AEAD key or nonce size")

// SealAEAD encrypts plaintext with ChaCha20-Poly1305.
func SealAEAD(key, nonce, aad, plaintext []byte) ([]byte, error) {
	if len(key) != AEADKeySize || len(nonce) != AEADNonceSize {
		return nil, errAEADParams
	}
	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return nil, err
	}
	return aead.Seal(nil, nonce, plaintext, aad), nil
}

// OpenAEAD decrypts a SealAEAD ciphertext.
func OpenAEAD(key, nonce, aad, ciphertext []byte) ([]byte, error) {
	if len(key) != AEADKeySize || len(nonce) != AEADNonceSize {
		return nil, errAEADParams
	}
	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return nil, err
	}
	return aead.Open(nil, nonce, ciphertext, aad)
}

package crypto

import (
	"crypto/sha256"
	"io"

	"golang.org/x/crypto/curve25519"
	"golang.org/x/crypto/hkdf"

	"meld/internal/domain"
	"meld/internal/util/memzero"
)

// HPKE base mode per RFC 9180 with DHKEM(X25519, HKDF-SHA256), HKDF-SHA256
// and ChaCha20-Poly1305: KEM 0x0020, KDF 0x0001, AEAD 0x0003.

var (
	kemSuiteID  = []byte{'K', 'E', 'M', 0x00, 0x20}
	hpkeSuiteID = []byte{'H', 'P', 'K', 'E', 0x00, 0x20, 0x00, 0x01, 0x00, 0x03}
)

const hpkeModeBase = 0x00

// HPKESeal encrypts plaintext to the holder of pub and returns the KEM
// encapsulation alongside the ciphertext.
func HPKESeal(pub domain.HPKEPublicKey, info, aad, plaintext []byte) (domain.HPKECiphertext, error) {
	ephPriv, ephPub, err := GenerateX25519()
	if err != nil {
		return domain.HPKECiphertext{}, err
	}
	dh, err := DH(ephPriv, pub)
	if err != nil {
		return domain.HPKECiphertext{}, err
	}
	kemContext := append(append([]byte(nil), ephPub[:]...), pub[:]...)
	shared := kemExtractAndExpand(dh[:], kemContext)
	memzero.Zero(dh[:])

	key, nonce := hpkeKeySchedule(shared, info)
	memzero.Zero(shared)

	ct, err := SealAEAD(key, nonce, aad, plaintext)
	memzero.Zero(key)
	if err != nil {
		return domain.HPKECiphertext{}, err
	}
	return domain.HPKECiphertext{KEMOutput: ephPub[:], Ciphertext: ct}, nil
}

// HPKEOpen decrypts an HPKESeal ciphertext with the receiver's private key.
func HPKEOpen(priv domain.HPKEPrivateKey, ct domain.HPKECiphertext, info, aad []byte) ([]byte, error) {
	enc := domain.MustX25519Public(ct.KEMOutput)
	dh, err := DH(priv, enc)
	if err != nil {
		return nil, err
	}
	pub, err := curve25519.X25519(priv.Slice(), curve25519.Basepoint)
	if err != nil {
		return nil, err
	}
	kemContext := append(append([]byte(nil), ct.KEMOutput...), pub...)
	shared := kemExtractAndExpand(dh[:], kemContext)
	memzero.Zero(dh[:])

	key, nonce := hpkeKeySchedule(shared, info)
	memzero.Zero(shared)

	pt, err := OpenAEAD(key, nonce, aad, ct.Ciphertext)
	memzero.Zero(key)
	return pt, err
}

func kemExtractAndExpand(dh, kemContext []byte) []byte {
	prk := labeledExtract(kemSuiteID, nil, "eae_prk", dh)
	return labeledExpand(kemSuiteID, prk, "shared_secret", kemContext, SecretSize)
}

// hpkeKeySchedule runs the base-mode key schedule and returns the AEAD key
// and base nonce for sequence number zero (single-shot use).
func hpkeKeySchedule(shared, info []byte) (key, nonce []byte) {
	pskIDHash := labeledExtract(hpkeSuiteID, nil, "psk_id_hash", nil)
	infoHash := labeledExtract(hpkeSuiteID, nil, "info_hash", info)

	ksContext := make([]byte, 0, 1+len(pskIDHash)+len(infoHash))
	ksContext = append(ksContext, hpkeModeBase)
	ksContext = append(ksContext, pskIDHash...)
	ksContext = append(ksContext, infoHash...)

	secret := labeledExtract(hpkeSuiteID, shared, "secret", nil)
	key = labeledExpand(hpkeSuiteID, secret, "key", ksContext, AEADKeySize)
	nonce = labeledExpand(hpkeSuiteID, secret, "base_nonce", ksContext, AEADNonceSize)
	memzero.Zero(secret)
	return key, nonce
}

func labeledExtract(suiteID, salt []byte, label string, ikm []byte) []byte {
	labeled := append([]byte("HPKE-v1"), suiteID...)
	labeled = append(labeled, []byte(label)...)
	labeled = append(labeled, ikm...)
	return hkdf.Extract(sha256.New, labeled, salt)
}

func labeledExpand(suiteID, prk []byte, label string, info []byte, length int) []byte {
	labeled := []byte{byte(length >> 8), byte(length)}
	labeled = append(labeled, []byte("HPKE-v1")...)
	labeled = append(labeled, suiteID...)
	labeled = append(labeled, []byte(label)...)
	labeled = append(labeled, info...)

	out := make([]byte, length)
	if _, err := io.ReadFull(hkdf.Expand(sha256.New, prk, labeled), out); err != nil {
		panic(err)
	}
	return out
}

package wire

import (
	"errors"
	"fmt"

	"golang.org/x/crypto/cryptobyte"

	"meld/internal/domain"
)

// ErrDecode is wrapped by every unmarshal failure.
var ErrDecode = errors.New("malformed encoding")

func decodeErr(what string) error {
	return fmt.Errorf("%w: %s", ErrDecode, what)
}

// --- opaque vectors ---

func addOpaque8(b *cryptobyte.Builder, v []byte) {
	b.AddUint8LengthPrefixed(func(b *cryptobyte.Builder) { b.AddBytes(v) })
}

func addOpaque16(b *cryptobyte.Builder, v []byte) {
	b.AddUint16LengthPrefixed(func(b *cryptobyte.Builder) { b.AddBytes(v) })
}

func addOpaque32(b *cryptobyte.Builder, v []byte) {
	b.AddUint32LengthPrefixed(func(b *cryptobyte.Builder) { b.AddBytes(v) })
}

func readOpaque8(s *cryptobyte.String, out *[]byte) bool {
	var v cryptobyte.String
	if !s.ReadUint8LengthPrefixed(&v) {
		return false
	}
	*out = append([]byte(nil), v...)
	return true
}

func readOpaque16(s *cryptobyte.String, out *[]byte) bool {
	var v cryptobyte.String
	if !s.ReadUint16LengthPrefixed(&v) {
		return false
	}
	*out = append([]byte(nil), v...)
	return true
}

func readOpaque32(s *cryptobyte.String, out *[]byte) bool {
	var v cryptobyte.String
	if !readVector32(s, &v) {
		return false
	}
	*out = append([]byte(nil), v...)
	return true
}

// readVector32 reads a 32-bit length-prefixed value. cryptobyte's String has
// no 32-bit counterpart to the Builder's AddUint32LengthPrefixed.
func readVector32(s *cryptobyte.String, out *cryptobyte.String) bool {
	var n uint32
	if !s.ReadUint32(&n) {
		return false
	}
	return s.ReadBytes((*[]byte)(out), int(n))
}

// --- fixed-size keys ---

func addKey32(b *cryptobyte.Builder, k [32]byte) { b.AddBytes(k[:]) }

func readKey32(s *cryptobyte.String, out *[32]byte) bool {
	return s.CopyBytes(out[:])
}

// --- optionals ---

// addOptional writes a presence byte then, when present, the value.
func addOptional(b *cryptobyte.Builder, present bool, add func(*cryptobyte.Builder)) {
	if !present {
		b.AddUint8(0)
		return
	}
	b.AddUint8(1)
	add(b)
}

func readOptional(s *cryptobyte.String, present *bool) bool {
	var tag uint8
	if !s.ReadUint8(&tag) || tag > 1 {
		return false
	}
	*present = tag == 1
	return true
}

// --- HPKE ciphertext ---

func addHPKECiphertext(b *cryptobyte.Builder, ct domain.HPKECiphertext) {
	addOpaque16(b, ct.KEMOutput)
	addOpaque32(b, ct.Ciphertext)
}

func readHPKECiphertext(s *cryptobyte.String, ct *domain.HPKECiphertext) bool {
	return readOpaque16(s, &ct.KEMOutput) &&
		readOpaque32(s, &ct.Ciphertext) &&
		len(ct.KEMOutput) == 32
}

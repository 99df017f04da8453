package wire

import (
	"encoding/binary"

	"golang.org/x/crypto/cryptobyte"

	"meld/internal/domain"
)

func addCredential(b *cryptobyte.Builder, c domain.Credential) {
	addOpaque16(b, c.Identity)
	addKey32(b, c.SignatureKey)
}

func readCredential(s *cryptobyte.String, c *domain.Credential) bool {
	return readOpaque16(s, &c.Identity) && readKey32(s, (*[32]byte)(&c.SignatureKey))
}

func addExtensions(b *cryptobyte.Builder, exts []domain.Extension) {
	b.AddUint32LengthPrefixed(func(b *cryptobyte.Builder) {
		for _, e := range exts {
			b.AddUint16(uint16(e.Type))
			addOpaque16(b, e.Data)
		}
	})
}

func readExtensions(s *cryptobyte.String, exts *[]domain.Extension) bool {
	var body cryptobyte.String
	if !readVector32(s, &body) {
		return false
	}
	for !body.Empty() {
		var e domain.Extension
		var t uint16
		if !body.ReadUint16(&t) || !readOpaque16(&body, &e.Data) {
			return false
		}
		e.Type = domain.ExtensionType(t)
		*exts = append(*exts, e)
	}
	return true
}

// MarshalLifetime encodes a lifetime extension payload.
func MarshalLifetime(lt domain.Lifetime) []byte {
	out := make([]byte, 16)
	binary.BigEndian.PutUint64(out[:8], lt.NotBefore)
	binary.BigEndian.PutUint64(out[8:], lt.NotAfter)
	return out
}

// UnmarshalLifetime decodes a lifetime extension payload.
func UnmarshalLifetime(data []byte) (domain.Lifetime, error) {
	if len(data) != 16 {
		return domain.Lifetime{}, decodeErr("lifetime extension")
	}
	return domain.Lifetime{
		NotBefore: binary.BigEndian.Uint64(data[:8]),
		NotAfter:  binary.BigEndian.Uint64(data[8:]),
	}, nil
}

func addKeyPackageTBS(b *cryptobyte.Builder, kp domain.KeyPackage) {
	b.AddUint16(uint16(kp.Version))
	b.AddUint16(uint16(kp.CipherSuite))
	addKey32(b, kp.InitKey)
	addCredential(b, kp.Credential)
	addExtensions(b, kp.Extensions)
}

// KeyPackageTBS is the portion of a key package the owner signs.
func KeyPackageTBS(kp domain.KeyPackage) []byte {
	var b cryptobyte.Builder
	addKeyPackageTBS(&b, kp)
	return b.BytesOrPanic()
}

func addKeyPackageFull(b *cryptobyte.Builder, kp domain.KeyPackage) {
	addKeyPackageTBS(b, kp)
	addOpaque16(b, kp.Signature)
}

// MarshalKeyPackage encodes a complete key package.
func MarshalKeyPackage(kp domain.KeyPackage) []byte {
	var b cryptobyte.Builder
	addKeyPackageFull(&b, kp)
	return b.BytesOrPanic()
}

func readKeyPackage(s *cryptobyte.String, kp *domain.KeyPackage) bool {
	var version, suite uint16
	ok := s.ReadUint16(&version) &&
		s.ReadUint16(&suite) &&
		readKey32(s, (*[32]byte)(&kp.InitKey)) &&
		readCredential(s, &kp.Credential) &&
		readExtensions(s, &kp.Extensions) &&
		readOpaque16(s, &kp.Signature)
	if !ok {
		return false
	}
	kp.Version = domain.ProtocolVersion(version)
	kp.CipherSuite = domain.CipherSuite(suite)
	return true
}

// UnmarshalKeyPackage decodes a complete key package.
func UnmarshalKeyPackage(data []byte) (domain.KeyPackage, error) {
	var kp domain.KeyPackage
	s := cryptobyte.String(data)
	if !readKeyPackage(&s, &kp) || !s.Empty() {
		return domain.KeyPackage{}, decodeErr("key package")
	}
	return kp, nil
}

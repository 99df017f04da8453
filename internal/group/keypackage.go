package group

import (
	"errors"
	"fmt"
	"time"

	"meld/internal/crypto"
	"meld/internal/domain"
	"meld/internal/wire"
)

// DefaultKeyPackageLifetime bounds how long a published key package stays
// claimable.
const DefaultKeyPackageLifetime = 90 * 24 * time.Hour

var (
	// ErrKeyPackageInvalid covers structural and signature failures.
	ErrKeyPackageInvalid = errors.New("invalid key package")
	// ErrKeyPackageExpired indicates the lifetime extension excludes now.
	ErrKeyPackageExpired = errors.New("key package outside its lifetime")
)

// GenerateKeyPackage creates and signs a fresh key package for the identity,
// returning the package and the private half the owner must keep to join
// groups through it.
func GenerateKeyPackage(id domain.Identity) (domain.KeyPackage, domain.KeyPackagePrivate, error) {
	initPriv, initPub, err := crypto.GenerateX25519()
	if err != nil {
		return domain.KeyPackage{}, domain.KeyPackagePrivate{}, err
	}

	now := time.Now().UTC()
	lt := domain.Lifetime{
		NotBefore: uint64(now.Add(-time.Hour).Unix()),
		NotAfter:  uint64(now.Add(DefaultKeyPackageLifetime).Unix()),
	}

	kp := domain.KeyPackage{
		Version:     domain.MLS10,
		CipherSuite: domain.CipherSuiteX25519ChaCha,
		InitKey:     initPub,
		Credential:  id.Credential(),
		Extensions: []domain.Extension{
			{Type: domain.ExtensionLifetime, Data: wire.MarshalLifetime(lt)},
		},
	}
	kp.Signature = crypto.SignWithLabel(id.EdPriv, "KeyPackageTBS", wire.KeyPackageTBS(kp))

	priv := domain.KeyPackagePrivate{
		Ref:         KeyPackageRef(kp),
		InitPrivate: initPriv,
		CreatedUTC:  now.Unix(),
	}
	return kp, priv, nil
}

// KeyPackageRef computes the hash reference identifying a key package.
func KeyPackageRef(kp domain.KeyPackage) domain.KeyPackageRef {
	return domain.KeyPackageRef(crypto.RefHash("KeyPackageRef", wire.MarshalKeyPackage(kp)))
}

// ValidateKeyPackage checks a key package's version, suite, signature and
// lifetime before it may enter a group.
func ValidateKeyPackage(kp domain.KeyPackage, now time.Time) error {
	if kp.Version != domain.MLS10 {
		return fmt.Errorf("%w: version %d", ErrKeyPackageInvalid, kp.Version)
	}
	if kp.CipherSuite != domain.CipherSuiteX25519ChaCha {
		return fmt.Errorf("%w: cipher suite %d", ErrKeyPackageInvalid, kp.CipherSuite)
	}
	if !crypto.VerifyWithLabel(kp.Credential.SignatureKey, "KeyPackageTBS", wire.KeyPackageTBS(kp), kp.Signature) {
		return fmt.Errorf("%w: bad signature", ErrKeyPackageInvalid)
	}
	for _, e := range kp.Extensions {
		if e.Type != domain.ExtensionLifetime {
			continue
		}
		lt, err := wire.UnmarshalLifetime(e.Data)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrKeyPackageInvalid, err)
		}
		t := uint64(now.Unix())
		if t < lt.NotBefore || t > lt.NotAfter {
			return ErrKeyPackageExpired
		}
	}
	return nil
}

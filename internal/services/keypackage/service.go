package keypackage

import (
	"context"
	"fmt"

	"meld/internal/domain"
	"meld/internal/group"
	"meld/internal/wire"
)

// DefaultPublishCount is how many key packages one publish round uploads.
// Each claim consumes one, so the pool bounds how many groups can add us
// before we publish again.
const DefaultPublishCount = 10

// Service generates key packages and publishes them to the delivery
// service. The private halves stay local, keyed by reference, until a
// welcome consumes them.
type Service struct {
	idStore  domain.IdentityStore
	kpStore  domain.KeyPackageStore
	delivery domain.DeliveryClient
}

// New constructs a key package service.
func New(idStore domain.IdentityStore, kpStore domain.KeyPackageStore, delivery domain.DeliveryClient) *Service {
	return &Service{idStore: idStore, kpStore: kpStore, delivery: delivery}
}

// GenerateAndPublish creates count fresh key packages, stores their private
// halves, and uploads the public packages for others to claim.
func (s *Service) GenerateAndPublish(ctx context.Context, passphrase string, count int) ([]domain.KeyPackageRef, error) {
	if count <= 0 {
		count = DefaultPublishCount
	}
	id, err := s.idStore.LoadIdentity(passphrase)
	if err != nil {
		return nil, err
	}

	refs := make([]domain.KeyPackageRef, 0, count)
	packages := make([][]byte, 0, count)
	for i := 0; i < count; i++ {
		kp, kpPriv, err := group.GenerateKeyPackage(id)
		if err != nil {
			return nil, err
		}
		if err := s.kpStore.SaveKeyPackagePrivate(passphrase, kpPriv); err != nil {
			return nil, err
		}
		refs = append(refs, kpPriv.Ref)
		packages = append(packages, wire.MarshalMLSMessage(domain.MLSMessage{
			Version:    domain.MLS10,
			WireFormat: domain.WireFormatKeyPackage,
			KeyPackage: &kp,
		}))
	}

	if err := s.delivery.PublishKeyPackages(ctx, id.Name, packages); err != nil {
		return nil, fmt.Errorf("publish key packages: %w", err)
	}
	return refs, nil
}

// Compile-time assertion that Service implements domain.KeyPackageService.
var _ domain.KeyPackageService = (*Service)(nil)

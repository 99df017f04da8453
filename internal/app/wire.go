package app

import (
	"net/http"

	"meld/internal/delivery"
	"meld/internal/domain"
	groupsvc "meld/internal/services/groups"
	idsvc "meld/internal/services/identity"
	kpsvc "meld/internal/services/keypackage"
	messagesvc "meld/internal/services/message"
	"meld/internal/store"
)

// Wire bundles all stores, services, and clients for the CLI.
type Wire struct {
	Identities domain.IdentityService
	Packages   domain.KeyPackageService
	Groups     domain.GroupService
	Messages   domain.MessageService
	Delivery   domain.DeliveryClient
	HTTP       *http.Client
}

// NewWire constructs the dependency graph from cfg.
func NewWire(cfg Config) (*Wire, error) {
	// File-based stores
	identityStore := store.NewIdentityFileStore(cfg.Home)
	keyPackageStore := store.NewKeyPackageFileStore(cfg.Home)
	groupStore := store.NewGroupFileStore(cfg.Home)

	// Ensure an HTTP client is available for outbound calls
	httpClient := cfg.HTTP
	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	// Delivery service client (uses provided HTTP client)
	dc := delivery.NewHTTP(cfg.DeliveryURL, httpClient)

	// High-level services
	identitySvc := idsvc.New(identityStore)
	keyPackageSvc := kpsvc.New(identityStore, keyPackageStore, dc)
	groupSvc := groupsvc.New(identityStore, keyPackageStore, groupStore, dc)
	messageSvc := messagesvc.New(groupStore, groupSvc, dc)

	return &Wire{
		Identities: identitySvc,
		Packages:   keyPackageSvc,
		Groups:     groupSvc,
		Messages:   messageSvc,
		Delivery:   dc,
		HTTP:       httpClient,
	}, nil
}

package domain

import "context"

// IdentityStore persists your long-term identity keys.
type IdentityStore interface {
	SaveIdentity(passphrase string, id Identity) error
	LoadIdentity(passphrase string) (Identity, error)
}

// KeyPackageStore keeps the private halves of published key packages until a
// welcome consumes them.
type KeyPackageStore interface {
	SaveKeyPackagePrivate(passphrase string, p KeyPackagePrivate) error
	ConsumeKeyPackagePrivate(passphrase string, ref KeyPackageRef) (KeyPackagePrivate, bool, error)
	ListKeyPackageRefs() ([]KeyPackageRef, error)
}

// GroupStore persists serialized group state and the per-group delivery
// cursor. The state blob is opaque here; internal/group owns its shape.
type GroupStore interface {
	SaveGroupState(passphrase string, id GroupID, state []byte) error
	LoadGroupState(passphrase string, id GroupID) ([]byte, bool, error)
	ListGroups() ([]GroupID, error)
	SaveCursor(id GroupID, seq uint64) error
	LoadCursor(id GroupID) (uint64, error)
}

// SequencedMessage is a group message with the sequence number the delivery
// service assigned to it.
type SequencedMessage struct {
	Seq     uint64 `json:"seq"`
	Message []byte `json:"message"`
}

// DeliveryClient is how we talk to the delivery service, all with context.
// Payloads are wire-encoded MLSMessages; the service never sees plaintext.
type DeliveryClient interface {
	PublishKeyPackages(ctx context.Context, user Username, packages [][]byte) error
	ClaimKeyPackage(ctx context.Context, user Username) ([]byte, error)

	PostGroupMessage(ctx context.Context, id GroupID, message []byte) (uint64, error)
	FetchGroupMessages(ctx context.Context, id GroupID, after uint64) ([]SequencedMessage, error)

	PostWelcome(ctx context.Context, user Username, welcome []byte) error
	FetchWelcomes(ctx context.Context, user Username) ([][]byte, error)
	AckWelcomes(ctx context.Context, user Username, count int) error
}

// IdentityService creates, retrieves, and inspects your identity keys.
type IdentityService interface {
	GenerateIdentity(passphrase string, name Username) (Identity, Fingerprint, error)
	LoadIdentity(passphrase string) (Identity, error)
	FingerprintIdentity(passphrase string) (Fingerprint, error)
}

// KeyPackageService generates key packages and publishes them for others to
// claim.
type KeyPackageService interface {
	GenerateAndPublish(ctx context.Context, passphrase string, count int) ([]KeyPackageRef, error)
}

// GroupService creates, joins and administers groups. Sync drains the
// delivery queue into the stored group state; admin operations call it
// implicitly so they act on the latest epoch.
type GroupService interface {
	CreateGroup(ctx context.Context, passphrase string) (GroupID, error)
	Sync(ctx context.Context, passphrase string, id GroupID) error
	JoinFromWelcomes(ctx context.Context, passphrase string) ([]GroupID, error)
	AddMember(ctx context.Context, passphrase string, id GroupID, user Username) (StateUpdate, error)
	RemoveMember(ctx context.Context, passphrase string, id GroupID, user Username) (StateUpdate, error)
	UpdateSelf(ctx context.Context, passphrase string, id GroupID) (StateUpdate, error)
	ListGroups() ([]GroupID, error)
	Roster(passphrase string, id GroupID) ([]Member, error)
}

// ReceivedMessage is a decrypted application message fetched from a group.
type ReceivedMessage struct {
	Seq       uint64 `json:"seq"`
	From      []byte `json:"from"`
	Plaintext []byte `json:"plaintext"`
}

// MessageService encrypts, sends, fetches and decrypts group messages.
type MessageService interface {
	SendMessage(ctx context.Context, passphrase string, id GroupID, plaintext []byte) error
	ReceiveMessages(ctx context.Context, passphrase string, id GroupID) ([]ReceivedMessage, error)
}

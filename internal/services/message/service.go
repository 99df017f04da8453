package message

import (
	"context"
	"errors"

	"meld/internal/domain"
	"meld/internal/group"
	"meld/internal/wire"
)

// ErrGroupNotFound indicates no stored state for the group id.
var ErrGroupNotFound = errors.New("unknown group")

// Service sends and receives application messages for a group.
type Service struct {
	groupStore domain.GroupStore
	groups     domain.GroupService
	delivery   domain.DeliveryClient
}

// New constructs a message service. Receiving delegates queue draining to
// the group service so handshake and application traffic stay ordered.
func New(groupStore domain.GroupStore, groups domain.GroupService, delivery domain.DeliveryClient) *Service {
	return &Service{groupStore: groupStore, groups: groups, delivery: delivery}
}

// SendMessage encrypts plaintext under the group's current epoch and posts
// it. The state is saved before posting so the consumed message key is never
// reused, even if the post fails.
func (s *Service) SendMessage(ctx context.Context, passphrase string, id domain.GroupID, plaintext []byte) error {
	g, err := s.load(passphrase, id)
	if err != nil {
		return err
	}
	msg, err := g.EncryptApplicationMessage(plaintext)
	if err != nil {
		return err
	}
	if err := s.save(passphrase, g); err != nil {
		return err
	}
	_, err = s.delivery.PostGroupMessage(ctx, id, wire.MarshalMLSMessage(msg))
	return err
}

// ReceiveMessages syncs the group and returns the decrypted application
// messages that arrived, oldest first.
func (s *Service) ReceiveMessages(ctx context.Context, passphrase string, id domain.GroupID) ([]domain.ReceivedMessage, error) {
	if err := s.groups.Sync(ctx, passphrase, id); err != nil {
		return nil, err
	}
	g, err := s.load(passphrase, id)
	if err != nil {
		return nil, err
	}
	msgs := g.DrainInbox()
	if len(msgs) == 0 {
		return nil, nil
	}
	if err := s.save(passphrase, g); err != nil {
		return nil, err
	}
	return msgs, nil
}

func (s *Service) load(passphrase string, id domain.GroupID) (*group.Group, error) {
	blob, ok, err := s.groupStore.LoadGroupState(passphrase, id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrGroupNotFound
	}
	return group.DecodeState(blob)
}

func (s *Service) save(passphrase string, g *group.Group) error {
	blob, err := g.EncodeState()
	if err != nil {
		return err
	}
	return s.groupStore.SaveGroupState(passphrase, g.ID(), blob)
}

// Compile-time assertion that Service implements domain.MessageService.
var _ domain.MessageService = (*Service)(nil)

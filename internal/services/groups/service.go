package groups

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"meld/internal/domain"
	"meld/internal/group"
	"meld/internal/wire"
)

var (
	// ErrGroupNotFound indicates no stored state for the group id.
	ErrGroupNotFound = errors.New("unknown group")
	// ErrMemberNotFound indicates the username is not in the roster.
	ErrMemberNotFound = errors.New("user is not a group member")
)

// Service creates, joins and administers groups.
//
// High-level flow:
//   - Admin operations first sync the group against the delivery service so
//     they commit on top of the latest epoch.
//   - A commit is posted before the staged epoch is applied; if the post
//     fails the stage is discarded and the group state is untouched.
//   - Welcomes are posted to each added member's queue after the commit.
type Service struct {
	idStore    domain.IdentityStore
	kpStore    domain.KeyPackageStore
	groupStore domain.GroupStore
	delivery   domain.DeliveryClient
}

// New constructs a group service.
func New(
	idStore domain.IdentityStore,
	kpStore domain.KeyPackageStore,
	groupStore domain.GroupStore,
	delivery domain.DeliveryClient,
) *Service {
	return &Service{idStore: idStore, kpStore: kpStore, groupStore: groupStore, delivery: delivery}
}

// CreateGroup starts a new single-member group and persists it.
func (s *Service) CreateGroup(ctx context.Context, passphrase string) (domain.GroupID, error) {
	id, err := s.idStore.LoadIdentity(passphrase)
	if err != nil {
		return nil, err
	}
	g, err := group.New(id, nil)
	if err != nil {
		return nil, err
	}
	if err := s.save(passphrase, g); err != nil {
		return nil, err
	}
	return g.ID(), nil
}

// JoinFromWelcomes fetches our queued welcomes and joins every group we can,
// consuming the matching key package private halves.
func (s *Service) JoinFromWelcomes(ctx context.Context, passphrase string) ([]domain.GroupID, error) {
	id, err := s.idStore.LoadIdentity(passphrase)
	if err != nil {
		return nil, err
	}
	welcomes, err := s.delivery.FetchWelcomes(ctx, id.Name)
	if err != nil {
		return nil, err
	}

	var joined []domain.GroupID
	processed := 0
	for _, raw := range welcomes {
		msg, err := wire.UnmarshalMLSMessage(raw)
		if err != nil || msg.WireFormat != domain.WireFormatWelcome || msg.Welcome == nil {
			processed++
			continue
		}
		g, err := s.joinOne(passphrase, id, msg)
		if err != nil {
			// A welcome for a key package we no longer hold, or one
			// addressed to someone else. Drop it and move on.
			processed++
			continue
		}
		if err := s.save(passphrase, g); err != nil {
			return joined, err
		}
		joined = append(joined, g.ID())
		processed++
	}
	if processed > 0 {
		if err := s.delivery.AckWelcomes(ctx, id.Name, processed); err != nil {
			return joined, err
		}
	}
	return joined, nil
}

func (s *Service) joinOne(passphrase string, id domain.Identity, msg domain.MLSMessage) (*group.Group, error) {
	for _, egs := range msg.Welcome.Secrets {
		kpPriv, ok, err := s.kpStore.ConsumeKeyPackagePrivate(passphrase, egs.NewMember)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		return group.FromWelcome(id, msg, kpPriv)
	}
	return nil, group.ErrNotAddressed
}

// Sync drains the group's delivery queue into the stored state: handshake
// messages advance the epoch, application messages land in the group inbox.
func (s *Service) Sync(ctx context.Context, passphrase string, id domain.GroupID) error {
	g, err := s.load(passphrase, id)
	if err != nil {
		return err
	}
	if err := s.syncGroup(ctx, g); err != nil {
		return err
	}
	return s.save(passphrase, g)
}

// syncGroup applies queued messages to g in sequence order and advances the
// cursor. Messages that cannot be processed (our own traffic echoed back,
// stale epochs) are skipped.
func (s *Service) syncGroup(ctx context.Context, g *group.Group) error {
	cursor, err := s.groupStore.LoadCursor(g.ID())
	if err != nil {
		return err
	}
	msgs, err := s.delivery.FetchGroupMessages(ctx, g.ID(), cursor)
	if err != nil {
		return err
	}
	for _, m := range msgs {
		s.processOne(g, m)
		cursor = m.Seq
	}
	return s.groupStore.SaveCursor(g.ID(), cursor)
}

// processOne feeds a single queue message into the group. Messages that
// cannot be decoded or verified are dropped; the delivery queue is a shared
// broadcast channel, and one bad message must never wedge the cursor.
func (s *Service) processOne(g *group.Group, m domain.SequencedMessage) {
	msg, err := wire.UnmarshalMLSMessage(m.Message)
	if err != nil {
		return
	}
	pm, err := g.ProcessIncoming(msg)
	if err != nil {
		// This covers our own traffic coming back, traffic from epochs
		// we already left behind, and anything malformed or forged.
		return
	}
	if pm.Kind == domain.ProcessedApplication {
		g.Enqueue(domain.ReceivedMessage{
			Seq:       m.Seq,
			From:      pm.SenderIdentity,
			Plaintext: pm.ApplicationData,
		})
	}
}

// AddMember claims one of the user's key packages and commits their
// addition, posting the proposal, commit and welcome.
func (s *Service) AddMember(ctx context.Context, passphrase string, id domain.GroupID, user domain.Username) (domain.StateUpdate, error) {
	g, err := s.load(passphrase, id)
	if err != nil {
		return domain.StateUpdate{}, err
	}
	if err := s.syncGroup(ctx, g); err != nil {
		return domain.StateUpdate{}, err
	}

	raw, err := s.delivery.ClaimKeyPackage(ctx, user)
	if err != nil {
		return domain.StateUpdate{}, fmt.Errorf("claim key package for %s: %w", user, err)
	}
	kpMsg, err := wire.UnmarshalMLSMessage(raw)
	if err != nil {
		return domain.StateUpdate{}, err
	}
	if kpMsg.WireFormat != domain.WireFormatKeyPackage || kpMsg.KeyPackage == nil {
		return domain.StateUpdate{}, fmt.Errorf("claimed payload is not a key package")
	}

	prop, err := g.ProposeAdd(*kpMsg.KeyPackage)
	if err != nil {
		return domain.StateUpdate{}, err
	}
	update, err := s.commitAndPost(ctx, passphrase, g, prop, user)
	if err != nil {
		return domain.StateUpdate{}, err
	}
	return *update, nil
}

// RemoveMember commits the eviction of the named user.
func (s *Service) RemoveMember(ctx context.Context, passphrase string, id domain.GroupID, user domain.Username) (domain.StateUpdate, error) {
	g, err := s.load(passphrase, id)
	if err != nil {
		return domain.StateUpdate{}, err
	}
	if err := s.syncGroup(ctx, g); err != nil {
		return domain.StateUpdate{}, err
	}

	leaf, ok := findMember(g, user)
	if !ok {
		return domain.StateUpdate{}, ErrMemberNotFound
	}
	prop, err := g.ProposeRemove(leaf)
	if err != nil {
		return domain.StateUpdate{}, err
	}
	update, err := s.commitAndPost(ctx, passphrase, g, prop, "")
	if err != nil {
		return domain.StateUpdate{}, err
	}
	return *update, nil
}

// UpdateSelf commits an empty commit, rotating our leaf and path keys.
func (s *Service) UpdateSelf(ctx context.Context, passphrase string, id domain.GroupID) (domain.StateUpdate, error) {
	g, err := s.load(passphrase, id)
	if err != nil {
		return domain.StateUpdate{}, err
	}
	if err := s.syncGroup(ctx, g); err != nil {
		return domain.StateUpdate{}, err
	}
	update, err := s.commitAndPost(ctx, passphrase, g, domain.MLSMessage{}, "")
	if err != nil {
		return domain.StateUpdate{}, err
	}
	return *update, nil
}

// commitAndPost posts the optional proposal and the commit, applies the
// staged epoch once the post succeeds, posts any welcome, and saves.
func (s *Service) commitAndPost(
	ctx context.Context,
	passphrase string,
	g *group.Group,
	proposal domain.MLSMessage,
	welcomee domain.Username,
) (*domain.StateUpdate, error) {
	if proposal.WireFormat != 0 {
		if _, err := s.delivery.PostGroupMessage(ctx, g.ID(), wire.MarshalMLSMessage(proposal)); err != nil {
			return nil, fmt.Errorf("post proposal: %w", err)
		}
	}

	out, err := g.Commit()
	if err != nil {
		return nil, err
	}
	if _, err := s.delivery.PostGroupMessage(ctx, g.ID(), wire.MarshalMLSMessage(out.Commit)); err != nil {
		g.ClearPendingCommit()
		return nil, fmt.Errorf("post commit: %w", err)
	}
	update, err := g.ApplyPendingCommit()
	if err != nil {
		return nil, err
	}

	if out.Welcome != nil && welcomee != "" {
		if err := s.delivery.PostWelcome(ctx, welcomee, wire.MarshalMLSMessage(*out.Welcome)); err != nil {
			return nil, fmt.Errorf("post welcome: %w", err)
		}
	}

	if err := s.save(passphrase, g); err != nil {
		return nil, err
	}
	return update, nil
}

// ListGroups returns the ids with stored state.
func (s *Service) ListGroups() ([]domain.GroupID, error) {
	return s.groupStore.ListGroups()
}

// Roster returns the group's current members.
func (s *Service) Roster(passphrase string, id domain.GroupID) ([]domain.Member, error) {
	g, err := s.load(passphrase, id)
	if err != nil {
		return nil, err
	}
	return g.Members(), nil
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

func findMember(g *group.Group, user domain.Username) (domain.LeafIndex, bool) {
	for _, m := range g.Members() {
		if bytes.Equal(m.Identity, []byte(user)) {
			return m.Index, true
		}
	}
	return 0, false
}

// Compile-time assertion that Service implements domain.GroupService.
var _ domain.GroupService = (*Service)(nil)

package group

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"

	"meld/internal/crypto"
	"meld/internal/domain"
	"meld/internal/protocol/keyschedule"
	"meld/internal/protocol/ratchettree"
	"meld/internal/protocol/transcript"
	"meld/internal/wire"
)

var (
	// ErrInactive indicates the local member was removed from the group.
	ErrInactive = errors.New("no longer a member of this group")
	// ErrWrongGroup indicates a message for a different group id.
	ErrWrongGroup = errors.New("message belongs to a different group")
	// ErrWrongEpoch indicates a message framed for another epoch.
	ErrWrongEpoch = errors.New("message belongs to a different epoch")
	// ErrBadSignature indicates a content signature that does not verify.
	ErrBadSignature = errors.New("invalid message signature")
	// ErrBadMembershipTag indicates a public message whose membership tag
	// does not match the epoch's membership key.
	ErrBadMembershipTag = errors.New("invalid membership tag")
	// ErrBadConfirmationTag indicates a commit whose confirmation tag does
	// not match our derived epoch secrets.
	ErrBadConfirmationTag = errors.New("invalid confirmation tag")
	// ErrOwnCommit indicates our own commit came back through processing
	// instead of ApplyPendingCommit.
	ErrOwnCommit = errors.New("own commit received, apply the pending commit instead")
	// ErrOwnMessage indicates one of our own application messages echoed
	// back from the delivery queue. The sending key is gone.
	ErrOwnMessage = errors.New("cannot process our own application message")
	// ErrNoPendingCommit indicates ApplyPendingCommit without a stage.
	ErrNoPendingCommit = errors.New("no pending commit")
	// ErrUnknownPSK indicates a pre-shared key proposal whose secret was
	// never registered locally.
	ErrUnknownPSK = errors.New("unknown pre-shared key")
)

// CachedProposal is a proposal received or created this epoch, waiting for a
// commit, keyed in the group by its hash reference.
type CachedProposal struct {
	Proposal domain.Proposal `json:"proposal"`
	Sender   domain.LeafIndex `json:"sender"`
}

// Group is the local view of one MLS group at its current epoch.
type Group struct {
	Identity domain.Identity     `json:"identity"`
	Context  domain.GroupContext `json:"context"`

	Tree *ratchettree.Tree    `json:"tree"`
	Priv *ratchettree.Private `json:"priv"`

	Secrets    *keyschedule.EpochSecrets `json:"secrets"`
	SecretTree *keyschedule.SecretTree   `json:"secret_tree"`
	Transcript transcript.Hashes         `json:"transcript"`

	// Proposals cached for the next commit, by hex proposal reference, with
	// Order preserving arrival order.
	Proposals map[string]CachedProposal `json:"proposals,omitempty"`
	Order     []string                  `json:"order,omitempty"`

	// PSKs registered out of band, by hex PSK id.
	PSKs map[string][]byte `json:"psks,omitempty"`

	// UpdateKeys holds init private keys of our own pending update
	// proposals, by hex key package reference, until a commit applies one.
	UpdateKeys map[string]domain.HPKEPrivateKey `json:"update_keys,omitempty"`

	Pending *PendingCommit `json:"pending,omitempty"`
	Active  bool           `json:"active"`

	// Inbox buffers decrypted application messages until the owner reads
	// them. Message keys are single-use, so decryption cannot wait.
	Inbox []domain.ReceivedMessage `json:"inbox,omitempty"`
}

// New creates a single-member group at epoch 0. A nil groupID gets a random
// 16-byte one.
func New(id domain.Identity, groupID domain.GroupID) (*Group, error) {
	if groupID == nil {
		groupID = make(domain.GroupID, 16)
		if _, err := rand.Read(groupID); err != nil {
			return nil, err
		}
	}

	kp, kpPriv, err := GenerateKeyPackage(id)
	if err != nil {
		return nil, err
	}
	tree := ratchettree.New(kp)
	priv := ratchettree.NewPrivate(0, kpPriv.InitPrivate)

	ctx := domain.GroupContext{
		Version:     domain.MLS10,
		CipherSuite: domain.CipherSuiteX25519ChaCha,
		GroupID:     groupID,
		Epoch:       0,
		TreeHash:    tree.Hash(),
	}

	// Epoch 0 has no previous epoch; a random init secret and a zero commit
	// secret seed the schedule.
	init, err := keyschedule.RandomInitSecret()
	if err != nil {
		return nil, err
	}
	secrets := keyschedule.Derive(init, keyschedule.ZeroCommitSecret(), nil, wire.MarshalGroupContext(ctx))

	g := &Group{
		Identity:   id,
		Context:    ctx,
		Tree:       tree,
		Priv:       priv,
		Secrets:    secrets,
		SecretTree: keyschedule.NewSecretTree(tree.LeafCount(), secrets.EncryptionSecret),
		Transcript: transcript.New(),
		Proposals:  make(map[string]CachedProposal),
		PSKs:       make(map[string][]byte),
		Active:     true,
	}
	return g, nil
}

// ID returns the group identifier.
func (g *Group) ID() domain.GroupID { return g.Context.GroupID }

// Epoch returns the current epoch.
func (g *Group) Epoch() domain.Epoch { return g.Context.Epoch }

// OwnIndex returns our leaf index.
func (g *Group) OwnIndex() domain.LeafIndex { return g.Priv.Leaf }

// Members returns the current roster.
func (g *Group) Members() []domain.Member { return g.Tree.Members() }

// EpochAuthenticator exposes the secret two members compare out of band to
// confirm they share a group state.
func (g *Group) EpochAuthenticator() []byte { return g.Secrets.EpochAuthenticator }

// ExportSecret derives an application secret bound to this epoch.
func (g *Group) ExportSecret(label string, context []byte, length uint16) []byte {
	return g.Secrets.Exporter(label, context, length)
}

// RegisterPSK stores an externally agreed pre-shared key so proposals
// naming it can be committed and processed.
func (g *Group) RegisterPSK(id, secret []byte) {
	if g.PSKs == nil {
		g.PSKs = make(map[string][]byte)
	}
	g.PSKs[hex.EncodeToString(id)] = append([]byte(nil), secret...)
}

// proposalRefBytes computes the hash reference a commit uses to name a
// standalone proposal.
func proposalRefBytes(p domain.Proposal) []byte {
	r := crypto.RefHash("ProposalRef", wire.MarshalProposal(p))
	return r[:]
}

func proposalRef(p domain.Proposal) string {
	return hex.EncodeToString(proposalRefBytes(p))
}

// signContent signs framed content for the given wire format and returns
// the auth data without a confirmation tag.
func (g *Group) signContent(wf domain.WireFormat, c domain.FramedContent) domain.FramedContentAuthData {
	tbs := wire.FramedContentTBS(wf, c, g.Context)
	return domain.FramedContentAuthData{
		Signature: crypto.SignWithLabel(g.Identity.EdPriv, "FramedContentTBS", tbs),
	}
}

// verifyContent checks a framed content signature against the sender's leaf
// in the given tree.
func verifyContent(tree *ratchettree.Tree, ctx domain.GroupContext, wf domain.WireFormat, c domain.FramedContent, auth domain.FramedContentAuthData) error {
	if c.Sender.Type != domain.SenderTypeMember {
		return fmt.Errorf("unsupported sender type %d", c.Sender.Type)
	}
	leaf := tree.Leaf(c.Sender.LeafIndex)
	if leaf == nil {
		return fmt.Errorf("sender leaf %d is blank", c.Sender.LeafIndex)
	}
	tbs := wire.FramedContentTBS(wf, c, ctx)
	if !crypto.VerifyWithLabel(leaf.Credential.SignatureKey, "FramedContentTBS", tbs, auth.Signature) {
		return ErrBadSignature
	}
	return nil
}

// framePublic wraps signed content in a public message with this epoch's
// membership tag.
func (g *Group) framePublic(c domain.FramedContent, auth domain.FramedContentAuthData) domain.MLSMessage {
	tbs := wire.FramedContentTBS(domain.WireFormatPublicMessage, c, g.Context)
	tbm := wire.AuthenticatedContentTBM(tbs, c.ContentType, auth)
	return domain.MLSMessage{
		Version:    domain.MLS10,
		WireFormat: domain.WireFormatPublicMessage,
		PublicMessage: &domain.PublicMessage{
			Content:       c,
			Auth:          auth,
			MembershipTag: crypto.HMAC(g.Secrets.MembershipKey, tbm),
		},
	}
}

// checkPublic verifies a public message's framing against the current epoch
// and returns its content.
func (g *Group) checkPublic(m *domain.PublicMessage) error {
	c := m.Content
	if !g.Context.GroupID.Equal(c.GroupID) {
		return ErrWrongGroup
	}
	if c.Epoch != g.Context.Epoch {
		return ErrWrongEpoch
	}
	if err := verifyContent(g.Tree, g.Context, domain.WireFormatPublicMessage, c, m.Auth); err != nil {
		return err
	}
	tbs := wire.FramedContentTBS(domain.WireFormatPublicMessage, c, g.Context)
	tbm := wire.AuthenticatedContentTBM(tbs, c.ContentType, m.Auth)
	if !crypto.HMACEqual(m.MembershipTag, crypto.HMAC(g.Secrets.MembershipKey, tbm)) {
		return ErrBadMembershipTag
	}
	return nil
}

// pskSecretFor resolves the pre-shared keys a proposal list names into one
// key schedule input.
func (g *Group) pskSecretFor(props []domain.Proposal) ([]byte, error) {
	var secrets [][]byte
	for _, p := range props {
		if p.Type != domain.ProposalTypePreSharedKey {
			continue
		}
		s, ok := g.PSKs[hex.EncodeToString(p.PreSharedKey.PSKID)]
		if !ok {
			return nil, fmt.Errorf("%w: %x", ErrUnknownPSK, p.PreSharedKey.PSKID)
		}
		secrets = append(secrets, s)
	}
	return keyschedule.PSKSecret(secrets), nil
}

package group

import (
	"crypto/rand"
	"fmt"

	"meld/internal/crypto"
	"meld/internal/domain"
	"meld/internal/protocol/keyschedule"
	"meld/internal/protocol/treemath"
	"meld/internal/wire"
)

// ProcessIncoming feeds one message from the delivery service into the
// group: standalone proposals are cached, commits advance the epoch, and
// private messages are decrypted.
func (g *Group) ProcessIncoming(msg domain.MLSMessage) (*domain.ProcessedMessage, error) {
	if !g.Active {
		return nil, ErrInactive
	}
	switch msg.WireFormat {
	case domain.WireFormatPublicMessage:
		if msg.PublicMessage == nil {
			return nil, fmt.Errorf("public message envelope without body")
		}
		return g.processPublic(msg.PublicMessage)
	case domain.WireFormatPrivateMessage:
		if msg.PrivateMessage == nil {
			return nil, fmt.Errorf("private message envelope without body")
		}
		return g.processPrivate(msg.PrivateMessage)
	default:
		return nil, fmt.Errorf("unexpected wire format %d", msg.WireFormat)
	}
}

func (g *Group) processPublic(m *domain.PublicMessage) (*domain.ProcessedMessage, error) {
	if err := g.checkPublic(m); err != nil {
		return nil, err
	}
	c := m.Content
	senderLeaf := g.Tree.Leaf(c.Sender.LeafIndex)

	switch c.ContentType {
	case domain.ContentTypeProposal:
		if c.Sender.LeafIndex == g.Priv.Leaf {
			// Our own proposal echoed back; already cached when framed.
			return &domain.ProcessedMessage{
				Kind:           domain.ProcessedProposal,
				SenderIndex:    c.Sender.LeafIndex,
				SenderIdentity: senderLeaf.Credential.Identity,
			}, nil
		}
		g.cacheProposal(*c.Proposal, c.Sender.LeafIndex)
		return &domain.ProcessedMessage{
			Kind:           domain.ProcessedProposal,
			SenderIndex:    c.Sender.LeafIndex,
			SenderIdentity: senderLeaf.Credential.Identity,
		}, nil

	case domain.ContentTypeCommit:
		if c.Sender.LeafIndex == g.Priv.Leaf {
			return nil, ErrOwnCommit
		}
		update, err := g.processCommit(c, m.Auth)
		if err != nil {
			return nil, err
		}
		return &domain.ProcessedMessage{
			Kind:           domain.ProcessedCommit,
			SenderIndex:    c.Sender.LeafIndex,
			SenderIdentity: senderLeaf.Credential.Identity,
			Update:         update,
		}, nil

	default:
		return nil, fmt.Errorf("unexpected public content type %d", c.ContentType)
	}
}

// processCommit applies another member's commit and advances to the next
// epoch.
func (g *Group) processCommit(c domain.FramedContent, auth domain.FramedContentAuthData) (*domain.StateUpdate, error) {
	committer := c.Sender.LeafIndex
	props, err := g.resolve(c.Commit.Proposals)
	if err != nil {
		return nil, err
	}

	provTree := g.Tree.Clone()
	provPriv := g.Priv.Clone()

	eff, err := g.apply(provTree, props, committer)
	if err != nil {
		return nil, err
	}
	if eff.selfRemoved {
		// We are out as of this commit; the new epoch's secrets are not
		// derivable for us and not ours to hold.
		g.Active = false
		g.clearEpochCaches()
		return eff.stateUpdate(g.Context.Epoch+1, false), nil
	}
	if eff.ourNewLeafKey != nil {
		provPriv.Keys = map[treemath.NodeIndex]domain.X25519Private{
			treemath.LeafNode(uint32(g.Priv.Leaf)): *eff.ourNewLeafKey,
		}
	}

	pskSecret, err := g.pskSecretFor(eff.proposals)
	if err != nil {
		return nil, err
	}

	commitSecret := keyschedule.ZeroCommitSecret()
	if c.Commit.Path != nil {
		provCtx := g.provisionalContext(provTree.Hash())
		commitSecret, err = provTree.ApplyUpdatePath(committer, provPriv, *c.Commit.Path, wire.MarshalGroupContext(provCtx))
		if err != nil {
			return nil, err
		}
	} else if eff.pathRequired() {
		return nil, fmt.Errorf("%w: commit requires an update path", ErrProposalInvalid)
	}

	newTranscript := g.Transcript.AdvanceConfirmed(domain.WireFormatPublicMessage, c, auth.Signature)
	newCtx := g.Context
	newCtx.Epoch++
	newCtx.TreeHash = provTree.Hash()
	newCtx.ConfirmedTranscriptHash = newTranscript.Confirmed

	newSecrets := keyschedule.Derive(g.Secrets.InitSecret, commitSecret, pskSecret, wire.MarshalGroupContext(newCtx))
	if !crypto.HMACEqual(auth.ConfirmationTag, newSecrets.ConfirmationTag(newCtx.ConfirmedTranscriptHash)) {
		return nil, ErrBadConfirmationTag
	}
	newTranscript = newTranscript.AdvanceInterim(auth.ConfirmationTag)

	g.Context = newCtx
	g.Tree = provTree
	g.Priv = provPriv
	g.Secrets = newSecrets
	g.Transcript = newTranscript
	g.SecretTree = keyschedule.NewSecretTree(provTree.LeafCount(), newSecrets.EncryptionSecret)
	g.clearEpochCaches()

	active := !eff.reinit
	if eff.reinit {
		// A reinit ends the group at this epoch; the resumed group is a
		// separate creation.
		g.Active = false
	}
	return eff.stateUpdate(newCtx.Epoch, active), nil
}

// EncryptApplicationMessage protects application data for the current
// epoch.
func (g *Group) EncryptApplicationMessage(data []byte) (domain.MLSMessage, error) {
	if !g.Active {
		return domain.MLSMessage{}, ErrInactive
	}

	content := domain.FramedContent{
		GroupID:         g.Context.GroupID,
		Epoch:           g.Context.Epoch,
		Sender:          domain.Sender{Type: domain.SenderTypeMember, LeafIndex: g.Priv.Leaf},
		ContentType:     domain.ContentTypeApplication,
		ApplicationData: data,
	}
	auth := g.signContent(domain.WireFormatPrivateMessage, content)
	plaintext := wire.MarshalPrivateContent(content, auth)

	keys, err := g.SecretTree.NextSending(g.Priv.Leaf, domain.ContentTypeApplication)
	if err != nil {
		return domain.MLSMessage{}, err
	}
	var reuseGuard [4]byte
	if _, err := rand.Read(reuseGuard[:]); err != nil {
		return domain.MLSMessage{}, err
	}

	aad := wire.PrivateMessageAAD(g.Context.GroupID, g.Context.Epoch, domain.ContentTypeApplication, nil)
	ciphertext, err := crypto.SealAEAD(keys.Key, applyReuseGuard(keys.Nonce, reuseGuard), aad, plaintext)
	if err != nil {
		return domain.MLSMessage{}, err
	}

	senderData := wire.MarshalSenderData(g.Priv.Leaf, keys.Generation, reuseGuard)
	sdKey, sdNonce := keyschedule.SenderDataKeys(g.Secrets.SenderDataSecret, ciphertext)
	encSenderData, err := crypto.SealAEAD(sdKey, sdNonce, aad, senderData)
	if err != nil {
		return domain.MLSMessage{}, err
	}

	return domain.MLSMessage{
		Version:    domain.MLS10,
		WireFormat: domain.WireFormatPrivateMessage,
		PrivateMessage: &domain.PrivateMessage{
			GroupID:             g.Context.GroupID,
			Epoch:               g.Context.Epoch,
			ContentType:         domain.ContentTypeApplication,
			EncryptedSenderData: encSenderData,
			Ciphertext:          ciphertext,
		},
	}, nil
}

func (g *Group) processPrivate(m *domain.PrivateMessage) (*domain.ProcessedMessage, error) {
	if !g.Context.GroupID.Equal(m.GroupID) {
		return nil, ErrWrongGroup
	}
	if m.Epoch != g.Context.Epoch {
		return nil, ErrWrongEpoch
	}
	if m.ContentType != domain.ContentTypeApplication {
		return nil, fmt.Errorf("unexpected private content type %d", m.ContentType)
	}

	aad := wire.PrivateMessageAAD(m.GroupID, m.Epoch, m.ContentType, m.AuthenticatedData)
	sdKey, sdNonce := keyschedule.SenderDataKeys(g.Secrets.SenderDataSecret, m.Ciphertext)
	sdRaw, err := crypto.OpenAEAD(sdKey, sdNonce, aad, m.EncryptedSenderData)
	if err != nil {
		return nil, fmt.Errorf("open sender data: %w", err)
	}
	senderLeaf, generation, reuseGuard, err := wire.UnmarshalSenderData(sdRaw)
	if err != nil {
		return nil, err
	}
	if senderLeaf == g.Priv.Leaf {
		return nil, ErrOwnMessage
	}
	leaf := g.Tree.Leaf(senderLeaf)
	if leaf == nil {
		return nil, fmt.Errorf("sender leaf %d is blank", senderLeaf)
	}

	keys, err := g.SecretTree.ForGeneration(senderLeaf, domain.ContentTypeApplication, generation)
	if err != nil {
		return nil, err
	}
	plaintext, err := crypto.OpenAEAD(keys.Key, applyReuseGuard(keys.Nonce, reuseGuard), aad, m.Ciphertext)
	if err != nil {
		return nil, fmt.Errorf("open application message: %w", err)
	}

	content, auth, err := wire.UnmarshalPrivateContent(plaintext, m.ContentType)
	if err != nil {
		return nil, err
	}
	// The sealed payload carries only the content variant and auth data.
	// Restore the framing fields from the envelope and sender data so the
	// signature covers what the sender actually signed.
	content.GroupID = m.GroupID
	content.Epoch = m.Epoch
	content.Sender = domain.Sender{Type: domain.SenderTypeMember, LeafIndex: senderLeaf}
	content.AuthenticatedData = m.AuthenticatedData
	if err := verifyContent(g.Tree, g.Context, domain.WireFormatPrivateMessage, content, auth); err != nil {
		return nil, err
	}

	return &domain.ProcessedMessage{
		Kind:            domain.ProcessedApplication,
		SenderIndex:     senderLeaf,
		SenderIdentity:  leaf.Credential.Identity,
		ApplicationData: content.ApplicationData,
	}, nil
}

// applyReuseGuard XORs the sender's reuse guard into the nonce's leading
// bytes.
func applyReuseGuard(nonce []byte, guard [4]byte) []byte {
	out := append([]byte(nil), nonce...)
	for i := 0; i < 4 && i < len(out); i++ {
		out[i] ^= guard[i]
	}
	return out
}

package group

import (
	"fmt"

	"meld/internal/crypto"
	"meld/internal/domain"
	"meld/internal/protocol/keyschedule"
	"meld/internal/protocol/ratchettree"
	"meld/internal/protocol/transcript"
	"meld/internal/protocol/treemath"
	"meld/internal/wire"
)

// PendingCommit is a staged next epoch: the full state our own commit
// produces, held until the delivery service accepts the commit message.
type PendingCommit struct {
	Context    domain.GroupContext       `json:"context"`
	Tree       *ratchettree.Tree         `json:"tree"`
	Priv       *ratchettree.Private      `json:"priv"`
	Secrets    *keyschedule.EpochSecrets `json:"secrets"`
	Transcript transcript.Hashes         `json:"transcript"`
	Update     *domain.StateUpdate       `json:"update"`
}

// CommitOutput bundles what a commit produced: the commit message for the
// group, and a welcome for any members it added.
type CommitOutput struct {
	Commit  domain.MLSMessage
	Welcome *domain.MLSMessage
	Update  *domain.StateUpdate
}

// Commit builds a commit covering every cached proposal, stages the next
// epoch, and returns the messages to send. Our own update proposals are
// filtered out; a commit refreshes the committer's leaf through its update
// path instead.
func (g *Group) Commit() (*CommitOutput, error) {
	if !g.Active {
		return nil, ErrInactive
	}

	var entries []domain.ProposalOrRef
	var props []resolved
	for _, ref := range g.Order {
		cached := g.Proposals[ref]
		if cached.Proposal.Type == domain.ProposalTypeUpdate && cached.Sender == g.Priv.Leaf {
			continue
		}
		entries = append(entries, domain.ProposalOrRef{
			Type:      domain.ProposalOrRefReference,
			Reference: proposalRefBytes(cached.Proposal),
		})
		props = append(props, resolved{proposal: cached.Proposal, sender: cached.Sender})
	}

	provTree := g.Tree.Clone()
	provPriv := g.Priv.Clone()

	eff, err := g.apply(provTree, props, g.Priv.Leaf)
	if err != nil {
		return nil, err
	}
	pskSecret, err := g.pskSecretFor(eff.proposals)
	if err != nil {
		return nil, err
	}

	commit := domain.Commit{Proposals: entries}
	commitSecret := keyschedule.ZeroCommitSecret()
	var pathResult *ratchettree.PathResult

	if eff.pathRequired() {
		provCtx := g.provisionalContext(provTree.Hash())
		pathResult, err = provTree.CreateUpdatePath(g.Priv.Leaf, wire.MarshalGroupContext(provCtx), g.signLeafKeyPackage)
		if err != nil {
			return nil, err
		}
		pathResult.Merge(provPriv)
		commitSecret = pathResult.CommitSecret
		commit.Path = &pathResult.Path
	}

	content := domain.FramedContent{
		GroupID:     g.Context.GroupID,
		Epoch:       g.Context.Epoch,
		Sender:      domain.Sender{Type: domain.SenderTypeMember, LeafIndex: g.Priv.Leaf},
		ContentType: domain.ContentTypeCommit,
		Commit:      &commit,
	}
	auth := g.signContent(domain.WireFormatPublicMessage, content)

	newTranscript := g.Transcript.AdvanceConfirmed(domain.WireFormatPublicMessage, content, auth.Signature)
	newCtx := g.Context
	newCtx.Epoch++
	newCtx.TreeHash = provTree.Hash()
	newCtx.ConfirmedTranscriptHash = newTranscript.Confirmed

	newSecrets := keyschedule.Derive(g.Secrets.InitSecret, commitSecret, pskSecret, wire.MarshalGroupContext(newCtx))
	auth.ConfirmationTag = newSecrets.ConfirmationTag(newCtx.ConfirmedTranscriptHash)
	newTranscript = newTranscript.AdvanceInterim(auth.ConfirmationTag)

	msg := g.framePublic(content, auth)

	var welcome *domain.MLSMessage
	if len(eff.joiners) > 0 {
		welcome, err = g.buildWelcome(newCtx, provTree, newSecrets, auth.ConfirmationTag, eff.joiners, pathResult)
		if err != nil {
			return nil, err
		}
	}

	update := eff.stateUpdate(newCtx.Epoch, true)
	g.Pending = &PendingCommit{
		Context:    newCtx,
		Tree:       provTree,
		Priv:       provPriv,
		Secrets:    newSecrets,
		Transcript: newTranscript,
		Update:     update,
	}

	return &CommitOutput{Commit: msg, Welcome: welcome, Update: update}, nil
}

// ApplyPendingCommit makes the staged epoch current. Call it once the
// delivery service has accepted the commit message.
func (g *Group) ApplyPendingCommit() (*domain.StateUpdate, error) {
	p := g.Pending
	if p == nil {
		return nil, ErrNoPendingCommit
	}
	g.Context = p.Context
	g.Tree = p.Tree
	g.Priv = p.Priv
	g.Secrets = p.Secrets
	g.Transcript = p.Transcript
	g.SecretTree = keyschedule.NewSecretTree(p.Tree.LeafCount(), p.Secrets.EncryptionSecret)
	g.clearEpochCaches()
	return p.Update, nil
}

// ClearPendingCommit discards a staged commit the delivery service
// rejected.
func (g *Group) ClearPendingCommit() { g.Pending = nil }

func (g *Group) clearEpochCaches() {
	g.Proposals = make(map[string]CachedProposal)
	g.Order = nil
	g.UpdateKeys = nil
	g.Pending = nil
}

// provisionalContext is the context binding update path encryptions: the
// next epoch over the proposal-applied tree, before the path lands.
func (g *Group) provisionalContext(treeHash []byte) domain.GroupContext {
	ctx := g.Context
	ctx.Epoch++
	ctx.TreeHash = treeHash
	return ctx
}

// signLeafKeyPackage signs the refreshed leaf an update path installs.
func (g *Group) signLeafKeyPackage(kp domain.KeyPackage) (domain.KeyPackage, error) {
	kp.Signature = crypto.SignWithLabel(g.Identity.EdPriv, "KeyPackageTBS", wire.KeyPackageTBS(kp))
	return kp, nil
}

// buildWelcome seals the new epoch's joiner secret, and the relevant path
// secret, to each added member.
func (g *Group) buildWelcome(
	ctx domain.GroupContext,
	tree *ratchettree.Tree,
	secrets *keyschedule.EpochSecrets,
	confirmationTag []byte,
	joiners []joiner,
	pathResult *ratchettree.PathResult,
) (*domain.MLSMessage, error) {
	gi := domain.GroupInfo{
		Context:         ctx,
		Tree:            tree.Nodes,
		ConfirmationTag: confirmationTag,
		Signer:          g.Priv.Leaf,
	}
	gi.Signature = crypto.SignWithLabel(g.Identity.EdPriv, "GroupInfoTBS", wire.GroupInfoTBS(gi))

	key, nonce := keyschedule.WelcomeKeyNonce(secrets.WelcomeSecret)
	encGI, err := crypto.SealAEAD(key, nonce, nil, wire.MarshalGroupInfo(gi))
	if err != nil {
		return nil, err
	}

	w := domain.Welcome{
		CipherSuite:        domain.CipherSuiteX25519ChaCha,
		EncryptedGroupInfo: encGI,
	}
	leaves := tree.LeafCount()
	for _, j := range joiners {
		gs := domain.GroupSecrets{JoinerSecret: secrets.JoinerSecret}
		if pathResult != nil {
			lca := treemath.CommonAncestor(
				treemath.LeafNode(uint32(g.Priv.Leaf)),
				treemath.LeafNode(uint32(j.leaf)),
				leaves,
			)
			ps, ok := pathResult.PathSecrets[lca]
			if !ok {
				return nil, fmt.Errorf("no path secret at ancestor of leaf %d", j.leaf)
			}
			gs.PathSecret = ps
		}
		sealed, err := crypto.HPKESeal(j.kp.InitKey, nil, nil, wire.MarshalGroupSecrets(gs))
		if err != nil {
			return nil, err
		}
		w.Secrets = append(w.Secrets, domain.EncryptedGroupSecrets{
			NewMember:        KeyPackageRef(j.kp),
			EncryptedSecrets: sealed,
		})
	}

	return &domain.MLSMessage{
		Version:    domain.MLS10,
		WireFormat: domain.WireFormatWelcome,
		Welcome:    &w,
	}, nil
}

package group

import (
	"fmt"
	"time"

	"meld/internal/domain"
)

// ProposeAdd frames an add proposal for the key package's owner. The
// proposal is cached locally and included in our next commit.
func (g *Group) ProposeAdd(kp domain.KeyPackage) (domain.MLSMessage, error) {
	if err := ValidateKeyPackage(kp, time.Now()); err != nil {
		return domain.MLSMessage{}, err
	}
	return g.propose(domain.Proposal{
		Type: domain.ProposalTypeAdd,
		Add:  &domain.AddProposal{KeyPackage: kp},
	})
}

// ProposeUpdate frames an update proposal replacing our leaf with a fresh
// key package. The new init private key is kept for when a commit applies
// the update.
func (g *Group) ProposeUpdate() (domain.MLSMessage, error) {
	kp, kpPriv, err := GenerateKeyPackage(g.Identity)
	if err != nil {
		return domain.MLSMessage{}, err
	}
	msg, err := g.propose(domain.Proposal{
		Type:   domain.ProposalTypeUpdate,
		Update: &domain.UpdateProposal{KeyPackage: kp},
	})
	if err != nil {
		return domain.MLSMessage{}, err
	}
	if g.UpdateKeys == nil {
		g.UpdateKeys = make(map[string]domain.HPKEPrivateKey)
	}
	g.UpdateKeys[kpPriv.Ref.String()] = kpPriv.InitPrivate
	return msg, nil
}

// ProposeRemove frames a remove proposal for the member at the given leaf.
func (g *Group) ProposeRemove(removed domain.LeafIndex) (domain.MLSMessage, error) {
	if g.Tree.Leaf(removed) == nil {
		return domain.MLSMessage{}, fmt.Errorf("leaf %d is not a member", removed)
	}
	return g.propose(domain.Proposal{
		Type:   domain.ProposalTypeRemove,
		Remove: &domain.RemoveProposal{Removed: removed},
	})
}

// ProposePreSharedKey frames a proposal injecting a registered pre-shared
// key into the next epoch.
func (g *Group) ProposePreSharedKey(pskID []byte) (domain.MLSMessage, error) {
	if _, err := g.pskSecretFor([]domain.Proposal{{
		Type:         domain.ProposalTypePreSharedKey,
		PreSharedKey: &domain.PreSharedKeyProposal{PSKID: pskID},
	}}); err != nil {
		return domain.MLSMessage{}, err
	}
	return g.propose(domain.Proposal{
		Type:         domain.ProposalTypePreSharedKey,
		PreSharedKey: &domain.PreSharedKeyProposal{PSKID: pskID},
	})
}

func (g *Group) propose(p domain.Proposal) (domain.MLSMessage, error) {
	if !g.Active {
		return domain.MLSMessage{}, ErrInactive
	}
	content := domain.FramedContent{
		GroupID:     g.Context.GroupID,
		Epoch:       g.Context.Epoch,
		Sender:      domain.Sender{Type: domain.SenderTypeMember, LeafIndex: g.Priv.Leaf},
		ContentType: domain.ContentTypeProposal,
		Proposal:    &p,
	}
	auth := g.signContent(domain.WireFormatPublicMessage, content)
	g.cacheProposal(p, g.Priv.Leaf)
	return g.framePublic(content, auth), nil
}

func (g *Group) cacheProposal(p domain.Proposal, sender domain.LeafIndex) {
	ref := proposalRef(p)
	if g.Proposals == nil {
		g.Proposals = make(map[string]CachedProposal)
	}
	if _, ok := g.Proposals[ref]; !ok {
		g.Order = append(g.Order, ref)
	}
	g.Proposals[ref] = CachedProposal{Proposal: p, Sender: sender}
}

package group

import (
	"bytes"
	"errors"
	"fmt"
	"time"

	"meld/internal/domain"
	"meld/internal/protocol/ratchettree"
)

var (
	// ErrProposalInvalid covers commits whose proposal list breaks the
	// validation rules.
	ErrProposalInvalid = errors.New("invalid proposal list")
	// ErrUnknownProposalRef indicates a commit referencing a proposal we
	// never received.
	ErrUnknownProposalRef = errors.New("unknown proposal reference")
)

// resolved is one commit proposal with its original sender, after
// by-reference entries are looked up in the cache.
type resolved struct {
	proposal domain.Proposal
	sender   domain.LeafIndex
}

// effects describes what applying a commit's proposals did to the
// provisional tree.
type effects struct {
	proposals []domain.Proposal

	added   []domain.Member
	updated []domain.Member
	removed []domain.Member

	// joiners pairs each added leaf with its key package, for the welcome.
	joiners []joiner

	// ourNewLeafKey is set when one of our own update proposals replaced
	// our leaf, carrying the matching init private key.
	ourNewLeafKey *domain.HPKEPrivateKey

	selfRemoved bool
	reinit      bool
}

type joiner struct {
	leaf domain.LeafIndex
	kp   domain.KeyPackage
}

// pathRequired reports whether the commit must carry an update path: always,
// except when it applies only add proposals.
func (e *effects) pathRequired() bool {
	if len(e.proposals) == 0 {
		return true
	}
	for _, p := range e.proposals {
		if p.Type != domain.ProposalTypeAdd {
			return true
		}
	}
	return false
}

// resolve expands a commit's proposal list, looking by-reference entries up
// in the cache.
func (g *Group) resolve(entries []domain.ProposalOrRef) ([]resolved, error) {
	out := make([]resolved, 0, len(entries))
	for _, e := range entries {
		switch e.Type {
		case domain.ProposalOrRefProposal:
			return nil, fmt.Errorf("%w: inline proposals are not accepted", ErrProposalInvalid)
		case domain.ProposalOrRefReference:
			cached, ok := g.Proposals[refKey(e.Reference)]
			if !ok {
				return nil, ErrUnknownProposalRef
			}
			out = append(out, resolved{proposal: cached.Proposal, sender: cached.Sender})
		default:
			return nil, fmt.Errorf("%w: proposal-or-ref type %d", ErrProposalInvalid, e.Type)
		}
	}
	return out, nil
}

// apply validates the resolved proposals against the rules a commit must
// obey and applies them to the provisional tree: updates, then removes,
// then adds. PSK and ReInit proposals touch no leaves.
func (g *Group) apply(tree *ratchettree.Tree, props []resolved, committer domain.LeafIndex) (*effects, error) {
	e := &effects{}

	var updates, removes, adds, others []resolved
	for _, r := range props {
		e.proposals = append(e.proposals, r.proposal)
		switch r.proposal.Type {
		case domain.ProposalTypeUpdate:
			updates = append(updates, r)
		case domain.ProposalTypeRemove:
			removes = append(removes, r)
		case domain.ProposalTypeAdd:
			adds = append(adds, r)
		case domain.ProposalTypePreSharedKey, domain.ProposalTypeReInit:
			others = append(others, r)
		default:
			return nil, fmt.Errorf("%w: proposal type %d", ErrProposalInvalid, r.proposal.Type)
		}
	}

	for _, r := range others {
		if r.proposal.Type == domain.ProposalTypeReInit {
			if len(props) != 1 {
				return nil, fmt.Errorf("%w: reinit must be a commit's only proposal", ErrProposalInvalid)
			}
			e.reinit = true
		}
		// Joiners enter the key schedule at the joiner secret and cannot
		// reproduce a PSK-influenced derivation.
		if r.proposal.Type == domain.ProposalTypePreSharedKey && len(adds) > 0 {
			return nil, fmt.Errorf("%w: pre-shared keys cannot be committed together with adds", ErrProposalInvalid)
		}
	}

	// One update or remove per leaf, updates never from the committer.
	touched := make(map[domain.LeafIndex]bool)

	for _, r := range updates {
		if r.sender == committer {
			return nil, fmt.Errorf("%w: committer cannot commit its own update", ErrProposalInvalid)
		}
		if touched[r.sender] {
			return nil, fmt.Errorf("%w: multiple proposals for leaf %d", ErrProposalInvalid, r.sender)
		}
		touched[r.sender] = true

		kp := r.proposal.Update.KeyPackage
		if err := ValidateKeyPackage(kp, time.Now()); err != nil {
			return nil, err
		}
		old := tree.Leaf(r.sender)
		if old == nil {
			return nil, fmt.Errorf("%w: update for blank leaf %d", ErrProposalInvalid, r.sender)
		}
		if !bytes.Equal(old.Credential.Identity, kp.Credential.Identity) {
			return nil, fmt.Errorf("%w: update changes identity at leaf %d", ErrProposalInvalid, r.sender)
		}
		if err := tree.UpdateLeaf(r.sender, kp); err != nil {
			return nil, err
		}
		e.updated = append(e.updated, domain.Member{Index: r.sender, Identity: kp.Credential.Identity})

		if r.sender == g.Priv.Leaf {
			key, ok := g.UpdateKeys[KeyPackageRef(kp).String()]
			if !ok {
				return nil, fmt.Errorf("%w: no private key for our own update", ErrProposalInvalid)
			}
			e.ourNewLeafKey = &key
		}
	}

	for _, r := range removes {
		target := r.proposal.Remove.Removed
		if target == committer {
			return nil, fmt.Errorf("%w: commit cannot remove its own committer", ErrProposalInvalid)
		}
		if touched[target] {
			return nil, fmt.Errorf("%w: multiple proposals for leaf %d", ErrProposalInvalid, target)
		}
		touched[target] = true

		leaf := tree.Leaf(target)
		if leaf == nil {
			return nil, fmt.Errorf("%w: remove targets blank leaf %d", ErrProposalInvalid, target)
		}
		e.removed = append(e.removed, domain.Member{Index: target, Identity: leaf.Credential.Identity})
		if err := tree.BlankLeaf(target); err != nil {
			return nil, err
		}
		if target == g.Priv.Leaf {
			e.selfRemoved = true
		}
	}

	for _, r := range adds {
		kp := r.proposal.Add.KeyPackage
		if err := ValidateKeyPackage(kp, time.Now()); err != nil {
			return nil, err
		}
		if _, ok := tree.FindSignatureKey(kp.Credential.SignatureKey); ok {
			return nil, fmt.Errorf("%w: signature key already in group", ErrProposalInvalid)
		}
		if _, ok := tree.FindIdentity(kp.Credential.Identity); ok {
			return nil, fmt.Errorf("%w: identity %q already in group", ErrProposalInvalid, kp.Credential.Identity)
		}
		leaf := tree.AddLeaf(kp)
		e.added = append(e.added, domain.Member{Index: leaf, Identity: kp.Credential.Identity})
		e.joiners = append(e.joiners, joiner{leaf: leaf, kp: kp})
	}

	return e, nil
}

func refKey(ref []byte) string {
	return fmt.Sprintf("%x", ref)
}

// stateUpdate converts the effects of an applied commit into the summary
// handed to callers.
func (e *effects) stateUpdate(epoch domain.Epoch, active bool) *domain.StateUpdate {
	return &domain.StateUpdate{
		Active:  active,
		Epoch:   epoch,
		Added:   e.added,
		Updated: e.updated,
		Removed: e.removed,
	}
}

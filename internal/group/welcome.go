package group

import (
	"bytes"
	"errors"
	"fmt"

	"meld/internal/crypto"
	"meld/internal/domain"
	"meld/internal/protocol/keyschedule"
	"meld/internal/protocol/ratchettree"
	"meld/internal/protocol/transcript"
	"meld/internal/protocol/treemath"
	"meld/internal/wire"
)

var (
	// ErrNotAddressed indicates a welcome carrying no secrets for our key
	// package.
	ErrNotAddressed = errors.New("welcome does not address this key package")
	// ErrWelcomeInvalid covers a welcome whose group info fails
	// verification.
	ErrWelcomeInvalid = errors.New("invalid welcome")
)

// FromWelcome joins a group from a welcome message, using the private half
// of the key package the committer claimed.
func FromWelcome(id domain.Identity, msg domain.MLSMessage, kpPriv domain.KeyPackagePrivate) (*Group, error) {
	if msg.WireFormat != domain.WireFormatWelcome || msg.Welcome == nil {
		return nil, fmt.Errorf("%w: not a welcome message", ErrWelcomeInvalid)
	}
	w := msg.Welcome
	if w.CipherSuite != domain.CipherSuiteX25519ChaCha {
		return nil, fmt.Errorf("%w: cipher suite %d", ErrWelcomeInvalid, w.CipherSuite)
	}

	var sealed *domain.EncryptedGroupSecrets
	for i := range w.Secrets {
		if w.Secrets[i].NewMember == kpPriv.Ref {
			sealed = &w.Secrets[i]
			break
		}
	}
	if sealed == nil {
		return nil, ErrNotAddressed
	}

	raw, err := crypto.HPKEOpen(kpPriv.InitPrivate, sealed.EncryptedSecrets, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("open group secrets: %w", err)
	}
	gs, err := wire.UnmarshalGroupSecrets(raw)
	if err != nil {
		return nil, err
	}

	welcomeSecret := keyschedule.WelcomeSecretFromJoiner(gs.JoinerSecret, nil)
	key, nonce := keyschedule.WelcomeKeyNonce(welcomeSecret)
	giRaw, err := crypto.OpenAEAD(key, nonce, nil, w.EncryptedGroupInfo)
	if err != nil {
		return nil, fmt.Errorf("open group info: %w", err)
	}
	gi, err := wire.UnmarshalGroupInfo(giRaw)
	if err != nil {
		return nil, err
	}
	if gi.Context.Version != domain.MLS10 || gi.Context.CipherSuite != domain.CipherSuiteX25519ChaCha {
		return nil, fmt.Errorf("%w: group parameters", ErrWelcomeInvalid)
	}

	tree, err := ratchettree.FromNodes(gi.Tree)
	if err != nil {
		return nil, err
	}
	if !bytes.Equal(tree.Hash(), gi.Context.TreeHash) {
		return nil, fmt.Errorf("%w: tree hash mismatch", ErrWelcomeInvalid)
	}

	signer := tree.Leaf(gi.Signer)
	if signer == nil {
		return nil, fmt.Errorf("%w: signer leaf %d is blank", ErrWelcomeInvalid, gi.Signer)
	}
	tbs := wire.GroupInfoTBS(gi)
	if !crypto.VerifyWithLabel(signer.Credential.SignatureKey, "GroupInfoTBS", tbs, gi.Signature) {
		return nil, fmt.Errorf("%w: bad group info signature", ErrWelcomeInvalid)
	}

	secrets := keyschedule.FromJoiner(gs.JoinerSecret, nil, wire.MarshalGroupContext(gi.Context))
	if !crypto.HMACEqual(gi.ConfirmationTag, secrets.ConfirmationTag(gi.Context.ConfirmedTranscriptHash)) {
		return nil, ErrBadConfirmationTag
	}

	ourLeaf, err := findOwnLeaf(tree, kpPriv.Ref)
	if err != nil {
		return nil, err
	}
	priv := ratchettree.NewPrivate(ourLeaf, kpPriv.InitPrivate)
	if gs.PathSecret != nil {
		lca := treemath.CommonAncestor(
			treemath.LeafNode(uint32(gi.Signer)),
			treemath.LeafNode(uint32(ourLeaf)),
			tree.LeafCount(),
		)
		if err := tree.MergePathSecret(priv, lca, gs.PathSecret); err != nil {
			return nil, err
		}
	}

	hashes := transcript.Hashes{Confirmed: gi.Context.ConfirmedTranscriptHash}
	hashes = hashes.AdvanceInterim(gi.ConfirmationTag)

	return &Group{
		Identity:   id,
		Context:    gi.Context,
		Tree:       tree,
		Priv:       priv,
		Secrets:    secrets,
		SecretTree: keyschedule.NewSecretTree(tree.LeafCount(), secrets.EncryptionSecret),
		Transcript: hashes,
		Proposals:  make(map[string]CachedProposal),
		PSKs:       make(map[string][]byte),
		Active:     true,
	}, nil
}

func findOwnLeaf(tree *ratchettree.Tree, ref domain.KeyPackageRef) (domain.LeafIndex, error) {
	for i := uint32(0); i < tree.LeafCount(); i++ {
		leaf := tree.Leaf(domain.LeafIndex(i))
		if leaf == nil {
			continue
		}
		if KeyPackageRef(*leaf) == ref {
			return domain.LeafIndex(i), nil
		}
	}
	return 0, fmt.Errorf("%w: our leaf is not in the tree", ErrWelcomeInvalid)
}

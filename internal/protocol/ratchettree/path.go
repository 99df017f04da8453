package ratchettree

import (
	"crypto/rand"
	"errors"
	"fmt"

	"meld/internal/crypto"
	"meld/internal/domain"
	"meld/internal/protocol/treemath"
	"meld/internal/util/memzero"
	"meld/internal/wire"
)

var (
	// ErrPathShape indicates an update path whose node count does not match
	// the sender's direct path.
	ErrPathShape = errors.New("update path does not match sender's direct path")
	// ErrPathSecret indicates a decrypted path secret that derives a key
	// disagreeing with the advertised node key.
	ErrPathSecret = errors.New("path secret does not match node public key")
	// ErrParentHash indicates a leaf key package whose parent hash does not
	// chain to the update path.
	ErrParentHash = errors.New("parent hash mismatch")
	// ErrNoDecryptionKey indicates none of our keys can open an update path.
	ErrNoDecryptionKey = errors.New("no key available to decrypt update path")
)

// PathResult is the committer's side of a fresh update path: the wire path,
// the private keys and path secrets it derived, and the commit secret.
type PathResult struct {
	Path         domain.UpdatePath
	Privs        map[treemath.NodeIndex]domain.X25519Private
	PathSecrets  map[treemath.NodeIndex][]byte
	CommitSecret []byte
}

// Merge folds the committer's derived keys into its private state.
func (r *PathResult) Merge(priv *Private) {
	for n, k := range r.Privs {
		priv.Keys[n] = k
	}
}

// CreateUpdatePath refreshes the sender's leaf and direct path on t, sealing
// each new path secret to the resolution of the matching copath node. The
// context bytes (the provisional group context) bind the encryptions to this
// group and epoch. signKeyPackage signs the refreshed leaf key package,
// which carries the parent hash of the new path.
func (t *Tree) CreateUpdatePath(
	sender domain.LeafIndex,
	ctx []byte,
	signKeyPackage func(domain.KeyPackage) (domain.KeyPackage, error),
) (*PathResult, error) {
	leafNode := treemath.LeafNode(uint32(sender))
	if uint32(leafNode) >= uint32(len(t.Nodes)) || t.Nodes[leafNode].Leaf == nil {
		return nil, ErrLeafOutOfRange
	}
	oldLeaf := t.Nodes[leafNode].Leaf

	leafSecret := make([]byte, crypto.SecretSize)
	if _, err := rand.Read(leafSecret); err != nil {
		return nil, err
	}
	defer memzero.Zero(leafSecret)

	leafPriv, leafPub, err := crypto.DeriveKeyPair(leafSecret)
	if err != nil {
		return nil, err
	}

	leaves := t.LeafCount()
	directPath := treemath.DirectPath(leafNode, leaves)
	copath := treemath.Copath(leafNode, leaves)

	result := &PathResult{
		Privs:       map[treemath.NodeIndex]domain.X25519Private{leafNode: leafPriv},
		PathSecrets: make(map[treemath.NodeIndex][]byte, len(directPath)),
	}

	// Walk the path secret chain upward, deriving one key pair per parent.
	pubs := make([]domain.HPKEPublicKey, len(directPath))
	ps := crypto.DeriveSecret(leafSecret, "path")
	for i, n := range directPath {
		priv, pub, err := crypto.DeriveKeyPair(ps)
		if err != nil {
			return nil, err
		}
		result.PathSecrets[n] = ps
		result.Privs[n] = priv
		pubs[i] = pub
		ps = crypto.DeriveSecret(ps, "path")
	}
	result.CommitSecret = ps

	// Seal each path secret to the members that need it, using the tree as
	// it stands before the path is applied.
	nodes := make([]domain.UpdatePathNode, len(directPath))
	for i, n := range directPath {
		nodes[i].PublicKey = pubs[i]
		for _, r := range t.Resolution(copath[i]) {
			pub, err := t.publicKeyAt(r)
			if err != nil {
				return nil, err
			}
			ct, err := crypto.HPKESeal(pub, ctx, nil, result.PathSecrets[n])
			if err != nil {
				return nil, err
			}
			nodes[i].EncryptedPathSecrets = append(nodes[i].EncryptedPathSecrets, ct)
		}
	}

	// Refresh the leaf key package with the new init key and parent hash.
	newLeaf := domain.KeyPackage{
		Version:     oldLeaf.Version,
		CipherSuite: oldLeaf.CipherSuite,
		InitKey:     leafPub,
		Credential:  oldLeaf.Credential,
		Extensions:  withParentHash(oldLeaf.Extensions, leafParentHash(pubs)),
	}
	signed, err := signKeyPackage(newLeaf)
	if err != nil {
		return nil, err
	}

	// Apply: new leaf, fresh parent nodes, no unmerged leaves.
	t.Nodes[leafNode].Leaf = &signed
	for i, n := range directPath {
		t.Nodes[n].Parent = &domain.ParentNode{PublicKey: pubs[i]}
	}

	result.Path = domain.UpdatePath{LeafKeyPackage: signed, Nodes: nodes}
	return result, nil
}

// ApplyUpdatePath processes another member's update path: verifies the
// parent hash chain, decrypts the path secret at the common ancestor,
// rederives the keys above it and mutates the tree. It returns the commit
// secret feeding the next key schedule.
func (t *Tree) ApplyUpdatePath(
	sender domain.LeafIndex,
	priv *Private,
	path domain.UpdatePath,
	ctx []byte,
) ([]byte, error) {
	leaves := t.LeafCount()
	senderNode := treemath.LeafNode(uint32(sender))
	if uint32(senderNode) >= uint32(len(t.Nodes)) {
		return nil, ErrLeafOutOfRange
	}
	directPath := treemath.DirectPath(senderNode, leaves)
	if len(path.Nodes) != len(directPath) {
		return nil, ErrPathShape
	}

	pubs := make([]domain.HPKEPublicKey, len(path.Nodes))
	for i, n := range path.Nodes {
		pubs[i] = n.PublicKey
	}
	if err := verifyLeafParentHash(path.LeafKeyPackage, pubs); err != nil {
		return nil, err
	}

	// Locate the lowest node of the sender's path that covers our leaf and
	// decrypt the path secret addressed to us there.
	ourNode := treemath.LeafNode(uint32(priv.Leaf))
	lca := treemath.CommonAncestor(senderNode, ourNode, leaves)
	k := -1
	for i, n := range directPath {
		if n == lca {
			k = i
			break
		}
	}
	if k < 0 {
		return nil, ErrPathShape
	}

	copath := treemath.Copath(senderNode, leaves)
	resolution := t.Resolution(copath[k])
	if len(resolution) != len(path.Nodes[k].EncryptedPathSecrets) {
		return nil, ErrPathShape
	}

	var pathSecret []byte
	for j, r := range resolution {
		key, ok := priv.Keys[r]
		if !ok {
			continue
		}
		pt, err := crypto.HPKEOpen(key, path.Nodes[k].EncryptedPathSecrets[j], ctx, nil)
		if err != nil {
			return nil, fmt.Errorf("open path secret: %w", err)
		}
		pathSecret = pt
		break
	}
	if pathSecret == nil {
		return nil, ErrNoDecryptionKey
	}

	// Rederive the chain above the common ancestor and cross-check each
	// derived public key against the advertised one.
	ps := pathSecret
	for i := k; i < len(directPath); i++ {
		nodePriv, nodePub, err := crypto.DeriveKeyPair(ps)
		if err != nil {
			return nil, err
		}
		if nodePub != pubs[i] {
			return nil, ErrPathSecret
		}
		priv.Keys[directPath[i]] = nodePriv
		ps = crypto.DeriveSecret(ps, "path")
	}
	commitSecret := ps

	// Apply: sender's new leaf, fresh parent nodes.
	t.Nodes[senderNode].Leaf = &path.LeafKeyPackage
	for i, n := range directPath {
		t.Nodes[n].Parent = &domain.ParentNode{PublicKey: pubs[i]}
	}
	return commitSecret, nil
}

// MergePathSecret installs the private keys a welcome's path secret yields:
// starting at the given node it derives one key pair per level up to the
// root, cross-checking each derived public key against the tree.
func (t *Tree) MergePathSecret(priv *Private, from treemath.NodeIndex, secret []byte) error {
	leaves := t.LeafCount()
	root := treemath.Root(leaves)
	ps := secret
	node := from
	for {
		nodePriv, nodePub, err := crypto.DeriveKeyPair(ps)
		if err != nil {
			return err
		}
		have, err := t.publicKeyAt(node)
		if err != nil {
			return err
		}
		if nodePub != have {
			return ErrPathSecret
		}
		priv.Keys[node] = nodePriv
		ps = crypto.DeriveSecret(ps, "path")
		if node == root {
			return nil
		}
		node = treemath.Parent(node, leaves)
	}
}

// leafParentHash chains parent hashes down the new path: the root hashes
// over an empty value, each node below hashes its parent's key and hash.
func leafParentHash(pubs []domain.HPKEPublicKey) []byte {
	var ph []byte
	for i := len(pubs) - 1; i >= 0; i-- {
		ph = crypto.Hash(wire.ParentHashInput(pubs[i], ph))
	}
	return ph
}

func withParentHash(exts []domain.Extension, ph []byte) []domain.Extension {
	out := make([]domain.Extension, 0, len(exts)+1)
	for _, e := range exts {
		if e.Type != domain.ExtensionParentHash {
			out = append(out, e)
		}
	}
	return append(out, domain.Extension{Type: domain.ExtensionParentHash, Data: ph})
}

func verifyLeafParentHash(kp domain.KeyPackage, pubs []domain.HPKEPublicKey) error {
	want := leafParentHash(pubs)
	for _, e := range kp.Extensions {
		if e.Type == domain.ExtensionParentHash {
			if len(e.Data) == len(want) && subtleEqual(e.Data, want) {
				return nil
			}
			return ErrParentHash
		}
	}
	if len(want) == 0 {
		return nil
	}
	return ErrParentHash
}

func subtleEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	var v byte
	for i := range a {
		v |= a[i] ^ b[i]
	}
	return v == 0
}

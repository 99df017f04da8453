package ratchettree

import (
	"bytes"
	"errors"
	"fmt"

	"meld/internal/crypto"
	"meld/internal/domain"
	"meld/internal/protocol/treemath"
	"meld/internal/wire"
)

var (
	// ErrLeafOutOfRange indicates a leaf index beyond the tree's width.
	ErrLeafOutOfRange = errors.New("leaf index out of range")
	// ErrLeafBlank indicates an operation on an empty leaf slot.
	ErrLeafBlank = errors.New("leaf is blank")
)

// Tree is the public ratchet tree in node order.
type Tree struct {
	Nodes []domain.RatchetTreeNode `json:"nodes"`
}

// Private holds the HPKE private keys a member knows: its own leaf key and
// any path node keys learned from commits, indexed by node index.
type Private struct {
	Leaf domain.LeafIndex                             `json:"leaf"`
	Keys map[treemath.NodeIndex]domain.X25519Private `json:"keys"`
}

// NewPrivate returns private state for a member at the given leaf holding
// only its leaf init key.
func NewPrivate(leaf domain.LeafIndex, initPriv domain.HPKEPrivateKey) *Private {
	return &Private{
		Leaf: leaf,
		Keys: map[treemath.NodeIndex]domain.X25519Private{
			treemath.LeafNode(uint32(leaf)): initPriv,
		},
	}
}

// New returns a single-leaf tree holding the creator's key package.
func New(leaf domain.KeyPackage) *Tree {
	return &Tree{Nodes: []domain.RatchetTreeNode{{Leaf: &leaf}}}
}

// FromNodes wraps an exported node slice, validating its shape.
func FromNodes(nodes []domain.RatchetTreeNode) (*Tree, error) {
	if len(nodes) == 0 || len(nodes)%2 == 0 {
		return nil, errors.New("ratchet tree must have odd node count")
	}
	return &Tree{Nodes: nodes}, nil
}

// LeafCount returns the tree width in leaves, including blank slots.
func (t *Tree) LeafCount() uint32 { return uint32(len(t.Nodes)+1) / 2 }

// Leaf returns the key package at a leaf, or nil when blank or out of range.
func (t *Tree) Leaf(i domain.LeafIndex) *domain.KeyPackage {
	n := treemath.LeafNode(uint32(i))
	if uint32(n) >= uint32(len(t.Nodes)) {
		return nil
	}
	return t.Nodes[n].Leaf
}

// NumMembers counts occupied leaves.
func (t *Tree) NumMembers() int {
	count := 0
	for i := 0; i < len(t.Nodes); i += 2 {
		if t.Nodes[i].Leaf != nil {
			count++
		}
	}
	return count
}

// Members lists the roster in leaf order.
func (t *Tree) Members() []domain.Member {
	var out []domain.Member
	for i := 0; i < len(t.Nodes); i += 2 {
		if kp := t.Nodes[i].Leaf; kp != nil {
			out = append(out, domain.Member{
				Index:    domain.LeafIndex(uint32(i) / 2),
				Identity: append([]byte(nil), kp.Credential.Identity...),
			})
		}
	}
	return out
}

// FindIdentity returns the leaf holding the given credential identity.
func (t *Tree) FindIdentity(identity []byte) (domain.LeafIndex, bool) {
	for i := 0; i < len(t.Nodes); i += 2 {
		if kp := t.Nodes[i].Leaf; kp != nil && bytes.Equal(kp.Credential.Identity, identity) {
			return domain.LeafIndex(uint32(i) / 2), true
		}
	}
	return 0, false
}

// FindSignatureKey returns the leaf holding the given signature key.
func (t *Tree) FindSignatureKey(key domain.Ed25519Public) (domain.LeafIndex, bool) {
	for i := 0; i < len(t.Nodes); i += 2 {
		if kp := t.Nodes[i].Leaf; kp != nil && kp.Credential.SignatureKey == key {
			return domain.LeafIndex(uint32(i) / 2), true
		}
	}
	return 0, false
}

// Clone returns a deep copy. Commits are staged on a clone so a failed or
// discarded commit never corrupts live state.
func (t *Tree) Clone() *Tree {
	nodes := make([]domain.RatchetTreeNode, len(t.Nodes))
	for i, n := range t.Nodes {
		if n.Leaf != nil {
			kp := *n.Leaf
			kp.Extensions = append([]domain.Extension(nil), n.Leaf.Extensions...)
			nodes[i].Leaf = &kp
		}
		if n.Parent != nil {
			p := *n.Parent
			p.UnmergedLeaves = append([]domain.LeafIndex(nil), n.Parent.UnmergedLeaves...)
			nodes[i].Parent = &p
		}
	}
	return &Tree{Nodes: nodes}
}

// Clone deep-copies private state.
func (p *Private) Clone() *Private {
	keys := make(map[treemath.NodeIndex]domain.X25519Private, len(p.Keys))
	for k, v := range p.Keys {
		keys[k] = v
	}
	return &Private{Leaf: p.Leaf, Keys: keys}
}

// AddLeaf places a new member at the first blank leaf, extending the tree if
// none is free, and registers it as unmerged on every non-blank ancestor.
func (t *Tree) AddLeaf(kp domain.KeyPackage) domain.LeafIndex {
	target := -1
	for i := 0; i < len(t.Nodes); i += 2 {
		if t.Nodes[i].Leaf == nil {
			target = i
			break
		}
	}
	if target < 0 {
		// Extend by one parent slot and one leaf slot.
		t.Nodes = append(t.Nodes, domain.RatchetTreeNode{}, domain.RatchetTreeNode{})
		target = len(t.Nodes) - 1
	}
	t.Nodes[target].Leaf = &kp

	leaf := domain.LeafIndex(uint32(target) / 2)
	for _, n := range treemath.DirectPath(treemath.NodeIndex(target), t.LeafCount()) {
		if parent := t.Nodes[n].Parent; parent != nil {
			parent.UnmergedLeaves = append(parent.UnmergedLeaves, leaf)
		}
	}
	return leaf
}

// UpdateLeaf replaces a leaf's key package and blanks its direct path, since
// the old path keys are no longer known above the fresh leaf.
func (t *Tree) UpdateLeaf(i domain.LeafIndex, kp domain.KeyPackage) error {
	n := treemath.LeafNode(uint32(i))
	if uint32(n) >= uint32(len(t.Nodes)) {
		return ErrLeafOutOfRange
	}
	if t.Nodes[n].Leaf == nil {
		return ErrLeafBlank
	}
	t.Nodes[n].Leaf = &kp
	t.blankPath(n)
	return nil
}

// BlankLeaf evicts a member: the leaf and its direct path become blank.
func (t *Tree) BlankLeaf(i domain.LeafIndex) error {
	n := treemath.LeafNode(uint32(i))
	if uint32(n) >= uint32(len(t.Nodes)) {
		return ErrLeafOutOfRange
	}
	if t.Nodes[n].Leaf == nil {
		return ErrLeafBlank
	}
	t.Nodes[n].Leaf = nil
	t.blankPath(n)
	return nil
}

func (t *Tree) blankPath(x treemath.NodeIndex) {
	for _, n := range treemath.DirectPath(x, t.LeafCount()) {
		t.Nodes[n].Parent = nil
	}
}

// Resolution returns the smallest set of non-blank nodes covering all
// members under x.
func (t *Tree) Resolution(x treemath.NodeIndex) []treemath.NodeIndex {
	node := t.Nodes[x]
	if treemath.IsLeaf(x) {
		if node.Leaf == nil {
			return nil
		}
		return []treemath.NodeIndex{x}
	}
	if node.Parent == nil {
		left := t.Resolution(treemath.Left(x))
		right := t.Resolution(treemath.Right(x, t.LeafCount()))
		return append(left, right...)
	}
	out := []treemath.NodeIndex{x}
	for _, l := range node.Parent.UnmergedLeaves {
		out = append(out, treemath.LeafNode(uint32(l)))
	}
	return out
}

// publicKeyAt returns the HPKE key of a resolution node.
func (t *Tree) publicKeyAt(x treemath.NodeIndex) (domain.HPKEPublicKey, error) {
	node := t.Nodes[x]
	if treemath.IsLeaf(x) {
		if node.Leaf == nil {
			return domain.HPKEPublicKey{}, fmt.Errorf("node %d: %w", x, ErrLeafBlank)
		}
		return node.Leaf.InitKey, nil
	}
	if node.Parent == nil {
		return domain.HPKEPublicKey{}, fmt.Errorf("node %d is blank", x)
	}
	return node.Parent.PublicKey, nil
}

// Hash computes the tree hash, the recursive digest bound into the group
// context.
func (t *Tree) Hash() []byte {
	return t.nodeHash(treemath.Root(t.LeafCount()))
}

func (t *Tree) nodeHash(x treemath.NodeIndex) []byte {
	if treemath.IsLeaf(x) {
		return crypto.Hash(wire.LeafNodeHashInput(uint32(x), t.Nodes[x].Leaf))
	}
	left := t.nodeHash(treemath.Left(x))
	right := t.nodeHash(treemath.Right(x, t.LeafCount()))
	return crypto.Hash(wire.ParentNodeHashInput(uint32(x), t.Nodes[x].Parent, left, right))
}

package treemath

// NodeIndex addresses a node in the array representation of the tree:
// leaves at even indices, parents at odd indices.
type NodeIndex uint32

// NodeWidth returns the number of node slots for a tree with the given leaf
// count.
func NodeWidth(leaves uint32) uint32 {
	if leaves == 0 {
		return 0
	}
	return 2*leaves - 1
}

// LeafNode converts a leaf index to its node index.
func LeafNode(leaf uint32) NodeIndex { return NodeIndex(2 * leaf) }

// LeafIndex converts a leaf's node index back to its leaf index.
func LeafIndex(x NodeIndex) uint32 { return uint32(x) / 2 }

// IsLeaf reports whether x addresses a leaf slot.
func IsLeaf(x NodeIndex) bool { return x%2 == 0 }

// Level is a node's height above the leaves: the number of trailing one bits
// of its index.
func Level(x NodeIndex) uint32 {
	if x&1 == 0 {
		return 0
	}
	var k uint32
	for (uint32(x)>>k)&1 == 1 {
		k++
	}
	return k
}

func log2(x uint32) uint32 {
	if x == 0 {
		return 0
	}
	var k uint32
	for (x >> k) > 0 {
		k++
	}
	return k - 1
}

// Root returns the root node index for the given leaf count.
func Root(leaves uint32) NodeIndex {
	w := NodeWidth(leaves)
	return NodeIndex((1 << log2(w)) - 1)
}

// Left returns the left child of an internal node.
func Left(x NodeIndex) NodeIndex {
	k := Level(x)
	return x ^ (1 << (k - 1))
}

// Right returns the right child of an internal node in a tree with the given
// leaf count, descending left past any out-of-range slots.
func Right(x NodeIndex, leaves uint32) NodeIndex {
	k := Level(x)
	r := x ^ (3 << (k - 1))
	for uint32(r) >= NodeWidth(leaves) {
		r = Left(r)
	}
	return r
}

func parentStep(x NodeIndex) NodeIndex {
	k := Level(x)
	b := (uint32(x) >> (k + 1)) & 1
	return NodeIndex((uint32(x) | (1 << k)) ^ (b << (k + 1)))
}

// Parent returns the parent of x in a tree with the given leaf count. The
// root is its own parent.
func Parent(x NodeIndex, leaves uint32) NodeIndex {
	if x == Root(leaves) {
		return x
	}
	p := parentStep(x)
	for uint32(p) >= NodeWidth(leaves) {
		p = parentStep(p)
	}
	return p
}

// Sibling returns the other child of x's parent.
func Sibling(x NodeIndex, leaves uint32) NodeIndex {
	p := Parent(x, leaves)
	if x < p {
		return Right(p, leaves)
	}
	return Left(p)
}

// DirectPath lists x's ancestors from its parent up to and including the
// root. The path is empty when x is the root.
func DirectPath(x NodeIndex, leaves uint32) []NodeIndex {
	root := Root(leaves)
	var path []NodeIndex
	for x != root {
		x = Parent(x, leaves)
		path = append(path, x)
	}
	return path
}

// Copath lists the siblings along x's direct path, bottom to top.
func Copath(x NodeIndex, leaves uint32) []NodeIndex {
	var path []NodeIndex
	root := Root(leaves)
	for x != root {
		path = append(path, Sibling(x, leaves))
		x = Parent(x, leaves)
	}
	return path
}

// CommonAncestor returns the lowest node that is an ancestor of both x and y.
func CommonAncestor(x, y NodeIndex, leaves uint32) NodeIndex {
	// Walk both up by level until the indices meet.
	for x != y {
		if Level(x) < Level(y) {
			x = Parent(x, leaves)
		} else {
			y = Parent(y, leaves)
		}
	}
	return x
}

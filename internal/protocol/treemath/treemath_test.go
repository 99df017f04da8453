package treemath_test

import (
	"testing"

	"meld/internal/protocol/treemath"
)

func TestRootAndWidth(t *testing.T) {
	cases := []struct {
		leaves uint32
		width  uint32
		root   treemath.NodeIndex
	}{
		{1, 1, 0},
		{2, 3, 1},
		{3, 5, 3},
		{4, 7, 3},
		{5, 9, 7},
		{8, 15, 7},
		{9, 17, 15},
	}
	for _, c := range cases {
		if got := treemath.NodeWidth(c.leaves); got != c.width {
			t.Errorf("NodeWidth(%d) = %d, want %d", c.leaves, got, c.width)
		}
		if got := treemath.Root(c.leaves); got != c.root {
			t.Errorf("Root(%d) = %d, want %d", c.leaves, got, c.root)
		}
	}
}

func TestParentChildren(t *testing.T) {
	// Five-leaf tree, nodes 0..8, root 7.
	const leaves = 5
	parents := map[treemath.NodeIndex]treemath.NodeIndex{
		0: 1, 2: 1, 1: 3, 4: 5, 6: 5, 5: 3, 3: 7, 8: 7,
	}
	for x, want := range parents {
		if got := treemath.Parent(x, leaves); got != want {
			t.Errorf("Parent(%d) = %d, want %d", x, got, want)
		}
	}
	if got := treemath.Left(7); got != 3 {
		t.Errorf("Left(7) = %d, want 3", got)
	}
	if got := treemath.Right(7, leaves); got != 8 {
		t.Errorf("Right(7) = %d, want 8", got)
	}
	if got := treemath.Right(3, leaves); got != 5 {
		t.Errorf("Right(3) = %d, want 5", got)
	}
}

func TestPaths(t *testing.T) {
	const leaves = 5
	dp := treemath.DirectPath(0, leaves)
	wantDP := []treemath.NodeIndex{1, 3, 7}
	if len(dp) != len(wantDP) {
		t.Fatalf("DirectPath(0) = %v, want %v", dp, wantDP)
	}
	for i := range dp {
		if dp[i] != wantDP[i] {
			t.Fatalf("DirectPath(0) = %v, want %v", dp, wantDP)
		}
	}

	cp := treemath.Copath(0, leaves)
	wantCP := []treemath.NodeIndex{2, 5, 8}
	if len(cp) != len(wantCP) {
		t.Fatalf("Copath(0) = %v, want %v", cp, wantCP)
	}
	for i := range cp {
		if cp[i] != wantCP[i] {
			t.Fatalf("Copath(0) = %v, want %v", cp, wantCP)
		}
	}

	if got := treemath.DirectPath(treemath.Root(leaves), leaves); len(got) != 0 {
		t.Errorf("DirectPath(root) = %v, want empty", got)
	}
}

func TestCommonAncestor(t *testing.T) {
	const leaves = 5
	cases := []struct{ x, y, want treemath.NodeIndex }{
		{0, 2, 1},
		{0, 8, 7},
		{4, 6, 5},
		{0, 6, 3},
		{2, 2, 2},
	}
	for _, c := range cases {
		if got := treemath.CommonAncestor(c.x, c.y, leaves); got != c.want {
			t.Errorf("CommonAncestor(%d, %d) = %d, want %d", c.x, c.y, got, c.want)
		}
	}
}

func TestLevel(t *testing.T) {
	levels := map[treemath.NodeIndex]uint32{0: 0, 2: 0, 1: 1, 5: 1, 3: 2, 7: 3}
	for x, want := range levels {
		if got := treemath.Level(x); got != want {
			t.Errorf("Level(%d) = %d, want %d", x, got, want)
		}
	}
}

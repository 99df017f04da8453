// Package treemath provides index arithmetic for the left-balanced binary
// tree underlying the ratchet tree: node and leaf indexing, parent, sibling,
// direct path, copath and common ancestor.
//
// Nodes are addressed in the array representation, leaves at even indices
// and parents at odd indices. All functions are pure; the tree's width is
// passed in as a leaf count.
package treemath

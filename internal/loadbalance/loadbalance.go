// Package loadbalance defines the read-only contract the gravity tree
// consumes to learn how particles are partitioned across ranks by an
// externally built space-filling-curve domain decomposition, plus a
// minimal in-memory reference implementation for tests.
//
// The gravity tree never mutates a Tree and never rebuilds it; the
// partition is someone else's concern (ghost-particle construction and
// the outer time integrator, in the caller's terms).
package loadbalance

// NotExist marks an absent child slot, matching the gravity tree's own
// sentinel.
const NotExist int32 = -1

// Leaf is the result of a key lookup: ArrayIndex indexes the flat
// leaf-owner array and the gravity tree's Remote-Node Table.
type Leaf struct {
	ArrayIndex int
}

// Tree is the load-balance tree contract: a Hilbert/Morton-ordered
// partition tree whose leaves are the units of the SFC domain
// decomposition, one per contiguous key range.
type Tree interface {
	// Dim reports the spatial dimensionality (2 or 3), matching the
	// gravity tree it will be attached to.
	Dim() int
	// NumNodes and NumLeaves report total node and leaf counts.
	NumNodes() int
	NumLeaves() int
	// Root returns the root node index.
	Root() int
	// IsLeaf reports whether node is a leaf.
	IsLeaf(node int) bool
	// Center and Width report node's geometric extent, using the
	// same half-open-cube convention as the gravity tree.
	Center(node int) [3]float64
	Width(node int) float64
	// ChildrenStart returns the node index of the first of this
	// node's 2^Dim() children, stored contiguously in Hilbert order;
	// NotExist if node is a leaf.
	ChildrenStart(node int) int32
	// ZOrderToHilbert returns, for a non-leaf node, the permutation
	// mapping a Z-order child index (0..2^Dim()) to its position
	// among the node's Hilbert-ordered children.
	ZOrderToHilbert(node int) [8]int
	// LeafArrayIndex returns node's index into the flat leaf arrays
	// (LeafOwner, and the array a caller's find_leaf result indexes).
	// Valid only when IsLeaf(node).
	LeafArrayIndex(node int) int
	// LeafOwner returns the owning rank of the leaf at arrayIndex.
	LeafOwner(arrayIndex int) int
	// FindLeaf resolves an SFC key to the leaf whose contiguous key
	// range contains it.
	FindLeaf(key uint64) Leaf
}

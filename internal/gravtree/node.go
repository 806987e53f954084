// Package gravtree implements a distributed Barnes-Hut gravity solver:
// an oct-tree (dim=3) or quad-tree (dim=2) multipole approximation built
// over particles partitioned across ranks by an externally supplied
// space-filling-curve domain decomposition.
package gravtree

// maxDim is the largest supported dimensionality; Node carries a
// children array sized for it so one concrete type serves both the
// oct-tree and the quad-tree case, with only the first 1<<dim slots
// ever consulted.
const maxDim = 3

// maxChildren is 2^maxDim, the upper bound on children per node.
const maxChildren = 1 << maxDim

// NotExist marks an empty child slot and an absent first_child.
const NotExist int32 = -1

// RootSibling is the sentinel next_sibling of the root, and the value
// a threaded walk terminates on.
const RootSibling int32 = -1

// Flags is a bitset tagging a Node's role and lifecycle stage.
type Flags uint16

const (
	// Leaf marks a node with no children.
	Leaf Flags = 1 << iota
	// HasParticle marks a LEAF that holds a resident particle.
	HasParticle
	// TopTree marks a node copied from the load-balance tree; such
	// nodes are identical in {center, width, flags&TopTree*} on
	// every rank.
	TopTree
	// TopTreeLeaf marks a TopTree node that is a load-balance leaf
	// (the unit of the SFC partition).
	TopTreeLeaf
	// TopTreeLeafRemote marks a TopTreeLeaf whose owning rank is not
	// the local rank.
	TopTreeLeafRemote
	// SkipBranch marks a TopTreeLeafRemote leaf, or a non-leaf all of
	// whose descendant leaves are TopTreeLeafRemote: it carries no
	// locally owned mass.
	SkipBranch
	// momentsValid discriminates the node's payload: unset means
	// children[] holds build-time child indices; set means
	// {mass, com, firstChild, nextSibling} is the valid payload.
	// This is the single bit update_moments flips, and the only
	// thing that may ever be consulted to decide which half of the
	// payload is live.
	momentsValid
)

// Node is a fixed-size tree record with two non-overlapping lifecycles
// distinguished by the momentsValid bit in Flags, rather than by
// reinterpreting shared bytes: children is only ever read or written
// before update_moments runs (the build phase), and mass/com/
// firstChild/nextSibling are only ever read or written from
// update_moments onward (the moment phase). Keeping both sets of
// fields on one struct (instead of a pointer-tagged union) keeps the
// pool a flat slice, so indices -- never pointers -- are what survive
// reallocation.
type Node struct {
	Flags  Flags
	Width  float64
	Center [maxDim]float64

	// Build-phase payload.
	Children [maxChildren]int32
	PID      int32 // resident particle index, valid iff Leaf|HasParticle

	// Moment-phase payload, valid iff momentsValid is set.
	Mass       float64
	COM        [maxDim]float64
	FirstChild int32
	NextSibling int32

	// RemoteRow is the Remote-Node Table row index for a TopTreeLeaf
	// node, set exactly once at top-tree copy time. It is not
	// consulted for any node that is not a TopTreeLeaf.
	RemoteRow int32
}

func (n *Node) isLeaf() bool { return n.Flags&Leaf != 0 }

// childIndex returns the Z-order octant/quadrant of position x
// relative to n's center: bit k of the result is 1 iff x[k] > center[k].
func childIndex(center [maxDim]float64, x []float64, dim int) int {
	idx := 0

	for k := 0; k < dim; k++ {
		if x[k] > center[k] {
			idx |= 1 << uint(k)
		}
	}

	return idx
}

// childCenter returns the center of child idx of a node with the given
// center and width, halving width along each axis toward the side idx
// selects.
func childCenter(center [maxDim]float64, width float64, idx, dim int) [maxDim]float64 {
	half := width / 4

	var c [maxDim]float64

	c = center

	for k := 0; k < dim; k++ {
		if idx&(1<<uint(k)) != 0 {
			c[k] += half
		} else {
			c[k] -= half
		}
	}

	return c
}

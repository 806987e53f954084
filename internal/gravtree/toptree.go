package gravtree

import (
	"sort"

	"github.com/gravtree/gravtree/internal/gtreeerr"
	"github.com/gravtree/gravtree/internal/loadbalance"
)

// topLeafEntry is a Remote-Node Table row collected during top-tree
// copy, before the final sort by (owning_rank, SFC-key) that the
// table's contiguous per-rank blocks require.
type topLeafEntry struct {
	poolIdx    int32
	arrayIndex int
	owner      int
}

// replicateTopTree copies the attached load-balance tree's structure
// into the pool starting at the already-acquired root, reordering each
// node's children from the load-balance tree's Hilbert order into the
// gravity tree's Z-order. It must run before any particle is inserted,
// so every rank starts from a byte-identical top tree.
//
// Top-tree leaves are visited in Z-order during the copy, not SFC
// order, so the Remote-Node Table is assembled in two passes: collect
// entries as they're found, then sort them into (owning_rank,
// SFC-key) order so send_counts/send_displacements form contiguous
// per-rank blocks for the moment all-gather.
func (t *Tree) replicateTopTree() error {
	var entries []topLeafEntry

	if err := t.copyTopTreeNode(int(t.root), t.lb.Root(), &entries); err != nil {
		return err
	}

	sort.Slice(entries, func(i, j int) bool {
		if entries[i].owner != entries[j].owner {
			return entries[i].owner < entries[j].owner
		}

		return entries[i].arrayIndex < entries[j].arrayIndex
	})

	t.remote = make([]remoteRow, len(entries))
	t.leafRowByArrayIndex = make(map[int]int32, len(entries))

	for i, e := range entries {
		t.remote[i] = remoteRow{mapIndex: e.poolIdx, proc: e.owner}
		t.leafRowByArrayIndex[e.arrayIndex] = int32(i)

		n := t.at(e.poolIdx)
		n.RemoteRow = int32(i)
	}

	return nil
}

// copyTopTreeNode copies load-balance node lbNode into pool slot
// poolIdx (already acquired by the caller) and, if lbNode is not a
// leaf, acquires and recursively fills its children.
func (t *Tree) copyTopTreeNode(poolIdx int, lbNode int, entries *[]topLeafEntry) error {
	dim := t.cfg.Dim

	n := t.at(int32(poolIdx))
	*n = Node{}
	n.Width = t.lb.Width(lbNode)

	center := t.lb.Center(lbNode)
	copy(n.Center[:dim], center[:dim])

	n.Flags = TopTree

	for k := range n.Children {
		n.Children[k] = NotExist
	}

	if t.lb.IsLeaf(lbNode) {
		n.Flags |= Leaf | TopTreeLeaf

		arrayIdx := t.lb.LeafArrayIndex(lbNode)
		owner := t.lb.LeafOwner(arrayIdx)

		if owner != t.rank {
			n.Flags |= TopTreeLeafRemote | SkipBranch
		}

		*entries = append(*entries, topLeafEntry{poolIdx: int32(poolIdx), arrayIndex: arrayIdx, owner: owner})

		return nil
	}

	hilbertStart := t.lb.ChildrenStart(lbNode)
	if hilbertStart == loadbalance.NotExist {
		return gtreeerr.Protocol("load-balance node %d is not a leaf but reports no children", lbNode)
	}

	perm := t.lb.ZOrderToHilbert(lbNode)
	branch := 1 << dim

	childPool := make([]int32, branch)

	for z := 0; z < branch; z++ {
		idx, err := t.pool.Acquire(1)
		if err != nil {
			return err
		}

		childPool[z] = int32(idx)
	}

	n = t.at(int32(poolIdx))
	for z := 0; z < branch; z++ {
		n.Children[z] = childPool[z]
	}

	for z := 0; z < branch; z++ {
		lbChild := int(hilbertStart) + perm[z]

		if err := t.copyTopTreeNode(int(childPool[z]), lbChild, entries); err != nil {
			return err
		}
	}

	return nil
}

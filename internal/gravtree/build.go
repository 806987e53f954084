package gravtree

import "github.com/gravtree/gravtree/internal/gtreeerr"

// maxInsertDepth bounds consecutive sibling-collision splits during one
// particle's insertion: two distinct Real particles at byte-identical
// coordinates can never be separated by further subdivision, so a
// bounded loop is the only way to detect and report that case.
const maxInsertDepth = 64

// buildRoot resets the pool to a single LEAF root spanning the
// configured domain.
func (t *Tree) buildRoot() (int, error) {
	idx, err := t.pool.Acquire(1)
	if err != nil {
		return 0, err
	}

	root := t.at(int32(idx))
	*root = Node{}
	root.Flags = Leaf
	root.Width = domainWidth(t.cfg)
	root.Center = domainCenter(t.cfg)

	for k := range root.Children {
		root.Children[k] = NotExist
	}

	return idx, nil
}

func domainWidth(cfg Config) float64 {
	w := 0.0

	for k := 0; k < cfg.Dim; k++ {
		if e := cfg.DomainMax[k] - cfg.DomainMin[k]; e > w {
			w = e
		}
	}

	return w
}

func domainCenter(cfg Config) [maxDim]float64 {
	var c [maxDim]float64

	for k := 0; k < cfg.Dim; k++ {
		c[k] = (cfg.DomainMin[k] + cfg.DomainMax[k]) / 2
	}

	return c
}

// insertAll inserts every Real particle of pc, starting from ROOT in
// serial mode or from the owning top-tree leaf in parallel mode.
func (t *Tree) insertAll(pc ParticleContainer) error {
	for i := 0; i < pc.Len(); i++ {
		if pc.TagAt(i) == Ghost {
			continue
		}

		start := t.root

		if t.cfg.Parallel {
			leafIdx, err := t.topLeafFor(pc.Key(i))
			if err != nil {
				return err
			}

			start = leafIdx
		}

		if err := t.insertOne(pc, i, start); err != nil {
			return err
		}
	}

	return nil
}

// acquireLeaf creates a new LEAF child of a node with the given center
// and width, in octant idx.
func (t *Tree) acquireLeaf(parentCenter [maxDim]float64, parentWidth float64, idx, dim int) (int32, error) {
	childIdx, err := t.pool.Acquire(1)
	if err != nil {
		return 0, err
	}

	leaf := t.at(int32(childIdx))
	*leaf = Node{}
	leaf.Flags = Leaf
	leaf.Width = parentWidth / 2
	leaf.Center = childCenter(parentCenter, parentWidth, idx, dim)

	for k := range leaf.Children {
		leaf.Children[k] = NotExist
	}

	return int32(childIdx), nil
}

// insertOne walks down from start and places particle i, non-
// recursively, per the build algorithm: descend existing children,
// occupy an empty LEAF, or split a resident LEAF and re-descend.
func (t *Tree) insertOne(pc ParticleContainer, i int, start int32) error {
	dim := t.cfg.Dim
	xi := pc.Position(i)
	current := start
	depth := 0

	for {
		n := t.at(current)

		if n.Flags&Leaf == 0 {
			idx := childIndex(n.Center, xi, dim)

			if n.Children[idx] == NotExist {
				childIdx, err := t.acquireLeaf(n.Center, n.Width, idx, dim)
				if err != nil {
					return err
				}

				n = t.at(current)
				n.Children[idx] = childIdx

				leaf := t.at(childIdx)
				leaf.PID = int32(i)
				leaf.Flags |= HasParticle

				return nil
			}

			current = n.Children[idx]

			continue
		}

		if n.Flags&HasParticle == 0 {
			n.PID = int32(i)
			n.Flags |= HasParticle

			return nil
		}

		// n is a LEAF with resident particle j: split it and
		// re-descend so the loop places both i and j.
		j := int(n.PID)

		if depth >= maxInsertDepth {
			return gtreeerr.Degenerate(i, j, depth)
		}

		xj := pc.Position(j)

		n.Flags &^= Leaf | HasParticle

		for k := range n.Children {
			n.Children[k] = NotExist
		}

		idxJ := childIndex(n.Center, xj, dim)

		childIdx, err := t.acquireLeaf(n.Center, n.Width, idxJ, dim)
		if err != nil {
			return err
		}

		n = t.at(current)
		n.Children[idxJ] = childIdx

		leafJ := t.at(childIdx)
		leafJ.PID = int32(j)
		leafJ.Flags |= HasParticle

		depth++
	}
}

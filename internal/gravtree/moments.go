package gravtree

// updateMoments is the single recursive post-order pass that turns a
// freshly built tree (still carrying build-time Children[]) into a
// threaded pre-order (Mass/COM/FirstChild/NextSibling). sibling is the
// next_sibling value the caller provides for this node; children of a
// non-leaf inherit it for their own last populated slot.
func (t *Tree) updateMoments(pc ParticleContainer, nodeIdx int32, sibling int32) {
	dim := t.cfg.Dim
	n := t.at(nodeIdx)

	if n.Flags&Leaf != 0 {
		n.FirstChild = NotExist
		n.NextSibling = sibling

		if n.Flags&HasParticle != 0 {
			pid := int(n.PID)
			n.Mass = pc.Mass(pid)

			pos := pc.Position(pid)
			for k := 0; k < dim; k++ {
				n.COM[k] = pos[k]
			}
		} else {
			n.Mass = 0
			n.COM = [maxDim]float64{}
		}

		n.Flags |= momentsValid

		return
	}

	var populated []int32

	for idx := 0; idx < (1 << dim); idx++ {
		if c := n.Children[idx]; c != NotExist {
			populated = append(populated, c)
		}
	}

	for i, childIdx := range populated {
		childSibling := sibling
		if i+1 < len(populated) {
			childSibling = populated[i+1]
		}

		t.updateMoments(pc, childIdx, childSibling)
	}

	var (
		mass    float64
		com     [maxDim]float64
		allSkip = len(populated) > 0
	)

	for _, childIdx := range populated {
		c := t.at(childIdx)

		mass += c.Mass

		for k := 0; k < dim; k++ {
			com[k] += c.Mass * c.COM[k]
		}

		if c.Flags&SkipBranch == 0 {
			allSkip = false
		}
	}

	if mass > 0 {
		for k := 0; k < dim; k++ {
			com[k] /= mass
		}
	} else {
		com = [maxDim]float64{}
	}

	// n may be stale if recursion acquired pool capacity; it never
	// does during the moment pass (all insertion is complete), so
	// re-fetching here is a defensive no-op, not a correctness fix.
	n = t.at(nodeIdx)
	n.Mass = mass
	n.COM = com
	n.NextSibling = sibling

	if len(populated) > 0 {
		n.FirstChild = populated[0]
	} else {
		n.FirstChild = NotExist
	}

	if allSkip {
		n.Flags |= SkipBranch
	} else {
		n.Flags &^= SkipBranch
	}

	n.Flags |= momentsValid
}

// updateRemoteMoments refreshes mass/com for every node above a top-
// tree leaf after the remote-moment exchange has overwritten each
// leaf's own values: it walks the already-built first_child/
// next_sibling thread rather than Children[] (which is no longer
// live), and leaves any TOP_TREE_LEAF node's value untouched -- it is
// authoritative, whether it was just received from a remote rank or
// was already correct because every particle under it lives here.
func (t *Tree) updateRemoteMoments(nodeIdx int32) {
	n := t.at(nodeIdx)

	if n.Flags&TopTreeLeaf != 0 {
		return
	}

	if n.FirstChild == NotExist {
		return
	}

	dim := t.cfg.Dim

	var (
		mass    float64
		com     [maxDim]float64
		allSkip = true
	)

	child := n.FirstChild

	for {
		t.updateRemoteMoments(child)

		c := t.at(child)

		mass += c.Mass

		for k := 0; k < dim; k++ {
			com[k] += c.Mass * c.COM[k]
		}

		if c.Flags&SkipBranch == 0 {
			allSkip = false
		}

		if c.NextSibling == n.NextSibling {
			break
		}

		child = c.NextSibling
	}

	if mass > 0 {
		for k := 0; k < dim; k++ {
			com[k] /= mass
		}
	} else {
		com = [maxDim]float64{}
	}

	n = t.at(nodeIdx)
	n.Mass = mass
	n.COM = com

	if allSkip {
		n.Flags |= SkipBranch
	} else {
		n.Flags &^= SkipBranch
	}
}

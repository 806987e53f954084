package gravtree

import "math"

// SoftenedGravity is an optional Plummer-softened variant of
// MonopoleGravity for callers that need collisional stability instead
// of the plain 1/r^2 kernel: a_k += m*dr_k / (r^2 + eps^2)^1.5. Since
// the denominator can never reach zero, this variant does not need the
// unsoftened kernel's r2==0 guard, but the LEAF self-interaction skip
// still applies so a particle never interacts with itself.
type SoftenedGravity struct {
	dim     int
	epsilon float64

	pc      ParticleContainer
	n       int
	cursor  int
	current int
}

// NewSoftenedGravity creates a softened interaction with the given
// Plummer softening length epsilon (must be > 0).
func NewSoftenedGravity(dim int, epsilon float64) *SoftenedGravity {
	return &SoftenedGravity{dim: dim, epsilon: epsilon}
}

func (g *SoftenedGravity) Bind(pc ParticleContainer) {
	g.pc = pc
	g.n = pc.Len()
	g.cursor = 0
	g.current = -1
}

func (g *SoftenedGravity) Advance() bool {
	for g.cursor < g.n {
		i := g.cursor
		g.cursor++

		if g.pc.TagAt(i) == Ghost {
			continue
		}

		g.current = i
		g.pc.ZeroAcceleration(i)

		return true
	}

	g.current = -1

	return false
}

func (g *SoftenedGravity) Current() int { return g.current }
func (g *SoftenedGravity) Done() bool   { return g.cursor >= g.n }

func (g *SoftenedGravity) Interact(n *Node) {
	i := g.current
	x := g.pc.Position(i)

	if n.Flags&Leaf != 0 && withinCell(n, x, g.dim) {
		return
	}

	var dr [maxDim]float64

	var r2 float64

	for k := 0; k < g.dim; k++ {
		dr[k] = n.COM[k] - x[k]
		r2 += dr[k] * dr[k]
	}

	soft := r2 + g.epsilon*g.epsilon
	invR3 := 1 / (soft * math.Sqrt(soft))

	a := make([]float64, g.dim)
	for k := 0; k < g.dim; k++ {
		a[k] = n.Mass * dr[k] * invR3
	}

	g.pc.AddAcceleration(i, a)
}

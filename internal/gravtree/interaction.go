package gravtree

import "math"

// Interaction is the polymorphic per-particle accumulator the walker
// drives: it initializes scratch state from a particle container,
// advances over non-ghost particles one at a time, and consumes nodes
// the splitter has decided to accept as monopoles.
type Interaction interface {
	// Bind snapshots output acceleration/position/mass/tag columns
	// and the particle count.
	Bind(pc ParticleContainer)
	// Advance moves to the next non-ghost particle, zeroing its
	// accumulator, and reports whether one was found.
	Advance() bool
	// Current returns the particle index Advance last selected.
	Current() int
	// Interact accumulates node's contribution onto the current
	// particle.
	Interact(n *Node)
	// Done reports whether every particle has been advanced past.
	Done() bool
}

// MonopoleGravity is the plain Newtonian 1/r^2 kernel: no softening,
// so it relies on the tree invariant that two distinct Real particles
// never share a LEAF (an r=0 separation between distinct particles is
// therefore impossible).
type MonopoleGravity struct {
	dim int
	pc  ParticleContainer

	n       int
	cursor  int
	current int
}

// NewMonopoleGravity creates an unsoftened gravity interaction for the
// given dimensionality.
func NewMonopoleGravity(dim int) *MonopoleGravity {
	return &MonopoleGravity{dim: dim}
}

func (g *MonopoleGravity) Bind(pc ParticleContainer) {
	g.pc = pc
	g.n = pc.Len()
	g.cursor = 0
	g.current = -1
}

func (g *MonopoleGravity) Advance() bool {
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

func (g *MonopoleGravity) Current() int { return g.current }
func (g *MonopoleGravity) Done() bool   { return g.cursor >= g.n }

func (g *MonopoleGravity) Interact(n *Node) {
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

	if r2 == 0 {
		return
	}

	invR3 := 1 / (r2 * math.Sqrt(r2))

	a := make([]float64, g.dim)
	for k := 0; k < g.dim; k++ {
		a[k] = n.Mass * dr[k] * invR3
	}

	g.pc.AddAcceleration(i, a)
}

// withinCell is the half-open-cube self-interaction test: true iff x
// lies inside n's cell on every axis.
func withinCell(n *Node, x []float64, dim int) bool {
	half := n.Width / 2

	for k := 0; k < dim; k++ {
		lo := n.Center[k] - half
		hi := n.Center[k] + half

		if x[k] < lo || x[k] >= hi {
			return false
		}
	}

	return true
}

package main

import (
	"math"
	"math/rand"

	"github.com/gravtree/gravtree/internal/gravtree"
	"github.com/gravtree/gravtree/internal/loadbalance"
)

// memParticles is an in-memory columnar ParticleContainer used by the
// bench subcommand: every particle is Real and already has its Morton
// key computed from its position.
type memParticles struct {
	dim   int
	pos   [][]float64
	mass  []float64
	key   []uint64
	accel [][]float64
}

func newMemParticles(dim int) *memParticles {
	return &memParticles{dim: dim}
}

func (m *memParticles) add(pos []float64, mass float64, key uint64) {
	m.pos = append(m.pos, pos)
	m.mass = append(m.mass, mass)
	m.key = append(m.key, key)
	m.accel = append(m.accel, make([]float64, m.dim))
}

func (m *memParticles) Len() int                 { return len(m.pos) }
func (m *memParticles) Position(i int) []float64 { return m.pos[i] }
func (m *memParticles) Mass(i int) float64       { return m.mass[i] }
func (m *memParticles) TagAt(i int) gravtree.Tag { return gravtree.Real }
func (m *memParticles) Key(i int) uint64         { return m.key[i] }

func (m *memParticles) AddAcceleration(i int, delta []float64) {
	for k := 0; k < m.dim; k++ {
		m.accel[i][k] += delta[k]
	}
}

func (m *memParticles) ZeroAcceleration(i int) {
	for k := 0; k < m.dim; k++ {
		m.accel[i][k] = 0
	}
}

// plummerSphere generates n equal-mass particles drawn from a Plummer
// density profile, scaled down and clamped to fit inside [-1,1]^dim: a
// standard N-body benchmark initial condition.
const plummerScale = 0.05

func plummerSphere(dim, n int, seed int64) *memParticles {
	rng := rand.New(rand.NewSource(seed))

	particles := newMemParticles(dim)
	perMass := 1.0 / float64(n)

	for i := 0; i < n; i++ {
		r := plummerScale / math.Sqrt(math.Pow(rng.Float64(), -2.0/3.0)-1)
		pos := randomDirection(rng, dim, r)

		for k := range pos {
			if pos[k] < -1 {
				pos[k] = -1
			}

			if pos[k] > 1 {
				pos[k] = 1
			}
		}

		key := loadbalance.Key(dim, [3]float64{-1, -1, -1}, [3]float64{1, 1, 1}, padTo3(pos))
		particles.add(pos, perMass, key)
	}

	return particles
}

func padTo3(pos []float64) [3]float64 {
	var p [3]float64
	copy(p[:], pos)

	return p
}

// randomDirection draws a uniformly random unit direction in dim
// dimensions (2 or 3) and scales it to radius r.
func randomDirection(rng *rand.Rand, dim int, r float64) []float64 {
	dir := make([]float64, dim)

	if dim == 2 {
		theta := 2 * math.Pi * rng.Float64()
		dir[0] = r * math.Cos(theta)
		dir[1] = r * math.Sin(theta)

		return dir
	}

	costheta := 2*rng.Float64() - 1
	sintheta := math.Sqrt(1 - costheta*costheta)
	phi := 2 * math.Pi * rng.Float64()

	dir[0] = r * sintheta * math.Cos(phi)
	dir[1] = r * sintheta * math.Sin(phi)
	dir[2] = r * costheta

	return dir
}

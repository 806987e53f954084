package gravtree

import (
	"context"
	"math"
	"math/rand"
	"testing"

	"github.com/gravtree/gravtree/internal/loadbalance"
)

var testDomainMin = [3]float64{-10, -10, -10}
var testDomainMax = [3]float64{10, 10, 10}

// columnParticles is a minimal in-package ParticleContainer for tests:
// a plain columnar store with no ghosts.
type columnParticles struct {
	dim   int
	pos   [][]float64
	mass  []float64
	key   []uint64
	accel [][]float64
	tag   []Tag
}

func newColumnParticles(dim int) *columnParticles {
	return &columnParticles{dim: dim}
}

func (c *columnParticles) add(pos []float64, mass float64, key uint64) {
	c.pos = append(c.pos, pos)
	c.mass = append(c.mass, mass)
	c.key = append(c.key, key)
	c.accel = append(c.accel, make([]float64, c.dim))
	c.tag = append(c.tag, Real)
}

func (c *columnParticles) Len() int                 { return len(c.pos) }
func (c *columnParticles) Position(i int) []float64 { return c.pos[i] }
func (c *columnParticles) Mass(i int) float64       { return c.mass[i] }
func (c *columnParticles) TagAt(i int) Tag          { return c.tag[i] }
func (c *columnParticles) Key(i int) uint64         { return c.key[i] }

func (c *columnParticles) AddAcceleration(i int, delta []float64) {
	for k := 0; k < c.dim; k++ {
		c.accel[i][k] += delta[k]
	}
}

func (c *columnParticles) ZeroAcceleration(i int) {
	for k := 0; k < c.dim; k++ {
		c.accel[i][k] = 0
	}
}

func testConfig(dim int, theta float64) Config {
	return Config{
		Dim:       dim,
		DomainMin: [maxDim]float64{-10, -10, -10},
		DomainMax: [maxDim]float64{10, 10, 10},
		SplitKind: BarnesHut,
		OpenAngle: theta,
		MaxExport: 64,
	}
}

func directSum(dim int, pos [][]float64, mass []float64) [][]float64 {
	n := len(pos)
	out := make([][]float64, n)

	for i := range out {
		out[i] = make([]float64, dim)
	}

	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			if i == j {
				continue
			}

			var dr [3]float64

			var r2 float64

			for k := 0; k < dim; k++ {
				dr[k] = pos[j][k] - pos[i][k]
				r2 += dr[k] * dr[k]
			}

			invR3 := 1 / (r2 * math.Sqrt(r2))

			for k := 0; k < dim; k++ {
				out[i][k] += mass[j] * dr[k] * invR3
			}
		}
	}

	return out
}

func randomParticles(dim, n int, seed int64) *columnParticles {
	rng := rand.New(rand.NewSource(seed))
	pc := newColumnParticles(dim)

	for i := 0; i < n; i++ {
		pos := make([]float64, dim)
		for k := range pos {
			pos[k] = rng.Float64()*6 - 3
		}

		var padded [3]float64
		copy(padded[:], pos)

		key := loadbalance.Key(dim, testDomainMin, testDomainMax, padded[:dim])
		pc.add(pos, 1+rng.Float64(), key)
	}

	return pc
}

func TestSerialWalkApproximatesDirectSum(t *testing.T) {
	pc := randomParticles(3, 40, 7)

	tree, err := New(testConfig(3, 1e-6))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ctx := context.Background()

	if err := tree.Build(ctx, pc); err != nil {
		t.Fatalf("Build: %v", err)
	}

	if err := tree.Walk(ctx, pc); err != nil {
		t.Fatalf("Walk: %v", err)
	}

	want := directSum(3, pc.pos, pc.mass)

	for i := range pc.accel {
		for k := 0; k < 3; k++ {
			got := pc.accel[i][k]
			w := want[i][k]

			if math.Abs(got-w) > 1e-6*(1+math.Abs(w)) {
				t.Fatalf("particle %d axis %d: got %g, want %g", i, k, got, w)
			}
		}
	}
}

func TestSerialWalkLargeThetaStillStable(t *testing.T) {
	pc := randomParticles(3, 100, 3)

	tree, err := New(testConfig(3, 0.9))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ctx := context.Background()

	if err := tree.Build(ctx, pc); err != nil {
		t.Fatalf("Build: %v", err)
	}

	if err := tree.Walk(ctx, pc); err != nil {
		t.Fatalf("Walk: %v", err)
	}

	for i := range pc.accel {
		for k := 0; k < 3; k++ {
			if math.IsNaN(pc.accel[i][k]) || math.IsInf(pc.accel[i][k], 0) {
				t.Fatalf("particle %d axis %d: non-finite acceleration %g", i, k, pc.accel[i][k])
			}
		}
	}
}

func TestTwoBodySymmetricForce(t *testing.T) {
	pc := newColumnParticles(3)
	pc.add([]float64{-1, 0, 0}, 2, 0)
	pc.add([]float64{1, 0, 0}, 2, 0)

	tree, err := New(testConfig(3, 1e-6))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ctx := context.Background()

	if err := tree.Build(ctx, pc); err != nil {
		t.Fatalf("Build: %v", err)
	}

	if err := tree.Walk(ctx, pc); err != nil {
		t.Fatalf("Walk: %v", err)
	}

	// Equal masses symmetric about the origin: accelerations must be
	// equal and opposite, pointing toward each other along x.
	if pc.accel[0][0] <= 0 {
		t.Fatalf("particle 0 ax = %g, want > 0 (pulled toward particle 1)", pc.accel[0][0])
	}

	for k := 0; k < 3; k++ {
		if math.Abs(pc.accel[0][k]+pc.accel[1][k]) > 1e-9 {
			t.Fatalf("axis %d: accelerations not opposite: %g vs %g", k, pc.accel[0][k], pc.accel[1][k])
		}
	}
}

func TestTwoDimensionalWalkProducesAcceleration(t *testing.T) {
	cfg := testConfig(2, 0.5)

	tree, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	pc := newColumnParticles(2)
	pc.add([]float64{0, 0}, 1, 0)
	pc.add([]float64{1, 1}, 1, 0)

	ctx := context.Background()

	if err := tree.Build(ctx, pc); err != nil {
		t.Fatalf("Build: %v", err)
	}

	if err := tree.Walk(ctx, pc); err != nil {
		t.Fatalf("Walk: %v", err)
	}

	if pc.accel[0][0] == 0 {
		t.Fatal("2D walk produced zero acceleration for a two-particle system")
	}
}

func TestConfigValidateRejectsBadTheta(t *testing.T) {
	cfg := testConfig(3, 0)

	if _, err := New(cfg); err == nil {
		t.Fatal("New accepted theta=0")
	}

	cfg = testConfig(3, 1.5)

	if _, err := New(cfg); err == nil {
		t.Fatal("New accepted theta=1.5")
	}
}

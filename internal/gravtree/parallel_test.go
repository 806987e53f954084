package gravtree

import (
	"context"
	"math"
	"sync"
	"testing"

	"github.com/gravtree/gravtree/internal/loadbalance"
	"github.com/gravtree/gravtree/internal/transport"
)

// partitionByKey assigns each particle in all to a rank by its key
// under an even partition of the full key space, mirroring
// cmd/gravtreed's partitionByRank.
func partitionByKey(dim, procs int, all *columnParticles) []*columnParticles {
	parts := make([]*columnParticles, procs)
	for r := range parts {
		parts[r] = newColumnParticles(dim)
	}

	maxKey := loadbalance.MaxKey(dim)
	step := (maxKey + 1) / uint64(procs)

	for i := 0; i < all.Len(); i++ {
		key := all.Key(i)

		r := int(key / step)
		if r >= procs {
			r = procs - 1
		}

		parts[r].add(all.Position(i), all.Mass(i), key)
	}

	return parts
}

func TestParallelWalkMatchesSerial(t *testing.T) {
	const dim = 2
	const procs = 4

	all := randomParticles(dim, 60, 11)
	partitions := partitionByKey(dim, procs, all)

	domainMin := [3]float64{-10, -10, -10}
	domainMax := [3]float64{10, 10, 10}

	leaves := loadbalance.EvenLeaves(dim, procs)
	lb := loadbalance.NewStatic(dim, domainMin, domainMax, leaves)

	cfg := Config{
		Dim:       dim,
		DomainMin: domainMin,
		DomainMax: domainMax,
		Parallel:  true,
		SplitKind: BarnesHut,
		OpenAngle: 1e-6,
		MaxExport: 64,
	}

	var wg sync.WaitGroup

	errs := make([]error, procs)
	ctx := context.Background()

	for rank := 0; rank < procs; rank++ {
		rank := rank

		wg.Add(1)

		go func() {
			defer wg.Done()

			tree, err := New(cfg)
			if err != nil {
				errs[rank] = err
				return
			}

			trans := &transport.InProcess{}

			if err := tree.Attach(lb, trans, rank, procs); err != nil {
				errs[rank] = err
				return
			}

			pc := partitions[rank]

			if err := tree.Build(ctx, pc); err != nil {
				errs[rank] = err
				return
			}

			if err := tree.Walk(ctx, pc); err != nil {
				errs[rank] = err
				return
			}

			errs[rank] = trans.Stop()
		}()
	}

	wg.Wait()

	for r, err := range errs {
		if err != nil {
			t.Fatalf("rank %d: %v", r, err)
		}
	}

	serialTree, err := New(testConfig(dim, 1e-6))
	if err != nil {
		t.Fatalf("New serial: %v", err)
	}

	if err := serialTree.Build(ctx, all); err != nil {
		t.Fatalf("serial Build: %v", err)
	}

	if err := serialTree.Walk(ctx, all); err != nil {
		t.Fatalf("serial Walk: %v", err)
	}

	gotByKey := map[uint64][]float64{}

	for _, pc := range partitions {
		for i := 0; i < pc.Len(); i++ {
			gotByKey[pc.key[i]] = pc.accel[i]
		}
	}

	for i := 0; i < all.Len(); i++ {
		key := all.key[i]

		got, ok := gotByKey[key]
		if !ok {
			t.Fatalf("particle with key %d missing from parallel output", key)
		}

		want := all.accel[i]

		for k := 0; k < dim; k++ {
			if math.Abs(got[k]-want[k]) > 1e-6*(1+math.Abs(want[k])) {
				t.Fatalf("key %d axis %d: parallel got %g, serial want %g", key, k, got[k], want[k])
			}
		}
	}
}

func TestParallelWalkSingleRankMatchesSerial(t *testing.T) {
	const dim = 2
	const procs = 1

	all := randomParticles(dim, 20, 23)
	partitions := partitionByKey(dim, procs, all)

	domainMin := [3]float64{-10, -10, -10}
	domainMax := [3]float64{10, 10, 10}

	leaves := loadbalance.EvenLeaves(dim, procs)
	lb := loadbalance.NewStatic(dim, domainMin, domainMax, leaves)

	cfg := Config{
		Dim:       dim,
		DomainMin: domainMin,
		DomainMax: domainMax,
		Parallel:  true,
		SplitKind: BarnesHut,
		OpenAngle: 1e-6,
		MaxExport: 64,
	}

	ctx := context.Background()

	tree, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	trans := &transport.InProcess{}

	if err := tree.Attach(lb, trans, 0, procs); err != nil {
		t.Fatalf("Attach: %v", err)
	}

	pc := partitions[0]

	if err := tree.Build(ctx, pc); err != nil {
		t.Fatalf("Build: %v", err)
	}

	if err := tree.Walk(ctx, pc); err != nil {
		t.Fatalf("Walk: %v", err)
	}

	if err := trans.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}

	serialTree, err := New(testConfig(dim, 1e-6))
	if err != nil {
		t.Fatalf("New serial: %v", err)
	}

	if err := serialTree.Build(ctx, all); err != nil {
		t.Fatalf("serial Build: %v", err)
	}

	if err := serialTree.Walk(ctx, all); err != nil {
		t.Fatalf("serial Walk: %v", err)
	}

	for i := 0; i < all.Len(); i++ {
		for k := 0; k < dim; k++ {
			if math.Abs(pc.accel[i][k]-all.accel[i][k]) > 1e-9 {
				t.Fatalf("particle %d axis %d: P=1 parallel got %g, serial want %g", i, k, pc.accel[i][k], all.accel[i][k])
			}
		}
	}
}

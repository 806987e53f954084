// Command gravtreed runs and benchmarks the distributed Barnes-Hut
// gravity solver: "init" writes a starting configuration, "bench"
// simulates a multi-rank run as goroutines in one process, "serve"
// runs this process as one rank of a real QUIC-connected cluster, and
// "version" prints build information.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/gravtree/gravtree/internal/affinity"
	"github.com/gravtree/gravtree/internal/config"
	"github.com/gravtree/gravtree/internal/gravtree"
	"github.com/gravtree/gravtree/internal/loadbalance"
	"github.com/gravtree/gravtree/internal/transport"
)

const toolVersion = "0.1.0"

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	sub := os.Args[1]
	args := os.Args[2:]

	var err error

	switch sub {
	case "help", "-h", "--help":
		usage()
	case "version", "-v", "--version":
		printVersion(hasFlag(args, "--json"))
	case "init":
		err = runInit(args)
	case "bench":
		err = runBench(args)
	case "serve":
		err = runServe(args)
	default:
		fmt.Fprintf(os.Stderr, "gravtreed: unknown command %q\n", sub)
		usage()
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "gravtreed: %v\n", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintf(os.Stderr, "Usage: gravtreed <command> [options]\n\n")
	fmt.Fprintf(os.Stderr, "Commands:\n")
	fmt.Fprintf(os.Stderr, "  init     write a starting gravtree.json\n")
	fmt.Fprintf(os.Stderr, "  bench    simulate a multi-rank run as in-process goroutines\n")
	fmt.Fprintf(os.Stderr, "  serve    run this process as one rank of a QUIC cluster\n")
	fmt.Fprintf(os.Stderr, "  version  print build information\n")
}

func hasFlag(args []string, name string) bool {
	for _, a := range args {
		if a == name {
			return true
		}
	}

	return false
}

func printVersion(jsonOutput bool) {
	info := map[string]string{
		"tool":       "gravtreed",
		"version":    toolVersion,
		"go_version": runtime.Version(),
		"platform":   runtime.GOOS + "/" + runtime.GOARCH,
	}

	if jsonOutput {
		data, _ := json.MarshalIndent(info, "", "  ")
		fmt.Println(string(data))

		return
	}

	fmt.Printf("gravtreed v%s (%s, %s)\n", toolVersion, info["go_version"], info["platform"])
}

func runInit(args []string) error {
	fs := flag.NewFlagSet("init", flag.ExitOnError)
	path := fs.String("config", "gravtree.json", "path to write")

	if err := fs.Parse(args); err != nil {
		return err
	}

	if _, err := os.Stat(*path); err == nil {
		return fmt.Errorf("%s already exists", *path)
	}

	if err := config.Save(*path, config.Default()); err != nil {
		return err
	}

	fmt.Printf("wrote %s\n", *path)

	return nil
}

// runBench simulates nprocs ranks as goroutines over an InProcess
// transport, fanned out with an errgroup, each building and walking
// its own partition of a generated Plummer sphere.
func runBench(args []string) error {
	fs := flag.NewFlagSet("bench", flag.ExitOnError)
	n := fs.Int("particles", 2000, "number of particles")
	procs := fs.Int("procs", 4, "number of simulated ranks")
	dim := fs.Int("dim", 3, "dimensionality (2 or 3)")
	theta := fs.Float64("theta", 0.5, "Barnes-Hut opening angle")
	softening := fs.Float64("softening", 0.0, "Plummer softening length (0 disables)")
	maxExport := fs.Int("max-export", 4096, "parallel export buffer size")
	seed := fs.Int64("seed", 1, "PRNG seed")

	if err := fs.Parse(args); err != nil {
		return err
	}

	if *dim != 2 && *dim != 3 {
		return fmt.Errorf("dim must be 2 or 3, got %d", *dim)
	}

	if *procs < 1 {
		return fmt.Errorf("procs must be positive, got %d", *procs)
	}

	if *procs > 1 && !loadbalance.ValidLeafCount(*dim, *procs) {
		return fmt.Errorf("procs=%d is not a power of %d for dim=%d", *procs, 1<<uint(*dim), *dim)
	}

	domainMin := [3]float64{-1, -1, -1}
	domainMax := [3]float64{1, 1, 1}

	all := plummerSphere(*dim, *n, *seed)
	partitions, _ := partitionByRank(*dim, all, *procs)

	var lb loadbalance.Tree
	if *procs > 1 {
		leaves := loadbalance.EvenLeaves(*dim, *procs)
		lb = loadbalance.NewStatic(*dim, domainMin, domainMax, leaves)
	}

	cfg := gravtree.Config{
		Dim:       *dim,
		DomainMin: domainMin,
		DomainMax: domainMax,
		Parallel:  *procs > 1,
		SplitKind: gravtree.BarnesHut,
		OpenAngle: *theta,
		MaxExport: *maxExport,
		Softening: *softening,
	}

	start := time.Now()

	ctx := context.Background()
	g, ctx := errgroup.WithContext(ctx)

	for rank := 0; rank < *procs; rank++ {
		rank := rank

		g.Go(func() error {
			tree, err := gravtree.New(cfg)
			if err != nil {
				return fmt.Errorf("rank %d: %w", rank, err)
			}

			if *procs > 1 {
				trans := &transport.InProcess{}

				if err := tree.Attach(lb, trans, rank, *procs); err != nil {
					return fmt.Errorf("rank %d: attach: %w", rank, err)
				}
			}

			pc := partitions[rank]

			if err := tree.Build(ctx, pc); err != nil {
				return fmt.Errorf("rank %d: build: %w", rank, err)
			}

			if err := tree.Walk(ctx, pc); err != nil {
				return fmt.Errorf("rank %d: walk: %w", rank, err)
			}

			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}

	elapsed := time.Since(start)

	total := 0
	for _, p := range partitions {
		total += p.Len()
	}

	fmt.Printf("particles=%d procs=%d dim=%d theta=%g elapsed=%s\n", total, *procs, *dim, *theta, elapsed)

	return nil
}

// partitionByRank splits all's particles into procs per-rank
// containers by the same even key-range partition EvenLeaves used for
// the load-balance tree, so each rank ends up owning exactly the
// particles inside its own top-tree leaf.
func partitionByRank(dim int, all *memParticles, procs int) ([]*memParticles, []int) {
	parts := make([]*memParticles, procs)
	for r := range parts {
		parts[r] = newMemParticles(dim)
	}

	owner := make([]int, all.Len())
	maxKey := loadbalance.MaxKey(dim)
	step := (maxKey + 1) / uint64(procs)

	for i := 0; i < all.Len(); i++ {
		key := all.Key(i)

		r := int(key / step)
		if r >= procs {
			r = procs - 1
		}

		owner[i] = r
		parts[r].add(all.Position(i), all.Mass(i), key)
	}

	return parts, owner
}

func runServe(args []string) error {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	configPath := fs.String("config", "gravtree.json", "path to gravtree.json")
	rank := fs.Int("rank", 0, "this process's rank")
	particleCount := fs.Int("particles", 2000, "number of particles in the generated Plummer sphere")
	seed := fs.Int64("seed", 1, "PRNG seed; every rank must use the same seed")

	if err := fs.Parse(args); err != nil {
		return err
	}

	rc, err := config.Load(*configPath)
	if err != nil {
		return err
	}

	if !rc.Parallel || rc.Transport.Kind != "quic" {
		return fmt.Errorf("serve requires a parallel config with transport.kind=quic")
	}

	pinner := affinity.New(rc.AffinityConfig())
	if _, err := pinner.Pin(*rank); err != nil {
		return err
	}

	nprocs := len(rc.Transport.Addresses)
	if *rank < 0 || *rank >= nprocs {
		return fmt.Errorf("rank %d out of range [0,%d)", *rank, nprocs)
	}

	cfg, err := rc.GravTreeConfig()
	if err != nil {
		return err
	}

	tree, err := gravtree.New(cfg)
	if err != nil {
		return err
	}

	trans, err := transport.NewQUIC(rc.Transport.Addresses, nil)
	if err != nil {
		return err
	}

	if !loadbalance.ValidLeafCount(rc.Dim, nprocs) {
		return fmt.Errorf("len(transport.addresses)=%d is not a power of %d for dim=%d", nprocs, 1<<uint(rc.Dim), rc.Dim)
	}

	leaves := loadbalance.EvenLeaves(rc.Dim, nprocs)
	lb := loadbalance.NewStatic(rc.Dim, cfg.DomainMin, cfg.DomainMax, leaves)

	if err := tree.Attach(lb, trans, *rank, nprocs, rc.Transport.Addresses...); err != nil {
		return err
	}

	all := plummerSphere(rc.Dim, *particleCount, *seed)
	partitions, _ := partitionByRank(rc.Dim, all, nprocs)
	pc := partitions[*rank]

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	start := time.Now()

	if err := tree.Build(ctx, pc); err != nil {
		return err
	}

	if err := tree.Walk(ctx, pc); err != nil {
		return err
	}

	fmt.Printf("rank=%d particles=%d elapsed=%s\n", *rank, pc.Len(), time.Since(start))

	return trans.Stop()
}

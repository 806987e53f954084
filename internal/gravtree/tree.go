package gravtree

import (
	"context"
	"strconv"

	"github.com/gravtree/gravtree/internal/gtreeerr"
	"github.com/gravtree/gravtree/internal/loadbalance"
	"github.com/gravtree/gravtree/internal/pool"
	"github.com/gravtree/gravtree/internal/transport"
)

// Tree is one rank's gravity tree: a Node Pool plus the splitter and
// interaction kernels configured for it, and -- once Attach has been
// called -- the load-balance tree, transport, and remote-node-table
// state needed to run the parallel algorithm.
type Tree struct {
	cfg  Config
	pool *pool.Pool[Node]
	root int32

	splitterForSplit func() Splitter
	newInteraction   func() Interaction

	lb      loadbalance.Tree
	trans   transport.Transport
	rank    int
	nprocs  int
	coll    *transport.Collective
	bufPool *transport.BytePool
	remote  []remoteRow
	// leafRowByArrayIndex maps a load-balance leaf's array index to
	// its row in remote, since remote is sorted by (owner, array
	// index) rather than array index alone.
	leafRowByArrayIndex map[int]int32
}

// New validates cfg and constructs a Tree. The pool starts empty; the
// first Build call reset-allocates the root.
func New(cfg Config) (*Tree, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	t := &Tree{
		cfg:     cfg,
		pool:    pool.New[Node](0),
		bufPool: transport.DefaultBytePool(),
	}

	switch cfg.SplitKind {
	case BarnesHut:
		t.splitterForSplit = func() Splitter { return NewBarnesHutSplitter(cfg.Dim, cfg.OpenAngle) }
	case Acceleration:
		t.splitterForSplit = func() Splitter { return NewMACSplitter(cfg.Dim, cfg.OpenAngle) }
	default:
		return nil, gtreeerr.Configuration("unknown split kind %d", cfg.SplitKind)
	}

	if cfg.Softening > 0 {
		t.newInteraction = func() Interaction { return NewSoftenedGravity(cfg.Dim, cfg.Softening) }
	} else {
		t.newInteraction = func() Interaction { return NewMonopoleGravity(cfg.Dim) }
	}

	return t, nil
}

// Attach wires the Tree to a load-balance partition and a transport
// for the parallel algorithm; required before Build when cfg.Parallel
// was set. addresses, if given, must have length nprocs and is used
// both as the peer table and as this rank's own listen address
// (addresses[rank]); this is required for a network Transport like
// QUIC, where "rank-N" is not a reachable address. Callers simulating
// ranks over InProcess can omit it and get the symbolic "rank-N"
// scheme instead.
func (t *Tree) Attach(lb loadbalance.Tree, tr transport.Transport, rank, nprocs int, addresses ...string) error {
	if lb.Dim() != t.cfg.Dim {
		return gtreeerr.Protocol("load-balance tree dim=%d does not match tree dim=%d", lb.Dim(), t.cfg.Dim)
	}

	if rank < 0 || rank >= nprocs {
		return gtreeerr.Configuration("rank %d out of range [0,%d)", rank, nprocs)
	}

	peers := make([]string, nprocs)

	switch len(addresses) {
	case 0:
		for r := range peers {
			peers[r] = rankAddress(r)
		}
	case nprocs:
		copy(peers, addresses)
	default:
		return gtreeerr.Configuration("addresses has length %d, want 0 or %d", len(addresses), nprocs)
	}

	coll, err := transport.NewCollective(tr, rank, nprocs, peers)
	if err != nil {
		return err
	}

	if err := tr.Start(peers[rank], coll.Deliver); err != nil {
		return err
	}

	t.lb = lb
	t.trans = tr
	t.rank = rank
	t.nprocs = nprocs
	t.coll = coll

	return nil
}

func rankAddress(rank int) string {
	return rankAddressPrefix + strconv.Itoa(rank)
}

const rankAddressPrefix = "rank-"

// Build resets the pool and constructs this rank's tree from pc: the
// top tree (if attached and parallel), then every Real particle, then
// local moments, then -- if parallel -- the remote-moment exchange.
func (t *Tree) Build(ctx context.Context, pc ParticleContainer) error {
	t.pool.Reset()

	startIndex, err := t.buildRoot()
	if err != nil {
		return err
	}

	t.root = int32(startIndex)

	if t.cfg.Parallel {
		if t.lb == nil || t.trans == nil {
			return gtreeerr.Configuration("parallel tree requires Attach before Build")
		}

		if err := t.replicateTopTree(); err != nil {
			return err
		}
	}

	if err := t.insertAll(pc); err != nil {
		return err
	}

	t.updateMoments(pc, t.root, RootSibling)

	if t.cfg.Parallel {
		if err := ctx.Err(); err != nil {
			return err
		}

		if err := t.exchangeRemoteMoments(); err != nil {
			return err
		}
	}

	return nil
}

// Walk runs the serial or parallel force-evaluation walk over pc,
// accumulating into its acceleration columns.
func (t *Tree) Walk(ctx context.Context, pc ParticleContainer) error {
	if !t.cfg.Parallel {
		return t.walkSerial(pc)
	}

	return t.walkParallel(ctx, pc)
}

func (t *Tree) at(i int32) *Node { return t.pool.At(int(i)) }

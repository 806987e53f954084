package transport

import (
	"encoding/binary"
	"sync"

	"github.com/gravtree/gravtree/internal/gtreeerr"
)

// Collective implements the four primitives the Transport contract
// requires: all-gather (in-place, variable counts), all-to-all (fixed
// one element per rank), paired send/recv by (counts, displacements),
// and all-reduce SUM over one integer.
//
// Every primitive is a single round: each rank sends exactly one
// envelope to every other rank and blocks until it has received one
// from every other rank tagged with the same round number. Callers
// (the gravity tree's build and parallel walk) are required to invoke
// collectives in the same order on every rank, so a plain monotonic
// round counter — rather than any data carried in the envelope — is
// enough to match up a round across ranks.
type Collective struct {
	Rank   int
	NProcs int
	Trans  Transport
	Peers  []string // Peers[r] is the address Send should use to reach rank r

	mu    sync.Mutex
	cond  *sync.Cond
	round uint32
	inbox map[uint32]map[int][]byte
}

// NewCollective wires a Collective to an already-started Transport.
// Peers must have length nprocs, with Peers[rank] resolving to an
// address the Transport accepts in Send.
func NewCollective(trans Transport, rank, nprocs int, peers []string) (*Collective, error) {
	if len(peers) != nprocs {
		return nil, gtreeerr.Protocol("collective: len(peers)=%d != nprocs=%d", len(peers), nprocs)
	}

	c := &Collective{
		Rank:   rank,
		NProcs: nprocs,
		Trans:  trans,
		Peers:  peers,
		inbox:  make(map[uint32]map[int][]byte),
	}
	c.cond = sync.NewCond(&c.mu)

	return c, nil
}

// Deliver is the Handler a caller should register with Trans.Start;
// it routes an incoming Envelope into the round it belongs to.
func (c *Collective) Deliver(env Envelope) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	bucket, ok := c.inbox[env.Round]
	if !ok {
		bucket = make(map[int][]byte)
		c.inbox[env.Round] = bucket
	}

	bucket[env.SenderRank] = env.Payload
	c.cond.Broadcast()

	return nil
}

func (c *Collective) nextRound() uint32 {
	c.mu.Lock()
	defer c.mu.Unlock()

	r := c.round
	c.round++

	return r
}

// waitForAll blocks until round has received a payload from every
// rank in want (want excludes c.Rank, which is supplied locally), then
// returns the assembled per-rank slice and clears the round's buffer.
func (c *Collective) waitForAll(round uint32, want []int) map[int][]byte {
	c.mu.Lock()
	defer c.mu.Unlock()

	for {
		bucket := c.inbox[round]
		if bucket != nil && haveAll(bucket, want) {
			delete(c.inbox, round)

			return bucket
		}

		c.cond.Wait()
	}
}

func haveAll(bucket map[int][]byte, want []int) bool {
	for _, r := range want {
		if _, ok := bucket[r]; !ok {
			return false
		}
	}

	return true
}

func (c *Collective) otherRanks() []int {
	others := make([]int, 0, c.NProcs-1)

	for r := 0; r < c.NProcs; r++ {
		if r != c.Rank {
			others = append(others, r)
		}
	}

	return others
}

// AllGather sends local to every peer and returns one payload per
// rank, in rank order, with result[c.Rank] == local.
func (c *Collective) AllGather(local []byte) ([][]byte, error) {
	if c.NProcs == 1 {
		return [][]byte{local}, nil
	}

	round := c.nextRound()
	others := c.otherRanks()

	for _, r := range others {
		env := Envelope{SenderRank: c.Rank, Round: round, Payload: local, TimestampUnix: NowUnix()}
		if err := c.Trans.Send(c.Peers[r], env); err != nil {
			return nil, err
		}
	}

	bucket := c.waitForAll(round, others)

	result := make([][]byte, c.NProcs)
	result[c.Rank] = local

	for r, payload := range bucket {
		result[r] = payload
	}

	return result, nil
}

// AllToAll exchanges one payload per destination rank: send[r] is
// delivered to rank r, and the returned slice's entry r holds what
// rank r sent here.
func (c *Collective) AllToAll(send [][]byte) ([][]byte, error) {
	if len(send) != c.NProcs {
		return nil, gtreeerr.Protocol("collective: AllToAll send len=%d != nprocs=%d", len(send), c.NProcs)
	}

	if c.NProcs == 1 {
		return [][]byte{send[0]}, nil
	}

	round := c.nextRound()
	others := c.otherRanks()

	for _, r := range others {
		env := Envelope{SenderRank: c.Rank, Round: round, Payload: send[r], TimestampUnix: NowUnix()}
		if err := c.Trans.Send(c.Peers[r], env); err != nil {
			return nil, err
		}
	}

	bucket := c.waitForAll(round, others)

	result := make([][]byte, c.NProcs)
	result[c.Rank] = send[c.Rank]

	for r, payload := range bucket {
		result[r] = payload
	}

	return result, nil
}

// SendRecv is the paired particle exchange used by the parallel
// export/import walk: semantically identical to AllToAll, named
// separately because the two call sites (particles out, accelerations
// back) exchange different payload shapes.
func (c *Collective) SendRecv(send [][]byte) ([][]byte, error) {
	return c.AllToAll(send)
}

// AllReduceSum sums one integer across every rank.
func (c *Collective) AllReduceSum(v int) (int, error) {
	buf := make([]byte, 8)
	binary.LittleEndian.PutUint64(buf, uint64(v))

	gathered, err := c.AllGather(buf)
	if err != nil {
		return 0, err
	}

	sum := 0
	for _, payload := range gathered {
		sum += int(binary.LittleEndian.Uint64(payload))
	}

	return sum, nil
}

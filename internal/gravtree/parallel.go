package gravtree

import (
	"context"
	"encoding/binary"
	"math"
	"sort"

	"github.com/gravtree/gravtree/internal/gtreeerr"
	"github.com/gravtree/gravtree/internal/transport"
)

// exportPair is one (local particle, destination rank) decision made
// by the export walk: the particle's own traversal needs to open a
// node owned by another rank. leaf is that node's Remote-Node Table
// mapIndex, the pool index of the corresponding TopTreeLeaf -- shared
// across every rank, since the top tree is replicated identically --
// so the receiving rank can resume its import walk exactly where the
// export happened, rather than re-deriving a leaf from the particle's
// own SFC key (which resolves to the sender's partition, not the
// destination's).
type exportPair struct {
	pid  int
	rank int
	leaf int32
}

// exportWalker tracks the one particle currently mid-traversal in the
// export walk, so a round that fills its buffer can pause and later
// resume from exactly where it left off.
type exportWalker struct {
	active bool
	index  int32
}

// walkParallel runs the bounded-buffer export/import protocol until
// every rank has exhausted its local particles: each round is a local
// export pass, a count exchange, a particle exchange, an import pass,
// an acceleration return, and a termination reduce, in that fixed
// order.
func (t *Tree) walkParallel(ctx context.Context, pc ParticleContainer) error {
	splitter := t.splitterForSplit()
	splitter.Bind(pc)

	localInteraction := t.newInteraction()
	localInteraction.Bind(pc)

	ew := &exportWalker{}

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		pairs, localDone := t.runExportRound(ew, localInteraction, splitter, t.cfg.MaxExport)

		sort.SliceStable(pairs, func(i, j int) bool { return pairs[i].rank < pairs[j].rank })

		sentOrder := make([][]int, t.nprocs)
		sentLeaf := make([][]int32, t.nprocs)
		sendCounts := make([]int, t.nprocs)

		for _, p := range pairs {
			sendCounts[p.rank]++
			sentOrder[p.rank] = append(sentOrder[p.rank], p.pid)
			sentLeaf[p.rank] = append(sentLeaf[p.rank], p.leaf)
		}

		sendCountPayload := make([][]byte, t.nprocs)
		for r := 0; r < t.nprocs; r++ {
			sendCountPayload[r] = encodeCount(t.bufPool, sendCounts[r])
		}

		recvCountPayload, err := t.coll.AllToAll(sendCountPayload)
		if err != nil {
			return err
		}

		sendParticlePayload := make([][]byte, t.nprocs)
		for r := 0; r < t.nprocs; r++ {
			sendParticlePayload[r] = encodeParticles(t.bufPool, pc, sentOrder[r], sentLeaf[r], t.cfg.Dim)
		}

		recvParticlePayload, err := t.coll.SendRecv(sendParticlePayload)
		if err != nil {
			return err
		}

		imported := newImportContainer(t.cfg.Dim)
		blockLen := make([]int, t.nprocs)

		for r := 0; r < t.nprocs; r++ {
			rows := decodeParticles(recvParticlePayload[r], t.cfg.Dim)
			blockLen[r] = len(rows)

			if want := decodeCount(recvCountPayload[r]); want != len(rows) {
				return gtreeerr.Protocol("parallel walk: rank %d announced %d particles, sent %d", r, want, len(rows))
			}

			for _, row := range rows {
				imported.add(row.pos, row.mass, row.key, row.leaf)
			}

			// Our own round-trip entry is never aliased by any other
			// rank's in-flight decode, so it is the one buffer this
			// round that is safe to return to the pool now; a peer's
			// decode of what we sent it may still be pending.
			if r == t.rank {
				t.bufPool.Put(sendCountPayload[r])
				t.bufPool.Put(sendParticlePayload[r])
			}
		}

		t.runImportWalk(imported)

		sendAccelPayload := make([][]byte, t.nprocs)
		offset := 0

		for r := 0; r < t.nprocs; r++ {
			n := blockLen[r]
			sendAccelPayload[r] = encodeAccelerations(t.bufPool, imported, offset, n, t.cfg.Dim)
			offset += n
		}

		recvAccelPayload, err := t.coll.SendRecv(sendAccelPayload)
		if err != nil {
			return err
		}

		for r := 0; r < t.nprocs; r++ {
			accs := decodeAccelerations(recvAccelPayload[r], t.cfg.Dim)
			pids := sentOrder[r]

			if len(accs) != len(pids) {
				return gtreeerr.Protocol("parallel walk: rank %d returned %d accelerations, expected %d", r, len(accs), len(pids))
			}

			for i, pid := range pids {
				pc.AddAcceleration(pid, accs[i])
			}

			if r == t.rank {
				t.bufPool.Put(sendAccelPayload[r])
			}
		}

		doneLocal := 0
		if localDone {
			doneLocal = 1
		}

		sum, err := t.coll.AllReduceSum(doneLocal)
		if err != nil {
			return err
		}

		if sum == t.nprocs {
			return nil
		}
	}
}

// runExportRound advances the export walk until it has buffered
// maxExport (particle, destination rank) pairs or every local particle
// has reached ROOT_SIBLING, whichever comes first. A TOP_TREE_LEAF
// owned by another rank that the splitter decides to open is recorded
// as an export instead of interacted with; every other node is
// handled exactly as the serial walk handles it.
func (t *Tree) runExportRound(ew *exportWalker, interaction Interaction, splitter Splitter, maxExport int) ([]exportPair, bool) {
	var pairs []exportPair

	for len(pairs) < maxExport {
		if !ew.active {
			if !interaction.Advance() {
				return pairs, true
			}

			splitter.Focus(interaction.Current())
			ew.index = t.root
			ew.active = true
		}

		pid := interaction.Current()

		for ew.index != RootSibling {
			n := t.at(ew.index)

			switch {
			case n.Flags&TopTreeLeafRemote != 0:
				if splitter.Split(n) {
					row := t.remote[n.RemoteRow]
					pairs = append(pairs, exportPair{pid: pid, rank: row.proc, leaf: row.mapIndex})
					ew.index = n.NextSibling

					if len(pairs) >= maxExport {
						return pairs, false
					}
				} else {
					interaction.Interact(n)
					ew.index = n.NextSibling
				}

			case n.Flags&Leaf != 0:
				interaction.Interact(n)
				ew.index = n.NextSibling

			default:
				if splitter.Split(n) {
					ew.index = n.FirstChild
				} else {
					interaction.Interact(n)
					ew.index = n.NextSibling
				}
			}
		}

		ew.active = false
	}

	return pairs, false
}

// runImportWalk evaluates every received particle against the local
// subtree beneath the top-tree leaf that triggered its export. It
// starts at that leaf's pool index directly -- carried on the wire as
// part of the particle's export record, since the leaf the particle's
// own SFC key resolves to is the sender's partition, not the
// destination's -- rather than at ROOT, and stops as soon as the
// thread would carry it back out past that leaf's own next_sibling:
// anything outside that boundary was already accounted for by the
// sending rank's own export walk, using the same globally synchronized
// top-tree moments this rank would have computed identically.
func (t *Tree) runImportWalk(imported *importContainer) {
	splitter := t.splitterForSplit()
	splitter.Bind(imported)

	interaction := t.newInteraction()
	interaction.Bind(imported)

	for interaction.Advance() {
		pid := interaction.Current()
		splitter.Focus(pid)

		start := imported.leafAt(pid)
		stopAt := t.at(start).NextSibling
		index := start

		for index != stopAt && index != RootSibling {
			n := t.at(index)

			if n.Flags&Leaf != 0 {
				interaction.Interact(n)
				index = n.NextSibling

				continue
			}

			if splitter.Split(n) {
				index = n.FirstChild
			} else {
				interaction.Interact(n)
				index = n.NextSibling
			}
		}
	}
}

// importContainer holds one round's received foreign particles: a
// minimal ParticleContainer good enough to drive the same Splitter/
// Interaction kernels the local walk uses.
type importContainer struct {
	dim  int
	rows []importRow
}

type importRow struct {
	pos   [maxDim]float64
	mass  float64
	key   uint64
	leaf  int32
	accel [maxDim]float64
}

func newImportContainer(dim int) *importContainer { return &importContainer{dim: dim} }

func (c *importContainer) add(pos [maxDim]float64, mass float64, key uint64, leaf int32) {
	c.rows = append(c.rows, importRow{pos: pos, mass: mass, key: key, leaf: leaf})
}

func (c *importContainer) Len() int                 { return len(c.rows) }
func (c *importContainer) Position(i int) []float64 { return c.rows[i].pos[:c.dim] }
func (c *importContainer) Mass(i int) float64       { return c.rows[i].mass }
func (c *importContainer) TagAt(i int) Tag          { return Real }
func (c *importContainer) Key(i int) uint64         { return c.rows[i].key }

// leafAt returns the destination top-tree leaf's pool index the
// export walk recorded for row i -- the shared, cross-rank-identical
// index the import walk resumes at.
func (c *importContainer) leafAt(i int) int32 { return c.rows[i].leaf }

func (c *importContainer) AddAcceleration(i int, delta []float64) {
	for k := 0; k < c.dim; k++ {
		c.rows[i].accel[k] += delta[k]
	}
}

func (c *importContainer) ZeroAcceleration(i int) {
	for k := 0; k < c.dim; k++ {
		c.rows[i].accel[k] = 0
	}
}

func encodeCount(bp *transport.BytePool, n int) []byte {
	buf := bp.Get(4)[:4]
	binary.LittleEndian.PutUint32(buf, uint32(n))

	return buf
}

func decodeCount(buf []byte) int {
	if len(buf) < 4 {
		return 0
	}

	return int(binary.LittleEndian.Uint32(buf))
}

type particleRow struct {
	pos  [maxDim]float64
	mass float64
	key  uint64
	leaf int32
}

// particleStride is key(8) + mass(8) + pos(dim*8) + leaf(4): the
// destination top-tree leaf's pool index rides along with every
// exported particle so the receiving rank's import walk can resume
// exactly there instead of re-deriving a leaf from the particle's own
// (sender-partition) SFC key.
func particleStride(dim int) int { return 16 + dim*8 + 4 }

func encodeParticles(bp *transport.BytePool, pc ParticleContainer, pids []int, leaves []int32, dim int) []byte {
	stride := particleStride(dim)
	n := len(pids) * stride
	buf := bp.Get(n)[:n]

	for i, pid := range pids {
		off := i * stride
		binary.LittleEndian.PutUint64(buf[off:], pc.Key(pid))
		binary.LittleEndian.PutUint64(buf[off+8:], math.Float64bits(pc.Mass(pid)))

		pos := pc.Position(pid)
		for k := 0; k < dim; k++ {
			binary.LittleEndian.PutUint64(buf[off+16+k*8:], math.Float64bits(pos[k]))
		}

		binary.LittleEndian.PutUint32(buf[off+16+dim*8:], uint32(leaves[i]))
	}

	return buf
}

func decodeParticles(buf []byte, dim int) []particleRow {
	stride := particleStride(dim)
	if stride == 0 || len(buf)%stride != 0 {
		return nil
	}

	rows := make([]particleRow, len(buf)/stride)

	for i := range rows {
		off := i * stride
		rows[i].key = binary.LittleEndian.Uint64(buf[off:])
		rows[i].mass = math.Float64frombits(binary.LittleEndian.Uint64(buf[off+8:]))

		for k := 0; k < dim; k++ {
			rows[i].pos[k] = math.Float64frombits(binary.LittleEndian.Uint64(buf[off+16+k*8:]))
		}

		rows[i].leaf = int32(binary.LittleEndian.Uint32(buf[off+16+dim*8:]))
	}

	return rows
}

func encodeAccelerations(bp *transport.BytePool, c *importContainer, offset, n, dim int) []byte {
	stride := dim * 8
	total := n * stride
	buf := bp.Get(total)[:total]

	for i := 0; i < n; i++ {
		off := i * stride
		row := c.rows[offset+i]

		for k := 0; k < dim; k++ {
			binary.LittleEndian.PutUint64(buf[off+k*8:], math.Float64bits(row.accel[k]))
		}
	}

	return buf
}

func decodeAccelerations(buf []byte, dim int) [][]float64 {
	stride := dim * 8
	if stride == 0 || len(buf)%stride != 0 {
		return nil
	}

	out := make([][]float64, len(buf)/stride)

	for i := range out {
		off := i * stride
		a := make([]float64, dim)

		for k := 0; k < dim; k++ {
			a[k] = math.Float64frombits(binary.LittleEndian.Uint64(buf[off+k*8:]))
		}

		out[i] = a
	}

	return out
}

package gravtree

import (
	"encoding/binary"
	"math"

	"github.com/gravtree/gravtree/internal/gtreeerr"
)

// remoteRow is one row of the Remote-Node Table: the pool node a
// top-tree leaf maps to, its owning rank, and (once the moment
// exchange has run) its authoritative mass/center of mass.
type remoteRow struct {
	mapIndex int32
	proc     int
	mass     float64
	com      [maxDim]float64
}

// topLeafFor resolves an SFC key to the pool index of the gravity-tree
// node that corresponds to its owning top-tree leaf, translating the
// load-balance tree's own leaf index through the Remote-Node Table.
func (t *Tree) topLeafFor(key uint64) (int32, error) {
	leaf := t.lb.FindLeaf(key)

	row, ok := t.leafRowByArrayIndex[leaf.ArrayIndex]
	if !ok {
		return 0, gtreeerr.Protocol("no top-tree leaf row for load-balance array index %d", leaf.ArrayIndex)
	}

	return t.remote[row].mapIndex, nil
}

// exchangeRemoteMoments implements the remote-moment all-gather: every
// rank contributes the rows it owns (already correct, since the SFC
// partition gives each owned leaf's local moments exactly the global
// moments for that leaf), all ranks receive every other rank's rows,
// and the resulting table is written back into the pool before a
// final bottom-up refresh.
func (t *Tree) exchangeRemoteMoments() error {
	dim := t.cfg.Dim

	for i := range t.remote {
		if t.remote[i].proc == t.rank {
			n := t.at(t.remote[i].mapIndex)
			t.remote[i].mass = n.Mass
			t.remote[i].com = n.COM
		}
	}

	owned := make([]remoteRow, 0, len(t.remote))
	for _, r := range t.remote {
		if r.proc == t.rank {
			owned = append(owned, r)
		}
	}

	payload := encodeRemoteRows(owned, dim)

	gathered, err := t.coll.AllGather(payload)
	if err != nil {
		return err
	}

	for r := 0; r < t.nprocs; r++ {
		rows := decodeRemoteRows(gathered[r], dim)

		idx := 0

		for i := range t.remote {
			if t.remote[i].proc != r {
				continue
			}

			if idx >= len(rows) {
				return gtreeerr.Protocol("remote moment exchange: rank %d sent %d rows, table expects more", r, len(rows))
			}

			t.remote[i].mass = rows[idx].mass
			t.remote[i].com = rows[idx].com
			idx++
		}

		if idx != len(rows) {
			return gtreeerr.Protocol("remote moment exchange: rank %d sent %d rows, table expects %d", r, len(rows), idx)
		}
	}

	for _, row := range t.remote {
		if row.proc != t.rank {
			n := t.at(row.mapIndex)
			n.Mass = row.mass
			n.COM = row.com
		}
	}

	t.updateRemoteMoments(t.root)

	return nil
}

// encodeRemoteRows packs rows as a flat little-endian buffer:
// mass (8 bytes) followed by dim*8 bytes of com per row, in order.
func encodeRemoteRows(rows []remoteRow, dim int) []byte {
	stride := 8 + dim*8
	buf := make([]byte, len(rows)*stride)

	for i, r := range rows {
		off := i * stride
		binary.LittleEndian.PutUint64(buf[off:], math.Float64bits(r.mass))

		for k := 0; k < dim; k++ {
			binary.LittleEndian.PutUint64(buf[off+8+k*8:], math.Float64bits(r.com[k]))
		}
	}

	return buf
}

func decodeRemoteRows(buf []byte, dim int) []remoteRow {
	stride := 8 + dim*8
	if stride == 0 || len(buf)%stride != 0 {
		return nil
	}

	n := len(buf) / stride
	rows := make([]remoteRow, n)

	for i := range rows {
		off := i * stride
		rows[i].mass = math.Float64frombits(binary.LittleEndian.Uint64(buf[off:]))

		for k := 0; k < dim; k++ {
			rows[i].com[k] = math.Float64frombits(binary.LittleEndian.Uint64(buf[off+8+k*8:]))
		}
	}

	return rows
}

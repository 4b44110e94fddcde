// Package dacs implements the DACS (aggregate custody signal) admin-record
// body: a base CID followed by alternating "number acknowledged / number
// skipped" SDNV run-length fills, per spec.md §4.7.
package dacs

import (
	"iter"

	"github.com/dtn7/bpv6engine/internal/sdnv"
	"github.com/dtn7/bpv6engine/pkg/bpevent"
)

// AckTree is a read-only view over a set of acknowledged CIDs stored as a
// tree of intervals. The tree's own insert/rebalance logic is out of scope
// (spec.md §1); this is the minimal contract populate_ack needs to walk it.
//
// Intervals yields ascending, non-overlapping (baseCID, count) runs: count
// consecutive CIDs starting at baseCID are all acknowledged.
type AckTree interface {
	Intervals() iter.Seq2[uint64, uint64]
}

// sortedAckTree is the one concrete AckTree the engine ships: a sorted slice
// of (base, count) runs, built directly from spec.md §4.7's fill-pair
// semantics since no pack repo carries a run-length interval tree to ground
// a richer structure on.
type sortedAckTree struct {
	runs [][2]uint64 // {base, count}, ascending, non-overlapping
}

// NewSortedAckTree builds an AckTree from already-sorted, non-overlapping
// (base, count) runs.
func NewSortedAckTree(runs [][2]uint64) AckTree {
	return &sortedAckTree{runs: runs}
}

func (s *sortedAckTree) Intervals() iter.Seq2[uint64, uint64] {
	return func(yield func(uint64, uint64) bool) {
		for _, r := range s.runs {
			if !yield(r[0], r[1]) {
				return
			}
		}
	}
}

// PopulateAck serializes tree's acknowledged-CID runs into buf as a base CID
// SDNV followed by alternating acknowledged-count/skipped-count SDNV fills,
// capped at maxFills fill pairs. Returns the number of bytes written.
//
// Wire shape: base, count_1, skip_1, count_2, skip_2, ..., count_N (no
// trailing skip after the last run — the buffer simply ends). A skip field
// is always emitted between two runs, including a zero-valued one, so a
// reader scanning sequentially never has to guess whether the next field is
// a count or a skip: it alternates starting with count right after base.
func PopulateAck(buf []byte, maxFills int, tree AckTree) (n int, flags bpevent.Flags) {
	idx := 0
	first := true
	var cursor uint64
	fills := 0

	for base, count := range tree.Intervals() {
		if fills >= maxFills {
			break
		}
		if first {
			baseField := sdnv.Field{Value: base, Index: idx}
			next, fl := sdnv.Write(buf, &baseField)
			flags |= fl
			idx = next
			cursor = base
			first = false
		} else {
			skipField := sdnv.Field{Value: base - cursor, Index: idx}
			next, fl := sdnv.Write(buf, &skipField)
			flags |= fl
			idx = next
		}

		countField := sdnv.Field{Value: count, Index: idx}
		next, fl := sdnv.Write(buf, &countField)
		flags |= fl
		idx = next

		cursor = base + count
		fills++
	}

	return idx, flags
}

// RemoveFunc is the caller-supplied per-CID custody-removal callback invoked
// once for every CID named by an acknowledged fill.
type RemoveFunc func(parm any, cid uint64) bpevent.Code

// ReceiveAck parses buf as a DACS body and invokes remove for every
// acknowledged CID, tallying how many were actually removed.
func ReceiveAck(buf []byte, remove RemoveFunc, parm any) (numAcked int, flags bpevent.Flags) {
	if len(buf) == 0 {
		return 0, flags
	}

	idx := 0
	baseField := sdnv.Field{Index: idx}
	next, fl := sdnv.Read(buf, &baseField)
	flags |= fl
	idx = next
	cursor := baseField.Value

	first := true
	for idx < len(buf) {
		if !first {
			skipField := sdnv.Field{Index: idx}
			next, fl := sdnv.Read(buf, &skipField)
			flags |= fl
			idx = next
			cursor += skipField.Value
			if idx >= len(buf) {
				break
			}
		}
		first = false

		countField := sdnv.Field{Index: idx}
		next, fl := sdnv.Read(buf, &countField)
		flags |= fl
		idx = next

		for i := uint64(0); i < countField.Value; i++ {
			if remove(parm, cursor+i) == bpevent.Success {
				numAcked++
			}
		}
		cursor += countField.Value
	}

	return numAcked, flags
}

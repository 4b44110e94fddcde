// Package custody implements the active-bundle table (CBuf): a
// fixed-capacity, CID-indexed circular table recording which custody IDs
// are currently in flight, used to drive retransmission and ACS ingest.
package custody

import "github.com/dtn7/bpv6engine/pkg/bpevent"

// VacantStorageID marks an empty slot, spec.md §3.
const VacantStorageID = ^uint64(0)

// Record is one active-bundle record: where the bundle is stored, when it
// should be retransmitted, and the CID it was inserted under.
type Record struct {
	StorageID      uint64
	RetransmitTime int64
	CID            uint64
}

func (r Record) vacant() bool { return r.StorageID == VacantStorageID }

// Table is the fixed-capacity active-bundle table, spec.md §3/§4.6. It is
// not internally synchronized — the caller's channel lock (pkg/bpos.NamedLock)
// guards every mutating call, matching spec.md §5's "mutable by at most one
// thread at a time, protected by its owning channel's lock".
type Table struct {
	slots      []Record
	numEntries int
	oldestCID  uint64
	newestCID  uint64
}

// NewTable returns an empty table of the given capacity, every slot vacant.
func NewTable(capacity int) *Table {
	t := &Table{slots: make([]Record, capacity)}
	for i := range t.slots {
		t.slots[i].StorageID = VacantStorageID
	}
	return t
}

func (t *Table) slot(cid uint64) int {
	return int(cid % uint64(len(t.slots)))
}

// Add inserts record at slot `record.CID mod capacity`.
//
// If overwrite is false and the slot is occupied by a record with the same
// CID, it returns Duplicate and leaves the table unchanged. Otherwise it
// writes the slot, increments Count if the slot was vacant (replacing an
// occupied slot leaves Count as it is), and — only when overwrite is false —
// advances NewestCID to record.CID+1, per spec.md §4.6.
func (t *Table) Add(record Record, overwrite bool) bpevent.Code {
	i := t.slot(record.CID)
	existing := t.slots[i]
	if !overwrite && !existing.vacant() && existing.CID == record.CID {
		return bpevent.Duplicate
	}
	wasVacant := existing.vacant()
	t.slots[i] = record
	if wasVacant {
		t.numEntries++
	}
	if !overwrite {
		t.newestCID = record.CID + 1
	}
	return bpevent.Success
}

// Next returns the oldest non-vacant record, advancing OldestCID past any
// vacant slots it skips. Returns Timeout if the table is empty.
func (t *Table) Next() (Record, bpevent.Code) {
	if t.numEntries == 0 {
		return Record{}, bpevent.Timeout
	}
	for cid := t.oldestCID; cid != t.newestCID; cid++ {
		i := t.slot(cid)
		if !t.slots[i].vacant() {
			t.oldestCID = cid
			return t.slots[i], bpevent.Success
		}
		t.oldestCID = cid + 1
	}
	return Record{}, bpevent.Timeout
}

// Remove erases the record at `cid mod capacity`. The slot must be
// non-vacant and hold exactly this CID.
func (t *Table) Remove(cid uint64) (Record, bpevent.Code) {
	i := t.slot(cid)
	rec := t.slots[i]
	if rec.vacant() || rec.CID != cid {
		return Record{}, bpevent.ErrGeneric
	}
	t.slots[i] = Record{StorageID: VacantStorageID}
	t.numEntries--
	return rec, bpevent.Success
}

// Available reports whether the slot cid would land in is currently vacant.
func (t *Table) Available(cid uint64) bool {
	return t.slots[t.slot(cid)].vacant()
}

// Count returns the number of occupied slots.
func (t *Table) Count() int { return t.numEntries }

// OldestCID and NewestCID expose the table's monotone bounds, mainly for
// tests and diagnostics.
func (t *Table) OldestCID() uint64 { return t.oldestCID }
func (t *Table) NewestCID() uint64 { return t.newestCID }

// Capacity returns the table's fixed slot count.
func (t *Table) Capacity() int { return len(t.slots) }

// Slots returns a copy of the underlying slot array, for diagnostics and
// invariant-checking tests.
func (t *Table) Slots() []Record {
	out := make([]Record, len(t.slots))
	copy(out, t.slots)
	return out
}

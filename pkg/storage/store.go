// Package storage implements the storage collaborator spec.md §6 defines:
// a create/delete contract over opaque byte payloads, with a bounded
// in-memory queue and a file-backed implementation.
package storage

import "time"

// Store is the storage collaborator interface, spec.md §6: "create(parm,
// is_record, payload_bytes, size, timeout) -> status (called once per
// fragment); delete(parm, cid, flags) -> status (called per ACS-acknowledged
// CID)."
type Store interface {
	// Create enqueues one bundle fragment (or admin record, when isRecord is
	// true) for the channel identified by parm, blocking up to timeout if
	// the backend is momentarily full.
	Create(parm any, isRecord bool, payload []byte, timeout time.Duration) error
	// Delete removes the fragment stored under cid for the channel
	// identified by parm, invoked once per CID an ACS record acknowledges.
	Delete(parm any, cid uint64, flags uint32) error
}

// Package send implements the send path, spec.md §4.4: decide fragmentation,
// stamp creation time and expiration, recompute the BIB CRC per fragment,
// and hand each fragment to the storage collaborator.
package send

import (
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/dtn7/bpv6engine/internal/sdnv"
	"github.com/dtn7/bpv6engine/pkg/block"
	"github.com/dtn7/bpv6engine/pkg/bpevent"
	"github.com/dtn7/bpv6engine/pkg/bpos"
	"github.com/dtn7/bpv6engine/pkg/bundle"
	"github.com/dtn7/bpv6engine/pkg/metrics"
	"github.com/dtn7/bpv6engine/pkg/storage"
)

// Result reports what SendBundle actually did, for callers that need to
// record bookkeeping (e.g. inserting the active-bundle table record under
// the CID the caller already holds).
type Result struct {
	HeaderSize int
	BundleSize int
	Fragments  int
	ExpireTime uint64
}

// SendBundle fragments payload against b.Attributes.MaxBundleLength, stamps
// the primary block's creation time/sequence when b.Prebuilt, and enqueues
// each fragment with store under parm. b must already have gone through
// bundle.Build. cid is the custody ID the caller has already assigned (from
// its own persistent per-channel counter); when b carries a CTEB, cid is
// stamped into it in place via b.CTEBOffset once the bundle's final,
// possibly-fragmented shape is settled. cid is ignored when b.HasCTEB is
// false.
func SendBundle(rt *bpos.Runtime, b *bundle.InFlight, payload []byte, store storage.Store, parm any, timeout time.Duration, sink metrics.Sink, cid uint64) (Result, bpevent.Flags) {
	var flags bpevent.Flags
	var result Result

	maxPaysize := b.Attributes.MaxBundleLength - b.HeaderLen
	if maxPaysize <= 0 {
		flags.Set(bpevent.BundleTooLarge)
		log.WithField("header_size", b.HeaderLen).Warn("bundle header exceeds max bundle length")
		return result, flags
	}

	if len(payload) > maxPaysize {
		if !b.Attributes.AllowFragmentation {
			flags.Set(bpevent.BundleTooLarge)
			log.WithFields(log.Fields{"payload": len(payload), "max": maxPaysize}).
				Warn("payload exceeds max bundle length and fragmentation is not allowed")
			return result, flags
		}
		if !b.PRI.IsFragment() {
			// The header was laid down before fragmentation was known to be
			// necessary; re-lay it with the is-fragment bit set so the
			// fragoffset/paylen SDNVs get reserved space ahead of the
			// CTEB/BIB/forwarded extensions, instead of stomping on them.
			wasPrebuilt := b.Prebuilt
			pri := b.PRI
			pri.SetFlag(block.PCFIsFragment, true)
			flags |= bundle.Build(b, &pri, nil)
			b.Prebuilt = wasPrebuilt
			if flags.Has(bpevent.BundleTooLarge) {
				return result, flags
			}
			maxPaysize = b.Attributes.MaxBundleLength - b.HeaderLen
			if maxPaysize <= 0 {
				flags.Set(bpevent.BundleTooLarge)
				return result, flags
			}
		}
	}

	// The CTEB, if any, was laid down by bundle.Build with a placeholder
	// CID (possibly re-laid once already, during the fragmentation check
	// above); now that its final offset is settled, stamp the real CID in
	// place, spec.md §4.3 step 3's "location of the CID SDNV ... for later
	// in-place rewrite".
	if b.HasCTEB {
		b.CTEB.CID.Value = cid
		sdnv.Mask(&b.CTEB.CID)
		if _, fl := block.WriteCanonicalCTEB(b.Header[b.CTEBOffset:], &b.CTEB); fl != 0 {
			flags |= fl
		}
	}

	lifetime := b.PRI.Lifetime.Value
	if b.Prebuilt {
		seconds, err := rt.Clock.Now()
		if err != nil {
			flags.Set(bpevent.UnreliableTime)
			log.WithError(err).Warn("unreliable clock reading, falling back to best-effort lifetime")
			b.PRI.CreateSec.Value = block.UnknownCreationTime
			lifetime = block.BestEffortLifetime
			b.PRI.Lifetime.Value = lifetime
			sdnv.Mask(&b.PRI.Lifetime)
			if _, fl := sdnv.Write(b.Header[:], &b.PRI.Lifetime); fl != 0 {
				flags |= fl
			}
		} else {
			b.PRI.CreateSec.Value = uint64(seconds)
		}
		sdnv.Mask(&b.PRI.CreateSec)
		if _, fl := sdnv.Write(b.Header[:], &b.PRI.CreateSec); fl != 0 {
			flags |= fl
		}
		if _, fl := sdnv.Write(b.Header[:], &b.PRI.CreateSeq); fl != 0 {
			flags |= fl
		}
	}

	switch b.PRI.CreateSec.Value {
	case block.TTLCreationTime:
		result.ExpireTime = block.TTLCreationTime
	case block.UnknownCreationTime:
		result.ExpireTime = block.UnknownCreationTime
	default:
		exprtime := b.PRI.CreateSec.Value + lifetime
		if exprtime < b.PRI.CreateSec.Value {
			flags.Set(bpevent.SDNVOverflow)
			log.Warn("expiration time calculation rolled over")
			exprtime = block.MaxEncodedValue
		}
		result.ExpireTime = exprtime
	}

	payloadOffset := 0
	for payloadOffset < len(payload) {
		remaining := len(payload) - payloadOffset
		fragSize := maxPaysize
		if remaining < fragSize {
			fragSize = remaining
		}
		fragment := payload[payloadOffset : payloadOffset+fragSize]

		if b.PRI.IsFragment() {
			b.PRI.FragOffset.Value = uint64(payloadOffset)
			b.PRI.PayLen.Value = uint64(len(payload))
			if _, fl := sdnv.Write(b.Header[:], &b.PRI.FragOffset); fl != 0 {
				flags |= fl
			}
			if _, fl := sdnv.Write(b.Header[:], &b.PRI.PayLen); fl != 0 {
				flags |= fl
			}
		}

		if b.HasBIB {
			flags |= block.UpdateBIB(&b.BIB, fragment)
			if _, fl := block.WriteCanonicalBIB(b.Header[b.BIBOffset:], &b.BIB); fl != 0 {
				flags |= fl
			}
		}

		// Only the payload block's header (type, flags, blklen) goes into
		// b.Header; the fragment bytes are handed to storage separately.
		pay := block.CanonicalPAYLayout()
		n, fl := block.WriteCanonicalPAY(b.Header[b.PayOffset:], &pay)
		flags |= fl
		if fl.Has(bpevent.SDNVIncomplete) {
			flags.Set(bpevent.BundleTooLarge)
			return result, flags
		}
		pay.BlkLen.Value = uint64(fragSize)
		if _, fl := sdnv.Write(b.Header[b.PayOffset:], &pay.BlkLen); fl != 0 {
			flags |= fl
		}

		result.HeaderSize = b.PayOffset + n
		result.BundleSize = result.HeaderSize + fragSize

		if err := store.Create(parm, b.PRI.IsAdminRecord(), fragment, timeout); err != nil {
			flags.Set(bpevent.StoreFailure)
			log.WithError(err).WithField("offset", payloadOffset).Error("storage collaborator rejected fragment")
			return result, flags
		}
		sink.BundleSent()

		result.Fragments++
		payloadOffset += fragSize
	}

	if result.Fragments > 1 {
		sink.BundleFragmented(result.Fragments)
	}

	if b.Prebuilt {
		b.PRI.CreateSeq.Value++
		sdnv.Mask(&b.PRI.CreateSeq)
	}

	return result, flags
}

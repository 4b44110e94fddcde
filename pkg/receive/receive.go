// Package receive implements the receive path, spec.md §4.5: parse an
// inbound bundle, verify its BIB, compute the exclusion list of bytes that
// must not be copied into a forwarded header, and classify the bundle as
// forward / local-deliver / admin-record.
package receive

import (
	log "github.com/sirupsen/logrus"

	"github.com/dtn7/bpv6engine/internal/sdnv"
	"github.com/dtn7/bpv6engine/pkg/block"
	"github.com/dtn7/bpv6engine/pkg/bpevent"
	"github.com/dtn7/bpv6engine/pkg/bpos"
	"github.com/dtn7/bpv6engine/pkg/bundle"
	"github.com/dtn7/bpv6engine/pkg/route"
)

// exclusionDropThreshold is the point at which the exclusion list (capacity
// 16) is treated as full and the bundle is dropped, spec.md §4.5 step 3's
// "≥14 entries used".
const exclusionDropThreshold = 14

// CustodyInfo exposes a CTEB's custodian identity, returned alongside
// PendingForward/PendingAcceptance so the caller can drive the
// active-bundle table.
type CustodyInfo struct {
	CID     uint64
	CstNode uint64
	CstServ uint64
}

// Forward carries the rebuilt outbound bundle produced when the receive
// path decides to forward rather than deliver.
type Forward struct {
	Bundle  *bundle.InFlight
	Payload []byte
}

// Result is the outcome of ReceiveBundle.
type Result struct {
	Code    bpevent.Code
	Payload []byte

	HasCustody bool
	Custody    CustodyInfo

	Forward *Forward

	// SourceNode/SourceService are populated on PendingAcknowledgment, taken
	// from the PRI's custody fields (the ACS's claimed source).
	SourceNode    uint64
	SourceService uint64
}

type byteRange struct{ start, end int }

func excluded(ranges []byteRange, at int) bool {
	for _, r := range ranges {
		if at >= r.start && at < r.end {
			return true
		}
	}
	return false
}

func exprtimeOf(pri *block.Primary, flags *bpevent.Flags) uint64 {
	switch pri.CreateSec.Value {
	case block.TTLCreationTime:
		return block.TTLCreationTime
	case block.UnknownCreationTime:
		return block.UnknownCreationTime
	default:
		exprtime := pri.CreateSec.Value + pri.Lifetime.Value
		if exprtime < pri.CreateSec.Value {
			flags.Set(bpevent.SDNVOverflow)
			return block.MaxEncodedValue
		}
		return exprtime
	}
}

// rewriteCTEBForForward re-emits a CTEB carrying the same CID but the local
// node/service as custodian, for splicing into the forwarded header in
// place of the original bytes.
func rewriteCTEBForForward(original block.CTEB, local route.Endpoint) []byte {
	c := block.CanonicalCTEBLayout()
	c.Flags.Value = original.Flags.Value
	c.CID.Value = original.CID.Value
	c.CstNode, c.CstServ = local.Node, local.Service

	scratch := make([]byte, block.HeaderBufSize)
	n, _ := block.WriteCanonicalCTEB(scratch, &c)
	return scratch[:n]
}

// buildForwardedHeader concatenates every byte of buf not covered by
// exclusions, splicing in a freshly rewritten CTEB (custodian fields
// patched to local) in place of the original one.
func buildForwardedHeader(buf []byte, exclusions []byteRange, hasCTEB bool, ctebRange byteRange, cteb block.CTEB, local route.Endpoint) []byte {
	var out []byte
	i := 0
	for i < len(buf) {
		if hasCTEB && i == ctebRange.start {
			out = append(out, rewriteCTEBForForward(cteb, local)...)
			i = ctebRange.end
			continue
		}
		if excluded(exclusions, i) {
			i++
			continue
		}
		out = append(out, buf[i])
		i++
	}
	return out
}

// ReceiveBundle parses one inbound bundle nominally addressed to local and
// returns its disposition: forward, local delivery, an ACS to ingest, or a
// fatal code. localAttrs seeds the attributes of any rebuilt forwarded
// bundle.
func ReceiveBundle(rt *bpos.Runtime, local route.Endpoint, localAttrs route.Attributes, buf []byte) (Result, bpevent.Flags) {
	var flags bpevent.Flags
	var result Result

	var pri block.Primary
	n, fl := block.ReadAutoPrimary(buf, &pri)
	flags |= fl
	if fl.Has(bpevent.FailedToParse) || fl.Has(bpevent.SDNVIncomplete) {
		log.Warn("receive: failed to parse primary block")
		result.Code = bpevent.ErrGeneric
		return result, flags
	}
	if pri.DictLen.Value != 0 {
		flags.Set(bpevent.NonCompliant)
		log.Warn("receive: bundle carries a dictionary; only the compressed-EID profile is supported")
		result.Code = bpevent.ErrGeneric
		return result, flags
	}

	exclusions := []byteRange{{0, n}}

	exprtime := exprtimeOf(&pri, &flags)
	if seconds, err := rt.Clock.Now(); err == nil &&
		exprtime != block.UnknownCreationTime && exprtime != block.TTLCreationTime &&
		uint64(seconds) > exprtime {
		result.Code = bpevent.PendingExpiration
		return result, flags
	}

	var hasCTEB bool
	var cteb block.CTEB
	var ctebRange byteRange

	var hasBIB bool
	var bib block.BIB

	var payload []byte
	idx := n

scan:
	for idx < len(buf) {
		switch buf[idx] {
		case block.TypeBIB:
			start := idx
			consumed, fl := block.ReadAutoBIB(buf[idx:], &bib)
			flags |= fl
			if fl.Has(bpevent.FailedToParse) {
				result.Code = bpevent.ErrGeneric
				return result, flags
			}
			hasBIB = true
			if len(exclusions) >= exclusionDropThreshold {
				flags.Set(bpevent.NonCompliant)
				result.Code = bpevent.ErrGeneric
				return result, flags
			}
			next := start + consumed
			exclusions = append(exclusions, byteRange{start, next})
			idx = next

		case block.TypeCTEB:
			start := idx
			consumed, fl := block.ReadAutoCTEB(buf[idx:], &cteb)
			flags |= fl
			if fl.Has(bpevent.FailedToParse) {
				result.Code = bpevent.ErrGeneric
				return result, flags
			}
			hasCTEB = true
			next := start + consumed
			ctebRange = byteRange{start, next}
			idx = next

		case block.TypePayload:
			start := idx
			var pay block.PAY
			consumed, fl := block.ReadAutoPAY(buf[idx:], &pay)
			flags |= fl
			if fl.Has(bpevent.FailedToParse) {
				result.Code = bpevent.ErrGeneric
				return result, flags
			}
			payload = append([]byte(nil), pay.Payload...)
			if len(exclusions) >= exclusionDropThreshold {
				flags.Set(bpevent.NonCompliant)
				result.Code = bpevent.ErrGeneric
				return result, flags
			}
			next := start + consumed
			exclusions = append(exclusions, byteRange{start, next})
			idx = next
			break scan

		default:
			start := idx
			extFlags := sdnv.Field{Index: idx + 1}
			next, fl := sdnv.Read(buf, &extFlags)
			flags |= fl
			extLen := sdnv.Field{Index: next}
			next, fl = sdnv.Read(buf, &extLen)
			flags |= fl
			blockEnd := next + int(extLen.Value)
			if blockEnd > len(buf) {
				flags.Set(bpevent.FailedToParse)
				result.Code = bpevent.ErrGeneric
				return result, flags
			}

			switch {
			case extFlags.Value&block.BlockFlagDeleteBundleOnNoProc != 0:
				flags.Set(bpevent.Dropped)
				log.WithField("block_type", buf[start]).Info("dropping bundle: unrecognized block flagged delete-on-noproc")
				result.Code = bpevent.ErrGeneric
				return result, flags
			case extFlags.Value&block.BlockFlagDropBlockOnNoProc != 0:
				if len(exclusions) >= exclusionDropThreshold {
					flags.Set(bpevent.NonCompliant)
					result.Code = bpevent.ErrGeneric
					return result, flags
				}
				exclusions = append(exclusions, byteRange{start, blockEnd})
			default:
				flags.Set(bpevent.Incomplete)
				extFlags.Value |= block.BlockFlagForwardWithoutProc
				sdnv.Write(buf, &extFlags)
			}
			idx = blockEnd
		}
	}

	if hasBIB {
		flags |= block.VerifyBIB(&bib, payload)
		if flags.Has(bpevent.FailedIntegrityCheck) {
			result.Code = bpevent.ErrGeneric
			return result, flags
		}
	}

	result.Payload = payload

	switch {
	case pri.DstNode.Value != local.Node:
		forwardPri := pri
		if pri.CustodyRequested() {
			if !hasCTEB {
				flags.Set(bpevent.NonCompliant)
				log.Warn("receive: custody requested without a CTEB; only aggregate custody is supported")
				result.Code = bpevent.ErrGeneric
				return result, flags
			}
			forwardPri.RptNode.Value = 0
			forwardPri.RptServ.Value = 0
			forwardPri.CstNode.Value = local.Node
			forwardPri.CstServ.Value = local.Service
			result.HasCustody = true
			result.Custody = CustodyInfo{CID: cteb.CID.Value, CstNode: local.Node, CstServ: local.Service}
		}

		forwardedHeader := buildForwardedHeader(buf, exclusions, hasCTEB, ctebRange, cteb, local)

		fb := &bundle.InFlight{
			Route: route.Route{
				Local:  local,
				Remote: route.Endpoint{Node: forwardPri.DstNode.Value, Service: forwardPri.DstServ.Value},
			},
			Attributes: localAttrs,
		}
		flags |= bundle.Build(fb, &forwardPri, forwardedHeader)

		result.Forward = &Forward{Bundle: fb, Payload: payload}
		result.Code = bpevent.PendingForward
		return result, flags

	case pri.DstServ.Value != local.Service && pri.DstServ.Value != 0:
		flags.Set(bpevent.RouteNeeded)
		result.Code = bpevent.ErrGeneric
		return result, flags

	case pri.IsAdminRecord():
		if len(payload) < 1 {
			flags.Set(bpevent.FailedToParse)
			result.Code = bpevent.ErrGeneric
			return result, flags
		}
		switch payload[0] {
		case block.AdminRecordAggregateCustodySignal:
			result.SourceNode = pri.CstNode.Value
			result.SourceService = pri.CstServ.Value
			result.Code = bpevent.PendingAcknowledgment
			return result, flags
		case block.AdminRecordCustodySignal, block.AdminRecordStatusReport:
			flags.Set(bpevent.NonCompliant)
			result.Code = bpevent.ErrGeneric
			return result, flags
		default:
			flags.Set(bpevent.UnknownRec)
			result.Code = bpevent.ErrGeneric
			return result, flags
		}

	default:
		if pri.CustodyRequested() {
			if !hasCTEB {
				flags.Set(bpevent.NonCompliant)
				result.Code = bpevent.ErrGeneric
				return result, flags
			}
			result.HasCustody = true
			result.Custody = CustodyInfo{CID: cteb.CID.Value, CstNode: pri.CstNode.Value, CstServ: pri.CstServ.Value}
		}
		result.Code = bpevent.PendingAcceptance
		return result, flags
	}
}

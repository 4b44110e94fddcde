// Package bundle lays down the primary+optional CTEB+optional BIB+forwarded
// extensions+payload header into a fixed-size header buffer and remembers
// field offsets so the send path can rewrite individual fields in place.
package bundle

import (
	"github.com/dtn7/bpv6engine/pkg/block"
	"github.com/dtn7/bpv6engine/pkg/bpevent"
	"github.com/dtn7/bpv6engine/pkg/route"
)

// InFlight is the bundle-in-flight record, spec.md §3: destination route,
// attributes, prebuilt flag, a fixed-size header buffer, and the
// materialized block structures kept around for later in-place rewrite.
type InFlight struct {
	Route      route.Route
	Attributes route.Attributes

	// Prebuilt is true when this bundle was seeded locally (creation time
	// and sequence still need to be filled in at send time), false when it
	// carries a forwarded PRI verbatim from another custodian.
	Prebuilt bool

	Header    [block.HeaderBufSize]byte
	HeaderLen int

	PRI     block.Primary
	HasCTEB bool
	CTEB    block.CTEB
	HasBIB  bool
	BIB     block.BIB

	CTEBOffset int
	BIBOffset  int
	PayOffset  int

	// ForwardedHeader is the exclusion-complement bytes Build last appended
	// after the BIB/CTEB, retained so the send path can re-lay the header
	// (e.g. once it learns the bundle must fragment) without the caller
	// having to resupply it.
	ForwardedHeader []byte
}

// seedPrimary populates a canonical-layout PRI from the route and its
// attribute defaults. Creation time/sequence are left at zero — the send
// path fills them in, per spec.md §4.4.
func seedPrimary(r route.Route, attrs route.Attributes) block.Primary {
	p := block.CanonicalPrimaryLayout()
	p.Version = 6
	p.DstNode.Value = r.Remote.Node
	p.DstServ.Value = r.Remote.Service
	p.SrcNode.Value = r.Local.Node
	p.SrcServ.Value = r.Local.Service
	p.RptNode.Value = r.Local.Node
	p.RptServ.Value = r.Local.Service
	if attrs.RequestCustody {
		p.CstNode.Value = r.Local.Node
		p.CstServ.Value = r.Local.Service
	}
	p.Lifetime.Value = attrs.Lifetime
	p.PCF.Value = block.WithClassOfService(0, attrs.ClassOfService)
	p.SetFlag(block.PCFAllowFragmentation, attrs.AllowFragmentation)
	p.SetFlag(block.PCFCustodyRequested, attrs.RequestCustody)
	p.SetFlag(block.PCFIsAdminRecord, attrs.AdminRecord)
	return p
}

// Build lays the header buffer down per spec.md §4.3.
//
// priOverride is non-nil in two cases: the receive path's forwarding
// decision (the caller has already patched custody/report-to fields into
// it and wants it copied verbatim, with forwardedHeader carrying a CTEB
// already spliced in) and the send path's fragmentation re-lay (the same
// locally-sourced PRI with the is-fragment bit set, forwardedHeader nil).
// wasLocal disambiguates the two by consulting b.Prebuilt as it stood
// before this call, since priOverride's nilness alone conflates them.
func Build(b *InFlight, priOverride *block.Primary, forwardedHeader []byte) bpevent.Flags {
	var flags bpevent.Flags

	wasLocal := priOverride == nil || b.Prebuilt

	for i := range b.Header {
		b.Header[i] = 0
	}
	b.HeaderLen = 0
	b.CTEBOffset, b.BIBOffset, b.PayOffset = 0, 0, 0

	if forwardedHeader != nil {
		b.ForwardedHeader = append([]byte(nil), forwardedHeader...)
	}

	if priOverride != nil {
		b.PRI = *priOverride
		b.Prebuilt = false
	} else {
		b.PRI = seedPrimary(b.Route, b.Attributes)
		b.Prebuilt = true
	}

	n, fl := block.WriteCanonicalPrimary(b.Header[:], &b.PRI)
	flags |= fl
	if n > len(b.Header) {
		flags.Set(bpevent.BundleTooLarge)
		return flags
	}

	// On a true forward (wasLocal false) a CTEB, if any, has already been
	// folded into forwardedHeader by the receive path with its CID preserved
	// and custodian fields patched — synthesizing a fresh one here would
	// duplicate it and lose the original CID. A locally-sourced bundle gets
	// a fresh CTEB laid down here (re-laid with the same placeholder CID on
	// every fragmentation re-lay); the send path stamps the real CID into
	// it in place once the bundle's final shape is known.
	if wasLocal && b.PRI.CustodyRequested() {
		b.HasCTEB = true
		b.CTEB = block.CanonicalCTEBLayout()
		b.CTEB.CstNode, b.CTEB.CstServ = b.PRI.CstNode.Value, b.PRI.CstServ.Value
		// CTEB's field offsets are relative to its own sub-slice of Header;
		// CTEBOffset records where that sub-slice begins in the full buffer.
		n2, fl2 := block.WriteCanonicalCTEB(b.Header[n:], &b.CTEB)
		flags |= fl2
		b.CTEBOffset = n
		n += n2
		if n > len(b.Header) {
			flags.Set(bpevent.BundleTooLarge)
			return flags
		}
	} else {
		b.HasCTEB = false
		b.CTEBOffset = 0
	}

	if b.Attributes.IntegrityCheck {
		b.HasBIB = true
		b.BIB = block.CanonicalBIBLayout()
		b.BIB.CipherSuiteID.Value = b.Attributes.CipherSuite
		// Reserve space with a placeholder result of the cipher suite's real
		// byte width; the send path later calls block.UpdateBIB with the
		// actual fragment payload and rewrites just this sub-slice, reusing
		// the same field widths so no downstream offset moves.
		flags |= block.UpdateBIB(&b.BIB, nil)
		n2, fl2 := block.WriteCanonicalBIB(b.Header[n:], &b.BIB)
		flags |= fl2
		b.BIBOffset = n
		n += n2
		if n > len(b.Header) {
			flags.Set(bpevent.BundleTooLarge)
			return flags
		}
	} else {
		b.HasBIB = false
		b.BIBOffset = 0
	}

	if len(b.ForwardedHeader) > 0 {
		if n+len(b.ForwardedHeader) > len(b.Header) {
			flags.Set(bpevent.BundleTooLarge)
			return flags
		}
		copy(b.Header[n:], b.ForwardedHeader)
		n += len(b.ForwardedHeader)
	}

	b.PayOffset = n
	b.HeaderLen = n
	return flags
}

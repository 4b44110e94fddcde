package receive

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dtn7/bpv6engine/pkg/block"
	"github.com/dtn7/bpv6engine/pkg/bpevent"
	"github.com/dtn7/bpv6engine/pkg/bpos"
	"github.com/dtn7/bpv6engine/pkg/route"
)

// wireBundle hand-assembles a PRI(+CTEB)(+ext)(+BIB)+PAY byte sequence the
// way another BPv6 implementation would put it on the wire, independent of
// this engine's own bundle.Build layout.
type wireBundle struct {
	pri      block.Primary
	withCTEB bool
	cteb     block.CTEB
	ext      []byte // raw extension-block bytes, already encoded, inserted before PAY
	withBIB  bool
	bib      block.BIB
	payload  []byte
}

func (w wireBundle) bytes(t *testing.T) []byte {
	t.Helper()
	buf := make([]byte, 512)
	n, flags := block.WriteCanonicalPrimary(buf, &w.pri)
	require.False(t, flags.Has(bpevent.SDNVIncomplete))

	if w.withCTEB {
		n2, flags := block.WriteCanonicalCTEB(buf[n:], &w.cteb)
		require.False(t, flags.Has(bpevent.SDNVIncomplete))
		n += n2
	}

	n += copy(buf[n:], w.ext)

	if w.withBIB {
		flags := block.UpdateBIB(&w.bib, w.payload)
		require.Zero(t, flags)
		n2, flags2 := block.WriteCanonicalBIB(buf[n:], &w.bib)
		require.False(t, flags2.Has(bpevent.SDNVIncomplete))
		n += n2
	}

	pay := block.CanonicalPAYLayout()
	pay.Payload = w.payload
	n2, flags3 := block.WriteCanonicalPAY(buf[n:], &pay)
	require.False(t, flags3.Has(bpevent.SDNVIncomplete))
	n += n2

	return buf[:n]
}

func newPrimary(local, remote route.Endpoint, createSec, lifetime uint64) block.Primary {
	p := block.CanonicalPrimaryLayout()
	p.Version = 6
	p.DstNode.Value, p.DstServ.Value = remote.Node, remote.Service
	p.SrcNode.Value, p.SrcServ.Value = local.Node, local.Service
	p.RptNode.Value, p.RptServ.Value = local.Node, local.Service
	p.CreateSec.Value = createSec
	p.Lifetime.Value = lifetime
	return p
}

func testRuntime(clock bpos.Clock) *bpos.Runtime {
	return bpos.NewRuntime(clock, bpos.NewLogger(nil))
}

func TestReceiveBundleAcceptsLocalBundle(t *testing.T) {
	local := route.Endpoint{Node: 2, Service: 7}
	sender := route.Endpoint{Node: 1, Service: 5}

	pri := newPrimary(sender, local, 1000, 3600)
	bib := block.CanonicalBIBLayout()
	bib.CipherSuiteID.Value = block.CipherSuiteCRC16X25

	w := wireBundle{pri: pri, withBIB: true, bib: bib, payload: []byte("hello dtn")}
	buf := w.bytes(t)

	rt := testRuntime(bpos.NewFakeClock(1500))
	result, flags := ReceiveBundle(rt, local, route.Attributes{}, buf)
	require.Zero(t, flags)
	assert.Equal(t, bpevent.PendingAcceptance, result.Code)
	assert.Equal(t, "hello dtn", string(result.Payload))
	assert.False(t, result.HasCustody)
}

func TestReceiveBundleDetectsIntegrityFailure(t *testing.T) {
	local := route.Endpoint{Node: 2, Service: 7}
	sender := route.Endpoint{Node: 1, Service: 5}

	pri := newPrimary(sender, local, 1000, 3600)
	bib := block.CanonicalBIBLayout()
	bib.CipherSuiteID.Value = block.CipherSuiteCRC16X25

	w := wireBundle{pri: pri, withBIB: true, bib: bib, payload: []byte("hello dtn")}
	buf := w.bytes(t)
	buf[len(buf)-1] ^= 0xFF // tamper the last payload byte after BIB was computed

	rt := testRuntime(bpos.NewFakeClock(1500))
	_, flags := ReceiveBundle(rt, local, route.Attributes{}, buf)
	assert.True(t, flags.Has(bpevent.FailedIntegrityCheck))
}

func TestReceiveBundleExpired(t *testing.T) {
	local := route.Endpoint{Node: 2, Service: 7}
	sender := route.Endpoint{Node: 1, Service: 5}

	pri := newPrimary(sender, local, 1000, 10)
	w := wireBundle{pri: pri, payload: []byte("stale")}
	buf := w.bytes(t)

	rt := testRuntime(bpos.NewFakeClock(2000))
	result, _ := ReceiveBundle(rt, local, route.Attributes{}, buf)
	assert.Equal(t, bpevent.PendingExpiration, result.Code)
}

func TestReceiveBundleRouteNeededWhenServiceUnknown(t *testing.T) {
	local := route.Endpoint{Node: 2, Service: 7}
	sender := route.Endpoint{Node: 1, Service: 5}

	pri := newPrimary(sender, local, 1000, 3600)
	pri.DstServ.Value = 9 // addressed to local node but a different, nonzero service
	w := wireBundle{pri: pri, payload: []byte("x")}
	buf := w.bytes(t)

	rt := testRuntime(bpos.NewFakeClock(1500))
	_, flags := ReceiveBundle(rt, local, route.Attributes{}, buf)
	assert.True(t, flags.Has(bpevent.RouteNeeded))
}

func TestReceiveBundleAdminRecordACSYieldsPendingAcknowledgment(t *testing.T) {
	local := route.Endpoint{Node: 2, Service: 7}
	sender := route.Endpoint{Node: 1, Service: 5}

	pri := newPrimary(sender, local, 1000, 3600)
	pri.SetFlag(block.PCFIsAdminRecord, true)
	pri.CstNode.Value, pri.CstServ.Value = sender.Node, sender.Service

	w := wireBundle{pri: pri, payload: []byte{block.AdminRecordAggregateCustodySignal, 0x01, 0x00}}
	buf := w.bytes(t)

	rt := testRuntime(bpos.NewFakeClock(1500))
	result, flags := ReceiveBundle(rt, local, route.Attributes{}, buf)
	require.Zero(t, flags)
	assert.Equal(t, bpevent.PendingAcknowledgment, result.Code)
	assert.EqualValues(t, sender.Node, result.SourceNode)
	assert.EqualValues(t, sender.Service, result.SourceService)
}

func TestReceiveBundleAdminRecordCustodySignalIsNonCompliant(t *testing.T) {
	local := route.Endpoint{Node: 2, Service: 7}
	sender := route.Endpoint{Node: 1, Service: 5}

	pri := newPrimary(sender, local, 1000, 3600)
	pri.SetFlag(block.PCFIsAdminRecord, true)

	w := wireBundle{pri: pri, payload: []byte{block.AdminRecordCustodySignal}}
	buf := w.bytes(t)

	rt := testRuntime(bpos.NewFakeClock(1500))
	_, flags := ReceiveBundle(rt, local, route.Attributes{}, buf)
	assert.True(t, flags.Has(bpevent.NonCompliant))
}

// TestReceiveBundleForwardsAndRewritesCTEBDroppingUnrecognizedBlock covers
// scenario 6: a bundle addressed elsewhere, carrying a recognized CTEB and
// one unrecognized extension block with drop-block-on-noproc set. Expect
// PendingForward, the rebuilt bundle missing the unrecognized block, and the
// CTEB's custodian fields rewritten to local.
func TestReceiveBundleForwardsAndRewritesCTEBDroppingUnrecognizedBlock(t *testing.T) {
	local := route.Endpoint{Node: 2, Service: 7}
	sender := route.Endpoint{Node: 1, Service: 5}
	destination := route.Endpoint{Node: 99, Service: 1}

	pri := newPrimary(sender, destination, 1000, 3600)
	pri.SetFlag(block.PCFCustodyRequested, true)
	pri.CstNode.Value, pri.CstServ.Value = sender.Node, sender.Service

	cteb := block.CanonicalCTEBLayout()
	cteb.CID.Value = 42
	cteb.CstNode, cteb.CstServ = sender.Node, sender.Service

	// Unrecognized extension block, type 0x03, flags SDNV value 0x10
	// (drop-block-on-noproc), length SDNV 2, two filler payload bytes.
	ext := []byte{0x03, 0x10, 0x02, 0xAA, 0xBB}

	w := wireBundle{
		pri: pri, withCTEB: true, cteb: cteb, ext: ext,
		payload: []byte("relay payload"),
	}
	buf := w.bytes(t)

	rt := testRuntime(bpos.NewFakeClock(1500))
	localAttrs := route.Attributes{Lifetime: 7200, MaxBundleLength: 512}
	result, flags := ReceiveBundle(rt, local, localAttrs, buf)
	require.False(t, flags.Has(bpevent.Dropped))
	require.False(t, flags.Has(bpevent.NonCompliant))
	assert.Equal(t, bpevent.PendingForward, result.Code)
	require.NotNil(t, result.Forward)

	fb := result.Forward.Bundle
	forwarded := fb.Header[:fb.HeaderLen]

	var rebuiltPri block.Primary
	priLen, pflags := block.ReadAutoPrimary(forwarded, &rebuiltPri)
	require.False(t, pflags.Has(bpevent.FailedToParse))
	require.Less(t, priLen, len(forwarded))
	require.Equal(t, byte(block.TypeCTEB), forwarded[priLen])

	var rebuiltCTEB block.CTEB
	_, cflags := block.ReadAutoCTEB(forwarded[priLen:], &rebuiltCTEB)
	require.False(t, cflags.Has(bpevent.FailedToParse))
	assert.EqualValues(t, 42, rebuiltCTEB.CID.Value)
	assert.EqualValues(t, local.Node, rebuiltCTEB.CstNode)
	assert.EqualValues(t, local.Service, rebuiltCTEB.CstServ)

	assert.True(t, result.HasCustody)
	assert.EqualValues(t, 42, result.Custody.CID)
	assert.EqualValues(t, local.Node, result.Custody.CstNode)
	assert.EqualValues(t, local.Service, result.Custody.CstServ)

	assert.NotContains(t, string(forwarded), string([]byte{0xAA, 0xBB}))

	assert.EqualValues(t, destination.Node, fb.PRI.DstNode.Value)
	assert.EqualValues(t, destination.Service, fb.PRI.DstServ.Value)
	assert.EqualValues(t, local.Node, fb.PRI.CstNode.Value)
	assert.EqualValues(t, local.Service, fb.PRI.CstServ.Value)
	assert.EqualValues(t, 0, fb.PRI.RptNode.Value)
	assert.EqualValues(t, 0, fb.PRI.RptServ.Value)
}

func TestReceiveBundleForwardWithoutCustodyDoesNotRequireCTEB(t *testing.T) {
	local := route.Endpoint{Node: 2, Service: 7}
	sender := route.Endpoint{Node: 1, Service: 5}
	destination := route.Endpoint{Node: 99, Service: 1}

	pri := newPrimary(sender, destination, 1000, 3600)
	w := wireBundle{pri: pri, payload: []byte("no custody here")}
	buf := w.bytes(t)

	rt := testRuntime(bpos.NewFakeClock(1500))
	localAttrs := route.Attributes{Lifetime: 7200, MaxBundleLength: 512}
	result, flags := ReceiveBundle(rt, local, localAttrs, buf)
	require.Zero(t, flags)
	assert.Equal(t, bpevent.PendingForward, result.Code)
	assert.False(t, result.HasCustody)
}

func TestReceiveBundleCustodyRequestedWithoutCTEBIsNonCompliant(t *testing.T) {
	local := route.Endpoint{Node: 2, Service: 7}
	sender := route.Endpoint{Node: 1, Service: 5}
	destination := route.Endpoint{Node: 99, Service: 1}

	pri := newPrimary(sender, destination, 1000, 3600)
	pri.SetFlag(block.PCFCustodyRequested, true)
	w := wireBundle{pri: pri, payload: []byte("x")}
	buf := w.bytes(t)

	rt := testRuntime(bpos.NewFakeClock(1500))
	localAttrs := route.Attributes{Lifetime: 7200, MaxBundleLength: 512}
	_, flags := ReceiveBundle(rt, local, localAttrs, buf)
	assert.True(t, flags.Has(bpevent.NonCompliant))
}

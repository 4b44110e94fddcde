package bundle

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dtn7/bpv6engine/pkg/block"
	"github.com/dtn7/bpv6engine/pkg/bpevent"
	"github.com/dtn7/bpv6engine/pkg/route"
)

func testRoute() route.Route {
	return route.Route{
		Name:   "test",
		Local:  route.Endpoint{Node: 1, Service: 1},
		Remote: route.Endpoint{Node: 2, Service: 1},
		Attributes: route.Attributes{
			Lifetime:           3600,
			AllowFragmentation: true,
			MaxBundleLength:    1024,
		},
	}
}

func TestBuildPRIOnlyHeader(t *testing.T) {
	b := &InFlight{Route: testRoute(), Attributes: testRoute().Attributes}
	flags := Build(b, nil, nil)
	require.Zero(t, flags)

	assert.Equal(t, 44, b.HeaderLen, "PRI-only header ends at the canonical dictlen offset")
	assert.Equal(t, 44, b.PayOffset)
	assert.False(t, b.HasCTEB)
	assert.False(t, b.HasBIB)
	assert.True(t, b.Prebuilt)
}

func TestBuildWithCustodyAndIntegrity(t *testing.T) {
	attrs := testRoute().Attributes
	attrs.RequestCustody = true
	attrs.IntegrityCheck = true
	attrs.CipherSuite = block.CipherSuiteCRC16X25

	b := &InFlight{Route: testRoute(), Attributes: attrs}
	flags := Build(b, nil, nil)
	require.Zero(t, flags)

	assert.True(t, b.HasCTEB)
	assert.Equal(t, 44, b.CTEBOffset)
	assert.True(t, b.HasBIB)
	assert.Greater(t, b.BIBOffset, b.CTEBOffset)
	assert.Greater(t, b.PayOffset, b.BIBOffset)
	assert.True(t, b.PRI.CustodyRequested())
}

func TestBuildForwardingPathUsesPriOverride(t *testing.T) {
	override := block.CanonicalPrimaryLayout()
	override.Version = 6
	override.DstNode.Value = 9

	b := &InFlight{Route: testRoute(), Attributes: testRoute().Attributes}
	flags := Build(b, &override, []byte{0xAA, 0xBB})
	require.Zero(t, flags)

	assert.False(t, b.Prebuilt)
	assert.EqualValues(t, 9, b.PRI.DstNode.Value)
	assert.Equal(t, 46, b.HeaderLen, "44 B PRI + 2 forwarded extension bytes")
}

func TestBuildFragmentRelayOfLocalBundlePreservesCTEB(t *testing.T) {
	attrs := testRoute().Attributes
	attrs.RequestCustody = true

	b := &InFlight{Route: testRoute(), Attributes: attrs}
	require.Zero(t, Build(b, nil, nil))
	require.True(t, b.HasCTEB)

	// Mirrors pkg/send's fragmentation re-lay: same PRI, is-fragment bit
	// set, priOverride non-nil for an already-local bundle.
	pri := b.PRI
	pri.SetFlag(block.PCFIsFragment, true)
	flags := Build(b, &pri, nil)
	require.Zero(t, flags)

	assert.True(t, b.HasCTEB, "fragmenting a locally-sourced custody bundle must not drop its CTEB")
	assert.True(t, b.PRI.IsFragment())
}

func TestBuildFailsWhenHeaderExceedsBudget(t *testing.T) {
	b := &InFlight{Route: testRoute(), Attributes: testRoute().Attributes}
	oversized := make([]byte, block.HeaderBufSize)
	flags := Build(b, nil, oversized)
	assert.True(t, flags.Has(bpevent.BundleTooLarge))
}

package metrics

import (
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrometheusSinkRecordsCounters(t *testing.T) {
	promOnce = sync.Once{}
	promSink = nil

	registry := prometheus.NewRegistry()
	sink := NewPrometheusSink(registry)
	require.NotNil(t, sink)

	sink.BundleSent()
	sink.BundleSent()
	sink.BundleReceived()
	sink.BundleDropped("expired")
	sink.BundleFragmented(3)
	sink.IntegrityFailure()
	sink.CustodyTableOccupancy("relay-1", 42)

	assert.Equal(t, float64(2), testutil.ToFloat64(sink.bundlesSent))
	assert.Equal(t, float64(1), testutil.ToFloat64(sink.bundlesReceived))
	assert.Equal(t, float64(1), testutil.ToFloat64(sink.bundlesDropped.WithLabelValues("expired")))
	assert.Equal(t, float64(3), testutil.ToFloat64(sink.fragmentsEmitted))
	assert.Equal(t, float64(1), testutil.ToFloat64(sink.integrityFailures))
	assert.Equal(t, float64(42), testutil.ToFloat64(sink.custodyOccupancy.WithLabelValues("relay-1")))
}

func TestNoOpSinkIsHarmless(t *testing.T) {
	var sink Sink = NoOp{}
	sink.BundleSent()
	sink.BundleReceived()
	sink.BundleDropped("x")
	sink.BundleFragmented(1)
	sink.IntegrityFailure()
	sink.CustodyTableOccupancy("c", 0)
}

package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// PrometheusSink is a Sink backed by client_golang counters and a gauge
// vector, registered once against registerer.
type PrometheusSink struct {
	bundlesSent       prometheus.Counter
	bundlesReceived   prometheus.Counter
	bundlesDropped    *prometheus.CounterVec
	fragmentsEmitted  prometheus.Counter
	integrityFailures prometheus.Counter
	custodyOccupancy  *prometheus.GaugeVec
}

var (
	promOnce sync.Once
	promSink *PrometheusSink
)

// NewPrometheusSink builds a PrometheusSink and registers its collectors
// against registerer. Safe to call more than once per process: subsequent
// calls return the first sink built, since re-registering the same
// collectors with a prometheus.Registry panics.
func NewPrometheusSink(registerer prometheus.Registerer) *PrometheusSink {
	promOnce.Do(func() {
		s := &PrometheusSink{
			bundlesSent: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "bpv6",
				Name:      "bundles_sent_total",
				Help:      "Bundles handed to the storage layer for transmission.",
			}),
			bundlesReceived: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "bpv6",
				Name:      "bundles_received_total",
				Help:      "Bundles accepted by receive processing.",
			}),
			bundlesDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "bpv6",
				Name:      "bundles_dropped_total",
				Help:      "Bundles dropped, labeled by reason.",
			}, []string{"reason"}),
			fragmentsEmitted: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "bpv6",
				Name:      "fragments_emitted_total",
				Help:      "Fragments produced by the send path for oversized bundles.",
			}),
			integrityFailures: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "bpv6",
				Name:      "integrity_failures_total",
				Help:      "Bundle integrity block verification failures.",
			}),
			custodyOccupancy: prometheus.NewGaugeVec(prometheus.GaugeOpts{
				Namespace: "bpv6",
				Name:      "custody_table_occupancy",
				Help:      "Entries currently held in a channel's active-custody table.",
			}, []string{"channel"}),
		}
		registerer.MustRegister(
			s.bundlesSent,
			s.bundlesReceived,
			s.bundlesDropped,
			s.fragmentsEmitted,
			s.integrityFailures,
			s.custodyOccupancy,
		)
		promSink = s
	})
	return promSink
}

func (s *PrometheusSink) BundleSent()     { s.bundlesSent.Inc() }
func (s *PrometheusSink) BundleReceived() { s.bundlesReceived.Inc() }

func (s *PrometheusSink) BundleDropped(reason string) {
	s.bundlesDropped.WithLabelValues(reason).Inc()
}

func (s *PrometheusSink) BundleFragmented(n int) {
	s.fragmentsEmitted.Add(float64(n))
}

func (s *PrometheusSink) IntegrityFailure() { s.integrityFailures.Inc() }

func (s *PrometheusSink) CustodyTableOccupancy(channel string, n int) {
	s.custodyOccupancy.WithLabelValues(channel).Set(float64(n))
}

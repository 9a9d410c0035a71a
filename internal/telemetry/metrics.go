package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	metricsNamespace = "rnse"
	engineSubsystem  = "engine"
	ledgerSubsystem  = "ledger"
)

// Metrics holds the Prometheus collectors of the engine.
//
// All collectors are registered on the registry passed to NewMetrics, never on
// the global default registry, so tests and multiple runs in one process do not
// collide.
type Metrics struct {
	// TicksTotal counts generated ticks.
	// Labels: outcome (accepted, rejected)
	TicksTotal *prometheus.CounterVec

	// StreamsTotal counts finished streams.
	// Labels: status (success, error)
	StreamsTotal *prometheus.CounterVec

	// StreamDurationSeconds measures the wall time of one stream.
	StreamDurationSeconds prometheus.Histogram

	// BatchesTotal counts committed Merkle batches.
	// Labels: padded (true, false)
	BatchesTotal *prometheus.CounterVec

	// VerificationsTotal counts verify calls.
	// Labels: result (match, mismatch, error)
	VerificationsTotal *prometheus.CounterVec

	// RegistryOpsTotal counts commitment registry operations.
	// Labels: backend, op, status
	RegistryOpsTotal *prometheus.CounterVec
}

// NewMetrics creates and registers the collectors on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		TicksTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: engineSubsystem,
			Name:      "ticks_total",
			Help:      "Generated ticks by gate outcome",
		}, []string{"outcome"}),
		StreamsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: engineSubsystem,
			Name:      "streams_total",
			Help:      "Finished streams by status",
		}, []string{"status"}),
		StreamDurationSeconds: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Subsystem: engineSubsystem,
			Name:      "stream_duration_seconds",
			Help:      "Wall time spent generating one stream",
			Buckets:   prometheus.ExponentialBuckets(0.001, 4, 10),
		}),
		BatchesTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: engineSubsystem,
			Name:      "merkle_batches_total",
			Help:      "Committed Merkle batches",
		}, []string{"padded"}),
		VerificationsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: engineSubsystem,
			Name:      "verifications_total",
			Help:      "Reproducibility verifications by result",
		}, []string{"result"}),
		RegistryOpsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: ledgerSubsystem,
			Name:      "registry_ops_total",
			Help:      "Commitment registry operations",
		}, []string{"backend", "op", "status"}),
	}
}

// ObserveTicks adds accepted and rejected tick counts.
func (m *Metrics) ObserveTicks(accepted, rejected int) {
	if m == nil {
		return
	}
	m.TicksTotal.WithLabelValues("accepted").Add(float64(accepted))
	m.TicksTotal.WithLabelValues("rejected").Add(float64(rejected))
}

// ObserveStream records one finished stream.
func (m *Metrics) ObserveStream(seconds float64, err error) {
	if m == nil {
		return
	}
	m.StreamsTotal.WithLabelValues(status(err)).Inc()
	m.StreamDurationSeconds.Observe(seconds)
}

// ObserveBatch records one committed batch.
func (m *Metrics) ObserveBatch(padded bool) {
	if m == nil {
		return
	}
	if padded {
		m.BatchesTotal.WithLabelValues("true").Inc()
		return
	}
	m.BatchesTotal.WithLabelValues("false").Inc()
}

// ObserveVerification records a verification outcome.
func (m *Metrics) ObserveVerification(match bool, err error) {
	if m == nil {
		return
	}
	switch {
	case err != nil:
		m.VerificationsTotal.WithLabelValues("error").Inc()
	case match:
		m.VerificationsTotal.WithLabelValues("match").Inc()
	default:
		m.VerificationsTotal.WithLabelValues("mismatch").Inc()
	}
}

// ObserveRegistryOp records a ledger registry operation.
func (m *Metrics) ObserveRegistryOp(backend, op string, err error) {
	if m == nil {
		return
	}
	m.RegistryOpsTotal.WithLabelValues(backend, op, status(err)).Inc()
}

func status(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}

package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder implements domain.repository.Metrics using Prometheus.
type Recorder struct {
	cycles      *prometheus.HistogramVec
	predictions *prometheus.CounterVec
	confidence  *prometheus.HistogramVec
	resolutions *prometheus.CounterVec
	targetError *prometheus.HistogramVec
	extremes    *prometheus.CounterVec
	metaRules   *prometheus.CounterVec
	consensus   *prometheus.CounterVec
	oracleCalls *prometheus.HistogramVec
	errorsTotal *prometheus.CounterVec
	lastPrice   *prometheus.GaugeVec
}

// New creates a recorder registered on the default registry.
func New() *Recorder {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

// NewWithRegistry creates a recorder registered on reg.
func NewWithRegistry(reg prometheus.Registerer) *Recorder {
	f := promauto.With(reg)
	return &Recorder{
		cycles: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "recursive_cycle_duration_seconds",
				Help:    "Duration of prediction cycles in seconds",
				Buckets: []float64{1, 10, 60, 300, 900, 1800, 3600, 7200},
			},
			[]string{"timeframe", "status"},
		),
		predictions: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "recursive_predictions_total",
				Help: "Total number of stored predictions",
			},
			[]string{"timeframe", "source", "direction"},
		),
		confidence: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "recursive_prediction_confidence",
				Help:    "Stated confidence of stored predictions",
				Buckets: prometheus.LinearBuckets(10, 10, 10),
			},
			[]string{"timeframe"},
		),
		resolutions: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "recursive_resolutions_total",
				Help: "Total number of resolved predictions",
			},
			[]string{"timeframe", "correct"},
		),
		targetError: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "recursive_target_error_pct",
				Help:    "Target error of resolved predictions in percent",
				Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5},
			},
			[]string{"timeframe"},
		),
		extremes: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "recursive_extremes_total",
				Help: "Total number of records flagged as extreme",
			},
			[]string{"timeframe", "pool", "reason"},
		),
		metaRules: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "recursive_meta_rules_total",
				Help: "Total number of derived meta-rules",
			},
			[]string{"timeframe", "pool"},
		),
		consensus: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "recursive_consensus_outcomes_total",
				Help: "Total number of consensus outcomes by tag",
			},
			[]string{"timeframe", "outcome"},
		),
		oracleCalls: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "recursive_oracle_call_duration_seconds",
				Help:    "Duration of oracle calls in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"role", "operation", "status"},
		),
		errorsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "recursive_errors_total",
				Help: "Total number of errors encountered",
			},
			[]string{"type"},
		),
		lastPrice: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "recursive_last_price",
				Help: "Last BTC price observed by a cycle",
			},
			[]string{"timeframe"},
		),
	}
}

func (r *Recorder) RecordCycle(tf, status string, seconds float64) {
	r.cycles.WithLabelValues(tf, status).Observe(seconds)
}

func (r *Recorder) RecordPrediction(tf, source, direction string, confidence int) {
	r.predictions.WithLabelValues(tf, source, direction).Inc()
	r.confidence.WithLabelValues(tf).Observe(float64(confidence))
}

func (r *Recorder) RecordResolution(tf string, correct bool, targetErrorPct float64) {
	r.resolutions.WithLabelValues(tf, strconv.FormatBool(correct)).Inc()
	r.targetError.WithLabelValues(tf).Observe(targetErrorPct)
}

func (r *Recorder) RecordExtreme(tf, pool, reason string) {
	r.extremes.WithLabelValues(tf, pool, reason).Inc()
}

func (r *Recorder) RecordMetaRules(tf, pool string, n int) {
	r.metaRules.WithLabelValues(tf, pool).Add(float64(n))
}

func (r *Recorder) RecordConsensus(tf, outcome string) {
	r.consensus.WithLabelValues(tf, outcome).Inc()
}

func (r *Recorder) RecordOracleCall(role, op, status string, seconds float64) {
	r.oracleCalls.WithLabelValues(role, op, status).Observe(seconds)
}

// RecordError records an error occurrence.
func (r *Recorder) RecordError(kind string) {
	r.errorsTotal.WithLabelValues(kind).Inc()
}

func (r *Recorder) SetLastPrice(tf string, price float64) {
	r.lastPrice.WithLabelValues(tf).Set(price)
}

// Nop discards everything.
type Nop struct{}

func (Nop) RecordCycle(string, string, float64)              {}
func (Nop) RecordPrediction(string, string, string, int)     {}
func (Nop) RecordResolution(string, bool, float64)           {}
func (Nop) RecordExtreme(string, string, string)             {}
func (Nop) RecordMetaRules(string, string, int)              {}
func (Nop) RecordConsensus(string, string)                   {}
func (Nop) RecordOracleCall(string, string, string, float64) {}
func (Nop) RecordError(string)                               {}
func (Nop) SetLastPrice(string, float64)                     {}

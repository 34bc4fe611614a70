// Package metrics defines the prometheus collectors exported by axiom.
// All methods are safe to call on a nil *Metrics.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "axiom"

type Metrics struct {
	cipherOps          *prometheus.CounterVec
	cipherFailures     *prometheus.CounterVec
	noiseRemaining     prometheus.Histogram
	executions         *prometheus.CounterVec
	executionLatencyMS prometheus.Histogram
	verifications      *prometheus.CounterVec
	entropyCount       prometheus.Gauge
	riskScore          prometheus.Gauge
	receipts           prometheus.Counter
}

func NewMetrics(registerer prometheus.Registerer) *Metrics {
	m := Metrics{
		cipherOps: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cipher_operations_total",
				Help:      "Number of cipher engine operations that completed",
			},
			[]string{"op"},
		),
		cipherFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cipher_failures_total",
				Help:      "Number of cipher engine operations that failed",
			},
			[]string{"op", "reason"},
		),
		noiseRemaining: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "noise_budget_remaining_bits",
				Help:      "Remaining noise budget of produced ciphertexts in bits",
				Buckets:   prometheus.LinearBuckets(0, 4, 16),
			},
		),
		executions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "policy_executions_total",
				Help:      "Number of policy runs by procedure and final state",
			},
			[]string{"procedure", "state"},
		),
		executionLatencyMS: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "policy_execution_latency_ms",
				Help:      "Latency of a single policy run in milliseconds",
				Buckets:   prometheus.ExponentialBuckets(0.05, 2, 16),
			},
		),
		verifications: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "determinism_verifications_total",
				Help:      "Number of determinism verifications by verdict",
			},
			[]string{"verdict"},
		),
		entropyCount: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "last_entropy_count",
				Help:      "Distinct digests observed by the last verification",
			},
		),
		riskScore: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "last_risk_score",
				Help:      "Risk score of the last verification",
			},
		),
		receipts: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "receipts_issued_total",
				Help:      "Number of receipts built for accepted runs",
			},
		),
	}

	registerer.MustRegister(m.cipherOps)
	registerer.MustRegister(m.cipherFailures)
	registerer.MustRegister(m.noiseRemaining)
	registerer.MustRegister(m.executions)
	registerer.MustRegister(m.executionLatencyMS)
	registerer.MustRegister(m.verifications)
	registerer.MustRegister(m.entropyCount)
	registerer.MustRegister(m.riskScore)
	registerer.MustRegister(m.receipts)

	return &m
}

// CipherOp records a completed cipher operation and, when budget is
// non-zero, the remaining noise budget of its output.
func (m *Metrics) CipherOp(op string, budget uint64) {
	if m == nil {
		return
	}
	m.cipherOps.WithLabelValues(op).Inc()
	if budget > 0 {
		bitsLeft := 0
		for b := budget; b > 1; b >>= 1 {
			bitsLeft++
		}
		m.noiseRemaining.Observe(float64(bitsLeft))
	}
}

// CipherFailure records a failed cipher operation.
func (m *Metrics) CipherFailure(op, reason string) {
	if m == nil {
		return
	}
	m.cipherFailures.WithLabelValues(op, reason).Inc()
}

// Execution records the final state of a policy run.
func (m *Metrics) Execution(procedure, state string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.executions.WithLabelValues(procedure, state).Inc()
	m.executionLatencyMS.Observe(float64(elapsed.Microseconds()) / 1000)
}

// Verification records a determinism verification outcome.
func (m *Metrics) Verification(insurable bool, entropy, risk uint32) {
	if m == nil {
		return
	}
	verdict := "uninsurable"
	if insurable {
		verdict = "insurable"
	}
	m.verifications.WithLabelValues(verdict).Inc()
	m.entropyCount.Set(float64(entropy))
	m.riskScore.Set(float64(risk))
}

// ReceiptIssued counts a built receipt.
func (m *Metrics) ReceiptIssued() {
	if m == nil {
		return
	}
	m.receipts.Inc()
}

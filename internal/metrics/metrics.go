// Package metrics holds the Prometheus collectors of the lot pipeline.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "appraisal"

// Drop reasons recorded by RecordDropped.
const (
	DroppedSerial = "serial"
	DroppedFrame  = "frame"
)

// DefaultAICallBuckets are the histogram buckets for model call duration in seconds.
var DefaultAICallBuckets = []float64{.5, 1, 2, 5, 10, 30, 60, 120}

// Pipeline groups the collectors updated by one pipeline runner.
type Pipeline struct {
	CandidateLots  *prometheus.CounterVec
	FinalLots      *prometheus.CounterVec
	DroppedLots    *prometheus.CounterVec
	AICalls        *prometheus.CounterVec
	AICallDuration *prometheus.HistogramVec
	ParseFailures  *prometheus.CounterVec
	RunFailures    *prometheus.CounterVec
}

// NewPipeline registers the pipeline collectors with reg. A nil reg uses a
// private registry, which keeps tests and repeated construction independent.
func NewPipeline(reg prometheus.Registerer) *Pipeline {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	f := promauto.With(reg)
	return &Pipeline{
		CandidateLots: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "candidate_lots_total",
			Help:      "Candidate lots produced by analyzers.",
		}, []string{"mode"}),
		FinalLots: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "final_lots_total",
			Help:      "Lots in assembled reports.",
		}, []string{"mode"}),
		DroppedLots: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dropped_lots_total",
			Help:      "Candidate lots removed by deduplication.",
		}, []string{"reason"}),
		AICalls: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ai_calls_total",
			Help:      "Model calls by mode and outcome.",
		}, []string{"mode", "status"}),
		AICallDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "ai_call_duration_seconds",
			Help:      "Model call duration.",
			Buckets:   DefaultAICallBuckets,
		}, []string{"mode"}),
		ParseFailures: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ai_parse_failures_total",
			Help:      "Model answers that could not be parsed.",
		}, []string{"mode"}),
		RunFailures: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "run_failures_total",
			Help:      "Pipeline runs that ended in an analysis error.",
		}, []string{"mode"}),
	}
}

// RecordAICall counts one model call. status is "ok", "cached" or "error".
func (p *Pipeline) RecordAICall(mode, status string, d time.Duration) {
	p.AICalls.WithLabelValues(mode, status).Inc()
	if status != "cached" {
		p.AICallDuration.WithLabelValues(mode).Observe(d.Seconds())
	}
}

// RecordParseFailure counts one unusable model answer.
func (p *Pipeline) RecordParseFailure(mode string) {
	p.ParseFailures.WithLabelValues(mode).Inc()
}

// RecordCandidates counts the candidate lots of one run before deduplication.
// mode is the run label, which joins the modes of a combined run with "+".
func (p *Pipeline) RecordCandidates(mode string, n int) {
	p.CandidateLots.WithLabelValues(mode).Add(float64(n))
}

// RecordDropped counts lots removed by deduplication.
func (p *Pipeline) RecordDropped(reason string, n int) {
	if n > 0 {
		p.DroppedLots.WithLabelValues(reason).Add(float64(n))
	}
}

// RecordFinal counts lots of an assembled report under the same run label
// as RecordCandidates.
func (p *Pipeline) RecordFinal(mode string, n int) {
	p.FinalLots.WithLabelValues(mode).Add(float64(n))
}

// RecordRunFailure counts a failed run.
func (p *Pipeline) RecordRunFailure(mode string) {
	p.RunFailures.WithLabelValues(mode).Inc()
}

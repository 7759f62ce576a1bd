package metrics

import (
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// PrometheusRecorder implements the Recorder interface using Prometheus metrics.
// It also satisfies the swarm coordinator's recorder contract via ObserveWorker.
type PrometheusRecorder struct {
	requestsTotal   *prometheus.CounterVec
	tokensTotal     *prometheus.CounterVec
	costsTotal      *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	workerResults   *prometheus.CounterVec
	workerReasoning *prometheus.HistogramVec
	stageDuration   *prometheus.HistogramVec
}

var (
	promInstance *PrometheusRecorder //nolint:gochecknoglobals
	promOnce     sync.Once           //nolint:gochecknoglobals
)

// NewPrometheusRecorder returns the process-wide Prometheus recorder.
// Collectors register with the default registry exactly once.
func NewPrometheusRecorder() *PrometheusRecorder {
	promOnce.Do(func() {
		promInstance = &PrometheusRecorder{
			requestsTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "llm_requests_total",
					Help: "Total number of LLM requests by model, analysis, stage, and status",
				},
				[]string{"model", "analysis_id", "stage", "status", "error_type"},
			),
			tokensTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "llm_tokens_total",
					Help: "Total number of tokens used in LLM requests",
				},
				[]string{"model", "analysis_id", "stage", "type"},
			),
			costsTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "llm_costs_total",
					Help: "Estimated cost in USD for LLM requests",
				},
				[]string{"model", "analysis_id", "stage"},
			),
			requestDuration: promauto.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "llm_request_duration_seconds",
					Help:    "Duration of LLM requests in seconds",
					Buckets: prometheus.DefBuckets,
				},
				[]string{"model", "analysis_id", "stage"},
			),
			workerResults: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "swarm_worker_results_total",
					Help: "Market-analysis worker outcomes by worker name and status",
				},
				[]string{"worker", "status"},
			),
			workerReasoning: promauto.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "swarm_worker_reasoning_chars",
					Help:    "Reasoning text length emitted per worker run",
					Buckets: prometheus.ExponentialBuckets(256, 4, 8),
				},
				[]string{"worker"},
			),
			stageDuration: promauto.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "pipeline_stage_duration_seconds",
					Help:    "Wall-clock duration of analysis pipeline stages",
					Buckets: []float64{1, 5, 15, 30, 60, 120, 300},
				},
				[]string{"stage", "status"},
			),
		}
	})
	return promInstance
}

// ObserveRequest records metrics for a completed LLM request.
func (p *PrometheusRecorder) ObserveRequest(
	model, analysisID, stage string,
	promptTokens, completionTokens int,
	success bool,
	errorType string,
	duration time.Duration,
) {
	status := statusSuccess
	if !success {
		status = statusError
	}

	p.requestsTotal.WithLabelValues(model, analysisID, stage, status, errorType).Inc()

	if success {
		p.tokensTotal.WithLabelValues(model, analysisID, stage, "prompt").Add(float64(promptTokens))
		p.tokensTotal.WithLabelValues(model, analysisID, stage, "completion").Add(float64(completionTokens))
		p.costsTotal.WithLabelValues(model, analysisID, stage).Add(estimateCost(model, promptTokens, completionTokens))
	}

	p.requestDuration.WithLabelValues(model, analysisID, stage).Observe(duration.Seconds())
}

// ObserveWorker records the outcome of one market-analysis worker. Worker
// wall-clock time is folded into the swarm stage histogram, so only the
// per-worker outcome and reasoning volume are tracked here.
func (p *PrometheusRecorder) ObserveWorker(worker string, success bool, reasoningChars int, _ time.Duration) {
	status := statusSuccess
	if !success {
		status = statusError
	}
	p.workerResults.WithLabelValues(worker, status).Inc()
	p.workerReasoning.WithLabelValues(worker).Observe(float64(reasoningChars))
}

// ObserveStage records the wall-clock duration of a pipeline stage.
func (p *PrometheusRecorder) ObserveStage(stage string, success bool, duration time.Duration) {
	status := statusSuccess
	if !success {
		status = statusError
	}
	p.stageDuration.WithLabelValues(stage, status).Observe(duration.Seconds())
}

// Per-million-token prices. Workers run on hosted Nemotron which is free
// at current rates, so only Claude and Gemini contribute.
func estimateCost(model string, promptTokens, completionTokens int) float64 {
	var inPerM, outPerM float64
	switch {
	case strings.HasPrefix(model, "claude"):
		inPerM, outPerM = 15.0, 75.0
	case strings.HasPrefix(model, "gemini"):
		inPerM, outPerM = 0.30, 2.50
	default:
		return 0
	}
	return float64(promptTokens)/1e6*inPerM + float64(completionTokens)/1e6*outPerM
}

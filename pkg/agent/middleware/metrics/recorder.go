// Package metrics provides metrics recording for LLM client operations.
package metrics

import (
	"time"
)

// RunProvider supplies the identity of the analysis run a request belongs to.
// The pipeline sets this per run so metrics can be sliced per analysis.
type RunProvider interface {
	// AnalysisID returns the identifier of the analysis currently executing.
	AnalysisID() string
	// Stage returns the pipeline stage issuing the request (vision, swarm, synthesis).
	Stage() string
}

// Recorder defines the interface for recording LLM operation metrics.
type Recorder interface {
	// ObserveRequest records metrics for a completed LLM request.
	ObserveRequest(
		model, analysisID, stage string,
		promptTokens, completionTokens int,
		success bool,
		errorType string,
		duration time.Duration,
	)

	// ObserveWorker records the outcome of one market-analysis worker.
	ObserveWorker(worker string, success bool, reasoningChars int, duration time.Duration)

	// ObserveStage records the wall-clock duration of a pipeline stage.
	ObserveStage(stage string, success bool, duration time.Duration)
}

// NoopRecorder implements Recorder with no-op behavior for when metrics are disabled.
type NoopRecorder struct{}

// Nop returns a no-op metrics recorder that discards all metrics.
func Nop() Recorder {
	return &NoopRecorder{}
}

// ObserveRequest does nothing in the no-op recorder.
func (n *NoopRecorder) ObserveRequest(
	_, _, _ string,
	_, _ int,
	_ bool,
	_ string,
	_ time.Duration,
) {
}

// ObserveWorker does nothing in the no-op recorder.
func (n *NoopRecorder) ObserveWorker(_ string, _ bool, _ int, _ time.Duration) {}

// ObserveStage does nothing in the no-op recorder.
func (n *NoopRecorder) ObserveStage(_ string, _ bool, _ time.Duration) {}

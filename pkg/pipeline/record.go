package pipeline

import (
	"sync/atomic"
	"time"

	"appraisal/pkg/shops"
	"appraisal/pkg/swarm"
)

// Stage names, also used as metrics labels.
type Stage string

const (
	// StageVision is the photo-identification call.
	StageVision Stage = "vision"
	// StageSwarm is the parallel market-analysis fan-out.
	StageSwarm Stage = "swarm"
	// StageShops is the parallel shop search branch.
	StageShops Stage = "shops"
	// StageSynthesis is the final consolidation call.
	StageSynthesis Stage = "synthesis"
)

// Record is the accumulating per-run data structure threaded through the
// stages. Each stage writes only its own fields via a With method that
// returns a new value; a completed stage's fields are never mutated again.
// The whole record is discarded after the run, there is no cross-run state.
type Record struct {
	AnalysisID  string
	Coordinates string
	StartedAt   time.Time

	// Vision stage output.
	Identification   string
	ConditionDetails string // Vision condition JSON, verbatim

	// Parallel branch outputs.
	SwarmResults []swarm.Result
	Shops        []shops.Listing

	// Synthesis stage output. Either the consolidated payload or the
	// coerce sentinel when synthesis degraded.
	FinalPayload map[string]any

	// StageErrors carries per-stage failure messages for degraded stages.
	// A present-but-degraded stage still populates its output fields.
	StageErrors map[Stage]string
}

// NewRecord creates an empty record for one analysis run.
func NewRecord(analysisID, coordinates string) Record {
	return Record{
		AnalysisID:  analysisID,
		Coordinates: coordinates,
		StartedAt:   time.Now(),
		StageErrors: make(map[Stage]string),
	}
}

// WithVision returns a copy extended with the vision stage output.
func (r Record) WithVision(identification, conditionDetails string) Record {
	out := r.clone()
	out.Identification = identification
	out.ConditionDetails = conditionDetails
	return out
}

// WithSwarm returns a copy extended with the worker results.
func (r Record) WithSwarm(results []swarm.Result) Record {
	out := r.clone()
	out.SwarmResults = append([]swarm.Result(nil), results...)
	return out
}

// WithShops returns a copy extended with the shop listings.
func (r Record) WithShops(listings []shops.Listing) Record {
	out := r.clone()
	out.Shops = append([]shops.Listing(nil), listings...)
	return out
}

// WithSynthesis returns a copy extended with the final payload.
func (r Record) WithSynthesis(payload map[string]any) Record {
	out := r.clone()
	out.FinalPayload = payload
	return out
}

// WithStageError returns a copy noting a degraded stage.
func (r Record) WithStageError(stage Stage, msg string) Record {
	out := r.clone()
	out.StageErrors[stage] = msg
	return out
}

// Elapsed returns the wall-clock time since the run started.
func (r Record) Elapsed() time.Duration {
	return time.Since(r.StartedAt)
}

func (r Record) clone() Record {
	out := r
	out.StageErrors = make(map[Stage]string, len(r.StageErrors))
	for k, v := range r.StageErrors {
		out.StageErrors[k] = v
	}
	return out
}

// RunTracker attributes LLM request metrics to the analysis and stage
// currently executing. The pipeline updates it as stages advance; the
// metrics middleware reads it concurrently from worker goroutines.
type RunTracker struct {
	analysisID atomic.Value
	stage      atomic.Value
}

// NewRunTracker creates a tracker for one analysis run.
func NewRunTracker() *RunTracker {
	t := &RunTracker{}
	t.analysisID.Store("")
	t.stage.Store("")
	return t
}

// AnalysisID implements metrics.RunProvider.
func (t *RunTracker) AnalysisID() string {
	v, _ := t.analysisID.Load().(string)
	return v
}

// Stage implements metrics.RunProvider.
func (t *RunTracker) Stage() string {
	v, _ := t.stage.Load().(string)
	return v
}

func (t *RunTracker) set(analysisID string, stage Stage) {
	t.analysisID.Store(analysisID)
	t.stage.Store(string(stage))
}

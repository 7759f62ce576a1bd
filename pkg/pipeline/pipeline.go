// Package pipeline sequences the appraisal stages: vision identification,
// then the market-analysis fan-out in parallel with shop search, then one
// synthesis call that consolidates everything.
//
// Ordering guarantee: synthesis never starts before both parallel branches
// have returned. No stage retries automatically; a failed stage degrades to
// a sentinel contribution and the run always completes with a full record.
package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"appraisal/pkg/agent/llm"
	"appraisal/pkg/agent/middleware/metrics"
	"appraisal/pkg/coerce"
	"appraisal/pkg/logx"
	"appraisal/pkg/shops"
	"appraisal/pkg/swarm"
	"appraisal/pkg/templates"
)

// Input is one analysis request.
type Input struct {
	AnalysisID  string
	Image       []byte
	MIME        string
	Coordinates string // "@lat,lng"
}

// Runner executes the fixed appraisal graph. Clients and the shop finder
// are injected so tests substitute fakes; a Runner is built per run when
// request attribution is wanted, or once and reused when it is not.
type Runner struct {
	vision      llm.LLMClient
	synthesis   llm.LLMClient
	coordinator *swarm.Coordinator
	finder      shops.Finder
	specs       []TaskSpec
	renderer    *templates.Renderer
	tracker     *RunTracker
	recorder    metrics.Recorder
	logger      *logx.Logger
}

// NewRunner creates a pipeline runner. tracker and recorder may be nil.
func NewRunner(
	vision, synthesis llm.LLMClient,
	coordinator *swarm.Coordinator,
	finder shops.Finder,
	tracker *RunTracker,
	recorder metrics.Recorder,
) (*Runner, error) {
	specs, err := LoadTaskSpecs()
	if err != nil {
		return nil, err
	}
	renderer, err := templates.NewRenderer()
	if err != nil {
		return nil, err
	}
	if recorder == nil {
		recorder = metrics.Nop()
	}
	return &Runner{
		vision:      vision,
		synthesis:   synthesis,
		coordinator: coordinator,
		finder:      finder,
		specs:       specs,
		renderer:    renderer,
		tracker:     tracker,
		recorder:    recorder,
		logger:      logx.NewLogger("pipeline"),
	}, nil
}

// Run executes the full graph. The returned record is always complete in
// shape; callers inspect StageErrors and per-field sentinels rather than
// expecting an error on partial failure. The only hard error is a canceled
// context.
func (r *Runner) Run(ctx context.Context, in Input) (Record, error) {
	rec := NewRecord(in.AnalysisID, in.Coordinates)
	r.logger.Info("Analysis %s started", in.AnalysisID)

	rec = r.runVision(ctx, rec, in)
	if err := ctx.Err(); err != nil {
		return rec, fmt.Errorf("analysis canceled: %w", err)
	}

	rec = r.runParallel(ctx, rec)
	if err := ctx.Err(); err != nil {
		return rec, fmt.Errorf("analysis canceled: %w", err)
	}

	rec = r.runSynthesis(ctx, rec)
	if err := ctx.Err(); err != nil {
		return rec, fmt.Errorf("analysis canceled: %w", err)
	}

	r.logger.Info("Analysis %s finished in %s (stage errors: %d)",
		in.AnalysisID, rec.Elapsed().Round(time.Millisecond), len(rec.StageErrors))
	return rec, nil
}

// runVision identifies the item and grades its condition from the photo.
// On failure the run continues with a placeholder identification so the
// downstream stages still produce a complete record shape.
func (r *Runner) runVision(ctx context.Context, rec Record, in Input) Record {
	r.setStage(rec, StageVision)
	start := time.Now()

	prompt, err := r.renderer.Render(templates.VisionIdentifyTemplate, &templates.TemplateData{})
	if err != nil {
		r.recorder.ObserveStage(string(StageVision), false, time.Since(start))
		return rec.WithStageError(StageVision, err.Error()).WithVision("Unknown item", "{}")
	}

	resp, err := r.vision.Complete(ctx, llm.CompletionRequest{
		Messages:    []llm.CompletionMessage{llm.NewUserImageMessage(prompt, in.Image, in.MIME)},
		MaxTokens:   llm.DefaultMaxTokens,
		Temperature: llm.TemperatureDefault,
	})
	if err != nil {
		r.logger.Warn("Vision stage failed: %v", err)
		r.recorder.ObserveStage(string(StageVision), false, time.Since(start))
		return rec.WithStageError(StageVision, err.Error()).WithVision("Unknown item", "{}")
	}

	obj := coerce.Object(resp.Content)
	identification, _ := obj["identified_item"].(string)
	if identification == "" {
		identification = "Unknown item"
	}

	conditionJSON, err := json.Marshal(obj)
	if err != nil {
		conditionJSON = []byte("{}")
	}

	ok := !coerce.IsSentinel(obj)
	r.recorder.ObserveStage(string(StageVision), ok, time.Since(start))
	if !ok {
		rec = rec.WithStageError(StageVision, "vision response did not parse as JSON")
	}
	r.logger.Info("Identified: %s", identification)
	return rec.WithVision(identification, string(conditionJSON))
}

// runParallel executes the swarm fan-out and the shop search concurrently
// and joins on both. Each branch writes only its own local result.
func (r *Runner) runParallel(ctx context.Context, rec Record) Record {
	r.setStage(rec, StageSwarm)

	var (
		wg           sync.WaitGroup
		swarmResults []swarm.Result
		swarmErr     error
		listings     []shops.Listing
		shopsErr     error
	)

	wg.Add(2)
	go func() {
		defer wg.Done()
		start := time.Now()
		tasks, err := BuildTasks(r.specs, rec.Identification, rec.ConditionDetails)
		if err != nil {
			swarmErr = err
			r.recorder.ObserveStage(string(StageSwarm), false, time.Since(start))
			return
		}
		swarmResults = r.coordinator.Run(ctx, tasks)
		r.recorder.ObserveStage(string(StageSwarm), true, time.Since(start))
	}()
	go func() {
		defer wg.Done()
		start := time.Now()
		listings, shopsErr = r.finder.Find(ctx, rec.Identification, rec.Coordinates)
		r.recorder.ObserveStage(string(StageShops), shopsErr == nil, time.Since(start))
	}()
	wg.Wait()

	if swarmErr != nil {
		r.logger.Warn("Swarm stage failed: %v", swarmErr)
		rec = rec.WithStageError(StageSwarm, swarmErr.Error())
	}
	if shopsErr != nil {
		r.logger.Warn("Shop search failed: %v", shopsErr)
		rec = rec.WithStageError(StageShops, shopsErr.Error())
	}
	return rec.WithSwarm(swarmResults).WithShops(listings)
}

// runSynthesis consolidates everything into the final payload. A failed
// call or unparsable response degrades to the coerce sentinel.
func (r *Runner) runSynthesis(ctx context.Context, rec Record) Record {
	r.setStage(rec, StageSynthesis)
	start := time.Now()

	workerJSON := marshalIndent(rec.SwarmResults)
	shopJSON := marshalIndent(rec.Shops)

	data := &templates.TemplateData{
		Identification:   rec.Identification,
		ConditionDetails: rec.ConditionDetails,
		WorkerResults:    workerJSON,
		ShopListings:     shopJSON,
		Coordinates:      rec.Coordinates,
	}

	system, err := r.renderer.Render(templates.SynthesisSystemTemplate, data)
	if err != nil {
		r.recorder.ObserveStage(string(StageSynthesis), false, time.Since(start))
		return rec.WithStageError(StageSynthesis, err.Error()).WithSynthesis(coerce.Object(""))
	}
	prompt, err := r.renderer.Render(templates.SynthesisTemplate, data)
	if err != nil {
		r.recorder.ObserveStage(string(StageSynthesis), false, time.Since(start))
		return rec.WithStageError(StageSynthesis, err.Error()).WithSynthesis(coerce.Object(""))
	}

	resp, err := r.synthesis.Complete(ctx, llm.CompletionRequest{
		Messages: []llm.CompletionMessage{
			llm.NewSystemMessage(system),
			llm.NewUserMessage(prompt),
		},
		MaxTokens:   llm.DefaultMaxTokens,
		Temperature: llm.TemperatureDefault,
	})
	if err != nil {
		r.logger.Warn("Synthesis stage failed: %v", err)
		r.recorder.ObserveStage(string(StageSynthesis), false, time.Since(start))
		return rec.WithStageError(StageSynthesis, err.Error()).WithSynthesis(coerce.Object(""))
	}

	payload := coerce.Object(resp.Content)
	ok := !coerce.IsSentinel(payload)
	r.recorder.ObserveStage(string(StageSynthesis), ok, time.Since(start))
	if !ok {
		rec = rec.WithStageError(StageSynthesis, "synthesis response did not parse as JSON")
	}
	return rec.WithSynthesis(payload)
}

func (r *Runner) setStage(rec Record, stage Stage) {
	if r.tracker != nil {
		r.tracker.set(rec.AnalysisID, stage)
	}
}

func marshalIndent(v any) string {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return "[]"
	}
	return string(data)
}

// Package swarm runs a batch of independent market-analysis workers
// concurrently and joins on all of them.
//
// The coordinator guarantees K results for K tasks, in submission order,
// regardless of completion order. A failing or panicking worker degrades to
// an error-tagged entry; it never aborts the batch.
package swarm

import (
	"context"
	"fmt"
	"sync"
	"time"

	"appraisal/pkg/agent/llm"
	"appraisal/pkg/coerce"
	"appraisal/pkg/logx"
)

// Task is one unit of work for a worker: immutable, defined at startup and
// rendered against the identified item before dispatch.
type Task struct {
	Name   string // Worker name, e.g. "market_demand_analyst"
	Focus  string // One-line analytical focus, used in logs and prompts
	Prompt string // Fully rendered user prompt including the JSON contract
}

// Result is one worker's contribution. Exactly one of Result or Error is
// meaningful: Error is set when the call itself failed, Result otherwise
// (possibly the coerce sentinel when the model returned malformed JSON).
type Result struct {
	Worker         string         `json:"worker"`
	Result         map[string]any `json:"result,omitempty"`
	Error          string         `json:"error,omitempty"`
	ReasoningChars int            `json:"reasoning_chars,omitempty"`
	Duration       time.Duration  `json:"-"`
}

// Succeeded reports whether the worker produced cleanly parsed JSON.
func (r *Result) Succeeded() bool {
	return r.Error == "" && r.Result != nil && !coerce.IsSentinel(r.Result)
}

// Recorder receives per-worker observations. Implemented by the metrics
// package; a nil recorder disables recording.
type Recorder interface {
	ObserveWorker(worker string, success bool, reasoningChars int, duration time.Duration)
}

// Coordinator fans out worker calls over a single LLM client.
type Coordinator struct {
	client   llm.LLMClient
	recorder Recorder
	logger   *logx.Logger
}

// NewCoordinator creates a coordinator. The client is injected so tests can
// substitute fakes; recorder may be nil.
func NewCoordinator(client llm.LLMClient, recorder Recorder) *Coordinator {
	return &Coordinator{
		client:   client,
		recorder: recorder,
		logger:   logx.NewLogger("swarm"),
	}
}

// Run executes all tasks concurrently and waits for every one to finish.
// The returned slice always has exactly len(tasks) entries, index-aligned
// with the input. Workers share no mutable state: each writes only its own
// pre-allocated slot.
func (c *Coordinator) Run(ctx context.Context, tasks []Task) []Result {
	results := make([]Result, len(tasks))

	var wg sync.WaitGroup
	for i := range tasks {
		wg.Add(1)
		go func(slot int, task Task) {
			defer wg.Done()
			results[slot] = c.runOne(ctx, task)
		}(i, tasks[i])
	}
	wg.Wait()

	return results
}

// runOne executes a single worker call. All failure modes (transport
// errors, stream errors, panics) collapse into an error-tagged result.
func (c *Coordinator) runOne(ctx context.Context, task Task) (res Result) {
	res.Worker = task.Name
	start := time.Now()

	defer func() {
		if r := recover(); r != nil {
			res.Result = nil
			res.Error = fmt.Sprintf("worker panic: %v", r)
		}
		res.Duration = time.Since(start)
		if c.recorder != nil {
			c.recorder.ObserveWorker(task.Name, res.Succeeded(), res.ReasoningChars, res.Duration)
		}
	}()

	logx.Debug(ctx, "swarm", "Worker %s dispatched (%s)", task.Name, task.Focus)

	stream, err := c.client.Stream(ctx, llm.CompletionRequest{
		Messages:    []llm.CompletionMessage{llm.NewUserMessage(task.Prompt)},
		MaxTokens:   llm.SwarmMaxTokens,
		Temperature: 1.0, // Match the reasoning-model default
	})
	if err != nil {
		c.logger.Warn("Worker %s failed to start: %v", task.Name, err)
		res.Error = err.Error()
		return res
	}

	completion, err := llm.Drain(stream)
	if err != nil {
		c.logger.Warn("Worker %s stream failed: %v", task.Name, err)
		res.Error = err.Error()
		return res
	}

	res.Result = coerce.Object(completion.Content)
	res.ReasoningChars = len(completion.Reasoning)

	logx.Debug(ctx, "swarm", "Worker %s finished in %s (reasoning: %d chars, parsed: %t)",
		task.Name, time.Since(start).Round(time.Millisecond), res.ReasoningChars, res.Succeeded())
	return res
}

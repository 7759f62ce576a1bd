// Package testkit provides fakes and mock provider servers for tests.
package testkit

import (
	"context"
	"strings"
	"sync"
	"time"

	"appraisal/pkg/agent/llm"
)

// FakeLLM is an in-memory llm.LLMClient for pipeline and swarm tests.
// Responses are matched by substring against the last user message; the
// first match wins. Unmatched prompts fall back to Default.
type FakeLLM struct {
	mu        sync.Mutex
	rules     []fakeRule
	Default   string
	Err       error         // When set, every call fails with this error
	Delay     time.Duration // Artificial latency before responding
	Reasoning string        // Optional reasoning side channel
	calls     []string
}

type fakeRule struct {
	contains string
	response string
	err      error
}

// NewFakeLLM creates a fake client with the given default response.
func NewFakeLLM(defaultResponse string) *FakeLLM {
	return &FakeLLM{Default: defaultResponse}
}

// Respond registers a canned response for prompts containing substr.
func (f *FakeLLM) Respond(substr, response string) *FakeLLM {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rules = append(f.rules, fakeRule{contains: substr, response: response})
	return f
}

// Fail registers an error for prompts containing substr.
func (f *FakeLLM) Fail(substr string, err error) *FakeLLM {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rules = append(f.rules, fakeRule{contains: substr, err: err})
	return f
}

// Calls returns the prompts seen so far, in arrival order.
func (f *FakeLLM) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.calls))
	copy(out, f.calls)
	return out
}

func (f *FakeLLM) lookup(prompt string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, prompt)

	if f.Err != nil {
		return "", f.Err
	}
	for _, rule := range f.rules {
		if rule.contains != "" && strings.Contains(prompt, rule.contains) {
			if rule.err != nil {
				return "", rule.err
			}
			return rule.response, nil
		}
	}
	return f.Default, nil
}

// Complete implements llm.LLMClient.
func (f *FakeLLM) Complete(ctx context.Context, in llm.CompletionRequest) (llm.CompletionResponse, error) {
	if f.Delay > 0 {
		select {
		case <-time.After(f.Delay):
		case <-ctx.Done():
			return llm.CompletionResponse{}, ctx.Err()
		}
	}

	prompt := ""
	for i := range in.Messages {
		if in.Messages[i].Role == llm.RoleUser {
			prompt = in.Messages[i].Content
		}
	}

	content, err := f.lookup(prompt)
	if err != nil {
		return llm.CompletionResponse{}, err
	}
	return llm.CompletionResponse{Content: content, Reasoning: f.Reasoning, StopReason: "end_turn"}, nil
}

// Stream implements llm.LLMClient by chunking the Complete response.
func (f *FakeLLM) Stream(ctx context.Context, in llm.CompletionRequest) (<-chan llm.StreamChunk, error) {
	ch := make(chan llm.StreamChunk, 3)
	go func() {
		defer close(ch)
		resp, err := f.Complete(ctx, in)
		if err != nil {
			ch <- llm.StreamChunk{Error: err}
			return
		}
		if resp.Reasoning != "" {
			ch <- llm.StreamChunk{Reasoning: resp.Reasoning}
		}
		ch <- llm.StreamChunk{Content: resp.Content}
		ch <- llm.StreamChunk{Done: true}
	}()
	return ch, nil
}

// GetModelName implements llm.LLMClient.
func (f *FakeLLM) GetModelName() string {
	return "fake-model"
}

package metrics

import (
	"context"
	"time"

	"appraisal/pkg/agent/llm"
	"appraisal/pkg/agent/llmerrors"
	"appraisal/pkg/logx"
	"appraisal/pkg/utils"
)

const (
	statusSuccess = "success"
	statusError   = "error"
)

// UsageExtractor is a function that extracts token usage from a request and response.
type UsageExtractor func(req llm.CompletionRequest, resp llm.CompletionResponse) (promptTokens, completionTokens int)

// DefaultUsageExtractor estimates token usage with the GPT-4 tokenizer. The
// estimate is close enough for capacity planning across all three providers.
func DefaultUsageExtractor(req llm.CompletionRequest, resp llm.CompletionResponse) (promptTokens, completionTokens int) {
	var promptText string
	for i := range req.Messages {
		promptText += req.Messages[i].Content + "\n"
	}
	promptTokens = utils.CountTokensSimple(promptText)
	completionTokens = utils.CountTokensSimple(resp.Content + resp.Reasoning)
	return promptTokens, completionTokens
}

// Middleware returns a middleware function that records metrics for LLM operations.
// It tracks request latency, token usage, success/failure rates, and error types.
func Middleware(recorder Recorder, usageExtractor UsageExtractor, runProvider RunProvider, logger *logx.Logger) llm.Middleware {
	if usageExtractor == nil {
		usageExtractor = DefaultUsageExtractor
	}

	return func(next llm.LLMClient) llm.LLMClient {
		return llm.WrapClient(
			func(ctx context.Context, req llm.CompletionRequest) (llm.CompletionResponse, error) {
				start := time.Now()
				model := next.GetModelName()

				resp, err := next.Complete(ctx, req)
				duration := time.Since(start)

				var promptTokens, completionTokens int
				if err == nil {
					promptTokens, completionTokens = usageExtractor(req, resp)
				}

				errorType := ""
				if err != nil {
					errorType = llmerrors.TypeOf(err).String()
				}

				analysisID, stage := runLabels(runProvider)
				recorder.ObserveRequest(model, analysisID, stage,
					promptTokens, completionTokens, err == nil, errorType, duration)

				if logger != nil {
					status := statusSuccess
					if err != nil {
						status = statusError
					}
					logger.Info("LLM request: model=%s analysis=%s stage=%s tokens=%d+%d status=%s duration=%dms",
						model, analysisID, stage, promptTokens, completionTokens, status, duration.Milliseconds())
				}

				return resp, err //nolint:wrapcheck // Middleware should pass through errors unchanged
			},
			func(ctx context.Context, req llm.CompletionRequest) (<-chan llm.StreamChunk, error) {
				start := time.Now()
				model := next.GetModelName()

				ch, err := next.Stream(ctx, req)
				duration := time.Since(start)

				// Only setup time and outcome are tracked here. Token counts
				// for streams would require consuming the entire stream.
				errorType := ""
				if err != nil {
					errorType = llmerrors.TypeOf(err).String()
				}

				analysisID, stage := runLabels(runProvider)
				recorder.ObserveRequest(model, analysisID, stage,
					0, 0, err == nil, errorType, duration)

				return ch, err //nolint:wrapcheck // Middleware should pass through errors unchanged
			},
			func() string {
				return next.GetModelName()
			},
		)
	}
}

func runLabels(p RunProvider) (analysisID, stage string) {
	if p == nil {
		return "", ""
	}
	return p.AnalysisID(), p.Stage()
}

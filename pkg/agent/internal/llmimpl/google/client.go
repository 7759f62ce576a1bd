// Package google provides the Google Gemini client implementation for the
// LLM interface, used as the alternative vision/synthesis provider.
package google

import (
	"context"
	"fmt"
	"strings"

	"google.golang.org/genai"

	"appraisal/pkg/agent/llm"
	"appraisal/pkg/agent/llmerrors"
)

// GeminiClient wraps the Google GenAI client to implement llm.LLMClient.
type GeminiClient struct {
	client *genai.Client
	apiKey string
	model  string
}

// NewGeminiClientWithModel creates a new Gemini client with a specific model.
// Client creation requires a context, so it is deferred to the first call.
func NewGeminiClientWithModel(apiKey, model string) llm.LLMClient {
	return &GeminiClient{
		apiKey: apiKey,
		model:  model,
	}
}

// convertMessages maps completion messages onto Gemini contents, extracting
// system messages into the system instruction.
func convertMessages(messages []llm.CompletionMessage) (contents []*genai.Content, systemInstruction string, err error) {
	var systemParts []string

	for i := range messages {
		msg := &messages[i]
		switch msg.Role {
		case llm.RoleSystem:
			systemParts = append(systemParts, msg.Content)
		case llm.RoleUser, llm.RoleAssistant:
			role := genai.RoleUser
			if msg.Role == llm.RoleAssistant {
				role = genai.RoleModel
			}

			parts := make([]*genai.Part, 0, 1+len(msg.Images))
			for _, img := range msg.Images {
				parts = append(parts, &genai.Part{
					InlineData: &genai.Blob{MIMEType: img.MIME, Data: img.Data},
				})
			}
			if msg.Content != "" {
				parts = append(parts, &genai.Part{Text: msg.Content})
			}
			contents = append(contents, &genai.Content{Role: role, Parts: parts})
		default:
			return nil, "", fmt.Errorf("unsupported role %q", msg.Role)
		}
	}

	if len(contents) == 0 {
		return nil, "", fmt.Errorf("must have at least one non-system message")
	}
	return contents, strings.Join(systemParts, "\n\n"), nil
}

// Complete implements the llm.LLMClient interface.
func (g *GeminiClient) Complete(ctx context.Context, in llm.CompletionRequest) (llm.CompletionResponse, error) {
	if g.client == nil {
		client, err := genai.NewClient(ctx, &genai.ClientConfig{
			APIKey:  g.apiKey,
			Backend: genai.BackendGeminiAPI,
		})
		if err != nil {
			return llm.CompletionResponse{}, llmerrors.NewErrorWithCause(llmerrors.ErrorTypeUnknown, err, "failed to create Gemini client")
		}
		g.client = client
	}

	contents, systemInstruction, err := convertMessages(in.Messages)
	if err != nil {
		return llm.CompletionResponse{}, llmerrors.NewError(llmerrors.ErrorTypeBadPrompt, fmt.Sprintf("message conversion error: %v", err))
	}

	maxTokens := int32(in.MaxTokens) //nolint:gosec // Token budgets are far below int32 range
	config := &genai.GenerateContentConfig{
		Temperature:     &in.Temperature,
		MaxOutputTokens: maxTokens,
	}
	if systemInstruction != "" {
		config.SystemInstruction = &genai.Content{
			Parts: []*genai.Part{{Text: systemInstruction}},
		}
	}

	result, err := g.client.Models.GenerateContent(ctx, g.model, contents, config)
	if err != nil {
		return llm.CompletionResponse{}, llmerrors.NewErrorWithCause(llmerrors.ErrorTypeUnknown, err, "Gemini API call failed")
	}
	if result == nil {
		return llm.CompletionResponse{}, llmerrors.NewError(llmerrors.ErrorTypeEmptyResponse, "empty response from Gemini API")
	}

	out := llm.CompletionResponse{Content: result.Text()}
	if len(result.Candidates) > 0 {
		out.StopReason = string(result.Candidates[0].FinishReason)
	}
	return out, nil
}

// Stream implements the llm.LLMClient interface by wrapping Complete.
func (g *GeminiClient) Stream(ctx context.Context, in llm.CompletionRequest) (<-chan llm.StreamChunk, error) {
	ch := make(chan llm.StreamChunk, 2)
	go func() {
		defer close(ch)
		resp, err := g.Complete(ctx, in)
		if err != nil {
			ch <- llm.StreamChunk{Error: err}
			return
		}
		ch <- llm.StreamChunk{Content: resp.Content}
		ch <- llm.StreamChunk{Done: true}
	}()
	return ch, nil
}

// GetModelName returns the model name for this client.
func (g *GeminiClient) GetModelName() string {
	return g.model
}

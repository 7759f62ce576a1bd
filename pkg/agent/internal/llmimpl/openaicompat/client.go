// Package openaicompat provides an OpenAI-compatible client implementation
// used for the NVIDIA Nemotron endpoint. Streaming responses carry a
// reasoning_content side channel in the delta extra fields; it is
// accumulated and measured but not required for correctness.
package openaicompat

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"appraisal/pkg/agent/llm"
	"appraisal/pkg/agent/llmerrors"
)

// Client wraps the official OpenAI Go client pointed at a compatible
// endpoint to implement llm.LLMClient.
type Client struct {
	client openai.Client
	model  string
}

// NewClientWithModel creates a client for an OpenAI-compatible endpoint.
// baseURL selects the provider (e.g. the NVIDIA integrate API).
func NewClientWithModel(baseURL, apiKey, model string, opts ...option.RequestOption) llm.LLMClient {
	opts = append([]option.RequestOption{
		option.WithBaseURL(baseURL),
		option.WithAPIKey(apiKey),
	}, opts...)
	return &Client{
		client: openai.NewClient(opts...),
		model:  model,
	}
}

func (c *Client) buildParams(in llm.CompletionRequest) openai.ChatCompletionNewParams {
	messages := make([]openai.ChatCompletionMessageParamUnion, 0, len(in.Messages))
	for i := range in.Messages {
		msg := &in.Messages[i]
		switch msg.Role {
		case llm.RoleSystem:
			messages = append(messages, openai.SystemMessage(msg.Content))
		case llm.RoleAssistant:
			messages = append(messages, openai.AssistantMessage(msg.Content))
		default:
			messages = append(messages, openai.UserMessage(msg.Content))
		}
	}

	return openai.ChatCompletionNewParams{
		Model:       openai.ChatModel(c.model),
		Messages:    messages,
		MaxTokens:   openai.Int(int64(in.MaxTokens)),
		Temperature: openai.Float(float64(in.Temperature)),
	}
}

// Complete implements the llm.LLMClient interface.
func (c *Client) Complete(ctx context.Context, in llm.CompletionRequest) (llm.CompletionResponse, error) {
	resp, err := c.client.Chat.Completions.New(ctx, c.buildParams(in))
	if err != nil {
		return llm.CompletionResponse{}, llmerrors.NewErrorWithCause(llmerrors.ErrorTypeUnknown, err, "chat completion failed")
	}
	if resp == nil || len(resp.Choices) == 0 {
		return llm.CompletionResponse{}, llmerrors.NewError(llmerrors.ErrorTypeEmptyResponse, "empty response from chat completions API")
	}

	choice := &resp.Choices[0]
	out := llm.CompletionResponse{
		Content:    choice.Message.Content,
		StopReason: string(choice.FinishReason),
	}
	if field, ok := choice.Message.JSON.ExtraFields["reasoning_content"]; ok {
		out.Reasoning = decodeJSONString(field.Raw())
	}
	return out, nil
}

// Stream implements the llm.LLMClient interface. Content and reasoning
// deltas are forwarded as chunks until the provider closes the stream.
func (c *Client) Stream(ctx context.Context, in llm.CompletionRequest) (<-chan llm.StreamChunk, error) {
	params := c.buildParams(in)

	// Nemotron reasoning controls ride in the extra body.
	stream := c.client.Chat.Completions.NewStreaming(ctx, params,
		option.WithJSONSet("chat_template_kwargs", map[string]any{"enable_thinking": true}),
	)

	ch := make(chan llm.StreamChunk, 16)
	go func() {
		defer close(ch)

		for stream.Next() {
			chunk := stream.Current()
			if len(chunk.Choices) == 0 {
				continue
			}
			delta := &chunk.Choices[0].Delta

			out := llm.StreamChunk{Content: delta.Content}
			if field, ok := delta.JSON.ExtraFields["reasoning_content"]; ok {
				out.Reasoning = decodeJSONString(field.Raw())
			}
			if out.Content != "" || out.Reasoning != "" {
				ch <- out
			}
		}

		if err := stream.Err(); err != nil {
			ch <- llm.StreamChunk{Error: fmt.Errorf("completion stream failed: %w", err)}
			return
		}
		ch <- llm.StreamChunk{Done: true}
	}()

	return ch, nil
}

// GetModelName returns the model name for this client.
func (c *Client) GetModelName() string {
	return c.model
}

// decodeJSONString unquotes a raw JSON string value, returning the raw text
// when it is not a valid JSON string.
func decodeJSONString(raw string) string {
	if raw == "" || raw == "null" {
		return ""
	}
	var s string
	if err := json.Unmarshal([]byte(raw), &s); err != nil {
		return raw
	}
	return s
}

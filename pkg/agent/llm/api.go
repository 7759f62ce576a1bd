// Package llm provides interfaces and types for Large Language Model client implementations.
package llm

import (
	"context"
)

// CompletionRole represents the role of a message in a conversation.
type CompletionRole string

const (
	// RoleSystem indicates a system message that provides instructions or context.
	RoleSystem CompletionRole = "system"
	// RoleUser indicates a message from the human user.
	RoleUser CompletionRole = "user"
	// RoleAssistant indicates a message from the AI assistant.
	RoleAssistant CompletionRole = "assistant"
)

const (
	// DefaultMaxTokens is the default output budget for single-shot calls.
	DefaultMaxTokens = 4096

	// SwarmMaxTokens is the output budget for market-analysis workers, sized
	// for models that spend a large share of the budget on reasoning tokens.
	SwarmMaxTokens = 16384

	// TemperatureDefault allows some exploration while staying focused.
	TemperatureDefault = 0.3
)

// ImageAttachment carries raw image bytes plus their declared MIME type for
// vision-capable models.
type ImageAttachment struct {
	Data []byte
	MIME string
}

// CompletionMessage represents a message in a completion request.
type CompletionMessage struct {
	Content string
	Images  []ImageAttachment // Vision input, user messages only
	Role    CompletionRole
}

// CompletionRequest represents a request to generate a completion.
type CompletionRequest struct {
	Messages    []CompletionMessage
	MaxTokens   int
	Temperature float32
}

// CompletionResponse represents a response from a completion request.
type CompletionResponse struct {
	Content    string // Main response text
	Reasoning  string // Side-channel reasoning text, empty for most providers
	StopReason string // Why the response stopped: "end_turn", "max_tokens", etc.
}

// StreamChunk represents a chunk of streamed completion response.
type StreamChunk struct {
	Error     error
	Content   string
	Reasoning string // Reasoning delta, measured but not required for correctness
	Done      bool
}

// LLMClient defines the interface for language model interactions.
type LLMClient interface { //nolint:revive // Keep name for consistency with provider impls
	// Complete generates a completion synchronously.
	Complete(ctx context.Context, in CompletionRequest) (CompletionResponse, error)

	// Stream generates a completion as a stream of chunks.
	Stream(ctx context.Context, in CompletionRequest) (<-chan StreamChunk, error)

	// GetModelName returns the model name for this LLM client.
	GetModelName() string
}

// NewCompletionRequest creates a new completion request with default values.
func NewCompletionRequest(messages []CompletionMessage) CompletionRequest {
	return CompletionRequest{
		Messages:    messages,
		MaxTokens:   DefaultMaxTokens,
		Temperature: TemperatureDefault,
	}
}

// NewSystemMessage creates a new system message.
func NewSystemMessage(content string) CompletionMessage {
	return CompletionMessage{
		Role:    RoleSystem,
		Content: content,
	}
}

// NewUserMessage creates a new user message.
func NewUserMessage(content string) CompletionMessage {
	return CompletionMessage{
		Role:    RoleUser,
		Content: content,
	}
}

// NewUserImageMessage creates a user message carrying an image attachment.
func NewUserImageMessage(content string, data []byte, mime string) CompletionMessage {
	return CompletionMessage{
		Role:    RoleUser,
		Content: content,
		Images:  []ImageAttachment{{Data: data, MIME: mime}},
	}
}

// Drain accumulates a chunk stream into a single response, concatenating
// content and reasoning deltas until the stream reports Done or closes.
func Drain(stream <-chan StreamChunk) (CompletionResponse, error) {
	var out CompletionResponse
	for chunk := range stream {
		if chunk.Error != nil {
			return out, chunk.Error
		}
		out.Content += chunk.Content
		out.Reasoning += chunk.Reasoning
		if chunk.Done {
			break
		}
	}
	return out, nil
}

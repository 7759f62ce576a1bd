package openaicompat

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"appraisal/pkg/agent/llm"
	"appraisal/pkg/testkit"
)

func TestStreamAccumulatesContentAndReasoning(t *testing.T) {
	srv := testkit.MockOpenAIStreamServer("working through the comps", "The fair price is $250.")
	defer srv.Close()

	client := NewClientWithModel(srv.URL, "test-key", "test-model")
	assert.Equal(t, "test-model", client.GetModelName())

	stream, err := client.Stream(context.Background(), llm.CompletionRequest{
		Messages:    []llm.CompletionMessage{llm.NewUserMessage("What is a fair price?")},
		MaxTokens:   llm.SwarmMaxTokens,
		Temperature: 1.0,
	})
	require.NoError(t, err)

	resp, err := llm.Drain(stream)
	require.NoError(t, err)
	assert.Equal(t, "The fair price is $250.", resp.Content)
	assert.Equal(t, "working through the comps", resp.Reasoning)
}

func TestStreamSurfacesServerError(t *testing.T) {
	srv := testkit.MockOpenAIStreamServer("", "unused")
	srv.Close() // connection refused

	client := NewClientWithModel(srv.URL, "test-key", "test-model")
	stream, err := client.Stream(context.Background(), llm.CompletionRequest{
		Messages:  []llm.CompletionMessage{llm.NewUserMessage("hello")},
		MaxTokens: 16,
	})
	if err != nil {
		return
	}
	_, err = llm.Drain(stream)
	require.Error(t, err)
}

func TestSystemMessageOrdering(t *testing.T) {
	srv := testkit.MockOpenAIStreamServer("", "ok")
	defer srv.Close()

	client := NewClientWithModel(srv.URL, "test-key", "test-model")
	stream, err := client.Stream(context.Background(), llm.CompletionRequest{
		Messages: []llm.CompletionMessage{
			llm.NewSystemMessage("You are a pricing analyst."),
			llm.NewUserMessage("Price this bike."),
		},
		MaxTokens: 16,
	})
	require.NoError(t, err)

	resp, err := llm.Drain(stream)
	require.NoError(t, err)
	assert.Equal(t, "ok", resp.Content)
}

package anthropic

import (
	"context"
	"testing"

	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"appraisal/pkg/agent/llm"
	"appraisal/pkg/agent/llmerrors"
	"appraisal/pkg/testkit"
)

func TestCompleteAgainstMockServer(t *testing.T) {
	srv := testkit.MockAnthropicServer(`{"identified_item":"Trek 820"}`)
	defer srv.Close()

	client := NewClaudeClientWithModel("test-key", "claude-opus-4-6", option.WithBaseURL(srv.URL))
	assert.Equal(t, "claude-opus-4-6", client.GetModelName())

	resp, err := client.Complete(context.Background(), llm.CompletionRequest{
		Messages: []llm.CompletionMessage{
			llm.NewSystemMessage("You identify items from photos."),
			llm.NewUserImageMessage("Identify this item.", []byte{0xFF, 0xD8, 0xFF}, "image/jpeg"),
		},
		MaxTokens:   llm.DefaultMaxTokens,
		Temperature: llm.TemperatureDefault,
	})
	require.NoError(t, err)
	assert.Equal(t, `{"identified_item":"Trek 820"}`, resp.Content)
	assert.Equal(t, "end_turn", resp.StopReason)
}

func TestStreamWrapsComplete(t *testing.T) {
	srv := testkit.MockAnthropicServer("streamed text")
	defer srv.Close()

	client := NewClaudeClientWithModel("test-key", "claude-opus-4-6", option.WithBaseURL(srv.URL))
	stream, err := client.Stream(context.Background(), llm.CompletionRequest{
		Messages:  []llm.CompletionMessage{llm.NewUserMessage("go")},
		MaxTokens: 64,
	})
	require.NoError(t, err)

	resp, err := llm.Drain(stream)
	require.NoError(t, err)
	assert.Equal(t, "streamed text", resp.Content)
}

func TestCompleteRejectsEmptyMessages(t *testing.T) {
	client := NewClaudeClientWithModel("test-key", "claude-opus-4-6")

	_, err := client.Complete(context.Background(), llm.CompletionRequest{})
	require.Error(t, err)
	assert.Equal(t, llmerrors.ErrorTypeBadPrompt, llmerrors.TypeOf(err))
}

func TestEnsureAlternation(t *testing.T) {
	system, merged, err := ensureAlternation([]llm.CompletionMessage{
		llm.NewSystemMessage("rules"),
		llm.NewUserMessage("first"),
		llm.NewUserMessage("second"),
	})
	require.NoError(t, err)
	assert.Equal(t, "rules", system)
	require.Len(t, merged, 1)
	assert.Equal(t, "first\n\nsecond", merged[0].Content)

	// System-only input has no sendable message.
	_, _, err = ensureAlternation([]llm.CompletionMessage{llm.NewSystemMessage("rules")})
	require.Error(t, err)

	// The sequence must end on a user turn.
	_, _, err = ensureAlternation([]llm.CompletionMessage{
		llm.NewUserMessage("hi"),
		{Role: llm.RoleAssistant, Content: "hello"},
	})
	require.Error(t, err)
}

func TestUserImagesCarriedThroughMerge(t *testing.T) {
	_, merged, err := ensureAlternation([]llm.CompletionMessage{
		llm.NewUserImageMessage("look", []byte{0x89}, "image/png"),
		llm.NewUserMessage("and price it"),
	})
	require.NoError(t, err)
	require.Len(t, merged, 1)
	require.Len(t, merged[0].Images, 1)
	assert.Equal(t, "image/png", merged[0].Images[0].MIME)
}

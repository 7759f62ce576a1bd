package utils

import (
	"fmt"
	"sync"

	"github.com/tiktoken-go/tokenizer"
)

// TokenCounter provides approximate token counting for prompt sizing and
// cost metrics. All supported providers are approximated with the GPT-4
// encoding; exact counts are not required, only stable ones.
type TokenCounter struct {
	codec tokenizer.Codec
}

// NewTokenCounter creates a new token counter.
func NewTokenCounter() (*TokenCounter, error) {
	codec, err := tokenizer.ForModel(tokenizer.GPT4)
	if err != nil {
		return nil, fmt.Errorf("failed to create tokenizer codec: %w", err)
	}
	return &TokenCounter{codec: codec}, nil
}

// CountTokens returns the number of tokens in the given text.
func (tc *TokenCounter) CountTokens(text string) int {
	if tc == nil || tc.codec == nil {
		// Character-based estimation (4 chars ≈ 1 token)
		return len(text) / 4
	}

	count, err := tc.codec.Count(text)
	if err != nil {
		return len(text) / 4
	}
	return count
}

var sharedCounter = sync.OnceValue(func() *TokenCounter {
	tc, err := NewTokenCounter()
	if err != nil {
		return nil // nil counter falls back to character estimation
	}
	return tc
})

// CountTokensSimple provides a simple token counting function without
// requiring a TokenCounter instance.
func CountTokensSimple(text string) int {
	return sharedCounter().CountTokens(text)
}

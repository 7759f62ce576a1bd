package config

import (
	"fmt"
	"strings"
)

// Provider constants for client construction and middleware labeling.
const (
	ProviderAnthropic = "anthropic"
	ProviderNVIDIA    = "nvidia"
	ProviderGoogle    = "google"
	ProviderOllama    = "ollama"
)

// providerPatterns maps model name prefixes to providers, checked in order.
var providerPatterns = []struct {
	Prefix   string
	Provider string
}{
	{"claude", ProviderAnthropic},
	{"gemini", ProviderGoogle},
	{"nvidia/", ProviderNVIDIA},
	{"meta/", ProviderNVIDIA}, // Llama models served from the same endpoint
	{"ollama:", ProviderOllama},
	{"qwen", ProviderOllama},
	{"llama", ProviderOllama},
}

// GetModelProvider returns the API provider for a given model.
// Returns an error if the model cannot be mapped to a provider.
func GetModelProvider(modelName string) (string, error) {
	for i := range providerPatterns {
		if strings.HasPrefix(modelName, providerPatterns[i].Prefix) {
			return providerPatterns[i].Provider, nil
		}
	}
	return "", fmt.Errorf("unknown model %q: no provider pattern match", modelName)
}

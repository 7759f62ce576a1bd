// Package config provides configuration loading and management for the
// appraisal service. Settings come from the environment first, with an
// optional encrypted secrets file for API keys at rest.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Model registry constants. Providers are selected by model name prefix in
// the agent factory.
const (
	// ModelClaudeVision handles item identification and condition grading
	// from the uploaded photo, and the final synthesis call.
	ModelClaudeVision = "claude-opus-4-6"

	// ModelNemotronSwarm runs the market-analysis workers via the NVIDIA
	// OpenAI-compatible endpoint.
	ModelNemotronSwarm = "nvidia/nemotron-3-nano-30b-a3b"

	// ModelGeminiVision is the alternative vision/synthesis provider.
	ModelGeminiVision = "gemini-2.5-flash"

	// ModelOllamaSwarm is the local fallback for swarm workers when the
	// service runs in offline development mode.
	ModelOllamaSwarm = "qwen3:8b"

	// NVIDIABaseURL is the OpenAI-compatible endpoint for Nemotron models.
	NVIDIABaseURL = "https://integrate.api.nvidia.com/v1"

	// SearchAPIBaseURL is the place-search endpoint (Google Maps engine).
	SearchAPIBaseURL = "https://www.searchapi.io/api/v1/search"
)

// Secret names looked up via GetSecret.
const (
	SecretAnthropicKey  = "ANTHROPIC_API_KEY"
	SecretNVIDIAKey     = "NVIDIA_API_KEY"
	SecretGeminiKey     = "GEMINI_API_KEY"
	SecretSearchAPIKey  = "SEARCHAPI_KEY"
	SecretElevenKey     = "ELEVENLABS_API_KEY"
	SecretElevenAgentID = "ELEVENLABS_AGENT_ID"
	SecretServiceToken  = "APPRAISAL_API_TOKEN"
)

// Defaults matching the original deployment.
const (
	DefaultListenAddr = ":8080"
	DefaultDBPath     = "appraisal.db"

	// DefaultCoordinates is the fallback location (Brooklyn, NYC) when the
	// caller omits the ll form field.
	DefaultCoordinates = "@40.7009973,-73.994778"

	// DefaultSearchRadiusMiles bounds local shop search.
	DefaultSearchRadiusMiles = 10
)

// Settings holds the resolved runtime configuration.
type Settings struct {
	AnthropicAPIKey  string
	NVIDIAAPIKey     string
	GeminiAPIKey     string
	SearchAPIKey     string
	ElevenLabsAPIKey string
	ElevenLabsAgent  string
	ServiceToken     string

	VisionModel    string
	SwarmModel     string
	SynthesisModel string
	NVIDIABase     string
	SearchAPIBase  string

	ListenAddr  string
	DBPath      string
	OllamaHost  string
	UseOllama   bool // Run swarm workers against a local Ollama instance
	RadiusMiles int
}

// Load resolves settings from the secrets store and environment.
// Missing credentials for the core pipeline are a fatal configuration
// error, reported all at once so operators can fix them in one pass.
func Load() (*Settings, error) {
	s := &Settings{
		VisionModel:    envOr("APPRAISAL_VISION_MODEL", ModelClaudeVision),
		SwarmModel:     envOr("APPRAISAL_SWARM_MODEL", ModelNemotronSwarm),
		SynthesisModel: envOr("APPRAISAL_SYNTHESIS_MODEL", ModelClaudeVision),
		NVIDIABase:     envOr("NVIDIA_BASE_URL", NVIDIABaseURL),
		SearchAPIBase:  envOr("SEARCHAPI_BASE_URL", SearchAPIBaseURL),
		ListenAddr:     envOr("APPRAISAL_ADDR", DefaultListenAddr),
		DBPath:         envOr("APPRAISAL_DB", DefaultDBPath),
		OllamaHost:     envOr("OLLAMA_HOST", "http://localhost:11434"),
		RadiusMiles:    DefaultSearchRadiusMiles,
	}

	if v := os.Getenv("APPRAISAL_USE_OLLAMA"); v == "1" || strings.EqualFold(v, "true") {
		s.UseOllama = true
	}
	if v := os.Getenv("APPRAISAL_RADIUS_MILES"); v != "" {
		radius, err := strconv.Atoi(v)
		if err != nil || radius <= 0 {
			return nil, fmt.Errorf("invalid APPRAISAL_RADIUS_MILES %q", v)
		}
		s.RadiusMiles = radius
	}

	// Optional credentials: absent voice keys disable the calling proxy,
	// absent service token disables auth (development mode).
	s.GeminiAPIKey, _ = GetSecret(SecretGeminiKey)
	s.ElevenLabsAPIKey, _ = GetSecret(SecretElevenKey)
	s.ElevenLabsAgent, _ = GetSecret(SecretElevenAgentID)
	s.ServiceToken, _ = GetSecret(SecretServiceToken)

	var missing []string

	if s.AnthropicAPIKey, _ = GetSecret(SecretAnthropicKey); s.AnthropicAPIKey == "" && !s.UseOllama {
		missing = append(missing, SecretAnthropicKey)
	}
	if s.NVIDIAAPIKey, _ = GetSecret(SecretNVIDIAKey); s.NVIDIAAPIKey == "" && !s.UseOllama {
		missing = append(missing, SecretNVIDIAKey)
	}
	if s.SearchAPIKey, _ = GetSecret(SecretSearchAPIKey); s.SearchAPIKey == "" {
		missing = append(missing, SecretSearchAPIKey)
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("missing required credentials: %s (set them in the environment or the encrypted secrets file)",
			strings.Join(missing, ", "))
	}

	return s, nil
}

// envOr returns the environment value for key, or fallback when unset.
func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

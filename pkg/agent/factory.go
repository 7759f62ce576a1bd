// Package agent provides LLM client construction with middleware chains.
package agent

import (
	"fmt"
	"strings"

	"appraisal/pkg/agent/internal/llmimpl/anthropic"
	"appraisal/pkg/agent/internal/llmimpl/google"
	"appraisal/pkg/agent/internal/llmimpl/ollamalocal"
	"appraisal/pkg/agent/internal/llmimpl/openaicompat"
	"appraisal/pkg/agent/llm"
	"appraisal/pkg/agent/middleware/metrics"
	"appraisal/pkg/config"
	"appraisal/pkg/logx"
)

// Role identifies which pipeline stage a client is built for. Each role maps
// to a configured model name and, through it, to a provider.
type Role string

const (
	// RoleVision identifies the photo-identification client.
	RoleVision Role = "vision"
	// RoleSwarm identifies the market-analysis worker client.
	RoleSwarm Role = "swarm"
	// RoleSynthesis identifies the final appraisal-synthesis client.
	RoleSynthesis Role = "synthesis"
)

// LLMClientFactory creates LLM clients with properly configured middleware chains.
type LLMClientFactory struct {
	settings *config.Settings
	recorder metrics.Recorder
	logger   *logx.Logger
}

// NewLLMClientFactory creates a new LLM client factory with the given settings.
func NewLLMClientFactory(settings *config.Settings) *LLMClientFactory {
	return &LLMClientFactory{
		settings: settings,
		recorder: metrics.NewPrometheusRecorder(),
		logger:   logx.NewLogger("llm"),
	}
}

// Recorder exposes the factory's metrics recorder so pipeline stages and the
// swarm coordinator share one set of collectors.
func (f *LLMClientFactory) Recorder() metrics.Recorder {
	return f.recorder
}

// CreateClient creates an LLM client for the given role with the metrics
// middleware attached but no run attribution.
func (f *LLMClientFactory) CreateClient(role Role) (llm.LLMClient, error) {
	return f.CreateClientWithRun(role, nil)
}

// CreateClientWithRun creates an LLM client whose request metrics carry the
// analysis ID and stage reported by the given run provider.
func (f *LLMClientFactory) CreateClientWithRun(role Role, run metrics.RunProvider) (llm.LLMClient, error) {
	rawClient, err := f.createRawClient(role)
	if err != nil {
		return nil, err
	}

	return llm.Chain(rawClient,
		metrics.Middleware(f.recorder, nil, run, f.logger),
	), nil
}

func (f *LLMClientFactory) createRawClient(role Role) (llm.LLMClient, error) {
	modelName, err := f.modelFor(role)
	if err != nil {
		return nil, err
	}

	provider, err := config.GetModelProvider(modelName)
	if err != nil {
		return nil, fmt.Errorf("failed to determine provider for role %s: %w", role, err)
	}

	switch provider {
	case config.ProviderAnthropic:
		if f.settings.AnthropicAPIKey == "" {
			return nil, fmt.Errorf("model %s requires %s", modelName, config.SecretAnthropicKey)
		}
		return anthropic.NewClaudeClientWithModel(f.settings.AnthropicAPIKey, modelName), nil
	case config.ProviderGoogle:
		if f.settings.GeminiAPIKey == "" {
			return nil, fmt.Errorf("model %s requires %s", modelName, config.SecretGeminiKey)
		}
		return google.NewGeminiClientWithModel(f.settings.GeminiAPIKey, modelName), nil
	case config.ProviderNVIDIA:
		if f.settings.NVIDIAAPIKey == "" {
			return nil, fmt.Errorf("model %s requires %s", modelName, config.SecretNVIDIAKey)
		}
		return openaicompat.NewClientWithModel(f.settings.NVIDIABase, f.settings.NVIDIAAPIKey, modelName), nil
	case config.ProviderOllama:
		return ollamalocal.NewClientWithModel(f.settings.OllamaHost, strings.TrimPrefix(modelName, "ollama:")), nil
	default:
		return nil, fmt.Errorf("unsupported provider: %s", provider)
	}
}

// modelFor resolves the configured model for a role. With UseOllama set the
// swarm reroutes to a local model so the whole fan-out can run offline.
func (f *LLMClientFactory) modelFor(role Role) (string, error) {
	switch role {
	case RoleVision:
		return f.settings.VisionModel, nil
	case RoleSwarm:
		if f.settings.UseOllama {
			if p, err := config.GetModelProvider(f.settings.SwarmModel); err == nil && p == config.ProviderOllama {
				return f.settings.SwarmModel, nil
			}
			return config.ModelOllamaSwarm, nil
		}
		return f.settings.SwarmModel, nil
	case RoleSynthesis:
		return f.settings.SynthesisModel, nil
	default:
		return "", fmt.Errorf("unsupported client role: %s", role)
	}
}

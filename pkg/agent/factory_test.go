package agent

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"appraisal/pkg/config"
)

func testSettings() *config.Settings {
	return &config.Settings{
		AnthropicAPIKey: "test-anthropic-key",
		NVIDIAAPIKey:    "test-nvidia-key",
		GeminiAPIKey:    "test-gemini-key",
		VisionModel:     config.ModelClaudeVision,
		SwarmModel:      config.ModelNemotronSwarm,
		SynthesisModel:  config.ModelClaudeVision,
		NVIDIABase:      config.NVIDIABaseURL,
		OllamaHost:      "http://localhost:11434",
	}
}

func TestFactoryCreatesClientPerRole(t *testing.T) {
	f := NewLLMClientFactory(testSettings())

	for _, role := range []Role{RoleVision, RoleSwarm, RoleSynthesis} {
		client, err := f.CreateClient(role)
		require.NoError(t, err, "role %s", role)
		assert.NotEmpty(t, client.GetModelName())
	}
}

func TestFactoryRoutesByModelPrefix(t *testing.T) {
	s := testSettings()
	s.SynthesisModel = config.ModelGeminiVision
	f := NewLLMClientFactory(s)

	client, err := f.CreateClient(RoleSynthesis)
	require.NoError(t, err)
	assert.Equal(t, config.ModelGeminiVision, client.GetModelName())
}

func TestFactoryRejectsUnknownModel(t *testing.T) {
	s := testSettings()
	s.VisionModel = "mystery-model-9000"
	f := NewLLMClientFactory(s)

	_, err := f.CreateClient(RoleVision)
	assert.Error(t, err)
}

func TestFactoryRequiresAPIKey(t *testing.T) {
	s := testSettings()
	s.NVIDIAAPIKey = ""
	f := NewLLMClientFactory(s)

	_, err := f.CreateClient(RoleSwarm)
	require.Error(t, err)
	assert.Contains(t, err.Error(), config.SecretNVIDIAKey)
}

func TestFactoryOllamaModeReroutesSwarm(t *testing.T) {
	s := testSettings()
	s.UseOllama = true
	s.NVIDIAAPIKey = ""
	f := NewLLMClientFactory(s)

	client, err := f.CreateClient(RoleSwarm)
	require.NoError(t, err)
	assert.Equal(t, config.ModelOllamaSwarm, client.GetModelName())

	// An explicit local model wins over the default.
	s.SwarmModel = "ollama:phi4"
	client, err = NewLLMClientFactory(s).CreateClient(RoleSwarm)
	require.NoError(t, err)
	assert.Equal(t, "phi4", client.GetModelName())
}

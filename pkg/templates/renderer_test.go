package templates

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRendererParsesAllTemplates(t *testing.T) {
	r, err := NewRenderer()
	require.NoError(t, err)

	for _, name := range []PromptTemplate{VisionIdentifyTemplate, SynthesisTemplate, SynthesisSystemTemplate} {
		out, err := r.Render(name, &TemplateData{})
		require.NoError(t, err, "template %s", name)
		assert.NotEmpty(t, out)
	}
}

func TestSynthesisTemplateCarriesStageData(t *testing.T) {
	r, err := NewRenderer()
	require.NoError(t, err)

	data := &TemplateData{
		Identification:   "2024 Specialized Stumpjumper",
		ConditionDetails: `{"condition_grade":"good"}`,
		WorkerResults:    `[{"worker":"market_demand_analyst"}]`,
		ShopListings:     `[{"name":"EZ Pawn"}]`,
		Coordinates:      "@40.7009973,-73.994778",
	}

	out, err := r.Render(SynthesisTemplate, data)
	require.NoError(t, err)
	assert.Contains(t, out, "2024 Specialized Stumpjumper")
	assert.Contains(t, out, "market_demand_analyst")
	assert.Contains(t, out, "EZ Pawn")
	assert.Contains(t, out, "@40.7009973,-73.994778")
	assert.Contains(t, out, "walk_away_price")
}

func TestRenderUnknownTemplate(t *testing.T) {
	r, err := NewRenderer()
	require.NoError(t, err)

	_, err = r.Render(PromptTemplate("missing.tpl.md"), &TemplateData{})
	assert.Error(t, err)
}

func TestRenderText(t *testing.T) {
	out, err := RenderText("Analyze {{.Identification}} ({{.Focus}})", &TemplateData{
		Identification: "gold ring",
		Focus:          "demand",
	})
	require.NoError(t, err)
	assert.Equal(t, "Analyze gold ring (demand)", out)

	_, err = RenderText("{{.Broken", &TemplateData{})
	assert.Error(t, err)
}

// Package templates provides prompt template rendering for the appraisal
// pipeline stages.
package templates

import (
	"bytes"
	"embed"
	"fmt"
	"strings"
	"text/template"
)

//go:embed *.tpl.md
var templateFS embed.FS

// TemplateData holds the data for template rendering. Fields are filled per
// stage; unused fields render empty.
type TemplateData struct {
	Identification   string // Identified item summary from the vision stage
	ConditionDetails string // Vision condition JSON, verbatim
	WorkerResults    string // Pretty-printed swarm results JSON
	ShopListings     string // Candidate shop list JSON
	Focus            string // Worker's analytical focus line
	Coordinates      string // "@lat,lng" search origin
}

// PromptTemplate identifies one embedded stage template.
type PromptTemplate string

const (
	// VisionIdentifyTemplate asks the vision model for item identity and
	// condition grading from a photo.
	VisionIdentifyTemplate PromptTemplate = "vision_identify.tpl.md"
	// SynthesisTemplate asks for the consolidated appraisal payload.
	SynthesisTemplate PromptTemplate = "synthesis.tpl.md"
	// SynthesisSystemTemplate is the system prompt for the synthesis call.
	SynthesisSystemTemplate PromptTemplate = "synthesis_system.tpl.md"
)

// Renderer handles template rendering for pipeline stages.
type Renderer struct {
	templates map[PromptTemplate]*template.Template
}

// NewRenderer creates a new template renderer with all stage templates
// parsed eagerly, so malformed templates fail at startup rather than
// mid-pipeline.
func NewRenderer() (*Renderer, error) {
	r := &Renderer{
		templates: make(map[PromptTemplate]*template.Template),
	}

	templateNames := []PromptTemplate{
		VisionIdentifyTemplate,
		SynthesisTemplate,
		SynthesisSystemTemplate,
	}

	for _, name := range templateNames {
		content, err := templateFS.ReadFile(string(name))
		if err != nil {
			return nil, fmt.Errorf("failed to read template %s: %w", name, err)
		}

		tmpl, err := template.New(string(name)).Funcs(template.FuncMap{
			"contains": strings.Contains,
		}).Parse(string(content))
		if err != nil {
			return nil, fmt.Errorf("failed to parse template %s: %w", name, err)
		}

		r.templates[name] = tmpl
	}

	return r, nil
}

// Render renders the specified template with the given data.
func (r *Renderer) Render(templateName PromptTemplate, data *TemplateData) (string, error) {
	tmpl, exists := r.templates[templateName]
	if !exists {
		return "", fmt.Errorf("template %s not found", templateName)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("failed to render template %s: %w", templateName, err)
	}

	return buf.String(), nil
}

// RenderText renders an ad-hoc template string (worker prompts loaded from
// the task descriptor file) against the same data shape.
func RenderText(text string, data *TemplateData) (string, error) {
	tmpl, err := template.New("inline").Parse(text)
	if err != nil {
		return "", fmt.Errorf("failed to parse inline template: %w", err)
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("failed to render inline template: %w", err)
	}
	return buf.String(), nil
}

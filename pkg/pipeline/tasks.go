package pipeline

import (
	_ "embed"
	"fmt"

	"gopkg.in/yaml.v3"

	"appraisal/pkg/swarm"
	"appraisal/pkg/templates"
)

//go:embed workers.yaml
var workersYAML []byte

// TaskSpec is one immutable worker definition loaded at startup. The Prompt
// field is a template rendered against the vision output before dispatch.
type TaskSpec struct {
	Name   string `yaml:"name"`
	Focus  string `yaml:"focus"`
	Prompt string `yaml:"prompt"`
}

// LoadTaskSpecs parses the embedded worker definitions.
func LoadTaskSpecs() ([]TaskSpec, error) {
	var doc struct {
		Workers []TaskSpec `yaml:"workers"`
	}
	if err := yaml.Unmarshal(workersYAML, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse worker definitions: %w", err)
	}
	if len(doc.Workers) == 0 {
		return nil, fmt.Errorf("worker definitions are empty")
	}

	seen := make(map[string]bool, len(doc.Workers))
	for i := range doc.Workers {
		w := &doc.Workers[i]
		if w.Name == "" || w.Prompt == "" {
			return nil, fmt.Errorf("worker %d is missing a name or prompt", i)
		}
		if seen[w.Name] {
			return nil, fmt.Errorf("duplicate worker name %q", w.Name)
		}
		seen[w.Name] = true
	}
	return doc.Workers, nil
}

// BuildTasks renders each worker prompt against the identification context.
// Every worker receives the identical context; differentiation comes from
// the per-worker prompt and JSON contract.
func BuildTasks(specs []TaskSpec, identification, conditionDetails string) ([]swarm.Task, error) {
	data := &templates.TemplateData{
		Identification:   identification,
		ConditionDetails: conditionDetails,
	}

	tasks := make([]swarm.Task, 0, len(specs))
	for _, spec := range specs {
		prompt, err := templates.RenderText(spec.Prompt, data)
		if err != nil {
			return nil, fmt.Errorf("failed to render prompt for worker %s: %w", spec.Name, err)
		}
		tasks = append(tasks, swarm.Task{
			Name:   spec.Name,
			Focus:  spec.Focus,
			Prompt: prompt,
		})
	}
	return tasks, nil
}

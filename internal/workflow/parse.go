package workflow

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/zjrosen/vibe/internal/sessions/domain"
)

// Limits on definition fields.
const (
	MaxNameLength        = 200
	MaxDescriptionLength = 500
)

// ErrEmptyDefinition is returned for a file with no YAML document.
var ErrEmptyDefinition = errors.New("empty workflow definition")

// ValidationError lists every problem found in one definition file.
type ValidationError struct {
	Path     string
	Problems []string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid workflow %s:\n  - %s", e.Path, strings.Join(e.Problems, "\n  - "))
}

// definitionFile is the on-disk shape of a definition.
type definitionFile struct {
	Name         string     `yaml:"name"`
	DisplayName  string     `yaml:"display_name"`
	Description  string     `yaml:"description"`
	Category     string     `yaml:"category"`
	Guidance     string     `yaml:"guidance"`
	Triggers     []string   `yaml:"triggers"`
	Steps        []yamlStep `yaml:"steps"`
	Commands     []yamlStep `yaml:"commands"` // older name for steps
	Items        []yamlStep `yaml:"items"`    // checklists
	Dependencies []string   `yaml:"dependencies"`
	ProjectTypes []string   `yaml:"project_types"`
	Conditions   []string   `yaml:"conditions"`
}

// yamlStep accepts either a plain string or a mapping with step text and an
// optional command.
type yamlStep struct {
	step domain.Step
}

func (s *yamlStep) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		var text string
		if err := node.Decode(&text); err != nil {
			return err
		}
		if strings.TrimSpace(text) == "" {
			return fmt.Errorf("line %d: step text is empty", node.Line)
		}
		s.step = domain.GuidanceStep(text)
		return nil
	case yaml.MappingNode:
		var raw struct {
			Step       string `yaml:"step"`
			StepText   string `yaml:"step_text"`
			Command    string `yaml:"command"`
			WorkingDir string `yaml:"working_dir"`
		}
		if err := node.Decode(&raw); err != nil {
			return err
		}
		text := raw.StepText
		if text == "" {
			text = raw.Step
		}
		if strings.TrimSpace(text) == "" {
			return fmt.Errorf("line %d: step needs step_text", node.Line)
		}
		if raw.Command == "" && raw.WorkingDir == "" {
			s.step = domain.GuidanceStep(text)
			return nil
		}
		s.step = domain.CommandStep{Guidance: text, Command: raw.Command, WorkingDir: raw.WorkingDir}
		return nil
	default:
		return fmt.Errorf("line %d: step must be a string or a mapping", node.Line)
	}
}

// Parse decodes and validates one definition. Unknown fields are rejected.
func Parse(data []byte, source Source, path string) (*Definition, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var f definitionFile
	if err := dec.Decode(&f); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, ErrEmptyDefinition
		}
		return nil, &ValidationError{Path: path, Problems: []string{err.Error()}}
	}

	def := &Definition{
		Name:         strings.TrimSpace(f.Name),
		DisplayName:  f.DisplayName,
		Description:  strings.TrimSpace(f.Description),
		Category:     f.Category,
		Guidance:     f.Guidance,
		Triggers:     f.Triggers,
		Dependencies: f.Dependencies,
		ProjectTypes: f.ProjectTypes,
		Conditions:   f.Conditions,
		Kind:         KindWorkflow,
		Source:       source,
		FilePath:     path,
	}

	steps := f.Steps
	if len(steps) == 0 {
		steps = f.Commands
	}
	if len(steps) == 0 && len(f.Items) > 0 {
		steps = f.Items
		def.Kind = KindChecklist
	}
	def.Steps = make(domain.Steps, 0, len(steps))
	for _, s := range steps {
		def.Steps = append(def.Steps, s.step)
	}

	if problems := def.validate(); len(problems) > 0 {
		return nil, &ValidationError{Path: path, Problems: problems}
	}
	return def, nil
}

func (d *Definition) validate() []string {
	var problems []string
	switch {
	case d.Name == "":
		problems = append(problems, "name: required")
	case len(d.Name) > MaxNameLength:
		problems = append(problems, fmt.Sprintf("name: longer than %d characters", MaxNameLength))
	case strings.ContainsAny(d.Name, " \t\n/\\"):
		problems = append(problems, "name: must not contain whitespace or slashes")
	}
	switch {
	case d.Description == "":
		problems = append(problems, "description: required")
	case len(d.Description) > MaxDescriptionLength:
		problems = append(problems, fmt.Sprintf("description: longer than %d characters", MaxDescriptionLength))
	}
	if len(d.Triggers) == 0 {
		problems = append(problems, "triggers: at least one trigger is required")
	}
	if len(d.Steps) == 0 {
		problems = append(problems, "steps: at least one step is required")
	}
	problems = append(problems, blankEntries("triggers", d.Triggers)...)
	problems = append(problems, blankEntries("dependencies", d.Dependencies)...)
	problems = append(problems, blankEntries("project_types", d.ProjectTypes)...)
	problems = append(problems, blankEntries("conditions", d.Conditions)...)
	return problems
}

func blankEntries(field string, values []string) []string {
	var problems []string
	for i, v := range values {
		if strings.TrimSpace(v) == "" {
			problems = append(problems, fmt.Sprintf("%s[%d]: must not be empty", field, i))
		}
	}
	return problems
}

// Package workflow loads workflow definitions and resolves them into frames.
//
// Definitions are YAML files. They come from three places: built-in files
// embedded in the binary, community files embedded separately and loaded only
// when enabled by name, and the user's workflow directory, which can be watched
// for changes. A user definition replaces a built-in or community one with the
// same name.
package workflow

import (
	"github.com/zjrosen/vibe/internal/sessions/domain"
)

// Source indicates where a workflow definition originated from.
type Source int

const (
	// SourceBuiltIn indicates a workflow bundled with the application.
	SourceBuiltIn Source = iota
	// SourceCommunity indicates a community-contributed workflow.
	SourceCommunity
	// SourceUser indicates a workflow from the user's workflow directory.
	SourceUser
)

// String returns a human-readable representation of the Source.
func (s Source) String() string {
	switch s {
	case SourceBuiltIn:
		return "built-in"
	case SourceCommunity:
		return "community"
	case SourceUser:
		return "user"
	default:
		return "unknown"
	}
}

// Kind distinguishes step-by-step workflows from checklists.
type Kind string

const (
	// KindWorkflow is an ordered list of steps.
	KindWorkflow Kind = "workflow"
	// KindChecklist is a list of items to verify. It runs like a workflow.
	KindChecklist Kind = "checklist"
)

// Definition is a named, reusable list of steps.
type Definition struct {
	// Name is the unique identifier used to start or push the workflow.
	Name string `json:"name"`

	// DisplayName is an optional label for listings.
	DisplayName string `json:"display_name,omitempty"`

	Description string `json:"description"`

	// Category is an optional grouping category.
	Category string `json:"category,omitempty"`

	// Triggers are word patterns matched against a prompt. A * matches any
	// run of word characters.
	Triggers []string `json:"triggers"`

	Steps domain.Steps `json:"steps"`

	// Dependencies lists tools the steps expect to be installed.
	Dependencies []string `json:"dependencies,omitempty"`

	// ProjectTypes lists the project types the workflow applies to.
	ProjectTypes []string `json:"project_types,omitempty"`

	// Conditions are advisory preconditions shown alongside the workflow.
	Conditions []string `json:"conditions,omitempty"`

	// Guidance is optional free text shown when the workflow starts.
	Guidance string `json:"guidance,omitempty"`

	Kind Kind `json:"kind"`

	// Source indicates whether this is a built-in, community or user workflow.
	Source Source `json:"-"`

	// FilePath is the file the definition was read from. For embedded
	// workflows it is the path inside the embedded filesystem.
	FilePath string `json:"file,omitempty"`
}

// FrameSpec converts the definition into the spec of a new frame.
func (d *Definition) FrameSpec() domain.FrameSpec {
	steps := make([]domain.Step, len(d.Steps))
	copy(steps, d.Steps)
	return domain.FrameSpec{Name: d.Name, Steps: steps}
}

// Label returns DisplayName, or Name when no display name is set.
func (d *Definition) Label() string {
	if d.DisplayName != "" {
		return d.DisplayName
	}
	return d.Name
}

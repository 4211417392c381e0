package domain

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// Instruction annotations prepended to rendered step text.
const (
	CommandAnnotation  = "AUTO-VIBE: Execute without interaction. Use quiet/yes flags. Report outcome concisely."
	ReviewAnnotation   = "AUTO-VIBE: Verify and report status briefly."
	ReminderAnnotation = "Remember: Analyze, Reflect, Plan, Execute"
)

// commandPrefixes are the leading tokens that mark a guidance string as a
// shell command to run.
var commandPrefixes = []string{
	"run ", "execute ", "install ", "npm ", "pip ", "git ", "cd ", "mkdir ",
	"touch ", "curl ", "wget ", "docker ", "python ", "node ", "bun ", "yarn ",
	"pnpm ", "cargo ", "go ", "rustc ", "make ", "uv ",
}

var reviewPattern = regexp.MustCompile(`(?i)\b(verify|verifies|check|checks|review|reviews|ensure|ensures|confirm|confirms|validate|validates|inspect|inspects|audit|audits)\b`)

// Step is one unit of guidance within a workflow. It is a closed set: a Step
// is either a GuidanceStep or a CommandStep.
type Step interface {
	// Text is the guidance shown to the agent.
	Text() string
	isStep()
}

// GuidanceStep is a plain natural-language instruction.
type GuidanceStep string

// Text implements Step.
func (g GuidanceStep) Text() string { return string(g) }

func (GuidanceStep) isStep() {}

// CommandStep is a structured step that carries a shell command alongside its
// guidance text.
type CommandStep struct {
	Guidance   string `json:"step" yaml:"step"`
	Command    string `json:"command,omitempty" yaml:"command,omitempty"`
	WorkingDir string `json:"working_dir,omitempty" yaml:"working_dir,omitempty"`
}

// Text implements Step.
func (c CommandStep) Text() string { return c.Guidance }

func (CommandStep) isStep() {}

// looksLikeCommand reports whether plain guidance starts with a command token.
func looksLikeCommand(text string) bool {
	lowered := strings.ToLower(strings.TrimSpace(text))
	for _, prefix := range commandPrefixes {
		if strings.HasPrefix(lowered, prefix) {
			return true
		}
	}
	return false
}

// looksLikeReview reports whether plain guidance asks for verification.
func looksLikeReview(text string) bool {
	return reviewPattern.MatchString(text)
}

// IsCommand reports whether s should be executed rather than discussed.
func IsCommand(s Step) bool {
	switch v := s.(type) {
	case GuidanceStep:
		return looksLikeCommand(string(v))
	case CommandStep:
		return v.Command != ""
	default:
		return false
	}
}

// RenderStep returns the instruction text for s. Plain guidance is annotated
// when it reads as a command or a verification request; structured steps
// return their guidance text.
func RenderStep(s Step) string {
	switch v := s.(type) {
	case GuidanceStep:
		text := string(v)
		switch {
		case looksLikeCommand(text):
			return CommandAnnotation + "\n\n" + text
		case looksLikeReview(text):
			return ReviewAnnotation + "\n\n" + text
		default:
			return text
		}
	case CommandStep:
		return v.Guidance
	default:
		return ""
	}
}

// Steps is an ordered step list with a mixed JSON encoding: guidance steps
// encode as strings and command steps as objects.
type Steps []Step

// MarshalJSON implements json.Marshaler.
func (s Steps) MarshalJSON() ([]byte, error) {
	raw := make([]any, 0, len(s))
	for i, step := range s {
		switch v := step.(type) {
		case GuidanceStep:
			raw = append(raw, string(v))
		case CommandStep:
			raw = append(raw, v)
		default:
			return nil, fmt.Errorf("step %d: unsupported step type %T", i, step)
		}
	}
	return json.Marshal(raw)
}

// UnmarshalJSON implements json.Unmarshaler.
func (s *Steps) UnmarshalJSON(data []byte) error {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	out := make(Steps, 0, len(raw))
	for i, item := range raw {
		step, err := decodeStep(item)
		if err != nil {
			return fmt.Errorf("step %d: %w", i, err)
		}
		out = append(out, step)
	}
	*s = out
	return nil
}

func decodeStep(item json.RawMessage) (Step, error) {
	var text string
	if err := json.Unmarshal(item, &text); err == nil {
		return GuidanceStep(text), nil
	}
	var cmd CommandStep
	if err := json.Unmarshal(item, &cmd); err != nil {
		return nil, err
	}
	if cmd.Guidance == "" && cmd.Command == "" {
		return nil, errors.New("structured step needs step text or a command")
	}
	return cmd, nil
}

package monitor

import (
	"regexp"
	"strings"
)

// Signals is what a Classifier extracts from an agent response.
type Signals struct {
	// Completion is set when the text reads like the work is finished.
	Completion bool `json:"completion"`
	// WorkflowManagement is set when the text advances, breaks, or checks a
	// workflow.
	WorkflowManagement bool `json:"workflow_management"`
	// Matches holds the phrases that triggered the signals, lowercased.
	Matches []string `json:"matches,omitempty"`
}

// Classifier turns free text into Signals.
type Classifier interface {
	Classify(text string) Signals
}

// ClassifierFunc adapts a function to Classifier.
type ClassifierFunc func(text string) Signals

// Classify implements Classifier.
func (f ClassifierFunc) Classify(text string) Signals { return f(text) }

// Default vocabularies for PatternClassifier.
var (
	DefaultCompletionPatterns = []string{
		`\b(summary|conclusion|concludes?|final|complete[sd]?|done|finished|ready)\b`,
		`\b(that should|this completes|we have|i have)\b`,
		`\b(in summary|to summarize|to conclude)\b`,
		`\b(follow.?up|moving forward)\b`,
	}
	DefaultManagementPatterns = []string{
		`\b(advance|back|break|restart)_workflow\b`,
		`\b(get_workflow_status|list_workflow_sessions|restart_session)\b`,
		`\b(advanc(e|ed|ing)|break(ing)?|continu(e|ing)|complet(e|ing)|exit(ing)?)\s+(out\s+of\s+)?(the\s+|this\s+)?(current\s+)?workflow\b`,
		`\bworkflow\s+(status|session)s?\b`,
		`\bnext\s+steps?\b`,
	}
)

// PatternClassifier classifies text with case-insensitive regular expressions.
type PatternClassifier struct {
	completion []*regexp.Regexp
	management []*regexp.Regexp
}

// NewPatternClassifier compiles the given pattern sets. Patterns are matched
// case-insensitively.
func NewPatternClassifier(completion, management []string) (*PatternClassifier, error) {
	c := &PatternClassifier{}
	for _, p := range completion {
		re, err := regexp.Compile("(?i)" + p)
		if err != nil {
			return nil, err
		}
		c.completion = append(c.completion, re)
	}
	for _, p := range management {
		re, err := regexp.Compile("(?i)" + p)
		if err != nil {
			return nil, err
		}
		c.management = append(c.management, re)
	}
	return c, nil
}

// DefaultClassifier returns a PatternClassifier with the default vocabularies.
func DefaultClassifier() *PatternClassifier {
	c, err := NewPatternClassifier(DefaultCompletionPatterns, DefaultManagementPatterns)
	if err != nil {
		panic(err)
	}
	return c
}

// Classify implements Classifier.
func (c *PatternClassifier) Classify(text string) Signals {
	var s Signals
	for _, re := range c.completion {
		if m := re.FindString(text); m != "" {
			s.Completion = true
			s.Matches = append(s.Matches, strings.ToLower(m))
		}
	}
	for _, re := range c.management {
		if m := re.FindString(text); m != "" {
			s.WorkflowManagement = true
			s.Matches = append(s.Matches, strings.ToLower(m))
		}
	}
	return s
}

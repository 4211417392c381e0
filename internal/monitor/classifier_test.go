package monitor

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPatternClassifier_Completion(t *testing.T) {
	c := DefaultClassifier()

	completes := []string{
		"That completes the implementation of the parser.",
		"Final step: all migrations applied.",
		"I have updated the handler and the tests.",
		"This concludes our work on the feature.",
		"DONE.",
		"That should cover the failing case.",
	}
	for _, text := range completes {
		require.True(t, c.Classify(text).Completion, text)
	}

	open := []string{
		"Let's continue with the next step.",
		"Reading the configuration loader.",
		"The readiness probe needs a longer timeout.",
	}
	for _, text := range open {
		require.False(t, c.Classify(text).Completion, text)
	}
}

func TestPatternClassifier_Management(t *testing.T) {
	c := DefaultClassifier()

	managed := []string{
		"Calling advance_workflow.",
		"I should check workflow status first.",
		"Let me advance the workflow to the next step.",
		"Breaking out of the workflow now.",
		"Use list_workflow_sessions to see everything.",
		"In summary, here are the next steps for you.",
	}
	for _, text := range managed {
		require.True(t, c.Classify(text).WorkflowManagement, text)
	}

	require.False(t, c.Classify("In summary, everything is complete.").WorkflowManagement)
}

func TestPatternClassifier_Matches(t *testing.T) {
	s := DefaultClassifier().Classify("In Summary: ready to advance_workflow")
	require.True(t, s.Completion)
	require.True(t, s.WorkflowManagement)
	require.Contains(t, s.Matches, "summary")
	require.Contains(t, s.Matches, "advance_workflow")
}

func TestNewPatternClassifier_InvalidPattern(t *testing.T) {
	_, err := NewPatternClassifier([]string{"("}, nil)
	require.Error(t, err)
}

func TestPatternClassifier_NextStepsIsNotForgottenCompletion(t *testing.T) {
	s := DefaultClassifier().Classify("In summary, here are the next steps for you.")
	require.True(t, s.Completion)
	require.True(t, s.WorkflowManagement)
	require.Contains(t, s.Matches, "next steps")
}

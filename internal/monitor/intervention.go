package monitor

import (
	"context"
	"fmt"
	"strings"
)

// GenerateInterventionMessage renders the markdown text sent to an agent in
// response to alert. It names the session, its active workflow, and the
// current step so the agent can resume.
func (m *Monitor) GenerateInterventionMessage(ctx context.Context, alert Alert) (string, error) {
	s, err := m.source.Get(ctx, alert.SessionID)
	if err != nil {
		return "", err
	}

	workflow, position := "none", "no remaining steps"
	if view, ok := s.CurrentStep(); ok {
		workflow = view.WorkflowName
		position = fmt.Sprintf("step %d of %d", view.StepNumber, view.TotalSteps)
	} else if top := s.Top(); top != nil {
		workflow = top.WorkflowName
	}

	var b strings.Builder
	switch alert.Type {
	case AlertForgottenCompletion:
		b.WriteString("## Workflow Management Reminder\n\n")
		fmt.Fprintf(&b, "You appear to have finished a task, but you are on %s in the '%s' workflow.\n\n", position, workflow)
		b.WriteString("Choose one:\n")
		b.WriteString("- Call `advance_workflow` to move to the next step\n")
		b.WriteString("- Call `break_workflow` if this nested workflow is finished early\n")
		b.WriteString("- Call `get_workflow_status` to check where you are\n")
	case AlertDormant:
		b.WriteString("## Active Workflow Session Detected\n\n")
		fmt.Fprintf(&b, "This session has an unfinished '%s' workflow at %s. %s.\n\n", workflow, position, alert.Message)
		b.WriteString("If the current step is done, call `advance_workflow`. If the work is complete, call `break_workflow` or let the workflow finish.\n")
	case AlertStale:
		b.WriteString("## Stale Workflow Session\n\n")
		fmt.Fprintf(&b, "The '%s' workflow has been idle at %s. %s.\n\n", workflow, position, alert.Message)
		fmt.Fprintf(&b, "Sessions older than %s are archived automatically. Resume it with `get_workflow_status` or remove it with `remove_session`.\n",
			formatHours(m.Policy().ArchiveAfter.Hours()))
	case AlertArchiveEligible:
		b.WriteString("## Workflow Session Scheduled for Archive\n\n")
		fmt.Fprintf(&b, "The '%s' workflow (%s) will be archived. %s.\n\n", workflow, position, alert.Message)
		b.WriteString("No action is required unless the session is still in use.\n")
	default:
		return "", fmt.Errorf("unknown alert type %q", alert.Type)
	}

	fmt.Fprintf(&b, "\n**Session ID:** `%s`\n", alert.SessionID)
	return b.String(), nil
}

func formatHours(h float64) string {
	if h == float64(int(h)) {
		return fmt.Sprintf("%d hours", int(h))
	}
	return fmt.Sprintf("%.1f hours", h)
}

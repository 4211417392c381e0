package monitor

import (
	"fmt"
	"time"
)

// AlertType identifies what a monitor check found.
type AlertType string

// Alert types.
const (
	AlertDormant             AlertType = "dormant"
	AlertStale               AlertType = "stale"
	AlertArchiveEligible     AlertType = "archive_eligible"
	AlertForgottenCompletion AlertType = "forgotten_completion"
)

// Severity ranks how urgently an alert needs attention.
type Severity string

// Severities.
const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

// Alert is one finding about one session.
type Alert struct {
	SessionID        string    `json:"session_id"`
	Type             AlertType `json:"alert_type"`
	Message          string    `json:"message"`
	Severity         Severity  `json:"severity"`
	Timestamp        time.Time `json:"timestamp"`
	SuggestedActions []string  `json:"suggested_actions"`
}

// Suggested action menus, fixed per alert type.
var (
	dormantActions = []string{
		"Check if workflow should be advanced",
		"Consider breaking out of workflow if complete",
		"Verify if session is still needed",
	}
	staleActions = []string{
		"Archive session if no longer needed",
		"Break out of workflow to clean up",
		"Check if session was forgotten",
	}
	archiveActions = []string{
		"Session will be automatically archived",
		"No action required unless session is still active",
	}
	forgottenCompletionActions = []string{
		"Remind agent to call advance_workflow",
		"Check if workflow should be completed with break_workflow",
		"Verify workflow status with get_workflow_status",
	}
)

// SuggestedActions returns a copy of the action menu for t.
func SuggestedActions(t AlertType) []string {
	var src []string
	switch t {
	case AlertDormant:
		src = dormantActions
	case AlertStale:
		src = staleActions
	case AlertArchiveEligible:
		src = archiveActions
	case AlertForgottenCompletion:
		src = forgottenCompletionActions
	}
	out := make([]string, len(src))
	copy(out, src)
	return out
}

func newDormantAlert(id string, idle time.Duration, now time.Time) Alert {
	return Alert{
		SessionID:        id,
		Type:             AlertDormant,
		Message:          fmt.Sprintf("Session has been inactive for %.1f minutes", idle.Minutes()),
		Severity:         SeverityMedium,
		Timestamp:        now,
		SuggestedActions: SuggestedActions(AlertDormant),
	}
}

func newStaleAlert(id string, idle time.Duration, now time.Time) Alert {
	return Alert{
		SessionID:        id,
		Type:             AlertStale,
		Message:          fmt.Sprintf("Session has been inactive for %.1f minutes and may be abandoned", idle.Minutes()),
		Severity:         SeverityHigh,
		Timestamp:        now,
		SuggestedActions: SuggestedActions(AlertStale),
	}
}

func newArchiveAlert(id string, age time.Duration, now time.Time) Alert {
	return Alert{
		SessionID:        id,
		Type:             AlertArchiveEligible,
		Message:          fmt.Sprintf("Session is %.1f hours old and will be auto-archived", age.Hours()),
		Severity:         SeverityLow,
		Timestamp:        now,
		SuggestedActions: SuggestedActions(AlertArchiveEligible),
	}
}

func newForgottenCompletionAlert(id string, now time.Time) Alert {
	return Alert{
		SessionID:        id,
		Type:             AlertForgottenCompletion,
		Message:          "Agent provided completion-like response without managing workflow",
		Severity:         SeverityHigh,
		Timestamp:        now,
		SuggestedActions: SuggestedActions(AlertForgottenCompletion),
	}
}

// Policy holds the monitor's thresholds.
type Policy struct {
	// DormantAfter is the inactivity that raises a dormant alert. Default: 10 minutes.
	DormantAfter time.Duration
	// StaleAfter is the inactivity that raises a stale alert. Default: 30 minutes.
	StaleAfter time.Duration
	// ArchiveAfter is the session age that makes it archive-eligible. Default: 6 hours.
	ArchiveAfter time.Duration
	// HistorySize is how many agent responses are kept per session. Default: 5.
	HistorySize int
	// HistoryTTL evicts a session's response history after this long without
	// a new response. Default: ArchiveAfter.
	HistoryTTL time.Duration
}

// DefaultPolicy returns the standard thresholds.
func DefaultPolicy() Policy {
	return Policy{
		DormantAfter: 10 * time.Minute,
		StaleAfter:   30 * time.Minute,
		ArchiveAfter: 6 * time.Hour,
		HistorySize:  5,
		HistoryTTL:   6 * time.Hour,
	}
}

// Validate checks that the Policy has valid values.
func (p *Policy) Validate() error {
	if p.DormantAfter <= 0 {
		return fmt.Errorf("dormant_after must be positive: %v", p.DormantAfter)
	}
	if p.StaleAfter < p.DormantAfter {
		return fmt.Errorf("stale_after (%v) must not be shorter than dormant_after (%v)", p.StaleAfter, p.DormantAfter)
	}
	if p.ArchiveAfter <= 0 {
		return fmt.Errorf("archive_after must be positive: %v", p.ArchiveAfter)
	}
	if p.HistorySize <= 0 {
		return fmt.Errorf("history_size must be positive: %d", p.HistorySize)
	}
	if p.HistoryTTL < 0 {
		return fmt.Errorf("history_ttl cannot be negative: %v", p.HistoryTTL)
	}
	return nil
}

// Package monitor watches workflow sessions for neglect.
//
// It raises alerts for sessions that sit idle, sessions old enough to be
// archived, and agent responses that declare the work done without advancing
// or closing the workflow. A periodic sweep can run in the background and hand
// every alert to a callback.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/zjrosen/vibe/internal/log"
	"github.com/zjrosen/vibe/internal/sessions/domain"
)

// SessionSource is the monitor's view of the session store.
type SessionSource interface {
	List(ctx context.Context) ([]*domain.Session, error)
	Get(ctx context.Context, id string) (*domain.Session, error)
	Remove(ctx context.Context, id string) error
}

// Clock interface for time operations (allows testing).
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

// AlertCallback receives alerts produced by the background sweep.
type AlertCallback func(alert Alert)

// DefaultCheckInterval is how often the background sweep runs.
const DefaultCheckInterval = time.Minute

// Config configures a Monitor.
type Config struct {
	// Policy defines the monitor thresholds. Zero value means DefaultPolicy.
	Policy Policy

	// Classifier recognizes completion and workflow-management language.
	// If nil, DefaultClassifier is used.
	Classifier Classifier

	// CheckInterval is how often the background sweep runs.
	// Defaults to one minute if not specified.
	CheckInterval time.Duration

	// OnAlert is called for each alert raised by the background sweep.
	OnAlert AlertCallback

	// AutoCleanup removes archive-eligible sessions during the background sweep.
	AutoCleanup bool

	// Clock is used for time operations (for testing).
	// If nil, uses time.Now().
	Clock Clock
}

// Monitor evaluates session health and agent responses.
type Monitor struct {
	source     SessionSource
	classifier Classifier
	clock      Clock
	history    *responseHistory

	mu            sync.RWMutex
	policy        Policy
	checkInterval time.Duration
	onAlert       AlertCallback
	autoCleanup   bool

	// Lifecycle
	cancel context.CancelFunc
	done   chan struct{}
}

// New creates a Monitor over source.
func New(source SessionSource, cfg Config) *Monitor {
	policy := cfg.Policy
	if policy == (Policy{}) {
		policy = DefaultPolicy()
	}
	if policy.HistorySize <= 0 {
		policy.HistorySize = DefaultPolicy().HistorySize
	}

	classifier := cfg.Classifier
	if classifier == nil {
		classifier = DefaultClassifier()
	}

	clock := cfg.Clock
	if clock == nil {
		clock = realClock{}
	}

	interval := cfg.CheckInterval
	if interval <= 0 {
		interval = DefaultCheckInterval
	}

	return &Monitor{
		source:        source,
		classifier:    classifier,
		clock:         clock,
		history:       newResponseHistory(policy.HistorySize, policy.HistoryTTL),
		policy:        policy,
		checkInterval: interval,
		onAlert:       cfg.OnAlert,
		autoCleanup:   cfg.AutoCleanup,
	}
}

// Policy returns the thresholds in effect.
func (m *Monitor) Policy() Policy {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.policy
}

// SetPolicy replaces the thresholds. The response history size is fixed at
// construction.
func (m *Monitor) SetPolicy(p Policy) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.policy = p
}

// CheckSessionHealth evaluates every non-terminal session. The dormant, stale
// and archive checks are independent, so one session can raise several alerts.
func (m *Monitor) CheckSessionHealth(ctx context.Context) ([]Alert, error) {
	sessions, err := m.source.List(ctx)
	if err != nil {
		return nil, err
	}

	policy := m.Policy()
	now := m.clock.Now()
	var alerts []Alert
	for _, s := range sessions {
		if s.IsComplete() {
			continue
		}
		alerts = append(alerts, evaluate(s, policy, now)...)
	}
	return alerts, nil
}

func evaluate(s *domain.Session, p Policy, now time.Time) []Alert {
	var alerts []Alert
	idle := s.InactiveFor(now)
	if idle >= p.DormantAfter {
		alerts = append(alerts, newDormantAlert(s.ID, idle, now))
	}
	if idle >= p.StaleAfter {
		alerts = append(alerts, newStaleAlert(s.ID, idle, now))
	}
	if age := s.Age(now); age >= p.ArchiveAfter {
		alerts = append(alerts, newArchiveAlert(s.ID, age, now))
	}
	return alerts
}

// AnalyzeAgentResponse records text in the session's response history and
// returns a forgotten-completion alert when the text reads as finished work
// but never touches the workflow. Terminal sessions never alert.
func (m *Monitor) AnalyzeAgentResponse(ctx context.Context, sessionID, text string) (*Alert, error) {
	s, err := m.source.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	now := m.clock.Now()
	signals := m.classifier.Classify(text)
	m.history.add(sessionID, Response{Text: text, Signals: signals, Timestamp: now})

	if s.IsComplete() || !signals.Completion || signals.WorkflowManagement {
		return nil, nil
	}

	alert := newForgottenCompletionAlert(sessionID, now)
	log.Info(log.CatMonitor, "Agent response looks complete but workflow was not advanced",
		"session", sessionID, "matches", signals.Matches)
	return &alert, nil
}

// ResponseHistory returns the recorded responses for a session, oldest first.
func (m *Monitor) ResponseHistory(sessionID string) []Response {
	return m.history.get(sessionID)
}

// CleanupStaleSessions removes every archive-eligible session and returns the
// removed ids. Sessions that fail to be removed are logged and reported in
// the joined error.
func (m *Monitor) CleanupStaleSessions(ctx context.Context) ([]string, error) {
	sessions, err := m.source.List(ctx)
	if err != nil {
		return nil, err
	}

	policy := m.Policy()
	now := m.clock.Now()
	var removed []string
	var errs []error
	for _, s := range sessions {
		if s.IsComplete() || s.Age(now) < policy.ArchiveAfter {
			continue
		}
		if err := m.source.Remove(ctx, s.ID); err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				continue
			}
			log.ErrorErr(log.CatMonitor, "Failed to archive session", err, "session", s.ID)
			errs = append(errs, fmt.Errorf("archive %s: %w", s.ID, err))
			continue
		}
		m.history.forget(s.ID)
		removed = append(removed, s.ID)
	}
	if len(removed) > 0 {
		log.Info(log.CatMonitor, "Archived old sessions", "count", len(removed), "ids", removed)
	}
	return removed, errors.Join(errs...)
}

// SessionDetail describes one non-terminal session in a StatusSummary.
type SessionDetail struct {
	SessionID      string    `json:"session_id"`
	Workflows      []string  `json:"workflows"`
	CurrentStep    int       `json:"current_step"`
	TotalSteps     int       `json:"total_steps"`
	InactiveFor    string    `json:"inactive_for"`
	Age            string    `json:"age"`
	LastAccessed   time.Time `json:"last_accessed"`
	AlertTypes     []string  `json:"alert_types,omitempty"`
	RecentResponse string    `json:"recent_response,omitempty"`
}

// StatusSummary is a point-in-time report of all active sessions.
type StatusSummary struct {
	Timestamp      time.Time         `json:"timestamp"`
	ActiveSessions int               `json:"active_sessions"`
	AlertCounts    map[AlertType]int `json:"alert_counts"`
	Alerts         []Alert           `json:"alerts"`
	Sessions       []SessionDetail   `json:"sessions"`
}

// StatusSummary runs a health check and reports it with per-session detail.
func (m *Monitor) StatusSummary(ctx context.Context) (StatusSummary, error) {
	sessions, err := m.source.List(ctx)
	if err != nil {
		return StatusSummary{}, err
	}

	policy := m.Policy()
	now := m.clock.Now()
	summary := StatusSummary{
		Timestamp:   now,
		AlertCounts: map[AlertType]int{},
		Alerts:      []Alert{},
		Sessions:    []SessionDetail{},
	}
	for _, s := range sessions {
		if s.IsComplete() {
			continue
		}
		summary.ActiveSessions++

		detail := SessionDetail{
			SessionID:    s.ID,
			Workflows:    s.WorkflowNames(),
			InactiveFor:  s.InactiveFor(now).Round(time.Second).String(),
			Age:          s.Age(now).Round(time.Second).String(),
			LastAccessed: s.LastAccessed,
		}
		if view, ok := s.CurrentStep(); ok {
			detail.CurrentStep = view.StepNumber
			detail.TotalSteps = view.TotalSteps
		}
		if hist := m.history.get(s.ID); len(hist) > 0 {
			detail.RecentResponse = truncate(hist[len(hist)-1].Text, 120)
		}

		for _, a := range evaluate(s, policy, now) {
			summary.Alerts = append(summary.Alerts, a)
			summary.AlertCounts[a.Type]++
			detail.AlertTypes = append(detail.AlertTypes, string(a.Type))
		}
		summary.Sessions = append(summary.Sessions, detail)
	}
	sort.Slice(summary.Sessions, func(i, j int) bool {
		return summary.Sessions[i].LastAccessed.Before(summary.Sessions[j].LastAccessed)
	})
	return summary, nil
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}

// Start begins the background sweep. Calling Start on a running monitor is a
// no-op.
func (m *Monitor) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.done != nil {
		m.mu.Unlock()
		return nil
	}
	loopCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.done = make(chan struct{})
	done := m.done
	interval := m.checkInterval
	m.mu.Unlock()

	log.SafeGo("monitor.checkLoop", func() {
		defer close(done)
		m.checkLoop(loopCtx, interval)
	})
	log.Debug(log.CatMonitor, "Monitor started", "interval", interval)
	return nil
}

// Stop halts the background sweep and waits for it to exit. It is safe to call
// Stop multiple times or before Start.
func (m *Monitor) Stop() {
	m.mu.Lock()
	cancel, done := m.cancel, m.done
	m.cancel, m.done = nil, nil
	m.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
	log.Debug(log.CatMonitor, "Monitor stopped")
}

func (m *Monitor) checkLoop(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Sweep(ctx)
		}
	}
}

// Sweep runs one health check, reports every alert to the callback, and
// removes archive-eligible sessions when auto cleanup is enabled.
func (m *Monitor) Sweep(ctx context.Context) []Alert {
	alerts, err := m.CheckSessionHealth(ctx)
	if err != nil {
		log.ErrorErr(log.CatMonitor, "Health check failed", err)
		return nil
	}

	m.mu.RLock()
	onAlert, autoCleanup := m.onAlert, m.autoCleanup
	m.mu.RUnlock()

	for _, a := range alerts {
		log.Debug(log.CatMonitor, "Session alert", "session", a.SessionID, "type", a.Type, "severity", a.Severity)
		if onAlert != nil {
			onAlert(a)
		}
	}

	if autoCleanup {
		if _, err := m.CleanupStaleSessions(ctx); err != nil {
			log.ErrorErr(log.CatMonitor, "Automatic cleanup failed", err)
		}
	}
	return alerts
}

package application

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/zjrosen/vibe/internal/log"
	"github.com/zjrosen/vibe/internal/monitor"
	"github.com/zjrosen/vibe/internal/sessions/domain"
)

// WorkflowSource resolves workflow names to frame specs.
type WorkflowSource interface {
	FrameSpec(name string) (domain.FrameSpec, error)
	// FrameSpecs resolves names in order, failing on the first unknown one.
	FrameSpecs(names []string) ([]domain.FrameSpec, error)
}

// Service is the caller-facing API over the store and monitor. Every method
// returns an Outcome instead of an error.
type Service struct {
	store     *Store
	monitor   *monitor.Monitor
	workflows WorkflowSource
	defaults  domain.SessionConfig
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithSessionDefaults sets the configuration applied to sessions created
// without one.
func WithSessionDefaults(cfg domain.SessionConfig) ServiceOption {
	return func(s *Service) { s.defaults = cfg }
}

// NewService wires a Service. workflows may be nil, in which case sessions can
// only be created from inline frame specs.
func NewService(store *Store, mon *monitor.Monitor, workflows WorkflowSource, opts ...ServiceOption) *Service {
	s := &Service{
		store:     store,
		monitor:   mon,
		workflows: workflows,
		defaults:  domain.DefaultSessionConfig(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Store returns the underlying session store.
func (s *Service) Store() *Store { return s.store }

// Monitor returns the underlying monitor.
func (s *Service) Monitor() *monitor.Monitor { return s.monitor }

// FrameStatus summarizes one frame of a session's stack.
type FrameStatus struct {
	Workflow    string `json:"workflow"`
	CurrentStep int    `json:"current_step"` // 0-based cursor
	TotalSteps  int    `json:"total_steps"`
}

// SessionStatus is the externally visible state of a session.
type SessionStatus struct {
	SessionID    string           `json:"session_id"`
	Prompt       string           `json:"prompt"`
	Complete     bool             `json:"complete"`
	Depth        int              `json:"depth"`
	Stack        []FrameStatus    `json:"stack"`
	Current      *domain.StepView `json:"current,omitempty"`
	CreatedAt    time.Time        `json:"created_at"`
	LastAccessed time.Time        `json:"last_accessed"`
}

// NewSessionStatus builds the status view of sess.
func NewSessionStatus(sess *domain.Session) SessionStatus {
	st := SessionStatus{
		SessionID:    sess.ID,
		Prompt:       sess.Prompt,
		Complete:     sess.IsComplete(),
		Depth:        sess.Depth(),
		Stack:        make([]FrameStatus, 0, sess.Depth()),
		CreatedAt:    sess.CreatedAt,
		LastAccessed: sess.LastAccessed,
	}
	for _, f := range sess.Stack {
		st.Stack = append(st.Stack, FrameStatus{Workflow: f.WorkflowName, CurrentStep: f.CurrentStep, TotalSteps: len(f.Steps)})
	}
	if view, ok := sess.CurrentStep(); ok {
		st.Current = &view
	}
	return st
}

// StartRequest describes a new session. Named workflows are resolved first,
// then inline frames are appended, bottom to top.
type StartRequest struct {
	Prompt    string
	Workflows []string
	Frames    []domain.FrameSpec
	Config    *domain.SessionConfig
}

// StartSession creates a session.
func (s *Service) StartSession(ctx context.Context, req StartRequest) Outcome[SessionStatus] {
	frames, err := s.resolveAll(req.Workflows)
	if err != nil {
		return fail[SessionStatus](err)
	}
	frames = append(frames, req.Frames...)
	if len(frames) == 0 {
		return fail[SessionStatus](&domain.InvalidStateError{Op: "start", Reason: "no workflows given"})
	}

	cfg := req.Config
	if cfg == nil {
		d := s.defaults
		cfg = &d
	}

	sess, err := s.store.CreateSession(ctx, req.Prompt, frames, cfg)
	if err != nil {
		if sess != nil {
			return failWith(NewSessionStatus(sess), err)
		}
		return fail[SessionStatus](err)
	}
	return succeed(NewSessionStatus(sess), fmt.Sprintf("Started session %s", sess.ID))
}

// Status returns a session's current state.
func (s *Service) Status(ctx context.Context, id string) Outcome[SessionStatus] {
	sess, err := s.store.Get(ctx, id)
	if err != nil {
		return fail[SessionStatus](err)
	}
	return succeed(NewSessionStatus(sess), "")
}

// AdvanceResult reports the effect of an advance.
type AdvanceResult struct {
	Result  string        `json:"result"`
	Popped  string        `json:"popped_workflow,omitempty"`
	Session SessionStatus `json:"session"`
}

// Advance moves the session to its next step.
func (s *Service) Advance(ctx context.Context, id string) Outcome[AdvanceResult] {
	var outcome domain.AdvanceOutcome
	var popped string
	sess, err := s.store.Update(ctx, id, func(sess *domain.Session) error {
		if top := sess.Top(); top != nil {
			popped = top.WorkflowName
		}
		outcome = sess.AdvanceStep()
		if outcome == domain.AdvanceNoop {
			return &domain.InvalidStateError{ID: id, Op: "advance", Reason: "session is already complete"}
		}
		return nil
	})
	if sess == nil {
		return fail[AdvanceResult](err)
	}

	res := AdvanceResult{Result: outcome.String(), Session: NewSessionStatus(sess)}
	var msg string
	switch outcome {
	case domain.AdvanceStepped:
		msg = "Advanced to the next step"
	case domain.AdvanceFrameCompleted:
		res.Popped = popped
		msg = fmt.Sprintf("Completed workflow '%s', resuming '%s'", popped, sess.Top().WorkflowName)
	case domain.AdvanceSessionCompleted:
		res.Popped = popped
		msg = fmt.Sprintf("Completed workflow '%s'; session finished", popped)
	}
	if err != nil {
		return failWith(res, err)
	}
	return succeed(res, msg)
}

// Back moves the active workflow to its previous step.
func (s *Service) Back(ctx context.Context, id string) Outcome[SessionStatus] {
	return s.mutate(ctx, id, "Moved back one step", func(sess *domain.Session) error {
		if !sess.BackStep() {
			return &domain.InvalidStateError{ID: id, Op: "go back in", Reason: "already at the first step"}
		}
		return nil
	})
}

// Restart rewinds every workflow in the session to its first step.
func (s *Service) Restart(ctx context.Context, id string) Outcome[SessionStatus] {
	return s.mutate(ctx, id, "Restarted session", func(sess *domain.Session) error {
		sess.RestartSession()
		return nil
	})
}

// Break abandons the active nested workflow and resumes its parent.
func (s *Service) Break(ctx context.Context, id string) Outcome[SessionStatus] {
	return s.mutate(ctx, id, "Exited nested workflow", func(sess *domain.Session) error {
		if !sess.BreakWorkflow() {
			return &domain.InvalidStateError{ID: id, Op: "break workflow in", Reason: "only the base workflow is active"}
		}
		return nil
	})
}

// PushWorkflow nests the named workflow on top of the session.
func (s *Service) PushWorkflow(ctx context.Context, id, name string) Outcome[SessionStatus] {
	spec, err := s.resolve(name)
	if err != nil {
		return fail[SessionStatus](err)
	}
	return s.PushFrame(ctx, id, spec)
}

// PushFrame nests an inline workflow on top of the session.
func (s *Service) PushFrame(ctx context.Context, id string, spec domain.FrameSpec) Outcome[SessionStatus] {
	return s.mutate(ctx, id, fmt.Sprintf("Started nested workflow '%s'", spec.Name), func(sess *domain.Session) error {
		sess.PushWorkflow(spec.Name, spec.Steps, spec.Context)
		return nil
	})
}

func (s *Service) mutate(ctx context.Context, id, msg string, fn func(*domain.Session) error) Outcome[SessionStatus] {
	sess, err := s.store.Update(ctx, id, fn)
	if err != nil {
		if sess != nil && !errors.Is(err, domain.ErrInvalidState) {
			return failWith(NewSessionStatus(sess), err)
		}
		return fail[SessionStatus](err)
	}
	return succeed(NewSessionStatus(sess), msg)
}

// ListSessions returns every session ordered by creation time.
func (s *Service) ListSessions(ctx context.Context) Outcome[[]SessionStatus] {
	sessions, err := s.store.List(ctx)
	if err != nil {
		return fail[[]SessionStatus](err)
	}
	out := make([]SessionStatus, 0, len(sessions))
	for _, sess := range sessions {
		out = append(out, NewSessionStatus(sess))
	}
	return succeed(out, fmt.Sprintf("%d session(s)", len(out)))
}

// RemoveSession deletes a session.
func (s *Service) RemoveSession(ctx context.Context, id string) Outcome[string] {
	if err := s.store.Remove(ctx, id); err != nil {
		return fail[string](err)
	}
	return succeed(id, fmt.Sprintf("Removed session %s", id))
}

// HealthSummary reports session counts.
func (s *Service) HealthSummary(ctx context.Context) Outcome[HealthSummary] {
	summary, err := s.store.HealthSummary(ctx)
	if err != nil {
		return fail[HealthSummary](err)
	}
	return succeed(summary, "")
}

// CleanupInactive removes sessions untouched for maxAge.
func (s *Service) CleanupInactive(ctx context.Context, maxAge time.Duration) Outcome[int] {
	n, err := s.store.CleanupStaleSessions(ctx, maxAge)
	if err != nil {
		return failWith(n, err)
	}
	return succeed(n, fmt.Sprintf("Removed %d inactive session(s)", n))
}

// ListArchived returns the ids of archived sessions.
func (s *Service) ListArchived(ctx context.Context) Outcome[[]string] {
	ids, err := s.store.ArchivedIDs(ctx)
	if err != nil {
		return fail[[]string](err)
	}
	if ids == nil {
		ids = []string{}
	}
	return succeed(ids, "")
}

// PurgeArchived permanently deletes sessions archived more than maxAge ago.
func (s *Service) PurgeArchived(ctx context.Context, maxAge time.Duration) Outcome[int] {
	n, err := s.store.PurgeArchived(ctx, maxAge)
	if err != nil {
		return failWith(n, err)
	}
	return succeed(n, fmt.Sprintf("Purged %d archived session(s)", n))
}

// CheckHealth runs the monitor's health checks.
func (s *Service) CheckHealth(ctx context.Context) Outcome[[]monitor.Alert] {
	alerts, err := s.monitor.CheckSessionHealth(ctx)
	if err != nil {
		return fail[[]monitor.Alert](err)
	}
	if alerts == nil {
		alerts = []monitor.Alert{}
	}
	return succeed(alerts, fmt.Sprintf("%d alert(s)", len(alerts)))
}

// Analysis is the result of analyzing an agent response.
type Analysis struct {
	Alert        *monitor.Alert `json:"alert,omitempty"`
	Intervention string         `json:"intervention,omitempty"`
}

// AnalyzeResponse checks an agent response for forgotten workflow management
// and renders an intervention when one is needed.
func (s *Service) AnalyzeResponse(ctx context.Context, id, text string) Outcome[Analysis] {
	alert, err := s.monitor.AnalyzeAgentResponse(ctx, id, text)
	if err != nil {
		return fail[Analysis](err)
	}
	if alert == nil {
		return succeed(Analysis{}, "No intervention needed")
	}
	msg, err := s.monitor.GenerateInterventionMessage(ctx, *alert)
	if err != nil {
		log.ErrorErr(log.CatMonitor, "Failed to render intervention", err, "session", id)
		return failWith(Analysis{Alert: alert}, err)
	}
	return succeed(Analysis{Alert: alert, Intervention: msg}, "Intervention recommended")
}

// Intervention renders the message for a previously raised alert.
func (s *Service) Intervention(ctx context.Context, alert monitor.Alert) Outcome[string] {
	msg, err := s.monitor.GenerateInterventionMessage(ctx, alert)
	if err != nil {
		return fail[string](err)
	}
	return succeed(msg, "")
}

// CleanupStale archives every session past the monitor's maximum age.
func (s *Service) CleanupStale(ctx context.Context) Outcome[[]string] {
	ids, err := s.monitor.CleanupStaleSessions(ctx)
	if ids == nil {
		ids = []string{}
	}
	if err != nil {
		return failWith(ids, err)
	}
	return succeed(ids, fmt.Sprintf("Archived %d session(s)", len(ids)))
}

// MonitorSummary returns the monitor's status report.
func (s *Service) MonitorSummary(ctx context.Context) Outcome[monitor.StatusSummary] {
	summary, err := s.monitor.StatusSummary(ctx)
	if err != nil {
		return fail[monitor.StatusSummary](err)
	}
	return succeed(summary, "")
}

func (s *Service) resolve(name string) (domain.FrameSpec, error) {
	if s.workflows == nil {
		return domain.FrameSpec{}, &domain.WorkflowNotFoundError{Name: name}
	}
	return s.workflows.FrameSpec(name)
}

func (s *Service) resolveAll(names []string) ([]domain.FrameSpec, error) {
	if len(names) == 0 {
		return nil, nil
	}
	if s.workflows == nil {
		return nil, &domain.WorkflowNotFoundError{Name: names[0]}
	}
	return s.workflows.FrameSpecs(names)
}

package monitor

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/zjrosen/vibe/internal/sessions/domain"
)

// mockClock is a controllable clock for testing.
type mockClock struct {
	mu  sync.Mutex
	now time.Time
}

func newMockClock(t time.Time) *mockClock {
	return &mockClock{now: t}
}

func (c *mockClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *mockClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// fakeSource is an in-memory SessionSource.
type fakeSource struct {
	mu        sync.Mutex
	sessions  map[string]*domain.Session
	removeErr error
}

func newFakeSource(sessions ...*domain.Session) *fakeSource {
	f := &fakeSource{sessions: map[string]*domain.Session{}}
	for _, s := range sessions {
		f.sessions[s.ID] = s
	}
	return f
}

func (f *fakeSource) List(context.Context) ([]*domain.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*domain.Session, 0, len(f.sessions))
	for _, s := range f.sessions {
		out = append(out, s.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (f *fakeSource) Get(_ context.Context, id string) (*domain.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.sessions[id]
	if !ok {
		return nil, &domain.SessionNotFoundError{ID: id}
	}
	return s.Clone(), nil
}

func (f *fakeSource) Remove(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.removeErr != nil {
		return f.removeErr
	}
	if _, ok := f.sessions[id]; !ok {
		return &domain.SessionNotFoundError{ID: id}
	}
	delete(f.sessions, id)
	return nil
}

func (f *fakeSource) has(id string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.sessions[id]
	return ok
}

var t0 = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

// sessionAt builds an active session created at created and last touched at
// lastAccessed.
func sessionAt(id string, created, lastAccessed time.Time) *domain.Session {
	s := domain.NewSession(id, "prompt", nil, created)
	s.PushWorkflow("build", []domain.Step{domain.GuidanceStep("compile"), domain.GuidanceStep("package")}, nil)
	s.CreatedAt = created
	s.LastAccessed = lastAccessed
	return s
}

func alertTypes(alerts []Alert, id string) []AlertType {
	var out []AlertType
	for _, a := range alerts {
		if a.SessionID == id {
			out = append(out, a.Type)
		}
	}
	return out
}

func TestCheckSessionHealth_InactivityBoundaries(t *testing.T) {
	clock := newMockClock(t0)
	now := clock.Now()

	tests := []struct {
		name string
		idle time.Duration
		want []AlertType
	}{
		{"just below dormant", 10*time.Minute - time.Second, nil},
		{"exactly dormant", 10 * time.Minute, []AlertType{AlertDormant}},
		{"within dormant band", 29 * time.Minute, []AlertType{AlertDormant}},
		{"exactly stale", 30 * time.Minute, []AlertType{AlertDormant, AlertStale}},
		{"well past stale", 2 * time.Hour, []AlertType{AlertDormant, AlertStale}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := sessionAt("s1", now.Add(-tt.idle), now.Add(-tt.idle))
			m := New(newFakeSource(s), Config{Clock: clock})

			alerts, err := m.CheckSessionHealth(context.Background())
			require.NoError(t, err)
			require.Equal(t, tt.want, alertTypes(alerts, "s1"))
		})
	}
}

func TestCheckSessionHealth_ArchiveIsIndependentOfActivity(t *testing.T) {
	clock := newMockClock(t0)
	now := clock.Now()
	s := sessionAt("old", now.Add(-7*time.Hour), now.Add(-time.Minute))
	m := New(newFakeSource(s), Config{Clock: clock})

	alerts, err := m.CheckSessionHealth(context.Background())
	require.NoError(t, err)
	require.Len(t, alerts, 1)

	a := alerts[0]
	require.Equal(t, AlertArchiveEligible, a.Type)
	require.Equal(t, SeverityLow, a.Severity)
	require.Equal(t, "Session is 7.0 hours old and will be auto-archived", a.Message)
	require.Equal(t, now, a.Timestamp)
	require.Equal(t, SuggestedActions(AlertArchiveEligible), a.SuggestedActions)
}

func TestCheckSessionHealth_AlertContent(t *testing.T) {
	clock := newMockClock(t0)
	now := clock.Now()
	s := sessionAt("idle", now.Add(-45*time.Minute), now.Add(-45*time.Minute))
	m := New(newFakeSource(s), Config{Clock: clock})

	alerts, err := m.CheckSessionHealth(context.Background())
	require.NoError(t, err)
	require.Len(t, alerts, 2)

	require.Equal(t, SeverityMedium, alerts[0].Severity)
	require.Equal(t, "Session has been inactive for 45.0 minutes", alerts[0].Message)
	require.Len(t, alerts[0].SuggestedActions, 3)

	require.Equal(t, SeverityHigh, alerts[1].Severity)
	require.Equal(t, "Session has been inactive for 45.0 minutes and may be abandoned", alerts[1].Message)
}

func TestCheckSessionHealth_SkipsTerminalSessions(t *testing.T) {
	clock := newMockClock(t0)
	now := clock.Now()
	done := domain.NewSession("done", "p", nil, now.Add(-8*time.Hour))
	done.LastAccessed = now.Add(-8 * time.Hour)

	m := New(newFakeSource(done), Config{Clock: clock})
	alerts, err := m.CheckSessionHealth(context.Background())
	require.NoError(t, err)
	require.Empty(t, alerts)
}

func TestAnalyzeAgentResponse(t *testing.T) {
	clock := newMockClock(t0)
	s := sessionAt("s1", clock.Now(), clock.Now())

	tests := []struct {
		name      string
		text      string
		wantAlert bool
	}{
		{"completion without management", "In summary, everything is complete.", true},
		{"management language", "Let me advance the workflow to the next step.", false},
		{"completion with tool call", "That completes the refactor. Calling advance_workflow now.", false},
		{"final wording", "Final step: the release notes are written.", true},
		{"neutral progress", "Let's continue with the next step.", false},
		{"plain work", "Reading the configuration loader.", false},
		{"summary listing next steps", "In summary, here are the next steps for you.", false},
		{"that should", "That should fix the flaky test.", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := New(newFakeSource(s), Config{Clock: clock})
			alert, err := m.AnalyzeAgentResponse(context.Background(), "s1", tt.text)
			require.NoError(t, err)
			if !tt.wantAlert {
				require.Nil(t, alert)
				return
			}
			require.NotNil(t, alert)
			require.Equal(t, AlertForgottenCompletion, alert.Type)
			require.Equal(t, SeverityHigh, alert.Severity)
			require.Equal(t, "s1", alert.SessionID)
			require.Contains(t, alert.SuggestedActions, "Remind agent to call advance_workflow")
		})
	}
}

func TestAnalyzeAgentResponse_TerminalSessionNeverAlerts(t *testing.T) {
	clock := newMockClock(t0)
	done := domain.NewSession("done", "p", nil, clock.Now())
	m := New(newFakeSource(done), Config{Clock: clock})

	alert, err := m.AnalyzeAgentResponse(context.Background(), "done", "All done, everything is finished.")
	require.NoError(t, err)
	require.Nil(t, alert)
}

func TestAnalyzeAgentResponse_UnknownSession(t *testing.T) {
	m := New(newFakeSource(), Config{Clock: newMockClock(t0)})
	_, err := m.AnalyzeAgentResponse(context.Background(), "missing", "done")
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestAnalyzeAgentResponse_HistoryKeepsLastFive(t *testing.T) {
	clock := newMockClock(t0)
	s := sessionAt("s1", clock.Now(), clock.Now())
	m := New(newFakeSource(s), Config{Clock: clock})

	texts := []string{"one", "two", "three", "four", "five", "six", "seven"}
	for _, text := range texts {
		_, err := m.AnalyzeAgentResponse(context.Background(), "s1", text)
		require.NoError(t, err)
		clock.Advance(time.Second)
	}

	hist := m.ResponseHistory("s1")
	require.Len(t, hist, 5)
	require.Equal(t, "three", hist[0].Text)
	require.Equal(t, "seven", hist[4].Text)
	require.Empty(t, m.ResponseHistory("other"))
}

func TestAnalyzeAgentResponse_CustomClassifier(t *testing.T) {
	clock := newMockClock(t0)
	s := sessionAt("s1", clock.Now(), clock.Now())
	always := ClassifierFunc(func(string) Signals { return Signals{Completion: true} })
	m := New(newFakeSource(s), Config{Clock: clock, Classifier: always})

	alert, err := m.AnalyzeAgentResponse(context.Background(), "s1", "anything")
	require.NoError(t, err)
	require.NotNil(t, alert)
}

func TestCleanupStaleSessions(t *testing.T) {
	clock := newMockClock(t0)
	now := clock.Now()
	old := sessionAt("old", now.Add(-7*time.Hour), now.Add(-7*time.Hour))
	young := sessionAt("young", now.Add(-time.Hour), now.Add(-time.Hour))
	src := newFakeSource(old, young)
	m := New(src, Config{Clock: clock})

	removed, err := m.CleanupStaleSessions(context.Background())
	require.NoError(t, err)
	require.Equal(t, []string{"old"}, removed)
	require.False(t, src.has("old"))
	require.True(t, src.has("young"))
}

func TestCleanupStaleSessions_ReportsRemoveFailures(t *testing.T) {
	clock := newMockClock(t0)
	now := clock.Now()
	src := newFakeSource(sessionAt("old", now.Add(-7*time.Hour), now))
	src.removeErr = &domain.StorageError{Op: "delete", ID: "old", Err: errors.New("read-only")}
	m := New(src, Config{Clock: clock})

	removed, err := m.CleanupStaleSessions(context.Background())
	require.ErrorIs(t, err, domain.ErrStorage)
	require.Empty(t, removed)
}

func TestStatusSummary(t *testing.T) {
	clock := newMockClock(t0)
	now := clock.Now()
	idle := sessionAt("idle", now.Add(-time.Hour), now.Add(-15*time.Minute))
	fresh := sessionAt("fresh", now, now)
	done := domain.NewSession("done", "p", nil, now)
	m := New(newFakeSource(idle, fresh, done), Config{Clock: clock})

	_, err := m.AnalyzeAgentResponse(context.Background(), "fresh", "Looking at the build output")
	require.NoError(t, err)

	summary, err := m.StatusSummary(context.Background())
	require.NoError(t, err)
	require.Equal(t, 2, summary.ActiveSessions)
	require.Equal(t, 1, summary.AlertCounts[AlertDormant])
	require.Len(t, summary.Alerts, 1)
	require.Len(t, summary.Sessions, 2)

	require.Equal(t, "idle", summary.Sessions[0].SessionID)
	require.Equal(t, []string{"dormant"}, summary.Sessions[0].AlertTypes)
	require.Equal(t, 1, summary.Sessions[0].CurrentStep)
	require.Equal(t, 2, summary.Sessions[0].TotalSteps)
	require.Equal(t, "Looking at the build output", summary.Sessions[1].RecentResponse)
}

func TestMonitor_SweepReportsAlertsAndCleansUp(t *testing.T) {
	clock := newMockClock(t0)
	now := clock.Now()
	src := newFakeSource(sessionAt("old", now.Add(-7*time.Hour), now.Add(-7*time.Hour)))

	var got []Alert
	m := New(src, Config{
		Clock:       clock,
		AutoCleanup: true,
		OnAlert:     func(a Alert) { got = append(got, a) },
	})

	alerts := m.Sweep(context.Background())
	require.Len(t, alerts, 3)
	require.Equal(t, alerts, got)
	require.False(t, src.has("old"))
}

func TestMonitor_StartStop(t *testing.T) {
	clock := newMockClock(t0)
	now := clock.Now()
	src := newFakeSource(sessionAt("idle", now.Add(-20*time.Minute), now.Add(-20*time.Minute)))

	alerts := make(chan Alert, 16)
	m := New(src, Config{
		Clock:         clock,
		CheckInterval: 5 * time.Millisecond,
		OnAlert: func(a Alert) {
			select {
			case alerts <- a:
			default:
			}
		},
	})

	require.NoError(t, m.Start(context.Background()))
	require.NoError(t, m.Start(context.Background()))

	select {
	case a := <-alerts:
		require.Equal(t, AlertDormant, a.Type)
	case <-time.After(2 * time.Second):
		t.Fatal("no alert from background sweep")
	}

	m.Stop()
	m.Stop()
}

func TestMonitor_StopBeforeStart(t *testing.T) {
	m := New(newFakeSource(), Config{})
	m.Stop()
}

func TestPolicy_Validate(t *testing.T) {
	p := DefaultPolicy()
	require.NoError(t, p.Validate())

	bad := p
	bad.StaleAfter = time.Minute
	require.Error(t, bad.Validate())

	bad = p
	bad.HistorySize = 0
	require.Error(t, bad.Validate())

	bad = p
	bad.ArchiveAfter = 0
	require.Error(t, bad.Validate())
}

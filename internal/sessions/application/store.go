package application

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/zjrosen/vibe/internal/log"
	"github.com/zjrosen/vibe/internal/retry"
	"github.com/zjrosen/vibe/internal/sessions/domain"
)

const tracerName = "github.com/zjrosen/vibe/internal/sessions/application"

// Default inactivity thresholds used by HealthSummary.
const (
	DefaultDormantAfter = 10 * time.Minute
	DefaultStaleAfter   = 30 * time.Minute
)

// Clock interface for time operations (allows testing).
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

// StoreOption configures a Store.
type StoreOption func(*Store)

// WithClock sets the time source for timestamps and age checks.
func WithClock(c Clock) StoreOption {
	return func(s *Store) {
		if c != nil {
			s.clock = c
		}
	}
}

// WithRetryPolicy sets the policy used when persisting sessions. The policy's
// Retryable predicate is replaced with domain.IsRetryable.
func WithRetryPolicy(p retry.Policy) StoreOption {
	return func(s *Store) { s.retry = p }
}

// WithIDGenerator overrides session id generation.
func WithIDGenerator(fn func() string) StoreOption {
	return func(s *Store) {
		if fn != nil {
			s.newID = fn
		}
	}
}

// WithInactivityThresholds sets the dormant and stale boundaries used by
// HealthSummary.
func WithInactivityThresholds(dormant, stale time.Duration) StoreOption {
	return func(s *Store) {
		s.dormantAfter = dormant
		s.staleAfter = stale
	}
}

// WithReloadOnRead makes every operation re-read the repository first, so
// sessions written, advanced or removed by another process are seen. The
// repository becomes authoritative: an in-memory change whose save failed is
// dropped on the next read.
func WithReloadOnRead() StoreOption {
	return func(s *Store) { s.reloadOnRead = true }
}

// Store owns every workflow session of the process. The in-memory map is
// authoritative; a durable store mirrors each mutation into its repository.
//
// Callers receive copies. Mutations go through Update so they are persisted.
type Store struct {
	mu       sync.Mutex
	repo     domain.SessionRepository
	sessions map[string]*domain.Session
	loaded   bool

	reloadOnRead bool

	clock        Clock
	retry        retry.Policy
	newID        func() string
	dormantAfter time.Duration
	staleAfter   time.Duration
	tracer       trace.Tracer
}

// NewMemoryStore returns a store that keeps sessions only in memory.
func NewMemoryStore(opts ...StoreOption) *Store {
	return NewStore(nil, opts...)
}

// NewStore returns a store backed by repo. A nil repo gives a memory-only
// store.
func NewStore(repo domain.SessionRepository, opts ...StoreOption) *Store {
	s := &Store{
		repo:         repo,
		sessions:     make(map[string]*domain.Session),
		loaded:       repo == nil,
		clock:        realClock{},
		retry:        retry.DefaultPolicy(),
		newID:        shortID,
		dormantAfter: DefaultDormantAfter,
		staleAfter:   DefaultStaleAfter,
		tracer:       otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.retry = s.retry.WithRetryable(domain.IsRetryable)
	s.retry.Name = "session.save"
	return s
}

func shortID() string {
	return uuid.New().String()[:8]
}

// Durable reports whether the store persists sessions.
func (s *Store) Durable() bool { return s.repo != nil }

// Now returns the store clock's current time.
func (s *Store) Now() time.Time { return s.clock.Now() }

// CreateSession creates a session whose stack holds frames in order, the first
// frame at the bottom, and persists it.
func (s *Store) CreateSession(ctx context.Context, prompt string, frames []domain.FrameSpec, cfg *domain.SessionConfig) (*domain.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.ensureLoadedLocked(ctx); err != nil {
		return nil, err
	}

	id := s.newID()
	for attempts := 0; s.sessions[id] != nil; attempts++ {
		if attempts > 16 {
			return nil, fmt.Errorf("failed to allocate a unique session id")
		}
		id = s.newID()
	}

	session := domain.NewSession(id, prompt, cfg, s.clock.Now())
	session.SetClock(s.clock.Now)
	for _, f := range frames {
		session.PushWorkflow(f.Name, f.Steps, f.Context)
	}
	s.sessions[id] = session

	log.Info(log.CatStore, "Created session", "id", id, "workflows", session.WorkflowNames())

	if err := s.persistLocked(ctx, session); err != nil {
		return session.Clone(), err
	}
	return session.Clone(), nil
}

// Get returns a copy of the session with the given id.
func (s *Store) Get(ctx context.Context, id string) (*domain.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, err := s.getLocked(ctx, id)
	if err != nil {
		return nil, err
	}
	return session.Clone(), nil
}

// List returns copies of every session ordered by creation time.
func (s *Store) List(ctx context.Context) ([]*domain.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.ensureLoadedLocked(ctx); err != nil {
		return nil, err
	}
	out := make([]*domain.Session, 0, len(s.sessions))
	for _, session := range s.sessions {
		out = append(out, session.Clone())
	}
	sortByCreation(out)
	return out, nil
}

// Update applies fn to the live session and persists the result. If fn
// returns an error nothing is saved. A failed save leaves the in-memory
// mutation in place.
func (s *Store) Update(ctx context.Context, id string, fn func(*domain.Session) error) (*domain.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, err := s.getLocked(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := fn(session); err != nil {
		return session.Clone(), err
	}
	if err := s.persistLocked(ctx, session); err != nil {
		return session.Clone(), err
	}
	return session.Clone(), nil
}

// Save replaces the stored session with a copy of session and persists it.
func (s *Store) Save(ctx context.Context, session *domain.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.ensureLoadedLocked(ctx); err != nil {
		return err
	}
	live := session.Clone()
	live.SetClock(s.clock.Now)
	s.sessions[live.ID] = live
	return s.persistLocked(ctx, live)
}

// Remove deletes a session from memory and from the backing store.
func (s *Store) Remove(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.getLocked(ctx, id); err != nil {
		return err
	}
	return s.removeLocked(ctx, id)
}

// CleanupStaleSessions removes every session that has not been touched within
// maxAge and returns how many were removed.
func (s *Store) CleanupStaleSessions(ctx context.Context, maxAge time.Duration) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.ensureLoadedLocked(ctx); err != nil {
		return 0, err
	}

	cutoff := s.clock.Now().Add(-maxAge)
	var stale []string
	for id, session := range s.sessions {
		if session.LastAccessed.Before(cutoff) {
			stale = append(stale, id)
		}
	}
	sort.Strings(stale)

	removed := 0
	var errs []error
	for _, id := range stale {
		if err := s.removeLocked(ctx, id); err != nil {
			errs = append(errs, err)
			continue
		}
		removed++
	}
	if removed > 0 {
		log.Info(log.CatStore, "Cleaned up stale sessions", "removed", removed, "max_age", maxAge)
	}
	return removed, errors.Join(errs...)
}

// ArchivedIDs lists the ids of archived records. Stores whose repository does
// not archive report none.
func (s *Store) ArchivedIDs(ctx context.Context) ([]string, error) {
	archive, ok := s.repo.(domain.ArchiveRepository)
	if !ok {
		return nil, nil
	}
	return archive.ArchivedIDs(ctx)
}

// PurgeArchived permanently deletes records archived more than maxAge ago.
func (s *Store) PurgeArchived(ctx context.Context, maxAge time.Duration) (int, error) {
	archive, ok := s.repo.(domain.ArchiveRepository)
	if !ok {
		return 0, nil
	}

	ctx, span := s.tracer.Start(ctx, "store.purge_archived")
	defer span.End()

	n, err := archive.PurgeArchived(ctx, s.clock.Now().Add(-maxAge))
	if err != nil {
		recordSpanError(span, err)
		log.ErrorErr(log.CatStore, "Failed to purge archived sessions", err)
		return n, err
	}
	span.SetAttributes(attribute.Int("sessions.purged", n))
	if n > 0 {
		log.Info(log.CatStore, "Purged archived sessions", "purged", n, "max_age", maxAge)
	}
	return n, nil
}

// HealthSummary counts sessions by lifecycle state.
type HealthSummary struct {
	Total     int    `json:"total"`
	Completed int    `json:"completed"`
	Active    int    `json:"active"`
	Dormant   int    `json:"dormant"`
	Stale     int    `json:"stale"`
	OldestID  string `json:"oldest_session_id,omitempty"`
	NewestID  string `json:"newest_session_id,omitempty"`
}

// HealthSummary reports session counts. Active counts every non-terminal
// session; Dormant and Stale partition the inactive ones among them.
func (s *Store) HealthSummary(ctx context.Context) (HealthSummary, error) {
	sessions, err := s.List(ctx)
	if err != nil {
		return HealthSummary{}, err
	}

	now := s.clock.Now()
	summary := HealthSummary{Total: len(sessions)}
	for _, session := range sessions {
		if session.IsComplete() {
			summary.Completed++
			continue
		}
		summary.Active++
		switch idle := session.InactiveFor(now); {
		case idle >= s.staleAfter:
			summary.Stale++
		case idle >= s.dormantAfter:
			summary.Dormant++
		}
	}
	if len(sessions) > 0 {
		summary.OldestID = sessions[0].ID
		summary.NewestID = sessions[len(sessions)-1].ID
	}
	return summary, nil
}

func (s *Store) getLocked(ctx context.Context, id string) (*domain.Session, error) {
	if err := s.ensureLoadedLocked(ctx); err != nil {
		return nil, err
	}
	session, ok := s.sessions[id]
	if !ok {
		return nil, &domain.SessionNotFoundError{ID: id}
	}
	return session, nil
}

// Refresh re-reads every persisted record, replacing the in-memory sessions.
// It is a no-op for a memory-only store.
func (s *Store) Refresh(ctx context.Context) error {
	if s.repo == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loadLocked(ctx)
}

// ensureLoadedLocked performs the bulk load of persisted records, once or,
// with WithReloadOnRead, before every operation.
func (s *Store) ensureLoadedLocked(ctx context.Context) error {
	if s.repo == nil || (s.loaded && !s.reloadOnRead) {
		return nil
	}
	return s.loadLocked(ctx)
}

func (s *Store) loadLocked(ctx context.Context) error {

	ctx, span := s.tracer.Start(ctx, "store.load_all")
	defer span.End()

	skipped := 0
	loaded, err := s.repo.LoadAll(ctx, func(err error) {
		skipped++
		log.Warn(log.CatStore, "Skipping unreadable session record", "error", err)
	})
	if err != nil {
		recordSpanError(span, err)
		log.ErrorErr(log.CatStore, "Failed to load sessions", err)
		return err
	}

	fresh := make(map[string]*domain.Session, len(loaded))
	for _, session := range loaded {
		session.SetClock(s.clock.Now)
		fresh[session.ID] = session
	}
	s.sessions = fresh
	s.loaded = true

	span.SetAttributes(attribute.Int("sessions.loaded", len(loaded)), attribute.Int("sessions.skipped", skipped))
	log.Debug(log.CatStore, "Loaded sessions", "count", len(loaded), "skipped", skipped)
	return nil
}

func (s *Store) persistLocked(ctx context.Context, session *domain.Session) error {
	if s.repo == nil {
		return nil
	}

	ctx, span := s.tracer.Start(ctx, "store.save", trace.WithAttributes(
		attribute.String("session.id", session.ID),
		attribute.Int("session.depth", session.Depth()),
	))
	defer span.End()

	snapshot := session.Clone()
	err := retry.Do(ctx, s.retry, func(ctx context.Context) error {
		return s.repo.Put(ctx, snapshot)
	})
	if err != nil {
		recordSpanError(span, err)
		log.ErrorErr(log.CatStore, "Failed to save session", err, "id", session.ID)
		if !errors.Is(err, domain.ErrStorage) {
			err = &domain.StorageError{Op: "save", ID: session.ID, Err: err}
		}
		return err
	}
	return nil
}

func (s *Store) removeLocked(ctx context.Context, id string) error {
	delete(s.sessions, id)
	if s.repo == nil {
		return nil
	}

	ctx, span := s.tracer.Start(ctx, "store.delete", trace.WithAttributes(attribute.String("session.id", id)))
	defer span.End()

	if err := s.repo.Delete(ctx, id); err != nil {
		recordSpanError(span, err)
		log.ErrorErr(log.CatStore, "Failed to delete session record", err, "id", id)
		if !errors.Is(err, domain.ErrStorage) {
			err = &domain.StorageError{Op: "delete", ID: id, Err: err}
		}
		return err
	}
	log.Debug(log.CatStore, "Removed session", "id", id)
	return nil
}

func recordSpanError(span trace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}

func sortByCreation(sessions []*domain.Session) {
	sort.SliceStable(sessions, func(i, j int) bool {
		if sessions[i].CreatedAt.Equal(sessions[j].CreatedAt) {
			return sessions[i].ID < sessions[j].ID
		}
		return sessions[i].CreatedAt.Before(sessions[j].CreatedAt)
	})
}

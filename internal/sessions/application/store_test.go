package application

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/zjrosen/vibe/internal/infrastructure/filestore"
	"github.com/zjrosen/vibe/internal/retry"
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

// fakeRepo is an in-memory SessionRepository with injectable failures.
type fakeRepo struct {
	mu       sync.Mutex
	records  map[string]*domain.Session
	putCalls int
	loads    int
	// putErrs are returned by successive Put calls before it starts succeeding.
	putErrs []error
	// alwaysFail makes every Put return this error.
	alwaysFail error
}

func newFakeRepo(sessions ...*domain.Session) *fakeRepo {
	r := &fakeRepo{records: make(map[string]*domain.Session)}
	for _, s := range sessions {
		r.records[s.ID] = s.Clone()
	}
	return r
}

func (r *fakeRepo) Put(_ context.Context, s *domain.Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.putCalls++
	if r.alwaysFail != nil {
		return r.alwaysFail
	}
	if len(r.putErrs) > 0 {
		err := r.putErrs[0]
		r.putErrs = r.putErrs[1:]
		return err
	}
	r.records[s.ID] = s.Clone()
	return nil
}

func (r *fakeRepo) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.records, id)
	return nil
}

func (r *fakeRepo) LoadAll(context.Context, func(error)) ([]*domain.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.loads++
	out := make([]*domain.Session, 0, len(r.records))
	for _, s := range r.records {
		out = append(out, s.Clone())
	}
	return out, nil
}

func (r *fakeRepo) stored(id string) *domain.Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.records[id]
}

func fastRetry() retry.Policy {
	return retry.Policy{MaxAttempts: 3, BaseDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond, Multiplier: 2}
}

func sequentialIDs(ids ...string) func() string {
	var mu sync.Mutex
	i := 0
	return func() string {
		mu.Lock()
		defer mu.Unlock()
		id := ids[i%len(ids)]
		i++
		return id
	}
}

func steps(texts ...string) []domain.Step {
	out := make([]domain.Step, len(texts))
	for i, t := range texts {
		out[i] = domain.GuidanceStep(t)
	}
	return out
}

var t0 = time.Date(2025, 3, 14, 9, 0, 0, 0, time.UTC)

func TestStore_CreateAndGet(t *testing.T) {
	ctx := context.Background()
	clock := newMockClock(t0)
	store := NewMemoryStore(WithClock(clock), WithIDGenerator(sequentialIDs("abc12345")))
	require.False(t, store.Durable())

	sess, err := store.CreateSession(ctx, "ship it", []domain.FrameSpec{
		{Name: "setup", Steps: steps("a", "b")},
		{Name: "validate", Steps: steps("x")},
	}, nil)
	require.NoError(t, err)
	require.Equal(t, "abc12345", sess.ID)
	require.Equal(t, []string{"setup", "validate"}, sess.WorkflowNames())
	require.Equal(t, t0, sess.CreatedAt)

	got, err := store.Get(ctx, "abc12345")
	require.NoError(t, err)
	require.Equal(t, "validate", got.Top().WorkflowName)

	// Returned sessions are copies.
	got.Stack = nil
	again, err := store.Get(ctx, "abc12345")
	require.NoError(t, err)
	require.Equal(t, 2, again.Depth())
}

func TestStore_DefaultIDsAreShort(t *testing.T) {
	store := NewMemoryStore()
	sess, err := store.CreateSession(context.Background(), "p", []domain.FrameSpec{{Name: "w", Steps: steps("a")}}, nil)
	require.NoError(t, err)
	require.Len(t, sess.ID, 8)
}

func TestStore_CreateRetriesCollidingIDs(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(WithIDGenerator(sequentialIDs("same0000", "same0000", "next0000")))

	first, err := store.CreateSession(ctx, "p", nil, nil)
	require.NoError(t, err)
	second, err := store.CreateSession(ctx, "p", nil, nil)
	require.NoError(t, err)
	require.Equal(t, "same0000", first.ID)
	require.Equal(t, "next0000", second.ID)
}

func TestStore_GetUnknown(t *testing.T) {
	_, err := NewMemoryStore().Get(context.Background(), "missing")
	require.ErrorIs(t, err, domain.ErrNotFound)

	var nf *domain.SessionNotFoundError
	require.ErrorAs(t, err, &nf)
	require.Equal(t, "missing", nf.ID)
}

func TestStore_UpdateTouchesWithStoreClock(t *testing.T) {
	ctx := context.Background()
	clock := newMockClock(t0)
	store := NewMemoryStore(WithClock(clock), WithIDGenerator(sequentialIDs("abc12345")))
	_, err := store.CreateSession(ctx, "p", []domain.FrameSpec{{Name: "w", Steps: steps("a", "b")}}, nil)
	require.NoError(t, err)

	clock.Advance(5 * time.Minute)
	sess, err := store.Update(ctx, "abc12345", func(s *domain.Session) error {
		s.AdvanceStep()
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, t0.Add(5*time.Minute), sess.LastAccessed)
	require.Equal(t, t0, sess.CreatedAt)
	require.Equal(t, 1, sess.Top().CurrentStep)
}

func TestStore_UpdateCallbackErrorSkipsSave(t *testing.T) {
	ctx := context.Background()
	repo := newFakeRepo()
	store := NewStore(repo, WithIDGenerator(sequentialIDs("abc12345")), WithRetryPolicy(fastRetry()))
	_, err := store.CreateSession(ctx, "p", []domain.FrameSpec{{Name: "w", Steps: steps("a")}}, nil)
	require.NoError(t, err)
	require.Equal(t, 1, repo.putCalls)

	boom := errors.New("refused")
	sess, err := store.Update(ctx, "abc12345", func(*domain.Session) error { return boom })
	require.ErrorIs(t, err, boom)
	require.NotNil(t, sess)
	require.Equal(t, 1, repo.putCalls)
}

func TestStore_SaveRetriesTransientFaults(t *testing.T) {
	ctx := context.Background()
	repo := newFakeRepo()
	repo.putErrs = []error{
		&domain.StorageError{Op: "put", Retryable: true, Err: errors.New("busy")},
		&domain.StorageError{Op: "put", Retryable: true, Err: errors.New("busy")},
	}
	store := NewStore(repo, WithIDGenerator(sequentialIDs("abc12345")), WithRetryPolicy(fastRetry()))

	_, err := store.CreateSession(ctx, "p", []domain.FrameSpec{{Name: "w", Steps: steps("a")}}, nil)
	require.NoError(t, err)
	require.Equal(t, 3, repo.putCalls)
	require.NotNil(t, repo.stored("abc12345"))
}

func TestStore_SaveStopsOnPermanentFault(t *testing.T) {
	ctx := context.Background()
	repo := newFakeRepo()
	repo.alwaysFail = &domain.StorageError{Op: "put", Err: errors.New("read-only filesystem")}
	store := NewStore(repo, WithIDGenerator(sequentialIDs("abc12345")), WithRetryPolicy(fastRetry()))

	sess, err := store.CreateSession(ctx, "p", []domain.FrameSpec{{Name: "w", Steps: steps("a")}}, nil)
	require.ErrorIs(t, err, domain.ErrStorage)
	require.False(t, domain.IsRetryable(err))
	require.Equal(t, 1, repo.putCalls)

	// The in-memory session survives the failed save.
	require.NotNil(t, sess)
	_, err = store.Get(ctx, "abc12345")
	require.NoError(t, err)
}

func TestStore_SaveGivesUpAfterMaxAttempts(t *testing.T) {
	ctx := context.Background()
	repo := newFakeRepo()
	repo.alwaysFail = &domain.StorageError{Op: "put", Retryable: true, Err: errors.New("locked")}
	store := NewStore(repo, WithIDGenerator(sequentialIDs("abc12345")), WithRetryPolicy(fastRetry()))

	_, err := store.CreateSession(ctx, "p", []domain.FrameSpec{{Name: "w", Steps: steps("a")}}, nil)
	require.ErrorIs(t, err, domain.ErrStorage)
	require.True(t, domain.IsRetryable(err))
	require.Equal(t, 3, repo.putCalls)
}

func TestStore_NonStorageSaveErrorsAreWrapped(t *testing.T) {
	ctx := context.Background()
	repo := newFakeRepo()
	repo.alwaysFail = errors.New("unexpected")
	store := NewStore(repo, WithIDGenerator(sequentialIDs("abc12345")), WithRetryPolicy(fastRetry()))

	_, err := store.CreateSession(ctx, "p", nil, nil)
	require.ErrorIs(t, err, domain.ErrStorage)
	require.Equal(t, domain.CategoryStorage, domain.CategoryOf(err))
}

func TestStore_LoadsLazilyOnce(t *testing.T) {
	ctx := context.Background()
	existing := domain.NewSession("old00001", "earlier", nil, t0)
	existing.PushWorkflow("w", steps("a"), nil)
	repo := newFakeRepo(existing)
	store := NewStore(repo)
	require.Equal(t, 0, repo.loads)

	sessions, err := store.List(ctx)
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	require.Equal(t, "old00001", sessions[0].ID)

	_, err = store.Get(ctx, "old00001")
	require.NoError(t, err)
	require.Equal(t, 1, repo.loads)
}

func TestStore_DurableRoundTripThroughFiles(t *testing.T) {
	ctx := context.Background()
	dir := filepath.Join(t.TempDir(), "sessions")
	repo, err := filestore.New(dir)
	require.NoError(t, err)

	clock := newMockClock(t0)
	store := NewStore(repo, WithClock(clock), WithIDGenerator(sequentialIDs("abc12345")))
	require.True(t, store.Durable())
	_, err = store.CreateSession(ctx, "ship it", []domain.FrameSpec{{Name: "setup", Steps: steps("a", "b")}}, nil)
	require.NoError(t, err)
	_, err = store.Update(ctx, "abc12345", func(s *domain.Session) error {
		s.AdvanceStep()
		return nil
	})
	require.NoError(t, err)

	// Plant a corrupt record next to the good one.
	require.NoError(t, os.WriteFile(filepath.Join(dir, "corrupt1.json"), []byte("{"), 0o600))

	reopened := NewStore(repo, WithClock(clock))
	sessions, err := reopened.List(ctx)
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	require.Equal(t, "abc12345", sessions[0].ID)
	require.Equal(t, 1, sessions[0].Top().CurrentStep)

	require.NoError(t, reopened.Remove(ctx, "abc12345"))
	require.NoFileExists(t, filepath.Join(dir, "abc12345.json"))
}

func TestStore_Remove(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(WithIDGenerator(sequentialIDs("abc12345")))
	_, err := store.CreateSession(ctx, "p", nil, nil)
	require.NoError(t, err)

	require.NoError(t, store.Remove(ctx, "abc12345"))
	require.ErrorIs(t, store.Remove(ctx, "abc12345"), domain.ErrNotFound)
}

func TestStore_Save(t *testing.T) {
	ctx := context.Background()
	repo := newFakeRepo()
	store := NewStore(repo)

	s := domain.NewSession("manual01", "p", nil, t0)
	s.PushWorkflow("w", steps("a"), nil)
	require.NoError(t, store.Save(ctx, s))
	require.NotNil(t, repo.stored("manual01"))

	got, err := store.Get(ctx, "manual01")
	require.NoError(t, err)
	require.Equal(t, "p", got.Prompt)
}

func TestStore_CleanupStaleSessions(t *testing.T) {
	ctx := context.Background()
	clock := newMockClock(t0)
	store := NewMemoryStore(WithClock(clock), WithIDGenerator(sequentialIDs("old00001", "new00001")))

	_, err := store.CreateSession(ctx, "old", []domain.FrameSpec{{Name: "w", Steps: steps("a")}}, nil)
	require.NoError(t, err)
	clock.Advance(6 * time.Hour)
	_, err = store.CreateSession(ctx, "new", []domain.FrameSpec{{Name: "w", Steps: steps("a")}}, nil)
	require.NoError(t, err)
	clock.Advance(time.Hour)

	removed, err := store.CleanupStaleSessions(ctx, 2*time.Hour)
	require.NoError(t, err)
	require.Equal(t, 1, removed)

	_, err = store.Get(ctx, "old00001")
	require.ErrorIs(t, err, domain.ErrNotFound)
	_, err = store.Get(ctx, "new00001")
	require.NoError(t, err)
}

func TestStore_HealthSummary(t *testing.T) {
	ctx := context.Background()
	clock := newMockClock(t0)
	store := NewMemoryStore(WithClock(clock), WithIDGenerator(sequentialIDs("stale001", "dorm0001", "done0001", "live0001")))
	frames := []domain.FrameSpec{{Name: "w", Steps: steps("a")}}

	_, err := store.CreateSession(ctx, "stale", frames, nil)
	require.NoError(t, err)
	clock.Advance(20 * time.Minute)
	_, err = store.CreateSession(ctx, "dormant", frames, nil)
	require.NoError(t, err)
	clock.Advance(time.Minute)
	_, err = store.CreateSession(ctx, "done", frames, nil)
	require.NoError(t, err)
	_, err = store.Update(ctx, "done0001", func(s *domain.Session) error {
		s.AdvanceStep()
		return nil
	})
	require.NoError(t, err)
	clock.Advance(10 * time.Minute)
	_, err = store.CreateSession(ctx, "live", frames, nil)
	require.NoError(t, err)

	// stale001 idle 31m, dorm0001 idle 11m, live0001 idle 0.
	summary, err := store.HealthSummary(ctx)
	require.NoError(t, err)
	require.Equal(t, HealthSummary{
		Total:     4,
		Completed: 1,
		Active:    3,
		Dormant:   1,
		Stale:     1,
		OldestID:  "stale001",
		NewestID:  "live0001",
	}, summary)
}

func TestStore_HealthSummaryEmpty(t *testing.T) {
	summary, err := NewMemoryStore().HealthSummary(context.Background())
	require.NoError(t, err)
	require.Equal(t, HealthSummary{}, summary)
}

func TestStore_ReloadOnReadSeesOtherWriters(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	writerRepo, err := filestore.New(dir)
	require.NoError(t, err)
	observerRepo, err := filestore.New(dir)
	require.NoError(t, err)

	clock := newMockClock(t0)
	writer := NewStore(writerRepo, WithClock(clock), WithReloadOnRead(), WithIDGenerator(sequentialIDs("first001", "second01")))
	observer := NewStore(observerRepo, WithClock(clock), WithReloadOnRead())

	_, err = writer.CreateSession(ctx, "one", []domain.FrameSpec{{Name: "setup", Steps: steps("a", "b")}}, nil)
	require.NoError(t, err)

	got, err := observer.Get(ctx, "first001")
	require.NoError(t, err)
	require.Equal(t, 0, got.Top().CurrentStep)

	clock.Advance(time.Hour)
	_, err = writer.Update(ctx, "first001", func(s *domain.Session) error {
		s.AdvanceStep()
		return nil
	})
	require.NoError(t, err)
	_, err = writer.CreateSession(ctx, "two", []domain.FrameSpec{{Name: "setup", Steps: steps("a")}}, nil)
	require.NoError(t, err)

	got, err = observer.Get(ctx, "first001")
	require.NoError(t, err)
	require.Equal(t, 1, got.Top().CurrentStep)
	require.True(t, got.LastAccessed.Equal(t0.Add(time.Hour)))

	listed, err := observer.List(ctx)
	require.NoError(t, err)
	require.Len(t, listed, 2)

	// A removal by the observer is not undone by the writer's next save.
	require.NoError(t, observer.Remove(ctx, "first001"))
	_, err = writer.Update(ctx, "first001", func(s *domain.Session) error {
		s.AdvanceStep()
		return nil
	})
	require.ErrorIs(t, err, domain.ErrNotFound)
	require.NoFileExists(t, filepath.Join(dir, "first001.json"))
}

func TestStore_RefreshWithoutReloadOnRead(t *testing.T) {
	ctx := context.Background()
	repo := newFakeRepo()
	store := NewStore(repo)

	sessions, err := store.List(ctx)
	require.NoError(t, err)
	require.Empty(t, sessions)

	added := domain.NewSession("late0001", "later", nil, t0)
	added.PushWorkflow("w", steps("a"), nil)
	require.NoError(t, repo.Put(ctx, added))

	sessions, err = store.List(ctx)
	require.NoError(t, err)
	require.Empty(t, sessions, "loads once by default")

	require.NoError(t, store.Refresh(ctx))
	sessions, err = store.List(ctx)
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	require.Equal(t, 2, repo.loads)

	require.NoError(t, NewMemoryStore().Refresh(ctx))
}

func TestStore_ArchivedAndPurge(t *testing.T) {
	ctx := context.Background()
	repo, err := filestore.New(t.TempDir(), filestore.WithArchive(true))
	require.NoError(t, err)
	store := NewStore(repo, WithIDGenerator(sequentialIDs("arch0001")))

	_, err = store.CreateSession(ctx, "p", []domain.FrameSpec{{Name: "w", Steps: steps("a")}}, nil)
	require.NoError(t, err)
	require.NoError(t, store.Remove(ctx, "arch0001"))

	ids, err := store.ArchivedIDs(ctx)
	require.NoError(t, err)
	require.Equal(t, []string{"arch0001"}, ids)

	n, err := store.PurgeArchived(ctx, time.Hour)
	require.NoError(t, err)
	require.Zero(t, n, "archived just now")

	old := time.Now().Add(-2 * time.Hour)
	require.NoError(t, os.Chtimes(filepath.Join(repo.Dir(), filestore.ArchiveDirName, "arch0001.json"), old, old))
	n, err = store.PurgeArchived(ctx, time.Hour)
	require.NoError(t, err)
	require.Equal(t, 1, n)

	ids, err = store.ArchivedIDs(ctx)
	require.NoError(t, err)
	require.Empty(t, ids)
}

func TestStore_ArchiveOpsWithoutArchiveRepository(t *testing.T) {
	ctx := context.Background()
	for _, store := range []*Store{NewMemoryStore(), NewStore(newFakeRepo())} {
		ids, err := store.ArchivedIDs(ctx)
		require.NoError(t, err)
		require.Empty(t, ids)
		n, err := store.PurgeArchived(ctx, 0)
		require.NoError(t, err)
		require.Zero(t, n)
	}
}

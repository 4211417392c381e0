package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/ncruces/go-sqlite3"

	"github.com/zjrosen/vibe/internal/sessions/domain"
)

// RepositoryOption configures a SessionRepository.
type RepositoryOption func(*SessionRepository)

// WithSoftDelete keeps removed rows, stamped with archived_at, instead of
// deleting them.
func WithSoftDelete(enabled bool) RepositoryOption {
	return func(r *SessionRepository) { r.softDelete = enabled }
}

// withNow overrides the archive timestamp source.
func withNow(now func() time.Time) RepositoryOption {
	return func(r *SessionRepository) { r.now = now }
}

// SessionRepository implements domain.SessionRepository using SQLite.
type SessionRepository struct {
	db         *sql.DB
	softDelete bool
	now        func() time.Time
}

func newSessionRepository(db *sql.DB, opts ...RepositoryOption) *SessionRepository {
	r := &SessionRepository{db: db, now: time.Now}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Ensure SessionRepository implements domain.SessionRepository.
var (
	_ domain.SessionRepository = (*SessionRepository)(nil)
	_ domain.ArchiveRepository = (*SessionRepository)(nil)
)

// Put upserts the session row. Saving an archived session revives it.
func (r *SessionRepository) Put(ctx context.Context, s *domain.Session) error {
	m, err := toSessionModel(s)
	if err != nil {
		return &domain.StorageError{Op: "put", ID: s.ID, Err: err}
	}

	_, err = r.db.ExecContext(ctx,
		`INSERT INTO workflow_sessions (id, prompt, record, depth, completed, created_at, last_accessed, archived_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, NULL)
		 ON CONFLICT(id) DO UPDATE SET
		   prompt = excluded.prompt,
		   record = excluded.record,
		   depth = excluded.depth,
		   completed = excluded.completed,
		   last_accessed = excluded.last_accessed,
		   archived_at = NULL`,
		m.ID, m.Prompt, m.Record, m.Depth, m.Completed, m.CreatedAt, m.LastAccessed,
	)
	if err != nil {
		return storageError("put", s.ID, err)
	}
	return nil
}

// Delete removes the row, or archives it when soft delete is on. Deleting a
// missing row is not an error.
func (r *SessionRepository) Delete(ctx context.Context, id string) error {
	var err error
	if r.softDelete {
		_, err = r.db.ExecContext(ctx,
			`UPDATE workflow_sessions SET archived_at = ? WHERE id = ? AND archived_at IS NULL`,
			millis(r.now()), id,
		)
	} else {
		_, err = r.db.ExecContext(ctx, `DELETE FROM workflow_sessions WHERE id = ?`, id)
	}
	if err != nil {
		return storageError("delete", id, err)
	}
	return nil
}

// LoadAll returns every non-archived session ordered by creation time. Rows
// whose record cannot be decoded are reported to skip.
func (r *SessionRepository) LoadAll(ctx context.Context, skip func(error)) ([]*domain.Session, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, prompt, record, depth, completed, created_at, last_accessed, archived_at
		 FROM workflow_sessions
		 WHERE archived_at IS NULL
		 ORDER BY created_at, id`,
	)
	if err != nil {
		return nil, storageError("load", "", err)
	}
	defer func() { _ = rows.Close() }()

	sessions := []*domain.Session{}
	for rows.Next() {
		var m SessionModel
		if err := rows.Scan(&m.ID, &m.Prompt, &m.Record, &m.Depth, &m.Completed, &m.CreatedAt, &m.LastAccessed, &m.ArchivedAt); err != nil {
			return nil, storageError("load", "", err)
		}
		s, err := m.toDomain()
		if err != nil {
			if skip != nil {
				skip(err)
			}
			continue
		}
		sessions = append(sessions, s)
	}
	if err := rows.Err(); err != nil {
		return nil, storageError("load", "", err)
	}
	return sessions, nil
}

// ArchivedIDs lists archived session ids, most recently archived first.
func (r *SessionRepository) ArchivedIDs(ctx context.Context) ([]string, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id FROM workflow_sessions WHERE archived_at IS NOT NULL ORDER BY archived_at DESC, id`)
	if err != nil {
		return nil, storageError("load", "", err)
	}
	defer func() { _ = rows.Close() }()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, storageError("load", "", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// PurgeArchived permanently deletes rows archived before cutoff.
func (r *SessionRepository) PurgeArchived(ctx context.Context, cutoff time.Time) (int, error) {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM workflow_sessions WHERE archived_at IS NOT NULL AND archived_at < ?`, millis(cutoff))
	if err != nil {
		return 0, storageError("purge", "", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, storageError("purge", "", err)
	}
	return int(n), nil
}

func storageError(op, id string, err error) error {
	return &domain.StorageError{Op: op, ID: id, Retryable: isRetryable(err), Err: err}
}

// isRetryable reports lock contention, which clears once the other writer
// finishes.
func isRetryable(err error) bool {
	return errors.Is(err, sqlite3.BUSY) || errors.Is(err, sqlite3.LOCKED)
}

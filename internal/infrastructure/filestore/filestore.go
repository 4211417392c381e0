// Package filestore persists workflow sessions as one JSON file per session.
//
// Records live at {dir}/{session_id}.json. Writes go to a temporary file in
// the same directory and are renamed into place, so a crash never leaves a
// half-written record behind. Removed records can optionally be moved to
// {dir}/archive/ instead of being deleted.
package filestore

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/zjrosen/vibe/internal/log"
	"github.com/zjrosen/vibe/internal/paths"
	"github.com/zjrosen/vibe/internal/sessions/domain"
)

// ArchiveDirName is the subdirectory that receives archived records.
const ArchiveDirName = "archive"

// Option configures a Repository.
type Option func(*Repository)

// WithArchive moves removed records into the archive subdirectory instead of
// deleting them.
func WithArchive(enabled bool) Option {
	return func(r *Repository) { r.archive = enabled }
}

// Repository is a domain.SessionRepository backed by a directory of JSON files.
type Repository struct {
	mu      sync.Mutex
	dir     string
	archive bool
}

// New creates the directory if needed and returns a Repository rooted there.
// A leading ~ in dir is expanded to the user's home directory.
func New(dir string, opts ...Option) (*Repository, error) {
	expanded, err := paths.ExpandHome(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve session directory: %w", err)
	}
	if err := os.MkdirAll(expanded, 0o750); err != nil {
		return nil, fmt.Errorf("failed to create session directory %s: %w", expanded, err)
	}

	r := &Repository{dir: expanded}
	for _, opt := range opts {
		opt(r)
	}
	log.Debug(log.CatStore, "Using file session store", "dir", expanded, "archive", r.archive)
	return r, nil
}

// Dir returns the directory holding active records.
func (r *Repository) Dir() string { return r.dir }

func (r *Repository) recordPath(id string) string {
	return filepath.Join(r.dir, id+".json")
}

// Put implements domain.SessionRepository.
func (r *Repository) Put(ctx context.Context, s *domain.Session) error {
	if err := ctx.Err(); err != nil {
		return &domain.StorageError{Op: "put", ID: s.ID, Err: err}
	}
	if !validID(s.ID) {
		return &domain.StorageError{Op: "put", ID: s.ID, Err: fmt.Errorf("invalid session id")}
	}

	data, err := domain.EncodeSession(s)
	if err != nil {
		return &domain.StorageError{Op: "put", ID: s.ID, Err: fmt.Errorf("encoding session: %w", err)}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if err := writeAtomic(r.recordPath(s.ID), data); err != nil {
		return &domain.StorageError{Op: "put", ID: s.ID, Retryable: isTransient(err), Err: err}
	}
	return nil
}

// Delete implements domain.SessionRepository.
func (r *Repository) Delete(_ context.Context, id string) error {
	if !validID(id) {
		return &domain.StorageError{Op: "delete", ID: id, Err: fmt.Errorf("invalid session id")}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	src := r.recordPath(id)
	if r.archive {
		archiveDir := filepath.Join(r.dir, ArchiveDirName)
		if err := os.MkdirAll(archiveDir, 0o750); err != nil {
			return &domain.StorageError{Op: "archive", ID: id, Err: err}
		}
		dst := filepath.Join(archiveDir, id+".json")
		err := os.Rename(src, dst)
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		if err == nil {
			// The modification time records when the session was archived.
			now := time.Now()
			if err := os.Chtimes(dst, now, now); err != nil {
				log.Warn(log.CatStore, "Failed to stamp archived record", "id", id, "error", err)
			}
			return nil
		}
		return &domain.StorageError{Op: "archive", ID: id, Retryable: isTransient(err), Err: err}
	}

	if err := os.Remove(src); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return &domain.StorageError{Op: "delete", ID: id, Retryable: isTransient(err), Err: err}
	}
	return nil
}

// LoadAll implements domain.SessionRepository. Files that cannot be read or
// decoded are reported to skip and left in place.
func (r *Repository) LoadAll(ctx context.Context, skip func(error)) ([]*domain.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	entries, err := os.ReadDir(r.dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return []*domain.Session{}, nil
		}
		return nil, &domain.StorageError{Op: "load", Retryable: isTransient(err), Err: err}
	}

	sessions := make([]*domain.Session, 0, len(entries))
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return nil, &domain.StorageError{Op: "load", Err: err}
		}
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}

		path := filepath.Join(r.dir, entry.Name())
		data, err := os.ReadFile(path) //nolint:gosec // G304: path is inside the session directory
		if err != nil {
			report(skip, &domain.MalformedRecordError{Source: path, Err: err})
			continue
		}
		s, err := domain.DecodeSession(path, data)
		if err != nil {
			report(skip, err)
			continue
		}
		if want := strings.TrimSuffix(entry.Name(), ".json"); s.ID != want {
			report(skip, &domain.MalformedRecordError{Source: path, Err: fmt.Errorf("session_id %q does not match file name", s.ID)})
			continue
		}
		sessions = append(sessions, s)
	}

	sort.Slice(sessions, func(i, j int) bool { return sessions[i].CreatedAt.Before(sessions[j].CreatedAt) })
	return sessions, nil
}

// ArchivedIDs implements domain.ArchiveRepository.
func (r *Repository) ArchivedIDs(ctx context.Context) ([]string, error) {
	entries, err := r.archivedEntries(ctx)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(entries))
	for _, e := range entries {
		ids = append(ids, strings.TrimSuffix(e.Name(), ".json"))
	}
	sort.Strings(ids)
	return ids, nil
}

// PurgeArchived implements domain.ArchiveRepository. A record's archive time
// is its file modification time.
func (r *Repository) PurgeArchived(ctx context.Context, cutoff time.Time) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	entries, err := r.archivedEntries(ctx)
	if err != nil {
		return 0, err
	}
	purged := 0
	for _, e := range entries {
		info, err := e.Info()
		if err != nil || !info.ModTime().Before(cutoff) {
			continue
		}
		path := filepath.Join(r.dir, ArchiveDirName, e.Name())
		if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return purged, &domain.StorageError{Op: "purge", ID: strings.TrimSuffix(e.Name(), ".json"), Err: err}
		}
		purged++
	}
	return purged, nil
}

func (r *Repository) archivedEntries(ctx context.Context) ([]fs.DirEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, &domain.StorageError{Op: "load", Err: err}
	}
	entries, err := os.ReadDir(filepath.Join(r.dir, ArchiveDirName))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, &domain.StorageError{Op: "load", Err: err}
	}
	out := entries[:0]
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".json") {
			out = append(out, e)
		}
	}
	return out, nil
}

func report(skip func(error), err error) {
	if skip != nil {
		skip(err)
	}
}

// writeAtomic writes data to a temp file and renames it over path.
func writeAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".session-*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return fmt.Errorf("writing temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("closing temp file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("renaming temp file: %w", err)
	}
	return nil
}

// validID rejects ids that would escape the session directory.
func validID(id string) bool {
	return id != "" && id != "." && id != ".." && !strings.ContainsAny(id, `/\`)
}

// isTransient reports whether a filesystem error may succeed on retry.
func isTransient(err error) bool {
	return errors.Is(err, syscall.EAGAIN) ||
		errors.Is(err, syscall.EBUSY) ||
		errors.Is(err, syscall.EINTR) ||
		errors.Is(err, syscall.ETIMEDOUT) ||
		errors.Is(err, os.ErrDeadlineExceeded)
}

var (
	_ domain.SessionRepository = (*Repository)(nil)
	_ domain.ArchiveRepository = (*Repository)(nil)
)

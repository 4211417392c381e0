package sqlite

import (
	"fmt"
	"time"

	"github.com/zjrosen/vibe/internal/sessions/domain"
)

// SessionModel is one row of workflow_sessions. The record column holds the
// full JSON session record; the other columns are copies for querying.
type SessionModel struct {
	ID           string
	Prompt       string
	Record       string
	Depth        int
	Completed    bool
	CreatedAt    int64  // Unix milliseconds
	LastAccessed int64  // Unix milliseconds
	ArchivedAt   *int64 // Unix milliseconds, nullable
}

// toSessionModel converts a domain Session to its row.
func toSessionModel(s *domain.Session) (*SessionModel, error) {
	record, err := domain.EncodeSession(s)
	if err != nil {
		return nil, fmt.Errorf("encoding session: %w", err)
	}
	return &SessionModel{
		ID:           s.ID,
		Prompt:       s.Prompt,
		Record:       string(record),
		Depth:        s.Depth(),
		Completed:    s.IsComplete(),
		CreatedAt:    millis(s.CreatedAt),
		LastAccessed: millis(s.LastAccessed),
	}, nil
}

// toDomain decodes the row's record. A record whose id disagrees with the
// row key is malformed.
func (m *SessionModel) toDomain() (*domain.Session, error) {
	source := "workflow_sessions/" + m.ID
	s, err := domain.DecodeSession(source, []byte(m.Record))
	if err != nil {
		return nil, err
	}
	if s.ID != m.ID {
		return nil, &domain.MalformedRecordError{
			Source: source,
			Err:    fmt.Errorf("record session_id %q does not match row", s.ID),
		}
	}
	return s, nil
}

func millis(t time.Time) int64 { return t.UnixMilli() }

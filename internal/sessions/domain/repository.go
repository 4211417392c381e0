package domain

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

var errMissingID = errors.New("record has no session_id")

// SessionRepository is the durable backend behind the session store.
//
// Implementations classify their failures as *StorageError so the store can
// decide whether a save is worth retrying.
type SessionRepository interface {
	// Put writes the full record for s, replacing any previous one.
	Put(ctx context.Context, s *Session) error
	// Delete removes the record for id. A missing record is not an error.
	Delete(ctx context.Context, id string) error
	// LoadAll returns every decodable record. Records that fail to decode are
	// reported through the skip callback and left out of the result.
	LoadAll(ctx context.Context, skip func(error)) ([]*Session, error)
}

// ArchiveRepository is implemented by repositories that keep removed records
// instead of deleting them.
type ArchiveRepository interface {
	// ArchivedIDs lists the ids of archived records.
	ArchivedIDs(ctx context.Context) ([]string, error)
	// PurgeArchived permanently deletes records archived before cutoff and
	// returns how many were deleted.
	PurgeArchived(ctx context.Context, cutoff time.Time) (int, error)
}

// EncodeSession serializes s to its persisted JSON form.
func EncodeSession(s *Session) ([]byte, error) {
	return json.MarshalIndent(s, "", "  ")
}

// DecodeSession parses a persisted record. source names the record in the
// returned *MalformedRecordError.
func DecodeSession(source string, data []byte) (*Session, error) {
	var s Session
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, &MalformedRecordError{Source: source, Err: err}
	}
	if s.ID == "" {
		return nil, &MalformedRecordError{Source: source, Err: errMissingID}
	}
	s.Normalize()
	return &s, nil
}

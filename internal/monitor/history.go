package monitor

import (
	"sync"
	"time"

	"github.com/patrickmn/go-cache"
)

// Response is one agent response recorded for a session.
type Response struct {
	Text      string    `json:"text"`
	Signals   Signals   `json:"signals"`
	Timestamp time.Time `json:"timestamp"`
}

// responseHistory keeps the most recent responses per session. Entries expire
// when a session stops producing responses for the configured TTL.
type responseHistory struct {
	mu    sync.Mutex
	size  int
	ttl   time.Duration
	cache *cache.Cache
}

func newResponseHistory(size int, ttl time.Duration) *responseHistory {
	expiry := ttl
	if expiry <= 0 {
		expiry = cache.NoExpiration
	}
	cleanup := expiry / 2
	if expiry == cache.NoExpiration || cleanup < time.Minute {
		cleanup = time.Minute
	}
	return &responseHistory{
		size:  size,
		ttl:   expiry,
		cache: cache.New(expiry, cleanup),
	}
}

// add appends r to the session's history, dropping the oldest entries beyond
// the configured size.
func (h *responseHistory) add(sessionID string, r Response) {
	h.mu.Lock()
	defer h.mu.Unlock()

	var entries []Response
	if v, ok := h.cache.Get(sessionID); ok {
		entries = v.([]Response)
	}
	entries = append(entries, r)
	if len(entries) > h.size {
		entries = entries[len(entries)-h.size:]
	}
	stored := make([]Response, len(entries))
	copy(stored, entries)
	h.cache.Set(sessionID, stored, h.ttl)
}

// get returns a copy of the session's history, oldest first.
func (h *responseHistory) get(sessionID string) []Response {
	h.mu.Lock()
	defer h.mu.Unlock()

	v, ok := h.cache.Get(sessionID)
	if !ok {
		return nil
	}
	entries := v.([]Response)
	out := make([]Response, len(entries))
	copy(out, entries)
	return out
}

func (h *responseHistory) forget(sessionID string) {
	h.cache.Delete(sessionID)
}

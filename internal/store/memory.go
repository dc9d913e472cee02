// In file: internal/store/memory.go
package store

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Memory keeps the most recent DefaultStatusLimit sessions and status checks
// in process. It is used when no database is configured and in tests.
type Memory struct {
	mu       sync.Mutex
	sessions []Session
	statuses []StatusCheck
}

var (
	_ SessionSink = (*Memory)(nil)
	_ StatusStore = (*Memory)(nil)
)

func NewMemory() *Memory {
	return &Memory{}
}

func (m *Memory) SaveSession(ctx context.Context, sess Session) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions = appendBounded(m.sessions, withDefaults(sess), DefaultStatusLimit)
	return nil
}

// Sessions returns a copy of the saved sessions in insertion order.
func (m *Memory) Sessions() []Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Session(nil), m.sessions...)
}

func (m *Memory) CreateStatus(ctx context.Context, clientName string) (StatusCheck, error) {
	if err := ctx.Err(); err != nil {
		return StatusCheck{}, err
	}
	check := StatusCheck{ID: uuid.New(), ClientName: clientName, Timestamp: time.Now().UTC()}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.statuses = appendBounded(m.statuses, check, DefaultStatusLimit)
	return check, nil
}

func (m *Memory) ListStatus(_ context.Context, limit int) ([]StatusCheck, error) {
	if limit <= 0 || limit > DefaultStatusLimit {
		limit = DefaultStatusLimit
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]StatusCheck, 0, min(limit, len(m.statuses)))
	for i := len(m.statuses) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, m.statuses[i])
	}
	return out, nil
}

// appendBounded appends v and drops the oldest entries beyond limit.
func appendBounded[T any](s []T, v T, limit int) []T {
	s = append(s, v)
	if n := len(s) - limit; n > 0 {
		s = append(s[:0], s[n:]...)
	}
	return s
}

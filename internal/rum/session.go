package rum

import (
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

const (
	// SessionInactivityTimeout expires a session without user interaction
	SessionInactivityTimeout = 15 * time.Minute
	// SessionMaxDuration caps the lifetime of a session
	SessionMaxDuration = 4 * time.Hour
)

type session struct {
	id              string
	start           int64
	lastInteraction atomic.Int64
}

func (s *session) expired(now int64) bool {
	return now-s.lastInteraction.Load() >= int64(SessionInactivityTimeout) ||
		now-s.start >= int64(SessionMaxDuration)
}

func (s *session) markInteraction(now int64) {
	for {
		last := s.lastInteraction.Load()
		if now <= last || s.lastInteraction.CompareAndSwap(last, now) {
			return
		}
	}
}

// SessionState tracks the current RUM session. It is safe for concurrent use.
type SessionState struct {
	now     func() time.Time
	current atomic.Pointer[session]
}

// NewSessionState creates a SessionState with no active session
func NewSessionState(now func() time.Time) *SessionState {
	if now == nil {
		now = time.Now
	}
	return &SessionState{now: now}
}

// SessionID returns the active session id, or "" when none is active
func (s *SessionState) SessionID() string {
	cur := s.current.Load()
	if cur == nil || cur.expired(s.now().UnixNano()) {
		return ""
	}
	return cur.id
}

// Touch returns the active session id, starting a new session when the
// previous one expired. interaction marks user activity.
func (s *SessionState) Touch(interaction bool) (id string, renewed bool) {
	now := s.now().UnixNano()
	for {
		cur := s.current.Load()
		if cur != nil && !cur.expired(now) {
			if interaction {
				cur.markInteraction(now)
			}
			return cur.id, false
		}

		next := &session{id: uuid.NewString(), start: now}
		next.lastInteraction.Store(now)
		if s.current.CompareAndSwap(cur, next) {
			return next.id, true
		}
	}
}

// Reset drops the active session; the next Touch starts a new one
func (s *SessionState) Reset() {
	s.current.Store(nil)
}

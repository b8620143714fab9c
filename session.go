package main

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"
)

// ============================================================================
// Component ID Codec
// ============================================================================

// ComponentID is the structured form of a message component custom ID.
// Wire format is "purpose:target:action"; target is free-form but must
// not contain a colon.
type ComponentID struct {
	Purpose string
	Target  string
	Action  string
}

func (c ComponentID) Encode() string {
	return c.Purpose + ":" + c.Target + ":" + c.Action
}

// ParseComponentID decodes a custom ID. Anything that does not split
// into exactly three non-empty purpose/target parts is rejected.
func ParseComponentID(raw string) (ComponentID, error) {
	parts := strings.SplitN(raw, ":", 3)
	if len(parts) != 3 || parts[0] == "" || parts[1] == "" {
		return ComponentID{}, fmt.Errorf("malformed component id: %q", raw)
	}
	return ComponentID{Purpose: parts[0], Target: parts[1], Action: parts[2]}, nil
}

// ============================================================================
// Interactive Sessions
// ============================================================================

// Session is one live interactive message (a server list or a power
// control row) owned by the user who invoked it. Each routed event
// resets the inactivity timer; when it fires the controls are disabled
// once and the session is gone.
type Session struct {
	ID     string
	UserID string
	Window time.Duration

	// Data holds the owning feature's view state.
	Data any

	mu       sync.Mutex
	timer    *time.Timer
	closed   bool
	deadline time.Time

	// disable re-renders the message with controls disabled. Called at
	// most once, outside the session lock. Failures are logged and
	// swallowed.
	disable func() error
}

var sessions = struct {
	sync.Mutex
	m map[string]*Session
}{m: map[string]*Session{}}

// OpenSession registers a session and arms its inactivity timer.
func OpenSession(id, userID string, window time.Duration, data any, disable func() error) *Session {
	s := &Session{
		ID:      id,
		UserID:  userID,
		Window:  window,
		Data:    data,
		disable: disable,
	}
	s.deadline = time.Now().Add(window)
	s.timer = time.AfterFunc(window, s.expire)

	sessions.Lock()
	sessions.m[id] = s
	sessions.Unlock()
	return s
}

// GetSession looks up a live session.
func GetSession(id string) (*Session, bool) {
	sessions.Lock()
	defer sessions.Unlock()
	s, ok := sessions.m[id]
	return s, ok
}

// Touch resets the inactivity window. Returns false if the session has
// already expired or closed.
func (s *Session) Touch() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.deadline = time.Now().Add(s.Window)
	s.timer.Reset(s.Window)
	return true
}

// IsClosed reports whether the session has expired or been closed.
func (s *Session) IsClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Close tears the session down without the disable render. Used when a
// flow replaces its own message and the old controls are already gone.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.timer.Stop()
	s.mu.Unlock()

	sessions.Lock()
	delete(sessions.m, s.ID)
	sessions.Unlock()
}

func (s *Session) expire() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	disable := s.disable
	s.mu.Unlock()

	sessions.Lock()
	delete(sessions.m, s.ID)
	sessions.Unlock()

	LogSession(MsgSessionClosed, s.ID)
	if disable != nil {
		if err := disable(); err != nil {
			LogSession(MsgSessionCloseFail, s.ID, err)
		}
	}
}

// ============================================================================
// Session Reaper Daemon
// ============================================================================

// The timers handle expiry on their own; the reaper is a backstop that
// sweeps anything whose timer goroutine died to a panic, and closes all
// remaining sessions on shutdown so controls are not left live.
func init() {
	RegisterDaemon(LogSession, func(ctx context.Context) (bool, func(), func()) {
		done := make(chan struct{})

		run := func() {
			ticker := time.NewTicker(5 * time.Minute)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-done:
					return
				case <-ticker.C:
					reapStaleSessions()
				}
			}
		}

		shutdown := func() {
			close(done)
			for _, s := range snapshotSessions() {
				s.expire()
			}
		}

		return true, run, shutdown
	})
}

func snapshotSessions() []*Session {
	sessions.Lock()
	defer sessions.Unlock()
	out := make([]*Session, 0, len(sessions.m))
	for _, s := range sessions.m {
		out = append(out, s)
	}
	return out
}

func reapStaleSessions() {
	var reaped int
	for _, s := range snapshotSessions() {
		s.mu.Lock()
		// Well past the deadline means the timer callback never ran.
		stale := !s.closed && time.Since(s.deadline) > s.Window
		s.mu.Unlock()
		if stale {
			s.expire()
			reaped++
		}
	}
	if reaped > 0 {
		LogSession(MsgSessionReaperSweep, reaped)
	}
}

package session

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	mcperrors "github.com/mcpruntime/core/pkg/errors"
	"github.com/mcpruntime/core/pkg/transport"
	"github.com/mcpruntime/core/pkg/wire"
)

// Session is one connected client's state: its transport, protocol
// state, pending-request table, and bounded snapshot history.
type Session struct {
	id        string
	transport transport.Transport

	mu         sync.RWMutex
	state      State
	authTries  int
	principal  string
	lastActive atomic.Int64 // unix nanos

	pending   *pendingTable
	snapshots *snapshotStore
	version   atomic.Int32
}

func newSession(id string, tr transport.Transport) *Session {
	s := &Session{
		id:        id,
		transport: tr,
		state:     StateConnecting,
		pending:   newPendingTable(),
		snapshots: newSnapshotStore(defaultSnapshotCapacity),
	}
	s.touch()
	return s
}

// ID returns the session's identifier.
func (s *Session) ID() string { return s.id }

// State returns the session's current protocol state.
func (s *Session) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Principal returns the authenticated identity's subject. It is empty
// until authentication succeeds, unless Manager.Resume restored a saved
// principal.
func (s *Session) Principal() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.principal
}

func (s *Session) touch() {
	s.lastActive.Store(time.Now().UnixNano())
}

// IdleSince returns how long it has been since the session last
// processed a message.
func (s *Session) IdleSince() time.Duration {
	return time.Since(time.Unix(0, s.lastActive.Load()))
}

// transitionTo moves the session to to, rejecting illegal transitions.
func (s *Session) transitionTo(to State) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == to {
		return nil
	}
	if !canTransition(s.state, to) {
		return mcperrors.NewInternalError("illegal session state transition from "+s.state.String()+" to "+to.String(), nil)
	}
	s.state = to
	return nil
}

// authenticate records a successful authentication, moving the session
// to StateActive.
func (s *Session) authenticate(principal string) error {
	s.mu.Lock()
	if s.state != StateAuthenticating {
		s.mu.Unlock()
		return mcperrors.NewInternalError("authenticate called outside authenticating state", nil)
	}
	s.principal = principal
	s.state = StateActive
	s.mu.Unlock()
	return nil
}

// recordFailedAuth increments the retry counter and reports whether the
// bounded retry count has been exceeded.
func (s *Session) recordFailedAuth() (exceeded bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.authTries++
	return s.authTries >= maxAuthRetries
}

// TransitionTo is the exported form of transitionTo, for callers outside
// this package (the handshake and protocol dispatch layers) driving a
// session's state machine.
func (s *Session) TransitionTo(to State) error { return s.transitionTo(to) }

// Authenticate is the exported form of authenticate.
func (s *Session) Authenticate(principal string) error { return s.authenticate(principal) }

// RecordFailedAuth is the exported form of recordFailedAuth.
func (s *Session) RecordFailedAuth() bool { return s.recordFailedAuth() }

// Snapshot captures the session's current context state, bumping its
// version.
func (s *Session) Snapshot(state map[string]any) Snapshot {
	v := int(s.version.Add(1))
	s.snapshots.capture(v, state)
	return Snapshot{Version: v, State: state}
}

// Restore returns the snapshot captured at version, if still retained.
func (s *Session) Restore(version int) (Snapshot, bool) {
	return s.snapshots.restore(version)
}

// PendingCount returns the number of outstanding pending requests, used
// by tests and diagnostics.
func (s *Session) PendingCount() int {
	return s.pending.len()
}

// Send enqueues msg on the session's transport.
func (s *Session) Send(msg *wire.Message) error {
	return s.transport.Send(msg)
}

// Recv blocks until the next message arrives on the session's
// transport, or ctx is cancelled.
func (s *Session) Recv(ctx context.Context) (*wire.Message, error) {
	return s.transport.Recv(ctx)
}

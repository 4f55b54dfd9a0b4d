package session

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mcpruntime/core/pkg/audit"
	mcperrors "github.com/mcpruntime/core/pkg/errors"
	"github.com/mcpruntime/core/pkg/logger"
	"github.com/mcpruntime/core/pkg/transport"
	"github.com/mcpruntime/core/pkg/wire"
)

// DefaultIdleTimeout closes a session that has processed no message for
// this long.
const DefaultIdleTimeout = 300 * time.Second

// closeGracePeriod is awaited for in-flight pending requests to drain
// before a closing session's transport is torn down.
const closeGracePeriod = 2 * time.Second

// ManagerConfig tunes a Manager's idle-eviction sweep.
type ManagerConfig struct {
	IdleTimeout   time.Duration
	SweepInterval time.Duration
}

func (c ManagerConfig) withDefaults() ManagerConfig {
	if c.IdleTimeout <= 0 {
		c.IdleTimeout = DefaultIdleTimeout
	}
	if c.SweepInterval <= 0 {
		c.SweepInterval = c.IdleTimeout / 4
	}
	return c
}

// Manager owns every live session, keyed by id. It is the sole mutator
// of that map; Sessions themselves own their own state machine and
// pending-request table.
type Manager struct {
	cfg ManagerConfig

	mu       sync.RWMutex
	sessions map[string]*Session

	auditSink *audit.Sink
}

// NewManager constructs a Manager. sink may be nil, in which case
// session lifecycle events are not audited.
func NewManager(cfg ManagerConfig, sink *audit.Sink) *Manager {
	return &Manager{
		cfg:       cfg.withDefaults(),
		sessions:  make(map[string]*Session),
		auditSink: sink,
	}
}

// Accept registers a new session wrapping tr and returns it in
// StateConnecting.
func (m *Manager) Accept(tr transport.Transport) *Session {
	s := newSession(uuid.NewString(), tr)

	m.mu.Lock()
	m.sessions[s.id] = s
	m.mu.Unlock()

	return s
}

// Get returns the session registered under id.
func (m *Manager) Get(id string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, mcperrors.NewInternalError("unknown session id", nil)
	}
	return s, nil
}

// Count returns the number of currently tracked sessions.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// Process handles one inbound message on the named session. A
// Response/Error is delivered to its matching pending entry and
// consumed here; a duplicate or unmatched correlation_id is reported as
// an Internal audit event rather than silently dropped. A
// Request/Notification is checked against the session's current state's
// method gating and, if legal, handed back to the caller (via ok=true)
// to route to a protocol handler; s.touch() marks the session active
// either way.
func (m *Manager) Process(ctx context.Context, id string, msg *wire.Message) (ok bool, err error) {
	s, err := m.Get(id)
	if err != nil {
		return false, err
	}
	s.touch()

	if msg.IsResponseLike() {
		if !s.pending.complete(msg) {
			m.recordUnmatchedResponse(ctx, id, msg)
		}
		return false, nil
	}

	state := s.State()
	if !methodAllowedIn(state, msg.Method) {
		return false, errForDisallowedMethod(state)
	}
	return true, nil
}

func (m *Manager) recordUnmatchedResponse(ctx context.Context, sessionID string, msg *wire.Message) {
	logger.Warnw("response/error with no matching pending request", "session_id", sessionID, "correlation_id", msg.CorrelationID.String())
	if m.auditSink == nil {
		return
	}
	target := map[string]string{audit.TargetKeyType: audit.TargetTypeSession, audit.TargetKeyID: sessionID}
	event := audit.NewAuditEvent(audit.EventTypeRequest, audit.EventSource{Type: audit.SourceTypeInproc, Value: sessionID}, audit.OutcomeError, nil, "session").
		WithTarget(target).
		WithMetadata("reason", "unmatched_correlation_id")
	m.auditSink.Record(ctx, event)
}

// Close transitions the named session to StateDraining, waits up to the
// close grace period for any pending requests to be cancelled and
// delivered, then closes its transport and removes it from the manager.
func (m *Manager) Close(ctx context.Context, id string, reason transport.CloseReason) error {
	m.mu.Lock()
	s, ok := m.sessions[id]
	if ok {
		delete(m.sessions, id)
	}
	m.mu.Unlock()
	if !ok {
		return nil
	}

	_ = s.transitionTo(StateDraining)

	drained := make(chan struct{})
	go func() {
		s.pending.cancelAll()
		close(drained)
	}()
	select {
	case <-drained:
	case <-time.After(closeGracePeriod):
	}

	_ = s.transitionTo(StateClosed)
	err := s.transport.Close(reason)

	if m.auditSink != nil {
		target := map[string]string{audit.TargetKeyType: audit.TargetTypeSession, audit.TargetKeyID: id}
		subjects := map[string]string{audit.SubjectKeyPrincipal: s.Principal()}
		event := audit.NewAuditEvent(audit.EventTypeSessionClosed, audit.EventSource{Type: audit.SourceTypeInproc, Value: id}, audit.OutcomeSuccess, subjects, "session").
			WithTarget(target)
		m.auditSink.Record(ctx, event)
	}

	logger.Infow("session closed", "session_id", id, "reason", reason)
	return err
}

// sweepIdle closes every session that has been idle for longer than the
// manager's configured idle timeout.
func (m *Manager) sweepIdle(ctx context.Context) {
	m.mu.RLock()
	var stale []string
	for id, s := range m.sessions {
		if s.IdleSince() >= m.cfg.IdleTimeout {
			stale = append(stale, id)
		}
	}
	m.mu.RUnlock()

	for _, id := range stale {
		_ = m.Close(ctx, id, transport.CloseReasonIdleTimeout)
	}
}

// Run drives the idle-eviction sweep until ctx is cancelled.
func (m *Manager) Run(ctx context.Context) {
	ticker := time.NewTicker(m.cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.sweepIdle(ctx)
		}
	}
}

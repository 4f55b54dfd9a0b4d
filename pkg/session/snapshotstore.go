package session

import (
	"context"

	"github.com/mcpruntime/core/pkg/transport"
)

// SnapshotStore is the pluggable backing store for session context
// persistence beyond the in-process, bounded-history snapshotStore every
// Session already keeps. It exists for deployments that resume a
// session's latest context across a process restart or on a different
// instance; the in-memory store remains authoritative for the per-version
// undo history used by Session.Restore.
type SnapshotStore interface {
	// Save persists the latest snapshot and resolved principal for
	// sessionID, overwriting any previously saved value.
	Save(ctx context.Context, sessionID string, principal string, snap Snapshot) error
	// Load returns the most recently saved snapshot and principal for
	// sessionID, if any.
	Load(ctx context.Context, sessionID string) (snap Snapshot, principal string, ok bool, err error)
	// Delete removes any persisted snapshot for sessionID.
	Delete(ctx context.Context, sessionID string) error
}

// Persist saves the session's latest in-memory snapshot to store, a
// no-op if the session has never captured one.
func (m *Manager) Persist(ctx context.Context, store SnapshotStore, sessionID string) error {
	s, err := m.Get(sessionID)
	if err != nil {
		return err
	}
	snap, ok := s.snapshots.latest()
	if !ok {
		return nil
	}
	return store.Save(ctx, sessionID, s.Principal(), snap)
}

// Resume accepts tr as a new session, then seeds its context from the
// snapshot store under sessionID if one was saved, restoring its
// principal and most recent snapshot. The returned session always has a
// freshly assigned id; sessionID here names only the persisted state to
// load, not the session's own id, so resuming does not collide with a
// still-live session under the original id.
func (m *Manager) Resume(ctx context.Context, store SnapshotStore, sessionID string, tr transport.Transport) (*Session, bool, error) {
	snap, principal, ok, err := store.Load(ctx, sessionID)
	if err != nil {
		return nil, false, err
	}
	s := m.Accept(tr)
	if !ok {
		return s, false, nil
	}
	s.snapshots.capture(snap.Version, snap.State)
	s.version.Store(int32(snap.Version))
	s.principal = principal
	return s, true, nil
}

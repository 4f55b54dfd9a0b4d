package session

import (
	"context"
	"sync"
	"time"

	mcperrors "github.com/mcpruntime/core/pkg/errors"
	"github.com/mcpruntime/core/pkg/wire"
)

// pendingEntry tracks one outstanding Request awaiting its Response or
// Error.
type pendingEntry struct {
	method    string
	startedAt time.Time
	cancel    context.CancelFunc
	result    chan *wire.Message
}

// pendingTable is the fine-grained reader-writer-locked map of
// correlation_id to pendingEntry: the lock is never held across an
// await.
type pendingTable struct {
	mu      sync.RWMutex
	entries map[wire.ID]*pendingEntry
}

func newPendingTable() *pendingTable {
	return &pendingTable{entries: make(map[wire.ID]*pendingEntry)}
}

// register adds a new pending entry for id and returns a channel that
// receives the matching Response/Error once complete, together with a
// CancelFunc callers may use to abandon the wait.
func (p *pendingTable) register(id wire.ID, method string) (<-chan *wire.Message, context.CancelFunc) {
	_, cancel := context.WithCancel(context.Background())
	entry := &pendingEntry{
		method:    method,
		startedAt: time.Now(),
		cancel:    cancel,
		result:    make(chan *wire.Message, 1),
	}

	p.mu.Lock()
	p.entries[id] = entry
	p.mu.Unlock()

	return entry.result, cancel
}

// complete delivers a Response/Error to its matching pending entry and
// removes it. A correlation_id with no matching entry, or one already
// completed, is a duplicate response and complete reports that via its
// bool return so the caller can raise an Internal audit entry rather
// than silently dropping it.
func (p *pendingTable) complete(msg *wire.Message) bool {
	p.mu.Lock()
	entry, ok := p.entries[msg.CorrelationID]
	if ok {
		delete(p.entries, msg.CorrelationID)
	}
	p.mu.Unlock()

	if !ok {
		return false
	}
	entry.result <- msg
	return true
}

// cancelAll completes every pending entry with a Cancelled error
// message, used when a session closes with requests still in flight.
func (p *pendingTable) cancelAll() {
	p.mu.Lock()
	entries := p.entries
	p.entries = make(map[wire.ID]*pendingEntry)
	p.mu.Unlock()

	for id, entry := range entries {
		cancelled := mcperrors.NewCancelledError("session closed with request pending", nil)
		payload, _ := wire.NewJSONCodec().Encode(wire.NewErrorMessage(id, []byte(cancelled.Error())))
		entry.result <- &wire.Message{Kind: wire.KindError, CorrelationID: id, Payload: payload}
	}
}

// len reports the number of outstanding pending entries.
func (p *pendingTable) len() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.entries)
}

package transport

import (
	"sync"
	"sync/atomic"

	mcperrors "github.com/mcpruntime/core/pkg/errors"
	"github.com/mcpruntime/core/pkg/wire"
)

// outboundQueue is the bounded, non-blocking send queue shared by every
// Transport variant. A single writer goroutine drains it; producers
// never block on a full queue, instead receiving a Backpressure error.
type outboundQueue struct {
	ch     chan *wire.Message
	closed atomic.Bool
	once   sync.Once
}

func newOutboundQueue(capacity int) *outboundQueue {
	return &outboundQueue{ch: make(chan *wire.Message, capacity)}
}

// enqueue attempts a non-blocking send. It returns Backpressure when the
// queue is full and TransportClosed once closed.
func (q *outboundQueue) enqueue(msg *wire.Message) error {
	if q.closed.Load() {
		return mcperrors.NewTransportClosedError("transport is closed", nil)
	}
	select {
	case q.ch <- msg:
		return nil
	default:
		return mcperrors.NewBackpressureError("outbound queue is full", nil)
	}
}

// close marks the queue closed and closes ch, so a goroutine ranging
// over ch receives what is still buffered and then stops. Idempotent.
func (q *outboundQueue) close() {
	q.once.Do(func() {
		q.closed.Store(true)
		close(q.ch)
	})
}

// Package transport implements the runtime's duplex message channel
// abstraction: a WebSocket variant (one WebSocket data frame per
// message) and a stdio variant (length-prefixed frames), both with the
// same bounded-outbound-queue backpressure policy.
package transport

import (
	"context"

	"github.com/mcpruntime/core/pkg/wire"
)

// CloseReason documents why a transport was closed, for audit and
// diagnostics; it carries no behavior of its own.
type CloseReason string

const (
	CloseReasonClientDisconnect CloseReason = "client_disconnect"
	CloseReasonServerShutdown   CloseReason = "server_shutdown"
	CloseReasonProtocolError    CloseReason = "protocol_error"
	CloseReasonIdleTimeout      CloseReason = "idle_timeout"
	CloseReasonBackpressure     CloseReason = "backpressure"
)

// Transport is a duplex channel of discrete, fully-decoded Messages.
// Implementations must be safe for concurrent Send and Recv from
// separate goroutines; Close is idempotent and safe to call from any
// goroutine, including one blocked in Recv.
type Transport interface {
	// Send attempts to enqueue msg for delivery without blocking. It
	// returns a Backpressure error if the outbound queue's high-water
	// mark is exceeded, or TransportClosed if the transport is closed.
	Send(msg *wire.Message) error

	// Recv blocks until the next fully-decoded message arrives, ctx is
	// done, or the transport closes. A partially buffered frame is held
	// internally across calls.
	Recv(ctx context.Context) (*wire.Message, error)

	// Close is idempotent: it completes all pending sends with
	// TransportClosed and causes subsequent Recv calls to return
	// TransportClosed.
	Close(reason CloseReason) error
}

// Config bounds the shared behavior of every Transport variant.
type Config struct {
	// MaxFrameSize caps a single frame's payload length (spec default
	// 16 MiB). Zero uses wire.DefaultMaxFrameSize.
	MaxFrameSize int

	// OutboundQueueSize is the high-water mark on the bounded outbound
	// queue; Send returns Backpressure once it is reached.
	OutboundQueueSize int

	// Codec encodes/decodes the wire.Message payload. Defaults to
	// wire.NewJSONCodec() if nil.
	Codec wire.Codec
}

// DefaultOutboundQueueSize is used when Config.OutboundQueueSize is
// zero.
const DefaultOutboundQueueSize = 256

func (c Config) withDefaults() Config {
	if c.MaxFrameSize <= 0 {
		c.MaxFrameSize = wire.DefaultMaxFrameSize
	}
	if c.OutboundQueueSize <= 0 {
		c.OutboundQueueSize = DefaultOutboundQueueSize
	}
	if c.Codec == nil {
		c.Codec = wire.NewJSONCodec()
	}
	return c
}

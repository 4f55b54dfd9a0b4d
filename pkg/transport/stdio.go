package transport

import (
	"bufio"
	"context"
	"io"
	"sync"

	mcperrors "github.com/mcpruntime/core/pkg/errors"
	"github.com/mcpruntime/core/pkg/logger"
	"github.com/mcpruntime/core/pkg/wire"
)

// StdioTransport frames messages over two byte streams (typically a
// subprocess's stdin/stdout).
type StdioTransport struct {
	cfg Config

	reader *bufio.Reader
	writer io.Writer
	wmu    sync.Mutex

	outbound  *outboundQueue
	closeOnce sync.Once
	closed    chan struct{}
	writeErrs chan error
}

// NewStdioTransport wraps r/w as a framed duplex transport and starts
// the background writer goroutine that drains the outbound queue.
func NewStdioTransport(r io.Reader, w io.Writer, cfg Config) *StdioTransport {
	cfg = cfg.withDefaults()
	t := &StdioTransport{
		cfg:       cfg,
		reader:    bufio.NewReader(r),
		writer:    w,
		outbound:  newOutboundQueue(cfg.OutboundQueueSize),
		closed:    make(chan struct{}),
		writeErrs: make(chan error, 1),
	}
	go t.writeLoop()
	return t
}

func (t *StdioTransport) writeLoop() {
	for msg := range t.outbound.ch {
		data, err := t.cfg.Codec.Encode(msg)
		if err != nil {
			logger.Errorf("stdio transport: failed to encode message: %v", err)
			continue
		}
		t.wmu.Lock()
		err = wire.WriteFrame(t.writer, data, t.cfg.MaxFrameSize)
		t.wmu.Unlock()
		if err != nil {
			select {
			case t.writeErrs <- err:
			default:
			}
			return
		}
	}
}

// Send implements Transport.
func (t *StdioTransport) Send(msg *wire.Message) error {
	return t.outbound.enqueue(msg)
}

// Recv implements Transport. ctx cancellation does not interrupt an
// in-flight blocking read on the underlying stream, and neither does
// Close: Close only makes Recv calls that start after it return
// TransportClosed.
func (t *StdioTransport) Recv(ctx context.Context) (*wire.Message, error) {
	select {
	case <-ctx.Done():
		return nil, mcperrors.NewCancelledError("recv cancelled", ctx.Err())
	case <-t.closed:
		return nil, mcperrors.NewTransportClosedError("transport is closed", nil)
	default:
	}

	payload, err := wire.ReadFrame(t.reader, t.cfg.MaxFrameSize)
	if err != nil {
		return nil, err
	}
	msg, err := t.cfg.Codec.Decode(payload)
	if err != nil {
		return nil, err
	}
	return msg, nil
}

// Close implements Transport.
func (t *StdioTransport) Close(_ CloseReason) error {
	t.closeOnce.Do(func() {
		close(t.closed)
		t.outbound.close()
	})
	return nil
}

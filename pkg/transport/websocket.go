package transport

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	mcperrors "github.com/mcpruntime/core/pkg/errors"
	"github.com/mcpruntime/core/pkg/logger"
	"github.com/mcpruntime/core/pkg/wire"
)

const (
	wsPongWait   = 45 * time.Second
	wsPingPeriod = (wsPongWait * 9) / 10
	wsWriteWait  = 10 * time.Second
)

// Upgrader builds the gorilla/websocket.Upgrader used to accept a
// connection. Kept as a package-level constructor so callers can tune
// buffer sizes without depending on gorilla/websocket directly.
func Upgrader(readBufferSize, writeBufferSize int) websocket.Upgrader {
	if readBufferSize <= 0 {
		readBufferSize = 8192
	}
	if writeBufferSize <= 0 {
		writeBufferSize = 8192
	}
	return websocket.Upgrader{
		ReadBufferSize:  readBufferSize,
		WriteBufferSize: writeBufferSize,
		CheckOrigin:     func(*http.Request) bool { return true },
	}
}

// WebSocketTransport maps one WebSocket data frame to one Message.
type WebSocketTransport struct {
	cfg  Config
	conn *websocket.Conn

	outbound  *outboundQueue
	closeOnce sync.Once
	closed    chan struct{}

	recvMu   sync.Mutex
	recvChan chan recvResult
}

type recvResult struct {
	msg *wire.Message
	err error
}

// NewWebSocketTransport wraps an accepted/dialed connection. It starts
// the background write loop and a single background read goroutine that
// feeds Recv.
func NewWebSocketTransport(conn *websocket.Conn, cfg Config) *WebSocketTransport {
	cfg = cfg.withDefaults()
	conn.SetReadLimit(int64(cfg.MaxFrameSize))

	t := &WebSocketTransport{
		cfg:      cfg,
		conn:     conn,
		outbound: newOutboundQueue(cfg.OutboundQueueSize),
		closed:   make(chan struct{}),
		recvChan: make(chan recvResult, 1),
	}

	_ = conn.SetReadDeadline(time.Now().Add(wsPongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})

	go t.writeLoop()
	go t.readLoop()
	return t
}

func (t *WebSocketTransport) writeLoop() {
	ticker := time.NewTicker(wsPingPeriod)
	defer ticker.Stop()

	for {
		select {
		case msg, ok := <-t.outbound.ch:
			if !ok {
				_ = t.conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
					time.Now().Add(wsWriteWait))
				return
			}
			data, err := t.cfg.Codec.Encode(msg)
			if err != nil {
				logger.Errorf("websocket transport: failed to encode message: %v", err)
				continue
			}
			_ = t.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := t.conn.WriteMessage(websocket.BinaryMessage, data); err != nil {
				logger.Warnf("websocket transport: write failed, closing: %v", err)
				t.forceClose()
				return
			}
		case <-ticker.C:
			_ = t.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := t.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				t.forceClose()
				return
			}
		case <-t.closed:
			return
		}
	}
}

func (t *WebSocketTransport) readLoop() {
	for {
		_, data, err := t.conn.ReadMessage()
		if err != nil {
			select {
			case t.recvChan <- recvResult{err: mcperrors.NewTransportClosedError("websocket read failed", err)}:
			case <-t.closed:
			}
			t.forceClose()
			return
		}
		msg, err := t.cfg.Codec.Decode(data)
		if err != nil {
			select {
			case t.recvChan <- recvResult{err: err}:
			case <-t.closed:
				return
			}
			continue
		}
		select {
		case t.recvChan <- recvResult{msg: msg}:
		case <-t.closed:
			return
		}
	}
}

// Send implements Transport.
func (t *WebSocketTransport) Send(msg *wire.Message) error {
	return t.outbound.enqueue(msg)
}

// Recv implements Transport.
func (t *WebSocketTransport) Recv(ctx context.Context) (*wire.Message, error) {
	select {
	case <-ctx.Done():
		return nil, mcperrors.NewCancelledError("recv cancelled", ctx.Err())
	case <-t.closed:
		return nil, mcperrors.NewTransportClosedError("transport is closed", nil)
	case result := <-t.recvChan:
		return result.msg, result.err
	}
}

func (t *WebSocketTransport) forceClose() {
	t.closeOnce.Do(func() {
		close(t.closed)
		t.outbound.close()
		_ = t.conn.Close()
	})
}

// Close implements Transport.
func (t *WebSocketTransport) Close(_ CloseReason) error {
	t.forceClose()
	return nil
}

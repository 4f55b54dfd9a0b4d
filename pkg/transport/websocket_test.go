package transport

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcpruntime/core/pkg/wire"
)

func newWebSocketServerPair(t *testing.T) (server *WebSocketTransport, client *websocket.Conn) {
	t.Helper()

	upgrader := Upgrader(0, 0)
	serverReady := make(chan *WebSocketTransport, 1)

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		require.NoError(t, err)
		serverReady <- NewWebSocketTransport(conn, Config{})
	}))
	t.Cleanup(ts.Close)

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http")
	clientConn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = clientConn.Close() })

	select {
	case server = <-serverReady:
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for server-side upgrade")
	}
	return server, clientConn
}

func TestWebSocketTransport_SendDeliversOneFramePerMessage(t *testing.T) {
	t.Parallel()
	server, client := newWebSocketServerPair(t)
	defer server.Close(CloseReasonServerShutdown)

	msg := wire.NewRequest("tool.execute", []byte(`{"tool":"calculator"}`))
	require.NoError(t, server.Send(msg))

	_, data, err := client.ReadMessage()
	require.NoError(t, err)

	decoded, err := wire.NewJSONCodec().Decode(data)
	require.NoError(t, err)
	assert.Equal(t, msg.MessageID, decoded.MessageID)
}

func TestWebSocketTransport_RecvDecodesClientFrame(t *testing.T) {
	t.Parallel()
	server, client := newWebSocketServerPair(t)
	defer server.Close(CloseReasonServerShutdown)

	msg := wire.NewRequest("session.ping", nil)
	data, err := wire.NewJSONCodec().Encode(msg)
	require.NoError(t, err)
	require.NoError(t, client.WriteMessage(websocket.BinaryMessage, data))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	got, err := server.Recv(ctx)
	require.NoError(t, err)
	assert.Equal(t, msg.MessageID, got.MessageID)
}

func TestWebSocketTransport_CloseIsIdempotent(t *testing.T) {
	t.Parallel()
	server, _ := newWebSocketServerPair(t)
	require.NoError(t, server.Close(CloseReasonServerShutdown))
	require.NoError(t, server.Close(CloseReasonServerShutdown))
}

func TestWebSocketTransport_SendAfterCloseIsTransportClosed(t *testing.T) {
	t.Parallel()
	server, _ := newWebSocketServerPair(t)
	require.NoError(t, server.Close(CloseReasonServerShutdown))

	err := server.Send(wire.NewRequest("x", nil))
	assert.Error(t, err)
}

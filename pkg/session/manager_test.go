package session

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcpruntime/core/pkg/transport"
	"github.com/mcpruntime/core/pkg/wire"
)

func TestManager_AcceptRegistersSession(t *testing.T) {
	t.Parallel()
	m := NewManager(ManagerConfig{}, nil)
	s := m.Accept(newFakeTransport())

	assert.Equal(t, 1, m.Count())
	got, err := m.Get(s.ID())
	require.NoError(t, err)
	assert.Same(t, s, got)
}

func TestManager_GetUnknownIDFails(t *testing.T) {
	t.Parallel()
	m := NewManager(ManagerConfig{}, nil)
	_, err := m.Get("nope")
	assert.Error(t, err)
}

func TestManager_ProcessGatesMethodByState(t *testing.T) {
	t.Parallel()
	m := NewManager(ManagerConfig{}, nil)
	s := m.Accept(newFakeTransport())

	_, err := m.Process(context.Background(), s.ID(), wire.NewRequest("tool.execute", nil))
	assert.Error(t, err)

	ok, err := m.Process(context.Background(), s.ID(), wire.NewRequest("session.hello", nil))
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestManager_ProcessCompletesPendingResponse(t *testing.T) {
	t.Parallel()
	m := NewManager(ManagerConfig{}, nil)
	s := m.Accept(newFakeTransport())

	id := wire.NewID()
	result, cancel := s.pending.register(id, "tool.execute")
	defer cancel()

	ok, err := m.Process(context.Background(), s.ID(), wire.NewResponse(id, []byte(`{}`)))
	require.NoError(t, err)
	assert.False(t, ok, "a Response is consumed here, not handed back for routing")

	select {
	case <-result:
	default:
		t.Fatal("expected the pending entry to be completed")
	}
}

func TestManager_CloseRemovesSessionAndClosesTransport(t *testing.T) {
	t.Parallel()
	m := NewManager(ManagerConfig{}, nil)
	tr := newFakeTransport()
	s := m.Accept(tr)

	require.NoError(t, m.Close(context.Background(), s.ID(), transport.CloseReasonServerShutdown))

	assert.Equal(t, 0, m.Count())
	assert.True(t, tr.isClosed())
	assert.Equal(t, StateClosed, s.State())
}

func TestManager_CloseUnknownSessionIsNoOp(t *testing.T) {
	t.Parallel()
	m := NewManager(ManagerConfig{}, nil)
	assert.NoError(t, m.Close(context.Background(), "nope", transport.CloseReasonServerShutdown))
}

func TestManager_SweepIdleClosesStaleSessions(t *testing.T) {
	t.Parallel()
	m := NewManager(ManagerConfig{IdleTimeout: time.Millisecond}, nil)
	tr := newFakeTransport()
	s := m.Accept(tr)

	time.Sleep(5 * time.Millisecond)
	m.sweepIdle(context.Background())

	assert.Equal(t, 0, m.Count())
	assert.True(t, tr.isClosed())
	_ = s
}

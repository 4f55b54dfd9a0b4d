package wire

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewID_Unique(t *testing.T) {
	t.Parallel()
	a := NewID()
	b := NewID()
	assert.NotEqual(t, a, b)
	assert.False(t, a.IsZero())
}

func TestID_JSONRoundTrip(t *testing.T) {
	t.Parallel()
	id := NewID()
	data, err := id.MarshalJSON()
	require.NoError(t, err)

	var decoded ID
	require.NoError(t, decoded.UnmarshalJSON(data))
	assert.Equal(t, id, decoded)
}

func TestProtocolVersion_Compatible(t *testing.T) {
	t.Parallel()
	v := ProtocolVersion{Major: 1, Minor: 2}
	assert.True(t, v.Compatible(ProtocolVersion{Major: 1, Minor: 0}))
	assert.False(t, v.Compatible(ProtocolVersion{Major: 2, Minor: 0}))
}

func TestNewRequest(t *testing.T) {
	t.Parallel()
	msg := NewRequest("tool.execute", []byte(`{"tool":"calculator"}`))
	assert.Equal(t, KindRequest, msg.Kind)
	assert.Equal(t, "tool.execute", msg.Method)
	assert.False(t, msg.MessageID.IsZero())
	assert.False(t, msg.IsResponseLike())
}

func TestNewResponse_CorrelatesToRequest(t *testing.T) {
	t.Parallel()
	req := NewRequest("tool.execute", nil)
	resp := NewResponse(req.MessageID, []byte(`{"result":42}`))
	assert.Equal(t, KindResponse, resp.Kind)
	assert.Equal(t, req.MessageID, resp.CorrelationID)
	assert.True(t, resp.IsResponseLike())
}

func TestNewErrorMessage(t *testing.T) {
	t.Parallel()
	req := NewRequest("no.such", nil)
	errMsg := NewErrorMessage(req.MessageID, []byte(`{"code":1001}`))
	assert.Equal(t, KindError, errMsg.Kind)
	assert.Equal(t, req.MessageID, errMsg.CorrelationID)
	assert.True(t, errMsg.IsResponseLike())
}

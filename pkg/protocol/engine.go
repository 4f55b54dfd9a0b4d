package protocol

import (
	"context"
	"encoding/json"

	mcperrors "github.com/mcpruntime/core/pkg/errors"
	"github.com/mcpruntime/core/pkg/logger"
	"github.com/mcpruntime/core/pkg/session"
	"github.com/mcpruntime/core/pkg/wire"
)

// Engine is the top-level request loop: it reads framed Messages off a
// session's transport, runs Requests through the handshake or the
// command Registry depending on the session's current state, and writes
// back a Response or Error for every Request it accepted.
type Engine struct {
	registry *Registry
	authn    *Authenticator
	codec    wire.Codec
}

// NewEngine wires a command Registry and Authenticator into an Engine.
// codec defaults to NewJSONCodec() if nil. The Engine keeps it but does
// not use it: Request payloads are decoded and Response/Error payloads
// encoded with encoding/json.
func NewEngine(registry *Registry, authn *Authenticator, codec wire.Codec) *Engine {
	if codec == nil {
		codec = wire.NewJSONCodec()
	}
	return &Engine{registry: registry, authn: authn, codec: codec}
}

// Serve drains sess's transport until it closes or ctx is cancelled,
// dispatching every Request it receives.
func (e *Engine) Serve(ctx context.Context, mgr *session.Manager, sess *session.Session) {
	for {
		msg, err := sess.Recv(ctx)
		if err != nil {
			if mcperrors.IsTransportClosed(err) {
				return
			}
			logger.Warnw("session recv failed", "session_id", sess.ID(), "error", err.Error())
			return
		}

		handled, err := mgr.Process(ctx, sess.ID(), msg)
		if err != nil {
			e.replyError(sess, msg, err)
			continue
		}
		if !handled {
			// A Response/Error was consumed by the pending table.
			continue
		}

		e.dispatch(ctx, sess, msg)
	}
}

func (e *Engine) dispatch(ctx context.Context, sess *session.Session, msg *wire.Message) {
	switch sess.State() {
	case session.StateConnecting, session.StateNegotiating:
		e.dispatchHello(sess, msg)
	case session.StateAuthenticating:
		e.dispatchAuthenticate(ctx, sess, msg)
	case session.StateActive:
		e.dispatchCommand(ctx, sess, msg)
	default:
		e.replyError(sess, msg, mcperrors.NewTransportClosedError("session is "+sess.State().String(), nil))
	}
}

func (e *Engine) dispatchHello(sess *session.Session, msg *wire.Message) {
	var payload HelloPayload
	if err := json.Unmarshal(msg.Payload, &payload); err != nil {
		e.replyError(sess, msg, mcperrors.NewInvalidFormatError("malformed session.hello payload", err))
		return
	}
	result, err := e.authn.HandleHello(sess, payload)
	if err != nil {
		e.replyError(sess, msg, err)
		return
	}
	e.reply(sess, msg, result)
}

func (e *Engine) dispatchAuthenticate(ctx context.Context, sess *session.Session, msg *wire.Message) {
	var payload AuthenticatePayload
	if err := json.Unmarshal(msg.Payload, &payload); err != nil {
		e.replyError(sess, msg, mcperrors.NewInvalidFormatError("malformed session.authenticate payload", err))
		return
	}
	if err := e.authn.HandleAuthenticate(ctx, sess, payload); err != nil {
		e.replyError(sess, msg, err)
		return
	}
	e.reply(sess, msg, map[string]any{"principal": sess.Principal()})
}

func (e *Engine) dispatchCommand(ctx context.Context, sess *session.Session, msg *wire.Message) {
	cmd, err := e.registry.Lookup(msg.Method)
	if err != nil {
		e.replyError(sess, msg, err)
		return
	}

	var args map[string]any
	if len(msg.Payload) > 0 {
		if err := json.Unmarshal(msg.Payload, &args); err != nil {
			e.replyError(sess, msg, mcperrors.NewInvalidFormatError("malformed request payload", err))
			return
		}
	}

	call := CallContext{
		SessionID:     sess.ID(),
		Principal:     sess.Principal(),
		CorrelationID: msg.MessageID.String(),
		Method:        msg.Method,
		Args:          args,
	}

	result, err := cmd.Run(ctx, call)
	if err != nil {
		e.replyError(sess, msg, err)
		return
	}
	if msg.Kind == wire.KindNotification {
		return
	}
	e.reply(sess, msg, result)
}

func (e *Engine) reply(sess *session.Session, req *wire.Message, payload any) {
	encoded, err := json.Marshal(payload)
	if err != nil {
		e.replyError(sess, req, mcperrors.NewInternalError("failed to encode response payload", err))
		return
	}
	resp := wire.NewResponse(req.MessageID, encoded)
	if err := sess.Send(resp); err != nil && !mcperrors.IsBackpressure(err) {
		logger.Warnw("failed to send response", "session_id", sess.ID(), "error", err.Error())
	}
}

func (e *Engine) replyError(sess *session.Session, req *wire.Message, err error) {
	mcpErr, ok := err.(*mcperrors.Error)
	if !ok {
		mcpErr = mcperrors.NewInternalError(err.Error(), err)
	}
	encoded, _ := json.Marshal(map[string]any{
		"type":    string(mcpErr.Type),
		"message": mcpErr.Error(),
	})
	errMsg := wire.NewErrorMessage(req.MessageID, encoded)
	if sendErr := sess.Send(errMsg); sendErr != nil && !mcperrors.IsBackpressure(sendErr) {
		logger.Warnw("failed to send error response", "session_id", sess.ID(), "error", sendErr.Error())
	}
}

// Package session implements the session manager and protocol state
// machine: per-session lifecycle, a pending-request correlation table,
// idle eviction, and bounded context snapshotting.
package session

import mcperrors "github.com/mcpruntime/core/pkg/errors"

// State is one of the six states of the protocol's session lifecycle.
type State int

const (
	StateConnecting State = iota
	StateNegotiating
	StateAuthenticating
	StateActive
	StateDraining
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateNegotiating:
		return "negotiating"
	case StateAuthenticating:
		return "authenticating"
	case StateActive:
		return "active"
	case StateDraining:
		return "draining"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// maxAuthRetries bounds how many authentication attempts a session may
// make from StateAuthenticating before it is forced closed.
const maxAuthRetries = 5

// transitions enumerates every state's legal successors. A transition
// not listed here is rejected.
var transitions = map[State]map[State]struct{}{
	StateConnecting:     {StateNegotiating: {}, StateClosed: {}},
	StateNegotiating:    {StateAuthenticating: {}, StateClosed: {}},
	StateAuthenticating: {StateActive: {}, StateAuthenticating: {}, StateClosed: {}},
	StateActive:         {StateDraining: {}, StateClosed: {}},
	StateDraining:       {StateClosed: {}},
	StateClosed:         {},
}

// canTransition reports whether moving from from to to is legal.
func canTransition(from, to State) bool {
	_, ok := transitions[from][to]
	return ok
}

// methodAllowedIn reports whether method may be processed while a
// session is in state s.
func methodAllowedIn(s State, method string) bool {
	switch s {
	case StateConnecting:
		return method == "session.hello"
	case StateNegotiating:
		return method == "session.hello"
	case StateAuthenticating:
		return method == "session.authenticate"
	case StateActive:
		return true
	case StateDraining, StateClosed:
		return false
	default:
		return false
	}
}

func errForDisallowedMethod(s State) error {
	switch s {
	case StateDraining, StateClosed:
		return mcperrors.NewTransportClosedError("session is "+s.String(), nil)
	default:
		return mcperrors.NewAuthRequiredError("method not permitted in state "+s.String(), nil)
	}
}

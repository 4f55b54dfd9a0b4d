// Package wire defines the runtime's encoding-agnostic message envelope
// and its JSON/CBOR codecs, plus the length-prefixed frame format every
// transport variant speaks.
package wire

import (
	"crypto/rand"
	"encoding/hex"
)

// Kind distinguishes the four message roles a Message can carry.
type Kind string

const (
	KindRequest      Kind = "request"
	KindResponse     Kind = "response"
	KindNotification Kind = "notification"
	KindError        Kind = "error"
)

// ProtocolVersion is the (major, minor) pair negotiated during Hello.
type ProtocolVersion struct {
	Major uint16 `json:"major" cbor:"major"`
	Minor uint16 `json:"minor" cbor:"minor"`
}

// CurrentVersion is the version this runtime speaks by default.
var CurrentVersion = ProtocolVersion{Major: 1, Minor: 0}

// Compatible reports whether a peer advertising other can interoperate
// with v: equal major version, any minor (forward-compatible within a
// major line).
func (v ProtocolVersion) Compatible(other ProtocolVersion) bool {
	return v.Major == other.Major
}

// ID is an opaque 16-byte message or correlation identifier.
type ID [16]byte

// NewID generates a fresh random ID, unique within a session with
// overwhelming probability.
func NewID() ID {
	var id ID
	if _, err := rand.Read(id[:]); err != nil {
		panic("wire: failed to read random bytes for message id: " + err.Error())
	}
	return id
}

// IsZero reports whether id is the zero value (unset).
func (id ID) IsZero() bool {
	return id == ID{}
}

func (id ID) String() string {
	return hex.EncodeToString(id[:])
}

// MarshalJSON encodes the ID as a hex string.
func (id ID) MarshalJSON() ([]byte, error) {
	return []byte(`"` + id.String() + `"`), nil
}

// UnmarshalJSON decodes the ID from a hex string.
func (id *ID) UnmarshalJSON(data []byte) error {
	if len(data) < 2 {
		return errInvalidID
	}
	decoded, err := hex.DecodeString(string(data[1 : len(data)-1]))
	if err != nil {
		return err
	}
	if len(decoded) != len(id) {
		return errInvalidID
	}
	copy(id[:], decoded)
	return nil
}

var errInvalidID = idError("wire: invalid message id encoding")

type idError string

func (e idError) Error() string { return string(e) }

// Security carries an optional signer identity and integrity tag that
// may accompany a Message.
type Security struct {
	SignerID     string `json:"signer_id,omitempty" cbor:"signer_id,omitempty"`
	IntegrityTag []byte `json:"integrity_tag,omitempty" cbor:"integrity_tag,omitempty"`
}

// Message is the semantic, encoding-agnostic envelope every frame
// carries: protocol_version, message_id, kind, method/correlation_id,
// payload, and optional security/metadata fields.
type Message struct {
	ProtocolVersion ProtocolVersion   `json:"protocol_version" cbor:"protocol_version"`
	MessageID       ID                `json:"message_id" cbor:"message_id"`
	Kind            Kind              `json:"kind" cbor:"kind"`
	Method          string            `json:"method,omitempty" cbor:"method,omitempty"`
	CorrelationID   ID                `json:"correlation_id,omitempty" cbor:"correlation_id,omitempty"`
	Payload         []byte            `json:"payload" cbor:"payload"`
	Security        *Security         `json:"security,omitempty" cbor:"security,omitempty"`
	Metadata        map[string]string `json:"metadata,omitempty" cbor:"metadata,omitempty"`
}

// NewRequest builds a Request Message with a fresh MessageID.
func NewRequest(method string, payload []byte) *Message {
	return &Message{
		ProtocolVersion: CurrentVersion,
		MessageID:       NewID(),
		Kind:            KindRequest,
		Method:          method,
		Payload:         payload,
	}
}

// NewNotification builds a Notification Message with a fresh MessageID.
func NewNotification(method string, payload []byte) *Message {
	return &Message{
		ProtocolVersion: CurrentVersion,
		MessageID:       NewID(),
		Kind:            KindNotification,
		Method:          method,
		Payload:         payload,
	}
}

// NewResponse builds a Response correlated to correlationID.
func NewResponse(correlationID ID, payload []byte) *Message {
	return &Message{
		ProtocolVersion: CurrentVersion,
		MessageID:       NewID(),
		Kind:            KindResponse,
		CorrelationID:   correlationID,
		Payload:         payload,
	}
}

// NewErrorMessage builds an Error Message correlated to correlationID.
func NewErrorMessage(correlationID ID, payload []byte) *Message {
	return &Message{
		ProtocolVersion: CurrentVersion,
		MessageID:       NewID(),
		Kind:            KindError,
		CorrelationID:   correlationID,
		Payload:         payload,
	}
}

// IsResponseLike reports whether m is a Response or Error, the two kinds
// that carry a correlation_id instead of a method.
func (m *Message) IsResponseLike() bool {
	return m.Kind == KindResponse || m.Kind == KindError
}

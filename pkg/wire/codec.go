package wire

import (
	"encoding/json"

	"github.com/fxamacker/cbor/v2"

	mcperrors "github.com/mcpruntime/core/pkg/errors"
)

// Codec encodes and decodes a Message to and from its wire
// representation. Transports are encoding-agnostic: a WebSocket or stdio
// transport frames whatever bytes a Codec produces.
type Codec interface {
	Name() string
	Encode(msg *Message) ([]byte, error)
	Decode(data []byte) (*Message, error)
}

// JSONCodec is the default codec: human-readable, used whenever a
// transport's Config.Codec is nil.
type JSONCodec struct{}

// NewJSONCodec returns the default JSON Codec.
func NewJSONCodec() *JSONCodec { return &JSONCodec{} }

func (*JSONCodec) Name() string { return "json" }

func (*JSONCodec) Encode(msg *Message) ([]byte, error) {
	data, err := json.Marshal(msg)
	if err != nil {
		return nil, mcperrors.NewInvalidFormatError("failed to encode message as json", err)
	}
	return data, nil
}

func (*JSONCodec) Decode(data []byte) (*Message, error) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, mcperrors.NewInvalidFormatError("failed to decode message from json", err)
	}
	return &msg, nil
}

// CBORCodec is the compact binary alternative, for deployments that
// configure it to reduce frame size on constrained links.
type CBORCodec struct {
	mode cbor.EncMode
}

// NewCBORCodec returns a CBOR Codec using canonical encoding, so two
// semantically identical messages always serialize to the same bytes
// (useful if a security envelope signs the encoded frame).
func NewCBORCodec() (*CBORCodec, error) {
	mode, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		return nil, mcperrors.NewInternalError("failed to build cbor encoding mode", err)
	}
	return &CBORCodec{mode: mode}, nil
}

func (*CBORCodec) Name() string { return "cbor" }

func (c *CBORCodec) Encode(msg *Message) ([]byte, error) {
	data, err := c.mode.Marshal(msg)
	if err != nil {
		return nil, mcperrors.NewInvalidFormatError("failed to encode message as cbor", err)
	}
	return data, nil
}

func (*CBORCodec) Decode(data []byte) (*Message, error) {
	var msg Message
	if err := cbor.Unmarshal(data, &msg); err != nil {
		return nil, mcperrors.NewInvalidFormatError("failed to decode message from cbor", err)
	}
	return &msg, nil
}

// CodecForName resolves a codec by name ("" and "json" give JSON).
// Unknown names return an error rather than silently picking JSON, so a
// misconfigured codec surfaces immediately.
func CodecForName(name string) (Codec, error) {
	switch name {
	case "", "json":
		return NewJSONCodec(), nil
	case "cbor":
		return NewCBORCodec()
	default:
		return nil, mcperrors.NewInvalidFormatError("unknown wire codec: "+name, nil)
	}
}

package wire

import (
	"encoding/binary"
	"io"

	mcperrors "github.com/mcpruntime/core/pkg/errors"
)

// DefaultMaxFrameSize is the default maximum payload length for a
// single frame (16 MiB), applied unless a transport is configured with a
// smaller or larger bound.
const DefaultMaxFrameSize = 16 * 1024 * 1024

const lengthPrefixSize = 4

// WriteFrame writes a 4-byte big-endian length prefix followed by
// payload to w. It is the framing the stdio transport uses over its byte
// stream; the WebSocket transport sends each encoded message as one
// WebSocket data frame, without this prefix.
func WriteFrame(w io.Writer, payload []byte, maxFrameSize int) error {
	if maxFrameSize <= 0 {
		maxFrameSize = DefaultMaxFrameSize
	}
	if len(payload) > maxFrameSize {
		return mcperrors.NewInvalidFormatError("frame exceeds maximum size", nil)
	}

	var header [lengthPrefixSize]byte
	binary.BigEndian.PutUint32(header[:], uint32(len(payload)))

	if _, err := w.Write(header[:]); err != nil {
		return mcperrors.NewTransportClosedError("failed to write frame header", err)
	}
	if _, err := w.Write(payload); err != nil {
		return mcperrors.NewTransportClosedError("failed to write frame payload", err)
	}
	return nil
}

// ReadFrame reads one length-prefixed frame from r. A payload whose
// declared length exceeds maxFrameSize fails with InvalidFormat and the
// caller must close the transport.
func ReadFrame(r io.Reader, maxFrameSize int) ([]byte, error) {
	if maxFrameSize <= 0 {
		maxFrameSize = DefaultMaxFrameSize
	}

	var header [lengthPrefixSize]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			return nil, mcperrors.NewTransportClosedError("transport closed while reading frame header", err)
		}
		return nil, mcperrors.NewTransportClosedError("failed to read frame header", err)
	}

	length := binary.BigEndian.Uint32(header[:])
	if int(length) > maxFrameSize {
		return nil, mcperrors.NewInvalidFormatError("frame exceeds maximum size", nil)
	}

	payload := make([]byte, length)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, mcperrors.NewTransportClosedError("transport closed while reading frame payload", err)
	}
	return payload, nil
}

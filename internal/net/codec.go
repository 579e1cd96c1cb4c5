package net

import (
	"encoding/binary"
	"fmt"
	"io"
)

// MaxFrameSize caps a single frame's payload at 1 MiB. Anything larger is a
// protocol violation and the connection is closed.
const MaxFrameSize = 1 << 20

// ReadFrame reads one message frame from r.
// Wire format: [4 bytes LE: payload length][payload JSON bytes].
// Returns the payload bytes (without the length prefix).
func ReadFrame(r io.Reader) ([]byte, error) {
	var header [4]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return nil, fmt.Errorf("read frame header: %w", err)
	}

	length := int64(binary.LittleEndian.Uint32(header[:]))
	if length <= 0 || length > MaxFrameSize {
		return nil, fmt.Errorf("invalid frame length: %d", length)
	}

	payload := make([]byte, length)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, fmt.Errorf("read frame payload (%d bytes): %w", length, err)
	}
	return payload, nil
}

// WriteFrame writes one message frame to w.
func WriteFrame(w io.Writer, data []byte) error {
	if len(data) == 0 || len(data) > MaxFrameSize {
		return fmt.Errorf("invalid frame length: %d", len(data))
	}
	var header [4]byte
	binary.LittleEndian.PutUint32(header[:], uint32(len(data)))

	if _, err := w.Write(header[:]); err != nil {
		return fmt.Errorf("write frame header: %w", err)
	}
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("write frame payload: %w", err)
	}
	return nil
}

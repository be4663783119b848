package net

import (
	"encoding/binary"
	"fmt"
	"io"
)

// maxPayload is the largest payload a 2-byte length header can describe.
const maxPayload = 65533

// ReadFrame reads one packet frame from r.
// Wire format: [2 bytes LE: total length including header][payload].
// Returns the payload bytes (without the 2-byte length header).
func ReadFrame(r io.Reader) ([]byte, error) {
	var header [2]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return nil, fmt.Errorf("read frame header: %w", err)
	}

	totalLen := int(binary.LittleEndian.Uint16(header[:]))
	payloadLen := totalLen - 2
	if payloadLen <= 0 || payloadLen > maxPayload {
		return nil, fmt.Errorf("invalid frame length: %d", totalLen)
	}

	payload := make([]byte, payloadLen)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, fmt.Errorf("read frame payload (%d bytes): %w", payloadLen, err)
	}
	return payload, nil
}

// WriteFrame writes one packet frame to w as a single write.
func WriteFrame(w io.Writer, data []byte) error {
	if len(data) == 0 || len(data) > maxPayload {
		return fmt.Errorf("invalid frame length: %d", len(data))
	}
	buf := make([]byte, len(data)+2)
	binary.LittleEndian.PutUint16(buf[:2], uint16(len(buf)))
	copy(buf[2:], data)
	if _, err := w.Write(buf); err != nil {
		return fmt.Errorf("write frame: %w", err)
	}
	return nil
}

// Package protocol implements the length-prefixed JSON framing spoken between
// the helper and its synthesis worker over the worker's standard pipes.
//
// Every frame is a 4-byte little-endian unsigned length followed by that many
// bytes of UTF-8 JSON. A zero-length frame sent to the worker asks it to exit.
package protocol

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/book-expert/tts-helper/internal/core"
)

const (
	// PrefixSize is the size of the length prefix in bytes.
	PrefixSize = 4
	// MaxFrameSize is the exclusive upper bound for a frame payload.
	MaxFrameSize = 100 * 1024 * 1024
)

var (
	// ErrShutdownFrame is returned by ReadFrame for a zero-length frame.
	ErrShutdownFrame = fmt.Errorf("%w: zero-length frame", core.ErrInvalidResponse)
	// ErrEmptyPayload is returned by WriteFrame for an empty payload.
	// Use WriteShutdown to send the sentinel frame.
	ErrEmptyPayload = errors.New("frame payload cannot be empty")
	// ErrPayloadTooLarge is returned by WriteFrame when the payload exceeds MaxFrameSize.
	ErrPayloadTooLarge = errors.New("frame payload too large")
)

// WriteFrame writes payload with its length prefix in a single write.
func WriteFrame(writer io.Writer, payload []byte) error {
	if len(payload) == 0 {
		return ErrEmptyPayload
	}

	if len(payload) >= MaxFrameSize {
		return fmt.Errorf("%w: %d bytes", ErrPayloadTooLarge, len(payload))
	}

	frame := make([]byte, PrefixSize+len(payload))
	binary.LittleEndian.PutUint32(frame, uint32(len(payload)))
	copy(frame[PrefixSize:], payload)

	_, err := writer.Write(frame)
	if err != nil {
		return fmt.Errorf("failed to write frame: %w", err)
	}

	return nil
}

// WriteShutdown writes the zero-length sentinel frame.
func WriteShutdown(writer io.Writer) error {
	var prefix [PrefixSize]byte

	_, err := writer.Write(prefix[:])
	if err != nil {
		return fmt.Errorf("failed to write shutdown frame: %w", err)
	}

	return nil
}

// ReadFrame reads one frame and returns its payload. The body is only read
// once the prefix has been validated.
func ReadFrame(reader io.Reader) ([]byte, error) {
	var prefix [PrefixSize]byte

	_, err := io.ReadFull(reader, prefix[:])
	if err != nil {
		return nil, fmt.Errorf("%w: reading length prefix: %w", core.ErrInvalidResponse, err)
	}

	length := binary.LittleEndian.Uint32(prefix[:])
	if length == 0 {
		return nil, ErrShutdownFrame
	}

	if length >= MaxFrameSize {
		return nil, fmt.Errorf("%w: frame length %d (0x%08x) exceeds limit",
			core.ErrInvalidResponse, length, length)
	}

	payload := make([]byte, length)

	_, err = io.ReadFull(reader, payload)
	if err != nil {
		return nil, fmt.Errorf("%w: reading %d byte body: %w", core.ErrInvalidResponse, length, err)
	}

	return payload, nil
}

// WriteMessage JSON-encodes message and writes it as one frame.
func WriteMessage(writer io.Writer, message any) error {
	payload, err := json.Marshal(message)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	return WriteFrame(writer, payload)
}

// ReadMessage reads one frame and decodes its JSON payload into target.
func ReadMessage(reader io.Reader, target any) error {
	payload, err := ReadFrame(reader)
	if err != nil {
		return err
	}

	err = json.Unmarshal(payload, target)
	if err != nil {
		return fmt.Errorf("%w: decoding payload: %w", core.ErrInvalidResponse, err)
	}

	return nil
}

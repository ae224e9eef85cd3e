// Package protocol_test tests the worker framing protocol.
package protocol_test

import (
	"bytes"
	"encoding/binary"
	"io"
	"strings"
	"testing"

	"github.com/book-expert/tts-helper/internal/core"
	"github.com/book-expert/tts-helper/internal/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// untouchableReader fails the test if anything reads from it.
type untouchableReader struct {
	t *testing.T
}

func (u untouchableReader) Read(_ []byte) (int, error) {
	u.t.Error("frame body must not be read after an invalid length prefix")

	return 0, io.EOF
}

func prefixOf(length uint32) []byte {
	prefix := make([]byte, protocol.PrefixSize)
	binary.LittleEndian.PutUint32(prefix, length)

	return prefix
}

func TestFrame_RoundTrip(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		payload []byte
	}{
		{name: "single byte", payload: []byte("1")},
		{name: "object", payload: []byte(`{"text":"Hello","voice":"af_bella","speed":1}`)},
		{name: "unicode", payload: []byte(`{"text":"naïve café — ☕"}`)},
		{name: "large", payload: []byte(`"` + strings.Repeat("a", 1<<20) + `"`)},
	}

	for _, testCase := range tests {
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			var buffer bytes.Buffer

			err := protocol.WriteFrame(&buffer, testCase.payload)
			require.NoError(t, err)
			assert.Equal(t, protocol.PrefixSize+len(testCase.payload), buffer.Len())

			decoded, err := protocol.ReadFrame(&buffer)
			require.NoError(t, err)
			assert.Equal(t, testCase.payload, decoded)
			assert.Zero(t, buffer.Len(), "exactly one frame should be consumed")
		})
	}
}

func TestFrame_LittleEndianPrefix(t *testing.T) {
	t.Parallel()

	var buffer bytes.Buffer

	require.NoError(t, protocol.WriteFrame(&buffer, []byte("abc")))
	assert.Equal(t, []byte{3, 0, 0, 0, 'a', 'b', 'c'}, buffer.Bytes())
}

func TestReadFrame_OversizedPrefixDoesNotReadBody(t *testing.T) {
	t.Parallel()

	for _, length := range []uint32{protocol.MaxFrameSize, protocol.MaxFrameSize + 1, 0xFFFFFFFF} {
		reader := io.MultiReader(bytes.NewReader(prefixOf(length)), untouchableReader{t: t})

		_, err := protocol.ReadFrame(reader)
		require.Error(t, err)
		require.ErrorIs(t, err, core.ErrInvalidResponse)
	}
}

func TestReadFrame_ZeroLengthIsShutdownSentinel(t *testing.T) {
	t.Parallel()

	var buffer bytes.Buffer

	require.NoError(t, protocol.WriteShutdown(&buffer))
	assert.Equal(t, []byte{0, 0, 0, 0}, buffer.Bytes())

	_, err := protocol.ReadFrame(&buffer)
	require.ErrorIs(t, err, protocol.ErrShutdownFrame)
	require.ErrorIs(t, err, core.ErrInvalidResponse)
}

func TestReadFrame_Truncated(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		input []byte
	}{
		{name: "empty stream", input: nil},
		{name: "short prefix", input: []byte{1, 0}},
		{name: "short body", input: append(prefixOf(10), []byte("abc")...)},
	}

	for _, testCase := range tests {
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			_, err := protocol.ReadFrame(bytes.NewReader(testCase.input))
			require.ErrorIs(t, err, core.ErrInvalidResponse)
		})
	}
}

func TestWriteFrame_RejectsEmptyPayload(t *testing.T) {
	t.Parallel()

	var buffer bytes.Buffer

	err := protocol.WriteFrame(&buffer, nil)
	require.ErrorIs(t, err, protocol.ErrEmptyPayload)
	assert.Zero(t, buffer.Len())
}

func TestMessage_RoundTrip(t *testing.T) {
	t.Parallel()

	var buffer bytes.Buffer

	request := protocol.GenerateRequest{Text: "Hi", Voice: "af_sky", Speed: 1.25}
	require.NoError(t, protocol.WriteMessage(&buffer, request))

	var decoded protocol.GenerateRequest

	require.NoError(t, protocol.ReadMessage(&buffer, &decoded))
	assert.Equal(t, request, decoded)
}

func TestReadMessage_UndecodablePayload(t *testing.T) {
	t.Parallel()

	var buffer bytes.Buffer

	require.NoError(t, protocol.WriteFrame(&buffer, []byte("{not json")))

	var decoded protocol.GenerateResponse

	err := protocol.ReadMessage(&buffer, &decoded)
	require.ErrorIs(t, err, core.ErrInvalidResponse)
}

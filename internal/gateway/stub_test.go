package gateway_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/book-expert/logger"
	"github.com/book-expert/tts-helper/internal/config"
	"github.com/book-expert/tts-helper/internal/core"
	"github.com/book-expert/tts-helper/internal/gateway"
	"github.com/stretchr/testify/require"
)

const testSecret = "0f4b8a5e-2d55-4a0e-9d0c-6a1e8e5c3f11"

type generateCall struct {
	text  string
	voice string
	speed float64
}

// stubGenerator records every call and answers with a canned result.
type stubGenerator struct {
	ready atomic.Bool
	audio *core.AudioData
	err   error
	// release, when set, holds every Generate call until it is closed.
	release chan struct{}
	entered chan struct{}

	mu    sync.Mutex
	calls []generateCall
}

func newStubGenerator() *stubGenerator {
	generator := &stubGenerator{
		audio: &core.AudioData{
			Data:       []byte{0x00, 0x00},
			Duration:   0.5,
			SampleRate: 24000,
			Format:     "wav",
		},
	}
	generator.ready.Store(true)

	return generator
}

func (g *stubGenerator) Generate(ctx context.Context, text, voice string, speed float64) (*core.AudioData, error) {
	g.mu.Lock()
	g.calls = append(g.calls, generateCall{text: text, voice: voice, speed: speed})
	g.mu.Unlock()

	if g.release != nil {
		if g.entered != nil {
			g.entered <- struct{}{}
		}

		select {
		case <-g.release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	if g.err != nil {
		return nil, g.err
	}

	return g.audio, nil
}

func (g *stubGenerator) Ready() bool {
	return g.ready.Load()
}

func (g *stubGenerator) recorded() []generateCall {
	g.mu.Lock()
	defer g.mu.Unlock()

	return append([]generateCall(nil), g.calls...)
}

var errArchiveUnavailable = errors.New("archive unavailable")

// stubArchiver records archived clips.
type stubArchiver struct {
	err error

	mu      sync.Mutex
	records []core.ArchiveRecord
}

func (a *stubArchiver) Archive(_ context.Context, record core.ArchiveRecord) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.records = append(a.records, record)

	if a.err != nil {
		return "", a.err
	}

	return "clip.wav", nil
}

func (a *stubArchiver) archived() []core.ArchiveRecord {
	a.mu.Lock()
	defer a.mu.Unlock()

	return append([]core.ArchiveRecord(nil), a.records...)
}

func testConfig() *config.Config {
	return &config.Config{
		Port:         8123,
		Secret:       testSecret,
		DefaultVoice: "af_bella",
	}
}

func newTestLogger(t *testing.T) *logger.Logger {
	t.Helper()

	log, err := logger.New(t.TempDir(), "gateway-test.log")
	require.NoError(t, err)

	t.Cleanup(func() { _ = log.Close() })

	return log
}

func newTestServer(t *testing.T, generator core.SpeechGenerator, opts gateway.Options) *gateway.Server {
	t.Helper()

	return gateway.New(testConfig(), opts, generator, newTestLogger(t))
}

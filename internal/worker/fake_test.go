package worker_test

import (
	"context"
	"encoding/binary"
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/book-expert/logger"
	"github.com/book-expert/tts-helper/internal/protocol"
	"github.com/book-expert/tts-helper/internal/worker"
	"github.com/stretchr/testify/require"
)

const readyLine = "[INFO] Model loaded, ready for requests\n"

var errLaunchFailed = errors.New("mock launch failure")

// fakeProcess is an in-memory worker process connected through io.Pipe.
// It counts frames in both directions so tests can assert that request
// frames never overlap an unfinished exchange.
type fakeProcess struct {
	stdinReader  *io.PipeReader
	stdinWriter  *io.PipeWriter
	stdoutReader *io.PipeReader
	stdoutWriter *io.PipeWriter
	stderrReader *io.PipeReader
	stderrWriter *io.PipeWriter

	exited   chan struct{}
	exitOnce sync.Once
	exitCode int

	kills       atomic.Int32
	writes      atomic.Int32
	outstanding atomic.Int32
	overlaps    atomic.Int32

	frames frameCounter
}

func newFakeProcess() *fakeProcess {
	stdinReader, stdinWriter := io.Pipe()
	stdoutReader, stdoutWriter := io.Pipe()
	stderrReader, stderrWriter := io.Pipe()

	proc := &fakeProcess{
		stdinReader:  stdinReader,
		stdinWriter:  stdinWriter,
		stdoutReader: stdoutReader,
		stdoutWriter: stdoutWriter,
		stderrReader: stderrReader,
		stderrWriter: stderrWriter,
		exited:       make(chan struct{}),
	}
	proc.frames.onFrame = func() { proc.outstanding.Add(-1) }

	return proc
}

func (p *fakeProcess) Pid() int              { return 4242 }
func (p *fakeProcess) Stdin() io.WriteCloser { return fakeStdin{proc: p} }
func (p *fakeProcess) Stdout() io.Reader     { return fakeStdout{proc: p} }
func (p *fakeProcess) Stderr() io.Reader     { return p.stderrReader }

func (p *fakeProcess) Wait() (int, error) {
	<-p.exited

	return p.exitCode, nil
}

func (p *fakeProcess) Kill() error {
	p.kills.Add(1)
	p.exit(137)

	return nil
}

func (p *fakeProcess) Close() error {
	_ = p.stdoutReader.Close()

	return p.stderrReader.Close()
}

func (p *fakeProcess) exit(code int) {
	p.exitOnce.Do(func() {
		p.exitCode = code
		_ = p.stdoutWriter.Close()
		_ = p.stderrWriter.Close()
		_ = p.stdinReader.Close()
		close(p.exited)
	})
}

type fakeStdin struct {
	proc *fakeProcess
}

func (s fakeStdin) Write(data []byte) (int, error) {
	s.proc.writes.Add(1)

	// The sentinel frame expects no response.
	if len(data) > protocol.PrefixSize || binary.LittleEndian.Uint32(data) != 0 {
		if s.proc.outstanding.Add(1) > 1 {
			s.proc.overlaps.Add(1)
		}
	}

	return s.proc.stdinWriter.Write(data)
}

func (s fakeStdin) Close() error {
	return s.proc.stdinWriter.Close()
}

type fakeStdout struct {
	proc *fakeProcess
}

func (s fakeStdout) Read(data []byte) (int, error) {
	n, err := s.proc.stdoutReader.Read(data)
	s.proc.frames.consume(data[:n])

	return n, err
}

// frameCounter tracks frame boundaries in a byte stream.
type frameCounter struct {
	header    []byte
	remaining int
	onFrame   func()
}

func (c *frameCounter) consume(data []byte) {
	for len(data) > 0 {
		if c.remaining == 0 {
			need := protocol.PrefixSize - len(c.header)
			take := min(need, len(data))
			c.header = append(c.header, data[:take]...)
			data = data[take:]

			if len(c.header) == protocol.PrefixSize {
				c.remaining = int(binary.LittleEndian.Uint32(c.header))
				c.header = c.header[:0]

				if c.remaining == 0 {
					c.onFrame()
				}
			}

			continue
		}

		take := min(c.remaining, len(data))
		c.remaining -= take
		data = data[take:]

		if c.remaining == 0 {
			c.onFrame()
		}
	}
}

// stubWorker speaks the worker side of the protocol on a fakeProcess.
type stubWorker struct {
	proc           *fakeProcess
	announceReady  bool
	ignoreShutdown bool
	// stderrPreamble is logged before the startup lines.
	stderrPreamble string
	// respond returns the frame payload to send back for a request.
	respond func(request protocol.GenerateRequest) []byte

	mu             sync.Mutex
	requests       []protocol.GenerateRequest
	sawShutdown    bool
	requestArrived chan struct{}
}

func (w *stubWorker) run() {
	if w.stderrPreamble != "" {
		_, _ = io.WriteString(w.proc.stderrWriter, w.stderrPreamble)
	}

	if w.announceReady {
		_, _ = io.WriteString(w.proc.stderrWriter, "[INFO] Natural TTS worker starting\n")
		_, _ = io.WriteString(w.proc.stderrWriter, readyLine)
	}

	for {
		var request protocol.GenerateRequest

		err := protocol.ReadMessage(w.proc.stdinReader, &request)
		if err != nil {
			if errors.Is(err, protocol.ErrShutdownFrame) {
				w.mu.Lock()
				w.sawShutdown = true
				w.mu.Unlock()
			}

			if w.ignoreShutdown {
				<-w.proc.exited

				return
			}

			w.proc.exit(0)

			return
		}

		w.mu.Lock()
		w.requests = append(w.requests, request)
		w.mu.Unlock()

		if w.requestArrived != nil {
			w.requestArrived <- struct{}{}
		}

		writeErr := protocol.WriteFrame(w.proc.stdoutWriter, w.respond(request))
		if writeErr != nil {
			return
		}
	}
}

func (w *stubWorker) received() []protocol.GenerateRequest {
	w.mu.Lock()
	defer w.mu.Unlock()

	return append([]protocol.GenerateRequest(nil), w.requests...)
}

func (w *stubWorker) shutdownSeen() bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	return w.sawShutdown
}

type fakeLauncher struct {
	worker *stubWorker
	err    error
}

func (l *fakeLauncher) Launch(_ context.Context) (worker.Process, error) {
	if l.err != nil {
		return nil, l.err
	}

	go l.worker.run()

	return l.worker.proc, nil
}

func okResponse(_ protocol.GenerateRequest) []byte {
	return []byte(`{"audio_base64":"AAA=","duration":0.5,"sample_rate":24000,"format":"wav"}`)
}

func newTestLogger(t *testing.T) *logger.Logger {
	t.Helper()

	log, err := logger.New(t.TempDir(), "worker-test.log")
	require.NoError(t, err)

	t.Cleanup(func() { _ = log.Close() })

	return log
}

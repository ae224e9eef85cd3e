// Package worker supervises the speech-synthesis worker subprocess.
//
// The Supervisor owns the process and its pipes. Every frame exchange and the
// shutdown sequence run on a single owner goroutine fed through a command
// channel, so at most one request is ever in flight on the pipe pair and
// callers are served in arrival order. State snapshots are lock-free so health
// checks stay responsive during long generations.
package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/book-expert/logger"
	"github.com/book-expert/tts-helper/internal/core"
	"github.com/book-expert/tts-helper/internal/protocol"
)

const (
	// DefaultShutdownGrace is how long the worker gets to exit after the sentinel frame.
	DefaultShutdownGrace = 2 * time.Second
	// DefaultWarmupTimeout bounds WaitUntilReady during startup.
	DefaultWarmupTimeout = 60 * time.Second

	logTextPreviewLength = 50
)

// ErrAlreadyStarted is returned by Start on a supervisor that has been started before.
var ErrAlreadyStarted = errors.New("worker supervisor already started")

// Options configures a Supervisor.
type Options struct {
	Launcher      Launcher
	Detector      ReadinessDetector
	ShutdownGrace time.Duration
}

// Supervisor owns the worker subprocess; only its loop touches the pipes.
// It never restarts a crashed worker.
type Supervisor struct {
	launcher Launcher
	detector ReadinessDetector
	grace    time.Duration
	log      *logger.Logger

	state    atomic.Int32
	stopping atomic.Bool

	commands chan command
	ready    chan struct{}
	exited   chan struct{}
	loopDone chan struct{}

	readyOnce    sync.Once
	exitedOnce   sync.Once
	shutdownOnce sync.Once
}

type command interface {
	isCommand()
}

type generateCommand struct {
	ctx     context.Context
	request protocol.GenerateRequest
	reply   chan generateResult
}

type generateResult struct {
	audio *core.AudioData
	err   error
}

type shutdownCommand struct {
	done chan struct{}
}

func (*generateCommand) isCommand() {}
func (*shutdownCommand) isCommand() {}

// New creates a Supervisor in the NotStarted state.
func New(opts Options, log *logger.Logger) *Supervisor {
	detector := opts.Detector
	if detector == nil {
		detector = MarkerDetector{Marker: DefaultReadyMarker}
	}

	grace := opts.ShutdownGrace
	if grace <= 0 {
		grace = DefaultShutdownGrace
	}

	return &Supervisor{
		launcher: opts.Launcher,
		detector: detector,
		grace:    grace,
		log:      log,
		commands: make(chan command),
		ready:    make(chan struct{}),
		exited:   make(chan struct{}),
		loopDone: make(chan struct{}),
	}
}

// State returns a snapshot of the worker state.
func (s *Supervisor) State() State {
	return State(s.state.Load())
}

// Ready reports whether the worker can accept Generate calls.
func (s *Supervisor) Ready() bool {
	return s.State() == StateReady
}

// Start spawns the worker and begins watching its stderr for the readiness marker.
func (s *Supervisor) Start(ctx context.Context) error {
	if !s.transition(StateNotStarted, StateStarting) {
		return fmt.Errorf("%w (state: %s)", ErrAlreadyStarted, s.State())
	}

	s.log.Info("Starting worker subprocess")

	proc, err := s.launcher.Launch(ctx)
	if err != nil {
		s.log.Error("Failed to start worker process: %v", err)
		s.setState(StateTerminated)
		s.markExited()
		close(s.loopDone)

		return fmt.Errorf("%w: %w", core.ErrProcessNotRunning, err)
	}

	s.log.Info("Worker process started (PID: %d)", proc.Pid())

	go s.watchStderr(proc)
	go s.watchExit(proc)
	go s.loop(proc)

	return nil
}

// WaitUntilReady blocks until the worker reports readiness. On timeout it
// returns core.ErrWarmupTimeout and leaves the supervisor in Warming.
func (s *Supervisor) WaitUntilReady(ctx context.Context, timeout time.Duration) error {
	switch s.State() {
	case StateNotStarted, StateTerminated:
		return fmt.Errorf("%w (state: %s)", core.ErrProcessNotRunning, s.State())
	case StateReady:
		return nil
	case StateStarting, StateWarming:
	}

	s.transition(StateStarting, StateWarming)
	s.log.Info("Waiting for model to warm up (timeout: %s)", timeout)

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-s.ready:
		if !s.Ready() {
			return fmt.Errorf("%w: worker exited after warmup", core.ErrProcessNotRunning)
		}

		s.log.Info("Model warmed up and ready")

		return nil
	case <-s.exited:
		return fmt.Errorf("%w: worker exited during warmup", core.ErrProcessNotRunning)
	case <-timer.C:
		s.log.Error("Model warmup timed out after %s", timeout)

		return fmt.Errorf("%w after %s", core.ErrWarmupTimeout, timeout)
	case <-ctx.Done():
		return fmt.Errorf("waiting for worker warmup: %w", ctx.Err())
	}
}

// Generate sends one request to the worker and waits for its response.
// Calls are served one at a time in arrival order. A worker that is not Ready
// fails the call immediately without touching the pipes. ctx only bounds the
// time spent queued; an exchange that has begun always runs to completion.
func (s *Supervisor) Generate(ctx context.Context, text, voice string, speed float64) (*core.AudioData, error) {
	err := s.checkReady()
	if err != nil {
		return nil, err
	}

	cmd := &generateCommand{
		ctx:     ctx,
		request: protocol.GenerateRequest{Text: text, Voice: voice, Speed: speed},
		reply:   make(chan generateResult, 1),
	}

	select {
	case s.commands <- cmd:
	case <-s.loopDone:
		return nil, fmt.Errorf("%w: supervisor shut down", core.ErrProcessNotRunning)
	case <-ctx.Done():
		return nil, fmt.Errorf("request abandoned while queued: %w", ctx.Err())
	}

	result := <-cmd.reply

	return result.audio, result.err
}

// Shutdown asks the worker to exit, force-terminates it after the grace
// period, and leaves the supervisor Terminated. It waits for any in-flight
// exchange first. Safe to call more than once.
func (s *Supervisor) Shutdown() {
	s.shutdownOnce.Do(func() {
		s.stopping.Store(true)

		if s.transition(StateNotStarted, StateTerminated) {
			return
		}

		done := make(chan struct{})

		select {
		case s.commands <- &shutdownCommand{done: done}:
			<-done
		case <-s.loopDone:
		}

		s.setState(StateTerminated)
	})
}

func (s *Supervisor) loop(proc Process) {
	defer close(s.loopDone)

	for cmd := range s.commands {
		switch c := cmd.(type) {
		case *generateCommand:
			audio, err := s.exchange(proc, c)
			c.reply <- generateResult{audio: audio, err: err}
		case *shutdownCommand:
			s.terminate(proc)
			close(c.done)

			return
		}
	}
}

func (s *Supervisor) exchange(proc Process, cmd *generateCommand) (*core.AudioData, error) {
	ctxErr := cmd.ctx.Err()
	if ctxErr != nil {
		return nil, fmt.Errorf("request abandoned while queued: %w", ctxErr)
	}

	// The worker may have exited while this call was queued.
	err := s.checkReady()
	if err != nil {
		return nil, err
	}

	s.log.Info("Generating audio: %q (voice: %s, speed: %.2f)",
		preview(cmd.request.Text), cmd.request.Voice, cmd.request.Speed)

	err = protocol.WriteMessage(proc.Stdin(), cmd.request)
	if err != nil {
		s.log.Error("Failed to send request to worker: %v", err)

		return nil, fmt.Errorf("%w: %w", core.ErrProcessNotRunning, err)
	}

	var response protocol.GenerateResponse

	err = protocol.ReadMessage(proc.Stdout(), &response)
	if err != nil {
		s.log.Error("Failed to read worker response: %v", err)

		return nil, err
	}

	audio, err := response.Audio()
	if err != nil {
		s.log.Error("Generation failed: %v", err)

		return nil, err
	}

	s.log.Info("Generated %.2fs of audio (%d bytes)", audio.Duration, len(audio.Data))

	return audio, nil
}

func (s *Supervisor) terminate(proc Process) {
	s.log.Info("Shutting down worker")

	err := protocol.WriteShutdown(proc.Stdin())
	if err != nil {
		s.log.Warn("Failed to send shutdown frame: %v", err)
	}

	closeErr := proc.Stdin().Close()
	if closeErr != nil {
		s.log.Warn("Failed to close worker stdin: %v", closeErr)
	}

	timer := time.NewTimer(s.grace)
	defer timer.Stop()

	select {
	case <-s.exited:
		s.log.Info("Worker exited after shutdown request")
	case <-timer.C:
		s.log.Warn("Worker still running after %s; forcing termination", s.grace)

		killErr := proc.Kill()
		if killErr != nil {
			s.log.Error("Failed to terminate worker: %v", killErr)
		} else {
			<-s.exited
		}
	}

	releaseErr := proc.Close()
	if releaseErr != nil {
		s.log.Warn("Failed to release worker pipes: %v", releaseErr)
	}
}

func (s *Supervisor) watchStderr(proc Process) {
	for line := range Lines(proc.Stderr()) {
		s.log.Info("[worker] %s", line)

		if s.detector.Observe(line) {
			s.markReady()
		}
	}
}

func (s *Supervisor) watchExit(proc Process) {
	exitCode, err := proc.Wait()

	s.setState(StateTerminated)

	switch {
	case err != nil:
		s.log.Error("Worker process wait failed: %v", err)
	case s.stopping.Load():
		s.log.Info("Worker process exited (exit code: %d)", exitCode)
	default:
		s.log.Error("Worker process terminated unexpectedly (exit code: %d)", exitCode)
	}

	s.markExited()
}

func (s *Supervisor) markReady() {
	if s.transition(StateStarting, StateReady) || s.transition(StateWarming, StateReady) {
		s.log.Info("Worker marked as warm")
		s.readyOnce.Do(func() { close(s.ready) })
	}
}

func (s *Supervisor) markExited() {
	s.exitedOnce.Do(func() { close(s.exited) })
}

func (s *Supervisor) checkReady() error {
	switch state := s.State(); state {
	case StateReady:
		return nil
	case StateStarting, StateWarming:
		s.log.Warn("Worker not yet warmed up (state: %s)", state)

		return fmt.Errorf("%w: worker is %s", core.ErrWarmupTimeout, state)
	case StateNotStarted, StateTerminated:
		return fmt.Errorf("%w (state: %s)", core.ErrProcessNotRunning, state)
	default:
		return fmt.Errorf("%w (state: %s)", core.ErrProcessNotRunning, state)
	}
}

func (s *Supervisor) transition(from, to State) bool {
	return s.state.CompareAndSwap(int32(from), int32(to))
}

func (s *Supervisor) setState(state State) {
	s.state.Store(int32(state))
}

func preview(text string) string {
	runes := []rune(text)
	if len(runes) <= logTextPreviewLength {
		return text
	}

	return string(runes[:logTextPreviewLength]) + "..."
}

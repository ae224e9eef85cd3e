package core

import "errors"

// Worker error taxonomy. Callers match these with errors.Is; the wrapped
// message carries the underlying detail.
var (
	// ErrProcessNotRunning indicates the worker was never started or has exited.
	ErrProcessNotRunning = errors.New("worker process not running")
	// ErrWarmupTimeout indicates the worker has not finished loading its model.
	ErrWarmupTimeout = errors.New("model warmup timed out")
	// ErrGenerationFailed indicates the worker reported an error for a request.
	ErrGenerationFailed = errors.New("audio generation failed")
	// ErrInvalidResponse indicates a malformed, oversized or undecodable frame.
	ErrInvalidResponse = errors.New("invalid response from worker")
)

// Package client is a Go client for the TTS helper's HTTP API.
//
// Transport failures such as a refused connection are retried with a linear
// backoff, since the helper may still be binding its port. Errors reported by
// the helper itself are returned as *APIError and never retried.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/book-expert/tts-helper/internal/api"
)

// Retry defaults.
const (
	DefaultMaxRetries = 2
	DefaultRetryDelay = 500 * time.Millisecond
)

// Error messages.
const (
	errFmtUnexpectedContentType = "unexpected content type: expected %s, got %s"
	errFmtServiceNonOKStatus    = "TTS helper returned non-OK status: %s, body: %s"
	errFmtRequestFailed         = "request to TTS helper at %s failed after %d attempt(s): %w"
)

var (
	// ErrTextEmpty is returned by Speak for empty text.
	ErrTextEmpty = errors.New("text cannot be empty")
	// ErrEmptyAudio is returned when the helper answers 200 with no audio.
	ErrEmptyAudio = errors.New("received empty audio data")
	// ErrWarming is returned by Health while the model is still loading.
	ErrWarming = errors.New("TTS helper is still warming up")
)

// APIError is a structured error returned by the helper.
type APIError struct {
	StatusCode        int
	Code              string
	Message           string
	RetryAfterSeconds *int
}

func (e *APIError) Error() string {
	return fmt.Sprintf("TTS helper error (%d %s): %s", e.StatusCode, e.Code, e.Message)
}

// SpeakRequest describes one synthesis call. Empty Voice and zero Speed
// leave the choice to the helper.
type SpeakRequest struct {
	Text  string
	Voice string
	Speed float64
}

// Speech is a generated clip and its telemetry headers.
type Speech struct {
	Audio          []byte
	Duration       float64
	GenerationTime float64
	RealTimeFactor float64
}

// HTTPClient talks to a running helper.
type HTTPClient struct {
	httpClient *http.Client
	baseURL    string
	secret     string
	maxRetries int
	retryDelay time.Duration
}

// NewHTTPClient creates a client for the helper at baseURL
// (e.g. "http://127.0.0.1:8123"). The timeout applies to each attempt.
func NewHTTPClient(baseURL string, timeout time.Duration) *HTTPClient {
	return &HTTPClient{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    baseURL,
		maxRetries: DefaultMaxRetries,
		retryDelay: DefaultRetryDelay,
	}
}

// WithSecret sends secret in the X-Secret header of every request.
func (c *HTTPClient) WithSecret(secret string) *HTTPClient {
	c.secret = secret

	return c
}

// WithRetry overrides the retry policy. The n-th retry waits n*delay first.
func (c *HTTPClient) WithRetry(maxRetries int, delay time.Duration) *HTTPClient {
	c.maxRetries = max(maxRetries, 0)
	c.retryDelay = delay

	return c
}

// Speak generates speech and returns the WAV bytes with their telemetry.
func (c *HTTPClient) Speak(ctx context.Context, req SpeakRequest) (*Speech, error) {
	if req.Text == "" {
		return nil, ErrTextEmpty
	}

	body := api.SpeakRequest{Text: req.Text}
	if req.Voice != "" {
		body.Voice = &req.Voice
	}

	if req.Speed != 0 {
		body.Speed = &req.Speed
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	resp, err := c.do(ctx, http.MethodPost, api.PathSpeak, payload)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, parseErrorResponse(resp)
	}

	contentType := resp.Header.Get(api.HeaderContentType)
	if contentType != api.ContentTypeWAV {
		return nil, fmt.Errorf(errFmtUnexpectedContentType, api.ContentTypeWAV, contentType)
	}

	audio, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read audio data: %w", err)
	}

	if len(audio) == 0 {
		return nil, ErrEmptyAudio
	}

	return &Speech{
		Audio:          audio,
		Duration:       headerFloat(resp.Header, api.HeaderAudioDuration),
		GenerationTime: headerFloat(resp.Header, api.HeaderGenerationTime),
		RealTimeFactor: headerFloat(resp.Header, api.HeaderRealTimeFactor),
	}, nil
}

// Voices returns the helper's voice catalog.
func (c *HTTPClient) Voices(ctx context.Context) ([]api.Voice, error) {
	resp, err := c.do(ctx, http.MethodGet, api.PathVoices, nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, parseErrorResponse(resp)
	}

	var voices api.VoicesResponse

	err = json.NewDecoder(resp.Body).Decode(&voices)
	if err != nil {
		return nil, fmt.Errorf("failed to decode voices: %w", err)
	}

	return voices.Voices, nil
}

// Health returns the helper's health report. While the model is loading the
// report is returned together with ErrWarming.
func (c *HTTPClient) Health(ctx context.Context) (*api.HealthResponse, error) {
	resp, err := c.do(ctx, http.MethodGet, api.PathHealth, nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusServiceUnavailable {
		return nil, parseErrorResponse(resp)
	}

	var health api.HealthResponse

	err = json.NewDecoder(resp.Body).Decode(&health)
	if err != nil {
		return nil, fmt.Errorf("failed to decode health response: %w", err)
	}

	if resp.StatusCode == http.StatusServiceUnavailable {
		return &health, ErrWarming
	}

	return &health, nil
}

// do sends a request, retrying transport failures only.
func (c *HTTPClient) do(ctx context.Context, method, path string, payload []byte) (*http.Response, error) {
	var lastErr error

	attempts := c.maxRetries + 1

	for attempt := range attempts {
		if attempt > 0 {
			err := sleep(ctx, c.retryDelay*time.Duration(attempt))
			if err != nil {
				return nil, fmt.Errorf(errFmtRequestFailed, c.baseURL, attempt, err)
			}
		}

		httpReq, err := c.newRequest(ctx, method, path, payload)
		if err != nil {
			return nil, err
		}

		resp, err := c.httpClient.Do(httpReq)
		if err == nil {
			return resp, nil
		}

		lastErr = err

		if ctx.Err() != nil {
			return nil, fmt.Errorf(errFmtRequestFailed, c.baseURL, attempt+1, lastErr)
		}
	}

	return nil, fmt.Errorf(errFmtRequestFailed, c.baseURL, attempts, lastErr)
}

func (c *HTTPClient) newRequest(ctx context.Context, method, path string, payload []byte) (*http.Request, error) {
	body := io.Reader(http.NoBody)
	if payload != nil {
		body = bytes.NewReader(payload)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	if payload != nil {
		httpReq.Header.Set(api.HeaderContentType, api.ContentTypeJSON)
	}

	if c.secret != "" {
		httpReq.Header.Set(api.HeaderSecret, c.secret)
	}

	return httpReq, nil
}

// parseErrorResponse decodes a structured error, falling back to the raw
// body so diagnostic information is preserved.
func parseErrorResponse(resp *http.Response) error {
	body, _ := io.ReadAll(resp.Body)

	var errorResp api.ErrorResponse

	err := json.Unmarshal(body, &errorResp)
	if err == nil && errorResp.Error != "" {
		return &APIError{
			StatusCode:        resp.StatusCode,
			Code:              errorResp.Error,
			Message:           errorResp.Message,
			RetryAfterSeconds: errorResp.RetryAfterSeconds,
		}
	}

	return fmt.Errorf(errFmtServiceNonOKStatus, resp.Status, string(body))
}

func headerFloat(header http.Header, name string) float64 {
	value, err := strconv.ParseFloat(header.Get(name), 64)
	if err != nil {
		return 0
	}

	return value
}

func sleep(ctx context.Context, delay time.Duration) error {
	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

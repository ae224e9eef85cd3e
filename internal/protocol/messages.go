package protocol

import (
	"encoding/base64"
	"fmt"

	"github.com/book-expert/tts-helper/internal/core"
)

// GenerateRequest is the frame the helper sends for one synthesis call.
type GenerateRequest struct {
	Text  string  `json:"text"`
	Voice string  `json:"voice"`
	Speed float64 `json:"speed"`
}

// GenerateResponse is the frame the worker answers with. Either Error is set
// or all of the audio fields are.
type GenerateResponse struct {
	AudioBase64 *string  `json:"audio_base64,omitempty"`
	Duration    *float64 `json:"duration,omitempty"`
	SampleRate  *int     `json:"sample_rate,omitempty"`
	Format      *string  `json:"format,omitempty"`
	Error       *string  `json:"error,omitempty"`
}

// Audio converts the response into AudioData. A worker-reported error becomes
// core.ErrGenerationFailed; missing or undecodable fields become
// core.ErrInvalidResponse.
func (r *GenerateResponse) Audio() (*core.AudioData, error) {
	if r.Error != nil {
		return nil, fmt.Errorf("%w: %s", core.ErrGenerationFailed, *r.Error)
	}

	if r.AudioBase64 == nil || r.Duration == nil || r.SampleRate == nil || r.Format == nil {
		return nil, fmt.Errorf("%w: response is missing audio fields", core.ErrInvalidResponse)
	}

	data, err := base64.StdEncoding.DecodeString(*r.AudioBase64)
	if err != nil {
		return nil, fmt.Errorf("%w: audio_base64: %w", core.ErrInvalidResponse, err)
	}

	return &core.AudioData{
		Data:       data,
		Duration:   *r.Duration,
		SampleRate: *r.SampleRate,
		Format:     *r.Format,
	}, nil
}

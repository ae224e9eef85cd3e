// Package api defines the JSON bodies, header names and error codes of the
// helper's HTTP surface. It is shared by the gateway and its Go client.
package api

// Routes.
const (
	PathHealth = "/health"
	PathVoices = "/voices"
	PathSpeak  = "/speak"
)

// Header names and content types.
const (
	HeaderContentType    = "Content-Type"
	HeaderAccept         = "Accept"
	HeaderSecret         = "X-Secret"
	HeaderAudioDuration  = "X-Audio-Duration"
	HeaderGenerationTime = "X-Generation-Time"
	HeaderRealTimeFactor = "X-Real-Time-Factor"
	ContentTypeJSON      = "application/json"
	ContentTypeWAV       = "audio/wav"
)

// Health statuses.
const (
	StatusOK      = "ok"
	StatusWarming = "warming"
)

// Error codes carried in ErrorResponse.Error.
const (
	CodeBadRequest        = "bad_request"
	CodeUnauthorized      = "unauthorized"
	CodeNotFound          = "not_found"
	CodeProcessNotRunning = "process_not_running"
	CodeWarmupTimeout     = "warmup_timeout"
	CodeGenerationFailed  = "generation_failed"
	CodeInvalidResponse   = "invalid_response"
	CodeInternalError     = "internal_error"
)

// Request limits.
const (
	MaxTextLength = 5000
	MinSpeed      = 0.5
	MaxSpeed      = 2.0
	DefaultSpeed  = 1.0
)

// SpeakRequest is the body of POST /speak. Voice and Speed are optional.
type SpeakRequest struct {
	Text  string   `json:"text"`
	Voice *string  `json:"voice,omitempty"`
	Speed *float64 `json:"speed,omitempty"`
}

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status         string  `json:"status"`
	Model          string  `json:"model"`
	ModelLoaded    bool    `json:"model_loaded"`
	UptimeSeconds  float64 `json:"uptime_seconds"`
	RequestsServed int64   `json:"requests_served"`
}

// Voice is one entry of the voice catalog.
type Voice struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Language string `json:"language"`
}

// VoicesResponse is the body of GET /voices.
type VoicesResponse struct {
	Voices []Voice `json:"voices"`
}

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error             string `json:"error"`
	Message           string `json:"message"`
	RetryAfterSeconds *int   `json:"retry_after_seconds,omitempty"`
}

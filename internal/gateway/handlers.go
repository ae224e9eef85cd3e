package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"
	"unicode/utf8"

	"github.com/book-expert/tts-helper/internal/api"
	"github.com/book-expert/tts-helper/internal/core"
)

// speakParams is a validated /speak request with defaults applied.
type speakParams struct {
	text  string
	voice string
	speed float64
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	ready := s.generator.Ready()

	response := api.HealthResponse{
		Status:         api.StatusOK,
		Model:          s.opts.ModelName,
		ModelLoaded:    ready,
		UptimeSeconds:  time.Since(s.started).Seconds(),
		RequestsServed: s.requests.Load(),
	}

	status := http.StatusOK
	if !ready {
		response.Status = api.StatusWarming
		status = http.StatusServiceUnavailable
	}

	s.writeJSON(w, status, response)
}

func (s *Server) handleVoices(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, api.VoicesResponse{Voices: Voices()})
}

func (s *Server) handleNotFound(w http.ResponseWriter, _ *http.Request) {
	s.writeError(w, http.StatusNotFound, api.CodeNotFound, msgNotFound, nil)
}

func (s *Server) handleSpeak(w http.ResponseWriter, r *http.Request) {
	params, err := s.parseSpeakRequest(w, r)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, api.CodeBadRequest, err.Error(), nil)

		return
	}

	started := time.Now()

	audio, err := s.generator.Generate(r.Context(), params.text, params.voice, params.speed)
	if err != nil {
		s.log.Error("Generation failed: %v", err)
		status, code, retryAfter := classify(err)
		s.writeError(w, status, code, err.Error(), retryAfter)

		return
	}

	generationSeconds := time.Since(started).Seconds()

	realTimeFactor := 0.0
	if generationSeconds > 0 {
		realTimeFactor = audio.Duration / generationSeconds
	}

	s.log.Info("Generated %.2fs audio in %.2fs (RTF: %.2fx)", audio.Duration, generationSeconds, realTimeFactor)

	header := w.Header()
	header.Set(api.HeaderContentType, api.ContentTypeWAV)
	header.Set("Content-Length", strconv.Itoa(len(audio.Data)))
	header.Set(api.HeaderAudioDuration, formatFloat(audio.Duration))
	header.Set(api.HeaderGenerationTime, formatFloat(generationSeconds))
	header.Set(api.HeaderRealTimeFactor, formatFloat(realTimeFactor))
	w.WriteHeader(http.StatusOK)

	_, err = w.Write(audio.Data)
	if err != nil {
		s.log.Warn("Failed to write audio response: %v", err)

		return
	}

	s.archive(core.ArchiveRecord{
		Audio: audio,
		Text:  params.text,
		Voice: params.voice,
		Speed: params.speed,
	})
}

// parseSpeakRequest reads and validates the body of a /speak request.
func (s *Server) parseSpeakRequest(w http.ResponseWriter, r *http.Request) (speakParams, error) {
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			return speakParams{}, errBodyTooLarge
		}

		return speakParams{}, errMissingBody
	}

	if len(data) == 0 {
		return speakParams{}, errMissingBody
	}

	var request api.SpeakRequest

	err = json.Unmarshal(data, &request)
	if err != nil {
		return speakParams{}, errInvalidJSON
	}

	if request.Text == "" {
		return speakParams{}, errEmptyText
	}

	if utf8.RuneCountInString(request.Text) > api.MaxTextLength {
		return speakParams{}, errTextTooLong
	}

	params := speakParams{
		text:  request.Text,
		voice: s.cfg.DefaultVoice,
		speed: api.DefaultSpeed,
	}

	if request.Voice != nil && *request.Voice != "" {
		params.voice = *request.Voice
	}

	if request.Speed != nil {
		if *request.Speed < api.MinSpeed || *request.Speed > api.MaxSpeed {
			return speakParams{}, errSpeedRange
		}

		params.speed = *request.Speed
	}

	return params, nil
}

// archive hands a generated clip to the archiver in the background. Failures
// are logged and never affect the response already sent.
func (s *Server) archive(record core.ArchiveRecord) {
	if s.opts.Archiver == nil {
		return
	}

	s.archives.Add(1)

	go func() {
		defer s.archives.Done()

		ctx, cancel := context.WithTimeout(context.Background(), s.opts.ArchiveTimeout)
		defer cancel()

		key, err := s.opts.Archiver.Archive(ctx, record)
		if err != nil {
			s.log.Warn("Failed to archive generated audio: %v", err)

			return
		}

		s.log.Info("Archived generated audio as %s", key)
	}()
}

// formatFloat renders v with the fewest digits that round-trip.
func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

package gateway

import (
	"crypto/subtle"
	"net/http"
	"strings"
	"time"

	"github.com/book-expert/tts-helper/internal/api"
	"github.com/go-chi/chi/v5/middleware"
)

const msgUnauthorized = "Invalid or missing auth token"

var exposedHeaders = strings.Join([]string{
	api.HeaderAudioDuration,
	api.HeaderGenerationTime,
	api.HeaderRealTimeFactor,
}, ", ")

// cors lets the browser extension call the helper directly and answers
// preflight requests itself.
func cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := w.Header()
		header.Set("Access-Control-Allow-Origin", "*")
		header.Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		header.Set("Access-Control-Allow-Headers", "Content-Type, "+api.HeaderSecret)
		header.Set("Access-Control-Expose-Headers", exposedHeaders)
		header.Set("Access-Control-Max-Age", "3600")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)

			return
		}

		next.ServeHTTP(w, r)
	})
}

func (s *Server) countRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.requests.Add(1)
		next.ServeHTTP(w, r)
	})
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		started := time.Now()
		wrapped := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(wrapped, r)

		s.log.Info("[%d] %s %s -> %d (%d bytes, %s)",
			s.requests.Load(), r.Method, r.URL.Path,
			wrapped.Status(), wrapped.BytesWritten(), time.Since(started).Round(time.Millisecond))
	})
}

// checkSecret rejects requests whose X-Secret header does not match the
// configured secret.
func (s *Server) checkSecret(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		provided := r.Header.Get(api.HeaderSecret)
		if subtle.ConstantTimeCompare([]byte(provided), []byte(s.cfg.Secret)) != 1 {
			s.writeError(w, http.StatusUnauthorized, api.CodeUnauthorized, msgUnauthorized, nil)

			return
		}

		next.ServeHTTP(w, r)
	})
}

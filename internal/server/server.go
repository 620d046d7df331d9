// Package server exposes the OCR chain over HTTP.
//
// Routes:
//   - GET  /     liveness probe, independent of backend health
//   - POST /ocr  multipart field "file" or JSON {"image_base64": "..."}
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"

	"ocrgate/internal/logger"
	"ocrgate/internal/ocr"
)

// Runner runs the configured backends against an image.
type Runner interface {
	Run(ctx context.Context, img *ocr.Image) ocr.Report
}

// Options tunes request handling.
type Options struct {
	// MaxUploadBytes bounds the request body.
	MaxUploadBytes int64

	// MaxImagePixels bounds the decoded image area. Zero disables the check.
	MaxImagePixels int64

	// ChainTimeout bounds one run of the backend chain. Backends that have
	// not started when it expires are reported ILLEGIBLE and the response is
	// still written. Zero leaves the chain unbounded.
	ChainTimeout time.Duration

	// DebugDir, when set, receives a PNG copy of every decoded upload.
	DebugDir string
}

// Server holds the HTTP handlers.
type Server struct {
	runner Runner
	opts   Options
	log    zerolog.Logger
}

// ErrorResponse is the body of every non-200 response.
type ErrorResponse struct {
	Error string `json:"error"`
}

// StatusResponse is the body of GET /.
type StatusResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

// New creates a Server around runner.
func New(runner Runner, opts Options) *Server {
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = 20 << 20
	}
	return &Server{
		runner: runner,
		opts:   opts,
		log:    logger.WithComponent("server"),
	}
}

// Handler returns the routed handler wrapped in request logging.
func (s *Server) Handler() http.Handler {
	r := mux.NewRouter()
	r.HandleFunc("/", s.handleStatus).Methods(http.MethodGet)
	r.HandleFunc("/ocr", s.handleOCR).Methods(http.MethodPost)
	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		sendErrorResponse(w, "not found", http.StatusNotFound)
	})
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		sendErrorResponse(w, "method not allowed", http.StatusMethodNotAllowed)
	})

	var h http.Handler = r
	h = hlog.AccessHandler(func(r *http.Request, status, size int, duration time.Duration) {
		hlog.FromRequest(r).Info().
			Str("method", r.Method).
			Stringer("url", r.URL).
			Int("status", status).
			Int("size", size).
			Dur("duration", duration).
			Msg("Request handled")
	})(h)
	h = requestID(h)
	h = hlog.RemoteAddrHandler("remote_addr")(h)
	h = hlog.NewHandler(s.log)(h)
	return h
}

// requestID tags the request logger with the caller's X-Request-ID or a
// fresh UUID, and echoes it in the response.
func requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", id)

		l := zerolog.Ctx(r.Context())
		l.UpdateContext(func(c zerolog.Context) zerolog.Context {
			return c.Str("request_id", id)
		})
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, StatusResponse{
		Status:  "ok",
		Message: "OCR service is running",
	})
}

func (s *Server) handleOCR(w http.ResponseWriter, r *http.Request) {
	log := hlog.FromRequest(r)
	r.Body = http.MaxBytesReader(w, r.Body, s.opts.MaxUploadBytes)

	data, err := readImage(r)
	if err != nil {
		log.Info().Err(err).Msg("Rejected OCR request")
		sendErrorResponse(w, intakeMessage(err, s.opts.MaxUploadBytes), http.StatusBadRequest)
		return
	}

	// The body is consumed. Lifting the read deadline keeps the server's
	// background read from canceling the request context mid-chain.
	if err := http.NewResponseController(w).SetReadDeadline(time.Time{}); err != nil && !errors.Is(err, http.ErrNotSupported) {
		log.Debug().Err(err).Msg("Failed to clear read deadline")
	}

	img, err := ocr.DecodeImageLimit(data, s.opts.MaxImagePixels)
	if err != nil {
		log.Info().Err(err).Int("bytes", len(data)).Msg("Rejected undecodable image")
		sendErrorResponse(w, intakeMessage(err, s.opts.MaxUploadBytes), http.StatusBadRequest)
		return
	}

	log.Debug().
		Str("format", img.Format).
		Int("bytes", img.Size).
		Int("width", img.Bounds().Dx()).
		Int("height", img.Bounds().Dy()).
		Msg("Image decoded")

	if s.opts.DebugDir != "" {
		s.dumpImage(r.Context(), img)
	}

	ctx := r.Context()
	if s.opts.ChainTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.opts.ChainTimeout)
		defer cancel()
	}

	report := s.runner.Run(ctx, img)
	writeJSON(w, http.StatusOK, report.Wire())
}

// dumpImage writes the decoded upload for later inspection. Failures are
// logged and never affect the response.
func (s *Server) dumpImage(ctx context.Context, img *ocr.Image) {
	log := logger.FromContext(ctx)

	data, err := img.PNG()
	if err != nil {
		log.Warn().Err(err).Msg("Failed to encode debug image")
		return
	}
	if err := os.MkdirAll(s.opts.DebugDir, 0o755); err != nil {
		log.Warn().Err(err).Str("dir", s.opts.DebugDir).Msg("Failed to create debug directory")
		return
	}

	path := filepath.Join(s.opts.DebugDir, uuid.NewString()+".png")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		log.Warn().Err(err).Str("path", path).Msg("Failed to write debug image")
		return
	}
	log.Debug().Str("path", path).Msg("Debug image written")
}

func intakeMessage(err error, limit int64) string {
	switch {
	case errors.Is(err, ocr.ErrNoImage):
		return fmt.Sprintf("no image supplied: send a multipart %q field or a JSON body with \"image_base64\"", FileField)
	case errors.Is(err, errTooLarge):
		return fmt.Sprintf("image exceeds the %d byte limit", limit)
	case errors.Is(err, errInvalidBase64):
		return "invalid base64 payload"
	case errors.Is(err, errInvalidJSON):
		return "invalid JSON body"
	case errors.Is(err, errAmbiguousImage):
		return fmt.Sprintf("send either a %q file or image_base64, not both", FileField)
	case errors.Is(err, ocr.ErrImageTooLarge):
		return "image dimensions exceed the pixel limit"
	case errors.Is(err, ocr.ErrInvalidImage):
		return "invalid or corrupted image"
	default:
		return err.Error()
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func sendErrorResponse(w http.ResponseWriter, message string, status int) {
	writeJSON(w, status, ErrorResponse{Error: message})
}

// Package speechsvc implements the speech scoring service: an HTTP server
// that accepts a recorded clip plus the expected words of a segment,
// transcribes the clip, and answers with a word-by-word comparison.
//
// The wire contract is the one pkg/scoring/httpapi speaks: a multipart POST
// to /v1/score with a "file" part (WAV clip), a "words" field (JSON array of
// expected words), and a "segment_id" field, answered with a JSON-encoded
// scoring.Result.
package speechsvc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/metric"

	"github.com/mtoso/shadowline/internal/health"
	"github.com/mtoso/shadowline/internal/observe"
	"github.com/mtoso/shadowline/pkg/audio"
	"github.com/mtoso/shadowline/pkg/lesson"
	"github.com/mtoso/shadowline/pkg/recognize"
	"github.com/mtoso/shadowline/pkg/scoring"
	"github.com/mtoso/shadowline/pkg/scoring/compare"
)

// maxClipBytes caps the uploaded clip size. Segments are a few seconds of
// 16-bit PCM, so anything beyond this is a malformed or hostile request.
const maxClipBytes = 32 << 20 // 32 MiB

// wireWord mirrors the expected-word shape the client submits in the
// "words" form field.
type wireWord struct {
	ID         string `json:"id"`
	OrderIndex int    `json:"order_index"`
	Text       string `json:"text"`
	Normalized string `json:"normalized"`
	Slug       string `json:"slug"`
}

// Option is a functional option for configuring a Server.
type Option func(*Server)

// WithComparer overrides the comparison engine. The default uses
// compare.New with its standard thresholds.
func WithComparer(c *compare.Comparer) Option {
	return func(s *Server) { s.comparer = c }
}

// WithMetrics overrides the metrics instance. The default is
// observe.DefaultMetrics.
func WithMetrics(m *observe.Metrics) Option {
	return func(s *Server) { s.metrics = m }
}

// Server handles scoring requests. It is stateless per request and safe for
// concurrent use.
type Server struct {
	recognizer recognize.Recognizer
	comparer   *compare.Comparer
	metrics    *observe.Metrics
}

// New creates a Server that transcribes clips with rec.
func New(rec recognize.Recognizer, opts ...Option) (*Server, error) {
	if rec == nil {
		return nil, errors.New("speechsvc: recognizer must not be nil")
	}
	s := &Server{
		recognizer: rec,
		comparer:   compare.New(),
	}
	for _, o := range opts {
		o(s)
	}
	if s.metrics == nil {
		s.metrics = observe.DefaultMetrics()
	}
	return s, nil
}

// Handler returns the service's HTTP handler: the scoring route plus
// liveness and readiness probes, wrapped in the observability middleware.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/score", s.handleScore)

	health.New(health.Checker{
		Name:  "recognizer",
		Check: s.probeRecognizer,
	}).Register(mux)

	return observe.Middleware(s.metrics)(mux)
}

// handleScore processes one scoring submission.
func (s *Server) handleScore(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	start := time.Now()

	r.Body = http.MaxBytesReader(w, r.Body, maxClipBytes)
	if err := r.ParseMultipartForm(maxClipBytes); err != nil {
		s.reject(w, r, http.StatusBadRequest, "bad_request", fmt.Errorf("parse multipart form: %w", err))
		return
	}
	defer func() {
		if r.MultipartForm != nil {
			_ = r.MultipartForm.RemoveAll()
		}
	}()

	segmentID := r.FormValue("segment_id")
	if segmentID == "" {
		s.reject(w, r, http.StatusBadRequest, "bad_request", errors.New("missing segment_id field"))
		return
	}

	words, err := parseWords(r.FormValue("words"))
	if err != nil {
		s.reject(w, r, http.StatusBadRequest, "bad_request", err)
		return
	}

	clip, err := readClip(r)
	if err != nil {
		s.reject(w, r, http.StatusBadRequest, "bad_request", err)
		return
	}

	pcm, format, err := audio.DecodeWAV(clip)
	if err != nil {
		s.reject(w, r, http.StatusBadRequest, "bad_audio", fmt.Errorf("decode wav: %w", err))
		return
	}

	recStart := time.Now()
	transcript, err := s.recognizer.Transcribe(ctx, pcm, format)
	s.metrics.RecognizeDuration.Record(ctx, time.Since(recStart).Seconds())
	if err != nil {
		s.reject(w, r, http.StatusBadGateway, "recognizer", fmt.Errorf("transcribe: %w", err))
		return
	}

	result := scoring.Result{
		Comparison:      s.comparer.Compare(words, transcript),
		TranscriptionID: uuid.NewString(),
	}

	s.metrics.ScoreDuration.Record(ctx, time.Since(start).Seconds(),
		metric.WithAttributes(observe.Attr("segment_id", segmentID)),
	)
	observe.Logger(ctx).Info("clip scored",
		"segment_id", segmentID,
		"transcription_id", result.TranscriptionID,
		"weighted_accuracy", result.Comparison.WeightedAccuracy,
		"duration", time.Since(start),
	)

	writeJSON(w, http.StatusOK, result)
}

// probeRecognizer reports readiness. A nil check keeps /readyz green; the
// recognizer itself has no cheap liveness probe, so construction success is
// the signal.
func (s *Server) probeRecognizer(context.Context) error {
	if s.recognizer == nil {
		return errors.New("recognizer not configured")
	}
	return nil
}

// parseWords decodes the "words" form field into the expected word list.
func parseWords(raw string) ([]lesson.Word, error) {
	if raw == "" {
		return nil, errors.New("missing words field")
	}
	var wire []wireWord
	if err := json.Unmarshal([]byte(raw), &wire); err != nil {
		return nil, fmt.Errorf("parse words field: %w", err)
	}
	if len(wire) == 0 {
		return nil, errors.New("words field must not be empty")
	}
	words := make([]lesson.Word, len(wire))
	for i, w := range wire {
		words[i] = lesson.Word{
			ID:         w.ID,
			OrderIndex: w.OrderIndex,
			Text:       w.Text,
			Normalized: w.Normalized,
			Slug:       w.Slug,
		}
	}
	return words, nil
}

// readClip extracts the uploaded clip bytes from the "file" form part.
func readClip(r *http.Request) ([]byte, error) {
	f, _, err := r.FormFile("file")
	if err != nil {
		return nil, fmt.Errorf("missing file part: %w", err)
	}
	defer f.Close()
	clip, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("read clip: %w", err)
	}
	if len(clip) == 0 {
		return nil, errors.New("empty clip")
	}
	return clip, nil
}

// reject logs the failure, counts it, and writes a JSON error body.
func (s *Server) reject(w http.ResponseWriter, r *http.Request, status int, reason string, err error) {
	s.metrics.RecordScoreError(r.Context(), reason)
	slog.Warn("scoring request rejected",
		"reason", reason,
		"status", status,
		"err", err,
	)
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode response", "err", err)
	}
}

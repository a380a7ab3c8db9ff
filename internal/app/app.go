// Package app wires all Shadowline subsystems into a running application.
//
// The App struct owns the full lifecycle: New creates and connects all
// subsystems from the config, Run executes the serving loops, and Shutdown
// tears everything down in order.
//
// For testing, inject mock implementations via functional options
// (WithRecognizer, WithLessonSource, etc.). When an option is not provided,
// New creates real implementations from the config.
package app

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/mtoso/shadowline/internal/config"
	"github.com/mtoso/shadowline/internal/cue"
	"github.com/mtoso/shadowline/internal/history"
	"github.com/mtoso/shadowline/internal/lessonstore"
	"github.com/mtoso/shadowline/internal/observe"
	"github.com/mtoso/shadowline/internal/recording"
	"github.com/mtoso/shadowline/internal/resilience"
	"github.com/mtoso/shadowline/internal/review"
	"github.com/mtoso/shadowline/internal/session"
	"github.com/mtoso/shadowline/internal/speechsvc"
	"github.com/mtoso/shadowline/internal/updates"
	"github.com/mtoso/shadowline/pkg/capture"
	captureportaudio "github.com/mtoso/shadowline/pkg/capture/portaudio"
	"github.com/mtoso/shadowline/pkg/lesson"
	"github.com/mtoso/shadowline/pkg/playback"
	"github.com/mtoso/shadowline/pkg/playback/fileaudio"
	"github.com/mtoso/shadowline/pkg/playback/fileaudio/speaker"
	"github.com/mtoso/shadowline/pkg/recognize"
	"github.com/mtoso/shadowline/pkg/recognize/whisper"
	"github.com/mtoso/shadowline/pkg/scoring"
	"github.com/mtoso/shadowline/pkg/scoring/httpapi"
)

// App owns all subsystem lifetimes.
type App struct {
	cfg     *config.Config
	metrics *observe.Metrics

	// Injected test doubles; nil means build from config.
	recognizer recognize.Recognizer
	source     lessonstore.Source
	mic        capture.Provider
	backend    playback.Backend
	gate       *playback.Gate
	scorer        scoring.Client
	keyInput      io.Reader
	transcriptOut io.Writer

	scoringSrv *http.Server
	metricsSrv *http.Server
	listener   *updates.Listener
	keymap     *session.Keymap
	pool       *pgxpool.Pool
	journal    *history.FileStore
	lessonID   string
	segments   []lesson.Segment

	mu   sync.Mutex
	orch *session.Orchestrator

	// closers are called in order during Shutdown.
	closers []func() error

	// stopOnce guards the Shutdown path.
	stopOnce sync.Once
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithRecognizer injects a recognizer instead of creating one from config.
func WithRecognizer(r recognize.Recognizer) Option {
	return func(a *App) { a.recognizer = r }
}

// WithLessonSource injects a lesson source instead of creating one from config.
func WithLessonSource(s lessonstore.Source) Option {
	return func(a *App) { a.source = s }
}

// WithCaptureProvider injects a microphone provider instead of opening the
// system default device.
func WithCaptureProvider(p capture.Provider) Option {
	return func(a *App) { a.mic = p }
}

// WithPlaybackBackend injects a playback backend instead of building one
// from the lesson's source type. Pair it with [WithGate] when the backend
// was built around a caller-owned gate.
func WithPlaybackBackend(b playback.Backend) Option {
	return func(a *App) { a.backend = b }
}

// WithGate injects the autoplay gate shared with an injected backend.
func WithGate(g *playback.Gate) Option {
	return func(a *App) { a.gate = g }
}

// WithScoringClient injects a scoring client instead of dialing the
// configured service.
func WithScoringClient(c scoring.Client) Option {
	return func(a *App) { a.scorer = c }
}

// WithKeyInput overrides the key-press input stream. Default: os.Stdin.
func WithKeyInput(r io.Reader) Option {
	return func(a *App) { a.keyInput = r }
}

// WithTranscriptOutput overrides the writer the transcript window is drawn
// to after each key action. Default: os.Stdout.
func WithTranscriptOutput(w io.Writer) Option {
	return func(a *App) { a.transcriptOut = w }
}

// New creates an App by wiring all subsystems together.
//
// New performs all initialisation synchronously: the scoring service, the
// metrics listener, the lesson source, the practice session (when a lesson
// is configured), and the live-update listener.
func New(ctx context.Context, cfg *config.Config, opts ...Option) (*App, error) {
	a := &App{
		cfg:           cfg,
		metrics:       observe.DefaultMetrics(),
		keyInput:      os.Stdin,
		transcriptOut: os.Stdout,
	}
	for _, o := range opts {
		o(a)
	}

	if err := a.initScoringService(); err != nil {
		return nil, fmt.Errorf("app: init scoring service: %w", err)
	}
	a.initMetricsServer()

	if err := a.initLessonSource(ctx); err != nil {
		return nil, fmt.Errorf("app: init lesson source: %w", err)
	}

	if err := a.initSession(ctx); err != nil {
		return nil, fmt.Errorf("app: init session: %w", err)
	}

	return a, nil
}

// initScoringService builds the speech scoring HTTP server when
// server.listen_addr is set.
func (a *App) initScoringService() error {
	if a.cfg.Server.ListenAddr == "" {
		return nil
	}

	rec := a.recognizer
	if rec == nil {
		var err error
		rec, err = a.buildRecognizer()
		if err != nil {
			return err
		}
	}
	if closer, ok := rec.(io.Closer); ok {
		a.closers = append(a.closers, closer.Close)
	}

	svc, err := speechsvc.New(rec, speechsvc.WithMetrics(a.metrics))
	if err != nil {
		return err
	}

	a.scoringSrv = &http.Server{
		Addr:              a.cfg.Server.ListenAddr,
		Handler:           svc.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	return nil
}

// buildRecognizer constructs the configured speech-to-text engine.
func (a *App) buildRecognizer() (recognize.Recognizer, error) {
	rc := a.cfg.Recognizer
	switch rc.Mode {
	case config.RecognizerRemote:
		var opts []whisper.RemoteOption
		if rc.Language != "" {
			opts = append(opts, whisper.WithLanguage(rc.Language))
		}
		if rc.Model != "" {
			opts = append(opts, whisper.WithModel(rc.Model))
		}
		return whisper.NewRemote(rc.URL, opts...)
	case config.RecognizerNative:
		var opts []whisper.NativeOption
		if rc.Language != "" {
			opts = append(opts, whisper.WithNativeLanguage(rc.Language))
		}
		return whisper.NewNative(rc.ModelPath, opts...)
	default:
		return nil, fmt.Errorf("unsupported recognizer mode %q", rc.Mode)
	}
}

// initMetricsServer builds the Prometheus scrape listener when
// server.metrics_addr is set.
func (a *App) initMetricsServer() {
	if a.cfg.Server.MetricsAddr == "" {
		return
	}
	mux := http.NewServeMux()
	mux.Handle("GET /metrics", promhttp.Handler())
	a.metricsSrv = &http.Server{
		Addr:              a.cfg.Server.MetricsAddr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
}

// initLessonSource connects the configured lesson store.
func (a *App) initLessonSource(ctx context.Context) error {
	if a.source != nil {
		return nil
	}
	switch a.cfg.Lessons.Source {
	case "":
		return nil
	case config.LessonSourceFile:
		src, err := lessonstore.NewFileSource(a.cfg.Lessons.Dir)
		if err != nil {
			return err
		}
		a.source = src
	case config.LessonSourcePostgres:
		pool, err := pgxpool.New(ctx, a.cfg.Lessons.PostgresDSN)
		if err != nil {
			return fmt.Errorf("connect postgres: %w", err)
		}
		a.pool = pool
		a.closers = append(a.closers, func() error { pool.Close(); return nil })
		a.source = lessonstore.NewPostgresSource(pool)
	default:
		return fmt.Errorf("unsupported lesson source %q", a.cfg.Lessons.Source)
	}
	return nil
}

// initSession assembles the practice session when a lesson is configured.
func (a *App) initSession(ctx context.Context) error {
	if a.source == nil || a.cfg.Lessons.LessonID == "" {
		return nil
	}

	l, err := a.source.Lesson(ctx, a.cfg.Lessons.LessonID)
	if err != nil {
		return fmt.Errorf("load lesson %q: %w", a.cfg.Lessons.LessonID, err)
	}
	a.lessonID = l.ID
	if path := a.cfg.Session.HistoryPath; path != "" {
		a.journal = history.NewFileStore(path)
	}

	gate := a.gate
	if gate == nil {
		gate = &playback.Gate{}
	}
	backend := a.backend
	if backend == nil {
		backend, err = a.buildBackend(l, gate)
		if err != nil {
			return err
		}
	}

	mic := a.mic
	if mic == nil {
		provider, err := captureportaudio.New()
		if err != nil {
			return fmt.Errorf("open microphone provider: %w", err)
		}
		a.closers = append(a.closers, provider.Close)
		mic = provider
	}

	scorer := a.scorer
	if scorer == nil {
		baseURL := a.cfg.Scoring.BaseURL
		if baseURL == "" {
			baseURL = "http://127.0.0.1" + a.cfg.Server.ListenAddr
		}
		primary, err := httpapi.New(baseURL)
		if err != nil {
			return err
		}
		group := resilience.NewScoringFallback(primary, baseURL, resilience.FallbackConfig{})
		for _, u := range a.cfg.Scoring.FallbackURLs {
			fb, err := httpapi.New(u)
			if err != nil {
				return fmt.Errorf("scoring fallback %q: %w", u, err)
			}
			group.AddFallback(u, fb)
		}
		scorer = group
	}

	renderer := review.New(cue.New(a.cfg.Session.CuesEnabled()),
		review.WithMetrics(a.metrics),
	)

	recorder := recording.NewSession(mic, scorer,
		recording.WithPlayback(backend),
		recording.WithOnResult(a.handleResult),
		recording.WithMetrics(a.metrics),
	)

	orch, err := session.New(session.Config{
		Lesson:       l,
		Playback:     backend,
		Recorder:     recorder,
		Renderer:     renderer,
		Gate:         gate,
		AutoAdvance:  a.cfg.Session.AutoAdvanceEnabled(),
		AutoPlayNext: a.cfg.Session.AutoPlayNextEnabled(),
	})
	if err != nil {
		return err
	}

	a.mu.Lock()
	a.orch = orch
	a.mu.Unlock()
	a.segments = l.Segments
	a.keymap = a.cfg.Session.Keymap()
	a.metrics.ActiveSessions.Add(ctx, 1)

	if a.cfg.Updates.FeedURL != "" {
		a.listener = updates.NewListener(a.cfg.Updates.FeedURL, updates.NewLessonTarget(l))
	}

	slog.Info("practice session ready",
		"lesson", l.ID,
		"segments", len(l.Segments),
		"source_type", l.SourceType,
	)
	return nil
}

// buildBackend constructs the playback variant the lesson requires.
func (a *App) buildBackend(l *lesson.Lesson, gate *playback.Gate) (playback.Backend, error) {
	variant := l.SourceType
	if a.cfg.Playback.Backend != "" {
		variant = a.cfg.Playback.Backend
	}

	switch variant {
	case lesson.SourceFileAudio:
		el, err := speaker.New(l.MediaSource)
		if err != nil {
			return nil, fmt.Errorf("open media %q: %w", l.MediaSource, err)
		}
		a.closers = append(a.closers, el.Close)
		return fileaudio.New(el, gate,
			fileaudio.WithAutoStop(a.cfg.Playback.AutoStopEnabled()),
		), nil
	case lesson.SourceEmbeddedVideo:
		return nil, errors.New("embedded-video lessons need a hosting player; inject one with WithPlaybackBackend")
	default:
		return nil, fmt.Errorf("unsupported playback backend %q", variant)
	}
}

// handleResult forwards scored attempts to the orchestrator and, when a
// journal is configured, records them. The segment id is the one the attempt
// was recorded against, not whichever segment is active by the time the
// score arrives.
func (a *App) handleResult(segmentID string, res scoring.Result) {
	a.mu.Lock()
	orch := a.orch
	a.mu.Unlock()
	if orch == nil {
		return
	}
	orch.HandleResult(segmentID, res)
	if a.journal != nil {
		if err := a.journal.Append(a.lessonID, segmentID, res); err != nil {
			slog.Warn("attempt journal write failed", "err", err)
		}
	}
}

// Orchestrator returns the practice session orchestrator, or nil when no
// lesson session is configured.
func (a *App) Orchestrator() *session.Orchestrator {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.orch
}

// Run starts all serving loops and blocks until ctx is cancelled or one of
// them fails.
func (a *App) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	if srv := a.scoringSrv; srv != nil {
		g.Go(func() error { return a.serve(ctx, srv, "scoring service", a.cfg.Server.TLS) })
	}
	if srv := a.metricsSrv; srv != nil {
		g.Go(func() error { return a.serve(ctx, srv, "metrics", nil) })
	}
	if l := a.listener; l != nil {
		g.Go(func() error {
			if err := l.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		})
	}
	if a.Orchestrator() != nil {
		g.Go(func() error { return a.keyLoop(ctx) })
	}

	slog.Info("app running")
	return g.Wait()
}

// serve runs one HTTP server and shuts it down when ctx is cancelled.
func (a *App) serve(ctx context.Context, srv *http.Server, name string, tls *config.TLSConfig) error {
	errCh := make(chan error, 1)
	go func() {
		slog.Info(name+" listening", "addr", srv.Addr)
		if tls != nil {
			errCh <- srv.ListenAndServeTLS(tls.CertFile, tls.KeyFile)
		} else {
			errCh <- srv.ListenAndServe()
		}
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("app: %s: %w", name, err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Warn(name+" shutdown error", "err", err)
		}
		<-errCh
		return nil
	}
}

// keyLoop reads key names line by line and dispatches them as session
// actions. Unbound keys are ignored; dispatch errors are logged and do not
// end the session. The reader goroutine cannot be interrupted mid-read, so
// cancellation is handled on this side and a final line may go unread.
func (a *App) keyLoop(ctx context.Context) error {
	orch := a.Orchestrator()
	nav := session.NewNavigator(len(a.segments), a.cfg.Session.TranscriptLinesOrDefault())
	a.renderTranscript(orch, nav)

	lines := make(chan string)
	readErr := make(chan error, 1)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(a.keyInput)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
		readErr <- scanner.Err()
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case line, ok := <-lines:
			if !ok {
				select {
				case err := <-readErr:
					return err
				default:
					return nil
				}
			}
			key := strings.TrimSpace(line)
			if key == "" {
				continue
			}
			action, ok := a.keymap.Resolve(key, false)
			if !ok {
				slog.Debug("unbound key ignored", "key", key)
				continue
			}
			if err := orch.Dispatch(ctx, action); err != nil {
				slog.Warn("action failed", "action", action, "err", err)
				continue
			}
			a.renderTranscript(orch, nav)
		}
	}
}

// renderTranscript draws the visible slice of the lesson transcript with the
// active segment marked. The navigator scrolls only when the active segment
// leaves the window.
func (a *App) renderTranscript(orch *session.Orchestrator, nav *session.Navigator) {
	if a.transcriptOut == nil {
		return
	}
	active := orch.ActiveIndex()
	nav.Follow(active)
	start, end := nav.Window()

	var b strings.Builder
	for i := start; i < end; i++ {
		marker := "  "
		if i == active {
			marker = "> "
		}
		b.WriteString(marker)
		b.WriteString(a.segments[i].Text)
		b.WriteByte('\n')
	}
	if _, err := io.WriteString(a.transcriptOut, b.String()); err != nil {
		slog.Warn("transcript write failed", "err", err)
	}
}

// Shutdown tears everything down. Safe to call multiple times.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		slog.Info("shutting down", "closers", len(a.closers))

		// Close the session first; it releases the microphone and pauses
		// playback before the device closers run.
		if orch := a.Orchestrator(); orch != nil {
			orch.Close()
			a.metrics.ActiveSessions.Add(ctx, -1)
		}

		// Run closers in order.
		for i, closer := range a.closers {
			select {
			case <-ctx.Done():
				slog.Warn("shutdown deadline exceeded", "remaining", len(a.closers)-i)
				shutdownErr = ctx.Err()
				return
			default:
			}
			if err := closer(); err != nil {
				slog.Warn("closer error", "index", i, "err", err)
			}
		}

		slog.Info("shutdown complete")
	})
	return shutdownErr
}

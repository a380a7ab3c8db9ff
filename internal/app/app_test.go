package app_test

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/mtoso/shadowline/internal/app"
	"github.com/mtoso/shadowline/internal/config"
	"github.com/mtoso/shadowline/internal/lessonstore"
	capturemock "github.com/mtoso/shadowline/pkg/capture/mock"
	"github.com/mtoso/shadowline/pkg/lesson"
	"github.com/mtoso/shadowline/pkg/playback"
	"github.com/mtoso/shadowline/pkg/playback/fileaudio"
	playbackmock "github.com/mtoso/shadowline/pkg/playback/mock"
	recognizemock "github.com/mtoso/shadowline/pkg/recognize/mock"
	"github.com/mtoso/shadowline/pkg/scoring"
)

// stubSource serves a fixed lesson set from memory.
type stubSource struct {
	lessons map[string]*lesson.Lesson
}

func (s *stubSource) Lesson(_ context.Context, id string) (*lesson.Lesson, error) {
	l, ok := s.lessons[id]
	if !ok {
		return nil, lessonstore.ErrNotFound
	}
	return l, nil
}

func (s *stubSource) List(_ context.Context) ([]lessonstore.Summary, error) {
	out := make([]lessonstore.Summary, 0, len(s.lessons))
	for _, l := range s.lessons {
		out = append(out, lessonstore.Summary{ID: l.ID, Title: l.Title, SegmentCount: len(l.Segments)})
	}
	return out, nil
}

// stubScorer returns a fixed passing result.
type stubScorer struct {
	mu    sync.Mutex
	calls int
}

func (s *stubScorer) Score(_ context.Context, req scoring.Request) (scoring.Result, error) {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()
	return scoring.Result{
		Comparison: scoring.ComparisonResult{
			TotalWords:             len(req.Words),
			CorrectWords:           len(req.Words),
			RawAccuracy:            100,
			WeightedAccuracy:       100,
			LastRecognizedPosition: len(req.Words) - 1,
		},
		TranscriptionID: "t-1",
	}, nil
}

func testLesson() *lesson.Lesson {
	l := &lesson.Lesson{
		ID:          "intro",
		Title:       "Intro",
		SourceType:  lesson.SourceFileAudio,
		MediaSource: "intro.wav",
		Segments: []lesson.Segment{
			{ID: "seg-one", OrderIndex: 0, Text: "hello", StartMS: 0, EndMS: 2000,
				Words: []lesson.Word{{ID: "w-1", OrderIndex: 0, Text: "hello"}}},
			{ID: "seg-two", OrderIndex: 1, Text: "world", StartMS: 2000, EndMS: 4000,
				Words: []lesson.Word{{ID: "w-2", OrderIndex: 0, Text: "world"}}},
		},
	}
	lesson.FillDerived(l)
	return l
}

func sessionConfig() *config.Config {
	cfg := &config.Config{}
	cfg.Lessons.Source = config.LessonSourceFile
	cfg.Lessons.Dir = "ignored"
	cfg.Lessons.LessonID = "intro"
	cfg.Scoring.BaseURL = "http://127.0.0.1:1" // replaced by the injected scorer
	return cfg
}

type fixture struct {
	app     *app.App
	element *playbackmock.Element
	scorer  *stubScorer
}

func newFixture(t *testing.T, cfg *config.Config, extra ...app.Option) *fixture {
	t.Helper()

	gate := &playback.Gate{}
	el := playbackmock.NewElement()
	backend := fileaudio.New(el, gate)
	scorer := &stubScorer{}

	opts := append([]app.Option{
		app.WithLessonSource(&stubSource{lessons: map[string]*lesson.Lesson{"intro": testLesson()}}),
		app.WithCaptureProvider(capturemock.NewProvider()),
		app.WithPlaybackBackend(backend),
		app.WithGate(gate),
		app.WithScoringClient(scorer),
		app.WithTranscriptOutput(io.Discard),
	}, extra...)

	application, err := app.New(context.Background(), cfg, opts...)
	if err != nil {
		t.Fatalf("app.New: %v", err)
	}
	t.Cleanup(func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = application.Shutdown(shutdownCtx)
	})

	return &fixture{app: application, element: el, scorer: scorer}
}

func TestNew_NoLessonMeansNoSession(t *testing.T) {
	t.Parallel()

	cfg := &config.Config{}
	application, err := app.New(context.Background(), cfg)
	if err != nil {
		t.Fatalf("app.New: %v", err)
	}
	if application.Orchestrator() != nil {
		t.Error("orchestrator should be nil without a configured lesson")
	}
	if err := application.Shutdown(context.Background()); err != nil {
		t.Errorf("Shutdown: %v", err)
	}
}

func TestNew_UnknownLessonFails(t *testing.T) {
	t.Parallel()

	cfg := sessionConfig()
	cfg.Lessons.LessonID = "missing"

	_, err := app.New(context.Background(), cfg,
		app.WithLessonSource(&stubSource{lessons: map[string]*lesson.Lesson{}}),
		app.WithCaptureProvider(capturemock.NewProvider()),
		app.WithScoringClient(&stubScorer{}),
	)
	if err == nil {
		t.Fatal("expected error for unknown lesson, got nil")
	}
	if !errors.Is(err, lessonstore.ErrNotFound) {
		t.Errorf("error = %v, want wrapped ErrNotFound", err)
	}
}

func TestNew_BuildsSessionFromInjectedParts(t *testing.T) {
	t.Parallel()

	f := newFixture(t, sessionConfig())

	orch := f.app.Orchestrator()
	if orch == nil {
		t.Fatal("orchestrator is nil")
	}
	if got := orch.ActiveSegment().ID; got != "seg-one" {
		t.Errorf("active segment = %q, want seg-one", got)
	}
}

func TestRun_KeyInputDrivesSession(t *testing.T) {
	t.Parallel()

	cfg := sessionConfig()
	keys := strings.NewReader("space\nn\nunbound-key\n")
	f := newFixture(t, cfg, app.WithKeyInput(keys))

	// With no servers configured, Run returns when the key input hits EOF.
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := f.app.Run(ctx); err != nil {
		t.Fatalf("Run: %v", err)
	}

	orch := f.app.Orchestrator()
	if got := orch.ActiveSegment().ID; got != "seg-two" {
		t.Errorf("active segment after next = %q, want seg-two", got)
	}
	// The toggle-play action marked the gate, so the element really played.
	if !f.element.Playing() {
		t.Error("element is not playing after toggle-play and segment change")
	}
}

func TestRun_TranscriptWindowFollowsActiveSegment(t *testing.T) {
	t.Parallel()

	cfg := sessionConfig()
	var out bytes.Buffer
	keys := strings.NewReader("n\n")
	f := newFixture(t, cfg, app.WithKeyInput(keys), app.WithTranscriptOutput(&out))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := f.app.Run(ctx); err != nil {
		t.Fatalf("Run: %v", err)
	}

	got := out.String()
	if !strings.Contains(got, "> hello") {
		t.Errorf("initial draw missing active first segment:\n%s", got)
	}
	if !strings.HasSuffix(got, "  hello\n> world\n") {
		t.Errorf("final draw does not mark the second segment:\n%s", got)
	}
}

func TestRun_ScoringServiceLifecycle(t *testing.T) {
	t.Parallel()

	cfg := &config.Config{}
	cfg.Server.ListenAddr = "127.0.0.1:0"
	cfg.Recognizer.Mode = config.RecognizerRemote
	cfg.Recognizer.URL = "http://127.0.0.1:1"

	application, err := app.New(context.Background(), cfg,
		app.WithRecognizer(&recognizemock.Recognizer{Text: "hi"}),
	)
	if err != nil {
		t.Fatalf("app.New: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- application.Run(ctx) }()

	// Give the server a moment to start, then stop it.
	time.Sleep(100 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil && !errors.Is(err, context.Canceled) {
			t.Fatalf("Run: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancellation")
	}

	if err := application.Shutdown(context.Background()); err != nil {
		t.Errorf("Shutdown: %v", err)
	}
}

func TestShutdown_Idempotent(t *testing.T) {
	t.Parallel()

	f := newFixture(t, sessionConfig())
	for range 3 {
		if err := f.app.Shutdown(context.Background()); err != nil {
			t.Fatalf("Shutdown: %v", err)
		}
	}
}

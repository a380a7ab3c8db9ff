package embedvideo_test

import (
	"testing"
	"time"

	"github.com/mtoso/shadowline/pkg/lesson"
	"github.com/mtoso/shadowline/pkg/playback"
	"github.com/mtoso/shadowline/pkg/playback/embedvideo"
	"github.com/mtoso/shadowline/pkg/playback/mock"
)

const testPoll = 5 * time.Millisecond

func openGate() *playback.Gate {
	g := &playback.Gate{}
	g.Interact()
	return g
}

func newBackend(t *testing.T, p *mock.VideoPlayer) *embedvideo.Backend {
	t.Helper()
	b, err := embedvideo.New(p, openGate(), "https://youtu.be/dQw4w9WgXcQ",
		embedvideo.WithPollInterval(testPoll))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(b.Close)
	return b
}

// waitFor polls cond until it holds or the deadline passes.
func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestExtractVideoID(t *testing.T) {
	t.Parallel()

	cases := []struct {
		url  string
		want string
	}{
		{"https://youtu.be/dQw4w9WgXcQ", "dQw4w9WgXcQ"},
		{"https://youtu.be/abc123?t=42", "abc123"},
		{"https://www.youtube.com/watch?v=dQw4w9WgXcQ", "dQw4w9WgXcQ"},
		{"https://www.youtube.com/watch?v=xyz&list=PL99", "xyz"},
		{"https://www.youtube.com/embed/embedded1", "embedded1"},
	}
	for _, tc := range cases {
		got, err := embedvideo.ExtractVideoID(tc.url)
		if err != nil {
			t.Errorf("ExtractVideoID(%q): %v", tc.url, err)
			continue
		}
		if got != tc.want {
			t.Errorf("ExtractVideoID(%q) = %q, want %q", tc.url, got, tc.want)
		}
	}
}

func TestExtractVideoID_Invalid(t *testing.T) {
	t.Parallel()

	for _, u := range []string{"", "https://youtu.be/", "https://example.com/clip"} {
		if id, err := embedvideo.ExtractVideoID(u); err == nil {
			t.Errorf("ExtractVideoID(%q) = %q, want error", u, id)
		}
	}
}

func TestNew_CuesExtractedVideo(t *testing.T) {
	t.Parallel()

	p := mock.NewVideoPlayer()
	newBackend(t, p)

	if len(p.LoadCalls) != 1 || p.LoadCalls[0] != "dQw4w9WgXcQ" {
		t.Errorf("LoadCalls = %v, want [dQw4w9WgXcQ]", p.LoadCalls)
	}
}

func TestSeekToSegmentAndPlay_PlaysAtStart(t *testing.T) {
	t.Parallel()

	p := mock.NewVideoPlayer()
	b := newBackend(t, p)

	b.SeekToSegmentAndPlay(lesson.Segment{ID: "s1", StartMS: 2500, EndMS: 4000})

	if len(p.PlayAtSec) != 1 || p.PlayAtSec[0] != 2.5 {
		t.Fatalf("PlayAtSec = %v, want [2.5]", p.PlayAtSec)
	}
	if !b.Playing() {
		t.Error("Playing() = false after seek-and-play")
	}
}

func TestAutoStop_PollPausesAtSegmentEnd(t *testing.T) {
	t.Parallel()

	p := mock.NewVideoPlayer()
	b := newBackend(t, p)

	b.SeekToSegmentAndPlay(lesson.Segment{ID: "s1", StartMS: 0, EndMS: 1000})
	p.SetTime(1.0)

	waitFor(t, "auto-stop pause", func() bool { return !b.Playing() })
	if p.PauseCalls == 0 {
		t.Error("player Pause was never called")
	}
}

func TestAutoStopDisabled_PollNeverPauses(t *testing.T) {
	t.Parallel()

	p := mock.NewVideoPlayer()
	b, err := embedvideo.New(p, openGate(), "https://www.youtube.com/watch?v=abc",
		embedvideo.WithPollInterval(testPoll), embedvideo.WithAutoStop(false))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer b.Close()

	b.SeekToSegmentAndPlay(lesson.Segment{ID: "s1", StartMS: 0, EndMS: 1000})
	p.SetTime(5.0)

	time.Sleep(20 * testPoll)
	if !b.Playing() {
		t.Error("paused past the end boundary with auto-stop off")
	}
}

func TestPause_TearsDownPollLoop(t *testing.T) {
	t.Parallel()

	p := mock.NewVideoPlayer()
	b := newBackend(t, p)

	b.SeekToSegmentAndPlay(lesson.Segment{ID: "s1", StartMS: 0, EndMS: 1000})
	b.Pause()
	pauses := p.PauseCalls

	// A position past the boundary after Pause must not produce another
	// pause from a surviving poll loop.
	p.SetTime(9.0)
	time.Sleep(20 * testPoll)

	if p.PauseCalls != pauses {
		t.Errorf("PauseCalls grew after Pause: %d, want %d", p.PauseCalls, pauses)
	}
}

func TestFailedEmbed_CallsAreNoOps(t *testing.T) {
	t.Parallel()

	p := mock.NewFailedVideoPlayer()
	b := newBackend(t, p)

	b.SeekToSegmentAndPlay(lesson.Segment{ID: "s1", StartMS: 0, EndMS: 1000})
	b.Resume()

	if len(p.PlayAtSec) != 0 || p.PlayCalls != 0 {
		t.Error("playback calls reached a failed embed")
	}
	if _, ok := b.CurrentTimeMS(); ok {
		t.Error("CurrentTimeMS ok = true on failed embed, want false")
	}
}

func TestSegmentChange_ReplacesPollLoop(t *testing.T) {
	t.Parallel()

	p := mock.NewVideoPlayer()
	b := newBackend(t, p)

	b.SeekToSegmentAndPlay(lesson.Segment{ID: "s1", StartMS: 0, EndMS: 1000})
	b.SeekToSegmentAndPlay(lesson.Segment{ID: "s2", StartMS: 1000, EndMS: 2500})

	// Position past s1's end but inside s2's window: only the s2 loop may
	// decide, and it must not pause.
	p.SetTime(1.2)
	time.Sleep(20 * testPoll)
	if !b.Playing() {
		t.Fatal("stale poll loop paused playback inside the new segment window")
	}

	p.SetTime(2.5)
	waitFor(t, "pause at new segment end", func() bool { return !b.Playing() })
}

// Package embedvideo implements the playback.Backend capability set over a
// third-party embeddable video player.
//
// Embedded players expose no sub-second time-update events, so auto-stop is
// re-derived from a poll loop: while playing with auto-stop enabled, the
// backend samples the player position on a short interval (≤ 200 ms, so stop
// overshoot stays imperceptible) and pauses the moment the segment clock
// reports the end boundary. The poll loop is always torn down in the same
// call that pauses (on Pause, segment change, and Close) so no orphaned
// timers survive.
package embedvideo

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/mtoso/shadowline/pkg/lesson"
	"github.com/mtoso/shadowline/pkg/playback"
)

const (
	// defaultPollInterval keeps stop overshoot well under perception.
	defaultPollInterval = 150 * time.Millisecond

	// maxPollInterval is the contract ceiling for the auto-stop poll.
	maxPollInterval = 200 * time.Millisecond
)

// Player is the embedded third-party video player this backend drives.
// It offers only coarse, pull-based position reporting.
//
// Implementations must be safe for concurrent use.
type Player interface {
	// Ready reports whether the embed loaded successfully.
	Ready() bool

	// Load cues the video identified by its canonical ID.
	Load(videoID string)

	// PlayAt seeks to an absolute position in seconds and starts playback.
	PlayAt(sec float64)

	Play()
	Pause()

	// CurrentTimeSec reports the playhead position. Errors mean the player
	// cannot report a position right now; callers treat that as "no data",
	// never as fatal.
	CurrentTimeSec() (float64, error)
}

// Compile-time assertion that Backend implements playback.Backend.
var _ playback.Backend = (*Backend)(nil)

// Option is a functional option for configuring a Backend.
type Option func(*Backend)

// WithAutoStop enables or disables pausing at segment end boundaries.
// Default: enabled.
func WithAutoStop(enabled bool) Option {
	return func(b *Backend) { b.autoStop = enabled }
}

// WithPollInterval sets the auto-stop poll interval. Values above 200 ms or
// not positive are clamped into range.
func WithPollInterval(d time.Duration) Option {
	return func(b *Backend) {
		if d <= 0 {
			d = defaultPollInterval
		}
		if d > maxPollInterval {
			d = maxPollInterval
		}
		b.pollInterval = d
	}
}

// Backend drives a [Player] through the uniform playback contract.
// All methods are safe for concurrent use.
type Backend struct {
	player       Player
	gate         *playback.Gate
	pollInterval time.Duration

	mu       sync.Mutex
	autoStop bool
	seg      lesson.Segment
	hasSeg   bool
	playing  bool
	closed   bool
	stopPoll chan struct{}
}

// New creates a Backend over player and cues the video extracted from
// sourceURL. Returns an error only when the source URL carries no
// recognisable video ID; player readiness is a runtime state, not a
// constructor failure.
func New(player Player, gate *playback.Gate, sourceURL string, opts ...Option) (*Backend, error) {
	videoID, err := ExtractVideoID(sourceURL)
	if err != nil {
		return nil, fmt.Errorf("embedvideo: %w", err)
	}

	b := &Backend{
		player:       player,
		gate:         gate,
		pollInterval: defaultPollInterval,
		autoStop:     true,
	}
	for _, o := range opts {
		o(b)
	}

	player.Load(videoID)
	return b, nil
}

// ExtractVideoID derives the canonical video identifier from a source URL.
// Two URL shapes are supported: the short-link form
// (https://youtu.be/<id>) and the query-parameter form
// (https://www.youtube.com/watch?v=<id>). Embed paths (/embed/<id>) are
// accepted as well.
func ExtractVideoID(sourceURL string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(sourceURL))
	if err != nil {
		return "", fmt.Errorf("parse source url: %w", err)
	}

	// Short-link form: the ID is the whole path.
	if strings.EqualFold(u.Host, "youtu.be") {
		id := strings.Trim(u.Path, "/")
		if id == "" {
			return "", errors.New("short-link url has empty video id")
		}
		return id, nil
	}

	// Query-parameter form.
	if id := u.Query().Get("v"); id != "" {
		return id, nil
	}

	// Embed path form.
	if rest, ok := strings.CutPrefix(strings.Trim(u.Path, "/"), "embed/"); ok && rest != "" {
		return rest, nil
	}

	return "", fmt.Errorf("no video id in source url %q", sourceURL)
}

// SeekToSegmentAndPlay seeks the embedded player to the segment start and
// begins playback, arming the auto-stop poll loop. Gated on the first user
// interaction; a no-op when the embed failed to load.
func (b *Backend) SeekToSegmentAndPlay(seg lesson.Segment) {
	b.gate.Run(func() { b.playSegment(seg) })
}

func (b *Backend) playSegment(seg lesson.Segment) {
	b.mu.Lock()
	if b.closed || !b.player.Ready() {
		b.mu.Unlock()
		slog.Debug("embedvideo: ignoring play, embed not ready", "segment_id", seg.ID)
		return
	}
	b.stopPollLocked()
	b.seg = seg
	b.hasSeg = true
	b.playing = true
	b.startPollLocked()
	b.mu.Unlock()

	b.player.PlayAt(seg.StartMS / 1000)
}

// Resume continues playback from the current position without seeking and
// re-arms the poll loop for the current segment.
func (b *Backend) Resume() {
	b.gate.Run(func() {
		b.mu.Lock()
		if b.closed || !b.player.Ready() {
			b.mu.Unlock()
			return
		}
		b.stopPollLocked()
		b.playing = true
		b.startPollLocked()
		b.mu.Unlock()

		b.player.Play()
	})
}

// Pause pauses the player and tears down the poll loop within the same call.
func (b *Backend) Pause() {
	b.mu.Lock()
	b.playing = false
	b.stopPollLocked()
	b.mu.Unlock()

	b.player.Pause()
}

// CurrentTimeMS reports the playhead position in milliseconds.
func (b *Backend) CurrentTimeMS() (float64, bool) {
	sec, err := b.player.CurrentTimeSec()
	if err != nil {
		return 0, false
	}
	return sec * 1000, true
}

// Playing reports whether the backend believes the player is playing.
func (b *Backend) Playing() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.playing
}

// Close pauses the player and tears down the poll loop. Safe to call
// repeatedly.
func (b *Backend) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	b.playing = false
	b.stopPollLocked()
	b.mu.Unlock()

	b.player.Pause()
}

// startPollLocked launches the auto-stop poll goroutine. Caller holds b.mu.
func (b *Backend) startPollLocked() {
	stop := make(chan struct{})
	b.stopPoll = stop

	go func() {
		ticker := time.NewTicker(b.pollInterval)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				b.pollOnce(stop)
			}
		}
	}()
}

// stopPollLocked tears down the active poll loop, if any. Caller holds b.mu.
func (b *Backend) stopPollLocked() {
	if b.stopPoll != nil {
		close(b.stopPoll)
		b.stopPoll = nil
	}
}

// pollOnce samples the player position and pauses when the segment clock
// says so. stop identifies the poll generation that invoked it, so a
// decision from a stale loop is discarded.
func (b *Backend) pollOnce(stop chan struct{}) {
	sec, err := b.player.CurrentTimeSec()
	if err != nil {
		return
	}

	b.mu.Lock()
	if b.stopPoll != stop || !b.playing || !b.hasSeg {
		b.mu.Unlock()
		return
	}
	seg := b.seg
	autoStop := b.autoStop
	b.mu.Unlock()

	if playback.ShouldStop(seg, sec*1000, autoStop) {
		b.Pause()
	}
}

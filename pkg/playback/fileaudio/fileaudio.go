// Package fileaudio implements the playback.Backend capability set over a
// single continuous audio stream. Segment boundaries are plain offsets
// within that one stream, and the element's own time-update events drive
// auto-stop, so no polling is needed for this variant.
package fileaudio

import (
	"log/slog"
	"sync"

	"github.com/mtoso/shadowline/pkg/lesson"
	"github.com/mtoso/shadowline/pkg/playback"
)

// Element is the physical audio device this backend drives. Implementations
// wrap whatever actually produces sound (a decoder + output stream, or a
// test fake); the backend only relies on this narrow surface.
//
// Implementations must be safe for concurrent use. Time-update callbacks
// must be dispatched without internal locks held, because the backend may
// call Pause from inside the callback.
type Element interface {
	// Ready reports whether the media loaded successfully. A false value
	// makes every playback call on the backend a silent no-op.
	Ready() bool

	Play()
	Pause()

	// SeekSec moves the playhead to an absolute position in seconds.
	SeekSec(pos float64)

	// CurrentTimeSec reports the playhead position. ok is false when the
	// media is not ready.
	CurrentTimeSec() (sec float64, ok bool)

	// OnTimeUpdate registers cb as the single time-update callback,
	// replacing any previous registration. A nil cb detaches.
	OnTimeUpdate(cb func(sec float64))
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

// Backend drives an [Element] through the uniform playback contract.
// All methods are safe for concurrent use.
type Backend struct {
	el   Element
	gate *playback.Gate

	mu       sync.Mutex
	autoStop bool
	seg      lesson.Segment
	hasSeg   bool
	playing  bool
	closed   bool
}

// New creates a Backend over el. Playback calls made before the first
// interaction on gate are recorded as pending there.
func New(el Element, gate *playback.Gate, opts ...Option) *Backend {
	b := &Backend{el: el, gate: gate, autoStop: true}
	for _, o := range opts {
		o(b)
	}
	return b
}

// SeekToSegmentAndPlay moves the playhead to the segment start and begins
// playback. Before the first user interaction the request is stored on the
// gate instead; if the media failed to load the call is a no-op.
func (b *Backend) SeekToSegmentAndPlay(seg lesson.Segment) {
	b.gate.Run(func() { b.playSegment(seg) })
}

func (b *Backend) playSegment(seg lesson.Segment) {
	b.mu.Lock()
	if b.closed || !b.el.Ready() {
		b.mu.Unlock()
		slog.Debug("fileaudio: ignoring play, media not ready", "segment_id", seg.ID)
		return
	}
	b.seg = seg
	b.hasSeg = true
	b.playing = true
	b.mu.Unlock()

	b.el.SeekSec(seg.StartMS / 1000)
	b.el.OnTimeUpdate(b.onTimeUpdate)
	b.el.Play()
}

// Resume continues playback from the current position without seeking.
// Auto-stop monitoring for the current segment is re-armed.
func (b *Backend) Resume() {
	b.gate.Run(func() {
		b.mu.Lock()
		if b.closed || !b.el.Ready() {
			b.mu.Unlock()
			return
		}
		b.playing = true
		b.mu.Unlock()

		b.el.OnTimeUpdate(b.onTimeUpdate)
		b.el.Play()
	})
}

// Pause pauses playback and detaches the time-update subscription so no
// auto-stop decision can fire afterwards.
func (b *Backend) Pause() {
	b.mu.Lock()
	b.playing = false
	b.mu.Unlock()

	b.el.OnTimeUpdate(nil)
	b.el.Pause()
}

// CurrentTimeMS reports the playhead position in milliseconds.
func (b *Backend) CurrentTimeMS() (float64, bool) {
	sec, ok := b.el.CurrentTimeSec()
	if !ok {
		return 0, false
	}
	return sec * 1000, true
}

// Playing reports whether the backend believes the device is playing.
func (b *Backend) Playing() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.playing
}

// Close detaches from the element and pauses it. Safe to call repeatedly.
func (b *Backend) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	b.playing = false
	b.mu.Unlock()

	b.el.OnTimeUpdate(nil)
	b.el.Pause()
}

// onTimeUpdate is the element's time-update callback. It pauses the moment
// the segment clock reports the end boundary was reached.
func (b *Backend) onTimeUpdate(sec float64) {
	b.mu.Lock()
	if !b.playing || !b.hasSeg {
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

// Package playback defines the segment-synchronized media playback
// abstraction for shadowing sessions.
//
// The central abstraction is [Backend]: one uniform imperative contract,
// seek-to-segment-and-play, resume, pause, implemented by two concrete
// variants over physically different devices:
//
//   - playback/fileaudio: a single continuous audio stream with
//     event-driven time updates.
//   - playback/embedvideo: a third-party embeddable video player that only
//     supports coarse polling.
//
// The variant is selected exactly once per lesson from the lesson's declared
// source type and never mixed within one session. Playback calls never
// return errors to the caller; load failure makes them no-ops and is exposed
// through backend state instead.
package playback

import (
	"math"
	"sync"

	"github.com/mtoso/shadowline/pkg/lesson"
)

// Backend is the capability set every playback variant must implement.
//
// Implementations must be safe for concurrent use. None of the methods
// block, and none of them report errors; a backend whose underlying media
// failed to load silently ignores playback calls.
type Backend interface {
	// SeekToSegmentAndPlay moves the playback position to the segment's
	// start and begins playback, bounded by the segment's end when
	// auto-stop is enabled. Before the first user interaction the call is
	// recorded as pending on the backend's [Gate] and does nothing.
	SeekToSegmentAndPlay(seg lesson.Segment)

	// Resume continues playback from the current position without seeking.
	// Same interaction precondition as SeekToSegmentAndPlay.
	Resume()

	// Pause pauses playback and cancels any auto-stop monitoring.
	Pause()

	// CurrentTimeMS reports the playback position in milliseconds.
	// ok is false when the device cannot report a position (not ready,
	// load failure).
	CurrentTimeMS() (ms float64, ok bool)

	// Playing reports whether the device is currently playing.
	Playing() bool

	// Close releases the backend: stops playback, tears down any auto-stop
	// poll timers, and detaches from the device. Safe to call more than
	// once.
	Close()
}

// ShouldStop reports whether playback of seg must be paused given the
// current position. It is true iff auto-stop is enabled and currentMS has
// reached the segment's end boundary (the window is half-open, so the end
// itself stops). Negative or NaN positions never stop.
func ShouldStop(seg lesson.Segment, currentMS float64, autoStop bool) bool {
	if !autoStop {
		return false
	}
	if math.IsNaN(currentMS) || currentMS < 0 {
		return false
	}
	return currentMS >= seg.EndMS
}

// ProgressPercent returns the lesson progress after finishing the segment at
// activeIndex, as a rounded percentage. Returns 0 when total is not positive.
func ProgressPercent(activeIndex, total int) int {
	if total <= 0 {
		return 0
	}
	return int(math.Round(float64(activeIndex+1) / float64(total) * 100))
}

// Gate models the one-time user-interaction requirement imposed on
// autoplay. Playback actions requested before the first interaction are
// stored (at most one, latest wins) and flushed when Interact is called.
//
// The gate is owned by the session state, not by package-level globals, so
// tests and concurrent sessions stay isolated. Safe for concurrent use.
type Gate struct {
	mu       sync.Mutex
	occurred bool
	pending  func()
}

// Occurred reports whether the first user interaction has happened.
func (g *Gate) Occurred() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.occurred
}

// Run executes f immediately when the interaction has already occurred.
// Otherwise f replaces any previously pending action and runs on the next
// Interact call.
func (g *Gate) Run(f func()) {
	g.mu.Lock()
	if !g.occurred {
		g.pending = f
		g.mu.Unlock()
		return
	}
	g.mu.Unlock()
	f()
}

// Interact marks the first user interaction and runs the pending action, if
// any. Subsequent calls are cheap no-ops.
func (g *Gate) Interact() {
	g.mu.Lock()
	if g.occurred {
		g.mu.Unlock()
		return
	}
	g.occurred = true
	pending := g.pending
	g.pending = nil
	g.mu.Unlock()

	if pending != nil {
		pending()
	}
}

// HasPending reports whether an action is waiting on the first interaction.
// The UI uses this to decide whether to show the one-time "start" affordance.
func (g *Gate) HasPending() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.pending != nil
}

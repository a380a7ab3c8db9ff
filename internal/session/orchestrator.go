// Package session coordinates one shadowing practice session: which segment
// is active, how playback and recording interact, and when the learner
// advances through the lesson.
package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/mtoso/shadowline/internal/recording"
	"github.com/mtoso/shadowline/internal/review"
	"github.com/mtoso/shadowline/pkg/lesson"
	"github.com/mtoso/shadowline/pkg/playback"
	"github.com/mtoso/shadowline/pkg/scoring"
)

// Config holds the collaborators for an [Orchestrator]. All fields except
// the two policy flags are required.
type Config struct {
	Lesson   *lesson.Lesson
	Playback playback.Backend
	Recorder *recording.Session
	Renderer *review.Renderer

	// Gate is the shared autoplay gate. The orchestrator marks it on every
	// learner action; the playback backend consults it before playing.
	Gate *playback.Gate

	// AutoAdvance moves to the next segment automatically when an attempt
	// clears the accuracy threshold.
	AutoAdvance bool

	// AutoPlayNext plays a segment the moment it becomes active. When
	// disabled, segment changes land silently and only the explicit replay
	// command plays audio. The gate still applies either way.
	AutoPlayNext bool
}

// Orchestrator drives a session over one lesson. Exactly one segment is
// active at a time; switching segments resets the recording attempt and the
// rendered comparison before the new segment plays.
//
// All exported methods are safe for concurrent use.
type Orchestrator struct {
	lesson   *lesson.Lesson
	backend  playback.Backend
	recorder *recording.Session
	renderer *review.Renderer
	gate     *playback.Gate

	autoAdvance  bool
	autoPlayNext bool

	mu          sync.Mutex
	activeIndex int
	lastView    *review.View
	closed      bool
}

// New creates an Orchestrator positioned on the lesson's first segment.
// The first segment does not play until the learner acts; the initial seek
// is left pending on the gate.
func New(cfg Config) (*Orchestrator, error) {
	if cfg.Lesson == nil || len(cfg.Lesson.Segments) == 0 {
		return nil, fmt.Errorf("session: lesson has no segments")
	}
	if cfg.Playback == nil || cfg.Recorder == nil || cfg.Renderer == nil || cfg.Gate == nil {
		return nil, fmt.Errorf("session: missing collaborator")
	}

	o := &Orchestrator{
		lesson:       cfg.Lesson,
		backend:      cfg.Playback,
		recorder:     cfg.Recorder,
		renderer:     cfg.Renderer,
		gate:         cfg.Gate,
		autoAdvance:  cfg.AutoAdvance,
		autoPlayNext: cfg.AutoPlayNext,
	}
	o.setActiveLocked(0)
	return o, nil
}

// SelectSegment makes the segment at index i active and plays it.
func (o *Orchestrator) SelectSegment(i int) error {
	o.gate.Interact()
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.closed {
		return fmt.Errorf("session: closed")
	}
	if i < 0 || i >= len(o.lesson.Segments) {
		return fmt.Errorf("session: segment index %d out of range [0, %d)", i, len(o.lesson.Segments))
	}
	o.setActiveLocked(i)
	return nil
}

// Next advances to the following segment. At the last segment it is a
// no-op; the session never wraps.
func (o *Orchestrator) Next() {
	o.gate.Interact()
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed || o.activeIndex+1 >= len(o.lesson.Segments) {
		return
	}
	o.setActiveLocked(o.activeIndex + 1)
}

// Prev moves to the preceding segment. At the first segment it is a no-op.
func (o *Orchestrator) Prev() {
	o.gate.Interact()
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed || o.activeIndex == 0 {
		return
	}
	o.setActiveLocked(o.activeIndex - 1)
}

// Replay seeks back to the active segment's start and plays it again. The
// attempt state is untouched; replaying is part of practicing, not a reset.
func (o *Orchestrator) Replay() {
	o.gate.Interact()
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return
	}
	seg := o.lesson.Segments[o.activeIndex]
	o.backend.SeekToSegmentAndPlay(seg)
}

// TogglePlayback pauses when playing and resumes from the current position
// otherwise.
func (o *Orchestrator) TogglePlayback() {
	o.gate.Interact()
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return
	}
	if o.backend.Playing() {
		o.backend.Pause()
	} else {
		o.backend.Resume()
	}
}

// StartRecording begins a recording attempt on the active segment.
func (o *Orchestrator) StartRecording(ctx context.Context) error {
	o.gate.Interact()
	return o.recorder.Start(ctx)
}

// StopAndScore ends the recording and submits it for scoring.
func (o *Orchestrator) StopAndScore() error {
	o.gate.Interact()
	return o.recorder.StopAndSave()
}

// CancelRecording discards the in-progress recording.
func (o *Orchestrator) CancelRecording() error {
	o.gate.Interact()
	return o.recorder.Cancel()
}

// HandleResult renders a scoring result for the segment it originated from
// and applies the auto-advance policy. Wire it as the recorder's result
// callback.
//
// The originating segment is re-checked against the active one under the
// session lock: the recorder's own staleness check runs before this
// callback, and the learner can navigate in between. A result whose segment
// is no longer active is dropped without rendering, so no view is stored
// and no cue plays for it.
func (o *Orchestrator) HandleResult(segmentID string, res scoring.Result) {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return
	}
	if o.lesson.Segments[o.activeIndex].ID != segmentID {
		o.mu.Unlock()
		slog.Debug("session: dropped result for inactive segment", "segment_id", segmentID)
		return
	}

	view := o.renderer.Render(res)
	o.lastView = &view

	advance := o.autoAdvance && view.AdvanceOffered && o.activeIndex+1 < len(o.lesson.Segments)
	if advance {
		o.setActiveLocked(o.activeIndex + 1)
	}
	o.mu.Unlock()

	slog.Debug("attempt scored",
		"segment_id", segmentID,
		"weighted_accuracy", view.WeightedAccuracy,
		"advance_offered", view.AdvanceOffered,
		"auto_advanced", advance,
	)
}

// LastView returns the rendered comparison for the active segment's latest
// scored attempt, if any.
func (o *Orchestrator) LastView() (review.View, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.lastView == nil {
		return review.View{}, false
	}
	return *o.lastView, true
}

// ActiveIndex reports the active segment's index.
func (o *Orchestrator) ActiveIndex() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.activeIndex
}

// ActiveSegment returns the active segment.
func (o *Orchestrator) ActiveSegment() lesson.Segment {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.lesson.Segments[o.activeIndex]
}

// Progress reports lesson completion as a rounded percentage, counting the
// active segment as done.
func (o *Orchestrator) Progress() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return playback.ProgressPercent(o.activeIndex, len(o.lesson.Segments))
}

// VisibilityChanged forwards surface visibility to the recorder: going
// hidden cancels any in-progress recording. Playback is left alone.
func (o *Orchestrator) VisibilityChanged(hidden bool) {
	o.recorder.VisibilityChanged(hidden)
}

// Close ends the session: the recorder hard-stops and the playback backend
// detaches. Safe to call more than once.
func (o *Orchestrator) Close() {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return
	}
	o.closed = true
	o.mu.Unlock()

	o.recorder.Close()
	o.backend.Close()
	slog.Debug("session closed", "lesson_id", o.lesson.ID)
}

// Dispatch executes one keymap action against the session.
func (o *Orchestrator) Dispatch(ctx context.Context, action Action) error {
	switch action {
	case ActionTogglePlay:
		o.TogglePlayback()
	case ActionRecord:
		return o.StartRecording(ctx)
	case ActionStopSave:
		return o.StopAndScore()
	case ActionCancel:
		return o.CancelRecording()
	case ActionNext:
		o.Next()
	case ActionPrev:
		o.Prev()
	case ActionReplay:
		o.Replay()
	default:
		return fmt.Errorf("session: unknown action %q", action)
	}
	return nil
}

// setActiveLocked performs the per-segment reset: rebind the recorder,
// clear the rendered comparison and cue state, then seek-and-play the new
// segment when the auto-play-next policy allows it. Caller holds o.mu (or
// is the constructor).
func (o *Orchestrator) setActiveLocked(i int) {
	o.activeIndex = i
	seg := o.lesson.Segments[i]

	o.recorder.BindSegment(seg)
	o.renderer.Reset()
	o.lastView = nil
	if o.autoPlayNext {
		o.backend.SeekToSegmentAndPlay(seg)
	}
}

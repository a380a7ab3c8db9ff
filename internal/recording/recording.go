// Package recording implements the per-segment recording lifecycle: acquire
// the microphone, accumulate audio, finalize it into a playable artifact,
// and submit the artifact for scoring.
//
// A [Session] is a strict state machine. At most one capture device is held
// at a time, and the device is the first thing released on every exit path:
// stop-and-save, cancel, segment change, visibility loss, and close all
// guarantee the microphone is back with the provider before they return.
package recording

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/mtoso/shadowline/internal/observe"
	"github.com/mtoso/shadowline/pkg/audio"
	"github.com/mtoso/shadowline/pkg/capture"
	"github.com/mtoso/shadowline/pkg/lesson"
	"github.com/mtoso/shadowline/pkg/scoring"
)

// State is the recording session's lifecycle state.
type State string

const (
	// StateIdle means no recording or upload is in progress. The session
	// may hold a previous error message for display.
	StateIdle State = "IDLE"

	// StateRecording means the capture device is held and audio is
	// accumulating.
	StateRecording State = "RECORDING"

	// StateUploading means a finalized artifact has been submitted for
	// scoring and the response is pending. The microphone is already
	// released in this state.
	StateUploading State = "UPLOADING"

	// StateScored means a comparison result is available.
	StateScored State = "SCORED"

	// StateUploadFailed means the scoring submission failed. The artifact
	// is kept so the learner can still replay their attempt.
	StateUploadFailed State = "UPLOAD_FAILED"
)

// Artifact is a finalized recording: the complete clip as a WAV container,
// plus a temporary file handle for playback. Once an Artifact exists the
// session's accumulation buffer is already gone; the artifact is the only
// copy.
type Artifact struct {
	// WAV is the full clip as a WAV container.
	WAV []byte

	// DurationMS is the clip length in milliseconds.
	DurationMS int

	path string
}

// Path returns the temporary file holding the clip, or "" when the clip
// exists only in memory.
func (a *Artifact) Path() string {
	if a == nil {
		return ""
	}
	return a.path
}

// Release deletes the temporary file. Idempotent. The in-memory WAV bytes
// are untouched; Release only revokes the file handle.
func (a *Artifact) Release() {
	if a == nil || a.path == "" {
		return
	}
	if err := os.Remove(a.path); err != nil && !os.IsNotExist(err) {
		slog.Warn("recording: remove artifact file", "path", a.path, "err", err)
	}
	a.path = ""
}

// Pauser pauses lesson playback. Starting a recording always pauses
// playback first so the learner never records over the source audio.
type Pauser interface {
	Pause()
}

// Option configures a [Session].
type Option func(*Session)

// WithPlayback sets the playback backend to pause when a recording starts.
func WithPlayback(p Pauser) Option {
	return func(s *Session) { s.playback = p }
}

// WithOnResult sets a callback invoked (outside the session lock) when a
// fresh scoring result arrives, along with the id of the segment the
// attempt was recorded against. Stale results never reach the callback,
// but the callback runs after the lock is released, so consumers must
// re-check the segment id against their own state before applying the
// result.
func WithOnResult(fn func(segmentID string, res scoring.Result)) Option {
	return func(s *Session) { s.onResult = fn }
}

// WithMetrics sets the metrics instance attempt and microphone counters are
// recorded on. Default: [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(s *Session) { s.metrics = m }
}

// Session manages recording attempts against one segment at a time.
// All exported methods are safe for concurrent use.
type Session struct {
	mic    capture.Provider
	scorer scoring.Client

	playback Pauser
	onResult func(segmentID string, res scoring.Result)
	metrics  *observe.Metrics

	mu        sync.Mutex
	state     State
	segmentID string
	words     []lesson.Word

	device   capture.Device
	format   audio.Format
	buf      []byte
	pumpDone chan struct{}

	artifact *Artifact
	result   *scoring.Result
	lastErr  error

	// uploadSeq identifies the in-flight upload; a response whose sequence
	// or segment no longer matches the session is discarded unseen.
	uploadSeq uint64
}

// NewSession creates a Session in the idle state with no segment bound.
// Call [Session.BindSegment] before the first Start.
func NewSession(mic capture.Provider, scorer scoring.Client, opts ...Option) *Session {
	s := &Session{
		mic:     mic,
		scorer:  scorer,
		state:   StateIdle,
		metrics: observe.DefaultMetrics(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// BindSegment switches the session to a new segment. Any recording in
// progress is hard-stopped, the previous artifact and result are discarded,
// and the session returns to idle. An upload still in flight for the old
// segment keeps running but its response will be thrown away.
func (s *Session) BindSegment(seg lesson.Segment) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.resetLocked()
	s.segmentID = seg.ID
	s.words = seg.Words
}

// Start begins a recording attempt. Playback is paused and the previous
// attempt's artifact and result are discarded before the microphone is
// requested, so a failed acquisition still leaves the learner on a clean
// slate.
//
// Start is only legal from IDLE, SCORED, or UPLOAD_FAILED. While an upload
// is pending the session refuses to record again; while recording, a second
// Start is an error rather than a restart.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.state {
	case StateIdle, StateScored, StateUploadFailed:
	case StateRecording:
		return fmt.Errorf("recording: already recording")
	case StateUploading:
		return fmt.Errorf("recording: upload in progress, wait for the result")
	default:
		return fmt.Errorf("recording: cannot start from state %s", s.state)
	}
	if s.segmentID == "" {
		return fmt.Errorf("recording: no segment bound")
	}

	if s.playback != nil {
		s.playback.Pause()
	}
	s.discardAttemptLocked()
	s.lastErr = nil

	dev, err := s.mic.Acquire(ctx)
	if err != nil {
		s.lastErr = err
		s.state = StateIdle
		return fmt.Errorf("recording: acquire microphone: %w", err)
	}

	s.device = dev
	s.format = dev.Format()
	s.buf = nil
	s.pumpDone = make(chan struct{})
	s.state = StateRecording
	s.metrics.ActiveRecordings.Add(ctx, 1)

	go s.pump(dev, s.pumpDone)

	slog.Debug("recording started", "segment_id", s.segmentID)
	return nil
}

// pump drains the device's frame channel into the accumulation buffer.
// It exits when the device stops and closes the channel.
func (s *Session) pump(dev capture.Device, done chan struct{}) {
	defer close(done)
	for frame := range dev.Frames() {
		s.mu.Lock()
		// A hard stop clears pumpDone before waiting; frames raced in
		// after that point belong to a discarded attempt.
		if s.pumpDone == done {
			s.buf = append(s.buf, frame...)
		}
		s.mu.Unlock()
	}
}

// StopAndSave ends the recording, finalizes the buffered audio into an
// artifact, and submits it for scoring. The accumulation buffer is cleared
// in the same step that creates the artifact. Only legal while recording.
func (s *Session) StopAndSave() error {
	s.mu.Lock()
	if s.state != StateRecording {
		s.mu.Unlock()
		return fmt.Errorf("recording: nothing to save in state %s", s.state)
	}

	dev := s.device
	done := s.pumpDone
	s.mu.Unlock()

	// Stop closes the frame channel; wait for the pump to drain the tail.
	if err := dev.Stop(); err != nil {
		slog.Warn("recording: device stop error", "err", err)
	}
	<-done

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateRecording || s.pumpDone != done {
		// Reset raced in between unlock and relock; the attempt is gone.
		return fmt.Errorf("recording: attempt was discarded")
	}

	art := s.finalizeLocked()
	s.device = nil
	s.pumpDone = nil
	s.metrics.ActiveRecordings.Add(context.Background(), -1)
	s.artifact = art
	s.state = StateUploading
	s.uploadSeq++

	req := scoring.Request{
		SegmentID: s.segmentID,
		Clip:      art.WAV,
		Words:     s.words,
	}
	go s.upload(req, s.uploadSeq)

	slog.Debug("recording saved", "segment_id", s.segmentID, "duration_ms", art.DurationMS)
	return nil
}

// Cancel is a synchronous hard stop: the microphone is released, the
// buffered audio is discarded, and nothing is uploaded. By the time Cancel
// returns the device is back with the provider. Only legal while recording.
func (s *Session) Cancel() error {
	s.mu.Lock()
	if s.state != StateRecording {
		s.mu.Unlock()
		return fmt.Errorf("recording: nothing to cancel in state %s", s.state)
	}
	s.stopCaptureLocked()
	s.buf = nil
	s.state = StateIdle
	segID := s.segmentID
	s.mu.Unlock()

	s.metrics.RecordAttempt(context.Background(), "cancelled")
	slog.Debug("recording cancelled", "segment_id", segID)
	return nil
}

// VisibilityChanged tells the session the surrounding surface was hidden or
// shown. Going hidden while recording cancels the attempt: an unattended
// open microphone is worse than a lost take. All other states are
// unaffected.
func (s *Session) VisibilityChanged(hidden bool) {
	if !hidden {
		return
	}
	s.mu.Lock()
	cancelled := false
	if s.state == StateRecording {
		s.stopCaptureLocked()
		s.buf = nil
		s.state = StateIdle
		cancelled = true
		slog.Debug("recording cancelled on hide", "segment_id", s.segmentID)
	}
	s.mu.Unlock()
	if cancelled {
		s.metrics.RecordAttempt(context.Background(), "cancelled")
	}
}

// Close hard-stops any recording and releases every held resource. The
// session is unusable for the old segment afterwards but may be re-bound.
func (s *Session) Close() {
	s.mu.Lock()
	s.resetLocked()
	s.segmentID = ""
	s.words = nil
	s.mu.Unlock()
}

// State reports the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Result returns the scoring result for the current segment's latest
// attempt, if one is available.
func (s *Session) Result() (scoring.Result, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.result == nil {
		return scoring.Result{}, false
	}
	return *s.result, true
}

// Artifact returns the finalized clip of the latest attempt, or nil.
// The caller must not Release it; the session owns the handle.
func (s *Session) Artifact() *Artifact {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.artifact
}

// LastError returns the most recent start or upload error, or nil. It is
// cleared by the next successful Start.
func (s *Session) LastError() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

// upload submits one finalized attempt. The submission deliberately does
// not carry the session's lifetime context: once a clip is handed to the
// scorer it runs to completion, and staleness is resolved on the response
// side instead.
func (s *Session) upload(req scoring.Request, seq uint64) {
	res, err := s.scorer.Score(context.Background(), req)

	s.mu.Lock()
	if s.state != StateUploading || s.uploadSeq != seq || s.segmentID != req.SegmentID {
		s.mu.Unlock()
		s.metrics.StaleResults.Add(context.Background(), 1)
		slog.Debug("recording: discarded stale scoring result", "segment_id", req.SegmentID)
		return
	}

	if err != nil {
		s.lastErr = err
		s.state = StateUploadFailed
		s.mu.Unlock()
		s.metrics.RecordAttempt(context.Background(), "upload_failed")
		slog.Warn("recording: upload failed", "segment_id", req.SegmentID, "err", err)
		return
	}

	s.result = &res
	s.state = StateScored
	handler := s.onResult
	s.mu.Unlock()

	s.metrics.RecordAttempt(context.Background(), "scored")
	slog.Debug("recording scored",
		"segment_id", req.SegmentID,
		"transcription_id", res.TranscriptionID,
		"weighted_accuracy", res.Comparison.WeightedAccuracy,
	)

	if handler != nil {
		handler(req.SegmentID, res)
	}
}

// finalizeLocked converts the accumulation buffer into an Artifact and
// clears the buffer in the same step. Writing the temp file is best-effort;
// on failure the clip lives only in memory.
func (s *Session) finalizeLocked() *Artifact {
	pcm := s.buf
	s.buf = nil

	art := &Artifact{
		WAV:        audio.EncodeWAV(pcm, s.format.SampleRate, s.format.Channels),
		DurationMS: audio.DurationMS(pcm, s.format.SampleRate, s.format.Channels),
	}

	f, err := os.CreateTemp("", "shadowline-clip-*.wav")
	if err == nil {
		if _, werr := f.Write(art.WAV); werr != nil {
			err = werr
		}
		if cerr := f.Close(); err == nil {
			err = cerr
		}
		if err == nil {
			art.path = f.Name()
		} else {
			_ = os.Remove(f.Name())
		}
	}
	if err != nil {
		slog.Warn("recording: write artifact file", "err", err)
	}
	return art
}

// stopCaptureLocked releases the device synchronously and detaches the
// pump. Called with the lock held; the frame channel close lets the pump
// goroutine exit on its own.
func (s *Session) stopCaptureLocked() {
	if s.device != nil {
		if err := s.device.Stop(); err != nil {
			slog.Warn("recording: device stop error", "err", err)
		}
		s.metrics.ActiveRecordings.Add(context.Background(), -1)
	}
	s.device = nil
	s.pumpDone = nil
}

// discardAttemptLocked drops the previous attempt's artifact and result.
func (s *Session) discardAttemptLocked() {
	if s.artifact != nil {
		s.artifact.Release()
		s.artifact = nil
	}
	s.result = nil
}

// resetLocked is the hard reset shared by segment changes and Close:
// stop capture, drop the buffer, drop the attempt, clear the error, and
// return to idle. In-flight uploads are orphaned by the state change.
func (s *Session) resetLocked() {
	s.stopCaptureLocked()
	s.buf = nil
	s.discardAttemptLocked()
	s.lastErr = nil
	s.state = StateIdle
}

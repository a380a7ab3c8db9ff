// Package review turns a scored comparison into per-word display statuses
// and the gating decision that controls progression to the next segment.
package review

import (
	"context"
	"sync"

	"github.com/mtoso/shadowline/internal/observe"
	"github.com/mtoso/shadowline/pkg/scoring"
)

// AdvanceThreshold is the weighted accuracy (0-100) at or above which the
// learner may advance to the next segment.
const AdvanceThreshold = 85

// DisplayStatus is the visual treatment of one comparison entry.
type DisplayStatus string

const (
	DisplayCorrect DisplayStatus = "correct"
	DisplayNear    DisplayStatus = "near"
	DisplayWrong   DisplayStatus = "wrong"
	DisplayMissing DisplayStatus = "missing"
	DisplayExtra   DisplayStatus = "extra"

	// DisplayNotAttempted marks words past the last position the
	// recognizer produced output for, shown neutrally regardless of
	// their underlying status.
	DisplayNotAttempted DisplayStatus = "not-attempted"
)

// WordView is one comparison entry with its derived display status.
type WordView struct {
	scoring.WordComparison
	Display DisplayStatus
}

// View is the rendered outcome of one scored attempt.
type View struct {
	Words            []WordView
	WeightedAccuracy float64

	// AdvanceOffered is true when the attempt clears the gating threshold.
	AdvanceOffered bool

	// SkipOffered is true when it does not; the learner may skip instead
	// of advancing.
	SkipOffered bool
}

// CuePlayer plays the two fixed feedback cues.
type CuePlayer interface {
	Success()
	NeedsWork()
}

// Renderer derives views from comparison results and fires the feedback cue
// exactly once per distinct scored result. Re-rendering the same result
// (same transcription identifier) because of unrelated state changes never
// replays the cue.
//
// Safe for concurrent use.
type Renderer struct {
	cues    CuePlayer
	metrics *observe.Metrics

	mu        sync.Mutex
	lastCueID string
}

// Option configures a [Renderer].
type Option func(*Renderer)

// WithMetrics sets the metrics instance cue counters are recorded on.
// Default: [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(r *Renderer) { r.metrics = m }
}

// New creates a Renderer. cues may be nil, in which case no cues play.
func New(cues CuePlayer, opts ...Option) *Renderer {
	r := &Renderer{cues: cues, metrics: observe.DefaultMetrics()}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Render maps res into a View and plays the appropriate cue when res is a
// result not rendered before.
func (r *Renderer) Render(res scoring.Result) View {
	cmp := res.Comparison

	view := View{
		Words:            make([]WordView, len(cmp.Entries)),
		WeightedAccuracy: cmp.WeightedAccuracy,
		AdvanceOffered:   cmp.WeightedAccuracy >= AdvanceThreshold,
	}
	view.SkipOffered = !view.AdvanceOffered

	for i, entry := range cmp.Entries {
		view.Words[i] = WordView{
			WordComparison: entry,
			Display:        displayStatus(entry, cmp.LastRecognizedPosition),
		}
	}

	r.playCueOnce(res.TranscriptionID, view.AdvanceOffered)
	return view
}

// Reset clears the cue dedup state. Called on segment change so the next
// attempt on the new segment cues again even if the service reuses IDs.
func (r *Renderer) Reset() {
	r.mu.Lock()
	r.lastCueID = ""
	r.mu.Unlock()
}

func (r *Renderer) playCueOnce(transcriptionID string, success bool) {
	if r.cues == nil || transcriptionID == "" {
		return
	}

	r.mu.Lock()
	if r.lastCueID == transcriptionID {
		r.mu.Unlock()
		return
	}
	r.lastCueID = transcriptionID
	r.mu.Unlock()

	if success {
		r.metrics.RecordCue(context.Background(), "success")
		r.cues.Success()
	} else {
		r.metrics.RecordCue(context.Background(), "needs_work")
		r.cues.NeedsWork()
	}
}

// displayStatus derives the visual treatment for one entry: expected
// positions the recognizer never reached render as not-attempted, everything
// else maps 1:1 from the comparison status. An extra word is recognizer
// output by definition, so it renders as extra even when its assigned
// position trails the last recognized expected word.
func displayStatus(entry scoring.WordComparison, lastRecognized int) DisplayStatus {
	if entry.Status == scoring.StatusExtra {
		return DisplayExtra
	}
	if entry.Position > lastRecognized {
		return DisplayNotAttempted
	}
	switch entry.Status {
	case scoring.StatusCorrect:
		return DisplayCorrect
	case scoring.StatusNear:
		return DisplayNear
	case scoring.StatusWrong:
		return DisplayWrong
	case scoring.StatusMissing:
		return DisplayMissing
	case scoring.StatusExtra:
		return DisplayExtra
	default:
		return DisplayNotAttempted
	}
}

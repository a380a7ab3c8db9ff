// Package scoring defines the pronunciation-comparison contract between the
// shadowing core and the remote speech-to-text/scoring service.
//
// The core submits a recorded clip together with the segment's expected
// words and receives a [Result]: a word-by-word alignment with per-position
// status and aggregate accuracy, plus an opaque transcription identifier
// used only to detect new-result transitions.
package scoring

import (
	"context"

	"github.com/mtoso/shadowline/pkg/lesson"
)

// WordStatus is the fixed comparison outcome set for one aligned position.
type WordStatus string

const (
	StatusCorrect WordStatus = "CORRECT"
	StatusNear    WordStatus = "NEAR"
	StatusWrong   WordStatus = "WRONG"

	// StatusMissing marks an expected word the recognizer produced no
	// counterpart for. Its entry has an expected word and no recognized word.
	StatusMissing WordStatus = "MISSING"

	// StatusExtra marks a recognized word with no expected counterpart.
	// Its entry has a recognized word and no expected word.
	StatusExtra WordStatus = "EXTRA"
)

// WordComparison is one aligned position in a comparison.
type WordComparison struct {
	Position   int        `json:"position"`
	Expected   string     `json:"expected"`
	Recognized string     `json:"recognized"`
	Status     WordStatus `json:"status"`
	Score      float64    `json:"score"`
}

// ComparisonResult is the scored alignment between expected and recognized
// words for one attempt.
type ComparisonResult struct {
	Entries []WordComparison `json:"entries"`

	TotalWords   int `json:"total_words"`
	CorrectWords int `json:"correct_words"`

	// RawAccuracy is the plain correct/total ratio as a 0-100 percentage.
	RawAccuracy float64 `json:"raw_accuracy"`

	// WeightedAccuracy (0-100) credits near matches partially; it is the
	// value the gating decision is made on.
	WeightedAccuracy float64 `json:"weighted_accuracy"`

	// LastRecognizedPosition is the highest position index the recognizer
	// actually produced output for, or -1 when nothing was recognized.
	LastRecognizedPosition int `json:"last_recognized_position"`
}

// Result pairs a comparison with the service's transcription identifier.
// The identifier carries no business meaning; it only distinguishes one
// scored attempt from the next.
type Result struct {
	Comparison      ComparisonResult `json:"comparison"`
	TranscriptionID string           `json:"transcription_id"`
}

// Request is one scoring submission: the finalized clip for a segment
// attempt plus the segment's expected words.
type Request struct {
	// SegmentID identifies the segment the clip was recorded against.
	SegmentID string

	// Clip is the recorded audio artifact as a WAV container.
	Clip []byte

	// Words is the segment's expected word list, in order.
	Words []lesson.Word
}

// Client submits recordings for scoring.
//
// Implementations must be safe for concurrent use. Transport failures and
// non-2xx responses are returned as plain errors; the recording session
// treats every failure uniformly as an upload failure, with no retry.
type Client interface {
	Score(ctx context.Context, req Request) (Result, error)
}

// Package lesson defines the immutable lesson data model consumed by the
// shadowing session controller: a Lesson is an ordered list of timed
// Segments, each carrying the ordered Words a learner is expected to say.
//
// Lessons are fetched once per session from a lessonstore.Source and are
// never mutated by the controller. The only externally mutable field is a
// segment's Active flag, which collaborators may toggle mid-session.
package lesson

import (
	"errors"
	"fmt"
	"strings"
	"unicode"
)

// SourceType selects which playback backend a lesson requires.
type SourceType string

const (
	// SourceFileAudio marks a lesson backed by a single continuous audio
	// stream; segment boundaries are offsets within that one stream.
	SourceFileAudio SourceType = "file-audio"

	// SourceEmbeddedVideo marks a lesson backed by a third-party embeddable
	// video player.
	SourceEmbeddedVideo SourceType = "embedded-video"
)

// IsValid reports whether s is a recognised source type.
func (s SourceType) IsValid() bool {
	return s == SourceFileAudio || s == SourceEmbeddedVideo
}

// Word is one expected token within a segment.
type Word struct {
	// ID is the stable identifier of the word.
	ID string `json:"id"`

	// OrderIndex is the word's zero-based position within its segment.
	// Unique and monotonic within a segment.
	OrderIndex int `json:"order_index"`

	// Text is the literal display form.
	Text string `json:"text"`

	// Normalized is the lowercased, punctuation-stripped comparison form.
	// Populated by Normalize when empty.
	Normalized string `json:"normalized"`

	// Slug is the URL-safe form of the word.
	Slug string `json:"slug"`
}

// Segment is one timed unit of speech, the unit of shadowing practice.
// The playback window is half-open: [StartMS, EndMS).
type Segment struct {
	// ID is the stable identifier of the segment.
	ID string `json:"id"`

	// OrderIndex is the segment's zero-based position within the lesson.
	OrderIndex int `json:"order_index"`

	// Text is the display text shown to the learner.
	Text string `json:"text"`

	// RawText is the unprocessed fallback text.
	RawText string `json:"raw_text"`

	// StartMS and EndMS bound the playback window in milliseconds.
	// EndMS > StartMS and both are >= 0.
	StartMS float64 `json:"start_ms"`
	EndMS   float64 `json:"end_ms"`

	// Words lists the expected tokens in order.
	Words []Word `json:"words"`

	// Active is the one field external collaborators may toggle.
	// It has no effect on playback.
	Active bool `json:"active"`
}

// Duration returns the segment window length in milliseconds.
func (s Segment) Duration() float64 { return s.EndMS - s.StartMS }

// Lesson is an ordered collection of segments over one media source.
type Lesson struct {
	// ID is the stable identifier of the lesson.
	ID string `json:"id"`

	// Title is the display name.
	Title string `json:"title"`

	// SourceType selects the playback backend variant for this lesson.
	SourceType SourceType `json:"source_type"`

	// MediaSource is the resolvable media reference: a file URL for
	// file-audio lessons, an embeddable-player source URL for
	// embedded-video lessons.
	MediaSource string `json:"media_source"`

	// Segments is ordered by OrderIndex.
	Segments []Segment `json:"segments"`
}

// Segment returns the segment at index i, or false when i is out of range.
func (l *Lesson) Segment(i int) (Segment, bool) {
	if i < 0 || i >= len(l.Segments) {
		return Segment{}, false
	}
	return l.Segments[i], true
}

// SegmentIDs returns the set of segment identifiers in the lesson.
func (l *Lesson) SegmentIDs() map[string]struct{} {
	ids := make(map[string]struct{}, len(l.Segments))
	for _, s := range l.Segments {
		ids[s.ID] = struct{}{}
	}
	return ids
}

// Normalize returns the canonical comparison form of text: lowercased with
// leading/trailing punctuation and all whitespace removed. Normalize is
// idempotent: applying it to its own output yields the same value.
func Normalize(text string) string {
	lowered := strings.ToLower(strings.TrimSpace(text))
	return strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsNumber(r) || r == '\'' || r == '-' {
			return r
		}
		return -1
	}, lowered)
}

// Slugify returns a URL-safe slug for text: normalized form with apostrophes
// removed and hyphens preserved.
func Slugify(text string) string {
	norm := Normalize(text)
	return strings.ReplaceAll(norm, "'", "")
}

// Validate checks that l is internally coherent: a valid source type, a
// non-empty media source, segments ordered by index with half-open windows,
// and word order indexes unique and monotonic within each segment.
// It returns a joined error listing all findings.
func Validate(l *Lesson) error {
	var errs []error

	if l.ID == "" {
		errs = append(errs, errors.New("lesson id is required"))
	}
	if !l.SourceType.IsValid() {
		errs = append(errs, fmt.Errorf("source_type %q is invalid; valid values: file-audio, embedded-video", l.SourceType))
	}
	if l.MediaSource == "" {
		errs = append(errs, errors.New("media_source is required"))
	}

	for i, seg := range l.Segments {
		prefix := fmt.Sprintf("segments[%d]", i)
		if seg.ID == "" {
			errs = append(errs, fmt.Errorf("%s.id is required", prefix))
		}
		if seg.OrderIndex != i {
			errs = append(errs, fmt.Errorf("%s.order_index is %d, want %d", prefix, seg.OrderIndex, i))
		}
		if seg.StartMS < 0 {
			errs = append(errs, fmt.Errorf("%s.start_ms %.0f is negative", prefix, seg.StartMS))
		}
		if seg.EndMS <= seg.StartMS {
			errs = append(errs, fmt.Errorf("%s window [%.0f, %.0f) is empty or inverted", prefix, seg.StartMS, seg.EndMS))
		}
		prev := -1
		for j, w := range seg.Words {
			if w.OrderIndex <= prev {
				errs = append(errs, fmt.Errorf("%s.words[%d].order_index %d is not monotonic", prefix, j, w.OrderIndex))
			}
			prev = w.OrderIndex
			if w.Text == "" {
				errs = append(errs, fmt.Errorf("%s.words[%d].text is required", prefix, j))
			}
		}
	}

	return errors.Join(errs...)
}

// FillDerived populates empty Normalized and Slug fields on every word.
// Already-populated fields are left untouched so that upstream-supplied
// forms win.
func FillDerived(l *Lesson) {
	for si := range l.Segments {
		for wi := range l.Segments[si].Words {
			w := &l.Segments[si].Words[wi]
			if w.Normalized == "" {
				w.Normalized = Normalize(w.Text)
			}
			if w.Slug == "" {
				w.Slug = Slugify(w.Text)
			}
		}
	}
}

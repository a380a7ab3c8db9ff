// Package lessonstore loads lessons from persistent sources. A lesson is
// fetched once at session start, validated, and handed to the session as an
// immutable snapshot.
package lessonstore

import (
	"context"
	"errors"

	"github.com/mtoso/shadowline/pkg/lesson"
)

// ErrNotFound is returned when no lesson exists with the requested ID.
var ErrNotFound = errors.New("lessonstore: lesson not found")

// Summary is the listing form of a lesson.
type Summary struct {
	ID           string            `json:"id"`
	Title        string            `json:"title"`
	SourceType   lesson.SourceType `json:"source_type"`
	SegmentCount int               `json:"segment_count"`
}

// Source provides read access to stored lessons.
// Implementations must be safe for concurrent use.
type Source interface {
	// Lesson fetches one lesson by ID. The returned lesson is validated
	// and has all derived word forms populated. Returns [ErrNotFound]
	// when the ID is unknown.
	Lesson(ctx context.Context, id string) (*lesson.Lesson, error)

	// List returns summaries of every stored lesson.
	List(ctx context.Context) ([]Summary, error)
}

// prepare validates l and fills derived word forms. Shared by all sources so
// a lesson reaching the session is well-formed regardless of origin.
func prepare(l *lesson.Lesson) (*lesson.Lesson, error) {
	if err := lesson.Validate(l); err != nil {
		return nil, err
	}
	lesson.FillDerived(l)
	return l, nil
}

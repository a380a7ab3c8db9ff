package lessonstore_test

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/mtoso/shadowline/internal/lessonstore"
	"github.com/mtoso/shadowline/pkg/lesson"
)

func validLesson(id string) *lesson.Lesson {
	return &lesson.Lesson{
		ID:          id,
		Title:       "Ordering Coffee",
		SourceType:  lesson.SourceFileAudio,
		MediaSource: "file:///lessons/coffee.mp3",
		Segments: []lesson.Segment{
			{
				ID: id + "-s0", OrderIndex: 0, Text: "One coffee, please.",
				StartMS: 0, EndMS: 1500,
				Words: []lesson.Word{
					{ID: id + "-w0", OrderIndex: 0, Text: "One"},
					{ID: id + "-w1", OrderIndex: 1, Text: "coffee,"},
					{ID: id + "-w2", OrderIndex: 2, Text: "please."},
				},
			},
			{
				ID: id + "-s1", OrderIndex: 1, Text: "To go.",
				StartMS: 1500, EndMS: 2400,
				Words: []lesson.Word{
					{ID: id + "-w3", OrderIndex: 0, Text: "To"},
					{ID: id + "-w4", OrderIndex: 1, Text: "go."},
				},
			},
		},
	}
}

func writeLessonFile(t *testing.T, dir string, l *lesson.Lesson) {
	t.Helper()
	data, err := json.Marshal(l)
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, l.ID+".json"), data, 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestFileSourceLesson(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeLessonFile(t, dir, validLesson("coffee"))

	src, err := lessonstore.NewFileSource(dir)
	if err != nil {
		t.Fatalf("NewFileSource: %v", err)
	}

	got, err := src.Lesson(context.Background(), "coffee")
	if err != nil {
		t.Fatalf("Lesson: %v", err)
	}
	if got.Title != "Ordering Coffee" || len(got.Segments) != 2 {
		t.Fatalf("lesson = %+v", got)
	}

	// Derived word forms are populated on load.
	w := got.Segments[0].Words[1]
	if w.Normalized != "coffee" || w.Slug != "coffee" {
		t.Errorf("derived forms = (%q, %q), want (coffee, coffee)", w.Normalized, w.Slug)
	}
}

func TestFileSourceNotFound(t *testing.T) {
	t.Parallel()

	src, err := lessonstore.NewFileSource(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileSource: %v", err)
	}
	_, err = src.Lesson(context.Background(), "nope")
	if !errors.Is(err, lessonstore.ErrNotFound) {
		t.Fatalf("error = %v, want ErrNotFound", err)
	}
}

func TestFileSourceRejectsInvalidLesson(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	bad := validLesson("bad")
	bad.SourceType = "vinyl"
	bad.Segments[1].EndMS = bad.Segments[1].StartMS
	writeLessonFile(t, dir, bad)

	src, err := lessonstore.NewFileSource(dir)
	if err != nil {
		t.Fatalf("NewFileSource: %v", err)
	}
	if _, err := src.Lesson(context.Background(), "bad"); err == nil {
		t.Fatal("invalid lesson loaded without error")
	}
}

func TestFileSourceRejectsPathTraversal(t *testing.T) {
	t.Parallel()

	src, err := lessonstore.NewFileSource(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileSource: %v", err)
	}
	if _, err := src.Lesson(context.Background(), "../etc/passwd"); err == nil {
		t.Fatal("path traversal id accepted")
	}
}

func TestFileSourceList(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeLessonFile(t, dir, validLesson("b-lesson"))
	writeLessonFile(t, dir, validLesson("a-lesson"))
	if err := os.WriteFile(filepath.Join(dir, "junk.json"), []byte("{oops"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("hi"), 0o644); err != nil {
		t.Fatal(err)
	}

	src, err := lessonstore.NewFileSource(dir)
	if err != nil {
		t.Fatalf("NewFileSource: %v", err)
	}
	got, err := src.List(context.Background())
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("summaries = %d, want 2", len(got))
	}
	if got[0].ID != "a-lesson" || got[1].ID != "b-lesson" {
		t.Errorf("order = [%s, %s], want [a-lesson, b-lesson]", got[0].ID, got[1].ID)
	}
	if got[0].SegmentCount != 2 {
		t.Errorf("segment count = %d, want 2", got[0].SegmentCount)
	}
}

func TestNewFileSourceMissingDir(t *testing.T) {
	t.Parallel()

	if _, err := lessonstore.NewFileSource("/does/not/exist"); err == nil {
		t.Fatal("missing directory accepted")
	}
}

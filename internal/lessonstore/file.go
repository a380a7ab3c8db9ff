package lessonstore

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/mtoso/shadowline/pkg/lesson"
)

// FileSource reads lessons from a directory of JSON files, one lesson per
// file, named <lesson-id>.json.
type FileSource struct {
	dir string
}

var _ Source = (*FileSource)(nil)

// NewFileSource creates a FileSource over dir. The directory must exist.
func NewFileSource(dir string) (*FileSource, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("lessonstore: open lesson dir: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("lessonstore: %s is not a directory", dir)
	}
	return &FileSource{dir: dir}, nil
}

// Lesson loads and validates the lesson stored as <id>.json.
func (s *FileSource) Lesson(_ context.Context, id string) (*lesson.Lesson, error) {
	if id == "" || id != filepath.Base(id) {
		return nil, fmt.Errorf("lessonstore: invalid lesson id %q", id)
	}

	data, err := os.ReadFile(filepath.Join(s.dir, id+".json"))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("lessonstore: %q: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("lessonstore: read lesson %q: %w", id, err)
	}

	var l lesson.Lesson
	if err := json.Unmarshal(data, &l); err != nil {
		return nil, fmt.Errorf("lessonstore: decode lesson %q: %w", id, err)
	}
	if l.ID == "" {
		l.ID = id
	}
	prepared, err := prepare(&l)
	if err != nil {
		return nil, fmt.Errorf("lessonstore: lesson %q: %w", id, err)
	}
	return prepared, nil
}

// List scans the directory for lesson files and returns their summaries,
// sorted by ID. Files that fail to decode are skipped.
func (s *FileSource) List(_ context.Context) ([]Summary, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("lessonstore: list lessons: %w", err)
	}

	var out []Summary
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		data, err := os.ReadFile(filepath.Join(s.dir, e.Name()))
		if err != nil {
			continue
		}
		var l lesson.Lesson
		if err := json.Unmarshal(data, &l); err != nil {
			continue
		}
		id := l.ID
		if id == "" {
			id = strings.TrimSuffix(e.Name(), ".json")
		}
		out = append(out, Summary{
			ID:           id,
			Title:        l.Title,
			SourceType:   l.SourceType,
			SegmentCount: len(l.Segments),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

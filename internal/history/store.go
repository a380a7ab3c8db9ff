// Package history persists a journal of scored shadowing attempts.
// Attempts are stored as append-only JSON lines in a local file, suitable
// for reviewing progress across practice sessions.
//
// For multi-user deployments this should be replaced with a
// PostgreSQL-backed implementation.
package history

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/mtoso/shadowline/internal/review"
	"github.com/mtoso/shadowline/pkg/scoring"
)

// Record is a single scored attempt written to the file store.
type Record struct {
	Timestamp        time.Time `json:"timestamp"`
	LessonID         string    `json:"lesson_id"`
	SegmentID        string    `json:"segment_id,omitempty"`
	TranscriptionID  string    `json:"transcription_id"`
	TotalWords       int       `json:"total_words"`
	CorrectWords     int       `json:"correct_words"`
	RawAccuracy      float64   `json:"raw_accuracy"`
	WeightedAccuracy float64   `json:"weighted_accuracy"`
	Passed           bool      `json:"passed"`
}

// FileStore persists attempt records as JSON lines in a local file.
// Thread-safe for concurrent use.
type FileStore struct {
	mu   sync.Mutex
	path string
}

// NewFileStore creates a FileStore that writes to the given path.
// The file is created on the first append if it does not exist.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Append records a scored attempt for the given lesson and segment.
func (fs *FileStore) Append(lessonID, segmentID string, res scoring.Result) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	record := Record{
		Timestamp:        time.Now().UTC(),
		LessonID:         lessonID,
		SegmentID:        segmentID,
		TranscriptionID:  res.TranscriptionID,
		TotalWords:       res.Comparison.TotalWords,
		CorrectWords:     res.Comparison.CorrectWords,
		RawAccuracy:      res.Comparison.RawAccuracy,
		WeightedAccuracy: res.Comparison.WeightedAccuracy,
		Passed:           res.Comparison.WeightedAccuracy >= review.AdvanceThreshold,
	}

	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("history: marshal: %w", err)
	}
	data = append(data, '\n')

	f, err := os.OpenFile(fs.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("history: open file: %w", err)
	}
	defer f.Close()

	if _, err := f.Write(data); err != nil {
		return fmt.Errorf("history: write: %w", err)
	}
	return nil
}

// Load reads every record previously appended to the file at path.
// A missing file yields an empty slice.
func Load(path string) ([]Record, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("history: open file: %w", err)
	}
	defer f.Close()

	var records []Record
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := sc.Bytes()
		if len(line) == 0 {
			continue
		}
		var r Record
		if err := json.Unmarshal(line, &r); err != nil {
			return records, fmt.Errorf("history: decode record %d: %w", len(records)+1, err)
		}
		records = append(records, r)
	}
	if err := sc.Err(); err != nil {
		return records, fmt.Errorf("history: read: %w", err)
	}
	return records, nil
}

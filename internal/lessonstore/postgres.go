package lessonstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/mtoso/shadowline/pkg/lesson"
)

// Schema is the SQL DDL for the lessons table. Execute it via
// [PostgresSource.Migrate] or apply it manually during deployment.
const Schema = `
CREATE TABLE IF NOT EXISTS lessons (
    id           TEXT PRIMARY KEY,
    title        TEXT NOT NULL DEFAULT '',
    source_type  TEXT NOT NULL,
    media_source TEXT NOT NULL,
    segments     JSONB NOT NULL DEFAULT '[]',
    created_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
    updated_at   TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_lessons_title ON lessons(title);
`

// DB is the database interface used by [PostgresSource]. Both *pgxpool.Pool
// and *pgx.Conn satisfy this interface.
type DB interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// PostgresSource is a [Source] backed by a PostgreSQL database. Segment
// lists are serialised as JSONB.
type PostgresSource struct {
	db DB
}

var _ Source = (*PostgresSource)(nil)

// NewPostgresSource creates a PostgresSource over the given connection or
// pool. Call [PostgresSource.Migrate] before the first query.
func NewPostgresSource(db DB) *PostgresSource {
	return &PostgresSource{db: db}
}

// Migrate executes the [Schema] DDL, creating the lessons table and index
// if they do not already exist.
func (s *PostgresSource) Migrate(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("lessonstore: migrate: %w", err)
	}
	return nil
}

// Lesson fetches and validates one lesson by ID.
func (s *PostgresSource) Lesson(ctx context.Context, id string) (*lesson.Lesson, error) {
	const query = `
		SELECT id, title, source_type, media_source, segments
		FROM lessons
		WHERE id = $1`

	var l lesson.Lesson
	var segmentsJSON []byte
	err := s.db.QueryRow(ctx, query, id).Scan(
		&l.ID, &l.Title, (*string)(&l.SourceType), &l.MediaSource, &segmentsJSON,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("lessonstore: %q: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("lessonstore: get %q: %w", id, err)
	}

	if err := json.Unmarshal(segmentsJSON, &l.Segments); err != nil {
		return nil, fmt.Errorf("lessonstore: unmarshal segments for %q: %w", id, err)
	}
	prepared, err := prepare(&l)
	if err != nil {
		return nil, fmt.Errorf("lessonstore: lesson %q: %w", id, err)
	}
	return prepared, nil
}

// List returns summaries of all stored lessons, ordered by title.
func (s *PostgresSource) List(ctx context.Context) ([]Summary, error) {
	const query = `
		SELECT id, title, source_type, jsonb_array_length(segments)
		FROM lessons
		ORDER BY title, id`

	rows, err := s.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("lessonstore: list: %w", err)
	}
	defer rows.Close()

	var out []Summary
	for rows.Next() {
		var sum Summary
		if err := rows.Scan(&sum.ID, &sum.Title, (*string)(&sum.SourceType), &sum.SegmentCount); err != nil {
			return nil, fmt.Errorf("lessonstore: list scan: %w", err)
		}
		out = append(out, sum)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("lessonstore: list: %w", err)
	}
	return out, nil
}

// Upsert creates or replaces a lesson. Useful for importing lesson files
// into the database. The lesson is validated before persistence.
func (s *PostgresSource) Upsert(ctx context.Context, l *lesson.Lesson) error {
	if err := lesson.Validate(l); err != nil {
		return err
	}

	segments := l.Segments
	if segments == nil {
		segments = []lesson.Segment{}
	}
	segmentsJSON, err := json.Marshal(segments)
	if err != nil {
		return fmt.Errorf("lessonstore: marshal segments: %w", err)
	}

	const query = `
		INSERT INTO lessons (id, title, source_type, media_source, segments)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE SET
			title = EXCLUDED.title,
			source_type = EXCLUDED.source_type,
			media_source = EXCLUDED.media_source,
			segments = EXCLUDED.segments,
			updated_at = now()`

	if _, err := s.db.Exec(ctx, query,
		l.ID, l.Title, string(l.SourceType), l.MediaSource, segmentsJSON,
	); err != nil {
		return fmt.Errorf("lessonstore: upsert %q: %w", l.ID, err)
	}
	return nil
}

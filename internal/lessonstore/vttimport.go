package lessonstore

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/mtoso/shadowline/pkg/lesson"
)

// ImportOptions controls how a WebVTT file is turned into a lesson.
type ImportOptions struct {
	// LessonID becomes the imported lesson's identifier. Required.
	LessonID string

	// Title is the lesson display name. Defaults to LessonID.
	Title string

	// MediaSource is the media reference the subtitles were authored
	// against. Required.
	MediaSource string

	// SourceType selects the playback backend. Defaults to
	// [lesson.SourceFileAudio].
	SourceType lesson.SourceType
}

// ImportVTT builds a lesson from a WebVTT subtitle file read from r. Each
// cue becomes one segment: the cue window bounds the playback window and the
// cue text, split on whitespace, becomes the segment's expected words.
//
// Cue identifiers are kept as segment IDs when present; unnamed cues are
// numbered seg-1, seg-2, and so on. NOTE and STYLE blocks are skipped, and
// inline markup such as <v Speaker> or <i> is stripped. The import is
// best-effort in what it reads but strict in what it produces: the
// assembled lesson must pass [lesson.Validate].
func ImportVTT(r io.Reader, opts ImportOptions) (*lesson.Lesson, error) {
	if opts.LessonID == "" {
		return nil, fmt.Errorf("lessonstore: vtt: lesson id is required")
	}
	if opts.SourceType == "" {
		opts.SourceType = lesson.SourceFileAudio
	}
	if opts.Title == "" {
		opts.Title = opts.LessonID
	}

	cues, err := parseVTT(r)
	if err != nil {
		return nil, err
	}
	if len(cues) == 0 {
		return nil, fmt.Errorf("lessonstore: vtt: no cues found")
	}

	l := &lesson.Lesson{
		ID:          opts.LessonID,
		Title:       opts.Title,
		SourceType:  opts.SourceType,
		MediaSource: opts.MediaSource,
	}
	for i, c := range cues {
		id := c.id
		if id == "" {
			id = fmt.Sprintf("seg-%d", i+1)
		}
		seg := lesson.Segment{
			ID:         id,
			OrderIndex: i,
			Text:       c.text,
			RawText:    c.text,
			StartMS:    c.startMS,
			EndMS:      c.endMS,
		}
		for wi, tok := range strings.Fields(c.text) {
			seg.Words = append(seg.Words, lesson.Word{
				ID:         fmt.Sprintf("%s-w%d", id, wi+1),
				OrderIndex: wi,
				Text:       tok,
			})
		}
		l.Segments = append(l.Segments, seg)
	}

	lesson.FillDerived(l)
	if err := lesson.Validate(l); err != nil {
		return nil, fmt.Errorf("lessonstore: vtt: imported lesson invalid: %w", err)
	}
	return l, nil
}

// cue is one parsed WebVTT cue block.
type cue struct {
	id      string
	startMS float64
	endMS   float64
	text    string
}

func parseVTT(r io.Reader) ([]cue, error) {
	sc := bufio.NewScanner(r)

	if !sc.Scan() {
		return nil, fmt.Errorf("lessonstore: vtt: empty input")
	}
	header := strings.TrimPrefix(strings.TrimSpace(sc.Text()), "\ufeff")
	if !strings.HasPrefix(header, "WEBVTT") {
		return nil, fmt.Errorf("lessonstore: vtt: missing WEBVTT header")
	}

	var (
		cues    []cue
		pending string // cue identifier line waiting for its timing line
		current *cue
	)
	flush := func() {
		if current != nil {
			current.text = strings.TrimSpace(current.text)
			if current.text != "" {
				cues = append(cues, *current)
			}
			current = nil
		}
	}

	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())

		switch {
		case line == "":
			flush()
			pending = ""

		case strings.HasPrefix(line, "NOTE") || strings.HasPrefix(line, "STYLE") || strings.HasPrefix(line, "REGION"):
			// Skipped along with the rest of their block at the next blank line.
			flush()
			pending = ""
			for sc.Scan() && strings.TrimSpace(sc.Text()) != "" {
			}

		case strings.Contains(line, "-->"):
			flush()
			start, end, err := parseCueTiming(line)
			if err != nil {
				return nil, err
			}
			current = &cue{id: pending, startMS: start, endMS: end}
			pending = ""

		case current != nil:
			text := stripCueTags(line)
			if current.text == "" {
				current.text = text
			} else {
				current.text += " " + text
			}

		default:
			pending = line
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("lessonstore: vtt: read input: %w", err)
	}
	flush()
	return cues, nil
}

// parseCueTiming parses a "00:00:01.000 --> 00:00:04.000" line. Positioning
// settings after the end timestamp are ignored.
func parseCueTiming(line string) (startMS, endMS float64, err error) {
	parts := strings.SplitN(line, "-->", 2)
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("lessonstore: vtt: malformed timing line %q", line)
	}
	start := strings.TrimSpace(parts[0])
	end := strings.TrimSpace(parts[1])
	if i := strings.IndexByte(end, ' '); i >= 0 {
		end = end[:i]
	}

	startMS, err = parseTimestamp(start)
	if err != nil {
		return 0, 0, err
	}
	endMS, err = parseTimestamp(end)
	if err != nil {
		return 0, 0, err
	}
	if endMS <= startMS {
		return 0, 0, fmt.Errorf("lessonstore: vtt: cue ends at or before its start in %q", line)
	}
	return startMS, endMS, nil
}

// parseTimestamp converts "HH:MM:SS.mmm" or "MM:SS.mmm" to milliseconds.
func parseTimestamp(ts string) (float64, error) {
	fields := strings.Split(ts, ":")
	if len(fields) < 2 || len(fields) > 3 {
		return 0, fmt.Errorf("lessonstore: vtt: malformed timestamp %q", ts)
	}

	var hours, minutes int
	var seconds float64
	var err error

	if len(fields) == 3 {
		if hours, err = strconv.Atoi(fields[0]); err != nil {
			return 0, fmt.Errorf("lessonstore: vtt: malformed timestamp %q", ts)
		}
		fields = fields[1:]
	}
	if minutes, err = strconv.Atoi(fields[0]); err != nil || minutes < 0 {
		return 0, fmt.Errorf("lessonstore: vtt: malformed timestamp %q", ts)
	}
	if seconds, err = strconv.ParseFloat(fields[1], 64); err != nil || seconds < 0 {
		return 0, fmt.Errorf("lessonstore: vtt: malformed timestamp %q", ts)
	}
	return float64(hours)*3600000 + float64(minutes)*60000 + seconds*1000, nil
}

// stripCueTags removes inline WebVTT markup (<v Speaker>, <i>, <c.class>)
// using a simple state machine. It is intentionally minimal, not a full
// parser, but sufficient for the tags subtitle tools emit.
func stripCueTags(s string) string {
	if !strings.ContainsRune(s, '<') {
		return s
	}
	var b strings.Builder
	b.Grow(len(s))
	inTag := false
	for _, r := range s {
		switch {
		case r == '<':
			inTag = true
		case r == '>':
			inTag = false
		case !inTag:
			b.WriteRune(r)
		}
	}
	return strings.TrimSpace(b.String())
}

// Package updates subscribes to live transcript update events over a
// WebSocket feed. The only mutation an event may cause is toggling a
// segment's Active flag; events for segments outside the loaded lesson are
// ignored, as are unknown event types.
package updates

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/mtoso/shadowline/pkg/lesson"
)

// Default reconnection parameters.
const (
	defaultBackoff    = 1 * time.Second
	defaultMaxBackoff = 30 * time.Second
)

const eventSegmentUpdated = "segment-updated"

// event is the wire format of one update message.
type event struct {
	Type      string `json:"type"`
	SegmentID string `json:"segment_id"`
	Active    *bool  `json:"active"`
}

// Applier receives validated segment updates. It reports whether the update
// was applied, which is false for segments it does not know.
type Applier interface {
	ApplySegmentActive(segmentID string, active bool) bool
}

// LessonTarget applies updates to a loaded lesson. Only the Active flag is
// ever written; timings, text, and word lists stay exactly as loaded.
//
// Safe for concurrent use.
type LessonTarget struct {
	mu     sync.Mutex
	lesson *lesson.Lesson
	index  map[string]int
}

var _ Applier = (*LessonTarget)(nil)

// NewLessonTarget creates a target over l. The segment set is fixed at
// construction; events for later-added segments are ignored.
func NewLessonTarget(l *lesson.Lesson) *LessonTarget {
	index := make(map[string]int, len(l.Segments))
	for i, seg := range l.Segments {
		index[seg.ID] = i
	}
	return &LessonTarget{lesson: l, index: index}
}

// ApplySegmentActive sets the Active flag of the named segment.
func (t *LessonTarget) ApplySegmentActive(segmentID string, active bool) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	i, ok := t.index[segmentID]
	if !ok {
		return false
	}
	t.lesson.Segments[i].Active = active
	return true
}

// Active reports the Active flag of the named segment.
func (t *LessonTarget) Active(segmentID string) (bool, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	i, ok := t.index[segmentID]
	if !ok {
		return false, false
	}
	return t.lesson.Segments[i].Active, true
}

// Option configures a [Listener].
type Option func(*Listener)

// WithBackoff sets the initial and maximum reconnect backoff.
func WithBackoff(initial, max time.Duration) Option {
	return func(l *Listener) {
		l.backoff = initial
		l.maxBackoff = max
	}
}

// Listener maintains a WebSocket subscription to the update feed and feeds
// decoded events into an [Applier]. Connection drops are retried with
// exponential backoff for as long as the run context lives.
type Listener struct {
	url        string
	target     Applier
	backoff    time.Duration
	maxBackoff time.Duration
}

// NewListener creates a Listener for the feed at url.
func NewListener(url string, target Applier, opts ...Option) *Listener {
	l := &Listener{
		url:        url,
		target:     target,
		backoff:    defaultBackoff,
		maxBackoff: defaultMaxBackoff,
	}
	for _, o := range opts {
		o(l)
	}
	return l
}

// Run connects and consumes events until ctx is cancelled. It only returns
// ctx.Err(); every connection failure is retried.
func (l *Listener) Run(ctx context.Context) error {
	backoff := l.backoff
	for {
		err := l.consume(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}

		slog.Warn("updates: connection lost, reconnecting", "url", l.url, "backoff", backoff, "err", err)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > l.maxBackoff {
			backoff = l.maxBackoff
		}
	}
}

// consume runs one connection to completion.
func (l *Listener) consume(ctx context.Context) error {
	conn, _, err := websocket.Dial(ctx, l.url, nil)
	if err != nil {
		return err
	}
	defer conn.Close(websocket.StatusNormalClosure, "listener stopped")

	slog.Info("updates: connected", "url", l.url)

	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			return err
		}
		l.handleMessage(data)
	}
}

// handleMessage decodes and applies one raw feed message. Malformed
// payloads, unknown event types, and unknown segments are dropped.
func (l *Listener) handleMessage(data []byte) {
	var ev event
	if err := json.Unmarshal(data, &ev); err != nil {
		slog.Debug("updates: dropped malformed event", "err", err)
		return
	}
	if ev.Type != eventSegmentUpdated || ev.SegmentID == "" || ev.Active == nil {
		return
	}

	if !l.target.ApplySegmentActive(ev.SegmentID, *ev.Active) {
		slog.Debug("updates: event for unknown segment", "segment_id", ev.SegmentID)
		return
	}
	slog.Debug("updates: segment toggled", "segment_id", ev.SegmentID, "active", *ev.Active)
}

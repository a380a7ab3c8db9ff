// Package mock provides a canned recognizer for tests.
package mock

import (
	"context"
	"sync"

	"github.com/mtoso/shadowline/pkg/audio"
	"github.com/mtoso/shadowline/pkg/recognize"
)

var _ recognize.Recognizer = (*Recognizer)(nil)

// Recognizer returns a fixed transcription and records every call.
type Recognizer struct {
	// Text is returned by every Transcribe call.
	Text string

	// Err, when set, is returned instead.
	Err error

	mu    sync.Mutex
	calls []Call
}

// Call records the input of one Transcribe invocation.
type Call struct {
	PCM    []byte
	Format audio.Format
}

func (r *Recognizer) Transcribe(_ context.Context, pcm []byte, format audio.Format) (string, error) {
	r.mu.Lock()
	r.calls = append(r.calls, Call{PCM: append([]byte(nil), pcm...), Format: format})
	r.mu.Unlock()

	if r.Err != nil {
		return "", r.Err
	}
	return r.Text, nil
}

// Calls returns a copy of the recorded calls.
func (r *Recognizer) Calls() []Call {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Call(nil), r.calls...)
}

// Package recognize defines the batch speech-to-text contract used by the
// scoring service. A shadowing attempt is a short, complete clip, so the
// interface is a single blocking call rather than a stream.
package recognize

import (
	"context"

	"github.com/mtoso/shadowline/pkg/audio"
)

// Recognizer transcribes one complete PCM16 clip into plain text.
//
// Implementations must be safe for concurrent use.
type Recognizer interface {
	Transcribe(ctx context.Context, pcm []byte, format audio.Format) (string, error)
}

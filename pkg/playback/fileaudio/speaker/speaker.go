// Package speaker implements the fileaudio.Element contract over the default
// system output device using PortAudio. It decodes a WAV file up front and
// streams PCM chunks from an in-memory buffer, so seeks are instant.
package speaker

import (
	"fmt"
	"os"
	"sync"

	"github.com/gordonklaus/portaudio"

	"github.com/mtoso/shadowline/pkg/audio"
	"github.com/mtoso/shadowline/pkg/playback/fileaudio"
)

const framesPerBuffer = 1024

// Compile-time assertion that Element implements fileaudio.Element.
var _ fileaudio.Element = (*Element)(nil)

// Element plays one decoded audio file through PortAudio.
// All methods are safe for concurrent use.
type Element struct {
	mu sync.Mutex

	pcm        []int16
	sampleRate int
	channels   int

	stream  *portaudio.Stream
	buffer  []int16
	ready   bool
	closed  bool
	playing bool

	// pos is the playhead as a frame index into pcm.
	pos int

	onTime func(sec float64)
	done   chan struct{}
}

// New decodes the WAV file at path and opens an output stream for it.
// The caller must call Close when the element is no longer needed.
func New(path string) (*Element, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("speaker: read %q: %w", path, err)
	}
	pcmBytes, format, err := audio.DecodeWAV(data)
	if err != nil {
		return nil, fmt.Errorf("speaker: decode %q: %w", path, err)
	}

	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("speaker: initialize portaudio: %w", err)
	}

	e := &Element{
		pcm:        audio.Samples(pcmBytes),
		sampleRate: format.SampleRate,
		channels:   format.Channels,
		buffer:     make([]int16, framesPerBuffer*format.Channels),
	}

	stream, err := portaudio.OpenDefaultStream(0, e.channels, float64(e.sampleRate), framesPerBuffer, e.buffer)
	if err != nil {
		_ = portaudio.Terminate()
		return nil, fmt.Errorf("speaker: open default stream: %w", err)
	}
	e.stream = stream
	e.ready = true
	return e, nil
}

// Ready reports whether the media loaded successfully.
func (e *Element) Ready() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.ready && !e.closed
}

// Play starts or resumes playback from the current playhead.
func (e *Element) Play() {
	e.mu.Lock()
	if !e.ready || e.closed || e.playing {
		e.mu.Unlock()
		return
	}
	e.playing = true
	done := make(chan struct{})
	e.done = done
	stream := e.stream
	e.mu.Unlock()

	if err := stream.Start(); err != nil {
		e.mu.Lock()
		e.playing = false
		e.done = nil
		e.mu.Unlock()
		close(done)
		return
	}
	go e.playLoop(stream, done)
}

// Pause stops playback, keeping the playhead where it is.
func (e *Element) Pause() {
	e.mu.Lock()
	if !e.playing {
		e.mu.Unlock()
		return
	}
	e.playing = false
	done := e.done
	stream := e.stream
	e.mu.Unlock()

	if done != nil {
		<-done
	}
	if stream != nil {
		_ = stream.Stop()
	}
}

// SeekSec moves the playhead to an absolute position in seconds, clamped to
// the media duration.
func (e *Element) SeekSec(pos float64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.ready {
		return
	}
	frame := int(pos * float64(e.sampleRate))
	total := e.totalFramesLocked()
	if frame < 0 {
		frame = 0
	}
	if frame > total {
		frame = total
	}
	e.pos = frame
}

// CurrentTimeSec reports the playhead position.
func (e *Element) CurrentTimeSec() (float64, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.ready || e.closed {
		return 0, false
	}
	return float64(e.pos) / float64(e.sampleRate), true
}

// OnTimeUpdate registers cb as the single time-update callback, replacing
// any previous registration. A nil cb detaches.
func (e *Element) OnTimeUpdate(cb func(sec float64)) {
	e.mu.Lock()
	e.onTime = cb
	e.mu.Unlock()
}

// Close stops playback, releases the output stream, and terminates the
// PortAudio session. Idempotent.
func (e *Element) Close() error {
	e.Pause()

	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	e.ready = false
	stream := e.stream
	e.stream = nil
	e.mu.Unlock()

	var err error
	if stream != nil {
		if closeErr := stream.Close(); closeErr != nil {
			err = fmt.Errorf("speaker: close stream: %w", closeErr)
		}
	}
	if termErr := portaudio.Terminate(); termErr != nil && err == nil {
		err = fmt.Errorf("speaker: terminate portaudio: %w", termErr)
	}
	return err
}

// playLoop streams chunks from the playhead until paused or the media ends.
func (e *Element) playLoop(stream *portaudio.Stream, done chan struct{}) {
	defer close(done)

	for {
		e.mu.Lock()
		if !e.playing || e.closed {
			e.mu.Unlock()
			return
		}

		total := e.totalFramesLocked()
		if e.pos >= total {
			e.playing = false
			e.mu.Unlock()
			return
		}

		start := e.pos * e.channels
		n := copy(e.buffer, e.pcm[start:])
		// Zero-pad the tail chunk so the final write is full length.
		for i := n; i < len(e.buffer); i++ {
			e.buffer[i] = 0
		}
		e.pos += n / e.channels
		cb := e.onTime
		sec := float64(e.pos) / float64(e.sampleRate)
		e.mu.Unlock()

		// Blocking write paces the loop at the device's playback rate.
		if err := stream.Write(); err != nil {
			return
		}

		if cb != nil {
			cb(sec)
		}
	}
}

func (e *Element) totalFramesLocked() int {
	return len(e.pcm) / e.channels
}

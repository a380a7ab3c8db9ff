// Package portaudio implements the capture contract over the default system
// microphone using PortAudio.
//
// The provider owns the PortAudio library lifecycle (Initialize/Terminate)
// and enforces single device ownership: a second Acquire while a stream is
// open fails fast with capture.ErrBusy.
package portaudio

import (
	"context"
	"encoding/binary"
	"fmt"
	"sync"
	"time"

	"github.com/gordonklaus/portaudio"

	"github.com/mtoso/shadowline/pkg/audio"
	"github.com/mtoso/shadowline/pkg/capture"
)

const (
	// sampleRate matches what speech recognizers expect.
	sampleRate = 16000
	channels   = 1

	framesPerBuffer = 1024
)

// Compile-time interface checks.
var (
	_ capture.Provider = (*Provider)(nil)
	_ capture.Device   = (*device)(nil)
)

// Provider opens microphone capture streams via PortAudio.
// All methods are safe for concurrent use.
type Provider struct {
	mu   sync.Mutex
	held *device
}

// New initialises PortAudio and returns a Provider. The caller must call
// Close when the provider is no longer needed.
func New() (*Provider, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("portaudio: initialize: %w", err)
	}
	return &Provider{}, nil
}

// Close stops any held device and terminates PortAudio.
func (p *Provider) Close() error {
	p.mu.Lock()
	held := p.held
	p.mu.Unlock()

	if held != nil {
		_ = held.Stop()
	}
	return portaudio.Terminate()
}

// Acquire opens the default input stream and starts capturing. Returns
// capture.ErrBusy when a device is already held, and an error wrapping
// capture.ErrUnavailable when the stream cannot be opened (no microphone,
// permission denied by the OS).
func (p *Provider) Acquire(ctx context.Context) (capture.Device, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.held != nil {
		return nil, capture.ErrBusy
	}

	d := &device{
		buffer:  make([]int16, framesPerBuffer),
		frames:  make(chan []byte, 64),
		done:    make(chan struct{}),
		release: p.release,
	}

	stream, err := portaudio.OpenDefaultStream(channels, 0, sampleRate, framesPerBuffer, d.buffer)
	if err != nil {
		return nil, fmt.Errorf("%w: open default stream: %v", capture.ErrUnavailable, err)
	}
	d.stream = stream

	if err := stream.Start(); err != nil {
		_ = stream.Close()
		return nil, fmt.Errorf("%w: start stream: %v", capture.ErrUnavailable, err)
	}

	d.running = true
	p.held = d
	go d.captureLoop()
	return d, nil
}

func (p *Provider) release(d *device) {
	p.mu.Lock()
	if p.held == d {
		p.held = nil
	}
	p.mu.Unlock()
}

// device is a live PortAudio input stream.
type device struct {
	mu      sync.Mutex
	stream  *portaudio.Stream
	running bool
	stopped bool

	buffer  []int16
	frames  chan []byte
	done    chan struct{}
	release func(*device)
}

func (d *device) Frames() <-chan []byte { return d.frames }

func (d *device) Format() audio.Format {
	return audio.Format{SampleRate: sampleRate, Channels: channels}
}

// captureLoop reads stream buffers and forwards them as PCM16 LE frames.
// It exits when Stop flips running off.
func (d *device) captureLoop() {
	defer close(d.done)

	d.mu.Lock()
	stream := d.stream
	d.mu.Unlock()
	if stream == nil {
		return
	}

	for {
		d.mu.Lock()
		running := d.running
		d.mu.Unlock()
		if !running {
			return
		}

		available, err := stream.AvailableToRead()
		if err != nil || available == 0 {
			time.Sleep(10 * time.Millisecond)
			continue
		}
		if err := stream.Read(); err != nil {
			time.Sleep(10 * time.Millisecond)
			continue
		}

		frame := make([]byte, len(d.buffer)*2)
		for i, s := range d.buffer {
			binary.LittleEndian.PutUint16(frame[i*2:], uint16(s))
		}

		// Drop rather than block when the consumer falls behind.
		select {
		case d.frames <- frame:
		default:
		}
	}
}

// Stop halts capture synchronously, releases the stream, and closes the
// frames channel. Idempotent.
func (d *device) Stop() error {
	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		return nil
	}
	d.stopped = true
	d.running = false
	stream := d.stream
	d.stream = nil
	d.mu.Unlock()

	// Wait for the capture loop to observe the stop; it checks every 10 ms.
	select {
	case <-d.done:
	case <-time.After(100 * time.Millisecond):
	}

	var err error
	if stream != nil {
		if stopErr := stream.Stop(); stopErr != nil {
			err = fmt.Errorf("portaudio: stop stream: %w", stopErr)
		}
		if closeErr := stream.Close(); closeErr != nil && err == nil {
			err = fmt.Errorf("portaudio: close stream: %w", closeErr)
		}
	}

	close(d.frames)
	d.release(d)
	return err
}

// Package mock provides an in-memory capture provider for tests: frames are
// pushed manually and device ownership is observable.
package mock

import (
	"context"
	"sync"

	"github.com/mtoso/shadowline/pkg/audio"
	"github.com/mtoso/shadowline/pkg/capture"
)

// Compile-time interface checks.
var (
	_ capture.Provider = (*Provider)(nil)
	_ capture.Device   = (*Device)(nil)
)

// Provider is a fake capture.Provider. It enforces the same fail-fast
// single-ownership rule as real providers and records acquisition counts.
type Provider struct {
	mu sync.Mutex

	// AcquireErr, when set, is returned by every Acquire call. Used to
	// simulate denied microphone permission.
	AcquireErr error

	held     *Device
	Acquires int
}

// NewProvider returns a Provider that hands out working devices.
func NewProvider() *Provider { return &Provider{} }

// Acquire returns a new Device, or ErrBusy when one is already held.
func (p *Provider) Acquire(_ context.Context) (capture.Device, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.Acquires++
	if p.AcquireErr != nil {
		return nil, p.AcquireErr
	}
	if p.held != nil {
		return nil, capture.ErrBusy
	}

	d := &Device{
		frames:  make(chan []byte, 64),
		release: p.release,
	}
	p.held = d
	return d, nil
}

func (p *Provider) release(d *Device) {
	p.mu.Lock()
	if p.held == d {
		p.held = nil
	}
	p.mu.Unlock()
}

// Held reports whether a device is currently held.
func (p *Provider) Held() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.held != nil
}

// HeldDevice returns the currently held device, or nil. Lets tests push
// frames into a device acquired by the code under test.
func (p *Provider) HeldDevice() *Device {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.held
}

// Device is a fake capture.Device driven by Push.
type Device struct {
	mu      sync.Mutex
	stopped bool
	frames  chan []byte
	release func(*Device)
}

func (d *Device) Frames() <-chan []byte { return d.frames }

func (d *Device) Format() audio.Format {
	return audio.Format{SampleRate: 16000, Channels: 1}
}

// Push delivers a PCM frame to the session under test. Frames pushed after
// Stop are dropped.
func (d *Device) Push(frame []byte) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped {
		return
	}
	select {
	case d.frames <- frame:
	default:
	}
}

// Stop releases the device and closes the frames channel. Idempotent.
func (d *Device) Stop() error {
	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		return nil
	}
	d.stopped = true
	close(d.frames)
	d.mu.Unlock()

	d.release(d)
	return nil
}

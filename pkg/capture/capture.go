// Package capture defines the microphone capture contract for recording
// sessions.
//
// The capture device is a singleton resource: a [Provider] hands out at most
// one live [Device] at a time and fails fast, never queues, when the
// device is already held. Implementations are provided by adapter packages
// (capture/portaudio for real hardware, capture/mock for tests).
package capture

import (
	"context"
	"errors"

	"github.com/mtoso/shadowline/pkg/audio"
)

// ErrBusy is returned by Acquire when the capture device is already held by
// another recording session.
var ErrBusy = errors.New("capture: device already in use")

// ErrUnavailable is returned by Acquire when no capture device can be
// opened (missing hardware, denied permission).
var ErrUnavailable = errors.New("capture: device unavailable")

// Device is a live microphone capture stream.
//
// Implementations must be safe for concurrent use.
type Device interface {
	// Frames returns the channel delivering captured PCM16 little-endian
	// chunks. The channel is closed after Stop returns.
	Frames() <-chan []byte

	// Format reports the sample rate and channel count of the frames.
	Format() audio.Format

	// Stop is a synchronous hard stop: it halts capture, releases the
	// underlying device back to the provider, and closes the frames
	// channel. Idempotent.
	Stop() error
}

// Provider acquires the capture device. Implementations must enforce
// single ownership: a second Acquire while a device is held returns
// [ErrBusy] immediately.
type Provider interface {
	Acquire(ctx context.Context) (Device, error)
}

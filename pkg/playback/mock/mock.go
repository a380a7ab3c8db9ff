// Package mock provides controllable in-memory playback devices for testing
// the two backend variants against the shared capability contract without
// real media.
package mock

import "sync"

// Element is a fake continuous audio stream satisfying fileaudio.Element.
// Time is driven manually via AdvanceTo, which dispatches the registered
// time-update callback synchronously.
type Element struct {
	mu       sync.Mutex
	ready    bool
	playing  bool
	posSec   float64
	onUpdate func(sec float64)

	PlayCalls  int
	PauseCalls int
	SeekCalls  []float64
}

// NewElement returns a ready Element positioned at 0.
func NewElement() *Element {
	return &Element{ready: true}
}

// NewFailedElement returns an Element whose media failed to load.
func NewFailedElement() *Element {
	return &Element{ready: false}
}

func (e *Element) Ready() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.ready
}

func (e *Element) Play() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.ready {
		return
	}
	e.playing = true
	e.PlayCalls++
}

func (e *Element) Pause() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.playing = false
	e.PauseCalls++
}

func (e *Element) SeekSec(pos float64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.ready {
		return
	}
	e.posSec = pos
	e.SeekCalls = append(e.SeekCalls, pos)
}

func (e *Element) CurrentTimeSec() (float64, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.ready {
		return 0, false
	}
	return e.posSec, true
}

func (e *Element) OnTimeUpdate(cb func(sec float64)) {
	e.mu.Lock()
	e.onUpdate = cb
	e.mu.Unlock()
}

// Playing reports the fake device's play state.
func (e *Element) Playing() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.playing
}

// AdvanceTo moves the playhead to sec and fires the time-update callback.
// The callback runs without the element lock held, so it may call Pause.
func (e *Element) AdvanceTo(sec float64) {
	e.mu.Lock()
	e.posSec = sec
	cb := e.onUpdate
	playing := e.playing
	e.mu.Unlock()

	if cb != nil && playing {
		cb(sec)
	}
}

// VideoPlayer is a fake embedded video player satisfying embedvideo.Player.
// It offers no time-update events; backends must poll CurrentTimeSec.
type VideoPlayer struct {
	mu      sync.Mutex
	ready   bool
	playing bool
	posSec  float64
	videoID string

	PlayCalls  int
	PauseCalls int
	LoadCalls  []string
	PlayAtSec  []float64
}

// NewVideoPlayer returns a ready VideoPlayer with no video cued.
func NewVideoPlayer() *VideoPlayer {
	return &VideoPlayer{ready: true}
}

// NewFailedVideoPlayer returns a VideoPlayer whose embed failed to load.
func NewFailedVideoPlayer() *VideoPlayer {
	return &VideoPlayer{ready: false}
}

func (p *VideoPlayer) Ready() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.ready
}

func (p *VideoPlayer) Load(videoID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.videoID = videoID
	p.LoadCalls = append(p.LoadCalls, videoID)
}

func (p *VideoPlayer) PlayAt(sec float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.ready {
		return
	}
	p.posSec = sec
	p.playing = true
	p.PlayAtSec = append(p.PlayAtSec, sec)
}

func (p *VideoPlayer) Play() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.ready {
		return
	}
	p.playing = true
	p.PlayCalls++
}

func (p *VideoPlayer) Pause() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.playing = false
	p.PauseCalls++
}

func (p *VideoPlayer) CurrentTimeSec() (float64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.ready {
		return 0, errNotReady
	}
	return p.posSec, nil
}

// Playing reports the fake device's play state.
func (p *VideoPlayer) Playing() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.playing
}

// SetTime moves the playhead so the next poll observes sec.
func (p *VideoPlayer) SetTime(sec float64) {
	p.mu.Lock()
	p.posSec = sec
	p.mu.Unlock()
}

type notReadyError struct{}

func (notReadyError) Error() string { return "mock: player not ready" }

var errNotReady = notReadyError{}

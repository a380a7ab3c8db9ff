// Package cue plays the audible feedback cues after a scored attempt.
package cue

import (
	"github.com/gen2brain/beeep"
)

const appName = "Shadowline"

// Player plays the two system cues. Cue failures are ignored, feedback
// sounds are not critical to the session.
type Player struct {
	enabled bool
}

// New creates a Player. When enabled is false every cue is a no-op.
func New(enabled bool) *Player {
	return &Player{enabled: enabled}
}

// SetEnabled toggles cue playback.
func (p *Player) SetEnabled(enabled bool) {
	p.enabled = enabled
}

// Success plays the cue for an attempt that cleared the accuracy threshold.
func (p *Player) Success() {
	if !p.enabled {
		return
	}
	_ = beeep.Beep(880, 150)
	_ = beeep.Notify(appName, "Nice! Moving on.", "")
}

// NeedsWork plays the cue for an attempt below the accuracy threshold.
func (p *Player) NeedsWork() {
	if !p.enabled {
		return
	}
	_ = beeep.Beep(330, 250)
	_ = beeep.Notify(appName, "Almost there. Try this line again.", "")
}

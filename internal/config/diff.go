package config

import "maps"

// ConfigDiff describes what changed between two configs.
// Only fields that can be safely hot-reloaded are tracked.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	// SessionChanged is true when auto_advance, auto_play_next, cues,
	// transcript_lines, or key bindings changed. The orchestrator can
	// apply these between attempts.
	SessionChanged bool

	// AutoStopChanged is true when the playback auto-stop toggle changed.
	AutoStopChanged bool
}

// Diff compares old and new configs and returns what changed.
// Only tracks changes that are safe to apply without restart.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	// Log level
	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}

	// Session behaviour
	if old.Session.AutoAdvanceEnabled() != new.Session.AutoAdvanceEnabled() ||
		old.Session.AutoPlayNextEnabled() != new.Session.AutoPlayNextEnabled() ||
		old.Session.CuesEnabled() != new.Session.CuesEnabled() ||
		old.Session.TranscriptLinesOrDefault() != new.Session.TranscriptLinesOrDefault() ||
		!maps.Equal(old.Session.Keys, new.Session.Keys) {
		d.SessionChanged = true
	}

	// Playback behaviour
	if old.Playback.AutoStopEnabled() != new.Playback.AutoStopEnabled() {
		d.AutoStopChanged = true
	}

	return d
}

package session

import "strings"

// Action is a learner command produced by a key press.
type Action string

const (
	ActionTogglePlay Action = "toggle-play"
	ActionRecord     Action = "record"
	ActionStopSave   Action = "stop-save"
	ActionCancel     Action = "cancel"
	ActionNext       Action = "next"
	ActionPrev       Action = "prev"
	ActionReplay     Action = "replay"
)

// IsValid reports whether a is a recognised session action.
func (a Action) IsValid() bool {
	switch a {
	case ActionTogglePlay, ActionRecord, ActionStopSave, ActionCancel,
		ActionNext, ActionPrev, ActionReplay:
		return true
	}
	return false
}

// Keymap resolves key names to session actions. Keys are matched
// case-insensitively. While an editable element has focus every binding is
// suppressed so typing never triggers session commands.
type Keymap struct {
	bindings map[string]Action
}

// DefaultKeymap returns the standard bindings.
func DefaultKeymap() *Keymap {
	return &Keymap{bindings: map[string]Action{
		"space":      ActionTogglePlay,
		"r":          ActionRecord,
		"s":          ActionStopSave,
		"escape":     ActionCancel,
		"n":          ActionNext,
		"arrowright": ActionNext,
		"p":          ActionPrev,
		"arrowleft":  ActionPrev,
		"enter":      ActionReplay,
	}}
}

// Bind adds or replaces a binding.
func (k *Keymap) Bind(key string, action Action) {
	k.bindings[strings.ToLower(key)] = action
}

// Resolve maps a key press to an action. ok is false for unbound keys and
// for every key while editableFocus is set.
func (k *Keymap) Resolve(key string, editableFocus bool) (Action, bool) {
	if editableFocus {
		return "", false
	}
	action, ok := k.bindings[strings.ToLower(key)]
	return action, ok
}

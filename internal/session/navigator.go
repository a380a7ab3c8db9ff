package session

// Navigator maintains the visible window over the lesson transcript so the
// active segment stays in view as the learner moves through the lesson.
// It scrolls by the minimum amount: moving forward past the bottom shifts
// the window down one line at a time, moving back above the top shifts it
// up, and movement inside the window does not scroll at all.
//
// Not safe for concurrent use; it belongs to whatever renders the
// transcript.
type Navigator struct {
	total int
	size  int
	start int
}

// NewNavigator creates a Navigator over total segments showing size lines.
// A size of zero or less shows everything.
func NewNavigator(total, size int) *Navigator {
	if size <= 0 || size > total {
		size = total
	}
	return &Navigator{total: total, size: size}
}

// Follow adjusts the window so the segment at index stays visible.
// Out-of-range indexes are clamped.
func (n *Navigator) Follow(index int) {
	if n.total == 0 {
		return
	}
	if index < 0 {
		index = 0
	}
	if index >= n.total {
		index = n.total - 1
	}

	if index < n.start {
		n.start = index
	} else if index >= n.start+n.size {
		n.start = index - n.size + 1
	}
}

// Window returns the half-open visible range [start, end).
func (n *Navigator) Window() (start, end int) {
	return n.start, n.start + n.size
}

// Package compare aligns recognized speech against a segment's expected
// words and scores each aligned position.
//
// The alignment is a standard minimum-cost dynamic program over word
// tokens, where the substitution cost is driven by string similarity:
//
//   - Exact normalized equality is a CORRECT pair.
//   - A high Jaro-Winkler score, or a Double Metaphone code overlap with a
//     reasonable Jaro-Winkler score, makes a NEAR pair: a mispronunciation
//     the recognizer heard as a phonetically close word.
//   - Aligned but dissimilar pairs are WRONG; unpaired expected words are
//     MISSING and unpaired recognized words are EXTRA.
//
// This is the reference scoring engine used by the bundled speech service;
// the shadowing core itself only consumes the resulting ComparisonResult.
package compare

import (
	"strings"

	"github.com/antzucaro/matchr"

	"github.com/mtoso/shadowline/pkg/lesson"
	"github.com/mtoso/shadowline/pkg/scoring"
)

const (
	// defaultNearThreshold is the Jaro-Winkler score at or above which an
	// aligned pair counts as NEAR without phonetic support.
	defaultNearThreshold = 0.84

	// defaultPhoneticFloor is the minimum Jaro-Winkler score required for a
	// pair with overlapping Double Metaphone codes to count as NEAR.
	defaultPhoneticFloor = 0.60

	// gapCost is the alignment cost of leaving a word unpaired. Two gaps
	// cost more than one dissimilar substitution, so equal-length attempts
	// align position by position.
	gapCost = 0.65
)

// Option is a functional option for configuring a [Comparer].
type Option func(*Comparer)

// WithNearThreshold sets the Jaro-Winkler score treated as NEAR without
// phonetic overlap. Default: 0.84.
func WithNearThreshold(threshold float64) Option {
	return func(c *Comparer) { c.nearThreshold = threshold }
}

// WithPhoneticFloor sets the minimum Jaro-Winkler score for phonetically
// overlapping pairs to count as NEAR. Default: 0.60.
func WithPhoneticFloor(floor float64) Option {
	return func(c *Comparer) { c.phoneticFloor = floor }
}

// Comparer scores recognized speech against expected words. It is read-only
// after construction and safe for concurrent use.
type Comparer struct {
	nearThreshold float64
	phoneticFloor float64
}

// New returns a Comparer configured with the supplied options.
func New(opts ...Option) *Comparer {
	c := &Comparer{
		nearThreshold: defaultNearThreshold,
		phoneticFloor: defaultPhoneticFloor,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Compare aligns the recognized transcript against expected and returns the
// scored comparison. Word order follows the expected list; recognized words
// with no expected counterpart appear as EXTRA entries at the position they
// were heard.
func (c *Comparer) Compare(expected []lesson.Word, recognized string) scoring.ComparisonResult {
	exp := make([]string, len(expected))
	for i, w := range expected {
		if w.Normalized != "" {
			exp[i] = w.Normalized
		} else {
			exp[i] = lesson.Normalize(w.Text)
		}
	}

	var rec []string
	for _, tok := range strings.Fields(recognized) {
		if norm := lesson.Normalize(tok); norm != "" {
			rec = append(rec, norm)
		}
	}

	entries := c.align(expected, exp, rec)
	return aggregate(entries, len(expected))
}

// align runs the minimum-cost alignment and backtracks into comparison
// entries.
func (c *Comparer) align(expected []lesson.Word, exp, rec []string) []scoring.WordComparison {
	m, n := len(exp), len(rec)

	// dist[i][j]: cost of aligning exp[:i] with rec[:j].
	dist := make([][]float64, m+1)
	for i := range dist {
		dist[i] = make([]float64, n+1)
	}
	for i := 1; i <= m; i++ {
		dist[i][0] = float64(i) * gapCost
	}
	for j := 1; j <= n; j++ {
		dist[0][j] = float64(j) * gapCost
	}
	for i := 1; i <= m; i++ {
		for j := 1; j <= n; j++ {
			sub := dist[i-1][j-1] + (1 - c.similarity(exp[i-1], rec[j-1]))
			del := dist[i-1][j] + gapCost
			ins := dist[i][j-1] + gapCost
			dist[i][j] = min(sub, min(del, ins))
		}
	}

	// Backtrack from the corner, collecting entries in reverse.
	var reversed []scoring.WordComparison
	i, j := m, n
	for i > 0 || j > 0 {
		switch {
		case i > 0 && j > 0 && dist[i][j] == dist[i-1][j-1]+(1-c.similarity(exp[i-1], rec[j-1])):
			reversed = append(reversed, c.classify(expected[i-1], exp[i-1], rec[j-1], i-1))
			i--
			j--
		case i > 0 && dist[i][j] == dist[i-1][j]+gapCost:
			reversed = append(reversed, scoring.WordComparison{
				Position: i - 1,
				Expected: expected[i-1].Text,
				Status:   scoring.StatusMissing,
			})
			i--
		default:
			reversed = append(reversed, scoring.WordComparison{
				Position:   i,
				Recognized: rec[j-1],
				Status:     scoring.StatusExtra,
			})
			j--
		}
	}

	entries := make([]scoring.WordComparison, 0, len(reversed))
	for k := len(reversed) - 1; k >= 0; k-- {
		entries = append(entries, reversed[k])
	}
	return entries
}

// classify turns one aligned pair into a comparison entry.
func (c *Comparer) classify(expWord lesson.Word, expNorm, recNorm string, position int) scoring.WordComparison {
	entry := scoring.WordComparison{
		Position:   position,
		Expected:   expWord.Text,
		Recognized: recNorm,
	}

	if expNorm == recNorm {
		entry.Status = scoring.StatusCorrect
		entry.Score = 1
		return entry
	}

	jw := matchr.JaroWinkler(expNorm, recNorm, false)
	entry.Score = jw
	if jw >= c.nearThreshold || (phoneticOverlap(expNorm, recNorm) && jw >= c.phoneticFloor) {
		entry.Status = scoring.StatusNear
	} else {
		entry.Status = scoring.StatusWrong
	}
	return entry
}

// similarity is the alignment affinity of a pair, in [0, 1].
func (c *Comparer) similarity(a, b string) float64 {
	if a == b {
		return 1
	}
	jw := matchr.JaroWinkler(a, b, false)
	if phoneticOverlap(a, b) && jw < c.nearThreshold {
		// Phonetic support keeps sound-alike pairs aligned even when the
		// spelling diverges.
		return max(jw, c.nearThreshold)
	}
	return jw
}

// phoneticOverlap reports whether the two words share a Double Metaphone
// code.
func phoneticOverlap(a, b string) bool {
	p1, s1 := matchr.DoubleMetaphone(a)
	p2, s2 := matchr.DoubleMetaphone(b)
	for _, x := range []string{p1, s1} {
		if x == "" {
			continue
		}
		if x == p2 || (s2 != "" && x == s2) {
			return true
		}
	}
	return false
}

// aggregate fills the result's counters, accuracies, and last recognized
// position from the aligned entries.
func aggregate(entries []scoring.WordComparison, totalWords int) scoring.ComparisonResult {
	res := scoring.ComparisonResult{
		Entries:                entries,
		TotalWords:             totalWords,
		LastRecognizedPosition: -1,
	}

	var weighted float64
	for _, e := range entries {
		switch e.Status {
		case scoring.StatusCorrect:
			res.CorrectWords++
			weighted += 1
		case scoring.StatusNear:
			weighted += e.Score
		}
		if e.Recognized != "" && e.Status != scoring.StatusExtra && e.Position > res.LastRecognizedPosition {
			res.LastRecognizedPosition = e.Position
		}
	}

	if totalWords > 0 {
		res.RawAccuracy = float64(res.CorrectWords) / float64(totalWords) * 100
		res.WeightedAccuracy = weighted / float64(totalWords) * 100
	}
	return res
}

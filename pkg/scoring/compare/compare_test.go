package compare_test

import (
	"testing"

	"github.com/mtoso/shadowline/pkg/lesson"
	"github.com/mtoso/shadowline/pkg/scoring"
	"github.com/mtoso/shadowline/pkg/scoring/compare"
)

func words(texts ...string) []lesson.Word {
	ws := make([]lesson.Word, len(texts))
	for i, txt := range texts {
		ws[i] = lesson.Word{
			ID:         txt,
			OrderIndex: i,
			Text:       txt,
			Normalized: lesson.Normalize(txt),
		}
	}
	return ws
}

func TestCompare_PerfectAttempt(t *testing.T) {
	t.Parallel()

	c := compare.New()
	res := c.Compare(words("hello", "there", "friend"), "hello there friend")

	if res.CorrectWords != 3 || res.TotalWords != 3 {
		t.Fatalf("correct/total = %d/%d, want 3/3", res.CorrectWords, res.TotalWords)
	}
	if res.WeightedAccuracy != 100 || res.RawAccuracy != 100 {
		t.Errorf("accuracy = %.1f raw / %.1f weighted, want 100/100", res.RawAccuracy, res.WeightedAccuracy)
	}
	if res.LastRecognizedPosition != 2 {
		t.Errorf("LastRecognizedPosition = %d, want 2", res.LastRecognizedPosition)
	}
	for i, e := range res.Entries {
		if e.Status != scoring.StatusCorrect {
			t.Errorf("entries[%d].Status = %s, want CORRECT", i, e.Status)
		}
	}
}

func TestCompare_CaseAndPunctuationIgnored(t *testing.T) {
	t.Parallel()

	c := compare.New()
	res := c.Compare(words("Hello,", "World!"), "hello world")

	if res.CorrectWords != 2 {
		t.Fatalf("CorrectWords = %d, want 2", res.CorrectWords)
	}
}

func TestCompare_NearMatch(t *testing.T) {
	t.Parallel()

	c := compare.New()
	// "helo" is a close misrecognition of "hello": high Jaro-Winkler and
	// identical Double Metaphone codes.
	res := c.Compare(words("hello"), "helo")

	if len(res.Entries) != 1 {
		t.Fatalf("entries = %d, want 1", len(res.Entries))
	}
	e := res.Entries[0]
	if e.Status != scoring.StatusNear {
		t.Fatalf("Status = %s, want NEAR (score %.3f)", e.Status, e.Score)
	}
	if e.Score <= 0 || e.Score >= 1 {
		t.Errorf("Score = %.3f, want in (0, 1)", e.Score)
	}
	if res.WeightedAccuracy <= res.RawAccuracy {
		t.Errorf("weighted %.1f should exceed raw %.1f for a near-only attempt",
			res.WeightedAccuracy, res.RawAccuracy)
	}
}

func TestCompare_MissingTail(t *testing.T) {
	t.Parallel()

	c := compare.New()
	res := c.Compare(words("good", "morning", "everyone"), "good")

	if res.Entries[0].Status != scoring.StatusCorrect {
		t.Errorf("entries[0].Status = %s, want CORRECT", res.Entries[0].Status)
	}
	for i := 1; i <= 2; i++ {
		e := res.Entries[i]
		if e.Status != scoring.StatusMissing {
			t.Errorf("entries[%d].Status = %s, want MISSING", i, e.Status)
		}
		if e.Recognized != "" {
			t.Errorf("entries[%d].Recognized = %q, want empty for MISSING", i, e.Recognized)
		}
		if e.Expected == "" {
			t.Errorf("entries[%d].Expected empty, want the expected word", i)
		}
	}
	if res.LastRecognizedPosition != 0 {
		t.Errorf("LastRecognizedPosition = %d, want 0", res.LastRecognizedPosition)
	}
}

func TestCompare_ExtraWord(t *testing.T) {
	t.Parallel()

	c := compare.New()
	res := c.Compare(words("thank", "you"), "thank you very")

	var extras int
	for _, e := range res.Entries {
		if e.Status == scoring.StatusExtra {
			extras++
			if e.Expected != "" {
				t.Errorf("EXTRA entry has expected word %q, want empty", e.Expected)
			}
			if e.Recognized == "" {
				t.Error("EXTRA entry has empty recognized word")
			}
		}
	}
	if extras != 1 {
		t.Fatalf("extra entries = %d, want 1", extras)
	}
	if res.CorrectWords != 2 {
		t.Errorf("CorrectWords = %d, want 2", res.CorrectWords)
	}
}

func TestCompare_NothingRecognized(t *testing.T) {
	t.Parallel()

	c := compare.New()
	res := c.Compare(words("hello", "there"), "")

	if res.LastRecognizedPosition != -1 {
		t.Errorf("LastRecognizedPosition = %d, want -1", res.LastRecognizedPosition)
	}
	if res.WeightedAccuracy != 0 {
		t.Errorf("WeightedAccuracy = %.1f, want 0", res.WeightedAccuracy)
	}
	for i, e := range res.Entries {
		if e.Status != scoring.StatusMissing {
			t.Errorf("entries[%d].Status = %s, want MISSING", i, e.Status)
		}
	}
}

func TestCompare_WrongWordStaysAligned(t *testing.T) {
	t.Parallel()

	c := compare.New()
	res := c.Compare(words("red", "car"), "red zucchini")

	if len(res.Entries) != 2 {
		t.Fatalf("entries = %d, want 2 (aligned position by position)", len(res.Entries))
	}
	if res.Entries[1].Status != scoring.StatusWrong {
		t.Errorf("entries[1].Status = %s, want WRONG", res.Entries[1].Status)
	}
	if res.Entries[1].Expected == "" || res.Entries[1].Recognized == "" {
		t.Error("WRONG entry must carry both expected and recognized words")
	}
}

package review_test

import (
	"context"
	"sync"
	"testing"

	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/mtoso/shadowline/internal/observe"
	"github.com/mtoso/shadowline/internal/review"
	"github.com/mtoso/shadowline/pkg/scoring"
)

type recordingCues struct {
	mu        sync.Mutex
	successes int
	needsWork int
}

func (c *recordingCues) Success() {
	c.mu.Lock()
	c.successes++
	c.mu.Unlock()
}

func (c *recordingCues) NeedsWork() {
	c.mu.Lock()
	c.needsWork++
	c.mu.Unlock()
}

func (c *recordingCues) counts() (int, int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.successes, c.needsWork
}

func resultWithAccuracy(id string, weighted float64) scoring.Result {
	return scoring.Result{
		TranscriptionID: id,
		Comparison: scoring.ComparisonResult{
			WeightedAccuracy:       weighted,
			LastRecognizedPosition: -1,
		},
	}
}

func TestRenderGatingThreshold(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name    string
		acc     float64
		advance bool
	}{
		{"exactly at threshold", 85, true},
		{"just below threshold", 84.999, false},
		{"perfect", 100, true},
		{"zero", 0, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			r := review.New(nil)
			view := r.Render(resultWithAccuracy("t1", tc.acc))
			if view.AdvanceOffered != tc.advance {
				t.Errorf("AdvanceOffered = %v, want %v", view.AdvanceOffered, tc.advance)
			}
			if view.SkipOffered == tc.advance {
				t.Errorf("SkipOffered = %v, want %v", view.SkipOffered, !tc.advance)
			}
		})
	}
}

func TestRenderCueFiresOncePerTranscription(t *testing.T) {
	t.Parallel()

	cues := &recordingCues{}
	r := review.New(cues)

	res := resultWithAccuracy("t1", 92)
	r.Render(res)
	r.Render(res)
	r.Render(res)

	successes, needsWork := cues.counts()
	if successes != 1 || needsWork != 0 {
		t.Fatalf("cues after re-renders = (%d success, %d needs-work), want (1, 0)", successes, needsWork)
	}

	r.Render(resultWithAccuracy("t2", 40))
	successes, needsWork = cues.counts()
	if successes != 1 || needsWork != 1 {
		t.Fatalf("cues after second result = (%d success, %d needs-work), want (1, 1)", successes, needsWork)
	}
}

func TestRenderCueAfterReset(t *testing.T) {
	t.Parallel()

	cues := &recordingCues{}
	r := review.New(cues)

	r.Render(resultWithAccuracy("t1", 92))
	r.Reset()
	r.Render(resultWithAccuracy("t1", 92))

	successes, _ := cues.counts()
	if successes != 2 {
		t.Fatalf("successes after reset = %d, want 2", successes)
	}
}

func TestRenderNotAttemptedPastLastRecognized(t *testing.T) {
	t.Parallel()

	res := scoring.Result{
		TranscriptionID: "t1",
		Comparison: scoring.ComparisonResult{
			Entries: []scoring.WordComparison{
				{Position: 0, Expected: "thank", Recognized: "thank", Status: scoring.StatusCorrect, Score: 1},
				{Position: 1, Expected: "you", Recognized: "", Status: scoring.StatusMissing},
				{Position: 2, Expected: "very", Recognized: "", Status: scoring.StatusMissing},
			},
			TotalWords:             3,
			CorrectWords:           1,
			LastRecognizedPosition: 0,
		},
	}

	view := review.New(nil).Render(res)
	want := []review.DisplayStatus{review.DisplayCorrect, review.DisplayNotAttempted, review.DisplayNotAttempted}
	for i, w := range want {
		if view.Words[i].Display != w {
			t.Errorf("word %d display = %q, want %q", i, view.Words[i].Display, w)
		}
	}
}

func TestRenderMissingBeforeLastRecognizedStaysMissing(t *testing.T) {
	t.Parallel()

	res := scoring.Result{
		TranscriptionID: "t1",
		Comparison: scoring.ComparisonResult{
			Entries: []scoring.WordComparison{
				{Position: 0, Expected: "thank", Recognized: "", Status: scoring.StatusMissing},
				{Position: 1, Expected: "you", Recognized: "you", Status: scoring.StatusCorrect, Score: 1},
			},
			TotalWords:             2,
			CorrectWords:           1,
			LastRecognizedPosition: 1,
		},
	}

	view := review.New(nil).Render(res)
	if got := view.Words[0].Display; got != review.DisplayMissing {
		t.Errorf("word 0 display = %q, want %q", got, review.DisplayMissing)
	}
}

func TestRenderTrailingExtraStaysExtra(t *testing.T) {
	t.Parallel()

	// Words the learner added after the last expected word are recognizer
	// output and must render as extra, not as not-attempted.
	res := scoring.Result{
		TranscriptionID: "t1",
		Comparison: scoring.ComparisonResult{
			Entries: []scoring.WordComparison{
				{Position: 0, Expected: "thank", Recognized: "thank", Status: scoring.StatusCorrect, Score: 1},
				{Position: 1, Expected: "you", Recognized: "you", Status: scoring.StatusCorrect, Score: 1},
				{Position: 2, Expected: "", Recognized: "please", Status: scoring.StatusExtra},
			},
			TotalWords:             2,
			CorrectWords:           2,
			LastRecognizedPosition: 1,
		},
	}

	view := review.New(nil).Render(res)
	want := []review.DisplayStatus{review.DisplayCorrect, review.DisplayCorrect, review.DisplayExtra}
	for i, w := range want {
		if view.Words[i].Display != w {
			t.Errorf("word %d display = %q, want %q", i, view.Words[i].Display, w)
		}
	}
}

func TestRenderRecordsCueMetrics(t *testing.T) {
	t.Parallel()

	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })
	metrics, err := observe.NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}

	r := review.New(&recordingCues{}, review.WithMetrics(metrics))
	r.Render(resultWithAccuracy("t1", 92))
	r.Render(resultWithAccuracy("t2", 40))
	r.Render(resultWithAccuracy("t2", 40))

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	if got := cueCount(t, rm, "success"); got != 1 {
		t.Errorf("cues{kind=success} = %d, want 1", got)
	}
	if got := cueCount(t, rm, "needs_work"); got != 1 {
		t.Errorf("cues{kind=needs_work} = %d, want 1 after dedup", got)
	}
}

// cueCount reads back the cue counter for one kind, or 0 when no data point
// with that kind was exported.
func cueCount(t *testing.T, rm metricdata.ResourceMetrics, kind string) int64 {
	t.Helper()
	for _, sm := range rm.ScopeMetrics {
		for _, met := range sm.Metrics {
			if met.Name != "shadowline.cues" {
				continue
			}
			sum, ok := met.Data.(metricdata.Sum[int64])
			if !ok {
				t.Fatal("cue metric is not an int64 sum")
			}
			for _, dp := range sum.DataPoints {
				if v, ok := dp.Attributes.Value(attribute.Key("kind")); ok && v.AsString() == kind {
					return dp.Value
				}
			}
			return 0
		}
	}
	t.Fatal("cue metric not found")
	return 0
}

func TestRenderNilCuesAndEmptyID(t *testing.T) {
	t.Parallel()

	cues := &recordingCues{}
	r := review.New(cues)
	r.Render(resultWithAccuracy("", 92))

	successes, needsWork := cues.counts()
	if successes != 0 || needsWork != 0 {
		t.Fatalf("cues for empty transcription id = (%d, %d), want none", successes, needsWork)
	}
}

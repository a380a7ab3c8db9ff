package resilience

import (
	"context"

	"github.com/mtoso/shadowline/pkg/scoring"
)

// ScoringFallback implements [scoring.Client] with automatic failover across
// multiple scoring services. Each endpoint has its own circuit breaker, so a
// service that keeps timing out is bypassed without delaying every attempt.
type ScoringFallback struct {
	group *FallbackGroup[scoring.Client]
}

// Compile-time interface assertion.
var _ scoring.Client = (*ScoringFallback)(nil)

// NewScoringFallback creates a [ScoringFallback] with primary as the preferred
// scoring service.
func NewScoringFallback(primary scoring.Client, primaryName string, cfg FallbackConfig) *ScoringFallback {
	return &ScoringFallback{
		group: NewFallbackGroup(primary, primaryName, cfg),
	}
}

// AddFallback registers an additional scoring service as a fallback.
func (f *ScoringFallback) AddFallback(name string, client scoring.Client) {
	f.group.AddFallback(name, client)
}

// Score submits the clip to the first healthy scoring service. If the primary
// fails or its breaker is open, subsequent fallbacks are tried in order.
func (f *ScoringFallback) Score(ctx context.Context, req scoring.Request) (scoring.Result, error) {
	return ExecuteWithResult(f.group, func(c scoring.Client) (scoring.Result, error) {
		return c.Score(ctx, req)
	})
}

package analysis

import (
	"context"
	"time"

	"github.com/spacesedan/tweetpulse/internal/models"
	"github.com/spacesedan/tweetpulse/internal/sentiment"
)

const (
	MSG_EMPTY_USERNAME = "Please enter a Twitter username"
	MSG_FETCH_FALLBACK = "Failed to fetch data. Using sample data instead."
	MSG_FETCH_FAILED   = "Failed to fetch data."
)

// FallbackPolicy decides what the screen shows when the analyzer call fails.
// Delay is also used before showing requested sample data.
type FallbackPolicy struct {
	Enabled bool
	Delay   time.Duration
}

// OnFailure returns the state that replaces a failed request.
func (p FallbackPolicy) OnFailure(seq uint64, username string, prev models.AnalysisState) models.AnalysisState {
	if !p.Enabled {
		return models.FailedAnalysis(seq, username, models.FailureFetch, MSG_FETCH_FAILED, prev, nil)
	}
	return models.LoadedAnalysis(seq, username, sentiment.SampleResult(username), models.SourceFallback, MSG_FETCH_FALLBACK)
}

// sleep waits for d and reports false if ctx ended first.
func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

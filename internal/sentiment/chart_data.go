package sentiment

import (
	"fmt"
	"math"
	"strconv"

	"github.com/spacesedan/tweetpulse/internal/models"
)

const (
	LABEL_POSITIVE      = "Positive"
	LABEL_NEGATIVE      = "Negative"
	LABEL_NEUTRAL       = "Neutral"
	LABEL_VERY_NEGATIVE = "Very Negative"

	SAMPLE_USERNAME    = "elonmusk"
	SAMPLE_POSITIVE    = 65
	SAMPLE_NEGATIVE    = 25
	SAMPLE_NEUTRAL     = 10
	SAMPLE_TWEET_COUNT = 42

	JITTER_FLOOR = 5
	JITTER_SPAN  = 20
)

var (
	LandingColors  = []string{"#38bdf8", "#4ade80", "#fb923c", "#f87171"}
	AnalysisColors = []string{"#4ade80", "#f87171", "#a78bfa", "#fbbf24", "#60a5fa"}
)

// LandingDemoSamples is the distribution shown before any analysis.
func LandingDemoSamples() []models.SentimentSample {
	return []models.SentimentSample{
		{Name: LABEL_POSITIVE, Value: 40},
		{Name: LABEL_NEUTRAL, Value: 30},
		{Name: LABEL_NEGATIVE, Value: 20},
		{Name: LABEL_VERY_NEGATIVE, Value: 10},
	}
}

// Jitter moves each value by up to ten points either way, never below
// JITTER_FLOOR. rnd must return values in [0, 1).
func Jitter(samples []models.SentimentSample, rnd func() float64) []models.SentimentSample {
	out := make([]models.SentimentSample, len(samples))
	for i, s := range samples {
		v := math.Floor(s.Value + rnd()*JITTER_SPAN - JITTER_SPAN/2)
		out[i] = models.SentimentSample{Name: s.Name, Value: math.Max(JITTER_FLOOR, v)}
	}
	return out
}

// ToSamples maps an analyzer result onto chart categories. Neutral is only
// charted when present and non-zero.
func ToSamples(result *models.SentimentResult) []models.SentimentSample {
	if result == nil {
		return nil
	}
	samples := []models.SentimentSample{
		{Name: LABEL_POSITIVE, Value: result.PositivePercentage},
		{Name: LABEL_NEGATIVE, Value: result.NegativePercentage},
	}
	if result.NeutralPercentage != nil && *result.NeutralPercentage != 0 {
		samples = append(samples, models.SentimentSample{Name: LABEL_NEUTRAL, Value: *result.NeutralPercentage})
	}
	return samples
}

// SampleResult is the fixed distribution used for fallback and demo runs.
func SampleResult(username string) *models.SentimentResult {
	if username == "" {
		username = SAMPLE_USERNAME
	}
	neutral := float64(SAMPLE_NEUTRAL)
	count := SAMPLE_TWEET_COUNT
	return &models.SentimentResult{
		PositivePercentage: SAMPLE_POSITIVE,
		NegativePercentage: SAMPLE_NEGATIVE,
		NeutralPercentage:  &neutral,
		TweetCount:         &count,
		Username:           username,
	}
}

// Summary describes the first two samples (positive, negative). Ties read
// as negative.
func Summary(username string, samples []models.SentimentSample) string {
	if len(samples) < 2 {
		return ""
	}
	positive, negative := samples[0].Value, samples[1].Value
	if positive > negative {
		return fmt.Sprintf("The tweets from @%s are predominantly positive (%s%%), showing an overall optimistic tone.",
			username, FormatNumber(positive))
	}
	return fmt.Sprintf("The tweets from @%s tend to be more negative (%s%%), indicating potential concerns or criticism.",
		username, FormatNumber(negative))
}

// TweetCountLine returns the caption and whether it should be shown.
func TweetCountLine(result *models.SentimentResult) (string, bool) {
	if result == nil || result.TweetCount == nil || *result.TweetCount == 0 {
		return "", false
	}
	return fmt.Sprintf("Based on analysis of %d recent tweets", *result.TweetCount), true
}

// FormatNumber prints v in its shortest decimal form (65, 33.5).
func FormatNumber(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// ColorFor cycles through palette by slice index.
func ColorFor(palette []string, i int) string {
	if len(palette) == 0 {
		return ""
	}
	return palette[i%len(palette)]
}

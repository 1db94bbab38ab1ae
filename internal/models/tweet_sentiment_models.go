package models

// SentimentSample is one category of a pie chart.
type SentimentSample struct {
	Name  string  `json:"name"`
	Value float64 `json:"value"`
}

// SentimentResult is the body returned by the analyze_tweets endpoint.
// Optional fields are nil when the analyzer omitted them.
type SentimentResult struct {
	PositivePercentage float64  `json:"positive_percentage"`
	NegativePercentage float64  `json:"negative_percentage"`
	NeutralPercentage  *float64 `json:"neutral_percentage,omitempty"`
	TweetCount         *int     `json:"tweet_count,omitempty"`
	Username           string   `json:"username,omitempty"`
}

type ResultSource string

const (
	SourceLive     ResultSource = "live"
	SourceFallback ResultSource = "fallback"
	SourceSample   ResultSource = "sample"
)

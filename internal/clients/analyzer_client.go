package clients

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"net/url"
	"time"

	"github.com/spacesedan/tweetpulse/config"
	"github.com/spacesedan/tweetpulse/internal/models"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
	"golang.org/x/time/rate"
)

const MAX_BODY_BYTES = 1 << 20

// AnalyzerClient calls the external analyze_tweets service.
type AnalyzerClient struct {
	Client      *http.Client
	baseURL     *url.URL
	endpoint    *url.URL
	limiter     *rate.Limiter
	maxAttempts int
}

func NewAnalyzerClient(ctx context.Context, cfg config.UpstreamConfig) (*AnalyzerClient, error) {
	base, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("[AnalyzerClient] failed to parse base URL: %w", err)
	}
	endpoint := base.JoinPath(cfg.AnalyzePath)

	httpClient := &http.Client{Timeout: cfg.Timeout}
	if cfg.OAuthEnabled() {
		oauthConf := &clientcredentials.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			TokenURL:     cfg.TokenURL,
			AuthStyle:    oauth2.AuthStyleInHeader,
		}
		tokenCtx := context.WithValue(ctx, oauth2.HTTPClient, httpClient)
		httpClient = oauthConf.Client(tokenCtx)
		httpClient.Timeout = cfg.Timeout
	}

	attempts := cfg.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	slog.Info("[AnalyzerClient] Initializing Client",
		slog.String("endpoint", endpoint.String()),
		slog.Duration("timeout", cfg.Timeout),
		slog.Bool("oauth", cfg.OAuthEnabled()),
		slog.Int("max_attempts", attempts))

	return &AnalyzerClient{
		Client:      httpClient,
		baseURL:     base,
		endpoint:    endpoint,
		limiter:     rate.NewLimiter(rate.Limit(cfg.RequestsPerSec), cfg.Burst),
		maxAttempts: attempts,
	}, nil
}

// FetchSentiment issues GET <endpoint>?username=<username>. Every failure is
// a *FetchError.
func (a *AnalyzerClient) FetchSentiment(ctx context.Context, username string) (*models.SentimentResult, error) {
	u := *a.endpoint
	q := u.Query()
	q.Set("username", username)
	u.RawQuery = q.Encode()

	slog.Info("[AnalyzerClient] Requesting sentiment analysis",
		slog.String("username", username))
	start := time.Now()

	body, err := a.getWithRetry(ctx, u.String())
	if err != nil {
		slog.Warn("[AnalyzerClient] Sentiment analysis request failed",
			slog.String("username", username),
			slog.Duration("elapsed", time.Since(start)),
			slog.String("error", err.Error()))
		return nil, err
	}

	result, err := decodeSentimentResult(body)
	if err != nil {
		slog.Warn("[AnalyzerClient] Malformed sentiment response",
			slog.String("username", username),
			getPreview(body),
			slog.String("error", err.Error()))
		return nil, err
	}

	slog.Info("[AnalyzerClient] Sentiment analysis request successful",
		slog.String("username", username),
		slog.Duration("elapsed", time.Since(start)))
	return result, nil
}

// HealthCheck reports whether the analyzer answers at its base URL.
func (a *AnalyzerClient) HealthCheck(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, HEALTHCHECK_TIMEOUT)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.baseURL.String(), nil)
	if err != nil {
		return false
	}
	req.Header.Set("User-Agent", USER_AGENT)

	resp, err := a.Client.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	return resp.StatusCode < http.StatusInternalServerError
}

func (a *AnalyzerClient) getWithRetry(ctx context.Context, endpoint string) ([]byte, error) {
	var lastErr error
	backoff := INITIAL_BACKOFF

	for attempt := 0; attempt < a.maxAttempts; attempt++ {
		if attempt > 0 {
			slog.Warn("[AnalyzerClient] Request failed, will retry",
				slog.Int("attempt", attempt),
				slog.Duration("backoff", backoff),
				slog.String("error", lastErr.Error()))

			select {
			case <-ctx.Done():
				return nil, networkError(ctx, ctx.Err())
			case <-time.After(backoff):
			}
			backoff = min(backoff*2, MAX_BACKOFF)
		}

		body, err := a.get(ctx, endpoint)
		if err == nil {
			return body, nil
		}
		lastErr = err

		if !retryable(err) {
			break
		}
	}

	return nil, lastErr
}

func (a *AnalyzerClient) get(ctx context.Context, endpoint string) ([]byte, error) {
	if err := a.limiter.Wait(ctx); err != nil {
		return nil, networkError(ctx, fmt.Errorf("rate limiter: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, &FetchError{Kind: FetchNetwork, Err: fmt.Errorf("failed to build request: %w", err)}
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", USER_AGENT)

	resp, err := a.Client.Do(req)
	if err != nil {
		return nil, networkError(ctx, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, &FetchError{Kind: FetchStatus, StatusCode: resp.StatusCode}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, MAX_BODY_BYTES))
	if err != nil {
		return nil, networkError(ctx, fmt.Errorf("failed to read response: %w", err))
	}
	return body, nil
}

// retryable covers network errors and 5xx/429 statuses.
func retryable(err error) bool {
	var fe *FetchError
	if !errors.As(err, &fe) {
		return false
	}
	switch fe.Kind {
	case FetchNetwork:
		return true
	case FetchStatus:
		return fe.StatusCode >= 500 || fe.StatusCode == http.StatusTooManyRequests
	default:
		return false
	}
}

// decodeSentimentResult only type-checks the two mandatory percentages.
// Optional fields that are not numbers are treated as absent, as is a tweet
// count that does not fit a non-negative int.
func decodeSentimentResult(body []byte) (*models.SentimentResult, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, &FetchError{Kind: FetchMalformed, Err: fmt.Errorf("failed to unmarshal response: %w", err)}
	}

	positive, ok := numberField(raw, "positive_percentage")
	if !ok {
		return nil, &FetchError{Kind: FetchMalformed, Err: errors.New("positive_percentage is not a number")}
	}
	negative, ok := numberField(raw, "negative_percentage")
	if !ok {
		return nil, &FetchError{Kind: FetchMalformed, Err: errors.New("negative_percentage is not a number")}
	}

	result := &models.SentimentResult{
		PositivePercentage: positive,
		NegativePercentage: negative,
	}
	if neutral, ok := numberField(raw, "neutral_percentage"); ok {
		result.NeutralPercentage = &neutral
	}
	if count, ok := numberField(raw, "tweet_count"); ok && count >= 0 && count < float64(math.MaxInt) {
		n := int(count)
		result.TweetCount = &n
	}
	if msg, ok := raw["username"]; ok {
		var username string
		if json.Unmarshal(msg, &username) == nil {
			result.Username = username
		}
	}
	return result, nil
}

func numberField(raw map[string]json.RawMessage, key string) (float64, bool) {
	msg, ok := raw[key]
	if !ok {
		return 0, false
	}
	msg = bytes.TrimSpace(msg)
	// json.Unmarshal accepts null into a float64 without error
	if len(msg) == 0 || (msg[0] != '-' && (msg[0] < '0' || msg[0] > '9')) {
		return 0, false
	}
	var v float64
	if err := json.Unmarshal(msg, &v); err != nil {
		return 0, false
	}
	return v, true
}

func getPreview(respBody []byte) slog.Attr {
	raw := string(respBody)
	if len(raw) > 50 {
		raw = raw[:50]
	}
	return slog.String("raw_response", raw)
}

package web

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/spacesedan/tweetpulse/config"
	"github.com/spacesedan/tweetpulse/internal/analysis"
	"github.com/spacesedan/tweetpulse/internal/clients"
	"github.com/spacesedan/tweetpulse/internal/session"
)

const testCookie = "tweetpulse_session"

type testEnv struct {
	server     *Server
	controller *analysis.Controller
	upstream   *httptest.Server
	calls      *atomic.Int32
	cookie     *http.Cookie
}

// newTestEnv wires the real controller and analyzer client against a stub
// upstream answering with status and body.
func newTestEnv(t *testing.T, status int, body string, fallback bool) *testEnv {
	t.Helper()
	return newTestEnvWithHandler(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}), fallback)
}

func newTestEnvWithHandler(t *testing.T, handler http.Handler, fallback bool) *testEnv {
	t.Helper()

	calls := &atomic.Int32{}
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		handler.ServeHTTP(w, r)
	}))
	t.Cleanup(upstream.Close)

	analyzer, err := clients.NewAnalyzerClient(context.Background(), config.UpstreamConfig{
		BaseURL:        upstream.URL,
		AnalyzePath:    config.DEFAULT_ANALYZE_PATH,
		MaxAttempts:    1,
		RequestsPerSec: 1000,
		Burst:          10,
	})
	if err != nil {
		t.Fatal(err)
	}

	controller := analysis.NewController(analyzer, session.NewMemoryStore(time.Hour), analysis.Options{
		Fallback:      analysis.FallbackPolicy{Enabled: fallback},
		InputErrorTTL: 3 * time.Second,
		JitterDelay:   200 * time.Millisecond,
	})
	t.Cleanup(controller.Close)

	srv, err := NewServer(controller, Options{CookieName: testCookie, SessionTTL: time.Hour})
	if err != nil {
		t.Fatalf("NewServer() error = %v", err)
	}
	return &testEnv{server: srv, controller: controller, upstream: upstream, calls: calls}
}

func (e *testEnv) do(t *testing.T, method, target string, form url.Values) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if form != nil {
		req = httptest.NewRequest(method, target, strings.NewReader(form.Encode()))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	if e.cookie != nil {
		req.AddCookie(e.cookie)
	}

	rec := httptest.NewRecorder()
	e.server.ServeHTTP(rec, req)

	for _, c := range rec.Result().Cookies() {
		if c.Name == testCookie {
			e.cookie = c
		}
	}
	return rec
}

func (e *testEnv) state(t *testing.T) stateResponse {
	t.Helper()
	rec := e.do(t, http.MethodGet, "/api/state", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("/api/state status = %d", rec.Code)
	}
	var got stateResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode state: %v", err)
	}
	return got
}

func TestLandingPage(t *testing.T) {
	env := newTestEnv(t, http.StatusOK, `{}`, true)

	rec := env.do(t, http.MethodGet, "/", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	body := rec.Body.String()
	for _, want := range []string{
		"Analyze Tweets Now",
		"Track sentiment in real-time",
		"Compare sentiment over time",
		"Current Sentiment",
		"Very Negative: 10%",
		"© 2025 TweetPulse. All rights reserved.",
	} {
		if !strings.Contains(body, want) {
			t.Errorf("landing page missing %q", want)
		}
	}
	if env.cookie == nil {
		t.Error("session cookie not issued")
	}
}

func TestStartNavigatesImmediately(t *testing.T) {
	env := newTestEnv(t, http.StatusOK, `{}`, true)

	rec := env.do(t, http.MethodPost, "/start", url.Values{})
	if rec.Code != http.StatusSeeOther {
		t.Fatalf("status = %d, want 303", rec.Code)
	}
	if loc := rec.Header().Get("Location"); loc != "/analyzetweets" {
		t.Errorf("Location = %q", loc)
	}
	if !env.state(t).Landing.Jittering {
		t.Error("landing update should be pending right after navigation")
	}

	env.controller.Wait()
	for _, s := range env.state(t).Landing.Slices {
		if s.Value < 5 {
			t.Errorf("slice %s = %v, below floor", s.Name, s.Value)
		}
	}
}

func TestAnalyzeFlowSuccess(t *testing.T) {
	env := newTestEnv(t, http.StatusOK, `{"positive_percentage":70,"negative_percentage":30}`, true)

	rec := env.do(t, http.MethodPost, "/analyzetweets", url.Values{"username": {"jack"}})
	if rec.Code != http.StatusSeeOther {
		t.Fatalf("status = %d", rec.Code)
	}
	env.controller.Wait()

	rec = env.do(t, http.MethodGet, "/analyzetweets", nil)
	body := rec.Body.String()
	for _, want := range []string{
		"Sentiment Analysis for @jack",
		"The tweets from @jack are predominantly positive (70%), showing an overall optimistic tone.",
		"New Analysis",
		"Try Sample Data",
	} {
		if !strings.Contains(body, want) {
			t.Errorf("analysis page missing %q", want)
		}
	}
	if strings.Contains(body, "Based on analysis of") {
		t.Error("tweet count line shown without tweet_count")
	}

	view := env.state(t).Analysis
	if len(view.Samples) != 2 || view.Source != "live" {
		t.Errorf("view = %+v", view)
	}
	if env.calls.Load() != 1 {
		t.Errorf("upstream called %d times", env.calls.Load())
	}
}

func TestAnalyzeFlowFallback(t *testing.T) {
	env := newTestEnv(t, http.StatusInternalServerError, `boom`, true)

	env.do(t, http.MethodPost, "/analyzetweets", url.Values{"username": {"jack"}})
	env.controller.Wait()

	rec := env.do(t, http.MethodGet, "/analyzetweets", nil)
	body := rec.Body.String()
	for _, want := range []string{
		"Failed to fetch data. Using sample data instead.",
		"Based on analysis of 42 recent tweets",
		"predominantly positive (65%)",
	} {
		if !strings.Contains(body, want) {
			t.Errorf("analysis page missing %q", want)
		}
	}

	view := env.state(t).Analysis
	if len(view.Samples) != 3 || view.Samples[2].Value != 10 || view.Source != "fallback" {
		t.Errorf("view = %+v", view)
	}
}

func TestAnalyzeFlowEmptyUsername(t *testing.T) {
	env := newTestEnv(t, http.StatusOK, `{"positive_percentage":70,"negative_percentage":30}`, true)

	env.do(t, http.MethodPost, "/analyzetweets", url.Values{"username": {""}})
	env.controller.Wait()

	rec := env.do(t, http.MethodGet, "/analyzetweets", nil)
	body := rec.Body.String()
	if !strings.Contains(body, "Please enter a Twitter username") {
		t.Error("input error not shown")
	}
	if !strings.Contains(body, `http-equiv="refresh"`) {
		t.Error("input error page should refresh to clear the message")
	}
	if env.calls.Load() != 0 {
		t.Errorf("upstream called %d times for empty input", env.calls.Load())
	}
}

func TestLoadingPageRefreshes(t *testing.T) {
	block := make(chan struct{})
	defer close(block)

	env := newTestEnvWithHandler(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-block:
		case <-r.Context().Done():
		}
	}), true)

	env.do(t, http.MethodPost, "/analyzetweets", url.Values{"username": {"jack"}})
	rec := env.do(t, http.MethodGet, "/analyzetweets", nil)
	body := rec.Body.String()
	if !strings.Contains(body, "Analyzing...") || !strings.Contains(body, `http-equiv="refresh"`) {
		t.Error("loading page should show progress and refresh")
	}

	env.do(t, http.MethodPost, "/analyzetweets/reset", url.Values{})
	if got := env.state(t).Analysis; got.Phase != "idle" {
		t.Errorf("Phase after reset = %s", got.Phase)
	}
}

func TestSampleButton(t *testing.T) {
	env := newTestEnv(t, http.StatusOK, `{}`, true)

	rec := env.do(t, http.MethodPost, "/analyzetweets/sample", url.Values{})
	if rec.Code != http.StatusSeeOther {
		t.Fatalf("status = %d", rec.Code)
	}
	env.controller.Wait()

	view := env.state(t).Analysis
	if view.Source != "sample" || view.Username != "elonmusk" || view.TweetCountLine == "" {
		t.Errorf("view = %+v", view)
	}
	if env.calls.Load() != 0 {
		t.Error("sample data must not reach the analyzer")
	}
}

func TestSampleButtonUsesTypedUsername(t *testing.T) {
	env := newTestEnv(t, http.StatusOK, `{}`, true)

	page := env.do(t, http.MethodGet, "/analyzetweets", nil).Body.String()
	if !strings.Contains(page, `form="analyze" formaction="/analyzetweets/sample"`) {
		t.Error("sample button should submit the analyze form input")
	}

	rec := env.do(t, http.MethodPost, "/analyzetweets/sample", url.Values{"username": {"jack"}})
	if rec.Code != http.StatusSeeOther {
		t.Fatalf("status = %d", rec.Code)
	}
	env.controller.Wait()

	if view := env.state(t).Analysis; view.Source != "sample" || view.Username != "jack" {
		t.Errorf("view = %+v", view)
	}
}

func TestLandingRevisitShowsDemoData(t *testing.T) {
	env := newTestEnv(t, http.StatusOK, `{}`, true)

	env.do(t, http.MethodPost, "/start", url.Values{})
	env.controller.Wait()

	body := env.do(t, http.MethodGet, "/", nil).Body.String()
	for _, want := range []string{"Positive: 40%", "Very Negative: 10%"} {
		if !strings.Contains(body, want) {
			t.Errorf("landing page missing %q after revisit", want)
		}
	}
	if got := env.state(t).Landing.Slices[0].Value; got != 40 {
		t.Errorf("stored landing slice = %v, want 40", got)
	}
}

func TestCharts(t *testing.T) {
	env := newTestEnv(t, http.StatusOK, `{}`, true)

	for _, path := range []string{"/charts/landing.svg", "/charts/analysis.svg"} {
		rec := env.do(t, http.MethodGet, path, nil)
		if rec.Code != http.StatusOK {
			t.Errorf("%s status = %d", path, rec.Code)
		}
		if ct := rec.Header().Get("Content-Type"); ct != "image/svg+xml" {
			t.Errorf("%s Content-Type = %q", path, ct)
		}
		if !strings.Contains(rec.Body.String(), "<svg") {
			t.Errorf("%s did not return SVG", path)
		}
	}
}

func TestAPIAnalyze(t *testing.T) {
	tests := []struct {
		name       string
		status     int
		body       string
		fallback   bool
		username   string
		wantStatus int
		wantSource string
		wantSlices int
	}{
		{"live", http.StatusOK, `{"positive_percentage":70,"negative_percentage":30,"neutral_percentage":0}`, true, "jack", http.StatusOK, "live", 2},
		{"fallback", http.StatusNotFound, `{}`, true, "jack", http.StatusOK, "fallback", 3},
		{"no fallback", http.StatusNotFound, `{}`, false, "jack", http.StatusBadGateway, "", 0},
		{"empty username", http.StatusOK, `{}`, true, "", http.StatusBadRequest, "", 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t, tt.status, tt.body, tt.fallback)
			rec := env.do(t, http.MethodGet, "/api/analyze?username="+url.QueryEscape(tt.username), nil)
			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d: %s", rec.Code, tt.wantStatus, rec.Body.String())
			}
			if tt.wantStatus == http.StatusBadRequest {
				var e errorResponse
				_ = json.Unmarshal(rec.Body.Bytes(), &e)
				if e.Error != "Please enter a Twitter username" {
					t.Errorf("error = %q", e.Error)
				}
				return
			}

			var view AnalysisView
			if err := json.Unmarshal(rec.Body.Bytes(), &view); err != nil {
				t.Fatal(err)
			}
			if string(view.Source) != tt.wantSource || len(view.Samples) != tt.wantSlices {
				t.Errorf("view = %+v", view)
			}
		})
	}
}

func TestHealthAndReady(t *testing.T) {
	env := newTestEnv(t, http.StatusOK, `{}`, true)

	if rec := env.do(t, http.MethodGet, "/health", nil); rec.Code != http.StatusOK {
		t.Errorf("/health status = %d", rec.Code)
	}
	if rec := env.do(t, http.MethodGet, "/ready", nil); rec.Code != http.StatusOK {
		t.Errorf("/ready without monitor status = %d", rec.Code)
	}

	healthy := &atomic.Bool{}
	env.server.opts.UpstreamHealthy = healthy
	if rec := env.do(t, http.MethodGet, "/ready", nil); rec.Code != http.StatusServiceUnavailable {
		t.Errorf("/ready unhealthy status = %d", rec.Code)
	}
	healthy.Store(true)
	if rec := env.do(t, http.MethodGet, "/ready", nil); rec.Code != http.StatusOK {
		t.Errorf("/ready healthy status = %d", rec.Code)
	}
}

func TestInvalidCookieIsReplaced(t *testing.T) {
	env := newTestEnv(t, http.StatusOK, `{}`, true)
	env.cookie = &http.Cookie{Name: testCookie, Value: "../../etc/passwd"}

	env.do(t, http.MethodGet, "/", nil)
	if env.cookie.Value == "../../etc/passwd" {
		t.Error("malformed session id was accepted")
	}
}

func TestUnknownRoute(t *testing.T) {
	env := newTestEnv(t, http.StatusOK, `{}`, true)
	if rec := env.do(t, http.MethodGet, "/nope", nil); rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}

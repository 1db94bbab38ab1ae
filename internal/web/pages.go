package web

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"io"
	"math"
	"time"

	"github.com/russross/blackfriday/v2"
	"github.com/spacesedan/tweetpulse/internal/charts"
	"github.com/spacesedan/tweetpulse/internal/models"
	"github.com/spacesedan/tweetpulse/internal/sentiment"
)

//go:embed templates/*.html
var templateFS embed.FS

//go:embed content/*.md
var contentFS embed.FS

const (
	PAGE_LANDING  = "landing"
	PAGE_ANALYSIS = "analysis"

	LOADING_REFRESH_SECONDS = 1
)

var templateFuncs = template.FuncMap{
	"number":  sentiment.FormatNumber,
	"safeCSS": func(s string) template.CSS { return template.CSS(s) },
}

type renderer struct {
	pages    map[string]*template.Template
	features template.HTML
}

func newRenderer() (*renderer, error) {
	pages := make(map[string]*template.Template)
	for _, name := range []string{PAGE_LANDING, PAGE_ANALYSIS} {
		t, err := template.New(name).Funcs(templateFuncs).ParseFS(templateFS,
			"templates/layout.html", "templates/"+name+".html")
		if err != nil {
			return nil, fmt.Errorf("web: parse %s template: %w", name, err)
		}
		pages[name] = t
	}

	md, err := contentFS.ReadFile("content/landing.md")
	if err != nil {
		return nil, fmt.Errorf("web: read landing content: %w", err)
	}

	return &renderer{
		pages:    pages,
		features: renderMarkdown(md),
	}, nil
}

// renderMarkdown converts embedded page copy to HTML. The input is ours, so
// the output is trusted.
func renderMarkdown(md []byte) template.HTML {
	return template.HTML(blackfriday.Run(md))
}

func (r *renderer) render(w io.Writer, page string, data any) error {
	t, ok := r.pages[page]
	if !ok {
		return fmt.Errorf("web: unknown page %q", page)
	}
	var buf bytes.Buffer
	if err := t.ExecuteTemplate(&buf, "layout", data); err != nil {
		return fmt.Errorf("web: render %s: %w", page, err)
	}
	_, err := buf.WriteTo(w)
	return err
}

type landingPage struct {
	Title     string
	Refresh   int
	Features  template.HTML
	Jittering bool
	ChartURL  string
	Slices    []charts.Slice
}

type analysisPage struct {
	Title    string
	Refresh  int
	View     AnalysisView
	ChartURL string
}

func (r *renderer) landing(s models.LandingState, version int64) landingPage {
	p := landingPage{
		Title:     "TweetPulse",
		Features:  r.features,
		Jittering: s.Jittering,
		ChartURL:  fmt.Sprintf("/charts/landing.svg?v=%d", version),
		Slices:    charts.Slices(s.Samples, sentiment.LandingColors),
	}
	if s.Jittering {
		p.Refresh = LOADING_REFRESH_SECONDS
	}
	return p
}

func analysisPageFor(state models.AnalysisState, now time.Time) analysisPage {
	view := NewAnalysisView(state)
	p := analysisPage{
		Title:    "TweetPulse - Analyze Tweets",
		View:     view,
		ChartURL: fmt.Sprintf("/charts/analysis.svg?seq=%d&phase=%s", state.Seq, state.Phase),
	}

	switch {
	case view.Loading:
		p.Refresh = LOADING_REFRESH_SECONDS
	case state.ExpiresAt != nil:
		p.Refresh = int(math.Ceil(state.ExpiresAt.Sub(now).Seconds()))
		if p.Refresh < 1 {
			p.Refresh = 1
		}
	}
	return p
}

// AnalysisView is the render-ready form of an analysis state, shared by the
// HTML page and the JSON API.
type AnalysisView struct {
	Phase          models.Phase             `json:"phase"`
	Seq            uint64                   `json:"seq"`
	Loading        bool                     `json:"loading"`
	Username       string                   `json:"username,omitempty"`
	Source         models.ResultSource      `json:"source,omitempty"`
	Message        string                   `json:"message,omitempty"`
	HasChart       bool                     `json:"has_chart"`
	Samples        []models.SentimentSample `json:"samples"`
	Slices         []charts.Slice           `json:"-"`
	Summary        string                   `json:"summary,omitempty"`
	TweetCount     *int                     `json:"tweet_count,omitempty"`
	TweetCountLine string                   `json:"tweet_count_line,omitempty"`
}

func NewAnalysisView(state models.AnalysisState) AnalysisView {
	samples := sentiment.ToSamples(state.Result)
	if samples == nil {
		samples = []models.SentimentSample{}
	}

	v := AnalysisView{
		Phase:    state.Phase,
		Seq:      state.Seq,
		Loading:  state.IsLoading(),
		Username: state.Username,
		Source:   state.Source,
		Message:  state.Message,
		HasChart: len(samples) > 0,
		Samples:  samples,
		Slices:   charts.Slices(samples, sentiment.AnalysisColors),
		Summary:  sentiment.Summary(state.Username, samples),
	}
	if line, ok := sentiment.TweetCountLine(state.Result); ok {
		v.TweetCount = state.Result.TweetCount
		v.TweetCountLine = line
	}
	return v
}

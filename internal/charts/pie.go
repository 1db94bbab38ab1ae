package charts

import (
	"fmt"
	"html"
	"io"
	"math"
	"strings"

	"github.com/spacesedan/tweetpulse/internal/models"
	"github.com/spacesedan/tweetpulse/internal/sentiment"
	chart "github.com/wcharczuk/go-chart/v2"
	"github.com/wcharczuk/go-chart/v2/drawing"
)

const (
	DEFAULT_WIDTH  = 420
	DEFAULT_HEIGHT = 320

	CONTENT_TYPE_SVG = "image/svg+xml"
)

type PieOptions struct {
	Width   int
	Height  int
	Palette []string
	// Shown when there is nothing to draw.
	Placeholder string
}

// Slice is one rendered wedge with its legend text.
type Slice struct {
	Name  string  `json:"name"`
	Value float64 `json:"value"`
	Label string  `json:"label"`
	Color string  `json:"color"`
}

// Slices computes labels and colours. Share is the fraction of the total
// rounded to a whole percent, matching what the chart prints.
func Slices(samples []models.SentimentSample, palette []string) []Slice {
	var total float64
	for _, s := range samples {
		total += s.Value
	}

	out := make([]Slice, 0, len(samples))
	for i, s := range samples {
		share := 0.0
		if total > 0 {
			share = s.Value / total * 100
		}
		out = append(out, Slice{
			Name:  s.Name,
			Value: s.Value,
			Label: fmt.Sprintf("%s: %.0f%%", s.Name, math.Round(share)),
			Color: sentiment.ColorFor(palette, i),
		})
	}
	return out
}

// RenderPie writes samples as an SVG pie chart.
func RenderPie(w io.Writer, samples []models.SentimentSample, opts PieOptions) error {
	if opts.Width == 0 {
		opts.Width = DEFAULT_WIDTH
	}
	if opts.Height == 0 {
		opts.Height = DEFAULT_HEIGHT
	}

	if !drawable(samples) {
		return renderPlaceholder(w, opts)
	}

	slices := Slices(samples, opts.Palette)
	values := make([]chart.Value, 0, len(slices))
	for _, s := range slices {
		values = append(values, chart.Value{
			Label: s.Label,
			Value: s.Value,
			Style: chart.Style{
				FillColor:   colorFromHex(s.Color),
				StrokeColor: drawing.ColorWhite,
				StrokeWidth: 2,
				FontColor:   colorFromHex("#1f2937"),
				FontSize:    10,
			},
		})
	}

	pie := chart.PieChart{
		Width:  opts.Width,
		Height: opts.Height,
		Background: chart.Style{
			FillColor: drawing.ColorTransparent,
		},
		Canvas: chart.Style{
			FillColor: drawing.ColorTransparent,
		},
		Values: values,
	}

	if err := pie.Render(chart.SVG, w); err != nil {
		return fmt.Errorf("charts: render pie: %w", err)
	}
	return nil
}

// drawable is false for empty, negative or all-zero data, which go-chart
// refuses to render.
func drawable(samples []models.SentimentSample) bool {
	var total float64
	for _, s := range samples {
		if s.Value < 0 || math.IsNaN(s.Value) || math.IsInf(s.Value, 0) {
			return false
		}
		total += s.Value
	}
	return total > 0
}

func renderPlaceholder(w io.Writer, opts PieOptions) error {
	text := opts.Placeholder
	if text == "" {
		text = "No data"
	}
	_, err := fmt.Fprintf(w,
		`<svg xmlns="http://www.w3.org/2000/svg" width="%d" height="%d" viewBox="0 0 %d %d">`+
			`<circle cx="%d" cy="%d" r="%d" fill="none" stroke="#e5e7eb" stroke-width="16"/>`+
			`<text x="50%%" y="50%%" text-anchor="middle" dominant-baseline="middle" fill="#6b7280" font-family="sans-serif" font-size="14">%s</text>`+
			`</svg>`,
		opts.Width, opts.Height, opts.Width, opts.Height,
		opts.Width/2, opts.Height/2, min(opts.Width, opts.Height)/3,
		html.EscapeString(text))
	return err
}

func colorFromHex(hex string) drawing.Color {
	return drawing.ColorFromHex(strings.TrimPrefix(hex, "#"))
}

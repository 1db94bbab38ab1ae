package logging

import (
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/lmittmann/tint"
	"github.com/spacesedan/tweetpulse/config"
)

func InitLogger(cfg config.LogConfig) {
	slog.SetDefault(New(os.Stdout, cfg))
}

// New returns a tint-backed logger writing to w.
func New(w io.Writer, cfg config.LogConfig) *slog.Logger {
	handler := tint.NewHandler(w, &tint.Options{
		Level:      cfg.Level,
		TimeFormat: time.Kitchen,
		AddSource:  cfg.AddSource,
		NoColor:    w != os.Stdout,
	})

	return slog.New(handler)
}

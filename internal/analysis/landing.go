package analysis

import (
	"context"
	"log/slog"
	"slices"

	"github.com/spacesedan/tweetpulse/internal/models"
	"github.com/spacesedan/tweetpulse/internal/sentiment"
)

// OpenLanding returns the session as the landing page should show it. A
// fresh visit starts from the demo distribution again; a perturbation that is
// still pending is left alone.
func (c *Controller) OpenLanding(ctx context.Context, id string) (*models.Session, error) {
	unlock := c.lockSession(id)
	defer unlock()

	s, err := c.load(ctx, id)
	if err != nil {
		return nil, err
	}
	demo := sentiment.LandingDemoSamples()
	if s.Landing.Jittering || slices.Equal(s.Landing.Samples, demo) {
		return s, nil
	}

	s.Landing.Samples = demo
	if err := c.save(ctx, s); err != nil {
		return nil, err
	}
	return s, nil
}

// StartAnalysis schedules the landing chart perturbation and returns at once;
// callers navigate away without waiting for it.
func (c *Controller) StartAnalysis(ctx context.Context, id string) error {
	unlock := c.lockSession(id)
	defer unlock()

	s, err := c.load(ctx, id)
	if err != nil {
		return err
	}
	s.Landing.Jittering = true
	if err := c.save(ctx, s); err != nil {
		return err
	}

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		if !sleep(c.ctx, c.opts.JitterDelay) {
			return
		}
		c.applyJitter(id)
	}()
	return nil
}

func (c *Controller) applyJitter(id string) {
	unlock := c.lockSession(id)
	defer unlock()

	ctx, cancel := context.WithTimeout(context.Background(), SAVE_TIMEOUT)
	defer cancel()

	s, err := c.load(ctx, id)
	if err != nil {
		slog.Error("[Controller] Failed to load session for jitter",
			slog.String("session", id),
			slog.String("error", err.Error()))
		return
	}

	samples := s.Landing.Samples
	if len(samples) == 0 {
		samples = sentiment.LandingDemoSamples()
	}
	s.Landing = models.LandingState{Samples: sentiment.Jitter(samples, c.rnd)}

	if err := c.save(ctx, s); err != nil {
		slog.Error("[Controller] Failed to save landing jitter",
			slog.String("session", id),
			slog.String("error", err.Error()))
	}
}

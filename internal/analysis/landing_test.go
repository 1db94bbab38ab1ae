package analysis

import (
	"context"
	"testing"
	"time"

	"github.com/spacesedan/tweetpulse/internal/sentiment"
	"github.com/spacesedan/tweetpulse/internal/session"
)

func TestStartAnalysisJittersLandingData(t *testing.T) {
	c := NewController(failingFetcher(), session.NewMemoryStore(time.Hour), Options{JitterDelay: 10 * time.Millisecond})
	defer c.Close()
	c.rnd = func() float64 { return 0 }
	ctx := context.Background()

	s, err := c.Session(ctx, "s1")
	if err != nil {
		t.Fatal(err)
	}
	if len(s.Landing.Samples) != 4 || s.Landing.Samples[0].Value != 40 {
		t.Fatalf("fresh landing samples = %+v", s.Landing.Samples)
	}

	if err := c.StartAnalysis(ctx, "s1"); err != nil {
		t.Fatalf("StartAnalysis() error = %v", err)
	}
	s, _ = c.Session(ctx, "s1")
	if !s.Landing.Jittering {
		t.Error("landing should be marked as jittering until the delay passes")
	}

	c.Wait()
	s, _ = c.Session(ctx, "s1")
	if s.Landing.Jittering {
		t.Error("jittering flag not cleared")
	}
	want := []float64{30, 20, 10, sentiment.JITTER_FLOOR}
	for i, sample := range s.Landing.Samples {
		if sample.Value != want[i] {
			t.Errorf("sample %s = %v, want %v", sample.Name, sample.Value, want[i])
		}
	}
}

func TestStartAnalysisAbandonedOnClose(t *testing.T) {
	store := session.NewMemoryStore(time.Hour)
	c := NewController(failingFetcher(), store, Options{JitterDelay: time.Hour})
	ctx := context.Background()

	if err := c.StartAnalysis(ctx, "s1"); err != nil {
		t.Fatal(err)
	}
	c.Close()

	s, err := store.Get(ctx, "s1")
	if err != nil {
		t.Fatal(err)
	}
	if s.Landing.Samples[0].Value != 40 {
		t.Errorf("jitter applied after Close: %+v", s.Landing.Samples)
	}
}

func TestOpenLandingRestoresDemoData(t *testing.T) {
	c := NewController(failingFetcher(), session.NewMemoryStore(time.Hour), Options{JitterDelay: 10 * time.Millisecond})
	defer c.Close()
	c.rnd = func() float64 { return 0 }
	ctx := context.Background()

	if err := c.StartAnalysis(ctx, "s1"); err != nil {
		t.Fatal(err)
	}
	s, err := c.OpenLanding(ctx, "s1")
	if err != nil {
		t.Fatalf("OpenLanding() error = %v", err)
	}
	if !s.Landing.Jittering {
		t.Error("pending perturbation should survive OpenLanding")
	}

	c.Wait()
	s, _ = c.Session(ctx, "s1")
	if s.Landing.Samples[0].Value == 40 {
		t.Fatalf("perturbation not applied: %+v", s.Landing.Samples)
	}

	s, err = c.OpenLanding(ctx, "s1")
	if err != nil {
		t.Fatalf("OpenLanding() error = %v", err)
	}
	demo := sentiment.LandingDemoSamples()
	for i, sample := range s.Landing.Samples {
		if sample != demo[i] {
			t.Errorf("sample %d = %+v, want %+v", i, sample, demo[i])
		}
	}
	if stored, _ := c.Session(ctx, "s1"); stored.Landing.Samples[0].Value != 40 {
		t.Errorf("reset not saved: %+v", stored.Landing.Samples)
	}
}

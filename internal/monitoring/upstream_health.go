package monitoring

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"
)

// HealthChecker is satisfied by clients.AnalyzerClient.
type HealthChecker interface {
	HealthCheck(ctx context.Context) bool
}

// MonitorAnalyzerHealth probes the analyzer once immediately and then every
// interval, storing the result in healthy. It only logs transitions.
func MonitorAnalyzerHealth(ctx context.Context, checker HealthChecker, healthy *atomic.Bool, interval time.Duration) {
	check := func() {
		isHealthy := checker.HealthCheck(ctx)
		if ctx.Err() != nil {
			return
		}
		was := healthy.Swap(isHealthy)
		switch {
		case was && !isHealthy:
			slog.Warn("[HealthCheck] Analyzer is unhealthy")
		case !was && isHealthy:
			slog.Info("[HealthCheck] Analyzer is healthy")
		}
	}

	check()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			check()
		}
	}
}

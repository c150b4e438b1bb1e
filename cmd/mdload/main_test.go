package main

import (
	"context"
	"testing"

	"mdload/internal/config"
	"mdload/internal/metrics"
)

// Disabled or unknown metrics backends must resolve to the no-op backend;
// metrics never block a load run.
func TestBuildMetrics_FallsBackToNoop(t *testing.T) {
	for _, backend := range []string{"", "none", "statsd"} {
		mb := buildMetrics(context.Background(), config.Metrics{Backend: backend}, false)
		if _, ok := mb.(metrics.Noop); !ok {
			t.Fatalf("backend=%q resolved to %T, want metrics.Noop", backend, mb)
		}
	}
}

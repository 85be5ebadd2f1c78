package connectivity

import (
	"context"
	"log/slog"
	"time"
)

// HealthChecker is the gateway surface the prober needs.
type HealthChecker interface {
	Health(ctx context.Context) error
}

// Prober periodically probes the remote health endpoint and feeds the
// Monitor. A headless process has no platform connectivity push, so the
// probe synthesizes the signal; Monitor.SetOnline remains available for
// hosts that do have one.
type Prober struct {
	checker  HealthChecker
	monitor  *Monitor
	interval time.Duration
}

// NewProber creates a prober that checks reachability every interval.
func NewProber(checker HealthChecker, monitor *Monitor, interval time.Duration) *Prober {
	return &Prober{
		checker:  checker,
		monitor:  monitor,
		interval: interval,
	}
}

// Run starts the probe loop. It blocks until ctx is cancelled. The
// first probe runs immediately so the engine knows its state at start.
func (p *Prober) Run(ctx context.Context) {
	slog.Info("worker started",
		"component", "connectivity",
		"worker", "prober",
		"interval", p.interval.String(),
	)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.probe(ctx)

	for {
		select {
		case <-ctx.Done():
			slog.Info("worker stopped",
				"component", "connectivity",
				"worker", "prober",
				"reason", "context_cancelled",
			)
			return
		case <-ticker.C:
			p.probe(ctx)
		}
	}
}

func (p *Prober) probe(ctx context.Context) {
	err := p.checker.Health(ctx)
	if ctx.Err() != nil {
		return
	}

	online := err == nil
	wasOnline := p.monitor.IsOnline()
	p.monitor.SetOnline(online)

	if online != wasOnline {
		slog.Info("connectivity changed",
			"component", "connectivity",
			"online", online,
		)
	}
}

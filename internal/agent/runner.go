package agent

import (
	"context"
	"log/slog"
	"time"

	"github.com/haasonsaas/relay/internal/backoff"
	"github.com/haasonsaas/relay/internal/observability"
)

// RunnerConfig configures the run-to-completion driver.
type RunnerConfig struct {
	// MaxSteps is the step ceiling: the most model rounds one run may use.
	// On the final permitted step tools are stripped from the request.
	// Default: 30
	MaxSteps int

	// MaxAttempts bounds provider retries per step.
	// Default: 3
	MaxAttempts int

	// Backoff shapes the retry delays.
	Backoff backoff.Policy

	// Buffered suppresses delta events; consumers receive only tool events
	// and the final combined message.
	Buffered bool

	// Logger defaults to slog.Default.
	Logger *slog.Logger

	// Metrics is optional; nil disables instrumentation.
	Metrics *observability.Metrics
}

// DefaultRunnerConfig returns the default driver configuration.
func DefaultRunnerConfig() *RunnerConfig {
	return &RunnerConfig{
		MaxSteps:    30,
		MaxAttempts: 3,
		Backoff:     backoff.DefaultPolicy(),
	}
}

func sanitizeRunnerConfig(config *RunnerConfig) *RunnerConfig {
	if config == nil {
		return DefaultRunnerConfig()
	}
	cfg := *config
	if cfg.MaxSteps <= 0 {
		cfg.MaxSteps = 30
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.Backoff == (backoff.Policy{}) {
		cfg.Backoff = backoff.DefaultPolicy()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &cfg
}

// Runner drives a Loop to completion: it enforces the step ceiling, retries
// provider failures with backoff, and streams events to the caller.
type Runner struct {
	config *RunnerConfig
}

// NewRunner creates a driver. If config is nil, DefaultRunnerConfig is used.
func NewRunner(config *RunnerConfig) *Runner {
	return &Runner{config: sanitizeRunnerConfig(config)}
}

// Run drives the loop until Done or Error and closes the returned channel.
// The run itself never returns an error to the caller: every failure mode
// terminates in an error event carrying a user-facing reply.
func (r *Runner) Run(ctx context.Context, loop *Loop) <-chan Event {
	events := make(chan Event, 64)
	go func() {
		defer close(events)
		start := time.Now()

		emit := func(e Event) {
			if e.Kind == EventToolResult && r.config.Metrics != nil {
				result := "ok"
				if e.ToolIsError {
					result = "error"
				}
				r.config.Metrics.ToolCallsTotal.WithLabelValues(result).Inc()
			}
			if r.config.Buffered && e.Kind == EventDelta {
				return
			}
			events <- e
		}

		for step := 1; step <= r.config.MaxSteps; step++ {
			finalStep := step == r.config.MaxSteps
			done, err := r.runStep(ctx, loop, finalStep, emit)
			if err != nil {
				loop.Fail(err, emit)
				break
			}
			if r.config.Metrics != nil {
				r.config.Metrics.StepsTotal.Inc()
			}
			if done {
				break
			}
		}

		if r.config.Metrics != nil {
			r.config.Metrics.RunsTotal.WithLabelValues(string(loop.State())).Inc()
			r.config.Metrics.RunDuration.Observe(time.Since(start).Seconds())
		}
	}()
	return events
}

// runStep retries one step against provider failures. A nil error with
// done=false means the run continues to the next step.
func (r *Runner) runStep(ctx context.Context, loop *Loop, finalStep bool, emit func(Event)) (bool, error) {
	var lastErr error
	for attempt := 1; attempt <= r.config.MaxAttempts; attempt++ {
		done, err := loop.Step(ctx, finalStep, emit)
		if err == nil {
			return done, nil
		}
		lastErr = err
		r.config.Logger.Warn("provider call failed",
			"step", loop.StepCount()+1,
			"attempt", attempt,
			"error", err)
		if attempt < r.config.MaxAttempts {
			if serr := r.config.Backoff.Sleep(ctx, attempt); serr != nil {
				return false, serr
			}
		}
	}
	return false, lastErr
}

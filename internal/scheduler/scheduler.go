package scheduler

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"mev-alerts/internal/metrics"
)

// TickFunc is invoked on every tick.
type TickFunc func(ctx context.Context, at time.Time) error

// Options tune scheduler behaviour.
type Options struct {
	Interval     time.Duration
	AlignToStart bool
	StartupDelay time.Duration
	// Immediate runs one tick right after the startup delay.
	Immediate bool
}

// Scheduler drives the global evaluation tick. Ticks never overlap: when a
// tick runs past one or more deadlines those ticks are dropped.
type Scheduler struct {
	opts   Options
	logger zerolog.Logger
}

// New constructs a Scheduler instance.
func New(opts Options, logger zerolog.Logger) *Scheduler {
	if opts.Interval <= 0 {
		panic("scheduler interval must be positive")
	}
	return &Scheduler{opts: opts, logger: logger.With().Str("component", "scheduler").Logger()}
}

// Run blocks until ctx is cancelled. A tick that fails is logged and the
// loop keeps going.
func (s *Scheduler) Run(ctx context.Context, tick TickFunc) error {
	if err := sleep(ctx, s.opts.StartupDelay); err != nil {
		return err
	}

	if s.opts.Immediate {
		s.execute(ctx, tick, time.Now().UTC())
	}

	next := s.nextTick(time.Now().UTC())
	for {
		if now := time.Now().UTC(); now.After(next) {
			skipped := 0
			for !next.After(now) {
				next = next.Add(s.opts.Interval)
				skipped++
			}
			metrics.SkippedTicks.Add(float64(skipped))
			s.logger.Warn().Int("skipped", skipped).Time("next_tick", next).Msg("tick overran; skipping missed ticks")
		}

		s.logger.Debug().Time("next_tick", next).Msg("waiting for next tick")
		if err := sleep(ctx, time.Until(next)); err != nil {
			return err
		}

		s.execute(ctx, tick, next)
		next = next.Add(s.opts.Interval)
	}
}

func (s *Scheduler) execute(ctx context.Context, tick TickFunc, at time.Time) {
	started := time.Now()
	err := tick(ctx, at)
	elapsed := time.Since(started)
	metrics.TickDuration.Observe(elapsed.Seconds())

	if err != nil && ctx.Err() == nil {
		s.logger.Error().Err(err).Time("tick", at).Dur("elapsed", elapsed).Msg("tick execution failed")
		return
	}
	s.logger.Debug().Time("tick", at).Dur("elapsed", elapsed).Msg("tick finished")
}

func (s *Scheduler) nextTick(now time.Time) time.Time {
	if !s.opts.AlignToStart {
		return now.Add(s.opts.Interval)
	}
	return now.Truncate(s.opts.Interval).Add(s.opts.Interval)
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"mev-alerts/internal/alerting"
	"mev-alerts/internal/fetcher"
	"mev-alerts/internal/metrics"
	"mev-alerts/internal/model"
	"mev-alerts/internal/scheduler"
)

// SubscriberSource exposes the subscribers that want notifications.
type SubscriberSource interface {
	AllActive() []model.Subscriber
}

// Options tune evaluation.
type Options struct {
	LookbackBlocks int64
	Concurrency    int
}

// Outcome of evaluating one subscriber.
type Outcome string

const (
	OutcomeNotified       Outcome = "notified"
	OutcomeBelowThreshold Outcome = "below_threshold"
	OutcomeNoData         Outcome = "no_data"
	OutcomeUpstreamError  Outcome = "upstream_error"
	OutcomeDeliveryError  Outcome = "delivery_error"
)

// Result describes one evaluation.
type Result struct {
	Window   [2]int64
	Surfaced []model.EnrichedRecord
	Message  string
	Outcome  Outcome
}

// Service evaluates due subscribers on every scheduler tick: fetch the
// lookback window, correlate it against the subscriber's threshold, and
// deliver a notification when blocks surface.
type Service struct {
	ranges     fetcher.BlockRangeProvider
	mev        fetcher.MevDataSource
	validators fetcher.ValidatorDirectory
	subs       SubscriberSource
	sink       alerting.Sink
	cadence    *scheduler.Cadence
	logger     zerolog.Logger

	lookback    int64
	concurrency int
}

// New constructs the notification service.
func New(opts Options, ranges fetcher.BlockRangeProvider, mev fetcher.MevDataSource, validators fetcher.ValidatorDirectory, subs SubscriberSource, sink alerting.Sink, logger zerolog.Logger) *Service {
	lookback := opts.LookbackBlocks
	if lookback <= 0 {
		lookback = model.LookbackBlocks
	}
	concurrency := opts.Concurrency
	if concurrency <= 0 {
		concurrency = 1
	}

	return &Service{
		ranges:      ranges,
		mev:         mev,
		validators:  validators,
		subs:        subs,
		sink:        sink,
		cadence:     scheduler.NewCadence(),
		logger:      logger.With().Str("component", "service").Logger(),
		lookback:    lookback,
		concurrency: concurrency,
	}
}

// Run drives Tick from sched until ctx is cancelled.
func (s *Service) Run(ctx context.Context, sched *scheduler.Scheduler) error {
	if sched == nil {
		return fmt.Errorf("scheduler not configured")
	}
	return sched.Run(ctx, s.Tick)
}

// Tick evaluates every active subscriber that is due at now. Subscribers are
// evaluated concurrently and independently; a failure for one never affects
// the others, so Tick only returns an error when ctx is done.
func (s *Service) Tick(ctx context.Context, now time.Time) error {
	active := s.subs.AllActive()
	metrics.ActiveSubscribers.Set(float64(len(active)))

	keep := make(map[string]struct{}, len(active))
	due := make([]model.Subscriber, 0, len(active))
	for _, sub := range active {
		// Interval and threshold are not settled until the dialog completes.
		if sub.Stage.InDialog() {
			continue
		}
		keep[sub.ID] = struct{}{}
		if s.cadence.Claim(sub.ID, sub.UpdatedAt, sub.Interval(), now) {
			due = append(due, sub)
			continue
		}
		s.logger.Trace().Str("subscriber", sub.ID).Time("next_due", s.cadence.NextDue(sub.ID, sub.Interval())).Msg("subscriber not due")
	}
	s.cadence.Retain(keep)

	logger := s.logger.With().Str("cycle_id", uuid.NewString()).Logger()
	if len(due) == 0 {
		logger.Debug().Int("active", len(active)).Msg("no subscribers due")
		return nil
	}
	logger.Info().Int("active", len(active)).Int("due", len(due)).Msg("evaluating subscribers")

	g := new(errgroup.Group)
	g.SetLimit(s.concurrency)
	for _, sub := range due {
		sub := sub
		g.Go(func() error {
			if ctx.Err() != nil {
				return nil
			}
			if !s.evaluateAndDeliver(ctx, sub, logger) {
				s.cadence.Release(sub.ID, now)
			}
			return nil
		})
	}
	_ = g.Wait()

	return ctx.Err()
}

// evaluateAndDeliver reports whether the poll reached the upstream API. A
// failed poll does not count toward the subscriber's interval.
func (s *Service) evaluateAndDeliver(ctx context.Context, sub model.Subscriber, logger zerolog.Logger) bool {
	log := logger.With().Str("subscriber", sub.ID).Logger()

	res, err := s.Evaluate(ctx, sub.ThresholdUSD)
	if err != nil {
		if ctx.Err() != nil {
			return false
		}
		metrics.Evaluations.WithLabelValues(string(OutcomeUpstreamError)).Inc()
		logFetchError(log, err)
		return false
	}

	switch res.Outcome {
	case OutcomeNoData:
		log.Debug().Int64("from", res.Window[0]).Int64("to", res.Window[1]).Msg("no MEV data in window")
	case OutcomeBelowThreshold:
		log.Info().Str("threshold_usd", sub.ThresholdUSD.String()).Msg("no blocks above threshold")
	case OutcomeNotified:
		if err := s.sink.Deliver(ctx, sub.ID, res.Message); err != nil {
			res.Outcome = OutcomeDeliveryError
			log.Error().Err(err).Int("blocks", len(res.Surfaced)).Msg("failed to deliver notification")
			break
		}
		metrics.SurfacedBlocks.Add(float64(len(res.Surfaced)))
		log.Info().Int("blocks", len(res.Surfaced)).Str("threshold_usd", sub.ThresholdUSD.String()).Msg("notification sent")
	}
	metrics.Evaluations.WithLabelValues(string(res.Outcome)).Inc()
	return true
}

func logFetchError(log zerolog.Logger, err error) {
	if errors.Is(err, fetcher.ErrMalformedResponse) {
		log.Error().Err(err).Str("kind", "malformed_response").Msg("skipping subscriber this cycle")
		return
	}
	log.Warn().Err(err).Str("kind", "upstream_unavailable").Msg("skipping subscriber this cycle")
}

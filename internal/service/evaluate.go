package service

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"mev-alerts/internal/alerting"
	"mev-alerts/internal/correlator"
	"mev-alerts/internal/model"
)

// Evaluate fetches the current lookback window and correlates it against
// threshold. It performs no delivery. The validator directory is fetched
// alongside the range and MEV requests; the MEV request waits for the range.
func (s *Service) Evaluate(ctx context.Context, threshold decimal.Decimal) (Result, error) {
	var (
		res        Result
		records    []model.MevRecord
		validators []model.ValidatorIdentity
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		vs, err := s.validators.FetchAllValidators(gctx)
		if err != nil {
			return fmt.Errorf("fetch validators: %w", err)
		}
		validators = vs
		return nil
	})
	g.Go(func() error {
		br, err := s.ranges.FetchCurrentRange(gctx)
		if err != nil {
			return fmt.Errorf("fetch block range: %w", err)
		}
		from, to := br.Window(s.lookback)
		res.Window = [2]int64{from, to}

		recs, err := s.mev.FetchMevRecords(gctx, from, to)
		if err != nil {
			return fmt.Errorf("fetch mev records %d..%d: %w", from, to, err)
		}
		records = recs
		return nil
	})
	if err := g.Wait(); err != nil {
		return res, err
	}

	if len(records) == 0 {
		res.Outcome = OutcomeNoData
		return res, nil
	}

	res.Surfaced = correlator.Correlate(records, validators, threshold)
	if len(res.Surfaced) == 0 {
		res.Outcome = OutcomeBelowThreshold
		return res, nil
	}

	res.Message = alerting.RenderNotification(threshold, res.Surfaced)
	res.Outcome = OutcomeNotified
	return res, nil
}

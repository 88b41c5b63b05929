package app

import (
	"context"
	"fmt"
	"io"

	"github.com/shopspring/decimal"

	"mev-alerts/internal/alerting"
	"mev-alerts/internal/service"
)

// CheckOptions configure a one-off evaluation.
type CheckOptions struct {
	Threshold decimal.Decimal
	// ChatID delivers the notification over Telegram instead of printing it.
	ChatID string
}

// Check evaluates the current lookback window once against opts.Threshold.
func (a *App) Check(ctx context.Context, out io.Writer, opts CheckOptions) error {
	if opts.Threshold.IsNegative() {
		return fmt.Errorf("threshold cannot be negative")
	}

	var sink alerting.Sink = alerting.NewWriterSink(out)
	address := "stdout"
	if opts.ChatID != "" {
		if err := a.Config.RequireTelegram(); err != nil {
			return err
		}
		sink = alerting.NewTelegramSink(a.newTelegram(), a.Logger)
		address = opts.ChatID
	}

	svc := a.newService(a.newObservatory(), nil, sink)
	res, err := svc.Evaluate(ctx, opts.Threshold)
	if err != nil {
		return err
	}

	a.Logger.Info().Int64("from", res.Window[0]).Int64("to", res.Window[1]).
		Int("surfaced", len(res.Surfaced)).Str("outcome", string(res.Outcome)).Msg("check complete")

	switch res.Outcome {
	case service.OutcomeNoData:
		fmt.Fprintf(out, "no MEV data for blocks %d..%d\n", res.Window[0], res.Window[1])
		return nil
	case service.OutcomeBelowThreshold:
		fmt.Fprintf(out, "no blocks above $%s in blocks %d..%d\n", opts.Threshold.String(), res.Window[0], res.Window[1])
		return nil
	}
	return sink.Deliver(ctx, address, res.Message)
}

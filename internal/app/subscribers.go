package app

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"mev-alerts/internal/model"
)

// SubscribersOptions configure the subscribers listing.
type SubscribersOptions struct {
	ActiveOnly bool
}

// Subscribers prints stored subscriber settings.
func (a *App) Subscribers(ctx context.Context, out io.Writer, opts SubscribersOptions) error {
	store, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer store.Close()

	subs := store.All()
	if opts.ActiveOnly {
		subs = store.AllActive()
	}
	return writeSubscribers(out, subs)
}

func writeSubscribers(out io.Writer, subs []model.Subscriber) error {
	if len(subs) == 0 {
		fmt.Fprintln(out, "no subscribers found")
		return nil
	}

	writer := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "Chat\tEnabled\tInterval (h)\tThreshold (USD)\tStage\tUpdated (UTC)")
	for _, sub := range subs {
		updated := "-"
		if !sub.UpdatedAt.IsZero() {
			updated = sub.UpdatedAt.UTC().Format(time.RFC3339)
		}
		fmt.Fprintf(
			writer,
			"%s\t%t\t%d\t%s\t%s\t%s\n",
			sub.ID,
			sub.NotificationsEnabled,
			sub.IntervalHours,
			sub.ThresholdUSD.StringFixed(2),
			sub.Stage,
			updated,
		)
	}

	return writer.Flush()
}

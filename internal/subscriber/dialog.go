package subscriber

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"mev-alerts/internal/model"
)

// MaxIntervalHours bounds the polling interval to one year.
const MaxIntervalHours = 24 * 365

// ErrInvalidInput marks a reply that does not parse for the current stage.
// The stage is unchanged and nothing is persisted.
var ErrInvalidInput = errors.New("invalid input")

var errNoChange = errors.New("no change")

var (
	affirmative = map[string]struct{}{"y": {}, "yes": {}, "on": {}, "enable": {}, "enabled": {}, "true": {}, "1": {}}
	negative    = map[string]struct{}{"n": {}, "no": {}, "off": {}, "disable": {}, "disabled": {}, "false": {}, "0": {}}
)

// Outcome is the result of a dialog step: the subscriber after the step and
// the text to show them.
type Outcome struct {
	Subscriber model.Subscriber
	Message    string
}

// Dialog drives subscribers through configuration. The stage recorded on the
// subscriber alone decides which answer is expected next.
type Dialog struct {
	store *Store
}

// NewDialog binds a dialog to store.
func NewDialog(store *Store) *Dialog {
	return &Dialog{store: store}
}

// Configure creates or resets the subscriber to the start of the dialog.
func (d *Dialog) Configure(ctx context.Context, id string) (Outcome, error) {
	sub, err := d.store.Update(ctx, id, func(model.Subscriber, bool) (model.Subscriber, error) {
		return model.NewSubscriber(id), nil
	})
	if err != nil {
		return Outcome{}, err
	}
	return Outcome{Subscriber: sub, Message: Prompt(sub.Stage)}, nil
}

// Reply interprets free text according to the subscriber's stage.
func (d *Dialog) Reply(ctx context.Context, id, text string) (Outcome, error) {
	var message string
	sub, err := d.store.Update(ctx, id, func(cur model.Subscriber, ok bool) (model.Subscriber, error) {
		if !ok {
			return cur, ErrNotFound
		}
		next, msg, err := advance(cur, text)
		message = msg
		return next, err
	})

	switch {
	case err == nil:
		return Outcome{Subscriber: sub, Message: message}, nil
	case errors.Is(err, errNoChange):
		return Outcome{Subscriber: sub, Message: message}, nil
	case errors.Is(err, ErrInvalidInput):
		return Outcome{Subscriber: sub, Message: message}, err
	default:
		return Outcome{Subscriber: sub}, err
	}
}

// Stop turns notifications off. An active subscriber keeps its stage; a
// dialog in progress is abandoned.
func (d *Dialog) Stop(ctx context.Context, id string) (Outcome, error) {
	sub, err := d.store.Update(ctx, id, func(cur model.Subscriber, ok bool) (model.Subscriber, error) {
		if !ok {
			return cur, ErrNotFound
		}
		cur.NotificationsEnabled = false
		if cur.Stage != model.StageActive {
			cur.Stage = model.StageDisabled
		}
		return cur, nil
	})
	if err != nil {
		return Outcome{Subscriber: sub}, err
	}
	return Outcome{Subscriber: sub, Message: "Notifications stopped. Send /configure to turn them back on."}, nil
}

func advance(cur model.Subscriber, text string) (model.Subscriber, string, error) {
	switch cur.Stage {
	case model.StageAwaitingEnableChoice:
		enabled, err := ParseEnableChoice(text)
		if err != nil {
			return cur, "Please answer yes or no. " + Prompt(cur.Stage), err
		}
		if !enabled {
			cur.NotificationsEnabled = false
			cur.Stage = model.StageDisabled
			return cur, "Notifications are off. Send /configure to set them up again.", nil
		}
		cur.NotificationsEnabled = true
		cur.Stage = model.StageAwaitingInterval
		return cur, Prompt(cur.Stage), nil

	case model.StageAwaitingInterval:
		hours, err := ParseInterval(text)
		if err != nil {
			return cur, fmt.Sprintf("Please send a whole number of hours between 1 and %d. %s", MaxIntervalHours, Prompt(cur.Stage)), err
		}
		cur.IntervalHours = hours
		cur.Stage = model.StageAwaitingThreshold
		return cur, Prompt(cur.Stage), nil

	case model.StageAwaitingThreshold:
		threshold, err := ParseThreshold(text)
		if err != nil {
			return cur, "Please send a dollar amount of zero or more. " + Prompt(cur.Stage), err
		}
		cur.ThresholdUSD = threshold
		cur.Stage = model.StageActive
		return cur, Summary(cur), nil

	default:
		return cur, "Send /configure to change your notification settings.", errNoChange
	}
}

// Prompt returns the question asked at stage.
func Prompt(stage model.Stage) string {
	switch stage {
	case model.StageAwaitingEnableChoice:
		return "Do you want to receive MEV notifications? (yes/no)"
	case model.StageAwaitingInterval:
		return "How often should I check, in hours? (e.g. 4)"
	case model.StageAwaitingThreshold:
		return "Notify you about blocks with MEV above how many dollars? (e.g. 250)"
	default:
		return ""
	}
}

// Summary describes a subscriber's current settings.
func Summary(sub model.Subscriber) string {
	switch {
	case sub.Stage.InDialog():
		return "Configuration in progress. " + Prompt(sub.Stage)
	case !sub.NotificationsEnabled:
		return "Notifications are off. Send /configure to set them up."
	default:
		return fmt.Sprintf("Notifications are on: checking every %d hour(s) for blocks with MEV above $%s.",
			sub.IntervalHours, sub.ThresholdUSD.String())
	}
}

// ParseEnableChoice interprets a yes/no answer.
func ParseEnableChoice(text string) (bool, error) {
	token := strings.ToLower(strings.TrimSpace(text))
	if _, ok := affirmative[token]; ok {
		return true, nil
	}
	if _, ok := negative[token]; ok {
		return false, nil
	}
	return false, fmt.Errorf("%w: expected yes or no, got %q", ErrInvalidInput, text)
}

// ParseInterval parses a positive whole number of hours.
func ParseInterval(text string) (int, error) {
	raw := strings.TrimSpace(text)
	raw = strings.TrimSuffix(strings.ToLower(raw), "h")
	hours, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || hours < 1 || hours > MaxIntervalHours {
		return 0, fmt.Errorf("%w: interval %q", ErrInvalidInput, text)
	}
	return hours, nil
}

// ParseThreshold parses a non-negative dollar amount such as "250", "$1,000.50".
func ParseThreshold(text string) (decimal.Decimal, error) {
	raw := strings.TrimSpace(text)
	raw = strings.TrimPrefix(raw, "$")
	raw = strings.ReplaceAll(raw, ",", "")
	value, err := decimal.NewFromString(strings.TrimSpace(raw))
	if err != nil || value.IsNegative() {
		return decimal.Decimal{}, fmt.Errorf("%w: threshold %q", ErrInvalidInput, text)
	}
	return value, nil
}

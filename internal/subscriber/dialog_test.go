package subscriber

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mev-alerts/internal/model"
)

func newDialog(t *testing.T) (*Dialog, *Store, *memBackend) {
	t.Helper()
	backend := &memBackend{}
	store := openStore(t, backend)
	return NewDialog(store), store, backend
}

func TestDialogReachesActive(t *testing.T) {
	dialog, store, _ := newDialog(t)
	ctx := context.Background()

	out, err := dialog.Configure(ctx, "chat-1")
	require.NoError(t, err)
	assert.Equal(t, model.StageAwaitingEnableChoice, out.Subscriber.Stage)
	assert.False(t, out.Subscriber.NotificationsEnabled)
	assert.NotEmpty(t, out.Message)

	for _, input := range []string{"yes", "4", "250"} {
		_, err := dialog.Reply(ctx, "chat-1", input)
		require.NoError(t, err, input)
	}

	sub, ok := store.Get("chat-1")
	require.True(t, ok)
	assert.Equal(t, model.StageActive, sub.Stage)
	assert.True(t, sub.NotificationsEnabled)
	assert.Equal(t, 4, sub.IntervalHours)
	assert.True(t, sub.ThresholdUSD.Equal(decimal.NewFromInt(250)))
	assert.Len(t, store.AllActive(), 1)
}

func TestDialogAcceptsDefaultLookingValues(t *testing.T) {
	dialog, store, _ := newDialog(t)
	ctx := context.Background()

	_, err := dialog.Configure(ctx, "c")
	require.NoError(t, err)
	for _, input := range []string{"Yes", "1", "300"} {
		_, err := dialog.Reply(ctx, "c", input)
		require.NoError(t, err, input)
	}

	sub, _ := store.Get("c")
	assert.Equal(t, model.StageActive, sub.Stage)
	assert.Equal(t, 1, sub.IntervalHours)
	assert.True(t, sub.ThresholdUSD.Equal(decimal.NewFromInt(300)))
}

func TestDialogInvalidIntervalKeepsStage(t *testing.T) {
	dialog, store, backend := newDialog(t)
	ctx := context.Background()

	_, err := dialog.Configure(ctx, "c")
	require.NoError(t, err)
	_, err = dialog.Reply(ctx, "c", "yes")
	require.NoError(t, err)
	writes := backend.putCount()

	out, err := dialog.Reply(ctx, "c", "abc")
	require.ErrorIs(t, err, ErrInvalidInput)
	assert.Contains(t, out.Message, Prompt(model.StageAwaitingInterval))
	assert.Equal(t, writes, backend.putCount())

	sub, _ := store.Get("c")
	assert.Equal(t, model.StageAwaitingInterval, sub.Stage)
}

func TestDialogInvalidThresholdKeepsStage(t *testing.T) {
	dialog, store, backend := newDialog(t)
	ctx := context.Background()

	_, err := dialog.Configure(ctx, "c")
	require.NoError(t, err)
	for _, input := range []string{"y", "6"} {
		_, err := dialog.Reply(ctx, "c", input)
		require.NoError(t, err)
	}
	writes := backend.putCount()

	for _, input := range []string{"-5", "lots", ""} {
		_, err := dialog.Reply(ctx, "c", input)
		require.ErrorIs(t, err, ErrInvalidInput, input)
	}
	assert.Equal(t, writes, backend.putCount())

	sub, _ := store.Get("c")
	assert.Equal(t, model.StageAwaitingThreshold, sub.Stage)

	_, err = dialog.Reply(ctx, "c", "$1,000.50")
	require.NoError(t, err)
	sub, _ = store.Get("c")
	assert.Equal(t, "1000.5", sub.ThresholdUSD.String())
}

func TestDialogNegativeAnswerDisables(t *testing.T) {
	dialog, store, _ := newDialog(t)
	ctx := context.Background()

	_, err := dialog.Configure(ctx, "c")
	require.NoError(t, err)
	_, err = dialog.Reply(ctx, "c", "no")
	require.NoError(t, err)

	sub, ok := store.Get("c")
	require.True(t, ok)
	assert.Equal(t, model.StageDisabled, sub.Stage)
	assert.False(t, sub.NotificationsEnabled)
	assert.Empty(t, store.AllActive())
}

func TestDialogUnrecognisedChoiceReprompts(t *testing.T) {
	dialog, _, backend := newDialog(t)
	ctx := context.Background()

	_, err := dialog.Configure(ctx, "c")
	require.NoError(t, err)
	writes := backend.putCount()

	out, err := dialog.Reply(ctx, "c", "maybe")
	require.ErrorIs(t, err, ErrInvalidInput)
	assert.Equal(t, model.StageAwaitingEnableChoice, out.Subscriber.Stage)
	assert.Equal(t, writes, backend.putCount())
}

func TestDialogStopKeepsActiveStage(t *testing.T) {
	dialog, store, _ := newDialog(t)
	ctx := context.Background()

	_, err := dialog.Configure(ctx, "c")
	require.NoError(t, err)
	for _, input := range []string{"yes", "2", "100"} {
		_, err := dialog.Reply(ctx, "c", input)
		require.NoError(t, err)
	}

	out, err := dialog.Stop(ctx, "c")
	require.NoError(t, err)
	assert.False(t, out.Subscriber.NotificationsEnabled)
	assert.Equal(t, model.StageActive, out.Subscriber.Stage)
	assert.Empty(t, store.AllActive())

	// Reconfiguring restarts the full dialog.
	out, err = dialog.Configure(ctx, "c")
	require.NoError(t, err)
	assert.Equal(t, model.StageAwaitingEnableChoice, out.Subscriber.Stage)
	assert.Equal(t, model.DefaultIntervalHours, out.Subscriber.IntervalHours)
}

func TestDialogStopMidDialogAbandons(t *testing.T) {
	dialog, _, _ := newDialog(t)
	ctx := context.Background()

	_, err := dialog.Configure(ctx, "c")
	require.NoError(t, err)
	_, err = dialog.Reply(ctx, "c", "yes")
	require.NoError(t, err)

	out, err := dialog.Stop(ctx, "c")
	require.NoError(t, err)
	assert.Equal(t, model.StageDisabled, out.Subscriber.Stage)
	assert.False(t, out.Subscriber.NotificationsEnabled)
}

func TestDialogReplyOutsideDialogIsNoop(t *testing.T) {
	dialog, _, backend := newDialog(t)
	ctx := context.Background()

	_, err := dialog.Configure(ctx, "c")
	require.NoError(t, err)
	_, err = dialog.Reply(ctx, "c", "no")
	require.NoError(t, err)
	writes := backend.putCount()

	out, err := dialog.Reply(ctx, "c", "hello")
	require.NoError(t, err)
	assert.Contains(t, out.Message, "/configure")
	assert.Equal(t, writes, backend.putCount())
}

func TestDialogUnknownSubscriber(t *testing.T) {
	dialog, _, _ := newDialog(t)

	_, err := dialog.Reply(context.Background(), "ghost", "yes")
	require.ErrorIs(t, err, ErrNotFound)

	_, err = dialog.Stop(context.Background(), "ghost")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestDialogPersistenceFailureIsSurfaced(t *testing.T) {
	dialog, store, backend := newDialog(t)
	ctx := context.Background()

	_, err := dialog.Configure(ctx, "c")
	require.NoError(t, err)

	backend.failPut = errors.New("read-only filesystem")
	_, err = dialog.Reply(ctx, "c", "yes")

	var perr *PersistenceError
	require.ErrorAs(t, err, &perr)
	sub, _ := store.Get("c")
	assert.Equal(t, model.StageAwaitingEnableChoice, sub.Stage)
	assert.False(t, sub.NotificationsEnabled)
}

func TestParseInterval(t *testing.T) {
	cases := map[string]bool{"4": true, " 12 ": true, "6h": true, "0": false, "-1": false, "1.5": false, "abc": false, "9000": false}
	for input, ok := range cases {
		_, err := ParseInterval(input)
		if ok {
			assert.NoError(t, err, input)
		} else {
			assert.ErrorIs(t, err, ErrInvalidInput, input)
		}
	}
}

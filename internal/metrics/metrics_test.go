package metrics

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestServeStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- Serve(ctx, "127.0.0.1:0", zerolog.Nop()) }()

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("metrics server did not stop")
	}
}

func TestEvaluationsCounter(t *testing.T) {
	before := testutil.ToFloat64(Evaluations.WithLabelValues("notified"))
	Evaluations.WithLabelValues("notified").Inc()
	assert.Equal(t, before+1, testutil.ToFloat64(Evaluations.WithLabelValues("notified")))
}

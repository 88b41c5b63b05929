package app

import (
	"bytes"
	"context"
	"encoding/csv"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mev-alerts/internal/config"
	"mev-alerts/internal/model"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		Observatory: config.ObservatoryConfig{
			RequestTimeout: time.Second,
			LookbackBlocks: model.LookbackBlocks,
		},
		Scheduler: config.SchedulerConfig{Tick: time.Minute, Concurrency: 2},
		Store: config.StoreConfig{
			Backend: config.BackendFile,
			Path:    filepath.Join(t.TempDir(), "subscribers.json"),
		},
		Legacy: config.LegacyConfig{IntervalHours: 2, ThresholdUSD: 150},
	}
}

func observatoryServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/block_range", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"firstHeight": 1, "lastHeight": 120000}`))
	})
	mux.HandleFunc("/api/v1/raw_mev", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"datapoints": [
			{"height": 100000, "proposer": "pk1", "value": "500000000"},
			{"height": 100500, "proposer": "pk2", "value": "90000000"},
			{"height": 101000, "proposer": "pk3", "value": "1250500000"}
		]}`))
	})
	mux.HandleFunc("/api/v1/validator", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"validators": [{"pubkey": "pk1", "moniker": "alpha"}]}`))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestSeedLegacySubscriber(t *testing.T) {
	cfg := testConfig(t)
	cfg.Telegram.ChatID = "12345"
	a := NewApp(cfg, zerolog.Nop())
	ctx := context.Background()

	store, err := a.openStore(ctx)
	require.NoError(t, err)
	require.NoError(t, a.seedLegacySubscriber(ctx, store))

	sub, ok := store.Get("12345")
	require.True(t, ok)
	assert.Equal(t, model.StageActive, sub.Stage)
	assert.True(t, sub.NotificationsEnabled)
	assert.Equal(t, 2, sub.IntervalHours)
	assert.True(t, sub.ThresholdUSD.Equal(decimal.NewFromInt(150)))
	require.NoError(t, store.Close())

	// A stored record wins over the legacy settings on the next start.
	reopened, err := a.openStore(ctx)
	require.NoError(t, err)
	_, err = reopened.Update(ctx, "12345", func(cur model.Subscriber, _ bool) (model.Subscriber, error) {
		cur.NotificationsEnabled = false
		return cur, nil
	})
	require.NoError(t, err)
	require.NoError(t, a.seedLegacySubscriber(ctx, reopened))

	sub, _ = reopened.Get("12345")
	assert.False(t, sub.NotificationsEnabled)
}

func TestSeedLegacySubscriberWithoutChatID(t *testing.T) {
	a := NewApp(testConfig(t), zerolog.Nop())
	store, err := a.openStore(context.Background())
	require.NoError(t, err)

	require.NoError(t, a.seedLegacySubscriber(context.Background(), store))
	assert.Empty(t, store.All())
}

func TestCheckPrintsNotification(t *testing.T) {
	cfg := testConfig(t)
	cfg.Observatory.BaseURL = observatoryServer(t).URL
	a := NewApp(cfg, zerolog.Nop())

	var out bytes.Buffer
	err := a.Check(context.Background(), &out, CheckOptions{Threshold: decimal.NewFromInt(300)})
	require.NoError(t, err)

	text := out.String()
	assert.Contains(t, text, "Block Height: 100000, MEV Value: $500.00, Proposer: alpha")
	assert.Contains(t, text, "Block Height: 101000, MEV Value: $1250.50, Proposer: unknown")
	assert.NotContains(t, text, "100500")
}

func TestCheckBelowThreshold(t *testing.T) {
	cfg := testConfig(t)
	cfg.Observatory.BaseURL = observatoryServer(t).URL
	a := NewApp(cfg, zerolog.Nop())

	var out bytes.Buffer
	require.NoError(t, a.Check(context.Background(), &out, CheckOptions{Threshold: decimal.NewFromInt(5000)}))
	assert.Contains(t, out.String(), "no blocks above $5000 in blocks 70000..120000")
}

func TestCheckChatIDRequiresToken(t *testing.T) {
	a := NewApp(testConfig(t), zerolog.Nop())
	err := a.Check(context.Background(), &bytes.Buffer{}, CheckOptions{ChatID: "1"})
	assert.Error(t, err)
}

func TestExportWritesCSVAndPNG(t *testing.T) {
	cfg := testConfig(t)
	cfg.Observatory.BaseURL = observatoryServer(t).URL
	a := NewApp(cfg, zerolog.Nop())

	dir := t.TempDir()
	csvPath := filepath.Join(dir, "out", "blocks.csv")
	pngPath := filepath.Join(dir, "out", "blocks.png")
	err := a.Export(context.Background(), ExportOptions{
		Threshold: decimal.NewFromInt(100),
		CSVPath:   csvPath,
		PNGPath:   pngPath,
	})
	require.NoError(t, err)

	f, err := os.Open(csvPath)
	require.NoError(t, err)
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, []string{"height", "proposer_key", "moniker", "value_usd", "raw_value"}, rows[0])
	assert.Equal(t, []string{"100000", "pk1", "alpha", "500.00", "500000000"}, rows[1])
	assert.Equal(t, "unknown", rows[2][2])

	info, err := os.Stat(pngPath)
	require.NoError(t, err)
	assert.Greater(t, info.Size(), int64(0))
}

func TestExportRequiresOutput(t *testing.T) {
	a := NewApp(testConfig(t), zerolog.Nop())
	assert.Error(t, a.Export(context.Background(), ExportOptions{}))
}

func TestDownsampleRecords(t *testing.T) {
	records := make([]model.EnrichedRecord, 10)
	for i := range records {
		records[i].Height = int64(i)
	}

	got := downsampleRecords(records, 4)
	require.Len(t, got, 4)
	assert.Equal(t, int64(0), got[0].Height)
	assert.Equal(t, int64(9), got[3].Height)

	assert.Len(t, downsampleRecords(records, 0), 10)
	assert.Len(t, downsampleRecords(records, 20), 10)
}

func TestWriteSubscribers(t *testing.T) {
	var out bytes.Buffer
	require.NoError(t, writeSubscribers(&out, nil))
	assert.Equal(t, "no subscribers found\n", out.String())

	out.Reset()
	require.NoError(t, writeSubscribers(&out, []model.Subscriber{{
		ID: "42", NotificationsEnabled: true, IntervalHours: 4,
		ThresholdUSD: decimal.NewFromInt(250), Stage: model.StageActive,
	}}))
	assert.Contains(t, out.String(), "Threshold (USD)")
	assert.Contains(t, out.String(), "250.00")
	assert.Contains(t, out.String(), "active")
}

func TestWriteRecordsCSVReportsFlushError(t *testing.T) {
	if _, err := os.Stat("/dev/full"); err != nil {
		t.Skip("/dev/full not available")
	}
	records := []model.EnrichedRecord{{MevRecord: model.MevRecord{Height: 1, RawValue: decimal.NewFromInt(1)}}}

	err := writeRecordsCSV("/dev/full", records)
	assert.Error(t, err, "a write that fails on the final flush must be reported")
}

package app

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"

	"github.com/shopspring/decimal"
	chart "github.com/wcharczuk/go-chart/v2"

	"mev-alerts/internal/alerting"
	"mev-alerts/internal/model"
)

// ExportOptions hold parameters for exporting the current lookback window.
type ExportOptions struct {
	Threshold decimal.Decimal
	PNGPath   string
	CSVPath   string
	MaxPoints int
}

// Export evaluates the current window against opts.Threshold and writes the
// surfaced blocks as CSV and/or a PNG chart.
func (a *App) Export(ctx context.Context, opts ExportOptions) error {
	if opts.CSVPath == "" && opts.PNGPath == "" {
		return errors.New("at least one of --csv or --png must be provided")
	}
	if opts.Threshold.IsNegative() {
		return errors.New("threshold cannot be negative")
	}

	svc := a.newService(a.newObservatory(), nil, nil)
	res, err := svc.Evaluate(ctx, opts.Threshold)
	if err != nil {
		return err
	}
	if len(res.Surfaced) == 0 {
		a.Logger.Info().Int64("from", res.Window[0]).Int64("to", res.Window[1]).
			Str("outcome", string(res.Outcome)).Msg("no blocks to export")
		return nil
	}

	records := downsampleRecords(res.Surfaced, opts.MaxPoints)
	a.Logger.Info().Int("total", len(res.Surfaced)).Int("exported", len(records)).Msg("exporting blocks")

	if opts.CSVPath != "" {
		if err := writeRecordsCSV(opts.CSVPath, res.Surfaced); err != nil {
			return err
		}
	}

	if opts.PNGPath != "" {
		if err := writeRecordsPNG(opts.PNGPath, records, opts.Threshold); err != nil {
			return err
		}
	}

	return nil
}

// downsampleRecords keeps at most max evenly spaced records. The chart would
// be unreadable beyond a few thousand points; the CSV always gets every row.
func downsampleRecords(records []model.EnrichedRecord, max int) []model.EnrichedRecord {
	if max <= 0 || len(records) <= max {
		return records
	}
	if max == 1 {
		return records[:1]
	}

	result := make([]model.EnrichedRecord, 0, max)
	step := float64(len(records)-1) / float64(max-1)
	for i := 0; i < max; i++ {
		idx := int(math.Round(step * float64(i)))
		if idx >= len(records) {
			idx = len(records) - 1
		}
		result = append(result, records[idx])
	}
	return result
}

func writeRecordsCSV(path string, records []model.EnrichedRecord) (err error) {
	if err := ensureDir(path); err != nil {
		return err
	}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer closeFile(file, &err)

	writer := csv.NewWriter(file)

	header := []string{"height", "proposer_key", "moniker", "value_usd", "raw_value"}
	if err := writer.Write(header); err != nil {
		return err
	}

	for _, rec := range records {
		moniker := rec.Moniker
		if !rec.Known {
			moniker = alerting.UnknownProposer
		}
		row := []string{
			strconv.FormatInt(rec.Height, 10),
			rec.ProposerKey,
			moniker,
			rec.ValueUSD.StringFixed(2),
			rec.RawValue.String(),
		}
		if err := writer.Write(row); err != nil {
			return err
		}
	}

	writer.Flush()
	return writer.Error()
}

func writeRecordsPNG(path string, records []model.EnrichedRecord, threshold decimal.Decimal) (err error) {
	if err := ensureDir(path); err != nil {
		return err
	}

	heights := make([]float64, len(records))
	values := make([]float64, len(records))
	for i, rec := range records {
		heights[i] = float64(rec.Height)
		values[i] = rec.ValueUSD.InexactFloat64()
	}

	first, last := heights[0], heights[len(heights)-1]
	if first == last {
		last = first + 1
	}
	limit := threshold.InexactFloat64()

	usdFormatter := func(v interface{}) string {
		return chart.FloatValueFormatterWithFormat(v, "$%.0f")
	}
	heightFormatter := func(v interface{}) string {
		return chart.FloatValueFormatterWithFormat(v, "%.0f")
	}
	graph := chart.Chart{
		Title:  fmt.Sprintf("Blocks with MEV above $%s", threshold.String()),
		Width:  1280,
		Height: 720,
		XAxis: chart.XAxis{
			Name:           "Block height",
			ValueFormatter: heightFormatter,
		},
		YAxis: chart.YAxis{
			Name:           "MEV (USD)",
			ValueFormatter: usdFormatter,
		},
		Series: []chart.Series{
			chart.ContinuousSeries{
				Name:    "MEV value",
				XValues: heights,
				YValues: values,
				Style: chart.Style{
					StrokeWidth: chart.Disabled,
					DotWidth:    3,
				},
			},
			chart.ContinuousSeries{
				Name:    "Threshold",
				XValues: []float64{first, last},
				YValues: []float64{limit, limit},
			},
		},
	}
	graph.Elements = []chart.Renderable{chart.Legend(&graph)}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer closeFile(file, &err)

	return graph.Render(chart.PNG, file)
}

// closeFile closes f and reports its error unless an earlier one is set.
func closeFile(f *os.File, err *error) {
	if cerr := f.Close(); cerr != nil && *err == nil {
		*err = fmt.Errorf("close %s: %w", f.Name(), cerr)
	}
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}

package fetcher

import (
	"context"
	"fmt"
	"strconv"

	"github.com/shopspring/decimal"

	"mev-alerts/internal/model"
)

type rawMevResponse struct {
	Datapoints []rawMevDatapoint `json:"datapoints"`
}

type rawMevDatapoint struct {
	Height   flexInt          `json:"height"`
	Proposer string           `json:"proposer"`
	Value    *decimal.Decimal `json:"value"`
}

// FetchMevRecords retrieves MEV datapoints for [fromHeight, toHeight].
func (o *Observatory) FetchMevRecords(ctx context.Context, fromHeight, toHeight int64) ([]model.MevRecord, error) {
	if fromHeight > toHeight {
		return nil, fmt.Errorf("invalid height range %d..%d", fromHeight, toHeight)
	}

	query := orderedQuery(
		queryParam{"limit", strconv.Itoa(rawMevLimit)},
		queryParam{"from_height", strconv.FormatInt(fromHeight, 10)},
		queryParam{"to_height", strconv.FormatInt(toHeight, 10)},
		queryParam{"with_block_info", "True"},
	)

	var res rawMevResponse
	if err := o.getJSON(ctx, "raw_mev", rawMevPath, query, &res); err != nil {
		return nil, err
	}

	records := make([]model.MevRecord, 0, len(res.Datapoints))
	for i, dp := range res.Datapoints {
		if !dp.Height.set {
			return nil, malformed("raw_mev", "datapoint %d missing height", i)
		}
		if dp.Value == nil {
			return nil, malformed("raw_mev", "datapoint %d at height %d missing value", i, dp.Height.value)
		}
		records = append(records, model.MevRecord{
			Height:      dp.Height.value,
			ProposerKey: dp.Proposer,
			RawValue:    *dp.Value,
		})
	}

	o.logger.Debug().Int64("from", fromHeight).Int64("to", toHeight).Int("records", len(records)).Msg("fetched mev records")
	return records, nil
}

var _ MevDataSource = (*Observatory)(nil)

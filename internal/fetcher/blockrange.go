package fetcher

import (
	"context"

	"mev-alerts/internal/model"
)

type blockRangeResponse struct {
	FirstHeight *flexInt `json:"firstHeight"`
	LastHeight  *flexInt `json:"lastHeight"`
}

// FetchCurrentRange retrieves the chain's current height boundary.
func (o *Observatory) FetchCurrentRange(ctx context.Context) (model.BlockRange, error) {
	var res blockRangeResponse
	if err := o.getJSON(ctx, "block_range", blockRangePath, "", &res); err != nil {
		return model.BlockRange{}, err
	}

	if res.LastHeight == nil || !res.LastHeight.set {
		return model.BlockRange{}, malformed("block_range", "lastHeight missing")
	}

	br := model.BlockRange{LastHeight: res.LastHeight.value}
	if res.FirstHeight != nil && res.FirstHeight.set {
		br.FirstHeight = res.FirstHeight.value
	}
	return br, nil
}

var _ BlockRangeProvider = (*Observatory)(nil)

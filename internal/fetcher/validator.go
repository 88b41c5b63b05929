package fetcher

import (
	"context"

	"mev-alerts/internal/model"
)

type validatorResponse struct {
	Validators []struct {
		Pubkey  string `json:"pubkey"`
		Moniker string `json:"moniker"`
	} `json:"validators"`
}

// FetchAllValidators retrieves the full current validator set.
func (o *Observatory) FetchAllValidators(ctx context.Context) ([]model.ValidatorIdentity, error) {
	var res validatorResponse
	if err := o.getJSON(ctx, "validator", validatorPath, "", &res); err != nil {
		return nil, err
	}

	validators := make([]model.ValidatorIdentity, 0, len(res.Validators))
	for _, v := range res.Validators {
		validators = append(validators, model.ValidatorIdentity{Pubkey: v.Pubkey, Moniker: v.Moniker})
	}
	return validators, nil
}

var _ ValidatorDirectory = (*Observatory)(nil)

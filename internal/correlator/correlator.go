package correlator

import (
	"github.com/shopspring/decimal"

	"mev-alerts/internal/model"
)

// Correlate joins MEV records with validator identities by proposer key and
// keeps the records whose dollar value is strictly above thresholdUSD.
// Records with an unknown proposer are kept with Known=false. Output order
// follows the input records.
func Correlate(records []model.MevRecord, validators []model.ValidatorIdentity, thresholdUSD decimal.Decimal) []model.EnrichedRecord {
	monikers := make(map[string]string, len(validators))
	for _, v := range validators {
		monikers[v.Pubkey] = v.Moniker
	}

	out := make([]model.EnrichedRecord, 0)
	for _, rec := range records {
		usd := rec.USD()
		if !usd.GreaterThan(thresholdUSD) {
			continue
		}
		moniker, known := monikers[rec.ProposerKey]
		out = append(out, model.EnrichedRecord{
			MevRecord: rec,
			ValueUSD:  usd,
			Moniker:   moniker,
			Known:     known,
		})
	}
	return out
}

package alerting

import (
	"fmt"
	"html"
	"strings"

	"github.com/shopspring/decimal"

	"mev-alerts/internal/model"
)

// UnknownProposer is shown when a block's proposer is not in the validator set.
const UnknownProposer = "unknown"

// RenderNotification formats surfaced blocks as Telegram HTML.
func RenderNotification(threshold decimal.Decimal, records []model.EnrichedRecord) string {
	builder := strings.Builder{}
	builder.WriteString(fmt.Sprintf("<b>Blocks with MEV value higher than $%s:</b>\n", threshold.String()))
	for _, rec := range records {
		moniker := rec.Moniker
		if !rec.Known || moniker == "" {
			moniker = UnknownProposer
		}
		builder.WriteString(fmt.Sprintf("Block Height: %d, MEV Value: $%s, Proposer: %s\n",
			rec.Height, rec.ValueUSD.StringFixed(2), html.EscapeString(moniker)))
	}
	return builder.String()
}

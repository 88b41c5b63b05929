package model

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	// MicroDenomination converts raw MEV values into dollars.
	MicroDenomination = 1_000_000
	// LookbackBlocks is the span of recent blocks scanned per poll.
	LookbackBlocks int64 = 50_000

	DefaultIntervalHours = 1
)

// DefaultThresholdUSD is applied to new subscribers before they answer the dialog.
var DefaultThresholdUSD = decimal.NewFromInt(300)

var microDenomination = decimal.NewFromInt(MicroDenomination)

// BlockRange is the chain's currently known height boundary.
type BlockRange struct {
	FirstHeight int64
	LastHeight  int64
}

// Window returns the lookback window ending at LastHeight.
func (r BlockRange) Window(lookback int64) (from, to int64) {
	from = r.LastHeight - lookback
	if from < 0 {
		from = 0
	}
	return from, r.LastHeight
}

// MevRecord is one captured-value datapoint for a block.
type MevRecord struct {
	Height      int64
	ProposerKey string
	RawValue    decimal.Decimal
}

// USD converts the raw micro-denominated value into dollars.
func (r MevRecord) USD() decimal.Decimal {
	return r.RawValue.Div(microDenomination)
}

// ValidatorIdentity maps a validator public key to its display name.
type ValidatorIdentity struct {
	Pubkey  string
	Moniker string
}

// EnrichedRecord is a MevRecord left-joined with its proposer identity.
type EnrichedRecord struct {
	MevRecord
	ValueUSD decimal.Decimal
	Moniker  string
	Known    bool
}

// Stage tracks a subscriber's progress through the configuration dialog.
type Stage string

const (
	StageUnconfigured         Stage = "unconfigured"
	StageAwaitingEnableChoice Stage = "awaiting_enable_choice"
	StageAwaitingInterval     Stage = "awaiting_interval"
	StageAwaitingThreshold    Stage = "awaiting_threshold"
	StageActive               Stage = "active"
	StageDisabled             Stage = "disabled"
)

// Valid reports whether s is a known stage.
func (s Stage) Valid() bool {
	switch s {
	case StageUnconfigured, StageAwaitingEnableChoice, StageAwaitingInterval,
		StageAwaitingThreshold, StageActive, StageDisabled:
		return true
	}
	return false
}

// InDialog reports whether the subscriber is expected to answer a prompt.
func (s Stage) InDialog() bool {
	switch s {
	case StageAwaitingEnableChoice, StageAwaitingInterval, StageAwaitingThreshold:
		return true
	}
	return false
}

// Subscriber holds per-chat notification settings.
type Subscriber struct {
	ID                   string          `json:"id"`
	NotificationsEnabled bool            `json:"notifications_enabled"`
	IntervalHours        int             `json:"interval_hours"`
	ThresholdUSD         decimal.Decimal `json:"threshold_usd"`
	Stage                Stage           `json:"stage"`
	UpdatedAt            time.Time       `json:"updated_at"`
}

// NewSubscriber returns a record in its initial dialog state.
func NewSubscriber(id string) Subscriber {
	return Subscriber{
		ID:            id,
		IntervalHours: DefaultIntervalHours,
		ThresholdUSD:  DefaultThresholdUSD,
		Stage:         StageAwaitingEnableChoice,
	}
}

// Interval returns the polling cadence as a duration.
func (s Subscriber) Interval() time.Duration {
	return time.Duration(s.IntervalHours) * time.Hour
}

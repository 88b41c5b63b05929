package fetcher

import (
	"context"
	"errors"
	"fmt"

	"mev-alerts/internal/model"
)

var (
	// ErrUpstreamUnavailable covers transport failures, timeouts and non-success statuses.
	ErrUpstreamUnavailable = errors.New("upstream unavailable")
	// ErrMalformedResponse indicates the upstream answered with an unexpected shape.
	ErrMalformedResponse = errors.New("malformed response")
)

// BlockRangeProvider retrieves the chain's current height boundary.
type BlockRangeProvider interface {
	FetchCurrentRange(ctx context.Context) (model.BlockRange, error)
}

// MevDataSource retrieves raw MEV capture records for a height range.
type MevDataSource interface {
	FetchMevRecords(ctx context.Context, fromHeight, toHeight int64) ([]model.MevRecord, error)
}

// ValidatorDirectory retrieves the current validator set.
type ValidatorDirectory interface {
	FetchAllValidators(ctx context.Context) ([]model.ValidatorIdentity, error)
}

// APIError is a non-success HTTP status from the analytics API.
type APIError struct {
	Endpoint   string
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	if e.Body != "" {
		return fmt.Sprintf("observatory %s returned %d: %s", e.Endpoint, e.StatusCode, e.Body)
	}
	return fmt.Sprintf("observatory %s returned %d", e.Endpoint, e.StatusCode)
}

// Unwrap lets callers match status failures with ErrUpstreamUnavailable.
func (e *APIError) Unwrap() error {
	return ErrUpstreamUnavailable
}

func unavailable(endpoint string, err error) error {
	return fmt.Errorf("%w: %s: %v", ErrUpstreamUnavailable, endpoint, err)
}

func malformed(endpoint string, format string, args ...any) error {
	return fmt.Errorf("%w: %s: %s", ErrMalformedResponse, endpoint, fmt.Sprintf(format, args...))
}

// Outcome classifies an error for logs and metrics.
func Outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrMalformedResponse):
		return "malformed_response"
	case errors.Is(err, context.Canceled):
		return "canceled"
	default:
		return "upstream_unavailable"
	}
}

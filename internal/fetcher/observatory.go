package fetcher

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"mev-alerts/internal/metrics"
)

const (
	blockRangePath = "/api/v1/block_range"
	rawMevPath     = "/api/v1/raw_mev"
	validatorPath  = "/api/v1/validator"

	// rawMevLimit is the page size requested from raw_mev; a full lookback window fits in one page.
	rawMevLimit = 500000

	maxErrorBody = 512
)

// ObservatoryOptions parameterise the analytics API client.
type ObservatoryOptions struct {
	BaseURL   string
	Timeout   time.Duration
	UserAgent string
	RateLimit float64
	RateBurst int
}

// Observatory talks to the dYdX observatory analytics API. It implements
// BlockRangeProvider, MevDataSource and ValidatorDirectory.
type Observatory struct {
	opts    ObservatoryOptions
	logger  zerolog.Logger
	client  *http.Client
	baseURL string
	limiter *rate.Limiter
}

// NewObservatory constructs an analytics API client.
func NewObservatory(opts ObservatoryOptions, logger zerolog.Logger) *Observatory {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	opts.Timeout = timeout

	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://dydx.observatory.zone"
	}

	var limiter *rate.Limiter
	if opts.RateLimit > 0 {
		burst := opts.RateBurst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(opts.RateLimit), burst)
	}

	return &Observatory{
		opts:    opts,
		logger:  logger.With().Str("component", "observatory_fetcher").Logger(),
		client:  &http.Client{Timeout: timeout},
		baseURL: baseURL,
		limiter: limiter,
	}
}

// getJSON issues a GET and decodes the body into out. The call is bounded by
// the configured timeout regardless of the parent context.
func (o *Observatory) getJSON(parent context.Context, endpoint, path, rawQuery string, out any) (err error) {
	start := time.Now()
	defer func() {
		metrics.UpstreamLatency.WithLabelValues(endpoint).Observe(time.Since(start).Seconds())
		metrics.UpstreamRequests.WithLabelValues(endpoint, Outcome(err)).Inc()
	}()

	ctx, cancel := context.WithTimeout(parent, o.opts.Timeout)
	defer cancel()

	if o.limiter != nil {
		if err := o.limiter.Wait(ctx); err != nil {
			if parent.Err() != nil {
				return parent.Err()
			}
			return unavailable(endpoint, fmt.Errorf("rate limiter: %w", err))
		}
	}

	fullURL := o.baseURL + path
	if rawQuery != "" {
		fullURL += "?" + rawQuery
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if ua := strings.TrimSpace(o.opts.UserAgent); ua != "" {
		req.Header.Set("User-Agent", ua)
	}

	resp, err := o.client.Do(req)
	if err != nil {
		if parent.Err() != nil {
			return parent.Err()
		}
		return unavailable(endpoint, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return unavailable(endpoint, fmt.Errorf("read body: %w", err))
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &APIError{Endpoint: endpoint, StatusCode: resp.StatusCode, Body: truncate(strings.TrimSpace(string(body)), maxErrorBody)}
	}

	if err := json.Unmarshal(body, out); err != nil {
		return malformed(endpoint, "decode body: %v", err)
	}

	o.logger.Debug().Str("endpoint", endpoint).Dur("took", time.Since(start)).Msg("observatory request complete")
	return nil
}

type queryParam struct {
	key   string
	value string
}

// orderedQuery keeps parameters in the given order; url.Values would sort them.
func orderedQuery(params ...queryParam) string {
	parts := make([]string, 0, len(params))
	for _, p := range params {
		parts = append(parts, url.QueryEscape(p.key)+"="+url.QueryEscape(p.value))
	}
	return strings.Join(parts, "&")
}

// flexInt accepts JSON numbers and numeric strings.
type flexInt struct {
	value int64
	set   bool
}

func (f *flexInt) UnmarshalJSON(data []byte) error {
	raw := strings.TrimSpace(string(data))
	if raw == "null" {
		return nil
	}
	raw = strings.Trim(raw, `"`)
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		// Accept integral floats such as 123.0.
		fv, ferr := strconv.ParseFloat(raw, 64)
		if ferr != nil || fv != float64(int64(fv)) {
			return fmt.Errorf("not an integer: %s", raw)
		}
		v = int64(fv)
	}
	f.value = v
	f.set = true
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

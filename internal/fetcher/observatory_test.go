package fetcher

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func noopLogger() zerolog.Logger {
	return zerolog.Nop()
}

func newTestObservatory(t *testing.T, handler http.HandlerFunc) *Observatory {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewObservatory(ObservatoryOptions{BaseURL: srv.URL, Timeout: time.Second}, noopLogger())
}

func TestFetchCurrentRange(t *testing.T) {
	obs := newTestObservatory(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/block_range" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		_, _ = w.Write([]byte(`{"firstHeight": 100, "lastHeight": "123456"}`))
	})

	br, err := obs.FetchCurrentRange(context.Background())
	if err != nil {
		t.Fatalf("FetchCurrentRange: %v", err)
	}
	if br.LastHeight != 123456 || br.FirstHeight != 100 {
		t.Fatalf("unexpected range %+v", br)
	}
}

func TestFetchCurrentRangeMissingHeight(t *testing.T) {
	obs := newTestObservatory(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"firstHeight": 1}`))
	})

	_, err := obs.FetchCurrentRange(context.Background())
	if !errors.Is(err, ErrMalformedResponse) {
		t.Fatalf("expected ErrMalformedResponse, got %v", err)
	}
}

func TestFetchCurrentRangeNonNumericHeight(t *testing.T) {
	obs := newTestObservatory(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"lastHeight": "tip"}`))
	})

	_, err := obs.FetchCurrentRange(context.Background())
	if !errors.Is(err, ErrMalformedResponse) {
		t.Fatalf("expected ErrMalformedResponse, got %v", err)
	}
	if Outcome(err) != "malformed_response" {
		t.Fatalf("unexpected outcome %s", Outcome(err))
	}
}

func TestFetchCurrentRangeHTTPError(t *testing.T) {
	obs := newTestObservatory(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte("bad gateway"))
	})

	_, err := obs.FetchCurrentRange(context.Background())
	if !errors.Is(err, ErrUpstreamUnavailable) {
		t.Fatalf("expected ErrUpstreamUnavailable, got %v", err)
	}
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.StatusCode != http.StatusBadGateway {
		t.Fatalf("expected APIError with 502, got %v", err)
	}
}

func TestFetchTimeoutIsUpstreamUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	obs := NewObservatory(ObservatoryOptions{BaseURL: srv.URL, Timeout: 50 * time.Millisecond}, noopLogger())
	_, err := obs.FetchAllValidators(context.Background())
	if !errors.Is(err, ErrUpstreamUnavailable) {
		t.Fatalf("expected ErrUpstreamUnavailable on timeout, got %v", err)
	}
}

func TestFetchMevRecords(t *testing.T) {
	obs := newTestObservatory(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/raw_mev" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		want := "limit=500000&from_height=50000&to_height=100000&with_block_info=True"
		if r.URL.RawQuery != want {
			t.Errorf("query = %q, want %q", r.URL.RawQuery, want)
		}
		_, _ = w.Write([]byte(`{"datapoints": [
			{"height": 99990, "proposer": "pk1", "value": "500000000", "block": {}},
			{"height": "99995", "proposer": "pk2", "value": 1200000000.0}
		]}`))
	})

	records, err := obs.FetchMevRecords(context.Background(), 50000, 100000)
	if err != nil {
		t.Fatalf("FetchMevRecords: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(records))
	}
	if records[0].Height != 99990 || records[0].ProposerKey != "pk1" || records[0].RawValue.String() != "500000000" {
		t.Fatalf("unexpected first record %+v", records[0])
	}
	if records[1].Height != 99995 || records[1].USD().String() != "1200" {
		t.Fatalf("unexpected second record %+v", records[1])
	}
}

func TestFetchMevRecordsEmpty(t *testing.T) {
	obs := newTestObservatory(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"datapoints": []}`))
	})

	records, err := obs.FetchMevRecords(context.Background(), 1, 2)
	if err != nil {
		t.Fatalf("empty range should not fail: %v", err)
	}
	if len(records) != 0 {
		t.Fatalf("expected no records, got %d", len(records))
	}
}

func TestFetchMevRecordsRejectsInvertedRange(t *testing.T) {
	obs := NewObservatory(ObservatoryOptions{BaseURL: "http://127.0.0.1:1"}, noopLogger())
	if _, err := obs.FetchMevRecords(context.Background(), 10, 5); err == nil {
		t.Fatal("from > to should be rejected")
	}
}

func TestFetchMevRecordsMissingValue(t *testing.T) {
	obs := newTestObservatory(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"datapoints": [{"height": 1, "proposer": "pk"}]}`))
	})

	_, err := obs.FetchMevRecords(context.Background(), 0, 1)
	if !errors.Is(err, ErrMalformedResponse) {
		t.Fatalf("expected ErrMalformedResponse, got %v", err)
	}
}

func TestFetchAllValidators(t *testing.T) {
	obs := newTestObservatory(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/validator" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		_, _ = w.Write([]byte(`{"validators": [{"pubkey": "pk1", "moniker": "alpha", "stake": 1}, {"pubkey": "pk2", "moniker": "bravo"}]}`))
	})

	validators, err := obs.FetchAllValidators(context.Background())
	if err != nil {
		t.Fatalf("FetchAllValidators: %v", err)
	}
	if len(validators) != 2 || validators[0].Moniker != "alpha" || validators[1].Pubkey != "pk2" {
		t.Fatalf("unexpected validators %+v", validators)
	}
}

func TestFetchAllValidatorsBadJSON(t *testing.T) {
	obs := newTestObservatory(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`<html>`))
	})

	_, err := obs.FetchAllValidators(context.Background())
	if !errors.Is(err, ErrMalformedResponse) {
		t.Fatalf("expected ErrMalformedResponse, got %v", err)
	}
}

package provider

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"testing"

	"go.opentelemetry.io/otel/trace"
)

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(req *http.Request) (*http.Response, error) { return f(req) }

func jsonResponse(status int, body string) *http.Response {
	return &http.Response{
		StatusCode: status,
		Body:       io.NopCloser(bytes.NewBufferString(body)),
		Header:     make(http.Header),
	}
}

func TestSnapshotFeedFetch(t *testing.T) {
	f := NewSnapshotFeed("https://feed.example.com/", trace.NewNoopTracerProvider().Tracer("test"))
	f.client = &http.Client{Transport: roundTripFunc(func(req *http.Request) (*http.Response, error) {
		if req.URL.Path != "/snapshot" || req.URL.Query().Get("symbol") != "BTCUSDT" {
			t.Fatalf("unexpected url: %s", req.URL)
		}
		return jsonResponse(http.StatusOK, `{"price":64000.5,"prev_price":63990,"indicators":{"rsi":71.2}}`), nil
	})}

	snap, err := f.Fetch(context.Background(), "BTCUSDT")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if snap.Symbol != "BTCUSDT" || snap.Price != 64000.5 {
		t.Fatalf("unexpected snapshot: %+v", snap)
	}
	if snap.Indicators.RSI == nil || *snap.Indicators.RSI != 71.2 {
		t.Fatalf("rsi not decoded: %+v", snap.Indicators)
	}
}

func TestSnapshotFeedHTTPError(t *testing.T) {
	f := NewSnapshotFeed("https://feed.example.com", trace.NewNoopTracerProvider().Tracer("test"))
	f.client = &http.Client{Transport: roundTripFunc(func(*http.Request) (*http.Response, error) {
		return jsonResponse(http.StatusBadGateway, "upstream down"), nil
	})}

	if _, err := f.Fetch(context.Background(), "BTCUSDT"); err == nil {
		t.Fatal("expected error for 502")
	}
}

func TestSnapshotFeedBreakerOpens(t *testing.T) {
	calls := 0
	f := NewSnapshotFeed("https://feed.example.com", trace.NewNoopTracerProvider().Tracer("test"))
	f.limiter = NewRateLimiter(100, 1)
	f.client = &http.Client{Transport: roundTripFunc(func(*http.Request) (*http.Response, error) {
		calls++
		return nil, errors.New("connection refused")
	})}

	for i := 0; i < 5; i++ {
		_, _ = f.Fetch(context.Background(), "BTCUSDT")
	}
	_, err := f.Fetch(context.Background(), "BTCUSDT")
	if !errors.Is(err, ErrFeedUnavailable) {
		t.Fatalf("expected open breaker, got %v", err)
	}
	if calls != 5 {
		t.Fatalf("expected 5 transport calls, got %d", calls)
	}
}

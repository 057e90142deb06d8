package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"oraculum/internal/domain"

	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

var ErrFeedUnavailable = errors.New("snapshot feed unavailable")

// SnapshotFeed fetches precomputed market snapshots over HTTP from
// GET {base}/snapshot?symbol=SYMBOL.
type SnapshotFeed struct {
	client  *http.Client
	baseURL string
	tracer  trace.Tracer
	limiter *RateLimiter
	breaker *gobreaker.CircuitBreaker
}

func NewSnapshotFeed(baseURL string, tracer trace.Tracer) *SnapshotFeed {
	st := gobreaker.Settings{Name: "snapshot-feed", Timeout: 30 * time.Second}
	st.ReadyToTrip = func(counts gobreaker.Counts) bool { return counts.ConsecutiveFailures >= 5 }
	return &SnapshotFeed{
		client:  &http.Client{Timeout: 10 * time.Second},
		baseURL: baseURL,
		tracer:  tracer,
		limiter: NewRateLimiter(10, time.Second),
		breaker: gobreaker.NewCircuitBreaker(st),
	}
}

func (f *SnapshotFeed) Fetch(ctx context.Context, symbol string) (domain.MarketSnapshot, error) {
	ctx, span := f.tracer.Start(ctx, "snapshot-feed.fetch")
	defer span.End()
	span.SetAttributes(attribute.String("symbol", symbol))

	if err := f.limiter.Wait(ctx); err != nil {
		return domain.MarketSnapshot{}, err
	}
	out, err := f.breaker.Execute(func() (interface{}, error) {
		return f.fetch(ctx, symbol)
	})
	if err != nil {
		span.RecordError(err)
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return domain.MarketSnapshot{}, fmt.Errorf("%w: %v", ErrFeedUnavailable, err)
		}
		return domain.MarketSnapshot{}, err
	}
	return out.(domain.MarketSnapshot), nil
}

func (f *SnapshotFeed) fetch(ctx context.Context, symbol string) (domain.MarketSnapshot, error) {
	u := strings.TrimRight(f.baseURL, "/") + "/snapshot?symbol=" + url.QueryEscape(symbol)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return domain.MarketSnapshot{}, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := f.client.Do(req)
	if err != nil {
		return domain.MarketSnapshot{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return domain.MarketSnapshot{}, fmt.Errorf("snapshot feed error %d: %s", resp.StatusCode, string(body))
	}

	var snap domain.MarketSnapshot
	if err := json.NewDecoder(resp.Body).Decode(&snap); err != nil {
		return domain.MarketSnapshot{}, fmt.Errorf("decode snapshot: %w", err)
	}
	if snap.Symbol == "" {
		snap.Symbol = symbol
	}
	return snap, nil
}

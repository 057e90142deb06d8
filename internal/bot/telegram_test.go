package bot

import (
	"context"
	"errors"
	"strings"
	"testing"

	"oraculum/internal/domain"
	"oraculum/internal/engine"

	tele "gopkg.in/telebot.v3"
)

func TestStartWithoutTokenSkips(t *testing.T) {
	b, err := Start(Config{}, nil, nil)
	if err != nil || b != nil {
		t.Fatalf("expected skip, got %v %v", b, err)
	}
}

func TestStartPropagatesBotError(t *testing.T) {
	orig := newBot
	t.Cleanup(func() { newBot = orig })
	newBot = func(tele.Settings) (*tele.Bot, error) { return nil, errors.New("unauthorized") }

	if _, err := Start(Config{Token: "x"}, nil, nil); err == nil {
		t.Fatal("expected error")
	}
}

type stubForecaster struct {
	has bool
}

func (s stubForecaster) LastSnapshot() (domain.MarketSnapshot, bool) {
	return domain.MarketSnapshot{Symbol: "BTCUSDT", Price: 64000}, s.has
}

func (s stubForecaster) GetPrediction(context.Context, domain.MarketSnapshot) (domain.EnsembleResult, error) {
	return domain.EnsembleResult{
		Direction: domain.DirectionBear, ConfidenceRaw: 0.8, ConfidenceCalibrated: 0.66,
		Regime: domain.RegimeTrendingDown, Session: domain.SessionEurope, VolatilityBucket: domain.VolatilityNormal,
		Breakout: domain.BreakoutFakeRisk, BreakoutRisk: 0.7,
	}, nil
}

func (s stubForecaster) GetStats() engine.Stats {
	return engine.Stats{
		Overall:     engine.TallyStats{Samples: 10, Accuracy: 0.6},
		Horizons:    map[int]engine.HorizonStats{15: {TallyStats: engine.TallyStats{Samples: 4, Accuracy: 0.75}, Temperature: 1.2}, 5: {}},
		BestHorizon: 15,
	}
}

func (s stubForecaster) GetModelStats() []engine.ModelStats {
	return []engine.ModelStats{{Name: "momentum", Weight: 1.2, Accuracy: 0.61}}
}

func TestForecastReply(t *testing.T) {
	b := &Bot{engine: stubForecaster{}}
	if got := b.forecastReply(context.Background()); got != "No market snapshot observed yet." {
		t.Fatalf("unexpected reply: %s", got)
	}

	b.engine = stubForecaster{has: true}
	got := b.forecastReply(context.Background())
	for _, want := range []string{"BTCUSDT @ 64000.00", "Direction: BEAR", "Confidence: 66% (raw 80%)", "Breakout: FAKE_BREAKOUT_RISK"} {
		if !strings.Contains(got, want) {
			t.Fatalf("reply missing %q:\n%s", want, got)
		}
	}
}

func TestStatsReplyOrdersHorizons(t *testing.T) {
	b := &Bot{engine: stubForecaster{}}
	got := b.statsReply()
	if strings.Index(got, "5m:") > strings.Index(got, "15m:") {
		t.Fatalf("horizons out of order:\n%s", got)
	}
	if !strings.Contains(got, "Best horizon: 15m") || !strings.Contains(got, "momentum: w=1.20") {
		t.Fatalf("unexpected stats reply:\n%s", got)
	}
}

type recordingSender struct{ sent []string }

func (r *recordingSender) Send(_ tele.Recipient, what interface{}, _ ...interface{}) (*tele.Message, error) {
	r.sent = append(r.sent, what.(string))
	return &tele.Message{}, nil
}

func TestPublishNotifiesConfidentOutcomes(t *testing.T) {
	out := &recordingSender{}
	b := &Bot{out: out, chat: tele.ChatID(42), notifyAbove: 0.6}

	p := domain.Prediction{
		Symbol:  "ETHUSDT",
		Result:  domain.EnsembleResult{Direction: domain.DirectionBull, ConfidenceCalibrated: 0.7},
		Outcome: &domain.Outcome{Success: true, AvgPriceChange: 0.25},
	}
	if err := b.Publish(context.Background(), p); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	p.Result.ConfidenceCalibrated = 0.5
	_ = b.Publish(context.Background(), p)

	if len(out.sent) != 1 {
		t.Fatalf("expected one notification, got %d", len(out.sent))
	}
	if out.sent[0] != "HIT ETHUSDT BULL at 70%: avg move +0.25% over 0 checks" {
		t.Fatalf("unexpected message: %s", out.sent[0])
	}
}

func TestPublishWithoutChatIsNoop(t *testing.T) {
	b := &Bot{}
	if err := b.Publish(context.Background(), domain.Prediction{}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

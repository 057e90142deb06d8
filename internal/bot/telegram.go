package bot

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"oraculum/internal/domain"
	"oraculum/internal/engine"
	"oraculum/pkg/logger"

	tele "gopkg.in/telebot.v3"
)

type Forecaster interface {
	LastSnapshot() (domain.MarketSnapshot, bool)
	GetPrediction(ctx context.Context, snap domain.MarketSnapshot) (domain.EnsembleResult, error)
	GetStats() engine.Stats
	GetModelStats() []engine.ModelStats
}

type sender interface {
	Send(to tele.Recipient, what interface{}, opts ...interface{}) (*tele.Message, error)
}

var newBot = tele.NewBot

type Config struct {
	Token  string
	ChatID int64
	// NotifyAbove is the calibrated confidence an outcome needs to be posted.
	NotifyAbove float64
}

// Bot answers /forecast and /stats and posts finalized outcomes to a chat.
type Bot struct {
	engine      Forecaster
	out         sender
	chat        tele.Recipient
	notifyAbove float64
	log         *logger.Logger
}

// Start launches the bot. It returns nil without error when no token is set.
func Start(cfg Config, eng Forecaster, log *logger.Logger) (*Bot, error) {
	if log == nil {
		log = logger.Nop()
	}
	if cfg.Token == "" {
		log.Info("TELEGRAM_BOT_TOKEN not set, skipping Telegram bot startup")
		return nil, nil
	}
	b, err := newBot(tele.Settings{
		Token:  cfg.Token,
		Poller: &tele.LongPoller{Timeout: 10 * time.Second},
	})
	if err != nil {
		return nil, fmt.Errorf("create Telegram bot: %w", err)
	}

	bot := &Bot{engine: eng, out: b, notifyAbove: cfg.NotifyAbove, log: log.With(logger.String("component", "telegram"))}
	if cfg.ChatID != 0 {
		bot.chat = tele.ChatID(cfg.ChatID)
	}

	b.Handle("/ping", func(c tele.Context) error { return c.Send("pong") })
	b.Handle("/forecast", func(c tele.Context) error { return c.Send(bot.forecastReply(context.Background())) })
	b.Handle("/stats", func(c tele.Context) error { return c.Send(bot.statsReply()) })

	bot.log.Info("Telegram bot started")
	go b.Start()
	return bot, nil
}

func (b *Bot) forecastReply(ctx context.Context) string {
	snap, ok := b.engine.LastSnapshot()
	if !ok {
		return "No market snapshot observed yet."
	}
	res, err := b.engine.GetPrediction(ctx, snap)
	if err != nil {
		return fmt.Sprintf("Forecast failed: %v", err)
	}
	return formatForecast(snap, res)
}

func (b *Bot) statsReply() string {
	return formatStats(b.engine.GetStats(), b.engine.GetModelStats())
}

func (b *Bot) Name() string { return "telegram" }

// Publish posts a finalized prediction when a chat is configured and the
// forecast was confident enough.
func (b *Bot) Publish(_ context.Context, p domain.Prediction) error {
	if b.chat == nil || p.Result.ConfidenceCalibrated < b.notifyAbove {
		return nil
	}
	_, err := b.out.Send(b.chat, formatOutcome(p))
	return err
}

func formatForecast(snap domain.MarketSnapshot, res domain.EnsembleResult) string {
	var sb strings.Builder
	symbol := snap.Symbol
	if symbol == "" {
		symbol = "market"
	}
	fmt.Fprintf(&sb, "%s @ %.2f\n", symbol, snap.Price)
	fmt.Fprintf(&sb, "Direction: %s\n", res.Direction)
	fmt.Fprintf(&sb, "Confidence: %.0f%% (raw %.0f%%)\n", res.ConfidenceCalibrated*100, res.ConfidenceRaw*100)
	fmt.Fprintf(&sb, "Regime: %s | Session: %s | Volatility: %s\n", res.Regime, res.Session, res.VolatilityBucket)
	if res.Breakout != "" && res.Breakout != domain.BreakoutNeutral {
		fmt.Fprintf(&sb, "Breakout: %s (risk %.2f)\n", res.Breakout, res.BreakoutRisk)
	}
	if m := res.PatternMatch; m != nil {
		fmt.Fprintf(&sb, "Pattern: %s, %.0f%% similar, %.0f%% win over %d\n", m.Direction, m.Similarity*100, m.SuccessRate*100, m.Occurrences)
	}
	return strings.TrimRight(sb.String(), "\n")
}

func formatStats(st engine.Stats, models []engine.ModelStats) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Overall: %.1f%% over %.0f (Brier %.3f)\n", st.Overall.Accuracy*100, st.Overall.Samples, st.Overall.Brier)
	horizons := make([]int, 0, len(st.Horizons))
	for h := range st.Horizons {
		horizons = append(horizons, h)
	}
	sort.Ints(horizons)
	for _, h := range horizons {
		hs := st.Horizons[h]
		fmt.Fprintf(&sb, "%dm: %.1f%% over %.0f (T=%.2f)\n", h, hs.Accuracy*100, hs.Samples, hs.Temperature)
	}
	if st.BestHorizon > 0 {
		fmt.Fprintf(&sb, "Best horizon: %dm\n", st.BestHorizon)
	}
	fmt.Fprintf(&sb, "Pending: %d | Patterns: %d | LR: %.3f\n", st.Pending, st.MemorySize, st.LearningRate)
	for _, m := range models {
		fmt.Fprintf(&sb, "%s: w=%.2f acc=%.1f%%\n", m.Name, m.Weight, m.Accuracy*100)
	}
	return strings.TrimRight(sb.String(), "\n")
}

func formatOutcome(p domain.Prediction) string {
	result := "MISS"
	var change float64
	if p.Outcome != nil {
		change = p.Outcome.AvgPriceChange
		if p.Outcome.Success {
			result = "HIT"
		}
	}
	symbol := p.Symbol
	if symbol == "" {
		symbol = "market"
	}
	return fmt.Sprintf("%s %s %s at %.0f%%: avg move %+.2f%% over %d checks",
		result, symbol, p.Result.Direction, p.Result.ConfidenceCalibrated*100, change, len(p.Verifications))
}

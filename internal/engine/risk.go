package engine

import (
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/DouglasAmaral0/BinanceBot/config"
	"github.com/DouglasAmaral0/BinanceBot/internal/models"
)

// RiskGovernor enforces the daily trading limits: realized trade count,
// spacing since the last close and the cumulative loss cap. Counters
// reset when the UTC date changes.
type RiskGovernor struct {
	cfg *config.Config

	mu    sync.Mutex
	state models.DailyRiskState

	now func() time.Time
	log zerolog.Logger
}

func NewRiskGovernor(cfg *config.Config, logger zerolog.Logger) *RiskGovernor {
	return &RiskGovernor{
		cfg: cfg,
		now: time.Now,
		log: logger.With().Str("component", "risk").Logger(),
	}
}

// CanTrade reports whether a new entry is allowed right now. The second
// return value names the limit that blocked it.
func (r *RiskGovernor) CanTrade() (bool, string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rollover()

	if r.state.TradesCount >= r.cfg.MaxTradesPerDay {
		return false, fmt.Sprintf("daily trade limit reached (%d)", r.cfg.MaxTradesPerDay)
	}
	if !r.state.LastTradeTime.IsZero() && r.now().Sub(r.state.LastTradeTime) < r.cfg.MinTimeBetweenTrades {
		return false, fmt.Sprintf("last trade closed %s ago, minimum spacing %s",
			r.now().Sub(r.state.LastTradeTime).Round(time.Second), r.cfg.MinTimeBetweenTrades)
	}
	if r.state.CumulativePnL <= -r.cfg.MaxDailyLoss {
		return false, fmt.Sprintf("daily loss limit hit (%.2f USDT)", r.state.CumulativePnL)
	}
	return true, ""
}

// RecordClose counts a realized exit against today's limits and folds
// its PnL into the running total.
func (r *RiskGovernor) RecordClose(pnl float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rollover()

	r.state.TradesCount++
	r.state.LastTradeTime = r.now()
	r.state.CumulativePnL += pnl
	if r.state.CumulativePnL <= -r.cfg.MaxDailyLoss {
		r.log.Warn().Float64("cumulative_pnl", r.state.CumulativePnL).Msg("🛑 Daily loss limit reached, entries paused until tomorrow")
	}
}

// State snapshots the counters for persistence.
func (r *RiskGovernor) State() models.DailyRiskState {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rollover()
	return r.state
}

// Restore reloads persisted counters, discarding them if they belong to
// a previous day.
func (r *RiskGovernor) Restore(state models.DailyRiskState) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.state = state
	r.rollover()
}

func (r *RiskGovernor) rollover() {
	today := r.now().UTC().Format("2006-01-02")
	if r.state.Date != today {
		r.state = models.DailyRiskState{Date: today}
	}
}

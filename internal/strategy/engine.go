package strategy

import (
	"fmt"

	"github.com/nirre55/bot-final/internal/config"
	"github.com/nirre55/bot-final/internal/gateway/exchange"
	"github.com/nirre55/bot-final/internal/market"
	"github.com/nirre55/bot-final/internal/sizing"
	"github.com/nirre55/bot-final/internal/types"
)

// Engine is the lifecycle contract every variant implements. Engines only
// mutate Session state and return the side effects they need; the caller
// holds the locks named by Scope for the duration of each call.
type Engine interface {
	Variant() Variant

	// Scope lists the sides a cycle keyed by side can touch.
	Scope(side types.Side) []types.Side

	OnSignal(s *Session, sig types.Signal) ([]Action, error)

	OnFill(s *Session, c *Cycle, o *TrackedOrder) []Action

	OnAcknowledged(s *Session, c *Cycle, o *TrackedOrder)

	OnOrderFailed(s *Session, c *Cycle, o *TrackedOrder, err error) []Action

	OnCandle(s *Session, side types.Side, candles []market.Candle) []Action

	OnPosition(s *Session, c *Cycle, pos types.PositionSnapshot) []Action

	// Recover rebuilds cycles from a venue snapshot and recreates missing
	// targets. All sides are locked.
	Recover(s *Session, snap exchange.Snapshot) []Action

	// Cleanup returns the live orders that must survive shutdown.
	Cleanup(s *Session) []*TrackedOrder
}

// New builds the configured variant. It is called once at startup.
func New(cfg *config.Config) (Engine, error) {
	v, err := ParseVariant(cfg.Strategy.Variant)
	if err != nil {
		return nil, err
	}
	switch v {
	case VariantCascade:
		return NewCascade(cfg.Hedge, cfg.Cascade, cfg.TakeProfit), nil
	case VariantAccumulator:
		return NewAccumulator(cfg.Accumulator, cfg.TakeProfit), nil
	case VariantStopTarget:
		return NewStopTarget(cfg.StopTarget, cfg.TakeProfit), nil
	case VariantOneOrMore:
		return NewOneOrMore(cfg.Hedge, cfg.OneOrMore, cfg.TakeProfit), nil
	default:
		return nil, fmt.Errorf("variant %s has no engine", v)
	}
}

// QuantityFrom maps configuration onto the session sizing settings.
func QuantityFrom(cfg config.QuantityConfig) (QuantitySettings, error) {
	mode, err := sizing.ParseMode(cfg.Mode)
	if err != nil {
		return QuantitySettings{}, err
	}
	prog, err := sizing.ParseProgression(cfg.Progression)
	if err != nil {
		return QuantitySettings{}, err
	}
	return QuantitySettings{
		Mode:        mode,
		Progression: prog,
		FixedQty:    cfg.FixedQuantity,
		RiskPercent: cfg.RiskPercent,
		Step:        cfg.Step,
	}, nil
}

package risk

import (
	"errors"

	"bbbot/internal/strategy"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

var (
	ErrKillSwitch          = errors.New("kill_switch_enabled")
	ErrInvalidQuantity     = errors.New("invalid_quantity")
	ErrMaxNotionalExceeded = errors.New("max_notional_exceeded")
)

type RiskContext struct {
	Price      float64
	KillSwitch bool
	// MaxNotional caps price*qty for an entry order. Zero disables the check.
	MaxNotional float64
}

type ApprovedIntent struct {
	Intent strategy.TradeIntent
	Reason string
}

type Gate struct {
	Log *zap.Logger
}

func (g Gate) Evaluate(intent strategy.TradeIntent, ctx RiskContext) (ApprovedIntent, error) {
	log := g.Log
	if log == nil {
		log = zap.NewNop()
	}

	if intent.Action == strategy.Hold {
		return ApprovedIntent{Intent: intent, Reason: "hold"}, nil
	}

	notional := decimal.NewFromFloat(ctx.Price).Mul(intent.Qty)
	log.Info("risk evaluation", zap.String("intent", string(intent.Action)), zap.String("qty", intent.Qty.String()),
		zap.Float64("price", ctx.Price), zap.String("notional", notional.String()))

	if ctx.KillSwitch {
		log.Info("risk rejected", zap.String("reason", ErrKillSwitch.Error()))
		return ApprovedIntent{}, ErrKillSwitch
	}
	if !intent.Qty.IsPositive() {
		log.Info("risk rejected", zap.String("reason", ErrInvalidQuantity.Error()), zap.String("qty", intent.Qty.String()))
		return ApprovedIntent{}, ErrInvalidQuantity
	}
	if ctx.MaxNotional > 0 && notional.GreaterThan(decimal.NewFromFloat(ctx.MaxNotional)) {
		log.Info("risk rejected", zap.String("reason", ErrMaxNotionalExceeded.Error()),
			zap.String("notional", notional.String()), zap.Float64("max", ctx.MaxNotional))
		return ApprovedIntent{}, ErrMaxNotionalExceeded
	}

	log.Info("risk approved", zap.String("intent", string(intent.Action)), zap.String("qty", intent.Qty.String()), zap.String("reason", intent.Reason))
	return ApprovedIntent{Intent: intent, Reason: "approved"}, nil
}

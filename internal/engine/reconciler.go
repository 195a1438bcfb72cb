package engine

import (
	"context"
	"fmt"

	"bbbot/internal/broker"
	"bbbot/internal/metrics"

	"go.uber.org/zap"
)

type accountView struct {
	account   broker.Account
	positions []broker.Position
}

// reconcile reads the account and current positions from the terminal. A
// missing account is an error; a failed position query is only logged.
func (e *Engine) reconcile(ctx context.Context) (accountView, error) {
	account, err := e.broker.Account(ctx)
	if err != nil {
		return accountView{}, fmt.Errorf("account info unavailable: %w", err)
	}
	metrics.EquityGauge.Set(account.Equity)

	positions, err := e.broker.Positions(ctx, e.cfg.Symbol)
	if err != nil {
		e.log.Warn("reconcile position failed", zap.String("symbol", e.cfg.Symbol), zap.Error(err))
	}

	e.log.Info("account", zap.Float64("balance", account.Balance), zap.Float64("equity", account.Equity),
		zap.Int("positions", len(positions)))
	return accountView{account: account, positions: positions}, nil
}

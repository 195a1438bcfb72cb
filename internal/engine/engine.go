package engine

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"bbbot/internal/broker"
	"bbbot/internal/config"
	"bbbot/internal/indicator"
	"bbbot/internal/md"
	"bbbot/internal/metrics"
	"bbbot/internal/risk"
	"bbbot/internal/state"
	"bbbot/internal/strategy"

	"github.com/alpacahq/alpaca-trade-api-go/v3/alpaca"
	"go.uber.org/zap"
)

// Broker is the slice of the trading terminal the loop needs.
type Broker interface {
	Account(ctx context.Context) (broker.Account, error)
	Positions(ctx context.Context, symbol string) ([]broker.Position, error)
	PlaceOrder(ctx context.Context, req broker.OrderRequest) (broker.OrderRef, error)
}

type MarketData interface {
	RecentBars(ctx context.Context, symbol string, n int) ([]md.Bar, error)
	LatestQuote(ctx context.Context, symbol string) (md.Quote, error)
}

type Engine struct {
	cfg         config.Config
	strategy    strategy.Strategy
	gate        risk.Gate
	broker      Broker
	data        MarketData
	state       *state.Store
	decisions   *DecisionLogger
	log         *zap.Logger
	runID       string
	orderSeqNum uint64
	now         func() time.Time
}

func New(cfg config.Config, strategy strategy.Strategy, gate risk.Gate, brokerClient Broker, data MarketData, stateStore *state.Store, decisions *DecisionLogger, log *zap.Logger) *Engine {
	return &Engine{
		cfg:       cfg,
		strategy:  strategy,
		gate:      gate,
		broker:    brokerClient,
		data:      data,
		state:     stateStore,
		decisions: decisions,
		log:       log,
		runID:     decisions.RunID(),
		now:       time.Now,
	}
}

// Run polls until ctx is cancelled, waiting cfg.Interval between
// iterations. Iteration failures are logged and never stop the loop.
func (e *Engine) Run(ctx context.Context) error {
	for {
		e.RunOnce(ctx)
		if err := broker.WaitForContext(ctx, e.cfg.Interval); err != nil {
			return err
		}
	}
}

// RunOnce performs a single fetch, compute, act pass and returns the journaled
// decision.
func (e *Engine) RunOnce(ctx context.Context) Decision {
	decision := Decision{
		RunID:     e.runID,
		Timestamp: e.now().UTC(),
		Symbol:    e.cfg.Symbol,
		Intent:    strategy.Hold,
	}

	view, err := e.reconcile(ctx)
	if err != nil {
		decision.Result = "skipped"
		decision.RejectReason = err.Error()
		e.log.Error("iteration skipped", zap.Error(err))
		e.finish(decision, 0)
		metrics.Iterations.WithLabelValues("skipped").Inc()
		return decision
	}
	decision.Balance = view.account.Balance
	decision.Equity = view.account.Equity

	snapshot := e.marketSnapshot(ctx, &decision)
	intent := e.strategy.Decide(snapshot)
	decision.Intent = intent.Action
	decision.Reason = intent.Reason
	if intent.Action != strategy.Hold {
		decision.IntentQty = intent.Qty.String()
	}
	metrics.Actions.WithLabelValues(string(intent.Action)).Inc()

	switch {
	case intent.Action == strategy.Hold:
		decision.Result = "hold"
	case e.cfg.Mode == config.ModeDryRun:
		decision.Result = "dry_run"
		e.log.Info("dry run", zap.String("intent", string(intent.Action)), zap.String("qty", intent.Qty.String()))
	default:
		e.enter(ctx, intent, snapshot.Close, &decision)
	}

	if e.cfg.Mode != config.ModeDryRun {
		closed, err := e.closeAll(ctx)
		decision.Closed = closed
		if err != nil {
			decision.CloseError = err.Error()
		}
	}

	e.finish(decision, len(view.positions))
	metrics.Iterations.WithLabelValues("ok").Inc()
	return decision
}

func (e *Engine) marketSnapshot(ctx context.Context, decision *Decision) strategy.MarketSnapshot {
	snapshot := strategy.MarketSnapshot{Timestamp: decision.Timestamp, Symbol: e.cfg.Symbol}

	bars, err := e.data.RecentBars(ctx, e.cfg.Symbol, e.cfg.HistoryBars)
	if err != nil {
		e.log.Warn("market data unavailable", zap.String("symbol", e.cfg.Symbol), zap.Error(err))
		return snapshot
	}
	if len(bars) == 0 {
		e.log.Warn("market data unavailable", zap.String("symbol", e.cfg.Symbol), zap.String("reason", "no bars"))
		return snapshot
	}

	latest := bars[len(bars)-1]
	snapshot.Close = latest.Close
	decision.Close = latest.Close
	decision.BarTime = latest.Timestamp.UTC()

	bands, err := indicator.Bollinger(md.Closes(bars), e.cfg.Window, e.cfg.BandK)
	if err != nil {
		e.log.Warn("no signal", zap.String("symbol", e.cfg.Symbol), zap.Error(err))
		return snapshot
	}
	snapshot.Bands = &bands
	decision.SMA = bands.SMA
	decision.STD = bands.STD
	decision.UpperBand = bands.Upper
	decision.LowerBand = bands.Lower

	metrics.Bands.WithLabelValues("price").Set(latest.Close)
	metrics.Bands.WithLabelValues("sma").Set(bands.SMA)
	metrics.Bands.WithLabelValues("upper").Set(bands.Upper)
	metrics.Bands.WithLabelValues("lower").Set(bands.Lower)

	e.log.Info("bollinger", zap.Time("bar", decision.BarTime), zap.Float64("price", latest.Close),
		zap.Float64("upper", bands.Upper), zap.Float64("sma", bands.SMA), zap.Float64("lower", bands.Lower))
	return snapshot
}

// enter submits the entry order for a BUY or SELL intent. Failures are
// recorded on decision; there is no retry.
func (e *Engine) enter(ctx context.Context, intent strategy.TradeIntent, lastClose float64, decision *Decision) {
	quote, err := e.data.LatestQuote(ctx, e.cfg.Symbol)
	if err != nil {
		decision.Result = "quote_failed"
		decision.RejectReason = err.Error()
		e.log.Error("quote unavailable", zap.String("symbol", e.cfg.Symbol), zap.Error(err))
		metrics.Orders.WithLabelValues("entry", "quote_failed").Inc()
		return
	}
	price := quote.Ask
	if intent.Action == strategy.Sell {
		price = quote.Bid
	}
	if price <= 0 {
		price = lastClose
	}
	decision.OrderPrice = price

	approved, err := e.gate.Evaluate(intent, risk.RiskContext{
		Price:       price,
		KillSwitch:  e.cfg.KillSwitch,
		MaxNotional: e.cfg.MaxNotional,
	})
	if err != nil {
		decision.Result = "rejected"
		decision.RejectReason = err.Error()
		metrics.Orders.WithLabelValues("entry", "rejected").Inc()
		return
	}

	side := alpaca.Buy
	if approved.Intent.Action == strategy.Sell {
		side = alpaca.Sell
	}
	req, err := e.buildOrder(side, approved.Intent, price, "open")
	if err != nil {
		decision.Result = "order_build_failed"
		decision.RejectReason = err.Error()
		e.log.Error("order build failed", zap.Error(err))
		metrics.Orders.WithLabelValues("entry", "build_failed").Inc()
		return
	}
	decision.ClientOrderID = req.ClientOrderID

	ref, err := e.broker.PlaceOrder(ctx, req)
	decision.OrderID = ref.ID
	if err != nil {
		decision.Result = "order_failed"
		decision.RejectReason = err.Error()
		e.log.Error("entry order failed", zap.String("side", string(side)), zap.String("symbol", e.cfg.Symbol), zap.Error(err))
		metrics.Orders.WithLabelValues("entry", "failed").Inc()
		return
	}

	decision.Result = "order_submitted"
	decision.FillPrice = ref.FilledAvgPrice
	e.log.Info("order submitted", zap.String("symbol", e.cfg.Symbol), zap.String("side", string(side)),
		zap.String("qty", req.Qty.String()), zap.Float64("price", price), zap.String("order_id", ref.ID),
		zap.String("client_order_id", req.ClientOrderID))
	metrics.Orders.WithLabelValues("entry", "submitted").Inc()
}

// closeAll flattens every open position on the symbol with an opposite-side
// order. It stops at the first failure.
func (e *Engine) closeAll(ctx context.Context) (int, error) {
	positions, err := e.broker.Positions(ctx, e.cfg.Symbol)
	if err != nil {
		e.log.Error("close positions: position query failed", zap.String("symbol", e.cfg.Symbol), zap.Error(err))
		return 0, err
	}
	if len(positions) == 0 {
		return 0, nil
	}

	var quote md.Quote
	if q, err := e.data.LatestQuote(ctx, e.cfg.Symbol); err != nil {
		e.log.Warn("close positions: quote unavailable, closing at market", zap.Error(err))
	} else {
		quote = q
	}

	closed := 0
	for _, pos := range positions {
		side := pos.CloseSide()
		price := quote.Bid
		if side == alpaca.Buy {
			price = quote.Ask
		}
		req, err := e.buildOrder(side, strategy.TradeIntent{Qty: pos.Qty}, price, "close")
		if err != nil {
			return closed, err
		}

		if _, err := e.broker.PlaceOrder(ctx, req); err != nil {
			e.log.Error("close position failed", zap.String("symbol", pos.Symbol), zap.String("asset_id", pos.AssetID),
				zap.String("qty", pos.Qty.String()), zap.Error(err))
			metrics.Orders.WithLabelValues("close", "failed").Inc()
			return closed, fmt.Errorf("close %s position %s: %w", pos.Side, pos.AssetID, err)
		}
		closed++
		e.log.Info("position closed", zap.String("symbol", pos.Symbol), zap.String("side", pos.Side), zap.String("qty", pos.Qty.String()))
		metrics.Orders.WithLabelValues("close", "submitted").Inc()
	}
	return closed, nil
}

func (e *Engine) buildOrder(side alpaca.Side, intent strategy.TradeIntent, price float64, purpose string) (broker.OrderRequest, error) {
	tif, err := parseTimeInForce(e.cfg.TimeInForce)
	if err != nil {
		return broker.OrderRequest{}, err
	}
	if !intent.Qty.IsPositive() {
		return broker.OrderRequest{}, errors.New("order quantity must be positive")
	}
	return broker.OrderRequest{
		Symbol:        e.cfg.Symbol,
		Qty:           intent.Qty,
		Side:          side,
		Price:         price,
		Deviation:     e.cfg.Deviation,
		TimeInForce:   tif,
		ClientOrderID: e.nextClientOrderID(purpose),
	}, nil
}

func (e *Engine) finish(decision Decision, openPositions int) {
	e.decisions.Append(decision)
	lastError := decision.RejectReason
	if decision.CloseError != "" {
		lastError = decision.CloseError
	}
	e.state.Record(state.Snapshot{
		Symbol:        decision.Symbol,
		LastRun:       decision.Timestamp,
		LastBarTime:   decision.BarTime,
		Balance:       decision.Balance,
		Equity:        decision.Equity,
		Close:         decision.Close,
		SMA:           decision.SMA,
		STD:           decision.STD,
		UpperBand:     decision.UpperBand,
		LowerBand:     decision.LowerBand,
		Action:        string(decision.Intent),
		Result:        decision.Result,
		OpenPositions: openPositions,
		LastError:     lastError,
	})
}

func (e *Engine) nextClientOrderID(purpose string) string {
	seq := atomic.AddUint64(&e.orderSeqNum, 1)
	return fmt.Sprintf("%s-%s-%s-%d", e.cfg.OrderPrefix, purpose, e.runID, seq)
}

func parseTimeInForce(value string) (alpaca.TimeInForce, error) {
	switch value {
	case "gtc":
		return alpaca.GTC, nil
	case "ioc":
		return alpaca.IOC, nil
	case "day":
		return alpaca.Day, nil
	default:
		return "", fmt.Errorf("unsupported time in force: %s", value)
	}
}

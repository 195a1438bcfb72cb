package strategy

import (
	"time"

	"bbbot/internal/indicator"

	"github.com/shopspring/decimal"
)

type Action string

const (
	Hold Action = "HOLD"
	Buy  Action = "BUY"
	Sell Action = "SELL"
)

type MarketSnapshot struct {
	Timestamp time.Time
	Symbol    string
	Close     float64
	// Bands is nil when there was not enough history for the indicator.
	Bands *indicator.Bands
}

type TradeIntent struct {
	Action Action
	Qty    decimal.Decimal
	Reason string
}

type Strategy interface {
	Decide(snapshot MarketSnapshot) TradeIntent
}

package strategy

import "github.com/shopspring/decimal"

// Bollinger sells when the close breaks above the upper band and buys when it
// breaks below the lower band. Touching a band is not a signal.
type Bollinger struct {
	LotSize decimal.Decimal
}

func NewBollinger(lotSize decimal.Decimal) Bollinger {
	return Bollinger{LotSize: lotSize}
}

func (b Bollinger) Decide(snapshot MarketSnapshot) TradeIntent {
	if snapshot.Bands == nil {
		return TradeIntent{Action: Hold, Reason: "insufficient_data"}
	}

	if snapshot.Close > snapshot.Bands.Upper {
		return TradeIntent{
			Action: Sell,
			Qty:    b.LotSize,
			Reason: "price_above_upper_band",
		}
	}
	if snapshot.Close < snapshot.Bands.Lower {
		return TradeIntent{
			Action: Buy,
			Qty:    b.LotSize,
			Reason: "price_below_lower_band",
		}
	}
	return TradeIntent{Action: Hold, Reason: "within_bands"}
}

package strategy

import (
	"testing"

	"bbbot/internal/indicator"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func bandsFor(t *testing.T, closes []float64) *indicator.Bands {
	t.Helper()
	bands, err := indicator.Bollinger(closes, len(closes), 2)
	require.NoError(t, err)
	return &bands
}

func TestBollingerSellSignal(t *testing.T) {
	strat := NewBollinger(decimal.RequireFromString("0.01"))
	snapshot := MarketSnapshot{
		Close: 111,
		Bands: &indicator.Bands{SMA: 100, STD: 5, Upper: 110, Lower: 90},
	}
	intent := strat.Decide(snapshot)
	if intent.Action != Sell || !intent.Qty.Equal(decimal.RequireFromString("0.01")) {
		t.Fatalf("expected SELL qty=0.01, got %s qty=%s", intent.Action, intent.Qty)
	}
}

func TestBollingerBuySignal(t *testing.T) {
	strat := NewBollinger(decimal.RequireFromString("0.01"))
	snapshot := MarketSnapshot{
		Close: 89.99,
		Bands: &indicator.Bands{SMA: 100, STD: 5, Upper: 110, Lower: 90},
	}
	intent := strat.Decide(snapshot)
	if intent.Action != Buy || !intent.Qty.Equal(decimal.RequireFromString("0.01")) {
		t.Fatalf("expected BUY qty=0.01, got %s qty=%s", intent.Action, intent.Qty)
	}
}

func TestBollingerHoldSignal(t *testing.T) {
	strat := NewBollinger(decimal.RequireFromString("0.01"))
	bands := &indicator.Bands{SMA: 100, STD: 5, Upper: 110, Lower: 90}

	tests := []struct {
		name  string
		close float64
	}{
		{"at sma", 100},
		{"on upper band", 110},
		{"on lower band", 90},
		{"just inside upper", 109.999},
		{"just inside lower", 90.001},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			intent := strat.Decide(MarketSnapshot{Close: tt.close, Bands: bands})
			assert.Equal(t, Hold, intent.Action)
			assert.Equal(t, "within_bands", intent.Reason)
		})
	}
}

func TestBollingerHoldWithoutBands(t *testing.T) {
	intent := NewBollinger(decimal.NewFromInt(1)).Decide(MarketSnapshot{Close: 100})
	assert.Equal(t, Hold, intent.Action)
	assert.Equal(t, "insufficient_data", intent.Reason)
}

func TestBollingerConstantSeriesHoldsIndefinitely(t *testing.T) {
	strat := NewBollinger(decimal.RequireFromString("0.01"))
	closes := make([]float64, 20)
	for i := range closes {
		closes[i] = 250.5
	}
	bands := bandsFor(t, closes)

	for i := 0; i < 100; i++ {
		intent := strat.Decide(MarketSnapshot{Close: 250.5, Bands: bands})
		require.Equal(t, Hold, intent.Action)
	}
}

func TestBollingerSignalsFromComputedBands(t *testing.T) {
	strat := NewBollinger(decimal.RequireFromString("0.01"))
	closes := make([]float64, 20)
	for i := range closes {
		closes[i] = float64(i + 1)
	}
	bands := bandsFor(t, closes)

	assert.Equal(t, Sell, strat.Decide(MarketSnapshot{Close: bands.Upper + 0.01, Bands: bands}).Action)
	assert.Equal(t, Buy, strat.Decide(MarketSnapshot{Close: bands.Lower - 0.01, Bands: bands}).Action)
	assert.Equal(t, Hold, strat.Decide(MarketSnapshot{Close: bands.SMA, Bands: bands}).Action)
}

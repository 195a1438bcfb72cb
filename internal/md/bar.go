package md

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/alpacahq/alpaca-trade-api-go/v3/marketdata"
)

type Bar struct {
	Symbol    string
	Timestamp time.Time
	Open      float64
	High      float64
	Low       float64
	Close     float64
	Volume    float64
}

type Quote struct {
	Symbol    string
	Timestamp time.Time
	Bid       float64
	Ask       float64
}

// Closes returns the close prices of bars in order.
func Closes(bars []Bar) []float64 {
	closes := make([]float64, 0, len(bars))
	for _, bar := range bars {
		closes = append(closes, bar.Close)
	}
	return closes
}

// IsCrypto reports whether symbol is a crypto pair such as BTC/USD.
func IsCrypto(symbol string) bool {
	return strings.Contains(symbol, "/")
}

// ParseTimeFrame accepts values like 1Min, 15Min, 1Hour and 1Day.
func ParseTimeFrame(value string) (marketdata.TimeFrame, time.Duration, error) {
	units := []struct {
		suffix string
		unit   marketdata.TimeFrameUnit
		size   time.Duration
	}{
		{"Min", marketdata.Min, time.Minute},
		{"Hour", marketdata.Hour, time.Hour},
		{"Day", marketdata.Day, 24 * time.Hour},
	}
	for _, u := range units {
		if !strings.HasSuffix(value, u.suffix) {
			continue
		}
		n, err := strconv.Atoi(strings.TrimSuffix(value, u.suffix))
		if err != nil || n <= 0 {
			return marketdata.TimeFrame{}, 0, fmt.Errorf("invalid timeframe: %s", value)
		}
		return marketdata.NewTimeFrame(n, u.unit), time.Duration(n) * u.size, nil
	}
	return marketdata.TimeFrame{}, 0, fmt.Errorf("unsupported timeframe: %s", value)
}

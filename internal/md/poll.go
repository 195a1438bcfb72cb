package md

import (
	"context"
	"fmt"
	"time"

	"github.com/alpacahq/alpaca-trade-api-go/v3/marketdata"
	"go.uber.org/zap"
)

// minStockLookback is the widest window used for equities; it covers
// weekends and holidays when the market has no bars.
const minStockLookback = 96 * time.Hour

type dataClient interface {
	GetBars(symbol string, req marketdata.GetBarsRequest) ([]marketdata.Bar, error)
	GetCryptoBars(symbol string, req marketdata.GetCryptoBarsRequest) ([]marketdata.CryptoBar, error)
	GetLatestQuote(symbol string, req marketdata.GetLatestQuoteRequest) (*marketdata.Quote, error)
	GetLatestCryptoQuote(symbol string, req marketdata.GetLatestCryptoQuoteRequest) (*marketdata.CryptoQuote, error)
}

// Fetcher polls historical bars and the latest quote over REST.
type Fetcher struct {
	client    dataClient
	feed      marketdata.Feed
	timeFrame marketdata.TimeFrame
	barSize   time.Duration
	now       func() time.Time
	log       *zap.Logger
}

func NewFetcher(apiKey, apiSecret, feed, timeFrame string, log *zap.Logger) (*Fetcher, error) {
	client := marketdata.NewClient(marketdata.ClientOpts{
		APIKey:    apiKey,
		APISecret: apiSecret,
	})
	return newFetcher(client, feed, timeFrame, log)
}

func newFetcher(client dataClient, feed, timeFrame string, log *zap.Logger) (*Fetcher, error) {
	tf, size, err := ParseTimeFrame(timeFrame)
	if err != nil {
		return nil, err
	}
	return &Fetcher{
		client:    client,
		feed:      parseFeed(feed),
		timeFrame: tf,
		barSize:   size,
		now:       time.Now,
		log:       log,
	}, nil
}

// RecentBars returns up to n of the most recent bars for symbol, oldest
// first. Fewer than n bars are returned when the terminal has less history.
//
// The request window starts at 3n bars of wall time and only widens (up to
// minStockLookback) while it holds fewer than n bars, so a poll during
// trading hours asks for a handful of bars rather than days of them.
func (f *Fetcher) RecentBars(ctx context.Context, symbol string, n int) ([]Bar, error) {
	end := f.now().UTC()
	lookback := time.Duration(n*3) * f.barSize
	maxLookback := lookback
	if !IsCrypto(symbol) && maxLookback < minStockLookback {
		maxLookback = minStockLookback
	}

	var bars []Bar
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		var err error
		bars, err = f.fetchBars(symbol, end.Add(-lookback), end)
		if err != nil {
			return nil, err
		}
		if len(bars) >= n || lookback >= maxLookback {
			break
		}
		lookback *= 4
		if lookback > maxLookback {
			lookback = maxLookback
		}
	}

	if len(bars) > n {
		bars = bars[len(bars)-n:]
	}
	f.log.Debug("bars fetched", zap.String("symbol", symbol), zap.Int("count", len(bars)), zap.Int("requested", n),
		zap.Duration("lookback", lookback))
	return bars, nil
}

func (f *Fetcher) fetchBars(symbol string, start, end time.Time) ([]Bar, error) {
	if IsCrypto(symbol) {
		raw, err := f.client.GetCryptoBars(symbol, marketdata.GetCryptoBarsRequest{
			TimeFrame: f.timeFrame,
			Start:     start,
			End:       end,
		})
		if err != nil {
			return nil, fmt.Errorf("get crypto bars %s: %w", symbol, err)
		}
		bars := make([]Bar, 0, len(raw))
		for _, b := range raw {
			bars = append(bars, Bar{
				Symbol:    symbol,
				Timestamp: b.Timestamp,
				Open:      b.Open,
				High:      b.High,
				Low:       b.Low,
				Close:     b.Close,
				Volume:    b.Volume,
			})
		}
		return bars, nil
	}

	raw, err := f.client.GetBars(symbol, marketdata.GetBarsRequest{
		TimeFrame: f.timeFrame,
		Start:     start,
		End:       end,
		Feed:      f.feed,
	})
	if err != nil {
		return nil, fmt.Errorf("get bars %s: %w", symbol, err)
	}
	bars := make([]Bar, 0, len(raw))
	for _, b := range raw {
		bars = append(bars, Bar{
			Symbol:    symbol,
			Timestamp: b.Timestamp,
			Open:      b.Open,
			High:      b.High,
			Low:       b.Low,
			Close:     b.Close,
			Volume:    float64(b.Volume),
		})
	}
	return bars, nil
}

func (f *Fetcher) LatestQuote(ctx context.Context, symbol string) (Quote, error) {
	if err := ctx.Err(); err != nil {
		return Quote{}, err
	}
	if IsCrypto(symbol) {
		q, err := f.client.GetLatestCryptoQuote(symbol, marketdata.GetLatestCryptoQuoteRequest{})
		if err != nil {
			return Quote{}, fmt.Errorf("get crypto quote %s: %w", symbol, err)
		}
		if q == nil {
			return Quote{}, fmt.Errorf("no quote for %s", symbol)
		}
		return Quote{Symbol: symbol, Timestamp: q.Timestamp, Bid: q.BidPrice, Ask: q.AskPrice}, nil
	}
	q, err := f.client.GetLatestQuote(symbol, marketdata.GetLatestQuoteRequest{Feed: f.feed})
	if err != nil {
		return Quote{}, fmt.Errorf("get quote %s: %w", symbol, err)
	}
	if q == nil {
		return Quote{}, fmt.Errorf("no quote for %s", symbol)
	}
	return Quote{Symbol: symbol, Timestamp: q.Timestamp, Bid: q.BidPrice, Ask: q.AskPrice}, nil
}

func parseFeed(feed string) marketdata.Feed {
	switch feed {
	case "iex":
		return marketdata.IEX
	case "sip":
		return marketdata.SIP
	default:
		return marketdata.IEX
	}
}

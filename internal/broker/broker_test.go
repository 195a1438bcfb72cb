package broker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alpacahq/alpaca-trade-api-go/v3/alpaca"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeTradingClient struct {
	account  *alpaca.Account
	position *alpaca.Position
	order    *alpaca.Order
	err      error
	placed   []alpaca.PlaceOrderRequest
	symbols  []string
}

func (f *fakeTradingClient) GetAccount() (*alpaca.Account, error) {
	return f.account, f.err
}

func (f *fakeTradingClient) GetPosition(symbol string) (*alpaca.Position, error) {
	f.symbols = append(f.symbols, symbol)
	return f.position, f.err
}

func (f *fakeTradingClient) PlaceOrder(req alpaca.PlaceOrderRequest) (*alpaca.Order, error) {
	f.placed = append(f.placed, req)
	return f.order, f.err
}

func newTestClient(fake *fakeTradingClient) *Client {
	return &Client{client: fake, log: zap.NewNop()}
}

func TestPlaceOrderMarket(t *testing.T) {
	avg := decimal.RequireFromString("64001.5")
	fake := &fakeTradingClient{order: &alpaca.Order{ID: "o-1", ClientOrderID: "run-1", Status: "filled", FilledAvgPrice: &avg}}
	c := newTestClient(fake)

	ref, err := c.PlaceOrder(context.Background(), OrderRequest{
		Symbol:        "BTC/USD",
		Qty:           decimal.RequireFromString("0.01"),
		Side:          alpaca.Buy,
		Price:         64001,
		TimeInForce:   alpaca.GTC,
		ClientOrderID: "run-1",
	})
	require.NoError(t, err)
	assert.Equal(t, "o-1", ref.ID)
	assert.Equal(t, 64001.5, ref.FilledAvgPrice)

	require.Len(t, fake.placed, 1)
	placed := fake.placed[0]
	assert.Equal(t, alpaca.Market, placed.Type)
	assert.Nil(t, placed.LimitPrice)
	assert.True(t, placed.Qty.Equal(decimal.RequireFromString("0.01")))
	assert.Equal(t, alpaca.GTC, placed.TimeInForce)
}

func TestPlaceOrderDeviationBoundsLimit(t *testing.T) {
	tests := []struct {
		side  alpaca.Side
		price float64
		want  string
	}{
		{alpaca.Buy, 64001, "64011"},
		{alpaca.Sell, 64000.5, "63990.5"},
	}
	for _, tt := range tests {
		t.Run(string(tt.side), func(t *testing.T) {
			fake := &fakeTradingClient{order: &alpaca.Order{ID: "o-2", Status: "new"}}
			_, err := newTestClient(fake).PlaceOrder(context.Background(), OrderRequest{
				Symbol:    "BTC/USD",
				Qty:       decimal.RequireFromString("0.01"),
				Side:      tt.side,
				Price:     tt.price,
				Deviation: 10,
			})
			require.NoError(t, err)
			placed := fake.placed[0]
			assert.Equal(t, alpaca.Limit, placed.Type)
			require.NotNil(t, placed.LimitPrice)
			assert.True(t, placed.LimitPrice.Equal(decimal.RequireFromString(tt.want)), "limit=%s", placed.LimitPrice)
		})
	}
}

func TestPlaceOrderDeviationWithoutPriceStaysMarket(t *testing.T) {
	fake := &fakeTradingClient{order: &alpaca.Order{ID: "o-6", Status: "filled"}}
	_, err := newTestClient(fake).PlaceOrder(context.Background(), OrderRequest{
		Symbol:    "BTC/USD",
		Qty:       decimal.RequireFromString("0.01"),
		Side:      alpaca.Sell,
		Deviation: 10,
	})
	require.NoError(t, err)
	require.Len(t, fake.placed, 1)
	assert.Equal(t, alpaca.Market, fake.placed[0].Type)
	assert.Nil(t, fake.placed[0].LimitPrice)
}

func TestPlaceOrderNonSuccessStatus(t *testing.T) {
	orders := []*alpaca.Order{
		{ID: "o-3", Status: "rejected"},
		{ID: "o-4", Status: "canceled"},
		{ID: "o-5", Status: "expired"},
	}
	for _, order := range orders {
		fake := &fakeTradingClient{order: order}
		ref, err := newTestClient(fake).PlaceOrder(context.Background(), OrderRequest{Symbol: "BTC/USD", Qty: decimal.NewFromInt(1), Side: alpaca.Sell})
		require.ErrorIs(t, err, ErrOrderNotFilled)
		assert.Equal(t, string(order.Status), ref.Status)
		assert.Equal(t, order.ID, ref.ID)
	}
}

func TestPlaceOrderTransportError(t *testing.T) {
	boom := errors.New("connection reset")
	_, err := newTestClient(&fakeTradingClient{err: boom}).PlaceOrder(context.Background(), OrderRequest{Symbol: "BTC/USD", Qty: decimal.NewFromInt(1), Side: alpaca.Buy})
	require.ErrorIs(t, err, boom)
}

func TestPositionsNotFoundIsEmpty(t *testing.T) {
	fake := &fakeTradingClient{err: &alpaca.APIError{StatusCode: 404, Message: "position does not exist"}}
	positions, err := newTestClient(fake).Positions(context.Background(), "BTC/USD")
	require.NoError(t, err)
	assert.Empty(t, positions)
	assert.Equal(t, []string{"BTCUSD"}, fake.symbols)
}

func TestPositionsShort(t *testing.T) {
	fake := &fakeTradingClient{position: &alpaca.Position{
		Symbol:  "AAPL",
		Qty:     decimal.RequireFromString("-3"),
		Side:    "short",
		AssetID: "asset-1",
	}}
	positions, err := newTestClient(fake).Positions(context.Background(), "AAPL")
	require.NoError(t, err)
	require.Len(t, positions, 1)
	assert.True(t, positions[0].Qty.Equal(decimal.NewFromInt(3)))
	assert.Equal(t, alpaca.Buy, positions[0].CloseSide())
	assert.Equal(t, "asset-1", positions[0].AssetID)
}

func TestPositionsOtherErrorPropagates(t *testing.T) {
	fake := &fakeTradingClient{err: &alpaca.APIError{StatusCode: 500, Message: "internal"}}
	_, err := newTestClient(fake).Positions(context.Background(), "BTC/USD")
	require.Error(t, err)
}

func TestAccount(t *testing.T) {
	fake := &fakeTradingClient{account: &alpaca.Account{
		Cash:        decimal.RequireFromString("1000.5"),
		Equity:      decimal.RequireFromString("1200.25"),
		BuyingPower: decimal.RequireFromString("2000"),
	}}
	acct, err := newTestClient(fake).Account(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Account{Balance: 1000.5, Equity: 1200.25, BuyingPower: 2000}, acct)
}

func TestConnectFailure(t *testing.T) {
	_, err := newTestClient(&fakeTradingClient{err: errors.New("unauthorized")}).Connect(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connect to terminal")
}

func TestWaitForContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.ErrorIs(t, WaitForContext(ctx, time.Hour), context.Canceled)
	require.NoError(t, WaitForContext(context.Background(), time.Millisecond))
}

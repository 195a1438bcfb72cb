package broker

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/alpacahq/alpaca-trade-api-go/v3/alpaca"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// ErrOrderNotFilled is returned when the terminal accepted the request but
// reported a terminal non-success status.
var ErrOrderNotFilled = errors.New("order not filled")

type OrderRequest struct {
	Symbol string
	Qty    decimal.Decimal
	Side   alpaca.Side
	// Price is the reference price (ask for buys, bid for sells).
	Price float64
	// Deviation is the tolerated slippage in price units. Zero sends a plain
	// market order.
	Deviation     float64
	TimeInForce   alpaca.TimeInForce
	ClientOrderID string
}

type OrderRef struct {
	ID             string
	ClientOrderID  string
	Status         string
	FilledAvgPrice float64
}

type Position struct {
	Symbol  string
	Qty     decimal.Decimal
	Side    string
	AssetID string
}

// CloseSide is the order side that flattens the position.
func (p Position) CloseSide() alpaca.Side {
	if p.Side == "short" {
		return alpaca.Buy
	}
	return alpaca.Sell
}

type Account struct {
	Balance     float64
	Equity      float64
	BuyingPower float64
}

type tradingClient interface {
	GetAccount() (*alpaca.Account, error)
	GetPosition(symbol string) (*alpaca.Position, error)
	PlaceOrder(req alpaca.PlaceOrderRequest) (*alpaca.Order, error)
}

type Client struct {
	client tradingClient
	log    *zap.Logger
}

func New(apiKey, apiSecret, baseURL string, log *zap.Logger) *Client {
	opts := alpaca.ClientOpts{
		APIKey:    apiKey,
		APISecret: apiSecret,
		BaseURL:   baseURL,
	}
	return &Client{client: alpaca.NewClient(opts), log: log}
}

// Connect verifies credentials and reachability with an account query.
func (c *Client) Connect(ctx context.Context) (Account, error) {
	acct, err := c.Account(ctx)
	if err != nil {
		return Account{}, fmt.Errorf("connect to terminal: %w", err)
	}
	return acct, nil
}

func (c *Client) PlaceOrder(ctx context.Context, req OrderRequest) (OrderRef, error) {
	if err := ctx.Err(); err != nil {
		return OrderRef{}, err
	}
	qty := req.Qty
	orderReq := alpaca.PlaceOrderRequest{
		Symbol:        req.Symbol,
		Qty:           &qty,
		Side:          req.Side,
		Type:          alpaca.Market,
		TimeInForce:   req.TimeInForce,
		ClientOrderID: req.ClientOrderID,
	}
	if req.Deviation > 0 && req.Price > 0 {
		limitPrice := boundedPrice(req.Side, req.Price, req.Deviation)
		orderReq.Type = alpaca.Limit
		orderReq.LimitPrice = &limitPrice
	}

	order, err := c.client.PlaceOrder(orderReq)
	if err != nil {
		c.log.Error("place order failed", zap.String("side", string(req.Side)), zap.String("symbol", req.Symbol),
			zap.String("qty", req.Qty.String()), zap.String("type", string(orderReq.Type)), zap.Error(err))
		return OrderRef{}, err
	}

	ref := OrderRef{
		ID:            order.ID,
		ClientOrderID: order.ClientOrderID,
		Status:        string(order.Status),
	}
	if order.FilledAvgPrice != nil {
		ref.FilledAvgPrice, _ = order.FilledAvgPrice.Float64()
	}

	switch ref.Status {
	case "rejected", "canceled", "expired":
		c.log.Warn("order not filled", zap.String("order_id", ref.ID), zap.String("status", ref.Status),
			zap.String("side", string(req.Side)), zap.String("symbol", req.Symbol))
		return ref, fmt.Errorf("%w: status=%s", ErrOrderNotFilled, ref.Status)
	}

	c.log.Info("place order success", zap.String("order_id", ref.ID), zap.String("side", string(req.Side)),
		zap.String("symbol", req.Symbol), zap.String("qty", req.Qty.String()), zap.String("type", string(orderReq.Type)),
		zap.String("status", ref.Status))
	return ref, nil
}

// Positions returns the open positions for symbol. The terminal holds at most
// one net position per symbol; a 404 means there is none.
func (c *Client) Positions(ctx context.Context, symbol string) ([]Position, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	pos, err := c.client.GetPosition(positionSymbol(symbol))
	if err != nil {
		var apiErr *alpaca.APIError
		if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound {
			return nil, nil
		}
		c.log.Error("fetch position failed", zap.String("symbol", symbol), zap.Error(err))
		return nil, err
	}
	if pos == nil || pos.Qty.IsZero() {
		return nil, nil
	}

	c.log.Debug("position fetched", zap.String("symbol", symbol), zap.String("qty", pos.Qty.String()), zap.String("side", pos.Side))
	return []Position{{
		Symbol:  symbol,
		Qty:     pos.Qty.Abs(),
		Side:    pos.Side,
		AssetID: pos.AssetID,
	}}, nil
}

func (c *Client) Account(ctx context.Context) (Account, error) {
	if err := ctx.Err(); err != nil {
		return Account{}, err
	}
	acct, err := c.client.GetAccount()
	if err != nil {
		c.log.Error("fetch account failed", zap.Error(err))
		return Account{}, err
	}
	if acct == nil {
		return Account{}, errors.New("empty account response")
	}
	balance, _ := acct.Cash.Float64()
	equity, _ := acct.Equity.Float64()
	buyingPower, _ := acct.BuyingPower.Float64()

	c.log.Debug("account fetched", zap.Float64("balance", balance), zap.Float64("equity", equity), zap.Float64("buying_power", buyingPower))
	return Account{Balance: balance, Equity: equity, BuyingPower: buyingPower}, nil
}

func WaitForContext(ctx context.Context, delay time.Duration) error {
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func boundedPrice(side alpaca.Side, price, deviation float64) decimal.Decimal {
	bound := price + deviation
	if side == alpaca.Sell {
		bound = price - deviation
	}
	places := int32(2)
	if bound < 1 {
		places = 6
	}
	return decimal.NewFromFloat(bound).Round(places)
}

// positionSymbol maps BTC/USD to BTCUSD, the form the positions endpoint uses.
func positionSymbol(symbol string) string {
	return strings.ReplaceAll(symbol, "/", "")
}

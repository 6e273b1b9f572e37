// Package bybit implements the broker contract on top of the hirokisan/bybit
// SDK against the V5 spot API.
package bybit

import (
	"context"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	bybit "github.com/hirokisan/bybit/v2"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/quantport/brokerlink/config"
	"github.com/quantport/brokerlink/internal/broker"
	"github.com/quantport/brokerlink/internal/domain"
	"github.com/quantport/brokerlink/internal/symbols"
)

const venueName = "bybit"

var pairTable = map[string]string{
	"BTC-USDT":  "BTCUSDT",
	"ETH-USDT":  "ETHUSDT",
	"SOL-USDT":  "SOLUSDT",
	"XRP-USDT":  "XRPUSDT",
	"ADA-USDT":  "ADAUSDT",
	"DOGE-USDT": "DOGEUSDT",
}

type Connector struct {
	cfg    config.Venue
	logger *zap.Logger
	xlat   *symbols.Translator

	mu     sync.RWMutex
	status domain.ConnectionStatus
	client *bybit.Client
}

func New(cfg config.Venue, logger *zap.Logger) *Connector {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Connector{
		cfg:    cfg,
		logger: logger,
		xlat:   symbols.New(venueName, pairTable, logger),
		status: domain.Disconnected,
	}
}

func (c *Connector) Name() string { return venueName }

func (c *Connector) Status() domain.ConnectionStatus {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.status
}

// Connect builds the SDK client and validates the key pair with a wallet
// balance read.
func (c *Connector) Connect(ctx context.Context, creds domain.Credentials) (domain.ConnectionStatus, error) {
	client := bybit.NewClient().WithAuth(creds.APIKey, creds.APISecret)

	if _, err := client.V5().Account().GetWalletBalance(bybit.AccountTypeV5("UNIFIED"), nil); err != nil {
		c.setStatus(domain.ConnError)
		return domain.ConnError, errors.Wrapf(broker.ErrConnection, "bybit credential validation failed: %v", err)
	}

	c.mu.Lock()
	c.client = client
	c.status = domain.Connected
	c.mu.Unlock()

	c.logger.Info("connected to venue", zap.String("venue", venueName))
	return domain.Connected, nil
}

// GetAccountInfo reads the unified wallet. Bybit reports account equity
// directly, so no derivation is needed on this venue.
func (c *Connector) GetAccountInfo(ctx context.Context) (*domain.AccountInfo, error) {
	client, err := c.api()
	if err != nil {
		return nil, err
	}

	res, err := client.V5().Account().GetWalletBalance(bybit.AccountTypeV5("UNIFIED"), nil)
	if err != nil {
		return nil, c.venueErr("get account info", err)
	}
	if len(res.Result.List) == 0 {
		return nil, broker.NewVenueError(venueName, "get account info", broker.ErrTransport, 0, "empty wallet balance result")
	}

	wallet := res.Result.List[0]
	balance, _ := decimal.NewFromString(wallet.TotalWalletBalance)
	equity, _ := decimal.NewFromString(wallet.TotalEquity)
	marginUsed, _ := decimal.NewFromString(wallet.TotalInitialMargin)
	available, _ := decimal.NewFromString(wallet.TotalAvailableBalance)

	positions, err := c.GetPositions(ctx)
	if err != nil {
		return nil, err
	}

	return &domain.AccountInfo{
		AccountID:       venueName + " unified",
		Balance:         balance,
		Currency:        "USDT",
		Equity:          equity,
		MarginUsed:      marginUsed,
		MarginAvailable: available,
		Positions:       positions,
		UpdatedAt:       time.Now().UTC(),
	}, nil
}

// GetPositions derives holdings from wallet coin balances, valued in USDT.
func (c *Connector) GetPositions(ctx context.Context) ([]domain.Position, error) {
	client, err := c.api()
	if err != nil {
		return nil, err
	}

	res, err := client.V5().Account().GetWalletBalance(bybit.AccountTypeV5("UNIFIED"), nil)
	if err != nil {
		return nil, c.venueErr("get positions", err)
	}
	if len(res.Result.List) == 0 {
		return []domain.Position{}, nil
	}

	now := time.Now().UTC()
	var positions []domain.Position
	for _, coin := range res.Result.List[0].Coin {
		asset := string(coin.Coin)
		if asset == "USDT" {
			continue
		}
		qty, err := decimal.NewFromString(coin.WalletBalance)
		if err != nil || qty.IsZero() {
			continue
		}
		usdValue, _ := decimal.NewFromString(coin.UsdValue)
		mark := decimal.Zero
		if !qty.IsZero() {
			mark = usdValue.Div(qty)
		}
		p := domain.Position{
			Symbol:     c.xlat.FromVenue(asset + "USDT"),
			AssetType:  domain.AssetCrypto,
			Quantity:   qty,
			EntryPrice: mark,
			MarkPrice:  mark,
			UpdatedAt:  now,
		}
		p.ComputePnl()
		positions = append(positions, p)
	}
	if positions == nil {
		positions = []domain.Position{}
	}
	return positions, nil
}

func (c *Connector) PlaceOrder(ctx context.Context, req domain.OrderRequest) (*domain.OrderResponse, error) {
	client, err := c.api()
	if err != nil {
		return nil, err
	}
	if err := req.Validate(); err != nil {
		return nil, errors.Wrap(broker.ErrInvalidOrder, err.Error())
	}
	orderType, err := venueOrderType(req.Type)
	if err != nil {
		return nil, err
	}
	if _, err := venueTimeInForce(req.TimeInForce); err != nil {
		return nil, err
	}

	clientOrderID := req.ClientOrderID
	if clientOrderID == "" {
		clientOrderID = uuid.NewString()
	}

	side := bybit.SideBuy
	if req.Side == domain.Sell {
		side = bybit.SideSell
	}

	param := bybit.V5CreateOrderParam{
		Category:    bybit.CategoryV5Spot,
		Symbol:      bybit.SymbolV5(c.nativeSymbol(req.Symbol)),
		Side:        side,
		OrderType:   orderType,
		Qty:         req.Quantity.String(),
		OrderLinkID: &clientOrderID,
	}
	if req.Type == domain.Limit {
		price := req.Price.String()
		param.Price = &price
	}

	res, err := client.V5().Order().CreateOrder(param)
	if err != nil {
		return nil, c.venueErr("place order", err)
	}
	if res.Result.OrderID == "" {
		return nil, broker.NewVenueError(venueName, "place order", broker.ErrOrderRejected, 0, "venue returned no order id")
	}

	now := time.Now().UTC()
	return &domain.OrderResponse{
		OrderID:           res.Result.OrderID,
		Symbol:            req.Symbol,
		Side:              req.Side,
		Type:              req.Type,
		Quantity:          req.Quantity,
		Price:             req.Price,
		TimeInForce:       req.TimeInForce,
		ClientOrderID:     clientOrderID,
		Status:            domain.StatusNew,
		FilledQuantity:    decimal.Zero,
		RemainingQuantity: req.Quantity,
		CreatedAt:         now,
		UpdatedAt:         now,
	}, nil
}

// CancelOrder resolves the order's symbol through the open order set first:
// the venue addresses orders by (symbol, id). An id absent from the open set
// is already filled or gone, a (false, nil) outcome.
func (c *Connector) CancelOrder(ctx context.Context, orderID string) (bool, error) {
	client, err := c.api()
	if err != nil {
		return false, err
	}

	open, err := c.openOrders(client, "")
	if err != nil {
		return false, c.venueErr("cancel order", err)
	}
	for _, o := range open {
		if o.OrderID != orderID {
			continue
		}
		id := orderID
		if _, err := client.V5().Order().CancelOrder(bybit.V5CancelOrderParam{
			Category: bybit.CategoryV5Spot,
			Symbol:   o.Symbol,
			OrderID:  &id,
		}); err != nil {
			if orderGone(err) {
				c.logger.Info("cancel rejected by venue",
					zap.String("venue", venueName), zap.String("order_id", orderID), zap.Error(err))
				return false, nil
			}
			return false, c.venueErr("cancel order", err)
		}
		return true, nil
	}
	return false, nil
}

func (c *Connector) GetOrder(ctx context.Context, orderID string) (*domain.OrderResponse, error) {
	client, err := c.api()
	if err != nil {
		return nil, err
	}

	open, err := c.openOrders(client, "")
	if err != nil {
		return nil, c.venueErr("get order", err)
	}
	for _, o := range open {
		if o.OrderID == orderID {
			resp := c.normalizeOrder(o)
			return &resp, nil
		}
	}

	history, err := client.V5().Order().GetHistoryOrders(bybit.V5GetHistoryOrdersParam{
		Category: bybit.CategoryV5Spot,
		OrderID:  &orderID,
	})
	if err != nil {
		return nil, c.venueErr("get order", err)
	}
	for _, o := range history.Result.List {
		if o.OrderID == orderID {
			resp := c.normalizeOrder(o)
			return &resp, nil
		}
	}
	return nil, nil
}

func (c *Connector) GetOpenOrders(ctx context.Context) ([]domain.OrderResponse, error) {
	client, err := c.api()
	if err != nil {
		return nil, err
	}

	open, err := c.openOrders(client, "")
	if err != nil {
		return nil, c.venueErr("get open orders", err)
	}
	orders := make([]domain.OrderResponse, 0, len(open))
	for _, o := range open {
		orders = append(orders, c.normalizeOrder(o))
	}
	return orders, nil
}

// GetOrderHistory uses the venue-side symbol filter when a symbol is given.
func (c *Connector) GetOrderHistory(ctx context.Context, symbol string, limit int) ([]domain.OrderResponse, error) {
	client, err := c.api()
	if err != nil {
		return nil, err
	}

	param := bybit.V5GetHistoryOrdersParam{Category: bybit.CategoryV5Spot}
	if symbol != "" {
		native := bybit.SymbolV5(c.nativeSymbol(symbol))
		param.Symbol = &native
	}
	if limit > 0 {
		param.Limit = &limit
	}

	res, err := client.V5().Order().GetHistoryOrders(param)
	if err != nil {
		return nil, c.venueErr("get order history", err)
	}
	orders := make([]domain.OrderResponse, 0, len(res.Result.List))
	for _, o := range res.Result.List {
		orders = append(orders, c.normalizeOrder(o))
	}
	return orders, nil
}

func (c *Connector) GetQuote(ctx context.Context, symbol string) (*domain.MarketQuote, error) {
	client, err := c.api()
	if err != nil {
		return nil, err
	}

	native := bybit.SymbolV5(c.nativeSymbol(symbol))
	res, err := client.V5().Market().GetTickers(bybit.V5GetTickersParam{
		Category: bybit.CategoryV5Spot,
		Symbol:   &native,
	})
	if err != nil {
		return nil, c.venueErr("get quote", err)
	}
	if len(res.Result.Spot.List) == 0 {
		return nil, broker.NewVenueError(venueName, "get quote", broker.ErrSymbolNotFound, 0, symbol)
	}

	tick := res.Result.Spot.List[0]
	bid, _ := decimal.NewFromString(tick.Bid1Price)
	ask, _ := decimal.NewFromString(tick.Ask1Price)
	last, _ := decimal.NewFromString(tick.LastPrice)
	volume, _ := decimal.NewFromString(tick.Volume24H)
	return &domain.MarketQuote{
		Symbol:    symbol,
		Bid:       bid,
		Ask:       ask,
		Last:      last,
		Volume:    volume,
		Timestamp: time.Now().UTC(),
	}, nil
}

func (c *Connector) GetHistoricalData(ctx context.Context, symbol, interval string, from, to time.Time) ([]domain.Bar, error) {
	client, err := c.api()
	if err != nil {
		return nil, err
	}

	start := from.UnixMilli()
	end := to.UnixMilli()
	res, err := client.V5().Market().GetKline(bybit.V5GetKlineParam{
		Category: bybit.CategoryV5Spot,
		Symbol:   bybit.SymbolV5(c.nativeSymbol(symbol)),
		Interval: bybit.Interval(venueInterval(interval, c.logger)),
		Start:    &start,
		End:      &end,
	})
	if err != nil {
		return nil, c.venueErr("get historical data", err)
	}

	bars := make([]domain.Bar, 0, len(res.Result.List))
	for _, k := range res.Result.List {
		ms, err := strconv.ParseInt(k.StartTime, 10, 64)
		if err != nil {
			continue
		}
		open, _ := decimal.NewFromString(k.Open)
		high, _ := decimal.NewFromString(k.High)
		low, _ := decimal.NewFromString(k.Low)
		closeP, _ := decimal.NewFromString(k.Close)
		volume, _ := decimal.NewFromString(k.Volume)
		bars = append(bars, domain.Bar{
			Time:   time.UnixMilli(ms).UTC(),
			Open:   open,
			High:   high,
			Low:    low,
			Close:  closeP,
			Volume: volume,
		})
	}
	return domain.FilterBars(bars, from, to), nil
}

func (c *Connector) ValidateSymbol(ctx context.Context, symbol string) bool {
	client, err := c.api()
	if err != nil {
		return false
	}

	native := bybit.SymbolV5(c.nativeSymbol(symbol))
	res, err := client.V5().Market().GetTickers(bybit.V5GetTickersParam{
		Category: bybit.CategoryV5Spot,
		Symbol:   &native,
	})
	if err != nil {
		return false
	}
	return len(res.Result.Spot.List) > 0
}

func (c *Connector) openOrders(client *bybit.Client, symbol string) ([]bybit.V5GetOrder, error) {
	param := bybit.V5GetOpenOrdersParam{Category: bybit.CategoryV5Spot}
	if symbol != "" {
		native := bybit.SymbolV5(c.nativeSymbol(symbol))
		param.Symbol = &native
	}
	res, err := client.V5().Order().GetOpenOrders(param)
	if err != nil {
		return nil, err
	}
	return res.Result.List, nil
}

func (c *Connector) normalizeOrder(o bybit.V5GetOrder) domain.OrderResponse {
	qty, _ := decimal.NewFromString(o.Qty)
	filled, _ := decimal.NewFromString(o.CumExecQty)
	price, _ := decimal.NewFromString(o.Price)

	orderType, ok := orderTypeFromVenue[o.OrderType]
	if !ok {
		orderType = domain.OrderType(strings.ToUpper(string(o.OrderType)))
	}
	side := domain.Buy
	if o.Side == bybit.SideSell {
		side = domain.Sell
	}

	resp := domain.OrderResponse{
		OrderID:           o.OrderID,
		Symbol:            c.xlat.FromVenue(string(o.Symbol)),
		Side:              side,
		Type:              orderType,
		Quantity:          qty,
		Price:             price,
		TimeInForce:       domain.TimeInForce(o.TimeInForce),
		ClientOrderID:     o.OrderLinkID,
		Status:            mapOrderStatus(string(o.OrderStatus), c.logger),
		FilledQuantity:    filled,
		RemainingQuantity: qty.Sub(filled),
	}
	if ms, err := strconv.ParseInt(o.CreatedTime, 10, 64); err == nil {
		resp.CreatedAt = time.UnixMilli(ms).UTC()
	}
	if ms, err := strconv.ParseInt(o.UpdatedTime, 10, 64); err == nil {
		resp.UpdatedAt = time.UnixMilli(ms).UTC()
	}
	return resp
}

func (c *Connector) nativeSymbol(symbol string) string {
	return strings.ReplaceAll(c.xlat.ToVenue(symbol), "-", "")
}

func (c *Connector) api() (*bybit.Client, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.status != domain.Connected || c.client == nil {
		return nil, broker.ErrNotConnected
	}
	return c.client, nil
}

func (c *Connector) setStatus(s domain.ConnectionStatus) {
	c.mu.Lock()
	c.status = s
	c.mu.Unlock()
}

// venueErr wraps an SDK error into the taxonomy, demoting the connector when
// the venue rejected the key pair.
func (c *Connector) venueErr(op string, err error) error {
	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "api key") || strings.Contains(msg, "sign") || strings.Contains(msg, "unauthoriz") {
		c.setStatus(domain.ConnError)
		c.logger.Warn("auth rejected, demoting connector",
			zap.String("venue", venueName), zap.Error(err))
		return broker.NewVenueError(venueName, op, broker.ErrAuth, 0, err.Error())
	}
	return errors.Wrapf(broker.ErrTransport, "%s %s: %v", venueName, op, err)
}

// Package binance implements the broker contract on top of the
// adshao/go-binance SDK. It demonstrates the extensible connector family over
// an SDK rather than raw REST: the SDK owns signing and transport, the
// connector owns the contract semantics and normalization.
package binance

import (
	"context"
	"strconv"
	"strings"
	"sync"
	"time"

	binance "github.com/adshao/go-binance/v2"
	"github.com/adshao/go-binance/v2/common"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/quantport/brokerlink/config"
	"github.com/quantport/brokerlink/internal/broker"
	"github.com/quantport/brokerlink/internal/domain"
	"github.com/quantport/brokerlink/internal/symbols"
)

const venueName = "binance"

var pairTable = map[string]string{
	"BTC-USDT":  "BTCUSDT",
	"ETH-USDT":  "ETHUSDT",
	"BNB-USDT":  "BNBUSDT",
	"SOL-USDT":  "SOLUSDT",
	"XRP-USDT":  "XRPUSDT",
	"ADA-USDT":  "ADAUSDT",
	"DOGE-USDT": "DOGEUSDT",
	"ETH-BTC":   "ETHBTC",
}

type Connector struct {
	cfg    config.Venue
	logger *zap.Logger
	xlat   *symbols.Translator

	mu     sync.RWMutex
	status domain.ConnectionStatus
	client *binance.Client
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

// Connect builds the SDK client and validates the key pair with an account
// read.
func (c *Connector) Connect(ctx context.Context, creds domain.Credentials) (domain.ConnectionStatus, error) {
	client := binance.NewClient(creds.APIKey, creds.APISecret)
	if c.cfg.APIURL != "" {
		client.BaseURL = c.cfg.APIURL
	}

	if _, err := client.NewGetAccountService().Do(ctx); err != nil {
		c.setStatus(domain.ConnError)
		return domain.ConnError, errors.Wrapf(broker.ErrConnection, "binance credential validation failed: %v", err)
	}

	c.mu.Lock()
	c.client = client
	c.status = domain.Connected
	c.mu.Unlock()

	c.logger.Info("connected to venue", zap.String("venue", venueName))
	return domain.Connected, nil
}

// GetAccountInfo fetches balances and the full price list concurrently, then
// derives positions and equity. Binance reports no account-level equity for
// spot, so it is the quote balance plus position market values.
func (c *Connector) GetAccountInfo(ctx context.Context) (*domain.AccountInfo, error) {
	client, err := c.api()
	if err != nil {
		return nil, err
	}

	var (
		account *binance.Account
		prices  map[string]decimal.Decimal
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		account, err = client.NewGetAccountService().Do(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		prices, err = c.allPrices(gctx, client)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, c.venueErr("get account info", err)
	}

	quote := c.quoteAsset()
	balance := decimal.Zero
	positions := c.positionsFromBalances(account.Balances, prices)

	for _, b := range account.Balances {
		if b.Asset != quote {
			continue
		}
		free, _ := decimal.NewFromString(b.Free)
		locked, _ := decimal.NewFromString(b.Locked)
		balance = free.Add(locked)
	}

	equity := balance
	for _, p := range positions {
		equity = equity.Add(p.MarketValue)
	}

	return &domain.AccountInfo{
		AccountID: venueName + " spot",
		Balance:   balance,
		Currency:  quote,
		Equity:    equity,
		Positions: positions,
		UpdatedAt: time.Now().UTC(),
	}, nil
}

func (c *Connector) GetPositions(ctx context.Context) ([]domain.Position, error) {
	client, err := c.api()
	if err != nil {
		return nil, err
	}

	account, err := client.NewGetAccountService().Do(ctx)
	if err != nil {
		return nil, c.venueErr("get positions", err)
	}
	prices, err := c.allPrices(ctx, client)
	if err != nil {
		return nil, c.venueErr("get positions", err)
	}
	return c.positionsFromBalances(account.Balances, prices), nil
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
	tif, err := venueTimeInForce(req.TimeInForce)
	if err != nil {
		return nil, err
	}

	clientOrderID := req.ClientOrderID
	if clientOrderID == "" {
		clientOrderID = uuid.NewString()
	}

	side := binance.SideTypeBuy
	if req.Side == domain.Sell {
		side = binance.SideTypeSell
	}

	svc := client.NewCreateOrderService().
		Symbol(nativeSymbol(c.xlat.ToVenue(req.Symbol))).
		Side(side).
		Type(orderType).
		Quantity(req.Quantity.String()).
		NewClientOrderID(clientOrderID)
	// market orders reject an explicit TIF
	if req.Type != domain.Market {
		svc = svc.TimeInForce(tif)
	}
	if req.Type == domain.Limit || req.Type == domain.StopLimit {
		svc = svc.Price(req.Price.String())
	}
	if req.Type == domain.Stop || req.Type == domain.StopLimit {
		svc = svc.StopPrice(req.StopPrice.String())
	}

	resp, err := svc.Do(ctx)
	if err != nil {
		if isRejection(err) {
			return nil, broker.NewVenueError(venueName, "place order", broker.ErrOrderRejected, 0, err.Error())
		}
		return nil, c.venueErr("place order", err)
	}

	now := time.Now().UTC()
	return &domain.OrderResponse{
		OrderID:           strconv.FormatInt(resp.OrderID, 10),
		Symbol:            req.Symbol,
		Side:              req.Side,
		Type:              req.Type,
		Quantity:          req.Quantity,
		Price:             req.Price,
		StopPrice:         req.StopPrice,
		TimeInForce:       req.TimeInForce,
		ClientOrderID:     clientOrderID,
		Status:            domain.StatusNew,
		FilledQuantity:    decimal.Zero,
		RemainingQuantity: req.Quantity,
		CreatedAt:         now,
		UpdatedAt:         now,
	}, nil
}

// CancelOrder scans open orders for the id first: the venue addresses orders
// by (symbol, id) while the contract carries only the id. An id absent from
// the open set is already filled or gone, a (false, nil) outcome.
func (c *Connector) CancelOrder(ctx context.Context, orderID string) (bool, error) {
	client, err := c.api()
	if err != nil {
		return false, err
	}
	id, err := strconv.ParseInt(orderID, 10, 64)
	if err != nil {
		return false, nil
	}

	open, err := client.NewListOpenOrdersService().Do(ctx)
	if err != nil {
		return false, c.venueErr("cancel order", err)
	}
	for _, o := range open {
		if o.OrderID != id {
			continue
		}
		if _, err := client.NewCancelOrderService().Symbol(o.Symbol).OrderID(id).Do(ctx); err != nil {
			if isRejection(err) {
				return false, nil
			}
			return false, c.venueErr("cancel order", err)
		}
		return true, nil
	}
	return false, nil
}

// GetOrder resolves the id through the open order set. A closed order cannot
// be addressed without its symbol on this venue, so an id that is no longer
// open resolves to (nil, nil).
func (c *Connector) GetOrder(ctx context.Context, orderID string) (*domain.OrderResponse, error) {
	client, err := c.api()
	if err != nil {
		return nil, err
	}
	id, err := strconv.ParseInt(orderID, 10, 64)
	if err != nil {
		return nil, nil
	}

	open, err := client.NewListOpenOrdersService().Do(ctx)
	if err != nil {
		return nil, c.venueErr("get order", err)
	}
	for _, o := range open {
		if o.OrderID == id {
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

	open, err := client.NewListOpenOrdersService().Do(ctx)
	if err != nil {
		return nil, c.venueErr("get open orders", err)
	}
	orders := make([]domain.OrderResponse, 0, len(open))
	for _, o := range open {
		orders = append(orders, c.normalizeOrder(o))
	}
	return orders, nil
}

// GetOrderHistory uses the venue-side symbol filter: Binance requires a
// symbol for order listings, so an empty filter is an invalid request here.
func (c *Connector) GetOrderHistory(ctx context.Context, symbol string, limit int) ([]domain.OrderResponse, error) {
	client, err := c.api()
	if err != nil {
		return nil, err
	}
	if symbol == "" {
		return nil, errors.Wrap(broker.ErrInvalidOrder, "binance order history requires a symbol")
	}

	svc := client.NewListOrdersService().Symbol(nativeSymbol(c.xlat.ToVenue(symbol)))
	if limit > 0 {
		svc = svc.Limit(limit)
	}
	raw, err := svc.Do(ctx)
	if err != nil {
		return nil, c.venueErr("get order history", err)
	}
	orders := make([]domain.OrderResponse, 0, len(raw))
	for _, o := range raw {
		orders = append(orders, c.normalizeOrder(o))
	}
	return orders, nil
}

func (c *Connector) GetQuote(ctx context.Context, symbol string) (*domain.MarketQuote, error) {
	client, err := c.api()
	if err != nil {
		return nil, err
	}

	native := nativeSymbol(c.xlat.ToVenue(symbol))
	stats, err := client.NewListPriceChangeStatsService().Symbol(native).Do(ctx)
	if err != nil {
		return nil, c.venueErr("get quote", err)
	}
	if len(stats) == 0 {
		return nil, broker.NewVenueError(venueName, "get quote", broker.ErrSymbolNotFound, 0, symbol)
	}

	s := stats[0]
	bid, _ := decimal.NewFromString(s.BidPrice)
	ask, _ := decimal.NewFromString(s.AskPrice)
	last, _ := decimal.NewFromString(s.LastPrice)
	volume, _ := decimal.NewFromString(s.Volume)
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

	klines, err := client.NewKlinesService().
		Symbol(nativeSymbol(c.xlat.ToVenue(symbol))).
		Interval(venueInterval(interval, c.logger)).
		StartTime(from.UnixMilli()).
		EndTime(to.UnixMilli()).
		Do(ctx)
	if err != nil {
		return nil, c.venueErr("get historical data", err)
	}

	bars := make([]domain.Bar, 0, len(klines))
	for _, k := range klines {
		open, _ := decimal.NewFromString(k.Open)
		high, _ := decimal.NewFromString(k.High)
		low, _ := decimal.NewFromString(k.Low)
		closeP, _ := decimal.NewFromString(k.Close)
		volume, _ := decimal.NewFromString(k.Volume)
		bars = append(bars, domain.Bar{
			Time:   time.UnixMilli(k.OpenTime).UTC(),
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

	native := nativeSymbol(c.xlat.ToVenue(symbol))
	prices, err := client.NewListPricesService().Symbol(native).Do(ctx)
	if err != nil {
		return false
	}
	return len(prices) > 0
}

func (c *Connector) positionsFromBalances(balances []binance.Balance, prices map[string]decimal.Decimal) []domain.Position {
	quote := c.quoteAsset()
	now := time.Now().UTC()
	positions := make([]domain.Position, 0, len(balances))
	for _, b := range balances {
		if b.Asset == quote {
			continue
		}
		free, _ := decimal.NewFromString(b.Free)
		locked, _ := decimal.NewFromString(b.Locked)
		qty := free.Add(locked)
		if qty.IsZero() {
			continue
		}
		mark, ok := prices[b.Asset+quote]
		if !ok {
			c.logger.Warn("no price for held asset, skipping position",
				zap.String("venue", venueName), zap.String("asset", b.Asset))
			continue
		}
		p := domain.Position{
			Symbol:     c.xlat.FromVenue(b.Asset + quote),
			AssetType:  domain.AssetCrypto,
			Quantity:   qty,
			EntryPrice: mark,
			MarkPrice:  mark,
			UpdatedAt:  now,
		}
		p.ComputePnl()
		positions = append(positions, p)
	}
	return positions
}

func (c *Connector) allPrices(ctx context.Context, client *binance.Client) (map[string]decimal.Decimal, error) {
	list, err := client.NewListPricesService().Do(ctx)
	if err != nil {
		return nil, err
	}
	prices := make(map[string]decimal.Decimal, len(list))
	for _, p := range list {
		d, err := decimal.NewFromString(p.Price)
		if err != nil {
			continue
		}
		prices[p.Symbol] = d
	}
	return prices, nil
}

func (c *Connector) normalizeOrder(o *binance.Order) domain.OrderResponse {
	qty, _ := decimal.NewFromString(o.OrigQuantity)
	filled, _ := decimal.NewFromString(o.ExecutedQuantity)
	price, _ := decimal.NewFromString(o.Price)
	stop, _ := decimal.NewFromString(o.StopPrice)

	orderType, ok := orderTypeFromVenue[o.Type]
	if !ok {
		orderType = domain.OrderType(o.Type)
	}
	side := domain.Buy
	if o.Side == binance.SideTypeSell {
		side = domain.Sell
	}

	return domain.OrderResponse{
		OrderID:           strconv.FormatInt(o.OrderID, 10),
		Symbol:            c.xlat.FromVenue(o.Symbol),
		Side:              side,
		Type:              orderType,
		Quantity:          qty,
		Price:             price,
		StopPrice:         stop,
		TimeInForce:       domain.TimeInForce(o.TimeInForce),
		ClientOrderID:     o.ClientOrderID,
		Status:            mapOrderStatus(string(o.Status), c.logger),
		FilledQuantity:    filled,
		RemainingQuantity: qty.Sub(filled),
		CreatedAt:         time.UnixMilli(o.Time).UTC(),
		UpdatedAt:         time.UnixMilli(o.UpdateTime).UTC(),
	}
}

func (c *Connector) quoteAsset() string {
	quote := c.cfg.ReportCurrency
	if quote == "" || quote == "USD" {
		quote = "USDT"
	}
	return quote
}

func (c *Connector) api() (*binance.Client, error) {
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
	var apiErr *common.APIError
	if errors.As(err, &apiErr) {
		// -2014 bad api key format, -2015 rejected key/ip/permissions, -1022 bad signature
		if apiErr.Code == -2014 || apiErr.Code == -2015 || apiErr.Code == -1022 {
			c.setStatus(domain.ConnError)
			c.logger.Warn("auth rejected, demoting connector",
				zap.String("venue", venueName), zap.Error(err))
			return broker.NewVenueError(venueName, op, broker.ErrAuth, 0, apiErr.Message)
		}
		return broker.NewVenueError(venueName, op, broker.ErrTransport, 0, apiErr.Message)
	}
	return errors.Wrapf(broker.ErrTransport, "%s %s: %v", venueName, op, err)
}

// isRejection reports whether the SDK error is an order-domain rejection
// rather than a transport or auth failure.
func isRejection(err error) bool {
	var apiErr *common.APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	// order rejections come back in the -1013/-2010/-2011 range
	switch apiErr.Code {
	case -1013, -2010, -2011:
		return true
	}
	return strings.Contains(strings.ToLower(apiErr.Message), "reject")
}

// Package kraken implements the broker contract for the Kraken spot REST API:
// form-encoded private calls signed with the HMAC-nonce scheme, public calls
// for market data, and normalization of Kraken's legacy asset codes into
// canonical symbols.
package kraken

import (
	"context"
	"encoding/json"
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/quantport/brokerlink/config"
	"github.com/quantport/brokerlink/internal/auth"
	"github.com/quantport/brokerlink/internal/broker"
	"github.com/quantport/brokerlink/internal/domain"
	"github.com/quantport/brokerlink/internal/symbols"
	"github.com/quantport/brokerlink/internal/transport"
)

const venueName = "kraken"

// Connector implements broker.Connector for Kraken. The only mutable state
// is the connection status; everything else is fixed at construction or set
// once by Connect.
type Connector struct {
	cfg    config.Venue
	logger *zap.Logger
	client *transport.Client
	xlat   *symbols.Translator

	mu     sync.RWMutex
	status domain.ConnectionStatus
	signer *auth.HMACSigner
	nonces auth.NonceSource
}

func New(cfg config.Venue, logger *zap.Logger) *Connector {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Connector{
		cfg:    cfg,
		logger: logger,
		client: transport.New(venueName, cfg.APIURL, logger,
			transport.WithTimeout(cfg.Timeout),
			transport.WithRateLimit(cfg.RateLimit, cfg.RateBurst)),
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

// Connect builds the request signer from the credentials and validates them
// against the Balance endpoint, the cheapest private read Kraken offers.
// Idempotent: repeated calls re-validate with the existing nonce source.
func (c *Connector) Connect(ctx context.Context, creds domain.Credentials) (domain.ConnectionStatus, error) {
	var nonces auth.NonceSource
	if c.cfg.NonceDir != "" {
		// one nonce log per connector lifetime; reconnects keep the open
		// source so its high-water mark carries over without reopening the WAL
		c.mu.Lock()
		if c.nonces == nil {
			persistent, err := auth.NewPersistentNonceSource(c.cfg.NonceDir)
			if err != nil {
				c.mu.Unlock()
				c.setStatus(domain.ConnError)
				return domain.ConnError, errors.Wrap(broker.ErrConnection, err.Error())
			}
			c.nonces = persistent
		}
		nonces = c.nonces
		c.mu.Unlock()
	}

	signer, err := auth.NewHMACSigner(creds.APIKey, creds.APISecret, nonces)
	if err != nil {
		c.setStatus(domain.ConnError)
		return domain.ConnError, errors.Wrap(broker.ErrConnection, err.Error())
	}

	c.mu.Lock()
	c.signer = signer
	c.mu.Unlock()

	var balances map[string]string
	if err := c.private(ctx, "/0/private/Balance", url.Values{}, &balances); err != nil {
		c.setStatus(domain.ConnError)
		return domain.ConnError, errors.Wrapf(broker.ErrConnection, "kraken credential validation failed: %v", err)
	}

	c.setStatus(domain.Connected)
	c.logger.Info("connected to venue", zap.String("venue", venueName))
	return domain.Connected, nil
}

// GetAccountInfo fetches the cash balance and a fresh positions list. The two
// reads are independent and run concurrently. Kraken's TradeBalance equity
// covers margin accounts only, so spot equity is derived as balance plus the
// sum of position market values.
func (c *Connector) GetAccountInfo(ctx context.Context) (*domain.AccountInfo, error) {
	if err := c.requireConnected(); err != nil {
		return nil, err
	}

	var (
		balance    decimal.Decimal
		marginUsed decimal.Decimal
		positions  []domain.Position
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var balances map[string]string
		if err := c.private(gctx, "/0/private/Balance", url.Values{}, &balances); err != nil {
			return err
		}
		if raw, ok := balances["Z"+c.cfg.ReportCurrency]; ok {
			balance, _ = decimal.NewFromString(raw)
		} else if raw, ok := balances[c.cfg.ReportCurrency]; ok {
			balance, _ = decimal.NewFromString(raw)
		}

		var tb struct {
			MarginUsed string `json:"m"`
		}
		if err := c.private(gctx, "/0/private/TradeBalance", url.Values{}, &tb); err == nil {
			marginUsed, _ = decimal.NewFromString(tb.MarginUsed)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		positions, err = c.GetPositions(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, c.demoteOnAuth(errors.Wrap(err, "failed to fetch kraken account info"))
	}

	equity := balance
	for _, p := range positions {
		equity = equity.Add(p.MarketValue)
	}

	return &domain.AccountInfo{
		AccountID:       c.cfg.ReportCurrency + " spot",
		Balance:         balance,
		Currency:        c.cfg.ReportCurrency,
		Equity:          equity,
		MarginUsed:      marginUsed,
		MarginAvailable: equity.Sub(marginUsed),
		Positions:       positions,
		UpdatedAt:       time.Now().UTC(),
	}, nil
}

// GetPositions derives holdings from asset balances: Kraken spot has no
// native position records. Entry price is not tracked by the venue, so it is
// reported equal to the mark price and unrealized PnL stays zero.
func (c *Connector) GetPositions(ctx context.Context) ([]domain.Position, error) {
	if err := c.requireConnected(); err != nil {
		return nil, err
	}

	var balances map[string]string
	if err := c.private(ctx, "/0/private/Balance", url.Values{}, &balances); err != nil {
		return nil, c.demoteOnAuth(errors.Wrap(err, "failed to fetch kraken balances"))
	}

	type holding struct {
		asset    string
		quantity decimal.Decimal
		native   string
	}
	var holdings []holding
	for code, raw := range balances {
		// staking and bonded balances carry a suffix like XBT.S
		if strings.Contains(code, ".") {
			continue
		}
		asset := canonicalAsset(code)
		if asset == c.cfg.ReportCurrency {
			continue
		}
		qty, err := decimal.NewFromString(raw)
		if err != nil || qty.IsZero() {
			continue
		}
		canonical := asset + "-" + c.cfg.ReportCurrency
		holdings = append(holdings, holding{asset: asset, quantity: qty, native: c.xlat.ToVenue(canonical)})
	}
	if len(holdings) == 0 {
		return []domain.Position{}, nil
	}

	natives := make([]string, 0, len(holdings))
	for _, h := range holdings {
		natives = append(natives, h.native)
	}
	tickers, err := c.tickers(ctx, natives)
	if err != nil {
		return nil, c.demoteOnAuth(err)
	}

	now := time.Now().UTC()
	positions := make([]domain.Position, 0, len(holdings))
	for _, h := range holdings {
		tick, ok := tickers[h.native]
		if !ok {
			c.logger.Warn("no ticker for held asset, skipping position",
				zap.String("venue", venueName), zap.String("asset", h.asset))
			continue
		}
		mark := tick.last()
		p := domain.Position{
			Symbol:     c.xlat.FromVenue(h.native),
			AssetType:  domain.AssetCrypto,
			Quantity:   h.quantity,
			EntryPrice: mark,
			MarkPrice:  mark,
			UpdatedAt:  now,
		}
		p.ComputePnl()
		positions = append(positions, p)
	}
	return positions, nil
}

// PlaceOrder validates client-side, translates to Kraken vocabulary and
// submits AddOrder. Kraken does not return fills synchronously, so the
// response always carries StatusNew with zero filled quantity.
func (c *Connector) PlaceOrder(ctx context.Context, req domain.OrderRequest) (*domain.OrderResponse, error) {
	if err := c.requireConnected(); err != nil {
		return nil, err
	}
	if err := req.Validate(); err != nil {
		return nil, errors.Wrap(broker.ErrInvalidOrder, err.Error())
	}
	ordertype, err := venueOrderType(req.Type)
	if err != nil {
		return nil, err
	}
	tif, err := venueTimeInForce(req.TimeInForce)
	if err != nil {
		return nil, err
	}

	form := url.Values{}
	form.Set("pair", c.xlat.ToVenue(req.Symbol))
	form.Set("type", strings.ToLower(string(req.Side)))
	form.Set("ordertype", ordertype)
	form.Set("volume", req.Quantity.String())
	form.Set("timeinforce", tif)
	switch req.Type {
	case domain.Limit:
		form.Set("price", req.Price.String())
	case domain.Stop, domain.TrailingStop:
		form.Set("price", req.StopPrice.String())
	case domain.StopLimit:
		form.Set("price", req.StopPrice.String())
		form.Set("price2", req.Price.String())
	}
	if req.ClientOrderID != "" {
		form.Set("cl_ord_id", req.ClientOrderID)
	}

	var result struct {
		TxID []string `json:"txid"`
	}
	if err := c.private(ctx, "/0/private/AddOrder", form, &result); err != nil {
		if isOrderError(err) {
			return nil, broker.NewVenueError(venueName, "place order", broker.ErrOrderRejected, 0, err.Error())
		}
		return nil, c.demoteOnAuth(errors.Wrap(err, "failed to place kraken order"))
	}
	if len(result.TxID) == 0 {
		return nil, broker.NewVenueError(venueName, "place order", broker.ErrOrderRejected, 0, "venue returned no transaction id")
	}

	now := time.Now().UTC()
	return &domain.OrderResponse{
		OrderID:           result.TxID[0],
		Symbol:            req.Symbol,
		Side:              req.Side,
		Type:              req.Type,
		Quantity:          req.Quantity,
		Price:             req.Price,
		StopPrice:         req.StopPrice,
		TimeInForce:       req.TimeInForce,
		ClientOrderID:     req.ClientOrderID,
		Status:            domain.StatusNew,
		FilledQuantity:    decimal.Zero,
		RemainingQuantity: req.Quantity,
		CreatedAt:         now,
		UpdatedAt:         now,
	}, nil
}

// CancelOrder reports whether the order was canceled. An order that is
// already filled or gone yields (false, nil).
func (c *Connector) CancelOrder(ctx context.Context, orderID string) (bool, error) {
	if err := c.requireConnected(); err != nil {
		return false, err
	}

	form := url.Values{}
	form.Set("txid", orderID)

	var result struct {
		Count int `json:"count"`
	}
	if err := c.private(ctx, "/0/private/CancelOrder", form, &result); err != nil {
		if isOrderError(err) {
			return false, nil
		}
		return false, c.demoteOnAuth(errors.Wrap(err, "failed to cancel kraken order"))
	}
	return result.Count > 0, nil
}

// GetOrder returns (nil, nil) for an unknown order id.
func (c *Connector) GetOrder(ctx context.Context, orderID string) (*domain.OrderResponse, error) {
	if err := c.requireConnected(); err != nil {
		return nil, err
	}

	form := url.Values{}
	form.Set("txid", orderID)

	var result map[string]krakenOrder
	if err := c.private(ctx, "/0/private/QueryOrders", form, &result); err != nil {
		if isOrderError(err) {
			return nil, nil
		}
		return nil, c.demoteOnAuth(errors.Wrap(err, "failed to query kraken order"))
	}
	order, ok := result[orderID]
	if !ok {
		return nil, nil
	}
	resp := c.normalizeOrder(orderID, order)
	return &resp, nil
}

func (c *Connector) GetOpenOrders(ctx context.Context) ([]domain.OrderResponse, error) {
	if err := c.requireConnected(); err != nil {
		return nil, err
	}

	var result struct {
		Open map[string]krakenOrder `json:"open"`
	}
	if err := c.private(ctx, "/0/private/OpenOrders", url.Values{}, &result); err != nil {
		return nil, c.demoteOnAuth(errors.Wrap(err, "failed to list kraken open orders"))
	}
	return c.normalizeOrders(result.Open, "", 0), nil
}

// GetOrderHistory lists closed orders. Kraken has no venue-side symbol
// filter, so filtering and the limit are applied client-side, newest first.
func (c *Connector) GetOrderHistory(ctx context.Context, symbol string, limit int) ([]domain.OrderResponse, error) {
	if err := c.requireConnected(); err != nil {
		return nil, err
	}

	var result struct {
		Closed map[string]krakenOrder `json:"closed"`
	}
	if err := c.private(ctx, "/0/private/ClosedOrders", url.Values{}, &result); err != nil {
		return nil, c.demoteOnAuth(errors.Wrap(err, "failed to list kraken closed orders"))
	}
	return c.normalizeOrders(result.Closed, symbol, limit), nil
}

func (c *Connector) GetQuote(ctx context.Context, symbol string) (*domain.MarketQuote, error) {
	if err := c.requireConnected(); err != nil {
		return nil, err
	}

	native := c.xlat.ToVenue(symbol)
	tickers, err := c.tickers(ctx, []string{native})
	if err != nil {
		return nil, err
	}
	tick, ok := tickers[native]
	if !ok {
		// Kraken keys ticker results by its own pair spelling, which may
		// differ from the requested one; take the single entry if unambiguous.
		if len(tickers) != 1 {
			return nil, broker.NewVenueError(venueName, "get quote", broker.ErrSymbolNotFound, 0, symbol)
		}
		for _, t := range tickers {
			tick = t
		}
	}

	return &domain.MarketQuote{
		Symbol:    symbol,
		Bid:       tick.bid(),
		Ask:       tick.ask(),
		Last:      tick.last(),
		Volume:    tick.volume(),
		Timestamp: time.Now().UTC(),
	}, nil
}

// GetHistoricalData fetches OHLC bars. Kraken ignores any upper bound, so
// bars are filtered to [from, to] inclusive before returning.
func (c *Connector) GetHistoricalData(ctx context.Context, symbol, interval string, from, to time.Time) ([]domain.Bar, error) {
	if err := c.requireConnected(); err != nil {
		return nil, err
	}

	query := url.Values{}
	query.Set("pair", c.xlat.ToVenue(symbol))
	query.Set("interval", decimal.NewFromInt(int64(venueInterval(interval, c.logger))).String())
	query.Set("since", decimal.NewFromInt(from.Unix()).String())

	var result map[string]json.RawMessage
	if err := c.public(ctx, "/0/public/OHLC", query, &result); err != nil {
		return nil, errors.Wrap(err, "failed to fetch kraken ohlc data")
	}

	var bars []domain.Bar
	for key, raw := range result {
		if key == "last" {
			continue
		}
		var rows [][]any
		if err := json.Unmarshal(raw, &rows); err != nil {
			return nil, errors.Wrap(err, "failed to decode kraken ohlc rows")
		}
		for _, row := range rows {
			if len(row) < 7 {
				continue
			}
			bars = append(bars, domain.Bar{
				Time:   time.Unix(int64(anyToDecimal(row[0]).IntPart()), 0).UTC(),
				Open:   anyToDecimal(row[1]),
				High:   anyToDecimal(row[2]),
				Low:    anyToDecimal(row[3]),
				Close:  anyToDecimal(row[4]),
				Volume: anyToDecimal(row[6]),
			})
		}
	}
	sort.Slice(bars, func(i, j int) bool { return bars[i].Time.Before(bars[j].Time) })
	return domain.FilterBars(bars, from, to), nil
}

// ValidateSymbol checks the pair against AssetPairs. Best effort: any lookup
// failure or ambiguity yields false, never an error.
func (c *Connector) ValidateSymbol(ctx context.Context, symbol string) bool {
	if c.Status() != domain.Connected {
		return false
	}

	query := url.Values{}
	query.Set("pair", c.xlat.ToVenue(symbol))

	var result map[string]json.RawMessage
	if err := c.public(ctx, "/0/public/AssetPairs", query, &result); err != nil {
		return false
	}
	return len(result) > 0
}

// ticker payload: a = ask, b = bid, c = last trade, v = volume.
type krakenTicker struct {
	A []string `json:"a"`
	B []string `json:"b"`
	C []string `json:"c"`
	V []string `json:"v"`
}

func first(ss []string) decimal.Decimal {
	if len(ss) == 0 {
		return decimal.Zero
	}
	d, _ := decimal.NewFromString(ss[0])
	return d
}

func (t krakenTicker) ask() decimal.Decimal  { return first(t.A) }
func (t krakenTicker) bid() decimal.Decimal  { return first(t.B) }
func (t krakenTicker) last() decimal.Decimal { return first(t.C) }
func (t krakenTicker) volume() decimal.Decimal {
	if len(t.V) > 1 {
		d, _ := decimal.NewFromString(t.V[1])
		return d
	}
	return first(t.V)
}

func (c *Connector) tickers(ctx context.Context, natives []string) (map[string]krakenTicker, error) {
	query := url.Values{}
	query.Set("pair", strings.Join(natives, ","))

	var result map[string]krakenTicker
	if err := c.public(ctx, "/0/public/Ticker", query, &result); err != nil {
		return nil, errors.Wrap(err, "failed to fetch kraken tickers")
	}
	return result, nil
}

type krakenOrderDescr struct {
	Pair      string `json:"pair"`
	Type      string `json:"type"`
	OrderType string `json:"ordertype"`
	Price     string `json:"price"`
	Price2    string `json:"price2"`
}

type krakenOrder struct {
	Status    string           `json:"status"`
	OpenTime  float64          `json:"opentm"`
	CloseTime float64          `json:"closetm"`
	Vol       string           `json:"vol"`
	VolExec   string           `json:"vol_exec"`
	Descr     krakenOrderDescr `json:"descr"`
	ClOrdID   string           `json:"cl_ord_id"`
}

func (c *Connector) normalizeOrder(txid string, o krakenOrder) domain.OrderResponse {
	qty, _ := decimal.NewFromString(o.Vol)
	filled, _ := decimal.NewFromString(o.VolExec)
	price, _ := decimal.NewFromString(o.Descr.Price)

	status := mapOrderStatus(o.Status, c.logger)
	if status == domain.StatusNew && filled.IsPositive() {
		status = domain.StatusPartiallyFilled
	}

	side := domain.Buy
	if strings.EqualFold(o.Descr.Type, "sell") {
		side = domain.Sell
	}
	orderType, ok := orderTypeFromVenue[o.Descr.OrderType]
	if !ok {
		orderType = domain.OrderType(strings.ToUpper(o.Descr.OrderType))
	}

	resp := domain.OrderResponse{
		OrderID:           txid,
		Symbol:            SymbolFromKrakenPair(o.Descr.Pair),
		Side:              side,
		Type:              orderType,
		Quantity:          qty,
		Price:             price,
		ClientOrderID:     o.ClOrdID,
		Status:            status,
		FilledQuantity:    filled,
		RemainingQuantity: qty.Sub(filled),
		CreatedAt:         time.Unix(int64(o.OpenTime), 0).UTC(),
		UpdatedAt:         time.Unix(int64(o.OpenTime), 0).UTC(),
	}
	if o.CloseTime > 0 {
		resp.UpdatedAt = time.Unix(int64(o.CloseTime), 0).UTC()
	}
	return resp
}

func (c *Connector) normalizeOrders(raw map[string]krakenOrder, symbol string, limit int) []domain.OrderResponse {
	orders := make([]domain.OrderResponse, 0, len(raw))
	for txid, o := range raw {
		resp := c.normalizeOrder(txid, o)
		if symbol != "" && resp.Symbol != symbol {
			continue
		}
		orders = append(orders, resp)
	}
	sort.Slice(orders, func(i, j int) bool { return orders[i].CreatedAt.After(orders[j].CreatedAt) })
	if limit > 0 && len(orders) > limit {
		orders = orders[:limit]
	}
	return orders
}

// krakenEnvelope is the uniform {error, result} wrapper on every response.
type krakenEnvelope struct {
	Error  []string        `json:"error"`
	Result json.RawMessage `json:"result"`
}

func (c *Connector) private(ctx context.Context, path string, form url.Values, out any) error {
	c.mu.RLock()
	signer := c.signer
	c.mu.RUnlock()
	if signer == nil {
		return broker.ErrNotConnected
	}

	nonce, err := signer.Nonce()
	if err != nil {
		return errors.Wrap(err, "failed to draw nonce")
	}
	form.Set("nonce", nonce)

	var envelope krakenEnvelope
	if err := c.client.PostForm(ctx, path, form, signer, &envelope); err != nil {
		return err
	}
	return c.unwrap(envelope, path, out)
}

func (c *Connector) public(ctx context.Context, path string, query url.Values, out any) error {
	var envelope krakenEnvelope
	if err := c.client.Get(ctx, path, query, &envelope); err != nil {
		return err
	}
	return c.unwrap(envelope, path, out)
}

func (c *Connector) unwrap(envelope krakenEnvelope, path string, out any) error {
	if len(envelope.Error) > 0 {
		msg := strings.Join(envelope.Error, "; ")
		kind := broker.ErrTransport
		switch {
		case strings.HasPrefix(envelope.Error[0], "EAPI:"):
			kind = broker.ErrAuth
		case strings.HasPrefix(envelope.Error[0], "EOrder:"):
			kind = broker.ErrOrderRejected
		case strings.HasPrefix(envelope.Error[0], "EQuery:Unknown asset pair"):
			kind = broker.ErrSymbolNotFound
		}
		return broker.NewVenueError(venueName, path, kind, 0, msg)
	}
	if out != nil && len(envelope.Result) > 0 {
		if err := json.Unmarshal(envelope.Result, out); err != nil {
			return errors.Wrapf(err, "failed to decode kraken result for %s", path)
		}
	}
	return nil
}

// isOrderError reports whether the error came from Kraken's order domain
// (unknown order, insufficient funds and friends) rather than transport/auth.
func isOrderError(err error) bool {
	return errors.Is(err, broker.ErrOrderRejected)
}

func (c *Connector) requireConnected() error {
	if c.Status() != domain.Connected {
		return broker.ErrNotConnected
	}
	return nil
}

func (c *Connector) setStatus(s domain.ConnectionStatus) {
	c.mu.Lock()
	c.status = s
	c.mu.Unlock()
}

// demoteOnAuth moves the connector to ERROR when the venue rejected our
// signature or session, so subsequent calls fail fast until reconnect.
func (c *Connector) demoteOnAuth(err error) error {
	if errors.Is(err, broker.ErrAuth) {
		c.setStatus(domain.ConnError)
		c.logger.Warn("auth rejected, demoting connector",
			zap.String("venue", venueName), zap.Error(err))
	}
	return err
}

func anyToDecimal(v any) decimal.Decimal {
	switch x := v.(type) {
	case string:
		d, _ := decimal.NewFromString(x)
		return d
	case float64:
		return decimal.NewFromFloat(x)
	case json.Number:
		d, _ := decimal.NewFromString(x.String())
		return d
	default:
		return decimal.Zero
	}
}

// Package ibkr implements the broker contract for the Interactive Brokers
// Client Portal REST API: bearer session authentication over an
// account-scoped path hierarchy, numeric contract IDs, and a single retry on
// order submission with a reused client order ID.
package ibkr

import (
	"context"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
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
	"github.com/quantport/brokerlink/pkg/retrier"
)

const venueName = "ibkr"

// Connector implements broker.Connector for IBKR. The only mutable state is
// the connection status plus the signer and account id set by Connect.
type Connector struct {
	cfg    config.Venue
	logger *zap.Logger
	client *transport.Client
	xlat   *symbols.Translator
	retry  *retrier.Retrier

	mu        sync.RWMutex
	status    domain.ConnectionStatus
	signer    *auth.BearerSigner
	accountID string
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
		xlat: symbols.New(venueName, conidTable, logger),
		// exactly one retry, transient transport failures only; the client
		// order id is reused so a slow-but-successful first attempt cannot
		// produce a duplicate order
		retry: retrier.New(
			retrier.WithMaxRetries(1),
			retrier.WithRetryable(func(err error) bool { return errors.Is(err, broker.ErrTransport) }),
		),
		status: domain.Disconnected,
	}
}

func (c *Connector) Name() string { return venueName }

func (c *Connector) Status() domain.ConnectionStatus {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.status
}

// Connect attaches the session token and validates it by listing accounts,
// the lightweight read-only probe of the client portal. When the credentials
// carry an account id it must be present in the listing; otherwise the first
// listed account is used.
func (c *Connector) Connect(ctx context.Context, creds domain.Credentials) (domain.ConnectionStatus, error) {
	signer, err := auth.NewBearerSigner(creds.SessionToken)
	if err != nil {
		c.setStatus(domain.ConnError)
		return domain.ConnError, errors.Wrap(broker.ErrConnection, err.Error())
	}

	var accounts []struct {
		AccountID string `json:"accountId"`
	}
	if err := c.client.GetSigned(ctx, "/portfolio/accounts", nil, signer, &accounts); err != nil {
		c.setStatus(domain.ConnError)
		return domain.ConnError, errors.Wrapf(broker.ErrConnection, "ibkr session validation failed: %v", err)
	}
	if len(accounts) == 0 {
		c.setStatus(domain.ConnError)
		return domain.ConnError, errors.Wrap(broker.ErrConnection, "ibkr session has no accounts")
	}

	accountID := accounts[0].AccountID
	if creds.AccountID != "" {
		found := false
		for _, a := range accounts {
			if a.AccountID == creds.AccountID {
				accountID = creds.AccountID
				found = true
				break
			}
		}
		if !found {
			c.setStatus(domain.ConnError)
			return domain.ConnError, errors.Wrapf(broker.ErrConnection, "account %s not available to this session", creds.AccountID)
		}
	}

	c.mu.Lock()
	c.signer = signer
	c.accountID = accountID
	c.status = domain.Connected
	c.mu.Unlock()

	c.logger.Info("connected to venue",
		zap.String("venue", venueName), zap.String("account", accountID))
	return domain.Connected, nil
}

type summaryValue struct {
	Amount   float64 `json:"amount"`
	Currency string  `json:"currency"`
}

// GetAccountInfo fetches the portfolio summary and a fresh positions list
// concurrently; the two reads are independent.
func (c *Connector) GetAccountInfo(ctx context.Context) (*domain.AccountInfo, error) {
	signer, accountID, err := c.session()
	if err != nil {
		return nil, err
	}

	var (
		summary   map[string]summaryValue
		positions []domain.Position
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return c.client.GetSigned(gctx, "/portfolio/"+accountID+"/summary", nil, signer, &summary)
	})
	g.Go(func() error {
		var err error
		positions, err = c.GetPositions(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, c.demoteOnAuth(errors.Wrap(err, "failed to fetch ibkr account info"))
	}

	amount := func(key string) decimal.Decimal {
		return decimal.NewFromFloat(summary[key].Amount)
	}
	currency := summary["totalcashvalue"].Currency
	if currency == "" {
		currency = c.cfg.ReportCurrency
	}

	return &domain.AccountInfo{
		AccountID:       accountID,
		Balance:         amount("totalcashvalue"),
		Currency:        currency,
		Equity:          amount("equitywithloanvalue"),
		MarginUsed:      amount("initmarginreq"),
		MarginAvailable: amount("availablefunds"),
		Positions:       positions,
		UpdatedAt:       time.Now().UTC(),
	}, nil
}

type ibkrPosition struct {
	Conid         int64   `json:"conid"`
	ContractDesc  string  `json:"contractDesc"`
	Position      float64 `json:"position"`
	MktPrice      float64 `json:"mktPrice"`
	MktValue      float64 `json:"mktValue"`
	AvgCost       float64 `json:"avgCost"`
	UnrealizedPnl float64 `json:"unrealizedPnl"`
	AssetClass    string  `json:"assetClass"`
}

// GetPositions lists nonzero holdings with conids translated back to
// canonical symbols. Unmapped conids surface as the raw conid string; the
// caller tolerates un-normalized symbols by contract.
func (c *Connector) GetPositions(ctx context.Context) ([]domain.Position, error) {
	signer, accountID, err := c.session()
	if err != nil {
		return nil, err
	}

	var raw []ibkrPosition
	if err := c.client.GetSigned(ctx, "/portfolio/"+accountID+"/positions/0", nil, signer, &raw); err != nil {
		return nil, c.demoteOnAuth(errors.Wrap(err, "failed to fetch ibkr positions"))
	}

	now := time.Now().UTC()
	positions := make([]domain.Position, 0, len(raw))
	for _, rp := range raw {
		qty := decimal.NewFromFloat(rp.Position)
		if qty.IsZero() {
			continue
		}
		assetType := domain.AssetEquity
		if at, ok := assetClassTable[rp.AssetClass]; ok {
			assetType = domain.AssetType(at)
		}
		p := domain.Position{
			Symbol:     c.xlat.FromVenue(strconv.FormatInt(rp.Conid, 10)),
			AssetType:  assetType,
			Quantity:   qty,
			EntryPrice: decimal.NewFromFloat(rp.AvgCost),
			MarkPrice:  decimal.NewFromFloat(rp.MktPrice),
			UpdatedAt:  now,
		}
		p.ComputePnl()
		positions = append(positions, p)
	}
	return positions, nil
}

type orderPayload struct {
	Conid     int64   `json:"conid"`
	OrderType string  `json:"orderType"`
	Side      string  `json:"side"`
	Quantity  float64 `json:"quantity"`
	Price     float64 `json:"price,omitempty"`
	AuxPrice  float64 `json:"auxPrice,omitempty"`
	TIF       string  `json:"tif"`
	COID      string  `json:"cOID"`
}

type orderResult struct {
	OrderID     string   `json:"order_id"`
	OrderStatus string   `json:"order_status"`
	ID          string   `json:"id"`
	Message     []string `json:"message"`
}

// PlaceOrder validates client-side, then submits with exactly one retry on
// transient transport failure. The generated client order id is part of the
// request on both attempts, which is what makes the retry safe.
func (c *Connector) PlaceOrder(ctx context.Context, req domain.OrderRequest) (*domain.OrderResponse, error) {
	signer, accountID, err := c.session()
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

	conidStr := c.xlat.ToVenue(req.Symbol)
	conid, err := strconv.ParseInt(conidStr, 10, 64)
	if err != nil {
		return nil, broker.NewVenueError(venueName, "place order", broker.ErrSymbolNotFound, 0,
			fmt.Sprintf("no contract id for symbol %s", req.Symbol))
	}

	clientOrderID := req.ClientOrderID
	if clientOrderID == "" {
		clientOrderID = uuid.NewString()
	}

	qty, _ := req.Quantity.Float64()
	price, _ := req.Price.Float64()
	aux, _ := req.StopPrice.Float64()
	payload := map[string][]orderPayload{
		"orders": {{
			Conid:     conid,
			OrderType: orderType,
			Side:      string(req.Side),
			Quantity:  qty,
			Price:     price,
			AuxPrice:  aux,
			TIF:       tif,
			COID:      clientOrderID,
		}},
	}

	results, err := retrier.DoWithData(c.retry, ctx, func(ctx context.Context) ([]orderResult, error) {
		var out []orderResult
		if err := c.client.PostJSON(ctx, "/iserver/account/"+accountID+"/orders", payload, signer, &out); err != nil {
			return nil, err
		}
		return out, nil
	})
	if err != nil {
		return nil, c.demoteOnAuth(errors.Wrap(err, "failed to place ibkr order"))
	}
	if len(results) == 0 {
		return nil, broker.NewVenueError(venueName, "place order", broker.ErrOrderRejected, 0, "venue returned no order result")
	}
	if results[0].OrderID == "" {
		// a confirmation question instead of an order id means the order
		// was not accepted as submitted
		return nil, broker.NewVenueError(venueName, "place order", broker.ErrOrderRejected, 0,
			strings.Join(results[0].Message, "; "))
	}

	now := time.Now().UTC()
	return &domain.OrderResponse{
		OrderID:           results[0].OrderID,
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

// CancelOrder reports whether cancellation succeeded. The venue answers an
// already-filled or unknown order with a 4xx error body; that is a
// (false, nil) outcome, not a failure of the call. Network failures and
// gateway errors mean the order's fate is unknown and surface as errors.
func (c *Connector) CancelOrder(ctx context.Context, orderID string) (bool, error) {
	signer, accountID, err := c.session()
	if err != nil {
		return false, err
	}

	var result struct {
		Msg string `json:"msg"`
	}
	if err := c.client.Delete(ctx, "/iserver/account/"+accountID+"/order/"+orderID, signer, &result); err != nil {
		if errors.Is(err, broker.ErrAuth) {
			return false, c.demoteOnAuth(errors.Wrap(err, "failed to cancel ibkr order"))
		}
		var verr *broker.VenueError
		if errors.As(err, &verr) && verr.StatusCode >= 400 && verr.StatusCode < 500 {
			c.logger.Info("cancel rejected by venue",
				zap.String("venue", venueName), zap.String("order_id", orderID), zap.Error(err))
			return false, nil
		}
		return false, errors.Wrap(err, "failed to cancel ibkr order")
	}
	return true, nil
}

type ibkrOrder struct {
	OrderID           int64   `json:"orderId"`
	Conid             int64   `json:"conid"`
	Status            string  `json:"status"`
	OrigOrderType     string  `json:"origOrderType"`
	Side              string  `json:"side"`
	Price             float64 `json:"price"`
	AuxPrice          float64 `json:"auxPrice"`
	TotalSize         float64 `json:"totalSize"`
	FilledQuantity    float64 `json:"filledQuantity"`
	RemainingQuantity float64 `json:"remainingQuantity"`
	TimeInForce       string  `json:"timeInForce"`
	OrderRef          string  `json:"order_ref"`
	LastExecutionTime int64   `json:"lastExecutionTime_r"`
}

func (c *Connector) liveOrders(ctx context.Context) ([]ibkrOrder, error) {
	signer, _, err := c.session()
	if err != nil {
		return nil, err
	}

	var result struct {
		Orders []ibkrOrder `json:"orders"`
	}
	if err := c.client.GetSigned(ctx, "/iserver/account/orders", nil, signer, &result); err != nil {
		return nil, c.demoteOnAuth(errors.Wrap(err, "failed to list ibkr orders"))
	}
	return result.Orders, nil
}

// GetOrder scans the live order feed; (nil, nil) when the id is not present.
func (c *Connector) GetOrder(ctx context.Context, orderID string) (*domain.OrderResponse, error) {
	orders, err := c.liveOrders(ctx)
	if err != nil {
		return nil, err
	}
	for _, o := range orders {
		if strconv.FormatInt(o.OrderID, 10) == orderID {
			resp := c.normalizeOrder(o)
			return &resp, nil
		}
	}
	return nil, nil
}

func (c *Connector) GetOpenOrders(ctx context.Context) ([]domain.OrderResponse, error) {
	orders, err := c.liveOrders(ctx)
	if err != nil {
		return nil, err
	}
	open := make([]domain.OrderResponse, 0, len(orders))
	for _, o := range orders {
		resp := c.normalizeOrder(o)
		if resp.Status == domain.StatusNew || resp.Status == domain.StatusPartiallyFilled {
			open = append(open, resp)
		}
	}
	return open, nil
}

// GetOrderHistory filters the order feed client-side: the endpoint has no
// symbol parameter.
func (c *Connector) GetOrderHistory(ctx context.Context, symbol string, limit int) ([]domain.OrderResponse, error) {
	orders, err := c.liveOrders(ctx)
	if err != nil {
		return nil, err
	}
	history := make([]domain.OrderResponse, 0, len(orders))
	for _, o := range orders {
		resp := c.normalizeOrder(o)
		if symbol != "" && resp.Symbol != symbol {
			continue
		}
		history = append(history, resp)
	}
	sort.Slice(history, func(i, j int) bool { return history[i].UpdatedAt.After(history[j].UpdatedAt) })
	if limit > 0 && len(history) > limit {
		history = history[:limit]
	}
	return history, nil
}

// snapshot field ids: 31 last, 84 bid, 86 ask, 7762 volume.
const snapshotFields = "31,84,86,7762"

func (c *Connector) GetQuote(ctx context.Context, symbol string) (*domain.MarketQuote, error) {
	signer, _, err := c.session()
	if err != nil {
		return nil, err
	}

	conid := c.xlat.ToVenue(symbol)
	query := url.Values{}
	query.Set("conids", conid)
	query.Set("fields", snapshotFields)

	var snapshots []map[string]any
	if err := c.client.GetSigned(ctx, "/iserver/marketdata/snapshot", query, signer, &snapshots); err != nil {
		return nil, c.demoteOnAuth(errors.Wrap(err, "failed to fetch ibkr snapshot"))
	}
	if len(snapshots) == 0 {
		return nil, broker.NewVenueError(venueName, "get quote", broker.ErrSymbolNotFound, 0, symbol)
	}

	snap := snapshots[0]
	return &domain.MarketQuote{
		Symbol:    symbol,
		Last:      fieldDecimal(snap, "31"),
		Bid:       fieldDecimal(snap, "84"),
		Ask:       fieldDecimal(snap, "86"),
		Volume:    fieldDecimal(snap, "7762"),
		Timestamp: time.Now().UTC(),
	}, nil
}

type ibkrBar struct {
	T int64   `json:"t"`
	O float64 `json:"o"`
	H float64 `json:"h"`
	L float64 `json:"l"`
	C float64 `json:"c"`
	V float64 `json:"v"`
}

// GetHistoricalData fetches bars. The venue returns whatever its period
// covers, so the result is filtered to [from, to] inclusive.
func (c *Connector) GetHistoricalData(ctx context.Context, symbol, interval string, from, to time.Time) ([]domain.Bar, error) {
	signer, _, err := c.session()
	if err != nil {
		return nil, err
	}

	days := int(to.Sub(from).Hours()/24) + 1
	query := url.Values{}
	query.Set("conid", c.xlat.ToVenue(symbol))
	query.Set("bar", venueBar(interval, c.logger))
	query.Set("period", strconv.Itoa(days)+"d")
	query.Set("startTime", from.UTC().Format("20060102-15:04:05"))

	var result struct {
		Data []ibkrBar `json:"data"`
	}
	if err := c.client.GetSigned(ctx, "/iserver/marketdata/history", query, signer, &result); err != nil {
		return nil, c.demoteOnAuth(errors.Wrap(err, "failed to fetch ibkr history"))
	}

	bars := make([]domain.Bar, 0, len(result.Data))
	for _, b := range result.Data {
		bars = append(bars, domain.Bar{
			Time:   time.UnixMilli(b.T).UTC(),
			Open:   decimal.NewFromFloat(b.O),
			High:   decimal.NewFromFloat(b.H),
			Low:    decimal.NewFromFloat(b.L),
			Close:  decimal.NewFromFloat(b.C),
			Volume: decimal.NewFromFloat(b.V),
		})
	}
	return domain.FilterBars(bars, from, to), nil
}

// ValidateSymbol searches the security definition index for the base symbol.
// Best effort: any failure yields false.
func (c *Connector) ValidateSymbol(ctx context.Context, symbol string) bool {
	signer, _, err := c.session()
	if err != nil {
		return false
	}

	query := url.Values{}
	query.Set("symbol", baseSymbol(symbol))

	var results []map[string]any
	if err := c.client.GetSigned(ctx, "/iserver/secdef/search", query, signer, &results); err != nil {
		return false
	}
	return len(results) > 0
}

func (c *Connector) normalizeOrder(o ibkrOrder) domain.OrderResponse {
	orderType, ok := orderTypeFromVenue[o.OrigOrderType]
	if !ok {
		orderType = domain.OrderType(strings.ToUpper(o.OrigOrderType))
	}
	side := domain.Buy
	if strings.EqualFold(o.Side, "SELL") {
		side = domain.Sell
	}
	updated := time.Now().UTC()
	if o.LastExecutionTime > 0 {
		updated = time.UnixMilli(o.LastExecutionTime).UTC()
	}

	return domain.OrderResponse{
		OrderID:           strconv.FormatInt(o.OrderID, 10),
		Symbol:            c.xlat.FromVenue(strconv.FormatInt(o.Conid, 10)),
		Side:              side,
		Type:              orderType,
		Quantity:          decimal.NewFromFloat(o.TotalSize),
		Price:             decimal.NewFromFloat(o.Price),
		StopPrice:         decimal.NewFromFloat(o.AuxPrice),
		TimeInForce:       domain.TimeInForce(o.TimeInForce),
		ClientOrderID:     o.OrderRef,
		Status:            mapOrderStatus(o.Status, c.logger),
		FilledQuantity:    decimal.NewFromFloat(o.FilledQuantity),
		RemainingQuantity: decimal.NewFromFloat(o.RemainingQuantity),
		UpdatedAt:         updated,
	}
}

// session snapshots the signer and account id under the read lock, failing
// fast when the connector is not in CONNECTED state.
func (c *Connector) session() (*auth.BearerSigner, string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.status != domain.Connected || c.signer == nil {
		return nil, "", broker.ErrNotConnected
	}
	return c.signer, c.accountID, nil
}

func (c *Connector) setStatus(s domain.ConnectionStatus) {
	c.mu.Lock()
	c.status = s
	c.mu.Unlock()
}

// demoteOnAuth moves the connector to ERROR when the session expired, so
// subsequent calls fail fast until the caller reconnects.
func (c *Connector) demoteOnAuth(err error) error {
	if errors.Is(err, broker.ErrAuth) {
		c.setStatus(domain.ConnError)
		c.logger.Warn("session rejected, demoting connector",
			zap.String("venue", venueName), zap.Error(err))
	}
	return err
}

func fieldDecimal(m map[string]any, key string) decimal.Decimal {
	switch v := m[key].(type) {
	case string:
		d, _ := decimal.NewFromString(v)
		return d
	case float64:
		return decimal.NewFromFloat(v)
	default:
		return decimal.Zero
	}
}

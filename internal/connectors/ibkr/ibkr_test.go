package ibkr

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/quantport/brokerlink/config"
	"github.com/quantport/brokerlink/internal/broker"
	"github.com/quantport/brokerlink/internal/domain"
)

func testCreds() domain.Credentials {
	return domain.Credentials{SessionToken: "session-token", AccountID: "DU12345"}
}

type gatewayStub struct {
	*httptest.Server
	calls    atomic.Int64
	handlers map[string]http.HandlerFunc
}

func newGatewayStub(t *testing.T) *gatewayStub {
	t.Helper()
	stub := &gatewayStub{handlers: map[string]http.HandlerFunc{}}
	stub.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		stub.calls.Add(1)
		if r.Header.Get("Authorization") != "Bearer session-token" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		if h, ok := stub.handlers[r.URL.Path]; ok {
			h(w, r)
			return
		}
		t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		http.NotFound(w, r)
	}))
	t.Cleanup(stub.Close)
	stub.handle("/portfolio/accounts", jsonBody([]map[string]string{{"accountId": "DU12345"}, {"accountId": "DU99999"}}))
	return stub
}

func (s *gatewayStub) handle(path string, h http.HandlerFunc) {
	s.handlers[path] = h
}

func jsonBody(v any) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(v)
	}
}

func connected(t *testing.T, stub *gatewayStub) *Connector {
	t.Helper()
	conn := New(config.Venue{Name: "ibkr", APIURL: stub.URL, ReportCurrency: "USD"}, nil)
	status, err := conn.Connect(context.Background(), testCreds())
	require.NoError(t, err)
	require.Equal(t, domain.Connected, status)
	return conn
}

func TestConnectSelectsRequestedAccount(t *testing.T) {
	stub := newGatewayStub(t)
	conn := connected(t, stub)
	require.Equal(t, domain.Connected, conn.Status())
	require.Equal(t, "ibkr", conn.Name())
}

func TestConnectRejectsUnknownAccount(t *testing.T) {
	stub := newGatewayStub(t)
	conn := New(config.Venue{Name: "ibkr", APIURL: stub.URL, ReportCurrency: "USD"}, nil)

	status, err := conn.Connect(context.Background(), domain.Credentials{
		SessionToken: "session-token", AccountID: "DU00000",
	})
	require.Error(t, err)
	require.True(t, errors.Is(err, broker.ErrConnection))
	require.Equal(t, domain.ConnError, status)
}

func TestConnectRequiresSessionToken(t *testing.T) {
	stub := newGatewayStub(t)
	conn := New(config.Venue{Name: "ibkr", APIURL: stub.URL, ReportCurrency: "USD"}, nil)

	status, err := conn.Connect(context.Background(), domain.Credentials{})
	require.Error(t, err)
	require.Equal(t, domain.ConnError, status)
	require.Equal(t, int64(0), stub.calls.Load())
}

func TestGetAccountInfo(t *testing.T) {
	stub := newGatewayStub(t)
	stub.handle("/portfolio/DU12345/summary", jsonBody(map[string]map[string]any{
		"totalcashvalue":      {"amount": 25000.0, "currency": "USD"},
		"equitywithloanvalue": {"amount": 40000.0, "currency": "USD"},
		"initmarginreq":       {"amount": 5000.0, "currency": "USD"},
		"availablefunds":      {"amount": 20000.0, "currency": "USD"},
	}))
	stub.handle("/portfolio/DU12345/positions/0", jsonBody([]map[string]any{
		{"conid": 265598, "position": 10.0, "mktPrice": 150.0, "avgCost": 120.0, "assetClass": "STK"},
		{"conid": 8314, "position": 0.0, "mktPrice": 200.0, "avgCost": 100.0, "assetClass": "STK"},
	}))

	conn := connected(t, stub)
	info, err := conn.GetAccountInfo(context.Background())
	require.NoError(t, err)

	require.Equal(t, "DU12345", info.AccountID)
	require.True(t, info.Balance.Equal(decimal.NewFromInt(25000)))
	require.True(t, info.Equity.Equal(decimal.NewFromInt(40000)))
	require.True(t, info.MarginUsed.Equal(decimal.NewFromInt(5000)))

	// zero-quantity rows are dropped, conids translate back to symbols
	require.Len(t, info.Positions, 1)
	p := info.Positions[0]
	require.Equal(t, "AAPL-USD", p.Symbol)
	require.Equal(t, domain.AssetEquity, p.AssetType)
	require.True(t, p.UnrealizedPnl.Equal(decimal.NewFromInt(300)), "pnl %s", p.UnrealizedPnl)
}

func TestPlaceOrderRetriesOnceOnTransportFailure(t *testing.T) {
	stub := newGatewayStub(t)
	var attempts atomic.Int64
	var mu sync.Mutex
	var coids []string
	stub.handle("/iserver/account/DU12345/orders", func(w http.ResponseWriter, r *http.Request) {
		var payload struct {
			Orders []struct {
				COID string `json:"cOID"`
			} `json:"orders"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		require.Len(t, payload.Orders, 1)
		mu.Lock()
		coids = append(coids, payload.Orders[0].COID)
		mu.Unlock()

		if attempts.Add(1) == 1 {
			http.Error(w, "gateway hiccup", http.StatusBadGateway)
			return
		}
		jsonBody([]map[string]any{{"order_id": "987", "order_status": "Submitted"}})(w, r)
	})

	conn := connected(t, stub)
	resp, err := conn.PlaceOrder(context.Background(), domain.OrderRequest{
		Symbol: "AAPL-USD", Side: domain.Buy, Type: domain.Market, Quantity: decimal.NewFromInt(10),
	})
	require.NoError(t, err)
	require.Equal(t, "987", resp.OrderID)
	require.Equal(t, domain.StatusNew, resp.Status)

	require.Equal(t, int64(2), attempts.Load(), "exactly one retry")
	mu.Lock()
	defer mu.Unlock()
	require.Len(t, coids, 2)
	require.NotEmpty(t, coids[0])
	require.Equal(t, coids[0], coids[1], "client order id must be reused across the retry")
	require.Equal(t, coids[0], resp.ClientOrderID)
}

func TestPlaceOrderGivesUpAfterSecondTransportFailure(t *testing.T) {
	stub := newGatewayStub(t)
	var attempts atomic.Int64
	stub.handle("/iserver/account/DU12345/orders", func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		http.Error(w, "gateway down", http.StatusBadGateway)
	})

	conn := connected(t, stub)
	_, err := conn.PlaceOrder(context.Background(), domain.OrderRequest{
		Symbol: "AAPL-USD", Side: domain.Buy, Type: domain.Market, Quantity: decimal.NewFromInt(10),
	})
	require.True(t, errors.Is(err, broker.ErrTransport))
	require.Equal(t, int64(2), attempts.Load())
}

func TestPlaceOrderDoesNotRetryRejection(t *testing.T) {
	stub := newGatewayStub(t)
	var attempts atomic.Int64
	stub.handle("/iserver/account/DU12345/orders", func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		jsonBody([]map[string]any{{"id": "q1", "message": []string{"insufficient buying power"}}})(w, r)
	})

	conn := connected(t, stub)
	_, err := conn.PlaceOrder(context.Background(), domain.OrderRequest{
		Symbol: "AAPL-USD", Side: domain.Buy, Type: domain.Market, Quantity: decimal.NewFromInt(10),
	})
	require.True(t, errors.Is(err, broker.ErrOrderRejected))
	require.Equal(t, int64(1), attempts.Load(), "rejections are final, no retry")
}

func TestPlaceOrderUnknownSymbol(t *testing.T) {
	stub := newGatewayStub(t)
	conn := connected(t, stub)
	before := stub.calls.Load()

	_, err := conn.PlaceOrder(context.Background(), domain.OrderRequest{
		Symbol: "NOPE-USD", Side: domain.Buy, Type: domain.Market, Quantity: decimal.NewFromInt(1),
	})
	require.True(t, errors.Is(err, broker.ErrSymbolNotFound))
	require.Equal(t, before, stub.calls.Load())
}

func TestCancelOrderAlreadyFilled(t *testing.T) {
	stub := newGatewayStub(t)
	stub.handle("/iserver/account/DU12345/order/42", func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodDelete, r.Method)
		http.Error(w, `{"error":"order already filled"}`, http.StatusBadRequest)
	})

	conn := connected(t, stub)
	ok, err := conn.CancelOrder(context.Background(), "42")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestCancelOrderSuccess(t *testing.T) {
	stub := newGatewayStub(t)
	stub.handle("/iserver/account/DU12345/order/42", jsonBody(map[string]string{"msg": "Request was submitted"}))

	conn := connected(t, stub)
	ok, err := conn.CancelOrder(context.Background(), "42")
	require.NoError(t, err)
	require.True(t, ok)
}

func TestCancelOrderTimeoutSurfacesError(t *testing.T) {
	stub := newGatewayStub(t)
	stub.handle("/iserver/account/DU12345/order/42", func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(500 * time.Millisecond)
	})

	conn := New(config.Venue{
		Name: "ibkr", APIURL: stub.URL, ReportCurrency: "USD", Timeout: 100 * time.Millisecond,
	}, nil)
	status, err := conn.Connect(context.Background(), testCreds())
	require.NoError(t, err)
	require.Equal(t, domain.Connected, status)

	ok, err := conn.CancelOrder(context.Background(), "42")
	require.False(t, ok)
	require.Error(t, err, "an unreachable venue is not a cancel answer")
	require.True(t, errors.Is(err, broker.ErrTransport))
	require.Equal(t, domain.Connected, conn.Status(), "transport failures do not demote")
}

func TestCancelOrderGatewayErrorSurfacesError(t *testing.T) {
	stub := newGatewayStub(t)
	stub.handle("/iserver/account/DU12345/order/42", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"gateway not ready"}`, http.StatusBadGateway)
	})

	conn := connected(t, stub)
	ok, err := conn.CancelOrder(context.Background(), "42")
	require.False(t, ok)
	require.True(t, errors.Is(err, broker.ErrTransport))
}

func TestGetOrderScansLiveFeed(t *testing.T) {
	stub := newGatewayStub(t)
	stub.handle("/iserver/account/orders", jsonBody(map[string]any{
		"orders": []map[string]any{
			{"orderId": 42, "conid": 265598, "status": "PartiallyExecuted", "origOrderType": "LIMIT",
				"side": "BUY", "price": 150.0, "totalSize": 10.0, "filledQuantity": 4.0,
				"remainingQuantity": 6.0, "timeInForce": "GTC", "order_ref": "client-9"},
			{"orderId": 43, "conid": 8314, "status": "Filled", "origOrderType": "MKT",
				"side": "SELL", "totalSize": 5.0, "filledQuantity": 5.0, "remainingQuantity": 0.0},
		},
	}))

	conn := connected(t, stub)

	resp, err := conn.GetOrder(context.Background(), "42")
	require.NoError(t, err)
	require.NotNil(t, resp)
	require.Equal(t, "AAPL-USD", resp.Symbol)
	require.Equal(t, domain.StatusPartiallyFilled, resp.Status)
	require.Equal(t, domain.Limit, resp.Type)
	require.Equal(t, "client-9", resp.ClientOrderID)

	missing, err := conn.GetOrder(context.Background(), "999")
	require.NoError(t, err)
	require.Nil(t, missing)

	open, err := conn.GetOpenOrders(context.Background())
	require.NoError(t, err)
	require.Len(t, open, 1)
	require.Equal(t, "42", open[0].OrderID)
}

func TestGetQuote(t *testing.T) {
	stub := newGatewayStub(t)
	stub.handle("/iserver/marketdata/snapshot", func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "265598", r.URL.Query().Get("conids"))
		jsonBody([]map[string]any{{"31": "150.25", "84": "150.20", "86": "150.30", "7762": 1200000.0}})(w, r)
	})

	conn := connected(t, stub)
	q, err := conn.GetQuote(context.Background(), "AAPL-USD")
	require.NoError(t, err)
	require.Equal(t, "AAPL-USD", q.Symbol)
	require.True(t, q.Last.Equal(decimal.RequireFromString("150.25")))
	require.True(t, q.Bid.Equal(decimal.RequireFromString("150.20")))
	require.True(t, q.Ask.Equal(decimal.RequireFromString("150.30")))
}

func TestGetHistoricalDataFiltersWindow(t *testing.T) {
	stub := newGatewayStub(t)
	from := time.UnixMilli(1000000).UTC()
	to := time.UnixMilli(2000000).UTC()
	stub.handle("/iserver/marketdata/history", jsonBody(map[string]any{
		"data": []map[string]any{
			{"t": 500000, "o": 1.0, "h": 2.0, "l": 0.5, "c": 1.5, "v": 100.0},
			{"t": 1000000, "o": 1.0, "h": 2.0, "l": 0.5, "c": 1.5, "v": 101.0},
			{"t": 1500000, "o": 1.0, "h": 2.0, "l": 0.5, "c": 1.5, "v": 102.0},
			{"t": 2500000, "o": 1.0, "h": 2.0, "l": 0.5, "c": 1.5, "v": 103.0},
		},
	}))

	conn := connected(t, stub)
	bars, err := conn.GetHistoricalData(context.Background(), "AAPL-USD", "1h", from, to)
	require.NoError(t, err)
	require.Len(t, bars, 2)
	require.Equal(t, from, bars[0].Time)
}

func TestSessionExpiryDemotesConnector(t *testing.T) {
	stub := newGatewayStub(t)
	stub.handle("/portfolio/DU12345/positions/0", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})

	conn := connected(t, stub)
	_, err := conn.GetPositions(context.Background())
	require.True(t, errors.Is(err, broker.ErrAuth))
	require.Equal(t, domain.ConnError, conn.Status())

	before := stub.calls.Load()
	_, err = conn.GetQuote(context.Background(), "AAPL-USD")
	require.True(t, errors.Is(err, broker.ErrNotConnected))
	require.Equal(t, before, stub.calls.Load())
}

// Package broker defines the capability contract every venue connector
// satisfies, plus the error taxonomy shared across connectors. Upstream
// orchestration selects a Connector per configured account and treats all
// venues uniformly through this interface.
package broker

import (
	"context"
	"time"

	"github.com/quantport/brokerlink/internal/domain"
)

// Connector is implemented once per venue. All operations are network I/O
// and honor the context deadline. A connector holds no mutable state besides
// its connection status, which is written only by Connect and by error-path
// demotion when auth expiry is detected; concurrent calls on an ERROR
// connector fail fast with ErrNotConnected.
//
// State machine per instance:
//
//	DISCONNECTED --Connect(ok)--> CONNECTED
//	DISCONNECTED --Connect(fail)--> ERROR
//	CONNECTED --auth expiry on any call--> ERROR
//
// Both ERROR and DISCONNECTED require a fresh Connect before further calls.
type Connector interface {
	// Connect validates credentials against a lightweight read-only endpoint
	// and sets the connection status. Idempotent: repeated calls re-validate.
	Connect(ctx context.Context, creds domain.Credentials) (domain.ConnectionStatus, error)

	// Status reports the current connection status without network I/O.
	Status() domain.ConnectionStatus

	// GetAccountInfo returns an account snapshot including a freshly fetched
	// positions list. Requires CONNECTED state.
	GetAccountInfo(ctx context.Context) (*domain.AccountInfo, error)

	// GetPositions returns nonzero holdings with canonical symbols and
	// asset types.
	GetPositions(ctx context.Context) ([]domain.Position, error)

	// PlaceOrder validates the request client-side, translates it to venue
	// format and submits it. The response carries StatusNew with zero filled
	// quantity: venues do not return complete fills synchronously.
	PlaceOrder(ctx context.Context, req domain.OrderRequest) (*domain.OrderResponse, error)

	// CancelOrder reports whether cancellation succeeded. An already filled
	// or already canceled order yields (false, nil), not an error.
	CancelOrder(ctx context.Context, orderID string) (bool, error)

	// GetOrder returns (nil, nil) when the order does not exist, which is
	// distinct from an error (network/auth failure).
	GetOrder(ctx context.Context, orderID string) (*domain.OrderResponse, error)

	// GetOpenOrders lists working orders.
	GetOpenOrders(ctx context.Context) ([]domain.OrderResponse, error)

	// GetOrderHistory lists past orders, optionally filtered by canonical
	// symbol and capped at limit. The symbol filter is applied venue-side
	// when the venue supports it, client-side otherwise.
	GetOrderHistory(ctx context.Context, symbol string, limit int) ([]domain.OrderResponse, error)

	// GetQuote returns a price snapshot for a canonical symbol.
	GetQuote(ctx context.Context, symbol string) (*domain.MarketQuote, error)

	// GetHistoricalData returns OHLCV bars for the interval, client-side
	// filtered to [from, to] inclusive. Unknown intervals fall back to the
	// venue's smallest supported granularity (logged, never an error).
	GetHistoricalData(ctx context.Context, symbol, interval string, from, to time.Time) ([]domain.Bar, error)

	// ValidateSymbol is a best-effort existence check. It never errors:
	// any ambiguity or lookup failure yields false.
	ValidateSymbol(ctx context.Context, symbol string) bool

	// Name identifies the venue, e.g. "kraken".
	Name() string
}

package broker

import (
	"fmt"

	"github.com/pkg/errors"
)

// Error taxonomy of the broker layer. Connectors wrap these sentinels with
// venue context; callers match with errors.Is. Validation errors are raised
// before any network call. Venue and network errors are caught at the
// connector boundary, logged with venue context, and re-thrown as one of
// these. The only exceptions are the documented degrade-gracefully
// fallbacks (symbol pass-through, unknown status -> NEW, nearest interval).
var (
	// ErrConnection: connect failed or venue unreachable.
	ErrConnection = errors.New("broker: connection failed")
	// ErrNotConnected: call made before a successful Connect, or after the
	// connector demoted itself to ERROR.
	ErrNotConnected = errors.New("broker: not connected")
	// ErrAuth: signature or session rejected by the venue.
	ErrAuth = errors.New("broker: authentication rejected")
	// ErrInvalidOrder: client-side validation failure, no network call made.
	ErrInvalidOrder = errors.New("broker: invalid order")
	// ErrOrderRejected: venue rejected a syntactically valid order.
	ErrOrderRejected = errors.New("broker: order rejected by venue")
	// ErrSymbolNotFound: lookup failure where strict resolution is required.
	ErrSymbolNotFound = errors.New("broker: symbol not found")
	// ErrTransport: timeout or network failure.
	ErrTransport = errors.New("broker: transport failure")
)

// VenueError carries venue context for an error raised at the connector
// boundary. It wraps one of the taxonomy sentinels so errors.Is keeps working.
type VenueError struct {
	Venue      string
	Op         string
	StatusCode int
	Message    string
	Kind       error
}

func (e *VenueError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s: %s: %s (http %d)", e.Venue, e.Op, e.Message, e.StatusCode)
	}
	return fmt.Sprintf("%s: %s: %s", e.Venue, e.Op, e.Message)
}

func (e *VenueError) Unwrap() error {
	return e.Kind
}

// NewVenueError builds a VenueError wrapping the given taxonomy sentinel.
func NewVenueError(venue, op string, kind error, statusCode int, message string) *VenueError {
	return &VenueError{Venue: venue, Op: op, StatusCode: statusCode, Message: message, Kind: kind}
}

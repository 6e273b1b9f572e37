package ibkr

import "strings"

// IBKR identifies instruments by numeric contract ID. The table covers the
// contracts the platform trades; unmapped canonical symbols pass through so
// power users can address raw conids directly.
var conidTable = map[string]string{
	"AAPL-USD": "265598",
	"MSFT-USD": "272093",
	"IBM-USD":  "8314",
	"TSLA-USD": "76792991",
	"AMZN-USD": "3691937",
	"SPY-USD":  "756733",
	"QQQ-USD":  "320227571",
	"BTC-USD":  "479624278",
	"ETH-USD":  "495512572",
}

var symbolFromConid = func() map[string]string {
	m := make(map[string]string, len(conidTable))
	for canonical, conid := range conidTable {
		m[conid] = canonical
	}
	return m
}()

var assetClassTable = map[string]string{
	"STK":    "EQUITY",
	"OPT":    "OPTION",
	"FUT":    "FUTURE",
	"CASH":   "FOREX",
	"CRYPTO": "CRYPTO",
}

// baseSymbol extracts the venue-searchable base from a canonical symbol,
// e.g. AAPL from AAPL-USD.
func baseSymbol(symbol string) string {
	if i := strings.Index(symbol, "-"); i > 0 {
		return symbol[:i]
	}
	return symbol
}

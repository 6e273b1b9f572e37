package kraken

// Kraken's legacy asset codes predate its REST API: BTC is XXBT, fiat carries
// a Z prefix. The tables below cover the assets the platform trades; anything
// else passes through untranslated.

var assetToCanonical = map[string]string{
	"XXBT": "BTC",
	"XBT":  "BTC",
	"XETH": "ETH",
	"ETH":  "ETH",
	"XXRP": "XRP",
	"XLTC": "LTC",
	"XXDG": "DOGE",
	"ZUSD": "USD",
	"ZEUR": "EUR",
	"ZGBP": "GBP",
	"ADA":  "ADA",
	"SOL":  "SOL",
	"DOT":  "DOT",
	"USDT": "USDT",
	"USDC": "USDC",
}

var pairTable = map[string]string{
	"BTC-USD":  "XXBTZUSD",
	"BTC-EUR":  "XXBTZEUR",
	"ETH-USD":  "XETHZUSD",
	"ETH-EUR":  "XETHZEUR",
	"ETH-BTC":  "XETHXXBT",
	"XRP-USD":  "XXRPZUSD",
	"LTC-USD":  "XLTCZUSD",
	"DOGE-USD": "XDGUSD",
	"ADA-USD":  "ADAUSD",
	"SOL-USD":  "SOLUSD",
	"DOT-USD":  "DOTUSD",
	"USDT-USD": "USDTZUSD",
}

// Order descriptions come back keyed by altname (XBTUSD) while most other
// endpoints use the long form (XXBTZUSD); the inverse table carries both.
var pairAltNames = map[string]string{
	"XBTUSD":  "BTC-USD",
	"XBTEUR":  "BTC-EUR",
	"ETHUSD":  "ETH-USD",
	"ETHEUR":  "ETH-EUR",
	"ETHXBT":  "ETH-BTC",
	"XRPUSD":  "XRP-USD",
	"LTCUSD":  "LTC-USD",
	"USDTUSD": "USDT-USD",
}

var pairFromNative = func() map[string]string {
	m := make(map[string]string, len(pairTable)+len(pairAltNames))
	for canonical, native := range pairTable {
		m[native] = canonical
	}
	for native, canonical := range pairAltNames {
		m[native] = canonical
	}
	return m
}()

// KrakenPair maps a canonical BASE-QUOTE symbol to Kraken's native pair name,
// passing unknown symbols through unchanged.
func KrakenPair(symbol string) string {
	if native, ok := pairTable[symbol]; ok {
		return native
	}
	return symbol
}

// SymbolFromKrakenPair maps a native pair name back to canonical form,
// passing unknown pairs through unchanged.
func SymbolFromKrakenPair(native string) string {
	if canonical, ok := pairFromNative[native]; ok {
		return canonical
	}
	return native
}

// canonicalAsset maps a Kraken asset code to its canonical symbol.
func canonicalAsset(code string) string {
	if c, ok := assetToCanonical[code]; ok {
		return c
	}
	return code
}

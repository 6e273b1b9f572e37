// Package connectors dispatches venue names to concrete broker
// implementations. This is the single point of truth for which venues the
// module speaks.
package connectors

import (
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/quantport/brokerlink/config"
	"github.com/quantport/brokerlink/internal/broker"
	"github.com/quantport/brokerlink/internal/connectors/binance"
	"github.com/quantport/brokerlink/internal/connectors/bybit"
	"github.com/quantport/brokerlink/internal/connectors/ibkr"
	"github.com/quantport/brokerlink/internal/connectors/kraken"
)

type builder func(cfg config.Venue, logger *zap.Logger) broker.Connector

var registry = map[string]builder{
	"kraken":  func(cfg config.Venue, logger *zap.Logger) broker.Connector { return kraken.New(cfg, logger) },
	"ibkr":    func(cfg config.Venue, logger *zap.Logger) broker.Connector { return ibkr.New(cfg, logger) },
	"binance": func(cfg config.Venue, logger *zap.Logger) broker.Connector { return binance.New(cfg, logger) },
	"bybit":   func(cfg config.Venue, logger *zap.Logger) broker.Connector { return bybit.New(cfg, logger) },
}

// New builds a connector for the named venue. The connector starts
// disconnected; call Connect before issuing operations.
func New(venue string, cfg *config.Config, logger *zap.Logger) (broker.Connector, error) {
	build, ok := registry[venue]
	if !ok {
		return nil, fmt.Errorf("unsupported venue %q, known venues: %v", venue, Venues())
	}
	vcfg, err := cfg.Venue(venue)
	if err != nil {
		return nil, err
	}
	return build(vcfg, logger), nil
}

// Venues lists the supported venue names in stable order.
func Venues() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

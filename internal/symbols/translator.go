// Package symbols translates between canonical BASE-QUOTE symbols and
// venue-native identifiers. Each connector owns one Translator built from its
// venue table.
package symbols

import (
	"go.uber.org/zap"
)

// Translator is a pure, venue-scoped bidirectional mapping. Lookup misses
// fall back to pass-through rather than failing: on the outbound side this
// lets power users submit raw venue symbols, on the inbound side it keeps
// downstream code from crashing on an unmapped asset. Every miss is logged so
// ambiguous data is never invisible.
type Translator struct {
	venue     string
	toVenue   map[string]string
	fromVenue map[string]string
	logger    *zap.Logger
}

// New builds a Translator from a canonical->native table. The inverse table
// is derived; when two canonical symbols map to the same native form the last
// entry wins, so venue tables must keep native forms unique.
func New(venue string, table map[string]string, logger *zap.Logger) *Translator {
	if logger == nil {
		logger = zap.NewNop()
	}
	inverse := make(map[string]string, len(table))
	for canonical, native := range table {
		inverse[native] = canonical
	}
	return &Translator{
		venue:     venue,
		toVenue:   table,
		fromVenue: inverse,
		logger:    logger,
	}
}

// ToVenue maps a canonical symbol to the venue-native form, passing the input
// through unchanged when no mapping exists.
func (t *Translator) ToVenue(canonical string) string {
	if native, ok := t.toVenue[canonical]; ok {
		return native
	}
	t.logger.Debug("no native mapping for symbol, passing through",
		zap.String("venue", t.venue), zap.String("symbol", canonical))
	return canonical
}

// FromVenue maps a venue-native identifier back to canonical form, returning
// the native string unchanged when no mapping exists. Callers must tolerate
// un-normalized symbols surfacing from unmapped assets.
func (t *Translator) FromVenue(native string) string {
	if canonical, ok := t.fromVenue[native]; ok {
		return canonical
	}
	t.logger.Debug("no canonical mapping for venue symbol, passing through",
		zap.String("venue", t.venue), zap.String("symbol", native))
	return native
}

// Known reports whether the canonical symbol has a venue mapping.
func (t *Translator) Known(canonical string) bool {
	_, ok := t.toVenue[canonical]
	return ok
}

package domain

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func TestOrderRequestValidate(t *testing.T) {
	base := OrderRequest{
		Symbol:   "BTC-USD",
		Side:     Buy,
		Type:     Market,
		Quantity: decimal.NewFromInt(1),
	}

	tests := []struct {
		name    string
		mutate  func(r *OrderRequest)
		wantErr string
	}{
		{"valid market", func(r *OrderRequest) {}, ""},
		{"valid limit", func(r *OrderRequest) {
			r.Type = Limit
			r.Price = decimal.NewFromInt(100)
		}, ""},
		{"valid stop", func(r *OrderRequest) {
			r.Type = Stop
			r.StopPrice = decimal.NewFromInt(90)
		}, ""},
		{"valid stop limit", func(r *OrderRequest) {
			r.Type = StopLimit
			r.Price = decimal.NewFromInt(95)
			r.StopPrice = decimal.NewFromInt(90)
		}, ""},
		{"valid trailing stop", func(r *OrderRequest) {
			r.Type = TrailingStop
			r.StopPrice = decimal.NewFromInt(5)
		}, ""},
		{"missing symbol", func(r *OrderRequest) { r.Symbol = "" }, "symbol"},
		{"bad side", func(r *OrderRequest) { r.Side = "HOLD" }, "side"},
		{"zero quantity", func(r *OrderRequest) { r.Quantity = decimal.Zero }, "quantity"},
		{"negative quantity", func(r *OrderRequest) { r.Quantity = decimal.NewFromInt(-1) }, "quantity"},
		{"limit without price", func(r *OrderRequest) { r.Type = Limit }, "price"},
		{"stop without stop price", func(r *OrderRequest) { r.Type = Stop }, "stop price"},
		{"stop limit without price", func(r *OrderRequest) {
			r.Type = StopLimit
			r.StopPrice = decimal.NewFromInt(90)
		}, "price"},
		{"stop limit without stop price", func(r *OrderRequest) {
			r.Type = StopLimit
			r.Price = decimal.NewFromInt(95)
		}, "stop price"},
		{"trailing stop without offset", func(r *OrderRequest) { r.Type = TrailingStop }, "trail"},
		{"unknown type", func(r *OrderRequest) { r.Type = "ICEBERG" }, "type"},
		{"unknown time in force", func(r *OrderRequest) { r.TimeInForce = "GTD" }, "time in force"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req := base
			tc.mutate(&req)
			err := req.Validate()
			if tc.wantErr == "" {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			require.Contains(t, err.Error(), tc.wantErr)
		})
	}
}

func TestOrderRequestValidateEmptyTimeInForceAllowed(t *testing.T) {
	req := OrderRequest{
		Symbol:   "BTC-USD",
		Side:     Sell,
		Type:     Market,
		Quantity: decimal.NewFromFloat(0.5),
	}
	require.NoError(t, req.Validate())
}

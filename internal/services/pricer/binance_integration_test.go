//go:build integration

package pricer

import (
	"context"
	"testing"

	"github.com/adshao/go-binance/v2"
	"github.com/hirokisan/bybit/v2"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// Run with: go test -tags=integration ./internal/services/pricer/...
func TestProviders_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}
	ctx := context.Background()

	t.Run("binance BTCUSDT", func(t *testing.T) {
		p := NewBinanceProvider(binance.NewClient("", ""), 30)
		closes, err := p.DailyCloses(ctx, "BTCUSDT")
		require.NoError(t, err)
		require.NotEmpty(t, closes)
		last, _ := PreviousClose(closes)
		assert.True(t, last.GreaterThan(decimal.Zero))
		t.Logf("BTCUSDT previous close: %s", last)
	})

	t.Run("bybit ETHUSDT", func(t *testing.T) {
		p := NewBybitProvider(bybit.NewClient(), 30)
		closes, err := p.DailyCloses(ctx, "ETHUSDT")
		require.NoError(t, err)
		require.NotEmpty(t, closes)
	})

	t.Run("yahoo SOXL", func(t *testing.T) {
		p := NewYahooProvider(zap.NewNop(), "", "1mo")
		closes, err := p.DailyCloses(ctx, "SOXL")
		require.NoError(t, err)
		require.NotEmpty(t, closes)
	})

	t.Run("invalid symbol", func(t *testing.T) {
		p := NewBinanceProvider(binance.NewClient("", ""), 30)
		_, err := p.DailyCloses(ctx, "INVALIDPAIR")
		assert.Error(t, err)
	})
}

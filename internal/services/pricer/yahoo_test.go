package pricer

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vadiminshakov/infbuy/pkg/retrier"
	"go.uber.org/zap"
)

const chartBody = `{"chart":{"result":[{"meta":{"symbol":"SOXL"},
"timestamp":[1704205800,1704292200,1704378600,1704465000],
"indicators":{"quote":[{"close":[30.12,null,28.5,29.75]}]}}],"error":null}}`

func newTestYahoo(t *testing.T, h http.HandlerFunc) *YahooProvider {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	p := NewYahooProvider(zap.NewNop(), srv.URL, "6mo")
	p.retrier = retrier.New(retrier.WithInitialInterval(time.Millisecond), retrier.WithMaxRetries(2))
	return p
}

func TestYahooProvider_DailyCloses(t *testing.T) {
	p := newTestYahoo(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v8/finance/chart/SOXL", r.URL.Path)
		assert.Equal(t, "1d", r.URL.Query().Get("interval"))
		assert.Equal(t, "6mo", r.URL.Query().Get("range"))
		_, _ = w.Write([]byte(chartBody))
	})

	closes, err := p.DailyCloses(context.Background(), "SOXL")
	require.NoError(t, err)
	require.Len(t, closes, 3, "null closes are skipped")

	assert.Equal(t, "30.12", closes[0].Price.String())
	assert.Equal(t, time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC), closes[0].Date)
	assert.Equal(t, "29.75", closes[2].Price.String())
	assert.Equal(t, time.Date(2024, 1, 5, 0, 0, 0, 0, time.UTC), closes[2].Date)

	last, ok := PreviousClose(closes)
	require.True(t, ok)
	assert.Equal(t, "29.75", last.String())
}

func TestYahooProvider_ChartError(t *testing.T) {
	p := newTestYahoo(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"chart":{"result":null,"error":{"code":"Not Found","description":"No data found, symbol may be delisted"}}}`))
	})

	_, err := p.DailyCloses(context.Background(), "NOPE")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "symbol may be delisted")
}

func TestYahooProvider_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	p := newTestYahoo(t, func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte(chartBody))
	})

	closes, err := p.DailyCloses(context.Background(), "SOXL")
	require.NoError(t, err)
	assert.Len(t, closes, 3)
	assert.Equal(t, int32(3), calls.Load())
}

func TestYahooProvider_ClientErrorIsNotRetried(t *testing.T) {
	var calls atomic.Int32
	p := newTestYahoo(t, func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusForbidden)
	})

	_, err := p.DailyCloses(context.Background(), "SOXL")
	require.Error(t, err)
	assert.Equal(t, int32(1), calls.Load())
}

func TestYahooProvider_EmptyResult(t *testing.T) {
	p := newTestYahoo(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"chart":{"result":[{"timestamp":[1704205800],"indicators":{"quote":[{"close":[null]}]}}],"error":null}}`))
	})

	_, err := p.DailyCloses(context.Background(), "SOXL")
	require.ErrorIs(t, err, ErrNoData)
}

package binance

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dsvc "github.com/MrMerge8/recursive/internal/domain/service"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v3/ticker/price", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "BTCUSDT", r.URL.Query().Get("symbol"))
		_, _ = w.Write([]byte(`{"symbol":"BTCUSDT","price":"50123.45"}`))
	})
	mux.HandleFunc("/api/v3/klines", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "5m", r.URL.Query().Get("interval"))
		assert.Equal(t, "2", r.URL.Query().Get("limit"))
		_, _ = w.Write([]byte(`[
			[1700000000000,"100.0","110.0","95.0","105.0","12.5",1700000299999,"0",10,"0","0","0"],
			[1700000300000,"105.0","106.0","101.0","102.0","7.5",1700000599999,"0",10,"0","0","0"]
		]`))
	})
	mux.HandleFunc("/api/v3/ticker/24hr", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"symbol":"BTCUSDT","priceChange":"100","priceChangePercent":"1.25",
			"weightedAvgPrice":"50010.5","highPrice":"51000","lowPrice":"49000","volume":"1234.5","quoteVolume":"61700000"}`))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestClientFetchesMarketData(t *testing.T) {
	srv := newTestServer(t)
	c := New("BTCUSDT", "5m", WithBaseURL(srv.URL), WithTimeout(time.Second), WithRateLimit(100))
	ctx := context.Background()

	price, err := c.Price(ctx)
	require.NoError(t, err)
	assert.InDelta(t, 50123.45, price, 1e-9)

	candles, err := c.Candles(ctx, 2)
	require.NoError(t, err)
	require.Len(t, candles, 2)
	assert.Equal(t, int64(1700000000000), candles[0].OpenTime.UnixMilli())
	assert.InDelta(t, 105.0, candles[0].Close, 1e-9)
	assert.InDelta(t, 7.5, candles[1].Volume, 1e-9)

	st, err := c.Stats24h(ctx)
	require.NoError(t, err)
	assert.InDelta(t, 1.25, st.PriceChangePct, 1e-9)
	assert.InDelta(t, 51000, st.High, 1e-9)
	assert.InDelta(t, 50010.5, st.WeightedAvgPrice, 1e-9)
}

func TestClientFailuresAreTransient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"code":-1003,"msg":"busy"}`))
	}))
	defer srv.Close()

	c := New("BTCUSDT", "5m", WithBaseURL(srv.URL))
	_, err := c.Price(context.Background())
	require.Error(t, err)
	assert.True(t, dsvc.IsTransient(err))

	_, err = c.Candles(context.Background(), 10)
	assert.True(t, dsvc.IsTransient(err))
}

package market

import (
	"context"
	"errors"
	"testing"
	"time"

	"crypto_signals_backend/config"
	"crypto_signals_backend/models"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type fakeExchange struct {
	candles []Candle
	price   decimal.Decimal
	err     error
	calls   int
	limits  []int
}

func (f *fakeExchange) Klines(_ context.Context, _, _ string, limit int) ([]Candle, error) {
	f.calls++
	f.limits = append(f.limits, limit)
	if f.err != nil {
		return nil, f.err
	}
	if limit < len(f.candles) {
		return f.candles[len(f.candles)-limit:], nil
	}
	return f.candles, nil
}

func (f *fakeExchange) Price(context.Context, string) (decimal.Decimal, error) {
	f.calls++
	return f.price, f.err
}

func (f *fakeExchange) Ticker24h(_ context.Context, symbol string) (*Ticker24h, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return &Ticker24h{Symbol: symbol, LastPrice: f.price, ChangePercent: 1.5, Source: SourceExchange}, nil
}

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := config.OpenInMemoryDB(nil)
	require.NoError(t, err)
	require.NoError(t, models.MigrateAll(db))
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})
	return db
}

func sampleCandles(n int) []Candle {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	out := make([]Candle, n)
	for i := range out {
		open := start.Add(time.Duration(i) * time.Hour)
		out[i] = Candle{
			OpenTime:  open,
			CloseTime: open.Add(time.Hour - time.Millisecond),
			Open:      decimal.NewFromInt(int64(100 + i)),
			High:      decimal.NewFromInt(int64(102 + i)),
			Low:       decimal.NewFromInt(int64(99 + i)),
			Close:     decimal.NewFromInt(int64(101 + i)),
			Volume:    decimal.NewFromInt(10),
		}
	}
	return out
}

func TestKlinesFromExchangeAreCached(t *testing.T) {
	ex := &fakeExchange{candles: sampleCandles(5)}
	svc := NewService(ex, newTestDB(t), nil)
	ctx := context.Background()

	first, err := svc.Klines(ctx, "BTCUSDT", "1h", 5)
	require.NoError(t, err)
	assert.Equal(t, SourceExchange, first.Source)
	assert.Len(t, first.Candles, 5)

	second, err := svc.Klines(ctx, "BTCUSDT", "1h", 5)
	require.NoError(t, err)
	assert.Equal(t, 1, ex.calls, "second call should be served from cache")
	assert.Len(t, second.Candles, 5)
}

func TestKlinesLimitsShareOneCacheEntry(t *testing.T) {
	ex := &fakeExchange{candles: sampleCandles(150)}
	svc := NewService(ex, newTestDB(t), nil)
	ctx := context.Background()

	for _, limit := range []int{5, 37, 100} {
		k, err := svc.Klines(ctx, "BTCUSDT", "1h", limit)
		require.NoError(t, err)
		require.Len(t, k.Candles, limit)
		assert.True(t, k.Candles[limit-1].Close.Equal(decimal.NewFromInt(250)), "newest candle last")
	}
	assert.Equal(t, []int{DefaultLimit}, ex.limits)

	_, err := svc.Klines(ctx, "BTCUSDT", "1h", 101)
	require.NoError(t, err)
	assert.Equal(t, []int{DefaultLimit, 500}, ex.limits)
}

func TestFetchSize(t *testing.T) {
	assert.Equal(t, 100, fetchSize(1))
	assert.Equal(t, 100, fetchSize(100))
	assert.Equal(t, 500, fetchSize(101))
	assert.Equal(t, 1000, fetchSize(999))
	assert.Equal(t, 1000, fetchSize(5000))
}

func TestKlinesFallBackToStoredCandles(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	// Fill the candle table through a working exchange first
	good := NewService(&fakeExchange{candles: sampleCandles(10)}, db, nil)
	n, err := good.RefreshCandles(ctx, "BTCUSDT", "1h", 10)
	require.NoError(t, err)
	require.Equal(t, 10, n)

	svc := NewService(&fakeExchange{err: errors.New("exchange down")}, db, nil)
	k, err := svc.Klines(ctx, "BTCUSDT", "1h", 4)
	require.NoError(t, err)
	assert.Equal(t, SourceCache, k.Source)
	require.Len(t, k.Candles, 4)
	assert.True(t, k.Candles[0].OpenTime.Before(k.Candles[3].OpenTime), "candles should be oldest first")
	assert.True(t, k.Candles[3].Close.Equal(decimal.NewFromInt(110)))
}

func TestKlinesFallBackToMock(t *testing.T) {
	svc := NewService(&fakeExchange{err: errors.New("exchange down")}, newTestDB(t), nil)
	fixed := time.Date(2026, 3, 1, 12, 30, 0, 0, time.UTC)
	svc.now = func() time.Time { return fixed }

	k, err := svc.Klines(context.Background(), "ETHUSDT", "15m", 30)
	require.NoError(t, err)
	assert.Equal(t, SourceMock, k.Source)
	require.Len(t, k.Candles, 30)

	again := MockCandles("ETHUSDT", "15m", 30, fixed)
	assert.Equal(t, again, k.Candles, "mock candles are deterministic for a given time")

	for _, c := range k.Candles {
		assert.True(t, c.High.GreaterThanOrEqual(c.Open) && c.High.GreaterThanOrEqual(c.Close))
		assert.True(t, c.Low.LessThanOrEqual(c.Open) && c.Low.LessThanOrEqual(c.Close))
	}
}

func TestKlinesWithoutExchange(t *testing.T) {
	svc := NewService(nil, newTestDB(t), nil)
	k, err := svc.Klines(context.Background(), "SOLUSDT", "1d", 0)
	require.NoError(t, err)
	assert.Equal(t, SourceMock, k.Source)
	assert.Len(t, k.Candles, DefaultLimit)
}

func TestKlinesRejectsUnknownInterval(t *testing.T) {
	svc := NewService(nil, newTestDB(t), nil)
	_, err := svc.Klines(context.Background(), "BTCUSDT", "7m", 10)
	assert.ErrorIs(t, err, ErrInvalidInterval)
}

func TestPriceFallbacks(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	live := NewService(&fakeExchange{price: decimal.RequireFromString("65000.12")}, db, nil)
	p, err := live.Price(ctx, "BTCUSDT")
	require.NoError(t, err)
	assert.Equal(t, SourceExchange, p.Source)
	assert.Equal(t, "65000.12", p.Price.String())

	down := NewService(&fakeExchange{err: errors.New("timeout")}, db, nil)
	p, err = down.Price(ctx, "BTCUSDT")
	require.NoError(t, err)
	assert.Equal(t, SourceMock, p.Source)
	assert.True(t, p.Price.IsPositive())

	_, err = NewService(&fakeExchange{candles: sampleCandles(3)}, db, nil).RefreshCandles(ctx, "BTCUSDT", "1h", 3)
	require.NoError(t, err)

	p, err = down.Price(ctx, "BTCUSDT")
	require.NoError(t, err)
	assert.Equal(t, SourceCache, p.Source)
	assert.True(t, p.Price.Equal(decimal.NewFromInt(103)))
}

func TestRefreshCandlesIsIdempotent(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	ex := &fakeExchange{candles: sampleCandles(6)}
	svc := NewService(ex, db, nil)

	_, err := svc.RefreshCandles(ctx, "BTCUSDT", "1h", 6)
	require.NoError(t, err)

	ex.candles[5].Close = decimal.NewFromInt(999)
	_, err = svc.RefreshCandles(ctx, "BTCUSDT", "1h", 6)
	require.NoError(t, err)

	var count int64
	db.Model(&models.OHLCCandle{}).Count(&count)
	assert.Equal(t, int64(6), count)

	var last models.OHLCCandle
	require.NoError(t, db.Order("open_time DESC").First(&last).Error)
	assert.True(t, last.Close.Equal(decimal.NewFromInt(999)))
}

func TestRefreshCandlesWithoutExchange(t *testing.T) {
	svc := NewService(nil, newTestDB(t), nil)
	_, err := svc.RefreshCandles(context.Background(), "BTCUSDT", "1h", 10)
	assert.ErrorIs(t, err, ErrNoExchange)
}

func TestPurgeCandles(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	svc := NewService(&fakeExchange{candles: sampleCandles(10)}, db, nil)
	_, err := svc.RefreshCandles(ctx, "BTCUSDT", "1h", 10)
	require.NoError(t, err)

	cutoff := time.Date(2026, 1, 1, 4, 0, 0, 0, time.UTC)
	n, err := svc.PurgeCandles(ctx, cutoff)
	require.NoError(t, err)
	assert.Equal(t, int64(4), n)
}

func TestTicker24hFallsBackToMock(t *testing.T) {
	svc := NewService(&fakeExchange{err: errors.New("down")}, newTestDB(t), nil)
	tk, err := svc.Ticker24h(context.Background(), "BTCUSDT")
	require.NoError(t, err)
	assert.Equal(t, SourceMock, tk.Source)
	assert.InDelta(t, 0, tk.ChangePercent, 10)
}

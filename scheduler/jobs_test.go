package scheduler

import (
	"context"
	"testing"
	"time"

	"crypto_signals_backend/config"
	"crypto_signals_backend/models"
	"crypto_signals_backend/services/forecast"
	"crypto_signals_backend/services/market"
	"crypto_signals_backend/services/signals"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func newTestScheduler(t *testing.T, retentionDays int) (*Scheduler, *gorm.DB) {
	t.Helper()
	db, err := config.OpenInMemoryDB(nil)
	require.NoError(t, err)
	require.NoError(t, models.MigrateAll(db))

	md := market.NewService(nil, db, nil)
	s := NewScheduler(db, md, forecast.NewService(db, md), signals.NewService(db, nil), retentionDays)
	t.Cleanup(func() {
		s.Stop()
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})
	return s, db
}

func TestStartRegistersJobs(t *testing.T) {
	s, _ := newTestScheduler(t, 90)
	require.NoError(t, s.Start())

	tags := map[string]bool{}
	for _, job := range s.cron.Jobs() {
		for _, tag := range job.Tags() {
			tags[tag] = true
		}
	}
	for _, want := range []string{"candles", "heatmap", "forecasts", "purge-signals", "purge-market"} {
		assert.True(t, tags[want], "missing job %s", want)
	}
}

func TestRefreshCandlesWithoutExchange(t *testing.T) {
	s, db := newTestScheduler(t, 90)
	require.NoError(t, db.Create(&models.Ticker{Symbol: "BTCUSDT", IsActive: true}).Error)
	assert.NoError(t, s.RefreshCandles(context.Background()))
}

func TestPurgeSignals(t *testing.T) {
	s, db := newTestScheduler(t, 30)
	now := time.Now().UTC()
	for _, age := range []int{1, 10, 45, 100} {
		require.NoError(t, db.Create(&models.Signal{
			Symbol: "BTCUSDT", Action: models.ActionBuy, Source: models.SourceAdmin,
			SignalTime: now.AddDate(0, 0, -age),
		}).Error)
	}

	require.NoError(t, s.PurgeSignals(context.Background()))

	var left int64
	db.Model(&models.Signal{}).Count(&left)
	assert.Equal(t, int64(2), left)
}

func TestPurgeSignalsDisabled(t *testing.T) {
	s, db := newTestScheduler(t, 0)
	require.NoError(t, db.Create(&models.Signal{
		Symbol: "BTCUSDT", Action: models.ActionBuy, Source: models.SourceAdmin,
		SignalTime: time.Now().AddDate(-5, 0, 0),
	}).Error)

	require.NoError(t, s.PurgeSignals(context.Background()))

	var left int64
	db.Model(&models.Signal{}).Count(&left)
	assert.Equal(t, int64(1), left)
}

func TestPurgeMarketData(t *testing.T) {
	s, db := newTestScheduler(t, 90)
	now := time.Now().UTC()

	require.NoError(t, db.Create(&[]models.OHLCCandle{
		{Symbol: "BTCUSDT", Interval: "1h", OpenTime: now.AddDate(0, 0, -40), Close: decimal.NewFromInt(1)},
		{Symbol: "BTCUSDT", Interval: "1h", OpenTime: now.Add(-time.Hour), Close: decimal.NewFromInt(2)},
	}).Error)
	require.NoError(t, db.Create(&[]models.HeatmapSnapshot{
		{Symbol: "BTCUSDT", Source: market.SourceMock, TakenAt: now.AddDate(0, 0, -8)},
		{Symbol: "BTCUSDT", Source: market.SourceMock, TakenAt: now},
	}).Error)

	require.NoError(t, s.PurgeMarketData(context.Background()))

	var candles, snapshots int64
	db.Model(&models.OHLCCandle{}).Count(&candles)
	db.Model(&models.HeatmapSnapshot{}).Count(&snapshots)
	assert.Equal(t, int64(1), candles)
	assert.Equal(t, int64(1), snapshots)
}

func TestSnapshotAndForecastJobs(t *testing.T) {
	s, db := newTestScheduler(t, 90)
	require.NoError(t, db.Create(&models.Ticker{Symbol: "ETHUSDT", IsActive: true}).Error)
	ctx := context.Background()

	require.NoError(t, s.SnapshotHeatmap(ctx))
	require.NoError(t, s.GenerateForecasts(ctx))

	var snapshots, forecasts int64
	db.Model(&models.HeatmapSnapshot{}).Count(&snapshots)
	db.Model(&models.Forecast{}).Count(&forecasts)
	assert.Equal(t, int64(1), snapshots)
	assert.Equal(t, int64(3), forecasts)
}

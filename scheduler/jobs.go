package scheduler

import (
	"context"
	"errors"
	"time"

	"crypto_signals_backend/models"
	"crypto_signals_backend/services/forecast"
	"crypto_signals_backend/services/market"
	"crypto_signals_backend/services/signals"

	"github.com/go-co-op/gocron"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

const (
	candleRetention  = 30 * 24 * time.Hour
	heatmapRetention = 7 * 24 * time.Hour
	candleLimit      = 200
	jobTimeout       = 2 * time.Minute
)

// refreshIntervals are the candle intervals kept warm for every active ticker
var refreshIntervals = []string{"1h", "1d"}

// Scheduler manages scheduled jobs
type Scheduler struct {
	cron          *gocron.Scheduler
	db            *gorm.DB
	market        *market.Service
	forecasts     *forecast.Service
	signals       *signals.Service
	retentionDays int

	ctx    context.Context
	cancel context.CancelFunc
}

// NewScheduler creates a new scheduler instance. A retention of zero or less
// disables signal purging.
func NewScheduler(db *gorm.DB, md *market.Service, fc *forecast.Service, sig *signals.Service, retentionDays int) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())
	cron := gocron.NewScheduler(time.UTC)
	cron.SingletonModeAll()

	return &Scheduler{
		cron:          cron,
		db:            db,
		market:        md,
		forecasts:     fc,
		signals:       sig,
		retentionDays: retentionDays,
		ctx:           ctx,
		cancel:        cancel,
	}
}

// Start registers all jobs and starts the scheduler in the background
func (s *Scheduler) Start() error {
	log.Info().Msg("Starting scheduler...")

	if _, err := s.cron.Every(5).Minutes().Tag("candles").Do(s.run("candles", s.RefreshCandles)); err != nil {
		return err
	}
	if _, err := s.cron.Every(15).Minutes().Tag("heatmap").Do(s.run("heatmap", s.SnapshotHeatmap)); err != nil {
		return err
	}
	if _, err := s.cron.Every(1).Day().At("00:05").WaitForSchedule().Tag("forecasts").Do(s.run("forecasts", s.GenerateForecasts)); err != nil {
		return err
	}
	if _, err := s.cron.Every(1).Day().At("02:00").WaitForSchedule().Tag("purge-signals").Do(s.run("purge-signals", s.PurgeSignals)); err != nil {
		return err
	}
	if _, err := s.cron.Every(1).Week().Sunday().At("01:00").WaitForSchedule().Tag("purge-market").Do(s.run("purge-market", s.PurgeMarketData)); err != nil {
		return err
	}

	s.cron.StartAsync()
	log.Info().Int("jobs", len(s.cron.Jobs())).Msg("Scheduler started successfully")
	return nil
}

// Stop stops the scheduler and cancels running jobs
func (s *Scheduler) Stop() {
	s.cancel()
	s.cron.Stop()
	log.Info().Msg("Scheduler stopped")
}

func (s *Scheduler) run(name string, job func(ctx context.Context) error) func() {
	return func() {
		ctx, cancel := context.WithTimeout(s.ctx, jobTimeout)
		defer cancel()

		start := time.Now()
		if err := job(ctx); err != nil {
			log.Error().Err(err).Str("job", name).Msg("Scheduled job failed")
			return
		}
		log.Debug().Str("job", name).Dur("duration", time.Since(start)).Msg("Scheduled job finished")
	}
}

// RefreshCandles stores fresh candles for every active ticker
func (s *Scheduler) RefreshCandles(ctx context.Context) error {
	var tickers []models.Ticker
	if err := s.db.WithContext(ctx).Where("is_active = ?", true).Find(&tickers).Error; err != nil {
		return err
	}

	stored := 0
	for _, ticker := range tickers {
		for _, interval := range refreshIntervals {
			n, err := s.market.RefreshCandles(ctx, ticker.Symbol, interval, candleLimit)
			if errors.Is(err, market.ErrNoExchange) {
				return nil
			}
			if err != nil {
				log.Warn().Err(err).Str("symbol", ticker.Symbol).Str("interval", interval).Msg("Candle refresh failed")
				continue
			}
			stored += n
		}
	}

	log.Info().Int("tickers", len(tickers)).Int("candles", stored).Msg("Refreshed candle cache")
	return nil
}

// SnapshotHeatmap records the 24h change of every active ticker
func (s *Scheduler) SnapshotHeatmap(ctx context.Context) error {
	rows, err := s.forecasts.SnapshotHeatmap(ctx)
	if err != nil {
		return err
	}
	log.Info().Int("tickers", len(rows)).Msg("Heatmap snapshot taken")
	return nil
}

// GenerateForecasts builds today's forecasts for every active ticker
func (s *Scheduler) GenerateForecasts(ctx context.Context) error {
	n, err := s.forecasts.GenerateAll(ctx)
	if err != nil {
		return err
	}
	log.Info().Int("forecasts", n).Msg("Generated daily forecasts")
	return nil
}

// PurgeSignals deletes signals older than the retention window
func (s *Scheduler) PurgeSignals(ctx context.Context) error {
	if s.retentionDays <= 0 {
		return nil
	}
	cutoff := time.Now().UTC().AddDate(0, 0, -s.retentionDays)
	n, err := s.signals.PurgeOlderThan(ctx, cutoff)
	if err != nil {
		return err
	}
	log.Info().Int64("deleted", n).Time("cutoff", cutoff).Msg("Purged old signals")
	return nil
}

// PurgeMarketData removes old candles and heatmap snapshots
func (s *Scheduler) PurgeMarketData(ctx context.Context) error {
	now := time.Now().UTC()

	candles, err := s.market.PurgeCandles(ctx, now.Add(-candleRetention))
	if err != nil {
		return err
	}
	snapshots, err := s.forecasts.PurgeHeatmap(ctx, now.Add(-heatmapRetention))
	if err != nil {
		return err
	}

	log.Info().Int64("candles", candles).Int64("snapshots", snapshots).Msg("Purged old market data")
	return nil
}

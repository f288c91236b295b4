// Package signals persists buy/sell signals and publishes them to
// WebSocket subscribers.
package signals

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"crypto_signals_backend/models"
	"crypto_signals_backend/services/hub"
	"crypto_signals_backend/validators"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

var (
	ErrNotFound     = errors.New("signal not found")
	ErrInvalidInput = errors.New("invalid signal")
)

const publishTimeout = 5 * time.Second

// CreateInput holds the fields of a new signal
type CreateInput struct {
	Symbol     string
	Action     string
	Price      decimal.Decimal
	Interval   string
	Strategy   string
	Source     string
	Message    string
	SignalTime time.Time
	CreatedBy  *uint
}

// Filter narrows List results. Zero values are ignored; an unknown action
// is rejected with ErrInvalidInput.
type Filter struct {
	Symbol string
	Action string
	Source string
	Since  time.Time
	Page   int
	Limit  int
}

// Service handles signal storage and fan-out
type Service struct {
	db        *gorm.DB
	publisher hub.Publisher
}

// NewService creates a signal service. publisher may be nil.
func NewService(db *gorm.DB, publisher hub.Publisher) *Service {
	return &Service{db: db, publisher: publisher}
}

// Create validates and stores a signal, then publishes it. A publish
// failure is logged; the signal stays stored.
func (s *Service) Create(ctx context.Context, in CreateInput) (*models.Signal, error) {
	symbol := validators.NormalizeSymbol(in.Symbol)
	if !validators.IsValidSymbol(symbol) {
		return nil, fmt.Errorf("%w: symbol %q", ErrInvalidInput, in.Symbol)
	}
	action, ok := models.NormalizeAction(in.Action)
	if !ok {
		return nil, fmt.Errorf("%w: action %q", ErrInvalidInput, in.Action)
	}
	if in.Price.IsNegative() {
		return nil, fmt.Errorf("%w: negative price", ErrInvalidInput)
	}

	source := strings.ToLower(strings.TrimSpace(in.Source))
	if source == "" {
		source = models.SourceAdmin
	}
	signalTime := in.SignalTime
	if signalTime.IsZero() {
		signalTime = time.Now()
	}

	signal := &models.Signal{
		Symbol:     symbol,
		Action:     action,
		Price:      in.Price,
		Interval:   strings.TrimSpace(in.Interval),
		Strategy:   strings.TrimSpace(in.Strategy),
		Source:     source,
		Message:    strings.TrimSpace(in.Message),
		SignalTime: signalTime.UTC(),
		CreatedBy:  in.CreatedBy,
	}

	// Link to a known ticker; unknown symbols are kept without one
	var ticker models.Ticker
	err := s.db.WithContext(ctx).Where("symbol = ?", symbol).First(&ticker).Error
	switch {
	case err == nil:
		signal.TickerID = &ticker.ID
	case !errors.Is(err, gorm.ErrRecordNotFound):
		return nil, fmt.Errorf("failed to look up ticker: %w", err)
	}

	if err := s.db.WithContext(ctx).Create(signal).Error; err != nil {
		return nil, fmt.Errorf("failed to create signal: %w", err)
	}
	if signal.TickerID != nil {
		signal.Ticker = &ticker
	}

	s.publish(ctx, hub.Envelope{Type: hub.TypeSignal, Signal: signal})
	return signal, nil
}

// List returns signals matching the filter, newest first, and the total count
func (s *Service) List(ctx context.Context, f Filter) ([]models.Signal, int64, error) {
	page, limit := normalizePage(f.Page, f.Limit)

	query := s.db.WithContext(ctx).Model(&models.Signal{})
	if f.Symbol != "" {
		query = query.Where("symbol = ?", validators.NormalizeSymbol(f.Symbol))
	}
	if f.Action != "" {
		action, ok := models.NormalizeAction(f.Action)
		if !ok {
			return nil, 0, fmt.Errorf("%w: action filter %q", ErrInvalidInput, f.Action)
		}
		query = query.Where("action = ?", action)
	}
	if f.Source != "" {
		query = query.Where("source = ?", strings.ToLower(f.Source))
	}
	if !f.Since.IsZero() {
		query = query.Where("signal_time >= ?", f.Since.UTC())
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count signals: %w", err)
	}

	var list []models.Signal
	err := query.Preload("Ticker").
		Order("signal_time DESC, id DESC").
		Offset((page - 1) * limit).
		Limit(limit).
		Find(&list).Error
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list signals: %w", err)
	}
	return list, total, nil
}

// Latest returns the most recent signals
func (s *Service) Latest(ctx context.Context, limit int) ([]models.Signal, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	var list []models.Signal
	err := s.db.WithContext(ctx).Preload("Ticker").
		Order("signal_time DESC, id DESC").
		Limit(limit).
		Find(&list).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load latest signals: %w", err)
	}
	return list, nil
}

// Get returns one signal
func (s *Service) Get(ctx context.Context, id uint) (*models.Signal, error) {
	var signal models.Signal
	if err := s.db.WithContext(ctx).Preload("Ticker").First(&signal, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get signal: %w", err)
	}
	return &signal, nil
}

// Delete removes a signal and tells subscribers about it
func (s *Service) Delete(ctx context.Context, id uint) (*models.Signal, error) {
	signal, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.db.WithContext(ctx).Delete(&models.Signal{}, id).Error; err != nil {
		return nil, fmt.Errorf("failed to delete signal: %w", err)
	}

	s.publish(ctx, hub.Envelope{Type: hub.TypeSignalDeleted, Signal: signal})
	return signal, nil
}

// PurgeOlderThan deletes signals emitted before cutoff
func (s *Service) PurgeOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	result := s.db.WithContext(ctx).Where("signal_time < ?", cutoff.UTC()).Delete(&models.Signal{})
	if result.Error != nil {
		return 0, fmt.Errorf("failed to purge signals: %w", result.Error)
	}
	return result.RowsAffected, nil
}

func (s *Service) publish(ctx context.Context, env hub.Envelope) {
	if s.publisher == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()

	if err := s.publisher.Publish(ctx, env); err != nil {
		log.Error().Err(err).Str("type", env.Type).Msg("Failed to publish signal")
	}
}

func normalizePage(page, limit int) (int, int) {
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 100 {
		limit = 20
	}
	return page, limit
}

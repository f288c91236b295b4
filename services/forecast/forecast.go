// Package forecast produces placeholder cycle, Elliott wave and Gann
// readings and 24h heatmap snapshots. Readings are pseudo-random, seeded by
// symbol, kind and UTC day, and persisted so a day's numbers never change.
package forecast

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"hash/fnv"
	"math"
	"math/rand"
	"time"

	"crypto_signals_backend/models"
	"crypto_signals_backend/services/market"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var ErrUnknownKind = errors.New("unknown forecast kind")

// MarketData is the part of the market service forecasts read from
type MarketData interface {
	Price(ctx context.Context, symbol string) (*market.Price, error)
	Ticker24h(ctx context.Context, symbol string) (*market.Ticker24h, error)
}

// Result is a forecast as returned to clients
type Result struct {
	Symbol      string          `json:"symbol"`
	Kind        string          `json:"kind"`
	Date        string          `json:"date"`
	Data        json.RawMessage `json:"data"`
	GeneratedAt time.Time       `json:"generated_at"`
}

type CycleForecast struct {
	ReferencePrice float64 `json:"reference_price"`
	Phase          string  `json:"phase"`
	CycleLength    int     `json:"cycle_length_days"`
	DaysIntoCycle  int     `json:"days_into_cycle"`
	NextTurnDate   string  `json:"next_turn_date"`
	Confidence     float64 `json:"confidence"`
}

type ElliottForecast struct {
	ReferencePrice float64   `json:"reference_price"`
	Degree         string    `json:"degree"`
	CurrentWave    string    `json:"current_wave"`
	Direction      string    `json:"direction"`
	Targets        []float64 `json:"targets"`
	Invalidation   float64   `json:"invalidation"`
	Confidence     float64   `json:"confidence"`
}

type GannForecast struct {
	ReferencePrice float64            `json:"reference_price"`
	Pivot          float64            `json:"pivot"`
	Angles         map[string]float64 `json:"angles"`
	Support        []float64          `json:"support"`
	Resistance     []float64          `json:"resistance"`
	SquareOfNine   []float64          `json:"square_of_nine"`
	TimeWindows    []string           `json:"time_windows"`
}

var (
	cyclePhases   = []string{"accumulation", "markup", "distribution", "markdown"}
	elliottWaves  = []string{"1", "2", "3", "4", "5", "A", "B", "C"}
	elliottDegree = []string{"minor", "intermediate", "primary"}
)

// Service generates and stores forecasts and heatmaps
type Service struct {
	db     *gorm.DB
	market MarketData
	now    func() time.Time
}

func NewService(db *gorm.DB, md MarketData) *Service {
	return &Service{db: db, market: md, now: time.Now}
}

// Get returns today's forecast, generating it on first request
func (s *Service) Get(ctx context.Context, symbol, kind string) (*Result, error) {
	if !models.IsValidForecastKind(kind) {
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}

	day := s.now().UTC().Truncate(24 * time.Hour)
	row, err := s.load(ctx, symbol, kind, day)
	if err == nil {
		return toResult(row), nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("failed to load forecast: %w", err)
	}

	// A concurrent request may insert first; keep its row and read it back
	if err := s.insert(ctx, symbol, kind, day); err != nil {
		return nil, err
	}
	row, err = s.load(ctx, symbol, kind, day)
	if err != nil {
		return nil, fmt.Errorf("failed to load forecast: %w", err)
	}
	return toResult(row), nil
}

func (s *Service) load(ctx context.Context, symbol, kind string, day time.Time) (*models.Forecast, error) {
	var row models.Forecast
	err := s.db.WithContext(ctx).
		Where("symbol = ? AND kind = ? AND date = ?", symbol, kind, day.Format("2006-01-02")).
		First(&row).Error
	if err != nil {
		return nil, err
	}
	return &row, nil
}

// insert computes the forecast for day and stores it unless a row already exists
func (s *Service) insert(ctx context.Context, symbol, kind string, day time.Time) error {
	ref := 100.0
	if s.market != nil {
		if p, err := s.market.Price(ctx, symbol); err == nil {
			ref, _ = p.Price.Float64()
		}
	}

	payload, err := json.Marshal(build(symbol, kind, day, ref))
	if err != nil {
		return fmt.Errorf("failed to encode forecast: %w", err)
	}

	row := models.Forecast{Symbol: symbol, Kind: kind, Date: day.Format("2006-01-02"), Payload: string(payload)}
	err = s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "symbol"}, {Name: "kind"}, {Name: "date"}},
		DoNothing: true,
	}).Create(&row).Error
	if err != nil {
		return fmt.Errorf("failed to store forecast: %w", err)
	}
	return nil
}

// GenerateAll makes sure today's forecasts exist for every active ticker.
// Rows already served today are left untouched.
func (s *Service) GenerateAll(ctx context.Context) (int, error) {
	var symbols []string
	if err := s.db.WithContext(ctx).Model(&models.Ticker{}).
		Where("is_active = ?", true).
		Pluck("symbol", &symbols).Error; err != nil {
		return 0, fmt.Errorf("failed to list tickers: %w", err)
	}

	count := 0
	for _, symbol := range symbols {
		for _, kind := range []string{models.ForecastCycle, models.ForecastElliott, models.ForecastGann} {
			if ctx.Err() != nil {
				return count, ctx.Err()
			}
			if _, err := s.Get(ctx, symbol, kind); err != nil {
				log.Error().Err(err).Str("symbol", symbol).Str("kind", kind).Msg("Forecast generation failed")
				continue
			}
			count++
		}
	}
	return count, nil
}

// SnapshotHeatmap records the 24h change of every active ticker
func (s *Service) SnapshotHeatmap(ctx context.Context) ([]models.HeatmapSnapshot, error) {
	if s.market == nil {
		return nil, errors.New("no market data source")
	}
	var tickers []models.Ticker
	if err := s.db.WithContext(ctx).Where("is_active = ?", true).Order("symbol").Find(&tickers).Error; err != nil {
		return nil, fmt.Errorf("failed to list tickers: %w", err)
	}
	if len(tickers) == 0 {
		return []models.HeatmapSnapshot{}, nil
	}

	takenAt := s.now().UTC()
	rows := make([]models.HeatmapSnapshot, 0, len(tickers))
	for _, t := range tickers {
		stats, err := s.market.Ticker24h(ctx, t.Symbol)
		if err != nil {
			log.Warn().Err(err).Str("symbol", t.Symbol).Msg("Skipping heatmap entry")
			continue
		}
		rows = append(rows, models.HeatmapSnapshot{
			Symbol:        t.Symbol,
			LastPrice:     stats.LastPrice,
			ChangePercent: stats.ChangePercent,
			QuoteVolume:   stats.QuoteVolume,
			Source:        stats.Source,
			TakenAt:       takenAt,
		})
	}
	if len(rows) == 0 {
		return rows, nil
	}

	if err := s.db.WithContext(ctx).Create(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to store heatmap: %w", err)
	}
	return rows, nil
}

// Heatmap returns the latest snapshot per symbol, taking one if none exists
func (s *Service) Heatmap(ctx context.Context) ([]models.HeatmapSnapshot, error) {
	var recent []models.HeatmapSnapshot
	if err := s.db.WithContext(ctx).Order("taken_at DESC, id DESC").Limit(1000).Find(&recent).Error; err != nil {
		return nil, fmt.Errorf("failed to load heatmap: %w", err)
	}
	if len(recent) == 0 {
		return s.SnapshotHeatmap(ctx)
	}

	seen := make(map[string]bool)
	latest := make([]models.HeatmapSnapshot, 0, len(recent))
	for _, row := range recent {
		if seen[row.Symbol] {
			continue
		}
		seen[row.Symbol] = true
		latest = append(latest, row)
	}
	return latest, nil
}

// PurgeHeatmap removes snapshots taken before cutoff
func (s *Service) PurgeHeatmap(ctx context.Context, cutoff time.Time) (int64, error) {
	result := s.db.WithContext(ctx).Where("taken_at < ?", cutoff.UTC()).Delete(&models.HeatmapSnapshot{})
	if result.Error != nil {
		return 0, fmt.Errorf("failed to purge heatmap: %w", result.Error)
	}
	return result.RowsAffected, nil
}

func toResult(row *models.Forecast) *Result {
	return &Result{
		Symbol:      row.Symbol,
		Kind:        row.Kind,
		Date:        row.Date,
		Data:        json.RawMessage(row.Payload),
		GeneratedAt: row.UpdatedAt,
	}
}

// Seed derives the generator seed for one symbol, kind and day
func Seed(symbol, kind, date string) int64 {
	h := fnv.New64a()
	h.Write([]byte(symbol + "|" + kind + "|" + date))
	return int64(h.Sum64())
}

func build(symbol, kind string, day time.Time, ref float64) any {
	rng := rand.New(rand.NewSource(Seed(symbol, kind, day.Format("2006-01-02"))))

	switch kind {
	case models.ForecastCycle:
		length := 20 + rng.Intn(40)
		into := rng.Intn(length)
		return CycleForecast{
			ReferencePrice: price(ref),
			Phase:          cyclePhases[into*len(cyclePhases)/length],
			CycleLength:    length,
			DaysIntoCycle:  into,
			NextTurnDate:   day.AddDate(0, 0, length-into).Format("2006-01-02"),
			Confidence:     pct(0.4 + rng.Float64()*0.5),
		}

	case models.ForecastElliott:
		wave := elliottWaves[rng.Intn(len(elliottWaves))]
		direction := "up"
		if wave == "2" || wave == "4" || wave == "A" || wave == "C" {
			direction = "down"
		}
		sign := 1.0
		if direction == "down" {
			sign = -1
		}
		targets := make([]float64, 3)
		for i := range targets {
			move := (0.02 + rng.Float64()*0.05) * float64(i+1)
			targets[i] = price(ref * (1 + sign*move))
		}
		return ElliottForecast{
			ReferencePrice: price(ref),
			Degree:         elliottDegree[rng.Intn(len(elliottDegree))],
			CurrentWave:    wave,
			Direction:      direction,
			Targets:        targets,
			Invalidation:   price(ref * (1 - sign*(0.03+rng.Float64()*0.04))),
			Confidence:     pct(0.3 + rng.Float64()*0.5),
		}

	default:
		pivot := ref * (0.95 + rng.Float64()*0.1)
		root := math.Sqrt(pivot)
		square := make([]float64, 0, 8)
		for i := -4; i <= 4; i++ {
			if i == 0 {
				continue
			}
			level := root + float64(i)*0.25
			square = append(square, price(level*level))
		}
		windows := make([]string, 3)
		for i, offset := range []int{7, 30, 90} {
			windows[i] = day.AddDate(0, 0, offset+rng.Intn(5)-2).Format("2006-01-02")
		}
		return GannForecast{
			ReferencePrice: price(ref),
			Pivot:          price(pivot),
			Angles: map[string]float64{
				"1x1": price(pivot * 1.01),
				"2x1": price(pivot * 1.02),
				"1x2": price(pivot * 1.005),
			},
			Support:      []float64{square[3], square[2], square[1]},
			Resistance:   []float64{square[4], square[5], square[6]},
			SquareOfNine: square,
			TimeWindows:  windows,
		}
	}
}

func price(v float64) float64 {
	f, _ := decimal.NewFromFloat(v).Round(8).Float64()
	return f
}

func pct(v float64) float64 {
	return math.Round(v*100) / 100
}

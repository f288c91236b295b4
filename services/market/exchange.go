package market

import (
	"context"
	"errors"
	"fmt"
	"time"

	"crypto_signals_backend/metrics"

	"github.com/adshao/go-binance/v2"
	"github.com/adshao/go-binance/v2/common"
	"github.com/shopspring/decimal"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"
)

const exchangeTimeout = 10 * time.Second

// Exchange is the upstream market data source
type Exchange interface {
	Klines(ctx context.Context, symbol, interval string, limit int) ([]Candle, error)
	Price(ctx context.Context, symbol string) (decimal.Decimal, error)
	Ticker24h(ctx context.Context, symbol string) (*Ticker24h, error)
}

// BinanceExchange reads public market data from Binance spot REST.
// Calls are rate limited and guarded by a circuit breaker.
type BinanceExchange struct {
	client  *binance.Client
	limiter *rate.Limiter
	breaker *gobreaker.CircuitBreaker
}

// NewBinanceExchange creates a Binance data source. baseURL overrides the
// API endpoint when set.
func NewBinanceExchange(apiKey, secretKey, baseURL string) *BinanceExchange {
	client := binance.NewClient(apiKey, secretKey)
	if baseURL != "" {
		client.BaseURL = baseURL
	}

	settings := gobreaker.Settings{
		Name:        "binance",
		MaxRequests: 1,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.ConsecutiveFailures >= 5 {
				return true
			}
			if counts.Requests < 20 {
				return false
			}
			return float64(counts.TotalFailures)/float64(counts.Requests) > 0.5
		},
		IsSuccessful: func(err error) bool {
			return err == nil || isRequestError(err)
		},
	}

	return &BinanceExchange{
		client:  client,
		limiter: rate.NewLimiter(rate.Limit(10), 20),
		breaker: gobreaker.NewCircuitBreaker(settings),
	}
}

// isRequestError reports Binance request errors (codes -1100 to -1199,
// e.g. -1121 invalid symbol). These are the caller's fault and must not
// trip the breaker for everyone else.
func isRequestError(err error) bool {
	var apiErr *common.APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	return apiErr.Code <= -1100 && apiErr.Code >= -1199
}

func (b *BinanceExchange) call(ctx context.Context, op string, fn func(ctx context.Context) (interface{}, error)) (interface{}, error) {
	ctx, cancel := context.WithTimeout(ctx, exchangeTimeout)
	defer cancel()

	if err := b.limiter.Wait(ctx); err != nil {
		metrics.ExchangeRequests.WithLabelValues(op, "throttled").Inc()
		return nil, fmt.Errorf("%s: rate limit wait: %w", op, err)
	}

	result, err := b.breaker.Execute(func() (interface{}, error) {
		return fn(ctx)
	})
	switch {
	case err == nil:
		metrics.ExchangeRequests.WithLabelValues(op, "ok").Inc()
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		metrics.ExchangeRequests.WithLabelValues(op, "circuit_open").Inc()
	default:
		metrics.ExchangeRequests.WithLabelValues(op, "error").Inc()
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return result, nil
}

// Klines fetches candles oldest first
func (b *BinanceExchange) Klines(ctx context.Context, symbol, interval string, limit int) ([]Candle, error) {
	result, err := b.call(ctx, "klines", func(ctx context.Context) (interface{}, error) {
		return b.client.NewKlinesService().Symbol(symbol).Interval(interval).Limit(limit).Do(ctx)
	})
	if err != nil {
		return nil, err
	}

	klines := result.([]*binance.Kline)
	candles := make([]Candle, 0, len(klines))
	for _, k := range klines {
		c, err := candleFromKline(k)
		if err != nil {
			return nil, err
		}
		candles = append(candles, c)
	}
	return candles, nil
}

// Price fetches the last traded price
func (b *BinanceExchange) Price(ctx context.Context, symbol string) (decimal.Decimal, error) {
	result, err := b.call(ctx, "price", func(ctx context.Context) (interface{}, error) {
		return b.client.NewListPricesService().Symbol(symbol).Do(ctx)
	})
	if err != nil {
		return decimal.Zero, err
	}

	for _, p := range result.([]*binance.SymbolPrice) {
		if p.Symbol == symbol {
			return decimal.NewFromString(p.Price)
		}
	}
	return decimal.Zero, fmt.Errorf("price: symbol %s not returned", symbol)
}

// Ticker24h fetches rolling 24h statistics
func (b *BinanceExchange) Ticker24h(ctx context.Context, symbol string) (*Ticker24h, error) {
	result, err := b.call(ctx, "ticker24h", func(ctx context.Context) (interface{}, error) {
		return b.client.NewListPriceChangeStatsService().Symbol(symbol).Do(ctx)
	})
	if err != nil {
		return nil, err
	}

	for _, s := range result.([]*binance.PriceChangeStats) {
		if s.Symbol != symbol {
			continue
		}
		last, err := decimal.NewFromString(s.LastPrice)
		if err != nil {
			return nil, fmt.Errorf("ticker24h: bad last price: %w", err)
		}
		change, err := decimal.NewFromString(s.PriceChangePercent)
		if err != nil {
			return nil, fmt.Errorf("ticker24h: bad change percent: %w", err)
		}
		quoteVolume, _ := decimal.NewFromString(s.QuoteVolume)
		pct, _ := change.Float64()
		return &Ticker24h{
			Symbol:        symbol,
			LastPrice:     last,
			ChangePercent: pct,
			QuoteVolume:   quoteVolume,
			Source:        SourceExchange,
		}, nil
	}
	return nil, fmt.Errorf("ticker24h: symbol %s not returned", symbol)
}

func candleFromKline(k *binance.Kline) (Candle, error) {
	fields := []string{k.Open, k.High, k.Low, k.Close, k.Volume}
	values := make([]decimal.Decimal, len(fields))
	for i, f := range fields {
		v, err := decimal.NewFromString(f)
		if err != nil {
			return Candle{}, fmt.Errorf("klines: bad number %q: %w", f, err)
		}
		values[i] = v
	}
	return Candle{
		OpenTime:  time.UnixMilli(k.OpenTime).UTC(),
		CloseTime: time.UnixMilli(k.CloseTime).UTC(),
		Open:      values[0],
		High:      values[1],
		Low:       values[2],
		Close:     values[3],
		Volume:    values[4],
	}, nil
}

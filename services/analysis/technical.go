// Package analysis computes chart indicators over exchange candles.
package analysis

import (
	"errors"
	"math"

	"crypto_signals_backend/services/market"

	"github.com/markcheno/go-talib"
)

// MinCandles is the shortest series every indicator can be computed on
const MinCandles = 50

var ErrInsufficientData = errors.New("insufficient candles for indicators")

// MACDResult holds the last MACD(12,26,9) values
type MACDResult struct {
	MACD      float64 `json:"macd"`
	Signal    float64 `json:"signal"`
	Histogram float64 `json:"histogram"`
}

// BollingerBands holds the last Bollinger(20,2) values
type BollingerBands struct {
	Upper  float64 `json:"upper"`
	Middle float64 `json:"middle"`
	Lower  float64 `json:"lower"`
}

// Stochastic holds the last slow stochastic(14,3,3) values
type Stochastic struct {
	K float64 `json:"k"`
	D float64 `json:"d"`
}

// Indicators is the latest reading of each indicator
type Indicators struct {
	Close      float64        `json:"close"`
	RSI        float64        `json:"rsi_14"`
	EMA20      float64        `json:"ema_20"`
	EMA50      float64        `json:"ema_50"`
	MACD       MACDResult     `json:"macd"`
	Bollinger  BollingerBands `json:"bollinger"`
	Stochastic Stochastic     `json:"stochastic"`
	Trend      string         `json:"trend"` // bullish, bearish, neutral
}

// Calculate computes indicators over candles ordered oldest first
func Calculate(candles []market.Candle) (*Indicators, error) {
	if len(candles) < MinCandles {
		return nil, ErrInsufficientData
	}

	n := len(candles)
	highs := make([]float64, n)
	lows := make([]float64, n)
	closes := make([]float64, n)
	for i, c := range candles {
		highs[i], _ = c.High.Float64()
		lows[i], _ = c.Low.Float64()
		closes[i], _ = c.Close.Float64()
	}

	rsi := talib.Rsi(closes, 14)
	ema20 := talib.Ema(closes, 20)
	ema50 := talib.Ema(closes, 50)
	macd, signal, hist := talib.Macd(closes, 12, 26, 9)
	upper, middle, lower := talib.BBands(closes, 20, 2, 2, talib.SMA)
	slowK, slowD := talib.Stoch(highs, lows, closes, 14, 3, talib.SMA, 3, talib.SMA)

	ind := &Indicators{
		Close: round(closes[n-1]),
		RSI:   round(last(rsi)),
		EMA20: round(last(ema20)),
		EMA50: round(last(ema50)),
		MACD: MACDResult{
			MACD:      round(last(macd)),
			Signal:    round(last(signal)),
			Histogram: round(last(hist)),
		},
		Bollinger: BollingerBands{
			Upper:  round(last(upper)),
			Middle: round(last(middle)),
			Lower:  round(last(lower)),
		},
		Stochastic: Stochastic{
			K: round(last(slowK)),
			D: round(last(slowD)),
		},
	}
	ind.Trend = trend(ind)
	return ind, nil
}

// trend is bullish when price and the fast EMA sit above the slow EMA with
// positive MACD momentum, bearish for the mirror case.
func trend(ind *Indicators) string {
	switch {
	case ind.Close > ind.EMA20 && ind.EMA20 > ind.EMA50 && ind.MACD.Histogram > 0:
		return "bullish"
	case ind.Close < ind.EMA20 && ind.EMA20 < ind.EMA50 && ind.MACD.Histogram < 0:
		return "bearish"
	}
	return "neutral"
}

func last(series []float64) float64 {
	if len(series) == 0 {
		return 0
	}
	v := series[len(series)-1]
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}

func round(v float64) float64 {
	return math.Round(v*1e6) / 1e6
}

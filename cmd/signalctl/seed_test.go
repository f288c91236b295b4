package main

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"

	"crypto_signals_backend/config"
	"crypto_signals_backend/models"
	"crypto_signals_backend/services/hub"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleSeed = `
tickers:
  - symbol: btc/usdt
    base_asset: btc
    quote_asset: usdt
    name: Bitcoin
  - symbol: ETHUSDT
    name: Ethereum
    exchange: BINANCE
    is_premium: true
  - symbol: LUNAUSDT
    name: Terra
    is_active: false
`

func TestParseTickerSeeds(t *testing.T) {
	tickers, err := parseTickerSeeds([]byte(sampleSeed))
	require.NoError(t, err)
	require.Len(t, tickers, 3)

	assert.Equal(t, "BTCUSDT", tickers[0].Symbol)
	assert.Equal(t, "BTC", tickers[0].BaseAsset)
	assert.Equal(t, "binance", tickers[0].Exchange)
	assert.True(t, tickers[0].IsActive)

	assert.Equal(t, "binance", tickers[1].Exchange)
	assert.True(t, tickers[1].IsPremium)
	assert.False(t, tickers[2].IsActive)
}

func TestParseTickerSeedsRejectsBadInput(t *testing.T) {
	_, err := parseTickerSeeds([]byte("tickers:\n  - symbol: BTCUSDT\n  - symbol: btcusdt\n"))
	assert.ErrorContains(t, err, "duplicate symbol")

	_, err = parseTickerSeeds([]byte("tickers:\n  - symbol: '$$'\n"))
	assert.ErrorContains(t, err, "invalid symbol")

	_, err = parseTickerSeeds([]byte("tickers: [oops"))
	assert.Error(t, err)
}

func TestShippedTickerFileIsValid(t *testing.T) {
	tickers, err := loadTickerFile(filepath.Join("..", "..", "data", "tickers.yaml"))
	require.NoError(t, err)
	assert.NotEmpty(t, tickers)
}

func TestSeedTickersIsIdempotent(t *testing.T) {
	db, err := config.OpenInMemoryDB(nil)
	require.NoError(t, err)
	require.NoError(t, models.MigrateAll(db))

	tickers, err := parseTickerSeeds([]byte(sampleSeed))
	require.NoError(t, err)

	n, err := seedTickers(db, tickers)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	tickers[1].Name = "Ether"
	_, err = seedTickers(db, tickers)
	require.NoError(t, err)

	var all []models.Ticker
	require.NoError(t, db.Order("symbol").Find(&all).Error)
	require.Len(t, all, 3)
	assert.Equal(t, "Ether", all[1].Name)

	var luna models.Ticker
	require.NoError(t, db.Where("symbol = ?", "LUNAUSDT").First(&luna).Error)
	assert.False(t, luna.IsActive)
}

func TestLoadTickerFileMissing(t *testing.T) {
	_, err := loadTickerFile(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestHashPasswordCommand(t *testing.T) {
	var out bytes.Buffer
	cmd := hashPasswordCmd()
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"correct-horse-battery"})
	require.NoError(t, cmd.Execute())

	hash := strings.TrimSpace(out.String())
	user := models.User{PasswordHash: hash}
	assert.True(t, user.CheckPassword("correct-horse-battery"))

	short := hashPasswordCmd()
	short.SetOut(&bytes.Buffer{})
	short.SetErr(&bytes.Buffer{})
	short.SetArgs([]string{"short"})
	assert.Error(t, short.Execute())
}

func TestPrintEnvelopeSkipsPong(t *testing.T) {
	var out bytes.Buffer
	handle := printEnvelope(&out)

	handle(hub.Envelope{Type: hub.TypePong})
	handle(hub.Envelope{Type: hub.TypeSignal, Signal: &models.Signal{Symbol: "BTCUSDT", Action: models.ActionBuy}})

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 1)
	assert.Contains(t, lines[0], `"type":"signal"`)
	assert.Contains(t, lines[0], `"symbol":"BTCUSDT"`)
}

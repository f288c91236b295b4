package main

import (
	"fmt"
	"os"
	"strings"

	"crypto_signals_backend/config"
	"crypto_signals_backend/models"
	"crypto_signals_backend/validators"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type tickerSeed struct {
	Symbol      string `yaml:"symbol"`
	BaseAsset   string `yaml:"base_asset"`
	QuoteAsset  string `yaml:"quote_asset"`
	Name        string `yaml:"name"`
	Exchange    string `yaml:"exchange"`
	IsActive    *bool  `yaml:"is_active"`
	IsPremium   bool   `yaml:"is_premium"`
	Description string `yaml:"description"`
}

type seedFile struct {
	Tickers []tickerSeed `yaml:"tickers"`
}

func seedCmd() *cobra.Command {
	var (
		file      string
		skipAdmin bool
	)
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Load tickers from a YAML file and create the default admin",
		RunE: func(cmd *cobra.Command, args []string) error {
			seeds, err := loadTickerFile(file)
			if err != nil {
				return err
			}

			db, err := openDB()
			if err != nil {
				return err
			}
			defer config.CloseDB()

			if err := models.MigrateAll(db); err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}

			n, err := seedTickers(db, seeds)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Seeded %d tickers from %s\n", n, file)

			if skipAdmin {
				return nil
			}
			cfg := config.AppConfig
			created, err := models.SeedDefaultAdminUser(db, cfg.AdminEmail, cfg.AdminPassword)
			if err != nil {
				return fmt.Errorf("failed to seed admin: %w", err)
			}
			if created {
				fmt.Fprintf(cmd.OutOrStdout(), "Created admin %s\n", cfg.AdminEmail)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&file, "file", "data/tickers.yaml", "YAML file with a tickers list")
	cmd.Flags().BoolVar(&skipAdmin, "skip-admin", false, "do not create the default admin")
	return cmd
}

// loadTickerFile parses and validates a ticker seed file
func loadTickerFile(path string) ([]models.Ticker, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return parseTickerSeeds(data)
}

func parseTickerSeeds(data []byte) ([]models.Ticker, error) {
	var file seedFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("invalid seed file: %w", err)
	}

	seen := make(map[string]bool, len(file.Tickers))
	tickers := make([]models.Ticker, 0, len(file.Tickers))
	for i, s := range file.Tickers {
		symbol := validators.NormalizeSymbol(s.Symbol)
		if !validators.IsValidSymbol(symbol) {
			return nil, fmt.Errorf("ticker %d: invalid symbol %q", i+1, s.Symbol)
		}
		if seen[symbol] {
			return nil, fmt.Errorf("ticker %d: duplicate symbol %s", i+1, symbol)
		}
		seen[symbol] = true

		exchange := strings.ToLower(strings.TrimSpace(s.Exchange))
		if exchange == "" {
			exchange = "binance"
		}
		tickers = append(tickers, models.Ticker{
			Symbol:      symbol,
			BaseAsset:   strings.ToUpper(s.BaseAsset),
			QuoteAsset:  strings.ToUpper(s.QuoteAsset),
			Name:        s.Name,
			Exchange:    exchange,
			IsActive:    s.IsActive == nil || *s.IsActive,
			IsPremium:   s.IsPremium,
			Description: s.Description,
		})
	}
	return tickers, nil
}

// seedTickers upserts tickers by symbol
func seedTickers(db *gorm.DB, tickers []models.Ticker) (int, error) {
	if len(tickers) == 0 {
		return 0, nil
	}
	err := db.Transaction(func(tx *gorm.DB) error {
		for i := range tickers {
			t := tickers[i]
			err := tx.Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "symbol"}},
				DoUpdates: clause.AssignmentColumns([]string{"base_asset", "quote_asset", "name", "exchange", "is_premium", "description", "updated_at"}),
			}).Create(&t).Error
			if err != nil {
				return fmt.Errorf("failed to seed %s: %w", t.Symbol, err)
			}
			// is_active has a column default, so false must be written separately
			if err := tx.Model(&models.Ticker{}).Where("symbol = ?", t.Symbol).Update("is_active", t.IsActive).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return len(tickers), nil
}

// Package scheduler runs the background jobs of the signals backend:
// - candle cache refresh for active tickers (every 5 minutes)
// - heatmap snapshots (every 15 minutes)
// - daily forecast generation (00:05 UTC)
// - signal retention purge (daily)
// - candle and heatmap purge (weekly)
//
// The jobs are defined in jobs.go
package scheduler

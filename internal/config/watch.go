package config

import (
	"context"
	"os"
	"time"

	"github.com/rs/zerolog"

	"kartoteka/internal/metrics"
)

// WatchCatalog reloads catalog.yaml on change and calls onUpdate with the latest
// catalog. It performs an initial load before entering the watch loop; an invalid
// file at startup is an error, later invalid edits are logged and skipped.
func WatchCatalog(ctx context.Context, path string, interval time.Duration, logger *zerolog.Logger, onUpdate func(*Catalog)) error {
	if path == "" {
		path = "configs/catalog.yaml"
	}
	if interval <= 0 {
		interval = 30 * time.Second
	}
	log := logger.With().Str("component", "catalog-watch").Str("path", path).Logger()

	cat, err := LoadCatalog(path)
	if err != nil {
		return err
	}
	if onUpdate != nil {
		onUpdate(cat)
	}

	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	lastMod := info.ModTime()

	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				info, err := os.Stat(path)
				if err != nil {
					continue // transient errors
				}
				if !info.ModTime().After(lastMod) {
					continue
				}
				cat, err := LoadCatalog(path)
				if err != nil {
					metrics.IncCatalogReload("invalid")
					log.Error().Err(err).Msg("catalog reload rejected")
					// Do not retry the same broken file on every tick.
					lastMod = info.ModTime()
					continue
				}
				lastMod = info.ModTime()
				metrics.IncCatalogReload("ok")
				log.Info().Str("catalog", cat.String()).Msg("catalog reloaded")
				if onUpdate != nil {
					onUpdate(cat)
				}
			}
		}
	}()

	return nil
}

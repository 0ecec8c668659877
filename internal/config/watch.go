package config

import (
	"context"
	"crypto/sha256"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// WatchCatalog applies the catalog at path once, then polls it in the
// background and calls onUpdate whenever its content changes and still
// validates. An invalid edit is logged and the previous catalog stays.
func WatchCatalog(ctx context.Context, path string, interval time.Duration, logger *zerolog.Logger, onUpdate func(*Catalog)) error {
	if path == "" {
		path = "configs/catalog.yaml"
	}
	if interval <= 0 {
		interval = 30 * time.Second
	}
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read catalog: %w", err)
	}
	cat, err := ParseCatalog(data)
	if err != nil {
		return err
	}
	if onUpdate != nil {
		onUpdate(cat)
	}

	w := &catalogWatcher{path: path, sum: sha256.Sum256(data), logger: logger, onUpdate: onUpdate}
	go w.loop(ctx, interval)
	return nil
}

type catalogWatcher struct {
	path     string
	sum      [sha256.Size]byte
	logger   *zerolog.Logger
	onUpdate func(*Catalog)
}

func (w *catalogWatcher) loop(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.poll()
		}
	}
}

func (w *catalogWatcher) poll() {
	data, err := os.ReadFile(w.path)
	if err != nil {
		// Editors replace the file non-atomically; retry on the next tick.
		return
	}
	sum := sha256.Sum256(data)
	if sum == w.sum {
		return
	}
	w.sum = sum

	cat, err := ParseCatalog(data)
	if err != nil {
		w.logger.Error().Err(err).Str("path", w.path).Msg("catalog change rejected")
		return
	}
	if w.onUpdate != nil {
		w.onUpdate(cat)
	}
}

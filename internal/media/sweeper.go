package media

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/sync/errgroup"
)

// Sweeper periodically deletes staged files older than the retention
// window. Tenant directories are swept concurrently; an empty directory is
// removed along with its contents.
type Sweeper struct {
	store     *Store
	retention time.Duration
	interval  time.Duration
	logger    Logger
}

// NewSweeper creates a sweeper over the store. retention is how long a
// staged file may live; interval is how often the sweep runs.
func NewSweeper(store *Store, retention, interval time.Duration) *Sweeper {
	return &Sweeper{
		store:     store,
		retention: retention,
		interval:  interval,
		logger:    store.logger,
	}
}

// Run sweeps on the configured interval until the context is cancelled.
// Intended to be launched as a goroutine at startup.
func (w *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if removed, err := w.Sweep(ctx); err != nil {
				w.logger.Warn("media sweep failed", "error", err)
			} else if removed > 0 {
				w.logger.Info("media sweep complete", "removed", removed)
			}
		}
	}
}

// Sweep removes every staged file older than the retention window and
// reports how many files were deleted.
func (w *Sweeper) Sweep(ctx context.Context) (int, error) {
	entries, err := os.ReadDir(w.store.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("reading media dir: %w", err)
	}

	cutoff := time.Now().Add(-w.retention)
	counts := make([]int, len(entries))

	g, ctx := errgroup.WithContext(ctx)
	for i, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		i, entry := i, entry
		g.Go(func() error {
			n, err := w.sweepTenant(ctx, filepath.Join(w.store.dir, entry.Name()), cutoff)
			counts[i] = n
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return 0, err
	}

	total := 0
	for _, n := range counts {
		total += n
	}
	return total, nil
}

// sweepTenant removes expired files from one tenant directory, then the
// directory itself if nothing is left.
func (w *Sweeper) sweepTenant(ctx context.Context, dir string, cutoff time.Time) (int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("reading tenant dir %s: %w", dir, err)
	}

	removed := 0
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return removed, err
		}
		if entry.IsDir() {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if info.ModTime().After(cutoff) {
			continue
		}
		if err := os.Remove(filepath.Join(dir, entry.Name())); err != nil && !os.IsNotExist(err) {
			w.logger.Warn("media sweep remove failed",
				"path", filepath.Join(dir, entry.Name()),
				"error", err,
			)
			continue
		}
		removed++
	}

	if removed == len(entries) {
		// Best effort; a concurrent upload keeps the directory alive.
		os.Remove(dir)
	}
	return removed, nil
}

package upload

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"stash/internal/server/storage"
)

// Sweeper periodically expires idle uploads and reconciles the registry
// against the upload directory on disk. Exactly one sweeper should run per
// process; its lifetime is owned by whoever owns the registry's.
type Sweeper struct {
	registry *Registry
	store    storage.Store
	interval time.Duration
	maxIdle  time.Duration
	skew     time.Duration
	backoff  time.Duration
	now      func() time.Time
	done     chan struct{}
}

// NewSweeper creates a sweeper that runs every interval, expires records
// idle for maxIdle or longer, and spares on-disk files modified within
// +/-skew of now during the orphan pass.
func NewSweeper(registry *Registry, store storage.Store, interval, maxIdle, skew time.Duration) *Sweeper {
	return &Sweeper{
		registry: registry,
		store:    store,
		interval: interval,
		maxIdle:  maxIdle,
		skew:     skew,
		backoff:  time.Minute,
		now:      time.Now,
		done:     make(chan struct{}),
	}
}

// Start begins the sweep loop in a background goroutine. Cancelling ctx
// stops the loop; the cancellation is observed at every tick and sleep
// boundary.
func (s *Sweeper) Start(ctx context.Context) {
	slog.Info("upload sweeper started",
		"interval", s.interval,
		"max_idle", s.maxIdle,
		"skew_window", s.skew,
	)

	go func() {
		defer close(s.done)

		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				if err := s.runSweep(); err != nil {
					slog.Error("sweep cycle failed", "error", err)
					// A failed cycle must never stop cleanup for good;
					// back off and resume on the next tick.
					select {
					case <-time.After(s.backoff):
					case <-ctx.Done():
						slog.Info("upload sweeper stopping")
						return
					}
				}
			case <-ctx.Done():
				slog.Info("upload sweeper stopping")
				return
			}
		}
	}()
}

// Wait blocks until the sweeper has fully stopped.
func (s *Sweeper) Wait() {
	<-s.done
}

// runSweep executes one expiry/reconciliation pass.
func (s *Sweeper) runSweep() error {
	now := s.now()

	// Pass 1: under the registry lock, drop never-committed placeholders and
	// records idle past the limit (or with a negative age after the clock
	// moved backwards), then delete their backing files. A deletion failure
	// is logged and the sweep continues; the file is caught again by a later
	// directory pass.
	removed := s.registry.sweepExpired(now, s.maxIdle)
	for _, rec := range removed {
		if err := s.store.Delete(rec.ID.String()); err != nil {
			slog.Error("failed to delete expired upload file",
				"path", rec.StoragePath,
				"error", err,
			)
		}
	}
	if len(removed) > 0 {
		slog.Info("expired idle uploads", "count", len(removed))
	}

	// Pass 2: outside the lock, delete files the registry does not
	// reference. Files modified within the skew window survive in both
	// directions, so a drifting clock never claims an upload that is about
	// to be committed. This pass is what reclaims files written by a process
	// that crashed between copy and commit.
	live := s.registry.livePaths()
	entries, err := s.store.Entries()
	if err != nil {
		return fmt.Errorf("failed to scan upload directory: %w", err)
	}

	var orphans int
	for _, entry := range entries {
		age := now.Sub(entry.ModTime)
		if age > -s.skew && age < s.skew {
			continue
		}
		if _, referenced := live[s.store.Path(entry.Name)]; referenced {
			continue
		}
		if err := s.store.Delete(entry.Name); err != nil {
			slog.Error("failed to delete orphan upload file",
				"name", entry.Name,
				"error", err,
			)
			continue
		}
		orphans++
	}
	if orphans > 0 {
		slog.Info("removed orphan upload files", "count", orphans)
	}
	return nil
}

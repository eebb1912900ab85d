package service

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/Sentinel-Gate/ratelog/internal/port/outbound"
)

// StatsExporter periodically flushes per-site counters from a StatsService
// to a StatsStore.
type StatsExporter struct {
	stats    *StatsService
	store    outbound.StatsStore
	interval time.Duration
	logger   *slog.Logger

	stopChan chan struct{}
	wg       sync.WaitGroup
	once     sync.Once
}

// NewStatsExporter creates a new StatsExporter flushing every interval.
func NewStatsExporter(stats *StatsService, store outbound.StatsStore, interval time.Duration, logger *slog.Logger) *StatsExporter {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &StatsExporter{
		stats:    stats,
		store:    store,
		interval: interval,
		logger:   logger,
		stopChan: make(chan struct{}),
	}
}

// Flush exports the counters accumulated since the last flush. On failure
// the counters are kept for the next attempt.
func (e *StatsExporter) Flush(ctx context.Context) error {
	deltas := e.stats.TakeDeltas()
	if len(deltas) == 0 {
		return nil
	}
	if err := e.store.Add(ctx, deltas); err != nil {
		e.stats.RestoreDeltas(deltas)
		return fmt.Errorf("flush %d sites: %w", len(deltas), err)
	}
	e.logger.Debug("stats flushed", "sites", len(deltas))
	return nil
}

// Start starts the background flush goroutine.
// It stops when ctx is cancelled or Stop() is called, flushing one last time.
func (e *StatsExporter) Start(ctx context.Context) {
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		ticker := time.NewTicker(e.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				e.final()
				return
			case <-e.stopChan:
				e.final()
				return
			case <-ticker.C:
				if err := e.Flush(ctx); err != nil {
					e.logger.Warn("stats flush failed", "error", err)
				}
			}
		}
	}()
}

func (e *StatsExporter) final() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := e.Flush(ctx); err != nil {
		e.logger.Warn("final stats flush failed", "error", err)
	}
}

// Stop gracefully stops the flush goroutine and waits for it to exit.
// Safe to call multiple times.
func (e *StatsExporter) Stop() {
	e.once.Do(func() {
		close(e.stopChan)
	})
	e.wg.Wait()
}

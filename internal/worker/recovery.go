package worker

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/ignite/listvault/internal/metrics"
	"github.com/ignite/listvault/internal/pkg/distlock"
)

const (
	// DefaultSweepInterval is how often we scan for stuck batches.
	DefaultSweepInterval = 5 * time.Minute

	// DefaultStaleAfter is how long a batch can stay in processing before
	// we consider its worker dead.
	DefaultStaleAfter = time.Hour
)

// StaleFailer fails batches stuck in processing.
type StaleFailer interface {
	FailStale(ctx context.Context, olderThan time.Duration, msg string) ([]int64, error)
}

// RecoverySweeper fails batches a crashed worker left in processing, so
// they can be resubmitted. Only one instance sweeps at a time.
type RecoverySweeper struct {
	batches    StaleFailer
	lock       distlock.DistLock
	interval   time.Duration
	staleAfter time.Duration
}

// NewRecoverySweeper creates a sweeper. Zero durations select the defaults.
func NewRecoverySweeper(batches StaleFailer, lock distlock.DistLock, interval, staleAfter time.Duration) *RecoverySweeper {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	if staleAfter <= 0 {
		staleAfter = DefaultStaleAfter
	}
	return &RecoverySweeper{batches: batches, lock: lock, interval: interval, staleAfter: staleAfter}
}

// Start sweeps on every tick. It blocks until ctx is cancelled.
func (s *RecoverySweeper) Start(ctx context.Context) {
	log.Printf("[Recovery] Starting (interval=%s, stale_after=%s)", s.interval, s.staleAfter)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("[Recovery] Stopping")
			return
		case <-ticker.C:
			if _, err := s.Sweep(ctx); err != nil {
				log.Printf("[Recovery] sweep error: %v", err)
			}
		}
	}
}

// Sweep runs one pass if this instance wins the lock, returning the ids it
// failed.
func (s *RecoverySweeper) Sweep(ctx context.Context) ([]int64, error) {
	var failed []int64
	ran, err := distlock.Do(ctx, s.lock, func(ctx context.Context) error {
		queryCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
		defer cancel()

		msg := fmt.Sprintf("worker lost: batch stayed in processing for more than %s", s.staleAfter)
		ids, err := s.batches.FailStale(queryCtx, s.staleAfter, msg)
		if err != nil {
			return err
		}
		failed = ids
		return nil
	})
	if err != nil {
		return nil, err
	}
	if !ran {
		return nil, nil
	}

	if len(failed) > 0 {
		metrics.ImportBatches.WithLabelValues("failed").Add(float64(len(failed)))
		log.Printf("[Recovery] failed %d stale batches: %v", len(failed), failed)
	}
	return failed, nil
}

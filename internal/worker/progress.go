package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// ProgressTTL is how long a progress entry outlives its last update.
const ProgressTTL = 24 * time.Hour

// Progress is the live state of a running batch. The batch row carries the
// final counters; this only covers the in-flight window.
type Progress struct {
	BatchID   int64     `json:"batch_id"`
	Phase     string    `json:"phase"` // reading, importing, completed, failed
	Processed int       `json:"processed"`
	Total     int       `json:"total"`
	Error     string    `json:"error,omitempty"`
	StartedAt time.Time `json:"started_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Percent returns progress as 0-100.
func (p Progress) Percent() float64 {
	if p.Total <= 0 {
		return 0
	}
	return float64(p.Processed) * 100 / float64(p.Total)
}

// Progress phases.
const (
	PhaseReading   = "reading"
	PhaseImporting = "importing"
	PhaseCompleted = "completed"
	PhaseFailed    = "failed"
)

// ProgressTracker stores live batch progress.
type ProgressTracker interface {
	Update(ctx context.Context, p Progress) error
	// Get reports false if nothing is known about the batch.
	Get(ctx context.Context, batchID int64) (Progress, bool, error)
}

// NewProgressTracker returns a redis tracker, or an in-process one when
// client is nil.
func NewProgressTracker(client *redis.Client) ProgressTracker {
	if client == nil {
		return NewMemoryProgress()
	}
	return NewRedisProgress(client, ProgressTTL)
}

// RedisProgress shares progress between the worker and API processes.
type RedisProgress struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisProgress(client *redis.Client, ttl time.Duration) *RedisProgress {
	return &RedisProgress{client: client, ttl: ttl}
}

func progressKey(batchID int64) string {
	return fmt.Sprintf("listvault:progress:%d", batchID)
}

func (r *RedisProgress) Update(ctx context.Context, p Progress) error {
	data, err := json.Marshal(p)
	if err != nil {
		return err
	}
	return r.client.Set(ctx, progressKey(p.BatchID), data, r.ttl).Err()
}

func (r *RedisProgress) Get(ctx context.Context, batchID int64) (Progress, bool, error) {
	data, err := r.client.Get(ctx, progressKey(batchID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return Progress{}, false, nil
	}
	if err != nil {
		return Progress{}, false, err
	}
	var p Progress
	if err := json.Unmarshal(data, &p); err != nil {
		return Progress{}, false, fmt.Errorf("decode progress for batch %d: %w", batchID, err)
	}
	return p, true, nil
}

// MemoryProgress keeps progress in process memory.
type MemoryProgress struct {
	mu      sync.RWMutex
	entries map[int64]Progress
}

func NewMemoryProgress() *MemoryProgress {
	return &MemoryProgress{entries: make(map[int64]Progress)}
}

func (m *MemoryProgress) Update(_ context.Context, p Progress) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[p.BatchID] = p
	// Drop entries idle for longer than ProgressTTL.
	cutoff := p.UpdatedAt.Add(-ProgressTTL)
	for id, e := range m.entries {
		if e.UpdatedAt.Before(cutoff) {
			delete(m.entries, id)
		}
	}
	return nil
}

func (m *MemoryProgress) Get(_ context.Context, batchID int64) (Progress, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.entries[batchID]
	return p, ok, nil
}

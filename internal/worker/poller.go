package worker

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/ignite/listvault/internal/importer"
)

// DefaultPollInterval is how often queued batches are looked for.
const DefaultPollInterval = 5 * time.Second

// QueuedLister lists queued batch ids, oldest first.
type QueuedLister interface {
	ListQueued(ctx context.Context, limit int) ([]int64, error)
}

// BatchFunc runs one batch.
type BatchFunc func(ctx context.Context, batchID int64) error

// Poller finds queued batches in the database when no broker delivers them.
// Several pollers may run against one database: the batch claim is the
// conditional queued-to-processing update, so a batch runs at most once.
type Poller struct {
	lister      QueuedLister
	run         BatchFunc
	interval    time.Duration
	concurrency int

	mu       sync.Mutex
	inFlight map[int64]bool
	wg       sync.WaitGroup
	sem      chan struct{}
}

// NewPoller creates a poller that runs up to concurrency batches at once.
func NewPoller(lister QueuedLister, run BatchFunc, interval time.Duration, concurrency int) *Poller {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	if concurrency <= 0 {
		concurrency = 1
	}
	return &Poller{
		lister:      lister,
		run:         run,
		interval:    interval,
		concurrency: concurrency,
		inFlight:    make(map[int64]bool),
		sem:         make(chan struct{}, concurrency),
	}
}

// Start polls until ctx is cancelled, then waits for running batches.
func (p *Poller) Start(ctx context.Context) {
	log.Printf("[Poller] Starting (interval=%s, concurrency=%d)", p.interval, p.concurrency)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.Poll(ctx)
	for {
		select {
		case <-ctx.Done():
			log.Println("[Poller] Stopping, waiting for running batches")
			p.wg.Wait()
			return
		case <-ticker.C:
			p.Poll(ctx)
		}
	}
}

// Poll launches every queued batch there is a free slot for and returns
// how many it started.
func (p *Poller) Poll(ctx context.Context) int {
	free := p.concurrency - p.running()
	if free <= 0 {
		return 0
	}

	queryCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	ids, err := p.lister.ListQueued(queryCtx, free+p.running())
	cancel()
	if err != nil {
		log.Printf("[Poller] list queued batches error: %v", err)
		return 0
	}

	started := 0
	for _, id := range ids {
		if !p.claimSlot(id) {
			continue
		}
		started++
		p.wg.Add(1)
		go func(id int64) {
			defer p.wg.Done()
			defer p.releaseSlot(id)
			if err := p.run(ctx, id); err != nil && !errors.Is(err, importer.ErrBatchNotQueued) {
				log.Printf("[Poller] batch %d error: %v", id, err)
			}
		}(id)
	}
	return started
}

// Wait blocks until every launched batch has returned.
func (p *Poller) Wait() { p.wg.Wait() }

func (p *Poller) running() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.inFlight)
}

// claimSlot reserves a concurrency slot for id unless id is already running
// here or no slot is free.
func (p *Poller) claimSlot(id int64) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.inFlight[id] {
		return false
	}
	select {
	case p.sem <- struct{}{}:
		p.inFlight[id] = true
		return true
	default:
		return false
	}
}

func (p *Poller) releaseSlot(id int64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.inFlight, id)
	<-p.sem
}

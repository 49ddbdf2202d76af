package worker

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/ignite/listvault/internal/domain"
	"github.com/ignite/listvault/internal/importer"
)

// fakeStore is a minimal in-memory importer.Repository and BatchReader.
// Writes inside WithinTx are not undone on failure; tests that fail a batch
// only look at its status.
type fakeStore struct {
	mu        sync.Mutex
	batches   map[int64]*domain.ImportBatch
	emails    map[string]int64
	members   map[[2]int64]int
	items     map[int64][]domain.ImportItem
	attachErr error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		batches: make(map[int64]*domain.ImportBatch),
		emails:  make(map[string]int64),
		members: make(map[[2]int64]int),
		items:   make(map[int64][]domain.ImportItem),
	}
}

func (f *fakeStore) add(b domain.ImportBatch) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if b.Status == "" {
		b.Status = domain.BatchQueued
	}
	f.batches[b.ID] = &b
}

func (f *fakeStore) status(id int64) domain.BatchStatus {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.batches[id].Status
}

func (f *fakeStore) GetBatch(_ context.Context, id int64) (*domain.ImportBatch, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.batches[id]
	if !ok {
		return nil, importer.ErrBatchNotFound
	}
	cp := *b
	return &cp, nil
}

func (f *fakeStore) StartBatch(_ context.Context, id int64) (*domain.ImportBatch, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.batches[id]
	if !ok || b.Status != domain.BatchQueued {
		return nil, importer.ErrBatchNotQueued
	}
	now := time.Now()
	b.Status = domain.BatchProcessing
	b.StartedAt = &now
	cp := *b
	return &cp, nil
}

func (f *fakeStore) ListSuppressedDomains(context.Context) ([]string, error) { return nil, nil }

func (f *fakeStore) FailBatch(_ context.Context, id int64, msg string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.batches[id]
	if !ok || b.Status.Terminal() {
		return importer.ErrBatchNotProcessing
	}
	b.Status = domain.BatchFailed
	b.ErrorMessage = msg
	return nil
}

func (f *fakeStore) FailQueued(_ context.Context, id int64, msg string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.batches[id]
	if !ok || b.Status != domain.BatchQueued {
		return importer.ErrBatchNotQueued
	}
	b.Status = domain.BatchFailed
	b.ErrorMessage = msg
	return nil
}

func (f *fakeStore) WithinTx(ctx context.Context, fn func(tx importer.Tx) error) error {
	return fn(fakeTx{f})
}

type fakeTx struct{ f *fakeStore }

func (t fakeTx) LookupEmail(_ context.Context, email string) (domain.EmailLookup, error) {
	t.f.mu.Lock()
	defer t.f.mu.Unlock()
	id, ok := t.f.emails[email]
	return domain.EmailLookup{ID: id, Found: ok}, nil
}

func (t fakeTx) FindOrCreateEmail(_ context.Context, p domain.EmailParts) (int64, error) {
	t.f.mu.Lock()
	defer t.f.mu.Unlock()
	if id, ok := t.f.emails[p.Email]; ok {
		return id, nil
	}
	id := int64(len(t.f.emails) + 1)
	t.f.emails[p.Email] = id
	return id, nil
}

func (t fakeTx) Attach(_ context.Context, categoryID, emailID int64) (domain.AttachOutcome, error) {
	t.f.mu.Lock()
	defer t.f.mu.Unlock()
	if t.f.attachErr != nil {
		return "", t.f.attachErr
	}
	k := [2]int64{categoryID, emailID}
	t.f.members[k]++
	if t.f.members[k] == 1 {
		return domain.AttachInserted, nil
	}
	return domain.AttachDuplicate, nil
}

func (t fakeTx) InsertItems(_ context.Context, items []domain.ImportItem) error {
	t.f.mu.Lock()
	defer t.f.mu.Unlock()
	for _, it := range items {
		t.f.items[it.BatchID] = append(t.f.items[it.BatchID], it)
	}
	return nil
}

func (t fakeTx) CompleteBatch(_ context.Context, id int64, c domain.BatchCounters, preview []domain.InvalidPreview) error {
	t.f.mu.Lock()
	defer t.f.mu.Unlock()
	b := t.f.batches[id]
	if b.Status != domain.BatchProcessing {
		return importer.ErrBatchNotProcessing
	}
	b.Status = domain.BatchCompleted
	b.Counters = c
	b.InvalidPreview = preview
	return nil
}

var errAttach = errors.New("deadlock detected")

package importer

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/ignite/listvault/internal/domain"
)

type memberKey struct{ category, email int64 }

// memRepo is an in-memory Repository. Writes inside WithinTx apply
// immediately under the lock and are undone in reverse order if the
// transaction function fails, so concurrent transactions interleave the
// way row-locked SQL statements would.
type memRepo struct {
	mu          sync.Mutex
	nextEmailID int64
	emails      map[string]*domain.CanonicalEmail
	global      map[int64]bool
	domains     []string
	members     map[memberKey]*domain.Membership
	batches     map[int64]*domain.ImportBatch
	items       map[int64][]domain.ImportItem
	insertCalls int

	// failAttachAt makes the nth Attach call (1-based) fail.
	failAttachAt int
	attachCalls  int
}

func newMemRepo() *memRepo {
	return &memRepo{
		emails:  make(map[string]*domain.CanonicalEmail),
		global:  make(map[int64]bool),
		members: make(map[memberKey]*domain.Membership),
		batches: make(map[int64]*domain.ImportBatch),
		items:   make(map[int64][]domain.ImportItem),
	}
}

func (m *memRepo) addBatch(id, categoryID int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.batches[id] = &domain.ImportBatch{ID: id, CategoryID: categoryID, SourceType: domain.SourceText, Status: domain.BatchQueued}
}

func (m *memRepo) suppressDomain(d string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.domains = append(m.domains, d)
}

// suppressEmail mirrors the admin path: the identity is created first.
func (m *memRepo) suppressEmail(email, local, d string) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := m.findOrCreateLocked(email, local, d, nil)
	m.global[id] = true
	return id
}

func (m *memRepo) batch(id int64) domain.ImportBatch {
	m.mu.Lock()
	defer m.mu.Unlock()
	return *m.batches[id]
}

func (m *memRepo) membership(categoryID int64, email string) (domain.Membership, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.emails[email]
	if !ok {
		return domain.Membership{}, false
	}
	mem, ok := m.members[memberKey{categoryID, e.ID}]
	if !ok {
		return domain.Membership{}, false
	}
	return *mem, true
}

func (m *memRepo) batchItems(id int64) []domain.ImportItem {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := append([]domain.ImportItem(nil), m.items[id]...)
	sort.Slice(out, func(i, j int) bool { return out[i].RowNumber < out[j].RowNumber })
	return out
}

func (m *memRepo) StartBatch(_ context.Context, id int64) (*domain.ImportBatch, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.batches[id]
	if !ok || b.Status != domain.BatchQueued {
		return nil, ErrBatchNotQueued
	}
	now := time.Now()
	b.Status = domain.BatchProcessing
	b.StartedAt = &now
	cp := *b
	return &cp, nil
}

func (m *memRepo) ListSuppressedDomains(context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.domains...), nil
}

func (m *memRepo) FailBatch(_ context.Context, id int64, msg string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.batches[id]
	if !ok || b.Status.Terminal() {
		return ErrBatchNotProcessing
	}
	now := time.Now()
	b.Status = domain.BatchFailed
	b.ErrorMessage = msg
	b.CompletedAt = &now
	return nil
}

func (m *memRepo) FailQueued(_ context.Context, id int64, msg string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.batches[id]
	if !ok || b.Status != domain.BatchQueued {
		return ErrBatchNotQueued
	}
	now := time.Now()
	b.Status = domain.BatchFailed
	b.ErrorMessage = msg
	b.CompletedAt = &now
	return nil
}

func (m *memRepo) WithinTx(ctx context.Context, fn func(tx Tx) error) error {
	tx := &memTx{repo: m}
	if err := fn(tx); err != nil {
		m.mu.Lock()
		for i := len(tx.undo) - 1; i >= 0; i-- {
			tx.undo[i]()
		}
		m.mu.Unlock()
		return err
	}
	return nil
}

func (m *memRepo) findOrCreateLocked(email, local, d string, undo *[]func()) int64 {
	if e, ok := m.emails[email]; ok {
		return e.ID
	}
	m.nextEmailID++
	m.emails[email] = &domain.CanonicalEmail{ID: m.nextEmailID, Email: email, LocalPart: local, Domain: d, IsValid: true}
	if undo != nil {
		*undo = append(*undo, func() { delete(m.emails, email) })
	}
	return m.nextEmailID
}

type memTx struct {
	repo *memRepo
	undo []func()
}

func (t *memTx) LookupEmail(_ context.Context, email string) (domain.EmailLookup, error) {
	m := t.repo
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.emails[email]
	if !ok {
		return domain.EmailLookup{}, nil
	}
	return domain.EmailLookup{ID: e.ID, Found: true, GloballySuppressed: m.global[e.ID]}, nil
}

func (t *memTx) FindOrCreateEmail(_ context.Context, p domain.EmailParts) (int64, error) {
	m := t.repo
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.findOrCreateLocked(p.Email, p.LocalPart, p.Domain, &t.undo), nil
}

func (t *memTx) Attach(_ context.Context, categoryID, emailID int64) (domain.AttachOutcome, error) {
	m := t.repo
	m.mu.Lock()
	defer m.mu.Unlock()
	m.attachCalls++
	if m.failAttachAt > 0 && m.attachCalls == m.failAttachAt {
		return "", errors.New("connection reset by peer")
	}
	k := memberKey{categoryID, emailID}
	now := time.Now()
	if mem, ok := m.members[k]; ok {
		mem.TimesAdded++
		mem.LastAddedAt = now
		t.undo = append(t.undo, func() { mem.TimesAdded-- })
		return domain.AttachDuplicate, nil
	}
	m.members[k] = &domain.Membership{CategoryID: categoryID, EmailID: emailID, TimesAdded: 1, FirstAddedAt: now, LastAddedAt: now}
	t.undo = append(t.undo, func() { delete(m.members, k) })
	return domain.AttachInserted, nil
}

func (t *memTx) InsertItems(_ context.Context, items []domain.ImportItem) error {
	m := t.repo
	m.mu.Lock()
	defer m.mu.Unlock()
	m.insertCalls++
	for _, it := range items {
		batchID := it.BatchID
		m.items[batchID] = append(m.items[batchID], it)
		row := it.RowNumber
		t.undo = append(t.undo, func() {
			kept := m.items[batchID][:0]
			for _, x := range m.items[batchID] {
				if x.RowNumber != row {
					kept = append(kept, x)
				}
			}
			m.items[batchID] = kept
		})
	}
	return nil
}

func (t *memTx) CompleteBatch(_ context.Context, id int64, c domain.BatchCounters, preview []domain.InvalidPreview) error {
	m := t.repo
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.batches[id]
	if !ok || b.Status != domain.BatchProcessing {
		return ErrBatchNotProcessing
	}
	now := time.Now()
	b.Status = domain.BatchCompleted
	b.Counters = c
	b.InvalidPreview = append([]domain.InvalidPreview(nil), preview...)
	b.CompletedAt = &now
	t.undo = append(t.undo, func() {
		b.Status = domain.BatchProcessing
		b.Counters = domain.BatchCounters{}
		b.InvalidPreview = nil
		b.CompletedAt = nil
	})
	return nil
}

func (m *memRepo) CreateBatch(_ context.Context, b *domain.ImportBatch) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	var id int64
	for existing := range m.batches {
		if existing > id {
			id = existing
		}
	}
	b.ID = id + 1
	b.Status = domain.BatchQueued
	b.CreatedAt = time.Now()
	cp := *b
	m.batches[b.ID] = &cp
	return nil
}

func (m *memRepo) GetBatch(_ context.Context, id int64) (*domain.ImportBatch, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.batches[id]
	if !ok {
		return nil, ErrBatchNotFound
	}
	cp := *b
	return &cp, nil
}

func (m *memRepo) ResubmitBatch(ctx context.Context, failedID int64) (*domain.ImportBatch, error) {
	old, err := m.GetBatch(ctx, failedID)
	if err != nil {
		return nil, err
	}
	if old.Status != domain.BatchFailed {
		return nil, ErrBatchNotFailed
	}
	b := &domain.ImportBatch{
		CategoryID:    old.CategoryID,
		SourceType:    old.SourceType,
		SourcePath:    old.SourcePath,
		ResubmittedOf: &old.ID,
	}
	if err := m.CreateBatch(ctx, b); err != nil {
		return nil, err
	}
	return b, nil
}

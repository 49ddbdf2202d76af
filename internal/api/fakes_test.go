package api

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ignite/listvault/internal/domain"
	"github.com/ignite/listvault/internal/export"
	"github.com/ignite/listvault/internal/importer"
	"github.com/ignite/listvault/internal/repository/postgres"
	"github.com/ignite/listvault/internal/service/category"
	suppsvc "github.com/ignite/listvault/internal/service/suppression"
)

type memCategories struct {
	mu      sync.Mutex
	cats    []domain.Category
	members map[int64]int
}

func (m *memCategories) Create(_ context.Context, c *domain.Category) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range m.cats {
		if e.Name == c.Name || e.Slug == c.Slug {
			return category.ErrExists
		}
	}
	c.ID = int64(len(m.cats) + 1)
	c.CreatedAt = time.Now()
	m.cats = append(m.cats, *c)
	return nil
}

func (m *memCategories) Get(_ context.Context, id int64) (*domain.Category, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range m.cats {
		if e.ID == id {
			c := e
			return &c, nil
		}
	}
	return nil, category.ErrNotFound
}

func (m *memCategories) GetBySlug(_ context.Context, slug string) (*domain.Category, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range m.cats {
		if e.Slug == slug {
			c := e
			return &c, nil
		}
	}
	return nil, category.ErrNotFound
}

func (m *memCategories) List(context.Context) ([]domain.Category, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.Category(nil), m.cats...), nil
}

func (m *memCategories) MemberCount(_ context.Context, id int64) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.members[id], nil
}

// memSuppressions backs both the suppression service and the check
// endpoint's index.
type memSuppressions struct {
	mu      sync.Mutex
	emails  map[string]domain.CanonicalEmail
	global  map[int64]domain.SuppressionReason
	domains map[string]domain.SuppressionReason
}

func newMemSuppressions() *memSuppressions {
	return &memSuppressions{
		emails:  map[string]domain.CanonicalEmail{},
		global:  map[int64]domain.SuppressionReason{},
		domains: map[string]domain.SuppressionReason{},
	}
}

func (m *memSuppressions) FindOrCreateEmail(_ context.Context, p domain.EmailParts) (domain.CanonicalEmail, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e, ok := m.emails[p.Email]; ok {
		return e, nil
	}
	e := domain.CanonicalEmail{ID: int64(len(m.emails) + 1), Email: p.Email, LocalPart: p.LocalPart, Domain: p.Domain, IsValid: true}
	m.emails[p.Email] = e
	return e, nil
}

func (m *memSuppressions) FindEmail(_ context.Context, email string) (domain.CanonicalEmail, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.emails[email]
	if !ok {
		return domain.CanonicalEmail{}, suppsvc.ErrNotFound
	}
	return e, nil
}

func (m *memSuppressions) SuppressEmail(_ context.Context, id int64, reason domain.SuppressionReason) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.global[id]; ok {
		return false, nil
	}
	m.global[id] = reason
	return true, nil
}

func (m *memSuppressions) SuppressDomain(_ context.Context, d string, reason domain.SuppressionReason) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.domains[d]; ok {
		return false, nil
	}
	m.domains[d] = reason
	return true, nil
}

func (m *memSuppressions) RemoveEmail(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.global[id]; !ok {
		return suppsvc.ErrNotFound
	}
	delete(m.global, id)
	return nil
}

func (m *memSuppressions) RemoveDomain(_ context.Context, d string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.domains[d]; !ok {
		return suppsvc.ErrNotFound
	}
	delete(m.domains, d)
	return nil
}

func (m *memSuppressions) List(_ context.Context, f suppsvc.ListFilter) ([]domain.SuppressionEntry, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var all []domain.SuppressionEntry
	if f.Scope == "" || f.Scope == domain.ScopeDomain {
		for d, r := range m.domains {
			all = append(all, domain.SuppressionEntry{Scope: domain.ScopeDomain, Domain: d, Reason: r})
		}
	}
	if f.Scope == "" || f.Scope == domain.ScopeGlobal {
		for _, e := range m.emails {
			if r, ok := m.global[e.ID]; ok {
				id := e.ID
				all = append(all, domain.SuppressionEntry{Scope: domain.ScopeGlobal, EmailID: &id, Email: e.Email, Reason: r})
			}
		}
	}
	sort.Slice(all, func(i, j int) bool { return all[i].Email+all[i].Domain < all[j].Email+all[j].Domain })

	total := len(all)
	if f.Offset >= total {
		return nil, total, nil
	}
	all = all[f.Offset:]
	if len(all) > f.Limit {
		all = all[:f.Limit]
	}
	return all, total, nil
}

func (m *memSuppressions) CountByScope(context.Context) (map[domain.SuppressionScope]int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return map[domain.SuppressionScope]int{
		domain.ScopeGlobal: len(m.global),
		domain.ScopeDomain: len(m.domains),
	}, nil
}

func (m *memSuppressions) ListSuppressedDomains(context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []string
	for d := range m.domains {
		out = append(out, d)
	}
	return out, nil
}

func (m *memSuppressions) LookupEmail(_ context.Context, email string) (domain.EmailLookup, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.emails[email]
	if !ok {
		return domain.EmailLookup{}, nil
	}
	_, suppressed := m.global[e.ID]
	return domain.EmailLookup{ID: e.ID, Found: true, GloballySuppressed: suppressed}, nil
}

type memBatches struct {
	mu      sync.Mutex
	batches map[int64]*domain.ImportBatch
	items   map[int64][]domain.ImportItem
	next    int64
}

func newMemBatches() *memBatches {
	return &memBatches{batches: map[int64]*domain.ImportBatch{}, items: map[int64][]domain.ImportItem{}}
}

func (m *memBatches) add(b domain.ImportBatch) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if b.ID > m.next {
		m.next = b.ID
	}
	m.batches[b.ID] = &b
}

func (m *memBatches) CreateBatch(_ context.Context, b *domain.ImportBatch) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.next++
	b.ID = m.next
	b.Status = domain.BatchQueued
	b.CreatedAt = time.Now()
	cp := *b
	m.batches[b.ID] = &cp
	return nil
}

func (m *memBatches) GetBatch(_ context.Context, id int64) (*domain.ImportBatch, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.batches[id]
	if !ok {
		return nil, importer.ErrBatchNotFound
	}
	cp := *b
	return &cp, nil
}

func (m *memBatches) ResubmitBatch(ctx context.Context, failedID int64) (*domain.ImportBatch, error) {
	old, err := m.GetBatch(ctx, failedID)
	if err != nil {
		return nil, err
	}
	if old.Status != domain.BatchFailed {
		return nil, importer.ErrBatchNotFailed
	}
	nb := &domain.ImportBatch{
		CategoryID:    old.CategoryID,
		SourceType:    old.SourceType,
		SourcePath:    old.SourcePath,
		ResubmittedOf: &failedID,
	}
	return nb, m.CreateBatch(ctx, nb)
}

func (m *memBatches) ListBatches(_ context.Context, f postgres.BatchFilter) ([]domain.ImportBatch, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.ImportBatch
	for _, b := range m.batches {
		if f.CategoryID > 0 && b.CategoryID != f.CategoryID {
			continue
		}
		if f.Status != "" && b.Status != f.Status {
			continue
		}
		out = append(out, *b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	if f.Offset >= len(out) {
		return nil, nil
	}
	out = out[f.Offset:]
	if len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func (m *memBatches) ListItems(_ context.Context, batchID int64, f postgres.ItemFilter) ([]domain.ImportItem, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.ImportItem
	for _, it := range m.items[batchID] {
		if f.Status == "" || it.Status == f.Status {
			out = append(out, it)
		}
	}
	total := len(out)
	if f.Offset >= total {
		return nil, total, nil
	}
	out = out[f.Offset:]
	if len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, total, nil
}

type memJobs struct {
	mu   sync.Mutex
	jobs map[int64]*domain.ExportJob
}

func newMemJobs() *memJobs { return &memJobs{jobs: map[int64]*domain.ExportJob{}} }

func (m *memJobs) Create(_ context.Context, j *domain.ExportJob) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	j.ID = int64(len(m.jobs) + 1)
	j.PublicID = uuid.NewString()
	j.Status = domain.ExportQueued
	cp := *j
	m.jobs[j.ID] = &cp
	return nil
}

func (m *memJobs) Get(_ context.Context, publicID string) (*domain.ExportJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, j := range m.jobs {
		if strings.EqualFold(j.PublicID, publicID) {
			cp := *j
			return &cp, nil
		}
	}
	return nil, export.ErrJobNotFound
}

func (m *memJobs) MarkRunning(_ context.Context, id int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	j := m.jobs[id]
	if j.Status != domain.ExportQueued {
		return false, nil
	}
	j.Status = domain.ExportRunning
	return true, nil
}

func (m *memJobs) Complete(_ context.Context, id, rowCount int64, f domain.FileRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	j := m.jobs[id]
	j.Status = domain.ExportCompleted
	j.RowCount = rowCount
	j.File = &f
	return nil
}

func (m *memJobs) Fail(_ context.Context, id int64, msg string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	j := m.jobs[id]
	j.Status = domain.ExportFailed
	j.ErrorMessage = msg
	return nil
}

type recordingDispatcher struct {
	mu  sync.Mutex
	ids []int64
}

func (d *recordingDispatcher) Dispatch(_ context.Context, id int64) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.ids = append(d.ids, id)
	return nil
}

func (d *recordingDispatcher) dispatched() []int64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]int64(nil), d.ids...)
}

package importer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/ignite/listvault/internal/datanorm"
	"github.com/ignite/listvault/internal/domain"
)

const leadsCategory int64 = 1

func TestProcessBatch_EndToEnd(t *testing.T) {
	repo := newMemRepo()
	repo.suppressDomain("suppresseddomain.com")
	repo.addBatch(10, leadsCategory)

	p := NewPipeline(repo, Options{})
	rows := []string{"A@x.com", "a@x.com", "bad", "@x.com", "c@suppresseddomain.com"}

	res, err := p.ProcessBatch(context.Background(), 10, rows)
	if err != nil {
		t.Fatalf("ProcessBatch: %v", err)
	}

	want := domain.BatchCounters{Total: 5, Valid: 3, Invalid: 2, Suppressed: 1, Inserted: 1, Duplicate: 1}
	if res.Counters != want {
		t.Errorf("counters = %+v, want %+v", res.Counters, want)
	}

	b := repo.batch(10)
	if b.Status != domain.BatchCompleted || b.CompletedAt == nil {
		t.Errorf("batch status = %s, completed_at = %v", b.Status, b.CompletedAt)
	}
	if b.Counters != want {
		t.Errorf("persisted counters = %+v", b.Counters)
	}

	items := repo.batchItems(10)
	if len(items) != 5 {
		t.Fatalf("expected 5 items, got %d", len(items))
	}
	wantItems := []struct {
		status     domain.ItemStatus
		normalized string
		reason     string
	}{
		{domain.ItemInserted, "a@x.com", ""},
		{domain.ItemDuplicate, "a@x.com", reasonAlreadyMember},
		{domain.ItemInvalid, "bad", datanorm.ReasonInvalidFormat},
		{domain.ItemInvalid, "@x.com", datanorm.ReasonInvalidFormat},
		{domain.ItemSuppressed, "c@suppresseddomain.com", reasonDomainSuppressed},
	}
	for i, w := range wantItems {
		it := items[i]
		if it.RowNumber != i+1 || it.Status != w.status || it.NormalizedEmail != w.normalized || it.Reason != w.reason {
			t.Errorf("item %d = %+v, want %+v", i+1, it, w)
		}
	}
	if items[0].RawEmail != "A@x.com" || items[0].Domain != "x.com" {
		t.Errorf("raw/domain not recorded: %+v", items[0])
	}
	if items[0].EmailID == nil || items[1].EmailID == nil || *items[0].EmailID != *items[1].EmailID {
		t.Error("both a@x.com rows must resolve to the same identity")
	}
	if items[4].EmailID != nil {
		t.Error("domain-suppressed row must not create an identity")
	}
	if _, ok := repo.emails["c@suppresseddomain.com"]; ok {
		t.Error("domain suppression must block before identity creation")
	}

	if len(res.InvalidPreview) != 2 || res.InvalidPreview[0].Raw != "bad" || res.InvalidPreview[1].Normalized != "@x.com" {
		t.Errorf("unexpected preview %+v", res.InvalidPreview)
	}
}

func TestProcessBatch_Idempotent(t *testing.T) {
	repo := newMemRepo()
	repo.suppressDomain("blocked.org")
	repo.addBatch(1, leadsCategory)
	repo.addBatch(2, leadsCategory)
	p := NewPipeline(repo, Options{})

	rows := []string{"one@x.com", "two@x.com", "three@y.org", "nope", "z@blocked.org"}

	first, err := p.ProcessBatch(context.Background(), 1, rows)
	if err != nil {
		t.Fatalf("first run: %v", err)
	}
	if first.Counters.Inserted != 3 {
		t.Fatalf("first run inserted = %d, want 3", first.Counters.Inserted)
	}

	second, err := p.ProcessBatch(context.Background(), 2, rows)
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	validNonSuppressed := second.Counters.Valid - second.Counters.Suppressed
	if second.Counters.Inserted != 0 || second.Counters.Duplicate != validNonSuppressed || validNonSuppressed != 3 {
		t.Errorf("second run counters = %+v", second.Counters)
	}

	for _, e := range []string{"one@x.com", "two@x.com", "three@y.org"} {
		mem, ok := repo.membership(leadsCategory, e)
		if !ok || mem.TimesAdded != 2 {
			t.Errorf("%s membership = %+v (found=%v), want times_added=2", e, mem, ok)
		}
	}
	if len(repo.members) != 3 {
		t.Errorf("expected 3 membership rows, got %d", len(repo.members))
	}
}

func TestProcessBatch_SameEmailOtherCategoryIsInserted(t *testing.T) {
	repo := newMemRepo()
	repo.addBatch(1, 1)
	repo.addBatch(2, 2)
	p := NewPipeline(repo, Options{})

	if _, err := p.ProcessBatch(context.Background(), 1, []string{"a@x.com"}); err != nil {
		t.Fatal(err)
	}
	res, err := p.ProcessBatch(context.Background(), 2, []string{"a@x.com"})
	if err != nil {
		t.Fatal(err)
	}
	if res.Counters.Inserted != 1 || res.Counters.Duplicate != 0 {
		t.Errorf("duplicate is per category; got %+v", res.Counters)
	}
	if len(repo.emails) != 1 {
		t.Errorf("expected a single canonical identity, got %d", len(repo.emails))
	}
}

func TestProcessBatch_DomainSuppressionWins(t *testing.T) {
	repo := newMemRepo()
	repo.addBatch(1, leadsCategory)
	repo.addBatch(2, leadsCategory)
	p := NewPipeline(repo, Options{})

	if _, err := p.ProcessBatch(context.Background(), 1, []string{"vip@acme.com"}); err != nil {
		t.Fatal(err)
	}

	repo.suppressDomain("acme.com")

	res, err := p.ProcessBatch(context.Background(), 2, []string{"VIP@acme.com"})
	if err != nil {
		t.Fatal(err)
	}
	if res.Counters.Suppressed != 1 || res.Counters.Duplicate != 0 {
		t.Errorf("prior history must not beat domain suppression: %+v", res.Counters)
	}
	mem, _ := repo.membership(leadsCategory, "vip@acme.com")
	if mem.TimesAdded != 1 {
		t.Errorf("suppressed row must not touch membership, times_added = %d", mem.TimesAdded)
	}
}

func TestProcessBatch_GlobalSuppressionKeepsRecord(t *testing.T) {
	repo := newMemRepo()
	repo.addBatch(1, leadsCategory)
	repo.addBatch(2, leadsCategory)
	p := NewPipeline(repo, Options{})

	if _, err := p.ProcessBatch(context.Background(), 1, []string{"a@x.com"}); err != nil {
		t.Fatal(err)
	}
	id := repo.emails["a@x.com"].ID
	repo.mu.Lock()
	repo.global[id] = true
	repo.mu.Unlock()

	res, err := p.ProcessBatch(context.Background(), 2, []string{"a@x.com"})
	if err != nil {
		t.Fatal(err)
	}
	if res.Counters.Suppressed != 1 {
		t.Fatalf("expected suppressed, got %+v", res.Counters)
	}

	items := repo.batchItems(2)
	if items[0].Reason != reasonGlobalSuppressed || items[0].EmailID == nil || *items[0].EmailID != id {
		t.Errorf("unexpected item %+v", items[0])
	}
	if _, ok := repo.emails["a@x.com"]; !ok {
		t.Error("suppression must not delete the canonical record")
	}
	mem, _ := repo.membership(leadsCategory, "a@x.com")
	if mem.TimesAdded != 1 {
		t.Errorf("times_added = %d, want 1", mem.TimesAdded)
	}
}

// Global entries are keyed by identity: an address nobody has seen cannot be
// blocked on its first import unless the admin path created its identity.
func TestProcessBatch_GlobalSuppressionNeedsIdentity(t *testing.T) {
	repo := newMemRepo()
	repo.addBatch(1, leadsCategory)
	repo.addBatch(2, leadsCategory)
	p := NewPipeline(repo, Options{})

	res, err := p.ProcessBatch(context.Background(), 1, []string{"fresh@x.com"})
	if err != nil {
		t.Fatal(err)
	}
	if res.Counters.Inserted != 1 {
		t.Errorf("never-seen email must be inserted, got %+v", res.Counters)
	}

	repo.suppressEmail("blocked@x.com", "blocked", "x.com")
	res, err = p.ProcessBatch(context.Background(), 2, []string{"blocked@x.com"})
	if err != nil {
		t.Fatal(err)
	}
	if res.Counters.Suppressed != 1 {
		t.Errorf("identity created by manual suppression must block first import, got %+v", res.Counters)
	}
}

func TestProcessBatch_EmptyRowPolicy(t *testing.T) {
	repo := newMemRepo()
	repo.addBatch(1, leadsCategory)
	p := NewPipeline(repo, Options{})

	res, err := p.ProcessBatch(context.Background(), 1, []string{"", "   ", " ,; ", "a@x.com"})
	if err != nil {
		t.Fatal(err)
	}
	// Empty rows are recorded as invalid, never dropped.
	if res.Counters.Total != 4 || res.Counters.Invalid != 3 || res.Counters.Inserted != 1 {
		t.Errorf("counters = %+v", res.Counters)
	}
	items := repo.batchItems(1)
	if len(items) != 4 {
		t.Fatalf("expected one item per row, got %d", len(items))
	}
	for _, it := range items[:3] {
		if it.Status != domain.ItemInvalid || it.Reason != datanorm.ReasonEmpty {
			t.Errorf("row %d = %+v, want invalid/Empty", it.RowNumber, it)
		}
	}
}

func TestProcessBatch_InvalidPreviewCap(t *testing.T) {
	repo := newMemRepo()
	repo.addBatch(1, leadsCategory)
	p := NewPipeline(repo, Options{})

	rows := make([]string, 120)
	for i := range rows {
		rows[i] = fmt.Sprintf("broken-%d", i)
	}
	res, err := p.ProcessBatch(context.Background(), 1, rows)
	if err != nil {
		t.Fatal(err)
	}
	if res.Counters.Invalid != 120 {
		t.Errorf("invalid = %d, want 120", res.Counters.Invalid)
	}
	if len(res.InvalidPreview) != DefaultPreviewCap {
		t.Errorf("preview len = %d, want %d", len(res.InvalidPreview), DefaultPreviewCap)
	}
	if res.InvalidPreview[49].RowNumber != 50 {
		t.Errorf("preview must keep the first rows, last = %+v", res.InvalidPreview[49])
	}
	if got := len(repo.batch(1).InvalidPreview); got != DefaultPreviewCap {
		t.Errorf("persisted preview len = %d", got)
	}
}

func TestProcessBatch_FailureRollsBack(t *testing.T) {
	repo := newMemRepo()
	repo.addBatch(1, leadsCategory)
	repo.failAttachAt = 3
	p := NewPipeline(repo, Options{FlushSize: 1})

	_, err := p.ProcessBatch(context.Background(), 1, []string{"a@x.com", "b@x.com", "c@x.com", "d@x.com"})
	if err == nil {
		t.Fatal("expected error")
	}

	b := repo.batch(1)
	if b.Status != domain.BatchFailed || b.ErrorMessage == "" || b.CompletedAt == nil {
		t.Errorf("batch = %+v, want failed with message", b)
	}
	if len(repo.batchItems(1)) != 0 {
		t.Error("no audit rows may persist from a failed attempt")
	}
	if len(repo.members) != 0 {
		t.Error("no memberships may persist from a failed attempt")
	}
	if len(repo.emails) != 0 {
		t.Error("no identities may persist from a failed attempt")
	}
	if b.Counters != (domain.BatchCounters{}) {
		t.Errorf("counters must not persist: %+v", b.Counters)
	}
}

func TestProcessBatch_NotQueued(t *testing.T) {
	repo := newMemRepo()
	repo.addBatch(1, leadsCategory)
	p := NewPipeline(repo, Options{})

	if _, err := p.ProcessBatch(context.Background(), 1, []string{"a@x.com"}); err != nil {
		t.Fatal(err)
	}
	_, err := p.ProcessBatch(context.Background(), 1, []string{"a@x.com"})
	if !errors.Is(err, ErrBatchNotQueued) {
		t.Fatalf("got %v, want ErrBatchNotQueued", err)
	}
	if repo.batch(1).Status != domain.BatchCompleted {
		t.Error("rerunning must not reverse a completed batch")
	}
	if _, err := p.ProcessBatch(context.Background(), 99, nil); !errors.Is(err, ErrBatchNotQueued) {
		t.Errorf("unknown batch: got %v", err)
	}
}

func TestProcessBatch_ContextCancelled(t *testing.T) {
	repo := newMemRepo()
	repo.addBatch(1, leadsCategory)
	p := NewPipeline(repo, Options{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := p.ProcessBatch(ctx, 1, []string{"a@x.com"})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("got %v, want context.Canceled", err)
	}
	if repo.batch(1).Status != domain.BatchFailed {
		t.Errorf("status = %s, want failed", repo.batch(1).Status)
	}
}

func TestProcessBatch_FlushesInChunks(t *testing.T) {
	repo := newMemRepo()
	repo.addBatch(1, leadsCategory)
	var progress [][2]int
	p := NewPipeline(repo, Options{
		FlushSize:     2,
		ProgressEvery: 2,
		Progress: func(_ int64, done, total int) {
			progress = append(progress, [2]int{done, total})
		},
	})

	rows := []string{"a@x.com", "b@x.com", "c@x.com", "d@x.com", "e@x.com"}
	if _, err := p.ProcessBatch(context.Background(), 1, rows); err != nil {
		t.Fatal(err)
	}
	if repo.insertCalls != 3 {
		t.Errorf("InsertItems calls = %d, want 3", repo.insertCalls)
	}
	items := repo.batchItems(1)
	for i, it := range items {
		if it.RowNumber != i+1 {
			t.Errorf("item %d has row_number %d", i, it.RowNumber)
		}
	}
	want := [][2]int{{2, 5}, {4, 5}, {5, 5}}
	if fmt.Sprint(progress) != fmt.Sprint(want) {
		t.Errorf("progress = %v, want %v", progress, want)
	}
}

func TestProcessBatch_StoresUnsafeRawText(t *testing.T) {
	repo := newMemRepo()
	repo.addBatch(1, leadsCategory)
	p := NewPipeline(repo, Options{})

	if _, err := p.ProcessBatch(context.Background(), 1, []string{"a\x00b@x.com", "\xff\xfe@x.com"}); err != nil {
		t.Fatal(err)
	}
	items := repo.batchItems(1)
	if items[0].Status != domain.ItemInvalid || items[0].RawEmail != "ab@x.com" {
		t.Errorf("NUL row = %+v", items[0])
	}
	if items[1].Status != domain.ItemInvalid {
		t.Errorf("invalid UTF-8 row = %+v", items[1])
	}
}

func TestAttach_Concurrent(t *testing.T) {
	repo := newMemRepo()
	const n = 50

	var wg sync.WaitGroup
	outcomes := make(chan domain.AttachOutcome, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := repo.WithinTx(context.Background(), func(tx Tx) error {
				id, err := tx.FindOrCreateEmail(context.Background(), domain.EmailParts{Email: "same@x.com", LocalPart: "same", Domain: "x.com"})
				if err != nil {
					return err
				}
				out, err := tx.Attach(context.Background(), leadsCategory, id)
				outcomes <- out
				return err
			})
			if err != nil {
				t.Error(err)
			}
		}()
	}
	wg.Wait()
	close(outcomes)

	inserted := 0
	for o := range outcomes {
		if o == domain.AttachInserted {
			inserted++
		}
	}
	if inserted != 1 {
		t.Errorf("inserted outcomes = %d, want 1", inserted)
	}
	if len(repo.members) != 1 {
		t.Fatalf("membership rows = %d, want 1", len(repo.members))
	}
	mem, _ := repo.membership(leadsCategory, "same@x.com")
	if mem.TimesAdded != n {
		t.Errorf("times_added = %d, want %d", mem.TimesAdded, n)
	}
}

func TestProcessBatch_ConcurrentBatchesSameCategory(t *testing.T) {
	repo := newMemRepo()
	p := NewPipeline(repo, Options{})
	rows := []string{"a@x.com", "b@x.com", "c@x.com"}
	const batches = 8
	for i := int64(1); i <= batches; i++ {
		repo.addBatch(i, leadsCategory)
	}

	var wg sync.WaitGroup
	results := make([]domain.BatchResult, batches)
	for i := 0; i < batches; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res, err := p.ProcessBatch(context.Background(), int64(i+1), rows)
			if err != nil {
				t.Error(err)
			}
			results[i] = res
		}(i)
	}
	wg.Wait()

	inserted, duplicate := 0, 0
	for _, r := range results {
		inserted += r.Counters.Inserted
		duplicate += r.Counters.Duplicate
	}
	if inserted != 3 || duplicate != 3*(batches-1) {
		t.Errorf("inserted=%d duplicate=%d", inserted, duplicate)
	}
	for _, e := range rows {
		if mem, _ := repo.membership(leadsCategory, e); mem.TimesAdded != batches {
			t.Errorf("%s times_added = %d, want %d", e, mem.TimesAdded, batches)
		}
	}
}

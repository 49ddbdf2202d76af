// Package importer runs import batches: every raw row is normalized,
// validated, checked against suppression, resolved to its canonical identity
// and attached to the batch's category, leaving one audit item per row.
package importer

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/ignite/listvault/internal/datanorm"
	"github.com/ignite/listvault/internal/domain"
	"github.com/ignite/listvault/internal/metrics"
	"github.com/ignite/listvault/internal/pkg/logger"
	"github.com/ignite/listvault/internal/suppression"
)

const (
	// DefaultPreviewCap bounds the invalid-row sample kept per batch.
	DefaultPreviewCap = 50

	// DefaultFlushSize is how many audit items are buffered before a write.
	DefaultFlushSize = 500

	// DefaultProgressEvery is how often (in rows) progress is reported.
	DefaultProgressEvery = 1000

	// maxStoredRaw caps the raw text kept on an audit item.
	maxStoredRaw = 1024

	// maxErrorMessage caps error_message on failed batches.
	maxErrorMessage = 2000

	reasonDomainSuppressed = "Domain suppressed"
	reasonGlobalSuppressed = "Globally suppressed"
	reasonAlreadyMember    = "Already in category"
)

// ProgressFunc receives the number of processed rows out of total.
type ProgressFunc func(batchID int64, processed, total int)

// Options tunes a Pipeline. Zero values select the defaults.
type Options struct {
	PreviewCap    int
	FlushSize     int
	ProgressEvery int
	Progress      ProgressFunc
}

// Pipeline processes import batches. It holds no per-batch state and is safe
// for concurrent use; each ProcessBatch call is single-threaded internally.
type Pipeline struct {
	repo Repository
	opts Options
}

// NewPipeline creates a pipeline over repo.
func NewPipeline(repo Repository, opts Options) *Pipeline {
	if opts.PreviewCap <= 0 {
		opts.PreviewCap = DefaultPreviewCap
	}
	if opts.FlushSize <= 0 {
		opts.FlushSize = DefaultFlushSize
	}
	if opts.ProgressEvery <= 0 {
		opts.ProgressEvery = DefaultProgressEvery
	}
	return &Pipeline{repo: repo, opts: opts}
}

// ProcessBatch runs a queued batch over rows, in order, as one atomic unit.
//
// Every row yields exactly one item. Rows that normalize to "" are recorded
// as invalid with reason "Empty" rather than dropped.
//
// If anything fails after the batch is claimed, the transaction is rolled
// back, the batch is marked failed in a separate write, and the error is
// returned so the caller's retry policy can resubmit it. A batch that is not
// queued is left untouched and ErrBatchNotQueued is returned.
func (p *Pipeline) ProcessBatch(ctx context.Context, batchID int64, rows []string) (domain.BatchResult, error) {
	start := time.Now()

	batch, err := p.repo.StartBatch(ctx, batchID)
	if err != nil {
		return domain.BatchResult{BatchID: batchID}, err
	}

	logger.Info("import batch started", "batch_id", batchID, "category_id", batch.CategoryID, "rows", len(rows))

	result, err := p.run(ctx, batch, rows)
	if err != nil {
		p.fail(ctx, batchID, err)
		metrics.ObserveBatch(string(domain.BatchFailed), time.Since(start))
		return domain.BatchResult{BatchID: batchID}, fmt.Errorf("process batch %d: %w", batchID, err)
	}

	metrics.ObserveBatch(string(domain.BatchCompleted), time.Since(start))
	metrics.ObserveRows(result.Counters)
	logger.Info("import batch completed",
		"batch_id", batchID,
		"total", result.Counters.Total,
		"inserted", result.Counters.Inserted,
		"duplicate", result.Counters.Duplicate,
		"suppressed", result.Counters.Suppressed,
		"invalid", result.Counters.Invalid,
		"duration", time.Since(start).String(),
	)
	return result, nil
}

func (p *Pipeline) run(ctx context.Context, batch *domain.ImportBatch, rows []string) (domain.BatchResult, error) {
	index, err := suppression.NewIndex(ctx, p.repo)
	if err != nil {
		return domain.BatchResult{}, err
	}

	res := domain.BatchResult{BatchID: batch.ID, InvalidPreview: []domain.InvalidPreview{}}
	err = p.repo.WithinTx(ctx, func(tx Tx) error {
		buf := make([]domain.ImportItem, 0, p.opts.FlushSize)
		for i, raw := range rows {
			if err := ctx.Err(); err != nil {
				return err
			}

			item, err := p.classify(ctx, tx, index, batch, i+1, raw)
			if err != nil {
				return fmt.Errorf("row %d: %w", i+1, err)
			}

			res.Counters.Add(item.Status)
			if item.Status == domain.ItemInvalid && len(res.InvalidPreview) < p.opts.PreviewCap {
				res.InvalidPreview = append(res.InvalidPreview, domain.InvalidPreview{
					RowNumber:  item.RowNumber,
					Raw:        item.RawEmail,
					Normalized: item.NormalizedEmail,
					Reason:     item.Reason,
				})
			}

			buf = append(buf, item)
			if len(buf) >= p.opts.FlushSize {
				if err := tx.InsertItems(ctx, buf); err != nil {
					return fmt.Errorf("insert items: %w", err)
				}
				buf = make([]domain.ImportItem, 0, p.opts.FlushSize)
			}

			if p.opts.Progress != nil && (i+1)%p.opts.ProgressEvery == 0 {
				p.opts.Progress(batch.ID, i+1, len(rows))
			}
		}

		if len(buf) > 0 {
			if err := tx.InsertItems(ctx, buf); err != nil {
				return fmt.Errorf("insert items: %w", err)
			}
		}
		return tx.CompleteBatch(ctx, batch.ID, res.Counters, res.InvalidPreview)
	})
	if err != nil {
		return domain.BatchResult{}, err
	}

	if p.opts.Progress != nil {
		p.opts.Progress(batch.ID, len(rows), len(rows))
	}
	return res, nil
}

// classify resolves one row to its terminal item. Only infrastructure
// failures return an error; every classification outcome is an item.
func (p *Pipeline) classify(ctx context.Context, tx Tx, index *suppression.Index, batch *domain.ImportBatch, rowNum int, raw string) (domain.ImportItem, error) {
	email := datanorm.NormalizeEmail(raw)
	item := domain.ImportItem{
		BatchID:         batch.ID,
		RowNumber:       rowNum,
		RawEmail:        storable(raw),
		NormalizedEmail: storable(email),
	}

	v := datanorm.ValidateEmail(email)
	if !v.Valid {
		item.Status = domain.ItemInvalid
		item.Reason = v.Reason
		item.Domain = storable(datanorm.DomainOf(email))
		return item, nil
	}

	local, d, _ := datanorm.CheckParts(email)
	item.Domain = d

	dec, err := index.Check(ctx, tx, email, d)
	if err != nil {
		return item, err
	}
	if dec.Suppressed {
		item.Status = domain.ItemSuppressed
		item.Reason = reasonDomainSuppressed
		if dec.Scope == domain.ScopeGlobal {
			item.Reason = reasonGlobalSuppressed
		}
		if dec.Lookup.Found {
			id := dec.Lookup.ID
			item.EmailID = &id
		}
		return item, nil
	}

	emailID := dec.Lookup.ID
	if !dec.Lookup.Found {
		emailID, err = tx.FindOrCreateEmail(ctx, domain.EmailParts{Email: email, LocalPart: local, Domain: d})
		if err != nil {
			return item, fmt.Errorf("find or create email: %w", err)
		}
	}
	item.EmailID = &emailID

	outcome, err := tx.Attach(ctx, batch.CategoryID, emailID)
	if err != nil {
		return item, fmt.Errorf("attach: %w", err)
	}
	if outcome == domain.AttachInserted {
		item.Status = domain.ItemInserted
	} else {
		item.Status = domain.ItemDuplicate
		item.Reason = reasonAlreadyMember
	}
	return item, nil
}

// fail records the failure outside the aborted transaction. It runs even if
// ctx was cancelled, since the cancellation is usually why we are here.
func (p *Pipeline) fail(ctx context.Context, batchID int64, cause error) {
	failCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()

	msg := cause.Error()
	if len(msg) > maxErrorMessage {
		msg = msg[:maxErrorMessage]
	}
	msg = strings.ToValidUTF8(msg, "")

	if err := p.repo.FailBatch(failCtx, batchID, msg); err != nil {
		logger.Error("failed to mark import batch failed", "batch_id", batchID, "error", err.Error())
		return
	}
	logger.Warn("import batch failed", "batch_id", batchID, "error", msg)
}

// storable makes arbitrary input safe for a TEXT column: NUL bytes and
// invalid UTF-8 are dropped and the length is capped.
func storable(s string) string {
	if strings.IndexByte(s, 0) >= 0 {
		s = strings.ReplaceAll(s, "\x00", "")
	}
	if !utf8.ValidString(s) {
		s = strings.ToValidUTF8(s, "\uFFFD")
	}
	if len(s) > maxStoredRaw {
		s = s[:maxStoredRaw]
		for !utf8.ValidString(s) {
			s = s[:len(s)-1]
		}
	}
	return s
}

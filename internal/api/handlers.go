// Package api is the HTTP surface of listvault: categories, import batches,
// suppression admin and exports.
package api

import (
	"context"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/ignite/listvault/internal/domain"
	"github.com/ignite/listvault/internal/export"
	"github.com/ignite/listvault/internal/importer"
	"github.com/ignite/listvault/internal/pkg/httputil"
	"github.com/ignite/listvault/internal/repository/postgres"
	"github.com/ignite/listvault/internal/service/category"
	suppsvc "github.com/ignite/listvault/internal/service/suppression"
	"github.com/ignite/listvault/internal/suppression"
	"github.com/ignite/listvault/internal/worker"
)

// BatchQuerier reads import batches and their audit trail.
type BatchQuerier interface {
	GetBatch(ctx context.Context, id int64) (*domain.ImportBatch, error)
	ListBatches(ctx context.Context, f postgres.BatchFilter) ([]domain.ImportBatch, error)
	ListItems(ctx context.Context, batchID int64, f postgres.ItemFilter) ([]domain.ImportItem, int, error)
}

// Deps are the services behind the handlers.
type Deps struct {
	Categories   *category.Service
	Suppressions *suppsvc.Service
	Submitter    *importer.Submitter
	Batches      BatchQuerier
	Progress     worker.ProgressTracker

	// Domains and Identities back the suppression check endpoint, which
	// decides exactly as an import would.
	Domains    suppression.DomainSource
	Identities suppression.IdentityLookup

	Streamer *export.Streamer
	Exports  *export.JobRunner

	MaxUploadBytes int64
}

// Handlers contains all HTTP handlers
type Handlers struct {
	categories   *category.Service
	suppressions *suppsvc.Service
	submitter    *importer.Submitter
	batches      BatchQuerier
	progress     worker.ProgressTracker
	domains      suppression.DomainSource
	identities   suppression.IdentityLookup
	streamer     *export.Streamer
	exports      *export.JobRunner
	maxUpload    int64
}

// NewHandlers creates a new Handlers instance
func NewHandlers(d Deps) *Handlers {
	maxUpload := d.MaxUploadBytes
	if maxUpload <= 0 {
		maxUpload = 64 << 20
	}
	return &Handlers{
		categories:   d.Categories,
		suppressions: d.Suppressions,
		submitter:    d.Submitter,
		batches:      d.Batches,
		progress:     d.Progress,
		domains:      d.Domains,
		identities:   d.Identities,
		streamer:     d.Streamer,
		exports:      d.Exports,
		maxUpload:    maxUpload,
	}
}

// idParam parses the {id} path parameter, writing a 400 when it is not a
// positive integer.
func idParam(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		httputil.BadRequest(w, "invalid id")
		return 0, false
	}
	return id, true
}

// queryInt64 reads a positive integer query parameter; absent or malformed
// values yield 0.
func queryInt64(r *http.Request, key string) int64 {
	v, err := strconv.ParseInt(r.URL.Query().Get(key), 10, 64)
	if err != nil || v < 0 {
		return 0
	}
	return v
}

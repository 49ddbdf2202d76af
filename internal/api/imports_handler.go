package api

import (
	"errors"
	"mime"
	"net/http"
	"strconv"
	"strings"

	"github.com/ignite/listvault/internal/domain"
	"github.com/ignite/listvault/internal/importer"
	"github.com/ignite/listvault/internal/pkg/httputil"
	"github.com/ignite/listvault/internal/pkg/logger"
	"github.com/ignite/listvault/internal/repository/postgres"
	"github.com/ignite/listvault/internal/worker"
)

// multipartMemory is how much of a multipart upload is held in memory
// before spilling to a temp file.
const multipartMemory = 32 << 20

// importView is a batch with its live progress, when a worker reported any.
type importView struct {
	*domain.ImportBatch
	Progress *worker.Progress `json:"progress,omitempty"`
}

// CreateImport handles POST /api/imports. The source is either the "file"
// part of a multipart form or the raw request body; category_id and
// source_type come from form fields or the query string.
func (h *Handlers) CreateImport(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUpload)

	q := r.URL.Query()
	categoryRaw := q.Get("category_id")
	req := importer.SubmitRequest{
		SourceType: domain.SourceType(strings.ToLower(q.Get("source_type"))),
		Filename:   q.Get("filename"),
	}

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	switch mediaType {
	case "multipart/form-data":
		if err := r.ParseMultipartForm(multipartMemory); err != nil {
			var maxErr *http.MaxBytesError
			if errors.As(err, &maxErr) {
				respondError(w, err)
				return
			}
			httputil.BadRequest(w, "invalid multipart form")
			return
		}
		defer r.MultipartForm.RemoveAll()

		file, header, err := r.FormFile("file")
		if err != nil {
			httputil.BadRequest(w, "file is required")
			return
		}
		defer file.Close()

		req.Body = file
		if req.Filename == "" {
			req.Filename = header.Filename
		}
		if v := r.PostFormValue("category_id"); v != "" {
			categoryRaw = v
		}
		if v := r.PostFormValue("source_type"); v != "" {
			req.SourceType = domain.SourceType(strings.ToLower(v))
		}
	default:
		req.Body = r.Body
		if req.Filename == "" {
			req.Filename = "upload.txt"
			if mediaType == "text/csv" {
				req.Filename = "upload.csv"
			}
		}
	}

	categoryID, err := strconv.ParseInt(categoryRaw, 10, 64)
	if err != nil || categoryID <= 0 {
		httputil.BadRequest(w, "category_id is required")
		return
	}
	req.CategoryID = categoryID

	b, err := h.submitter.Submit(r.Context(), req)
	if err != nil {
		respondError(w, err)
		return
	}
	httputil.Accepted(w, b)
}

// ListImports handles GET /api/imports?category_id=&status=&page=&per_page=.
func (h *Handlers) ListImports(w http.ResponseWriter, r *http.Request) {
	status := domain.BatchStatus(r.URL.Query().Get("status"))
	switch status {
	case "", domain.BatchQueued, domain.BatchProcessing, domain.BatchCompleted, domain.BatchFailed:
	default:
		httputil.BadRequest(w, "unknown status")
		return
	}

	page, perPage, offset := httputil.Pagination(r, 50, 200)
	batches, err := h.batches.ListBatches(r.Context(), postgres.BatchFilter{
		CategoryID: queryInt64(r, "category_id"),
		Status:     status,
		Limit:      perPage,
		Offset:     offset,
	})
	if err != nil {
		respondError(w, err)
		return
	}
	if batches == nil {
		batches = []domain.ImportBatch{}
	}
	httputil.OK(w, map[string]interface{}{
		"batches":  batches,
		"page":     page,
		"per_page": perPage,
	})
}

// GetImport handles GET /api/imports/{id}.
func (h *Handlers) GetImport(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}
	b, err := h.batches.GetBatch(r.Context(), id)
	if err != nil {
		respondError(w, err)
		return
	}

	view := importView{ImportBatch: b}
	if h.progress != nil {
		p, found, err := h.progress.Get(r.Context(), id)
		switch {
		case err != nil:
			logger.Warn("progress lookup failed", "batch_id", id, "error", err)
		case found:
			view.Progress = &p
		}
	}
	httputil.OK(w, view)
}

// ListImportItems handles GET /api/imports/{id}/items?status=&page=&per_page=.
func (h *Handlers) ListImportItems(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}
	status := domain.ItemStatus(r.URL.Query().Get("status"))
	switch status {
	case "", domain.ItemInvalid, domain.ItemDuplicate, domain.ItemSuppressed, domain.ItemInserted:
	default:
		httputil.BadRequest(w, "unknown item status")
		return
	}

	if _, err := h.batches.GetBatch(r.Context(), id); err != nil {
		respondError(w, err)
		return
	}

	page, perPage, offset := httputil.Pagination(r, 100, 1000)
	items, total, err := h.batches.ListItems(r.Context(), id, postgres.ItemFilter{
		Status: status,
		Limit:  perPage,
		Offset: offset,
	})
	if err != nil {
		respondError(w, err)
		return
	}
	httputil.OK(w, httputil.NewPage(items, total, page, perPage))
}

// ResubmitImport handles POST /api/imports/{id}/resubmit. Only failed
// batches can be resubmitted; the result is a new queued batch.
func (h *Handlers) ResubmitImport(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}
	b, err := h.submitter.Resubmit(r.Context(), id)
	if err != nil {
		respondError(w, err)
		return
	}
	httputil.Accepted(w, b)
}

package api

import (
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/ignite/listvault/internal/domain"
	"github.com/ignite/listvault/internal/export"
	"github.com/ignite/listvault/internal/metrics"
	"github.com/ignite/listvault/internal/pkg/httputil"
	"github.com/ignite/listvault/internal/pkg/logger"
)

// countingWriter tracks whether any byte reached the client, after which
// the status line is committed.
type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}

func formatParam(w http.ResponseWriter, r *http.Request) (domain.ExportFormat, bool) {
	v := r.URL.Query().Get("format")
	if v == "" {
		return domain.FormatCSV, true
	}
	f, ok := export.ParseFormat(v)
	if !ok {
		httputil.BadRequest(w, "format must be csv, txt or json")
	}
	return f, ok
}

// StreamExport handles GET /api/export?format=&category_id=&domain=&valid=
// &exclude_global_suppression=&exclude_domain_unsubscribes=. Rows are
// streamed page by page, newest first.
func (h *Handlers) StreamExport(w http.ResponseWriter, r *http.Request) {
	format, ok := formatParam(w, r)
	if !ok {
		return
	}
	filter := export.ParseFilter(r.URL.Query())

	w.Header().Set("Content-Type", export.ContentType(format))
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="listvault-export-%s.%s"`,
		time.Now().UTC().Format("20060102-150405"), export.Extension(format)))

	cw := &countingWriter{w: w}
	ew, err := export.NewWriter(format, cw)
	if err != nil {
		w.Header().Del("Content-Disposition")
		respondError(w, err)
		return
	}

	n, err := h.streamer.Stream(r.Context(), filter, ew.Write)
	if err == nil {
		err = ew.Flush()
	}
	if err != nil {
		if cw.n == 0 {
			w.Header().Del("Content-Disposition")
			respondError(w, err)
			return
		}
		// Part of the file is out; cut the connection so the client sees
		// a broken download rather than a short one.
		logger.Error("export stream aborted", "format", format, "rows", n, "error", err)
		panic(http.ErrAbortHandler)
	}

	metrics.AddExportRows(string(format), n)
	logger.Info("export streamed", "format", format, "rows", n)
}

// CountExport handles GET /api/export/count with the same filters as
// StreamExport.
func (h *Handlers) CountExport(w http.ResponseWriter, r *http.Request) {
	n, err := h.streamer.Count(r.Context(), export.ParseFilter(r.URL.Query()))
	if err != nil {
		respondError(w, err)
		return
	}
	httputil.OK(w, map[string]int64{"count": n})
}

// CreateExportJob handles POST /api/exports with the filters of
// StreamExport in the query string. The file is written in the background.
func (h *Handlers) CreateExportJob(w http.ResponseWriter, r *http.Request) {
	format, ok := formatParam(w, r)
	if !ok {
		return
	}
	job, err := h.exports.Start(r.Context(), format, export.ParseFilter(r.URL.Query()))
	if err != nil {
		respondError(w, err)
		return
	}
	w.Header().Set("Location", "/api/exports/"+job.PublicID)
	httputil.Accepted(w, job)
}

func (h *Handlers) exportJob(w http.ResponseWriter, r *http.Request) (*domain.ExportJob, bool) {
	id := chi.URLParam(r, "id")
	if _, err := uuid.Parse(id); err != nil {
		httputil.NotFound(w, export.ErrJobNotFound.Error())
		return nil, false
	}
	job, err := h.exports.Get(r.Context(), id)
	if err != nil {
		respondError(w, err)
		return nil, false
	}
	return job, true
}

// GetExportJob handles GET /api/exports/{id}.
func (h *Handlers) GetExportJob(w http.ResponseWriter, r *http.Request) {
	job, ok := h.exportJob(w, r)
	if !ok {
		return
	}
	httputil.OK(w, job)
}

// DownloadExportJob handles GET /api/exports/{id}/download.
func (h *Handlers) DownloadExportJob(w http.ResponseWriter, r *http.Request) {
	job, ok := h.exportJob(w, r)
	if !ok {
		return
	}
	if job.Status != domain.ExportCompleted || job.File == nil {
		httputil.ErrorCode(w, http.StatusConflict, "not_ready", "export is "+string(job.Status))
		return
	}

	rc, err := h.exports.Open(r.Context(), job)
	if err != nil {
		respondError(w, err)
		return
	}
	defer rc.Close()

	w.Header().Set("Content-Type", export.ContentType(job.Format))
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, job.File.Filename))
	if job.File.Size > 0 {
		w.Header().Set("Content-Length", strconv.FormatInt(job.File.Size, 10))
	}
	if _, err := io.Copy(w, rc); err != nil {
		logger.Warn("export download interrupted", "job", job.PublicID, "error", err)
	}
}

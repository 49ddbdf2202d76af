package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/listvault/internal/domain"
	"github.com/ignite/listvault/internal/export"
	"github.com/ignite/listvault/internal/pkg/httpretry"
)

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func newClient(t *testing.T, r chi.Router) *Client {
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return New(srv.URL+"/", httpretry.NewRetryClient(nil, 1, httpretry.WithDelays(time.Millisecond, time.Millisecond)))
}

func TestUploadAndGetBatch(t *testing.T) {
	r := chi.NewRouter()
	r.Post("/api/imports", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseMultipartForm(1<<20))
		assert.Equal(t, "7", r.FormValue("category_id"))
		f, hdr, err := r.FormFile("file")
		require.NoError(t, err)
		body, _ := io.ReadAll(f)
		assert.Equal(t, "list.csv", hdr.Filename)
		assert.Equal(t, "a@example.com\n", string(body))
		writeJSON(w, http.StatusAccepted, domain.ImportBatch{ID: 3, CategoryID: 7, Status: domain.BatchQueued})
	})
	r.Get("/api/imports/{id}", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"id":       3,
			"status":   "processing",
			"progress": map[string]interface{}{"batch_id": 3, "phase": "importing", "processed": 5, "total": 10},
		})
	})
	c := newClient(t, r)
	ctx := context.Background()

	b, err := c.Upload(ctx, 7, "list.csv", bytes.NewBufferString("a@example.com\n"))
	require.NoError(t, err)
	assert.Equal(t, int64(3), b.ID)
	assert.Equal(t, domain.BatchQueued, b.Status)

	got, err := c.GetBatch(ctx, 3)
	require.NoError(t, err)
	assert.Equal(t, domain.BatchProcessing, got.Status)
	require.NotNil(t, got.Progress)
	assert.Equal(t, 50.0, got.Progress.Percent())
}

func TestAPIError(t *testing.T) {
	r := chi.NewRouter()
	r.Get("/api/exports/{id}/download", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusConflict, map[string]string{"error": "export is running", "code": "not_ready"})
	})
	r.Get("/api/categories", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusBadRequest)
	})
	c := newClient(t, r)

	_, err := c.DownloadExport(context.Background(), "abc", io.Discard)
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusConflict, apiErr.Status)
	assert.Equal(t, "not_ready", apiErr.Code)

	_, err = c.ListCategories(context.Background())
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "boom", apiErr.Message)
}

func TestExportRoundTrip(t *testing.T) {
	polls := 0
	r := chi.NewRouter()
	r.Post("/api/exports", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "txt", r.URL.Query().Get("format"))
		assert.Equal(t, "9", r.URL.Query().Get("category_id"))
		writeJSON(w, http.StatusAccepted, domain.ExportJob{PublicID: "job-1", Status: domain.ExportQueued})
	})
	r.Get("/api/exports/{id}", func(w http.ResponseWriter, r *http.Request) {
		polls++
		status := domain.ExportRunning
		if polls > 1 {
			status = domain.ExportCompleted
		}
		writeJSON(w, http.StatusOK, domain.ExportJob{PublicID: chi.URLParam(r, "id"), Status: status, RowCount: 2})
	})
	r.Get("/api/exports/{id}/download", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("a@example.com\nb@example.com\n"))
	})
	c := newClient(t, r)
	ctx := context.Background()

	f := export.DefaultFilter()
	f.CategoryID = 9
	job, err := c.StartExport(ctx, domain.FormatTXT, f)
	require.NoError(t, err)

	done, err := c.WaitExport(ctx, job.PublicID, time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, domain.ExportCompleted, done.Status)

	var out bytes.Buffer
	n, err := c.DownloadExport(ctx, job.PublicID, &out)
	require.NoError(t, err)
	assert.Equal(t, int64(out.Len()), n)
	assert.Equal(t, "a@example.com\nb@example.com\n", out.String())
}

func TestCheckSuppression(t *testing.T) {
	r := chi.NewRouter()
	r.Get("/api/suppressions/check", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "x@blocked.com", r.URL.Query().Get("email"))
		writeJSON(w, http.StatusOK, CheckResult{Email: "x@blocked.com", Valid: true, Suppressed: true, Scope: domain.ScopeDomain})
	})
	c := newClient(t, r)

	res, err := c.CheckSuppression(context.Background(), "x@blocked.com")
	require.NoError(t, err)
	assert.True(t, res.Suppressed)
	assert.Equal(t, domain.ScopeDomain, res.Scope)
	assert.Nil(t, res.Known)
}

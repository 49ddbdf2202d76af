package api

import (
	"net/http"

	"github.com/ignite/listvault/internal/domain"
	"github.com/ignite/listvault/internal/pkg/httputil"
)

type createCategoryRequest struct {
	Name  string `json:"name"`
	Notes string `json:"notes"`
}

// CreateCategory handles POST /api/categories.
func (h *Handlers) CreateCategory(w http.ResponseWriter, r *http.Request) {
	var req createCategoryRequest
	if !httputil.Decode(w, r, &req) {
		return
	}
	c, err := h.categories.Create(r.Context(), req.Name, req.Notes)
	if err != nil {
		respondError(w, err)
		return
	}
	httputil.Created(w, c)
}

// ListCategories handles GET /api/categories.
func (h *Handlers) ListCategories(w http.ResponseWriter, r *http.Request) {
	cats, err := h.categories.List(r.Context())
	if err != nil {
		respondError(w, err)
		return
	}
	if cats == nil {
		cats = []domain.Category{}
	}
	httputil.OK(w, map[string]interface{}{"categories": cats})
}

// GetCategory handles GET /api/categories/{id} and includes the member count.
func (h *Handlers) GetCategory(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}
	s, err := h.categories.Summarize(r.Context(), id)
	if err != nil {
		respondError(w, err)
		return
	}
	httputil.OK(w, s)
}

package api

import (
	"net/http"

	"github.com/ignite/listvault/internal/datanorm"
	"github.com/ignite/listvault/internal/domain"
	"github.com/ignite/listvault/internal/pkg/httputil"
	suppsvc "github.com/ignite/listvault/internal/service/suppression"
	"github.com/ignite/listvault/internal/suppression"
)

type addSuppressionRequest struct {
	Scope  domain.SuppressionScope  `json:"scope"`
	Value  string                   `json:"value"`
	Reason domain.SuppressionReason `json:"reason"`
}

// AddSuppression handles POST /api/suppressions. A global entry is keyed by
// the email's identity, which is created if the address was never imported.
func (h *Handlers) AddSuppression(w http.ResponseWriter, r *http.Request) {
	var req addSuppressionRequest
	if !httputil.Decode(w, r, &req) {
		return
	}
	if !req.Reason.Known() {
		httputil.BadRequest(w, "unknown reason")
		return
	}

	var (
		entry domain.SuppressionEntry
		err   error
	)
	switch req.Scope {
	case domain.ScopeGlobal:
		entry, err = h.suppressions.SuppressEmail(r.Context(), req.Value, req.Reason)
	case domain.ScopeDomain:
		entry, err = h.suppressions.SuppressDomain(r.Context(), req.Value, req.Reason)
	default:
		err = suppsvc.ErrInvalidScope
	}
	if err != nil {
		respondError(w, err)
		return
	}
	httputil.Created(w, entry)
}

// RemoveSuppression handles DELETE /api/suppressions?scope=&value=.
func (h *Handlers) RemoveSuppression(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	err := h.suppressions.Remove(r.Context(), domain.SuppressionScope(q.Get("scope")), q.Get("value"))
	if err != nil {
		respondError(w, err)
		return
	}
	httputil.NoContent(w)
}

// ListSuppressions handles GET /api/suppressions?scope=&q=&page=&per_page=.
func (h *Handlers) ListSuppressions(w http.ResponseWriter, r *http.Request) {
	page, perPage, offset := httputil.Pagination(r, 100, 500)
	entries, total, err := h.suppressions.List(r.Context(), suppsvc.ListFilter{
		Scope:  domain.SuppressionScope(r.URL.Query().Get("scope")),
		Search: r.URL.Query().Get("q"),
		Limit:  perPage,
		Offset: offset,
	})
	if err != nil {
		respondError(w, err)
		return
	}
	httputil.OK(w, httputil.NewPage(entries, total, page, perPage))
}

// SuppressionStats handles GET /api/suppressions/stats.
func (h *Handlers) SuppressionStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.suppressions.GetStats(r.Context())
	if err != nil {
		respondError(w, err)
		return
	}
	httputil.OK(w, stats)
}

type checkResponse struct {
	Email         string                  `json:"email"`
	Valid         bool                    `json:"valid"`
	InvalidReason string                  `json:"invalid_reason,omitempty"`
	Suppressed    bool                    `json:"suppressed"`
	Scope         domain.SuppressionScope `json:"scope,omitempty"`
	Known         *bool                   `json:"known,omitempty"`
}

// CheckSuppression handles GET /api/suppressions/check?email=. It answers
// whether an import of the address right now would be suppressed.
func (h *Handlers) CheckSuppression(w http.ResponseWriter, r *http.Request) {
	raw := r.URL.Query().Get("email")
	if raw == "" {
		httputil.BadRequest(w, suppsvc.ErrEmailRequired.Error())
		return
	}

	email := datanorm.NormalizeEmail(raw)
	resp := checkResponse{Email: email}
	if v := datanorm.ValidateEmail(email); !v.Valid {
		resp.InvalidReason = v.Reason
		httputil.OK(w, resp)
		return
	}
	resp.Valid = true

	ix, err := suppression.NewIndex(r.Context(), h.domains)
	if err != nil {
		respondError(w, err)
		return
	}
	dec, err := ix.Check(r.Context(), h.identities, email, datanorm.DomainOf(email))
	if err != nil {
		respondError(w, err)
		return
	}
	resp.Suppressed = dec.Suppressed
	resp.Scope = dec.Scope
	if dec.LookedUp {
		known := dec.Lookup.Found
		resp.Known = &known
	}
	httputil.OK(w, resp)
}

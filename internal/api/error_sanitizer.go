package api

import (
	"errors"
	"net/http"

	"github.com/ignite/listvault/internal/export"
	"github.com/ignite/listvault/internal/importer"
	"github.com/ignite/listvault/internal/pkg/httputil"
	"github.com/ignite/listvault/internal/service/category"
	suppsvc "github.com/ignite/listvault/internal/service/suppression"
	"github.com/ignite/listvault/internal/storage"
)

var (
	notFoundErrors = []error{
		category.ErrNotFound,
		importer.ErrBatchNotFound,
		suppsvc.ErrNotFound,
		export.ErrJobNotFound,
		storage.ErrNotFound,
	}
	conflictErrors = []error{
		category.ErrExists,
		importer.ErrBatchNotFailed,
	}
	badRequestErrors = []error{
		category.ErrNameRequired,
		suppsvc.ErrEmailRequired,
		suppsvc.ErrDomainRequired,
		suppsvc.ErrInvalidEmail,
		suppsvc.ErrInvalidDomain,
		suppsvc.ErrInvalidScope,
		importer.ErrUnsupportedSource,
	}
)

// respondError maps service errors to client responses. Only the sentinel
// errors above reach the client verbatim; anything else is logged and
// answered with a generic 500.
func respondError(w http.ResponseWriter, err error) {
	var maxErr *http.MaxBytesError
	switch {
	case errors.As(err, &maxErr):
		httputil.Error(w, http.StatusRequestEntityTooLarge, "upload too large")
	case errors.Is(err, importer.ErrCategoryNotFound):
		httputil.Error(w, http.StatusUnprocessableEntity, err.Error())
	case isAny(err, notFoundErrors):
		httputil.NotFound(w, err.Error())
	case isAny(err, conflictErrors):
		httputil.Conflict(w, err.Error())
	case isAny(err, badRequestErrors):
		httputil.BadRequest(w, err.Error())
	default:
		httputil.InternalError(w, err)
	}
}

func isAny(err error, targets []error) bool {
	for _, t := range targets {
		if errors.Is(err, t) {
			return true
		}
	}
	return false
}

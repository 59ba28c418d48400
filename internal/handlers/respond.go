package handlers

import (
	"errors"
	"net/http"

	"github.com/agencyflow/docflow/internal/httpx"
	"github.com/agencyflow/docflow/internal/scope"
	"github.com/agencyflow/docflow/internal/services"
)

// serviceError maps service sentinels to HTTP responses in one place so
// handlers stay thin.
func serviceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, scope.ErrMissingAgency):
		httpx.JSONError(w, http.StatusBadRequest, "missing_agency", nil)
	case errors.Is(err, services.ErrAgencyNotFound):
		httpx.JSONError(w, http.StatusNotFound, "agency_not_found", nil)
	case errors.Is(err, services.ErrAgencyArchived):
		httpx.JSONError(w, http.StatusConflict, "agency_archived", nil)
	case errors.Is(err, services.ErrDocumentNotFound):
		httpx.JSONError(w, http.StatusNotFound, "document_not_found", nil)
	case errors.Is(err, services.ErrSourceNotFound):
		httpx.JSONError(w, http.StatusNotFound, "source_not_found", nil)
	case errors.Is(err, services.ErrInvalidTransition):
		httpx.JSONError(w, http.StatusConflict, "invalid_transition", err.Error())
	case errors.Is(err, services.ErrTransitionConflict):
		httpx.JSONError(w, http.StatusConflict, "transition_conflict", nil)
	case errors.Is(err, services.ErrUnknownRelation):
		httpx.JSONError(w, http.StatusBadRequest, "unknown_relation", err.Error())
	case errors.Is(err, services.ErrNumberCollision):
		httpx.JSONError(w, http.StatusInternalServerError, "number_collision", nil)
	default:
		httpx.JSONError(w, http.StatusInternalServerError, "internal_error", nil)
	}
}

// mustScope pulls the request scope or writes the rejection itself.
func mustScope(w http.ResponseWriter, r *http.Request) (scope.Scope, bool) {
	sc, ok := scope.FromContext(r.Context())
	if !ok {
		httpx.JSONError(w, http.StatusBadRequest, "missing_agency", nil)
		return scope.Scope{}, false
	}
	return sc, true
}

package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/diewo77/invoice-engine/auth"
	"github.com/diewo77/invoice-engine/httpx"
	"github.com/diewo77/invoice-engine/internal/invoice"
	"github.com/diewo77/invoice-engine/internal/lock"
	"github.com/rs/zerolog"
)

// writeError maps domain errors to the JSON error envelope.
func writeError(w http.ResponseWriter, log zerolog.Logger, err error) {
	var (
		verr *invoice.ValidationError
		terr *invoice.InvalidTransitionError
		rerr *invoice.InvalidRateError
		perr *invoice.PersistenceError
		cerr *invoice.ExternalCollaboratorError
	)
	switch {
	case errors.As(err, &verr):
		httpx.JSONError(w, http.StatusBadRequest, "validation_failed", verr.Violations)
	case errors.As(err, &rerr):
		httpx.JSONError(w, http.StatusBadRequest, "invalid_exchange_rate", map[string]string{"exchange_rate": rerr.Rate.String()})
	case errors.Is(err, invoice.ErrNotFound):
		httpx.JSONError(w, http.StatusNotFound, "not_found", nil)
	case errors.As(err, &terr):
		httpx.JSONError(w, http.StatusConflict, "invalid_transition",
			map[string]string{"from": string(terr.From), "to": string(terr.To)})
	case errors.Is(err, invoice.ErrNotDraft):
		httpx.JSONError(w, http.StatusConflict, "invoice_not_editable", nil)
	case errors.Is(err, invoice.ErrConcurrentUpdate), errors.Is(err, lock.ErrNotAcquired):
		httpx.JSONError(w, http.StatusConflict, "concurrent_update", nil)
	case errors.As(err, &cerr):
		log.Warn().Err(err).Str("collaborator", cerr.Collaborator).Msg("collaborator failed")
		httpx.JSONError(w, http.StatusBadGateway, "collaborator_failed", map[string]string{"collaborator": cerr.Collaborator})
	case errors.As(err, &perr):
		log.Error().Err(err).Str("op", perr.Op).Msg("persistence failed")
		httpx.JSONError(w, http.StatusInternalServerError, "invoice_not_updated", nil)
	default:
		log.Error().Err(err).Msg("unexpected error")
		httpx.JSONError(w, http.StatusInternalServerError, "internal_error", nil)
	}
}

func pathID(r *http.Request) (uint, bool) {
	id, err := strconv.ParseUint(r.PathValue("id"), 10, 64)
	if err != nil || id == 0 {
		return 0, false
	}
	return uint(id), true
}

// tenantAndID resolves the request tenant and the {id} path value, writing the
// error response itself when either is missing.
func tenantAndID(w http.ResponseWriter, r *http.Request) (string, uint, bool) {
	tenantID, ok := auth.TenantFromContext(r.Context())
	if !ok {
		httpx.JSONError(w, http.StatusUnauthorized, "unauthorized", nil)
		return "", 0, false
	}
	id, ok := pathID(r)
	if !ok {
		httpx.JSONError(w, http.StatusNotFound, "not_found", nil)
		return "", 0, false
	}
	return tenantID, id, true
}

func tenant(w http.ResponseWriter, r *http.Request) (string, bool) {
	tenantID, ok := auth.TenantFromContext(r.Context())
	if !ok {
		httpx.JSONError(w, http.StatusUnauthorized, "unauthorized", nil)
	}
	return tenantID, ok
}

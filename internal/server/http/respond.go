package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/nstefanov/authcore/internal/errs"
	"github.com/nstefanov/authcore/internal/service"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeServiceError maps workflow errors onto HTTP statuses. Business errors
// keep their message text; infrastructure errors are logged with context and
// surfaced as a generic internal error.
func (h *Handler) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, errs.ErrInvalidCredentials):
		writeError(w, http.StatusUnauthorized, err.Error())
	case errors.Is(err, errs.ErrInvalidEmail),
		errors.Is(err, errs.ErrWeakPassword),
		errors.Is(err, errs.ErrWrongCurrentPassword),
		errors.Is(err, errs.ErrAlreadyVerified),
		errors.Is(err, service.ErrInvalidToken):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, errs.ErrEmailExists), errors.Is(err, errs.ErrEmailInUse):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, errs.ErrUserNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, errs.ErrOAuthNotConfigured):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		h.logger.Error("request failed",
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

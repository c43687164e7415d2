package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/flagwise/auth-service/internal/service"
)

type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Detail  string `json:"detail,omitempty"`
}

// kindStatus maps each stable error kind to its HTTP status and code. Bad
// credentials and absent passwords share one generic response so failures
// never reveal which field was wrong or whether the account exists.
var kindStatus = []struct {
	err    error
	status int
	code   string
	msg    string
}{
	{service.ErrMissingToken, http.StatusUnauthorized, "missing_token", "authorization token required"},
	{service.ErrInvalidToken, http.StatusUnauthorized, "invalid_token", "invalid authorization token"},
	{service.ErrTokenExpired, http.StatusUnauthorized, "token_expired", "authorization token expired"},
	{service.ErrInvalidCredentials, http.StatusUnauthorized, "invalid_credentials", "invalid email or password"},
	{service.ErrNoPasswordSet, http.StatusUnauthorized, "invalid_credentials", "invalid email or password"},
	{service.ErrAccountLocked, http.StatusLocked, "account_locked", "account is temporarily locked"},
	{service.ErrAccountInactive, http.StatusForbidden, "account_inactive", "account is not active"},
	{service.ErrPrincipalNotFound, http.StatusUnauthorized, "principal_not_found", "account no longer exists"},
	{service.ErrSessionNotFound, http.StatusUnauthorized, "session_not_found", "session has been terminated"},
	{service.ErrInsufficientPermission, http.StatusForbidden, "insufficient_permission", "you do not have permission to do this"},
	{service.ErrDuplicateAccount, http.StatusConflict, "duplicate_account", "an account with this email already exists"},
	{service.ErrUnknownProvider, http.StatusBadRequest, "unknown_provider", "unknown identity provider"},
	{service.ErrInvalidProfile, http.StatusBadRequest, "invalid_profile", "identity profile is incomplete"},
	{service.ErrInvalidStatus, http.StatusBadRequest, "invalid_status", "unknown account status"},
	{service.ErrAccountNotFound, http.StatusNotFound, "account_not_found", "account not found"},
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError translates a service error into a structured failure body.
// Internal detail is attached only outside production.
func (h *Handler) writeError(w http.ResponseWriter, err error) {
	for _, mapping := range kindStatus {
		if errors.Is(err, mapping.err) {
			writeJSON(w, mapping.status, errorBody{Error: errorDetail{
				Code:    mapping.code,
				Message: mapping.msg,
			}})
			return
		}
	}

	h.log.Error().Err(err).Msg("Request failed")
	detail := ""
	if !h.production {
		detail = err.Error()
	}
	writeJSON(w, http.StatusInternalServerError, errorBody{Error: errorDetail{
		Code:    "internal",
		Message: "internal server error",
		Detail:  detail,
	}})
}

func (h *Handler) writeBadRequest(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusBadRequest, errorBody{Error: errorDetail{
		Code:    "bad_request",
		Message: msg,
	}})
}

package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"chainproof-ledger/internal/custody"
	"chainproof-ledger/internal/ledger"
	"chainproof-ledger/internal/storage"
)

// errorBody is the JSON shape of every error response.
type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Name    string `json:"name"`
	Code    uint32 `json:"code,omitempty"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, name, message string) {
	writeJSON(w, status, errorBody{Error: errorDetail{Name: name, Message: message}})
}

// statusFor maps a ledger error kind to an HTTP status.
func statusFor(kind ledger.ErrorKind) int {
	switch kind {
	case ledger.KindValidation:
		return http.StatusBadRequest
	case ledger.KindAuthorization:
		return http.StatusForbidden
	case ledger.KindNotFound:
		return http.StatusNotFound
	case ledger.KindConflict:
		return http.StatusConflict
	case ledger.KindPrecondition, ledger.KindArithmetic:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// writeFailure renders err, classifying ledger, custody and storage errors.
func (s *Server) writeFailure(w http.ResponseWriter, r *http.Request, err error) {
	if le, ok := ledger.AsError(err); ok {
		writeJSON(w, statusFor(le.Kind), errorBody{Error: errorDetail{
			Name:    le.Name,
			Code:    le.Code,
			Message: le.Error(),
		}})
		return
	}
	switch {
	case errors.Is(err, custody.ErrInsufficientFunds),
		errors.Is(err, custody.ErrBalanceOverflow):
		writeError(w, http.StatusUnprocessableEntity, "TransferRejected", err.Error())
	case errors.Is(err, custody.ErrAccountNotFound),
		errors.Is(err, storage.ErrNotFound):
		writeError(w, http.StatusNotFound, "NotFound", err.Error())
	case errors.Is(err, custody.ErrAccountExists),
		errors.Is(err, custody.ErrOwnerMismatch),
		errors.Is(err, custody.ErrMintMismatch),
		errors.Is(err, custody.ErrNotTokenAccount):
		writeError(w, http.StatusConflict, "TransferRejected", err.Error())
	case errors.Is(err, r.Context().Err()) && r.Context().Err() != nil:
		writeError(w, http.StatusServiceUnavailable, "Canceled", err.Error())
	default:
		s.log.WithError(err).WithField("path", r.URL.Path).Error("request failed")
		writeError(w, http.StatusInternalServerError, "Internal", "internal error")
	}
}

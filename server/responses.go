package server

import (
	"encoding/json"
	"net/http"

	apperrors "github.com/jrsteele09/go-identity-server/internal/errors"
	"github.com/rs/zerolog/log"
)

const (
	contentTypeJSON = "application/json; charset=utf-8"
	maxBodyBytes    = 1 << 20
)

var kindStatus = map[apperrors.Kind]int{
	apperrors.KindNotFound:          http.StatusNotFound,
	apperrors.KindInvalid:           http.StatusBadRequest,
	apperrors.KindInvalidState:      http.StatusConflict,
	apperrors.KindExpired:           http.StatusGone,
	apperrors.KindAlreadyUsed:       http.StatusConflict,
	apperrors.KindMismatch:          http.StatusBadRequest,
	apperrors.KindInvalidCredential: http.StatusUnauthorized,
	apperrors.KindSuperseded:        http.StatusConflict,
	apperrors.KindDeliveryFailed:    http.StatusServiceUnavailable,
	apperrors.KindPasswordReused:    http.StatusBadRequest,
	apperrors.KindStorage:           http.StatusInternalServerError,
}

// StatusForKind maps an error kind to the HTTP status the API answers with.
func StatusForKind(kind apperrors.Kind) int {
	if status, ok := kindStatus[kind]; ok {
		return status
	}
	return http.StatusInternalServerError
}

type errorResponse struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
	Retryable        bool   `json:"retryable"`
}

// writeError answers with the kind of err. Storage failures are logged and
// never described to the caller.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	kind := apperrors.KindOf(err)
	body := errorResponse{
		Error:            string(kind),
		ErrorDescription: err.Error(),
		Retryable:        apperrors.Retryable(err),
	}
	if kind == apperrors.KindStorage {
		log.Err(err).Str("path", r.URL.Path).Msg("request failed")
		body.ErrorDescription = "internal error"
	}
	writeJSON(w, StatusForKind(kind), body)
}

// writeJSONError writes an OAuth2 error response
func writeJSONError(w http.ResponseWriter, errorCode, description string, statusCode int) {
	writeJSON(w, statusCode, map[string]string{
		"error":             errorCode,
		"error_description": description,
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", contentTypeJSON)
	w.WriteHeader(status)
	if v == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Err(err).Msg("encoding response")
	}
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return apperrors.WithKind(apperrors.KindInvalid, err, "malformed request body")
	}
	return nil
}

// Package handlers provides HTTP request handlers for the session API.
package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	rperrors "github.com/relicta-tech/installkit/internal/errors"
	"github.com/relicta-tech/installkit/internal/httpserver/dto"
)

// respondJSON writes a JSON response.
func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		_ = json.NewEncoder(w).Encode(data)
	}
}

// respondError writes an error response.
func respondError(w http.ResponseWriter, status int, message string, code string) {
	respondJSON(w, status, dto.ErrorResponse{
		Error: message,
		Code:  code,
	})
}

// respondErr maps err to a status code. Only messages of structured errors
// reach the client; everything else is logged and reported generically.
func respondErr(w http.ResponseWriter, logger *slog.Logger, err error) {
	status := statusFor(err)
	msg, ok := rperrors.UserMessage(err)
	if !ok || status == http.StatusInternalServerError {
		logger.Error("request failed", "error", rperrors.RedactError(err))
		if msg == "" {
			msg = http.StatusText(status)
		}
	}
	respondJSON(w, status, dto.ErrorResponse{
		Error:       msg,
		Code:        rperrors.GetKind(err).String(),
		Recoverable: rperrors.IsRecoverable(err),
	})
}

func statusFor(err error) int {
	var maxErr *http.MaxBytesError
	if errors.As(err, &maxErr) {
		return http.StatusRequestEntityTooLarge
	}
	switch rperrors.GetKind(err) {
	case rperrors.KindValidation:
		return http.StatusBadRequest
	case rperrors.KindNotFound:
		return http.StatusNotFound
	case rperrors.KindState:
		return http.StatusConflict
	case rperrors.KindUpload, rperrors.KindInstall, rperrors.KindTask, rperrors.KindVersion:
		return http.StatusUnprocessableEntity
	case rperrors.KindNetwork:
		return http.StatusBadGateway
	case rperrors.KindCanceled:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// decodeJSON decodes an optional JSON body into v. An empty body leaves v
// untouched.
func decodeJSON(r *http.Request, v any) error {
	if r.Body == nil || r.ContentLength == 0 {
		return nil
	}
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return rperrors.Wrap(err, rperrors.KindValidation, "handlers.decodeJSON", "invalid request body")
	}
	return nil
}

package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"kartoteka/internal/availability"
	"kartoteka/internal/booking"
	"kartoteka/internal/ledger"
)

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, errorResponse{Error: msg, Code: code})
}

// writeDomainError maps an engine error to a status and code. Errors without a
// code are reported as internal and their text is logged, not returned.
func (s *HTTPServer) writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	if code := availability.ErrorCode(err); code != "" {
		status := http.StatusBadRequest
		if availability.IsConflict(err) {
			status = http.StatusConflict
		}
		writeError(w, status, code, err.Error())
		return
	}

	switch {
	case errors.Is(err, booking.ErrBusy):
		writeError(w, http.StatusServiceUnavailable, "busy", "reservation book is busy, retry later")
	case errors.Is(err, ledger.ErrRangeTooLong):
		writeError(w, http.StatusBadRequest, "range_too_long", err.Error())
	case errors.Is(err, ledger.ErrInvalidRange):
		writeError(w, http.StatusBadRequest, "invalid_range", err.Error())
	default:
		s.logger.Error().Err(err).Str("path", r.URL.Path).Str("request_id", requestID(r.Context())).Msg("request failed")
		writeError(w, http.StatusInternalServerError, "internal", "internal error")
	}
}

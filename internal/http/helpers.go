package http

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"costmanager/internal/core"
	"costmanager/internal/log"
)

const maxBodyBytes = 64 << 10

type errorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Warn("Failed to encode response", log.FieldError, err)
	}
}

// writeError maps err to a status by its kind. Unclassified errors become 500
// without leaking their text.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	kind := core.KindOf(err)
	status := statusFor(kind)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		msg = "internal error"
	}

	logger := log.FromContext(r.Context())
	level := slog.LevelWarn
	if status >= 500 {
		level = slog.LevelError
	}
	logger.Log(r.Context(), level, "Request failed",
		log.FieldErrorKind, string(kind),
		log.FieldError, err)

	writeJSON(w, status, errorResponse{Error: msg, Kind: string(kind)})
}

func statusFor(kind core.ErrorKind) int {
	switch kind {
	case core.KindValidation, core.KindMissingRate:
		return http.StatusUnprocessableEntity
	case core.KindRatesFetch:
		return http.StatusBadGateway
	case core.KindStorageUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// decodeJSON reads a single JSON object into dst. Malformed bodies are
// validation errors.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(dst); err != nil {
		return core.NewValidationError("malformed JSON body", err)
	}
	return nil
}

// reportQuery holds the validated year, month and currency query parameters.
type reportQuery struct {
	Year     int
	Month    int
	Currency string
}

// parseReportQuery reads year, month and currency. Year and month default to
// the current date. Month is only checked when withMonth is set.
func parseReportQuery(r *http.Request, withMonth bool) (reportQuery, error) {
	now := time.Now()
	q := reportQuery{Year: now.Year(), Month: int(now.Month())}
	values := r.URL.Query()

	if v := strings.TrimSpace(values.Get("year")); v != "" {
		y, err := strconv.Atoi(v)
		if err != nil {
			return q, core.NewValidationError(fmt.Sprintf("year %q is not a number", v), err)
		}
		q.Year = y
	}
	if q.Year < 1900 {
		return q, core.NewValidationError("year must be 1900 or later", nil)
	}

	if withMonth {
		if v := strings.TrimSpace(values.Get("month")); v != "" {
			m, err := strconv.Atoi(v)
			if err != nil {
				return q, core.NewValidationError(fmt.Sprintf("month %q is not a number", v), err)
			}
			q.Month = m
		}
		if q.Month < 1 || q.Month > 12 {
			return q, core.NewValidationError("month must be between 1 and 12", nil)
		}
	}

	q.Currency = strings.TrimSpace(values.Get("currency"))
	if q.Currency == "" {
		return q, core.NewValidationError("currency is required", core.ErrEmptyCurrency)
	}
	return q, nil
}

// parseSumField accepts a JSON number or a numeric string.
func parseSumField(raw json.RawMessage) (float64, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return 0, core.NewValidationError("sum is required", core.ErrInvalidSum)
	}
	var n float64
	if err := json.Unmarshal(raw, &n); err == nil {
		return n, nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return 0, core.NewValidationError("sum must be a number or a numeric string", core.ErrInvalidSum)
	}
	return core.ParseSum(s)
}

func validSourceURL(raw string) bool {
	return strings.HasPrefix(raw, "http://") || strings.HasPrefix(raw, "https://")
}


package handler

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"math"
	"net/http"
	"strconv"

	"github.com/jonboulle/clockwork"

	"github.com/dukerupert/accounts/internal/apperr"
)

const maxBodyBytes = 4 << 20

type messageResponse struct {
	Message string `json:"message"`
}

type errorResponse struct {
	Path             string            `json:"path"`
	Timestamp        int64             `json:"timestamp"`
	Message          string            `json:"message"`
	ValidationErrors map[string]string `json:"validationErrors,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeMessage(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusOK, messageResponse{Message: msg})
}

// responder carries what every error body needs: a logger for unclassified
// failures and the clock that stamps the body.
type responder struct {
	logger *slog.Logger
	clock  clockwork.Clock
}

// writeError maps err to its status and writes the error body. Unclassified
// errors are logged and reported as a generic 500.
func (rs responder) writeError(w http.ResponseWriter, r *http.Request, err error) {
	body := errorResponse{
		Path:      r.URL.RequestURI(),
		Timestamp: rs.clock.Now().UnixMilli(),
	}

	ae, ok := apperr.As(err)
	if !ok {
		rs.logger.ErrorContext(r.Context(), "unhandled error", "method", r.Method, "path", r.URL.Path, "error", err)
		body.Message = apperr.MsgInternal
		writeJSON(w, http.StatusInternalServerError, body)
		return
	}

	if ae.Kind == apperr.KindEmailDelivery {
		rs.logger.ErrorContext(r.Context(), "email delivery failed", "path", r.URL.Path, "error", ae.Err)
	}
	body.Message = ae.Message
	if len(ae.Fields) > 0 {
		body.ValidationErrors = ae.Fields
	}
	writeJSON(w, ae.Kind.Status(), body)
}

// decodeJSON reads a JSON request body into v. An empty body leaves v at
// its zero value so field validation reports what is missing.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	err := json.NewDecoder(r.Body).Decode(v)
	if err != nil && !errors.Is(err, io.EOF) {
		return apperr.Validation(map[string]string{"body": "Request body must be valid JSON"})
	}
	return nil
}

func parseIDParam(r *http.Request) (int64, error) {
	idStr := r.PathValue("id")
	return strconv.ParseInt(idStr, 10, 64)
}

const (
	defaultPageSize = 10
	maxPageSize     = 10
)

// parsePagination reads page and size query parameters. Non-numeric or
// negative pages become 0; sizes outside 1..10 become 10.
func parsePagination(r *http.Request) (page, size int) {
	q := r.URL.Query()

	page = parseNumber(q.Get("page"))
	if page < 0 {
		page = 0
	}
	size = parseNumber(q.Get("size"))
	if size < 1 || size > maxPageSize {
		size = defaultPageSize
	}
	return page, size
}

// parseNumber truncates a decimal string to an int; anything non-numeric is 0.
func parseNumber(s string) int {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0
	}
	if f > math.MaxInt32 {
		return math.MaxInt32
	}
	if f < math.MinInt32 {
		return math.MinInt32
	}
	return int(f)
}

// Package api provides the RFC 7807 problem responses used by the
// VaultGate admin API.
package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
)

const problemBase = "https://vaultgate.dev/problems/"

// problemSlugs name the problem types the admin API can produce.
var problemSlugs = map[int]string{
	http.StatusBadRequest:          "bad-request",
	http.StatusUnauthorized:        "unauthorized",
	http.StatusForbidden:           "forbidden",
	http.StatusConflict:            "conflict",
	http.StatusLocked:              "account-locked",
	http.StatusTooManyRequests:     "rate-limited",
	http.StatusInternalServerError: "internal",
}

// ProblemDetail is an RFC 7807 problem document.
type ProblemDetail struct {
	Type   string `json:"type"`
	Title  string `json:"title"`
	Status int    `json:"status"`
	Detail string `json:"detail,omitempty"`
}

func (p *ProblemDetail) Error() string {
	return p.Title + ": " + p.Detail
}

// WriteError writes a problem document for the status code.
func WriteError(w http.ResponseWriter, status int, title, detail string) {
	slug, ok := problemSlugs[status]
	if !ok {
		slug = strconv.Itoa(status)
	}
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(&ProblemDetail{
		Type:   problemBase + slug,
		Title:  title,
		Status: status,
		Detail: detail,
	})
}

// WriteBadRequest writes a 400 problem document.
func WriteBadRequest(w http.ResponseWriter, detail string) {
	WriteError(w, http.StatusBadRequest, "Bad Request", detail)
}

// WriteUnauthorized writes a 401 problem document.
func WriteUnauthorized(w http.ResponseWriter, detail string) {
	if detail == "" {
		detail = "Authentication required"
	}
	WriteError(w, http.StatusUnauthorized, "Unauthorized", detail)
}

// WriteForbidden writes a 403 problem document.
func WriteForbidden(w http.ResponseWriter, detail string) {
	if detail == "" {
		detail = "Insufficient permissions"
	}
	WriteError(w, http.StatusForbidden, "Forbidden", detail)
}

// WriteConflict writes a 409 problem document.
func WriteConflict(w http.ResponseWriter, detail string) {
	WriteError(w, http.StatusConflict, "Conflict", detail)
}

// WriteLocked writes a 423 problem document with a Retry-After header so
// callers know when the redemption lock elapses.
func WriteLocked(w http.ResponseWriter, retryAfterSecs int64, detail string) {
	if retryAfterSecs > 0 {
		w.Header().Set("Retry-After", strconv.FormatInt(retryAfterSecs, 10))
	}
	WriteError(w, http.StatusLocked, "Account Locked", detail)
}

// WriteTooManyRequests writes a 429 problem document with Retry-After.
func WriteTooManyRequests(w http.ResponseWriter, retryAfterSecs int) {
	w.Header().Set("Retry-After", strconv.Itoa(retryAfterSecs))
	WriteError(w, http.StatusTooManyRequests, "Too Many Requests", "Rate limit exceeded. Retry after the interval indicated.")
}

// WriteInternal writes a 500 problem document. The error is logged, never
// exposed to the client.
func WriteInternal(w http.ResponseWriter, err error) {
	slog.Error("internal server error", "error", err)
	WriteError(w, http.StatusInternalServerError, "Internal Server Error", "An unexpected error occurred.")
}

// WriteJSON writes a 200 JSON response.
func WriteJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

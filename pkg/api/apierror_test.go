package api

import (
	"encoding/json"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestWriteError(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteError(rec, 403, "Forbidden", "caller lacks the required role")

	require.Equal(t, 403, rec.Code)
	require.Equal(t, "application/problem+json", rec.Header().Get("Content-Type"))

	var problem ProblemDetail
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &problem))
	require.Equal(t, "Forbidden", problem.Title)
	require.Equal(t, 403, problem.Status)
	require.Equal(t, "caller lacks the required role", problem.Detail)
	require.Equal(t, "https://vaultgate.dev/problems/forbidden", problem.Type)
}

func TestWriteLockedSetsRetryAfter(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteLocked(rec, 120, "account is locked until 1600")

	require.Equal(t, 423, rec.Code)
	require.Equal(t, "120", rec.Header().Get("Retry-After"))

	// A zero retry hint omits the header.
	rec = httptest.NewRecorder()
	WriteLocked(rec, 0, "account is locked")
	require.Empty(t, rec.Header().Get("Retry-After"))
}

func TestWriteTooManyRequests(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteTooManyRequests(rec, 1)

	require.Equal(t, 429, rec.Code)
	require.Equal(t, "1", rec.Header().Get("Retry-After"))
}

func TestWriteJSON(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteJSON(rec, map[string]any{"immediate": true, "delay_seconds": 0})

	require.Equal(t, 200, rec.Code)
	require.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	require.JSONEq(t, `{"immediate": true, "delay_seconds": 0}`, rec.Body.String())
}

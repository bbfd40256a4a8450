package errors

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorToProblem(t *testing.T) {
	h := NewErrorHandler(slog.Default(), false)
	req := httptest.NewRequest(http.MethodGet, "/runs/x", nil)

	tests := []struct {
		name   string
		err    error
		status int
		typ    string
	}{
		{"not found", fmt.Errorf("%w: x", NewNotFoundError("run not found")), http.StatusNotFound, TypeNotFound},
		{"config", NewConfigError("limit must be positive", nil), http.StatusBadRequest, TypeValidation},
		{"storage", NewStorageError("database is locked", nil), http.StatusServiceUnavailable, TypeServiceDown},
		{"cancelled", context.Canceled, http.StatusGatewayTimeout, TypeTimeout},
		{"deadline", fmt.Errorf("list: %w", context.DeadlineExceeded), http.StatusGatewayTimeout, TypeTimeout},
		{"anything else", fmt.Errorf("boom"), http.StatusInternalServerError, TypeInternal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := h.ErrorToProblem(tt.err, req)
			assert.Equal(t, tt.status, p.Status)
			assert.Equal(t, tt.typ, p.Type)
			assert.Equal(t, "/runs/x", p.Instance)
		})
	}
}

func TestProblemDetailsJSON(t *testing.T) {
	p := NewProblemDetails(http.StatusNotFound, TypeNotFound, "Not Found", "", "/x").
		WithExtension("trace_id", "abc").
		WithExtension("status", 999)

	raw, err := json.Marshal(p)
	require.NoError(t, err)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(raw, &body))
	assert.Equal(t, "abc", body["trace_id"])
	assert.Equal(t, float64(404), body["status"], "standard members win over extensions")
	assert.NotContains(t, body, "detail")
}

func TestHandleErrorRendersProblem(t *testing.T) {
	h := NewErrorHandler(slog.Default(), false)
	req := httptest.NewRequest(http.MethodGet, "/runs/x", nil)
	rec := httptest.NewRecorder()

	h.HandleError(rec, req, NewNotFoundError("run not found"))
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), `"detail":"[NOT_FOUND] run not found"`)

	rec = httptest.NewRecorder()
	h.HandleError(rec, req, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Body.String())
}

func TestErrorMiddlewareRecoversPanics(t *testing.T) {
	h := NewErrorHandler(slog.Default(), true)
	mw := NewErrorMiddleware(h, slog.Default())

	handler := mw.Handler(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("reader exploded")
	}))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "reader exploded")
}

func TestNotFoundAndMethodNotAllowed(t *testing.T) {
	h := NewErrorHandler(nil, false)

	rec := httptest.NewRecorder()
	h.NotFound(rec, httptest.NewRequest(http.MethodGet, "/x", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = httptest.NewRecorder()
	h.MethodNotAllowed(rec, httptest.NewRequest(http.MethodDelete, "/x", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	assert.Contains(t, rec.Body.String(), "DELETE")
}

package logging

import (
	"bytes"
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func newBufferLogger() (*Logger, *bytes.Buffer) {
	var buf bytes.Buffer
	return &Logger{Logger: slog.New(slog.NewTextHandler(&buf, nil))}, &buf
}

func TestRequestLoggerCompletionEntry(t *testing.T) {
	logger, buf := newBufferLogger()

	handler := RequestLogger(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/users/42", nil))

	out := buf.String()
	assert.Contains(t, out, "request started")
	assert.Contains(t, out, "request completed")
	assert.Contains(t, out, "status=404")
	assert.Contains(t, out, "path=/users/42")
	assert.NotContains(t, out, "user_id=")
}

func TestRequestLoggerRecordsPrincipal(t *testing.T) {
	logger, buf := newBufferLogger()

	handler := RequestLogger(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		RecordPrincipalID(r.Context(), "9b1f2e3d")
		w.WriteHeader(http.StatusOK)
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/auth/me", nil))

	assert.Contains(t, buf.String(), "user_id=9b1f2e3d")
}

func TestRecordPrincipalIDOutsideRequest(t *testing.T) {
	// Must be a no-op when no request logger installed the slot.
	RecordPrincipalID(context.Background(), "ignored")
}

func TestGetLoggerFromContextFallback(t *testing.T) {
	assert.NotNil(t, GetLoggerFromContext(context.Background()))
}

package middleware

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSecureLogger_RedactsResetToken(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	r := chi.NewRouter()
	r.Use(SecureLogger(logger, nil))
	r.Patch("/api/auth/reset-password/{token}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	})

	req := httptest.NewRequest("PATCH", "/api/auth/reset-password/9f8e7d6c5b4a", nil)
	r.ServeHTTP(httptest.NewRecorder(), req)

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "/api/auth/reset-password/[REDACTED]", entry["path"])
	assert.Equal(t, "/api/auth/reset-password/{token}", entry["route"])
	assert.EqualValues(t, 400, entry["status"])
	assert.NotContains(t, buf.String(), "9f8e7d6c5b4a")
}

func TestSecureLogger_RedactsSensitiveQuery(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	h := SecureLogger(logger, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/api/users?token=abc", nil))

	assert.Contains(t, buf.String(), `"path":"/api/users?[REDACTED]"`)
	assert.Contains(t, buf.String(), `"route":"unmatched"`)
}

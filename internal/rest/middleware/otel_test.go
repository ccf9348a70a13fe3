package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/pbinitiative/zenflow/internal/config"
	otelint "github.com/pbinitiative/zenflow/internal/otel"
	"github.com/stretchr/testify/assert"
)

func Test_opentelemetry_captures_transfer_headers(t *testing.T) {
	conf := config.Config{Tracing: config.Tracing{TransferHeaders: []string{"X-Tenant"}}}
	var tenant string
	handler := Opentelemetry(conf)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tenant = otelint.TransferHeader(r.Context(), "X-Tenant")
		w.WriteHeader(http.StatusTeapot)
	}))
	req := httptest.NewRequest(http.MethodGet, "/v1/process-definitions", nil)
	req.Header.Set("X-Tenant", "acme")
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	assert.Equal(t, "acme", tenant)
	assert.Equal(t, http.StatusTeapot, rec.Code)
}

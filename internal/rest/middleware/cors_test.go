package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/pbinitiative/zenflow/internal/config"
	"github.com/stretchr/testify/assert"
)

func preflight(conf config.Config, origin, headers string) *httptest.ResponseRecorder {
	handler := Cors(conf)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	req := httptest.NewRequest(http.MethodOptions, "/v1/process-instances", nil)
	req.Header.Set("Origin", origin)
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	req.Header.Set("Access-Control-Request-Headers", headers)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func Test_cors_allows_any_origin_without_credentials_by_default(t *testing.T) {
	rec := preflight(config.Config{}, "https://modeler.example.com", UserIdHeader)

	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Credentials"))
}

func Test_cors_answers_only_configured_origins(t *testing.T) {
	conf := config.Config{
		Server:  config.Server{AllowedOrigins: []string{"https://tasks.example.com"}},
		Tracing: config.Tracing{TransferHeaders: []string{"X-Tenant"}},
	}

	allowed := preflight(conf, "https://tasks.example.com", "X-Tenant")
	rejected := preflight(conf, "https://evil.example.com", "X-Tenant")

	assert.Equal(t, "https://tasks.example.com", allowed.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "true", allowed.Header().Get("Access-Control-Allow-Credentials"))
	assert.Contains(t, allowed.Header().Get("Access-Control-Allow-Headers"), "X-Tenant")
	assert.Empty(t, rejected.Header().Get("Access-Control-Allow-Origin"))
}

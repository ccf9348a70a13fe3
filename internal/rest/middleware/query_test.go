package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func Test_strip_empty_query_params(t *testing.T) {
	var seen string
	handler := StripEmptyQueryParams()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = r.URL.RawQuery
	}))

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/v1/flow-node-instances?processModelId=&a=1&a=&b=", nil))

	assert.Equal(t, "a=1", seen)
}

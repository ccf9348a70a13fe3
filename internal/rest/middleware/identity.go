package middleware

import (
	"net/http"
	"strings"

	"github.com/pbinitiative/zenflow/internal/appcontext"
	"github.com/pbinitiative/zenflow/pkg/bpmn/runtime"
)

const (
	UserIdHeader     = "X-User-Id"
	UserClaimsHeader = "X-User-Claims"
)

// Identity stores the caller identity from the X-User-Id and X-User-Claims
// headers in the request context. Claims are comma separated.
func Identity() func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			identity := runtime.Identity{
				UserId: r.Header.Get(UserIdHeader),
				Token:  strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer "),
			}
			for _, claim := range strings.Split(r.Header.Get(UserClaimsHeader), ",") {
				if claim = strings.TrimSpace(claim); claim != "" {
					identity.Claims = append(identity.Claims, claim)
				}
			}
			next.ServeHTTP(w, r.WithContext(appcontext.WithIdentity(r.Context(), identity)))
		})
	}
}

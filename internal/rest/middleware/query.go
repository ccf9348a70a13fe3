package middleware

import (
	"net/http"
	"net/url"
	"slices"
)

// StripEmptyQueryParams drops query values that are empty strings so handlers
// can treat `?processModelId=` the same as an absent parameter.
func StripEmptyQueryParams() func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.RawQuery != "" {
				r.URL.RawQuery = withoutEmpty(r.URL.Query()).Encode()
			}
			next.ServeHTTP(w, r)
		})
	}
}

func withoutEmpty(query url.Values) url.Values {
	for key, values := range query {
		values = slices.DeleteFunc(values, func(v string) bool { return v == "" })
		if len(values) == 0 {
			delete(query, key)
			continue
		}
		query[key] = values
	}
	return query
}

// Copyright 2021-present ZenBPM Contributors
// (based on git commit history).
//
// ZenBPM project is available under two licenses:
//  - SPDX-License-Identifier: AGPL-3.0-or-later (See LICENSE-AGPL.md)
//  - Enterprise License (See LICENSE-ENTERPRISE.md)

package middleware

import (
	"net/http"
	"slices"
	"time"

	"github.com/go-chi/cors"

	"github.com/pbinitiative/zenflow/internal/config"
)

// Cors answers browser preflights for the configured origins. The identity and
// tracing transfer headers may be sent; credentials only to listed origins.
func Cors(conf config.Config) func(next http.Handler) http.Handler {
	origins := conf.Server.AllowedOrigins
	explicit := len(origins) > 0 && !slices.Contains(origins, "*")
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	headers := append([]string{"Accept", "Authorization", "Content-Type", "Origin", UserIdHeader, UserClaimsHeader}, conf.Tracing.TransferHeaders...)
	return cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:   headers,
		ExposedHeaders:   []string{"Content-Length"},
		AllowCredentials: explicit,
		MaxAge:           int((12 * time.Hour).Seconds()),
	})
}

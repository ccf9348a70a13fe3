// Copyright 2021-present ZenBPM Contributors
// (based on git commit history).
//
// ZenBPM project is available under two licenses:
//  - SPDX-License-Identifier: AGPL-3.0-or-later (See LICENSE-AGPL.md)
//  - Enterprise License (See LICENSE-ENTERPRISE.md)

package otel

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
)

// WroteBytesKey is the total number of response bytes written by a handler.
const WroteBytesKey = attribute.Key("http.wrote_bytes")

// TransferHeaderKey is the context key under which a configured transfer
// header value is stored by the request middleware.
type TransferHeaderKey string

// TransferHeader returns the value of a transfer header captured for the request.
func TransferHeader(ctx context.Context, header string) string {
	v, _ := ctx.Value(TransferHeaderKey(header)).(string)
	return v
}

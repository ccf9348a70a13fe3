// Copyright 2021-present ZenBPM Contributors
// (based on git commit history).
//
// ZenBPM project is available under two licenses:
//  - SPDX-License-Identifier: AGPL-3.0-or-later (See LICENSE-AGPL.md)
//  - Enterprise License (See LICENSE-ENTERPRISE.md)

package log

import (
	"context"
	"fmt"
	"os"

	"github.com/hashicorp/go-hclog"
	"github.com/pbinitiative/zenflow/internal/appcontext"
	"github.com/pbinitiative/zenflow/internal/profile"
)

var logger = hclog.New(&hclog.LoggerOptions{Name: "zenflow", Level: hclog.Info})

// Init configures the process-wide logger for the current profile.
func Init() {
	opts := &hclog.LoggerOptions{
		Name:   "zenflow",
		Output: os.Stderr,
		Level:  hclog.Debug,
	}
	if profile.Current == profile.PROD {
		opts.Level = hclog.Info
		opts.JSONFormat = true
	}
	logger = hclog.New(opts)
	hclog.SetDefault(logger)
}

// Logger returns the process-wide logger for components which take an
// hclog.Logger.
func Logger() hclog.Logger {
	return logger
}

func Named(name string) hclog.Logger {
	return logger.Named(name)
}

func Debug(format string, args ...any) {
	logger.Debug(fmt.Sprintf(format, args...))
}

func Info(format string, args ...any) {
	logger.Info(fmt.Sprintf(format, args...))
}

func Warn(format string, args ...any) {
	logger.Warn(fmt.Sprintf(format, args...))
}

func Error(format string, args ...any) {
	logger.Error(fmt.Sprintf(format, args...))
}

// Infof logs with the request identity and process instance found in ctx.
func Infof(ctx context.Context, format string, args ...any) {
	logger.Info(fmt.Sprintf(format, args...), contextFields(ctx)...)
}

func Errorf(ctx context.Context, format string, args ...any) {
	logger.Error(fmt.Sprintf(format, args...), contextFields(ctx)...)
}

func contextFields(ctx context.Context) []any {
	var fields []any
	if identity, ok := appcontext.Identity(ctx); ok && identity.UserId != "" {
		fields = append(fields, "userId", identity.UserId)
	}
	if processInstanceId, ok := appcontext.ProcessInstanceId(ctx); ok {
		fields = append(fields, "processInstanceId", processInstanceId)
	}
	return fields
}

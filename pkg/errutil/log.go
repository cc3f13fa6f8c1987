// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 OOI Contributors

// Package errutil holds helpers for oops errors shared across ooi packages.
package errutil

import (
	"log/slog"

	"github.com/samber/oops"
)

// Code returns the oops code carried by err, or "" if there is none.
func Code(err error) string {
	oopsErr, ok := oops.AsOops(err)
	if !ok {
		return ""
	}
	code, _ := any(oopsErr.Code()).(string)
	return code
}

// LogError logs err at error level. For oops errors the code, public
// message and context are logged as separate attributes. attrs are
// appended as extra key/value pairs.
func LogError(logger *slog.Logger, msg string, err error, attrs ...any) {
	fields := []any{"error", err.Error()}
	if oopsErr, ok := oops.AsOops(err); ok {
		if code := Code(err); code != "" {
			fields = append(fields, "code", code)
		}
		if public := oopsErr.Public(); public != "" {
			fields = append(fields, "public", public)
		}
		if ctx := oopsErr.Context(); len(ctx) > 0 {
			fields = append(fields, "context", ctx)
		}
	}
	logger.Error(msg, append(fields, attrs...)...)
}

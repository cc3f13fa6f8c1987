// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 OOI Contributors

package handshake

import (
	"github.com/samber/oops"

	"github.com/ooi3/ooi/pkg/errutil"
)

// Error codes. Every handshake failure carries exactly one of these.
const (
	CodeTokenScrapeFailed     = "TOKEN_SCRAPE_FAILED"
	CodeAjaxExchangeFailed    = "AJAX_EXCHANGE_FAILED"
	CodePasswordResetRequired = "PASSWORD_RESET_REQUIRED"
	CodeInvalidCredentials    = "INVALID_CREDENTIALS"
	CodeServerUnavailable     = "SERVER_UNAVAILABLE"
	CodeAPITokenUnavailable   = "API_TOKEN_UNAVAILABLE"
	CodeStageTimeout          = "STAGE_TIMEOUT"
	CodeCancelled             = "HANDSHAKE_CANCELLED"
)

// Public failure messages.
const (
	msgLoginUnreachable = "Error: Cannot connect to dmm.com"
	msgNoDMMToken       = "Error: Failed to query dmm_token"
	msgNoToken          = "Error: Failed to query token"
	msgAjaxFailed       = "Error: AJAX query failed"
	msgAuthTimeout      = "Error: Authentication Timed Out"
	msgPasswordReset    = "Error: Password Reset Prompt Detected - Please visit dmm.com to reset your password"
	msgGameTimeout      = "Error: Connection Timed Out"
	msgWrongCredentials = "Wrong Username or Password"
	msgWorldUnreachable = "Error: Server list is unavailable"
	msgWorldUnavailable = "Error: Server information is unavailable"
	msgGadgetTimeout    = "Error: make_request timed out"
	msgNoAPIToken       = "Error: API token unavailable"
	msgCancelled        = "Error: Login cancelled"
	msgInternal         = "Error: Login failed"
)

// fail builds a handshake failure with a public message.
func fail(code, message string) oops.OopsErrorBuilder {
	return oops.Code(code).Public(message)
}

// ErrorCode returns the oops code carried by err, or "" if there is none.
func ErrorCode(err error) string {
	return errutil.Code(err)
}

// PublicMessage returns the message that may be shown to the player for err.
// Errors without a public message map to a generic failure text so that
// transport details never reach the caller.
func PublicMessage(err error) string {
	if err == nil {
		return ""
	}
	if oopsErr, ok := oops.AsOops(err); ok {
		if msg := oopsErr.Public(); msg != "" {
			return msg
		}
	}
	return msgInternal
}

// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 OOI Contributors

package handshake

import (
	"regexp"

	"github.com/ooi3/ooi/internal/scrape"
)

// Extraction rules for the DMM pages.
var (
	// DMMTokenRule reads the token passed to the login page's script.
	DMMTokenRule = scrape.Rule{
		Name:     "dmm_token",
		Pattern:  regexp.MustCompile(`"DMM_TOKEN", "([\d|\w]+)"`),
		Required: true,
		Code:     CodeTokenScrapeFailed,
		Message:  msgNoDMMToken,
	}

	// LoginTokenRule reads the token embedded in the login page's ajax payload.
	LoginTokenRule = scrape.Rule{
		Name:     "token",
		Pattern:  regexp.MustCompile(`"token": "([\d|\w]+)"`),
		Required: true,
		Code:     CodeTokenScrapeFailed,
		Message:  msgNoToken,
	}

	// PasswordResetRule detects the forced password reset page.
	PasswordResetRule = scrape.Rule{
		Name:    "password_reset",
		Pattern: regexp.MustCompile(`認証エラー`),
		Code:    CodePasswordResetRequired,
		Message: msgPasswordReset,
	}

	// OSAPIRule reads the gadget iframe url from the game page. Its absence
	// is the only sign DMM gives of a wrong login id or password.
	OSAPIRule = scrape.Rule{
		Name:     "osapi_url",
		Pattern:  regexp.MustCompile(`URL\W+:\W+"(.*)",`),
		Required: true,
		Code:     CodeInvalidCredentials,
		Message:  msgWrongCredentials,
	}
)

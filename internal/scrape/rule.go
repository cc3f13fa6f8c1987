// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 OOI Contributors

package scrape

import (
	"regexp"

	"github.com/samber/oops"
)

// Rule is a named extraction pattern.
type Rule struct {
	// Name identifies the extracted value in logs and errors.
	Name string
	// Pattern must contain one capture group unless the rule is only used
	// with Found.
	Pattern *regexp.Regexp
	// Required makes Extract fail when the pattern is absent.
	Required bool
	// Code is the oops code of the failure.
	Code string
	// Message is the public, user-facing failure message.
	Message string
}

// Extract returns the first capture group of the first match in body.
// When the pattern does not match, a required rule returns an error and an
// optional rule returns the empty string.
func (r Rule) Extract(body []byte) (string, error) {
	m := r.Pattern.FindSubmatch(body)
	if len(m) < 2 {
		if !r.Required {
			return "", nil
		}
		return "", r.Fail()
	}
	return string(m[1]), nil
}

// Found reports whether the pattern occurs anywhere in body.
func (r Rule) Found(body []byte) bool {
	return r.Pattern.Match(body)
}

// Fail builds the rule's failure error.
func (r Rule) Fail() error {
	return oops.Code(r.Code).
		With("rule", r.Name).
		Public(r.Message).
		Errorf("%s", r.Message)
}

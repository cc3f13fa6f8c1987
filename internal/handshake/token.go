// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 OOI Contributors

package handshake

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/ooi3/ooi/internal/scrape"
)

// gadgetEntry is the signing gadget's record of one proxied request.
type gadgetEntry struct {
	RC   int    `json:"rc"`
	Body string `json:"body"`
}

type apiTokenResponse struct {
	APIResult    int    `json:"api_result"`
	APIToken     string `json:"api_token"`
	APIStartTime int64  `json:"api_starttime"`
}

// gadgetDescriptor describes the inner request the gadget signs and fetches
// on the player's behalf.
func (c *Client) gadgetDescriptor(innerURL, st string) url.Values {
	return url.Values{
		"url":          {innerURL},
		"httpMethod":   {http.MethodGet},
		"authz":        {"signed"},
		"st":           {st},
		"contentType":  {"JSON"},
		"numEntries":   {"3"},
		"getSummaries": {"false"},
		"signOwner":    {"true"},
		"signViewer":   {"true"},
		"gadget":       {c.endpoints.Gadget},
		"container":    {"dmm"},
	}
}

// requestAPIToken has the gadget fetch a signed dmmlogin call from the
// player's world server and composes the Flash url from its answer.
func (c *Client) requestAPIToken(ctx context.Context, s *Session) error {
	if err := s.require("world_ip", s.WorldIP, "owner", s.Owner, "security_token", s.SecurityToken); err != nil {
		return err
	}

	innerURL := fmt.Sprintf(c.endpoints.APIToken, s.WorldIP, s.Owner, c.now().UnixMilli())
	body, err := s.postForm(ctx, c.endpoints.MakeRequest, c.gadgetDescriptor(innerURL, s.SecurityToken))
	if err != nil {
		return err
	}

	var outer map[string]gadgetEntry
	if err := scrape.GadgetPrefix.Decode(body, &outer); err != nil {
		return fail(CodeAPITokenUnavailable, msgNoAPIToken).Wrap(err)
	}
	entry, ok := outer[innerURL]
	if !ok {
		return fail(CodeAPITokenUnavailable, msgNoAPIToken).
			With("entries", len(outer)).
			Errorf("gadget response lacks the requested url")
	}
	if entry.RC != http.StatusOK {
		return fail(CodeAPITokenUnavailable, msgNoAPIToken).
			With("rc", entry.RC).
			Errorf("gadget fetch failed")
	}

	var inner apiTokenResponse
	if err := scrape.WorldPrefix.Decode([]byte(entry.Body), &inner); err != nil {
		return fail(CodeAPITokenUnavailable, msgNoAPIToken).Wrap(err)
	}
	if inner.APIResult != 1 || inner.APIToken == "" {
		return fail(CodeAPITokenUnavailable, msgNoAPIToken).
			With("api_result", inner.APIResult).
			Errorf("world server refused dmmlogin")
	}

	if err := s.set("api_token", &s.APIToken, inner.APIToken); err != nil {
		return err
	}
	s.APIStartTime = inner.APIStartTime
	return s.set("flash_url", &s.FlashURL, fmt.Sprintf(c.endpoints.Flash, s.WorldIP, s.APIToken, s.APIStartTime))
}

// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 OOI Contributors

package handshake

import (
	"context"
	"fmt"
	"net/url"

	"github.com/ooi3/ooi/internal/scrape"
	"github.com/ooi3/ooi/internal/world"
)

type worldResponse struct {
	APIResult int `json:"api_result"`
	APIData   struct {
		WorldID int `json:"api_world_id"`
	} `json:"api_data"`
}

// resolveWorld reads owner and st from the OSAPI url and asks the
// world-assignment endpoint which server hosts the player.
func (c *Client) resolveWorld(ctx context.Context, s *Session) error {
	if err := s.require("osapi_url", s.OSAPIURL); err != nil {
		return err
	}

	owner, st, err := parseOSAPIURL(s.OSAPIURL)
	if err != nil {
		return err
	}
	if err := s.set("owner", &s.Owner, owner); err != nil {
		return err
	}
	if err := s.set("security_token", &s.SecurityToken, st); err != nil {
		return err
	}

	s.headers.Set("Referer", s.OSAPIURL)
	body, err := s.get(ctx, fmt.Sprintf(c.endpoints.World, s.Owner, c.now().UnixMilli()))
	if err != nil {
		return err
	}

	var resp worldResponse
	if err := scrape.WorldPrefix.Decode(body, &resp); err != nil {
		return fail(CodeServerUnavailable, msgWorldUnavailable).Wrap(err)
	}
	if resp.APIResult != 1 {
		return fail(CodeServerUnavailable, msgWorldUnavailable).
			With("api_result", resp.APIResult).
			Errorf("world assignment rejected")
	}

	addr, err := world.Address(resp.APIData.WorldID)
	if err != nil {
		return fail(CodeServerUnavailable, msgWorldUnavailable).Wrap(err)
	}
	s.WorldID = resp.APIData.WorldID
	return s.set("world_ip", &s.WorldIP, addr)
}

// parseOSAPIURL extracts the owner id and security token query parameters.
func parseOSAPIURL(raw string) (owner, st string, err error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", "", fail(CodeServerUnavailable, msgWorldUnavailable).Wrap(err)
	}
	q := u.Query()
	owner, st = q.Get("owner"), q.Get("st")
	if owner == "" || st == "" {
		return "", "", fail(CodeServerUnavailable, msgWorldUnavailable).
			With("has_owner", owner != "").
			With("has_st", st != "").
			Errorf("osapi url lacks owner or st")
	}
	return owner, st, nil
}

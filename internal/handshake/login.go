// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 OOI Contributors

package handshake

import (
	"context"
	"encoding/json"
	"net/url"

	"github.com/samber/oops"
)

// fetchLoginTokens loads the login page and scrapes DMM_TOKEN and token.
func (c *Client) fetchLoginTokens(ctx context.Context, s *Session) error {
	body, err := s.get(ctx, c.endpoints.Login)
	if err != nil {
		return err
	}

	dmmToken, err := DMMTokenRule.Extract(body)
	if err != nil {
		return err //nolint:wrapcheck // rule errors carry their own code
	}
	token, err := LoginTokenRule.Extract(body)
	if err != nil {
		return err //nolint:wrapcheck // rule errors carry their own code
	}

	if err := s.set("dmm_token", &s.DMMToken, dmmToken); err != nil {
		return err
	}
	return s.set("token", &s.LoginToken, token)
}

type ajaxTokenResponse struct {
	Token   string `json:"token"`
	LoginID string `json:"login_id"`
	Pwd     string `json:"password"`
}

// exchangeAjaxToken trades the page token for a fresh token and the names of
// the dynamic login id and password form fields.
func (c *Client) exchangeAjaxToken(ctx context.Context, s *Session) error {
	if err := s.require("dmm_token", s.DMMToken, "token", s.LoginToken); err != nil {
		return err
	}

	s.headers.Set("Origin", c.endpoints.Origin)
	s.headers.Set("Referer", c.endpoints.Login)
	s.headers["DMM_TOKEN"] = []string{s.DMMToken}
	s.headers.Set("X-Requested-With", "XMLHttpRequest")

	body, err := s.postForm(ctx, c.endpoints.Ajax, url.Values{"token": {s.LoginToken}})
	if err != nil {
		return err
	}

	var resp ajaxTokenResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return fail(CodeAjaxExchangeFailed, msgAjaxFailed).Wrap(err)
	}
	if resp.Token == "" || resp.LoginID == "" || resp.Pwd == "" {
		return fail(CodeAjaxExchangeFailed, msgAjaxFailed).
			With("has_token", resp.Token != "").
			With("has_id_key", resp.LoginID != "").
			With("has_pwd_key", resp.Pwd != "").
			Errorf("incomplete ajax token response")
	}

	for _, f := range []struct {
		name  string
		dst   *string
		value string
	}{
		{"ajax_token", &s.Token, resp.Token},
		{"id_key", &s.IDKey, resp.LoginID},
		{"pwd_key", &s.PwdKey, resp.Pwd},
	} {
		if err := s.set(f.name, f.dst, f.value); err != nil {
			return err
		}
	}
	return nil
}

// submitCredentials posts the login form. The credentials go out twice:
// under the literal field names and under the dynamic ones from the ajax
// stage.
func (c *Client) submitCredentials(ctx context.Context, s *Session) error {
	if err := s.require("ajax_token", s.Token, "id_key", s.IDKey, "pwd_key", s.PwdKey); err != nil {
		return err
	}

	delete(s.headers, "DMM_TOKEN")
	s.headers.Del("X-Requested-With")

	form := url.Values{}
	form.Set("login_id", s.creds.LoginID)
	form.Set("password", s.creds.Password)
	form.Set("token", s.Token)
	form.Set(s.IDKey, s.creds.LoginID)
	form.Set(s.PwdKey, s.creds.Password)

	body, err := s.postForm(ctx, c.endpoints.Auth, form)
	if err != nil {
		return err
	}

	if PasswordResetRule.Found(body) {
		return PasswordResetRule.Fail() //nolint:wrapcheck // rule errors carry their own code
	}
	return nil
}

// fetchOSAPIURL loads the game page, which only embeds the OSAPI gadget url
// for a logged-in player.
func (c *Client) fetchOSAPIURL(ctx context.Context, s *Session) error {
	if err := s.require("ajax_token", s.Token); err != nil {
		return err
	}

	body, err := s.get(ctx, c.endpoints.Game)
	if err != nil {
		return err
	}

	osapiURL, err := OSAPIRule.Extract(body)
	if err != nil {
		return err //nolint:wrapcheck // rule errors carry their own code
	}
	if _, parseErr := url.Parse(osapiURL); parseErr != nil {
		return oops.Code(CodeInvalidCredentials).
			Public(msgWrongCredentials).
			Wrap(parseErr)
	}
	return s.set("osapi_url", &s.OSAPIURL, osapiURL)
}

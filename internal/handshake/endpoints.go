// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 OOI Contributors

package handshake

import "time"

// Endpoints are the URLs and URL templates the handshake talks to.
type Endpoints struct {
	Login       string
	Ajax        string
	Auth        string
	Game        string
	MakeRequest string
	// World is formatted with the owner id and a millisecond timestamp.
	World string
	// APIToken is formatted with the world address, the owner id and a
	// millisecond timestamp.
	APIToken string
	// Flash is formatted with the world address, the api token and the
	// api start time.
	Flash string
	// Gadget is the gadget definition url sent to the signing endpoint.
	Gadget string
	// Origin is sent as the Origin header from the ajax stage on.
	Origin string
}

// DefaultEndpoints returns the production DMM endpoints.
func DefaultEndpoints() Endpoints {
	return Endpoints{
		Login:       "https://www.dmm.com/my/-/login/",
		Ajax:        "https://www.dmm.com/my/-/login/ajax-get-token/",
		Auth:        "https://www.dmm.com/my/-/login/auth/",
		Game:        "http://www.dmm.com/netgame/social/-/gadgets/=/app_id=854854/",
		MakeRequest: "http://osapi.dmm.com/gadgets/makeRequest",
		World:       "http://203.104.209.7/kcsapi/api_world/get_id/%s/1/%d",
		APIToken:    "http://%s/kcsapi/api_auth_member/dmmlogin/%s/1/%d",
		Flash:       "http://%s/kcs/mainD2.swf?api_token=%s&amp;api_starttime=%d",
		Gadget:      "http://203.104.209.7/gadget.xml",
		Origin:      "https://www.dmm.com",
	}
}

// Timeouts bounds each stage independently.
type Timeouts struct {
	Login time.Duration `koanf:"login"`
	Ajax  time.Duration `koanf:"ajax"`
	Auth  time.Duration `koanf:"auth"`
	Game  time.Duration `koanf:"game"`
	World time.Duration `koanf:"world"`
	Token time.Duration `koanf:"token"`
}

// DefaultStageTimeout applies to any stage left at zero.
const DefaultStageTimeout = 10 * time.Second

// DefaultTimeouts returns DefaultStageTimeout for every stage.
func DefaultTimeouts() Timeouts {
	return Timeouts{
		Login: DefaultStageTimeout,
		Ajax:  DefaultStageTimeout,
		Auth:  DefaultStageTimeout,
		Game:  DefaultStageTimeout,
		World: DefaultStageTimeout,
		Token: DefaultStageTimeout,
	}
}

func (t Timeouts) withDefaults() Timeouts {
	for _, d := range []*time.Duration{&t.Login, &t.Ajax, &t.Auth, &t.Game, &t.World, &t.Token} {
		if *d <= 0 {
			*d = DefaultStageTimeout
		}
	}
	return t
}

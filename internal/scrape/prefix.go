// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 OOI Contributors

package scrape

import (
	"encoding/json"

	"github.com/samber/oops"
)

// Prefix describes a fixed-length marker that precedes a JSON document.
type Prefix struct {
	Name   string
	Marker string
	Len    int
}

// Protocol framing constants. Len is what is stripped; Marker documents the
// literal bytes observed on the wire.
var (
	// WorldPrefix frames every kcsapi response from the game servers,
	// including the world-assignment endpoint.
	WorldPrefix = Prefix{Name: "svdata", Marker: "svdata=", Len: 7}

	// GadgetPrefix frames the signing gadget's makeRequest response.
	GadgetPrefix = Prefix{Name: "gadget", Marker: "throw 1; < don't be evil' >", Len: 27}
)

// Decode strips p.Len bytes from body and unmarshals the rest into v.
func (p Prefix) Decode(body []byte, v any) error {
	return DecodeAt(body, p.Len, v)
}

// DecodeAt strips exactly offset bytes from body and unmarshals the rest
// into v.
func DecodeAt(body []byte, offset int, v any) error {
	if offset < 0 || len(body) < offset {
		return oops.Code("PREFIXED_JSON_MALFORMED").
			With("offset", offset).
			With("body_len", len(body)).
			Errorf("body shorter than prefix")
	}
	if err := json.Unmarshal(body[offset:], v); err != nil {
		return oops.Code("PREFIXED_JSON_MALFORMED").
			With("offset", offset).
			Wrap(err)
	}
	return nil
}

// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 OOI Contributors

// Package scrape extracts values from the semi-structured pages and framed
// JSON bodies returned by the identity provider and the game servers.
//
// # Rules
//
// A [Rule] couples a pattern with a failure code. Extraction either yields the
// first capture group or, for a required rule, an oops error carrying the
// rule's code and public message. Marker rules ([Rule.Found]) only test for
// presence.
//
// # Prefixed JSON
//
// Some endpoints emit a fixed non-JSON marker ahead of the JSON document.
// [Prefix] names each marker and its byte length; [Prefix.Decode] strips
// exactly that many bytes before unmarshalling.
package scrape

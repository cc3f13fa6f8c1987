// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 OOI Contributors

// Package gameproxy forwards the Flash client's kcsapi calls to the player's
// world server.
//
// The client believes it talks to the host serving the game page, so the
// Referer is rewritten to point at the world server over plain http (world
// servers do not speak https). The large api_start2 bootstrap payload is
// memoized once it has been seen in full and then served without contacting
// the world server again.
package gameproxy

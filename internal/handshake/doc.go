// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 OOI Contributors

// Package handshake logs a player into DMM on behalf of the Flash game client.
//
// The login is an ordered pipeline of stages, each one a single HTTP exchange
// that a browser would perform:
//
//  1. login     - fetch the login page, scrape DMM_TOKEN and token
//  2. ajax      - exchange token for a fresh token and the dynamic field names
//  3. auth      - submit credentials under both the literal and dynamic names
//  4. game      - fetch the game gadget page and scrape the OSAPI url
//  5. world     - ask the world-assignment endpoint which server owns the player
//  6. api_token - have the signing gadget fetch a signed api token
//
// [Client.ResolveOSAPI] runs stages 1-4, [Client.ResolveFlash] runs all six.
// Every stage has its own timeout and public failure message. The first
// failure ends the handshake; nothing is retried. Each call works on a fresh
// [Session] with its own cookie jar, so concurrent handshakes never share
// state.
//
// Failures are oops errors carrying one of the Code* constants. Use
// [PublicMessage] to get the text that is safe to show the player.
package handshake

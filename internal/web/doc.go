// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 OOI Contributors

// Package web exposes the login services and the in-game proxy endpoints
// over HTTP. It owns the per-browser proxy session holding the world server
// and api token issued by a successful login.
package web

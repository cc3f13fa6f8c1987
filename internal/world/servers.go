// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 OOI Contributors

// Package world holds the fixed table of regional game servers.
//
// World ids are 1-based: id 1 is the first entry of the table. The table is
// read-only for the lifetime of the process and safe for concurrent use.
package world

import (
	"github.com/samber/oops"
)

// servers lists the regional game server addresses, ordered by world id.
var servers = [...]string{
	"203.104.209.71",
	"203.104.209.87",
	"125.6.184.16",
	"125.6.187.205",
	"125.6.187.229",
	"203.104.209.134",
	"203.104.209.167",
	"203.104.248.135",
	"125.6.189.7",
	"125.6.189.39",
	"125.6.189.71",
	"125.6.189.103",
	"125.6.189.135",
	"125.6.189.167",
	"125.6.189.215",
	"125.6.189.247",
	"203.104.209.23",
	"203.104.209.39",
	"203.104.209.55",
	"203.104.209.102",
}

// Server is one row of the world table.
type Server struct {
	ID      int    `yaml:"id" json:"id"`
	Address string `yaml:"address" json:"address"`
}

// Len returns the number of known worlds.
func Len() int {
	return len(servers)
}

// Address returns the server address for a 1-based world id.
// Ids outside [1, Len()] return a WORLD_UNKNOWN error.
func Address(id int) (string, error) {
	if id < 1 || id > len(servers) {
		return "", oops.Code("WORLD_UNKNOWN").
			With("world_id", id).
			With("world_count", len(servers)).
			Errorf("world id %d out of range", id)
	}
	return servers[id-1], nil
}

// All returns a copy of the table in world id order.
func All() []Server {
	out := make([]Server, len(servers))
	for i, addr := range servers {
		out[i] = Server{ID: i + 1, Address: addr}
	}
	return out
}

// IDOf returns the world id served by addr, or 0 if addr is not in the table.
func IDOf(addr string) int {
	for i, s := range servers {
		if s == addr {
			return i + 1
		}
	}
	return 0
}

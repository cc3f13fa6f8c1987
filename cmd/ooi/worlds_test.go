// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 OOI Contributors

package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/ooi3/ooi/internal/world"
)

func runWorlds(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newWorldsCmd()
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetErr(new(bytes.Buffer))
	cmd.SetArgs(args)
	err := cmd.Execute()
	return buf.String(), err
}

func TestWorlds_Text(t *testing.T) {
	out, err := runWorlds(t)
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, world.Len()+1)
	assert.Contains(t, lines[0], "ADDRESS")
	assert.Contains(t, lines[1], "203.104.209.71")
	assert.Contains(t, lines[len(lines)-1], "203.104.209.102")
}

func TestWorlds_YAML(t *testing.T) {
	out, err := runWorlds(t, "--output", "yaml")
	require.NoError(t, err)

	var servers []world.Server
	require.NoError(t, yaml.Unmarshal([]byte(out), &servers))
	assert.Equal(t, world.All(), servers)
}

func TestWorlds_InvalidOutput(t *testing.T) {
	_, err := runWorlds(t, "-o", "xml")
	require.Error(t, err)
}

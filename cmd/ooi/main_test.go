// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 OOI Contributors

package main

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommand_HasExpectedSubcommands(t *testing.T) {
	cmd := NewRootCmd()
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetArgs([]string{"--help"})

	require.NoError(t, cmd.Execute())

	output := buf.String()
	for _, sub := range []string{"serve", "login", "worlds"} {
		assert.Contains(t, output, sub, "Help missing %q command", sub)
	}
}

func TestRootCommand_ConfigFlag(t *testing.T) {
	tests := []struct {
		name     string
		args     []string
		wantFlag string
	}{
		{
			name:     "separate value",
			args:     []string{"--config", "/path/to/config.yaml", "--help"},
			wantFlag: "/path/to/config.yaml",
		},
		{
			name:     "with equals",
			args:     []string{"--config=/etc/ooi.yaml", "--help"},
			wantFlag: "/etc/ooi.yaml",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			configFile = ""
			t.Cleanup(func() { configFile = "" })

			cmd := NewRootCmd()
			cmd.SetOut(new(bytes.Buffer))
			cmd.SetArgs(tt.args)

			require.NoError(t, cmd.Execute())
			assert.Equal(t, tt.wantFlag, configFile)
		})
	}
}

func TestRootCommand_VersionFlag(t *testing.T) {
	cmd := NewRootCmd()
	cmd.Version = "test-version"
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetArgs([]string{"--version"})

	require.NoError(t, cmd.Execute())
	assert.Contains(t, buf.String(), "test-version")
}

func TestLoadConfig_MissingExplicitFile(t *testing.T) {
	configFile = "/definitely/not/here.yaml"
	t.Cleanup(func() { configFile = "" })

	cmd := NewRootCmd()
	_, err := loadConfig(cmd)
	require.Error(t, err)
}

func TestLoadConfig_DefaultPathMissingIsFine(t *testing.T) {
	configFile = ""
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())

	cfg, err := loadConfig(NewRootCmd())
	require.NoError(t, err)
	assert.Equal(t, "json", cfg.Log.Format)
}

package main

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewRootCmdWiresSubcommands(t *testing.T) {
	root := newRootCmd()
	require.Equal(t, "kbd", root.Use)

	names := map[string]bool{}
	for _, c := range root.Commands() {
		names[c.Name()] = true
	}
	require.True(t, names["serve"])
	require.True(t, names["sync"])
	require.True(t, names["routing"])
}

func TestNewRootCmdRegistersPersistentFlags(t *testing.T) {
	root := newRootCmd()
	flags := root.PersistentFlags()
	for _, name := range []string{
		"index-path", "routing-path", "sync-repo-path", "sync-interval-seconds",
		"embedding-provider", "log-path", "log-level",
	} {
		require.NotNil(t, flags.Lookup(name), "flag %q must be registered", name)
	}
}

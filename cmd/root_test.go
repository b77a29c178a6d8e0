package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommand_HasSubcommands(t *testing.T) {
	names := make(map[string]bool)
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}
	for _, name := range []string{"grid", "nearest"} {
		assert.True(t, names[name], "expected subcommand %q not found", name)
	}
}

func TestRootCommand_Metadata(t *testing.T) {
	assert.Equal(t, "sitescore", rootCmd.Use)
	assert.NotEmpty(t, rootCmd.Short)
	assert.NotEmpty(t, rootCmd.Long)
}

func TestGridCommand_HasSubcommands(t *testing.T) {
	names := make(map[string]bool)
	for _, c := range gridCmd.Commands() {
		names[c.Name()] = true
	}
	for _, name := range []string{"split", "run", "runs", "load-cells"} {
		assert.True(t, names[name], "expected grid subcommand %q not found", name)
	}
}

func TestGridSplitCommand_Flags(t *testing.T) {
	flag := gridSplitCmd.Flags().Lookup("materialize")
	require.NotNil(t, flag)
	assert.Equal(t, "false", flag.DefValue)
	require.NotNil(t, gridSplitCmd.Flags().Lookup("json"))
}

func TestGridRunCommand_Flags(t *testing.T) {
	require.NotNil(t, gridRunCmd.Flags().Lookup("resume"))
	require.NotNil(t, gridRunCmd.Flags().Lookup("label"))
}

func TestNearestCommand_Flags(t *testing.T) {
	flag := nearestCmd.Flags().Lookup("crs")
	require.NotNil(t, flag)
	assert.Equal(t, "EPSG:4326", flag.DefValue)

	k := nearestCmd.Flags().Lookup("k")
	require.NotNil(t, k)
	assert.Equal(t, "1", k.DefValue)
}

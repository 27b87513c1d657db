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
	for _, name := range []string{"serve", "nurture", "pending", "analyze"} {
		assert.True(t, names[name], "expected subcommand %q not found", name)
	}
}

func TestRootCommand_Metadata(t *testing.T) {
	assert.Equal(t, "kandidatentekort", rootCmd.Use)
	assert.NotEmpty(t, rootCmd.Short)
	assert.NotEmpty(t, rootCmd.Long)
}

func TestNurtureAndPending_Subcommands(t *testing.T) {
	sub := func(parentName string) map[string]bool {
		out := map[string]bool{}
		for _, c := range rootCmd.Commands() {
			if c.Name() != parentName {
				continue
			}
			for _, s := range c.Commands() {
				out[s.Name()] = true
			}
		}
		return out
	}
	assert.Equal(t, map[string]bool{"run": true, "status": true}, sub("nurture"))
	assert.Equal(t, map[string]bool{"list": true, "approve": true, "export": true}, sub("pending"))
}

func TestServeCommand_PortFlag(t *testing.T) {
	require.NotNil(t, serveCmd.Flags().Lookup("port"))
}

func TestAnalyzeCommand_Flags(t *testing.T) {
	for _, name := range []string{"company", "sector", "goal"} {
		assert.NotNil(t, analyzeCmd.Flags().Lookup(name), name)
	}
	assert.Error(t, analyzeCmd.Args(analyzeCmd, nil))
}

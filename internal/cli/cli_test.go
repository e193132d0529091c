package cli

import (
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommandRegistersSubcommands(t *testing.T) {
	names := map[string]bool{}
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}
	for _, want := range []string{"download", "pause", "resume", "stop"} {
		assert.True(t, names[want], "expected subcommand %q", want)
	}
}

func TestRemoteControlCommandsExplainMissingDaemon(t *testing.T) {
	for _, verb := range []string{"pause", "resume", "stop"} {
		var target *cobra.Command
		for _, c := range rootCmd.Commands() {
			if c.Name() == verb {
				target = c
			}
		}
		require.NotNil(t, target, "missing %s command", verb)

		err := target.RunE(target, []string{"1"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "daemon")
	}
}

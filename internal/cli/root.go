// Package cli is the cobra-based command line front-end: `tthsd download
// <config.yaml>` drives the in-process session manager directly;
// `pause`/`resume`/`stop` are registered but always return an error, since
// no daemon process exists for them to address.
package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

const version = "0.1.0"

var rootCmd = &cobra.Command{
	Use:     "tthsd",
	Short:   "Multi-threaded, range-based HTTP download engine",
	Version: version,
}

func init() {
	rootCmd.AddCommand(downloadCmd)
	rootCmd.AddCommand(remoteControlCmd("pause", "pause a running download session by handle"))
	rootCmd.AddCommand(remoteControlCmd("resume", "resume a paused download session by handle"))
	rootCmd.AddCommand(remoteControlCmd("stop", "stop a download session and free its handle"))
}

// Execute runs the root command with os.Args.
func Execute() error {
	return rootCmd.Execute()
}

// remoteControlCmd builds the pause/resume/stop stubs. Driving these against
// a session owned by a different OS process requires a daemon exposing the
// FFI surface over some transport; within this single-process CLI there is
// no long-lived daemon to address, so these commands document the intended
// verb and fail clearly instead of pretending to reach one.
func remoteControlCmd(verb, short string) *cobra.Command {
	return &cobra.Command{
		Use:   verb + " <handle>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return fmt.Errorf("%s requires a running daemon exposing the FFI surface; this CLI only drives in-process sessions started by 'tthsd download'", verb)
		},
	}
}

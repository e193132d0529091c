package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"tthsd/internal/config"
	"tthsd/internal/manager"
	"tthsd/internal/progressui"
)

var downloadCmd = &cobra.Command{
	Use:   "download <config.yaml>",
	Short: "Run the tasks in a YAML config to completion, showing a live progress view",
	Args:  cobra.ExactArgs(1),
	RunE:  runDownload,
}

func runDownload(cmd *cobra.Command, args []string) error {
	file, err := config.Load(args[0])
	if err != nil {
		return err
	}

	usingProgressUI := file.Sink.Type == "" || file.Sink.Type == "none" || file.Sink.Type == "callback"

	ui := progressui.NewController()
	if usingProgressUI {
		// Start the progress view before the session, so its opening
		// "start"/"startOne" events aren't dropped by a not-yet-ready sink.
		ui.Start()
	}

	cfg, err := file.SessionConfig(ui.CallbackSink())
	if err != nil {
		return fmt.Errorf("building session config: %w", err)
	}

	mgr := manager.New()
	id := mgr.Create(cfg, true)
	if id == -1 {
		return fmt.Errorf("failed to start download session")
	}

	if usingProgressUI {
		if err := ui.Wait(); err != nil {
			fmt.Fprintf(os.Stderr, "progress view exited: %v\n", err)
		}
		return nil
	}

	sess, _ := mgr.Session(id)
	<-sess.Done()
	return nil
}

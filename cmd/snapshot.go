package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"firestige.xyz/otus/internal/controlsocket"
)

var snapshotCmd = &cobra.Command{
	Use:   "snapshot",
	Short: "Dump the current SnapshotView from a running instance as JSON",
	Long: `snapshot connects to the control socket of an already-running
netwatchd instance and prints its most recent SnapshotView as JSON. It
never starts capture itself; it is a read-only consumer of the running
instance's state.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		view, err := controlsocket.FetchSnapshot(cmd.Context(), socketPath)
		if err != nil {
			exitWithError("fetch snapshot", err)
			return nil
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(view); err != nil {
			return fmt.Errorf("encode snapshot: %w", err)
		}
		return nil
	},
}

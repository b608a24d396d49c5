package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/grove/internal/syncer"
)

// NewSyncCommand creates the sync command.
func NewSyncCommand(rootOpts *RootOptions) *cobra.Command {
	var full bool

	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Reconcile the local event log with the remote store",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ws, err := openWorkspace(rootOpts)
			if err != nil {
				return err
			}
			defer ws.Close()

			var res syncer.Result
			if full {
				res, err = ws.engine.ForceFullSync(cmd.Context())
			} else {
				res, err = ws.engine.SmartSync(cmd.Context())
			}

			switch {
			case errors.Is(err, syncer.ErrNotAuthenticated):
				return WrapExitError(ExitFailure, "not authenticated: set user in the config file", nil)
			case errors.Is(err, syncer.ErrRemoteNotConfigured):
				return WrapExitError(ExitFailure, "no remote configured: set remote in the config file", nil)
			case err != nil:
				meta := ws.engine.Metadata()
				return WrapExitError(ExitFailure,
					fmt.Sprintf("sync failed (%d consecutive failures)", meta.ConsecutiveFailures), err)
			}

			return printResult(rootOpts,
				map[string]any{"pulled": res.Pulled, "pushed": res.Pushed},
				fmt.Sprintf("synced: pulled %d, pushed %d", res.Pulled, res.Pushed))
		},
	}

	cmd.Flags().BoolVar(&full, "full", false, "ignore the confirmed watermark and re-pull everything")
	return cmd
}

package cmd

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	statusadapter "github.com/patricknitsch/grohe-smarthome/internal/adapters/render/status"
	"github.com/patricknitsch/grohe-smarthome/internal/domain"
)

const staleSnapshotAfter = time.Hour

func newStatusCmd(app *app) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the devices from the last poll",
		RunE: func(cmd *cobra.Command, _ []string) error {
			snapshot, err := app.snapshots.Load(cmd.Context())
			if err != nil {
				if errors.Is(err, domain.ErrNoSnapshot) {
					_, _ = fmt.Fprintln(cmd.OutOrStdout(), "No poll data yet; start 'groheondus run' first.")
					return nil
				}
				return err
			}

			rendered, err := statusadapter.Render(snapshot, statusadapter.RenderOptions{
				Now:        app.clock.Now(),
				StaleAfter: staleSnapshotAfter,
			})
			if err != nil {
				return err
			}

			_, _ = fmt.Fprintln(cmd.OutOrStdout(), rendered)

			return nil
		},
	}
}

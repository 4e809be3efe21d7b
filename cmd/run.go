package cmd

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/patricknitsch/grohe-smarthome/internal/adapters/state"
	"github.com/patricknitsch/grohe-smarthome/internal/application"
	"github.com/patricknitsch/grohe-smarthome/internal/domain"
)

func newRunCmd(app *app) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Poll the cloud continuously until interrupted",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			if err := establishSession(ctx, app); err != nil {
				return err
			}

			sink := state.NewSnapshotSink(app.snapshots, app.clock, app.log)
			poller := application.NewPoller(app.client, sink, app.clock, app.log, application.PollerConfig{
				Interval:      app.cfg.PollInterval,
				EmitRawFields: app.cfg.EmitRawFields,
			})

			if err := poller.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}

			return nil
		},
	}
}

// establishSession adopts the persisted refresh token, falling back to an
// interactive login with the configured credentials when none is stored.
func establishSession(ctx context.Context, app *app) error {
	token, err := app.store.Load(ctx)
	switch {
	case err == nil:
		app.engine.AdoptRefreshToken(token)
		return nil

	case errors.Is(err, domain.ErrNoCredential):
		if app.cfg.Username == "" || app.cfg.Password == "" {
			return errors.New("no stored credential and no username/password configured; run 'groheondus login' first")
		}

		app.log.Info().Msg("no stored credential, performing interactive login")
		if _, err := app.engine.Login(ctx, app.cfg.Username, app.cfg.Password); err != nil {
			return fmt.Errorf("initial login: %w", err)
		}
		return nil

	default:
		return fmt.Errorf("load stored credential: %w", err)
	}
}

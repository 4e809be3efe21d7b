package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/patricknitsch/grohe-smarthome/internal/domain"
)

// applianceFlags identify the appliance a write command targets.
type applianceFlags struct {
	location  int
	room      int
	appliance string
}

func (f *applianceFlags) register(cmd *cobra.Command) {
	cmd.Flags().IntVar(&f.location, "location", 0, "Location ID")
	cmd.Flags().IntVar(&f.room, "room", 0, "Room ID")
	cmd.Flags().StringVar(&f.appliance, "appliance", "", "Appliance ID")
	_ = cmd.MarkFlagRequired("location")
	_ = cmd.MarkFlagRequired("room")
	_ = cmd.MarkFlagRequired("appliance")
}

func (f *applianceFlags) ref() domain.ApplianceRef {
	return domain.ApplianceRef{
		LocationID:  f.location,
		RoomID:      f.room,
		ApplianceID: f.appliance,
	}
}

func newCommandCmd(app *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "command",
		Short: "Send a command to an appliance",
	}

	cmd.AddCommand(
		newValveCmd(app),
		newPressureTestCmd(app),
		newDispenseCmd(app),
		newResetCmd(app),
	)

	return cmd
}

func newValveCmd(app *app) *cobra.Command {
	var flags applianceFlags
	var open bool

	cmd := &cobra.Command{
		Use:   "valve",
		Short: "Open or close the shutoff valve of a Sense Guard",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := adoptStoredSession(cmd.Context(), app); err != nil {
				return err
			}
			if err := app.client.SetValve(cmd.Context(), flags.ref(), open); err != nil {
				return fmt.Errorf("set valve: %w", err)
			}

			verb := "closed"
			if open {
				verb = "opened"
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Valve %s.\n", verb)

			return nil
		},
	}

	flags.register(cmd)
	cmd.Flags().BoolVar(&open, "open", false, "Open the valve (omit to close)")

	return cmd
}

func newPressureTestCmd(app *app) *cobra.Command {
	var flags applianceFlags

	cmd := &cobra.Command{
		Use:   "pressure-test",
		Short: "Start a pressure measurement on a Sense Guard",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := adoptStoredSession(cmd.Context(), app); err != nil {
				return err
			}
			if err := app.client.StartPressureTest(cmd.Context(), flags.ref()); err != nil {
				return fmt.Errorf("start pressure test: %w", err)
			}

			_, _ = fmt.Fprintln(cmd.OutOrStdout(), "Pressure test started.")

			return nil
		},
	}

	flags.register(cmd)

	return cmd
}

func newDispenseCmd(app *app) *cobra.Command {
	var flags applianceFlags
	var tapType, amount int

	cmd := &cobra.Command{
		Use:   "dispense",
		Short: "Dispense water from a Blue appliance",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := adoptStoredSession(cmd.Context(), app); err != nil {
				return err
			}
			if err := app.client.Dispense(cmd.Context(), flags.ref(), domain.TapType(tapType), amount); err != nil {
				return fmt.Errorf("dispense: %w", err)
			}

			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Dispensing %d ml.\n", amount)

			return nil
		},
	}

	flags.register(cmd)
	cmd.Flags().IntVar(&tapType, "type", int(domain.TapStill), "Tap type: 1 still, 2 medium, 3 carbonated")
	cmd.Flags().IntVar(&amount, "amount", 0, "Amount in ml")
	_ = cmd.MarkFlagRequired("amount")

	return cmd
}

func newResetCmd(app *app) *cobra.Command {
	var flags applianceFlags
	var kind string

	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Reset a replaced consumable on a Blue appliance",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := adoptStoredSession(cmd.Context(), app); err != nil {
				return err
			}
			if err := app.client.ResetConsumable(cmd.Context(), flags.ref(), domain.ConsumableKind(kind)); err != nil {
				return fmt.Errorf("reset consumable: %w", err)
			}

			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Consumable %q reset.\n", kind)

			return nil
		},
	}

	flags.register(cmd)
	cmd.Flags().StringVar(&kind, "kind", "", "Consumable kind: filter or co2")
	_ = cmd.MarkFlagRequired("kind")

	return cmd
}

func adoptStoredSession(ctx context.Context, app *app) error {
	token, err := app.store.Load(ctx)
	if err != nil {
		if errors.Is(err, domain.ErrNoCredential) {
			return errors.New("no stored credential; run 'groheondus login' first")
		}
		return fmt.Errorf("load stored credential: %w", err)
	}

	app.engine.AdoptRefreshToken(token)

	return nil
}

package cmd

import "github.com/spf13/cobra"

func Execute() error {
	return newRootCmd().Execute()
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "groheondus",
		Short:         "Grohe smarthome cloud client: poll Sense/Blue devices and control them",
		Long:          "groheondus maintains an authenticated session against the Grohe Ondus cloud, polls dashboard, status, consumption and pressure-test data for Sense, Sense Guard and Blue appliances, and exposes their commands (valve, dispense, pressure test, consumable reset) from the terminal.",
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	app, err := wireApp()
	if err != nil {
		rootCmd.RunE = func(_ *cobra.Command, _ []string) error {
			return err
		}
		return rootCmd
	}

	rootCmd.AddCommand(
		newVersionCmd(),
		newLoginCmd(app),
		newRunCmd(app),
		newStatusCmd(app),
		newCommandCmd(app),
	)

	return rootCmd
}

package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/codyseavey/ygo-ripper/internal/config"
)

func newConfigCommand(ctx *commandContext) *cobra.Command {
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Show and persist settings",
	}

	configCmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration as YAML",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := ctx.ensureServices(cmd.Context()); err != nil {
				return err
			}
			data, err := yaml.Marshal(ctx.config)
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(data)
			return err
		},
	})

	configCmd.AddCommand(&cobra.Command{
		Use:   "save",
		Short: "Store the current file and environment settings in the database",
		Long: `Saves the configuration built from --config and YGO_* variables so later
runs use it without them. Saved settings take precedence over the file and
the environment until "config reset".`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig(cmd.Context())
			if err != nil {
				return err
			}
			if err := ctx.ensureServices(cmd.Context()); err != nil {
				return err
			}
			if err := config.SaveSettings(cmd.Context(), ctx.store, cfg); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Settings saved")
			return nil
		},
	})

	configCmd.AddCommand(&cobra.Command{
		Use:   "reset",
		Short: "Forget saved settings",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := ctx.ensureServices(cmd.Context()); err != nil {
				return err
			}
			if err := ctx.store.Delete(cmd.Context(), config.SettingsKey); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Saved settings removed")
			return nil
		},
	})

	return configCmd
}

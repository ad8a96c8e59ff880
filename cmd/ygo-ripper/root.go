package main

import (
	"github.com/spf13/cobra"
)

// newRootCommand builds the command tree. The returned context owns the
// database and caches; close it after the command has run.
func newRootCommand() (*cobra.Command, *commandContext) {
	var configFlag string
	var metricsAddr string

	ctx := newCommandContext(&configFlag)

	rootCmd := &cobra.Command{
		Use:           "ygo-ripper",
		Short:         "Price Yu-Gi-Oh! cards and track pack openings",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if _, err := ctx.ensureConfig(cmd.Context()); err != nil {
				return err
			}
			if metricsAddr != "" {
				return ctx.startMetrics(metricsAddr)
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	rootCmd.PersistentFlags().StringVarP(&configFlag, "config", "c", "", "Configuration file path (.yaml or .toml)")
	rootCmd.PersistentFlags().StringVar(&metricsAddr, "metrics-addr", "", "Serve prometheus metrics on this address (e.g. :9090)")

	rootCmd.AddCommand(newPriceCommand(ctx))
	rootCmd.AddCommand(newSetsCommand(ctx))
	rootCmd.AddCommand(newCardsCommand(ctx))
	rootCmd.AddCommand(newRipCommand(ctx))
	rootCmd.AddCommand(newSessionCommand(ctx))
	rootCmd.AddCommand(newCacheCommand(ctx))
	rootCmd.AddCommand(newConfigCommand(ctx))

	return rootCmd, ctx
}

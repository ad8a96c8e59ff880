package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/codyseavey/ygo-ripper/internal/storage"
)

func newCacheCommand(ctx *commandContext) *cobra.Command {
	cacheCmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect and clear the price and image caches",
	}

	cacheCmd.AddCommand(newCacheInfoCommand(ctx))
	cacheCmd.AddCommand(newCacheClearCommand(ctx))

	return cacheCmd
}

func newCacheInfoCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "info",
		Short: "Show cache usage",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := ctx.ensureServices(cmd.Context()); err != nil {
				return err
			}
			prices := ctx.prices.Stats()
			images := ctx.images.Stats(cmd.Context())

			enabled := "yes"
			if !prices.Enabled {
				enabled = "no"
			}
			lastPersisted := prices.LastPersistedAt
			if lastPersisted == "" {
				lastPersisted = "never"
			}
			rows := [][]string{
				{"Price cache enabled", enabled},
				{"Price entries", fmt.Sprintf("%d / %d", prices.Entries, prices.MaxEntries)},
				{"Price history keys", strconv.Itoa(prices.HistoryKeys)},
				{"Price hits / misses", fmt.Sprintf("%d / %d", prices.Hits, prices.Misses)},
				{"Snapshot every", fmt.Sprintf("%d writes", prices.SnapshotEveryN)},
				{"Last snapshot", lastPersisted},
				{"Images in memory", fmt.Sprintf("%d / %d", images.MemoryEntries, images.MaxEntries)},
				{"Images stored", strconv.Itoa(images.PersistentEntries)},
				{"Broken image URLs", strconv.Itoa(images.NegativeEntries)},
			}
			if db, ok := ctx.store.(*storage.DBStore); ok {
				entries, size := db.Stats(cmd.Context())
				rows = append(rows, []string{"Stored entries", fmt.Sprintf("%d (%d KiB)", entries, size/1024)})
			}
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, renderTable(out, []string{"Cache", "Value"}, rows, []columnAlignment{alignLeft, alignRight}))
			return nil
		},
	}
}

func newCacheClearCommand(ctx *commandContext) *cobra.Command {
	var pricesOnly, imagesOnly bool
	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Clear the caches, in memory and on disk",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := ctx.ensureServices(cmd.Context()); err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if !imagesOnly {
				ctx.prices.ClearCache(cmd.Context())
				fmt.Fprintln(out, "Price cache cleared")
			}
			if !pricesOnly {
				ctx.images.ClearCache(cmd.Context())
				fmt.Fprintln(out, "Image cache cleared")
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&pricesOnly, "prices", false, "Only clear prices and price history")
	cmd.Flags().BoolVar(&imagesOnly, "images", false, "Only clear card images")
	cmd.MarkFlagsMutuallyExclusive("prices", "images")
	return cmd
}

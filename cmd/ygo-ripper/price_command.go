package main

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/codyseavey/ygo-ripper/internal/models"
)

func newPriceCommand(ctx *commandContext) *cobra.Command {
	var q models.CardQuery
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "price <card-number> <rarity>",
		Short: "Look up the market price of a card",
		Example: `  ygo-ripper price LOB-EN001 "Ultra Rare"
  ygo-ripper price RA01-EN054 "Quarter Century Secret Rare" --variant 2 --refresh`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := ctx.ensureServices(cmd.Context()); err != nil {
				return err
			}
			q.CardNumber = args[0]
			q.Rarity = args[1]

			res, err := ctx.prices.Lookup(cmd.Context(), q)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(res)
			}

			rec := res.Record
			source := "backend"
			if res.FromCache {
				source = fmt.Sprintf("cache (%s old)", res.CacheAge.Round(time.Second))
			}
			rows := [][]string{
				{"Card", strings.TrimSpace(rec.CardName + " " + rec.CardNumber)},
				{"Rarity", rec.CardRarity},
				{"Set", rec.SetName},
				{"TCG low", priceText(rec.TCGPrice)},
				{"TCG market", priceText(rec.TCGMarketPrice)},
				{"Average", formatMoney(rec.AveragePrice)},
				{"Median", formatMoney(rec.MedianPrice)},
				{"Range", formatMoney(rec.PriceRange)},
				{"Confidence", strconv.FormatFloat(rec.Confidence, 'f', 2, 64)},
				{"Source", source},
			}
			if history := ctx.prices.History(q); len(history) > 1 {
				first, last := history[0], history[len(history)-1]
				rows = append(rows, []string{"History", fmt.Sprintf("%d samples, %s -> %s", len(history), formatMoney(first.Price), formatMoney(last.Price))})
			}
			fmt.Fprintln(out, renderTable(out, []string{"Field", "Value"}, rows, nil))
			return nil
		},
	}

	cmd.Flags().StringVar(&q.ArtVariant, "variant", "", "Art variant (e.g. 1, 2, arkana)")
	cmd.Flags().StringVar(&q.Condition, "condition", "", "Card condition (default from config)")
	cmd.Flags().StringVar(&q.CardName, "name", "", "Card name, helps the backend disambiguate")
	cmd.Flags().BoolVar(&q.ForceRefresh, "refresh", false, "Bypass the cache and ask the backend")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the lookup result as JSON")
	return cmd
}

func priceText(p models.Price) string {
	v, ok := p.Float()
	if !ok {
		return "-"
	}
	return formatMoney(&v)
}

package main

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/codyseavey/ygo-ripper/internal/models"
)

func newSetsCommand(ctx *commandContext) *cobra.Command {
	var search string

	cmd := &cobra.Command{
		Use:   "sets",
		Short: "List the sets known to the pricing backend",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := ctx.ensureServices(cmd.Context()); err != nil {
				return err
			}
			var sets []models.CardSet
			var err error
			if strings.TrimSpace(search) != "" {
				sets, err = ctx.client.SearchSets(cmd.Context(), search)
			} else {
				sets, err = ctx.client.ListSets(cmd.Context())
			}
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if len(sets) == 0 {
				fmt.Fprintln(out, "No sets found")
				return nil
			}
			rows := make([][]string, 0, len(sets))
			for _, s := range sets {
				rows = append(rows, []string{s.SetCode, s.SetName, strconv.Itoa(s.NumOfCards), s.TCGDate})
			}
			fmt.Fprintln(out, renderTable(out, []string{"Code", "Name", "Cards", "Released"}, rows,
				[]columnAlignment{alignLeft, alignLeft, alignRight, alignLeft}))
			return nil
		},
	}
	cmd.Flags().StringVarP(&search, "search", "s", "", "Only show sets matching this term")
	return cmd
}

func newCardsCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "cards <set>",
		Short: "List the cards of a set and their printings",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := ctx.ensureServices(cmd.Context()); err != nil {
				return err
			}
			set, err := ctx.findSet(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			catalog, err := ctx.client.SetCards(cmd.Context(), set.SetName)
			if err != nil {
				return err
			}

			var rows [][]string
			for _, card := range catalog {
				for _, p := range card.PrintingsIn(set.SetCode) {
					rows = append(rows, []string{p.SetCode, card.Name, p.SetRarity})
				}
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s (%s): %d cards\n", set.SetName, set.SetCode, len(catalog))
			fmt.Fprintln(out, renderTable(out, []string{"Number", "Name", "Rarity"}, rows, nil))
			return nil
		},
	}
}

// findSet resolves a set by exact name or code, falling back to the first
// search result
func (c *commandContext) findSet(ctx context.Context, nameOrCode string) (models.CardSet, error) {
	term := strings.TrimSpace(nameOrCode)
	if term == "" {
		return models.CardSet{}, fmt.Errorf("set name is required")
	}
	sets, err := c.client.SearchSets(ctx, term)
	if err != nil {
		return models.CardSet{}, err
	}
	if len(sets) == 0 {
		return models.CardSet{}, fmt.Errorf("no set matches %q", term)
	}
	for _, s := range sets {
		if strings.EqualFold(s.SetName, term) || strings.EqualFold(s.SetCode, term) {
			return s, nil
		}
	}
	return sets[0], nil
}

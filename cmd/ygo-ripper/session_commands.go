package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/codyseavey/ygo-ripper/internal/models"
	"github.com/codyseavey/ygo-ripper/internal/services"
)

func newSessionCommand(ctx *commandContext) *cobra.Command {
	sessionCmd := &cobra.Command{
		Use:   "session",
		Short: "Inspect and edit pack sessions",
	}

	sessionCmd.AddCommand(newSessionListCommand(ctx))
	sessionCmd.AddCommand(newSessionShowCommand(ctx))
	sessionCmd.AddCommand(newSessionExportCommand(ctx))
	sessionCmd.AddCommand(newSessionAddCommand(ctx))
	sessionCmd.AddCommand(newSessionQuantityCommand(ctx))
	sessionCmd.AddCommand(newSessionRemoveCommand(ctx))
	sessionCmd.AddCommand(newSessionEndCommand(ctx))
	sessionCmd.AddCommand(newSessionRepriceCommand(ctx))
	sessionCmd.AddCommand(newSessionRefreshCommand(ctx))

	return sessionCmd
}

// sessionArg returns the session named by args, or the active session, or
// the most recent one
func (c *commandContext) sessionArg(ctx context.Context, args []string) (*models.PackSession, error) {
	if len(args) > 0 {
		return c.sessions.GetSession(ctx, args[0])
	}
	session, err := c.sessions.ActiveSession(ctx)
	if !errors.Is(err, services.ErrNoActiveSession) {
		return session, err
	}
	recent, err := c.sessions.ListSessions(ctx, 1)
	if err != nil {
		return nil, err
	}
	if len(recent) == 0 {
		return nil, services.ErrSessionNotFound
	}
	return c.sessions.GetSession(ctx, recent[0].ID)
}

func newSessionListCommand(ctx *commandContext) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recent sessions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := ctx.ensureServices(cmd.Context()); err != nil {
				return err
			}
			sessions, err := ctx.sessions.ListSessions(cmd.Context(), limit)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(sessions) == 0 {
				fmt.Fprintln(out, "No sessions")
				return nil
			}
			rows := make([][]string, 0, len(sessions))
			for _, s := range sessions {
				rows = append(rows, []string{s.ID, s.SetName, string(s.Status), s.CreatedAt.Local().Format("2006-01-02 15:04")})
			}
			fmt.Fprintln(out, renderTable(out, []string{"ID", "Set", "Status", "Started"}, rows, nil))
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Number of sessions to show")
	return cmd
}

func newSessionShowCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "show [session-id]",
		Short: "Show the cards of a session (default: active or latest)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := ctx.ensureServices(cmd.Context()); err != nil {
				return err
			}
			session, err := ctx.sessionArg(cmd.Context(), args)
			if err != nil {
				return err
			}
			printSession(cmd.OutOrStdout(), session)
			return nil
		},
	}
}

func newSessionExportCommand(ctx *commandContext) *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "export [session-id]",
		Short: "Write a session's cards as CSV",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := ctx.ensureServices(cmd.Context()); err != nil {
				return err
			}
			session, err := ctx.sessionArg(cmd.Context(), args)
			if err != nil {
				return err
			}

			if output == "" || output == "-" {
				return ctx.sessions.ExportCSV(cmd.Context(), session.ID, cmd.OutOrStdout())
			}
			f, err := os.Create(output)
			if err != nil {
				return err
			}
			if err := ctx.sessions.ExportCSV(cmd.Context(), session.ID, f); err != nil {
				f.Close()
				return err
			}
			if err := f.Close(); err != nil {
				return err
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "Exported %d cards to %s\n", len(session.Cards), output)
			return nil
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "Output file (default stdout)")
	return cmd
}

func newSessionAddCommand(ctx *commandContext) *cobra.Command {
	var card models.SessionCard
	var price bool
	cmd := &cobra.Command{
		Use:   "add <card-name>",
		Short: "Add a card to the active session by hand",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := ctx.ensureServices(cmd.Context()); err != nil {
				return err
			}
			session, err := ctx.sessions.ActiveSession(cmd.Context())
			if err != nil {
				return err
			}
			card.CardName = args[0]
			card.Source = models.SessionCardManual
			stored, err := ctx.sessions.AddCard(cmd.Context(), session.ID, card)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Added %s (x%d) as %s\n", stored.CardName, stored.Quantity, stored.ID)

			if !price || stored.CardNumber == "" || stored.Rarity == "" {
				return nil
			}
			res, err := ctx.prices.Lookup(cmd.Context(), stored.Query())
			if err != nil {
				fmt.Fprintf(out, "No price: %v\n", err)
				return ctx.sessions.RecordPriceError(cmd.Context(), stored.ID, err)
			}
			fmt.Fprintf(out, "Priced at %s\n", formatMoney(res.Record.AveragePrice))
			return ctx.sessions.ApplyPrice(cmd.Context(), stored.ID, res.Record)
		},
	}
	cmd.Flags().StringVar(&card.CardNumber, "number", "", "Card number (e.g. LOB-EN001)")
	cmd.Flags().StringVar(&card.Rarity, "rarity", "", "Rarity")
	cmd.Flags().StringVar(&card.ArtVariant, "variant", "", "Art variant")
	cmd.Flags().IntVarP(&card.Quantity, "quantity", "q", 1, "Number of copies")
	cmd.Flags().BoolVar(&price, "price", true, "Look up the price after adding")
	return cmd
}

func newSessionQuantityCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "quantity <card-id> <n>",
		Short: "Set how many copies of a card were pulled (0 removes it)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			n, err := strconv.Atoi(args[1])
			if err != nil {
				return fmt.Errorf("quantity must be a number: %w", err)
			}
			if err := ctx.ensureServices(cmd.Context()); err != nil {
				return err
			}
			return ctx.sessions.SetQuantity(cmd.Context(), args[0], n)
		},
	}
}

func newSessionRemoveCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "remove <card-id>",
		Short: "Remove a card from its session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := ctx.ensureServices(cmd.Context()); err != nil {
				return err
			}
			return ctx.sessions.RemoveCard(cmd.Context(), args[0])
		},
	}
}

func newSessionEndCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "end",
		Short: "End the active session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := ctx.ensureServices(cmd.Context()); err != nil {
				return err
			}
			active, err := ctx.sessions.ActiveSession(cmd.Context())
			if err != nil {
				return err
			}
			ended, err := ctx.sessions.EndSession(cmd.Context(), active.ID)
			if err != nil {
				return err
			}
			printSession(cmd.OutOrStdout(), ended)
			return nil
		},
	}
}

func newSessionRepriceCommand(ctx *commandContext) *cobra.Command {
	var batchSize int
	cmd := &cobra.Command{
		Use:   "reprice [session-id]",
		Short: "Price cards that are unpriced, failed or older than a day",
		Long: `Looks up prices for session cards that have none yet, whose last lookup
failed, or whose price is older than a day. Without a session id every
session is covered.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := ctx.ensureServices(cmd.Context()); err != nil {
				return err
			}
			sessionID := ""
			if len(args) > 0 {
				sessionID = args[0]
			}
			worker := services.NewPriceWorker(ctx.sessions, ctx.prices)
			worker.SetBatch(batchSize, 0)

			updated, err := worker.UpdateBatch(cmd.Context(), sessionID)
			if err != nil {
				return err
			}
			status := worker.GetStatus()
			fmt.Fprintf(cmd.OutOrStdout(), "Updated %d cards, %d failed\n", updated, status.CardsFailed)
			return nil
		},
	}
	cmd.Flags().IntVarP(&batchSize, "batch", "b", 100, "Maximum number of cards to price")
	return cmd
}

func newSessionRefreshCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "refresh <card-id>",
		Short: "Fetch a fresh price for one card",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := ctx.ensureServices(cmd.Context()); err != nil {
				return err
			}
			card, err := services.NewPriceWorker(ctx.sessions, ctx.prices).UpdateCard(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s: %s\n", card.CardName, card.Rarity, formatMoney(card.AveragePrice))
			return nil
		},
	}
}

func printSession(out io.Writer, s *models.PackSession) {
	if s == nil {
		return
	}
	fmt.Fprintf(out, "%s (%s) %s, started %s\n", s.SetName, s.SetCode, s.Status, s.CreatedAt.Local().Format("2006-01-02 15:04"))
	if len(s.Cards) == 0 {
		fmt.Fprintln(out, "No cards")
		return
	}

	rows := make([][]string, 0, len(s.Cards)+1)
	for _, c := range s.Cards {
		var value *float64
		if c.AveragePrice != nil {
			v := *c.AveragePrice * float64(c.Quantity)
			value = &v
		}
		price := formatMoney(c.AveragePrice)
		if c.AveragePrice == nil && c.PriceError != "" {
			price = "error"
		}
		rows = append(rows, []string{c.ID, c.CardName, c.CardNumber, c.Rarity, strconv.Itoa(c.Quantity), price, formatMoney(value)})
	}
	totals := s.Totals()
	rows = append(rows, []string{"", "Total", "", "", strconv.Itoa(totals.TotalCards), "", formatMoney(&totals.TotalValue)})

	fmt.Fprintln(out, renderTable(out, []string{"ID", "Card", "Number", "Rarity", "Qty", "Price", "Value"}, rows,
		[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft, alignRight, alignRight, alignRight}))
}

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/codyseavey/ygo-ripper/internal/services"
	"github.com/codyseavey/ygo-ripper/internal/voice"
)

// ripIdleTimeout keeps the recognizer from cycling while nobody dictates
const ripIdleTimeout = time.Hour

func newRipCommand(ctx *commandContext) *cobra.Command {
	var inputPath string
	var threshold int

	cmd := &cobra.Command{
		Use:   "rip <set>",
		Short: "Record a pack opening from dictated card names",
		Long: `Starts a pack session for the set and reads one dictated card per line
from stdin (or --input), typically the output of a speech-to-text tool.

Clear matches are added right away. Otherwise the candidate printings are
listed; answer with a number ("2", "option two") or "cancel". Saying a rarity
("blue eyes white dragon secret rare") picks that printing. The session ends
when the input ends.`,
		Args: cobra.ExactArgs(1),
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

			input := cmd.InOrStdin()
			if inputPath != "" {
				f, err := os.Open(inputPath)
				if err != nil {
					return err
				}
				defer f.Close()
				input = f
			}

			cfg := ctx.config
			vcfg := cfg.VoiceSettings()
			vcfg.Timeout = ripIdleTimeout
			recognizer := voice.New(voice.NewLineEngine(input), vcfg)
			defer recognizer.Close()

			if !cmd.Flags().Changed("threshold") {
				threshold = cfg.Voice.AutoConfirmThreshold
			}
			ripper := services.NewRipperService(recognizer, services.NewCardResolver(threshold), ctx.sessions, ctx.prices, ctx.images)
			defer ripper.Close()

			session, err := ripper.Begin(cmd.Context(), set, catalog)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Ripping %s (%s), session %s\n", set.SetName, set.SetCode, session.ID)

			printed := make(chan struct{})
			go func() {
				defer close(printed)
				for ev := range ripper.Events() {
					printRipperEvent(out, ev)
				}
			}()

			runErr := ripper.Run(cmd.Context())
			ended, endErr := ripper.End(context.WithoutCancel(cmd.Context()))
			ripper.Close()
			<-printed

			if endErr != nil {
				return errors.Join(runErr, endErr)
			}
			printSession(out, ended)
			return runErr
		},
	}

	cmd.Flags().StringVarP(&inputPath, "input", "i", "", "Read dictation from this file instead of stdin")
	cmd.Flags().IntVar(&threshold, "threshold", 0, "Auto-confirm score (0-100, default from config)")
	return cmd
}

func printRipperEvent(out io.Writer, ev services.RipperEvent) {
	switch ev.Type {
	case services.RipperCardAdded:
		c := ev.Card
		fmt.Fprintf(out, "+ %s %s %s (x%d, %s %d)\n", c.CardName, c.CardNumber, c.Rarity, c.Quantity, c.Source, c.MatchScore)
	case services.RipperPrompt:
		fmt.Fprintf(out, "? %q matches several printings:\n", ev.Transcript)
		for _, opt := range ev.Prompt.Options {
			fmt.Fprintf(out, "  %d) %s %s %s (%d)\n", opt.Number, opt.CardName, opt.CardNumber, opt.Rarity, opt.Score)
		}
		fmt.Fprintln(out, "  say a number, or cancel")
	case services.RipperNotFound:
		fmt.Fprintf(out, "- no card matches %q\n", ev.Transcript)
	case services.RipperRejected:
		fmt.Fprintln(out, "x cancelled")
	case services.RipperPriced:
		if ev.Err != nil {
			fmt.Fprintf(out, "! no price for %s: %v\n", ev.Card.CardName, ev.Err)
			return
		}
		fmt.Fprintf(out, "$ %s %s: %s\n", ev.Card.CardName, ev.Card.Rarity, formatMoney(ev.Card.AveragePrice))
	case services.RipperError:
		if ev.Err != nil && !errors.Is(ev.Err, &voice.Error{Kind: voice.ErrorAborted}) {
			fmt.Fprintf(out, "! %v\n", ev.Err)
		}
	}
}

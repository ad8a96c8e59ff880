// ygo-ripper prices Yu-Gi-Oh! cards and records pack openings.
//
// Usage:
//
//	ygo-ripper price LOB-EN001 "Ultra Rare"
//	ygo-ripper sets --search "blue eyes"
//	ygo-ripper rip "Legend of Blue Eyes White Dragon" < dictation.txt
//	ygo-ripper session export --output pulls.csv
//	ygo-ripper cache info
//
// The pricing backend is read from YGO_API_URL or the config file.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cmd, cc := newRootCommand()
	err := cmd.ExecuteContext(ctx)
	if cerr := cc.close(context.WithoutCancel(ctx)); err == nil {
		err = cerr
	}
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			fmt.Fprintln(os.Stderr, err)
		}
		os.Exit(1)
	}
}

package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"
)

// WithInterrupt returns a Context that is canceled when a SIGINT or
// SIGTERM is received.
func WithInterrupt(ctx context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(ctx)
	go func() {
		defer cancel()
		ch := make(chan os.Signal, 1)
		signal.Notify(ch, os.Interrupt, syscall.SIGTERM)
		defer signal.Stop(ch)
		select {
		case <-ch:
		case <-ctx.Done():
		}
	}()
	return ctx, cancel
}

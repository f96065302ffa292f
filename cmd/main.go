package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/yungbote/deckrebuild-backend/internal/app"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to init app: %v\n", err)
		os.Exit(1)
	}

	a.Log.Info("Deck rebuild worker starting", "dispatch", a.Cfg.Dispatch, "concurrency", a.Cfg.Worker.Concurrency)
	code := 0
	if err := a.RunWorker(ctx); err != nil && ctx.Err() == nil {
		a.Log.Error("Worker stopped", "error", err)
		code = 1
	} else {
		a.Log.Info("Deck rebuild worker stopped")
	}
	a.Close()
	os.Exit(code)
}

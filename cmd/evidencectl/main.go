package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/yungbote/evidence-backend/internal/app"
	"github.com/yungbote/evidence-backend/internal/cli"
)

func open(ctx context.Context) (*cli.Backend, error) {
	a, err := app.New(ctx)
	if err != nil {
		return nil, fmt.Errorf("init app: %w", err)
	}
	return &cli.Backend{
		Batch: a.Services.Batch,
		Cases: a.Services.Consistency,
		Close: a.Close,
	}, nil
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := cli.NewRootCmd(open).ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "evidencectl: %v\n", err)
		stop()
		os.Exit(1)
	}
}

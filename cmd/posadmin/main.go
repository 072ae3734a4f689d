package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"

	"github.com/openpos/companysync/internal/cli"
	"github.com/openpos/companysync/internal/config"
	"github.com/openpos/companysync/internal/logging"
)

func main() {
	cfg := config.LoadConfig()
	logger := logging.New(logging.ParseLevel(cfg.LogLevel))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := cli.NewApp(cfg, logger)
	if err != nil {
		log.Fatalf("%v", err)
	}
	defer app.Close()

	if err := app.Run(ctx); err != nil {
		log.Fatalf("%v", err)
	}
}

package main

import (
	"context"
	"os"

	"github.com/dmitrijs2005/slotkeeper/internal/engine"
	"github.com/dmitrijs2005/slotkeeper/internal/engine/config"
	"github.com/dmitrijs2005/slotkeeper/internal/logging"
)

func main() {

	ctx := context.Background()
	cfg := config.LoadConfig()

	// stdout carries the report, logs go to stderr
	logger := logging.NewJSON(os.Stderr, cfg.LogLevel)

	app, err := engine.NewApp(ctx, cfg, logger, os.Stdout)
	if err != nil {
		logger.Error(ctx, "init failed", "error", err)
		os.Exit(engine.Fail(os.Stdout, err))
	}

	code := app.Run(ctx)
	if err := app.Close(); err != nil {
		logger.Warn(ctx, "closing database", "error", err)
	}
	os.Exit(code)
}

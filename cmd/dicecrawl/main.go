// Package main runs the dicecrawl server: a Telnet dice combat game with
// optional snapshot replication and a PostgreSQL combat journal.
package main

import (
	"context"
	"flag"
	"log"
	"time"

	"go.uber.org/zap"

	"github.com/cory-johannsen/dicecrawl/internal/config"
)

func main() {
	start := time.Now()

	configPath := flag.String("config", "configs/dev.yaml", "path to configuration file")
	envFile := flag.String("env", ".env", "optional dotenv file loaded before the config")
	flag.Parse()

	if err := config.LoadEnvFiles(*envFile); err != nil {
		log.Fatalf("loading env: %v", err)
	}
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("loading config: %v", err)
	}

	ctx := context.Background()
	app, cleanup, err := initializeApp(ctx, cfg)
	if err != nil {
		log.Fatalf("initializing server: %v", err)
	}
	defer cleanup()

	app.logger.Info("dicecrawl starting",
		zap.String("telnet_addr", cfg.Telnet.Addr()),
		zap.String("sync_mode", cfg.Sync.Mode),
		zap.Bool("journal", cfg.Journal.Enabled),
		zap.Duration("startup", time.Since(start)),
	)
	if err := app.Run(ctx); err != nil {
		app.logger.Error("server stopped with error", zap.Error(err))
	}
}

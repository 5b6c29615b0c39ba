package main

import (
	"flag"
	"fmt"
	"os"

	"DemandCast/internal/di"
	"DemandCast/pkg/config"
	"DemandCast/pkg/logger"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "config file path")
	flag.Parse()

	cfg, err := config.LoadWithEnv(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config load failed: %v\n", err)
		os.Exit(1)
	}

	// Wire DI: Initialize all dependencies
	app, err := di.InitializeApp(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "app initialization failed: %v\n", err)
		os.Exit(1)
	}

	l := app.Logger()
	l.Info("demandcast starting",
		logger.String("cache", cfg.Cache.Backend),
		logger.Bool("clickhouse", cfg.ClickHouse.Enabled),
		logger.Bool("postgres", cfg.Postgres.Enabled),
		logger.Bool("kafka", cfg.Kafka.Enabled),
		logger.Bool("queue", cfg.Queue.Enabled),
		logger.Int("port", cfg.Server.Port),
	)

	// Run application (blocks until signal)
	if err := app.Run(); err != nil {
		l.Error("app error", logger.Error(err))
		os.Exit(1)
	}
}

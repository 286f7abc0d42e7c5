package main

import (
	"log"

	"hsmtrust/internal/config"
	"hsmtrust/internal/infra/db"
	httpinfra "hsmtrust/internal/infra/http"
	"hsmtrust/internal/infra/logging"
)

func main() {
	cfg := config.FromEnv()
	logger := logging.New(cfg.LogLevel)

	store, err := db.NewStore(cfg)
	if err != nil {
		log.Fatalf("failed to init store: %v", err)
	}

	logger.Info("starting hsmtrustd",
		"addr", cfg.HTTPAddr,
		"redis", cfg.RedisAddr,
		"freshness_window", cfg.FreshnessWindow(),
	)

	srv := httpinfra.NewServer(cfg, store, logger)
	if err := srv.Run(); err != nil {
		log.Fatalf("server exited: %v", err)
	}
}

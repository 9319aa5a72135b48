package main

import (
	"context"

	"github.com/pairmatch/ledger/internal/app"
	"github.com/pairmatch/ledger/internal/cache"
	"github.com/pairmatch/ledger/internal/config"
	"github.com/pairmatch/ledger/internal/db"
	"github.com/pairmatch/ledger/internal/logger"
	"github.com/pairmatch/ledger/internal/server"
	"github.com/pairmatch/ledger/internal/service/ledger"
)

func main() {
	cfg := config.New()

	// Init logger (global singleton)
	logger.InitFromConfig(cfg)
	log := logger.L()

	// Init DB
	database, err := db.NewDB(cfg)
	if err != nil {
		log.Error("failed to init db", "err", err)
		return
	}

	// Init Redis
	redisCache := cache.NewRedisCache(cfg)
	if err := redisCache.Ping(context.Background()); err != nil {
		log.Error("failed to connect to redis", "err", err)
		return
	}

	appCtx := app.New(database, redisCache, log, cfg)

	registrars := []server.Registrar{
		ledger.NewRegistrar(appCtx),
	}

	addr := cfg.HTTP.Host + ":" + cfg.HTTP.Port
	log.Info("starting http server", "addr", addr,
		"require_mutual_for_message", cfg.Policy.RequireMutualForMessage)

	if err := server.Start(appCtx, registrars...); err != nil {
		log.Error("http server stopped", "err", err)
	}
}

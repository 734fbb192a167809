package main

import (
	"time"

	"ledger-reconciliation-backend/internal/config"
	handler "ledger-reconciliation-backend/internal/handlers"
	"ledger-reconciliation-backend/internal/hints"
	"ledger-reconciliation-backend/internal/ledger"
	"ledger-reconciliation-backend/internal/logger"
	"ledger-reconciliation-backend/internal/routes"
	service "ledger-reconciliation-backend/internal/services/reconciliation"
	"ledger-reconciliation-backend/internal/services/writeback"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

func main() {
	cfg, err := config.Load()
	log := logger.New("info")
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}
	log = logger.New(cfg.LogLevel)
	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}

	db, err := config.InitDB(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect database")
	}
	if err := config.Migrate(db); err != nil {
		log.Fatal().Err(err).Msg("failed to migrate database")
	}

	ledgers := ledger.NewHTTPFactory(ledger.ClientConfig{
		Timeout:           cfg.Matching.Timeout,
		RequestsPerSecond: cfg.Matching.RequestsPerSecond,
	})

	store, err := hints.Open(cfg.Hints.CachePath)
	if err != nil {
		log.Fatal().Err(err).Str("path", cfg.Hints.CachePath).Msg("failed to open hint cache")
	}
	defer store.Close()

	var rules *hints.Rules
	if cfg.Hints.RulesPath != "" {
		if rules, err = hints.LoadRules(cfg.Hints.RulesPath); err != nil {
			log.Fatal().Err(err).Str("path", cfg.Hints.RulesPath).Msg("failed to load hint rules")
		}
	}

	reconService := service.NewReconciliationService(db, ledgers, cfg.Matching, log)
	writeBackService := writeback.NewWriteBackService(db, ledgers, hints.NewSuggester(store, rules, log), cfg.Matching.Timeout, log)

	r := gin.New()
	r.Use(gin.Recovery(), logger.GinMiddleware(log))
	// CORS config
	r.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.AllowedOrigins,
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE"},
		AllowHeaders:     []string{"Origin", "Content-Type", handler.UserIDHeader},
		ExposeHeaders:    []string{"Content-Length", logger.RequestIDHeader},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	routes.RegisterRoutes(r, reconService, writeBackService)

	log.Info().Str("port", cfg.Port).Msg("server starting")
	if err := r.Run(":" + cfg.Port); err != nil {
		log.Fatal().Err(err).Msg("server stopped")
	}
}

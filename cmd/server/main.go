// Command server runs the conversational commerce backend: the WhatsApp
// webhook, the web widget API, the dealer dashboard endpoints, and the
// background jobs that expire idle sessions and rebuild the vehicle search
// index.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"github.com/autoconversa/go-dealer-chat/internal/assistant"
	"github.com/autoconversa/go-dealer-chat/internal/channel"
	"github.com/autoconversa/go-dealer-chat/internal/config"
	"github.com/autoconversa/go-dealer-chat/internal/guard"
	httpapi "github.com/autoconversa/go-dealer-chat/internal/http"
	"github.com/autoconversa/go-dealer-chat/internal/jobs"
	"github.com/autoconversa/go-dealer-chat/internal/observability"
	"github.com/autoconversa/go-dealer-chat/internal/repo"
	"github.com/autoconversa/go-dealer-chat/internal/services"
	"github.com/autoconversa/go-dealer-chat/internal/sysutil"
	"github.com/autoconversa/go-dealer-chat/internal/vectorstore"
	"github.com/autoconversa/go-dealer-chat/internal/ws"
)

const version = "1.0.0"

func main() {
	// Optional .env for local development; real deployments use the
	// environment directly.
	_ = godotenv.Load()

	cfg := config.MustLoad()

	sysutil.SetLogLevel(cfg.LogLevel)
	zerolog.TimeFieldFormat = time.RFC3339
	logger := zerolog.New(os.Stdout).With().Timestamp().
		Str("service", sysutil.FirstNonEmpty(cfg.OTEL.ServiceName, "go-dealer-chat")).
		Logger()
	if cfg.LogPretty {
		logger = logger.Output(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339})
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownOTel, err := observability.SetupOTel(ctx, cfg.OTEL, version)
	if err != nil {
		logger.Fatal().Err(err).Msg("otel setup failed")
	}
	defer func() {
		c, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownOTel(c); err != nil {
			logger.Warn().Err(err).Msg("otel shutdown")
		}
	}()

	db, err := repo.OpenSQLite(cfg.DBPath)
	if err != nil {
		logger.Fatal().Err(err).Str("path", cfg.DBPath).Msg("open database failed")
	}
	if err := repo.AutoMigrate(db); err != nil {
		logger.Fatal().Err(err).Msg("migrations failed")
	}
	if _, err := repo.EnsureDefaultConfig(ctx, db, "Asistente", "", "es"); err != nil {
		logger.Fatal().Err(err).Msg("default configuration seed failed")
	}

	// Assistant: Gemini when an API key is configured, otherwise the
	// built-in keyword assistant so the service stays usable offline.
	var (
		assist assistant.Assistant
		emb    assistant.Embedder
	)
	if cfg.Assistant.GeminiAPIKey != "" {
		gem, err := assistant.NewGemini(ctx,
			cfg.Assistant.GeminiAPIKey,
			cfg.Assistant.Model,
			cfg.Assistant.EmbeddingModel,
			cfg.Assistant.ConfidenceThreshold,
		)
		if err != nil {
			logger.Fatal().Err(err).Msg("gemini client failed")
		}
		defer gem.Close()
		assist, emb = gem, gem
		logger.Info().Str("model", cfg.Assistant.Model).Msg("assistant: gemini")
	} else {
		assist = assistant.NewStatic(cfg.Assistant.ConfidenceThreshold)
		emb = assistant.NewStaticEmbedder(64)
		logger.Info().Msg("assistant: static (no GEMINI_API_KEY)")
	}

	store := vectorstore.New(db, vectorstore.WithIndexMinRows(cfg.Vector.IndexRebuildMinRows))

	hub := ws.NewHub(logger)
	go hub.Run(ctx)

	sessions := services.NewSessionService(db, hub, cfg.Pipeline.SessionTimeout, logger)
	leads := services.NewLeadService(db, cfg.Assistant.LeadScoreThreshold, logger)
	vehicles := services.NewVehicleService(store, emb, cfg.Vector.DefaultTopK)
	dispatch := &services.DispatchService{
		DB:              db,
		Sessions:        sessions,
		Quick:           services.NewQuickResponseService(db, logger),
		Leads:           leads,
		Vehicles:        vehicles,
		Assist:          assist,
		Limiter:         guard.NewLimiter(cfg.Pipeline.RatePerMinute, cfg.Pipeline.RateBurst),
		Geo:             guard.NewGeoFilter(cfg.Pipeline.AllowedCountries),
		Log:             logger,
		MaxHistory:      cfg.Assistant.MaxHistoryMessages,
		MaxMessageRunes: 4096,
		AssistTimeout:   cfg.Assistant.Timeout,
	}

	var wa *channel.WhatsApp
	if cfg.WhatsApp.AccessToken != "" && cfg.WhatsApp.PhoneNumberID != "" {
		wa = channel.NewWhatsApp(cfg.WhatsApp)
	} else {
		logger.Warn().Msg("whatsapp channel disabled: credentials not configured")
	}

	// DISABLE_JOBS turns the background sweeps off for one-off tooling runs
	// against a shared database.
	sched := jobs.NewScheduler(logger)
	if !sysutil.IsTruthy(os.Getenv("DISABLE_JOBS")) {
		if err := sched.Add(jobs.DefaultExpireSpec, jobs.ExpireIdleJob(sessions, logger)); err != nil {
			logger.Fatal().Err(err).Msg("schedule session expiry failed")
		}
		if err := sched.Add(jobs.DefaultRebuildSpec, jobs.RebuildIndexJob(store, logger)); err != nil {
			logger.Fatal().Err(err).Msg("schedule index rebuild failed")
		}
		sched.Start()
	}

	gin.SetMode(cfg.GinMode)
	engine := gin.New()
	httpapi.RegisterRoutes(engine, httpapi.Deps{
		DB:       db,
		Cfg:      cfg,
		Dispatch: dispatch,
		Sessions: sessions,
		Leads:    leads,
		Vehicles: vehicles,
		WhatsApp: wa,
		Hub:      hub,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           engine,
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
		MaxHeaderBytes:    cfg.MaxHeaderBytes,
	}

	go func() {
		logger.Info().Str("addr", srv.Addr).Msg("http server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("http server stopped")
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info().Msg("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	sched.Stop(shutdownCtx)
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("http shutdown")
	}
	if sqlDB, err := db.DB(); err == nil {
		_ = sqlDB.Close()
	}
	logger.Info().Msg("bye")
}

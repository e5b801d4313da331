package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/mrchevyceleb/vibecanvas/internal/http/handlers"
	"github.com/mrchevyceleb/vibecanvas/internal/http/httpapi"
	"github.com/mrchevyceleb/vibecanvas/internal/infra"
	"github.com/mrchevyceleb/vibecanvas/internal/infra/credentials"
	"github.com/mrchevyceleb/vibecanvas/internal/infra/geoip"
	"github.com/mrchevyceleb/vibecanvas/internal/library"
	"github.com/mrchevyceleb/vibecanvas/internal/middleware"
	"github.com/mrchevyceleb/vibecanvas/internal/orchestrator"
	"github.com/mrchevyceleb/vibecanvas/internal/promptenhance"
	"github.com/mrchevyceleb/vibecanvas/internal/providers"
	"github.com/mrchevyceleb/vibecanvas/internal/providers/gemini"
	"github.com/mrchevyceleb/vibecanvas/internal/providers/keygate"
	"github.com/mrchevyceleb/vibecanvas/internal/providers/openai"
	"github.com/mrchevyceleb/vibecanvas/internal/providers/sora"
	"github.com/mrchevyceleb/vibecanvas/internal/providers/veo"
	"github.com/mrchevyceleb/vibecanvas/internal/signedurl"
	"github.com/mrchevyceleb/vibecanvas/internal/storage"
)

func main() {
	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv)

	ctx := context.Background()
	dbpool, err := infra.NewDBPool(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect database")
	}
	defer dbpool.Close()

	sqlRunner := infra.NewSQLRunner(dbpool, logger)
	credStore := credentials.NewStore(sqlRunner)

	blobs, err := storage.New(ctx, *cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialize blob storage")
	}

	// Each gate prefers the env key and falls back to the DB-stored one.
	// Veo rides the Gemini credential: it is served by the same API family.
	geminiGate := keygate.New(gemini.CredentialName, cfg.GeminiAPIKey, credStore, nil)
	openaiGate := keygate.New(openai.CredentialName, cfg.OpenAIAPIKey, credStore, nil)
	soraGate := keygate.New(sora.CredentialName, cfg.SoraAPIKey, credStore, nil)
	veoGate := keygate.New(veo.CredentialName, cfg.GeminiAPIKey, credStore, nil)

	registry := providers.NewRegistry(
		gemini.New(gemini.Options{Gate: geminiGate, BaseURL: cfg.GeminiBaseURL, Model: cfg.GeminiModel, Logger: &logger}),
		openai.New(openai.Options{Gate: openaiGate, BaseURL: cfg.OpenAIBaseURL, Model: cfg.OpenAIModel, Logger: &logger}),
		sora.New(sora.Options{Gate: soraGate, BaseURL: cfg.SoraBaseURL, Model: cfg.SoraModel, Logger: &logger}),
		veo.New(veo.Options{Gate: veoGate, BaseURL: cfg.GeminiBaseURL, Model: cfg.VeoModel, Logger: &logger}),
	)

	mediaLib := library.NewService(library.NewRepo(sqlRunner), blobs, &logger)
	generator := orchestrator.New(registry, mediaLib, &logger)
	urlCache := signedurl.NewCache(blobs, cfg.SignedURLTTL)
	enhancer := promptenhance.NewGeminiEnhancer(promptenhance.GeminiOptions{Gate: geminiGate, BaseURL: cfg.GeminiBaseURL})

	var countryLookup middleware.CountryLookup
	geoResolver, err := geoip.NewResolver(cfg.GeoIPDBPath)
	if err != nil {
		logger.Warn().Err(err).Msg("geoip database unavailable, country detection disabled")
	} else if geoResolver != nil {
		defer geoResolver.Close()
		countryLookup = geoResolver.CountryCode
	}

	app := &handlers.App{
		Registry:    registry,
		Generator:   generator,
		Library:     mediaLib,
		URLs:        urlCache,
		Credentials: credStore,
		Enhancer:    enhancer,
		Logger:      &logger,
	}

	router := httpapi.NewRouter(app, httpapi.Options{
		JWTSecret:       cfg.JWTSecret,
		AllowedOrigins:  nil,
		RateLimitPerMin: cfg.RateLimitPerMin,
		DefaultLocale:   cfg.DefaultLocale,
		CountryLookup:   countryLookup,
		Logger:          logger,
	})

	server := infra.NewHTTPServer(cfg, router)

	go func() {
		logger.Info().Msgf("API listening on :%s", cfg.Port)
		if err := server.Start(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("http server failed")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTPIdleTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("failed to shutdown server")
	}
	logger.Info().Msg("server stopped")
}

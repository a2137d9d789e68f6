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
	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v2"

	"github.com/jorgeLDmesa/pandas-ai-api/internal/analysis"
	"github.com/jorgeLDmesa/pandas-ai-api/internal/config"
	"github.com/jorgeLDmesa/pandas-ai-api/internal/cost"
	"github.com/jorgeLDmesa/pandas-ai-api/internal/dataset"
	"github.com/jorgeLDmesa/pandas-ai-api/internal/handlers"
	"github.com/jorgeLDmesa/pandas-ai-api/internal/services"
	"github.com/jorgeLDmesa/pandas-ai-api/internal/storage"
)

var version = "dev"

func main() {
	// A missing .env is fine, the environment may already be populated.
	_ = godotenv.Load()

	app := &cli.App{
		Name:    "pandas-ai-api",
		Usage:   "Answer natural-language questions about spreadsheets over HTTP",
		Version: version,
		Flags:   config.Flags(),
		Action:  run,
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal().Err(err).Msg("Server failed")
	}
}

func run(c *cli.Context) error {
	cfg := config.FromContext(c)
	logger := config.NewLogger(cfg.LogLevel, cfg.Env)

	if err := cfg.Validate(); err != nil {
		return err
	}
	if cfg.Env != "development" {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(c.Context, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := storage.NewS3Store(ctx, storage.Options{
		Bucket:          cfg.BucketName,
		Region:          cfg.AWSRegion,
		AccessKeyID:     cfg.AWSAccessKeyID,
		SecretAccessKey: cfg.AWSSecretAccessKey,
	}, logger)
	if err != nil {
		return err
	}

	model := analysis.NewOpenAIModel(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL, cfg.Model, cfg.ModelTimeout)
	engine, err := analysis.NewLLMEngine(model, cfg.ChartDir, logger)
	if err != nil {
		return err
	}

	resolver := dataset.NewResolver(&http.Client{Timeout: cfg.FetchTimeout}, cfg.StrictSources)
	analysisService := services.NewAnalysisService(resolver, engine, store, services.Options{
		ChartDir:        engine.ChartDir(),
		Pricing:         cost.NewPricing(cfg.InputCostPerMToken, cfg.OutputCostPerMToken),
		ContinueOnError: cfg.ContinueOnError,
	}, logger)
	analysisHandler := handlers.NewAnalysisHandler(analysisService, logger)

	router := handlers.SetupRouter(analysisHandler, handlers.RouterOptions{
		APIKey:      cfg.APIKey,
		MaxUploadMB: cfg.MaxUploadMB,
	}, logger)

	if cfg.ChartMaxAge > 0 {
		go sweepCharts(ctx, analysisService, cfg.ChartMaxAge, logger)
	}

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errChan := make(chan error, 1)
	go func() {
		logger.Info().
			Str("port", cfg.Port).
			Str("version", version).
			Str("model", cfg.Model).
			Str("bucket", cfg.BucketName).
			Str("chart_dir", cfg.ChartDir).
			Msg("Starting analysis API server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
		close(errChan)
	}()

	select {
	case err := <-errChan:
		return err
	case <-ctx.Done():
	}

	logger.Info().Msg("Shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func sweepCharts(ctx context.Context, service *services.AnalysisService, maxAge time.Duration, logger zerolog.Logger) {
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			removed, err := service.CleanupStaleCharts(maxAge)
			if err != nil {
				logger.Warn().Err(err).Msg("[CLEANUP] chart sweep failed")
				continue
			}
			if removed > 0 {
				logger.Info().Int("removed", removed).Msg("[CLEANUP] removed stale charts")
			}
		}
	}
}

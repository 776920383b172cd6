package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"genjobs/internal/bootstrap"
	"genjobs/internal/http/handlers"
	httpapi "genjobs/internal/http/httpapi"
	"genjobs/internal/infra"
)

func main() {
	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv)

	ctx := context.Background()
	services, err := bootstrap.Build(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to build services")
	}
	defer services.Close()

	app := &handlers.App{
		Generator:       services.Orchestrator,
		Catalogue:       services.Registry,
		Logger:          logger,
		GenerateTimeout: infra.GenerateDeadline(cfg),
	}
	if services.Attempts != nil {
		app.Attempts = services.Attempts
	}

	router := httpapi.NewRouter(app, httpapi.RouterOptions{
		JWTSecret:      cfg.JWTSecret,
		AllowedOrigins: cfg.CORSAllowedOrigins,
		Gate:           services.Gate,
		Gatherer:       services.Prometheus,
		Logger:         logger,
	})

	server := infra.NewHTTPServer(cfg, router)

	sweepCtx, stopSweep := context.WithCancel(ctx)
	defer stopSweep()
	go services.RunSweeper(sweepCtx, time.Minute, logger)

	go func() {
		logger.Info().Msgf("API listening on :%s", cfg.Port)
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("http server failed")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	// in-flight generations may still be polling; give them the idle timeout plus a margin
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTPIdleTimeout+15*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("failed to shutdown server")
	}
	logger.Info().Msg("server stopped")
}

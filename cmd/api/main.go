package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Lazyjimpressions/ourvidz-sub002/internal/bootstrap"
	"github.com/Lazyjimpressions/ourvidz-sub002/internal/http/handlers"
	"github.com/Lazyjimpressions/ourvidz-sub002/internal/http/httpapi"
	"github.com/Lazyjimpressions/ourvidz-sub002/internal/infra"
)

func main() {
	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rt, err := bootstrap.New(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("api: startup failed")
	}
	defer rt.Close()

	if err := rt.Jobs.Recover(ctx); err != nil {
		logger.Error().Err(err).Msg("api: recover persisted job failed")
	}

	var files handlers.Files
	if rt.Files != nil {
		files = rt.Files
	}
	app := handlers.NewApp(rt.Jobs, rt.Assets, rt.Bus, files, infra.Component(logger, "http"))
	router := httpapi.NewRouter(app, httpapi.Options{
		Logger:         logger,
		DefaultLocale:  cfg.DefaultLocale,
		AllowedOrigins: cfg.CORSAllowedOrigins,
		APIToken:       cfg.APIToken,
		RatePerSec:     cfg.APIRatePerSecond,
		RateBurst:      cfg.APIRateBurst,
		RateIdleTTL:    10 * time.Minute,
	})
	server := infra.NewHTTPServer(cfg, router)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return rt.Listen(gctx) })
	g.Go(func() error {
		logger.Info().Str("addr", server.Addr()).Str("session", cfg.SessionID).Msg("api listening")
		return server.Run(gctx)
	})
	if err := g.Wait(); err != nil {
		logger.Error().Err(err).Msg("api stopped with error")
		return
	}
	logger.Info().Msg("api stopped")
}

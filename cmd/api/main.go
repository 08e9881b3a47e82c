package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"

	"github.com/ANIKETSHETTY47/building-energy-warehouse/internal/config"
	httpHandlers "github.com/ANIKETSHETTY47/building-energy-warehouse/internal/http"
	"github.com/ANIKETSHETTY47/building-energy-warehouse/internal/logging"
	"github.com/ANIKETSHETTY47/building-energy-warehouse/internal/service"
)

func main() {
	cfgFile := flag.String("config", "", "config file")
	flag.Parse()

	cfg, err := config.Load(*cfgFile)
	if err != nil {
		log.Fatal().Err(err).Msg("config load failed")
	}
	logger, err := logging.Setup(os.Stderr, cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		log.Fatal().Err(err).Msg("logging setup failed")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	svcs, err := service.New(ctx, cfg, "energydb-api", logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("service setup failed")
	}
	defer svcs.Close()

	app := fiber.New()
	httpHandlers.Register(app, svcs)

	go func() {
		<-ctx.Done()
		_ = app.Shutdown()
	}()

	logger.Info().Str("addr", cfg.APIAddr).Msg("api listening")
	if err := app.Listen(cfg.APIAddr); err != nil {
		logger.Error().Err(err).Msg("server exit")
	}
}

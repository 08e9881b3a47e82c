package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"

	"github.com/ANIKETSHETTY47/building-energy-warehouse/internal/config"
	"github.com/ANIKETSHETTY47/building-energy-warehouse/internal/logging"
	"github.com/ANIKETSHETTY47/building-energy-warehouse/internal/notify"
	"github.com/ANIKETSHETTY47/building-energy-warehouse/internal/service"
)

const inboxSize = 256

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
	if cfg.MQTTBroker == "" {
		logger.Fatal().Msg("MQTT_BROKER is required")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	svcs, err := service.New(ctx, cfg, "energydb-ingestor-notify", logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("service setup failed")
	}
	defer svcs.Close()

	client, err := notify.ConnectMQTT(cfg.MQTTBroker, "energydb-ingestor")
	if err != nil {
		logger.Fatal().Err(err).Msg("mqtt connect")
	}
	defer client.Disconnect(250)

	// loads run on this goroutine, never inside the paho callback
	inbox := notify.NewInbox(inboxSize, logger)

	topic := notify.Topic(cfg.MQTTTopicPrefix, notify.ExtractionCompleted)
	if token := client.Subscribe(topic, 1, inbox.Handle); token.Wait() && token.Error() != nil {
		logger.Fatal().Err(token.Error()).Msg("subscribe failed")
	}

	logger.Info().Str("topic", topic).Msg("ingestor running; Ctrl+C to stop")
	inbox.Run(ctx, svcs.LoadAnnounced)
}

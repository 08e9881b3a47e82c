package main

import (
	"context"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/ANIKETSHETTY47/building-energy-warehouse/internal/config"
	"github.com/ANIKETSHETTY47/building-energy-warehouse/internal/datafile"
	"github.com/ANIKETSHETTY47/building-energy-warehouse/internal/logging"
	"github.com/ANIKETSHETTY47/building-energy-warehouse/internal/notify"
)

type series struct {
	meterID int64
	header  datafile.Header
	next    func(prev decimal.Decimal) decimal.Decimal
}

func main() {
	cfgFile := flag.String("config", "", "config file")
	points := flag.Int("points", 96, "readings per file")
	flag.Parse()

	cfg, err := config.Load(*cfgFile)
	if err != nil {
		log.Fatal().Err(err).Msg("config load failed")
	}
	logger, err := logging.Setup(os.Stderr, cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		log.Fatal().Err(err).Msg("logging setup failed")
	}
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		logger.Fatal().Err(err).Msg("data directory")
	}

	var n notify.Notifier = notify.Nop{}
	if cfg.MQTTBroker != "" {
		client, err := notify.ConnectMQTT(cfg.MQTTBroker, "energydb-simulator")
		if err != nil {
			logger.Fatal().Err(err).Msg("mqtt connect")
		}
		defer client.Disconnect(250)
		n = notify.NewMQTTNotifier(client, cfg.MQTTTopicPrefix)
	}

	start := time.Now().UTC().Truncate(24 * time.Hour).AddDate(0, 0, -1)
	end := start.AddDate(0, 0, 1)
	runID := uuid.NewString()

	all := []series{
		{
			meterID: 9001,
			header:  datafile.Header{Description: "Simulated main kWh", Unit: "kWh", Commodity: "Electricity", SourceSystem: "ION", ReadingType: "Totalization"},
			next: func(prev decimal.Decimal) decimal.Decimal {
				return prev.Add(decimal.NewFromFloat(rand.Float64() * 5).Round(3))
			},
		},
		{
			meterID: 9002,
			header:  datafile.Header{Description: "Simulated chiller kW", Unit: "kW", Commodity: "Electricity", SourceSystem: "JCI", ReadingType: "Interval"},
			next: func(decimal.Decimal) decimal.Decimal {
				return decimal.NewFromFloat(40 + rand.Float64()*20).Round(3)
			},
		},
	}

	ctx := context.Background()
	for _, s := range all {
		path, err := writeSeries(cfg.DataDir, s, start, end, *points)
		if err != nil {
			logger.Fatal().Err(err).Int64("meter_id", s.meterID).Msg("write failed")
		}
		e := notify.Event{
			Type:    notify.ExtractionCompleted,
			RunID:   runID,
			Source:  s.header.SourceSystem,
			Path:    path,
			MeterID: s.meterID,
		}
		if err := n.Notify(ctx, e); err != nil {
			logger.Error().Err(err).Str("file", path).Msg("announce failed")
		}
		logger.Info().Str("file", path).Int("rows", *points).Msg("file written")
	}
	logger.Info().Msg("simulation done")
}

// writeSeries writes into a .part file and renames it into place, so a
// concurrent directory load never sees a half-written file.
func writeSeries(dir string, s series, start, end time.Time, points int) (string, error) {
	path := filepath.Join(dir, datafile.FileName(s.header.SourceSystem, s.meterID, start, end))
	part := path + ".part"

	f, err := os.Create(part)
	if err != nil {
		return "", err
	}
	err = writeRows(f, s, start, end, points)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err == nil {
		err = os.Rename(part, path)
	}
	if err != nil {
		os.Remove(part)
		return "", fmt.Errorf("%s: %w", filepath.Base(path), err)
	}
	return path, nil
}

func writeRows(f *os.File, s series, start, end time.Time, points int) error {
	w, err := datafile.NewWriter(f, s.header)
	if err != nil {
		return err
	}
	step := end.Sub(start) / time.Duration(points)
	v := decimal.NewFromInt(1000)
	for i := 0; i < points; i++ {
		v = s.next(v)
		if err := w.Write(datafile.Row{Timestamp: start.Add(time.Duration(i) * step), Value: &v}); err != nil {
			return err
		}
	}
	return w.Flush()
}

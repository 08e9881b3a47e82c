// Package service wires configuration into the long-lived components shared
// by the CLI, the API and the ingestor.
package service

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/ANIKETSHETTY47/building-energy-warehouse/internal/archive"
	"github.com/ANIKETSHETTY47/building-energy-warehouse/internal/cloud"
	"github.com/ANIKETSHETTY47/building-energy-warehouse/internal/config"
	"github.com/ANIKETSHETTY47/building-energy-warehouse/internal/database"
	"github.com/ANIKETSHETTY47/building-energy-warehouse/internal/loader"
	"github.com/ANIKETSHETTY47/building-energy-warehouse/internal/lock"
	"github.com/ANIKETSHETTY47/building-energy-warehouse/internal/notify"
	"github.com/ANIKETSHETTY47/building-energy-warehouse/internal/pipeline"
	"github.com/ANIKETSHETTY47/building-energy-warehouse/internal/repository"
)

// Services holds everything a load needs, built once per process.
type Services struct {
	DB       *sqlx.DB
	Repos    *repository.Repos
	Loader   *loader.Loader
	Archiver archive.Archiver
	Notifier notify.Notifier

	cfg     *config.Config
	log     zerolog.Logger
	closers []func()
}

// New connects to the warehouse and the optional Redis, MQTT and AWS
// collaborators named in cfg.
func New(ctx context.Context, cfg *config.Config, clientID string, log zerolog.Logger) (*Services, error) {
	s := &Services{cfg: cfg, log: log}

	db, err := database.Connect(ctx, "warehouse", cfg.Warehouse)
	if err != nil {
		return nil, err
	}
	s.DB = db
	s.closers = append(s.closers, func() { db.Close() })
	s.Repos = repository.New(db)

	opts := loader.Options{BatchSize: cfg.StageBatchSize, QueryTimeout: cfg.QueryTimeout}
	if cfg.RedisAddr != "" {
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		s.closers = append(s.closers, func() { client.Close() })
		if err := client.Ping(ctx).Err(); err != nil {
			s.Close()
			return nil, fmt.Errorf("redis %s: %w", cfg.RedisAddr, err)
		}
		opts.Locks = lock.RedisFactory(client, cfg.LockTTL)
	}
	s.Loader = loader.New(db, opts, log)

	if s.Archiver, err = NewArchiver(ctx, cfg); err != nil {
		s.Close()
		return nil, err
	}

	n, closeN, err := NewNotifier(ctx, cfg, clientID)
	if err != nil {
		s.Close()
		return nil, err
	}
	s.Notifier = n
	s.closers = append(s.closers, closeN)
	return s, nil
}

// Close releases connections in reverse order of creation.
func (s *Services) Close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
	s.closers = nil
}

func (s *Services) PipelineConfig() pipeline.Config {
	return pipeline.Config{Workers: s.cfg.Workers, Log: s.log, Notifier: s.Notifier}
}

// LoadAll loads every file of the configured data directory.
func (s *Services) LoadAll(ctx context.Context) (*pipeline.Summary, error) {
	files, err := pipeline.DataFiles(s.cfg.DataDir)
	if err != nil {
		return nil, fmt.Errorf("data directory: %w", err)
	}
	return pipeline.Load(ctx, s.Loader, s.Archiver, files, s.PipelineConfig()), nil
}

// LoadAnnounced loads a file named by an extraction.completed event. Only
// files directly inside the data directory are accepted.
func (s *Services) LoadAnnounced(ctx context.Context, e notify.Event) error {
	if e.Type != notify.ExtractionCompleted {
		return fmt.Errorf("unexpected event %s", e.Type)
	}
	dataDir, err := filepath.Abs(s.cfg.DataDir)
	if err != nil {
		return err
	}
	path, err := filepath.Abs(e.Path)
	if err != nil {
		return err
	}
	if filepath.Dir(path) != dataDir {
		return fmt.Errorf("%s is outside the data directory %s", e.Path, dataDir)
	}
	return pipeline.LoadOne(ctx, s.Loader, s.Archiver, path, e.RunID, s.PipelineConfig())
}

// NewArchiver returns the S3 archiver when cloud services are enabled and
// the processed-directory archiver otherwise.
func NewArchiver(ctx context.Context, cfg *config.Config) (archive.Archiver, error) {
	if cfg.UseCloudServices {
		client, err := cloud.NewS3Client(ctx, cfg.AWSRegion, cfg.S3Bucket)
		if err != nil {
			return nil, err
		}
		return archive.NewS3Archiver(client, "processed"), nil
	}
	return archive.NewDirArchiver(cfg.ProcessedDir)
}

// NewNotifier builds the notifier chain: MQTT when a broker is set, SNS
// when cloud services and a topic are set. With neither it is a no-op.
func NewNotifier(ctx context.Context, cfg *config.Config, clientID string) (notify.Notifier, func(), error) {
	var (
		chain   notify.Multi
		closers []func()
	)
	closeAll := func() {
		for _, c := range closers {
			c()
		}
	}

	if cfg.MQTTBroker != "" {
		client, err := notify.ConnectMQTT(cfg.MQTTBroker, clientID)
		if err != nil {
			return nil, nil, err
		}
		closers = append(closers, func() { client.Disconnect(250) })
		chain = append(chain, notify.NewMQTTNotifier(client, cfg.MQTTTopicPrefix))
	}
	if cfg.UseCloudServices && cfg.SNSTopicArn != "" {
		client, err := cloud.NewSNSClient(ctx, cfg.AWSRegion, cfg.SNSTopicArn)
		if err != nil {
			closeAll()
			return nil, nil, err
		}
		chain = append(chain, notify.NewSNSNotifier(client))
	}

	if len(chain) == 0 {
		return notify.Nop{}, closeAll, nil
	}
	return chain, closeAll, nil
}

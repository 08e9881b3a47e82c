package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ANIKETSHETTY47/building-energy-warehouse/internal/archive"
	"github.com/ANIKETSHETTY47/building-energy-warehouse/internal/loader"
	"github.com/ANIKETSHETTY47/building-energy-warehouse/internal/notify"
	"github.com/ANIKETSHETTY47/building-energy-warehouse/internal/request"
	"github.com/ANIKETSHETTY47/building-energy-warehouse/internal/source"
)

// Config is shared by the extraction and load drivers.
type Config struct {
	Workers  int
	Log      zerolog.Logger
	Notifier notify.Notifier
}

func (c Config) notifier() notify.Notifier {
	if c.Notifier == nil {
		return notify.Nop{}
	}
	return c.Notifier
}

// announce publishes an event. Delivery failures are logged, never fatal.
func (c Config) announce(ctx context.Context, e notify.Event) {
	e.Time = time.Now().UTC()
	if err := c.notifier().Notify(ctx, e); err != nil {
		c.Log.Warn().Err(err).Str("event", string(e.Type)).Msg("notification failed")
	}
}

func (c Config) finish(ctx context.Context, s *Summary, src string) {
	c.announce(ctx, notify.Event{
		Type:    notify.RunCompleted,
		RunID:   s.RunID,
		Source:  src,
		Total:   s.Total,
		Failed:  s.Failed,
		Message: s.String(),
	})
}

type Extractor interface {
	Extract(ctx context.Context, m request.MeterDescriptor) (string, error)
	Source() source.Source
}

// Extract writes one extraction file per meter.
func Extract(ctx context.Context, ex Extractor, meters []request.MeterDescriptor, cfg Config) *Summary {
	src := ex.Source()
	runID := uuid.NewString()

	s := Run(ctx, meters, Options[request.MeterDescriptor]{
		Kind:    "extract",
		RunID:   runID,
		Workers: cfg.Workers,
		Log:     cfg.Log.With().Str("source", src.Name).Logger(),
		Name: func(m request.MeterDescriptor) string {
			if src.UsesQuantityNames() {
				return fmt.Sprintf("line %d: meter %d quantity %d", m.Line, m.SourceID, m.QuantityID)
			}
			return fmt.Sprintf("line %d: meter %d", m.Line, m.SourceID)
		},
	}, func(ctx context.Context, m request.MeterDescriptor) error {
		path, err := ex.Extract(ctx, m)
		if err != nil {
			return err
		}
		cfg.announce(ctx, notify.Event{
			Type:    notify.ExtractionCompleted,
			RunID:   runID,
			Source:  src.Name,
			Path:    path,
			MeterID: m.SourceID,
		})
		return nil
	})

	cfg.finish(context.WithoutCancel(ctx), s, src.Name)
	return s
}

type Loader interface {
	Load(ctx context.Context, path string) (loader.Outcome, error)
}

// Load loads each file and archives the ones that loaded. Files that fail
// stay where they are.
func Load(ctx context.Context, ld Loader, arch archive.Archiver, files []string, cfg Config) *Summary {
	runID := uuid.NewString()

	s := Run(ctx, files, Options[string]{
		Kind:    "load",
		RunID:   runID,
		Workers: cfg.Workers,
		Log:     cfg.Log,
		Name:    filepath.Base,
	}, func(ctx context.Context, path string) error {
		return LoadOne(ctx, ld, arch, path, runID, cfg)
	})

	cfg.finish(context.WithoutCancel(ctx), s, "")
	return s
}

// LoadOne loads and archives a single file, announcing the result.
func LoadOne(ctx context.Context, ld Loader, arch archive.Archiver, path, runID string, cfg Config) error {
	outcome, err := ld.Load(ctx, path)
	if err == nil {
		var dest string
		dest, err = arch.Archive(ctx, path)
		if err == nil {
			cfg.announce(ctx, notify.Event{Type: notify.LoadCompleted, RunID: runID, Path: dest})
			return nil
		}
		err = fmt.Errorf("loaded but not archived: %w", err)
	} else if outcome == loader.FailedAfterDimensionCreate {
		err = fmt.Errorf("%s: %w", outcome, err)
	}

	cfg.announce(context.WithoutCancel(ctx), notify.Event{
		Type:    notify.LoadFailed,
		RunID:   runID,
		Path:    path,
		Message: err.Error(),
	})
	return err
}

// DataFiles lists the files of dir to load, in name order. Directories
// and in-progress .part files are skipped.
func DataFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var files []string
	for _, e := range entries {
		if !e.Type().IsRegular() || strings.HasSuffix(e.Name(), ".part") {
			continue
		}
		files = append(files, filepath.Join(dir, e.Name()))
	}
	sort.Strings(files)
	return files, nil
}

package cli

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ANIKETSHETTY47/building-energy-warehouse/internal/database"
	"github.com/ANIKETSHETTY47/building-energy-warehouse/internal/extract"
	"github.com/ANIKETSHETTY47/building-energy-warehouse/internal/pipeline"
	"github.com/ANIKETSHETTY47/building-energy-warehouse/internal/request"
	"github.com/ANIKETSHETTY47/building-energy-warehouse/internal/service"
	"github.com/ANIKETSHETTY47/building-energy-warehouse/internal/source"
)

func newExtractCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "extract <source> <request.csv>",
		Short: "Write one extraction file per meter listed in a request file",
		Example: `  energydb extract ion data/ion_request.csv
  energydb extract jci data/jci_request.csv`,
		Args: argsBetween(2, 2),
		RunE: runExtract,
	}
}

func runExtract(cmd *cobra.Command, args []string) error {
	e := envFrom(cmd)
	ctx := cmd.Context()

	src, err := source.Lookup(args[0])
	if err != nil {
		return &UsageError{Cmd: cmd, Err: err}
	}
	meters, err := request.ReadFile(args[1], src.RequestHeader)
	if err != nil {
		var fe *request.FormatError
		if errors.As(err, &fe) {
			return &UsageError{Cmd: cmd, Err: err}
		}
		return usagef(cmd, "cannot read request file: %v", err)
	}

	if err := os.MkdirAll(e.cfg.OutputDir, 0o755); err != nil {
		return fmt.Errorf("output directory: %w", err)
	}
	dbCfg, err := e.cfg.Source(src.Name)
	if err != nil {
		return err
	}
	db, err := database.Connect(ctx, src.Name, dbCfg)
	if err != nil {
		return err
	}
	defer db.Close()

	n, closeN, err := service.NewNotifier(ctx, e.cfg, "energydb-extract")
	if err != nil {
		return err
	}
	defer closeN()

	e.log.Info().Str("source", src.Name).Int("meters", len(meters)).Msg("extraction started")
	ex := extract.New(db, src, e.cfg.OutputDir, e.cfg.QueryTimeout, e.log)
	s := pipeline.Extract(ctx, ex, meters, pipeline.Config{Workers: e.cfg.Workers, Log: e.log, Notifier: n})

	report(cmd.OutOrStdout(), s)
	return s.Err()
}

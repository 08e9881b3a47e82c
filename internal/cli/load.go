package cli

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/ANIKETSHETTY47/building-energy-warehouse/internal/service"
)

func newLoadCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "load [<data_dir> <processed_dir>]",
		Short: "Load every extraction file of the data directory into the warehouse",
		Long: `Load every extraction file of the data directory into the warehouse.

Files that load are moved to the processed directory; files that fail stay
where they are. Without arguments DATA_DIR and PROCESSED_DIR are used.`,
		Args: func(cmd *cobra.Command, args []string) error {
			if len(args) != 0 && len(args) != 2 {
				return usagef(cmd, "accepts 0 or 2 args, received %d", len(args))
			}
			return nil
		},
		RunE: runLoad,
	}
}

func runLoad(cmd *cobra.Command, args []string) error {
	e := envFrom(cmd)
	ctx := cmd.Context()

	cfg := *e.cfg
	if len(args) == 2 {
		cfg.DataDir, cfg.ProcessedDir = args[0], args[1]
	}
	dirs := []string{cfg.DataDir}
	if !cfg.UseCloudServices {
		dirs = append(dirs, cfg.ProcessedDir)
	}
	for _, dir := range dirs {
		if fi, err := os.Stat(dir); err != nil || !fi.IsDir() {
			return usagef(cmd, "%s is not a directory", dir)
		}
	}

	svcs, err := service.New(ctx, &cfg, "energydb-load", e.log)
	if err != nil {
		return err
	}
	defer svcs.Close()

	s, err := svcs.LoadAll(ctx)
	if err != nil {
		return err
	}
	report(cmd.OutOrStdout(), s)
	return s.Err()
}

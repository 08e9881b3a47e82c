package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ANIKETSHETTY47/building-energy-warehouse/internal/database"
	"github.com/ANIKETSHETTY47/building-energy-warehouse/internal/migrations"
)

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or upgrade the warehouse schema",
		Args:  argsBetween(0, 0),
		RunE: func(cmd *cobra.Command, _ []string) error {
			e := envFrom(cmd)
			ctx := cmd.Context()

			db, err := database.Connect(ctx, "warehouse", e.cfg.Warehouse)
			if err != nil {
				return err
			}
			defer db.Close()

			if err := migrations.Up(ctx, db.DB); err != nil {
				return err
			}
			v, err := migrations.Version(ctx, db.DB)
			if err != nil {
				return err
			}
			e.log.Info().Int64("version", v).Msg("warehouse schema up to date")
			fmt.Fprintf(cmd.OutOrStdout(), "schema version %d\n", v)
			return nil
		},
	}
}

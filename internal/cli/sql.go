package cli

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ANIKETSHETTY47/building-energy-warehouse/internal/config"
	"github.com/ANIKETSHETTY47/building-energy-warehouse/internal/database"
	"github.com/ANIKETSHETTY47/building-energy-warehouse/internal/sqlrun"
)

func newSQLCmd() *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "sql <target> <file.sql>",
		Short: "Run a SQL file against the warehouse or a source system",
		Example: `  energydb sql warehouse queries/meters.sql
  energydb sql ion queries/sources.sql --out sources.xlsx`,
		Args: argsBetween(2, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSQL(cmd, args[0], args[1], out)
		},
	}
	cmd.Flags().StringVar(&out, "out", "", "write results to a .csv or .xlsx file instead of stdout")
	return cmd
}

func runSQL(cmd *cobra.Command, target, file, out string) error {
	e := envFrom(cmd)
	ctx := cmd.Context()

	dbCfg, err := targetDB(e.cfg, target)
	if err != nil {
		return &UsageError{Cmd: cmd, Err: err}
	}
	if out != "" {
		if err := sqlrun.CheckOutput(out); err != nil {
			return &UsageError{Cmd: cmd, Err: err}
		}
	}
	body, err := os.ReadFile(file)
	if err != nil {
		return usagef(cmd, "cannot read sql file: %v", err)
	}

	db, err := database.Connect(ctx, target, dbCfg)
	if err != nil {
		return err
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(ctx, e.cfg.QueryTimeout)
	defer cancel()
	rs, err := sqlrun.Run(ctx, db, string(body))
	if err != nil {
		return err
	}
	if out != "" {
		if err := rs.WriteFile(out); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "wrote %d rows to %s\n", len(rs.Rows), out)
		return nil
	}
	return rs.RenderTable(cmd.OutOrStdout())
}

func targetDB(cfg *config.Config, target string) (config.DB, error) {
	if strings.EqualFold(target, "warehouse") {
		return cfg.Warehouse, nil
	}
	db, err := cfg.Source(target)
	if err != nil {
		return config.DB{}, fmt.Errorf("unknown target %q (want warehouse, ion or jci)", target)
	}
	return db, nil
}

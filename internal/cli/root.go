// Package cli provides the energydb command-line interface.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/ANIKETSHETTY47/building-energy-warehouse/internal/config"
	"github.com/ANIKETSHETTY47/building-energy-warehouse/internal/logging"
	"github.com/ANIKETSHETTY47/building-energy-warehouse/internal/pipeline"
)

// envKey is used to store the loaded environment in the command context.
type envKey struct{}

type env struct {
	cfg *config.Config
	log zerolog.Logger
}

func envFrom(cmd *cobra.Command) env {
	e, _ := cmd.Context().Value(envKey{}).(env)
	return e
}

// UsageError is a malformed invocation. It is reported together with the
// command's usage text before any work starts.
type UsageError struct {
	Cmd *cobra.Command
	Err error
}

func (e *UsageError) Error() string { return e.Err.Error() }
func (e *UsageError) Unwrap() error { return e.Err }

func usagef(cmd *cobra.Command, format string, args ...any) error {
	return &UsageError{Cmd: cmd, Err: fmt.Errorf(format, args...)}
}

// argsBetween is cobra.RangeArgs returning a UsageError.
func argsBetween(min, max int) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if len(args) < min || len(args) > max {
			if min == max {
				return usagef(cmd, "accepts %d arg(s), received %d", min, len(args))
			}
			return usagef(cmd, "accepts between %d and %d arg(s), received %d", min, max, len(args))
		}
		return nil
	}
}

// NewRootCmd creates the energydb command tree.
func NewRootCmd() *cobra.Command {
	var cfgFile string

	root := &cobra.Command{
		Use:   "energydb",
		Short: "Extract building meter readings and load them into the energy warehouse",
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Name() == "help" || cmd.Name() == "completion" {
				return nil
			}
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return err
			}
			logger, err := logging.Setup(cmd.ErrOrStderr(), cfg.LogLevel, cfg.LogFormat)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			cmd.SetContext(context.WithValue(ctx, envKey{}, env{cfg: cfg, log: logger}))
			return nil
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (yaml, json or toml)")

	root.AddCommand(newExtractCmd())
	root.AddCommand(newLoadCmd())
	root.AddCommand(newSQLCmd())
	root.AddCommand(newMigrateCmd())
	return root
}

// Execute runs the command tree and reports the error, with usage text for
// malformed invocations.
func Execute(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	root := NewRootCmd()
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)

	err := root.ExecuteContext(ctx)
	if err == nil {
		return nil
	}
	fmt.Fprintf(stderr, "Error: %v\n", err)
	var ue *UsageError
	if errors.As(err, &ue) {
		fmt.Fprint(stderr, ue.Cmd.UsageString())
	}
	return err
}

// report prints every failure in input order, then the aggregate line.
func report(w io.Writer, s *pipeline.Summary) {
	for _, f := range s.Failures {
		fmt.Fprintf(w, "FAILED %s: %v\n", f.Item, f.Err)
	}
	fmt.Fprintf(w, "%s run %s: %s\n", s.Kind, s.RunID, s)
}

// Package loader loads extraction files into the warehouse. Each file
// becomes one meter row plus its readings, staged through a temporary
// per-meter table, all inside a single transaction.
package loader

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog"

	"github.com/ANIKETSHETTY47/building-energy-warehouse/internal/datafile"
	"github.com/ANIKETSHETTY47/building-energy-warehouse/internal/lock"
	"github.com/ANIKETSHETTY47/building-energy-warehouse/internal/repository"
)

// Outcome classifies how a Load call ended.
type Outcome int

const (
	Loaded Outcome = iota
	Failed
	// FailedAfterDimensionCreate means the meter row had been inserted when
	// staging failed. The row was rolled back with everything else.
	FailedAfterDimensionCreate
)

func (o Outcome) String() string {
	switch o {
	case Loaded:
		return "loaded"
	case Failed:
		return "failed"
	case FailedAfterDimensionCreate:
		return "failed after dimension create"
	}
	return fmt.Sprintf("Outcome(%d)", int(o))
}

var ErrFileLocked = errors.New("file is being loaded by another process")

const unlockTimeout = 10 * time.Second

// StagingError reports a failure after the meter row was created.
type StagingError struct {
	MeterID int64
	Path    string
	Step    string
	Err     error
}

func (e *StagingError) Error() string {
	return fmt.Sprintf("%s: meter %d: %s: %v", filepath.Base(e.Path), e.MeterID, e.Step, e.Err)
}

func (e *StagingError) Unwrap() error { return e.Err }

type Options struct {
	BatchSize    int
	QueryTimeout time.Duration
	// Locks is optional. When set, a file is claimed before it is loaded.
	Locks lock.Factory
}

type Loader struct {
	db   *sqlx.DB
	opts Options
	log  zerolog.Logger
}

func New(db *sqlx.DB, opts Options, log zerolog.Logger) *Loader {
	if opts.BatchSize < 1 {
		opts.BatchSize = 500
	}
	if opts.QueryTimeout <= 0 {
		opts.QueryTimeout = 5 * time.Minute
	}
	return &Loader{db: db, opts: opts, log: log}
}

// Load loads one extraction file. The file itself is left untouched.
func (l *Loader) Load(ctx context.Context, path string) (Outcome, error) {
	base := filepath.Base(path)
	log := l.log.With().Str("file", base).Logger()

	h, err := datafile.ReadHeader(path)
	if err != nil {
		return Failed, err
	}

	if l.opts.Locks != nil {
		lk := l.opts.Locks("load:" + base)
		ok, err := lk.Acquire(ctx)
		if err != nil {
			return Failed, err
		}
		if !ok {
			return Failed, fmt.Errorf("%s: %w", base, ErrFileLocked)
		}
		defer func() {
			rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), unlockTimeout)
			defer cancel()
			if err := lk.Release(rctx); err != nil {
				log.Warn().Err(err).Msg("lock release failed")
			}
		}()
	}

	tx, err := l.db.BeginTxx(ctx, nil)
	if err != nil {
		return Failed, fmt.Errorf("failed to begin transaction: %w", err)
	}
	// Rolling back also discards the staging table: Postgres DDL is
	// transactional and the table is ON COMMIT DROP.
	defer tx.Rollback()

	meterID, err := l.createMeter(ctx, tx, h)
	if err != nil {
		return Failed, fmt.Errorf("%s: %w", base, err)
	}
	return l.stage(ctx, tx, meterID, path, log)
}

// createMeter resolves the header's dimensions and inserts the meter row.
// A header naming an unknown dimension value creates nothing.
func (l *Loader) createMeter(ctx context.Context, tx *sqlx.Tx, h datafile.Header) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, l.opts.QueryTimeout)
	defer cancel()

	dims, err := repository.ResolveDimensions(ctx, tx, h)
	if err != nil {
		return 0, err
	}
	return repository.InsertMeter(ctx, tx, h.Description, dims)
}

func (l *Loader) stage(ctx context.Context, tx *sqlx.Tx, meterID int64, path string, log zerolog.Logger) (Outcome, error) {
	fail := func(step string, err error) (Outcome, error) {
		return FailedAfterDimensionCreate, &StagingError{MeterID: meterID, Path: path, Step: step, Err: err}
	}
	table := StagingTable(meterID)

	if err := l.exec(ctx, tx, fmt.Sprintf(
		`CREATE TEMP TABLE %s (time_stamp_utc TIMESTAMP NOT NULL, reading NUMERIC) ON COMMIT DROP`, table)); err != nil {
		return fail("create staging table", err)
	}

	rows, err := l.copyRows(ctx, tx, table, path)
	if err != nil {
		return fail("stage readings", err)
	}

	// meter_id is generated by the database, never read from the file.
	if err := l.exec(ctx, tx, fmt.Sprintf(
		`ALTER TABLE %s ADD COLUMN meter_id BIGINT NOT NULL DEFAULT %d`, table, meterID)); err != nil {
		return fail("add meter column", err)
	}
	if err := l.exec(ctx, tx, fmt.Sprintf(
		`INSERT INTO meter_value (meter_id, time_stamp_utc, reading) SELECT meter_id, time_stamp_utc, reading FROM %s`, table)); err != nil {
		return fail("insert readings", err)
	}
	if err := l.exec(ctx, tx, `DROP TABLE IF EXISTS `+table); err != nil {
		return fail("drop staging table", err)
	}
	if err := tx.Commit(); err != nil {
		return fail("commit", err)
	}

	log.Info().Int64("meter_id", meterID).Int("rows", rows).Msg("file loaded")
	return Loaded, nil
}

// StagingTable returns the quoted name of a meter's staging table.
func StagingTable(meterID int64) string {
	return pgx.Identifier{fmt.Sprintf("tmp_%d", meterID)}.Sanitize()
}

func (l *Loader) exec(ctx context.Context, tx *sqlx.Tx, query string, args ...any) error {
	ctx, cancel := context.WithTimeout(ctx, l.opts.QueryTimeout)
	defer cancel()
	_, err := tx.ExecContext(ctx, query, args...)
	return err
}

// copyRows streams the file body into the staging table with multi-row
// INSERTs of at most BatchSize readings.
func (l *Loader) copyRows(ctx context.Context, tx *sqlx.Tx, table, path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	r, err := datafile.NewReader(f)
	if err != nil {
		return 0, err
	}

	full := insertStatement(table, l.opts.BatchSize)
	args := make([]any, 0, 2*l.opts.BatchSize)
	total := 0

	flush := func() error {
		n := len(args) / 2
		if n == 0 {
			return nil
		}
		query := full
		if n < l.opts.BatchSize {
			query = insertStatement(table, n)
		}
		if err := l.exec(ctx, tx, query, args...); err != nil {
			return err
		}
		total += n
		args = args[:0]
		return nil
	}

	for {
		row, err := r.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return total, err
		}
		var v any
		if row.Value != nil {
			v = *row.Value
		}
		args = append(args, row.Timestamp, v)
		if len(args) == cap(args) {
			if err := flush(); err != nil {
				return total, err
			}
		}
	}
	if err := flush(); err != nil {
		return total, err
	}
	return total, nil
}

func insertStatement(table string, n int) string {
	var b strings.Builder
	b.WriteString("INSERT INTO ")
	b.WriteString(table)
	b.WriteString(" (time_stamp_utc, reading) VALUES ")
	for i := 0; i < n; i++ {
		if i > 0 {
			b.WriteString(", ")
		}
		fmt.Fprintf(&b, "($%d, $%d)", 2*i+1, 2*i+2)
	}
	return b.String()
}

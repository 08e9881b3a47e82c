// Package extract pulls one meter's readings out of a source database,
// classifies the meter and writes a self-describing extraction file.
package extract

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/ANIKETSHETTY47/building-energy-warehouse/internal/classify"
	"github.com/ANIKETSHETTY47/building-energy-warehouse/internal/database"
	"github.com/ANIKETSHETTY47/building-energy-warehouse/internal/datafile"
	"github.com/ANIKETSHETTY47/building-energy-warehouse/internal/request"
	"github.com/ANIKETSHETTY47/building-energy-warehouse/internal/source"
)

var (
	ErrDescriptionNotFound = errors.New("description not found")
	ErrQuantityNotFound    = errors.New("quantity not found")
)

// Extractor writes extraction files for meters of a single source system.
type Extractor struct {
	db        *sqlx.DB
	src       source.Source
	outputDir string
	timeout   time.Duration
	log       zerolog.Logger
}

func New(db *sqlx.DB, src source.Source, outputDir string, timeout time.Duration, log zerolog.Logger) *Extractor {
	return &Extractor{
		db:        db,
		src:       src,
		outputDir: outputDir,
		timeout:   timeout,
		log:       log.With().Str("source", src.Name).Logger(),
	}
}

// Source returns the source system this extractor reads from.
func (e *Extractor) Source() source.Source { return e.src }

// Extract runs the whole sequence for one meter on its own connection and
// returns the path of the written file.
func (e *Extractor) Extract(ctx context.Context, m request.MeterDescriptor) (string, error) {
	conn, err := e.db.Connx(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to acquire connection: %w", err)
	}
	defer conn.Close()

	return e.extract(ctx, conn, m)
}

func (e *Extractor) extract(ctx context.Context, q database.Querier, m request.MeterDescriptor) (string, error) {
	log := e.log.With().Int64("meter_id", m.SourceID).Logger()
	p := source.ParamsFor(m)

	log.Debug().Msg("getting meter name")
	var description string
	if err := e.getOne(ctx, q, &description, e.src.DescriptionQuery, p); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", fmt.Errorf("meter %d: %w", m.SourceID, ErrDescriptionNotFound)
		}
		return "", fmt.Errorf("meter %d: failed to get description: %w", m.SourceID, err)
	}

	hint := m.UnitHint
	if e.src.UsesQuantityNames() {
		if err := e.getOne(ctx, q, &hint, e.src.QuantityNameQuery, p); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return "", fmt.Errorf("meter %d: quantity %d: %w", m.SourceID, m.QuantityID, ErrQuantityNotFound)
			}
			return "", fmt.Errorf("meter %d: failed to get quantity name: %w", m.SourceID, err)
		}
	}

	log.Debug().Str("hint", hint).Msg("classifying meter")
	res, err := e.classify(ctx, q, m, hint, description)
	if err != nil {
		return "", err
	}

	h := datafile.Header{
		Description:  res.Description,
		Unit:         res.Unit,
		Commodity:    res.Commodity,
		SourceSystem: e.src.Name,
		ReadingType:  string(res.ReadingType),
	}
	path, n, err := e.writeFile(ctx, q, m, h)
	if err != nil {
		return "", fmt.Errorf("meter %d: %w", m.SourceID, err)
	}

	log.Info().
		Str("file", filepath.Base(path)).
		Str("unit", h.Unit).
		Str("commodity", h.Commodity).
		Str("reading_type", h.ReadingType).
		Int("rows", n).
		Msg("meter extracted")
	return path, nil
}

func (e *Extractor) getOne(ctx context.Context, q database.Querier, dest any, template string, p source.Params) error {
	query, args, err := source.Bind(q.Rebind, template, p)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()
	return q.GetContext(ctx, dest, query, args...)
}

func (e *Extractor) classify(ctx context.Context, q database.Querier, m request.MeterDescriptor, hint, description string) (classify.Result, error) {
	query, args, err := source.Bind(q.Rebind, e.src.SampleQuery, source.ParamsFor(m))
	if err != nil {
		return classify.Result{}, err
	}
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	rows, err := q.QueryxContext(ctx, query, args...)
	if err != nil {
		return classify.Result{}, fmt.Errorf("meter %d: failed to sample readings: %w", m.SourceID, err)
	}
	defer rows.Close()

	return classify.Classify(m.SourceID, hint, description, &rowSample{rows: rows}, e.src.Policy)
}

// writeFile streams the full reading set into a .part file and renames it
// into place once everything has been written.
func (e *Extractor) writeFile(ctx context.Context, q database.Querier, m request.MeterDescriptor, h datafile.Header) (string, int, error) {
	query, args, err := source.Bind(q.Rebind, e.src.ReadingsQuery, source.ParamsFor(m))
	if err != nil {
		return "", 0, err
	}
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	rows, err := q.QueryxContext(ctx, query, args...)
	if err != nil {
		return "", 0, fmt.Errorf("failed to query readings: %w", err)
	}
	defer rows.Close()

	path := filepath.Join(e.outputDir, datafile.FileName(e.src.Name, m.SourceID, m.Window.Start, m.Window.End))
	part := path + ".part"

	f, err := os.Create(part)
	if err != nil {
		return "", 0, fmt.Errorf("failed to create output file: %w", err)
	}
	n, err := writeRows(f, h, rows)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err == nil {
		err = os.Rename(part, path)
	}
	if err != nil {
		os.Remove(part)
		return "", 0, fmt.Errorf("failed to write %s: %w", filepath.Base(path), err)
	}
	return path, n, nil
}

func writeRows(f *os.File, h datafile.Header, rows *sqlx.Rows) (int, error) {
	w, err := datafile.NewWriter(f, h)
	if err != nil {
		return 0, err
	}
	n := 0
	for rows.Next() {
		r, err := scanReading(rows)
		if err != nil {
			return n, err
		}
		if err := w.Write(datafile.Row{Timestamp: r.Timestamp, Value: r.Value}); err != nil {
			return n, err
		}
		n++
	}
	if err := rows.Err(); err != nil {
		return n, err
	}
	return n, w.Flush()
}

func scanReading(rows *sqlx.Rows) (classify.Reading, error) {
	var (
		ts time.Time
		v  decimal.NullDecimal
	)
	if err := rows.Scan(&ts, &v); err != nil {
		return classify.Reading{}, fmt.Errorf("failed to scan reading: %w", err)
	}
	r := classify.Reading{Timestamp: ts.UTC()}
	if v.Valid {
		r.Value = &v.Decimal
	}
	return r, nil
}

// rowSample feeds a sample query's rows to the classifier one at a time, so
// an early decision leaves the rest of the rows unread.
type rowSample struct {
	rows *sqlx.Rows
	cur  classify.Reading
	err  error
}

func (s *rowSample) Next() bool {
	if s.err != nil || !s.rows.Next() {
		return false
	}
	s.cur, s.err = scanReading(s.rows)
	return s.err == nil
}

func (s *rowSample) Reading() classify.Reading { return s.cur }

func (s *rowSample) Err() error {
	if s.err != nil {
		return s.err
	}
	return s.rows.Err()
}

package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/ANIKETSHETTY47/building-energy-warehouse/internal/database"
	"github.com/ANIKETSHETTY47/building-energy-warehouse/internal/datafile"
	"github.com/ANIKETSHETTY47/building-energy-warehouse/internal/domain"
)

var ErrNotFound = errors.New("not found")

// DimensionLookupError means a header value has no row in its dimension
// table. Dimension rows are never created on the fly.
type DimensionLookupError struct {
	Table string
	Value string
}

func (e *DimensionLookupError) Error() string {
	return fmt.Sprintf("no %s matches %q", e.Table, e.Value)
}

type dimension struct {
	table  string
	column string
}

var (
	unitDim         = dimension{"unit", "old_unit"}
	commodityDim    = dimension{"commodity", "name"}
	sourceSystemDim = dimension{"source_system", "name"}
	readingTypeDim  = dimension{"reading_type", "name"}
)

func lookupID(ctx context.Context, q database.Querier, d dimension, value string) (int64, error) {
	var id int64
	query := fmt.Sprintf(`SELECT id FROM %s WHERE lower(%s) = lower($1) ORDER BY id LIMIT 1`, d.table, d.column)
	if err := q.GetContext(ctx, &id, query, value); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, &DimensionLookupError{Table: d.table, Value: value}
		}
		return 0, fmt.Errorf("failed to look up %s %q: %w", d.table, value, err)
	}
	return id, nil
}

// ResolveDimensions maps the four classified header fields to their
// surrogate keys, case-insensitively. The first miss stops the lookup.
func ResolveDimensions(ctx context.Context, q database.Querier, h datafile.Header) (domain.Dimensions, error) {
	var (
		d   domain.Dimensions
		err error
	)
	if d.UnitID, err = lookupID(ctx, q, unitDim, h.Unit); err != nil {
		return d, err
	}
	if d.CommodityID, err = lookupID(ctx, q, commodityDim, h.Commodity); err != nil {
		return d, err
	}
	if d.SourceSystemID, err = lookupID(ctx, q, sourceSystemDim, h.SourceSystem); err != nil {
		return d, err
	}
	if d.ReadingTypeID, err = lookupID(ctx, q, readingTypeDim, h.ReadingType); err != nil {
		return d, err
	}
	return d, nil
}

// InsertMeter creates the meter row and returns its generated id.
func InsertMeter(ctx context.Context, q database.Querier, description string, d domain.Dimensions) (int64, error) {
	var id int64
	err := q.GetContext(ctx, &id,
		`INSERT INTO meter (description, unit_id, commodity_id, source_system_id, reading_type_id)
		 VALUES ($1, $2, $3, $4, $5) RETURNING id`,
		description, d.UnitID, d.CommodityID, d.SourceSystemID, d.ReadingTypeID)
	if err != nil {
		return 0, fmt.Errorf("failed to insert meter: %w", err)
	}
	return id, nil
}

// Repos serves read queries over the warehouse.
type Repos struct {
	db *sqlx.DB
}

func New(db *sqlx.DB) *Repos { return &Repos{db: db} }

const meterDetailSelect = `
	SELECT m.id, m.description, m.unit_id, m.commodity_id, m.source_system_id, m.reading_type_id,
	       u.old_unit AS unit, c.name AS commodity, s.name AS source_system, r.name AS reading_type
	FROM meter m
	JOIN unit u ON u.id = m.unit_id
	JOIN commodity c ON c.id = m.commodity_id
	JOIN source_system s ON s.id = m.source_system_id
	JOIN reading_type r ON r.id = m.reading_type_id`

func (r *Repos) ListMeters(ctx context.Context) ([]domain.MeterDetail, error) {
	out := []domain.MeterDetail{}
	err := r.db.SelectContext(ctx, &out, meterDetailSelect+` ORDER BY m.id`)
	return out, err
}

func (r *Repos) GetMeter(ctx context.Context, id int64) (domain.MeterDetail, error) {
	var m domain.MeterDetail
	err := r.db.GetContext(ctx, &m, meterDetailSelect+` WHERE m.id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return m, fmt.Errorf("meter %d: %w", id, ErrNotFound)
	}
	return m, err
}

// MeterReadings returns up to limit readings of a meter, oldest first.
func (r *Repos) MeterReadings(ctx context.Context, meterID int64, limit int) ([]domain.Reading, error) {
	out := []domain.Reading{}
	err := r.db.SelectContext(ctx, &out,
		`SELECT meter_id, time_stamp_utc, reading FROM meter_value
		 WHERE meter_id = $1 ORDER BY time_stamp_utc LIMIT $2`, meterID, limit)
	return out, err
}

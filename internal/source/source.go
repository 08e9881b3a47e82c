// Package source describes the telemetry databases readings are extracted
// from. A source system is data, not code: its request file header, its
// query templates and the unit policy used to classify its meters.
package source

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/ANIKETSHETTY47/building-energy-warehouse/internal/classify"
	"github.com/ANIKETSHETTY47/building-energy-warehouse/internal/request"
)

// Source is one telemetry database. Query templates use sqlx named
// parameters :source_id, :quantity_id, :start and :end.
type Source struct {
	Name          string
	RequestHeader []string
	Policy        classify.UnitPolicy

	DescriptionQuery  string
	QuantityNameQuery string // set only for sources with named quantities
	SampleQuery       string
	ReadingsQuery     string
}

// UsesQuantityNames reports whether the unit hint comes from the database
// rather than from the request file.
func (s Source) UsesQuantityNames() bool { return s.QuantityNameQuery != "" }

// Params are the named parameters bound into the query templates.
type Params struct {
	SourceID   int64     `db:"source_id"`
	QuantityID int64     `db:"quantity_id"`
	Start      time.Time `db:"start"`
	End        time.Time `db:"end"`
}

// ParamsFor returns the query parameters of a meter request.
func ParamsFor(m request.MeterDescriptor) Params {
	return Params{
		SourceID:   m.SourceID,
		QuantityID: m.QuantityID,
		Start:      m.Window.Start,
		End:        m.Window.End,
	}
}

// Bind expands a named template into a positional query for the given
// driver bindvar style.
func Bind(rebind func(string) string, template string, p Params) (string, []any, error) {
	q, args, err := sqlx.Named(template, p)
	if err != nil {
		return "", nil, fmt.Errorf("failed to bind query parameters: %w", err)
	}
	return rebind(q), args, nil
}

// ION is the power-monitoring database. Meters are (source, quantity) pairs
// and the quantity name carries the unit.
var ION = Source{
	Name:          "ION",
	RequestHeader: []string{request.ColSourceID, request.ColQuantityID, request.ColStartDate, request.ColEndDate},
	Policy:        classify.NameBased{},

	DescriptionQuery:  `SELECT TOP 1 Name FROM Source WHERE ID = :source_id`,
	QuantityNameQuery: `SELECT TOP 1 Name FROM Quantity WHERE ID = :quantity_id`,
	SampleQuery: `
		SELECT TOP 100 TimestampUTC, Value
		FROM DataLog2
		WHERE SourceID = :source_id AND QuantityID = :quantity_id
		  AND TimestampUTC >= :start AND TimestampUTC < :end
		ORDER BY TimestampUTC ASC`,
	ReadingsQuery: `
		SELECT TimestampUTC, Value
		FROM DataLog2
		WHERE SourceID = :source_id AND QuantityID = :quantity_id
		  AND TimestampUTC >= :start AND TimestampUTC < :end
		ORDER BY TimestampUTC ASC`,
}

// JCI is the Metasys building-automation database. The operator supplies
// each point's unit in the request file.
var JCI = Source{
	Name:          "JCI",
	RequestHeader: []string{request.ColSourceID, request.ColStartDate, request.ColEndDate, request.ColUnit},
	Policy:        classify.HintBased{},

	DescriptionQuery: `SELECT TOP 1 PointName FROM tblPoint WHERE PointID = :source_id`,
	SampleQuery: `
		SELECT TOP 100 UTCDateTime, ActualValue
		FROM tblActualValueFloat
		WHERE PointSliceID = :source_id
		  AND UTCDateTime >= :start AND UTCDateTime < :end
		ORDER BY UTCDateTime ASC`,
	ReadingsQuery: `
		SELECT UTCDateTime, ActualValue
		FROM tblActualValueFloat
		WHERE PointSliceID = :source_id
		  AND UTCDateTime >= :start AND UTCDateTime < :end
		ORDER BY UTCDateTime ASC`,
}

var registry = map[string]Source{
	ION.Name: ION,
	JCI.Name: JCI,
}

// Lookup finds a source system by case-insensitive name.
func Lookup(name string) (Source, error) {
	s, ok := registry[strings.ToUpper(name)]
	if !ok {
		return Source{}, fmt.Errorf("unknown source system %q (known: %s)", name, strings.Join(Names(), ", "))
	}
	return s, nil
}

// Names lists the registered source systems.
func Names() []string {
	names := make([]string, 0, len(registry))
	for n := range registry {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

package source

import (
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ANIKETSHETTY47/building-energy-warehouse/internal/request"
)

func TestLookup(t *testing.T) {
	s, err := Lookup("ion")
	require.NoError(t, err)
	assert.Equal(t, "ION", s.Name)
	assert.True(t, s.UsesQuantityNames())

	s, err = Lookup("JCI")
	require.NoError(t, err)
	assert.False(t, s.UsesQuantityNames())

	_, err = Lookup("bacnet")
	assert.ErrorContains(t, err, "known: ION, JCI")
}

func TestBindSQLServer(t *testing.T) {
	m := request.MeterDescriptor{
		SourceID:   42,
		QuantityID: 7,
		Window: request.Window{
			Start: time.Date(2014, 1, 1, 0, 0, 0, 0, time.UTC),
			End:   time.Date(2014, 1, 2, 0, 0, 0, 0, time.UTC),
		},
	}
	rebind := func(q string) string { return sqlx.Rebind(sqlx.BindType("sqlserver"), q) }

	q, args, err := Bind(rebind, ION.SampleQuery, ParamsFor(m))
	require.NoError(t, err)
	assert.Contains(t, q, "SourceID = @p1 AND QuantityID = @p2")
	assert.Contains(t, q, "TimestampUTC >= @p3 AND TimestampUTC < @p4")
	assert.Equal(t, []any{int64(42), int64(7), m.Window.Start, m.Window.End}, args)

	q, args, err = Bind(rebind, JCI.DescriptionQuery, ParamsFor(m))
	require.NoError(t, err)
	assert.Equal(t, "SELECT TOP 1 PointName FROM tblPoint WHERE PointID = @p1", q)
	assert.Equal(t, []any{int64(42)}, args)
}

func TestRequestHeaders(t *testing.T) {
	assert.Equal(t, []string{"SourceID", "QuantityID", "start_date", "end_date"}, ION.RequestHeader)
	assert.Equal(t, []string{"SourceID", "start_date", "end_date", "unit"}, JCI.RequestHeader)
}

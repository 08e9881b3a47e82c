package loader

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/alicebob/miniredis/v2"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ANIKETSHETTY47/building-energy-warehouse/internal/datafile"
	"github.com/ANIKETSHETTY47/building-energy-warehouse/internal/lock"
	"github.com/ANIKETSHETTY47/building-energy-warehouse/internal/repository"
)

const body = "Main Feeder,kWh,Electricity,ION,Totalization\n" +
	"2014-01-01 00:00:00,10\n" +
	"2014-01-01 00:15:00,NULL\n" +
	"2014-01-01 00:30:00,12.5\n"

var t0 = time.Date(2014, 1, 1, 0, 0, 0, 0, time.UTC)

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "ION_42_2014-01-01_2014-01-02.csv")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func newLoader(t *testing.T, opts Options) (*Loader, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return New(sqlx.NewDb(db, "pgx"), opts, zerolog.Nop()), mock
}

func q(s string) string { return regexp.QuoteMeta(s) }

func expectMeterCreated(mock sqlmock.Sqlmock, meterID int64) {
	mock.ExpectBegin()
	for _, table := range []string{"unit", "commodity", "source_system", "reading_type"} {
		mock.ExpectQuery(q("SELECT id FROM " + table + " ")).WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(1))
	}
	mock.ExpectQuery(q("INSERT INTO meter ")).
		WithArgs("Main Feeder", int64(1), int64(1), int64(1), int64(1)).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(meterID))
}

var execOK = sqlmock.NewResult(0, 0)

// stagingSteps expects the statements of a successful staging run, in
// order, with batch size 2. failAt names a step to fail instead.
func stagingSteps(mock sqlmock.Sqlmock, failAt string) {
	boom := errors.New("boom")
	step := func(name string, e *sqlmock.ExpectedExec) bool {
		if name == failAt {
			e.WillReturnError(boom)
			return false
		}
		e.WillReturnResult(execOK)
		return true
	}

	if !step("create", mock.ExpectExec(q(`CREATE TEMP TABLE "tmp_77" (time_stamp_utc TIMESTAMP NOT NULL, reading NUMERIC) ON COMMIT DROP`))) {
		return
	}
	if !step("stage", mock.ExpectExec(q(`INSERT INTO "tmp_77" (time_stamp_utc, reading) VALUES ($1, $2), ($3, $4)`)).
		WithArgs(t0, "10", t0.Add(15*time.Minute), nil)) {
		return
	}
	mock.ExpectExec(q(`INSERT INTO "tmp_77" (time_stamp_utc, reading) VALUES ($1, $2)`)).
		WithArgs(t0.Add(30*time.Minute), "12.5").WillReturnResult(execOK)
	if !step("alter", mock.ExpectExec(q(`ALTER TABLE "tmp_77" ADD COLUMN meter_id BIGINT NOT NULL DEFAULT 77`))) {
		return
	}
	if !step("insert", mock.ExpectExec(q(`INSERT INTO meter_value (meter_id, time_stamp_utc, reading) SELECT meter_id, time_stamp_utc, reading FROM "tmp_77"`))) {
		return
	}
	step("drop", mock.ExpectExec(q(`DROP TABLE IF EXISTS "tmp_77"`)))
}

func TestLoad(t *testing.T) {
	l, mock := newLoader(t, Options{BatchSize: 2})
	path := writeFile(t, body)

	expectMeterCreated(mock, 77)
	stagingSteps(mock, "")
	mock.ExpectCommit()

	outcome, err := l.Load(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, Loaded, outcome)
	assert.NoError(t, mock.ExpectationsWereMet())

	_, err = os.Stat(path)
	assert.NoError(t, err, "the loader leaves archiving to its caller")
}

func TestLoadUnknownUnitCreatesNothing(t *testing.T) {
	l, mock := newLoader(t, Options{})
	path := writeFile(t, "Main,furlongs,Electricity,ION,Totalization\n2014-01-01 00:00:00,1\n")

	mock.ExpectBegin()
	mock.ExpectQuery(q("SELECT id FROM unit ")).WithArgs("furlongs").WillReturnRows(sqlmock.NewRows([]string{"id"}))
	mock.ExpectRollback()

	outcome, err := l.Load(context.Background(), path)
	assert.Equal(t, Failed, outcome)

	var le *repository.DimensionLookupError
	require.True(t, errors.As(err, &le), "got %v", err)
	assert.Equal(t, "unit", le.Table)
	assert.Equal(t, "furlongs", le.Value)

	// no meter insert, no staging
	assert.NoError(t, mock.ExpectationsWereMet())
	_, err = os.Stat(path)
	assert.NoError(t, err)
}

func TestLoadStagingFailureRollsBack(t *testing.T) {
	for _, step := range []string{"create", "stage", "alter", "insert", "drop"} {
		t.Run(step, func(t *testing.T) {
			l, mock := newLoader(t, Options{BatchSize: 2})
			path := writeFile(t, body)

			expectMeterCreated(mock, 77)
			stagingSteps(mock, step)
			mock.ExpectRollback()

			outcome, err := l.Load(context.Background(), path)
			assert.Equal(t, FailedAfterDimensionCreate, outcome)

			var se *StagingError
			require.True(t, errors.As(err, &se), "got %v", err)
			assert.Equal(t, int64(77), se.MeterID)
			assert.Equal(t, path, se.Path)
			assert.ErrorContains(t, err, "boom")

			// the rollback discards the meter row and the staging table
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestLoadCancelledWhileStagingRollsBack(t *testing.T) {
	l, mock := newLoader(t, Options{BatchSize: 2})
	path := writeFile(t, body)

	expectMeterCreated(mock, 77)
	mock.ExpectExec(q(`CREATE TEMP TABLE "tmp_77"`)).WillReturnResult(execOK)
	mock.ExpectExec(q(`INSERT INTO "tmp_77"`)).WillDelayFor(time.Minute).WillReturnResult(execOK)
	mock.ExpectRollback()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	time.AfterFunc(100*time.Millisecond, cancel)

	outcome, err := l.Load(ctx, path)
	assert.Equal(t, FailedAfterDimensionCreate, outcome)

	var se *StagingError
	require.True(t, errors.As(err, &se), "got %v", err)
	assert.Equal(t, "stage readings", se.Step)

	// no commit was issued; the rollback took the staging table with it
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLoadCommitFailure(t *testing.T) {
	l, mock := newLoader(t, Options{BatchSize: 2})
	path := writeFile(t, body)

	expectMeterCreated(mock, 77)
	stagingSteps(mock, "")
	mock.ExpectCommit().WillReturnError(errors.New("serialization failure"))

	outcome, err := l.Load(context.Background(), path)
	assert.Equal(t, FailedAfterDimensionCreate, outcome)
	var se *StagingError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, "commit", se.Step)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLoadBadRowRollsBack(t *testing.T) {
	l, mock := newLoader(t, Options{BatchSize: 2})
	path := writeFile(t, "Main Feeder,kWh,Electricity,ION,Totalization\nnot-a-time,1\n")

	expectMeterCreated(mock, 77)
	mock.ExpectExec(q(`CREATE TEMP TABLE "tmp_77"`)).WillReturnResult(execOK)
	mock.ExpectRollback()

	outcome, err := l.Load(context.Background(), path)
	assert.Equal(t, FailedAfterDimensionCreate, outcome)
	assert.ErrorContains(t, err, "stage readings")
	assert.ErrorContains(t, err, "line 2")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLoadBadHeaderTouchesNoDatabase(t *testing.T) {
	l, mock := newLoader(t, Options{})
	path := writeFile(t, "Main,kWh,Electricity,ION\n2014-01-01 00:00:00,1\n")

	outcome, err := l.Load(context.Background(), path)
	assert.Equal(t, Failed, outcome)
	var he *datafile.HeaderError
	assert.True(t, errors.As(err, &he))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLoadSkipsFileClaimedElsewhere(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	l, mock := newLoader(t, Options{Locks: lock.RedisFactory(client, time.Minute)})
	path := writeFile(t, body)

	held, err := lock.NewRedisLock(client, "load:"+filepath.Base(path), time.Minute).Acquire(context.Background())
	require.NoError(t, err)
	require.True(t, held)

	outcome, err := l.Load(context.Background(), path)
	assert.Equal(t, Failed, outcome)
	assert.ErrorIs(t, err, ErrFileLocked)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLoadReleasesClaim(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	l, mock := newLoader(t, Options{BatchSize: 2, Locks: lock.RedisFactory(client, time.Minute)})
	path := writeFile(t, body)

	expectMeterCreated(mock, 77)
	stagingSteps(mock, "")
	mock.ExpectCommit()

	outcome, err := l.Load(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, Loaded, outcome)
	assert.False(t, mr.Exists("lock:load:"+filepath.Base(path)))
}

func TestInsertStatement(t *testing.T) {
	assert.Equal(t, `INSERT INTO "tmp_5" (time_stamp_utc, reading) VALUES ($1, $2), ($3, $4), ($5, $6)`,
		insertStatement(StagingTable(5), 3))
}

func TestOutcomeString(t *testing.T) {
	assert.Equal(t, "loaded", Loaded.String())
	assert.Equal(t, "failed after dimension create", FailedAfterDimensionCreate.String())
}

package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/spotgrid/internal/model"
	"github.com/sells-group/spotgrid/internal/resilience"
)

// newMockPostgresStore creates a PostgresStore backed by pgxmock for unit testing.
func newMockPostgresStore(t *testing.T) (*PostgresStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { mock.Close() })

	return newPostgresWithPool(mock, 2*time.Second), mock
}

func TestPostgresStore_GetRun_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT id, status, params, last_spot_id, committed, summary, error, created_at, updated_at FROM runs WHERE id = \$1`).
		WithArgs("nonexistent-run").
		WillReturnError(pgx.ErrNoRows)

	_, err := s.GetRun(context.Background(), "nonexistent-run")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNotFound))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetRun(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	now := time.Now().UTC()

	mock.ExpectQuery(`FROM runs WHERE id = \$1`).
		WithArgs("run-1").
		WillReturnRows(pgxmock.NewRows([]string{"id", "status", "params", "last_spot_id", "committed", "summary", "error", "created_at", "updated_at"}).
			AddRow("run-1", "complete", []byte(`{"limit":10,"dry_run":false}`), int64(99), 10, []byte(`{"run_id":"run-1","written":10}`), "", now, now))

	run, err := s.GetRun(context.Background(), "run-1")
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusComplete, run.Status)
	assert.Equal(t, 10, run.Params.Limit)
	assert.Equal(t, int64(99), run.LastSpotID)
	require.NotNil(t, run.Summary)
	assert.Equal(t, 10, run.Summary.Written)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_AcquireWriter(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT pg_try_advisory_xact_lock`).
		WithArgs(writerLockKey).
		WillReturnRows(pgxmock.NewRows([]string{"ok"}).AddRow(true))
	mock.ExpectRollback()

	lease, err := s.AcquireWriter(context.Background())
	require.NoError(t, err)
	require.NoError(t, lease.Release(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_RenewWriter(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT pg_try_advisory_xact_lock`).
		WithArgs(writerLockKey).
		WillReturnRows(pgxmock.NewRows([]string{"ok"}).AddRow(true))
	mock.ExpectExec(`SELECT 1`).WillReturnResult(pgxmock.NewResult("SELECT", 1))
	mock.ExpectExec(`SELECT 1`).WillReturnError(errors.New("terminating connection due to idle-in-transaction timeout"))
	mock.ExpectRollback()

	lease, err := s.AcquireWriter(context.Background())
	require.NoError(t, err)
	require.NoError(t, lease.Renew(context.Background()))

	err = lease.Renew(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrStoreBusy))
	require.NoError(t, lease.Release(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_AcquireWriter_Held(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT pg_try_advisory_xact_lock`).
		WithArgs(writerLockKey).
		WillReturnRows(pgxmock.NewRows([]string{"ok"}).AddRow(false))
	mock.ExpectRollback()

	_, err := s.AcquireWriter(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrStoreBusy))
	assert.True(t, resilience.IsTransient(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_SaveAssignments(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectBegin()
	mock.ExpectExec(`SET LOCAL lock_timeout = '2000ms'`).WillReturnResult(pgxmock.NewResult("SET", 0))
	mock.ExpectExec(`CREATE TEMP TABLE`).WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectCopyFrom(pgx.Identifier{"_tmp_upsert_spot_assignments"}, assignmentColumns).WillReturnResult(4)
	mock.ExpectExec(`INSERT INTO "spot_assignments"`).WillReturnResult(pgxmock.NewResult("INSERT", 4))
	mock.ExpectCommit()

	require.NoError(t, s.SaveAssignments(context.Background(), testAssignments()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_SaveAssignments_LockTimeout(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectBegin()
	mock.ExpectExec(`SET LOCAL lock_timeout`).WillReturnResult(pgxmock.NewResult("SET", 0))
	mock.ExpectExec(`CREATE TEMP TABLE`).
		WillReturnError(&pgconn.PgError{Code: "55P03", Message: "canceling statement due to lock timeout"})
	mock.ExpectRollback()

	err := s.SaveAssignments(context.Background(), testAssignments())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrStoreBusy))
	assert.True(t, resilience.IsTransient(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_SaveAssignments_CheckViolation(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectBegin()
	mock.ExpectExec(`SET LOCAL lock_timeout`).WillReturnResult(pgxmock.NewResult("SET", 0))
	mock.ExpectExec(`CREATE TEMP TABLE`).WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectCopyFrom(pgx.Identifier{"_tmp_upsert_spot_assignments"}, assignmentColumns).WillReturnResult(4)
	mock.ExpectExec(`INSERT INTO`).
		WillReturnError(&pgconn.PgError{Code: "23514", Message: `violates check constraint "no_grid_shape"`})
	mock.ExpectRollback()

	err := s.SaveAssignments(context.Background(), testAssignments())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrConstraint))
	assert.False(t, resilience.IsTransient(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_SaveAssignments_InvalidNeverReachesDB(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	batch := testAssignments()
	batch[3].BlockID = model.Int64Ptr(7)

	err := s.SaveAssignments(context.Background(), batch)
	var cv *model.ConstraintViolation
	require.True(t, errors.As(err, &cv))
	assert.Equal(t, int64(4), cv.SpotID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ListSpots(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	from := date("2025-03-01")

	mock.ExpectQuery(`FROM spots WHERE id > \$1 AND air_date >= \$2 ORDER BY id LIMIT \$3`).
		WithArgs(int64(0), from, 10).
		WillReturnRows(pgxmock.NewRows(spotColumns).
			AddRow(int64(1), "DAL", date("2025-03-03"), int16(1), "20:00:00", "21:00:00", int64(30), "commercial",
				decimal.RequireFromString("125.50"), "Internal Ad Sales", (*string)(nil), model.StrPtr("RETAIL"), "", (*string)(nil)))

	spots, err := s.ListSpots(context.Background(), SpotFilter{From: &from, Limit: 10})
	require.NoError(t, err)
	require.Len(t, spots, 1)
	assert.Equal(t, time.Monday, spots[0].DayOfWeek)
	assert.Equal(t, 30*time.Second, spots[0].Duration)
	assert.Nil(t, spots[0].Agency)
	require.NotNil(t, spots[0].Sector)
	assert.Equal(t, "RETAIL", *spots[0].Sector)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_RecordCollision(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`INSERT INTO schedule_collisions`).
		WithArgs("market_overlap", "error", "DAL", pgxmock.AnyArg(), pgxmock.AnyArg(), []int64{10, 11},
			pgxmock.AnyArg(), "tie", pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err := s.RecordCollision(context.Background(), model.Collision{
		Type: model.CollisionMarketOverlap, Severity: model.SeverityError, Market: "DAL",
		CandidateIDs: []int64{10, 11}, ChosenID: model.Int64Ptr(11), Message: "tie",
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_SaveGrid(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectBegin()
	mock.ExpectExec(`SET LOCAL lock_timeout`).WillReturnResult(pgxmock.NewResult("SET", 0))
	mock.ExpectExec(`DELETE FROM language_blocks`).WillReturnResult(pgxmock.NewResult("DELETE", 0))
	mock.ExpectCopyFrom(pgx.Identifier{"schedules"}, []string{"id", "name", "version", "type", "effective_start", "effective_end"}).WillReturnResult(1)
	mock.ExpectCopyFrom(pgx.Identifier{"market_assignments"}, []string{"id", "market", "schedule_id", "effective_start", "effective_end", "priority", "created_at"}).WillReturnResult(1)
	mock.ExpectCopyFrom(pgx.Identifier{"language_blocks"}, []string{"id", "schedule_id", "day", "start_sec", "end_sec", "language", "name", "block_type", "day_part"}).WillReturnResult(2)
	mock.ExpectCommit()

	require.NoError(t, s.SaveGrid(context.Background(), testGrid()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestClassifyPG(t *testing.T) {
	tests := []struct {
		code      string
		busy      bool
		violation bool
	}{
		{"55P03", true, false},
		{"40P01", true, false},
		{"23514", false, true},
		{"42P01", false, false},
	}
	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			err := classifyPG(&pgconn.PgError{Code: tt.code}, "op")
			assert.Equal(t, tt.busy, errors.Is(err, ErrStoreBusy))
			assert.Equal(t, tt.violation, errors.Is(err, ErrConstraint))
		})
	}
	assert.NoError(t, classifyPG(nil, "op"))
}

func TestPostgresStore_SaveSpots(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectBegin()
	mock.ExpectExec(`CREATE TEMP TABLE`).WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectCopyFrom(pgx.Identifier{"_tmp_upsert_spots"}, spotColumns).WillReturnResult(1)
	mock.ExpectExec(`INSERT INTO "spots"`).WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	err := s.SaveSpots(context.Background(), []model.Spot{{
		ID: 1, Market: "DAL", AirDate: time.Date(2024, 6, 3, 0, 0, 0, 0, time.UTC), DayOfWeek: time.Monday,
		TimeIn: "20:00:00", TimeOut: "20:00:30", Duration: 30 * time.Second, Kind: model.KindCommercial,
		Revenue: decimal.RequireFromString("100"), RevenueType: "Local",
	}})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_SaveSpots_Constraint(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectBegin()
	mock.ExpectExec(`CREATE TEMP TABLE`).WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectCopyFrom(pgx.Identifier{"_tmp_upsert_spots"}, spotColumns).WillReturnResult(1)
	mock.ExpectExec(`INSERT INTO "spots"`).
		WillReturnError(&pgconn.PgError{Code: "23502", Message: `null value in column "market"`})
	mock.ExpectRollback()

	err := s.SaveSpots(context.Background(), []model.Spot{{ID: 1, Revenue: decimal.Zero}})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrConstraint))
	assert.NoError(t, mock.ExpectationsWereMet())
}

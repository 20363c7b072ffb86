package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/spotgrid/internal/db"
	"github.com/sells-group/spotgrid/internal/model"
	"github.com/sells-group/spotgrid/internal/resilience"
)

// writerLockKey is the advisory lock that serializes assignment runs.
const writerLockKey int64 = 0x5907641D

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool        db.Pool
	closeFn     func()
	lockTimeout time.Duration
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns    int32         `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32         `yaml:"min_conns" mapstructure:"min_conns"`
	LockTimeout time.Duration `yaml:"lock_timeout" mapstructure:"lock_timeout"`
}

// preparedStatements lists queries to prepare on each new connection for
// faster execution of the most frequently used store operations.
var preparedStatements = map[string]string{
	"checkpoint_run":   `UPDATE runs SET last_spot_id = $1, committed = $2, updated_at = $3 WHERE id = $4`,
	"get_run":          `SELECT id, status, params, last_spot_id, committed, summary, error, created_at, updated_at FROM runs WHERE id = $1`,
	"record_collision": `INSERT INTO schedule_collisions (type, severity, market, schedule_id, date, candidate_ids, chosen_id, message, detected_at) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	lockTimeout := 5 * time.Second
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
		if poolCfg.LockTimeout > 0 {
			lockTimeout = poolCfg.LockTimeout
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pgxCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		for name, sql := range preparedStatements {
			if _, err := conn.Prepare(ctx, name, sql); err != nil {
				return eris.Wrapf(err, "postgres: prepare %s", name)
			}
		}
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close, lockTimeout: lockTimeout}, nil
}

// newPostgresWithPool wraps an existing pool (pgxmock in tests).
func newPostgresWithPool(pool db.Pool, lockTimeout time.Duration) *PostgresStore {
	return &PostgresStore{pool: pool, lockTimeout: lockTimeout}
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS spots (
	id            BIGINT PRIMARY KEY,
	market        TEXT NOT NULL,
	air_date      DATE NOT NULL,
	day_of_week   SMALLINT NOT NULL,
	time_in       TEXT NOT NULL DEFAULT '',
	time_out      TEXT NOT NULL DEFAULT '',
	duration_secs BIGINT NOT NULL DEFAULT 0,
	kind          TEXT NOT NULL,
	revenue       NUMERIC(14,2) NOT NULL DEFAULT 0,
	revenue_type  TEXT NOT NULL DEFAULT '',
	agency        TEXT,
	sector        TEXT,
	billing_code  TEXT NOT NULL DEFAULT '',
	language      TEXT
);

CREATE TABLE IF NOT EXISTS schedules (
	id              BIGINT PRIMARY KEY,
	name            TEXT NOT NULL,
	version         INTEGER NOT NULL DEFAULT 1,
	type            TEXT NOT NULL DEFAULT 'standard',
	effective_start DATE NOT NULL,
	effective_end   DATE
);

CREATE TABLE IF NOT EXISTS market_assignments (
	id              BIGINT PRIMARY KEY,
	market          TEXT NOT NULL,
	schedule_id     BIGINT NOT NULL REFERENCES schedules(id),
	effective_start DATE NOT NULL,
	effective_end   DATE,
	priority        INTEGER NOT NULL DEFAULT 0,
	created_at      TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS language_blocks (
	id          BIGINT PRIMARY KEY,
	schedule_id BIGINT NOT NULL REFERENCES schedules(id),
	day         SMALLINT NOT NULL CHECK (day BETWEEN 0 AND 6),
	start_sec   INTEGER NOT NULL,
	end_sec     INTEGER NOT NULL,
	language    TEXT NOT NULL,
	name        TEXT NOT NULL DEFAULT '',
	block_type  TEXT NOT NULL DEFAULT '',
	day_part    TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS spot_assignments (
	spot_id           BIGINT PRIMARY KEY,
	schedule_id       BIGINT,
	block_id          BIGINT,
	spanned_block_ids BIGINT[],
	spans_multiple    BOOLEAN NOT NULL DEFAULT false,
	intent            TEXT NOT NULL,
	method            TEXT NOT NULL,
	needs_review      BOOLEAN NOT NULL DEFAULT false,
	review_reason     TEXT NOT NULL DEFAULT '',
	rule_id           TEXT NOT NULL DEFAULT '',
	rule_category     TEXT NOT NULL DEFAULT '',
	justification     TEXT NOT NULL DEFAULT '',
	CONSTRAINT spans_multiple_shape CHECK (NOT spans_multiple OR (block_id IS NULL AND spanned_block_ids IS NOT NULL)),
	CONSTRAINT no_grid_shape CHECK (intent <> 'no_grid_coverage' OR (block_id IS NULL AND spanned_block_ids IS NULL)),
	CONSTRAINT rule_audit CHECK (method <> 'rule_applied' OR (rule_id <> '' AND justification <> ''))
);

CREATE TABLE IF NOT EXISTS schedule_collisions (
	id            BIGSERIAL PRIMARY KEY,
	type          TEXT NOT NULL,
	severity      TEXT NOT NULL,
	market        TEXT NOT NULL DEFAULT '',
	schedule_id   BIGINT,
	date          DATE,
	candidate_ids BIGINT[] NOT NULL DEFAULT '{}',
	chosen_id     BIGINT,
	message       TEXT NOT NULL,
	detected_at   TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS runs (
	id           TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	status       TEXT NOT NULL DEFAULT 'running',
	params       JSONB NOT NULL,
	last_spot_id BIGINT NOT NULL DEFAULT 0,
	committed    INTEGER NOT NULL DEFAULT 0,
	summary      JSONB,
	error        TEXT NOT NULL DEFAULT '',
	created_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at   TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_spots_air_date ON spots(air_date);
CREATE INDEX IF NOT EXISTS idx_market_assignments_market ON market_assignments(market);
CREATE INDEX IF NOT EXISTS idx_language_blocks_schedule_day ON language_blocks(schedule_id, day);
CREATE INDEX IF NOT EXISTS idx_collisions_type ON schedule_collisions(type);
CREATE INDEX IF NOT EXISTS idx_runs_status ON runs(status);
`

func (s *PostgresStore) Ping(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, "SELECT 1")
	return eris.Wrap(err, "postgres: ping")
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

// classifyPG maps SQLSTATE codes onto the store taxonomy.
func classifyPG(err error, op string) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrStoreBusy) || errors.Is(err, ErrConstraint) {
		return err
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "55P03", "40P01", "40001":
			return resilience.NewTransientError(
				eris.Wrapf(ErrStoreBusy, "postgres: %s: %s (SQLSTATE %s)", op, pgErr.Message, pgErr.Code), pgErr.Code)
		case "23514", "23505", "23502", "23503":
			return eris.Wrapf(ErrConstraint, "postgres: %s: %s (SQLSTATE %s)", op, pgErr.Message, pgErr.Code)
		}
	}
	return eris.Wrapf(err, "postgres: %s", op)
}

// withTx runs fn in a transaction with a bounded lock wait.
func (s *PostgresStore) withTx(ctx context.Context, op string, fn func(tx pgx.Tx) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return classifyPG(err, op+": begin tx")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if _, err := tx.Exec(ctx, fmt.Sprintf("SET LOCAL lock_timeout = '%dms'", s.lockTimeout.Milliseconds())); err != nil {
		return classifyPG(err, op+": set lock_timeout")
	}
	if err := fn(tx); err != nil {
		return classifyPG(err, op)
	}
	return classifyPG(tx.Commit(ctx), op+": commit")
}

// --- spots ---

var spotColumns = []string{
	"id", "market", "air_date", "day_of_week", "time_in", "time_out", "duration_secs", "kind",
	"revenue", "revenue_type", "agency", "sector", "billing_code", "language",
}

func (s *PostgresStore) ListSpots(ctx context.Context, filter SpotFilter) ([]model.Spot, error) {
	args := []any{filter.AfterID}
	query := `SELECT ` + strings.Join(spotColumns, ", ") + ` FROM spots WHERE id > $1`

	if filter.From != nil {
		args = append(args, *filter.From)
		query += fmt.Sprintf(` AND air_date >= $%d`, len(args))
	}
	if filter.To != nil {
		args = append(args, *filter.To)
		query += fmt.Sprintf(` AND air_date <= $%d`, len(args))
	}
	if filter.Market != "" {
		args = append(args, filter.Market)
		query += fmt.Sprintf(` AND upper(market) = upper($%d)`, len(args))
	}
	query += ` ORDER BY id`
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(` LIMIT $%d`, len(args))
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list spots")
	}
	defer rows.Close()

	var spots []model.Spot
	for rows.Next() {
		var sp model.Spot
		var day int16
		var durSecs int64
		var kind string
		if err := rows.Scan(&sp.ID, &sp.Market, &sp.AirDate, &day, &sp.TimeIn, &sp.TimeOut, &durSecs, &kind,
			&sp.Revenue, &sp.RevenueType, &sp.Agency, &sp.Sector, &sp.BillingCode, &sp.Language); err != nil {
			return nil, eris.Wrap(err, "postgres: scan spot")
		}
		sp.DayOfWeek = time.Weekday(day)
		sp.Duration = time.Duration(durSecs) * time.Second
		sp.Kind = model.SpotKind(kind)
		spots = append(spots, sp)
	}
	return spots, eris.Wrap(rows.Err(), "postgres: list spots iterate")
}

func (s *PostgresStore) SaveSpots(ctx context.Context, spots []model.Spot) error {
	rows := make([][]any, len(spots))
	for i := range spots {
		sp := &spots[i]
		rows[i] = []any{sp.ID, sp.Market, sp.AirDate, int16(sp.DayOfWeek), sp.TimeIn, sp.TimeOut,
			int64(sp.Duration / time.Second), string(sp.Kind), sp.Revenue, sp.RevenueType, sp.Agency, sp.Sector,
			sp.BillingCode, sp.Language}
	}
	// Imports run outside the writer lease, so no lock_timeout applies.
	n, err := db.BulkUpsert(ctx, s.pool, db.UpsertConfig{
		Table:        "spots",
		Columns:      spotColumns,
		ConflictKeys: []string{"id"},
	}, rows)
	if err != nil {
		return classifyPG(err, "save spots")
	}
	zap.L().Debug("postgres: spots saved", zap.Int64("rows", n))
	return nil
}

// --- grid ---

func (s *PostgresStore) LoadGrid(ctx context.Context) (*model.Grid, error) {
	grid := &model.Grid{}

	rows, err := s.pool.Query(ctx,
		`SELECT id, name, version, type, effective_start, effective_end FROM schedules ORDER BY id`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: load schedules")
	}
	for rows.Next() {
		var sc model.Schedule
		var typ string
		if err := rows.Scan(&sc.ID, &sc.Name, &sc.Version, &typ, &sc.EffectiveStart, &sc.EffectiveEnd); err != nil {
			rows.Close()
			return nil, eris.Wrap(err, "postgres: scan schedule")
		}
		sc.Type = model.ScheduleType(typ)
		grid.Schedules = append(grid.Schedules, sc)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "postgres: load schedules iterate")
	}

	rows, err = s.pool.Query(ctx,
		`SELECT id, market, schedule_id, effective_start, effective_end, priority, created_at
		 FROM market_assignments ORDER BY id`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: load market assignments")
	}
	for rows.Next() {
		var ma model.MarketAssignment
		if err := rows.Scan(&ma.ID, &ma.Market, &ma.ScheduleID, &ma.EffectiveStart, &ma.EffectiveEnd,
			&ma.Priority, &ma.CreatedAt); err != nil {
			rows.Close()
			return nil, eris.Wrap(err, "postgres: scan market assignment")
		}
		grid.Assignments = append(grid.Assignments, ma)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "postgres: load market assignments iterate")
	}

	rows, err = s.pool.Query(ctx,
		`SELECT id, schedule_id, day, start_sec, end_sec, language, name, block_type, day_part
		 FROM language_blocks ORDER BY id`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: load blocks")
	}
	defer rows.Close()
	for rows.Next() {
		var b model.Block
		var day int16
		var start, end int32
		if err := rows.Scan(&b.ID, &b.ScheduleID, &day, &start, &end, &b.Language, &b.Name, &b.BlockType, &b.DayPart); err != nil {
			return nil, eris.Wrap(err, "postgres: scan block")
		}
		b.Day = time.Weekday(day)
		b.Start, b.End = model.ClockTime(start), model.ClockTime(end)
		grid.Blocks = append(grid.Blocks, b)
	}
	return grid, eris.Wrap(rows.Err(), "postgres: load blocks iterate")
}

// SaveGrid replaces the stored grid with g in one transaction using COPY.
func (s *PostgresStore) SaveGrid(ctx context.Context, g *model.Grid) error {
	return s.withTx(ctx, "save grid", func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM language_blocks; DELETE FROM market_assignments; DELETE FROM schedules`); err != nil {
			return eris.Wrap(err, "clear grid")
		}

		schedules := make([][]any, len(g.Schedules))
		for i, sc := range g.Schedules {
			schedules[i] = []any{sc.ID, sc.Name, int32(sc.Version), string(sc.Type), sc.EffectiveStart, sc.EffectiveEnd}
		}
		if _, err := db.CopyFrom(ctx, tx, "schedules",
			[]string{"id", "name", "version", "type", "effective_start", "effective_end"}, schedules); err != nil {
			return err
		}

		assignments := make([][]any, len(g.Assignments))
		for i, ma := range g.Assignments {
			assignments[i] = []any{ma.ID, ma.Market, ma.ScheduleID, ma.EffectiveStart, ma.EffectiveEnd,
				int32(ma.Priority), ma.CreatedAt}
		}
		if _, err := db.CopyFrom(ctx, tx, "market_assignments",
			[]string{"id", "market", "schedule_id", "effective_start", "effective_end", "priority", "created_at"},
			assignments); err != nil {
			return err
		}

		blocks := make([][]any, len(g.Blocks))
		for i, b := range g.Blocks {
			blocks[i] = []any{b.ID, b.ScheduleID, int16(b.Day), int32(b.Start), int32(b.End), b.Language, b.Name,
				b.BlockType, b.DayPart}
		}
		_, err := db.CopyFrom(ctx, tx, "language_blocks",
			[]string{"id", "schedule_id", "day", "start_sec", "end_sec", "language", "name", "block_type", "day_part"},
			blocks)
		return err
	})
}

// --- assignments ---

var assignmentUpsert = db.UpsertConfig{
	Table:        "spot_assignments",
	Columns:      assignmentColumns,
	ConflictKeys: []string{"spot_id"},
}

func (s *PostgresStore) ListAssignments(ctx context.Context) ([]model.Assignment, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+strings.Join(assignmentColumns, ", ")+
		` FROM spot_assignments ORDER BY spot_id`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list assignments")
	}
	defer rows.Close()

	var out []model.Assignment
	for rows.Next() {
		var a model.Assignment
		var intent, method string
		if err := rows.Scan(&a.SpotID, &a.ScheduleID, &a.BlockID, &a.SpannedBlockIDs, &a.SpansMultiple,
			&intent, &method, &a.NeedsReview, &a.ReviewReason, &a.RuleID, &a.RuleCategory, &a.Justification); err != nil {
			return nil, eris.Wrap(err, "postgres: scan assignment")
		}
		a.Intent = model.CustomerIntent(intent)
		a.Method = model.AssignmentMethod(method)
		out = append(out, a)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list assignments iterate")
}

// SaveAssignments upserts a batch by spot id through a temp table and COPY,
// inside one transaction bounded by lock_timeout.
func (s *PostgresStore) SaveAssignments(ctx context.Context, batch []model.Assignment) error {
	if len(batch) == 0 {
		return nil
	}
	if err := validateBatch(batch); err != nil {
		return err
	}

	rows := make([][]any, len(batch))
	for i := range batch {
		a := &batch[i]
		rows[i] = []any{a.SpotID, a.ScheduleID, a.BlockID, a.SpannedBlockIDs, a.SpansMultiple, string(a.Intent),
			string(a.Method), a.NeedsReview, a.ReviewReason, a.RuleID, a.RuleCategory, a.Justification}
	}

	return s.withTx(ctx, "save assignments", func(tx pgx.Tx) error {
		n, err := db.BulkUpsertTx(ctx, tx, assignmentUpsert, rows)
		if err != nil {
			return err
		}
		zap.L().Debug("postgres: assignments upserted", zap.Int64("rows", n))
		return nil
	})
}

// --- collisions ---

// RecordCollision appends to the collision log. It satisfies schedule.CollisionSink.
func (s *PostgresStore) RecordCollision(ctx context.Context, c model.Collision) error {
	if c.DetectedAt.IsZero() {
		c.DetectedAt = time.Now().UTC()
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO schedule_collisions (type, severity, market, schedule_id, date, candidate_ids, chosen_id, message, detected_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		string(c.Type), string(c.Severity), c.Market, c.ScheduleID, c.Date, nonNilIDs(c.CandidateIDs), c.ChosenID,
		c.Message, c.DetectedAt,
	)
	return classifyPG(err, "record collision")
}

func (s *PostgresStore) ListCollisions(ctx context.Context, filter CollisionFilter) ([]model.Collision, error) {
	query := `SELECT id, type, severity, market, schedule_id, date, candidate_ids, chosen_id, message, detected_at
		FROM schedule_collisions WHERE 1=1`
	var args []any
	if filter.Type != "" {
		args = append(args, string(filter.Type))
		query += fmt.Sprintf(` AND type = $%d`, len(args))
	}
	if filter.Market != "" {
		args = append(args, filter.Market)
		query += fmt.Sprintf(` AND market = $%d`, len(args))
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	args = append(args, limit)
	query += fmt.Sprintf(` ORDER BY id DESC LIMIT $%d`, len(args))

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list collisions")
	}
	defer rows.Close()

	var out []model.Collision
	for rows.Next() {
		var c model.Collision
		var typ, sev string
		if err := rows.Scan(&c.ID, &typ, &sev, &c.Market, &c.ScheduleID, &c.Date, &c.CandidateIDs, &c.ChosenID,
			&c.Message, &c.DetectedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan collision")
		}
		c.Type, c.Severity = model.CollisionType(typ), model.Severity(sev)
		out = append(out, c)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list collisions iterate")
}

// --- runs ---

func (s *PostgresStore) CreateRun(ctx context.Context, params model.RunParams) (*model.Run, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	paramsJSON, err := json.Marshal(params)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: marshal params")
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO runs (id, status, params, created_at, updated_at) VALUES ($1, $2, $3, $4, $5)`,
		id, string(model.RunStatusRunning), paramsJSON, now, now,
	)
	if err != nil {
		return nil, classifyPG(err, "insert run")
	}

	return &model.Run{
		ID:        id,
		Status:    model.RunStatusRunning,
		Params:    params,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

func (s *PostgresStore) CheckpointRun(ctx context.Context, runID string, lastSpotID int64, committed int) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE runs SET last_spot_id = $1, committed = $2, updated_at = $3 WHERE id = $4`,
		lastSpotID, committed, time.Now().UTC(), runID,
	)
	if err != nil {
		return classifyPG(err, "checkpoint run "+runID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "run %s", runID)
	}
	return nil
}

func (s *PostgresStore) FinishRun(ctx context.Context, runID string, status model.RunStatus, summary *model.RunSummary, runErr string) error {
	var summaryJSON []byte
	if summary != nil {
		var err error
		if summaryJSON, err = json.Marshal(summary); err != nil {
			return eris.Wrap(err, "postgres: marshal summary")
		}
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE runs SET status = $1, summary = $2, error = $3, updated_at = $4 WHERE id = $5`,
		string(status), summaryJSON, runErr, time.Now().UTC(), runID,
	)
	if err != nil {
		return classifyPG(err, "finish run "+runID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "run %s", runID)
	}
	return nil
}

func (s *PostgresStore) GetRun(ctx context.Context, runID string) (*model.Run, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, status, params, last_spot_id, committed, summary, error, created_at, updated_at FROM runs WHERE id = $1`,
		runID,
	)
	r, err := scanPGRun(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "postgres: get run %s", runID)
	}
	return r, err
}

func (s *PostgresStore) ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error) {
	query := `SELECT id, status, params, last_spot_id, committed, summary, error, created_at, updated_at FROM runs WHERE 1=1`
	var args []any

	if filter.Status != "" {
		args = append(args, string(filter.Status))
		query += fmt.Sprintf(` AND status = $%d`, len(args))
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	args = append(args, limit)
	query += fmt.Sprintf(` ORDER BY created_at DESC LIMIT $%d`, len(args))
	if filter.Offset > 0 {
		args = append(args, filter.Offset)
		query += fmt.Sprintf(` OFFSET $%d`, len(args))
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list runs")
	}
	defer rows.Close()

	var runs []model.Run
	for rows.Next() {
		r, err := scanPGRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *r)
	}
	return runs, eris.Wrap(rows.Err(), "postgres: list runs iterate")
}

func scanPGRun(row pgx.Row) (*model.Run, error) {
	var r model.Run
	var status string
	var paramsJSON []byte
	var summaryJSON []byte

	err := row.Scan(&r.ID, &status, &paramsJSON, &r.LastSpotID, &r.Committed, &summaryJSON, &r.Error,
		&r.CreatedAt, &r.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, eris.Wrap(err, "postgres: scan run")
	}
	r.Status = model.RunStatus(status)

	if err := json.Unmarshal(paramsJSON, &r.Params); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal params")
	}
	if summaryJSON != nil {
		r.Summary = &model.RunSummary{}
		if err := json.Unmarshal(summaryJSON, r.Summary); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal summary")
		}
	}
	return &r, nil
}

// --- writer lock ---

// pgLease pins a transaction holding a transaction-scoped advisory lock.
// Ending the transaction releases the lock, even if the process dies.
type pgLease struct {
	tx pgx.Tx
}

// AcquireWriter takes the run-level advisory lock without waiting.
func (s *PostgresStore) AcquireWriter(ctx context.Context) (Lease, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, classifyPG(err, "acquire writer: begin tx")
	}

	var ok bool
	if err := tx.QueryRow(ctx, `SELECT pg_try_advisory_xact_lock($1)`, writerLockKey).Scan(&ok); err != nil {
		_ = tx.Rollback(ctx)
		return nil, classifyPG(err, "acquire writer")
	}
	if !ok {
		_ = tx.Rollback(ctx)
		return nil, resilience.NewTransientError(
			eris.Wrap(ErrStoreBusy, "postgres: writer lock held by another run"), "LOCK_HELD")
	}
	return &pgLease{tx: tx}, nil
}

// Renew touches the pinned transaction so it is not reaped as idle. The lock
// lives as long as the transaction does.
func (l *pgLease) Renew(ctx context.Context) error {
	if _, err := l.tx.Exec(ctx, `SELECT 1`); err != nil {
		return eris.Wrapf(ErrStoreBusy, "postgres: writer lock lost: %v", err)
	}
	return nil
}

func (l *pgLease) Release(ctx context.Context) error {
	return eris.Wrap(l.tx.Rollback(ctx), "postgres: release writer")
}

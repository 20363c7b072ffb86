package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/sells-group/spotgrid/internal/model"
	"github.com/sells-group/spotgrid/internal/resilience"
)

// SQLiteOptions tune the embedded backend.
type SQLiteOptions struct {
	// BusyTimeout bounds how long a write waits on another writer before
	// failing with ErrStoreBusy.
	BusyTimeout time.Duration
	// LeaseTTL is how long an unreleased writer lease blocks other runs.
	LeaseTTL time.Duration
}

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db   *sql.DB
	opts SQLiteOptions
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
// Pragmas are set through the DSN so every pooled connection carries them.
func NewSQLite(path string, opts SQLiteOptions) (*SQLiteStore, error) {
	if opts.BusyTimeout <= 0 {
		opts.BusyTimeout = 5 * time.Second
	}
	if opts.LeaseTTL <= 0 {
		opts.LeaseTTL = time.Hour
	}

	dsn := fmt.Sprintf("%s?_pragma=busy_timeout(%d)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_pragma=foreign_keys(1)&_time_format=sqlite",
		path, opts.BusyTimeout.Milliseconds())
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, eris.Wrap(err, "sqlite: ping")
	}
	return &SQLiteStore{db: db, opts: opts}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS spots (
	id            INTEGER PRIMARY KEY,
	market        TEXT NOT NULL,
	air_date      TEXT NOT NULL,
	day_of_week   INTEGER NOT NULL,
	time_in       TEXT NOT NULL DEFAULT '',
	time_out      TEXT NOT NULL DEFAULT '',
	duration_secs INTEGER NOT NULL DEFAULT 0,
	kind          TEXT NOT NULL,
	revenue       TEXT NOT NULL DEFAULT '0',
	revenue_type  TEXT NOT NULL DEFAULT '',
	agency        TEXT,
	sector        TEXT,
	billing_code  TEXT NOT NULL DEFAULT '',
	language      TEXT
);

CREATE TABLE IF NOT EXISTS schedules (
	id              INTEGER PRIMARY KEY,
	name            TEXT NOT NULL,
	version         INTEGER NOT NULL DEFAULT 1,
	type            TEXT NOT NULL DEFAULT 'standard',
	effective_start TEXT NOT NULL,
	effective_end   TEXT
);

CREATE TABLE IF NOT EXISTS market_assignments (
	id              INTEGER PRIMARY KEY,
	market          TEXT NOT NULL,
	schedule_id     INTEGER NOT NULL REFERENCES schedules(id),
	effective_start TEXT NOT NULL,
	effective_end   TEXT,
	priority        INTEGER NOT NULL DEFAULT 0,
	created_at      TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS language_blocks (
	id          INTEGER PRIMARY KEY,
	schedule_id INTEGER NOT NULL REFERENCES schedules(id),
	day         INTEGER NOT NULL CHECK (day BETWEEN 0 AND 6),
	start_sec   INTEGER NOT NULL,
	end_sec     INTEGER NOT NULL,
	language    TEXT NOT NULL,
	name        TEXT NOT NULL DEFAULT '',
	block_type  TEXT NOT NULL DEFAULT '',
	day_part    TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS spot_assignments (
	spot_id           INTEGER PRIMARY KEY,
	schedule_id       INTEGER,
	block_id          INTEGER,
	spanned_block_ids TEXT,
	spans_multiple    INTEGER NOT NULL DEFAULT 0,
	intent            TEXT NOT NULL,
	method            TEXT NOT NULL,
	needs_review      INTEGER NOT NULL DEFAULT 0,
	review_reason     TEXT NOT NULL DEFAULT '',
	rule_id           TEXT NOT NULL DEFAULT '',
	rule_category     TEXT NOT NULL DEFAULT '',
	justification     TEXT NOT NULL DEFAULT '',
	CHECK (spans_multiple = 0 OR (block_id IS NULL AND spanned_block_ids IS NOT NULL)),
	CHECK (intent <> 'no_grid_coverage' OR (block_id IS NULL AND spanned_block_ids IS NULL)),
	CHECK (method <> 'rule_applied' OR (rule_id <> '' AND justification <> ''))
);

CREATE TABLE IF NOT EXISTS schedule_collisions (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	type          TEXT NOT NULL,
	severity      TEXT NOT NULL,
	market        TEXT NOT NULL DEFAULT '',
	schedule_id   INTEGER,
	date          TEXT,
	candidate_ids TEXT NOT NULL DEFAULT '[]',
	chosen_id     INTEGER,
	message       TEXT NOT NULL,
	detected_at   DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS runs (
	id           TEXT PRIMARY KEY,
	status       TEXT NOT NULL DEFAULT 'running',
	params       TEXT NOT NULL,
	last_spot_id INTEGER NOT NULL DEFAULT 0,
	committed    INTEGER NOT NULL DEFAULT 0,
	summary      TEXT,
	error        TEXT NOT NULL DEFAULT '',
	created_at   DATETIME NOT NULL,
	updated_at   DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS writer_lease (
	id          INTEGER PRIMARY KEY CHECK (id = 1),
	holder      TEXT NOT NULL,
	acquired_at DATETIME NOT NULL,
	expires_at  DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_spots_air_date ON spots(air_date);
CREATE INDEX IF NOT EXISTS idx_market_assignments_market ON market_assignments(market);
CREATE INDEX IF NOT EXISTS idx_language_blocks_schedule_day ON language_blocks(schedule_id, day);
CREATE INDEX IF NOT EXISTS idx_collisions_type ON schedule_collisions(type);
CREATE INDEX IF NOT EXISTS idx_runs_status ON runs(status);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// classify maps driver errors onto the store taxonomy. Busy and locked
// databases become transient ErrStoreBusy; CHECK and key failures become
// ErrConstraint.
func classify(err error, op string) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrStoreBusy) || errors.Is(err, ErrConstraint) {
		return err
	}
	var cv *model.ConstraintViolation
	if errors.As(err, &cv) {
		return eris.Wrapf(err, "sqlite: %s", op)
	}

	var se *sqlite.Error
	if errors.As(err, &se) {
		switch se.Code() & 0xff {
		case sqlite3.SQLITE_BUSY, sqlite3.SQLITE_LOCKED:
			return resilience.NewTransientError(eris.Wrapf(ErrStoreBusy, "sqlite: %s: %v", op, err), "SQLITE_BUSY")
		case sqlite3.SQLITE_CONSTRAINT:
			return eris.Wrapf(ErrConstraint, "sqlite: %s: %v", op, err)
		}
	}
	return eris.Wrapf(err, "sqlite: %s", op)
}

// writeTx runs fn inside BEGIN IMMEDIATE on a dedicated connection, so the
// write lock is taken up front and contention surfaces as SQLITE_BUSY
// after busy_timeout instead of a deadlock at commit.
func (s *SQLiteStore) writeTx(ctx context.Context, op string, fn func(conn *sql.Conn) error) error {
	conn, err := s.db.Conn(ctx)
	if err != nil {
		return classify(err, op+": conn")
	}
	defer conn.Close()

	if _, err := conn.ExecContext(ctx, "BEGIN IMMEDIATE"); err != nil {
		return classify(err, op+": begin")
	}
	if err := fn(conn); err != nil {
		if _, rbErr := conn.ExecContext(context.Background(), "ROLLBACK"); rbErr != nil {
			zap.L().Warn("sqlite: rollback failed", zap.String("op", op), zap.Error(rbErr))
		}
		return classify(err, op)
	}
	if _, err := conn.ExecContext(ctx, "COMMIT"); err != nil {
		_, _ = conn.ExecContext(context.Background(), "ROLLBACK")
		return classify(err, op+": commit")
	}
	return nil
}

// --- spots ---

func (s *SQLiteStore) ListSpots(ctx context.Context, filter SpotFilter) ([]model.Spot, error) {
	query := `SELECT id, market, air_date, day_of_week, time_in, time_out, duration_secs, kind,
		revenue, revenue_type, agency, sector, billing_code, language FROM spots WHERE id > ?`
	args := []any{filter.AfterID}

	if filter.From != nil {
		query += ` AND air_date >= ?`
		args = append(args, formatDate(filter.From))
	}
	if filter.To != nil {
		query += ` AND air_date <= ?`
		args = append(args, formatDate(filter.To))
	}
	if filter.Market != "" {
		query += ` AND upper(market) = upper(?)`
		args = append(args, filter.Market)
	}
	query += ` ORDER BY id`
	if filter.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list spots")
	}
	defer rows.Close()

	var spots []model.Spot
	for rows.Next() {
		var sp model.Spot
		var airDate string
		var day, durSecs int64
		var kind string
		if err := rows.Scan(&sp.ID, &sp.Market, &airDate, &day, &sp.TimeIn, &sp.TimeOut, &durSecs, &kind,
			&sp.Revenue, &sp.RevenueType, &sp.Agency, &sp.Sector, &sp.BillingCode, &sp.Language); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan spot")
		}
		if sp.AirDate, err = parseDate(airDate); err != nil {
			return nil, err
		}
		sp.DayOfWeek = time.Weekday(day)
		sp.Duration = time.Duration(durSecs) * time.Second
		sp.Kind = model.SpotKind(kind)
		spots = append(spots, sp)
	}
	return spots, eris.Wrap(rows.Err(), "sqlite: list spots iterate")
}

func (s *SQLiteStore) SaveSpots(ctx context.Context, spots []model.Spot) error {
	return s.writeTx(ctx, "save spots", func(conn *sql.Conn) error {
		stmt, err := conn.PrepareContext(ctx, `INSERT INTO spots (id, market, air_date, day_of_week, time_in, time_out,
			duration_secs, kind, revenue, revenue_type, agency, sector, billing_code, language)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT (id) DO UPDATE SET market = excluded.market, air_date = excluded.air_date,
			day_of_week = excluded.day_of_week, time_in = excluded.time_in, time_out = excluded.time_out,
			duration_secs = excluded.duration_secs, kind = excluded.kind, revenue = excluded.revenue,
			revenue_type = excluded.revenue_type, agency = excluded.agency, sector = excluded.sector,
			billing_code = excluded.billing_code, language = excluded.language`)
		if err != nil {
			return err
		}
		defer stmt.Close()

		for i := range spots {
			sp := &spots[i]
			if _, err := stmt.ExecContext(ctx, sp.ID, sp.Market, sp.AirDate.Format(dateLayout), int(sp.DayOfWeek),
				sp.TimeIn, sp.TimeOut, int64(sp.Duration/time.Second), string(sp.Kind), sp.Revenue.String(),
				sp.RevenueType, sp.Agency, sp.Sector, sp.BillingCode, sp.Language); err != nil {
				return eris.Wrapf(err, "spot %d", sp.ID)
			}
		}
		return nil
	})
}

// --- grid ---

func (s *SQLiteStore) LoadGrid(ctx context.Context) (*model.Grid, error) {
	grid := &model.Grid{}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, version, type, effective_start, effective_end FROM schedules ORDER BY id`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: load schedules")
	}
	for rows.Next() {
		var sc model.Schedule
		var typ, start string
		var end *string
		if err := rows.Scan(&sc.ID, &sc.Name, &sc.Version, &typ, &start, &end); err != nil {
			rows.Close()
			return nil, eris.Wrap(err, "sqlite: scan schedule")
		}
		sc.Type = model.ScheduleType(typ)
		if sc.EffectiveStart, err = parseDate(start); err != nil {
			rows.Close()
			return nil, err
		}
		if sc.EffectiveEnd, err = parseNullDate(end); err != nil {
			rows.Close()
			return nil, err
		}
		grid.Schedules = append(grid.Schedules, sc)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "sqlite: load schedules iterate")
	}

	rows, err = s.db.QueryContext(ctx,
		`SELECT id, market, schedule_id, effective_start, effective_end, priority, created_at
		 FROM market_assignments ORDER BY id`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: load market assignments")
	}
	for rows.Next() {
		var ma model.MarketAssignment
		var start, created string
		var end *string
		if err := rows.Scan(&ma.ID, &ma.Market, &ma.ScheduleID, &start, &end, &ma.Priority, &created); err != nil {
			rows.Close()
			return nil, eris.Wrap(err, "sqlite: scan market assignment")
		}
		if ma.EffectiveStart, err = parseDate(start); err != nil {
			rows.Close()
			return nil, err
		}
		if ma.EffectiveEnd, err = parseNullDate(end); err != nil {
			rows.Close()
			return nil, err
		}
		if ma.CreatedAt, err = time.Parse(time.RFC3339Nano, created); err != nil {
			rows.Close()
			return nil, eris.Wrapf(err, "sqlite: parse created_at %q", created)
		}
		grid.Assignments = append(grid.Assignments, ma)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "sqlite: load market assignments iterate")
	}

	rows, err = s.db.QueryContext(ctx,
		`SELECT id, schedule_id, day, start_sec, end_sec, language, name, block_type, day_part
		 FROM language_blocks ORDER BY id`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: load blocks")
	}
	defer rows.Close()
	for rows.Next() {
		var b model.Block
		var day, start, end int
		if err := rows.Scan(&b.ID, &b.ScheduleID, &day, &start, &end, &b.Language, &b.Name, &b.BlockType, &b.DayPart); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan block")
		}
		b.Day = time.Weekday(day)
		b.Start, b.End = model.ClockTime(start), model.ClockTime(end)
		grid.Blocks = append(grid.Blocks, b)
	}
	return grid, eris.Wrap(rows.Err(), "sqlite: load blocks iterate")
}

// SaveGrid replaces the stored grid with g in one transaction.
func (s *SQLiteStore) SaveGrid(ctx context.Context, g *model.Grid) error {
	return s.writeTx(ctx, "save grid", func(conn *sql.Conn) error {
		for _, table := range []string{"language_blocks", "market_assignments", "schedules"} {
			if _, err := conn.ExecContext(ctx, "DELETE FROM "+table); err != nil {
				return eris.Wrapf(err, "clear %s", table)
			}
		}
		for _, sc := range g.Schedules {
			if _, err := conn.ExecContext(ctx,
				`INSERT INTO schedules (id, name, version, type, effective_start, effective_end) VALUES (?, ?, ?, ?, ?, ?)`,
				sc.ID, sc.Name, sc.Version, string(sc.Type), formatDate(&sc.EffectiveStart), formatDate(sc.EffectiveEnd),
			); err != nil {
				return eris.Wrapf(err, "schedule %d", sc.ID)
			}
		}
		for _, ma := range g.Assignments {
			if _, err := conn.ExecContext(ctx,
				`INSERT INTO market_assignments (id, market, schedule_id, effective_start, effective_end, priority, created_at)
				 VALUES (?, ?, ?, ?, ?, ?, ?)`,
				ma.ID, ma.Market, ma.ScheduleID, formatDate(&ma.EffectiveStart), formatDate(ma.EffectiveEnd),
				ma.Priority, ma.CreatedAt.UTC().Format(time.RFC3339Nano),
			); err != nil {
				return eris.Wrapf(err, "market assignment %d", ma.ID)
			}
		}
		for _, b := range g.Blocks {
			if _, err := conn.ExecContext(ctx,
				`INSERT INTO language_blocks (id, schedule_id, day, start_sec, end_sec, language, name, block_type, day_part)
				 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
				b.ID, b.ScheduleID, int(b.Day), int(b.Start), int(b.End), b.Language, b.Name, b.BlockType, b.DayPart,
			); err != nil {
				return eris.Wrapf(err, "block %d", b.ID)
			}
		}
		return nil
	})
}

// --- assignments ---

func (s *SQLiteStore) ListAssignments(ctx context.Context) ([]model.Assignment, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+strings.Join(assignmentColumns, ", ")+
		` FROM spot_assignments ORDER BY spot_id`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list assignments")
	}
	defer rows.Close()

	var out []model.Assignment
	for rows.Next() {
		var a model.Assignment
		var spanned sql.NullString
		var intent, method string
		if err := rows.Scan(&a.SpotID, &a.ScheduleID, &a.BlockID, &spanned, &a.SpansMultiple,
			&intent, &method, &a.NeedsReview, &a.ReviewReason, &a.RuleID, &a.RuleCategory, &a.Justification); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan assignment")
		}
		a.Intent = model.CustomerIntent(intent)
		a.Method = model.AssignmentMethod(method)
		if spanned.Valid {
			a.SpannedBlockIDs = []int64{}
			if err := json.Unmarshal([]byte(spanned.String), &a.SpannedBlockIDs); err != nil {
				return nil, eris.Wrapf(err, "sqlite: unmarshal spanned blocks for spot %d", a.SpotID)
			}
		}
		out = append(out, a)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list assignments iterate")
}

// SaveAssignments upserts a batch by spot id in one write transaction.
// Either the whole batch commits or none of it does.
func (s *SQLiteStore) SaveAssignments(ctx context.Context, batch []model.Assignment) error {
	if len(batch) == 0 {
		return nil
	}
	if err := validateBatch(batch); err != nil {
		return err
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(assignmentColumns)), ", ")
	var sets []string
	for _, c := range assignmentColumns[1:] {
		sets = append(sets, fmt.Sprintf("%s = excluded.%s", c, c))
	}
	upsert := fmt.Sprintf(`INSERT INTO spot_assignments (%s) VALUES (%s) ON CONFLICT (spot_id) DO UPDATE SET %s`,
		strings.Join(assignmentColumns, ", "), placeholders, strings.Join(sets, ", "))

	return s.writeTx(ctx, "save assignments", func(conn *sql.Conn) error {
		stmt, err := conn.PrepareContext(ctx, upsert)
		if err != nil {
			return err
		}
		defer stmt.Close()

		for i := range batch {
			a := &batch[i]
			var spanned any
			if a.SpannedBlockIDs != nil {
				js, err := marshalJSON(a.SpannedBlockIDs)
				if err != nil {
					return err
				}
				spanned = js
			}
			if _, err := stmt.ExecContext(ctx, a.SpotID, a.ScheduleID, a.BlockID, spanned, a.SpansMultiple,
				string(a.Intent), string(a.Method), a.NeedsReview, a.ReviewReason, a.RuleID, a.RuleCategory,
				a.Justification); err != nil {
				return eris.Wrapf(err, "spot %d", a.SpotID)
			}
		}
		return nil
	})
}

// --- collisions ---

// RecordCollision appends to the collision log. It satisfies schedule.CollisionSink.
func (s *SQLiteStore) RecordCollision(ctx context.Context, c model.Collision) error {
	candidates, err := marshalJSON(nonNilIDs(c.CandidateIDs))
	if err != nil {
		return err
	}
	if c.DetectedAt.IsZero() {
		c.DetectedAt = time.Now().UTC()
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO schedule_collisions (type, severity, market, schedule_id, date, candidate_ids, chosen_id, message, detected_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		string(c.Type), string(c.Severity), c.Market, c.ScheduleID, formatDate(c.Date), candidates, c.ChosenID,
		c.Message, c.DetectedAt.UTC(),
	)
	return classify(err, "record collision")
}

func (s *SQLiteStore) ListCollisions(ctx context.Context, filter CollisionFilter) ([]model.Collision, error) {
	query := `SELECT id, type, severity, market, schedule_id, date, candidate_ids, chosen_id, message, detected_at
		FROM schedule_collisions WHERE 1=1`
	var args []any
	if filter.Type != "" {
		query += ` AND type = ?`
		args = append(args, string(filter.Type))
	}
	if filter.Market != "" {
		query += ` AND market = ?`
		args = append(args, filter.Market)
	}
	query += ` ORDER BY id DESC`
	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += ` LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list collisions")
	}
	defer rows.Close()

	var out []model.Collision
	for rows.Next() {
		var c model.Collision
		var typ, sev, candidates string
		var date *string
		if err := rows.Scan(&c.ID, &typ, &sev, &c.Market, &c.ScheduleID, &date, &candidates, &c.ChosenID,
			&c.Message, &c.DetectedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan collision")
		}
		c.Type, c.Severity = model.CollisionType(typ), model.Severity(sev)
		if c.Date, err = parseNullDate(date); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(candidates), &c.CandidateIDs); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal candidate ids")
		}
		out = append(out, c)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list collisions iterate")
}

// --- runs ---

func (s *SQLiteStore) CreateRun(ctx context.Context, params model.RunParams) (*model.Run, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	paramsJSON, err := marshalJSON(params)
	if err != nil {
		return nil, err
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO runs (id, status, params, created_at, updated_at) VALUES (?, ?, ?, ?, ?)`,
		id, string(model.RunStatusRunning), paramsJSON, now, now,
	)
	if err != nil {
		return nil, classify(err, "insert run")
	}

	return &model.Run{
		ID:        id,
		Status:    model.RunStatusRunning,
		Params:    params,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

func (s *SQLiteStore) CheckpointRun(ctx context.Context, runID string, lastSpotID int64, committed int) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE runs SET last_spot_id = ?, committed = ?, updated_at = ? WHERE id = ?`,
		lastSpotID, committed, time.Now().UTC(), runID,
	)
	if err != nil {
		return classify(err, "checkpoint run "+runID)
	}
	return checkRowsAffected(res, "run", runID)
}

func (s *SQLiteStore) FinishRun(ctx context.Context, runID string, status model.RunStatus, summary *model.RunSummary, runErr string) error {
	var summaryJSON any
	if summary != nil {
		js, err := marshalJSON(summary)
		if err != nil {
			return err
		}
		summaryJSON = js
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE runs SET status = ?, summary = ?, error = ?, updated_at = ? WHERE id = ?`,
		string(status), summaryJSON, runErr, time.Now().UTC(), runID,
	)
	if err != nil {
		return classify(err, "finish run "+runID)
	}
	return checkRowsAffected(res, "run", runID)
}

func (s *SQLiteStore) GetRun(ctx context.Context, runID string) (*model.Run, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, status, params, last_spot_id, committed, summary, error, created_at, updated_at FROM runs WHERE id = ?`,
		runID,
	)
	return scanRun(row)
}

func (s *SQLiteStore) ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error) {
	query := `SELECT id, status, params, last_spot_id, committed, summary, error, created_at, updated_at FROM runs WHERE 1=1`
	var args []any

	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(filter.Status))
	}
	query += ` ORDER BY created_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += ` LIMIT ?`
	args = append(args, limit)

	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list runs")
	}
	defer rows.Close()

	var runs []model.Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *r)
	}
	return runs, eris.Wrap(rows.Err(), "sqlite: list runs iterate")
}

// --- writer lease ---

type sqliteLease struct {
	s      *SQLiteStore
	holder string
}

// AcquireWriter takes the single writer lease. An unexpired lease held by
// another process fails fast with ErrStoreBusy.
func (s *SQLiteStore) AcquireWriter(ctx context.Context) (Lease, error) {
	holder := fmt.Sprintf("%d/%s", os.Getpid(), uuid.New().String())
	now := time.Now().UTC()

	err := s.writeTx(ctx, "acquire writer", func(conn *sql.Conn) error {
		if _, err := conn.ExecContext(ctx, `DELETE FROM writer_lease WHERE expires_at <= ?`, now); err != nil {
			return err
		}
		var current string
		err := conn.QueryRowContext(ctx, `SELECT holder FROM writer_lease WHERE id = 1`).Scan(&current)
		switch {
		case err == nil:
			return resilience.NewTransientError(
				eris.Wrapf(ErrStoreBusy, "sqlite: writer lease held by %s", current), "LEASE_HELD")
		case !errors.Is(err, sql.ErrNoRows):
			return err
		}
		_, err = conn.ExecContext(ctx,
			`INSERT INTO writer_lease (id, holder, acquired_at, expires_at) VALUES (1, ?, ?, ?)`,
			holder, now, now.Add(s.opts.LeaseTTL))
		return err
	})
	if err != nil {
		return nil, err
	}
	return &sqliteLease{s: s, holder: holder}, nil
}

// Renew pushes the lease expiry a full TTL past now. A lease that expired
// and was reclaimed by another process is lost.
func (l *sqliteLease) Renew(ctx context.Context) error {
	res, err := l.s.db.ExecContext(ctx,
		`UPDATE writer_lease SET expires_at = ? WHERE id = 1 AND holder = ?`,
		time.Now().UTC().Add(l.s.opts.LeaseTTL), l.holder)
	if err != nil {
		return classify(err, "renew writer")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return classify(err, "renew writer")
	}
	if n == 0 {
		return eris.Wrapf(ErrStoreBusy, "sqlite: writer lease %s lost", l.holder)
	}
	return nil
}

func (l *sqliteLease) Release(ctx context.Context) error {
	_, err := l.s.db.ExecContext(ctx, `DELETE FROM writer_lease WHERE id = 1 AND holder = ?`, l.holder)
	return classify(err, "release writer")
}

// helpers

func checkRowsAffected(res sql.Result, entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "rows affected")
	}
	if n == 0 {
		return eris.Wrapf(ErrNotFound, "%s %s", entity, id)
	}
	return nil
}

type scannable interface {
	Scan(dest ...any) error
}

func scanRun(row scannable) (*model.Run, error) {
	var r model.Run
	var status, paramsJSON string
	var summaryJSON sql.NullString

	err := row.Scan(&r.ID, &status, &paramsJSON, &r.LastSpotID, &r.Committed, &summaryJSON, &r.Error,
		&r.CreatedAt, &r.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, eris.Wrap(ErrNotFound, "sqlite: get run")
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: scan run")
	}
	r.Status = model.RunStatus(status)

	if err := json.Unmarshal([]byte(paramsJSON), &r.Params); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal params")
	}
	if summaryJSON.Valid {
		r.Summary = &model.RunSummary{}
		if err := json.Unmarshal([]byte(summaryJSON.String), r.Summary); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal summary")
		}
	}
	return &r, nil
}

func nonNilIDs(ids []int64) []int64 {
	if ids == nil {
		return []int64{}
	}
	return ids
}

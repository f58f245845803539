package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/amenity-cli/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS runs (
	id            TEXT PRIMARY KEY,
	query         TEXT NOT NULL,
	status        TEXT NOT NULL DEFAULT 'running',
	record_count  INTEGER NOT NULL DEFAULT 0,
	nearby_calls  INTEGER NOT NULL DEFAULT 0,
	geocode_calls INTEGER NOT NULL DEFAULT 0,
	cost_usd      REAL NOT NULL DEFAULT 0,
	result        TEXT,
	error         TEXT NOT NULL DEFAULT '',
	created_at    DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at    DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS amenity_cache (
	key           TEXT PRIMARY KEY,
	amenity_count INTEGER NOT NULL,
	expires_at    INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS geocode_cache (
	key        TEXT PRIMARY KEY,
	latitude   REAL NOT NULL,
	longitude  REAL NOT NULL,
	expires_at INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_runs_status ON runs(status);
CREATE INDEX IF NOT EXISTS idx_runs_created_at ON runs(created_at);
CREATE INDEX IF NOT EXISTS idx_amenity_cache_expires_at ON amenity_cache(expires_at);
CREATE INDEX IF NOT EXISTS idx_geocode_cache_expires_at ON geocode_cache(expires_at);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) CreateRun(ctx context.Context, q model.Query) (*model.Run, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	queryJSON, err := json.Marshal(q)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: marshal query")
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO runs (id, query, status, created_at, updated_at) VALUES (?, ?, ?, ?, ?)`,
		id, string(queryJSON), string(model.RunStatusRunning), now, now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: insert run")
	}

	return &model.Run{
		ID:        id,
		Query:     q,
		Status:    model.RunStatusRunning,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

func (s *SQLiteStore) CompleteRun(ctx context.Context, runID string, result *model.RunResult) error {
	resultJSON, err := json.Marshal(result)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal result")
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE runs SET result = ?, status = ?, record_count = ?, nearby_calls = ?, geocode_calls = ?, cost_usd = ?, updated_at = ?
		 WHERE id = ?`,
		string(resultJSON), string(model.RunStatusComplete), len(result.Records),
		result.Usage.NearbyCalls, result.Usage.GeocodeCalls, result.Usage.CostUSD,
		time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: complete run %s", runID)
	}
	return checkRowsAffected(res, "run", runID)
}

func (s *SQLiteStore) FailRun(ctx context.Context, runID string, runErr error, usage model.Usage) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE runs SET status = ?, error = ?, nearby_calls = ?, geocode_calls = ?, cost_usd = ?, updated_at = ?
		 WHERE id = ?`,
		string(model.RunStatusFailed), errorText(runErr),
		usage.NearbyCalls, usage.GeocodeCalls, usage.CostUSD,
		time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: fail run %s", runID)
	}
	return checkRowsAffected(res, "run", runID)
}

const sqliteRunColumns = `id, query, status, record_count, nearby_calls, geocode_calls, cost_usd, result, error, created_at, updated_at`

func (s *SQLiteStore) GetRun(ctx context.Context, runID string) (*model.Run, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+sqliteRunColumns+` FROM runs WHERE id = ?`,
		runID,
	)
	r, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, eris.Wrapf(model.ErrNotFound, "sqlite: run %s", runID)
	}
	return r, err
}

func (s *SQLiteStore) ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error) {
	query := `SELECT ` + sqliteRunColumns + ` FROM runs WHERE 1=1`
	var args []any

	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(filter.Status))
	}
	if filter.Query != "" {
		query += ` AND json_extract(query, '$.query') LIKE ?`
		args = append(args, "%"+filter.Query+"%")
	}
	if !filter.CreatedAfter.IsZero() {
		query += ` AND created_at >= ?`
		args = append(args, filter.CreatedAfter.UTC())
	}
	query += ` ORDER BY created_at DESC LIMIT ?`
	args = append(args, listLimit(filter.Limit))

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

func (s *SQLiteStore) GetAmenityCount(ctx context.Context, key string) (int, bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT amenity_count FROM amenity_cache WHERE key = ? AND expires_at > ?`,
		key, time.Now().Unix(),
	).Scan(&n)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, eris.Wrap(err, "sqlite: get amenity count")
	}
	return n, true, nil
}

func (s *SQLiteStore) SetAmenityCount(ctx context.Context, key string, count int, ttl time.Duration) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO amenity_cache (key, amenity_count, expires_at) VALUES (?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET amenity_count = excluded.amenity_count, expires_at = excluded.expires_at`,
		key, count, time.Now().Add(ttl).Unix(),
	)
	return eris.Wrap(err, "sqlite: set amenity count")
}

func (s *SQLiteStore) GetGeocode(ctx context.Context, key string) (*model.Coordinate, error) {
	var c model.Coordinate
	err := s.db.QueryRowContext(ctx,
		`SELECT latitude, longitude FROM geocode_cache WHERE key = ? AND expires_at > ?`,
		key, time.Now().Unix(),
	).Scan(&c.Latitude, &c.Longitude)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: get geocode")
	}
	return &c, nil
}

func (s *SQLiteStore) SetGeocode(ctx context.Context, key string, c model.Coordinate, ttl time.Duration) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO geocode_cache (key, latitude, longitude, expires_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET latitude = excluded.latitude, longitude = excluded.longitude,
		 expires_at = excluded.expires_at`,
		key, c.Latitude, c.Longitude, time.Now().Add(ttl).Unix(),
	)
	return eris.Wrap(err, "sqlite: set geocode")
}

func (s *SQLiteStore) DeleteExpired(ctx context.Context) (int, error) {
	now := time.Now().Unix()
	total := 0
	for _, table := range []string{"amenity_cache", "geocode_cache"} {
		res, err := s.db.ExecContext(ctx, `DELETE FROM `+table+` WHERE expires_at <= ?`, now)
		if err != nil {
			return total, eris.Wrapf(err, "sqlite: delete expired %s", table)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return total, eris.Wrap(err, "sqlite: rows affected")
		}
		total += int(n)
	}
	return total, nil
}

// helpers

func checkRowsAffected(res sql.Result, entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "rows affected")
	}
	if n == 0 {
		return eris.Wrapf(model.ErrNotFound, "%s %s", entity, id)
	}
	return nil
}

type scannable interface {
	Scan(dest ...any) error
}

func scanRun(row scannable) (*model.Run, error) {
	var r model.Run
	var queryJSON string
	var resultJSON sql.NullString

	err := row.Scan(&r.ID, &queryJSON, &r.Status, &r.RecordCount,
		&r.Usage.NearbyCalls, &r.Usage.GeocodeCalls, &r.Usage.CostUSD,
		&resultJSON, &r.Error, &r.CreatedAt, &r.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: scan run")
	}

	if err := json.Unmarshal([]byte(queryJSON), &r.Query); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal query")
	}
	if resultJSON.Valid {
		r.Result = &model.RunResult{}
		if err := json.Unmarshal([]byte(resultJSON.String), r.Result); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal result")
		}
	}
	return &r, nil
}

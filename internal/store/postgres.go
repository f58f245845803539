package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/amenity-cli/internal/db"
	"github.com/sells-group/amenity-cli/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(1)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS runs (
	id            TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	query         JSONB NOT NULL,
	status        TEXT NOT NULL DEFAULT 'running',
	record_count  INTEGER NOT NULL DEFAULT 0,
	nearby_calls  BIGINT NOT NULL DEFAULT 0,
	geocode_calls BIGINT NOT NULL DEFAULT 0,
	cost_usd      DOUBLE PRECISION NOT NULL DEFAULT 0,
	result        JSONB,
	error         TEXT NOT NULL DEFAULT '',
	created_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at    TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS amenity_cache (
	key           TEXT PRIMARY KEY,
	amenity_count INTEGER NOT NULL,
	expires_at    TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS geocode_cache (
	key        TEXT PRIMARY KEY,
	latitude   DOUBLE PRECISION NOT NULL,
	longitude  DOUBLE PRECISION NOT NULL,
	expires_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_runs_status ON runs(status);
CREATE INDEX IF NOT EXISTS idx_runs_created_at ON runs(created_at DESC);
CREATE INDEX IF NOT EXISTS idx_amenity_cache_expires_at ON amenity_cache(expires_at);
CREATE INDEX IF NOT EXISTS idx_geocode_cache_expires_at ON geocode_cache(expires_at);
`

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

func (s *PostgresStore) CreateRun(ctx context.Context, q model.Query) (*model.Run, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	queryJSON, err := json.Marshal(q)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: marshal query")
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO runs (id, query, status, created_at, updated_at) VALUES ($1, $2, $3, $4, $5)`,
		id, queryJSON, string(model.RunStatusRunning), now, now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: insert run")
	}

	return &model.Run{
		ID:        id,
		Query:     q,
		Status:    model.RunStatusRunning,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

func (s *PostgresStore) CompleteRun(ctx context.Context, runID string, result *model.RunResult) error {
	resultJSON, err := json.Marshal(result)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal result")
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE runs SET result = $1, status = $2, record_count = $3, nearby_calls = $4, geocode_calls = $5, cost_usd = $6, updated_at = $7
		 WHERE id = $8`,
		resultJSON, string(model.RunStatusComplete), len(result.Records),
		result.Usage.NearbyCalls, result.Usage.GeocodeCalls, result.Usage.CostUSD,
		time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: complete run %s", runID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(model.ErrNotFound, "postgres: run %s", runID)
	}
	return nil
}

func (s *PostgresStore) FailRun(ctx context.Context, runID string, runErr error, usage model.Usage) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE runs SET status = $1, error = $2, nearby_calls = $3, geocode_calls = $4, cost_usd = $5, updated_at = $6
		 WHERE id = $7`,
		string(model.RunStatusFailed), errorText(runErr),
		usage.NearbyCalls, usage.GeocodeCalls, usage.CostUSD,
		time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: fail run %s", runID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(model.ErrNotFound, "postgres: run %s", runID)
	}
	return nil
}

const postgresRunColumns = `id, query, status, record_count, nearby_calls, geocode_calls, cost_usd, result, error, created_at, updated_at`

func (s *PostgresStore) GetRun(ctx context.Context, runID string) (*model.Run, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+postgresRunColumns+` FROM runs WHERE id = $1`,
		runID,
	)
	r, err := scanPostgresRun(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrapf(model.ErrNotFound, "postgres: get run %s", runID)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get run %s", runID)
	}
	return r, nil
}

func (s *PostgresStore) ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error) {
	query := `SELECT ` + postgresRunColumns + ` FROM runs WHERE true`
	args := []any{}
	argIdx := 1

	if filter.Status != "" {
		query += fmt.Sprintf(` AND status = $%d`, argIdx)
		args = append(args, string(filter.Status))
		argIdx++
	}
	if filter.Query != "" {
		query += fmt.Sprintf(` AND query->>'query' ILIKE $%d`, argIdx)
		args = append(args, "%"+filter.Query+"%")
		argIdx++
	}
	if !filter.CreatedAfter.IsZero() {
		query += fmt.Sprintf(` AND created_at >= $%d`, argIdx)
		args = append(args, filter.CreatedAfter)
		argIdx++
	}
	query += fmt.Sprintf(` ORDER BY created_at DESC LIMIT $%d`, argIdx)
	args = append(args, listLimit(filter.Limit))
	argIdx++

	if filter.Offset > 0 {
		query += fmt.Sprintf(` OFFSET $%d`, argIdx)
		args = append(args, filter.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list runs")
	}
	defer rows.Close()

	var runs []model.Run
	for rows.Next() {
		r, err := scanPostgresRun(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan run")
		}
		runs = append(runs, *r)
	}
	return runs, eris.Wrap(rows.Err(), "postgres: list runs iterate")
}

func (s *PostgresStore) GetAmenityCount(ctx context.Context, key string) (int, bool, error) {
	var n int
	err := s.pool.QueryRow(ctx,
		`SELECT amenity_count FROM amenity_cache WHERE key = $1 AND expires_at > now()`,
		key,
	).Scan(&n)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, eris.Wrap(err, "postgres: get amenity count")
	}
	return n, true, nil
}

func (s *PostgresStore) SetAmenityCount(ctx context.Context, key string, count int, ttl time.Duration) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO amenity_cache (key, amenity_count, expires_at) VALUES ($1, $2, $3)
		 ON CONFLICT (key) DO UPDATE SET amenity_count = EXCLUDED.amenity_count, expires_at = EXCLUDED.expires_at`,
		key, count, time.Now().UTC().Add(ttl),
	)
	return eris.Wrap(err, "postgres: set amenity count")
}

func (s *PostgresStore) GetGeocode(ctx context.Context, key string) (*model.Coordinate, error) {
	var c model.Coordinate
	err := s.pool.QueryRow(ctx,
		`SELECT latitude, longitude FROM geocode_cache WHERE key = $1 AND expires_at > now()`,
		key,
	).Scan(&c.Latitude, &c.Longitude)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "postgres: get geocode")
	}
	return &c, nil
}

func (s *PostgresStore) SetGeocode(ctx context.Context, key string, c model.Coordinate, ttl time.Duration) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO geocode_cache (key, latitude, longitude, expires_at) VALUES ($1, $2, $3, $4)
		 ON CONFLICT (key) DO UPDATE SET latitude = EXCLUDED.latitude, longitude = EXCLUDED.longitude,
		 expires_at = EXCLUDED.expires_at`,
		key, c.Latitude, c.Longitude, time.Now().UTC().Add(ttl),
	)
	return eris.Wrap(err, "postgres: set geocode")
}

func (s *PostgresStore) DeleteExpired(ctx context.Context) (int, error) {
	total := 0
	for _, table := range []string{"amenity_cache", "geocode_cache"} {
		tag, err := s.pool.Exec(ctx, `DELETE FROM `+table+` WHERE expires_at <= now()`)
		if err != nil {
			return total, eris.Wrapf(err, "postgres: delete expired %s", table)
		}
		total += int(tag.RowsAffected())
	}
	return total, nil
}

func scanPostgresRun(row pgx.Row) (*model.Run, error) {
	var r model.Run
	var queryJSON []byte
	var resultNull *[]byte

	err := row.Scan(&r.ID, &queryJSON, &r.Status, &r.RecordCount,
		&r.Usage.NearbyCalls, &r.Usage.GeocodeCalls, &r.Usage.CostUSD,
		&resultNull, &r.Error, &r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(queryJSON, &r.Query); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal query")
	}
	if resultNull != nil {
		r.Result = &model.RunResult{}
		if err := json.Unmarshal(*resultNull, r.Result); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal result")
		}
	}
	return &r, nil
}

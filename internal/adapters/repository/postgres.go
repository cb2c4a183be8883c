package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/okian/rankready/internal/domain/model"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS indicator_values (
	institution_id TEXT        NOT NULL,
	indicator_code TEXT        NOT NULL,
	ranking_year   INTEGER     NOT NULL,
	raw_value      TEXT        NOT NULL,
	updated_at     TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (institution_id, indicator_code, ranking_year)
);
CREATE INDEX IF NOT EXISTS idx_indicator_values_year ON indicator_values (ranking_year);
CREATE TABLE IF NOT EXISTS submissions (
	id             TEXT PRIMARY KEY,
	institution_id TEXT        NOT NULL,
	ranking_year   INTEGER     NOT NULL,
	status         TEXT        NOT NULL,
	scores         JSONB       NOT NULL,
	comment        TEXT        NOT NULL DEFAULT '',
	created_at     TIMESTAMPTZ NOT NULL,
	updated_at     TIMESTAMPTZ NOT NULL
);`

// Numeric extraction happens in SQL. The pattern check keeps the cast from
// failing on inputs such as "1.2.3", which count as 0 like indicator.ParseFloat.
const queryIndicatorAverages = `
SELECT indicator_code,
       AVG(CASE
             WHEN regexp_replace(raw_value, '[^0-9.]', '', 'g') ~ '^([0-9]+\.?[0-9]*|\.[0-9]+)$'
             THEN regexp_replace(raw_value, '[^0-9.]', '', 'g')::double precision
             ELSE 0
           END)
FROM indicator_values
WHERE ranking_year = $1
GROUP BY indicator_code`

// PostgresStore persists to PostgreSQL through a pgx pool.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// OpenPostgres connects, pings and applies the schema.
func OpenPostgres(ctx context.Context, dsn string) (*PostgresStore, error) {
	if dsn == "" {
		return nil, fmt.Errorf("%w: postgres dsn is required", ErrInvalidRecord)
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping DB: %w", err)
	}
	if _, err := pool.Exec(ctx, postgresSchema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("apply postgres schema: %w", err)
	}
	return &PostgresStore{pool: pool}, nil
}

func (s *PostgresStore) SaveIndicators(ctx context.Context, rec model.IndicatorRecord) error {
	if err := validateRecord(rec); err != nil {
		return err
	}
	if rec.UpdatedAt.IsZero() {
		rec.UpdatedAt = time.Now().UTC()
	}

	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx,
			`DELETE FROM indicator_values WHERE institution_id = $1 AND ranking_year = $2`,
			rec.InstitutionID, rec.Year); err != nil {
			return fmt.Errorf("clear indicator values: %w", err)
		}
		rows := make([][]any, 0, len(rec.Values))
		for code, raw := range rec.Values {
			rows = append(rows, []any{rec.InstitutionID, code, rec.Year, raw, rec.UpdatedAt})
		}
		if _, err := tx.CopyFrom(ctx,
			pgx.Identifier{"indicator_values"},
			[]string{"institution_id", "indicator_code", "ranking_year", "raw_value", "updated_at"},
			pgx.CopyFromRows(rows)); err != nil {
			return fmt.Errorf("copy indicator values: %w", err)
		}
		return nil
	})
}

func (s *PostgresStore) LoadIndicators(ctx context.Context, institutionID string, year int) (model.IndicatorRecord, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT indicator_code, raw_value, updated_at FROM indicator_values
		 WHERE institution_id = $1 AND ranking_year = $2`, institutionID, year)
	if err != nil {
		return model.IndicatorRecord{}, fmt.Errorf("query indicator values: %w", err)
	}
	defer rows.Close()

	rec := model.IndicatorRecord{InstitutionID: institutionID, Year: year, Values: make(map[string]string)}
	for rows.Next() {
		var (
			code, raw string
			updated   time.Time
		)
		if err := rows.Scan(&code, &raw, &updated); err != nil {
			return model.IndicatorRecord{}, fmt.Errorf("scan indicator value: %w", err)
		}
		rec.Values[code] = raw
		if updated.After(rec.UpdatedAt) {
			rec.UpdatedAt = updated
		}
	}
	if err := rows.Err(); err != nil {
		return model.IndicatorRecord{}, err
	}
	if len(rec.Values) == 0 {
		return model.IndicatorRecord{}, ErrNotFound
	}
	return rec, nil
}

func (s *PostgresStore) ListInstitutions(ctx context.Context, year int) ([]string, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT DISTINCT institution_id FROM indicator_values WHERE ranking_year = $1 ORDER BY institution_id`, year)
	if err != nil {
		return nil, fmt.Errorf("query institutions: %w", err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("collect institutions: %w", err)
	}
	if ids == nil {
		ids = []string{}
	}
	return ids, nil
}

func (s *PostgresStore) IndicatorAverages(ctx context.Context, year int) (map[string]float64, error) {
	rows, err := s.pool.Query(ctx, queryIndicatorAverages, year)
	if err != nil {
		return nil, fmt.Errorf("query indicator averages: %w", err)
	}
	defer rows.Close()

	out := make(map[string]float64)
	for rows.Next() {
		var (
			code string
			avg  float64
		)
		if err := rows.Scan(&code, &avg); err != nil {
			return nil, fmt.Errorf("scan average: %w", err)
		}
		out[code] = avg
	}
	return out, rows.Err()
}

func (s *PostgresStore) PutSubmission(ctx context.Context, sub model.Submission) error {
	if err := validateSubmission(sub); err != nil {
		return err
	}
	scores, err := json.Marshal(sub.Scores)
	if err != nil {
		return fmt.Errorf("marshal scores: %w", err)
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO submissions (id, institution_id, ranking_year, status, scores, comment, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status,
			scores = EXCLUDED.scores,
			comment = EXCLUDED.comment,
			updated_at = EXCLUDED.updated_at`,
		sub.ID, sub.InstitutionID, sub.Year, string(sub.Status), scores, sub.Comment, sub.CreatedAt, sub.UpdatedAt)
	if err != nil {
		return fmt.Errorf("upsert submission: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetSubmission(ctx context.Context, id string) (model.Submission, error) {
	var (
		sub    model.Submission
		status string
		scores []byte
	)
	err := s.pool.QueryRow(ctx, `
		SELECT id, institution_id, ranking_year, status, scores, comment, created_at, updated_at
		FROM submissions WHERE id = $1`, id).
		Scan(&sub.ID, &sub.InstitutionID, &sub.Year, &status, &scores, &sub.Comment, &sub.CreatedAt, &sub.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Submission{}, ErrNotFound
	}
	if err != nil {
		return model.Submission{}, fmt.Errorf("query submission: %w", err)
	}
	sub.Status = model.SubmissionStatus(status)
	if err := json.Unmarshal(scores, &sub.Scores); err != nil {
		return model.Submission{}, fmt.Errorf("decode scores: %w", err)
	}
	return sub, nil
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // registers the "sqlite" driver

	"github.com/okian/rankready/internal/domain/model"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS indicator_values (
	institution_id TEXT    NOT NULL,
	indicator_code TEXT    NOT NULL,
	ranking_year   INTEGER NOT NULL,
	raw_value      TEXT    NOT NULL,
	updated_at     TEXT    NOT NULL,
	PRIMARY KEY (institution_id, indicator_code, ranking_year)
);
CREATE INDEX IF NOT EXISTS idx_indicator_values_year ON indicator_values (ranking_year);
CREATE TABLE IF NOT EXISTS submissions (
	id             TEXT PRIMARY KEY,
	institution_id TEXT    NOT NULL,
	ranking_year   INTEGER NOT NULL,
	status         TEXT    NOT NULL,
	scores         TEXT    NOT NULL,
	comment        TEXT    NOT NULL DEFAULT '',
	created_at     TEXT    NOT NULL,
	updated_at     TEXT    NOT NULL
);`

// SQLiteStore persists to a single SQLite file.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite opens (or creates) the database at path and applies the schema.
// Use ":memory:" for a throwaway database.
func OpenSQLite(ctx context.Context, path string) (*SQLiteStore, error) {
	if path == "" {
		return nil, fmt.Errorf("%w: sqlite path is required", ErrInvalidRecord)
	}
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)", path)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1) // single writer
	db.SetConnMaxLifetime(0)

	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}
	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply sqlite schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) SaveIndicators(ctx context.Context, rec model.IndicatorRecord) error {
	if err := validateRecord(rec); err != nil {
		return err
	}
	if rec.UpdatedAt.IsZero() {
		rec.UpdatedAt = time.Now().UTC()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM indicator_values WHERE institution_id = ? AND ranking_year = ?`,
		rec.InstitutionID, rec.Year); err != nil {
		return fmt.Errorf("clear indicator values: %w", err)
	}
	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO indicator_values (institution_id, indicator_code, ranking_year, raw_value, updated_at)
		 VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	updated := rec.UpdatedAt.UTC().Format(time.RFC3339Nano)
	for code, raw := range rec.Values {
		if _, err := stmt.ExecContext(ctx, rec.InstitutionID, code, rec.Year, raw, updated); err != nil {
			return fmt.Errorf("insert %s: %w", code, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func (s *SQLiteStore) LoadIndicators(ctx context.Context, institutionID string, year int) (model.IndicatorRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT indicator_code, raw_value, updated_at FROM indicator_values
		 WHERE institution_id = ? AND ranking_year = ?`, institutionID, year)
	if err != nil {
		return model.IndicatorRecord{}, fmt.Errorf("query indicator values: %w", err)
	}
	defer rows.Close()

	rec := model.IndicatorRecord{InstitutionID: institutionID, Year: year, Values: make(map[string]string)}
	for rows.Next() {
		var code, raw, updated string
		if err := rows.Scan(&code, &raw, &updated); err != nil {
			return model.IndicatorRecord{}, fmt.Errorf("scan indicator value: %w", err)
		}
		rec.Values[code] = raw
		if t, perr := time.Parse(time.RFC3339Nano, updated); perr == nil && t.After(rec.UpdatedAt) {
			rec.UpdatedAt = t
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

func (s *SQLiteStore) ListInstitutions(ctx context.Context, year int) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT DISTINCT institution_id FROM indicator_values WHERE ranking_year = ? ORDER BY institution_id`, year)
	if err != nil {
		return nil, fmt.Errorf("query institutions: %w", err)
	}
	defer rows.Close()

	ids := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// IndicatorAverages parses values in Go; SQLite has no regexp_replace.
func (s *SQLiteStore) IndicatorAverages(ctx context.Context, year int) (map[string]float64, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT indicator_code, raw_value FROM indicator_values WHERE ranking_year = ?`, year)
	if err != nil {
		return nil, fmt.Errorf("query indicator values: %w", err)
	}
	defer rows.Close()

	avg := newAverager()
	for rows.Next() {
		var code, raw string
		if err := rows.Scan(&code, &raw); err != nil {
			return nil, err
		}
		avg.add(code, raw)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return avg.result(), nil
}

func (s *SQLiteStore) PutSubmission(ctx context.Context, sub model.Submission) error {
	if err := validateSubmission(sub); err != nil {
		return err
	}
	scores, err := json.Marshal(sub.Scores)
	if err != nil {
		return fmt.Errorf("marshal scores: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO submissions (id, institution_id, ranking_year, status, scores, comment, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			status = excluded.status,
			scores = excluded.scores,
			comment = excluded.comment,
			updated_at = excluded.updated_at`,
		sub.ID, sub.InstitutionID, sub.Year, string(sub.Status), string(scores), sub.Comment,
		sub.CreatedAt.UTC().Format(time.RFC3339Nano), sub.UpdatedAt.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("upsert submission: %w", err)
	}
	return nil
}

func (s *SQLiteStore) GetSubmission(ctx context.Context, id string) (model.Submission, error) {
	var (
		sub              model.Submission
		status, scores   string
		created, updated string
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, institution_id, ranking_year, status, scores, comment, created_at, updated_at
		FROM submissions WHERE id = ?`, id).
		Scan(&sub.ID, &sub.InstitutionID, &sub.Year, &status, &scores, &sub.Comment, &created, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Submission{}, ErrNotFound
	}
	if err != nil {
		return model.Submission{}, fmt.Errorf("query submission: %w", err)
	}
	sub.Status = model.SubmissionStatus(status)
	if err := json.Unmarshal([]byte(scores), &sub.Scores); err != nil {
		return model.Submission{}, fmt.Errorf("decode scores: %w", err)
	}
	sub.CreatedAt, _ = time.Parse(time.RFC3339Nano, created)
	sub.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updated)
	return sub, nil
}

func (s *SQLiteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

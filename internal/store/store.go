package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/sqlc-dev/pqtype"

	"paxth/internal/model"
)

// ErrNotFound is returned when no run has the requested id.
var ErrNotFound = errors.New("run not found")

// Store persists run history in Postgres.
type Store struct {
	DB *sql.DB
}

// New creates a new Store that uses a shared *sql.DB with pooling.
func New(database *sql.DB) *Store {
	return &Store{DB: database}
}

// Open connects with the pgx driver and verifies the connection.
func Open(ctx context.Context, dsn string) (*Store, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}
	return New(db), nil
}

// Run is one stored extraction run.
type Run struct {
	ID        uuid.UUID
	Category  string
	SKU       string
	Product   model.Product
	Sources   map[model.SourceKey]model.ScrapeResult
	Matrix    model.AttributeExtractionMatrix
	Final     model.FinalValueMap
	Log       []string
	Error     string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Summary is the listing view of a run.
type Summary struct {
	ID        uuid.UUID `json:"id"`
	Category  string    `json:"category"`
	SKU       string    `json:"sku"`
	CreatedAt time.Time `json:"createdAt"`
}

const upsertRun = `
INSERT INTO runs (id, category, sku, product, sources, matrix, final_values, log, error)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
ON CONFLICT (id) DO UPDATE SET
    sources = EXCLUDED.sources,
    matrix = EXCLUDED.matrix,
    final_values = EXCLUDED.final_values,
    log = EXCLUDED.log,
    error = EXCLUDED.error,
    updated_at = now()`

// SaveRun inserts r or replaces its mutable columns.
func (s *Store) SaveRun(ctx context.Context, r Run) error {
	product, err := json.Marshal(r.Product)
	if err != nil {
		return err
	}
	sources, err := nullJSON(r.Sources)
	if err != nil {
		return err
	}
	matrix, err := nullJSON(r.Matrix)
	if err != nil {
		return err
	}
	final, err := nullJSON(r.Final)
	if err != nil {
		return err
	}
	logLines, err := nullJSON(r.Log)
	if err != nil {
		return err
	}
	var errText sql.NullString
	if r.Error != "" {
		errText = sql.NullString{String: r.Error, Valid: true}
	}

	_, err = s.DB.ExecContext(ctx, upsertRun,
		r.ID, r.Category, r.SKU, product, sources, matrix, final, logLines, errText)
	if err != nil {
		return fmt.Errorf("save run %s: %w", r.ID, err)
	}
	return nil
}

// UpdateReconciliation stores the operator's latest matrix and final values.
func (s *Store) UpdateReconciliation(ctx context.Context, id uuid.UUID, m model.AttributeExtractionMatrix, final model.FinalValueMap) error {
	matrix, err := nullJSON(m)
	if err != nil {
		return err
	}
	values, err := nullJSON(final)
	if err != nil {
		return err
	}
	res, err := s.DB.ExecContext(ctx,
		`UPDATE runs SET matrix = $2, final_values = $3, updated_at = now() WHERE id = $1`,
		id, matrix, values)
	if err != nil {
		return fmt.Errorf("update run %s: %w", id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

// GetRun loads a run by id.
func (s *Store) GetRun(ctx context.Context, id uuid.UUID) (Run, error) {
	row := s.DB.QueryRowContext(ctx, `
SELECT id, category, sku, product, sources, matrix, final_values, log, error, created_at, updated_at
FROM runs WHERE id = $1`, id)

	var (
		r                             Run
		product                       json.RawMessage
		sources, matrix, final, lines pqtype.NullRawMessage
		errText                       sql.NullString
	)
	err := row.Scan(&r.ID, &r.Category, &r.SKU, &product, &sources, &matrix, &final, &lines, &errText, &r.CreatedAt, &r.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, ErrNotFound
	}
	if err != nil {
		return Run{}, fmt.Errorf("get run %s: %w", id, err)
	}

	if err := json.Unmarshal(product, &r.Product); err != nil {
		return Run{}, fmt.Errorf("decode product: %w", err)
	}
	for _, col := range []struct {
		raw pqtype.NullRawMessage
		dst any
	}{
		{sources, &r.Sources},
		{matrix, &r.Matrix},
		{final, &r.Final},
		{lines, &r.Log},
	} {
		if !col.raw.Valid {
			continue
		}
		if err := json.Unmarshal(col.raw.RawMessage, col.dst); err != nil {
			return Run{}, fmt.Errorf("decode run %s: %w", id, err)
		}
	}
	r.Error = errText.String
	return r, nil
}

// ListRuns returns the newest runs first.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]Summary, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.DB.QueryContext(ctx,
		`SELECT id, category, sku, created_at FROM runs ORDER BY created_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var out []Summary
	for rows.Next() {
		var sm Summary
		if err := rows.Scan(&sm.ID, &sm.Category, &sm.SKU, &sm.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, sm)
	}
	return out, rows.Err()
}

// DeleteRunsBefore removes runs created before cutoff and reports how many
// were deleted.
func (s *Store) DeleteRunsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.DB.ExecContext(ctx, `DELETE FROM runs WHERE created_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("delete expired runs: %w", err)
	}
	return res.RowsAffected()
}

// Ping checks the database connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.DB.PingContext(ctx)
}

func nullJSON(v any) (pqtype.NullRawMessage, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return pqtype.NullRawMessage{}, err
	}
	if string(b) == "null" {
		return pqtype.NullRawMessage{}, nil
	}
	return pqtype.NullRawMessage{RawMessage: b, Valid: true}, nil
}

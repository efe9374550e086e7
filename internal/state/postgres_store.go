package state

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ETAnderson/pricetrail/internal/domain"
)

type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

func (s *PostgresStore) GetProduct(ctx context.Context, id string) (domain.ProductRecord, bool, error) {
	var doc []byte
	err := s.pool.QueryRow(
		ctx,
		`SELECT doc FROM products WHERE id = $1`,
		id,
	).Scan(&doc)

	if errors.Is(err, pgx.ErrNoRows) {
		return domain.ProductRecord{}, false, nil
	}
	if err != nil {
		return domain.ProductRecord{}, false, err
	}

	var rec domain.ProductRecord
	if err := json.Unmarshal(doc, &rec); err != nil {
		return domain.ProductRecord{}, false, fmt.Errorf("decode product %s: %w", id, err)
	}
	return rec, true, nil
}

func (s *PostgresStore) PutProduct(ctx context.Context, rec domain.ProductRecord) error {
	now := time.Now().UTC()
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}
	rec.UpdatedAt = now

	doc, err := json.Marshal(rec)
	if err != nil {
		return err
	}

	_, err = s.pool.Exec(
		ctx,
		`INSERT INTO products (id, name, doc, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (id) DO UPDATE SET
		   name = EXCLUDED.name,
		   doc = EXCLUDED.doc,
		   updated_at = EXCLUDED.updated_at`,
		rec.ID, rec.Name, doc, rec.CreatedAt, rec.UpdatedAt,
	)
	return err
}

func (s *PostgresStore) ListProductIDs(ctx context.Context) ([]string, error) {
	rows, err := s.pool.Query(ctx, `SELECT id FROM products ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]string, 0, 64)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

func (s *PostgresStore) SearchProducts(ctx context.Context, query string, limit int) ([]domain.ProductSummary, error) {
	if limit <= 0 {
		limit = DefaultSearchLimit
	}

	rows, err := s.pool.Query(
		ctx,
		`SELECT doc FROM products
		 WHERE name ILIKE '%' || $1 || '%'
		 ORDER BY name, id
		 LIMIT $2`,
		query, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]domain.ProductSummary, 0, limit)
	for rows.Next() {
		var doc []byte
		if err := rows.Scan(&doc); err != nil {
			return nil, err
		}
		var rec domain.ProductRecord
		if err := json.Unmarshal(doc, &rec); err != nil {
			return nil, fmt.Errorf("decode product doc: %w", err)
		}
		out = append(out, domain.Summarize(rec))
	}
	return out, rows.Err()
}

func (s *PostgresStore) GetRunState(ctx context.Context, date string) (domain.RunState, bool, error) {
	var doc []byte
	err := s.pool.QueryRow(
		ctx,
		`SELECT doc FROM run_states WHERE run_date = $1`,
		date,
	).Scan(&doc)

	if errors.Is(err, pgx.ErrNoRows) {
		return domain.RunState{}, false, nil
	}
	if err != nil {
		return domain.RunState{}, false, err
	}

	var rs domain.RunState
	if err := json.Unmarshal(doc, &rs); err != nil {
		return domain.RunState{}, false, fmt.Errorf("decode run state %s: %w", date, err)
	}
	return rs, true, nil
}

func (s *PostgresStore) PutRunState(ctx context.Context, rs domain.RunState) error {
	doc, err := json.Marshal(rs)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	_, err = s.pool.Exec(
		ctx,
		`INSERT INTO run_states (run_date, doc, created_at, updated_at)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (run_date) DO UPDATE SET
		   doc = EXCLUDED.doc,
		   updated_at = EXCLUDED.updated_at`,
		rs.Date, doc, now, now,
	)
	return err
}

func (s *PostgresStore) ListRunStates(ctx context.Context, limit int) ([]domain.RunState, error) {
	if limit <= 0 {
		limit = DefaultRunListLimit
	}

	rows, err := s.pool.Query(
		ctx,
		`SELECT doc FROM run_states ORDER BY run_date DESC LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]domain.RunState, 0, limit)
	for rows.Next() {
		var doc []byte
		if err := rows.Scan(&doc); err != nil {
			return nil, err
		}
		var rs domain.RunState
		if err := json.Unmarshal(doc, &rs); err != nil {
			return nil, fmt.Errorf("decode run state doc: %w", err)
		}
		out = append(out, rs)
	}
	return out, rows.Err()
}

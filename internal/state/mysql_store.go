package state

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ETAnderson/pricetrail/internal/domain"
)

type MySQLStore struct {
	db *sql.DB
}

func NewMySQLStore(db *sql.DB) *MySQLStore {
	return &MySQLStore{db: db}
}

func (s *MySQLStore) GetProduct(ctx context.Context, id string) (domain.ProductRecord, bool, error) {
	var doc []byte
	err := s.db.QueryRowContext(
		ctx,
		`SELECT doc FROM products WHERE id = ?`,
		id,
	).Scan(&doc)

	if err == sql.ErrNoRows {
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

func (s *MySQLStore) PutProduct(ctx context.Context, rec domain.ProductRecord) error {
	now := time.Now().UTC()
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}
	rec.UpdatedAt = now

	doc, err := json.Marshal(rec)
	if err != nil {
		return err
	}

	// name is duplicated into its own column for LIKE search
	_, err = s.db.ExecContext(
		ctx,
		`INSERT INTO products (id, name, doc, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON DUPLICATE KEY UPDATE
		   name = VALUES(name),
		   doc = VALUES(doc),
		   updated_at = VALUES(updated_at)`,
		rec.ID, rec.Name, doc, rec.CreatedAt, rec.UpdatedAt,
	)
	return err
}

func (s *MySQLStore) ListProductIDs(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id FROM products ORDER BY id`)
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

func (s *MySQLStore) SearchProducts(ctx context.Context, query string, limit int) ([]domain.ProductSummary, error) {
	if limit <= 0 {
		limit = DefaultSearchLimit
	}

	rows, err := s.db.QueryContext(
		ctx,
		`SELECT doc FROM products
		 WHERE name LIKE CONCAT('%', ?, '%')
		 ORDER BY name, id
		 LIMIT ?`,
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

func (s *MySQLStore) GetRunState(ctx context.Context, date string) (domain.RunState, bool, error) {
	var doc []byte
	err := s.db.QueryRowContext(
		ctx,
		`SELECT doc FROM run_states WHERE run_date = ?`,
		date,
	).Scan(&doc)

	if err == sql.ErrNoRows {
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

func (s *MySQLStore) PutRunState(ctx context.Context, rs domain.RunState) error {
	doc, err := json.Marshal(rs)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	_, err = s.db.ExecContext(
		ctx,
		`INSERT INTO run_states (run_date, doc, created_at, updated_at)
		 VALUES (?, ?, ?, ?)
		 ON DUPLICATE KEY UPDATE
		   doc = VALUES(doc),
		   updated_at = VALUES(updated_at)`,
		rs.Date, doc, now, now,
	)
	return err
}

func (s *MySQLStore) ListRunStates(ctx context.Context, limit int) ([]domain.RunState, error) {
	if limit <= 0 {
		limit = DefaultRunListLimit
	}

	rows, err := s.db.QueryContext(
		ctx,
		`SELECT doc FROM run_states ORDER BY run_date DESC LIMIT ?`,
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

package state

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/ETAnderson/pricetrail/internal/domain"
)

// FileStore keeps one JSON document per product under <dir>/products and one
// per run date under <dir>/runs. Writes go through a temp file + rename so a
// crash never leaves a half-written document behind.
type FileStore struct {
	dir string
}

func NewFileStore(dir string) (*FileStore, error) {
	for _, sub := range []string{"products", "runs"} {
		if err := os.MkdirAll(filepath.Join(dir, sub), 0o755); err != nil {
			return nil, fmt.Errorf("create store dir: %w", err)
		}
	}
	return &FileStore{dir: dir}, nil
}

func (s *FileStore) GetProduct(ctx context.Context, id string) (domain.ProductRecord, bool, error) {
	var rec domain.ProductRecord
	ok, err := readJSON(s.productPath(id), &rec)
	if err != nil || !ok {
		return domain.ProductRecord{}, false, err
	}
	return rec, true, nil
}

func (s *FileStore) PutProduct(ctx context.Context, rec domain.ProductRecord) error {
	now := time.Now().UTC()
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}
	rec.UpdatedAt = now

	return writeJSON(s.productPath(rec.ID), rec)
}

func (s *FileStore) ListProductIDs(ctx context.Context) ([]string, error) {
	entries, err := os.ReadDir(filepath.Join(s.dir, "products"))
	if err != nil {
		return nil, err
	}

	out := make([]string, 0, len(entries))
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".json") {
			continue
		}
		out = append(out, strings.TrimSuffix(name, ".json"))
	}
	sort.Strings(out)
	return out, nil
}

func (s *FileStore) SearchProducts(ctx context.Context, query string, limit int) ([]domain.ProductSummary, error) {
	if limit <= 0 {
		limit = DefaultSearchLimit
	}

	ids, err := s.ListProductIDs(ctx)
	if err != nil {
		return nil, err
	}

	out := make([]domain.ProductSummary, 0, 16)
	for _, id := range ids {
		var rec domain.ProductRecord
		ok, err := readJSON(s.productPath(id), &rec)
		if err != nil || !ok {
			// a record deleted or corrupted mid-scan just drops out
			continue
		}
		if !rec.NameMatches(query) {
			continue
		}
		out = append(out, domain.Summarize(rec))
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].ID < out[j].ID
	})

	if limit < len(out) {
		out = out[:limit]
	}
	return out, nil
}

func (s *FileStore) GetRunState(ctx context.Context, date string) (domain.RunState, bool, error) {
	var rs domain.RunState
	ok, err := readJSON(s.runPath(date), &rs)
	if err != nil || !ok {
		return domain.RunState{}, false, err
	}
	return rs, true, nil
}

func (s *FileStore) PutRunState(ctx context.Context, rs domain.RunState) error {
	return writeJSON(s.runPath(rs.Date), rs)
}

func (s *FileStore) ListRunStates(ctx context.Context, limit int) ([]domain.RunState, error) {
	if limit <= 0 {
		limit = DefaultRunListLimit
	}

	entries, err := os.ReadDir(filepath.Join(s.dir, "runs"))
	if err != nil {
		return nil, err
	}

	out := make([]domain.RunState, 0, len(entries))
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".json") {
			continue
		}
		var rs domain.RunState
		ok, err := readJSON(filepath.Join(s.dir, "runs", name), &rs)
		if err != nil || !ok {
			continue
		}
		out = append(out, rs)
	}

	// newest first
	sort.Slice(out, func(i, j int) bool {
		return out[i].Date > out[j].Date
	})

	if limit < len(out) {
		out = out[:limit]
	}
	return out, nil
}

func (s *FileStore) productPath(id string) string {
	return filepath.Join(s.dir, "products", safeName(id)+".json")
}

func (s *FileStore) runPath(date string) string {
	return filepath.Join(s.dir, "runs", "run_state_"+safeName(date)+".json")
}

// safeName keeps identifiers usable as file names. Catalog identifiers are
// digit runs; anything else flattens to '_'.
func safeName(id string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '-', r == '_':
			return r
		}
		return '_'
	}, id)
}

func readJSON(path string, v any) (bool, error) {
	b, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal(b, v); err != nil {
		return false, fmt.Errorf("decode %s: %w", filepath.Base(path), err)
	}
	return true, nil
}

func writeJSON(path string, v any) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-*")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(b); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), path)
}

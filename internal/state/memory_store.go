package state

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/ETAnderson/pricetrail/internal/domain"
)

type MemoryStore struct {
	mu sync.RWMutex

	products  map[string]domain.ProductRecord
	runStates map[string]domain.RunState // keyed by date
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		products:  make(map[string]domain.ProductRecord),
		runStates: make(map[string]domain.RunState),
	}
}

func (s *MemoryStore) GetProduct(ctx context.Context, id string) (domain.ProductRecord, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.products[id]
	if !ok {
		return domain.ProductRecord{}, false, nil
	}
	return cloneProduct(rec), true, nil
}

func (s *MemoryStore) PutProduct(ctx context.Context, rec domain.ProductRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	if prev, ok := s.products[rec.ID]; ok {
		rec.CreatedAt = prev.CreatedAt
	} else {
		rec.CreatedAt = now
	}
	rec.UpdatedAt = now

	s.products[rec.ID] = cloneProduct(rec)
	return nil
}

func (s *MemoryStore) ListProductIDs(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]string, 0, len(s.products))
	for id := range s.products {
		out = append(out, id)
	}
	sort.Strings(out)
	return out, nil
}

func (s *MemoryStore) SearchProducts(ctx context.Context, query string, limit int) ([]domain.ProductSummary, error) {
	if limit <= 0 {
		limit = DefaultSearchLimit
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.ProductSummary, 0, 16)
	for _, rec := range s.products {
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

func (s *MemoryStore) GetRunState(ctx context.Context, date string) (domain.RunState, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rs, ok := s.runStates[date]
	if !ok {
		return domain.RunState{}, false, nil
	}
	return cloneRunState(rs), true, nil
}

func (s *MemoryStore) PutRunState(ctx context.Context, rs domain.RunState) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.runStates[rs.Date] = cloneRunState(rs)
	return nil
}

func (s *MemoryStore) ListRunStates(ctx context.Context, limit int) ([]domain.RunState, error) {
	if limit <= 0 {
		limit = DefaultRunListLimit
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.RunState, 0, len(s.runStates))
	for _, rs := range s.runStates {
		out = append(out, cloneRunState(rs))
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

// The store hands out copies so callers can mutate records freely before
// writing them back. Pointer fields are only ever reassigned, never written
// through, so copying the slices and the error map is enough.
func cloneProduct(rec domain.ProductRecord) domain.ProductRecord {
	out := rec
	out.History.Normal = clonePeriods(rec.History.Normal)
	out.History.Discount = clonePeriods(rec.History.Discount)
	out.History.Clubcard = clonePeriods(rec.History.Clubcard)
	if len(rec.LegacyHistory) > 0 {
		out.LegacyHistory = make([]domain.LegacyEntry, len(rec.LegacyHistory))
		copy(out.LegacyHistory, rec.LegacyHistory)
	}
	return out
}

func clonePeriods(in []domain.PricePeriod) []domain.PricePeriod {
	if in == nil {
		return nil
	}
	out := make([]domain.PricePeriod, len(in))
	copy(out, in)
	return out
}

func cloneRunState(rs domain.RunState) domain.RunState {
	out := rs
	if rs.Processed != nil {
		out.Processed = make([]string, len(rs.Processed))
		copy(out.Processed, rs.Processed)
	}
	if rs.Errors != nil {
		out.Errors = make(map[string]int, len(rs.Errors))
		for k, v := range rs.Errors {
			out.Errors[k] = v
		}
	}
	return out
}

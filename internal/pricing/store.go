package pricing

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/ETAnderson/pricetrail/internal/domain"
	"github.com/ETAnderson/pricetrail/internal/state"
)

// PeriodStore owns product records. Every mutating operation loads the
// record, applies the change, and writes the whole record back. Calls for
// the same identifier are serialized through a per-identifier lock;
// different identifiers proceed in parallel.
type PeriodStore struct {
	Store state.Store
	Loc   *time.Location
	Log   *log.Logger

	now func() time.Time // test seam

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func NewPeriodStore(store state.Store, loc *time.Location, logger *log.Logger) *PeriodStore {
	if loc == nil {
		loc = time.UTC
	}
	return &PeriodStore{Store: store, Loc: loc, Log: logger}
}

// Load returns the stored record for id, or false when none exists.
func (s *PeriodStore) Load(ctx context.Context, id string) (domain.ProductRecord, bool, error) {
	return s.Store.GetProduct(ctx, id)
}

// Save writes a record back as a whole.
func (s *PeriodStore) Save(ctx context.Context, rec domain.ProductRecord) error {
	return s.Store.PutProduct(ctx, rec)
}

// UpsertStatic merges static catalog fields into the record, creating it if
// absent. Price history and an existing last price check survive untouched;
// a record that never had one gets it seeded at now.
func (s *PeriodStore) UpsertStatic(ctx context.Context, id string, static domain.StaticFields) error {
	m := s.lock(id)
	m.Lock()
	defer m.Unlock()

	rec, ok, err := s.Store.GetProduct(ctx, id)
	if err != nil {
		return fmt.Errorf("load product %s: %w", id, err)
	}
	if !ok {
		rec = domain.ProductRecord{ID: id}
	}
	rec.SchemaVersion = domain.ProductSchemaVersion

	if static.Name != "" {
		rec.Name = static.Name
	}
	if static.UnitOfMeasure != "" {
		rec.UnitOfMeasure = static.UnitOfMeasure
	}
	if static.ImageURL != "" {
		rec.ImageURL = static.ImageURL
	}
	if static.PackSizeValue != nil {
		rec.PackSizeValue = static.PackSizeValue
	}
	if static.PackSizeUnit != "" {
		rec.PackSizeUnit = static.PackSizeUnit
	}

	now := s.clock()
	refreshed := now
	rec.LastStaticRefresh = &refreshed
	if rec.LastPriceCheck == nil {
		seeded := now
		rec.LastPriceCheck = &seeded
	}

	if err := s.Store.PutProduct(ctx, rec); err != nil {
		return fmt.Errorf("save product %s: %w", id, err)
	}
	return nil
}

// RecordObservation applies one observed price to a channel, opening or
// extending a period per the coalescing rule. It reports whether a new
// period was opened. Other channels and the last-check timestamp are never
// touched here.
func (s *PeriodStore) RecordObservation(ctx context.Context, id string, ch domain.Channel, price decimal.Decimal, meta PeriodMeta) (bool, error) {
	m := s.lock(id)
	m.Lock()
	defer m.Unlock()

	rec, ok, err := s.Store.GetProduct(ctx, id)
	if err != nil {
		return false, fmt.Errorf("load product %s: %w", id, err)
	}
	if !ok {
		rec = domain.ProductRecord{ID: id}
	}
	rec.SchemaVersion = domain.ProductSchemaVersion

	periods, opened := applyPrice(rec.History.Channel(ch), price, meta, s.clock(), s.Loc)
	rec.History.SetChannel(ch, periods)

	if err := s.Store.PutProduct(ctx, rec); err != nil {
		return false, fmt.Errorf("save product %s: %w", id, err)
	}
	return opened, nil
}

// HasPriceToday reports whether any channel's latest period was observed on
// the current calendar date.
func (s *PeriodStore) HasPriceToday(ctx context.Context, id string) (bool, error) {
	rec, ok, err := s.Store.GetProduct(ctx, id)
	if err != nil {
		return false, fmt.Errorf("load product %s: %w", id, err)
	}
	if !ok {
		return false, nil
	}
	return priceRecordedOn(rec.History, s.clock(), s.Loc), nil
}

// TouchLastChecked stamps the record's last price check without altering
// price history.
func (s *PeriodStore) TouchLastChecked(ctx context.Context, id string) error {
	m := s.lock(id)
	m.Lock()
	defer m.Unlock()

	rec, ok, err := s.Store.GetProduct(ctx, id)
	if err != nil {
		return fmt.Errorf("load product %s: %w", id, err)
	}
	if !ok {
		rec = domain.ProductRecord{ID: id, SchemaVersion: domain.ProductSchemaVersion}
	}
	now := s.clock()
	rec.LastPriceCheck = &now
	if err := s.Store.PutProduct(ctx, rec); err != nil {
		return fmt.Errorf("save product %s: %w", id, err)
	}
	return nil
}

func (s *PeriodStore) lock(id string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.locks == nil {
		s.locks = make(map[string]*sync.Mutex)
	}
	m, ok := s.locks[id]
	if !ok {
		m = &sync.Mutex{}
		s.locks[id] = m
	}
	return m
}

func (s *PeriodStore) clock() time.Time {
	if s.now != nil {
		return s.now()
	}
	return time.Now()
}

package runstate

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ETAnderson/pricetrail/internal/domain"
	"github.com/ETAnderson/pricetrail/internal/state"
)

var errNotInitialized = errors.New("run state not initialized; call EnsureToday first")

// Tracker owns the current day's run state. Workers mutate it concurrently,
// so every operation runs under one mutex, and every mutation persists
// before returning. A crash loses at most the bookkeeping of the item being
// written, never prior items.
type Tracker struct {
	Store state.Store
	Loc   *time.Location
	Log   *log.Logger

	now func() time.Time // test seam

	mu        sync.Mutex
	cur       domain.RunState
	processed map[string]struct{}
	loaded    bool
}

func NewTracker(store state.Store, loc *time.Location, logger *log.Logger) *Tracker {
	if loc == nil {
		loc = time.UTC
	}
	return &Tracker{Store: store, Loc: loc, Log: logger}
}

// EnsureToday adopts the stored state when its date is still today, and
// starts a fresh one otherwise or when a reset is forced.
func (t *Tracker) EnsureToday(ctx context.Context, force bool) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	today := t.today()
	if !force {
		if t.loaded && t.cur.Date == today {
			return nil
		}
		stored, ok, err := t.Store.GetRunState(ctx, today)
		if err != nil {
			return fmt.Errorf("load run state %s: %w", today, err)
		}
		if ok && stored.Date == today {
			t.adopt(stored)
			return nil
		}
	}

	t.adopt(domain.RunState{
		SchemaVersion: domain.RunStateSchemaVersion,
		Date:          today,
		RunID:         uuid.NewString(),
		StartedAt:     t.clock(),
		Errors:        map[string]int{},
	})
	return t.persistLocked(ctx)
}

// SetTotal records the day's discovered population size.
func (t *Tracker) SetTotal(ctx context.Context, n int) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.loaded {
		return errNotInitialized
	}
	t.cur.TotalDiscovered = n
	return t.persistLocked(ctx)
}

// MarkProcessed inserts id into the processed set. Re-marking an id is a
// no-op and does not rewrite the stored document.
func (t *Tracker) MarkProcessed(ctx context.Context, id string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.loaded {
		return errNotInitialized
	}
	if _, ok := t.processed[id]; ok {
		return nil
	}
	t.processed[id] = struct{}{}
	t.cur.Processed = append(t.cur.Processed, id)
	return t.persistLocked(ctx)
}

// RecordError increments the item's error counter.
func (t *Tracker) RecordError(ctx context.Context, id string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.loaded {
		return errNotInitialized
	}
	t.cur.Errors[id]++
	return t.persistLocked(ctx)
}

// MarkCompleted flags the day as fully covered and stamps the finish time.
func (t *Tracker) MarkCompleted(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.loaded {
		return errNotInitialized
	}
	now := t.clock()
	t.cur.Completed = true
	t.cur.FinishedAt = &now
	return t.persistLocked(ctx)
}

func (t *Tracker) IsCompleted() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.loaded && t.cur.Completed
}

func (t *Tracker) HasProcessed(id string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.processed[id]
	return ok
}

func (t *Tracker) ProcessedCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.processed)
}

// Snapshot returns a consistent copy of the current state.
func (t *Tracker) Snapshot() domain.RunState {
	t.mu.Lock()
	defer t.mu.Unlock()

	rs := t.cur
	rs.Processed = append([]string(nil), t.cur.Processed...)
	rs.Errors = make(map[string]int, len(t.cur.Errors))
	for id, n := range t.cur.Errors {
		rs.Errors[id] = n
	}
	if t.cur.FinishedAt != nil {
		f := *t.cur.FinishedAt
		rs.FinishedAt = &f
	}
	return rs
}

// CompletedToday answers the scheduler's "already done for today" question
// without adopting or resetting any state.
func (t *Tracker) CompletedToday(ctx context.Context) (bool, error) {
	t.mu.Lock()
	today := t.today()
	if t.loaded && t.cur.Date == today {
		done := t.cur.Completed
		t.mu.Unlock()
		return done, nil
	}
	t.mu.Unlock()

	stored, ok, err := t.Store.GetRunState(ctx, today)
	if err != nil {
		return false, fmt.Errorf("load run state %s: %w", today, err)
	}
	return ok && stored.Completed, nil
}

func (t *Tracker) adopt(rs domain.RunState) {
	if rs.Errors == nil {
		rs.Errors = map[string]int{}
	}
	t.cur = rs
	t.processed = make(map[string]struct{}, len(rs.Processed))
	for _, id := range rs.Processed {
		t.processed[id] = struct{}{}
	}
	t.loaded = true
}

func (t *Tracker) persistLocked(ctx context.Context) error {
	if err := t.Store.PutRunState(ctx, t.cur); err != nil {
		return fmt.Errorf("save run state %s: %w", t.cur.Date, err)
	}
	return nil
}

func (t *Tracker) today() string {
	return t.clock().In(t.Loc).Format("2006-01-02")
}

func (t *Tracker) clock() time.Time {
	if t.now != nil {
		return t.now()
	}
	return time.Now()
}

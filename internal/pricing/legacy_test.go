package pricing

import (
	"context"
	"testing"
	"time"

	"github.com/ETAnderson/pricetrail/internal/domain"
	"github.com/ETAnderson/pricetrail/internal/state"
)

func TestFoldLegacy_CoalescesRunsIntoPeriods(t *testing.T) {
	day := func(n int) time.Time { return time.Date(2026, 8, n, 10, 0, 0, 0, time.UTC) }

	rec := domain.ProductRecord{
		ID:            "p1",
		SchemaVersion: 1,
		LegacyHistory: []domain.LegacyEntry{
			{Price: d(499), ObservedAt: day(1)},
			{Price: d(499), ObservedAt: day(2)},
			{Price: d(549), ObservedAt: day(3)},
			{Channel: domain.ChannelClubcard, Price: d(449), ObservedAt: day(3)},
		},
	}

	if !FoldLegacy(&rec, time.UTC) {
		t.Fatal("FoldLegacy reported no change")
	}
	if rec.LegacyHistory != nil {
		t.Fatal("legacy entries kept after folding")
	}
	if rec.SchemaVersion != domain.ProductSchemaVersion {
		t.Fatalf("schema version = %d, want %d", rec.SchemaVersion, domain.ProductSchemaVersion)
	}

	if len(rec.History.Normal) != 2 {
		t.Fatalf("normal periods = %d, want 2", len(rec.History.Normal))
	}
	first := rec.History.Normal[0]
	if !first.Price.Equal(d(499)) || first.End == nil || !first.End.Equal(day(2)) {
		t.Fatalf("first period = %+v, want 499 ending on day 2", first)
	}
	if !rec.History.Normal[1].Price.Equal(d(549)) {
		t.Fatalf("second period = %+v", rec.History.Normal[1])
	}
	if len(rec.History.Clubcard) != 1 || !rec.History.Clubcard[0].Price.Equal(d(449)) {
		t.Fatalf("clubcard periods = %+v", rec.History.Clubcard)
	}
}

func TestFoldLegacy_UnsortedEntriesAreOrderedFirst(t *testing.T) {
	day := func(n int) time.Time { return time.Date(2026, 8, n, 10, 0, 0, 0, time.UTC) }

	rec := domain.ProductRecord{
		ID:            "p1",
		SchemaVersion: 1,
		LegacyHistory: []domain.LegacyEntry{
			{Price: d(549), ObservedAt: day(3)},
			{Price: d(499), ObservedAt: day(1)},
			{Price: d(499), ObservedAt: day(2)},
		},
	}

	FoldLegacy(&rec, time.UTC)
	if len(rec.History.Normal) != 2 {
		t.Fatalf("normal periods = %d, want 2", len(rec.History.Normal))
	}
	if !rec.History.Normal[0].Price.Equal(d(499)) || !rec.History.Normal[1].Price.Equal(d(549)) {
		t.Fatalf("periods out of order: %+v", rec.History.Normal)
	}
}

func TestFoldLegacy_PopulatedChannelKeepsItsPeriods(t *testing.T) {
	day := func(n int) time.Time { return time.Date(2026, 8, n, 10, 0, 0, 0, time.UTC) }

	existing := domain.PricePeriod{Price: d(599), Start: day(5)}
	rec := domain.ProductRecord{
		ID:            "p1",
		SchemaVersion: 1,
		History:       domain.PriceHistory{Normal: []domain.PricePeriod{existing}},
		LegacyHistory: []domain.LegacyEntry{{Price: d(499), ObservedAt: day(1)}},
	}

	if !FoldLegacy(&rec, time.UTC) {
		t.Fatal("FoldLegacy reported no change")
	}
	if len(rec.History.Normal) != 1 || !rec.History.Normal[0].Price.Equal(d(599)) {
		t.Fatalf("existing periods overwritten: %+v", rec.History.Normal)
	}
	if rec.LegacyHistory != nil {
		t.Fatal("legacy entries kept after folding")
	}
}

func TestFoldLegacy_CurrentRecordUntouched(t *testing.T) {
	rec := domain.ProductRecord{ID: "p1", SchemaVersion: domain.ProductSchemaVersion}
	if FoldLegacy(&rec, time.UTC) {
		t.Fatal("a current record without legacy history reported a change")
	}
}

func TestMigrateLegacyHistory_DryRunThenReal(t *testing.T) {
	ctx := context.Background()
	store := state.NewMemoryStore()
	day := func(n int) time.Time { return time.Date(2026, 8, n, 10, 0, 0, 0, time.UTC) }

	legacy := domain.ProductRecord{
		ID:            "old",
		SchemaVersion: 1,
		LegacyHistory: []domain.LegacyEntry{
			{Price: d(499), ObservedAt: day(1)},
			{Price: d(499), ObservedAt: day(2)},
		},
	}
	current := domain.ProductRecord{ID: "new", SchemaVersion: domain.ProductSchemaVersion}
	if err := store.PutProduct(ctx, legacy); err != nil {
		t.Fatal(err)
	}
	if err := store.PutProduct(ctx, current); err != nil {
		t.Fatal(err)
	}

	n, err := MigrateLegacyHistory(ctx, store, time.UTC, true, nil)
	if err != nil || n != 1 {
		t.Fatalf("dry run: n=%d err=%v, want 1", n, err)
	}
	rec, _, _ := store.GetProduct(ctx, "old")
	if len(rec.LegacyHistory) == 0 {
		t.Fatal("dry run rewrote the record")
	}

	n, err = MigrateLegacyHistory(ctx, store, time.UTC, false, nil)
	if err != nil || n != 1 {
		t.Fatalf("migration: n=%d err=%v, want 1", n, err)
	}
	rec, _, _ = store.GetProduct(ctx, "old")
	if rec.LegacyHistory != nil || len(rec.History.Normal) != 1 {
		t.Fatalf("record not folded: %+v", rec)
	}
	if rec.SchemaVersion != domain.ProductSchemaVersion {
		t.Fatalf("schema version = %d", rec.SchemaVersion)
	}
}

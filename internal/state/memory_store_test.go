package state

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/ETAnderson/pricetrail/internal/domain"
)

func sampleRecord(id, name string, price int64) domain.ProductRecord {
	start := time.Date(2026, 8, 20, 8, 0, 0, 0, time.UTC)
	return domain.ProductRecord{
		SchemaVersion: domain.ProductSchemaVersion,
		ID:            id,
		Name:          name,
		UnitOfMeasure: "db",
		History: domain.PriceHistory{
			Normal: []domain.PricePeriod{{Price: decimal.NewFromInt(price), Start: start}},
		},
	}
}

func TestMemoryStore_ProductRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	if _, ok, err := s.GetProduct(ctx, "123"); err != nil || ok {
		t.Fatalf("missing product: ok=%v err=%v", ok, err)
	}

	if err := s.PutProduct(ctx, sampleRecord("123", "Tej 2,8%", 499)); err != nil {
		t.Fatalf("PutProduct: %v", err)
	}

	rec, ok, err := s.GetProduct(ctx, "123")
	if err != nil || !ok {
		t.Fatalf("GetProduct: ok=%v err=%v", ok, err)
	}
	if rec.Name != "Tej 2,8%" || len(rec.History.Normal) != 1 {
		t.Fatalf("record = %+v", rec)
	}
	if rec.CreatedAt.IsZero() || rec.UpdatedAt.IsZero() {
		t.Fatal("timestamps not stamped")
	}

	created := rec.CreatedAt
	rec.Name = "Tej 2,8% 1l"
	if err := s.PutProduct(ctx, rec); err != nil {
		t.Fatal(err)
	}
	rec, _, _ = s.GetProduct(ctx, "123")
	if !rec.CreatedAt.Equal(created) {
		t.Fatalf("created at changed on update: %v -> %v", created, rec.CreatedAt)
	}
}

func TestMemoryStore_ReturnsIsolatedCopies(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	if err := s.PutProduct(ctx, sampleRecord("123", "Tej", 499)); err != nil {
		t.Fatal(err)
	}

	rec, _, _ := s.GetProduct(ctx, "123")
	end := time.Now()
	rec.History.Normal[0].End = &end
	rec.History.Normal = append(rec.History.Normal, domain.PricePeriod{Price: decimal.NewFromInt(1)})

	again, _, _ := s.GetProduct(ctx, "123")
	if len(again.History.Normal) != 1 || again.History.Normal[0].End != nil {
		t.Fatalf("caller mutation leaked into the store: %+v", again.History.Normal)
	}
}

func TestMemoryStore_SearchProducts(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	for _, rec := range []domain.ProductRecord{
		sampleRecord("3", "Zsemle", 45),
		sampleRecord("1", "Tej 2,8%", 499),
		sampleRecord("2", "Tejföl", 699),
	} {
		if err := s.PutProduct(ctx, rec); err != nil {
			t.Fatal(err)
		}
	}

	got, err := s.SearchProducts(ctx, "tej", 0)
	if err != nil {
		t.Fatalf("SearchProducts: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("matches = %d, want 2", len(got))
	}
	if got[0].Name != "Tej 2,8%" || got[1].Name != "Tejföl" {
		t.Fatalf("order = %q, %q", got[0].Name, got[1].Name)
	}
	if got[0].LatestPrice == nil || !got[0].LatestPrice.Equal(decimal.NewFromInt(499)) {
		t.Fatalf("summary price = %v", got[0].LatestPrice)
	}

	got, err = s.SearchProducts(ctx, "", 2)
	if err != nil || len(got) != 2 {
		t.Fatalf("limited search: n=%d err=%v", len(got), err)
	}
}

func TestMemoryStore_RunStates(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	if _, ok, err := s.GetRunState(ctx, "2026-08-20"); err != nil || ok {
		t.Fatalf("missing run state: ok=%v err=%v", ok, err)
	}

	for _, date := range []string{"2026-08-19", "2026-08-20", "2026-08-18"} {
		rs := domain.RunState{SchemaVersion: domain.RunStateSchemaVersion, Date: date, RunID: "run-" + date}
		if err := s.PutRunState(ctx, rs); err != nil {
			t.Fatal(err)
		}
	}

	rs, ok, err := s.GetRunState(ctx, "2026-08-19")
	if err != nil || !ok || rs.RunID != "run-2026-08-19" {
		t.Fatalf("GetRunState: %+v ok=%v err=%v", rs, ok, err)
	}

	list, err := s.ListRunStates(ctx, 2)
	if err != nil {
		t.Fatalf("ListRunStates: %v", err)
	}
	if len(list) != 2 || list[0].Date != "2026-08-20" || list[1].Date != "2026-08-19" {
		t.Fatalf("list = %+v, want newest first", list)
	}
}

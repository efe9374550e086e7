package pricing

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/ETAnderson/pricetrail/internal/domain"
	"github.com/ETAnderson/pricetrail/internal/state"
)

func TestParseClubcardPrice_GroupedDigitsWithSuffix(t *testing.T) {
	price, ok := ParseClubcardPrice("1 299 Ft Clubcarddal")
	if !ok || !price.Equal(d(1299)) {
		t.Fatalf("parsed %v ok=%v, want 1299", price, ok)
	}
}

func TestParseClubcardPrice_NonBreakingSpaces(t *testing.T) {
	price, ok := ParseClubcardPrice("2 499 ft Clubcard árral")
	if !ok || !price.Equal(d(2499)) {
		t.Fatalf("parsed %v ok=%v, want 2499", price, ok)
	}
}

func TestParseClubcardPrice_NoAmount(t *testing.T) {
	if _, ok := ParseClubcardPrice("Clubcard ajánlat"); ok {
		t.Fatal("parsed a price out of a description with none")
	}
}

func testObservation(id string, price int64, promos ...domain.PromotionInfo) domain.Observation {
	actual := decimal.NewFromInt(price)
	unit := decimal.NewFromInt(price)
	return domain.Observation{
		ID:         id,
		Title:      "Tej 2,8% 1l",
		Price:      &domain.PriceInfo{Actual: actual, UnitPrice: &unit, UnitOfMeasure: "l"},
		Promotions: promos,
	}
}

func newTestPeriodStore(at time.Time) *PeriodStore {
	ps := NewPeriodStore(state.NewMemoryStore(), time.UTC, nil)
	ps.now = func() time.Time { return at }
	return ps
}

func TestApplyObservation_NormalChannelAlwaysRecorded(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 8, 20, 6, 0, 0, 0, time.UTC)
	ps := newTestPeriodStore(now)

	changed, err := ps.ApplyObservation(ctx, testObservation("p1", 499))
	if err != nil {
		t.Fatalf("ApplyObservation: %v", err)
	}
	if !changed {
		t.Fatal("first observation reported no change")
	}

	rec, _, _ := ps.Load(ctx, "p1")
	if len(rec.History.Normal) != 1 || !rec.History.Normal[0].Price.Equal(d(499)) {
		t.Fatalf("normal channel = %+v", rec.History.Normal)
	}
	if rec.History.Normal[0].UnitPrice == nil || rec.History.Normal[0].UnitMeasure != "l" {
		t.Fatalf("unit fields not carried: %+v", rec.History.Normal[0])
	}
	if rec.LastPriceCheck == nil || !rec.LastPriceCheck.Equal(now) {
		t.Fatalf("last price check not stamped: %v", rec.LastPriceCheck)
	}
}

func TestApplyObservation_MissingPriceIsAnError(t *testing.T) {
	ps := newTestPeriodStore(time.Now())
	if _, err := ps.ApplyObservation(context.Background(), domain.Observation{ID: "p1"}); err == nil {
		t.Fatal("expected an error for an observation without a price")
	}
}

func TestApplyObservation_ClubcardParsedFromDescription(t *testing.T) {
	ctx := context.Background()
	ps := newTestPeriodStore(time.Date(2026, 8, 20, 6, 0, 0, 0, time.UTC))

	promo := domain.PromotionInfo{
		ID:          "promo-7",
		Description: "1 299 Ft Clubcarddal",
		Attributes:  []string{domain.AttrClubcardPricing},
	}
	if _, err := ps.ApplyObservation(ctx, testObservation("p1", 1499, promo)); err != nil {
		t.Fatalf("ApplyObservation: %v", err)
	}

	rec, _, _ := ps.Load(ctx, "p1")
	if len(rec.History.Clubcard) != 1 || !rec.History.Clubcard[0].Price.Equal(d(1299)) {
		t.Fatalf("clubcard channel = %+v", rec.History.Clubcard)
	}
	if rec.History.Clubcard[0].PromoID != "promo-7" {
		t.Fatalf("promo id = %q", rec.History.Clubcard[0].PromoID)
	}
	if len(rec.History.Discount) != 0 {
		t.Fatalf("loyalty promotion leaked into discount: %+v", rec.History.Discount)
	}
}

func TestApplyObservation_ClubcardPrefersDiscountedField(t *testing.T) {
	ctx := context.Background()
	ps := newTestPeriodStore(time.Date(2026, 8, 20, 6, 0, 0, 0, time.UTC))

	after := d(1199)
	promo := domain.PromotionInfo{
		ID:            "promo-7",
		Description:   "1 299 Ft Clubcarddal",
		Attributes:    []string{domain.AttrClubcardPricing},
		AfterDiscount: &after,
	}
	if _, err := ps.ApplyObservation(ctx, testObservation("p1", 1499, promo)); err != nil {
		t.Fatalf("ApplyObservation: %v", err)
	}

	rec, _, _ := ps.Load(ctx, "p1")
	if len(rec.History.Clubcard) != 1 || !rec.History.Clubcard[0].Price.Equal(d(1199)) {
		t.Fatalf("clubcard channel = %+v, want the discounted field 1199", rec.History.Clubcard)
	}
}

func TestApplyObservation_ClubcardFallsBackWhenFieldEqualsActual(t *testing.T) {
	ctx := context.Background()
	ps := newTestPeriodStore(time.Date(2026, 8, 20, 6, 0, 0, 0, time.UTC))

	after := d(1499)
	promo := domain.PromotionInfo{
		ID:            "promo-7",
		Description:   "1 299 Ft Clubcarddal",
		Attributes:    []string{domain.AttrClubcardPricing},
		AfterDiscount: &after,
	}
	if _, err := ps.ApplyObservation(ctx, testObservation("p1", 1499, promo)); err != nil {
		t.Fatalf("ApplyObservation: %v", err)
	}

	rec, _, _ := ps.Load(ctx, "p1")
	if len(rec.History.Clubcard) != 1 || !rec.History.Clubcard[0].Price.Equal(d(1299)) {
		t.Fatalf("clubcard channel = %+v, want description fallback 1299", rec.History.Clubcard)
	}
}

func TestApplyObservation_DiscountChannelForOtherPromos(t *testing.T) {
	ctx := context.Background()
	ps := newTestPeriodStore(time.Date(2026, 8, 20, 6, 0, 0, 0, time.UTC))

	after := d(399)
	promo := domain.PromotionInfo{ID: "promo-2", Description: "Akció", AfterDiscount: &after}
	if _, err := ps.ApplyObservation(ctx, testObservation("p1", 499, promo)); err != nil {
		t.Fatalf("ApplyObservation: %v", err)
	}

	rec, _, _ := ps.Load(ctx, "p1")
	if len(rec.History.Discount) != 1 || !rec.History.Discount[0].Price.Equal(d(399)) {
		t.Fatalf("discount channel = %+v", rec.History.Discount)
	}
	if len(rec.History.Clubcard) != 0 {
		t.Fatalf("plain promotion leaked into clubcard: %+v", rec.History.Clubcard)
	}
}

func TestApplyObservation_EqualDiscountedPriceIgnored(t *testing.T) {
	ctx := context.Background()
	ps := newTestPeriodStore(time.Date(2026, 8, 20, 6, 0, 0, 0, time.UTC))

	after := d(499)
	promo := domain.PromotionInfo{ID: "promo-2", AfterDiscount: &after}
	if _, err := ps.ApplyObservation(ctx, testObservation("p1", 499, promo)); err != nil {
		t.Fatalf("ApplyObservation: %v", err)
	}

	rec, _, _ := ps.Load(ctx, "p1")
	if len(rec.History.Discount) != 0 {
		t.Fatalf("promotion without a real discount recorded: %+v", rec.History.Discount)
	}
}

func TestApplyObservation_CompetingPromos_CheapestWins(t *testing.T) {
	ctx := context.Background()
	ps := newTestPeriodStore(time.Date(2026, 8, 20, 6, 0, 0, 0, time.UTC))

	a449 := d(449)
	a429 := d(429)
	promos := []domain.PromotionInfo{
		{ID: "promo-b", AfterDiscount: &a449},
		{ID: "promo-a", AfterDiscount: &a429},
	}
	if _, err := ps.ApplyObservation(ctx, testObservation("p1", 499, promos...)); err != nil {
		t.Fatalf("ApplyObservation: %v", err)
	}

	rec, _, _ := ps.Load(ctx, "p1")
	got := rec.History.Discount
	if len(got) != 1 || !got[0].Price.Equal(d(429)) || got[0].PromoID != "promo-a" {
		t.Fatalf("discount channel = %+v, want promo-a at 429", got)
	}
}

func TestApplyObservation_TieBreakIsOrderIndependent(t *testing.T) {
	ctx := context.Background()

	after := d(429)
	mk := func(id string) domain.PromotionInfo {
		a := after
		return domain.PromotionInfo{ID: id, AfterDiscount: &a}
	}

	winners := make([]string, 2)
	for i, order := range [][]domain.PromotionInfo{
		{mk("promo-z"), mk("promo-a")},
		{mk("promo-a"), mk("promo-z")},
	} {
		ps := newTestPeriodStore(time.Date(2026, 8, 20, 6, 0, 0, 0, time.UTC))
		if _, err := ps.ApplyObservation(ctx, testObservation("p1", 499, order...)); err != nil {
			t.Fatalf("ApplyObservation: %v", err)
		}
		rec, _, _ := ps.Load(ctx, "p1")
		winners[i] = rec.History.Discount[0].PromoID
	}

	if winners[0] != winners[1] || winners[0] != "promo-a" {
		t.Fatalf("tie-break depends on iteration order: %v", winners)
	}
}

package pricing

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func d(v int64) decimal.Decimal { return decimal.NewFromInt(v) }

func TestApplyPrice_SamePriceSameDay_ExtendsOpenPeriod(t *testing.T) {
	loc := time.UTC
	morning := time.Date(2026, 8, 20, 8, 0, 0, 0, loc)
	evening := morning.Add(10 * time.Hour)

	periods, opened := applyPrice(nil, d(499), PeriodMeta{}, morning, loc)
	if !opened || len(periods) != 1 {
		t.Fatalf("first observation: opened=%v periods=%d", opened, len(periods))
	}

	periods, opened = applyPrice(periods, d(499), PeriodMeta{}, evening, loc)
	if opened {
		t.Fatal("same price on the same day opened a new period")
	}
	if len(periods) != 1 {
		t.Fatalf("period count = %d, want 1", len(periods))
	}
	if periods[0].End == nil || !periods[0].End.Equal(evening) {
		t.Fatalf("open period end = %v, want %v", periods[0].End, evening)
	}
}

func TestApplyPrice_NextDaySamePrice_StillExtends(t *testing.T) {
	loc := time.UTC
	day1 := time.Date(2026, 8, 20, 8, 0, 0, 0, loc)
	day2 := day1.Add(24 * time.Hour)

	periods, _ := applyPrice(nil, d(499), PeriodMeta{}, day1, loc)
	periods, opened := applyPrice(periods, d(499), PeriodMeta{}, day2, loc)
	if opened || len(periods) != 1 {
		t.Fatalf("adjacent-day extension: opened=%v periods=%d", opened, len(periods))
	}
}

func TestApplyPrice_TwoDayGapSamePrice_OpensNewPeriod(t *testing.T) {
	loc := time.UTC
	day1 := time.Date(2026, 8, 20, 8, 0, 0, 0, loc)
	day3 := day1.Add(48 * time.Hour)

	periods, _ := applyPrice(nil, d(499), PeriodMeta{}, day1, loc)
	periods, opened := applyPrice(periods, d(499), PeriodMeta{}, day3, loc)
	if !opened {
		t.Fatal("a two-day gap did not open a new period")
	}
	if len(periods) != 2 {
		t.Fatalf("period count = %d, want 2", len(periods))
	}
	if periods[0].End == nil {
		t.Fatal("previous period left open")
	}
	if !periods[0].Start.Before(periods[1].Start) {
		t.Fatal("periods out of order")
	}
}

func TestApplyPrice_PriceChange_ClosesPreviousOnItsStart(t *testing.T) {
	loc := time.UTC
	day1 := time.Date(2026, 8, 20, 8, 0, 0, 0, loc)
	day2 := day1.Add(24 * time.Hour)

	periods, _ := applyPrice(nil, d(499), PeriodMeta{}, day1, loc)
	periods, opened := applyPrice(periods, d(549), PeriodMeta{}, day2, loc)
	if !opened || len(periods) != 2 {
		t.Fatalf("price change: opened=%v periods=%d", opened, len(periods))
	}
	if periods[0].End == nil || !periods[0].End.Equal(day1) {
		t.Fatalf("never-extended period closed at %v, want its start %v", periods[0].End, day1)
	}
	if !periods[1].Start.Equal(day2) || periods[1].End != nil {
		t.Fatalf("new period = %+v", periods[1])
	}
}

func TestApplyPrice_PriceChange_KeepsExtendedEnd(t *testing.T) {
	loc := time.UTC
	day1 := time.Date(2026, 8, 20, 8, 0, 0, 0, loc)
	day2 := day1.Add(24 * time.Hour)
	day3 := day1.Add(48 * time.Hour)

	periods, _ := applyPrice(nil, d(499), PeriodMeta{}, day1, loc)
	periods, _ = applyPrice(periods, d(499), PeriodMeta{}, day2, loc)
	periods, _ = applyPrice(periods, d(549), PeriodMeta{}, day3, loc)

	if len(periods) != 2 {
		t.Fatalf("period count = %d, want 2", len(periods))
	}
	if periods[0].End == nil || !periods[0].End.Equal(day2) {
		t.Fatalf("closed period end = %v, want last extension %v", periods[0].End, day2)
	}
}

func TestDaysApart_CountsCalendarDaysInLocation(t *testing.T) {
	loc := time.FixedZone("CEST", 2*60*60)
	// 23:30 local on the 20th vs 00:30 local on the 23rd: three calendar
	// days apart despite just over two days of elapsed time.
	a := time.Date(2026, 8, 20, 21, 30, 0, 0, time.UTC)
	b := time.Date(2026, 8, 22, 22, 30, 0, 0, time.UTC)

	if got := daysApart(a, b, loc); got != 3 {
		t.Fatalf("daysApart = %d, want 3", got)
	}

	periods, _ := applyPrice(nil, d(499), PeriodMeta{}, a, loc)
	if _, opened := applyPrice(periods, d(499), PeriodMeta{}, b, loc); !opened {
		t.Fatal("calendar gap in local time did not open a new period")
	}
}

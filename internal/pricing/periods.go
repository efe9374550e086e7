package pricing

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/ETAnderson/pricetrail/internal/domain"
)

// PeriodMeta carries the fields recorded alongside an observed price. Unit
// fields apply to the normal channel, promo fields to discount and clubcard.
type PeriodMeta struct {
	UnitPrice        *decimal.Decimal
	UnitMeasure      string
	PromoID          string
	PromoDescription string
	PromoStart       *time.Time
	PromoEnd         *time.Time
}

// calendarDay collapses t to its calendar date in loc, expressed as a UTC
// midnight so day distances divide evenly across DST transitions.
func calendarDay(t time.Time, loc *time.Location) time.Time {
	y, m, d := t.In(loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func daysApart(a, b time.Time, loc *time.Location) int {
	return int(calendarDay(b, loc).Sub(calendarDay(a, loc)).Hours() / 24)
}

func sameDay(a, b time.Time, loc *time.Location) bool {
	return calendarDay(a, loc).Equal(calendarDay(b, loc))
}

// applyPrice folds one observation into a channel's period sequence. A new
// period opens when the price moved or the last period went stale by more
// than one calendar day; otherwise the last period's end advances to now.
// The returned bool reports whether a new period was opened.
func applyPrice(periods []domain.PricePeriod, price decimal.Decimal, meta PeriodMeta, now time.Time, loc *time.Location) ([]domain.PricePeriod, bool) {
	if len(periods) == 0 {
		return append(periods, newPeriod(price, meta, now)), true
	}

	last := &periods[len(periods)-1]
	stale := daysApart(last.LastObserved(), now, loc) > 1
	if last.Price.Equal(price) && !stale {
		end := now
		last.End = &end
		return periods, false
	}

	// a period that was never extended closes on its own start instant
	if last.End == nil {
		end := last.Start
		last.End = &end
	}
	return append(periods, newPeriod(price, meta, now)), true
}

func newPeriod(price decimal.Decimal, meta PeriodMeta, now time.Time) domain.PricePeriod {
	return domain.PricePeriod{
		Price:            price,
		Start:            now,
		UnitPrice:        meta.UnitPrice,
		UnitMeasure:      meta.UnitMeasure,
		PromoID:          meta.PromoID,
		PromoDescription: meta.PromoDescription,
		PromoStart:       meta.PromoStart,
		PromoEnd:         meta.PromoEnd,
	}
}

// priceRecordedOn reports whether any channel's latest period starts or ends
// on the given calendar day.
func priceRecordedOn(h domain.PriceHistory, day time.Time, loc *time.Location) bool {
	for _, ch := range domain.Channels() {
		periods := h.Channel(ch)
		if len(periods) == 0 {
			continue
		}
		last := periods[len(periods)-1]
		if sameDay(last.Start, day, loc) {
			return true
		}
		if last.End != nil && sameDay(*last.End, day, loc) {
			return true
		}
	}
	return false
}

package pricing

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/ETAnderson/pricetrail/internal/domain"
)

// clubcardAmount matches a digit run immediately followed by the forint
// suffix once spacing is stripped: "1 299 Ft Clubcarddal" -> 1299.
var clubcardAmount = regexp.MustCompile(`(?i)(\d+)ft`)

// ParseClubcardPrice extracts the advertised loyalty amount from a promotion
// description. Regular and non-breaking spaces are removed first so grouped
// thousands collapse into a single digit run.
func ParseClubcardPrice(desc string) (decimal.Decimal, bool) {
	compact := strings.NewReplacer(" ", "", " ", "").Replace(desc)
	m := clubcardAmount.FindStringSubmatch(compact)
	if m == nil {
		return decimal.Decimal{}, false
	}
	d, err := decimal.NewFromString(m[1])
	if err != nil {
		return decimal.Decimal{}, false
	}
	return d, true
}

type candidate struct {
	price decimal.Decimal
	meta  PeriodMeta
}

// betterCandidate picks between two promotions competing for one channel:
// lower price wins, then the earlier promo start (promotions without a start
// sort last), then the smaller promo id.
func betterCandidate(a, b candidate) candidate {
	switch {
	case b.price.LessThan(a.price):
		return b
	case a.price.LessThan(b.price):
		return a
	}
	switch {
	case a.meta.PromoStart == nil && b.meta.PromoStart != nil:
		return b
	case b.meta.PromoStart == nil && a.meta.PromoStart != nil:
		return a
	case a.meta.PromoStart != nil && b.meta.PromoStart != nil && !a.meta.PromoStart.Equal(*b.meta.PromoStart):
		if b.meta.PromoStart.Before(*a.meta.PromoStart) {
			return b
		}
		return a
	}
	if b.meta.PromoID < a.meta.PromoID {
		return b
	}
	return a
}

// ApplyObservation runs the channel assignment for one fetch result: the
// actual price always lands on the normal channel, loyalty promotions on
// clubcard, and other discounted prices on discount. It finishes by stamping
// the record's last price check, and reports whether any channel opened a
// new period.
func (s *PeriodStore) ApplyObservation(ctx context.Context, obs domain.Observation) (bool, error) {
	if obs.Price == nil {
		return false, fmt.Errorf("observation for product %s carries no price", obs.ID)
	}

	changed, err := s.RecordObservation(ctx, obs.ID, domain.ChannelNormal, obs.Price.Actual, PeriodMeta{
		UnitPrice:   obs.Price.UnitPrice,
		UnitMeasure: obs.Price.UnitOfMeasure,
	})
	if err != nil {
		return false, err
	}

	byChannel := map[domain.Channel]candidate{}
	pick := func(ch domain.Channel, c candidate) {
		if cur, ok := byChannel[ch]; ok {
			byChannel[ch] = betterCandidate(cur, c)
			return
		}
		byChannel[ch] = c
	}

	for _, promo := range obs.Promotions {
		meta := PeriodMeta{
			PromoID:          promo.ID,
			PromoDescription: promo.Description,
			PromoStart:       promo.Start,
			PromoEnd:         promo.End,
		}
		if promo.IsClubcard() {
			price, ok := clubcardPrice(promo, obs.Price.Actual)
			if !ok {
				s.logf("product %s: clubcard promotion %s has no usable price", obs.ID, promo.ID)
				continue
			}
			pick(domain.ChannelClubcard, candidate{price: price, meta: meta})
			continue
		}
		if promo.AfterDiscount != nil && !promo.AfterDiscount.Equal(obs.Price.Actual) {
			pick(domain.ChannelDiscount, candidate{price: *promo.AfterDiscount, meta: meta})
		}
	}

	for _, ch := range []domain.Channel{domain.ChannelDiscount, domain.ChannelClubcard} {
		c, ok := byChannel[ch]
		if !ok {
			continue
		}
		opened, err := s.RecordObservation(ctx, obs.ID, ch, c.price, c.meta)
		if err != nil {
			return changed, err
		}
		changed = changed || opened
	}

	if err := s.TouchLastChecked(ctx, obs.ID); err != nil {
		return changed, err
	}
	return changed, nil
}

// clubcardPrice resolves the loyalty price for a clubcard-flagged promotion.
// The promotion's own discounted-price field wins when it differs from the
// actual price; otherwise the description is parsed.
func clubcardPrice(promo domain.PromotionInfo, actual decimal.Decimal) (decimal.Decimal, bool) {
	if promo.AfterDiscount != nil && !promo.AfterDiscount.Equal(actual) {
		return *promo.AfterDiscount, true
	}
	return ParseClubcardPrice(promo.Description)
}

func (s *PeriodStore) logf(format string, args ...any) {
	if s.Log != nil {
		s.Log.Printf(format, args...)
	}
}

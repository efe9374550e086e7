package domain

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// ProductSchemaVersion is stamped on every record written by this system.
// Version 1 is the legacy flat price_history shape; version 2 is the
// three-channel period model.
const ProductSchemaVersion = 2

type ProductRecord struct {
	SchemaVersion int    `json:"schema_version"`
	ID            string `json:"id"`

	Name          string           `json:"name,omitempty"`
	UnitOfMeasure string           `json:"unit_of_measure,omitempty"`
	ImageURL      string           `json:"image_url,omitempty"`
	PackSizeValue *decimal.Decimal `json:"pack_size_value,omitempty"`
	PackSizeUnit  string           `json:"pack_size_unit,omitempty"`

	LastStaticRefresh *time.Time `json:"last_static_refresh,omitempty"`
	LastPriceCheck    *time.Time `json:"last_price_check,omitempty"`

	History PriceHistory `json:"history"`

	// LegacyHistory carries flat append-only observations written under
	// schema version 1. The migrate-history command folds it into History.
	LegacyHistory []LegacyEntry `json:"price_history,omitempty"`

	CreatedAt time.Time `json:"created_at,omitempty"`
	UpdatedAt time.Time `json:"updated_at,omitempty"`
}

type PriceHistory struct {
	Normal   []PricePeriod `json:"normal,omitempty"`
	Discount []PricePeriod `json:"discount,omitempty"`
	Clubcard []PricePeriod `json:"clubcard,omitempty"`
}

func (h PriceHistory) Channel(c Channel) []PricePeriod {
	switch c {
	case ChannelDiscount:
		return h.Discount
	case ChannelClubcard:
		return h.Clubcard
	default:
		return h.Normal
	}
}

func (h *PriceHistory) SetChannel(c Channel, periods []PricePeriod) {
	switch c {
	case ChannelDiscount:
		h.Discount = periods
	case ChannelClubcard:
		h.Clubcard = periods
	default:
		h.Normal = periods
	}
}

type PricePeriod struct {
	Price decimal.Decimal `json:"price"`
	Start time.Time       `json:"start"`
	End   *time.Time      `json:"end,omitempty"` // nil = still open

	UnitPrice   *decimal.Decimal `json:"unit_price,omitempty"`
	UnitMeasure string           `json:"unit_measure,omitempty"`

	PromoID          string     `json:"promo_id,omitempty"`
	PromoDescription string     `json:"promo_description,omitempty"`
	PromoStart       *time.Time `json:"promo_start,omitempty"`
	PromoEnd         *time.Time `json:"promo_end,omitempty"`
}

// LastObserved is the most recent instant this period is known to have held.
func (p PricePeriod) LastObserved() time.Time {
	if p.End != nil {
		return *p.End
	}
	return p.Start
}

type LegacyEntry struct {
	Channel    Channel         `json:"channel,omitempty"` // empty means normal
	Price      decimal.Decimal `json:"price"`
	ObservedAt time.Time       `json:"date"`
}

type StaticFields struct {
	Name          string
	UnitOfMeasure string
	ImageURL      string
	PackSizeValue *decimal.Decimal
	PackSizeUnit  string
}

type ProductSummary struct {
	ID             string           `json:"id"`
	Name           string           `json:"name"`
	LatestPrice    *decimal.Decimal `json:"latest_price,omitempty"`
	LastPriceCheck *time.Time       `json:"last_price_check,omitempty"`
}

func Summarize(rec ProductRecord) ProductSummary {
	s := ProductSummary{
		ID:             rec.ID,
		Name:           rec.Name,
		LastPriceCheck: rec.LastPriceCheck,
	}
	if n := len(rec.History.Normal); n > 0 {
		price := rec.History.Normal[n-1].Price
		s.LatestPrice = &price
	}
	return s
}

// NameMatches reports whether the record's name contains the query,
// case-insensitively. Shared by the scan-based store backends.
func (r ProductRecord) NameMatches(query string) bool {
	if query == "" {
		return true
	}
	return strings.Contains(strings.ToLower(r.Name), strings.ToLower(query))
}

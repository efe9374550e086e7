package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Observation is the parsed result of one catalog fetch.
type Observation struct {
	ID            string
	Title         string
	ImageURL      string
	PackSizeValue *decimal.Decimal
	PackSizeUnit  string

	Price      *PriceInfo
	Promotions []PromotionInfo
}

type PriceInfo struct {
	Actual        decimal.Decimal
	UnitPrice     *decimal.Decimal
	UnitOfMeasure string
}

type PromotionInfo struct {
	ID          string
	Type        string
	Description string
	Attributes  []string
	Start       *time.Time
	End         *time.Time

	BeforeDiscount *decimal.Decimal
	AfterDiscount  *decimal.Decimal
}

func (p PromotionInfo) IsClubcard() bool {
	for _, a := range p.Attributes {
		if a == AttrClubcardPricing {
			return true
		}
	}
	return false
}

func (o Observation) Static() StaticFields {
	s := StaticFields{
		Name:          o.Title,
		ImageURL:      o.ImageURL,
		PackSizeValue: o.PackSizeValue,
		PackSizeUnit:  o.PackSizeUnit,
	}
	if o.Price != nil {
		s.UnitOfMeasure = o.Price.UnitOfMeasure
	}
	return s
}

package state

import (
	"context"

	"github.com/ETAnderson/pricetrail/internal/domain"
)

// Defaults applied when a caller passes limit <= 0.
const (
	DefaultSearchLimit  = 100
	DefaultRunListLimit = 30
)

// Store persists the two document families this system owns: one product
// record per item identifier and one run state per calendar date. Writes
// replace the whole document.
type Store interface {
	// Product records
	GetProduct(ctx context.Context, id string) (domain.ProductRecord, bool, error)
	PutProduct(ctx context.Context, rec domain.ProductRecord) error
	ListProductIDs(ctx context.Context) ([]string, error)
	SearchProducts(ctx context.Context, query string, limit int) ([]domain.ProductSummary, error)

	// Run states
	GetRunState(ctx context.Context, date string) (domain.RunState, bool, error)
	PutRunState(ctx context.Context, rs domain.RunState) error
	ListRunStates(ctx context.Context, limit int) ([]domain.RunState, error)
}

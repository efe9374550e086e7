package pricing

import (
	"context"
	"fmt"
	"log"
	"sort"
	"time"

	"github.com/ETAnderson/pricetrail/internal/domain"
	"github.com/ETAnderson/pricetrail/internal/state"
)

// FoldLegacy converts a record's flat version-1 history into channel
// periods, coalescing runs of identical prices with the same rule used for
// live observations. Channels that already hold periods keep them; the flat
// list is dropped either way. It reports whether the record was modified.
func FoldLegacy(rec *domain.ProductRecord, loc *time.Location) bool {
	if len(rec.LegacyHistory) == 0 {
		if rec.SchemaVersion != domain.ProductSchemaVersion {
			rec.SchemaVersion = domain.ProductSchemaVersion
			return true
		}
		return false
	}

	entries := make([]domain.LegacyEntry, len(rec.LegacyHistory))
	copy(entries, rec.LegacyHistory)
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].ObservedAt.Before(entries[j].ObservedAt)
	})

	byChannel := map[domain.Channel][]domain.LegacyEntry{}
	for _, e := range entries {
		ch := e.Channel
		if ch == "" {
			ch = domain.ChannelNormal
		}
		byChannel[ch] = append(byChannel[ch], e)
	}

	for ch, list := range byChannel {
		if len(rec.History.Channel(ch)) > 0 {
			continue
		}
		var periods []domain.PricePeriod
		for _, e := range list {
			periods, _ = applyPrice(periods, e.Price, PeriodMeta{}, e.ObservedAt, loc)
		}
		rec.History.SetChannel(ch, periods)
	}

	rec.LegacyHistory = nil
	rec.SchemaVersion = domain.ProductSchemaVersion
	return true
}

// MigrateLegacyHistory rewrites every stored record still carrying flat
// version-1 history. With dryRun set it only reports what would change.
// Returns the number of records migrated (or that would be).
func MigrateLegacyHistory(ctx context.Context, store state.Store, loc *time.Location, dryRun bool, logger *log.Logger) (int, error) {
	if loc == nil {
		loc = time.UTC
	}

	ids, err := store.ListProductIDs(ctx)
	if err != nil {
		return 0, fmt.Errorf("list products: %w", err)
	}

	updated := 0
	for _, id := range ids {
		rec, ok, err := store.GetProduct(ctx, id)
		if err != nil {
			return updated, fmt.Errorf("load product %s: %w", id, err)
		}
		if !ok {
			continue
		}
		if !FoldLegacy(&rec, loc) {
			continue
		}
		if dryRun {
			if logger != nil {
				logger.Printf("would migrate product %s", id)
			}
			updated++
			continue
		}
		if err := store.PutProduct(ctx, rec); err != nil {
			return updated, fmt.Errorf("save product %s: %w", id, err)
		}
		updated++
	}
	return updated, nil
}

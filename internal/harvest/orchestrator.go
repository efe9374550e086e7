package harvest

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ETAnderson/pricetrail/internal/domain"
	"github.com/ETAnderson/pricetrail/internal/fetch"
	"github.com/ETAnderson/pricetrail/internal/pricing"
	"github.com/ETAnderson/pricetrail/internal/runstate"
)

// Discoverer enumerates the item population.
type Discoverer interface {
	Discover(ctx context.Context) ([]string, error)
}

// Fetcher retrieves one product document from the catalog.
type Fetcher interface {
	Fetch(ctx context.Context, id string, mode fetch.Mode) (domain.Observation, error)
}

// Phase is the terminal state of one pass.
type Phase string

const (
	// PhaseCompleted means every population member is in the processed set.
	PhaseCompleted Phase = "completed"
	// PhasePartialSaved means the pool ran dry with coverage gaps; the saved
	// run state lets the next pass resume.
	PhasePartialSaved Phase = "partial_saved"
	// PhaseDrained means cancellation stopped dispatch; in-flight tasks were
	// allowed to finish.
	PhaseDrained Phase = "drained"
)

type PassOptions struct {
	// Items bypasses discovery when non-empty.
	Items   []string
	Force   bool
	Workers int
}

type PassResult struct {
	RunID      string
	Date       string
	Phase      Phase
	Population int
	Dispatched int
	Processed  int
	Errored    int
	Completed  bool
}

// Orchestrator composes discovery, fetching, and the two stores into one
// resumable daily pass.
type Orchestrator struct {
	Discoverer Discoverer
	Fetcher    Fetcher
	Periods    *pricing.PeriodStore
	Tracker    *runstate.Tracker

	Workers   int
	Freshness time.Duration
	Log       *log.Logger

	// OnItemDone, when set, observes the disposition of every population
	// member handled by the pass, folded items included. Calls arrive from
	// worker goroutines.
	OnItemDone func(id string, outcome domain.TaskOutcome)

	now func() time.Time // test seam
}

// RunPass executes one harvesting pass: resolve the population, adopt or
// reset today's run state, skip what is already covered, and dispatch the
// rest across a bounded worker pool. Cancellation stops dispatch; tasks
// already running finish and their writes are kept.
func (o *Orchestrator) RunPass(ctx context.Context, opts PassOptions) (PassResult, error) {
	var population []string
	if len(opts.Items) > 0 {
		population = dedupe(opts.Items)
	} else {
		o.logf("discovering catalog")
		ids, err := o.Discoverer.Discover(ctx)
		if err != nil {
			return PassResult{}, fmt.Errorf("discover catalog: %w", err)
		}
		population = ids
	}

	if err := o.Tracker.EnsureToday(ctx, opts.Force); err != nil {
		return PassResult{}, err
	}
	if err := o.Tracker.SetTotal(ctx, len(population)); err != nil {
		return PassResult{}, err
	}

	snap := o.Tracker.Snapshot()
	res := PassResult{RunID: snap.RunID, Date: snap.Date, Population: len(population)}
	ctx = WithRunID(ctx, snap.RunID)

	if snap.Completed && !opts.Force {
		o.logf("run %s: %s already completed, nothing to do", snap.RunID, snap.Date)
		res.Phase = PhaseCompleted
		res.Completed = true
		res.Processed = o.Tracker.ProcessedCount()
		return res, nil
	}

	// remaining work = population minus processed minus items whose record
	// already shows today's price; the latter are folded into the processed
	// set without a network call
	var remaining []string
	for _, id := range population {
		if o.Tracker.HasProcessed(id) {
			continue
		}
		if !opts.Force {
			has, err := o.Periods.HasPriceToday(ctx, id)
			if err != nil {
				o.logf("product %s: price-today lookup failed: %v", id, err)
			} else if has {
				if err := o.Tracker.MarkProcessed(ctx, id); err != nil {
					o.logf("product %s: mark processed: %v", id, err)
				}
				o.itemDone(id, domain.OutcomeSkippedRecorded)
				continue
			}
		}
		remaining = append(remaining, id)
	}

	res.Dispatched = len(remaining)
	o.logf("run %s: dispatching %d of %d items", snap.RunID, len(remaining), len(population))

	workers := opts.Workers
	if workers <= 0 {
		workers = o.Workers
	}
	if workers <= 0 {
		workers = 4
	}

	var errored int64
	var cancelled bool

	// workers run detached from the pass context so a task in flight when
	// cancellation lands still completes its writes
	taskCtx := WithRunID(context.WithoutCancel(ctx), snap.RunID)

	tasks := make(chan string)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for id := range tasks {
				outcome := o.processItem(taskCtx, id, opts.Force)
				switch outcome {
				case domain.OutcomeErroredFetch, domain.OutcomeErroredNoData, domain.OutcomeErroredPersist:
					atomic.AddInt64(&errored, 1)
				}
				o.itemDone(id, outcome)
			}
		}()
	}

produce:
	for _, id := range remaining {
		select {
		case <-ctx.Done():
			cancelled = true
			break produce
		case tasks <- id:
		}
	}
	close(tasks)
	wg.Wait()

	res.Processed = o.Tracker.ProcessedCount()
	res.Errored = int(atomic.LoadInt64(&errored))

	complete := true
	for _, id := range population {
		if !o.Tracker.HasProcessed(id) {
			complete = false
			break
		}
	}

	switch {
	case complete:
		if err := o.Tracker.MarkCompleted(ctx); err != nil {
			o.logf("run %s: mark completed: %v", snap.RunID, err)
		}
		res.Phase = PhaseCompleted
		res.Completed = true
	case cancelled:
		res.Phase = PhaseDrained
	default:
		res.Phase = PhasePartialSaved
	}

	o.logf("run %s: %s, processed %d/%d, %d errors",
		snap.RunID, res.Phase, res.Processed, res.Population, res.Errored)
	return res, nil
}

// processItem handles one dispatched item end to end. Failures never
// propagate; they come back as the task's outcome.
func (o *Orchestrator) processItem(ctx context.Context, id string, force bool) domain.TaskOutcome {
	rec, exists, err := o.Periods.Load(ctx, id)
	if err != nil {
		o.logf("product %s: load failed: %v", id, err)
		return domain.OutcomeErroredPersist
	}

	if !force && exists && rec.LastPriceCheck != nil && o.clock().Sub(*rec.LastPriceCheck) < o.freshness() {
		if err := o.Tracker.MarkProcessed(ctx, id); err != nil {
			o.logf("product %s: mark processed: %v", id, err)
			return domain.OutcomeErroredPersist
		}
		return domain.OutcomeSkippedFresh
	}

	mode := fetch.ModeFull
	if exists {
		mode = fetch.ModePriceOnly
	}

	obs, err := o.Fetcher.Fetch(ctx, id, mode)
	if err != nil {
		if rerr := o.Tracker.RecordError(ctx, id); rerr != nil {
			o.logf("product %s: record error: %v", id, rerr)
		}
		if errors.Is(err, fetch.ErrNoData) {
			o.logf("product %s: %v", id, err)
			return domain.OutcomeErroredNoData
		}
		o.logf("product %s: fetch failed: %v", id, err)
		return domain.OutcomeErroredFetch
	}

	if mode == fetch.ModeFull {
		if err := o.Periods.UpsertStatic(ctx, id, obs.Static()); err != nil {
			o.logf("product %s: static upsert failed: %v", id, err)
			return domain.OutcomeErroredPersist
		}
	}
	if _, err := o.Periods.ApplyObservation(ctx, obs); err != nil {
		o.logf("product %s: record observation failed: %v", id, err)
		return domain.OutcomeErroredPersist
	}

	if err := o.Tracker.MarkProcessed(ctx, id); err != nil {
		o.logf("product %s: mark processed: %v", id, err)
		return domain.OutcomeErroredPersist
	}
	return domain.OutcomeProcessed
}

func dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

func (o *Orchestrator) freshness() time.Duration {
	if o.Freshness > 0 {
		return o.Freshness
	}
	return 12 * time.Hour
}

func (o *Orchestrator) itemDone(id string, outcome domain.TaskOutcome) {
	if o.OnItemDone != nil {
		o.OnItemDone(id, outcome)
	}
}

func (o *Orchestrator) clock() time.Time {
	if o.now != nil {
		return o.now()
	}
	return time.Now()
}

func (o *Orchestrator) logf(format string, args ...any) {
	if o.Log != nil {
		o.Log.Printf(format, args...)
	}
}

package harvest

import (
	"context"
	"log"
	"time"

	"github.com/ETAnderson/pricetrail/internal/runstate"
)

// Daemon triggers one harvesting pass per day. On start it runs a catch-up
// pass immediately when today's run has not completed, so a restart mid-day
// resumes where the previous process stopped.
type Daemon struct {
	Orchestrator *Orchestrator
	Tracker      *runstate.Tracker

	DailyAt string // "15:04" wall-clock time in Loc
	Loc     *time.Location
	Workers int
	Log     *log.Logger

	now func() time.Time // test seam
}

// Run blocks until ctx is cancelled.
func (d *Daemon) Run(ctx context.Context) error {
	loc := d.Loc
	if loc == nil {
		loc = time.UTC
	}

	if done, err := d.Tracker.CompletedToday(ctx); err != nil {
		d.logf("completed-today check failed: %v", err)
	} else if !done {
		d.logf("today's run incomplete, starting catch-up pass")
		d.pass(ctx)
	}

	for {
		next := nextRunAt(d.clock().In(loc), d.DailyAt)
		d.logf("next harvest scheduled for %s", next.Format(time.RFC3339))

		timer := time.NewTimer(time.Until(next))
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}

		done, err := d.Tracker.CompletedToday(ctx)
		if err != nil {
			d.logf("completed-today check failed: %v", err)
		}
		if done {
			continue
		}
		d.pass(ctx)
	}
}

func (d *Daemon) pass(ctx context.Context) {
	res, err := d.Orchestrator.RunPass(ctx, PassOptions{Workers: d.Workers})
	if err != nil {
		d.logf("pass failed: %v", err)
		return
	}
	d.logf("run %s (%s) finished: phase=%s processed=%d/%d errors=%d",
		res.RunID, res.Date, res.Phase, res.Processed, res.Population, res.Errored)
}

// nextRunAt returns the first wall-clock instant matching hhmm strictly
// after now. An unparseable hhmm falls back to 05:00.
func nextRunAt(now time.Time, hhmm string) time.Time {
	at, err := time.Parse("15:04", hhmm)
	if err != nil {
		at, _ = time.Parse("15:04", "05:00")
	}
	next := time.Date(now.Year(), now.Month(), now.Day(), at.Hour(), at.Minute(), 0, 0, now.Location())
	if !next.After(now) {
		next = next.AddDate(0, 0, 1)
	}
	return next
}

func (d *Daemon) clock() time.Time {
	if d.now != nil {
		return d.now()
	}
	return time.Now()
}

func (d *Daemon) logf(format string, args ...any) {
	if d.Log != nil {
		d.Log.Printf(format, args...)
	}
}

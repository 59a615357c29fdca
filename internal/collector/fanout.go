package collector

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/devpulse-io/devpulse/internal/domain"
)

// CollectFunc runs the fully sequential collection pipeline for one
// unit. Returning records together with an error marks the unit
// partial: earlier pages survived a later failure.
type CollectFunc func(ctx context.Context, req domain.CollectionRequest) (domain.RecordBundle, error)

// FanOut runs per-unit collection across a fixed worker pool. Workers
// consume a job queue and report on a results channel; the merge runs
// single-threaded after every worker has finished, so no locking
// guards the merged bundle.
type FanOut struct {
	Workers     int
	UnitTimeout time.Duration // per-unit deadline, 0 disables
	Log         *slog.Logger
}

// CollectMany collects all units and merges their records. One unit's
// failure never cancels or delays its siblings; it is recorded in the
// returned status instead.
func (f *FanOut) CollectMany(ctx context.Context, units []domain.CollectionRequest, collect CollectFunc) (domain.RecordBundle, domain.CollectionStatus) {
	workers := f.Workers
	if workers < 1 {
		workers = 1
	}
	if workers > len(units) {
		workers = len(units)
	}

	jobs := make(chan domain.CollectionRequest)
	results := make(chan domain.UnitResult, len(units))

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for req := range jobs {
				results <- f.collectUnit(ctx, req, collect)
			}
		}()
	}

	for _, unit := range units {
		jobs <- unit
	}
	close(jobs)
	wg.Wait()
	close(results)

	var merged domain.RecordBundle
	var status domain.CollectionStatus
	for res := range results {
		if res.Success {
			status.Successful = append(status.Successful, res.Unit)
			merged.Merge(res.Records)
			continue
		}
		status.Failed = append(status.Failed, res.Unit)
		if res.Partial {
			status.Partial = append(status.Partial, res.Unit)
			merged.Merge(res.Records)
		}
	}
	sort.Strings(status.Successful)
	sort.Strings(status.Failed)
	sort.Strings(status.Partial)
	status.RecordCount = merged.Count()

	f.Log.Info("collection fan-out finished",
		"units", len(units),
		"successful", len(status.Successful),
		"failed", len(status.Failed),
		"partial", len(status.Partial),
		"records", status.RecordCount,
	)
	return merged, status
}

func (f *FanOut) collectUnit(ctx context.Context, req domain.CollectionRequest, collect CollectFunc) domain.UnitResult {
	if f.UnitTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.UnitTimeout)
		defer cancel()
	}

	records, err := collect(ctx, req)
	if err == nil {
		f.Log.Debug("unit collected", "unit", req.Unit, "records", records.Count())
		return domain.UnitResult{Unit: req.Unit, Success: true, Records: records}
	}

	partial := records.Count() > 0
	f.Log.Warn("unit collection failed",
		"unit", req.Unit,
		"partial", partial,
		"error", err,
	)
	if !partial {
		records = domain.RecordBundle{}
	}
	return domain.UnitResult{
		Unit:    req.Unit,
		Success: false,
		Partial: partial,
		Err:     err.Error(),
		Records: records,
	}
}

package collector

import (
	"context"
	"encoding/json"
	"log/slog"
)

// SizingConfig holds the adaptive pagination thresholds
type SizingConfig struct {
	SmallThreshold int // at or below: one batch, aux fields on
	HugeThreshold  int // above: bigger batches, aux fields off
	BatchSize      int
	HugeBatchSize  int
}

// DefaultSizing returns the production thresholds
func DefaultSizing() SizingConfig {
	return SizingConfig{
		SmallThreshold: 500,
		HugeThreshold:  5000,
		BatchSize:      500,
		HugeBatchSize:  1000,
	}
}

// FetchPlan is the sizing decision for one paginated walk. Dropping
// auxiliary fields on huge datasets trades secondary data (change
// history, nested lists) for throughput; per-item expansions are O(n)
// expensive server-side.
type FetchPlan struct {
	Total      int
	BatchSize  int
	IncludeAux bool
}

// PlanFetch sizes a walk from an up-front count estimate
func PlanFetch(total int, cfg SizingConfig) FetchPlan {
	switch {
	case total <= cfg.SmallThreshold:
		return FetchPlan{Total: total, BatchSize: total, IncludeAux: true}
	case total <= cfg.HugeThreshold:
		return FetchPlan{Total: total, BatchSize: cfg.BatchSize, IncludeAux: true}
	default:
		return FetchPlan{Total: total, BatchSize: cfg.HugeBatchSize, IncludeAux: false}
	}
}

// Page is one network response's worth of raw records
type Page struct {
	Records []json.RawMessage
	Total   int // server-reported total, 0 when unknown
	HasMore bool
}

// OffsetPager walks an offset-paginated result set adaptively. Probe
// and Fetch are expected to wrap the retry controller themselves, so
// each page gets its own retry budget. On a page failure Run returns
// the records accumulated so far together with the error; partial
// success is the caller's call to make.
type OffsetPager struct {
	Sizing SizingConfig
	Probe  func(ctx context.Context) (int, error)
	Fetch  func(ctx context.Context, offset, limit int, includeAux bool) (Page, error)
	Log    *slog.Logger
}

// Run executes the probe, plans the walk, and fetches pages until the
// planned total is reached or a page comes back short.
func (p *OffsetPager) Run(ctx context.Context) ([]json.RawMessage, error) {
	total, err := p.Probe(ctx)
	if err != nil {
		// Legacy behavior: a broken count endpoint must not abort the
		// unit, so fall back to one best-effort unsized fetch.
		p.Log.Warn("count probe failed, falling back to single fetch", "error", err)
		page, err := p.Fetch(ctx, 0, 0, true)
		if err != nil {
			return nil, err
		}
		return page.Records, nil
	}
	if total == 0 {
		return nil, nil
	}

	plan := PlanFetch(total, p.Sizing)
	p.Log.Debug("planned paginated fetch",
		"total", total,
		"batch_size", plan.BatchSize,
		"include_aux", plan.IncludeAux,
	)

	var records []json.RawMessage
	for offset := 0; offset < total; offset += plan.BatchSize {
		page, err := p.Fetch(ctx, offset, plan.BatchSize, plan.IncludeAux)
		if err != nil {
			return records, err
		}
		records = append(records, page.Records...)
		if len(page.Records) < plan.BatchSize {
			break
		}
		if page.Total > 0 && !page.HasMore {
			break
		}
	}
	return records, nil
}

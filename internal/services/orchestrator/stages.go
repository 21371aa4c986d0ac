package orchestrator

import (
    "context"
    "fmt"

    "leakhound/internal/domain"
    "leakhound/internal/metrics"
    "leakhound/internal/services/delta"
)

func (r *run) initialize(ctx context.Context) (int, error) {
    product, err := r.o.deps.Products.GetProduct(ctx, r.progress.ProductID)
    if err != nil {
        return 0, fmt.Errorf("load product %s: %w", r.progress.ProductID, err)
    }
    r.product = product

    known, err := r.o.deps.Infringements.KnownForProduct(ctx, product.ID)
    if err != nil {
        return 0, fmt.Errorf("load known infringements: %w", err)
    }
    r.engine = delta.NewEngine(product.ID, known)

    var learned domain.LearnedSignals
    if r.o.deps.Learning != nil {
        l, err := r.o.deps.Learning.Learned(ctx, product)
        if err != nil {
            r.slog.SelfHeal(domain.StageInitialization, "learned_signals_unavailable",
                fmt.Sprintf("could not load learned keywords (%v); generating queries without them", err))
        } else {
            learned = l
        }
    }
    if !product.Signals.Empty() {
        r.slog.Info(domain.StageInitialization, "using untrusted ai signals", nil)
    }

    r.plan = r.o.deps.Generator.Generate(product, learned, nil)
    r.slog.Info(domain.StageInitialization, "query plan ready", map[string]any{
        "category": string(product.Category),
        "tier1":    len(r.plan.Tier1),
        "tier2":    len(r.plan.Tier2),
        "known":    r.engine.KnownCount(),
        "learned":  len(learned.Keywords),
    })
    return len(r.plan.Tier1) + len(r.plan.Tier2), nil
}

func (r *run) keywordSearch(ctx context.Context) (int, error) {
    hits := r.search(ctx, domain.StageKeywordSearch, r.plan.Tier1)
    r.pending = append(r.pending, hits...)
    return len(hits), nil
}

func (r *run) trademarkSearch(ctx context.Context) (int, error) {
    hits := r.search(ctx, domain.StageTrademarkSearch, r.plan.Tier2)
    r.pending = append(r.pending, hits...)
    return len(hits), nil
}

// phraseMatching scores everything the first two tiers found. Every hit URL
// is kept for hot-domain counting, including those filtered out here.
func (r *run) phraseMatching(ctx context.Context) (int, error) {
    for _, h := range r.pending {
        r.tierURLs = append(r.tierURLs, h.Link)
    }
    kept := r.filter(ctx, domain.StagePhraseMatching, r.pending)
    r.pending = nil
    r.results = append(r.results, kept...)
    return len(kept), nil
}

// marketplaceScan runs the deep-dive tier built from the Tier 1/2 hit URLs.
func (r *run) marketplaceScan(ctx context.Context) (int, error) {
    r.plan.Tier3 = r.o.deps.Generator.DeepDive(r.product, r.plan, r.tierURLs)
    if len(r.plan.Tier3) == 0 {
        r.slog.Info(domain.StageMarketplaceScan, "no deep-dive queries", nil)
        return 0, nil
    }
    hits := r.search(ctx, domain.StageMarketplaceScan, r.plan.Tier3)
    kept := r.filter(ctx, domain.StageMarketplaceScan, hits)
    r.results = append(r.results, kept...)
    return len(kept), nil
}

func (r *run) platformScan(ctx context.Context) (int, error) {
    if r.o.deps.Router == nil {
        r.slog.Info(domain.StagePlatformScan, "no platform scanners configured", nil)
        return 0, nil
    }
    allocs := r.o.deps.Router.Allocate(r.product, r.client.Remaining(), r.o.cfg.PlatformBudgetCap)
    if len(allocs) == 0 {
        r.slog.Info(domain.StagePlatformScan, "no eligible platforms", map[string]any{"remaining": r.client.Remaining()})
        return 0, nil
    }

    res := r.o.deps.Router.Run(ctx, r.product, allocs)
    r.platformUsed = res.BudgetUsed
    for _, p := range res.Failed {
        r.slog.SelfHeal(domain.StagePlatformScan, "platform_scan_failed",
            fmt.Sprintf("%s scanner failed; continuing without it", p))
    }
    r.progress.Counts.Hits += len(res.Hits)

    kept := r.filter(ctx, domain.StagePlatformScan, res.Hits)
    r.results = append(r.results, kept...)
    r.slog.Info(domain.StagePlatformScan, "platform scan done", map[string]any{
        "platforms":   len(res.Ran),
        "failed":      len(res.Failed),
        "budget_used": res.BudgetUsed,
        "kept":        len(kept),
    })
    return len(kept), nil
}

// finalize dedupes and classifies everything retained, persists new records
// and updates rediscovered ones. Per-record failures are logged and counted.
// Writes ignore cancellation of the caller's context so that partial results
// found before the deadline are kept.
func (r *run) finalize(ctx context.Context) (int, error) {
    ctx = context.WithoutCancel(ctx)
    c := r.engine.Classify(r.results)
    now := r.o.deps.Now()

    records := make([]domain.InfringementRecord, 0, len(c.New))
    for _, res := range c.New {
        records = append(records, r.engine.NewRecord(r.o.deps.NewID(), res, now))
    }
    persisted := r.persist(ctx, records)

    applied, err := r.engine.Apply(ctx, r.o.deps.Infringements, func(n domain.Notification) {
        r.notify(ctx, n)
    }, c, r.id, now)
    if err != nil {
        r.slog.Error(domain.StageFinalization, "rediscovery_update_failed", err, nil)
    }
    // re-listed records are active again and feed the learned keywords
    if applied.Relisted > 0 && r.o.deps.Learning != nil {
        r.o.deps.Learning.Forget(r.product.ID)
    }

    counts := &r.progress.Counts
    counts.New = len(persisted)
    counts.Rediscovered = applied.Touched
    counts.Relisted = applied.Relisted

    metrics.InfringementsTotal.WithLabelValues("new").Add(float64(counts.New))
    metrics.InfringementsTotal.WithLabelValues("rediscovered").Add(float64(counts.Rediscovered))
    metrics.InfringementsTotal.WithLabelValues("relisted").Add(float64(counts.Relisted))
    metrics.InfringementsTotal.WithLabelValues("persist_failed").Add(float64(counts.PersistFailed))

    for _, rec := range persisted {
        if rec.RiskLevel != domain.RiskCritical {
            continue
        }
        r.notify(ctx, domain.Notification{
            Kind:    domain.NotifyHighSeverity,
            Title:   "Critical infringement found",
            Message: fmt.Sprintf("%s (confidence %d, %s)", rec.URL, rec.Confidence, rec.Platform),
            URL:     rec.URL,
            Data: map[string]string{
                "infringement_id": rec.ID,
                "platform":        string(rec.Platform),
                "type":            rec.Type,
            },
        })
    }

    d := r.client.Diagnostics()
    r.slog.Info(domain.StageFinalization, "search diagnostics", map[string]any{
        "total":         d.Total,
        "success":       d.Success,
        "errors":        d.Errors,
        "empty":         d.Empty,
        "skipped":       d.Skipped,
        "recent_errors": d.RecentErrors,
    })
    r.slog.Info(domain.StageFinalization, "results persisted", map[string]any{
        "new":            counts.New,
        "rediscovered":   counts.Rediscovered,
        "relisted":       counts.Relisted,
        "persist_failed": counts.PersistFailed,
    })
    return counts.New, nil
}

// persist writes records in one batch, falling back to row-by-row inserts
// when the batch is rejected. It returns the records that were stored.
func (r *run) persist(ctx context.Context, records []domain.InfringementRecord) []domain.InfringementRecord {
    if len(records) == 0 {
        return nil
    }
    repo := r.o.deps.Infringements
    err := repo.InsertBatch(ctx, records)
    if err == nil {
        return records
    }
    r.slog.SelfHeal(domain.StageFinalization, "batch_insert_failed",
        fmt.Sprintf("batch insert of %d records failed (%v); retrying one at a time", len(records), err))

    stored := make([]domain.InfringementRecord, 0, len(records))
    for _, rec := range records {
        if err := repo.Insert(ctx, rec); err != nil {
            r.progress.Counts.PersistFailed++
            r.slog.Error(domain.StageFinalization, "insert_failed",
                &domain.PersistenceError{Op: "insert", URLHash: rec.URLHash, Err: err},
                map[string]any{"url": rec.URL})
            continue
        }
        stored = append(stored, rec)
    }
    return stored
}

package orchestrator

import (
    "context"
    "fmt"
    "strconv"
    "time"

    "github.com/apex/log"

    "leakhound/internal/domain"
    "leakhound/internal/metrics"
    "leakhound/internal/services/aifilter"
    "leakhound/internal/services/delta"
    "leakhound/internal/services/querygen"
    "leakhound/internal/services/queryclient"
    "leakhound/internal/services/scanlog"
    "leakhound/internal/services/scoring"
)

// run is the state of one scan. Stages execute sequentially on the calling
// goroutine; only the query client and router fan out.
type run struct {
    o        *Orchestrator
    id       string
    log      log.Interface
    slog     *scanlog.Logger
    client   *queryclient.Client
    ai       *aifilter.Filter
    progress domain.RunProgress
    deadline time.Time
    expired  bool

    product      domain.Product
    engine       *delta.Engine
    plan         querygen.Plan
    pending      []domain.SearchHit
    tierURLs     []string
    results      []domain.ScoredResult
    platformUsed int
}

func newRun(ctx context.Context, o *Orchestrator, runID, productID string) *run {
    now := o.deps.Now()
    deadline := now.Add(o.cfg.Deadline)
    if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
        deadline = d
    }
    logger := o.deps.Logger.WithFields(log.Fields{"run_id": runID})
    client := queryclient.New(o.deps.Search, o.cfg.Query, logger)
    return &run{
        o:        o,
        id:       runID,
        log:      logger,
        slog:     scanlog.New(runID, o.deps.Logs, logger).WithClock(o.deps.Now),
        client:   client,
        ai:       o.aiFilter(),
        progress: domain.NewRunProgress(runID, productID, client.Budget(), now),
        deadline: deadline,
    }
}

type step struct {
    stage     domain.Stage
    expensive bool
    fn        func(ctx context.Context) (int, error)
}

func (r *run) execute(ctx context.Context) (err error) {
    defer func() {
        if p := recover(); p != nil {
            err = fmt.Errorf("panic: %v", p)
        }
    }()

    steps := []step{
        {domain.StageInitialization, false, r.initialize},
        {domain.StageKeywordSearch, true, r.keywordSearch},
        {domain.StageTrademarkSearch, true, r.trademarkSearch},
        {domain.StagePhraseMatching, false, r.phraseMatching},
        {domain.StageMarketplaceScan, true, r.marketplaceScan},
        {domain.StagePlatformScan, true, r.platformScan},
        {domain.StageFinalization, false, r.finalize},
    }
    for _, s := range steps {
        if s.expensive && r.pastDeadline(ctx, s.stage) {
            if err := r.skip(ctx, s.stage); err != nil {
                return err
            }
            continue
        }
        if err := r.stage(ctx, s.stage, s.fn); err != nil {
            return err
        }
    }
    if err := r.apply(ctx, domain.Event{Kind: domain.EventRunCompleted, At: r.o.deps.Now()}); err != nil {
        return err
    }

    metrics.ScanRunsTotal.WithLabelValues(string(domain.RunCompleted)).Inc()
    c := r.progress.Counts
    r.log.WithFields(log.Fields{
        "new":          c.New,
        "rediscovered": c.Rediscovered,
        "relisted":     c.Relisted,
        "budget_used":  r.progress.BudgetUsed,
        "duration":     r.progress.Duration.String(),
    }).Info("scan completed")
    r.notify(ctx, domain.Notification{
        Kind:    domain.NotifyScanCompleted,
        Title:   "Scan completed",
        Message: fmt.Sprintf("%s: %d new, %d rediscovered, %d re-listed", r.product.Name, c.New, c.Rediscovered, c.Relisted),
        Data: map[string]string{
            "new":          strconv.Itoa(c.New),
            "rediscovered": strconv.Itoa(c.Rediscovered),
            "relisted":     strconv.Itoa(c.Relisted),
            "budget_used":  strconv.Itoa(r.progress.BudgetUsed),
        },
    })
    return nil
}

func (r *run) stage(ctx context.Context, s domain.Stage, fn func(context.Context) (int, error)) error {
    start := r.o.deps.Now()
    if err := r.apply(ctx, domain.Event{Kind: domain.EventStageStarted, Stage: s, At: start}); err != nil {
        return err
    }
    count, err := fn(ctx)
    if err != nil {
        return fmt.Errorf("%s: %w", s, err)
    }
    end := r.o.deps.Now()
    metrics.StageDurationSeconds.WithLabelValues(string(s)).Observe(end.Sub(start).Seconds())
    return r.apply(ctx, domain.Event{Kind: domain.EventStageCompleted, Stage: s, Count: count, At: end})
}

func (r *run) skip(ctx context.Context, s domain.Stage) error {
    now := r.o.deps.Now()
    if err := r.apply(ctx, domain.Event{Kind: domain.EventStageStarted, Stage: s, At: now}); err != nil {
        return err
    }
    r.slog.Info(s, "stage skipped", nil)
    return r.apply(ctx, domain.Event{Kind: domain.EventStageCompleted, Stage: s, Skipped: true, At: now})
}

// apply moves the run through the pure transition function, then persists the
// new progress. A failed save is logged; polling lags but the run goes on.
func (r *run) apply(ctx context.Context, ev domain.Event) error {
    next, err := domain.Transition(r.progress, ev)
    if err != nil {
        return err
    }
    r.progress = next
    r.save(ctx)
    return nil
}

func (r *run) save(ctx context.Context) {
    r.progress.BudgetUsed = r.client.Used()
    r.progress.Truncated = r.client.Diagnostics().Skipped
    r.progress.PlatformBudget = r.platformUsed
    if err := r.o.deps.Runs.SaveProgress(context.WithoutCancel(ctx), r.progress); err != nil {
        r.slog.Warn(r.progress.Current(), "progress_save_failed", err.Error(), nil)
    }
}

// outOfTime reports whether the run deadline has passed or the caller has
// given up on the run.
func (r *run) outOfTime(ctx context.Context) bool {
    return ctx.Err() != nil || r.o.deps.Now().After(r.deadline)
}

// pastDeadline reports whether the run is out of time. The first time it is,
// the skip is recorded as a self-heal.
func (r *run) pastDeadline(ctx context.Context, s domain.Stage) bool {
    if r.expired {
        return true
    }
    if !r.outOfTime(ctx) {
        return false
    }
    r.expired = true
    reason := fmt.Sprintf("run deadline of %s exceeded", r.o.cfg.Deadline)
    if err := ctx.Err(); err != nil {
        reason = fmt.Sprintf("run context ended (%v)", err)
    }
    r.slog.SelfHeal(s, "deadline_exceeded",
        fmt.Sprintf("%s; skipping %s and later search stages, finalizing partial results", reason, s))
    return true
}

func (r *run) fail(ctx context.Context, err error) {
    stage := r.progress.Current()
    r.slog.Fatal(stage, "run_failed", err, nil)
    if next, terr := domain.Transition(r.progress, domain.Event{Kind: domain.EventRunFailed, Err: err, At: r.o.deps.Now()}); terr == nil {
        r.progress = next
    } else {
        r.progress.Status = domain.RunFailed
        r.progress.Error = err.Error()
    }
    r.save(ctx)

    metrics.ScanRunsTotal.WithLabelValues(string(domain.RunFailed)).Inc()
    r.log.WithError(err).WithField("stage", stage).Error("scan failed")
    r.notify(ctx, domain.Notification{
        Kind:    domain.NotifyScanFailed,
        Title:   "Scan failed",
        Message: fmt.Sprintf("run %s failed during %s: %v", r.id, stage, err),
        Data:    map[string]string{"stage": string(stage)},
    })
}

func (r *run) notify(ctx context.Context, n domain.Notification) {
    if r.o.deps.Notifier == nil {
        return
    }
    n.RunID = r.id
    n.ProductID = r.progress.ProductID
    if n.At.IsZero() {
        n.At = r.o.deps.Now()
    }
    r.o.deps.Notifier.Dispatch(context.WithoutCancel(ctx), n)
}

// search runs a batch and records what the budget and provider did to it.
func (r *run) search(ctx context.Context, s domain.Stage, queries []domain.GeneratedQuery) []domain.SearchHit {
    if len(queries) == 0 {
        return nil
    }
    res := r.client.SearchBatch(ctx, queries)
    hits := res.Hits()
    r.progress.Counts.Hits += len(hits)

    if res.Truncated() {
        r.slog.Warn(s, "budget_exhausted", fmt.Sprintf("%d of %d queries skipped", res.Skipped, len(queries)),
            map[string]any{"budget": r.client.Budget(), "used": r.client.Used()})
    }
    failed := 0
    for _, resp := range res.Responses {
        if resp.Err != nil {
            failed++
        }
    }
    switch {
    case failed > 0 && failed == res.Executed:
        r.slog.SelfHeal(s, "provider_unavailable", fmt.Sprintf("all %d search calls failed; continuing with no results", failed))
    case failed > 0:
        r.slog.Warn(s, "provider_errors", fmt.Sprintf("%d of %d search calls failed", failed, res.Executed), nil)
    }
    return hits
}

// filter drops excluded hits, scores the rest, lets the AI filter veto
// borderline unknown URLs, and returns what is left.
func (r *run) filter(ctx context.Context, s domain.Stage, hits []domain.SearchHit) []domain.ScoredResult {
    candidates := make([]domain.SearchHit, 0, len(hits))
    for _, h := range hits {
        if scoring.Excluded(h, r.product) {
            r.progress.Counts.FalsePositives++
            continue
        }
        candidates = append(candidates, h)
    }
    scored := r.o.deps.Scorer.ScoreAll(candidates, r.product)
    r.progress.Counts.Scored += len(scored)

    if r.ai != nil {
        if r.outOfTime(ctx) {
            r.slog.SelfHeal(s, "ai_filter_skipped", "deadline exceeded; keeping heuristic scores")
        } else {
            r.review(ctx, s, scored)
        }
    }

    kept := make([]domain.ScoredResult, 0, len(scored))
    for _, sr := range scored {
        if sr.IsFalsePositive {
            r.progress.Counts.FalsePositives++
            continue
        }
        kept = append(kept, sr)
    }
    return kept
}

// review runs the AI filter over scored in place, skipping URLs already known
// for the product.
func (r *run) review(ctx context.Context, s domain.Stage, scored []domain.ScoredResult) {
    var (
        idx   []int
        fresh []domain.ScoredResult
    )
    for i, sr := range scored {
        if !sr.IsFalsePositive && !r.engine.IsKnown(sr.Hit.Link) {
            idx = append(idx, i)
            fresh = append(fresh, sr)
        }
    }
    if len(fresh) == 0 {
        return
    }
    reviewed, stats := r.ai.Apply(ctx, r.product, fresh)
    for k, i := range idx {
        scored[i] = reviewed[k]
    }
    r.slog.Info(s, "ai review done", map[string]any{
        "reviewed": stats.Reviewed,
        "rejected": stats.Rejected,
        "failed":   stats.Failed,
    })
}

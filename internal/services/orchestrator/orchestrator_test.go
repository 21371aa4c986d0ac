package orchestrator

import (
    "context"
    "errors"
    "strings"
    "sync"
    "testing"
    "time"

    "github.com/apex/log"
    "github.com/apex/log/handlers/discard"
    "github.com/stretchr/testify/assert"
    "github.com/stretchr/testify/require"
    "go.uber.org/goleak"

    "leakhound/internal/adapters/memory"
    "leakhound/internal/domain"
    "leakhound/internal/ports"
    "leakhound/internal/services/delta"
    "leakhound/internal/services/learning"
    "leakhound/internal/services/queryclient"
    "leakhound/internal/services/router"
)

func TestMain(m *testing.M) {
    goleak.VerifyTestMain(m)
}

const (
    leakURL     = "https://freecourseweb.com/alpha-course"
    officialURL = "https://www.alphacourse.com/download"
    pricingURL  = "https://udemy.com/alpha-course"
    telegramURL = "https://t.me/alphacourseleaks"
)

var quiet = &log.Logger{Handler: discard.New(), Level: log.InfoLevel}

func alphaCourse() domain.Product {
    return domain.Product{
        ID:           "p-alpha",
        Name:         "Alpha Course",
        Category:     domain.CategoryCourse,
        CanonicalURL: "https://alphacourse.com",
        Price:        197,
    }
}

type clock struct {
    mu sync.Mutex
    t  time.Time
}

func newClock() *clock {
    return &clock{t: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *clock) Now() time.Time {
    c.mu.Lock()
    defer c.mu.Unlock()
    return c.t
}

func (c *clock) Advance(d time.Duration) {
    c.mu.Lock()
    defer c.mu.Unlock()
    c.t = c.t.Add(d)
}

// provider answers every query with the same three hits.
type provider struct {
    clock *clock
    step  time.Duration
    err   error

    mu    sync.Mutex
    calls int
}

func (p *provider) Search(_ context.Context, _ string, _ int) ([]domain.SearchHit, error) {
    p.mu.Lock()
    p.calls++
    p.mu.Unlock()
    if p.clock != nil && p.step > 0 {
        p.clock.Advance(p.step)
    }
    if p.err != nil {
        return nil, p.err
    }
    return []domain.SearchHit{
        {Title: "Alpha Course free download", Link: leakURL, Snippet: "mega links", Position: 2},
        {Title: "Alpha Course free download", Link: officialURL, Position: 1},
        {Title: "Alpha Course pricing", Link: pricingURL, Position: 3},
    }, nil
}

func (p *provider) Calls() int {
    p.mu.Lock()
    defer p.mu.Unlock()
    return p.calls
}

type telegram struct{}

func (telegram) Platform() domain.Platform { return domain.PlatformTelegram }

func (telegram) Scan(_ context.Context, _ domain.Product, budget int) ([]domain.SearchHit, int, error) {
    return []domain.SearchHit{{Title: "Alpha Course free download mega", Link: telegramURL, Position: 1}}, min(budget, 2), nil
}

type recorder struct {
    mu  sync.Mutex
    got []domain.Notification
}

func (r *recorder) Dispatch(_ context.Context, n domain.Notification) int {
    r.mu.Lock()
    defer r.mu.Unlock()
    r.got = append(r.got, n)
    return 0
}

func (r *recorder) Kinds(kind domain.NotificationKind) []domain.Notification {
    r.mu.Lock()
    defer r.mu.Unlock()
    var out []domain.Notification
    for _, n := range r.got {
        if n.Kind == kind {
            out = append(out, n)
        }
    }
    return out
}

type fixture struct {
    store    *memory.Store
    clock    *clock
    provider *provider
    notes    *recorder
    deps     Deps
    cfg      Config
}

func newFixture() *fixture {
    f := &fixture{
        store: memory.New(),
        clock: newClock(),
        notes: &recorder{},
    }
    f.provider = &provider{clock: f.clock}
    f.store.PutProduct(alphaCourse())
    f.deps = Deps{
        Products:      f.store,
        Infringements: f.store,
        Runs:          f.store,
        Logs:          f.store,
        Search:        f.provider,
        Notifier:      f.notes,
        Logger:        quiet,
        Now:           f.clock.Now,
    }
    f.cfg = Config{
        Deadline:          4 * time.Minute,
        PlatformBudgetCap: 5,
        Query:             queryclient.Config{Budget: 60, Concurrency: 3},
    }
    return f
}

func (f *fixture) run(t *testing.T) (domain.RunProgress, error) {
    t.Helper()
    return New(f.deps, f.cfg).Run(context.Background(), "run-1", "p-alpha")
}

func codes(entries []domain.LogEntry) map[string]int {
    m := map[string]int{}
    for _, e := range entries {
        if e.Code != "" {
            m[e.Code]++
        }
    }
    return m
}

func urls(records []domain.InfringementRecord) []string {
    out := make([]string, len(records))
    for i, r := range records {
        out[i] = r.URL
    }
    return out
}

func TestRunPersistsNewInfringements(t *testing.T) {
    f := newFixture()
    f.deps.Router = router.New(nil, []ports.PlatformScanner{telegram{}}, 0, quiet)

    p, err := f.run(t)
    require.NoError(t, err)

    assert.Equal(t, domain.RunCompleted, p.Status)
    assert.InDelta(t, 1.0, p.Fraction(), 0.0001)
    for _, s := range p.Stages {
        assert.False(t, s.Skipped, s.Stage)
    }

    records := f.store.Infringements("p-alpha")
    assert.ElementsMatch(t, []string{leakURL, telegramURL}, urls(records))
    for _, r := range records {
        assert.Equal(t, domain.StatusPendingVerification, r.Status)
        assert.Equal(t, domain.RiskCritical, r.RiskLevel)
        assert.Equal(t, 1, r.Priority)
        assert.Equal(t, 1, r.SeenCount)
    }

    assert.Equal(t, 2, p.Counts.New)
    assert.Positive(t, p.Counts.FalsePositives)
    assert.Equal(t, f.provider.Calls(), p.BudgetUsed)
    assert.LessOrEqual(t, p.BudgetUsed, 60)
    assert.Equal(t, 2, p.PlatformBudget)

    assert.Len(t, f.notes.Kinds(domain.NotifyHighSeverity), 2)
    assert.Len(t, f.notes.Kinds(domain.NotifyScanCompleted), 1)

    run, err := f.store.GetRun(context.Background(), "run-1")
    require.NoError(t, err)
    assert.Equal(t, domain.RunCompleted, run.Status)
    assert.NotNil(t, run.FinishedAt)
    assert.NotEmpty(t, f.store.Logs("run-1"))
}

func TestRunNeverPersistsOfficialOrLegitimateURLs(t *testing.T) {
    f := newFixture()
    _, err := f.run(t)
    require.NoError(t, err)

    got := urls(f.store.Infringements("p-alpha"))
    assert.NotContains(t, got, officialURL)
    assert.NotContains(t, got, pricingURL)
    assert.Equal(t, []string{leakURL}, got)
}

func TestRunStopsAtBudget(t *testing.T) {
    f := newFixture()
    f.cfg.Query.Budget = 4

    p, err := f.run(t)
    require.NoError(t, err)

    assert.Equal(t, domain.RunCompleted, p.Status)
    assert.Equal(t, 4, f.provider.Calls())
    assert.Equal(t, 4, p.BudgetUsed)
    assert.Positive(t, p.Truncated)
    assert.Positive(t, codes(f.store.Logs("run-1"))["budget_exhausted"])
}

func TestRunDeadlineSkipsRemainingSearchStages(t *testing.T) {
    f := newFixture()
    f.provider.step = 5 * time.Minute

    p, err := f.run(t)
    require.NoError(t, err)
    assert.Equal(t, domain.RunCompleted, p.Status)

    for stage, skipped := range map[domain.Stage]bool{
        domain.StageInitialization:  false,
        domain.StageKeywordSearch:   false,
        domain.StageTrademarkSearch: true,
        domain.StagePhraseMatching:  false,
        domain.StageMarketplaceScan: true,
        domain.StagePlatformScan:    true,
        domain.StageFinalization:    false,
    } {
        s, ok := p.StageOf(stage)
        require.True(t, ok)
        assert.Equal(t, domain.StageCompleted, s.Status, stage)
        assert.Equal(t, skipped, s.Skipped, stage)
    }

    logs := f.store.Logs("run-1")
    assert.Equal(t, 1, codes(logs)["deadline_exceeded"])
    for _, e := range logs {
        if e.Code == "deadline_exceeded" {
            assert.True(t, e.SelfHeal)
            assert.Equal(t, domain.StageTrademarkSearch, e.Stage)
        }
    }
    // Partial results are still persisted.
    assert.Equal(t, []string{leakURL}, urls(f.store.Infringements("p-alpha")))
}

func TestRunRelistedURLTransitionsOnce(t *testing.T) {
    f := newFixture()
    seen := f.clock.Now().Add(-48 * time.Hour)
    f.store.PutInfringement(domain.InfringementRecord{
        ID:          "inf-1",
        ProductID:   "p-alpha",
        URL:         leakURL,
        URLHash:     delta.Hash(leakURL),
        Status:      domain.StatusRemoved,
        FirstSeenAt: seen,
        LastSeenAt:  seen,
        SeenCount:   3,
    })

    p, err := f.run(t)
    require.NoError(t, err)

    tr := f.store.Transitions()
    require.Len(t, tr, 1)
    assert.Equal(t, "inf-1", tr[0].InfringementID)
    assert.Equal(t, domain.StatusRemoved, tr[0].From)
    assert.Equal(t, domain.StatusActive, tr[0].To)
    assert.Equal(t, "relisted", tr[0].Reason)

    relisted := f.notes.Kinds(domain.NotifyRelisted)
    require.Len(t, relisted, 1)
    assert.Equal(t, leakURL, relisted[0].URL)
    assert.Equal(t, "run-1", relisted[0].RunID)
    assert.Empty(t, f.notes.Kinds(domain.NotifyHighSeverity))

    assert.Equal(t, 1, p.Counts.Relisted)
    assert.Equal(t, 0, p.Counts.New)

    records := f.store.Infringements("p-alpha")
    require.Len(t, records, 1)
    assert.Equal(t, domain.StatusActive, records[0].Status)
    assert.Equal(t, 4, records[0].SeenCount)
}

func TestRunRelistRefreshesLearnedKeywords(t *testing.T) {
    f := newFixture()
    ls := learning.New(f.store, time.Hour)
    f.deps.Learning = ls
    f.store.PutInfringement(domain.InfringementRecord{
        ID:        "inf-1",
        ProductID: "p-alpha",
        URL:       leakURL,
        URLHash:   delta.Hash(leakURL),
        Status:    domain.StatusRemoved,
    })

    before, err := ls.Learned(context.Background(), alphaCourse())
    require.NoError(t, err)
    require.Empty(t, before.Keywords)

    p, err := f.run(t)
    require.NoError(t, err)
    require.Equal(t, 1, p.Counts.Relisted)

    f.store.PutInfringement(domain.InfringementRecord{
        ID:        "inf-2",
        ProductID: "p-alpha",
        URL:       "https://courseclub.me/alpha",
        URLHash:   delta.Hash("https://courseclub.me/alpha"),
        Status:    domain.StatusActive,
        Evidence:  domain.ScoredResult{Hit: domain.SearchHit{Title: "Alpha Course blueprint bonus"}},
    })
    after, err := ls.Learned(context.Background(), alphaCourse())
    require.NoError(t, err)
    assert.Contains(t, after.Keywords, "blueprint")
}

func TestRunRediscoveredURLIsTouched(t *testing.T) {
    f := newFixture()
    f.store.PutInfringement(domain.InfringementRecord{
        ID:        "inf-1",
        ProductID: "p-alpha",
        URL:       leakURL,
        URLHash:   delta.Hash(leakURL),
        Status:    domain.StatusActive,
        SeenCount: 1,
    })

    p, err := f.run(t)
    require.NoError(t, err)

    assert.Equal(t, 1, p.Counts.Rediscovered)
    assert.Equal(t, 0, p.Counts.New)
    assert.Empty(t, f.store.Transitions())
    records := f.store.Infringements("p-alpha")
    require.Len(t, records, 1)
    assert.Equal(t, 2, records[0].SeenCount)
}

func TestRunMissingProductFails(t *testing.T) {
    f := newFixture()

    p, err := New(f.deps, f.cfg).Run(context.Background(), "run-1", "nope")
    require.Error(t, err)
    assert.ErrorIs(t, err, domain.ErrNotFound)

    assert.Equal(t, domain.RunFailed, p.Status)
    assert.NotEmpty(t, p.Error)
    s, _ := p.StageOf(domain.StageInitialization)
    assert.Equal(t, domain.StageInProgress, s.Status)
    assert.Zero(t, f.provider.Calls())

    run, err := f.store.GetRun(context.Background(), "run-1")
    require.NoError(t, err)
    assert.Equal(t, domain.RunFailed, run.Status)

    assert.Equal(t, 1, codes(f.store.Logs("run-1"))["run_failed"])
    assert.Len(t, f.notes.Kinds(domain.NotifyScanFailed), 1)
}

func TestRunSurvivesProviderOutage(t *testing.T) {
    f := newFixture()
    f.provider.err = errors.New("503 service unavailable")

    p, err := f.run(t)
    require.NoError(t, err)
    assert.Equal(t, domain.RunCompleted, p.Status)
    assert.Zero(t, p.Counts.New)
    assert.Positive(t, codes(f.store.Logs("run-1"))["provider_unavailable"])

    var diag *domain.LogEntry
    for _, e := range f.store.Logs("run-1") {
        if e.Message == "search diagnostics" {
            diag = &e
        }
    }
    require.NotNil(t, diag)
    assert.Equal(t, domain.StageFinalization, diag.Stage)
    assert.Equal(t, f.provider.Calls(), diag.Context["errors"])
    assert.Equal(t, 0, diag.Context["success"])
    recent, ok := diag.Context["recent_errors"].([]string)
    require.True(t, ok)
    require.NotEmpty(t, recent)
    assert.Contains(t, recent[0], "503 service unavailable")
}

// lowScoreProvider answers every query with two weak hits on one domain and
// records what it was asked.
type lowScoreProvider struct {
    mu      sync.Mutex
    queries []string
}

func (p *lowScoreProvider) Search(_ context.Context, query string, _ int) ([]domain.SearchHit, error) {
    p.mu.Lock()
    p.queries = append(p.queries, query)
    p.mu.Unlock()
    title := "Alpha Course pricing coupon review enroll refund"
    return []domain.SearchHit{
        {Title: title, Link: "https://blogsite.net/alpha-1", Position: 1},
        {Title: title, Link: "https://blogsite.net/alpha-2", Position: 2},
    }, nil
}

func (p *lowScoreProvider) Queries() []string {
    p.mu.Lock()
    defer p.mu.Unlock()
    return append([]string(nil), p.queries...)
}

func TestRunCountsFilteredHitsTowardHotDomains(t *testing.T) {
    f := newFixture()
    lp := &lowScoreProvider{}
    f.deps.Search = lp

    p, err := f.run(t)
    require.NoError(t, err)
    assert.Zero(t, p.Counts.New)
    assert.Empty(t, f.store.Infringements("p-alpha"))

    var deep []string
    for _, q := range lp.Queries() {
        if strings.HasPrefix(q, "site:blogsite.net ") {
            deep = append(deep, q)
        }
    }
    assert.NotEmpty(t, deep)
}

// cancellingProvider cancels the run context on its first call.
type cancellingProvider struct {
    *provider
    cancel context.CancelFunc
    once   sync.Once
}

func (p *cancellingProvider) Search(ctx context.Context, query string, n int) ([]domain.SearchHit, error) {
    p.once.Do(p.cancel)
    return p.provider.Search(ctx, query, n)
}

// ctxStore rejects writes on a cancelled context, as a database driver does.
type ctxStore struct {
    *memory.Store
}

func (s ctxStore) InsertBatch(ctx context.Context, records []domain.InfringementRecord) error {
    if err := ctx.Err(); err != nil {
        return err
    }
    return s.Store.InsertBatch(ctx, records)
}

func (s ctxStore) Insert(ctx context.Context, r domain.InfringementRecord) error {
    if err := ctx.Err(); err != nil {
        return err
    }
    return s.Store.Insert(ctx, r)
}

func (s ctxStore) Touch(ctx context.Context, id string, seenAt time.Time) error {
    if err := ctx.Err(); err != nil {
        return err
    }
    return s.Store.Touch(ctx, id, seenAt)
}

func (s ctxStore) Transition(ctx context.Context, tr domain.StatusTransition) error {
    if err := ctx.Err(); err != nil {
        return err
    }
    return s.Store.Transition(ctx, tr)
}

func (s ctxStore) SaveProgress(ctx context.Context, p domain.RunProgress) error {
    if err := ctx.Err(); err != nil {
        return err
    }
    return s.Store.SaveProgress(ctx, p)
}

func (s ctxStore) AppendLogs(ctx context.Context, entries []domain.LogEntry) error {
    if err := ctx.Err(); err != nil {
        return err
    }
    return s.Store.AppendLogs(ctx, entries)
}

func TestRunKeepsFindingsWhenCallerCancels(t *testing.T) {
    f := newFixture()
    cs := ctxStore{Store: f.store}
    f.deps.Infringements = cs
    f.deps.Runs = cs
    f.deps.Logs = cs

    ctx, cancel := context.WithCancel(context.Background())
    defer cancel()
    f.deps.Search = &cancellingProvider{provider: f.provider, cancel: cancel}

    p, err := New(f.deps, f.cfg).Run(ctx, "run-1", "p-alpha")
    require.NoError(t, err)
    assert.Equal(t, domain.RunCompleted, p.Status)

    assert.Equal(t, []string{leakURL}, urls(f.store.Infringements("p-alpha")))
    assert.Equal(t, 1, p.Counts.New)
    assert.Zero(t, p.Counts.PersistFailed)

    for stage, skipped := range map[domain.Stage]bool{
        domain.StageKeywordSearch:   false,
        domain.StageTrademarkSearch: true,
        domain.StageMarketplaceScan: true,
        domain.StagePlatformScan:    true,
        domain.StageFinalization:    false,
    } {
        s, ok := p.StageOf(stage)
        require.True(t, ok)
        assert.Equal(t, skipped, s.Skipped, stage)
    }

    c := codes(f.store.Logs("run-1"))
    assert.Equal(t, 1, c["deadline_exceeded"])
    assert.Zero(t, c["batch_insert_failed"])
    assert.Zero(t, c["insert_failed"])

    run, err := f.store.GetRun(context.Background(), "run-1")
    require.NoError(t, err)
    assert.Equal(t, domain.RunCompleted, run.Status)
}

func TestRunHonorsCallerDeadline(t *testing.T) {
    f := newFixture()
    f.clock.t = time.Now()
    f.cfg.Deadline = time.Hour
    // reached on the fake clock during keyword search, never in wall time
    ctx, cancel := context.WithDeadline(context.Background(), f.clock.Now().Add(time.Minute))
    defer cancel()
    f.provider.step = 2 * time.Minute

    p, err := New(f.deps, f.cfg).Run(ctx, "run-1", "p-alpha")
    require.NoError(t, err)
    assert.Equal(t, domain.RunCompleted, p.Status)

    kw, ok := p.StageOf(domain.StageKeywordSearch)
    require.True(t, ok)
    assert.False(t, kw.Skipped)
    tm, ok := p.StageOf(domain.StageTrademarkSearch)
    require.True(t, ok)
    assert.True(t, tm.Skipped)
    assert.Equal(t, 1, codes(f.store.Logs("run-1"))["deadline_exceeded"])
    assert.Equal(t, []string{leakURL}, urls(f.store.Infringements("p-alpha")))
}

type flakyStore struct {
    *memory.Store
    failBatch bool
    failRow   string

    mu      sync.Mutex
    appends int
}

func (s *flakyStore) InsertBatch(ctx context.Context, records []domain.InfringementRecord) error {
    if s.failBatch {
        return errors.New("deadlock detected")
    }
    return s.Store.InsertBatch(ctx, records)
}

func (s *flakyStore) Insert(ctx context.Context, r domain.InfringementRecord) error {
    if r.URL == s.failRow {
        return errors.New("value too long")
    }
    return s.Store.Insert(ctx, r)
}

func (s *flakyStore) AppendLogs(ctx context.Context, entries []domain.LogEntry) error {
    s.mu.Lock()
    s.appends++
    s.mu.Unlock()
    return s.Store.AppendLogs(ctx, entries)
}

func (f *fixture) flaky() *flakyStore {
    fs := &flakyStore{Store: f.store}
    f.deps.Infringements = fs
    f.deps.Logs = fs
    return fs
}

func TestRunFallsBackToRowInserts(t *testing.T) {
    f := newFixture()
    f.deps.Router = router.New(nil, []ports.PlatformScanner{telegram{}}, 0, quiet)
    fs := f.flaky()
    fs.failBatch = true
    fs.failRow = telegramURL

    p, err := f.run(t)
    require.NoError(t, err)
    assert.Equal(t, domain.RunCompleted, p.Status)

    assert.Equal(t, []string{leakURL}, urls(f.store.Infringements("p-alpha")))
    assert.Equal(t, 1, p.Counts.New)
    assert.Equal(t, 1, p.Counts.PersistFailed)

    c := codes(f.store.Logs("run-1"))
    assert.Equal(t, 1, c["batch_insert_failed"])
    assert.Equal(t, 1, c["insert_failed"])
    assert.Len(t, f.notes.Kinds(domain.NotifyHighSeverity), 1)
}

func TestRunFlushesLogOnce(t *testing.T) {
    f := newFixture()
    fs := f.flaky()

    _, err := f.run(t)
    require.NoError(t, err)
    assert.Equal(t, 1, fs.appends)
}

func TestProcessLoadsRun(t *testing.T) {
    f := newFixture()
    ctx := context.Background()
    require.NoError(t, f.store.CreateRun(ctx, "run-7", "p-alpha"))

    require.NoError(t, New(f.deps, f.cfg).Process(ctx, "run-7"))
    run, err := f.store.GetRun(ctx, "run-7")
    require.NoError(t, err)
    assert.Equal(t, domain.RunCompleted, run.Status)
    assert.Equal(t, 1, run.Progress.Counts.New)

    assert.Error(t, New(f.deps, f.cfg).Process(ctx, "missing"))
}

// Package orchestrator runs one scan: the stage pipeline from loading the
// product to persisting what was found.
package orchestrator

import (
    "context"
    "fmt"
    "time"

    "github.com/apex/log"
    "github.com/google/uuid"

    "leakhound/internal/domain"
    "leakhound/internal/ports"
    "leakhound/internal/services/aifilter"
    "leakhound/internal/services/learning"
    "leakhound/internal/services/profiles"
    "leakhound/internal/services/querygen"
    "leakhound/internal/services/queryclient"
    "leakhound/internal/services/router"
    "leakhound/internal/services/scoring"
)

const DefaultDeadline = 4 * time.Minute

// Dispatcher delivers notifications best effort.
type Dispatcher interface {
    Dispatch(ctx context.Context, ev domain.Notification) int
}

type Config struct {
    Deadline          time.Duration
    PlatformBudgetCap int
    Query             queryclient.Config
    AIFilterEnabled   bool
    AIThreshold       float64
    AIModel           string
}

// Deps are the collaborators of a run. Learning, Completer, Router and
// Notifier are optional.
type Deps struct {
    Products      ports.ProductRepository
    Infringements ports.InfringementRepository
    Runs          ports.ScanRunRepository
    Logs          ports.ScanLogRepository
    Search        ports.SearchProvider

    Registry  *profiles.Registry
    Generator *querygen.Generator
    Scorer    *scoring.Scorer
    Router    *router.Router
    Learning  *learning.Store
    Completer ports.Completer
    Notifier  Dispatcher

    Logger log.Interface
    Now    func() time.Time
    NewID  func() string
}

type Orchestrator struct {
    deps Deps
    cfg  Config
}

func New(deps Deps, cfg Config) *Orchestrator {
    if deps.Registry == nil {
        deps.Registry = profiles.Default()
    }
    if deps.Generator == nil {
        deps.Generator = querygen.New(deps.Registry, nil)
    }
    if deps.Scorer == nil {
        deps.Scorer = scoring.New(deps.Registry)
    }
    if deps.Logger == nil {
        deps.Logger = log.Log
    }
    if deps.Now == nil {
        deps.Now = time.Now
    }
    if deps.NewID == nil {
        deps.NewID = uuid.NewString
    }
    if cfg.Query == (queryclient.Config{}) {
        cfg.Query = queryclient.DefaultConfig()
    }
    if cfg.Deadline <= 0 {
        cfg.Deadline = DefaultDeadline
    }
    if cfg.PlatformBudgetCap < 0 {
        cfg.PlatformBudgetCap = 0
    }
    return &Orchestrator{deps: deps, cfg: cfg}
}

// Process runs the scan recorded under runID. It satisfies the job worker's
// processor interface.
func (o *Orchestrator) Process(ctx context.Context, runID string) error {
    run, err := o.deps.Runs.GetRun(ctx, runID)
    if err != nil {
        return fmt.Errorf("load run %s: %w", runID, err)
    }
    _, err = o.Run(ctx, runID, run.ProductID)
    return err
}

// Run executes every stage in order and returns the final progress. A
// returned error means the run ended failed; its progress shows how far it
// got.
func (o *Orchestrator) Run(ctx context.Context, runID, productID string) (domain.RunProgress, error) {
    r := newRun(ctx, o, runID, productID)
    r.log.WithField("product_id", productID).Info("scan started")

    err := r.execute(ctx)
    if err != nil {
        r.fail(ctx, err)
    }
    if ferr := r.slog.Flush(context.WithoutCancel(ctx)); ferr != nil {
        r.log.WithError(ferr).Warn("scan log flush failed")
    }
    return r.progress, err
}

func (o *Orchestrator) aiFilter() *aifilter.Filter {
    if !o.cfg.AIFilterEnabled || o.deps.Completer == nil {
        return nil
    }
    return aifilter.New(o.deps.Completer, aifilter.Config{
        Threshold:   o.cfg.AIThreshold,
        Concurrency: o.cfg.Query.Concurrency,
        Model:       o.cfg.AIModel,
    }, o.deps.Logger)
}

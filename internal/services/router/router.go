// Package router spreads a secondary request budget across platform scanners
// and runs them side by side.
package router

import (
    "context"
    "fmt"
    "math"
    "sort"
    "time"

    "github.com/apex/log"
    "golang.org/x/sync/errgroup"

    "leakhound/internal/domain"
    "leakhound/internal/metrics"
    "leakhound/internal/ports"
    "leakhound/internal/services/profiles"
)

const DefaultThreshold = 0.5

// DefaultScanTimeout bounds one platform scan.
const DefaultScanTimeout = 90 * time.Second

type Allocation struct {
    Platform domain.Platform `json:"platform"`
    Weight   float64         `json:"weight"`
    Budget   int             `json:"budget"`
}

type Result struct {
    Hits       []domain.SearchHit
    Ran        []domain.Platform
    Failed     []domain.Platform
    BudgetUsed int
}

type Router struct {
    registry  *profiles.Registry
    scanners  map[domain.Platform]ports.PlatformScanner
    threshold float64
    timeout   time.Duration
    log       log.Interface
}

func New(registry *profiles.Registry, scanners []ports.PlatformScanner, threshold float64, logger log.Interface) *Router {
    if registry == nil {
        registry = profiles.Default()
    }
    if threshold <= 0 {
        threshold = DefaultThreshold
    }
    if logger == nil {
        logger = log.Log
    }
    m := make(map[domain.Platform]ports.PlatformScanner, len(scanners))
    for _, s := range scanners {
        m[s.Platform()] = s
    }
    return &Router{registry: registry, scanners: m, threshold: threshold, timeout: DefaultScanTimeout, log: logger}
}

// WithScanTimeout overrides the per-platform scan timeout.
func (r *Router) WithScanTimeout(d time.Duration) *Router {
    if d > 0 {
        r.timeout = d
    }
    return r
}

// Allocate selects platforms whose category weight clears the threshold and
// that have a scanner, then shares min(remaining, capUnits) units between them in
// proportion to weight, at least one each. When there are fewer units than
// platforms, the heaviest platforms get one unit each.
func (r *Router) Allocate(product domain.Product, remaining, capUnits int) []Allocation {
    total := min(remaining, capUnits)
    if total <= 0 {
        return nil
    }
    profile := r.registry.Get(product.Category)
    var allocs []Allocation
    for p, w := range profile.PlatformWeights {
        if w < r.threshold {
            continue
        }
        if _, ok := r.scanners[p]; !ok {
            continue
        }
        allocs = append(allocs, Allocation{Platform: p, Weight: w})
    }
    sort.Slice(allocs, func(i, j int) bool {
        if allocs[i].Weight != allocs[j].Weight {
            return allocs[i].Weight > allocs[j].Weight
        }
        return allocs[i].Platform < allocs[j].Platform
    })
    if len(allocs) == 0 {
        return nil
    }
    if total <= len(allocs) {
        allocs = allocs[:total]
        for i := range allocs {
            allocs[i].Budget = 1
        }
        return allocs
    }

    var weightSum float64
    for i := range allocs {
        allocs[i].Budget = 1
        weightSum += allocs[i].Weight
    }
    extra := total - len(allocs)
    type share struct {
        idx  int
        frac float64
    }
    shares := make([]share, len(allocs))
    given := 0
    for i, a := range allocs {
        exact := float64(extra) * a.Weight / weightSum
        whole := int(math.Floor(exact))
        allocs[i].Budget += whole
        given += whole
        shares[i] = share{idx: i, frac: exact - float64(whole)}
    }
    // Largest remainder; ties keep weight order.
    sort.SliceStable(shares, func(i, j int) bool { return shares[i].frac > shares[j].frac })
    for k := 0; given < extra; k++ {
        allocs[shares[k%len(shares)].idx].Budget++
        given++
    }
    return allocs
}

// Run executes every allocation concurrently. A scanner that errors or panics
// contributes nothing and does not affect the others. Hits are returned in
// allocation order, tagged with their platform as source.
func (r *Router) Run(ctx context.Context, product domain.Product, allocs []Allocation) Result {
    outcomes := make([]outcome, len(allocs))

    var g errgroup.Group
    for i, a := range allocs {
        scanner, ok := r.scanners[a.Platform]
        if !ok || a.Budget <= 0 {
            outcomes[i].err = fmt.Errorf("no scanner for %s", a.Platform)
            continue
        }
        g.Go(func() error {
            outcomes[i] = r.runOne(ctx, scanner, product, a.Budget)
            return nil
        })
    }
    _ = g.Wait()

    var res Result
    for i, a := range allocs {
        o := outcomes[i]
        res.BudgetUsed += o.used
        if o.err != nil {
            res.Failed = append(res.Failed, a.Platform)
            metrics.PlatformScansTotal.WithLabelValues(string(a.Platform), "error").Inc()
            r.log.WithError(o.err).WithField("platform", a.Platform).Warn("platform scan failed")
            continue
        }
        res.Ran = append(res.Ran, a.Platform)
        metrics.PlatformScansTotal.WithLabelValues(string(a.Platform), "success").Inc()
        for _, h := range o.hits {
            h.Source = string(a.Platform)
            if h.Tier == 0 {
                h.Tier = domain.TierTargeted
            }
            res.Hits = append(res.Hits, h)
        }
    }
    return res
}

type outcome struct {
    hits []domain.SearchHit
    used int
    err  error
}

func (r *Router) runOne(ctx context.Context, s ports.PlatformScanner, product domain.Product, budget int) (o outcome) {
    defer func() {
        if p := recover(); p != nil {
            o.hits = nil
            o.err = fmt.Errorf("scanner panic: %v", p)
        }
    }()
    ctx, cancel := context.WithTimeout(ctx, r.timeout)
    defer cancel()
    hits, used, err := s.Scan(ctx, product, budget)
    o.used = min(max(used, 0), budget)
    if err != nil {
        o.err = err
        return o
    }
    o.hits = hits
    return o
}

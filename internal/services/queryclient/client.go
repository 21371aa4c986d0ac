// Package queryclient wraps a search provider with a per-run call budget,
// spacing between calls and bounded batch concurrency. It never fails a run:
// provider errors degrade to empty responses and are counted.
package queryclient

import (
    "context"
    "errors"
    "fmt"
    "sync"
    "time"

    "github.com/apex/log"
    "golang.org/x/time/rate"

    "leakhound/internal/domain"
    "leakhound/internal/metrics"
    "leakhound/internal/ports"
)

const recentErrorCap = 10

type Config struct {
    Budget      int
    MinDelay    time.Duration
    Concurrency int
    CallTimeout time.Duration
}

func DefaultConfig() Config {
    return Config{Budget: 60, MinDelay: 150 * time.Millisecond, Concurrency: 3, CallTimeout: 10 * time.Second}
}

// Diagnostics are the per-run call counters.
type Diagnostics struct {
    Total        int      `json:"total"`
    Success      int      `json:"success"`
    Errors       int      `json:"errors"`
    Empty        int      `json:"empty"`
    Skipped      int      `json:"skipped"`
    RecentErrors []string `json:"recent_errors,omitempty"`
}

// Response is the outcome of one query. Executed is false when the budget was
// already spent; Err holds the recorded provider failure, if any.
type Response struct {
    Query    domain.GeneratedQuery
    Hits     []domain.SearchHit
    Executed bool
    Err      error
}

type BatchResult struct {
    Responses []Response
    Executed  int
    Skipped   int
}

// Truncated reports whether the budget cut the batch short.
func (b BatchResult) Truncated() bool { return b.Skipped > 0 }

// Hits concatenates the hits of every response in query order.
func (b BatchResult) Hits() []domain.SearchHit {
    var out []domain.SearchHit
    for _, r := range b.Responses {
        out = append(out, r.Hits...)
    }
    return out
}

// Client is scoped to one run; create a new one per run.
type Client struct {
    provider ports.SearchProvider
    cfg      Config
    limiter  *rate.Limiter
    log      log.Interface

    mu   sync.Mutex
    used int
    diag Diagnostics
}

func New(provider ports.SearchProvider, cfg Config, logger log.Interface) *Client {
    def := DefaultConfig()
    if cfg.Budget < 0 {
        cfg.Budget = 0
    }
    if cfg.Concurrency <= 0 {
        cfg.Concurrency = def.Concurrency
    }
    if cfg.CallTimeout <= 0 {
        cfg.CallTimeout = def.CallTimeout
    }
    if logger == nil {
        logger = log.Log
    }
    limit := rate.Inf
    if cfg.MinDelay > 0 {
        limit = rate.Every(cfg.MinDelay)
    }
    return &Client{
        provider: provider,
        cfg:      cfg,
        limiter:  rate.NewLimiter(limit, 1),
        log:      logger,
    }
}

func (c *Client) Budget() int { return c.cfg.Budget }

func (c *Client) Used() int {
    c.mu.Lock()
    defer c.mu.Unlock()
    return c.used
}

// Remaining is budget minus used; never negative.
func (c *Client) Remaining() int {
    c.mu.Lock()
    defer c.mu.Unlock()
    return c.cfg.Budget - c.used
}

func (c *Client) Diagnostics() Diagnostics {
    c.mu.Lock()
    defer c.mu.Unlock()
    d := c.diag
    d.RecentErrors = append([]string(nil), c.diag.RecentErrors...)
    return d
}

// Search runs a single query. An exhausted budget yields no hits and no error.
func (c *Client) Search(ctx context.Context, q domain.GeneratedQuery) Response {
    if !c.reserve() {
        c.skip(1)
        return Response{Query: q}
    }
    return c.call(ctx, q)
}

// SearchBatch runs queries in fixed-size concurrent groups. Budget is reserved
// inline for each query before its group is dispatched, so queries past the
// budget are skipped without being sent. Responses keep input order.
func (c *Client) SearchBatch(ctx context.Context, queries []domain.GeneratedQuery) BatchResult {
    res := BatchResult{Responses: make([]Response, len(queries))}
    for start := 0; start < len(queries); start += c.cfg.Concurrency {
        end := min(start+c.cfg.Concurrency, len(queries))

        var wg sync.WaitGroup
        for i := start; i < end; i++ {
            if !c.reserve() {
                res.Responses[i] = Response{Query: queries[i]}
                res.Skipped++
                continue
            }
            res.Executed++
            wg.Add(1)
            go func(i int) {
                defer wg.Done()
                res.Responses[i] = c.call(ctx, queries[i])
            }(i)
        }
        wg.Wait()
    }
    if res.Skipped > 0 {
        c.skip(res.Skipped)
        c.log.WithFields(log.Fields{
            "executed": res.Executed,
            "skipped":  res.Skipped,
            "budget":   c.cfg.Budget,
        }).Warn("search budget exhausted; queries truncated")
    }
    return res
}

func (c *Client) reserve() bool {
    c.mu.Lock()
    defer c.mu.Unlock()
    if c.used >= c.cfg.Budget {
        return false
    }
    c.used++
    c.diag.Total++
    return true
}

func (c *Client) skip(n int) {
    c.mu.Lock()
    c.diag.Skipped += n
    c.mu.Unlock()
    metrics.SearchCallsTotal.WithLabelValues("skipped").Add(float64(n))
}

func (c *Client) call(ctx context.Context, q domain.GeneratedQuery) (resp Response) {
    resp = Response{Query: q, Executed: true}
    defer func() {
        if r := recover(); r != nil {
            resp.Hits = nil
            resp.Err = &domain.ProviderError{Query: q.Text, Err: fmt.Errorf("panic: %v", r)}
            c.record(resp)
        }
    }()

    if err := c.limiter.Wait(ctx); err != nil {
        resp.Err = &domain.ProviderError{Query: q.Text, Err: err}
        c.record(resp)
        return resp
    }
    callCtx, cancel := context.WithTimeout(ctx, c.cfg.CallTimeout)
    defer cancel()

    hits, err := c.provider.Search(callCtx, q.Text, q.ResultCount)
    if err != nil {
        if errors.Is(err, context.DeadlineExceeded) {
            err = fmt.Errorf("timed out after %s: %w", c.cfg.CallTimeout, err)
        }
        resp.Err = &domain.ProviderError{Query: q.Text, Err: err}
        c.record(resp)
        return resp
    }
    for i := range hits {
        hits[i].Tier = q.Tier
        hits[i].Query = q.Text
        if hits[i].Source == "" {
            hits[i].Source = "search"
        }
    }
    resp.Hits = hits
    c.record(resp)
    return resp
}

func (c *Client) record(resp Response) {
    result := "success"
    c.mu.Lock()
    switch {
    case resp.Err != nil:
        result = "error"
        c.diag.Errors++
        c.diag.RecentErrors = append(c.diag.RecentErrors, resp.Err.Error())
        if n := len(c.diag.RecentErrors); n > recentErrorCap {
            c.diag.RecentErrors = c.diag.RecentErrors[n-recentErrorCap:]
        }
    case len(resp.Hits) == 0:
        result = "empty"
        c.diag.Empty++
    default:
        c.diag.Success++
    }
    c.mu.Unlock()

    metrics.SearchCallsTotal.WithLabelValues(result).Inc()
    if resp.Err != nil {
        c.log.WithError(resp.Err).WithField("tier", int(resp.Query.Tier)).Warn("search call failed")
    }
}

// Package aifilter asks a completion model to second-guess borderline results.
// The model can only veto: a failed or unsure verdict leaves the heuristic
// score in place.
package aifilter

import (
    "context"
    "fmt"
    "strings"
    "sync"
    "time"

    "github.com/antonholmquist/jason"
    "github.com/apex/log"
    "golang.org/x/sync/errgroup"

    "leakhound/internal/domain"
    "leakhound/internal/ports"
)

const (
    // Results scored in [ReviewFrom, ReviewBelow) are sent for review.
    ReviewFrom  = 30
    ReviewBelow = 80

    RejectedReason = "ai_rejected"

    DefaultCallTimeout = 30 * time.Second
)

const systemPrompt = `You review search results for a copyright owner. Decide whether the result is an unauthorized copy or distribution of the named product, as opposed to a review, a store page, news, or an unrelated page.
Answer only with JSON: {"is_infringement": true|false, "confidence": 0.0-1.0, "reason": "short reason"}`

type Config struct {
    Threshold   float64
    Concurrency int
    Model       string
    // CallTimeout bounds one completion call.
    CallTimeout time.Duration
}

type Stats struct {
    Reviewed int
    Rejected int
    Failed   int
}

type Filter struct {
    completer ports.Completer
    cfg       Config
    log       log.Interface
}

func New(completer ports.Completer, cfg Config, logger log.Interface) *Filter {
    if cfg.Concurrency <= 0 {
        cfg.Concurrency = 3
    }
    if cfg.Threshold <= 0 || cfg.Threshold > 1 {
        cfg.Threshold = 0.7
    }
    if cfg.CallTimeout <= 0 {
        cfg.CallTimeout = DefaultCallTimeout
    }
    if logger == nil {
        logger = log.Log
    }
    return &Filter{completer: completer, cfg: cfg, log: logger}
}

type verdict struct {
    IsInfringement bool
    Confidence     float64
    Reason         string
}

// Apply returns results with rejected entries flagged as false positives.
// The input slice is not modified.
func (f *Filter) Apply(ctx context.Context, product domain.Product, results []domain.ScoredResult) ([]domain.ScoredResult, Stats) {
    out := append([]domain.ScoredResult(nil), results...)
    var (
        mu    sync.Mutex
        stats Stats
    )

    g, gctx := errgroup.WithContext(ctx)
    g.SetLimit(f.cfg.Concurrency)
    for i := range out {
        r := out[i]
        if r.IsFalsePositive || r.Confidence < ReviewFrom || r.Confidence >= ReviewBelow {
            continue
        }
        g.Go(func() error {
            v, err := f.review(gctx, product, r)
            mu.Lock()
            defer mu.Unlock()
            stats.Reviewed++
            if err != nil {
                stats.Failed++
                f.log.WithError(err).WithField("url", r.Hit.Link).Warn("ai review failed; keeping heuristic score")
                return nil
            }
            if !v.IsInfringement && v.Confidence >= f.cfg.Threshold {
                stats.Rejected++
                out[i].IsFalsePositive = true
                out[i].Reasons = append(append([]string(nil), r.Reasons...), RejectedReason)
            }
            return nil
        })
    }
    _ = g.Wait()
    return out, stats
}

func (f *Filter) review(ctx context.Context, product domain.Product, r domain.ScoredResult) (v verdict, err error) {
    defer func() {
        if p := recover(); p != nil {
            err = fmt.Errorf("completer panic: %v", p)
        }
    }()
    user := fmt.Sprintf("Product: %s\nBrand: %s\nCategory: %s\nOfficial site: %s\n\nResult title: %s\nResult URL: %s\nSnippet: %s",
        product.Name, product.Brand, product.Category, product.CanonicalURL, r.Hit.Title, r.Hit.Link, r.Hit.Snippet)
    ctx, cancel := context.WithTimeout(ctx, f.cfg.CallTimeout)
    defer cancel()
    raw, err := f.completer.Complete(ctx, systemPrompt, user, domain.CompletionOptions{
        Model:     f.cfg.Model,
        MaxTokens: 120,
        JSON:      true,
    })
    if err != nil {
        return verdict{}, err
    }
    return ParseVerdict(raw)
}

// ParseVerdict reads the model answer. Prose or code fences around the JSON
// object are tolerated; a missing is_infringement field is an error.
func ParseVerdict(raw string) (verdict, error) {
    start, end := strings.Index(raw, "{"), strings.LastIndex(raw, "}")
    if start < 0 || end <= start {
        return verdict{}, fmt.Errorf("no JSON object in verdict")
    }
    obj, err := jason.NewObjectFromBytes([]byte(raw[start : end+1]))
    if err != nil {
        return verdict{}, fmt.Errorf("parse verdict: %w", err)
    }
    infringing, err := obj.GetBoolean("is_infringement")
    if err != nil {
        return verdict{}, fmt.Errorf("verdict is_infringement: %w", err)
    }
    v := verdict{IsInfringement: infringing}
    if c, err := obj.GetFloat64("confidence"); err == nil && c >= 0 && c <= 1 {
        v.Confidence = c
    }
    v.Reason, _ = obj.GetString("reason")
    return v, nil
}

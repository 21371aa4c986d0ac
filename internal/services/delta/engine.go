// Package delta classifies scored results against what is already known for a
// product, so a URL is stored once and re-listings are noticed.
package delta

import (
    "context"
    "errors"
    "fmt"
    "time"

    "leakhound/internal/domain"
    "leakhound/internal/ports"
)

// Engine holds the known URL hashes of one product for one run. The known set
// is read once when the run starts.
type Engine struct {
    productID string
    known     map[string]domain.KnownInfringement
}

func NewEngine(productID string, known []domain.KnownInfringement) *Engine {
    e := &Engine{productID: productID, known: make(map[string]domain.KnownInfringement, len(known))}
    for _, k := range known {
        e.known[k.URLHash] = k
    }
    return e
}

// IsKnown reports whether url was recorded for the product by an earlier run.
func (e *Engine) IsKnown(url string) bool {
    _, ok := e.known[Hash(url)]
    return ok
}

func (e *Engine) KnownCount() int { return len(e.known) }

// Match pairs a result with the record it rediscovered.
type Match struct {
    Result domain.ScoredResult
    Known  domain.KnownInfringement
}

type Classification struct {
    New          []domain.ScoredResult
    Rediscovered []Match
    Relisted     []Match
}

// Dedupe keeps one result per URL hash: the most confident one, ties going to
// the first seen. Output keeps first-appearance order.
func Dedupe(results []domain.ScoredResult) []domain.ScoredResult {
    index := make(map[string]int, len(results))
    out := make([]domain.ScoredResult, 0, len(results))
    for _, r := range results {
        h := Hash(r.Hit.Link)
        if i, ok := index[h]; ok {
            if r.Confidence > out[i].Confidence {
                out[i] = r
            }
            continue
        }
        index[h] = len(out)
        out = append(out, r)
    }
    return out
}

// Classify dedupes results and splits them into new, rediscovered and
// re-listed (previously removed) URLs. False positives are dropped.
func (e *Engine) Classify(results []domain.ScoredResult) Classification {
    var c Classification
    for _, r := range Dedupe(results) {
        if r.IsFalsePositive {
            continue
        }
        k, ok := e.known[Hash(r.Hit.Link)]
        switch {
        case !ok:
            c.New = append(c.New, r)
        case k.Status == domain.StatusRemoved:
            c.Relisted = append(c.Relisted, Match{Result: r, Known: k})
        default:
            c.Rediscovered = append(c.Rediscovered, Match{Result: r, Known: k})
        }
    }
    return c
}

// NewRecord builds the record persisted for a first detection.
func (e *Engine) NewRecord(id string, r domain.ScoredResult, now time.Time) domain.InfringementRecord {
    return domain.InfringementRecord{
        ID:          id,
        ProductID:   e.productID,
        URL:         r.Hit.Link,
        URLHash:     Hash(r.Hit.Link),
        Platform:    r.Platform,
        Type:        r.InfringementType,
        Confidence:  r.Confidence,
        RiskLevel:   r.RiskLevel,
        Priority:    Priority(r.RiskLevel),
        Status:      domain.StatusPendingVerification,
        FirstSeenAt: now,
        LastSeenAt:  now,
        SeenCount:   1,
        Evidence:    r,
    }
}

// Priority maps risk to review priority, 1 being most urgent.
func Priority(level domain.RiskLevel) int {
    switch level {
    case domain.RiskCritical:
        return 1
    case domain.RiskHigh:
        return 2
    case domain.RiskMedium:
        return 3
    }
    return 4
}

type ApplyResult struct {
    Touched  int
    Relisted int
}

// Apply records rediscoveries: re-listed URLs go back to active with a
// transition record and one notification each; the rest get their seen
// counters bumped. Individual failures are collected, not fatal.
func (e *Engine) Apply(ctx context.Context, store ports.InfringementRepository, notify func(domain.Notification), c Classification, runID string, now time.Time) (ApplyResult, error) {
    var res ApplyResult
    var errs []error

    for _, m := range c.Relisted {
        t := domain.StatusTransition{
            InfringementID: m.Known.ID,
            From:           domain.StatusRemoved,
            To:             domain.StatusActive,
            Reason:         "relisted",
            At:             now,
        }
        if err := store.Transition(ctx, t); err != nil {
            errs = append(errs, &domain.PersistenceError{Op: "transition", URLHash: m.Known.URLHash, Err: err})
            continue
        }
        m.Known.Status = domain.StatusActive
        e.known[m.Known.URLHash] = m.Known
        res.Relisted++
        if err := store.Touch(ctx, m.Known.ID, now); err != nil {
            errs = append(errs, &domain.PersistenceError{Op: "touch", URLHash: m.Known.URLHash, Err: err})
        }
        if notify != nil {
            notify(domain.Notification{
                Kind:      domain.NotifyRelisted,
                RunID:     runID,
                ProductID: e.productID,
                Title:     "Removed listing is back online",
                Message:   fmt.Sprintf("%s reappeared (confidence %d, %s)", m.Result.Hit.Link, m.Result.Confidence, m.Result.RiskLevel),
                URL:       m.Result.Hit.Link,
                Data:      map[string]string{"infringement_id": m.Known.ID, "platform": string(m.Result.Platform)},
                At:        now,
            })
        }
    }

    for _, m := range c.Rediscovered {
        if err := store.Touch(ctx, m.Known.ID, now); err != nil {
            errs = append(errs, &domain.PersistenceError{Op: "touch", URLHash: m.Known.URLHash, Err: err})
            continue
        }
        res.Touched++
    }
    return res, errors.Join(errs...)
}

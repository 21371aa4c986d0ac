// Package notify fans scan events out to the configured destinations. Delivery
// is best effort: a failing destination is logged and counted, never surfaced
// to the scan.
package notify

import (
    "context"
    "fmt"
    "sync"
    "time"

    "github.com/apex/log"

    "leakhound/internal/domain"
    "leakhound/internal/metrics"
    "leakhound/internal/ports"
)

const DefaultTimeout = 10 * time.Second

type Dispatcher struct {
    notifiers []ports.Notifier
    timeout   time.Duration
    log       log.Interface
}

func NewDispatcher(timeout time.Duration, logger log.Interface, notifiers ...ports.Notifier) *Dispatcher {
    if timeout <= 0 {
        timeout = DefaultTimeout
    }
    if logger == nil {
        logger = log.Log
    }
    return &Dispatcher{notifiers: notifiers, timeout: timeout, log: logger}
}

// Dispatch delivers ev to every notifier in parallel and waits for all of them,
// each bounded by the dispatcher timeout. It returns the number of failures.
func (d *Dispatcher) Dispatch(ctx context.Context, ev domain.Notification) int {
    if d == nil || len(d.notifiers) == 0 {
        return 0
    }
    // detached so a cancelled run can still report how it ended
    ctx = context.WithoutCancel(ctx)

    var (
        wg       sync.WaitGroup
        mu       sync.Mutex
        failures int
    )
    for _, n := range d.notifiers {
        wg.Add(1)
        go func() {
            defer wg.Done()
            if err := d.send(ctx, n, ev); err != nil {
                metrics.NotificationErrorsTotal.WithLabelValues(n.Name()).Inc()
                d.log.WithError(err).WithFields(log.Fields{
                    "notifier": n.Name(),
                    "kind":     ev.Kind,
                    "run_id":   ev.RunID,
                }).Warn("notification failed")
                mu.Lock()
                failures++
                mu.Unlock()
            }
        }()
    }
    wg.Wait()
    return failures
}

func (d *Dispatcher) send(ctx context.Context, n ports.Notifier, ev domain.Notification) error {
    ctx, cancel := context.WithTimeout(ctx, d.timeout)
    defer cancel()

    done := make(chan error, 1)
    go func() {
        defer func() {
            if r := recover(); r != nil {
                done <- fmt.Errorf("notifier panic: %v", r)
            }
        }()
        done <- n.Notify(ctx, ev)
    }()
    select {
    case err := <-done:
        return err
    case <-ctx.Done():
        return fmt.Errorf("notifier %s: %w", n.Name(), ctx.Err())
    }
}

// Only restricts a notifier to the given event kinds.
func Only(n ports.Notifier, kinds ...domain.NotificationKind) ports.Notifier {
    set := make(map[domain.NotificationKind]bool, len(kinds))
    for _, k := range kinds {
        set[k] = true
    }
    return filtered{Notifier: n, kinds: set}
}

type filtered struct {
    ports.Notifier
    kinds map[domain.NotificationKind]bool
}

func (f filtered) Notify(ctx context.Context, ev domain.Notification) error {
    if !f.kinds[ev.Kind] {
        return nil
    }
    return f.Notifier.Notify(ctx, ev)
}

package notify

import (
    "context"
    "fmt"
    "time"

    "github.com/getsentry/sentry-go"

    "leakhound/internal/domain"
)

// InitSentry configures the global Sentry client.
func InitSentry(dsn, environment, release string) error {
    err := sentry.Init(sentry.ClientOptions{
        Dsn:              dsn,
        SampleRate:       1.0,
        AttachStacktrace: false,
        Environment:      environment,
        Release:          release,
    })
    if err != nil {
        return fmt.Errorf("sentry initialization failed: %w", err)
    }
    return nil
}

// Alerter raises failed runs to the operator through Sentry.
type Alerter struct {
    hub          *sentry.Hub
    flushTimeout time.Duration
}

// NewAlerter uses hub, or the current global hub when nil.
func NewAlerter(hub *sentry.Hub) *Alerter {
    if hub == nil {
        hub = sentry.CurrentHub()
    }
    return &Alerter{hub: hub, flushTimeout: 2 * time.Second}
}

func (a *Alerter) Name() string { return "sentry" }

func (a *Alerter) Notify(_ context.Context, ev domain.Notification) error {
    if ev.Kind != domain.NotifyScanFailed {
        return nil
    }
    a.hub.WithScope(func(scope *sentry.Scope) {
        scope.SetLevel(sentry.LevelError)
        scope.SetTag("component", "orchestrator")
        scope.SetTag("run_id", ev.RunID)
        scope.SetTag("product_id", ev.ProductID)
        if len(ev.Data) > 0 {
            c := sentry.Context{}
            for k, v := range ev.Data {
                c[k] = v
            }
            scope.SetContext("scan", c)
        }
        a.hub.CaptureMessage(fmt.Sprintf("%s: %s", ev.Title, ev.Message))
    })
    if !a.hub.Flush(a.flushTimeout) {
        return fmt.Errorf("sentry flush timed out")
    }
    return nil
}

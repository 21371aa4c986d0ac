package metrics

import (
    "sync"

    "github.com/prometheus/client_golang/prometheus"
)

var (
    once sync.Once

    // SearchCallsTotal counts search provider calls by result:
    // success, empty, error or skipped (budget exhausted).
    SearchCallsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
        Namespace: "leakhound",
        Subsystem: "search",
        Name:      "calls_total",
        Help:      "Search provider calls, labeled by result.",
    }, []string{"result"})

    PlatformScansTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
        Namespace: "leakhound",
        Subsystem: "router",
        Name:      "platform_scans_total",
        Help:      "Platform scanner runs, labeled by platform and result.",
    }, []string{"platform", "result"})

    ScanRunsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
        Namespace: "leakhound",
        Subsystem: "scan",
        Name:      "runs_total",
        Help:      "Finished scan runs, labeled by final status.",
    }, []string{"status"})

    StageDurationSeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
        Namespace: "leakhound",
        Subsystem: "scan",
        Name:      "stage_duration_seconds",
        Help:      "Wall time spent per pipeline stage.",
        Buckets:   []float64{0.01, 0.05, 0.25, 1, 5, 15, 30, 60, 120, 240},
    }, []string{"stage"})

    // InfringementsTotal counts finalization outcomes: new, rediscovered,
    // relisted, failed.
    InfringementsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
        Namespace: "leakhound",
        Subsystem: "scan",
        Name:      "infringements_total",
        Help:      "Infringement records handled at finalization, labeled by outcome.",
    }, []string{"outcome"})

    NotificationErrorsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
        Namespace: "leakhound",
        Subsystem: "notify",
        Name:      "errors_total",
        Help:      "Failed notification deliveries, labeled by notifier.",
    }, []string{"notifier"})

    ScanLogPersistErrorsTotal = prometheus.NewCounter(prometheus.CounterOpts{
        Namespace: "leakhound",
        Subsystem: "scanlog",
        Name:      "persist_errors_total",
        Help:      "Failed scan-log writes (entries are re-buffered).",
    })
)

// Register registers collectors with the default Prometheus registry.
// Safe to call multiple times.
func Register() {
    once.Do(func() {
        prometheus.MustRegister(
            SearchCallsTotal,
            PlatformScansTotal,
            ScanRunsTotal,
            StageDurationSeconds,
            InfringementsTotal,
            NotificationErrorsTotal,
            ScanLogPersistErrorsTotal,
        )
    })
}

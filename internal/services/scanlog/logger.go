// Package scanlog is the per-run diagnostic log persisted with a scan.
// Entries are buffered and written once at the end of the run; error and
// fatal entries are also written straight away, best effort.
package scanlog

import (
    "context"
    "sync"
    "time"

    "github.com/apex/log"
    "github.com/google/uuid"

    "leakhound/internal/domain"
    "leakhound/internal/metrics"
    "leakhound/internal/ports"
)

const persistTimeout = 5 * time.Second

type Logger struct {
    runID string
    repo  ports.ScanLogRepository
    log   log.Interface
    now   func() time.Time

    mu      sync.Mutex
    buffer  []domain.LogEntry
    all     []domain.LogEntry
    flushed bool

    inflight  sync.WaitGroup
    flushOnce sync.Once
    flushErr  error
}

func New(runID string, repo ports.ScanLogRepository, logger log.Interface) *Logger {
    if logger == nil {
        logger = log.Log
    }
    return &Logger{runID: runID, repo: repo, log: logger, now: time.Now}
}

// WithClock replaces the time source.
func (l *Logger) WithClock(now func() time.Time) *Logger {
    l.now = now
    return l
}

func (l *Logger) Info(stage domain.Stage, msg string, fields map[string]any) {
    l.add(domain.LevelInfo, stage, "", msg, false, fields)
}

func (l *Logger) Warn(stage domain.Stage, code, msg string, fields map[string]any) {
    l.add(domain.LevelWarn, stage, code, msg, false, fields)
}

func (l *Logger) Error(stage domain.Stage, code string, err error, fields map[string]any) {
    l.add(domain.LevelError, stage, code, errMessage(err), false, fields)
}

func (l *Logger) Fatal(stage domain.Stage, code string, err error, fields map[string]any) {
    l.add(domain.LevelFatal, stage, code, errMessage(err), false, fields)
}

// SelfHeal records that a fallback was substituted instead of aborting.
func (l *Logger) SelfHeal(stage domain.Stage, code, action string) {
    l.add(domain.LevelWarn, stage, code, action, true, nil)
}

// Entries returns every entry logged so far, persisted or not.
func (l *Logger) Entries() []domain.LogEntry {
    l.mu.Lock()
    defer l.mu.Unlock()
    return append([]domain.LogEntry(nil), l.all...)
}

// Flush waits for in-flight writes, then persists everything still buffered.
// Only the first call writes; later calls return its result.
func (l *Logger) Flush(ctx context.Context) error {
    l.flushOnce.Do(func() {
        l.mu.Lock()
        l.flushed = true
        l.mu.Unlock()

        l.inflight.Wait()
        l.mu.Lock()
        pending := l.buffer
        l.buffer = nil
        l.mu.Unlock()

        if len(pending) == 0 {
            return
        }
        if err := l.repo.AppendLogs(ctx, pending); err != nil {
            metrics.ScanLogPersistErrorsTotal.Inc()
            l.flushErr = err
            l.log.WithError(err).WithFields(log.Fields{"run_id": l.runID, "entries": len(pending)}).Error("scan log flush failed")
        }
    })
    return l.flushErr
}

func (l *Logger) add(level domain.LogLevel, stage domain.Stage, code, msg string, selfHeal bool, fields map[string]any) {
    e := domain.LogEntry{
        ID:       uuid.NewString(),
        RunID:    l.runID,
        Level:    level,
        Stage:    stage,
        Code:     code,
        Message:  msg,
        SelfHeal: selfHeal,
        Context:  fields,
        At:       l.now(),
    }
    l.mirror(e)

    l.mu.Lock()
    defer l.mu.Unlock()
    l.all = append(l.all, e)
    if l.flushed {
        return
    }
    if level != domain.LevelError && level != domain.LevelFatal {
        l.buffer = append(l.buffer, e)
        return
    }
    l.inflight.Add(1)
    go l.persist(e)
}

// persist writes one entry; on failure it goes back to the buffer for Flush.
func (l *Logger) persist(e domain.LogEntry) {
    defer l.inflight.Done()
    ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
    defer cancel()
    if err := l.repo.AppendLogs(ctx, []domain.LogEntry{e}); err != nil {
        metrics.ScanLogPersistErrorsTotal.Inc()
        l.mu.Lock()
        l.buffer = append(l.buffer, e)
        l.mu.Unlock()
    }
}

func (l *Logger) mirror(e domain.LogEntry) {
    fields := log.Fields{"run_id": e.RunID, "stage": e.Stage}
    if e.Code != "" {
        fields["code"] = e.Code
    }
    if e.SelfHeal {
        fields["self_heal"] = true
    }
    for k, v := range e.Context {
        fields[k] = v
    }
    entry := l.log.WithFields(fields)
    switch e.Level {
    case domain.LevelInfo:
        entry.Info(e.Message)
    case domain.LevelWarn:
        entry.Warn(e.Message)
    default:
        entry.WithField("level_name", string(e.Level)).Error(e.Message)
    }
}

func errMessage(err error) string {
    if err == nil {
        return "unknown error"
    }
    return err.Error()
}

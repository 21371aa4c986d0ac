package scanlog

import (
    "context"
    "errors"
    "sync"
    "testing"
    "time"

    "github.com/stretchr/testify/assert"
    "github.com/stretchr/testify/require"
    "go.uber.org/goleak"

    "leakhound/internal/domain"
)

func TestMain(m *testing.M) {
    goleak.VerifyTestMain(m)
}

type logRepo struct {
    mu      sync.Mutex
    writes  [][]domain.LogEntry
    failFor int
}

func (r *logRepo) AppendLogs(_ context.Context, entries []domain.LogEntry) error {
    r.mu.Lock()
    defer r.mu.Unlock()
    if r.failFor > 0 {
        r.failFor--
        return errors.New("db unavailable")
    }
    r.writes = append(r.writes, append([]domain.LogEntry(nil), entries...))
    return nil
}

func (r *logRepo) persisted() []domain.LogEntry {
    r.mu.Lock()
    defer r.mu.Unlock()
    var out []domain.LogEntry
    for _, w := range r.writes {
        out = append(out, w...)
    }
    return out
}

func TestInfoAndWarnAreBufferedUntilFlush(t *testing.T) {
    repo := &logRepo{}
    l := New("run-1", repo, nil)
    l.Info(domain.StageInitialization, "loaded product", map[string]any{"product_id": "p1"})
    l.Warn(domain.StageKeywordSearch, "empty_tier", "no hits", nil)

    assert.Empty(t, repo.persisted())
    require.NoError(t, l.Flush(context.Background()))

    got := repo.persisted()
    require.Len(t, got, 2)
    assert.Equal(t, "run-1", got[0].RunID)
    assert.Equal(t, domain.LevelInfo, got[0].Level)
    assert.Equal(t, domain.StageKeywordSearch, got[1].Stage)
    assert.NotEmpty(t, got[0].ID)
}

func TestErrorIsPersistedImmediately(t *testing.T) {
    repo := &logRepo{}
    l := New("run-1", repo, nil)
    l.Error(domain.StageFinalization, "insert_failed", errors.New("conflict"), nil)

    require.Eventually(t, func() bool { return len(repo.persisted()) == 1 }, time.Second, 5*time.Millisecond)
    require.NoError(t, l.Flush(context.Background()))
    // not written a second time by Flush
    assert.Len(t, repo.persisted(), 1)
    assert.Equal(t, "conflict", repo.persisted()[0].Message)
}

func TestFailedImmediateWriteIsRetriedOnFlush(t *testing.T) {
    repo := &logRepo{failFor: 1}
    l := New("run-1", repo, nil)
    l.Fatal(domain.StagePlatformScan, "unhandled", errors.New("boom"), nil)
    l.Info(domain.StagePlatformScan, "after", nil)

    require.NoError(t, l.Flush(context.Background()))
    got := repo.persisted()
    require.Len(t, got, 2)
    levels := []domain.LogLevel{got[0].Level, got[1].Level}
    assert.ElementsMatch(t, []domain.LogLevel{domain.LevelFatal, domain.LevelInfo}, levels)
}

func TestFlushRunsOnce(t *testing.T) {
    repo := &logRepo{}
    l := New("run-1", repo, nil)
    l.Info(domain.StageInitialization, "one", nil)
    require.NoError(t, l.Flush(context.Background()))
    l.Info(domain.StageInitialization, "late", nil)
    require.NoError(t, l.Flush(context.Background()))

    assert.Len(t, repo.writes, 1)
    assert.Len(t, l.Entries(), 2)
}

func TestFlushErrorIsSticky(t *testing.T) {
    repo := &logRepo{failFor: 5}
    l := New("run-1", repo, nil)
    l.Warn(domain.StageInitialization, "x", "y", nil)
    err := l.Flush(context.Background())
    require.Error(t, err)
    assert.Equal(t, err, l.Flush(context.Background()))
}

func TestSelfHeal(t *testing.T) {
    l := New("run-1", &logRepo{}, nil).WithClock(func() time.Time { return time.Unix(100, 0) })
    l.SelfHeal(domain.StageMarketplaceScan, "deadline_exceeded", "skipping remaining stages")

    entries := l.Entries()
    require.Len(t, entries, 1)
    assert.True(t, entries[0].SelfHeal)
    assert.Equal(t, domain.LevelWarn, entries[0].Level)
    assert.Equal(t, "deadline_exceeded", entries[0].Code)
    assert.Equal(t, time.Unix(100, 0), entries[0].At)
    require.NoError(t, l.Flush(context.Background()))
}

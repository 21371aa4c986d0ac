package scanrunner

import (
    "context"
    "errors"
    "sync"
    "testing"
    "time"

    "github.com/stretchr/testify/assert"
    "github.com/stretchr/testify/require"
    "go.uber.org/goleak"

    "leakhound/internal/adapters/memory"
)

func TestMain(m *testing.M) {
    goleak.VerifyTestMain(m)
}

type processor struct {
    fail string

    mu   sync.Mutex
    runs []string
}

func (p *processor) Process(_ context.Context, runID string) error {
    p.mu.Lock()
    p.runs = append(p.runs, runID)
    p.mu.Unlock()
    if runID == p.fail {
        return errors.New("boom")
    }
    return nil
}

func (p *processor) count() int {
    p.mu.Lock()
    defer p.mu.Unlock()
    return len(p.runs)
}

func TestRunProcessesQueuedJobs(t *testing.T) {
    store := memory.New()
    ctx, cancel := context.WithCancel(context.Background())
    for _, id := range []string{"r1", "r2", "r3"} {
        require.NoError(t, store.CreateRun(ctx, id, "p1"))
    }
    p := &processor{fail: "r2"}

    done := make(chan struct{})
    go func() {
        Run(ctx, store, p, 2, 5*time.Millisecond)
        close(done)
    }()

    require.Eventually(t, func() bool {
        return store.JobStatus("r1") == "completed" &&
            store.JobStatus("r2") == "failed" &&
            store.JobStatus("r3") == "completed"
    }, 2*time.Second, 5*time.Millisecond)
    cancel()
    <-done

    assert.Equal(t, 3, p.count())
}

func TestRunNoWorkers(t *testing.T) {
    Run(context.Background(), memory.New(), &processor{}, 0, time.Millisecond)
}

func TestProcessInline(t *testing.T) {
    store := memory.New()
    ctx := context.Background()
    require.NoError(t, store.CreateRun(ctx, "r1", "p1"))
    require.NoError(t, store.CreateRun(ctx, "r2", "p1"))
    p := &processor{fail: "r2"}

    require.NoError(t, ProcessInline(ctx, store, p, "r1"))
    assert.Equal(t, "completed", store.JobStatus("r1"))

    require.Error(t, ProcessInline(ctx, store, p, "r2"))
    assert.Equal(t, "failed", store.JobStatus("r2"))

    assert.Error(t, ProcessInline(ctx, store, p, "r1"), "job already started")
}

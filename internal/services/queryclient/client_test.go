package queryclient

import (
    "context"
    "errors"
    "fmt"
    "sync"
    "sync/atomic"
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

type fakeProvider struct {
    calls   atomic.Int32
    mu      sync.Mutex
    active  int
    maxSeen int
    fn      func(ctx context.Context, query string) ([]domain.SearchHit, error)
}

func (f *fakeProvider) Search(ctx context.Context, query string, num int) ([]domain.SearchHit, error) {
    f.calls.Add(1)
    f.mu.Lock()
    f.active++
    f.maxSeen = max(f.maxSeen, f.active)
    f.mu.Unlock()
    defer func() {
        f.mu.Lock()
        f.active--
        f.mu.Unlock()
    }()
    if f.fn != nil {
        return f.fn(ctx, query)
    }
    time.Sleep(5 * time.Millisecond)
    return []domain.SearchHit{{Title: query, Link: "https://example.com/" + query, Position: 1}}, nil
}

func queries(n int) []domain.GeneratedQuery {
    out := make([]domain.GeneratedQuery, n)
    for i := range out {
        out[i] = domain.GeneratedQuery{Text: fmt.Sprintf("q%d", i), Tier: domain.TierBroad, ResultCount: 10}
    }
    return out
}

func testConfig(budget int) Config {
    return Config{Budget: budget, MinDelay: time.Millisecond, Concurrency: 3, CallTimeout: time.Second}
}

func TestSearchBatchStopsAtBudget(t *testing.T) {
    p := &fakeProvider{}
    c := New(p, testConfig(5), nil)

    res := c.SearchBatch(context.Background(), queries(8))

    assert.Equal(t, 5, res.Executed)
    assert.Equal(t, 3, res.Skipped)
    assert.True(t, res.Truncated())
    assert.Equal(t, int32(5), p.calls.Load())
    assert.Equal(t, 5, c.Used())
    assert.Equal(t, 0, c.Remaining())

    require.Len(t, res.Responses, 8)
    for i, r := range res.Responses {
        assert.Equal(t, i < 5, r.Executed, "query %d", i)
    }
    d := c.Diagnostics()
    assert.Equal(t, 5, d.Total)
    assert.Equal(t, 5, d.Success)
    assert.Equal(t, 3, d.Skipped)
}

func TestSearchBatchBoundedConcurrency(t *testing.T) {
    p := &fakeProvider{}
    c := New(p, Config{Budget: 20, Concurrency: 3, CallTimeout: time.Second}, nil)

    res := c.SearchBatch(context.Background(), queries(9))
    assert.Equal(t, 9, res.Executed)
    assert.LessOrEqual(t, p.maxSeen, 3)
}

func TestSearchBatchTagsProvenance(t *testing.T) {
    c := New(&fakeProvider{}, testConfig(10), nil)
    qs := queries(2)
    qs[1].Tier = domain.TierTargeted

    hits := c.SearchBatch(context.Background(), qs).Hits()
    require.Len(t, hits, 2)
    assert.Equal(t, domain.TierBroad, hits[0].Tier)
    assert.Equal(t, "q0", hits[0].Query)
    assert.Equal(t, domain.TierTargeted, hits[1].Tier)
    assert.Equal(t, "search", hits[1].Source)
}

func TestProviderErrorsDegradeToEmpty(t *testing.T) {
    p := &fakeProvider{fn: func(ctx context.Context, q string) ([]domain.SearchHit, error) {
        switch q {
        case "q0":
            return nil, errors.New("HTTP 500")
        case "q1":
            <-ctx.Done()
            return nil, ctx.Err()
        case "q2":
            return nil, nil
        }
        panic("provider bug")
    }}
    c := New(p, Config{Budget: 10, Concurrency: 2, CallTimeout: 20 * time.Millisecond}, nil)

    res := c.SearchBatch(context.Background(), queries(4))
    assert.Equal(t, 4, res.Executed)
    for _, r := range res.Responses {
        assert.Empty(t, r.Hits)
    }
    var pe *domain.ProviderError
    require.True(t, errors.As(res.Responses[0].Err, &pe))
    assert.Equal(t, "q0", pe.Query)
    assert.ErrorIs(t, res.Responses[1].Err, context.DeadlineExceeded)
    assert.NoError(t, res.Responses[2].Err)
    assert.Error(t, res.Responses[3].Err)

    d := c.Diagnostics()
    assert.Equal(t, 4, d.Total)
    assert.Equal(t, 3, d.Errors)
    assert.Equal(t, 1, d.Empty)
    assert.Len(t, d.RecentErrors, 3)
}

func TestRecentErrorsAreCapped(t *testing.T) {
    p := &fakeProvider{fn: func(context.Context, string) ([]domain.SearchHit, error) {
        return nil, errors.New("down")
    }}
    c := New(p, Config{Budget: 15, Concurrency: 3, CallTimeout: time.Second}, nil)
    c.SearchBatch(context.Background(), queries(15))
    d := c.Diagnostics()
    assert.Equal(t, 15, d.Errors)
    assert.Len(t, d.RecentErrors, recentErrorCap)
}

func TestSearchWithSpentBudget(t *testing.T) {
    p := &fakeProvider{}
    c := New(p, testConfig(1), nil)

    first := c.Search(context.Background(), queries(1)[0])
    assert.True(t, first.Executed)
    second := c.Search(context.Background(), queries(1)[0])
    assert.False(t, second.Executed)
    assert.NoError(t, second.Err)
    assert.Equal(t, int32(1), p.calls.Load())
    assert.Equal(t, 1, c.Diagnostics().Skipped)
}

func TestMinDelaySpacesCalls(t *testing.T) {
    p := &fakeProvider{fn: func(context.Context, string) ([]domain.SearchHit, error) { return nil, nil }}
    c := New(p, Config{Budget: 4, MinDelay: 20 * time.Millisecond, Concurrency: 4, CallTimeout: time.Second}, nil)

    start := time.Now()
    c.SearchBatch(context.Background(), queries(4))
    assert.GreaterOrEqual(t, time.Since(start), 60*time.Millisecond)
}

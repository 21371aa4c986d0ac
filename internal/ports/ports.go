package ports

import (
    "context"

    "leakhound/internal/domain"
)

// Scanner enqueues and tracks scans.
type Scanner interface {
    Enqueue(ctx context.Context, productID string) (runID string, err error)
    Status(ctx context.Context, runID string) (domain.ScanRun, error)
}

// SearchProvider is the external web search API. Implementations return an
// error on any failure; callers decide how to degrade.
type SearchProvider interface {
    Search(ctx context.Context, query string, numResults int) ([]domain.SearchHit, error)
}

// PlatformScanner searches one non-search-API platform, spending at most
// budget requests. It reports how many it actually used.
type PlatformScanner interface {
    Platform() domain.Platform
    Scan(ctx context.Context, product domain.Product, budget int) (hits []domain.SearchHit, used int, err error)
}

// Completer is the AI completion service. Output is untrusted.
type Completer interface {
    Complete(ctx context.Context, systemPrompt, userPrompt string, opts domain.CompletionOptions) (string, error)
}

// Notifier delivers one event to one destination.
type Notifier interface {
    Name() string
    Notify(ctx context.Context, ev domain.Notification) error
}

package ports

import (
    "context"
    "time"

    "leakhound/internal/domain"
)

// ProductRepository reads product metadata. Products are owned elsewhere.
type ProductRepository interface {
    GetProduct(ctx context.Context, productID string) (domain.Product, error)
}

// InfringementRepository stores findings. All writes are idempotent per
// (product, URL hash).
type InfringementRepository interface {
    KnownForProduct(ctx context.Context, productID string) ([]domain.KnownInfringement, error)
    VerifiedTitles(ctx context.Context, productID string, limit int) ([]string, error)
    InsertBatch(ctx context.Context, records []domain.InfringementRecord) error
    Insert(ctx context.Context, record domain.InfringementRecord) error
    Touch(ctx context.Context, infringementID string, seenAt time.Time) error
    Transition(ctx context.Context, t domain.StatusTransition) error
}

// ScanRunRepository manages scan runs and their polled progress.
type ScanRunRepository interface {
    CreateRun(ctx context.Context, runID, productID string) error
    SaveProgress(ctx context.Context, progress domain.RunProgress) error
    GetRun(ctx context.Context, runID string) (domain.ScanRun, error)
}

// ScanLogRepository appends scan-log rows.
type ScanLogRepository interface {
    AppendLogs(ctx context.Context, entries []domain.LogEntry) error
}

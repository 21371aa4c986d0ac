package ports

import "context"

type ScanJob struct {
    ID    string
    RunID string
}

// JobRepository supports claiming and updating scan jobs.
type JobRepository interface {
    ClaimNext(ctx context.Context) (job ScanJob, found bool, err error)
    MarkCompleted(ctx context.Context, jobID string) error
    MarkFailed(ctx context.Context, jobID string, reason string) error
    StartJobForRun(ctx context.Context, runID string) (jobID string, err error)
}

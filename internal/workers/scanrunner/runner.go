package scanrunner

import (
    "context"
    "sync"
    "time"

    "github.com/apex/log"

    "leakhound/internal/ports"
)

// ScanProcessor performs the scan work for a job's run id.
type ScanProcessor interface {
    Process(ctx context.Context, runID string) error
}

// Run starts worker goroutines that claim jobs and process them. It blocks
// until ctx is done and every worker has returned.
func Run(ctx context.Context, repo ports.JobRepository, processor ScanProcessor, concurrency int, pollInterval time.Duration) {
    if concurrency < 1 { return }
    jobsCh := make(chan ports.ScanJob, concurrency)

    var wg sync.WaitGroup
    for i := 0; i < concurrency; i++ {
        wg.Add(1)
        go func(idx int) {
            defer wg.Done()
            for job := range jobsCh {
                finish(ctx, repo, job, processor.Process(ctx, job.RunID), log.Fields{"worker": idx})
            }
        }(i)
    }

    ticker := time.NewTicker(pollInterval)
    defer ticker.Stop()
    defer wg.Wait()
    defer close(jobsCh)
    for {
        select {
        case <-ctx.Done():
            return
        case <-ticker.C:
        }
        for {
            job, found, err := repo.ClaimNext(ctx)
            if err != nil {
                if ctx.Err() == nil {
                    log.WithError(err).Error("job claim failed")
                }
                break
            }
            if !found { break }
            select {
            case jobsCh <- job:
            case <-ctx.Done():
                // Claimed but never started; fail it so the run is not stuck running.
                _ = repo.MarkFailed(context.WithoutCancel(ctx), job.ID, "worker shutting down")
                return
            }
        }
    }
}

// ProcessInline starts and processes a specific run synchronously using the
// same processor as the background workers.
func ProcessInline(ctx context.Context, repo ports.JobRepository, processor ScanProcessor, runID string) error {
    jobID, err := repo.StartJobForRun(ctx, runID)
    if err != nil { return err }
    err = processor.Process(ctx, runID)
    finish(ctx, repo, ports.ScanJob{ID: jobID, RunID: runID}, err, log.Fields{"inline": true})
    return err
}

func finish(ctx context.Context, repo ports.JobRepository, job ports.ScanJob, err error, fields log.Fields) {
    ctx = context.WithoutCancel(ctx)
    logger := log.WithFields(fields).WithFields(log.Fields{"job_id": job.ID, "run_id": job.RunID})
    if err != nil {
        if merr := repo.MarkFailed(ctx, job.ID, err.Error()); merr != nil {
            logger.WithError(merr).Error("mark job failed")
        }
        logger.WithError(err).Warn("job failed")
        return
    }
    if err := repo.MarkCompleted(ctx, job.ID); err != nil {
        logger.WithError(err).Error("mark job completed")
    }
}

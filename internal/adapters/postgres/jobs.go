package postgres

import (
    "context"
    "errors"
    "time"

    "github.com/jackc/pgx/v5"

    "leakhound/internal/domain"
    "leakhound/internal/ports"
)

// ClaimNext selects the next queued job using SKIP LOCKED and marks it and its
// run running.
func (db *DB) ClaimNext(ctx context.Context) (job ports.ScanJob, found bool, err error) {
    tx, err := db.Pool.BeginTx(ctx, pgx.TxOptions{})
    if err != nil { return job, false, err }
    defer func() {
        if err != nil { _ = tx.Rollback(ctx) } else { _ = tx.Commit(ctx) }
    }()

    err = tx.QueryRow(ctx, `
        SELECT id, run_id FROM scan_jobs
        WHERE status = 'queued'
        ORDER BY queued_at
        FOR UPDATE SKIP LOCKED
        LIMIT 1
    `).Scan(&job.ID, &job.RunID)
    if errors.Is(err, pgx.ErrNoRows) {
        return job, false, nil
    }
    if err != nil { return job, false, err }

    if err = startJob(ctx, tx, job.ID, job.RunID); err != nil {
        return job, false, err
    }
    return job, true, nil
}

// StartJobForRun marks the queued job of a specific run as running and
// returns its id. Used when a scan is run inline.
func (db *DB) StartJobForRun(ctx context.Context, runID string) (jobID string, err error) {
    tx, err := db.Pool.BeginTx(ctx, pgx.TxOptions{})
    if err != nil { return "", err }
    defer func() {
        if err != nil { _ = tx.Rollback(ctx) } else { _ = tx.Commit(ctx) }
    }()

    err = tx.QueryRow(ctx, `
        SELECT id FROM scan_jobs
        WHERE run_id = $1 AND status = 'queued'
        FOR UPDATE SKIP LOCKED
    `, runID).Scan(&jobID)
    if errors.Is(err, pgx.ErrNoRows) {
        return "", domain.ErrNotFound
    }
    if err != nil { return "", err }
    if err = startJob(ctx, tx, jobID, runID); err != nil {
        return "", err
    }
    return jobID, nil
}

func startJob(ctx context.Context, tx pgx.Tx, jobID, runID string) error {
    if _, err := tx.Exec(ctx, `
        UPDATE scan_jobs SET status='running', started_at=now(), attempts=attempts+1 WHERE id=$1
    `, jobID); err != nil {
        return err
    }
    _, err := tx.Exec(ctx, `
        UPDATE scan_runs SET status='running', started_at=COALESCE(started_at, now())
        WHERE id=$1 AND status='queued'
    `, runID)
    return err
}

// MarkCompleted closes the job. The run's own status is written by the
// orchestrator.
func (db *DB) MarkCompleted(ctx context.Context, jobID string) error {
    ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
    defer cancel()
    _, err := db.Pool.Exec(ctx, `UPDATE scan_jobs SET status='completed', finished_at=now() WHERE id=$1`, jobID)
    return err
}

// MarkFailed fails the job, and its run unless the run already reached a
// terminal status.
func (db *DB) MarkFailed(ctx context.Context, jobID string, reason string) (err error) {
    ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
    defer cancel()
    tx, err := db.Pool.BeginTx(ctx, pgx.TxOptions{})
    if err != nil { return err }
    defer func() {
        if err != nil { _ = tx.Rollback(ctx) } else { _ = tx.Commit(ctx) }
    }()
    var runID string
    if err = tx.QueryRow(ctx, `
        UPDATE scan_jobs SET status='failed', error=$2, finished_at=now() WHERE id=$1 RETURNING run_id
    `, jobID, reason).Scan(&runID); err != nil {
        return err
    }
    _, err = tx.Exec(ctx, `
        UPDATE scan_runs
        SET status='failed', finished_at=now(),
            progress = jsonb_set(jsonb_set(progress, '{status}', '"failed"'), '{error}', to_jsonb(COALESCE(NULLIF(progress->>'error', ''), $2::text)))
        WHERE id=$1 AND status NOT IN ('completed', 'failed')
    `, runID, reason)
    return err
}

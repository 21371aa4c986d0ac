package postgres

import (
    "context"
    "errors"
    "fmt"
    "time"

    "github.com/jackc/pgx/v5"

    "leakhound/internal/domain"
    "leakhound/internal/ports"
    "leakhound/internal/services/signals"
)

// ProductRepository
func (db *DB) GetProduct(ctx context.Context, productID string) (domain.Product, error) {
    var (
        p       domain.Product
        cat     string
        rawSigs []byte
    )
    err := db.Pool.QueryRow(ctx, `
        SELECT id, name, COALESCE(brand, ''), category, COALESCE(canonical_url, ''), price::float8,
               keywords, negative_keywords, alternate_names, unique_identifiers,
               whitelist_domains, whitelist_urls, ai_signals
        FROM products WHERE id = $1
    `, productID).Scan(&p.ID, &p.Name, &p.Brand, &cat, &p.CanonicalURL, &p.Price,
        &p.Keywords, &p.NegativeKeywords, &p.AlternateNames, &p.UniqueIdentifiers,
        &p.WhitelistDomains, &p.WhitelistURLs, &rawSigs)
    if errors.Is(err, pgx.ErrNoRows) {
        return p, domain.ErrNotFound
    }
    if err != nil {
        return p, err
    }
    p.Category = domain.Category(cat)
    if len(rawSigs) > 0 {
        p.Signals = signals.Parse(rawSigs)
    }
    return p, nil
}

// InfringementRepository
func (db *DB) KnownForProduct(ctx context.Context, productID string) ([]domain.KnownInfringement, error) {
    rows, err := db.Pool.Query(ctx, `SELECT id, url_hash, status FROM infringements WHERE product_id = $1`, productID)
    if err != nil {
        return nil, err
    }
    return pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.KnownInfringement, error) {
        var k domain.KnownInfringement
        err := row.Scan(&k.ID, &k.URLHash, &k.Status)
        return k, err
    })
}

func (db *DB) VerifiedTitles(ctx context.Context, productID string, limit int) ([]string, error) {
    rows, err := db.Pool.Query(ctx, `
        SELECT evidence->'hit'->>'title'
        FROM infringements
        WHERE product_id = $1 AND status = 'active' AND COALESCE(evidence->'hit'->>'title', '') <> ''
        ORDER BY last_seen_at DESC, id
        LIMIT $2
    `, productID, limit)
    if err != nil {
        return nil, err
    }
    return pgx.CollectRows(rows, pgx.RowTo[string])
}

const insertInfringement = `
    INSERT INTO infringements (id, product_id, url, url_hash, platform, type, confidence, risk_level,
        priority, status, first_seen_at, last_seen_at, seen_count, evidence)
    VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
    ON CONFLICT (product_id, url_hash) DO NOTHING
`

func infringementArgs(r domain.InfringementRecord) []any {
    return []any{r.ID, r.ProductID, r.URL, r.URLHash, string(r.Platform), r.Type, r.Confidence,
        string(r.RiskLevel), r.Priority, string(r.Status), r.FirstSeenAt, r.LastSeenAt, r.SeenCount, r.Evidence}
}

// InsertBatch writes all records in one transaction; any failure rolls back
// the whole batch.
func (db *DB) InsertBatch(ctx context.Context, records []domain.InfringementRecord) (err error) {
    if len(records) == 0 {
        return nil
    }
    tx, err := db.Pool.BeginTx(ctx, pgx.TxOptions{})
    if err != nil { return err }
    defer func() {
        if err != nil { _ = tx.Rollback(ctx) } else { err = tx.Commit(ctx) }
    }()

    b := &pgx.Batch{}
    for _, r := range records {
        b.Queue(insertInfringement, infringementArgs(r)...)
    }
    return tx.SendBatch(ctx, b).Close()
}

func (db *DB) Insert(ctx context.Context, r domain.InfringementRecord) error {
    _, err := db.Pool.Exec(ctx, insertInfringement, infringementArgs(r)...)
    return err
}

func (db *DB) Touch(ctx context.Context, infringementID string, seenAt time.Time) error {
    tag, err := db.Pool.Exec(ctx, `
        UPDATE infringements SET seen_count = seen_count + 1, last_seen_at = GREATEST(last_seen_at, $2)
        WHERE id = $1
    `, infringementID, seenAt)
    if err != nil {
        return err
    }
    if tag.RowsAffected() == 0 {
        return domain.ErrNotFound
    }
    return nil
}

// Transition changes an infringement's status and appends the transition row.
// It fails if the record is no longer in t.From.
func (db *DB) Transition(ctx context.Context, t domain.StatusTransition) (err error) {
    tx, err := db.Pool.BeginTx(ctx, pgx.TxOptions{})
    if err != nil { return err }
    defer func() {
        if err != nil { _ = tx.Rollback(ctx) } else { err = tx.Commit(ctx) }
    }()

    tag, err := tx.Exec(ctx, `UPDATE infringements SET status = $3 WHERE id = $1 AND status = $2`,
        t.InfringementID, string(t.From), string(t.To))
    if err != nil {
        return err
    }
    if tag.RowsAffected() == 0 {
        return fmt.Errorf("infringement %s is not %s: %w", t.InfringementID, t.From, domain.ErrNotFound)
    }
    _, err = tx.Exec(ctx, `
        INSERT INTO infringement_status_transitions (infringement_id, from_status, to_status, reason, created_at)
        VALUES ($1, $2, $3, $4, $5)
    `, t.InfringementID, string(t.From), string(t.To), t.Reason, t.At)
    return err
}

// ScanRunRepository
func (db *DB) CreateRun(ctx context.Context, runID, productID string) (err error) {
    tx, err := db.Pool.BeginTx(ctx, pgx.TxOptions{})
    if err != nil { return err }
    defer func() {
        if err != nil { _ = tx.Rollback(ctx) } else { err = tx.Commit(ctx) }
    }()
    if _, err = tx.Exec(ctx, `
        INSERT INTO scan_runs (id, product_id, status) VALUES ($1, $2, 'queued')
    `, runID, productID); err != nil {
        return err
    }
    _, err = tx.Exec(ctx, `INSERT INTO scan_jobs (run_id) VALUES ($1)`, runID)
    return err
}

func (db *DB) SaveProgress(ctx context.Context, p domain.RunProgress) error {
    var finished *time.Time
    if p.Status == domain.RunCompleted || p.Status == domain.RunFailed {
        at := p.StartedAt.Add(p.Duration)
        finished = &at
    }
    _, err := db.Pool.Exec(ctx, `
        INSERT INTO scan_runs (id, product_id, status, budget_used, progress, started_at, finished_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7)
        ON CONFLICT (id) DO UPDATE SET
            status = EXCLUDED.status,
            budget_used = EXCLUDED.budget_used,
            progress = EXCLUDED.progress,
            started_at = COALESCE(scan_runs.started_at, EXCLUDED.started_at),
            finished_at = COALESCE(EXCLUDED.finished_at, scan_runs.finished_at)
    `, p.RunID, p.ProductID, string(p.Status), p.BudgetUsed, p, p.StartedAt, finished)
    return err
}

func (db *DB) GetRun(ctx context.Context, runID string) (domain.ScanRun, error) {
    var (
        run    domain.ScanRun
        status string
    )
    err := db.Pool.QueryRow(ctx, `
        SELECT id, product_id, status, started_at, finished_at, progress
        FROM scan_runs WHERE id = $1
    `, runID).Scan(&run.ID, &run.ProductID, &status, &run.StartedAt, &run.FinishedAt, &run.Progress)
    if errors.Is(err, pgx.ErrNoRows) {
        return run, domain.ErrNotFound
    }
    run.Status = domain.RunStatus(status)
    return run, err
}

// ScanLogRepository
func (db *DB) AppendLogs(ctx context.Context, entries []domain.LogEntry) error {
    if len(entries) == 0 {
        return nil
    }
    b := &pgx.Batch{}
    for _, e := range entries {
        b.Queue(`
            INSERT INTO scan_logs (id, run_id, level, stage, code, message, self_heal, context, created_at)
            VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
            ON CONFLICT (id) DO NOTHING
        `, e.ID, e.RunID, string(e.Level), string(e.Stage), e.Code, e.Message, e.SelfHeal, e.Context, e.At)
    }
    return db.Pool.SendBatch(ctx, b).Close()
}

var (
    _ ports.ProductRepository      = (*DB)(nil)
    _ ports.InfringementRepository = (*DB)(nil)
    _ ports.ScanRunRepository      = (*DB)(nil)
    _ ports.ScanLogRepository      = (*DB)(nil)
    _ ports.JobRepository          = (*DB)(nil)
)

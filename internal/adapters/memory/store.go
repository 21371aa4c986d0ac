// Package memory is an in-process implementation of the persistence ports,
// used by tests and by one-off CLI scans run without a database.
package memory

import (
    "context"
    "fmt"
    "sort"
    "sync"
    "time"

    "github.com/google/uuid"

    "leakhound/internal/domain"
    "leakhound/internal/ports"
)

type job struct {
    id     string
    runID  string
    status string
    reason string
    queued time.Time
}

type Store struct {
    mu          sync.Mutex
    products    map[string]domain.Product
    records     map[string]domain.InfringementRecord // by id
    byHash      map[string]string                    // product|hash -> id
    transitions []domain.StatusTransition
    runs        map[string]domain.ScanRun
    logs        []domain.LogEntry
    jobs        []*job
    now         func() time.Time
}

func New() *Store {
    return &Store{
        products: map[string]domain.Product{},
        records:  map[string]domain.InfringementRecord{},
        byHash:   map[string]string{},
        runs:     map[string]domain.ScanRun{},
        now:      time.Now,
    }
}

func hashKey(productID, hash string) string { return productID + "|" + hash }

// PutProduct stores or replaces a product.
func (s *Store) PutProduct(p domain.Product) {
    s.mu.Lock()
    defer s.mu.Unlock()
    s.products[p.ID] = p
}

// PutInfringement seeds an existing record.
func (s *Store) PutInfringement(r domain.InfringementRecord) {
    s.mu.Lock()
    defer s.mu.Unlock()
    s.records[r.ID] = r
    s.byHash[hashKey(r.ProductID, r.URLHash)] = r.ID
}

func (s *Store) GetProduct(_ context.Context, productID string) (domain.Product, error) {
    s.mu.Lock()
    defer s.mu.Unlock()
    p, ok := s.products[productID]
    if !ok {
        return domain.Product{}, domain.ErrNotFound
    }
    return p, nil
}

func (s *Store) KnownForProduct(_ context.Context, productID string) ([]domain.KnownInfringement, error) {
    s.mu.Lock()
    defer s.mu.Unlock()
    var out []domain.KnownInfringement
    for _, r := range s.records {
        if r.ProductID == productID {
            out = append(out, domain.KnownInfringement{ID: r.ID, URLHash: r.URLHash, Status: r.Status})
        }
    }
    sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
    return out, nil
}

func (s *Store) VerifiedTitles(_ context.Context, productID string, limit int) ([]string, error) {
    s.mu.Lock()
    defer s.mu.Unlock()
    var active []domain.InfringementRecord
    for _, r := range s.records {
        if r.ProductID == productID && r.Status == domain.StatusActive && r.Evidence.Hit.Title != "" {
            active = append(active, r)
        }
    }
    sort.Slice(active, func(i, j int) bool {
        if !active[i].LastSeenAt.Equal(active[j].LastSeenAt) {
            return active[i].LastSeenAt.After(active[j].LastSeenAt)
        }
        return active[i].ID < active[j].ID
    })
    var out []string
    for _, r := range active {
        if limit > 0 && len(out) == limit {
            break
        }
        out = append(out, r.Evidence.Hit.Title)
    }
    return out, nil
}

// InsertBatch inserts records, ignoring ones whose (product, hash) exists.
func (s *Store) InsertBatch(_ context.Context, records []domain.InfringementRecord) error {
    s.mu.Lock()
    defer s.mu.Unlock()
    for _, r := range records {
        if err := validate(r); err != nil {
            return err
        }
    }
    for _, r := range records {
        s.insertLocked(r)
    }
    return nil
}

func (s *Store) Insert(_ context.Context, r domain.InfringementRecord) error {
    if err := validate(r); err != nil {
        return err
    }
    s.mu.Lock()
    defer s.mu.Unlock()
    s.insertLocked(r)
    return nil
}

func validate(r domain.InfringementRecord) error {
    if r.ID == "" || r.ProductID == "" || r.URLHash == "" {
        return fmt.Errorf("infringement record missing id, product or url hash")
    }
    return nil
}

func (s *Store) insertLocked(r domain.InfringementRecord) {
    key := hashKey(r.ProductID, r.URLHash)
    if _, ok := s.byHash[key]; ok {
        return
    }
    s.byHash[key] = r.ID
    s.records[r.ID] = r
}

func (s *Store) Touch(_ context.Context, id string, seenAt time.Time) error {
    s.mu.Lock()
    defer s.mu.Unlock()
    r, ok := s.records[id]
    if !ok {
        return domain.ErrNotFound
    }
    r.SeenCount++
    if seenAt.After(r.LastSeenAt) {
        r.LastSeenAt = seenAt
    }
    s.records[id] = r
    return nil
}

func (s *Store) Transition(_ context.Context, t domain.StatusTransition) error {
    s.mu.Lock()
    defer s.mu.Unlock()
    r, ok := s.records[t.InfringementID]
    if !ok {
        return domain.ErrNotFound
    }
    if r.Status != t.From {
        return fmt.Errorf("infringement %s is %s, not %s", r.ID, r.Status, t.From)
    }
    r.Status = t.To
    s.records[r.ID] = r
    s.transitions = append(s.transitions, t)
    return nil
}

// Infringements returns a product's records ordered by first sighting.
func (s *Store) Infringements(productID string) []domain.InfringementRecord {
    s.mu.Lock()
    defer s.mu.Unlock()
    var out []domain.InfringementRecord
    for _, r := range s.records {
        if r.ProductID == productID {
            out = append(out, r)
        }
    }
    sort.Slice(out, func(i, j int) bool {
        if !out[i].FirstSeenAt.Equal(out[j].FirstSeenAt) {
            return out[i].FirstSeenAt.Before(out[j].FirstSeenAt)
        }
        return out[i].URL < out[j].URL
    })
    return out
}

func (s *Store) Transitions() []domain.StatusTransition {
    s.mu.Lock()
    defer s.mu.Unlock()
    return append([]domain.StatusTransition(nil), s.transitions...)
}

// ScanRunRepository

// CreateRun records a queued run together with its job, as one unit.
func (s *Store) CreateRun(_ context.Context, runID, productID string) error {
    s.mu.Lock()
    defer s.mu.Unlock()
    if _, ok := s.runs[runID]; ok {
        return fmt.Errorf("run %s already exists", runID)
    }
    s.runs[runID] = domain.ScanRun{ID: runID, ProductID: productID, Status: domain.RunQueued}
    s.jobs = append(s.jobs, &job{id: uuid.NewString(), runID: runID, status: "queued", queued: s.now()})
    return nil
}

func (s *Store) SaveProgress(_ context.Context, p domain.RunProgress) error {
    s.mu.Lock()
    defer s.mu.Unlock()
    run, ok := s.runs[p.RunID]
    if !ok {
        run = domain.ScanRun{ID: p.RunID, ProductID: p.ProductID}
    }
    run.Status = p.Status
    run.Progress = p
    if run.StartedAt == nil {
        started := p.StartedAt
        run.StartedAt = &started
    }
    if p.Status == domain.RunCompleted || p.Status == domain.RunFailed {
        finished := p.StartedAt.Add(p.Duration)
        run.FinishedAt = &finished
    }
    s.runs[p.RunID] = run
    return nil
}

func (s *Store) GetRun(_ context.Context, runID string) (domain.ScanRun, error) {
    s.mu.Lock()
    defer s.mu.Unlock()
    run, ok := s.runs[runID]
    if !ok {
        return domain.ScanRun{}, domain.ErrNotFound
    }
    return run, nil
}

// ScanLogRepository

func (s *Store) AppendLogs(_ context.Context, entries []domain.LogEntry) error {
    s.mu.Lock()
    defer s.mu.Unlock()
    s.logs = append(s.logs, entries...)
    return nil
}

func (s *Store) Logs(runID string) []domain.LogEntry {
    s.mu.Lock()
    defer s.mu.Unlock()
    var out []domain.LogEntry
    for _, e := range s.logs {
        if e.RunID == runID {
            out = append(out, e)
        }
    }
    return out
}

// JobRepository

func (s *Store) ClaimNext(_ context.Context) (ports.ScanJob, bool, error) {
    s.mu.Lock()
    defer s.mu.Unlock()
    for _, j := range s.jobs {
        if j.status == "queued" {
            s.startLocked(j)
            return ports.ScanJob{ID: j.id, RunID: j.runID}, true, nil
        }
    }
    return ports.ScanJob{}, false, nil
}

func (s *Store) StartJobForRun(_ context.Context, runID string) (string, error) {
    s.mu.Lock()
    defer s.mu.Unlock()
    for _, j := range s.jobs {
        if j.runID == runID && j.status == "queued" {
            s.startLocked(j)
            return j.id, nil
        }
    }
    return "", domain.ErrNotFound
}

func (s *Store) startLocked(j *job) {
    j.status = "running"
    if run, ok := s.runs[j.runID]; ok && run.Status == domain.RunQueued {
        run.Status = domain.RunRunning
        now := s.now()
        run.StartedAt = &now
        s.runs[j.runID] = run
    }
}

func (s *Store) MarkCompleted(_ context.Context, jobID string) error {
    return s.finishJob(jobID, "completed", "")
}

func (s *Store) MarkFailed(_ context.Context, jobID, reason string) error {
    return s.finishJob(jobID, "failed", reason)
}

func (s *Store) finishJob(jobID, status, reason string) error {
    s.mu.Lock()
    defer s.mu.Unlock()
    for _, j := range s.jobs {
        if j.id != jobID {
            continue
        }
        j.status = status
        j.reason = reason
        if status == "failed" {
            if run, ok := s.runs[j.runID]; ok && run.Status != domain.RunCompleted && run.Status != domain.RunFailed {
                run.Status = domain.RunFailed
                run.Progress.Status = domain.RunFailed
                if run.Progress.Error == "" {
                    run.Progress.Error = reason
                }
                s.runs[j.runID] = run
            }
        }
        return nil
    }
    return domain.ErrNotFound
}

// JobStatus reports the state of the job of a run, for tests.
func (s *Store) JobStatus(runID string) string {
    s.mu.Lock()
    defer s.mu.Unlock()
    for _, j := range s.jobs {
        if j.runID == runID {
            return j.status
        }
    }
    return ""
}

var (
    _ ports.ProductRepository      = (*Store)(nil)
    _ ports.InfringementRepository = (*Store)(nil)
    _ ports.ScanRunRepository      = (*Store)(nil)
    _ ports.ScanLogRepository      = (*Store)(nil)
    _ ports.JobRepository          = (*Store)(nil)
)

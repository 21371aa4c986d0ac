package domain

import (
    "fmt"
    "time"
)

type Stage string

const (
    StageInitialization  Stage = "initialization"
    StageKeywordSearch   Stage = "keyword_search"
    StageTrademarkSearch Stage = "trademark_search"
    StagePhraseMatching  Stage = "phrase_matching"
    StageMarketplaceScan Stage = "marketplace_scan"
    StagePlatformScan    Stage = "platform_scan"
    StageFinalization    Stage = "finalization"
)

// Stages is the fixed execution order of a run.
var Stages = []Stage{
    StageInitialization,
    StageKeywordSearch,
    StageTrademarkSearch,
    StagePhraseMatching,
    StageMarketplaceScan,
    StagePlatformScan,
    StageFinalization,
}

type StageStatus string

const (
    StagePending    StageStatus = "pending"
    StageInProgress StageStatus = "in_progress"
    StageCompleted  StageStatus = "completed"
)

type StageProgress struct {
    Stage       Stage       `json:"stage"`
    Status      StageStatus `json:"status"`
    ResultCount int         `json:"result_count"`
    Skipped     bool        `json:"skipped,omitempty"`
    StartedAt   *time.Time  `json:"started_at,omitempty"`
    CompletedAt *time.Time  `json:"completed_at,omitempty"`
}

type RunCounts struct {
    Hits           int `json:"hits"`
    Scored         int `json:"scored"`
    FalsePositives int `json:"false_positives"`
    New            int `json:"new"`
    Rediscovered   int `json:"rediscovered"`
    Relisted       int `json:"relisted"`
    PersistFailed  int `json:"persist_failed"`
}

// RunProgress is the serializable state of a scan run, persisted after every
// transition so it can be polled.
type RunProgress struct {
    RunID          string          `json:"run_id"`
    ProductID      string          `json:"product_id"`
    Status         RunStatus       `json:"status"`
    Stages         []StageProgress `json:"stages"`
    BudgetTotal    int             `json:"budget_total"`
    BudgetUsed     int             `json:"budget_used"`
    PlatformBudget int             `json:"platform_budget_used"`
    Truncated      int             `json:"queries_truncated"`
    Counts         RunCounts       `json:"counts"`
    StartedAt      time.Time       `json:"started_at"`
    Duration       time.Duration   `json:"duration_ns"`
    Error          string          `json:"error,omitempty"`
}

func NewRunProgress(runID, productID string, budget int, now time.Time) RunProgress {
    stages := make([]StageProgress, len(Stages))
    for i, s := range Stages {
        stages[i] = StageProgress{Stage: s, Status: StagePending}
    }
    return RunProgress{
        RunID:       runID,
        ProductID:   productID,
        Status:      RunRunning,
        Stages:      stages,
        BudgetTotal: budget,
        StartedAt:   now,
    }
}

// Current returns the stage in progress, or the last completed one.
func (p RunProgress) Current() Stage {
    var last Stage
    for _, s := range p.Stages {
        switch s.Status {
        case StageInProgress:
            return s.Stage
        case StageCompleted:
            last = s.Stage
        }
    }
    return last
}

func (p RunProgress) StageOf(stage Stage) (StageProgress, bool) {
    for _, s := range p.Stages {
        if s.Stage == stage {
            return s, true
        }
    }
    return StageProgress{}, false
}

// Fraction is completed stages over total, for progress bars.
func (p RunProgress) Fraction() float64 {
    if len(p.Stages) == 0 {
        return 0
    }
    done := 0
    for _, s := range p.Stages {
        if s.Status == StageCompleted {
            done++
        }
    }
    return float64(done) / float64(len(p.Stages))
}

type EventKind string

const (
    EventStageStarted   EventKind = "stage_started"
    EventStageCompleted EventKind = "stage_completed"
    EventRunCompleted   EventKind = "run_completed"
    EventRunFailed      EventKind = "run_failed"
)

type Event struct {
    Kind    EventKind
    Stage   Stage
    Count   int
    Skipped bool
    Err     error
    At      time.Time
}

// Transition is the pure state function of a run. It never performs I/O; the
// caller persists the returned progress.
func Transition(p RunProgress, ev Event) (RunProgress, error) {
    if p.Status != RunRunning {
        return p, fmt.Errorf("%w: run is %s", ErrInvalidTransition, p.Status)
    }
    next := p
    next.Stages = append([]StageProgress(nil), p.Stages...)
    at := ev.At

    switch ev.Kind {
    case EventStageStarted:
        idx := stageIndex(next.Stages, ev.Stage)
        if idx < 0 {
            return p, fmt.Errorf("%w: unknown stage %q", ErrInvalidTransition, ev.Stage)
        }
        for i := 0; i < idx; i++ {
            if next.Stages[i].Status != StageCompleted {
                return p, fmt.Errorf("%w: %s started before %s completed", ErrInvalidTransition, ev.Stage, next.Stages[i].Stage)
            }
        }
        if next.Stages[idx].Status != StagePending {
            return p, fmt.Errorf("%w: %s already %s", ErrInvalidTransition, ev.Stage, next.Stages[idx].Status)
        }
        next.Stages[idx].Status = StageInProgress
        next.Stages[idx].StartedAt = &at
    case EventStageCompleted:
        idx := stageIndex(next.Stages, ev.Stage)
        if idx < 0 || next.Stages[idx].Status != StageInProgress {
            return p, fmt.Errorf("%w: %s is not in progress", ErrInvalidTransition, ev.Stage)
        }
        next.Stages[idx].Status = StageCompleted
        next.Stages[idx].ResultCount = ev.Count
        next.Stages[idx].Skipped = ev.Skipped
        next.Stages[idx].CompletedAt = &at
    case EventRunCompleted:
        for _, s := range next.Stages {
            if s.Status != StageCompleted {
                return p, fmt.Errorf("%w: %s not completed", ErrInvalidTransition, s.Stage)
            }
        }
        next.Status = RunCompleted
        next.Duration = at.Sub(p.StartedAt)
    case EventRunFailed:
        next.Status = RunFailed
        next.Duration = at.Sub(p.StartedAt)
        if ev.Err != nil {
            next.Error = ev.Err.Error()
        }
    default:
        return p, fmt.Errorf("%w: unknown event %q", ErrInvalidTransition, ev.Kind)
    }
    return next, nil
}

func stageIndex(stages []StageProgress, stage Stage) int {
    for i, s := range stages {
        if s.Stage == stage {
            return i
        }
    }
    return -1
}

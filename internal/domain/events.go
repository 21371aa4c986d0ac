package domain

import "time"

type LogLevel string

const (
    LevelInfo  LogLevel = "info"
    LevelWarn  LogLevel = "warn"
    LevelError LogLevel = "error"
    LevelFatal LogLevel = "fatal"
)

// LogEntry is one scan-log row.
type LogEntry struct {
    ID       string         `json:"id"`
    RunID    string         `json:"run_id"`
    Level    LogLevel       `json:"level"`
    Stage    Stage          `json:"stage"`
    Code     string         `json:"code,omitempty"`
    Message  string         `json:"message"`
    SelfHeal bool           `json:"self_heal,omitempty"`
    Context  map[string]any `json:"context,omitempty"`
    At       time.Time      `json:"at"`
}

type NotificationKind string

const (
    NotifyScanCompleted NotificationKind = "scan.completed"
    NotifyHighSeverity  NotificationKind = "infringement.high_severity"
    NotifyRelisted      NotificationKind = "infringement.relisted"
    NotifyScanFailed    NotificationKind = "scan.failed"
)

type Notification struct {
    Kind      NotificationKind  `json:"kind"`
    RunID     string            `json:"run_id"`
    ProductID string            `json:"product_id"`
    Title     string            `json:"title"`
    Message   string            `json:"message"`
    URL       string            `json:"url,omitempty"`
    Data      map[string]string `json:"data,omitempty"`
    At        time.Time         `json:"at"`
}

type CompletionOptions struct {
    Model       string
    Temperature float64
    MaxTokens   int
    JSON        bool
}

package domain

import "fmt"

var (
    ErrNotFound          = errString("not found")
    ErrDeadlineExceeded  = errString("run deadline exceeded")
    ErrInvalidTransition = errString("invalid run transition")
)

type errString string

func (e errString) Error() string { return string(e) }

// ProviderError is a failed or timed-out search call. The query client records
// it and degrades to an empty response; it never aborts a run.
type ProviderError struct {
    Query string
    Err   error
}

func (e *ProviderError) Error() string { return fmt.Sprintf("search %q: %v", e.Query, e.Err) }
func (e *ProviderError) Unwrap() error { return e.Err }

// PersistenceError is a write that failed for a single record.
type PersistenceError struct {
    Op      string
    URLHash string
    Err     error
}

func (e *PersistenceError) Error() string {
    if e.URLHash == "" {
        return fmt.Sprintf("%s: %v", e.Op, e.Err)
    }
    return fmt.Sprintf("%s %s: %v", e.Op, e.URLHash, e.Err)
}
func (e *PersistenceError) Unwrap() error { return e.Err }

package httpadapter

import (
    "context"
    "encoding/json"
    "errors"
    "net/http"
    "time"

    "github.com/apex/log"
    "github.com/go-chi/chi/v5"
    "github.com/go-chi/chi/v5/middleware"
    "github.com/oapi-codegen/runtime"
    "github.com/prometheus/client_golang/prometheus/promhttp"

    "leakhound/internal/domain"
    "leakhound/internal/ports"
    scanrunner "leakhound/internal/workers/scanrunner"
)

const (
    defaultWaitTimeout = 30
    maxWaitTimeout     = 600
)

type Server struct {
    scanner   ports.Scanner
    jobs      ports.JobRepository
    processor scanrunner.ScanProcessor
    log       log.Interface
}

func New(scanner ports.Scanner, jobs ports.JobRepository, processor scanrunner.ScanProcessor, logger log.Interface) *Server {
    if logger == nil {
        logger = log.Log
    }
    return &Server{scanner: scanner, jobs: jobs, processor: processor, log: logger}
}

// Routes returns a chi.Router with the API, health and metrics endpoints.
func (s *Server) Routes() chi.Router {
    r := chi.NewRouter()
    r.Use(middleware.RequestID, middleware.Recoverer)
    r.Get("/healthz", s.getHealthz)
    r.Post("/scans", s.postScan)
    r.Get("/scans/{id}", s.getScan)
    r.Handle("/metrics", promhttp.Handler())
    return r
}

type ScanRequest struct {
    ProductID string `json:"product_id"`
}

type ScanAccepted struct {
    RunID string `json:"run_id"`
}

type ScanResponse struct {
    ID         string             `json:"id"`
    ProductID  string             `json:"product_id"`
    Status     domain.RunStatus   `json:"status"`
    Progress   float64            `json:"progress"`
    StartedAt  *time.Time         `json:"started_at,omitempty"`
    FinishedAt *time.Time         `json:"finished_at,omitempty"`
    Run        domain.RunProgress `json:"run"`
}

type errorBody struct {
    Error string `json:"error"`
}

func (s *Server) getHealthz(w http.ResponseWriter, _ *http.Request) {
    writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) postScan(w http.ResponseWriter, r *http.Request) {
    var wait *bool
    var timeout *int
    q := r.URL.Query()
    if err := runtime.BindQueryParameter("form", true, false, "wait", q, &wait); err != nil {
        writeError(w, http.StatusBadRequest, err.Error())
        return
    }
    if err := runtime.BindQueryParameter("form", true, false, "timeout", q, &timeout); err != nil {
        writeError(w, http.StatusBadRequest, err.Error())
        return
    }

    var body ScanRequest
    if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.ProductID == "" {
        writeError(w, http.StatusBadRequest, "body must be {\"product_id\": \"...\"}")
        return
    }

    id, err := s.scanner.Enqueue(r.Context(), body.ProductID)
    if err != nil {
        s.fail(w, err)
        return
    }
    if wait == nil || !*wait {
        writeJSON(w, http.StatusAccepted, ScanAccepted{RunID: id})
        return
    }

    secs := defaultWaitTimeout
    if timeout != nil && *timeout > 0 {
        secs = min(*timeout, maxWaitTimeout)
    }
    ctx, cancel := context.WithTimeout(r.Context(), time.Duration(secs)*time.Second)
    defer cancel()
    if err := scanrunner.ProcessInline(ctx, s.jobs, s.processor, id); err != nil {
        // A failed run is still reported through its status.
        s.log.WithError(err).WithField("run_id", id).Warn("inline scan failed")
    }
    run, err := s.scanner.Status(context.WithoutCancel(ctx), id)
    if err != nil {
        s.fail(w, err)
        return
    }
    writeJSON(w, http.StatusOK, toResponse(run))
}

func (s *Server) getScan(w http.ResponseWriter, r *http.Request) {
    var id string
    if err := runtime.BindStyledParameterWithLocation("simple", false, "id", runtime.ParamLocationPath, chi.URLParam(r, "id"), &id); err != nil {
        writeError(w, http.StatusBadRequest, err.Error())
        return
    }
    run, err := s.scanner.Status(r.Context(), id)
    if err != nil {
        s.fail(w, err)
        return
    }
    writeJSON(w, http.StatusOK, toResponse(run))
}

func (s *Server) fail(w http.ResponseWriter, err error) {
    if errors.Is(err, domain.ErrNotFound) {
        writeError(w, http.StatusNotFound, err.Error())
        return
    }
    s.log.WithError(err).Error("request failed")
    writeError(w, http.StatusInternalServerError, "internal error")
}

func toResponse(run domain.ScanRun) ScanResponse {
    return ScanResponse{
        ID:         run.ID,
        ProductID:  run.ProductID,
        Status:     run.Status,
        Progress:   run.Progress.Fraction(),
        StartedAt:  run.StartedAt,
        FinishedAt: run.FinishedAt,
        Run:        run.Progress,
    }
}

func writeJSON(w http.ResponseWriter, code int, v any) {
    w.Header().Set("Content-Type", "application/json")
    w.WriteHeader(code)
    _ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
    writeJSON(w, code, errorBody{Error: msg})
}

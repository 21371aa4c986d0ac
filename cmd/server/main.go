package main

import (
    "context"
    "encoding/json"
    "errors"
    "fmt"
    "net/http"
    "os"
    "os/signal"
    "syscall"
    "time"

    "github.com/apex/log"
    jsonhandler "github.com/apex/log/handlers/json"
    "github.com/apex/log/handlers/text"
    "github.com/spf13/cobra"

    httpadapter "leakhound/internal/adapters/http"
    "leakhound/internal/adapters/notify"
    "leakhound/internal/adapters/openai"
    pg "leakhound/internal/adapters/postgres"
    "leakhound/internal/adapters/scanners"
    "leakhound/internal/adapters/serper"
    "leakhound/internal/config"
    "leakhound/internal/domain"
    "leakhound/internal/metrics"
    "leakhound/internal/ports"
    "leakhound/internal/services/learning"
    "leakhound/internal/services/orchestrator"
    "leakhound/internal/services/profiles"
    "leakhound/internal/services/queryclient"
    "leakhound/internal/services/router"
    scansvc "leakhound/internal/services/scanner"
    scanworker "leakhound/internal/workers/scanrunner"
)

var version = "dev"

func main() {
    root := &cobra.Command{
        Use:           "server",
        Short:         "Piracy listing scanner",
        SilenceUsage:  true,
        SilenceErrors: true,
    }
    root.AddCommand(serveCmd(), scanCmd())
    if err := root.Execute(); err != nil {
        log.WithError(err).Error("exiting")
        os.Exit(1)
    }
}

func serveCmd() *cobra.Command {
    return &cobra.Command{
        Use:   "serve",
        Short: "Run the HTTP API and background scan workers",
        RunE: func(cmd *cobra.Command, _ []string) error {
            cfg, db, err := setup(cmd.Context())
            if err != nil {
                return err
            }
            defer db.Close()

            ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
            defer cancel()

            metrics.Register()
            dispatcher, closeNotifiers := buildDispatcher(cfg)
            defer closeNotifiers()

            orch := buildOrchestrator(cfg, db, dispatcher)
            scanner := scansvc.New(db, db)
            srv := httpadapter.New(scanner, db, orch, log.Log)

            workersDone := make(chan struct{})
            go func() {
                defer close(workersDone)
                scanworker.Run(ctx, db, orch, cfg.ScanWorkers, 500*time.Millisecond)
            }()
            if cfg.ScanWorkers > 0 {
                log.WithField("workers", cfg.ScanWorkers).Info("scan workers started")
            }

            httpSrv := &http.Server{Addr: cfg.ListenAddr, Handler: srv.Routes(), ReadHeaderTimeout: 10 * time.Second}
            errCh := make(chan error, 1)
            go func() { errCh <- httpSrv.ListenAndServe() }()
            log.WithField("addr", cfg.ListenAddr).Info("listening")

            select {
            case <-ctx.Done():
                log.Info("shutting down")
            case err := <-errCh:
                if !errors.Is(err, http.ErrServerClosed) {
                    return fmt.Errorf("server error: %w", err)
                }
            }
            shutdownCtx, stop := context.WithTimeout(context.Background(), 10*time.Second)
            defer stop()
            _ = httpSrv.Shutdown(shutdownCtx)
            <-workersDone
            return nil
        },
    }
}

func scanCmd() *cobra.Command {
    var productID string
    cmd := &cobra.Command{
        Use:   "scan",
        Short: "Run one scan synchronously and print its progress",
        RunE: func(cmd *cobra.Command, _ []string) error {
            cfg, db, err := setup(cmd.Context())
            if err != nil {
                return err
            }
            defer db.Close()

            ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
            defer cancel()

            dispatcher, closeNotifiers := buildDispatcher(cfg)
            defer closeNotifiers()
            orch := buildOrchestrator(cfg, db, dispatcher)

            scanner := scansvc.New(db, db)
            runID, err := scanner.Enqueue(ctx, productID)
            if err != nil {
                return err
            }
            procErr := scanworker.ProcessInline(ctx, db, orch, runID)
            run, err := scanner.Status(context.WithoutCancel(ctx), runID)
            if err != nil {
                return err
            }
            out, err := json.MarshalIndent(run.Progress, "", "  ")
            if err != nil {
                return err
            }
            fmt.Fprintln(cmd.OutOrStdout(), string(out))
            return procErr
        },
    }
    cmd.Flags().StringVar(&productID, "product", "", "product id to scan")
    _ = cmd.MarkFlagRequired("product")
    return cmd
}

// setup loads config, configures logging and opens a migrated database.
func setup(ctx context.Context) (config.Config, *pg.DB, error) {
    cfg, err := config.Load()
    setupLogging(cfg)
    if err != nil {
        return cfg, nil, err
    }
    if ctx == nil {
        ctx = context.Background()
    }
    db, err := pg.Connect(ctx, cfg.DatabaseURL)
    if err != nil {
        return cfg, nil, fmt.Errorf("db connect error: %w", err)
    }
    if err := db.Migrate(ctx); err != nil {
        db.Close()
        return cfg, nil, fmt.Errorf("migrate: %w", err)
    }
    return cfg, db, nil
}

func setupLogging(cfg config.Config) {
    if cfg.Env == "development" {
        log.SetHandler(text.New(os.Stderr))
    } else {
        log.SetHandler(jsonhandler.New(os.Stderr))
    }
    level, err := log.ParseLevel(cfg.LogLevel)
    if err != nil {
        level = log.InfoLevel
    }
    log.SetLevel(level)
}

func buildDispatcher(cfg config.Config) (*notify.Dispatcher, func()) {
    var notifiers []ports.Notifier
    cleanup := func() {}

    if cfg.AMQPURL != "" {
        pub, err := notify.NewPublisher(cfg.AMQPURL, cfg.AMQPExchange)
        if err != nil {
            log.WithError(err).Warn("amqp publisher disabled")
        } else {
            notifiers = append(notifiers, pub)
            cleanup = func() { _ = pub.Close() }
        }
    }
    if len(cfg.ShoutrrrURLs) > 0 {
        chat, err := notify.NewChat(cfg.ShoutrrrURLs, 10*time.Second)
        if err != nil {
            log.WithError(err).Warn("chat alerts disabled")
        } else {
            notifiers = append(notifiers, notify.Only(chat, domain.NotifyHighSeverity, domain.NotifyRelisted, domain.NotifyScanFailed))
        }
    }
    if cfg.SentryDSN != "" {
        if err := notify.InitSentry(cfg.SentryDSN, cfg.Env, version); err != nil {
            log.WithError(err).Warn("sentry alerts disabled")
        } else {
            notifiers = append(notifiers, notify.NewAlerter(nil))
        }
    }
    return notify.NewDispatcher(15*time.Second, log.Log, notifiers...), cleanup
}

func buildOrchestrator(cfg config.Config, db *pg.DB, dispatcher orchestrator.Dispatcher) *orchestrator.Orchestrator {
    registry := profiles.Default()

    var completer ports.Completer
    if cfg.AI.APIKey != "" {
        completer = openai.NewClient(cfg.AI.APIKey, cfg.AI.Model)
    }
    platformScanners := []ports.PlatformScanner{
        scanners.NewHTMLIndex(domain.PlatformTorrent, scanners.DefaultSites[domain.PlatformTorrent]),
        scanners.NewHTMLIndex(domain.PlatformForum, scanners.DefaultSites[domain.PlatformForum]),
        scanners.NewReddit(),
    }

    return orchestrator.New(orchestrator.Deps{
        Products:      db,
        Infringements: db,
        Runs:          db,
        Logs:          db,
        Search:        serper.New(cfg.Search.Endpoint, cfg.Search.APIKey),
        Registry:      registry,
        Router:        router.New(registry, platformScanners, router.DefaultThreshold, log.Log),
        Learning:      learning.New(db, time.Hour),
        Completer:     completer,
        Notifier:      dispatcher,
        Logger:        log.Log,
    }, orchestrator.Config{
        Deadline:          cfg.RunDeadline,
        PlatformBudgetCap: cfg.PlatformBudgetCap,
        Query: queryclient.Config{
            Budget:      cfg.Search.Budget,
            MinDelay:    cfg.Search.MinDelay,
            Concurrency: cfg.Search.Concurrency,
            CallTimeout: cfg.Search.CallTimeout,
        },
        AIFilterEnabled: cfg.AI.FilterEnabled,
        AIThreshold:     cfg.AI.Threshold,
        AIModel:         cfg.AI.Model,
    })
}

package main

import (
    "context"
    "flag"
    "fmt"
    "os"
    "os/signal"
    "syscall"

    "github.com/spf13/cobra"
    "github.com/kargodata/recherche-orchestrator/internal/config"
    "github.com/kargodata/recherche-orchestrator/internal/db"
    "github.com/kargodata/recherche-orchestrator/internal/dispatch"
    "github.com/kargodata/recherche-orchestrator/internal/health"
    "github.com/kargodata/recherche-orchestrator/internal/metrics"
    "github.com/kargodata/recherche-orchestrator/pkg/logger"
)

var (
    configFile string
    initDB     bool
    flushDB    bool
    once       bool
    verbose    bool

    // Global services - shared with commands.go
    cfg        *config.Config
    database   *db.DB
    cache      *db.Cache
    metricsSvc *metrics.PrometheusMetrics
    healthSvc  *health.HealthService
)

func main() {
    flag.StringVar(&configFile, "config", "", "Configuration file path")
    flag.BoolVar(&initDB, "init-db", false, "Initialize database schema (WARNING: drops existing data if --flush is used)")
    flag.BoolVar(&flushDB, "flush", false, "Flush existing database before initialization")
    flag.BoolVar(&once, "once", false, "Process at most one order, then exit")
    flag.BoolVar(&verbose, "verbose", false, "Enable verbose logging")
    flag.Parse()

    if flag.NFlag() > 0 {
        runServerMode()
        return
    }

    runCLI()
}

func runServerMode() {
    ctx := context.Background()

    var err error
    cfg, err = config.Load(configFile)
    if err != nil {
        fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
        os.Exit(1)
    }

    logConfig := logger.Config{
        Level:  cfg.Monitoring.Logging.Level,
        Format: cfg.Monitoring.Logging.Format,
        Output: cfg.Monitoring.Logging.Output,
        File: logger.FileConfig{
            Enabled:    cfg.Monitoring.Logging.File.Enabled,
            Path:       cfg.Monitoring.Logging.File.Path,
            MaxSize:    cfg.Monitoring.Logging.File.MaxSize,
            MaxBackups: cfg.Monitoring.Logging.File.MaxBackups,
            MaxAge:     cfg.Monitoring.Logging.File.MaxAge,
            Compress:   cfg.Monitoring.Logging.File.Compress,
        },
    }
    if verbose {
        logConfig.Level = "debug"
    }
    if err := logger.Init(logConfig); err != nil {
        fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
        os.Exit(1)
    }

    if err := initializeDatabase(ctx); err != nil {
        logger.WithError(err).Fatal("Failed to initialize database")
    }

    if initDB {
        logger.Info("Initializing database schema")

        if flushDB {
            logger.Warn("FLUSH mode enabled - all existing data will be deleted!")
            fmt.Print("\nWARNING: This will DELETE ALL existing data. Continue? [y/N]: ")
            var response string
            fmt.Scanln(&response)
            if response != "y" && response != "Y" {
                logger.Info("Database initialization cancelled")
                return
            }
        }

        if err := db.InitializeDatabase(ctx, database.DB, flushDB); err != nil {
            logger.WithError(err).Fatal("Failed to initialize database schema")
        }

        logger.Info("Database initialization completed successfully")
        logger.Info("Next steps:")
        logger.Info("1. Set provider credentials: ./bin/worker settings set recherche.google_places_api_key <key>")
        logger.Info("2. Create a partner: ./bin/worker partner add <name>")
        logger.Info("3. Start the dispatch worker: ./bin/worker")
        return
    }

    runDispatchWorker(ctx)
}

func runCLI() {
    rootCmd := &cobra.Command{
        Use:   "worker",
        Short: "Recherche Orchestration Core worker",
        Long:  "Background dispatch worker and operational CLI for the business-data recherche pipeline",
    }

    rootCmd.AddCommand(
        createPartnerCommands(),
        createOrderCommands(),
        createLedgerCommands(),
        createSettingsCommands(),
    )

    if err := rootCmd.Execute(); err != nil {
        fmt.Fprintf(os.Stderr, "Error: %v\n", err)
        os.Exit(1)
    }
}

func runDispatchWorker(ctx context.Context) {
    logger.Info("Starting dispatch worker")

    dispatchCfg := cfg.Dispatch
    dispatchCfg.Once = dispatchCfg.Once || once

    worker := dispatch.NewWorker(database, metricsSvc, dispatchCfg, cfg.Provider)

    sigChan := make(chan os.Signal, 1)
    signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

    runCtx, cancel := context.WithCancel(ctx)
    defer cancel()

    if !dispatchCfg.Once {
        go func() {
            <-sigChan
            logger.Info("Shutdown signal received, finishing in-flight order")
            worker.Stop()
        }()
    }

    if err := worker.Run(runCtx); err != nil {
        logger.WithError(err).Fatal("Dispatch worker exited with error")
    }

    if healthSvc != nil {
        healthSvc.Stop()
    }

    logger.Info("Dispatch worker shut down cleanly")
}

func initializeDatabase(ctx context.Context) error {
    dbConfig := db.Config{
        Driver:          cfg.Database.Driver,
        Host:            cfg.Database.Host,
        Port:            cfg.Database.Port,
        Username:        cfg.Database.Username,
        Password:        cfg.Database.Password,
        Database:        cfg.Database.Database,
        MaxOpenConns:    cfg.Database.MaxOpenConns,
        MaxIdleConns:    cfg.Database.MaxIdleConns,
        ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
        RetryAttempts:   cfg.Database.RetryAttempts,
        RetryDelay:      cfg.Database.RetryDelay,
    }

    if err := db.Initialize(dbConfig); err != nil {
        return err
    }
    database = db.GetDB()

    if err := db.RunDatabaseMigrations(database.DB); err != nil {
        logger.WithError(err).Warn("Database migrations did not apply cleanly")
    }

    cacheConfig := db.CacheConfig{
        Host:         cfg.Redis.Host,
        Port:         cfg.Redis.Port,
        Password:     cfg.Redis.Password,
        DB:           cfg.Redis.DB,
        PoolSize:     cfg.Redis.PoolSize,
        MinIdleConns: cfg.Redis.MinIdleConns,
        MaxRetries:   cfg.Redis.MaxRetries,
    }
    if err := db.InitializeCache(cacheConfig, "recherche-orchestrator"); err != nil {
        logger.WithError(err).Warn("Failed to initialize Redis cache, continuing without it")
    }
    cache = db.GetCache()

    metricsSvc = metrics.NewPrometheusMetrics()

    if cfg.Monitoring.Health.Enabled {
        healthSvc = health.NewHealthService(cfg.Monitoring.Health.Port)
        healthSvc.RegisterLivenessCheck("database", health.CheckFunc(func(ctx context.Context) error {
            if !database.IsHealthy() {
                return fmt.Errorf("database not healthy")
            }
            return database.PingContext(ctx)
        }))
        healthSvc.RegisterReadinessCheck("database", health.CheckFunc(func(ctx context.Context) error {
            return database.PingContext(ctx)
        }))
        go healthSvc.Start()
    }

    if cfg.Monitoring.Metrics.Enabled {
        go metricsSvc.ServeHTTP(cfg.Monitoring.Metrics.Port)
    }

    return nil
}

// initializeForCLI loads config and database connectivity for one-shot CLI
// subcommands, skipping the metrics/health servers the long-running worker
// needs.
func initializeForCLI(ctx context.Context) error {
    var err error
    cfg, err = config.Load(configFile)
    if err != nil {
        return fmt.Errorf("failed to load config: %w", err)
    }

    logConfig := logger.Config{
        Level:  cfg.Monitoring.Logging.Level,
        Format: "text",
    }
    if logConfig.Level == "" {
        logConfig.Level = "info"
    }
    if err := logger.Init(logConfig); err != nil {
        return fmt.Errorf("failed to initialize logger: %w", err)
    }

    dbConfig := db.Config{
        Driver:          cfg.Database.Driver,
        Host:            cfg.Database.Host,
        Port:            cfg.Database.Port,
        Username:        cfg.Database.Username,
        Password:        cfg.Database.Password,
        Database:        cfg.Database.Database,
        MaxOpenConns:    cfg.Database.MaxOpenConns,
        MaxIdleConns:    cfg.Database.MaxIdleConns,
        ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
        RetryAttempts:   cfg.Database.RetryAttempts,
        RetryDelay:      cfg.Database.RetryDelay,
    }
    if err := db.Initialize(dbConfig); err != nil {
        return fmt.Errorf("failed to connect to database: %w", err)
    }
    database = db.GetDB()

    return nil
}

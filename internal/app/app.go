// Package app wires configuration, infrastructure, services, and routes,
// and runs the HTTP server next to the cron scheduler.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/Marczelloo/atlas-hub/internal/audit"
	"github.com/Marczelloo/atlas-hub/internal/auth"
	"github.com/Marczelloo/atlas-hub/internal/config"
	"github.com/Marczelloo/atlas-hub/internal/crypto"
	"github.com/Marczelloo/atlas-hub/internal/httpserver"
	"github.com/Marczelloo/atlas-hub/internal/notify"
	"github.com/Marczelloo/atlas-hub/internal/platform"
	"github.com/Marczelloo/atlas-hub/internal/settings"
	"github.com/Marczelloo/atlas-hub/internal/store"
	"github.com/Marczelloo/atlas-hub/internal/telemetry"
	"github.com/Marczelloo/atlas-hub/pkg/apikey"
	"github.com/Marczelloo/atlas-hub/pkg/backup"
	"github.com/Marczelloo/atlas-hub/pkg/cron"
	"github.com/Marczelloo/atlas-hub/pkg/crud"
	"github.com/Marczelloo/atlas-hub/pkg/project"
	"github.com/Marczelloo/atlas-hub/pkg/sqlexec"
	"github.com/Marczelloo/atlas-hub/pkg/storage"
	"github.com/Marczelloo/atlas-hub/pkg/tenantdb"
	"github.com/Marczelloo/atlas-hub/pkg/user"
)

// Run is the main application entry point. It reads config, connects to
// infrastructure, and serves until ctx is cancelled.
func Run(ctx context.Context, cfg *config.Config) error {
	logger := telemetry.NewLogger(cfg.LogFormat, cfg.LogLevel)
	slog.SetDefault(logger)

	logger.Info("starting atlas-hub", "listen", cfg.ListenAddr())

	// Envelope encryption root.
	cipher, err := crypto.NewCipher(cfg.PlatformMasterKey)
	if err != nil {
		return fmt.Errorf("deriving master key: %w", err)
	}

	// Platform database.
	db, err := platform.NewPostgresPool(ctx, cfg.DatabaseURL(), cfg.DBPoolMax,
		time.Duration(cfg.DBIdleMs)*time.Millisecond,
		time.Duration(cfg.DBConnMs)*time.Millisecond)
	if err != nil {
		return fmt.Errorf("connecting to database: %w", err)
	}
	defer db.Close()

	if err := platform.RunPlatformMigrations(cfg.DatabaseURL(), cfg.MigrationsDir); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}
	logger.Info("platform migrations applied")

	// Redis.
	rdb, err := platform.NewRedisClient(ctx, cfg.RedisURL)
	if err != nil {
		return fmt.Errorf("connecting to redis: %w", err)
	}
	defer func() {
		if err := rdb.Close(); err != nil {
			logger.Error("closing redis", "error", err)
		}
	}()

	// Object store.
	s3Client, err := platform.NewS3Client(ctx, platform.ObjectStoreConfig{
		Endpoint:  cfg.StorageURL(),
		Region:    cfg.StorageRegion,
		AccessKey: cfg.StorageAccessKey,
		SecretKey: cfg.StorageSecretKey,
	})
	if err != nil {
		return fmt.Errorf("connecting to object store: %w", err)
	}

	st := store.New(db)

	// Runtime-mutable settings.
	settingsMgr, err := settings.NewManager(ctx, st, settings.Runtime{
		RateLimitMax:          cfg.RateLimitMax,
		RateLimitWindowMs:     cfg.RateLimitWindowMs,
		SQLMaxRows:            cfg.SQLMaxRows,
		SQLStatementTimeoutMs: cfg.SQLStatementTimeoutMs,
		PublicStorageURL:      cfg.PublicStorageURL,
	})
	if err != nil {
		return fmt.Errorf("loading runtime settings: %w", err)
	}

	metricsReg := telemetry.NewMetricsRegistry()

	// Session manager.
	sessionSecret := cfg.SessionSecret
	if sessionSecret == "" {
		sessionSecret = auth.GenerateDevSecret()
		logger.Info("session: using auto-generated dev secret (set ATLAS_SESSION_SECRET in production)")
	}
	sessionMaxAge, err := time.ParseDuration(cfg.SessionMaxAge)
	if err != nil {
		return fmt.Errorf("parsing session max age %q: %w", cfg.SessionMaxAge, err)
	}
	sessionMgr, err := auth.NewSessionManager(sessionSecret, sessionMaxAge)
	if err != nil {
		return fmt.Errorf("creating session manager: %w", err)
	}

	// Audit log writer (async, buffered).
	auditWriter := audit.NewWriter(st, logger)
	auditWriter.Start(ctx)
	defer auditWriter.Close()

	// Tenant connection router — the single chokepoint for tenant access.
	router := tenantdb.NewRouter(st, cipher, logger)
	defer router.CloseAll()

	// Storage broker.
	broker := storage.NewBroker(s3Client, st,
		time.Duration(cfg.PresignedURLExpirySeconds)*time.Second,
		cfg.MaxUploadSizeBytes, logger)
	if err := broker.EnsureBucket(ctx, backup.BackupBucket); err != nil {
		return fmt.Errorf("ensuring backup bucket: %w", err)
	}

	// Services.
	keySvc := apikey.NewService(db, logger)

	schemas := crud.NewSchemaCache(router)
	crudSvc := crud.NewService(router, schemas,
		func() int { return settingsMgr.Get().SQLMaxRows }, logger)

	sqlExec := sqlexec.NewExecutor(router, func() (int, time.Duration) {
		rt := settingsMgr.Get()
		return rt.SQLMaxRows, rt.SQLStatementTimeout()
	}, logger)

	execRunner := backup.ExecRunner{}
	backupSvc := backup.NewService(st, cipher, broker, router, execRunner, cfg.DatabaseURL(), logger)

	provisioner := &project.Provisioner{
		Pool:    db,
		Store:   st,
		Cipher:  cipher,
		Router:  router,
		Objects: broker,
		Conn: project.ConnInfo{
			Host:     cfg.DBHost,
			Port:     cfg.DBPort,
			AdminURL: cfg.AdminDatabaseURL,
		},
		Logger: logger,
	}

	userSvc := user.NewService(st, logger)

	// Scheduler.
	notifier := notify.NewNotifier(cfg.SlackBotToken, cfg.SlackAlertChannel, logger)
	if notifier.IsEnabled() {
		logger.Info("slack notifications enabled", "channel", cfg.SlackAlertChannel)
	} else {
		logger.Info("slack notifications disabled (SLACK_BOT_TOKEN not set)")
	}

	actions := cron.NewActions(st, cipher, backupSvc, notifier, logger)
	var failureSink cron.FailureNotifier
	if notifier.IsEnabled() {
		failureSink = notifier
	}
	scheduler := cron.NewScheduler(st, cipher, actions, failureSink, cron.Config{
		PollInterval:   time.Duration(cfg.SchedulerPollIntervalMs) * time.Millisecond,
		DefaultTimeout: time.Duration(cfg.SchedulerDefaultTimeoutMs) * time.Millisecond,
		MaxConcurrent:  cfg.SchedulerMaxConcurrent,
	}, logger)

	schedulerDone := make(chan struct{})
	go func() {
		defer close(schedulerDone)
		if err := scheduler.Run(ctx); err != nil {
			logger.Error("scheduler exited", "error", err)
		}
	}()

	// Rate limiter for the public API, driven by runtime settings.
	rateLimiter := auth.NewRateLimiter(rdb, func() (int, time.Duration) {
		rt := settingsMgr.Get()
		return rt.RateLimitMax, rt.RateLimitWindow()
	})

	// HTTP server and routes.
	srv := httpserver.NewServer(httpserver.ServerConfig{
		CORSAllowedOrigins: cfg.CORSAllowedOrigins,
	}, logger, db, rdb, metricsReg,
		[]func(http.Handler) http.Handler{auth.AdminMiddleware(sessionMgr, logger)},
		[]func(http.Handler) http.Handler{auth.APIKeyMiddleware(keySvc, logger), rateLimiter.Middleware(logger)},
	)

	// Public (pre-session) auth routes.
	userHandler := user.NewHandler(logger, auditWriter, userSvc, sessionMgr, st)
	srv.Router.Mount("/auth", userHandler.AuthRoutes())

	// Admin routes. Project subresources mount under /projects/{projectID}.
	projectHandler := project.NewHandler(logger, auditWriter, st, provisioner)
	keyHandler := apikey.NewHandler(logger, auditWriter, keySvc)
	crudHandler := crud.NewHandler(logger, crudSvc)
	sqlHandler := sqlexec.NewHandler(logger, auditWriter, sqlExec, schemas)
	storageAdmin := storage.NewAdminHandler(logger, broker, st)

	srv.AdminRouter.Mount("/projects", projectHandler.Routes(project.Subresources{
		Keys:    keyHandler.Routes(),
		Tables:  crudHandler.AdminRoutes(),
		SQL:     sqlHandler.Routes(),
		Storage: storageAdmin.Routes(),
	}))

	backupHandler := backup.NewHandler(logger, auditWriter, backupSvc)
	srv.AdminRouter.Mount("/backups", backupHandler.Routes())

	cronHandler := cron.NewHandler(logger, auditWriter, st, cipher)
	srv.AdminRouter.Mount("/cron-jobs", cronHandler.Routes())

	settingsHandler := settings.NewHandler(logger, auditWriter, settingsMgr)
	srv.AdminRouter.Mount("/settings", settingsHandler.Routes())

	auditHandler := audit.NewHandler(logger, st)
	srv.AdminRouter.Mount("/audit-log", auditHandler.Routes())

	srv.AdminRouter.Mount("/users", userHandler.AdminRoutes())

	srv.AdminRouter.Get("/stats", statsHandler(st, logger))

	// Public routes.
	srv.PublicRouter.Mount("/db", crudHandler.Routes())

	storageHandler := storage.NewHandler(logger, broker)
	srv.PublicRouter.Mount("/storage", storageHandler.Routes())

	httpSrv := &http.Server{
		Addr:         cfg.ListenAddr(),
		Handler:      srv,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("api server listening", "addr", cfg.ListenAddr())
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
		<-schedulerDone

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpSrv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

// statsHandler reports platform-wide counts for the admin dashboard.
func statsHandler(st *store.Store, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		projects, err := st.CountProjects(ctx)
		if err != nil {
			logger.Error("counting projects", "error", err)
			httpserver.RespondError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "failed to load stats")
			return
		}
		users, err := st.CountUsers(ctx)
		if err != nil {
			logger.Error("counting users", "error", err)
			httpserver.RespondError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "failed to load stats")
			return
		}
		backups, err := st.ListBackups(ctx, nil, 500, 0)
		if err != nil {
			logger.Error("listing backups", "error", err)
			httpserver.RespondError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "failed to load stats")
			return
		}

		byStatus := map[string]int{}
		for _, b := range backups {
			byStatus[b.Status]++
		}

		httpserver.Respond(w, http.StatusOK, map[string]any{
			"projects":        projects,
			"users":           users,
			"backupsByStatus": byStatus,
		})
	}
}

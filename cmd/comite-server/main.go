package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/comitetoraxvm/comite-torax/internal/config"
	"github.com/comitetoraxvm/comite-torax/internal/domain/patient"
	"github.com/comitetoraxvm/comite-torax/internal/domain/reminder"
	"github.com/comitetoraxvm/comite-torax/internal/domain/review"
	"github.com/comitetoraxvm/comite-torax/internal/platform/audit"
	"github.com/comitetoraxvm/comite-torax/internal/platform/backup"
	"github.com/comitetoraxvm/comite-torax/internal/platform/db"
	"github.com/comitetoraxvm/comite-torax/internal/platform/notify"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "comite-server",
		Short: "Thoracic committee review and follow-up server",
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(remindCmd())
	rootCmd.AddCommand(backupCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the committee API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	}
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
	}

	upCmd := &cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, _ := cmd.Flags().GetString("dir")

			cfg, err := config.Load()
			if err != nil {
				return err
			}

			ctx := context.Background()
			pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
			if err != nil {
				return err
			}
			defer pool.Close()

			migrator := db.NewMigrator(pool, dir)
			count, err := migrator.Up(ctx)
			if err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}

			fmt.Printf("Applied %d migration(s) successfully.\n", count)
			return nil
		},
	}
	upCmd.Flags().String("dir", "./migrations", "Path to migrations directory")
	cmd.AddCommand(upCmd)

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, _ := cmd.Flags().GetString("dir")

			cfg, err := config.Load()
			if err != nil {
				return err
			}

			ctx := context.Background()
			pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
			if err != nil {
				return err
			}
			defer pool.Close()

			migrator := db.NewMigrator(pool, dir)
			statuses, err := migrator.Status(ctx)
			if err != nil {
				return fmt.Errorf("failed to get migration status: %w", err)
			}

			fmt.Printf("%-10s %-40s %-10s %s\n", "VERSION", "NAME", "STATUS", "APPLIED AT")
			fmt.Println("---------- ---------------------------------------- ---------- --------------------")
			for _, s := range statuses {
				status := "pending"
				appliedAt := ""
				if s.Applied {
					status = "applied"
					if s.AppliedAt != nil {
						appliedAt = s.AppliedAt.Format("2006-01-02 15:04:05")
					}
				}
				fmt.Printf("%-10d %-40s %-10s %s\n", s.Version, s.Name, status, appliedAt)
			}
			return nil
		},
	}
	statusCmd.Flags().String("dir", "./migrations", "Path to migrations directory")
	cmd.AddCommand(statusCmd)

	return cmd
}

// remindCmd runs one due scan and exits. Cron drives it daily; the HTTP scan
// endpoint covers ad-hoc triggers.
func remindCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "remind",
		Short: "Run the daily due scan and send reminder notifications",
		RunE: func(cmd *cobra.Command, args []string) error {
			date, _ := cmd.Flags().GetString("date")

			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			logger := newLogger(cfg.IsDev())

			ctx := context.Background()
			pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
			if err != nil {
				return err
			}
			defer pool.Close()

			auditLog := audit.NewLog(audit.NewPGStore(pool))
			patientSvc := patient.NewService(patient.NewRepoPG(pool), auditLog)
			sched := reminder.NewScheduler(
				reminder.NewRepoPG(pool), patientSvc, auditLog,
				notify.NewDispatcher(newSender(cfg, logger)),
				notify.NewTemplateEngine(), logger)
			sched.SetExtraRecipients(cfg.ExtraRecipients)

			report, err := sched.ScanDue(ctx, date)
			if err != nil {
				return err
			}
			fmt.Printf("scan %s: %d scanned, %d notified, %d skipped, %d failures\n",
				report.Date, report.Scanned, report.Notified, report.Skipped, report.Failures)
			return nil
		},
	}
	cmd.Flags().String("date", "", "Scan date (YYYY-MM-DD, default today)")
	return cmd
}

// backupCmd forces one backup check against the current database state.
func backupCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "backup",
		Short: "Snapshot the database state to the backup directory",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			logger := newLogger(cfg.IsDev())

			ctx := context.Background()
			pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
			if err != nil {
				return err
			}
			defer pool.Close()

			auditLog := audit.NewLog(audit.NewPGStore(pool))
			mgr, err := backup.NewManager(cfg.BackupDir, cfg.BackupRetention,
				func(ctx context.Context) ([]byte, error) { return db.SnapshotState(ctx, pool) },
				auditLog, logger)
			if err != nil {
				return err
			}
			if err := mgr.OnCommit(ctx); err != nil {
				return err
			}

			latest, err := mgr.Latest()
			if err != nil {
				return err
			}
			if latest != nil {
				fmt.Printf("latest snapshot: %s\n", latest.Name)
			}
			return nil
		},
	}
}

func newLogger(dev bool) zerolog.Logger {
	if dev {
		return zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}
	return zerolog.New(os.Stdout).With().Timestamp().Logger()
}

func newSender(cfg *config.Config, logger zerolog.Logger) notify.EmailSender {
	if !cfg.MailEnabled {
		return &notify.LogSender{Logger: logger}
	}
	return notify.NewSMTPSender(cfg.MailHost, cfg.MailPort, cfg.MailUsername, cfg.MailPassword, cfg.MailFrom)
}

func runServer() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	logger := newLogger(cfg.IsDev())

	ctx := context.Background()
	pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer pool.Close()
	logger.Info().Msg("connected to database")

	store := db.NewStore(pool, logger)

	// Audit trail
	auditLog := audit.NewLog(audit.NewPGStore(pool))

	// Backup manager, fed by the commit hook: every committed write triggers a
	// state check, and unchanged state publishes nothing.
	backupMgr, err := backup.NewManager(cfg.BackupDir, cfg.BackupRetention,
		func(ctx context.Context) ([]byte, error) { return db.SnapshotState(ctx, pool) },
		auditLog, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to init backup manager")
	}
	store.OnCommit(func(ctx context.Context) {
		if err := backupMgr.OnCommit(ctx); err != nil {
			logger.Error().Err(err).Msg("backup check failed")
		}
	})

	// Notifications
	dispatcher := notify.NewDispatcher(newSender(cfg, logger))
	templates := notify.NewTemplateEngine()

	// Echo server
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(echomw.Recover())
	e.Use(echomw.RequestID())
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete},
		AllowHeaders: []string{"Content-Type", "X-Request-ID", "X-Actor-ID"},
	}))

	// Mutating routes run inside one transaction per request. The due scan is
	// registered outside the transactional group: its per-item stamps must
	// commit independently of each other (see RegisterScanRoutes).
	apiV1 := e.Group("/api/v1")
	txAPI := apiV1.Group("", db.TxMiddleware(store))

	// Health check
	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "ok",
			"version": "0.1.0",
		})
	})

	// Patient domain
	patientSvc := patient.NewService(patient.NewRepoPG(pool), auditLog)
	patient.NewHandler(patientSvc).RegisterRoutes(txAPI)

	// Review workflow
	reviewSvc := review.NewService(review.NewRepoPG(pool), patientSvc, auditLog)
	reviewSvc.SetNotifier(dispatcher, templates, cfg.ReviewBaseURL)
	review.NewHandler(reviewSvc).RegisterRoutes(txAPI)

	// Reminder scheduler
	sched := reminder.NewScheduler(reminder.NewRepoPG(pool), patientSvc,
		auditLog, dispatcher, templates, logger)
	sched.SetExtraRecipients(cfg.ExtraRecipients)
	remindHandler := reminder.NewHandler(sched)
	remindHandler.RegisterRoutes(txAPI)
	remindHandler.RegisterScanRoutes(apiV1)

	// Audit query surface
	audit.NewHandler(auditLog).RegisterRoutes(apiV1)

	// Graceful shutdown
	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Msg("starting server")
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Fatal().Err(err).Msg("server shutdown failed")
	}
	logger.Info().Msg("server stopped")
	return nil
}

package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/clinerva/clinerva/internal/config"
	"github.com/clinerva/clinerva/internal/domain/admin"
	"github.com/clinerva/clinerva/internal/domain/appointment"
	"github.com/clinerva/clinerva/internal/domain/audit"
	"github.com/clinerva/clinerva/internal/domain/catalog"
	"github.com/clinerva/clinerva/internal/domain/consultation"
	"github.com/clinerva/clinerva/internal/domain/identity"
	"github.com/clinerva/clinerva/internal/domain/notification"
	"github.com/clinerva/clinerva/internal/domain/patient"
	"github.com/clinerva/clinerva/internal/jobs"
	"github.com/clinerva/clinerva/internal/platform/auth"
	"github.com/clinerva/clinerva/internal/platform/blobstore"
	"github.com/clinerva/clinerva/internal/platform/db"
	"github.com/clinerva/clinerva/internal/platform/dosage"
	"github.com/clinerva/clinerva/internal/platform/mailer"
	"github.com/clinerva/clinerva/internal/platform/metrics"
	"github.com/clinerva/clinerva/internal/platform/middleware"
	"github.com/clinerva/clinerva/internal/platform/ws"
	"github.com/clinerva/clinerva/internal/seed"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "clinic-server",
		Short: "Clinic management API server",
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(seedCmd())
	rootCmd.AddCommand(backupCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the API server",
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

	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, pool, err := connect()
			if err != nil {
				return err
			}
			defer pool.Close()

			migrator := db.NewMigrator(pool, cfg.MigrationsDir)
			count, err := migrator.Up(context.Background())
			if err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}
			fmt.Printf("Applied %d migration(s).\n", count)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, pool, err := connect()
			if err != nil {
				return err
			}
			defer pool.Close()

			statuses, err := db.NewMigrator(pool, cfg.MigrationsDir).Status(context.Background())
			if err != nil {
				return err
			}
			fmt.Printf("%-10s %-40s %-10s %s\n", "VERSION", "NAME", "STATUS", "APPLIED AT")
			for _, s := range statuses {
				status, appliedAt := "pending", ""
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
	})

	return cmd
}

func seedCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "seed",
		Short: "Load demo data",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := newLogger("production")
			cfg, pool, err := connect()
			if err != nil {
				return err
			}
			defer pool.Close()
			if !cfg.IsDev() {
				return fmt.Errorf("seeding is only available in development")
			}

			app, err := buildApp(cfg, pool, logger)
			if err != nil {
				return err
			}
			return app.seeder.Run(context.Background())
		},
	}
}

func backupCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "backup",
		Short: "Export a backup archive to the backup directory",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := newLogger("production")
			cfg, pool, err := connect()
			if err != nil {
				return err
			}
			defer pool.Close()

			app, err := buildApp(cfg, pool, logger)
			if err != nil {
				return err
			}
			path, docs, err := app.admin.WriteBackup(context.Background())
			if err != nil {
				return err
			}
			fmt.Printf("Wrote %d document(s) to %s\n", docs, path)
			return nil
		},
	}
}

func connect() (*config.Config, *pgxpool.Pool, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}
	pool, err := db.NewPool(context.Background(), cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		return nil, nil, err
	}
	return cfg, pool, nil
}

func newLogger(env string) zerolog.Logger {
	if env == "development" {
		return zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}
	return zerolog.New(os.Stdout).With().Timestamp().Logger()
}

// directory resolves display names for rendered consultation documents.
type directory struct {
	patients *patient.Service
	users    *identity.Service
	catalogs *catalog.Service
}

func (d *directory) PatientLabel(ctx context.Context, id uuid.UUID) (string, string, error) {
	p, err := d.patients.Get(ctx, id)
	if err != nil {
		return "", "", err
	}
	return p.FullName(), p.BillingCode, nil
}

func (d *directory) UserName(ctx context.Context, id uuid.UUID) (string, error) {
	u, err := d.users.GetUser(ctx, id)
	if err != nil {
		return "", err
	}
	return u.Name, nil
}

func (d *directory) CatalogItemName(ctx context.Context, id uuid.UUID) (string, error) {
	it, err := d.catalogs.Get(ctx, id)
	if err != nil {
		return "", err
	}
	return it.Name, nil
}

func (d *directory) ActiveUsersInRole(ctx context.Context, role string) ([]uuid.UUID, error) {
	return d.users.ActiveUserIDsByRole(ctx, role)
}

type app struct {
	cfg    *config.Config
	logger zerolog.Logger

	hub      *ws.Hub
	tokens   *auth.TokenIssuer
	identity *identity.Service
	patients *patient.Service
	catalogs *catalog.Service
	appts    *appointment.Service
	consults *consultation.Service
	notifs   *notification.Service
	audit    *audit.Service
	admin    *admin.Service
	dosage   *dosage.Client
	seeder   *seed.Seeder
}

func buildApp(cfg *config.Config, pool *pgxpool.Pool, logger zerolog.Logger) (*app, error) {
	blobs, err := blobstore.NewFSBlobStore(cfg.BlobDir)
	if err != nil {
		return nil, fmt.Errorf("opening blob store: %w", err)
	}

	var mail mailer.Mailer = mailer.Nop{}
	if cfg.SMTPHost != "" {
		smtp, err := mailer.NewSMTP(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUser, cfg.SMTPPassword, cfg.MailFrom)
		if err != nil {
			return nil, fmt.Errorf("configuring mailer: %w", err)
		}
		mail = smtp
	}

	hub := ws.NewHub(logger)
	tokens := auth.NewTokenIssuer(cfg.JWTSecret, "clinerva")

	auditSvc := audit.NewService(audit.NewRepo(pool), logger)
	notifSvc := notification.NewService(notification.NewRepo(pool), hub, logger)
	identitySvc := identity.NewService(identity.NewRepo(pool), tokens, blobs, auditSvc, cfg.SessionDuration, cfg.FreshLoginAge, logger)
	patientSvc := patient.NewService(patient.NewRepo(pool), blobs, auditSvc)
	catalogSvc := catalog.NewService(catalog.NewRepo(pool), auditSvc, logger)
	apptSvc := appointment.NewService(appointment.NewRepo(pool), notifSvc, mail, cfg.AdminEmails, logger)

	dir := &directory{patients: patientSvc, users: identitySvc, catalogs: catalogSvc}
	consultSvc := consultation.NewService(consultation.NewRepo(pool), identitySvc, apptSvc, dir,
		notifSvc, auditSvc, cfg.ClinicName, logger)
	apptSvc.SetConsultationStarter(consultSvc)

	adminSvc := admin.NewService(pool, cfg.BackupDir, auditSvc, logger)
	dosageClient := dosage.NewClient(cfg.DosageAPIURL, cfg.DosageAPIKey, logger)
	seeder := seed.New(identitySvc, patientSvc, catalogSvc, apptSvc, logger)

	return &app{
		cfg:      cfg,
		logger:   logger,
		hub:      hub,
		tokens:   tokens,
		identity: identitySvc,
		patients: patientSvc,
		catalogs: catalogSvc,
		appts:    apptSvc,
		consults: consultSvc,
		notifs:   notifSvc,
		audit:    auditSvc,
		admin:    adminSvc,
		dosage:   dosageClient,
		seeder:   seeder,
	}, nil
}

func runServer() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger := newLogger(cfg.Env)

	ctx := context.Background()
	pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		logger.Fatal().Err(err).Msg("connecting to database")
	}
	defer pool.Close()
	logger.Info().Msg("connected to database")

	app, err := buildApp(cfg, pool, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("building application")
	}

	metrics.Register()

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(metrics.Instrument())
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete},
		AllowHeaders: []string{"Authorization", "Content-Type", "X-Request-ID"},
	}))

	e.GET("/health", db.HealthHandler(pool))
	e.GET("/metrics", metrics.Handler())

	rateLimit := middleware.RateLimitConfig{
		RequestsPerSecond: cfg.RateLimitRPS,
		BurstSize:         cfg.RateLimitBurst,
	}
	if rateLimit.RequestsPerSecond <= 0 {
		rateLimit = middleware.DefaultRateLimitConfig()
	}

	public := e.Group("/api/v1")
	public.Use(middleware.RateLimit(rateLimit))

	api := e.Group("/api/v1")
	api.Use(middleware.RateLimit(rateLimit))
	api.Use(auth.Middleware(app.tokens, app.identity))

	identity.NewHandler(app.identity).RegisterRoutes(public, api)
	patient.NewHandler(app.patients).RegisterRoutes(api)
	catalog.NewHandler(app.catalogs).RegisterRoutes(api)
	appointment.NewHandler(app.appts).RegisterRoutes(api)
	consultation.NewHandler(app.consults, app.dosage).RegisterRoutes(api)
	notification.NewHandler(app.notifs).RegisterRoutes(api)
	audit.NewHandler(app.audit).RegisterRoutes(api)

	var seedFn admin.SeedFunc
	if cfg.IsDev() {
		seedFn = func(c echo.Context) error {
			return app.seeder.Run(c.Request().Context())
		}
	}
	admin.NewHandler(app.admin, seedFn).RegisterRoutes(api)
	ws.NewHandler(app.hub).RegisterRoutes(api)

	runner, err := jobs.NewRunner(app.identity, app.admin, app.appts, app.notifs, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("scheduling jobs")
	}
	runner.Start()
	defer runner.Stop()

	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Str("env", cfg.Env).Msg("server listening")
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server stopped")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return e.Shutdown(shutdownCtx)
}

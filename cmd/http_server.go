package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	goredis "github.com/redis/go-redis/v9"
	"github.com/segmentio/kafka-go"
	"github.com/spf13/cobra"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/frahmantamala/course-checkout/internal"
	"github.com/frahmantamala/course-checkout/internal/auth"
	"github.com/frahmantamala/course-checkout/internal/core/events"
	"github.com/frahmantamala/course-checkout/internal/enrollment"
	enrollmentpg "github.com/frahmantamala/course-checkout/internal/enrollment/postgres"
	"github.com/frahmantamala/course-checkout/internal/notification"
	"github.com/frahmantamala/course-checkout/internal/payment"
	paymentpg "github.com/frahmantamala/course-checkout/internal/payment/postgres"
	paymentredis "github.com/frahmantamala/course-checkout/internal/payment/redis"
	"github.com/frahmantamala/course-checkout/internal/paymentgateway"
	"github.com/frahmantamala/course-checkout/internal/telemetry"
	"github.com/frahmantamala/course-checkout/internal/transport/rest"
	"github.com/frahmantamala/course-checkout/pkg/logger"
)

const sweepInterval = time.Minute

var httpServerCmd = &cobra.Command{
	Use:   "server",
	Short: "Start HTTP server",
	Long:  `Start the HTTP server to handle checkout API requests`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return startHTTPServer()
	},
}

type Dependencies struct {
	Config  *internal.Config
	DB      *sqlx.DB
	Gorm    *gorm.DB
	Redis   *goredis.Client
	Kafka   *kafka.Writer
	Bus     *events.EventBus
	Pool    *paymentgateway.Pool
	Service *payment.Service
	Router  *chi.Mux
	Logger  *slog.Logger

	shutdownTracing telemetry.ShutdownFunc
}

func startHTTPServer() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	deps, err := initializeDependencies(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize dependencies: %v\n", err)
		return err
	}

	go deps.Service.Registry().Run(ctx, sweepInterval, deps.Service.OnEvict)

	addr := fmt.Sprintf(":%d", deps.Config.Server.Port)
	deps.Logger.Info("Starting HTTP server", "address", addr, "version", Version)

	server := &http.Server{
		Addr:              addr,
		Handler:           deps.Router,
		ReadHeaderTimeout: deps.Config.Server.ReadHeaderTimeout,
		ReadTimeout:       deps.Config.Server.ReadTimeout,
		WriteTimeout:      deps.Config.Server.WriteTimeout,
		IdleTimeout:       deps.Config.Server.IdleTimeout,
	}

	serverErrChan := make(chan error, 1)
	go func() {
		serverErrChan <- server.ListenAndServe()
	}()

	var runErr error
	select {
	case <-ctx.Done():
		deps.Logger.Info("Received signal, shutting down...")
	case err := <-serverErrChan:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			deps.Logger.Error("Server failed to start", "error", err)
			runErr = err
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		deps.Logger.Error("Server shutdown error", "error", err)
	}
	deps.close(shutdownCtx)

	deps.Logger.Info("Server stopped")
	return runErr
}

// close stops background work in dependency order: payments, then events, then stores.
func (d *Dependencies) close(ctx context.Context) {
	d.Pool.Shutdown()
	if err := d.Bus.Drain(ctx); err != nil {
		d.Logger.Error("event drain error", "error", err)
	}
	if d.Kafka != nil {
		if err := d.Kafka.Close(); err != nil {
			d.Logger.Error("kafka writer close error", "error", err)
		}
	}
	if d.Redis != nil {
		if err := d.Redis.Close(); err != nil {
			d.Logger.Error("redis close error", "error", err)
		}
	}
	if d.shutdownTracing != nil {
		if err := d.shutdownTracing(ctx); err != nil {
			d.Logger.Error("tracer shutdown error", "error", err)
		}
	}
	if err := d.DB.Close(); err != nil {
		d.Logger.Error("Database close error", "error", err)
	}
}

func initializeDependencies(ctx context.Context) (*Dependencies, error) {
	config, err := loadConfig(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	lg := logger.LoggerWrapper()

	db, err := initDB(config.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	gdb, err := initGorm(db)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize gorm: %w", err)
	}

	deps := &Dependencies{
		Config: config,
		DB:     db,
		Gorm:   gdb,
		Bus:    events.NewEventBus(lg),
		Logger: lg,
	}

	shutdownTracing, err := telemetry.Init(ctx, config.Observability.Tracing, Version, lg)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize tracing: %w", err)
	}
	deps.shutdownTracing = shutdownTracing

	var locker payment.Locker
	if config.Redis.URL != "" {
		client, err := paymentredis.NewClient(ctx, config.Redis.URL)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
		deps.Redis = client
		locker = paymentredis.NewLocker(client)
	}

	if len(config.Kafka.Brokers) > 0 {
		deps.Kafka = events.NewKafkaWriter(config.Kafka.Brokers, config.Kafka.Topic)
		events.NewKafkaForwarder(deps.Kafka, lg).Register(deps.Bus)
	}

	formatter := payment.NewAmountFormatter(config.Payment.Locale, config.Payment.CurrencySymbol)
	payment.NewEventHandler(notification.NewReceiptSender(config.Email, lg), formatter, lg).
		RegisterEventHandlers(deps.Bus)

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	enrollments := enrollment.NewService(enrollmentpg.NewEnrollmentRepository(db), lg)
	transactions := paymentpg.NewTransactionRepository(gdb)
	reconciler := payment.NewReconciler(
		transactions,
		enrollments,
		config.Payment.CommitRetries,
		config.Payment.CommitRetryDelay,
		lg,
	)
	gateway := paymentgateway.NewSimulator(paymentgateway.ConfigFromPayment(config.Payment), lg)
	deps.Pool = paymentgateway.NewPool(paymentgateway.PoolConfig{
		MaxWorkers:   config.Payment.MaxWorkers,
		JobQueueSize: config.Payment.JobQueueSize,
	}, lg)

	deps.Service = payment.NewService(payment.ServiceDeps{
		Enrollments: enrollments,
		Initializer: gateway,
		Gateway:     gateway,
		Committer:   reconciler,
		History:     transactions,
		Runner:      deps.Pool,
		Locker:      locker,
		Registry:    payment.NewRegistry(config.Payment.SessionTTL, lg),
		Publisher:   deps.Bus,
		Metrics:     payment.NewMetrics(registry),
		Config:      config.Payment,
		Logger:      lg,
	})

	checks := map[string]rest.PingFunc{"postgres": db.PingContext}
	if deps.Redis != nil {
		checks["redis"] = func(ctx context.Context) error { return deps.Redis.Ping(ctx).Err() }
	}

	routes := rest.Dependencies{
		Checkout: payment.NewHandler(deps.Service, lg),
		Tokens:   auth.NewJWTTokenGenerator(config.Security),
		Health:   rest.NewHealthHandler(checks),
		Tracing:  config.Observability.Tracing.Enabled,

		AllowedOrigins: config.Server.AllowedOrigins,
	}
	if config.Observability.Metrics.Enabled {
		routes.Metrics = promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
		routes.MetricsPath = config.Observability.Metrics.Path
	}

	deps.Router = chi.NewRouter()
	rest.RegisterAllRoutes(deps.Router, routes, lg)

	return deps, nil
}

// initDB initializes the database connection
func initDB(cfg internal.DatabaseConfig) (*sqlx.DB, error) {
	const driver = "pgx"

	dbConn, err := sqlx.Connect(driver, cfg.Source)
	if err != nil {
		return nil, fmt.Errorf("failed to open db connection: %w", err)
	}

	dbConn.SetMaxIdleConns(cfg.MaxIdleConns)
	dbConn.SetMaxOpenConns(cfg.MaxOpenConns)
	dbConn.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	dbConn.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	if err := dbConn.Ping(); err != nil {
		_ = dbConn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return dbConn, nil
}

// initGorm shares the sqlx pool with gorm.
func initGorm(db *sqlx.DB) (*gorm.DB, error) {
	return gorm.Open(postgres.New(postgres.Config{Conn: db.DB}), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Warn),
	})
}

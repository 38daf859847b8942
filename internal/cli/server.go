package cli

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"github.com/uptrace/bun"

	"hr-testing-service/internal/app"
	"hr-testing-service/internal/config"
	"hr-testing-service/internal/domain"
	"hr-testing-service/internal/infra/memory"
	"hr-testing-service/internal/infra/postgres"
	redisinfra "hr-testing-service/internal/infra/redis"
	transport "hr-testing-service/internal/transport/http"
)

// NewStartCmd builds the CLI subcommand to start the server.
func NewStartCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the testing service",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), *configPath, *port)
		},
	}
}

func runServer(ctx context.Context, configPath, portFlag string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	logger := newLogger(cfg)
	for _, w := range cfg.Warnings() {
		logger.Warn("config", "warning", w)
	}

	finalPort := portFlag
	if finalPort == "" {
		finalPort = cfg.Server.Port
	}
	if finalPort == "" {
		finalPort = "8080"
	}

	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer redisClient.Close()
		if err := redisClient.Ping(ctx).Err(); err != nil {
			return err
		}
	}

	var (
		db   *bun.DB
		pool *pgxpool.Pool
	)
	if cfg.Postgres.URL != "" {
		db, err = openBunDB(cfg)
		if err != nil {
			return err
		}
		defer db.Close()
		if err := migrateUp(ctx, db, logger); err != nil {
			return err
		}
		pool, err = pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return err
		}
		defer pool.Close()
	}

	loader, err := catalogLoader(cfg, pool, logger)
	if err != nil {
		return err
	}

	catalogTTL := config.TTLDuration(cfg.Catalog.TTL, 10*time.Minute)
	var catalog app.Catalog
	if redisClient != nil {
		catalog = redisinfra.NewCatalogRepository(redisClient, loader, catalogTTL)
	} else {
		catalog = memory.NewCatalogRepository(loader, catalogTTL)
	}

	var store app.AttemptStore
	if db != nil {
		store = postgres.NewAttemptStore(db)
	} else {
		logger.Warn("postgres not configured, attempts are kept in memory")
		store = memory.NewAttemptStore()
	}

	var locker app.Locker = app.NewKeyedLocker()
	if cfg.Review.Lock == "redis" {
		locker = redisinfra.NewAttemptLocker(redisClient, config.TTLDuration(cfg.Review.LockTTL, 10*time.Second))
	}

	broadcaster := memory.NewBroadcaster()
	notifiers := app.Notifiers{broadcaster}
	if redisClient != nil {
		notifiers = append(notifiers, redisinfra.NewPublisher(redisClient, cfg.Notifier.RedisChannel))
	}
	var eventLog *postgres.EventLog
	if db != nil {
		eventLog = postgres.NewEventLog(db)
		notifiers = append(notifiers, eventLog)
	}

	grader := app.NewAttemptGrader(catalog, store, logger)
	reviews := app.NewReviewCoordinator(catalog, store, locker, notifiers, logger)
	analytics := app.NewAnalyticsAggregator(catalog, store, cfg.Analytics.ScoreBuckets)

	api := transport.NewHandler(grader, reviews, analytics, logger)
	if eventLog != nil {
		api.WithEvents(eventLog)
	}
	router := transport.NewRouter(api, transport.NewWSHandler(broadcaster, logger))

	server := &http.Server{
		Addr:        ":" + finalPort,
		Handler:     router,
		ReadTimeout: 15 * time.Second,
	}

	go func() {
		logger.Info("starting testing service", "port", finalPort, "postgres", db != nil, "redis", redisClient != nil)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("failed to start server", "error", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-stop:
		logger.Info("shutting down server")
	case <-ctx.Done():
		logger.Info("context canceled, shutting down server")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), config.TTLDuration(cfg.Server.ShutdownTimeout, 5*time.Second))
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

// catalogLoader prefers Postgres, then the configured YAML file, then the built-in sample.
func catalogLoader(cfg config.Config, pool *pgxpool.Pool, logger *slog.Logger) (memory.CatalogLoader, error) {
	if pool != nil {
		return postgres.NewCatalogLoader(pool), nil
	}
	if cfg.Catalog.File != "" {
		loader, err := memory.LoadCatalogFile(cfg.Catalog.File)
		if err != nil {
			return nil, err
		}
		logger.Info("catalog loaded from file", "file", cfg.Catalog.File)
		return loader, nil
	}
	logger.Warn("no catalog configured, serving the sample test")
	return memory.NewStaticCatalogLoader(sampleCatalog()...), nil
}

// sampleCatalog is a single demo test for running without any backing store.
func sampleCatalog() []domain.TestDefinition {
	return []domain.TestDefinition{
		{
			Test:     domain.Test{ID: 1, Name: "Company onboarding", IsActive: true},
			Settings: domain.TestSettings{TestID: 1, DurationMinutes: 10, PassingScore: 1},
			Questions: []domain.Question{
				{
					ID:               1,
					TestID:           1,
					Text:             "Who approves vacation requests?",
					Type:             domain.QuestionCheckbox,
					CorrectOptionIDs: []int64{2},
					Options: []domain.Option{
						{ID: 1, QuestionID: 1, Text: "HR department only"},
						{ID: 2, QuestionID: 1, Text: "Line manager"},
					},
				},
				{
					ID:     2,
					TestID: 1,
					Text:   "Describe how you would report a security incident.",
					Type:   domain.QuestionTextInput,
				},
			},
		},
	}
}

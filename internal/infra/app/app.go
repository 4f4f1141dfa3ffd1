package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/nexosupport/access-service/internal/core/port"
	"github.com/nexosupport/access-service/internal/infra/config"
	"github.com/nexosupport/access-service/internal/infra/database"
	kafkainfra "github.com/nexosupport/access-service/internal/infra/kafka"
	"github.com/nexosupport/access-service/internal/infra/logger"
	redisinfra "github.com/nexosupport/access-service/internal/infra/redis"
	"github.com/nexosupport/access-service/internal/infra/telemetry"
	postgresrepo "github.com/nexosupport/access-service/internal/repository/postgres"
	redisrepo "github.com/nexosupport/access-service/internal/repository/redis"
	"github.com/nexosupport/access-service/internal/transport/http/middleware"
	"github.com/nexosupport/access-service/internal/transport/http/routes"
	"github.com/nexosupport/access-service/internal/usecase"
)

type Application struct {
	cfg      *config.AppConfig
	engine   *gin.Engine
	logger   *zap.Logger
	pool     *pgxpool.Pool
	redis    *redisinfra.Client
	producer *kafkainfra.Producer
}

func New(ctx context.Context, cfg *config.AppConfig) (*Application, error) {
	log, err := logger.New(cfg.App.Env)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	provider, err := telemetry.Attach(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("init telemetry: %w", err)
	}

	pool, err := database.NewPostgresPool(ctx, cfg.Postgres, log)
	if err != nil {
		return nil, fmt.Errorf("init postgres: %w", err)
	}

	redisClient, err := redisinfra.NewClient(cfg.Redis, log)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("init redis: %w", err)
	}

	verdictCache := redisrepo.NewVerdictCache(redisClient.Client(), cfg.Redis.VerdictPrefix, cfg.Redis.VerdictTTL)

	repos := postgresrepo.NewRepositories(pool)

	var eventPublisher port.EventPublisher
	var producer *kafkainfra.Producer
	if cfg.Kafka.Enabled && len(cfg.Kafka.Brokers) > 0 {
		producer, err = kafkainfra.NewProducer(cfg.Kafka, log)
		if err != nil {
			log.Warn("failed to init kafka producer, using stub publisher", zap.Error(err))
			eventPublisher = kafkainfra.NewStubPublisher(log)
		} else {
			eventPublisher = kafkainfra.NewEventPublisher(producer, cfg.App, log)
			log.Info("kafka event publisher initialized", zap.Strings("brokers", cfg.Kafka.Brokers))
		}
	} else {
		log.Info("kafka disabled, using stub publisher")
		eventPublisher = kafkainfra.NewStubPublisher(log)
	}

	auditService := usecase.NewAuditService(repos.Audit, log).
		WithLimits(cfg.Audit.DefaultLimit, cfg.Audit.MaxLimit)
	contextService := usecase.NewContextService(repos.Contexts, log)
	roleService := usecase.NewRoleService(repos.Roles, verdictCache, auditService, eventPublisher, log)
	assignmentService := usecase.NewAssignmentService(repos.Assignments, repos.Roles, verdictCache, auditService, eventPublisher, log)
	accessService := usecase.NewAccessService(repos.Assignments, repos.Roles, verdictCache, log)

	bootstrapper := usecase.NewBootstrapper(contextService, roleService, log)
	if err := bootstrapper.Run(ctx); err != nil {
		closeProducer(producer)
		_ = redisClient.Close()
		pool.Close()
		return nil, fmt.Errorf("seed defaults: %w", err)
	}

	metrics, err := middleware.NewHTTPMetrics(middleware.HTTPMetricsOptions{})
	if err != nil {
		closeProducer(producer)
		_ = redisClient.Close()
		pool.Close()
		return nil, fmt.Errorf("init http metrics: %w", err)
	}

	engine := routes.Register(routes.Dependencies{
		Config:    cfg,
		Logger:    log,
		Telemetry: provider,
		Metrics:   metrics,
		Database:  pool,
		Cache:     redisClient,
		Services: routes.ServiceSet{
			Contexts:    contextService,
			Roles:       roleService,
			Assignments: assignmentService,
			Access:      accessService,
			Audit:       auditService,
		},
	})

	return &Application{
		cfg:      cfg,
		engine:   engine,
		logger:   log,
		pool:     pool,
		redis:    redisClient,
		producer: producer,
	}, nil
}

func (a *Application) Run(ctx context.Context) error {
	defer func() {
		_ = a.logger.Sync()
	}()
	defer func() {
		if a.pool != nil {
			a.pool.Close()
		}
	}()
	defer func() {
		if a.redis != nil {
			_ = a.redis.Close()
		}
	}()
	defer func() {
		if a.producer != nil {
			_ = a.producer.Close()
		}
	}()

	srv := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", a.cfg.App.Host, a.cfg.App.Port),
		Handler:           a.engine,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	a.logger.Info("starting access API",
		zap.String("env", a.cfg.App.Env),
		zap.String("address", srv.Addr),
	)

	serverErrCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErrCh <- fmt.Errorf("run server: %w", err)
		}
	}()

	var metricsSrv *http.Server
	if a.cfg.Telemetry.MetricsPort > 0 {
		metricsMux := http.NewServeMux()
		metricsMux.Handle("/metrics", promhttp.Handler())
		metricsSrv = &http.Server{
			Addr:              fmt.Sprintf("%s:%d", a.cfg.App.Host, a.cfg.Telemetry.MetricsPort),
			Handler:           metricsMux,
			ReadHeaderTimeout: 10 * time.Second,
		}

		a.logger.Info("starting metrics endpoint", zap.String("address", metricsSrv.Addr))
		go func() {
			if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				a.logger.Warn("metrics server stopped", zap.Error(err))
			}
		}()
	}

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if metricsSrv != nil {
			_ = metricsSrv.Shutdown(shutdownCtx)
		}
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown server: %w", err)
		}
		return nil
	case err := <-serverErrCh:
		if metricsSrv != nil {
			_ = metricsSrv.Close()
		}
		return err
	}
}

// closeProducer releases the Kafka producer on init failure paths. It is nil
// when Kafka is disabled or the stub publisher is in use.
func closeProducer(producer *kafkainfra.Producer) {
	if producer == nil {
		return
	}
	_ = producer.Close()
}

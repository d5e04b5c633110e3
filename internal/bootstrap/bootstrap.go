// Package bootstrap turns a loaded config into the wired components shared
// by the API and worker binaries.
package bootstrap

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/cuongbtq/assessment-pipeline/internal/api/handler"
	"github.com/cuongbtq/assessment-pipeline/internal/backoff"
	"github.com/cuongbtq/assessment-pipeline/internal/config"
	"github.com/cuongbtq/assessment-pipeline/internal/metrics"
	"github.com/cuongbtq/assessment-pipeline/internal/notify"
	"github.com/cuongbtq/assessment-pipeline/internal/pipeline"
	"github.com/cuongbtq/assessment-pipeline/internal/quota"
	"github.com/cuongbtq/assessment-pipeline/internal/scoring"
	"github.com/cuongbtq/assessment-pipeline/internal/storage"
	"github.com/cuongbtq/assessment-pipeline/internal/storage/memory"
	"github.com/cuongbtq/assessment-pipeline/internal/storage/postgres"
	redisstore "github.com/cuongbtq/assessment-pipeline/internal/storage/redis"
	"github.com/cuongbtq/assessment-pipeline/internal/worker"
	"github.com/cuongbtq/assessment-pipeline/shared/logger"
	"github.com/cuongbtq/assessment-pipeline/shared/postgresql"
	"github.com/cuongbtq/assessment-pipeline/shared/rabbitmq"
	"github.com/cuongbtq/assessment-pipeline/shared/redis"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Components holds the stores and clients built from a Config
type Components struct {
	Logger        *slog.Logger
	Registry      *prometheus.Registry
	Metrics       metrics.Sink
	QuotaStore    storage.QuotaStore
	Queue         storage.JobQueue
	Results       storage.ResultLog
	Notifications storage.NotificationSink
	DeadLetters   storage.DeadLetterStore
	Forwarder     notify.Forwarder
	HealthChecks  map[string]handler.HealthCheck

	cfg     *config.Config
	db      *postgresql.Client
	closers []func() error
}

// NewLogger builds the application logger from the logging section
func NewLogger(cfg *config.LoggingConfig) (*logger.Logger, error) {
	return logger.New(&logger.Config{
		Level:        cfg.Level,
		Format:       cfg.Format,
		Output:       cfg.Output,
		EnableSource: cfg.EnableCaller,
		TimeFormat:   time.RFC3339,
	})
}

// Build connects to the configured backends and constructs the stores.
// On error every client opened so far is closed.
func Build(ctx context.Context, cfg *config.Config, log *slog.Logger) (*Components, error) {
	c := &Components{
		Logger:       log,
		HealthChecks: make(map[string]handler.HealthCheck),
		cfg:          cfg,
	}

	c.initMetrics()

	steps := []func(context.Context) error{
		c.initPostgres,
		c.initStorage,
		c.initQuotaStore,
		c.initForwarder,
	}
	for _, step := range steps {
		if err := step(ctx); err != nil {
			c.Close()
			return nil, err
		}
	}

	return c, nil
}

func (c *Components) initMetrics() {
	if !c.cfg.Metrics.Enabled {
		c.Metrics = metrics.NoopSink{}
		return
	}

	c.Registry = prometheus.NewRegistry()
	c.Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	c.Metrics = metrics.NewPrometheusSink(c.Registry, c.Logger)
}

func (c *Components) initPostgres(ctx context.Context) error {
	if !c.cfg.UsesPostgres() {
		return nil
	}

	db := c.cfg.Database
	client, err := postgresql.NewClient(&postgresql.Config{
		Host:            db.Host,
		Port:            db.Port,
		User:            db.User,
		Password:        db.Password,
		Database:        db.Database,
		SSLMode:         db.SSLMode,
		MaxOpenConns:    db.MaxOpenConns,
		MaxIdleConns:    db.MaxIdleConns,
		ConnMaxLifetime: db.ConnMaxLifetime,
		ConnMaxIdleTime: db.ConnMaxIdleTime,
	}, c.Logger)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	c.db = client
	c.closers = append(c.closers, func() error {
		client.LogStats()
		return client.Close()
	})
	c.HealthChecks["postgres"] = client.HealthCheck

	if c.cfg.Storage.Migrate {
		if err := postgres.Migrate(ctx, client.GetDB()); err != nil {
			return err
		}
		c.Logger.Info("Database schema is up to date")
	}
	return nil
}

func (c *Components) initStorage(context.Context) error {
	switch c.cfg.Storage.Driver {
	case config.DriverPostgres:
		db := c.db.GetDB()
		c.Queue = postgres.NewQueue(db, c.Logger)
		c.Results = postgres.NewResultLog(db)
		c.Notifications = postgres.NewNotificationSink(db)
		c.DeadLetters = postgres.NewDeadLetterStore(db)
	case config.DriverMemory, "":
		c.Queue = memory.NewQueue()
		c.Results = memory.NewResultLog()
		c.Notifications = memory.NewNotificationSink()
		c.DeadLetters = memory.NewDeadLetterStore()
	default:
		return fmt.Errorf("unsupported storage driver: %q", c.cfg.Storage.Driver)
	}

	c.Logger.Info("Storage initialized", slog.String("driver", c.cfg.Storage.Driver))
	return nil
}

func (c *Components) initQuotaStore(context.Context) error {
	switch c.cfg.Quota.Driver {
	case config.DriverPostgres:
		c.QuotaStore = postgres.NewQuotaStore(c.db.GetDB(), c.Logger)
	case config.DriverRedis:
		rc := c.cfg.Redis
		client, err := redis.NewClient(&redis.Config{
			Addr:         rc.Addr,
			Password:     rc.Password,
			DB:           rc.DB,
			DialTimeout:  rc.DialTimeout,
			ReadTimeout:  rc.ReadTimeout,
			WriteTimeout: rc.WriteTimeout,
			PoolSize:     rc.PoolSize,
		}, c.Logger)
		if err != nil {
			return fmt.Errorf("failed to initialize Redis: %w", err)
		}
		c.closers = append(c.closers, client.Close)
		c.HealthChecks["redis"] = client.HealthCheck
		c.QuotaStore = redisstore.NewQuotaStore(client.GetClient(), c.Logger, c.cfg.Quota.KeyPrefix, c.cfg.Quota.KeyTTL)
	case config.DriverMemory, "":
		c.QuotaStore = memory.NewQuotaStore()
	default:
		return fmt.Errorf("unsupported quota driver: %q", c.cfg.Quota.Driver)
	}

	c.Logger.Info("Quota store initialized", slog.String("driver", c.cfg.Quota.Driver))
	return nil
}

func (c *Components) initForwarder(context.Context) error {
	rc := c.cfg.RabbitMQ
	if !rc.Enabled {
		c.Forwarder = notify.NewLogForwarder(c.Logger)
		return nil
	}

	client, err := rabbitmq.NewClient(&rabbitmq.Config{
		Host:               rc.Host,
		Port:               rc.Port,
		User:               rc.User,
		Password:           rc.Password,
		VHost:              rc.VHost,
		ExchangeName:       rc.Exchange.Name,
		ExchangeType:       rc.Exchange.Type,
		ExchangeDurable:    rc.Exchange.Durable,
		ExchangeAutoDelete: rc.Exchange.AutoDelete,
		QueueName:          rc.Queue.Name,
		QueueDurable:       rc.Queue.Durable,
		QueueAutoDelete:    rc.Queue.AutoDelete,
		QueueExclusive:     rc.Queue.Exclusive,
		RoutingKey:         rc.RoutingKey,
		RetryAttempts:      rc.Connection.RetryAttempts,
		RetryInterval:      rc.Connection.RetryInterval,
		Heartbeat:          rc.Connection.Heartbeat,
		ConnectionTimeout:  rc.Connection.ConnectionTimeout,
		PublishRetries:     rc.Publish.RetryAttempts,
		PublishRetryDelay:  rc.Publish.RetryInterval,
		PublishBackoffMult: rc.Publish.BackoffMultiplier,
	}, c.Logger)
	if err != nil {
		return fmt.Errorf("failed to initialize RabbitMQ: %w", err)
	}
	c.closers = append(c.closers, client.Close)
	c.HealthChecks["rabbitmq"] = client.HealthCheck
	c.Forwarder = notify.NewRabbitForwarder(client, c.Logger)
	return nil
}

// NewPolicy builds the quota policy over the configured store
func (c *Components) NewPolicy() *quota.Policy {
	return quota.NewPolicy(&quota.Config{
		Store:      c.QuotaStore,
		Logger:     c.Logger,
		Metrics:    c.Metrics,
		DailyLimit: c.cfg.Quota.DailyLimit,
	})
}

// NewService builds the pipeline service used by the HTTP API
func (c *Components) NewService() *pipeline.Service {
	return pipeline.NewService(&pipeline.Config{
		Logger:        c.Logger,
		Policy:        c.NewPolicy(),
		Queue:         c.Queue,
		Results:       c.Results,
		Notifications: c.Notifications,
		DeadLetters:   c.DeadLetters,
		Metrics:       c.Metrics,
		MaxRetries:    c.cfg.Worker.MaxRetries,
	})
}

// NewWorker builds a worker pool running the analysis processor
func (c *Components) NewWorker() *worker.Worker {
	wc := c.cfg.Worker

	var strategy backoff.Strategy
	if wc.Backoff.Jitter {
		strategy = backoff.NewExponentialWithJitter(wc.Backoff.Initial, wc.Backoff.Max)
	} else {
		strategy = backoff.NewExponential(wc.Backoff.Initial, wc.Backoff.Max)
	}

	return worker.NewWorker(&worker.Config{
		Logger:        c.Logger,
		Queue:         c.Queue,
		Results:       c.Results,
		Notifications: c.Notifications,
		DeadLetters:   c.DeadLetters,
		Forwarder:     c.Forwarder,
		Processor:     scoring.NewAnalysisProcessor(c.Logger, wc.ProcessingDelay),
		Metrics:       c.Metrics,
		Backoff:       strategy,
		WorkerID:      wc.ID,
		Concurrency:   wc.Concurrency,
		PollInterval:  wc.PollInterval,
		JobTimeout:    wc.JobTimeout,
	})
}

// MetricsHandler serves the Prometheus registry, or nil when metrics are disabled
func (c *Components) MetricsHandler() http.Handler {
	if c.Registry == nil {
		return nil
	}
	return promhttp.HandlerFor(c.Registry, promhttp.HandlerOpts{})
}

// Close releases clients in reverse order of creation
func (c *Components) Close() {
	for i := len(c.closers) - 1; i >= 0; i-- {
		if err := c.closers[i](); err != nil {
			c.Logger.Error("Failed to close client", slog.Any("error", err))
		}
	}
	c.closers = nil
}

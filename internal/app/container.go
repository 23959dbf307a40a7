package app

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"github.com/acme/ai-call-dispatch/internal/config"
	"github.com/acme/ai-call-dispatch/internal/dispatch"
	"github.com/acme/ai-call-dispatch/internal/infra/db"
	"github.com/acme/ai-call-dispatch/internal/infra/redis"
	"github.com/acme/ai-call-dispatch/internal/queue"
	"github.com/acme/ai-call-dispatch/internal/repository"
	pgrepo "github.com/acme/ai-call-dispatch/internal/repository/postgres"
	scyllarepo "github.com/acme/ai-call-dispatch/internal/repository/scylla"
	campaignsvc "github.com/acme/ai-call-dispatch/internal/service/campaign"
	"github.com/acme/ai-call-dispatch/internal/service/concurrency"
	"github.com/acme/ai-call-dispatch/internal/session"
	telephonySvc "github.com/acme/ai-call-dispatch/internal/telephony"
	telephonyMock "github.com/acme/ai-call-dispatch/internal/telephony/mock"
	telephonyRest "github.com/acme/ai-call-dispatch/internal/telephony/rest"
	"github.com/acme/ai-call-dispatch/pkg/logger"
)

// Container wires together shared infrastructure dependencies.
type Container struct {
	Config *config.Config
	Logger *logger.Logger

	Postgres *db.Postgres
	Scylla   *db.Scylla
	Redis    *redis.Client
	Kafka    *queue.Kafka

	// lazily initialised components
	components struct {
		once         sync.Once
		err          error
		repositories *repositories
		services     *services
		publishers   *publishers
		providers    *providers
		locks        *locks
		dispatcher   *dispatch.Dispatcher
		reconciler   *dispatch.Reconciler
	}
}

type repositories struct {
	Campaign repository.CampaignStore
	Leads    repository.LeadStore
	Tenants  repository.TenantConfigStore
	Attempts repository.AttemptLog
}

type services struct {
	Campaign *campaignsvc.Service
}

type publishers struct {
	Dispatch   *queue.DispatchPublisher
	LeadStatus *queue.LeadStatusPublisher
}

type providers struct {
	Telephony telephonySvc.Provider
	Session   session.Provisioner
}

type locks struct {
	Run concurrency.RunLock
}

// Build constructs a container for the given configuration path.
func Build(ctx context.Context, configPath string) (*Container, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	lg, err := logger.New(cfg.App.Env)
	if err != nil {
		return nil, err
	}

	pg, err := db.NewPostgres(ctx, cfg.Postgres)
	if err != nil {
		return nil, fmt.Errorf("bootstrap postgres: %w", err)
	}

	scylla, err := db.NewScylla(cfg.Scylla)
	if err != nil {
		return nil, fmt.Errorf("bootstrap scylla: %w", err)
	}

	redisClient, err := redis.NewClient(ctx, cfg.Redis)
	if err != nil {
		return nil, fmt.Errorf("bootstrap redis: %w", err)
	}

	kafka, err := queue.NewKafka(cfg.Kafka)
	if err != nil {
		return nil, fmt.Errorf("bootstrap kafka: %w", err)
	}

	container := &Container{
		Config:   cfg,
		Logger:   lg,
		Postgres: pg,
		Scylla:   scylla,
		Redis:    redisClient,
		Kafka:    kafka,
	}

	return container, nil
}

func (c *Container) initComponents() {
	c.components.once.Do(func() {
		repos := &repositories{
			Campaign: pgrepo.NewCampaignRepository(c.Postgres.DB()),
			Leads:    pgrepo.NewLeadRepository(c.Postgres.DB()),
			Tenants:  pgrepo.NewTenantConfigRepository(c.Postgres.DB()),
			Attempts: scyllarepo.NewAttemptLog(c.Scylla.Session()),
		}

		pubs := &publishers{
			Dispatch:   queue.NewDispatchPublisher(c.Kafka, c.Config.Kafka.DispatchTopic),
			LeadStatus: queue.NewLeadStatusPublisher(c.Kafka, c.Config.Kafka.LeadStatusTopic),
		}

		provs := c.buildProviders(repos.Tenants)

		lks := &locks{
			Run: concurrency.NewRedisRunLock(c.Redis.Inner(), c.Config.Dispatch.RunLockPrefix, c.Config.Dispatch.RunLockTTL, c.Logger),
		}

		svcs := &services{
			Campaign: campaignsvc.NewService(
				repos.Campaign,
				repos.Leads,
				repos.Attempts,
				pubs.Dispatch,
				c.Config.Dispatch.MaxAttempts,
				c.Logger,
			),
		}

		c.components.repositories = repos
		c.components.publishers = pubs
		c.components.services = svcs
		c.components.providers = provs
		c.components.locks = lks

		metrics, err := dispatch.NewMetrics()
		if err != nil {
			c.components.err = fmt.Errorf("dispatch metrics: %w", err)
			return
		}

		c.components.dispatcher = dispatch.NewDispatcher(dispatch.Dependencies{
			Leads:       repos.Leads,
			Gate:        dispatch.NewGate(repos.Campaign, c.Logger),
			Provisioner: provs.Session,
			Telephony:   provs.Telephony,
			Lock:        lks.Run,
			Attempts:    repos.Attempts,
			Events:      pubs.LeadStatus,
			Metrics:     metrics,
			Logger:      c.Logger,
		}, dispatch.OptionsFromConfig(c.Config.Dispatch))
		c.components.reconciler = dispatch.NewReconciler(repos.Leads, repos.Tenants, provs.Telephony, pubs.LeadStatus,
			c.Config.Dispatch.MaxPollDuration, c.Logger)
	})
}

func (c *Container) buildProviders(tenants repository.TenantConfigStore) *providers {
	var phone telephonySvc.Provider
	switch c.Config.Telephony.ProviderName {
	case "rest":
		phone = telephonyRest.NewProvider(c.Config.Telephony, &http.Client{Timeout: c.Config.Telephony.RequestTimeout})
	default:
		phone = telephonyMock.NewProvider()
	}

	var requester session.Requester
	switch c.Config.AISession.ProviderName {
	case "rest":
		requester = session.NewHTTPRequester(c.Config.AISession, &http.Client{Timeout: c.Config.AISession.RequestTimeout})
	default:
		requester = session.SimulatedRequester{}
	}

	return &providers{
		Telephony: phone,
		Session:   session.NewTenantProvisioner(tenants, requester),
	}
}

// Repositories exposes initialized repositories.
func (c *Container) Repositories() *repositories {
	c.initComponents()
	return c.components.repositories
}

// Services exposes initialized services.
func (c *Container) Services() *services {
	c.initComponents()
	return c.components.services
}

// Publishers exposes Kafka publishers.
func (c *Container) Publishers() *publishers {
	c.initComponents()
	return c.components.publishers
}

// Providers exposes external providers.
func (c *Container) Providers() *providers {
	c.initComponents()
	return c.components.providers
}

// Locks exposes lock utilities.
func (c *Container) Locks() *locks {
	c.initComponents()
	return c.components.locks
}

// Dispatcher returns the sequential dispatcher.
func (c *Container) Dispatcher() (*dispatch.Dispatcher, error) {
	c.initComponents()
	if c.components.err != nil {
		return nil, c.components.err
	}
	return c.components.dispatcher, nil
}

// Reconciler returns the stale in_progress lead reconciler.
func (c *Container) Reconciler() (*dispatch.Reconciler, error) {
	c.initComponents()
	if c.components.err != nil {
		return nil, c.components.err
	}
	return c.components.reconciler, nil
}

// HealthCheck pings every backing store and returns failures by name.
func (c *Container) HealthCheck(ctx context.Context) map[string]string {
	errs := make(map[string]string)
	if err := c.Postgres.Ping(ctx); err != nil {
		errs["postgres"] = err.Error()
	}
	if err := c.Redis.Ping(ctx); err != nil {
		errs["redis"] = err.Error()
	}
	if err := c.Scylla.Ping(ctx); err != nil {
		errs["scylla"] = err.Error()
	}
	return errs
}

// Close releases all held resources.
func (c *Container) Close(ctx context.Context) error {
	var errs []error
	if p := c.components.publishers; p != nil {
		if p.Dispatch != nil {
			if err := p.Dispatch.Close(); err != nil {
				errs = append(errs, fmt.Errorf("dispatch publisher close: %w", err))
			}
		}
		if p.LeadStatus != nil {
			if err := p.LeadStatus.Close(); err != nil {
				errs = append(errs, fmt.Errorf("lead status publisher close: %w", err))
			}
		}
	}
	if c.Redis != nil {
		if err := c.Redis.Close(); err != nil {
			errs = append(errs, fmt.Errorf("redis close: %w", err))
		}
	}
	if c.Scylla != nil {
		if err := c.Scylla.Close(); err != nil {
			errs = append(errs, fmt.Errorf("scylla close: %w", err))
		}
	}
	if c.Postgres != nil {
		if err := c.Postgres.Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("postgres close: %w", err))
		}
	}
	if c.Logger != nil {
		c.Logger.Sync()
	}
	if len(errs) > 0 {
		return fmt.Errorf("close errors: %v", errs)
	}
	return nil
}

// EnsureTopics ensures required Kafka topics exist.
func (c *Container) EnsureTopics(ctx context.Context) error {
	return c.Kafka.EnsureTopics(ctx, c.Kafka.Topics(), 12, 1)
}

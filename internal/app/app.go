// Package app wires configuration, stores and services into the pieces the
// server and worker processes run.
package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	_ "github.com/lib/pq" // PostgreSQL driver
	"github.com/redis/go-redis/v9"

	"github.com/ignite/audience-core/internal/api"
	"github.com/ignite/audience-core/internal/billing"
	"github.com/ignite/audience-core/internal/config"
	"github.com/ignite/audience-core/internal/mailer"
	"github.com/ignite/audience-core/internal/notify"
	"github.com/ignite/audience-core/internal/pkg/distlock"
	"github.com/ignite/audience-core/internal/pkg/httpretry"
	"github.com/ignite/audience-core/internal/pkg/logger"
	"github.com/ignite/audience-core/internal/repository/postgres"
	"github.com/ignite/audience-core/internal/service/audience"
	"github.com/ignite/audience-core/internal/service/campaign"
	"github.com/ignite/audience-core/internal/service/dedup"
	"github.com/ignite/audience-core/internal/service/lifecycle"
	"github.com/ignite/audience-core/internal/service/requests"
	"github.com/ignite/audience-core/internal/storage"
	"github.com/ignite/audience-core/internal/worker"
)

var log = logger.Named("app")

// ErrNoSQS is returned when a consumer is requested without the sqs driver.
var ErrNoSQS = errors.New("queue driver is not sqs")

// Deps are the external connections an App is built on. Redis and AWS are
// optional: without Redis, leases fall back to PostgreSQL advisory locks and
// progress goes to the log; AWS is required only by the s3, sqs and ses
// drivers.
type Deps struct {
	DB    *sql.DB
	Redis *redis.Client
	AWS   *aws.Config
}

// App holds the wired services.
type App struct {
	Config     *config.Config
	Deps       Deps
	Uploads    storage.Store
	Sink       notify.Sink
	Queue      worker.Queue
	Audience   *audience.Service
	Lifecycle  *lifecycle.Service
	Requests   *requests.Service
	Campaigns  *campaign.Service
	Supervisor *worker.Supervisor

	local     *worker.LocalQueue
	sqsClient *sqs.Client
}

// New opens the connections described by cfg and builds the App.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	logger.SetLevel(logger.ParseLevel(cfg.Log.Level))
	logger.SetRedactPII(cfg.Log.Redact())

	db, err := OpenDB(ctx, cfg.Database)
	if err != nil {
		return nil, err
	}
	deps := Deps{DB: db, Redis: OpenRedis(ctx, cfg.Redis)}

	if needsAWS(cfg) {
		awsCfg, err := storage.LoadAWSConfig(ctx, storage.AWSOptions{
			Region:          cfg.AWS.Region,
			Profile:         cfg.AWS.GetProfile(),
			AccessKeyID:     cfg.AWS.AccessKeyID,
			SecretAccessKey: cfg.AWS.SecretAccessKey,
		})
		if err != nil {
			db.Close()
			return nil, fmt.Errorf("load aws config: %w", err)
		}
		deps.AWS = &awsCfg
	}

	a, err := Build(cfg, deps)
	if err != nil {
		closeDeps(deps)
		return nil, err
	}
	return a, nil
}

func needsAWS(cfg *config.Config) bool {
	return cfg.Storage.Type == "s3" || cfg.Queue.Driver == "sqs" || cfg.Mail.Driver == "ses"
}

// OpenDB opens and pings the PostgreSQL pool.
func OpenDB(ctx context.Context, cfg config.DatabaseConfig) (*sql.DB, error) {
	db, err := sql.Open("postgres", cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(5 * time.Minute)
	db.SetConnMaxIdleTime(time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	log.Info("database connected", "max_open_conns", cfg.MaxOpenConns)
	return db, nil
}

// OpenRedis connects to Redis, or returns nil when it is not configured or
// not reachable.
func OpenRedis(ctx context.Context, cfg config.RedisConfig) *redis.Client {
	if cfg.Addr == "" {
		log.Info("redis not configured, using advisory locks and log progress")
		return nil
	}
	var client *redis.Client
	if opts, err := redis.ParseURL(cfg.Addr); err == nil {
		client = redis.NewClient(opts)
	} else {
		client = redis.NewClient(&redis.Options{Addr: cfg.Addr, Password: cfg.Password, DB: cfg.DB})
	}
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		log.Warn("redis unreachable, using advisory locks and log progress", "addr", cfg.Addr, "error", err)
		client.Close()
		return nil
	}
	log.Info("redis connected", "addr", cfg.Addr)
	return client
}

// Build wires every service over deps.
func Build(cfg *config.Config, deps Deps) (*App, error) {
	if deps.DB == nil {
		return nil, errors.New("app: database is required")
	}
	if needsAWS(cfg) && deps.AWS == nil {
		return nil, errors.New("app: aws config is required for the configured drivers")
	}

	contactRepo := postgres.NewContactRepo(deps.DB)
	companies := postgres.NewCompanyRepo(deps.DB)

	var s3Client storage.S3API
	if cfg.Storage.Type == "s3" {
		s3Client = s3.NewFromConfig(*deps.AWS)
	}
	uploads, err := storage.New(storage.Config{
		Type:      cfg.Storage.Type,
		LocalPath: cfg.Storage.LocalPath,
		Bucket:    cfg.Storage.S3Bucket,
		Prefix:    cfg.Storage.S3Prefix,
	}, s3Client)
	if err != nil {
		return nil, err
	}

	var sink notify.Sink = notify.NewLogSink()
	if deps.Redis != nil {
		sink = notify.NewRedisSink(deps.Redis)
	}

	var mail requests.Mailer = mailer.LogSender{}
	if cfg.Mail.Driver == "ses" {
		mail = mailer.NewSESSender(sesv2.NewFromConfig(*deps.AWS), cfg.Mail.ConfigurationSet)
	}
	templates, err := mailer.NewTemplates()
	if err != nil {
		return nil, err
	}
	requestSvc := requests.NewService(postgres.NewRequestRepo(deps.DB), companies, mail, templates,
		requests.Config{SupportTo: cfg.Mail.SupportTo, From: cfg.Mail.From})

	charger, err := newCharger(cfg.Stripe, companies)
	if err != nil {
		return nil, err
	}
	campaignSvc, err := newCampaigns(cfg.Campaigns, postgres.NewCampaignRepo(deps.DB))
	if err != nil {
		return nil, err
	}

	importer := worker.NewImporter(contactRepo, companies, uploads, charger, campaignSvc, sink, cfg.Import.Ways)
	lease := distlock.NewTenantLease(deps.Redis, deps.DB, cfg.Dedup.LeaseTTL())
	supervisor := worker.NewSupervisor(lease, companies, dedup.NewService(contactRepo), importer, sink)

	a := &App{
		Config:     cfg,
		Deps:       deps,
		Uploads:    uploads,
		Sink:       sink,
		Audience:   audience.NewService(contactRepo, companies, postgres.NewSegmentRepo(deps.DB)),
		Requests:   requestSvc,
		Campaigns:  campaignSvc,
		Supervisor: supervisor,
	}
	switch cfg.Queue.Driver {
	case "sqs":
		a.sqsClient = sqs.NewFromConfig(*deps.AWS)
		a.Queue = worker.NewSQSQueue(a.sqsClient, cfg.Queue.SQSQueueURL)
	default:
		a.local = worker.NewLocalQueue(supervisor, cfg.Queue.LocalWorkers, cfg.Queue.LocalDepth)
		a.Queue = a.local
	}
	a.Lifecycle = lifecycle.NewService(contactRepo, companies, requestSvc, charger, worker.NewSubmitter(a.Queue))
	return a, nil
}

func newCharger(cfg config.StripeConfig, companies billing.CompanyReader) (lifecycle.Charger, error) {
	if cfg.SecretKey == "" {
		log.Warn("stripe not configured, overage is logged only")
		return billing.NewLogCharger(companies), nil
	}
	price, err := cfg.Price()
	if err != nil {
		return nil, err
	}
	charger, err := billing.NewStripeCharger(companies, billing.NewStripeInvoiceItems(cfg.SecretKey),
		billing.Config{PricePerContact: price, Currency: cfg.Currency})
	if err != nil {
		return nil, err
	}
	return charger, nil
}

func newCampaigns(cfg config.CampaignsConfig, repo campaign.Repository) (*campaign.Service, error) {
	if cfg.RunnerURL == "" {
		return campaign.NewService(repo, campaign.LogRunner{}), nil
	}
	client := httpretry.NewRetryClient(&http.Client{Timeout: cfg.Timeout()}, cfg.MaxRetries)
	runner, err := campaign.NewHTTPRunner(cfg.RunnerURL, cfg.Token, client)
	if err != nil {
		return nil, err
	}
	return campaign.NewService(repo, runner), nil
}

// Handlers returns the HTTP handlers over the App's services. Progress
// streaming is only available with Redis.
func (a *App) Handlers() *api.Handlers {
	var progress api.ProgressSource
	if rs, ok := a.Sink.(*notify.RedisSink); ok {
		progress = rs
	}
	return api.NewHandlers(a.Audience, a.Lifecycle, a.Requests, a.Uploads, progress)
}

// StartLocal starts the in-process job pool. It is a no-op for the sqs
// driver.
func (a *App) StartLocal(ctx context.Context) {
	if a.local != nil {
		a.local.Start(ctx)
	}
}

// Consumer returns the SQS consumer that feeds the supervisor.
func (a *App) Consumer() (*worker.SQSConsumer, error) {
	if a.sqsClient == nil {
		return nil, ErrNoSQS
	}
	return worker.NewSQSConsumer(a.sqsClient, a.Config.Queue.SQSQueueURL, a.Supervisor), nil
}

// Close stops the local pool and closes connections.
func (a *App) Close() {
	if a.local != nil {
		a.local.Stop()
	}
	closeDeps(a.Deps)
}

func closeDeps(deps Deps) {
	if deps.Redis != nil {
		deps.Redis.Close()
	}
	if deps.DB != nil {
		deps.DB.Close()
	}
}

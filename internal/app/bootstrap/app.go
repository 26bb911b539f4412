// Package bootstrap wires configuration into stores, clients, services and
// background workers shared by cmd/api and cmd/worker.
package bootstrap

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/wolfman30/pro-marketplace/internal/api/router"
	"github.com/wolfman30/pro-marketplace/internal/availability"
	"github.com/wolfman30/pro-marketplace/internal/bookings"
	appconfig "github.com/wolfman30/pro-marketplace/internal/config"
	"github.com/wolfman30/pro-marketplace/internal/conflict"
	"github.com/wolfman30/pro-marketplace/internal/directory"
	"github.com/wolfman30/pro-marketplace/internal/events"
	"github.com/wolfman30/pro-marketplace/internal/gateway"
	"github.com/wolfman30/pro-marketplace/internal/ledger"
	"github.com/wolfman30/pro-marketplace/internal/money"
	"github.com/wolfman30/pro-marketplace/internal/notify"
	"github.com/wolfman30/pro-marketplace/internal/observability/metrics"
	"github.com/wolfman30/pro-marketplace/internal/pricing"
	"github.com/wolfman30/pro-marketplace/internal/webhooks"
	"github.com/wolfman30/pro-marketplace/pkg/logging"
)

// App holds the wired services of one process.
type App struct {
	Config    *appconfig.Config
	Logger    *logging.Logger
	Storage   Storage
	Directory directory.Directory
	Pricing   *pricing.Provider
	Metrics   *metrics.MarketplaceMetrics

	Availability *availability.Service
	Ledger       *ledger.Ledger
	Bookings     *bookings.Service
	Ingestor     *webhooks.Ingestor
	RetryWorker  *webhooks.RetryWorker
	Deliverer    *events.Deliverer

	pricingWriter  pricing.Writer
	archiver       webhooks.Archiver
	metricsHandler http.Handler
	closers        []func()
}

// DefaultPricing is the configuration in force until an operator stores one.
func DefaultPricing(cfg *appconfig.Config) pricing.Config {
	out := pricing.DefaultConfig()
	out.PlatformFeeBps = cfg.DefaultPlatformFeeBps
	out.BankTransferFeeBps = cfg.DefaultBankTransferFeeBps
	out.MinWithdrawal = money.Cents(cfg.DefaultMinWithdrawalCents)
	out.MaxWithdrawal = money.Cents(cfg.DefaultMaxWithdrawalCents)
	return out
}

// New builds every dependency from cfg. Call Close when done.
func New(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger) (*App, error) {
	if cfg == nil {
		return nil, fmt.Errorf("bootstrap: config is required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	if cfg.IsProduction() && cfg.GatewayProvider != "stripe" {
		return nil, fmt.Errorf("bootstrap: GATEWAY_PROVIDER must be stripe in production")
	}
	app := &App{Config: cfg, Logger: logger}

	storage, dir, closeStorage, err := BuildStorage(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	app.Storage, app.Directory = storage, dir
	app.closers = append(app.closers, closeStorage)

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	app.Metrics = metrics.NewMarketplaceMetrics(reg)
	app.metricsHandler = promhttp.HandlerFor(reg, promhttp.HandlerOpts{})

	app.buildPricing(ctx)

	app.Ledger = ledger.New(storage, app.Pricing, app.Metrics, logger)
	app.Availability = availability.NewService(storage, dir, logger)
	app.Bookings = bookings.NewService(storage, dir, app.Pricing, app.Ledger, logger).
		WithGuard(conflict.NewGuard(app.Metrics)).
		WithGateway(app.buildGateway(), "usd").
		WithMetrics(app.Metrics).
		WithMinNotice(cfg.MinBookingNotice)

	app.Ingestor = webhooks.NewIngestor(storage, app.Bookings, logger).
		WithMaxRetries(cfg.WebhookMaxRetries).
		WithMetrics(app.Metrics)
	app.RetryWorker = webhooks.NewRetryWorker(app.Ingestor, storage, logger).
		WithInterval(cfg.WebhookRetryInterval).
		WithStaleAfter(cfg.WebhookStaleAfter)

	handler, err := app.buildAWS(ctx)
	if err != nil {
		app.Close()
		return nil, err
	}
	app.Deliverer = events.NewDeliverer(storage, handler, logger).
		WithInterval(cfg.OutboxInterval).
		WithMetrics(app.Metrics)
	return app, nil
}

func (a *App) buildPricing(ctx context.Context) {
	defaults := DefaultPricing(a.Config)
	var source pricing.Source = pricing.StaticSource(defaults)
	if client := BuildRedisClient(ctx, a.Config, a.Logger, true); client != nil {
		redisStore := pricing.NewRedisConfigStore(client, defaults)
		source, a.pricingWriter = redisStore, redisStore
		a.closers = append(a.closers, func() { _ = client.Close() })
	}
	a.Pricing = pricing.NewProvider(source, defaults, a.Logger)
	if err := a.Pricing.Refresh(ctx); err != nil {
		a.Logger.Warn("initial pricing load failed, using defaults", "error", err)
	}
}

func (a *App) buildGateway() gateway.Client {
	if a.Config.GatewayProvider == "stripe" {
		return gateway.NewStripeClient(a.Config.GatewaySecretKey, a.Logger).WithBaseURL(a.Config.GatewayBaseURL)
	}
	a.Logger.Warn("using fake payment gateway")
	return gateway.NewFakeClient(a.Logger)
}

// buildAWS wires the S3 archive and the outbox handlers. AWS config is only
// loaded when a feature needs it.
func (a *App) buildAWS(ctx context.Context) (events.DeliveryHandler, error) {
	cfg := a.Config
	needsAWS := cfg.NotifyQueueURL != "" || cfg.WebhookArchiveBucket != "" || (cfg.SendGridAPIKey == "" && cfg.SESFromEmail != "")
	var awsCfg aws.Config
	if needsAWS {
		var err error
		if awsCfg, err = LoadAWSConfig(ctx, cfg); err != nil {
			return nil, err
		}
	}

	if cfg.WebhookArchiveBucket != "" {
		client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
			o.UsePathStyle = cfg.AWSEndpointOverride != ""
		})
		a.archiver = webhooks.NewS3Archiver(client, cfg.WebhookArchiveBucket, a.Logger)
	}

	var sender notify.EmailSender
	switch {
	case cfg.SendGridAPIKey != "":
		sender = notify.NewSendGridSender(notify.SendGridConfig{
			APIKey:    cfg.SendGridAPIKey,
			FromEmail: cfg.SendGridFromEmail,
			FromName:  cfg.SendGridFromName,
		}, a.Logger)
	case cfg.SESFromEmail != "":
		sender = notify.NewSESSender(sesv2.NewFromConfig(awsCfg), notify.SESConfig{
			FromEmail: cfg.SESFromEmail,
			FromName:  cfg.SendGridFromName,
		}, a.Logger)
	default:
		sender = notify.NewStubEmailSender(a.Logger)
	}
	handlers := events.MultiHandler{notify.NewService(sender, a.Directory, a.Logger)}
	if cfg.NotifyQueueURL != "" {
		handlers = append(handlers, events.NewSQSPublisher(sqs.NewFromConfig(awsCfg), cfg.NotifyQueueURL))
	}
	return handlers, nil
}

// Router builds the HTTP handler for cmd/api.
func (a *App) Router() http.Handler {
	webhookHandler := webhooks.NewHandler(a.Ingestor, a.Config.WebhookSigningSecret, a.Logger)
	if a.archiver != nil {
		webhookHandler.WithArchiver(a.archiver)
	}
	return router.New(&router.Config{
		Logger:             a.Logger,
		JWTSecret:          a.Config.JWTSecret,
		CORSAllowedOrigins: a.Config.CORSAllowedOrigins,
		RateLimitRPS:       a.Config.RateLimitRPS,
		RateLimitBurst:     a.Config.RateLimitBurst,
		MetricsHandler:     a.metricsHandler,
		Availability:       availability.NewHandler(a.Availability, a.Config.MinBookingNotice, a.Logger),
		Bookings:           bookings.NewHandler(a.Bookings, a.Logger),
		Ledger:             ledger.NewHandler(a.Ledger, a.Logger),
		Pricing:            pricing.NewHandler(a.Pricing, a.pricingWriter, a.Logger),
		Webhooks:           webhookHandler,
	})
}

// RunWorkers runs the outbox deliverer, webhook retry worker and pricing
// poller until ctx is cancelled.
func (a *App) RunWorkers(ctx context.Context) {
	a.Pricing.Start(ctx, a.Config.PricingRefreshInterval)
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		a.Deliverer.Start(ctx)
	}()
	go func() {
		defer wg.Done()
		a.RetryWorker.Run(ctx)
	}()
	a.Logger.Info("background workers started",
		"outbox_interval", a.Config.OutboxInterval.String(),
		"webhook_retry_interval", a.Config.WebhookRetryInterval.String())
	wg.Wait()
	a.Logger.Info("background workers stopped")
}

func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

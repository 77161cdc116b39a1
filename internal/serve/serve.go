package serve

import (
	"context"
	"fmt"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"

	"github.com/paymenthub/payment-engine-backend/internal/clearing"
	"github.com/paymenthub/payment-engine-backend/internal/crashtracker"
	"github.com/paymenthub/payment-engine-backend/internal/data"
	"github.com/paymenthub/payment-engine-backend/internal/db"
	"github.com/paymenthub/payment-engine-backend/internal/dispatch"
	"github.com/paymenthub/payment-engine-backend/internal/events"
	"github.com/paymenthub/payment-engine-backend/internal/events/eventhandlers"
	"github.com/paymenthub/payment-engine-backend/internal/fraud"
	"github.com/paymenthub/payment-engine-backend/internal/ledger"
	"github.com/paymenthub/payment-engine-backend/internal/log"
	"github.com/paymenthub/payment-engine-backend/internal/monitor"
	"github.com/paymenthub/payment-engine-backend/internal/notify"
	"github.com/paymenthub/payment-engine-backend/internal/routing"
	"github.com/paymenthub/payment-engine-backend/internal/saga"
	"github.com/paymenthub/payment-engine-backend/internal/serve/httpclient"
	"github.com/paymenthub/payment-engine-backend/internal/serve/httperror"
	"github.com/paymenthub/payment-engine-backend/internal/serve/httphandler"
	"github.com/paymenthub/payment-engine-backend/internal/serve/middleware"
	"github.com/paymenthub/payment-engine-backend/internal/tenant"
)

const ServiceID = "serve"

// Rate limiting is per client IP; intake bursts beyond this are told to back
// off rather than queue inside the process.
const (
	defaultRateLimitRequests = 100
	defaultRateLimitWindow   = 1 * time.Second
)

type ServeOptions struct {
	Environment        string
	GitCommit          string
	Port               int
	Version            string
	MonitorService     monitor.MonitorServiceInterface
	DatabaseDSN        string
	dbConnectionPool   db.DBConnectionPool
	Models             *data.Models
	CorsAllowedOrigins []string
	BaseURL            string
	APIAuthSecret      string
	AdminAccount       string
	AdminAPIKey        string
	RateLimitRequests  int
	RateLimitWindow    time.Duration

	EventProducer      events.Producer
	CrashTrackerClient crashtracker.CrashTrackerClient

	LedgerBaseURL     string
	LedgerAPIKey      string
	FraudBaseURL      string
	FraudAPIKey       string
	FraudProviderName string

	SagaBatchSize            int
	SagaQueuePollingInterval int

	SMSMessengerType   notify.MessengerType
	EmailMessengerType notify.MessengerType
	MessengerOptions   notify.MessengerOptions

	tenantManager    tenant.ManagerInterface
	configStore      tenant.ConfigStoreInterface
	clearingRegistry clearing.RegistryInterface
	dispatcher       dispatch.DispatcherInterface
	sagaRunner       httphandler.SagaRunner
	resultIngester   events.EventHandler
}

// SetupDependencies uses the serve options to setup the dependencies for the server.
func (opts *ServeOptions) SetupDependencies() error {
	// Call crash tracker FlushEvents to flush buffered events before the server terminates
	defer opts.CrashTrackerClient.FlushEvents(2 * time.Second)
	// Call crash tracker Recover for recover from unhandled panics
	defer opts.CrashTrackerClient.Recover()
	// Set crash tracker LogAndReportErrors as DefaultReportErrorFunc
	httperror.SetDefaultReportErrorFunc(opts.CrashTrackerClient.LogAndReportErrors)

	ctx := context.Background()

	dbConnectionPool, err := db.OpenDBConnectionPoolWithMetrics(ctx, opts.DatabaseDSN, opts.MonitorService)
	if err != nil {
		return fmt.Errorf("connecting to the database: %w", err)
	}
	opts.dbConnectionPool = dbConnectionPool

	opts.Models, err = data.NewModels(dbConnectionPool)
	if err != nil {
		return fmt.Errorf("creating models for Serve: %w", err)
	}

	opts.tenantManager = tenant.NewManager(tenant.WithDatabase(dbConnectionPool))

	opts.configStore, err = tenant.NewConfigStore(dbConnectionPool)
	if err != nil {
		return fmt.Errorf("creating the tenant config store: %w", err)
	}

	registry, err := clearing.NewRegistry(opts.Models, opts.MonitorService)
	if err != nil {
		return fmt.Errorf("creating the clearing registry: %w", err)
	}
	opts.clearingRegistry = registry

	webhookSender, err := dispatch.NewWebhookSender(httpclient.DefaultClient())
	if err != nil {
		return fmt.Errorf("creating the webhook sender: %w", err)
	}
	dispatcher, err := dispatch.NewDispatcher(dispatch.DispatcherOptions{
		Models:         opts.Models,
		ConfigStore:    opts.configStore,
		Producer:       opts.EventProducer,
		WebhookSender:  webhookSender,
		MonitorService: opts.MonitorService,
	})
	if err != nil {
		return fmt.Errorf("creating the response dispatcher: %w", err)
	}
	opts.dispatcher = dispatcher

	sagaManager, err := saga.NewManager(ctx, saga.SagaEngineOptions{
		DBConnectionPool:     dbConnectionPool,
		Models:               opts.Models,
		StepDeps:             opts.buildStepDeps(ctx, registry),
		ConfigStore:          opts.configStore,
		TenantManager:        opts.tenantManager,
		MonitorService:       opts.MonitorService,
		CrashTrackerClient:   opts.CrashTrackerClient,
		BatchSize:            opts.SagaBatchSize,
		QueuePollingInterval: opts.SagaQueuePollingInterval,
	})
	if err != nil {
		return fmt.Errorf("creating the saga engine: %w", err)
	}
	worker, err := sagaManager.NewWorker()
	if err != nil {
		return fmt.Errorf("creating the inline saga worker: %w", err)
	}
	opts.sagaRunner = &worker

	opts.resultIngester = eventhandlers.NewClearingResultEventHandler(eventhandlers.ClearingResultEventHandlerOptions{
		DBConnectionPool: dbConnectionPool,
	})

	return nil
}

// buildStepDeps wires the saga step adapters. Ledger and fraud fall back to
// dry-run clients when no base URL is configured, which keeps local and test
// environments off the network.
func (opts *ServeOptions) buildStepDeps(ctx context.Context, registry clearing.RegistryInterface) saga.StepDeps {
	var ledgerClient ledger.AdapterInterface = ledger.NewDryRunClient()
	if opts.LedgerBaseURL != "" {
		ledgerClient = ledger.NewClient(opts.LedgerBaseURL, opts.LedgerAPIKey, opts.MonitorService)
	}

	var fraudScorer fraud.ScorerInterface = fraud.NewDryRunClient()
	if opts.FraudBaseURL != "" {
		fraudScorer = fraud.NewClient(opts.FraudBaseURL, opts.FraudAPIKey, opts.FraudProviderName, opts.MonitorService)
	}

	resolver, err := routing.NewResolver(opts.Models, registry)
	if err != nil {
		// NewResolver only fails on nil models, checked in SetupDependencies.
		log.Fatalf("creating the routing resolver: %v", err)
	}

	messageDispatcher := notify.NewMessageDispatcher()
	if opts.EmailMessengerType != "" {
		emailOpts := opts.MessengerOptions
		emailOpts.MessengerType = opts.EmailMessengerType
		emailClient, clientErr := notify.GetClient(emailOpts)
		if clientErr != nil {
			log.Fatalf("creating the email messenger client: %v", clientErr)
		}
		messageDispatcher.RegisterClient(ctx, notify.MessageChannelEmail, emailClient)
	}
	if opts.SMSMessengerType != "" {
		smsOpts := opts.MessengerOptions
		smsOpts.MessengerType = opts.SMSMessengerType
		smsClient, clientErr := notify.GetClient(smsOpts)
		if clientErr != nil {
			log.Fatalf("creating the SMS messenger client: %v", clientErr)
		}
		messageDispatcher.RegisterClient(ctx, notify.MessageChannelSMS, smsClient)
	}

	notifier, err := notify.NewPaymentNotifier(messageDispatcher)
	if err != nil {
		log.Fatalf("creating the payment notifier: %v", err)
	}

	return saga.StepDeps{
		Models:           opts.Models,
		LedgerClient:     ledgerClient,
		FraudScorer:      fraudScorer,
		Resolver:         resolver,
		ClearingRegistry: registry,
		Notifier:         notifier,
	}
}

func Serve(opts ServeOptions, httpServer HTTPServerInterface) error {
	err := opts.SetupDependencies()
	if err != nil {
		return fmt.Errorf("starting dependencies: %w", err)
	}

	listenAddr := fmt.Sprintf(":%d", opts.Port)
	serverConfig := Config{
		ListenAddr:          listenAddr,
		Handler:             handleHTTP(opts),
		TCPKeepAlive:        time.Minute * 3,
		ShutdownGracePeriod: time.Second * 50,
		ReadTimeout:         time.Second * 5,
		WriteTimeout:        time.Second * 35,
		IdleTimeout:         time.Minute * 2,
		OnStarting: func() {
			log.Info("Starting Payment Engine API Server")
			log.Infof("Listening on %s", listenAddr)
		},
		OnStopping: func() {
			log.Info("Closing the database connection...")
			err := opts.dbConnectionPool.Close()
			if err != nil {
				log.Errorf("error closing database connection: %s", err.Error())
			}

			log.Info("Stopping Payment Engine API Server")
		},
	}
	httpServer.Run(serverConfig)
	return nil
}

func handleHTTP(o ServeOptions) *chi.Mux {
	mux := chi.NewMux()

	rateLimitRequests := o.RateLimitRequests
	if rateLimitRequests <= 0 {
		rateLimitRequests = defaultRateLimitRequests
	}
	rateLimitWindow := o.RateLimitWindow
	if rateLimitWindow <= 0 {
		rateLimitWindow = defaultRateLimitWindow
	}

	// Middleware
	mux.Use(middleware.CorsMiddleware(o.CorsAllowedOrigins))
	mux.Use(chimiddleware.RequestID)
	mux.Use(chimiddleware.RealIP)
	mux.Use(middleware.CorrelationIDMiddleware)
	mux.Use(middleware.LoggingMiddleware)
	mux.Use(middleware.RecoverHandler)
	mux.Use(middleware.MetricsRequestHandler(o.MonitorService))
	mux.Use(httprate.LimitByIP(rateLimitRequests, rateLimitWindow))

	mux.Get("/health", httphandler.HealthHandler{
		ReleaseID:        o.GitCommit,
		ServiceID:        ServiceID,
		Version:          o.Version,
		DBConnectionPool: o.dbConnectionPool,
		Producer:         o.EventProducer,
	}.ServeHTTP)

	paymentAccepter := httphandler.PaymentAccepter{
		Models:           o.Models,
		DBConnectionPool: o.dbConnectionPool,
		ConfigStore:      o.configStore,
		SagaRunner:       o.sagaRunner,
		Dispatcher:       o.dispatcher,
		MonitorService:   o.MonitorService,
	}

	// Tenant API. Every route resolves the tenant from X-Tenant-ID and
	// authenticates with the tenant API bearer secret.
	mux.Group(func(r chi.Router) {
		r.Use(middleware.ResolveTenantMiddleware(o.tenantManager))
		r.Use(middleware.EnsureTenantMiddleware)
		r.Use(middleware.APIAuthMiddleware(o.APIAuthSecret))

		r.Route("/payments", func(r chi.Router) {
			paymentsHandler := httphandler.PaymentsHandler{
				Models:           o.Models,
				DBConnectionPool: o.dbConnectionPool,
				PaymentAccepter:  paymentAccepter,
				ClearingRegistry: o.clearingRegistry,
				Dispatcher:       o.dispatcher,
			}
			r.Post("/", paymentsHandler.PostPayment)
			r.Get("/", paymentsHandler.GetPayments)
			r.Get("/{id}", paymentsHandler.GetPayment)
			r.Post("/{id}/cancel", paymentsHandler.CancelPayment)
		})

		r.Post("/iso20022/pain001", httphandler.ISO20022Handler{
			PaymentAccepter: paymentAccepter,
		}.PostPain001)

		r.Get("/statistics", httphandler.StatisticsHandler{
			DBConnectionPool: o.dbConnectionPool,
		}.GetStatistics)

		r.Post("/clearing/{rail}/callback", httphandler.ClearingCallbackHandler{
			Producer:       o.EventProducer,
			ResultIngester: o.resultIngester,
			MonitorService: o.MonitorService,
		}.PostCallback)
	})

	// Operator surface, guarded by basic auth instead of the tenant secret.
	mux.Group(func(r chi.Router) {
		r.Use(middleware.AdminAuthMiddleware(o.AdminAccount, o.AdminAPIKey))

		r.Get("/ops/dead-letters", httphandler.DeadLettersHandler{
			Models:           o.Models,
			DBConnectionPool: o.dbConnectionPool,
			TenantManager:    o.tenantManager,
		}.GetDeadLetters)
	})

	return mux
}

package cmd

import (
	"context"
	"go/types"

	"github.com/spf13/cobra"

	cmdUtils "github.com/paymenthub/payment-engine-backend/cmd/utils"
	"github.com/paymenthub/payment-engine-backend/internal/clearing"
	"github.com/paymenthub/payment-engine-backend/internal/config"
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
	"github.com/paymenthub/payment-engine-backend/internal/scheduler"
	"github.com/paymenthub/payment-engine-backend/internal/serve"
	"github.com/paymenthub/payment-engine-backend/internal/serve/httpclient"
	"github.com/paymenthub/payment-engine-backend/internal/tenant"
)

// WorkerCommand runs the background plane of the engine: the saga claim loop,
// the clearing result consumer, and the scheduler jobs. The API server stays
// responsive because everything here runs out of process from it.
type WorkerCommand struct{}

type WorkerServiceInterface interface {
	ProcessSagas(ctx context.Context, manager *saga.Manager)
	StartMetricsServe(opts serve.MetricsServeOptions, httpServer serve.HTTPServerInterface)
	StartScheduler(dbConnectionPool db.DBConnectionPool, crashTrackerClient crashtracker.CrashTrackerClient, registrars ...scheduler.SchedulerJobRegisterOption)
}

type WorkerService struct{}

var _ WorkerServiceInterface = (*WorkerService)(nil)

func (s *WorkerService) ProcessSagas(ctx context.Context, manager *saga.Manager) {
	manager.ProcessSagas(ctx)
}

func (s *WorkerService) StartMetricsServe(opts serve.MetricsServeOptions, httpServer serve.HTTPServerInterface) {
	err := serve.MetricsServe(opts, httpServer)
	if err != nil {
		log.Fatalf("Error starting metrics server: %s", err.Error())
	}
}

func (s *WorkerService) StartScheduler(dbConnectionPool db.DBConnectionPool, crashTrackerClient crashtracker.CrashTrackerClient, registrars ...scheduler.SchedulerJobRegisterOption) {
	scheduler.StartScheduler(dbConnectionPool, crashTrackerClient, registrars...)
}

// workerOptions collects the flag-bound configuration of the worker command.
type workerOptions struct {
	SagaBatchSize            int
	SagaQueuePollingInterval int

	LedgerBaseURL     string
	LedgerAPIKey      string
	FraudBaseURL      string
	FraudAPIKey       string
	FraudProviderName string

	SMSMessengerType   notify.MessengerType
	EmailMessengerType notify.MessengerType
	MessengerOptions   notify.MessengerOptions
}

func (c *WorkerCommand) Command(workerService WorkerServiceInterface, monitorService monitor.MonitorServiceInterface) *cobra.Command {
	workerOpts := workerOptions{}
	metricsServeOpts := serve.MetricsServeOptions{}
	crashTrackerOptions := crashtracker.CrashTrackerOptions{}
	eventBrokerOptions := cmdUtils.EventBrokerOptions{}

	configOpts := config.ConfigOptions{
		{
			Name:           "metrics-type",
			Usage:          `Metric monitor type. Options: "PROMETHEUS"`,
			OptType:        types.String,
			CustomSetValue: cmdUtils.SetConfigOptionMetricType,
			ConfigKey:      &metricsServeOpts.MetricType,
			FlagDefault:    "PROMETHEUS",
			Required:       true,
		},
		{
			Name:        "metrics-port",
			Usage:       "Metrics server address port",
			OptType:     types.Int,
			ConfigKey:   &metricsServeOpts.Port,
			FlagDefault: 8003,
			Required:    true,
		},
		{
			Name:        "saga-batch-size",
			Usage:       "The number of sagas a worker claims per polling cycle",
			OptType:     types.Int,
			ConfigKey:   &workerOpts.SagaBatchSize,
			FlagDefault: 10,
			Required:    true,
		},
		{
			Name:        "saga-queue-polling-interval",
			Usage:       "Polling interval (seconds) to query the database for runnable sagas",
			OptType:     types.Int,
			ConfigKey:   &workerOpts.SagaQueuePollingInterval,
			FlagDefault: 6,
			Required:    true,
		},
		{
			Name:      "ledger-base-url",
			Usage:     "The base URL of the core banking ledger API. When empty the dry-run ledger client is used.",
			OptType:   types.String,
			ConfigKey: &workerOpts.LedgerBaseURL,
			Required:  false,
		},
		{
			Name:      "ledger-api-key",
			Usage:     "The api key used to authenticate against the core banking ledger API",
			OptType:   types.String,
			ConfigKey: &workerOpts.LedgerAPIKey,
			Required:  false,
		},
		{
			Name:      "fraud-base-url",
			Usage:     "The base URL of the fraud scoring provider API. When empty the dry-run fraud scorer is used.",
			OptType:   types.String,
			ConfigKey: &workerOpts.FraudBaseURL,
			Required:  false,
		},
		{
			Name:      "fraud-api-key",
			Usage:     "The api key used to authenticate against the fraud scoring provider API",
			OptType:   types.String,
			ConfigKey: &workerOpts.FraudAPIKey,
			Required:  false,
		},
		{
			Name:        "fraud-provider-name",
			Usage:       "The name of the fraud scoring provider, used in metrics and score snapshots",
			OptType:     types.String,
			ConfigKey:   &workerOpts.FraudProviderName,
			FlagDefault: "internal",
			Required:    false,
		},
		cmdUtils.CrashTrackerTypeConfigOption(&crashTrackerOptions.CrashTrackerType),
	}
	configOpts = append(configOpts, cmdUtils.EventBrokerConfigOptions(&eventBrokerOptions)...)
	configOpts = append(configOpts, cmdUtils.MessengerConfigOptions(&workerOpts.SMSMessengerType, &workerOpts.EmailMessengerType, &workerOpts.MessengerOptions)...)

	cmd := &cobra.Command{
		Use:   "worker",
		Short: "Run the saga workers, the clearing result consumer and the scheduler jobs",
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			cmdUtils.DefaultPersistentPreRun(cmd, args)

			configOpts.Require()
			err := configOpts.SetValues()
			if err != nil {
				log.Fatalf("Error setting values of config options: %s", err.Error())
			}

			err = monitorService.Start(monitor.MetricOptions{MetricType: metricsServeOpts.MetricType, Environment: globalOptions.Environment})
			if err != nil {
				log.Fatalf("Error creating monitor service: %s", err.Error())
			}
			metricsServeOpts.Environment = globalOptions.Environment
			metricsServeOpts.MonitorService = monitorService
		},
		Run: func(cmd *cobra.Command, _ []string) {
			ctx := cmd.Context()
			c.Run(ctx, workerService, monitorService, workerOpts, metricsServeOpts, crashTrackerOptions, eventBrokerOptions)
		},
	}
	err := configOpts.Init(cmd)
	if err != nil {
		log.Fatalf("Error initializing a config option: %s", err.Error())
	}

	return cmd
}

// Run wires the worker dependencies and blocks until the scheduler receives a
// termination signal.
func (c *WorkerCommand) Run(
	ctx context.Context,
	workerService WorkerServiceInterface,
	monitorService monitor.MonitorServiceInterface,
	workerOpts workerOptions,
	metricsServeOpts serve.MetricsServeOptions,
	crashTrackerOptions crashtracker.CrashTrackerOptions,
	eventBrokerOptions cmdUtils.EventBrokerOptions,
) {
	globalOptions.PopulateCrashTrackerOptions(&crashTrackerOptions)
	crashTrackerClient, err := crashtracker.GetClient(ctx, crashTrackerOptions)
	if err != nil {
		log.Ctx(ctx).Fatalf("Error creating crash tracker client: %s", err.Error())
	}

	dbConnectionPool, err := db.OpenDBConnectionPoolWithMetrics(ctx, globalOptions.DatabaseURL, monitorService)
	if err != nil {
		log.Ctx(ctx).Fatalf("Error connecting to the database: %s", err.Error())
	}
	defer dbConnectionPool.Close()

	models, err := data.NewModels(dbConnectionPool)
	if err != nil {
		log.Ctx(ctx).Fatalf("Error creating models: %s", err.Error())
	}

	tenantManager := tenant.NewManager(tenant.WithDatabase(dbConnectionPool))
	configStore, err := tenant.NewConfigStore(dbConnectionPool)
	if err != nil {
		log.Ctx(ctx).Fatalf("Error creating the tenant config store: %s", err.Error())
	}

	registry, err := clearing.NewRegistry(models, monitorService)
	if err != nil {
		log.Ctx(ctx).Fatalf("Error creating the clearing registry: %s", err.Error())
	}

	var producer events.Producer = events.NoneProducer{}
	if eventBrokerOptions.EventBrokerType == events.KafkaEventBrokerType {
		kafkaProducer, producerErr := events.NewKafkaProducer(eventBrokerOptions.BrokerURLs)
		if producerErr != nil {
			log.Ctx(ctx).Fatalf("Error creating Kafka producer: %s", producerErr.Error())
		}
		defer kafkaProducer.Close(ctx)
		producer = kafkaProducer
	} else {
		log.Ctx(ctx).Warn("Event broker is NONE. Events will be logged and dropped, and the outbox will not drain.")
	}

	webhookSender, err := dispatch.NewWebhookSender(httpclient.DefaultClient())
	if err != nil {
		log.Ctx(ctx).Fatalf("Error creating the webhook sender: %s", err.Error())
	}
	dispatcher, err := dispatch.NewDispatcher(dispatch.DispatcherOptions{
		Models:         models,
		ConfigStore:    configStore,
		Producer:       producer,
		WebhookSender:  webhookSender,
		MonitorService: monitorService,
	})
	if err != nil {
		log.Ctx(ctx).Fatalf("Error creating the response dispatcher: %s", err.Error())
	}

	sagaManager, err := saga.NewManager(ctx, saga.SagaEngineOptions{
		DBConnectionPool:     dbConnectionPool,
		Models:               models,
		StepDeps:             c.buildStepDeps(ctx, models, registry, monitorService, workerOpts),
		ConfigStore:          configStore,
		TenantManager:        tenantManager,
		MonitorService:       monitorService,
		CrashTrackerClient:   crashTrackerClient,
		BatchSize:            workerOpts.SagaBatchSize,
		QueuePollingInterval: workerOpts.SagaQueuePollingInterval,
	})
	if err != nil {
		log.Ctx(ctx).Fatalf("Error creating the saga engine: %s", err.Error())
	}

	if eventBrokerOptions.EventBrokerType == events.KafkaEventBrokerType {
		resultHandler := eventhandlers.NewClearingResultEventHandler(eventhandlers.ClearingResultEventHandlerOptions{
			DBConnectionPool: dbConnectionPool,
		})
		consumer, consumerErr := events.NewKafkaConsumer(
			eventBrokerOptions.BrokerURLs,
			events.ClearingResultTopic,
			eventBrokerOptions.ConsumerGroupID,
			resultHandler,
		)
		if consumerErr != nil {
			log.Ctx(ctx).Fatalf("Error creating the clearing result consumer: %s", consumerErr.Error())
		}
		defer consumer.Close()

		eventConsumer := events.NewEventConsumer(consumer, producer, crashTrackerClient.Clone())
		go eventConsumer.Consume(ctx)
	}

	go workerService.ProcessSagas(ctx, sagaManager)
	go workerService.StartMetricsServe(metricsServeOpts, &serve.HTTPServer{})

	// Blocks until SIGINT/SIGTERM/SIGQUIT.
	workerService.StartScheduler(dbConnectionPool, crashTrackerClient,
		scheduler.WithOutboxPublisherJobOption(models, producer),
		scheduler.WithClearingPollJobOption(models),
		scheduler.WithSagaLeaseReaperJobOption(models),
		scheduler.WithUETRRetentionJobOption(models),
		scheduler.WithResponseRetryJobOption(models, dispatcher),
	)
}

func (c *WorkerCommand) buildStepDeps(ctx context.Context, models *data.Models, registry clearing.RegistryInterface, monitorService monitor.MonitorServiceInterface, workerOpts workerOptions) saga.StepDeps {
	var ledgerClient ledger.AdapterInterface = ledger.NewDryRunClient()
	if workerOpts.LedgerBaseURL != "" {
		ledgerClient = ledger.NewClient(workerOpts.LedgerBaseURL, workerOpts.LedgerAPIKey, monitorService)
	}

	var fraudScorer fraud.ScorerInterface = fraud.NewDryRunClient()
	if workerOpts.FraudBaseURL != "" {
		fraudScorer = fraud.NewClient(workerOpts.FraudBaseURL, workerOpts.FraudAPIKey, workerOpts.FraudProviderName, monitorService)
	}

	resolver, err := routing.NewResolver(models, registry)
	if err != nil {
		log.Ctx(ctx).Fatalf("Error creating the routing resolver: %s", err.Error())
	}

	messageDispatcher := notify.NewMessageDispatcher()
	if workerOpts.EmailMessengerType != "" {
		emailOpts := workerOpts.MessengerOptions
		emailOpts.MessengerType = workerOpts.EmailMessengerType
		emailClient, clientErr := notify.GetClient(emailOpts)
		if clientErr != nil {
			log.Ctx(ctx).Fatalf("Error creating the email messenger client: %s", clientErr.Error())
		}
		messageDispatcher.RegisterClient(ctx, notify.MessageChannelEmail, emailClient)
	}
	if workerOpts.SMSMessengerType != "" {
		smsOpts := workerOpts.MessengerOptions
		smsOpts.MessengerType = workerOpts.SMSMessengerType
		smsClient, clientErr := notify.GetClient(smsOpts)
		if clientErr != nil {
			log.Ctx(ctx).Fatalf("Error creating the SMS messenger client: %s", clientErr.Error())
		}
		messageDispatcher.RegisterClient(ctx, notify.MessageChannelSMS, smsClient)
	}

	notifier, err := notify.NewPaymentNotifier(messageDispatcher)
	if err != nil {
		log.Ctx(ctx).Fatalf("Error creating the payment notifier: %s", err.Error())
	}

	return saga.StepDeps{
		Models:           models,
		LedgerClient:     ledgerClient,
		FraudScorer:      fraudScorer,
		Resolver:         resolver,
		ClearingRegistry: registry,
		Notifier:         notifier,
	}
}

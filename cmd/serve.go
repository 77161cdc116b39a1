package cmd

import (
	"go/types"
	"time"

	"github.com/spf13/cobra"

	cmdUtils "github.com/paymenthub/payment-engine-backend/cmd/utils"
	"github.com/paymenthub/payment-engine-backend/internal/config"
	"github.com/paymenthub/payment-engine-backend/internal/crashtracker"
	"github.com/paymenthub/payment-engine-backend/internal/events"
	"github.com/paymenthub/payment-engine-backend/internal/log"
	"github.com/paymenthub/payment-engine-backend/internal/monitor"
	"github.com/paymenthub/payment-engine-backend/internal/serve"
)

type ServeCommand struct{}

type ServerServiceInterface interface {
	StartServe(opts serve.ServeOptions, httpServer serve.HTTPServerInterface)
	StartMetricsServe(opts serve.MetricsServeOptions, httpServer serve.HTTPServerInterface)
}

type ServerService struct{}

var _ ServerServiceInterface = (*ServerService)(nil)

func (s *ServerService) StartServe(opts serve.ServeOptions, httpServer serve.HTTPServerInterface) {
	err := serve.Serve(opts, httpServer)
	if err != nil {
		log.Fatalf("Error starting server: %s", err.Error())
	}
}

func (s *ServerService) StartMetricsServe(opts serve.MetricsServeOptions, httpServer serve.HTTPServerInterface) {
	err := serve.MetricsServe(opts, httpServer)
	if err != nil {
		log.Fatalf("Error starting metrics server: %s", err.Error())
	}
}

func (c *ServeCommand) Command(serverService ServerServiceInterface, monitorService monitor.MonitorServiceInterface) *cobra.Command {
	serveOpts := serve.ServeOptions{}
	metricsServeOpts := serve.MetricsServeOptions{}
	crashTrackerOptions := crashtracker.CrashTrackerOptions{}
	eventBrokerOptions := cmdUtils.EventBrokerOptions{}
	rateLimitWindowSeconds := 0

	configOpts := config.ConfigOptions{
		{
			Name:        "port",
			Usage:       "Server address port",
			OptType:     types.Int,
			ConfigKey:   &serveOpts.Port,
			FlagDefault: 8000,
			Required:    true,
		},
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
			FlagDefault: 8002,
			Required:    true,
		},
		{
			Name:           "cors-allowed-origins",
			Usage:          `Cors URLs that are allowed to access the endpoints, separated by ","`,
			OptType:        types.String,
			CustomSetValue: cmdUtils.SetCorsAllowedOrigins,
			ConfigKey:      &serveOpts.CorsAllowedOrigins,
			FlagDefault:    "*",
			Required:       true,
		},
		{
			Name:      "api-auth-secret",
			Usage:     "The bearer secret tenants use to authenticate against the tenant API",
			OptType:   types.String,
			ConfigKey: &serveOpts.APIAuthSecret,
			Required:  true,
		},
		{
			Name:        "admin-account",
			Usage:       "The username used for the basic auth on the operator endpoints",
			OptType:     types.String,
			ConfigKey:   &serveOpts.AdminAccount,
			FlagDefault: "admin",
			Required:    true,
		},
		{
			Name:      "admin-api-key",
			Usage:     "The api key used for the basic auth on the operator endpoints",
			OptType:   types.String,
			ConfigKey: &serveOpts.AdminAPIKey,
			Required:  true,
		},
		{
			Name:        "rate-limit-requests",
			Usage:       "The number of requests a single client IP can make per rate limit window",
			OptType:     types.Int,
			ConfigKey:   &serveOpts.RateLimitRequests,
			FlagDefault: 100,
			Required:    false,
		},
		{
			Name:        "rate-limit-window-seconds",
			Usage:       "The size of the rate limit window in seconds",
			OptType:     types.Int,
			ConfigKey:   &rateLimitWindowSeconds,
			FlagDefault: 1,
			Required:    false,
		},
		{
			Name:      "ledger-base-url",
			Usage:     "The base URL of the core banking ledger API. When empty the dry-run ledger client is used.",
			OptType:   types.String,
			ConfigKey: &serveOpts.LedgerBaseURL,
			Required:  false,
		},
		{
			Name:      "ledger-api-key",
			Usage:     "The api key used to authenticate against the core banking ledger API",
			OptType:   types.String,
			ConfigKey: &serveOpts.LedgerAPIKey,
			Required:  false,
		},
		{
			Name:      "fraud-base-url",
			Usage:     "The base URL of the fraud scoring provider API. When empty the dry-run fraud scorer is used.",
			OptType:   types.String,
			ConfigKey: &serveOpts.FraudBaseURL,
			Required:  false,
		},
		{
			Name:      "fraud-api-key",
			Usage:     "The api key used to authenticate against the fraud scoring provider API",
			OptType:   types.String,
			ConfigKey: &serveOpts.FraudAPIKey,
			Required:  false,
		},
		{
			Name:        "fraud-provider-name",
			Usage:       "The name of the fraud scoring provider, used in metrics and score snapshots",
			OptType:     types.String,
			ConfigKey:   &serveOpts.FraudProviderName,
			FlagDefault: "internal",
			Required:    false,
		},
		{
			Name:        "saga-batch-size",
			Usage:       "The number of sagas a worker claims per polling cycle",
			OptType:     types.Int,
			ConfigKey:   &serveOpts.SagaBatchSize,
			FlagDefault: 10,
			Required:    true,
		},
		{
			Name:        "saga-queue-polling-interval",
			Usage:       "Polling interval (seconds) to query the database for runnable sagas",
			OptType:     types.Int,
			ConfigKey:   &serveOpts.SagaQueuePollingInterval,
			FlagDefault: 6,
			Required:    true,
		},
		cmdUtils.CrashTrackerTypeConfigOption(&crashTrackerOptions.CrashTrackerType),
	}
	configOpts = append(configOpts, cmdUtils.EventBrokerConfigOptions(&eventBrokerOptions)...)
	configOpts = append(configOpts, cmdUtils.MessengerConfigOptions(&serveOpts.SMSMessengerType, &serveOpts.EmailMessengerType, &serveOpts.MessengerOptions)...)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the Payment Engine API",
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			cmdUtils.DefaultPersistentPreRun(cmd, args)

			configOpts.Require()
			err := configOpts.SetValues()
			if err != nil {
				log.Fatalf("Error setting values of config options: %s", err.Error())
			}

			// The monitor service backs both the API middleware and the
			// metrics endpoint, so it starts before either server.
			err = monitorService.Start(monitor.MetricOptions{MetricType: metricsServeOpts.MetricType, Environment: globalOptions.Environment})
			if err != nil {
				log.Fatalf("Error creating monitor service: %s", err.Error())
			}

			// Inject the dependencies carried by the global options.
			serveOpts.Environment = globalOptions.Environment
			serveOpts.GitCommit = globalOptions.GitCommit
			serveOpts.DatabaseDSN = globalOptions.DatabaseURL
			serveOpts.Version = globalOptions.Version
			serveOpts.BaseURL = globalOptions.BaseURL
			serveOpts.MonitorService = monitorService
			serveOpts.RateLimitWindow = time.Duration(rateLimitWindowSeconds) * time.Second

			metricsServeOpts.Environment = globalOptions.Environment
			metricsServeOpts.MonitorService = monitorService
		},
		Run: func(cmd *cobra.Command, _ []string) {
			ctx := cmd.Context()

			globalOptions.PopulateCrashTrackerOptions(&crashTrackerOptions)
			crashTrackerClient, err := crashtracker.GetClient(ctx, crashTrackerOptions)
			if err != nil {
				log.Ctx(ctx).Fatalf("Error creating crash tracker client: %s", err.Error())
			}
			serveOpts.CrashTrackerClient = crashTrackerClient

			if eventBrokerOptions.EventBrokerType == events.KafkaEventBrokerType {
				producer, producerErr := events.NewKafkaProducer(eventBrokerOptions.BrokerURLs)
				if producerErr != nil {
					log.Ctx(ctx).Fatalf("Error creating Kafka producer: %s", producerErr.Error())
				}
				defer producer.Close(ctx)
				serveOpts.EventProducer = producer
			} else {
				log.Ctx(ctx).Warn("Event broker is NONE. Events will be logged and dropped, and the outbox will not drain.")
				serveOpts.EventProducer = events.NoneProducer{}
			}

			// Starting Metrics Server (background job)
			go serverService.StartMetricsServe(metricsServeOpts, &serve.HTTPServer{})

			// Starting Application Server
			serverService.StartServe(serveOpts, &serve.HTTPServer{})
		},
	}
	err := configOpts.Init(cmd)
	if err != nil {
		log.Fatalf("Error initializing a config option: %s", err.Error())
	}

	return cmd
}

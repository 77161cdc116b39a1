package saga

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/paymenthub/payment-engine-backend/internal/crashtracker"
	"github.com/paymenthub/payment-engine-backend/internal/data"
	"github.com/paymenthub/payment-engine-backend/internal/db"
	"github.com/paymenthub/payment-engine-backend/internal/log"
	"github.com/paymenthub/payment-engine-backend/internal/monitor"
	"github.com/paymenthub/payment-engine-backend/internal/tenant"
	"github.com/paymenthub/payment-engine-backend/internal/tenantctx"
)

const serviceName = "Saga Engine"

type SagaEngineOptions struct {
	DBConnectionPool   db.DBConnectionPool
	Models             *data.Models
	StepDeps           StepDeps
	ConfigStore        tenant.ConfigStoreInterface
	TenantManager      tenant.ManagerInterface
	MonitorService     monitor.MonitorServiceInterface
	CrashTrackerClient crashtracker.CrashTrackerClient

	// BatchSize caps how many sagas one tick claims.
	BatchSize int
	// QueuePollingInterval is the claim tick, in seconds.
	QueuePollingInterval int
	// LeaseDuration is how long each claim holds a saga; zero means
	// DefaultLeaseDuration.
	LeaseDuration time.Duration
}

func (o *SagaEngineOptions) validate() error {
	if o.DBConnectionPool == nil {
		return fmt.Errorf("database connection pool cannot be nil")
	}

	if o.Models == nil {
		return fmt.Errorf("models cannot be nil")
	}

	if o.ConfigStore == nil {
		return fmt.Errorf("config store cannot be nil")
	}

	if o.MonitorService == nil {
		return fmt.Errorf("monitor service cannot be nil")
	}

	if o.BatchSize <= 0 {
		return fmt.Errorf("batch size must be greater than 0")
	}

	if o.QueuePollingInterval < 1 {
		return fmt.Errorf("queue polling interval must be at least 1 second")
	}

	return nil
}

// Manager owns the claim loop: every tick it wakes due sagas, claims a batch
// with fresh leases and hands each saga to a worker goroutine.
type Manager struct {
	dbConnectionPool db.DBConnectionPool
	models           *data.Models
	steps            []Step
	configStore      tenant.ConfigStoreInterface
	tenantManager    tenant.ManagerInterface

	batchSize       int
	pollingInterval time.Duration
	leaseDuration   time.Duration

	monitorService     monitor.MonitorServiceInterface
	crashTrackerClient crashtracker.CrashTrackerClient
}

func NewManager(ctx context.Context, opts SagaEngineOptions) (m *Manager, err error) {
	crashTrackerClient := opts.CrashTrackerClient
	if opts.CrashTrackerClient == nil {
		log.Ctx(ctx).Warn("crash tracker client not set, using DRY_RUN client")
		crashTrackerClient, err = crashtracker.NewDryRunClient()
		if err != nil {
			return nil, fmt.Errorf("unable to initialize DRY_RUN crash tracker client: %w", err)
		}
	}
	defer crashTrackerClient.FlushEvents(2 * time.Second)
	defer crashTrackerClient.Recover()

	if err = opts.validate(); err != nil {
		return nil, fmt.Errorf("validating options: %w", err)
	}

	steps, err := NewSteps(opts.StepDeps)
	if err != nil {
		return nil, fmt.Errorf("building saga steps: %w", err)
	}

	leaseDuration := opts.LeaseDuration
	if leaseDuration <= 0 {
		leaseDuration = DefaultLeaseDuration
	}

	return &Manager{
		dbConnectionPool: opts.DBConnectionPool,
		models:           opts.Models,
		steps:            steps,
		configStore:      opts.ConfigStore,
		tenantManager:    opts.TenantManager,

		batchSize:       opts.BatchSize,
		pollingInterval: time.Second * time.Duration(opts.QueuePollingInterval),
		leaseDuration:   leaseDuration,

		monitorService:     opts.MonitorService,
		crashTrackerClient: crashTrackerClient,
	}, nil
}

// NewWorker builds a worker sharing the manager's wiring, for callers that
// drive a saga inline instead of waiting for the claim loop.
func (m *Manager) NewWorker() (SagaWorker, error) {
	return NewSagaWorker(m.models, m.steps, m.configStore, m.crashTrackerClient, m.monitorService, m.leaseDuration)
}

// ProcessSagas runs the claim loop until the context is cancelled or the
// process receives a termination signal.
func (m *Manager) ProcessSagas(ctx context.Context) {
	defer m.crashTrackerClient.FlushEvents(2 * time.Second)
	defer m.crashTrackerClient.Recover()
	log.Ctx(ctx).Infof("Starting %s...", serviceName)

	// initialize signal channel, to react to OS signals
	signalChan := make(chan os.Signal, 1)
	signal.Notify(signalChan, syscall.SIGTERM, syscall.SIGINT, syscall.SIGQUIT)

	ticker := time.NewTicker(m.pollingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Ctx(ctx).Infof("Stopping %s due to context cancellation...", serviceName)
			return

		case sig := <-signalChan:
			log.Ctx(ctx).Infof("Stopping %s due to OS signal '%+v'", serviceName, sig)
			return

		case <-ticker.C:
			m.processSagas(ctx)
		}
	}
}

func (m *Manager) processSagas(ctx context.Context) {
	// Wake parked sagas whose wake time passed, so this tick's claim sees
	// them.
	woken, err := m.models.Sagas.WakeDue(ctx, m.dbConnectionPool)
	if err != nil {
		m.crashTrackerClient.LogAndReportErrors(ctx, err, "waking due sagas")
	} else if woken > 0 {
		log.Ctx(ctx).Debugf("Woke %d parked sagas", woken)
	}

	sagas, err := m.models.Sagas.ClaimBatch(ctx, m.dbConnectionPool, m.batchSize, m.leaseDuration)
	if err != nil {
		m.crashTrackerClient.LogAndReportErrors(ctx, fmt.Errorf("claiming sagas: %w", err), "")
		return
	}
	if len(sagas) == 0 {
		return
	}
	log.Ctx(ctx).Debugf("Claimed %d sagas for processing", len(sagas))

	for _, claimed := range sagas {
		worker, err := NewSagaWorker(m.models, m.steps, m.configStore, m.crashTrackerClient, m.monitorService, m.leaseDuration)
		if err != nil {
			m.crashTrackerClient.LogAndReportErrors(ctx, err, "")
			continue
		}

		go worker.Run(m.tenantAwareContext(ctx, claimed.TenantID), claimed)
	}
}

// tenantAwareContext resolves the claimed saga's tenant into the context so
// metric labels and notifications carry the tenant name, not just its id.
func (m *Manager) tenantAwareContext(ctx context.Context, tenantID string) context.Context {
	if m.tenantManager == nil {
		return ctx
	}

	t, err := m.tenantManager.GetTenantByID(ctx, tenantID)
	if err != nil {
		log.Ctx(ctx).Warnf("Error resolving tenant %s for saga processing: %v", tenantID, err)
		return ctx
	}
	return tenantctx.SetTenantInContext(ctx, t)
}

package clearing

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"

	"github.com/paymenthub/payment-engine-backend/internal/data"
	"github.com/paymenthub/payment-engine-backend/internal/log"
	"github.com/paymenthub/payment-engine-backend/internal/monitor"
	"github.com/paymenthub/payment-engine-backend/internal/serve/httpclient"
	"github.com/paymenthub/payment-engine-backend/internal/utils"
)

// RegistryInterface hands out the adapter for a rail and reports its live
// transport health.
type RegistryInterface interface {
	ForRail(ctx context.Context, tenantID string, rail data.Rail) (AdapterInterface, error)
	RailDegraded(ctx context.Context, tenantID string, rail data.Rail) (degraded bool, reason string)
}

// Registry builds rail adapters from their stored configuration. Breakers and
// rate limiters are shared per adapter row so every saga hitting the same rail
// sees the same transport state.
type Registry struct {
	models         *data.Models
	mappingEngine  *MappingEngine
	httpClient     httpclient.HttpClientInterface
	monitorService monitor.MonitorServiceInterface

	mu       sync.Mutex
	breakers map[string]*gobreaker.CircuitBreaker[*http.Response]
	limiters map[string]*rate.Limiter
}

var _ RegistryInterface = (*Registry)(nil)

func NewRegistry(models *data.Models, monitorService monitor.MonitorServiceInterface) (*Registry, error) {
	if models == nil {
		return nil, fmt.Errorf("models cannot be nil")
	}
	return &Registry{
		models:         models,
		mappingEngine:  NewMappingEngine(models),
		httpClient:     httpclient.DefaultClient(),
		monitorService: monitorService,
		breakers:       map[string]*gobreaker.CircuitBreaker[*http.Response]{},
		limiters:       map[string]*rate.Limiter{},
	}, nil
}

// ForRail resolves the tenant's adapter row for the rail and wraps it in a
// ready-to-call adapter. Disabled rails resolve to data.ErrRecordNotFound.
func (r *Registry) ForRail(ctx context.Context, tenantID string, rail data.Rail) (AdapterInterface, error) {
	config, err := r.models.ClearingAdapters.GetForRail(ctx, r.models.DBConnectionPool, tenantID, rail)
	if err != nil {
		return nil, fmt.Errorf("resolving %s adapter for tenant %s: %w", rail, tenantID, err)
	}

	return &railAdapter{
		config:         config,
		tenantID:       tenantID,
		mappingEngine:  r.mappingEngine,
		httpClient:     r.httpClient,
		breaker:        r.breakerFor(config),
		limiter:        r.limiterFor(config),
		monitorService: r.monitorService,
	}, nil
}

// RailDegraded reports whether the rail's shared breaker is not closed or its
// token bucket is exhausted. The routing resolver demotes such candidates
// behind healthy ones.
func (r *Registry) RailDegraded(ctx context.Context, tenantID string, rail data.Rail) (bool, string) {
	config, err := r.models.ClearingAdapters.GetForRail(ctx, r.models.DBConnectionPool, tenantID, rail)
	if err != nil {
		// Let the resolver's own row lookup decide what a missing row means.
		return false, ""
	}

	r.mu.Lock()
	breaker := r.breakers[config.ID]
	limiter := r.limiters[config.ID]
	r.mu.Unlock()

	if breaker != nil && breaker.State() != gobreaker.StateClosed {
		return true, fmt.Sprintf("circuit breaker %s", breaker.State())
	}
	if limiter != nil && limiter.Tokens() < 1 {
		return true, "rate limit exhausted"
	}
	return false, ""
}

func (r *Registry) breakerFor(config *data.ClearingAdapter) *gobreaker.CircuitBreaker[*http.Response] {
	r.mu.Lock()
	defer r.mu.Unlock()

	if breaker, ok := r.breakers[config.ID]; ok {
		return breaker
	}

	settings := utils.NewBreakerSettings(fmt.Sprintf("clearing-%s", config.Rail), r.onBreakerStateChange(config.Rail))
	if config.BreakerOpenTimeoutMS > 0 {
		settings.Timeout = config.BreakerOpenTimeout()
	}
	if threshold := uint32(config.BreakerFailureThreshold); threshold > 0 {
		settings.ReadyToTrip = func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= threshold && failureRatio >= utils.BreakerFailureRatio
		}
	}

	breaker := gobreaker.NewCircuitBreaker[*http.Response](settings)
	r.breakers[config.ID] = breaker
	return breaker
}

func (r *Registry) limiterFor(config *data.ClearingAdapter) *rate.Limiter {
	if config.MaxRPS <= 0 {
		return nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if limiter, ok := r.limiters[config.ID]; ok {
		return limiter
	}

	limiter := rate.NewLimiter(rate.Limit(config.MaxRPS), config.MaxRPS)
	r.limiters[config.ID] = limiter
	return limiter
}

func (r *Registry) onBreakerStateChange(rail data.Rail) func(name string, from, to gobreaker.State) {
	return func(name string, from, to gobreaker.State) {
		log.Warnf("Clearing circuit breaker %q transitioned from %s to %s", name, from, to)
		if r.monitorService == nil {
			return
		}

		labels := map[string]string{"rail": string(rail), "from_state": from.String(), "to_state": to.String()}
		if err := r.monitorService.MonitorCounters(monitor.BreakerTransitionsCounterTag, labels); err != nil {
			log.Errorf("monitoring clearing breaker transition: %v", err)
		}
	}
}

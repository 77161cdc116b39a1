package tenant

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/shopspring/decimal"

	"github.com/paymenthub/payment-engine-backend/internal/data"
	"github.com/paymenthub/payment-engine-backend/internal/db"
)

var ErrConfigNotFound = errors.New("tenant config not found")

const (
	// configCacheTTL bounds how stale a GetLatestConfig read can be on nodes
	// that did not serve the PutConfig write.
	configCacheTTL        = 30 * time.Second
	configCacheMaxEntries = 512
)

// KafkaResponseConfig carries the KafkaTopic response-mode parameters for one
// payment type. The mode itself comes from ResponseMode; these are knobs only.
type KafkaResponseConfig struct {
	TopicOverride string   `json:"topicOverride,omitempty"`
	TargetSystems []string `json:"targetSystems,omitempty"`
	Priority      string   `json:"priority,omitempty"`
}

type Timeouts struct {
	SagaDeadlineSeconds  int `json:"sagaDeadlineSeconds,omitempty"`
	SyncResponseBudgetMS int `json:"syncResponseBudgetMs,omitempty"`
}

// PaymentTypeConfig is one entry of the tenant's payment type matrix.
type PaymentTypeConfig struct {
	Code          string `json:"code"`
	Enabled       bool   `json:"enabled"`
	IsSynchronous bool   `json:"isSynchronous,omitempty"` // legacy flag, read only when responseMode is absent
	ResponseMode  string `json:"responseMode,omitempty"`

	KafkaResponseConfig *KafkaResponseConfig `json:"kafkaResponseConfig,omitempty"`

	MaxAmount      decimal.Decimal `json:"maxAmount,omitempty"`
	ProcessingFee  decimal.Decimal `json:"processingFee,omitempty"`
	Timeouts       Timeouts        `json:"timeouts,omitempty"`
	DefaultAdapter string          `json:"defaultAdapter,omitempty"`

	AllowedLocalInstruments []string `json:"allowedLocalInstruments,omitempty"`
}

// EffectiveResponseMode resolves the dispatch mode for this payment type.
// responseMode wins when present; the legacy isSynchronous flag only decides
// between sync and async for configs written before the mode field existed.
func (ptc PaymentTypeConfig) EffectiveResponseMode() (data.ResponseMode, error) {
	if ptc.ResponseMode != "" {
		return data.ParseResponseMode(ptc.ResponseMode)
	}
	if ptc.IsSynchronous {
		return data.SynchronousResponseMode, nil
	}
	return data.AsynchronousResponseMode, nil
}

// FraudToggle enables or disables scoring for a slice of traffic. Empty
// fields are wildcards; the most specific matching toggle wins.
type FraudToggle struct {
	PaymentType     string `json:"paymentType,omitempty"`
	LocalInstrument string `json:"localInstrument,omitempty"`
	ClearingSystem  string `json:"clearingSystem,omitempty"`
	Enabled         bool   `json:"enabled"`
}

type FraudConfig struct {
	Enabled        bool          `json:"enabled"`
	Provider       string        `json:"provider,omitempty"`
	ScoreThreshold int           `json:"scoreThreshold,omitempty"`
	Toggles        []FraudToggle `json:"toggles,omitempty"`
}

type NotificationConfig struct {
	EmailEnabled bool   `json:"emailEnabled,omitempty"`
	EmailAddress string `json:"emailAddress,omitempty"`
	SMSEnabled   bool   `json:"smsEnabled,omitempty"`
	PhoneNumber  string `json:"phoneNumber,omitempty"`
}

// ConfigPayload is the versioned tenant configuration document. A payment is
// pinned to the version current at intake and every saga step re-reads that
// same version.
type ConfigPayload struct {
	PaymentTypes map[string]PaymentTypeConfig `json:"paymentTypes"`
	Features     map[string]bool              `json:"features,omitempty"`
	Fraud        FraudConfig                  `json:"fraud,omitempty"`
	// DefaultAdapter is the tenant-wide fallback rail, consulted only when no
	// routing rule, payment type default or heuristic yields a route.
	DefaultAdapter string             `json:"defaultAdapter,omitempty"`
	CallbackURL    string             `json:"callbackUrl,omitempty"`
	CallbackSecret string             `json:"callbackSecret,omitempty"`
	Notifications  NotificationConfig `json:"notifications,omitempty"`
}

// PaymentType looks up the config entry for a payment type code.
func (p ConfigPayload) PaymentType(code string) (PaymentTypeConfig, bool) {
	ptc, ok := p.PaymentTypes[strings.ToUpper(strings.TrimSpace(code))]
	return ptc, ok
}

func (p ConfigPayload) FeatureEnabled(name string) bool {
	return p.Features[name]
}

func (p ConfigPayload) Value() (driver.Value, error) {
	return json.Marshal(p)
}

func (p *ConfigPayload) Scan(value interface{}) error {
	if value == nil {
		*p = ConfigPayload{}
		return nil
	}
	raw, ok := value.([]byte)
	if !ok {
		return fmt.Errorf("unexpected type %T for ConfigPayload", value)
	}
	return json.Unmarshal(raw, p)
}

var (
	_ driver.Valuer = (*ConfigPayload)(nil)
	_ sql.Scanner   = (*ConfigPayload)(nil)
)

type TenantConfig struct {
	ID        string        `json:"id" db:"id"`
	TenantID  string        `json:"tenant_id" db:"tenant_id"`
	Version   int           `json:"version" db:"version"`
	Payload   ConfigPayload `json:"payload" db:"payload"`
	CreatedBy string        `json:"created_by,omitempty" db:"created_by"`
	CreatedAt time.Time     `json:"created_at" db:"created_at"`
}

type ConfigStoreInterface interface {
	GetConfig(ctx context.Context, tenantID string, version int) (*TenantConfig, error)
	GetLatestConfig(ctx context.Context, tenantID string) (*TenantConfig, error)
	PutConfig(ctx context.Context, tenantID string, payload ConfigPayload, createdBy string) (*TenantConfig, error)
}

// ConfigStore reads and writes versioned tenant configs. Latest-version reads
// go through an expiring LRU; pinned-version reads (saga steps) always hit the
// database because old versions are immutable and cheap to fetch by unique key.
type ConfigStore struct {
	db    db.DBConnectionPool
	cache *expirable.LRU[string, *TenantConfig]
}

var _ ConfigStoreInterface = (*ConfigStore)(nil)

func NewConfigStore(dbConnectionPool db.DBConnectionPool) (*ConfigStore, error) {
	if dbConnectionPool == nil {
		return nil, fmt.Errorf("dbConnectionPool is required for NewConfigStore")
	}
	return &ConfigStore{
		db:    dbConnectionPool,
		cache: expirable.NewLRU[string, *TenantConfig](configCacheMaxEntries, nil, configCacheTTL),
	}, nil
}

const tenantConfigColumns = `
	id, tenant_id, version, payload, COALESCE(created_by, '') AS created_by, created_at
`

// GetConfig fetches an exact config version.
func (s *ConfigStore) GetConfig(ctx context.Context, tenantID string, version int) (*TenantConfig, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM tenant_configs WHERE tenant_id = $1 AND version = $2
	`, tenantConfigColumns)

	var cfg TenantConfig
	if err := s.db.GetContext(ctx, &cfg, query, tenantID, version); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrConfigNotFound
		}
		return nil, fmt.Errorf("getting config version %d for tenant %s: %w", version, tenantID, err)
	}
	return &cfg, nil
}

// GetLatestConfig returns the newest config version, served from the cache
// when fresh.
func (s *ConfigStore) GetLatestConfig(ctx context.Context, tenantID string) (*TenantConfig, error) {
	if cfg, ok := s.cache.Get(tenantID); ok {
		return cfg, nil
	}

	query := fmt.Sprintf(`
		SELECT %s FROM tenant_configs WHERE tenant_id = $1 ORDER BY version DESC LIMIT 1
	`, tenantConfigColumns)

	var cfg TenantConfig
	if err := s.db.GetContext(ctx, &cfg, query, tenantID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrConfigNotFound
		}
		return nil, fmt.Errorf("getting latest config for tenant %s: %w", tenantID, err)
	}

	s.cache.Add(tenantID, &cfg)
	return &cfg, nil
}

// PutConfig appends a new config version. The tenant row is locked so two
// concurrent writers cannot compute the same next version.
func (s *ConfigStore) PutConfig(ctx context.Context, tenantID string, payload ConfigPayload, createdBy string) (*TenantConfig, error) {
	cfg, err := db.RunInTransactionWithResult(ctx, s.db, nil, func(dbTx db.DBTransaction) (*TenantConfig, error) {
		var lockedID string
		err := dbTx.GetContext(ctx, &lockedID, "SELECT id FROM tenants WHERE id = $1 FOR UPDATE", tenantID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, ErrTenantDoesNotExist
			}
			return nil, fmt.Errorf("locking tenant %s: %w", tenantID, err)
		}

		query := fmt.Sprintf(`
			INSERT INTO tenant_configs
				(tenant_id, version, payload, created_by)
			SELECT
				$1, COALESCE(MAX(version), 0) + 1, $2, NULLIF($3, '')
			FROM
				tenant_configs
			WHERE
				tenant_id = $1
			RETURNING %s
		`, tenantConfigColumns)

		var inserted TenantConfig
		if err = dbTx.GetContext(ctx, &inserted, query, tenantID, payload, createdBy); err != nil {
			return nil, fmt.Errorf("inserting config for tenant %s: %w", tenantID, err)
		}
		return &inserted, nil
	})
	if err != nil {
		return nil, err
	}

	s.cache.Remove(tenantID)
	return cfg, nil
}

type PolicyViolation string

const (
	PaymentTypeNotEnabledViolation     PolicyViolation = "payment_type_not_enabled"
	LocalInstrumentNotAllowedViolation PolicyViolation = "local_instrument_not_allowed"
	AmountLimitExceededViolation       PolicyViolation = "amount_limit_exceeded"
)

// PolicyError reports which tenant policy a payment violated. Policy errors
// are terminal for the payment; they are never retried.
type PolicyError struct {
	Violation PolicyViolation
	Message   string
}

func (e *PolicyError) Error() string {
	return fmt.Sprintf("tenant policy violation (%s): %s", e.Violation, e.Message)
}

// ValidatePayment applies the tenant policy from a pinned config to a payment.
// A nil return means the payment is allowed.
func ValidatePayment(cfg *TenantConfig, p *data.Payment) error {
	ptc, ok := cfg.Payload.PaymentType(p.PaymentTypeCode)
	if !ok || !ptc.Enabled {
		return &PolicyError{
			Violation: PaymentTypeNotEnabledViolation,
			Message:   fmt.Sprintf("payment type %s is not enabled for this tenant", p.PaymentTypeCode),
		}
	}

	if p.LocalInstrument != "" && len(ptc.AllowedLocalInstruments) > 0 &&
		!slices.Contains(ptc.AllowedLocalInstruments, p.LocalInstrument) {
		return &PolicyError{
			Violation: LocalInstrumentNotAllowedViolation,
			Message:   fmt.Sprintf("local instrument %s is not allowed for payment type %s", p.LocalInstrument, p.PaymentTypeCode),
		}
	}

	if ptc.MaxAmount.IsPositive() && p.Amount.GreaterThan(ptc.MaxAmount) {
		return &PolicyError{
			Violation: AmountLimitExceededViolation,
			Message:   fmt.Sprintf("amount %s exceeds the %s limit %s", p.Amount, p.PaymentTypeCode, ptc.MaxAmount),
		}
	}

	return nil
}

package data

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"slices"
	"strings"
	"time"

	"github.com/lib/pq"

	"github.com/paymenthub/payment-engine-backend/internal/db"
)

// Rail identifies a clearing and settlement network.
type Rail string

const (
	SAMOSRail    Rail = "SAMOS"
	BankservRail Rail = "BANKSERV"
	RTCRail      Rail = "RTC"
	PayShapRail  Rail = "PAYSHAP"
	SWIFTRail    Rail = "SWIFT"
)

func Rails() []Rail {
	return []Rail{SAMOSRail, BankservRail, RTCRail, PayShapRail, SWIFTRail}
}

func (r Rail) Validate() error {
	if !slices.Contains(Rails(), r) {
		return fmt.Errorf("invalid rail %q", string(r))
	}
	return nil
}

func ToRail(s string) (Rail, error) {
	r := Rail(strings.ToUpper(strings.TrimSpace(s)))
	if err := r.Validate(); err != nil {
		return "", err
	}
	return r, nil
}

type ClearingAdapterStatus string

const (
	ActiveClearingAdapterStatus   ClearingAdapterStatus = "ACTIVE"
	DegradedClearingAdapterStatus ClearingAdapterStatus = "DEGRADED"
	DisabledClearingAdapterStatus ClearingAdapterStatus = "DISABLED"
)

func (s ClearingAdapterStatus) Validate() error {
	switch s {
	case ActiveClearingAdapterStatus, DegradedClearingAdapterStatus, DisabledClearingAdapterStatus:
		return nil
	default:
		return fmt.Errorf("invalid clearing adapter status %q", string(s))
	}
}

type AuthType string

const (
	NoneAuthType   AuthType = "None"
	ApiKeyAuthType AuthType = "ApiKey"
	BearerAuthType AuthType = "Bearer"
	OAuth2AuthType AuthType = "OAuth2"
)

// AuthConfig holds the credential material for an adapter endpoint. Secrets
// live here rather than in the headers column so they can be redacted in one
// place when configs are listed.
type AuthConfig struct {
	HeaderName   string `json:"header_name,omitempty"`
	APIKey       string `json:"api_key,omitempty"`
	Token        string `json:"token,omitempty"`
	TokenURL     string `json:"token_url,omitempty"`
	ClientID     string `json:"client_id,omitempty"`
	ClientSecret string `json:"client_secret,omitempty"`
	Scopes       string `json:"scopes,omitempty"`
}

func (ac AuthConfig) Value() (driver.Value, error) {
	return json.Marshal(ac)
}

func (ac *AuthConfig) Scan(value interface{}) error {
	if value == nil {
		*ac = AuthConfig{}
		return nil
	}
	data, ok := value.([]byte)
	if !ok {
		return fmt.Errorf("unexpected type %T for AuthConfig", value)
	}
	return json.Unmarshal(data, ac)
}

var (
	_ driver.Valuer = (*AuthConfig)(nil)
	_ sql.Scanner   = (*AuthConfig)(nil)
)

// HeaderMap stores static header or query parameter pairs as jsonb.
type HeaderMap map[string]string

func (h HeaderMap) Value() (driver.Value, error) {
	if h == nil {
		return json.Marshal(map[string]string{})
	}
	return json.Marshal(h)
}

func (h *HeaderMap) Scan(value interface{}) error {
	if value == nil {
		*h = HeaderMap{}
		return nil
	}
	data, ok := value.([]byte)
	if !ok {
		return fmt.Errorf("unexpected type %T for HeaderMap", value)
	}
	return json.Unmarshal(data, h)
}

var (
	_ driver.Valuer = (*HeaderMap)(nil)
	_ sql.Scanner   = (*HeaderMap)(nil)
)

// AdapterCapability names an operation a rail endpoint supports.
type AdapterCapability string

const (
	SubmitCapability       AdapterCapability = "submit"
	CancelCapability       AdapterCapability = "cancel"
	PollCapability         AdapterCapability = "poll"
	ReceiveAsyncCapability AdapterCapability = "receive-async"
)

type Capabilities []AdapterCapability

func (c Capabilities) Has(capability AdapterCapability) bool {
	return slices.Contains(c, capability)
}

func (c Capabilities) Value() (driver.Value, error) {
	if c == nil {
		return json.Marshal([]AdapterCapability{})
	}
	return json.Marshal(c)
}

func (c *Capabilities) Scan(value interface{}) error {
	if value == nil {
		*c = Capabilities{}
		return nil
	}
	data, ok := value.([]byte)
	if !ok {
		return fmt.Errorf("unexpected type %T for Capabilities", value)
	}
	return json.Unmarshal(data, c)
}

var (
	_ driver.Valuer = (*Capabilities)(nil)
	_ sql.Scanner   = (*Capabilities)(nil)
)

// ClearingAdapter is the stored endpoint configuration for one rail. A row
// with a NULL tenant_id is the shared configuration; a tenant row overrides
// it for that tenant only.
type ClearingAdapter struct {
	ID                      string                `json:"id" db:"id"`
	TenantID                string                `json:"tenant_id,omitempty" db:"tenant_id"`
	Rail                    Rail                  `json:"rail" db:"rail"`
	BaseURL                 string                `json:"base_url" db:"base_url"`
	EndpointPath            string                `json:"endpoint_path" db:"endpoint_path"`
	HTTPMethod              string                `json:"http_method" db:"http_method"`
	Headers                 HeaderMap             `json:"headers" db:"headers"`
	QueryParams             HeaderMap             `json:"query_params" db:"query_params"`
	AuthType                AuthType              `json:"auth_type" db:"auth_type"`
	AuthConfig              AuthConfig            `json:"-" db:"auth_config"`
	TimeoutMS               int                   `json:"timeout_ms" db:"timeout_ms"`
	MaxRetries              int                   `json:"max_retries" db:"max_retries"`
	BreakerFailureThreshold int                   `json:"breaker_failure_threshold" db:"breaker_failure_threshold"`
	BreakerOpenTimeoutMS    int                   `json:"breaker_open_timeout_ms" db:"breaker_open_timeout_ms"`
	MaxRPS                  int                   `json:"max_rps" db:"max_rps"`
	RequestMappingID        string                `json:"request_mapping_id,omitempty" db:"request_mapping_id"`
	ResponseMappingID       string                `json:"response_mapping_id,omitempty" db:"response_mapping_id"`
	Capabilities            Capabilities          `json:"capabilities" db:"capabilities"`
	Status                  ClearingAdapterStatus `json:"status" db:"status"`
	CreatedAt               time.Time             `json:"created_at" db:"created_at"`
	UpdatedAt               time.Time             `json:"updated_at" db:"updated_at"`
}

func (a *ClearingAdapter) Timeout() time.Duration {
	return time.Duration(a.TimeoutMS) * time.Millisecond
}

func (a *ClearingAdapter) BreakerOpenTimeout() time.Duration {
	return time.Duration(a.BreakerOpenTimeoutMS) * time.Millisecond
}

// EndpointURL joins the base URL and path, keeping base query parameters.
func (a *ClearingAdapter) EndpointURL() (string, error) {
	u, err := url.Parse(a.BaseURL)
	if err != nil {
		return "", fmt.Errorf("parsing base URL for rail %s: %w", a.Rail, err)
	}
	u = u.JoinPath(a.EndpointPath)
	if len(a.QueryParams) > 0 {
		q := u.Query()
		for k, v := range a.QueryParams {
			q.Set(k, v)
		}
		u.RawQuery = q.Encode()
	}
	return u.String(), nil
}

type ClearingAdapterModel struct {
	dbConnectionPool db.DBConnectionPool
}

type ClearingAdapterInsert struct {
	TenantID                *string               `db:"tenant_id"`
	Rail                    Rail                  `db:"rail"`
	BaseURL                 string                `db:"base_url"`
	EndpointPath            string                `db:"endpoint_path"`
	HTTPMethod              string                `db:"http_method"`
	Headers                 HeaderMap             `db:"headers"`
	QueryParams             HeaderMap             `db:"query_params"`
	AuthType                AuthType              `db:"auth_type"`
	AuthConfig              AuthConfig            `db:"auth_config"`
	TimeoutMS               int                   `db:"timeout_ms"`
	MaxRetries              int                   `db:"max_retries"`
	BreakerFailureThreshold int                   `db:"breaker_failure_threshold"`
	BreakerOpenTimeoutMS    int                   `db:"breaker_open_timeout_ms"`
	MaxRPS                  int                   `db:"max_rps"`
	RequestMappingID        *string               `db:"request_mapping_id"`
	ResponseMappingID       *string               `db:"response_mapping_id"`
	Capabilities            Capabilities          `db:"capabilities"`
	Status                  ClearingAdapterStatus `db:"status"`
}

func (i *ClearingAdapterInsert) Validate() error {
	if err := i.Rail.Validate(); err != nil {
		return fmt.Errorf("validating rail: %w", err)
	}
	if _, err := url.ParseRequestURI(i.BaseURL); err != nil {
		return fmt.Errorf("validating base_url: %w", err)
	}
	if i.TimeoutMS < 0 {
		return fmt.Errorf("timeout_ms must not be negative")
	}
	return nil
}

func ClearingAdapterColumnNames(tableReference, resultAlias string) string {
	columns := GenerateColumnNames(SQLColumnConfig{
		TableReference: tableReference,
		ResultAlias:    resultAlias,
		Columns: []string{
			"id",
			"rail",
			"base_url",
			"endpoint_path",
			"http_method",
			"headers",
			"query_params",
			"auth_type",
			"auth_config",
			"timeout_ms",
			"max_retries",
			"breaker_failure_threshold",
			"breaker_open_timeout_ms",
			"max_rps",
			"capabilities",
			"status",
			"created_at",
			"updated_at",
		},
	})

	columns = append(columns, GenerateColumnNames(SQLColumnConfig{
		TableReference:        tableReference,
		ResultAlias:           resultAlias,
		CoalesceToEmptyString: true,
		Columns: []string{
			"tenant_id",
			"request_mapping_id",
			"response_mapping_id",
		},
	})...)

	return strings.Join(columns, ",\n")
}

// GetForRail resolves the adapter for a tenant and rail, preferring the
// tenant's own row over the shared one. Disabled adapters never resolve.
func (m *ClearingAdapterModel) GetForRail(ctx context.Context, sqlExec db.SQLExecuter, tenantID string, rail Rail) (*ClearingAdapter, error) {
	query := fmt.Sprintf(`
		SELECT
			%s
		FROM
			clearing_adapters ca
		WHERE
			ca.rail = $1
			AND (ca.tenant_id = $2 OR ca.tenant_id IS NULL)
			AND ca.status != $3
		ORDER BY
			ca.tenant_id NULLS LAST
		LIMIT 1
	`, ClearingAdapterColumnNames("ca", ""))

	var adapter ClearingAdapter
	err := sqlExec.GetContext(ctx, &adapter, query, rail, tenantID, DisabledClearingAdapterStatus)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrRecordNotFound
		}
		return nil, fmt.Errorf("getting clearing adapter for rail %s: %w", rail, err)
	}

	return &adapter, nil
}

// GetAllEnabled returns every non-disabled adapter, shared rows first. The
// registry uses this to warm breakers and limiters at startup.
func (m *ClearingAdapterModel) GetAllEnabled(ctx context.Context, sqlExec db.SQLExecuter) ([]ClearingAdapter, error) {
	query := fmt.Sprintf(`
		SELECT
			%s
		FROM
			clearing_adapters ca
		WHERE
			ca.status != $1
		ORDER BY
			ca.tenant_id NULLS FIRST, ca.rail ASC
	`, ClearingAdapterColumnNames("ca", ""))

	adapters := []ClearingAdapter{}
	err := sqlExec.SelectContext(ctx, &adapters, query, DisabledClearingAdapterStatus)
	if err != nil {
		return nil, fmt.Errorf("querying clearing adapters: %w", err)
	}

	return adapters, nil
}

func (m *ClearingAdapterModel) Get(ctx context.Context, sqlExec db.SQLExecuter, id string) (*ClearingAdapter, error) {
	query := fmt.Sprintf(`
		SELECT
			%s
		FROM
			clearing_adapters ca
		WHERE
			ca.id = $1
	`, ClearingAdapterColumnNames("ca", ""))

	var adapter ClearingAdapter
	err := sqlExec.GetContext(ctx, &adapter, query, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrRecordNotFound
		}
		return nil, fmt.Errorf("getting clearing adapter %s: %w", id, err)
	}

	return &adapter, nil
}

func (m *ClearingAdapterModel) Insert(ctx context.Context, sqlExec db.SQLExecuter, insert ClearingAdapterInsert) (*ClearingAdapter, error) {
	if err := insert.Validate(); err != nil {
		return nil, fmt.Errorf("validating clearing adapter insert: %w", err)
	}

	if insert.HTTPMethod == "" {
		insert.HTTPMethod = "POST"
	}
	if insert.AuthType == "" {
		insert.AuthType = NoneAuthType
	}
	if insert.TimeoutMS == 0 {
		insert.TimeoutMS = 30000
	}
	if insert.Status == "" {
		insert.Status = ActiveClearingAdapterStatus
	}

	query := `
		INSERT INTO clearing_adapters
			(tenant_id, rail, base_url, endpoint_path, http_method, headers, query_params,
			 auth_type, auth_config, timeout_ms, max_retries, breaker_failure_threshold,
			 breaker_open_timeout_ms, max_rps, request_mapping_id, response_mapping_id,
			 capabilities, status)
		VALUES
			($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
		RETURNING id
	`

	var id string
	err := sqlExec.GetContext(ctx, &id, query,
		insert.TenantID,
		insert.Rail,
		insert.BaseURL,
		insert.EndpointPath,
		insert.HTTPMethod,
		insert.Headers,
		insert.QueryParams,
		insert.AuthType,
		insert.AuthConfig,
		insert.TimeoutMS,
		insert.MaxRetries,
		insert.BreakerFailureThreshold,
		insert.BreakerOpenTimeoutMS,
		insert.MaxRPS,
		insert.RequestMappingID,
		insert.ResponseMappingID,
		insert.Capabilities,
		insert.Status,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return nil, ErrRecordAlreadyExists
		}
		return nil, fmt.Errorf("inserting clearing adapter: %w", err)
	}

	return m.Get(ctx, sqlExec, id)
}

// UpdateStatus moves an adapter between ACTIVE, DEGRADED and DISABLED. The
// routing resolver deprioritizes DEGRADED rails and skips DISABLED ones.
func (m *ClearingAdapterModel) UpdateStatus(ctx context.Context, sqlExec db.SQLExecuter, id string, status ClearingAdapterStatus) error {
	if err := status.Validate(); err != nil {
		return fmt.Errorf("validating clearing adapter status: %w", err)
	}

	query := `UPDATE clearing_adapters SET status = $1 WHERE id = $2`

	result, err := sqlExec.ExecContext(ctx, query, status, id)
	if err != nil {
		return fmt.Errorf("updating clearing adapter %s status: %w", id, err)
	}
	if numRowsAffected, _ := result.RowsAffected(); numRowsAffected == 0 {
		return ErrRecordNotFound
	}
	return nil
}

package data

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/paymenthub/payment-engine-backend/internal/db"
)

// RoutingRule matches payments to a clearing rail. NULL criteria columns are
// wildcards; lower priority wins. Rules with a NULL tenant_id are shared
// defaults that apply to every tenant.
type RoutingRule struct {
	ID              string              `json:"id" db:"id"`
	TenantID        string              `json:"tenant_id,omitempty" db:"tenant_id"`
	PaymentTypeCode string              `json:"payment_type_code,omitempty" db:"payment_type_code"`
	LocalInstrument string              `json:"local_instrument,omitempty" db:"local_instrument"`
	Currency        string              `json:"currency,omitempty" db:"currency"`
	MinAmount       decimal.NullDecimal `json:"min_amount,omitempty" db:"min_amount"`
	MaxAmount       decimal.NullDecimal `json:"max_amount,omitempty" db:"max_amount"`
	Priority        int                 `json:"priority" db:"priority"`
	Rail            Rail                `json:"rail" db:"rail"`
	Enabled         bool                `json:"enabled" db:"enabled"`
	Description     string              `json:"description,omitempty" db:"description"`
	CreatedAt       time.Time           `json:"created_at" db:"created_at"`
	UpdatedAt       time.Time           `json:"updated_at" db:"updated_at"`
}

type RoutingRuleModel struct {
	dbConnectionPool db.DBConnectionPool
}

// RoutingRuleInsert carries the optional criteria as pointers so empty means
// wildcard rather than matching the empty string.
type RoutingRuleInsert struct {
	TenantID        *string             `db:"tenant_id"`
	PaymentTypeCode *string             `db:"payment_type_code"`
	LocalInstrument *string             `db:"local_instrument"`
	Currency        *string             `db:"currency"`
	MinAmount       decimal.NullDecimal `db:"min_amount"`
	MaxAmount       decimal.NullDecimal `db:"max_amount"`
	Priority        int                 `db:"priority"`
	Rail            Rail                `db:"rail"`
	Description     string              `db:"description"`
}

func (r *RoutingRuleInsert) Validate() error {
	if err := r.Rail.Validate(); err != nil {
		return fmt.Errorf("validating rail: %w", err)
	}
	if r.MinAmount.Valid && r.MaxAmount.Valid && r.MinAmount.Decimal.GreaterThan(r.MaxAmount.Decimal) {
		return fmt.Errorf("min_amount must not exceed max_amount")
	}
	if r.Currency != nil && len(*r.Currency) != 3 {
		return fmt.Errorf("currency must be a 3-letter ISO 4217 code")
	}
	return nil
}

// RoutingMatchQuery carries the payment attributes a rule is matched against.
type RoutingMatchQuery struct {
	PaymentTypeCode string
	LocalInstrument string
	Currency        string
	Amount          decimal.Decimal
}

func RoutingRuleColumnNames(tableReference, resultAlias string) string {
	columns := GenerateColumnNames(SQLColumnConfig{
		TableReference: tableReference,
		ResultAlias:    resultAlias,
		Columns: []string{
			"id",
			"min_amount",
			"max_amount",
			"priority",
			"rail",
			"enabled",
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
			"payment_type_code",
			"local_instrument",
			"currency",
			"description",
		},
	})...)

	return strings.Join(columns, ",\n")
}

// GetMatching returns the enabled rules that match the payment, tenant rules
// before shared ones, then by ascending priority. The caller picks the head
// and keeps the tail as failover candidates.
func (m *RoutingRuleModel) GetMatching(ctx context.Context, sqlExec db.SQLExecuter, tenantID string, matchQuery RoutingMatchQuery) ([]RoutingRule, error) {
	query := fmt.Sprintf(`
		SELECT
			%s
		FROM
			routing_rules rr
		WHERE
			rr.enabled IS TRUE
			AND (rr.tenant_id = $1 OR rr.tenant_id IS NULL)
			AND (rr.payment_type_code IS NULL OR rr.payment_type_code = $2)
			AND (rr.local_instrument IS NULL OR rr.local_instrument = $3)
			AND (rr.currency IS NULL OR rr.currency = $4)
			AND (rr.min_amount IS NULL OR rr.min_amount <= $5)
			AND (rr.max_amount IS NULL OR rr.max_amount >= $5)
		ORDER BY
			rr.tenant_id NULLS LAST, rr.priority ASC, rr.created_at ASC
	`, RoutingRuleColumnNames("rr", ""))

	rules := []RoutingRule{}
	err := sqlExec.SelectContext(ctx, &rules, query,
		tenantID,
		matchQuery.PaymentTypeCode,
		matchQuery.LocalInstrument,
		matchQuery.Currency,
		matchQuery.Amount,
	)
	if err != nil {
		return nil, fmt.Errorf("querying matching routing rules: %w", err)
	}

	return rules, nil
}

func (m *RoutingRuleModel) Insert(ctx context.Context, sqlExec db.SQLExecuter, insert RoutingRuleInsert) (*RoutingRule, error) {
	if err := insert.Validate(); err != nil {
		return nil, fmt.Errorf("validating routing rule insert: %w", err)
	}

	query := `
		INSERT INTO routing_rules
			(tenant_id, payment_type_code, local_instrument, currency, min_amount, max_amount, priority, rail, description)
		VALUES
			($1, $2, $3, $4, $5, $6, $7, $8, NULLIF($9, ''))
		RETURNING id
	`

	var id string
	err := sqlExec.GetContext(ctx, &id, query,
		insert.TenantID,
		insert.PaymentTypeCode,
		insert.LocalInstrument,
		insert.Currency,
		insert.MinAmount,
		insert.MaxAmount,
		insert.Priority,
		insert.Rail,
		insert.Description,
	)
	if err != nil {
		return nil, fmt.Errorf("inserting routing rule: %w", err)
	}

	return m.Get(ctx, sqlExec, id)
}

func (m *RoutingRuleModel) Get(ctx context.Context, sqlExec db.SQLExecuter, id string) (*RoutingRule, error) {
	query := fmt.Sprintf(`
		SELECT
			%s
		FROM
			routing_rules rr
		WHERE
			rr.id = $1
	`, RoutingRuleColumnNames("rr", ""))

	var rule RoutingRule
	err := sqlExec.GetContext(ctx, &rule, query, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrRecordNotFound
		}
		return nil, fmt.Errorf("getting routing rule %s: %w", id, err)
	}

	return &rule, nil
}

// GetAll lists rules visible to the tenant: its own plus the shared defaults.
func (m *RoutingRuleModel) GetAll(ctx context.Context, sqlExec db.SQLExecuter, tenantID string) ([]RoutingRule, error) {
	query := fmt.Sprintf(`
		SELECT
			%s
		FROM
			routing_rules rr
		WHERE
			rr.tenant_id = $1 OR rr.tenant_id IS NULL
		ORDER BY
			rr.tenant_id NULLS LAST, rr.priority ASC, rr.created_at ASC
	`, RoutingRuleColumnNames("rr", ""))

	rules := []RoutingRule{}
	err := sqlExec.SelectContext(ctx, &rules, query, tenantID)
	if err != nil {
		return nil, fmt.Errorf("querying routing rules: %w", err)
	}

	return rules, nil
}

// SetEnabled toggles a rule without deleting its history.
func (m *RoutingRuleModel) SetEnabled(ctx context.Context, sqlExec db.SQLExecuter, id string, enabled bool) error {
	query := `UPDATE routing_rules SET enabled = $1 WHERE id = $2`

	result, err := sqlExec.ExecContext(ctx, query, enabled, id)
	if err != nil {
		return fmt.Errorf("updating routing rule %s: %w", id, err)
	}
	if numRowsAffected, _ := result.RowsAffected(); numRowsAffected == 0 {
		return ErrRecordNotFound
	}
	return nil
}

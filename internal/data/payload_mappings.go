package data

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/paymenthub/payment-engine-backend/internal/db"
)

type MappingDirection string

const (
	RequestMappingDirection  MappingDirection = "REQUEST"
	ResponseMappingDirection MappingDirection = "RESPONSE"
)

func (d MappingDirection) Validate() error {
	switch d {
	case RequestMappingDirection, ResponseMappingDirection:
		return nil
	default:
		return fmt.Errorf("invalid mapping direction %q", string(d))
	}
}

type RuleKind string

const (
	CopyRuleKind           RuleKind = "copy"
	ConstRuleKind          RuleKind = "const"
	UppercaseRuleKind      RuleKind = "uppercase"
	CurrencyFormatRuleKind RuleKind = "currency_format"
	DateFormatRuleKind     RuleKind = "date_format"
	UUIDGenerateRuleKind   RuleKind = "uuid_generate"
	NowRuleKind            RuleKind = "now"
	ConditionalRuleKind    RuleKind = "conditional"
)

// Units accepted by currency_format rules.
const (
	MinorUnitsFormat = "minor_units"
	DecimalFormat    = "decimal"
)

// RuleCondition gates a conditional rule on an input field value.
type RuleCondition struct {
	Field  string `json:"field"`
	Equals string `json:"equals"`
}

// TransformationRule is one declarative step of a payload mapping. Source and
// Target are dot paths into the input and output documents.
type TransformationRule struct {
	Kind   RuleKind       `json:"kind"`
	Source string         `json:"source,omitempty"`
	Target string         `json:"target"`
	Value  string         `json:"value,omitempty"`
	Layout string         `json:"layout,omitempty"`
	Units  string         `json:"units,omitempty"`
	When   *RuleCondition `json:"when,omitempty"`
	Then   string         `json:"then,omitempty"`
	Else   string         `json:"else,omitempty"`
}

func (r TransformationRule) Validate() error {
	if r.Target == "" {
		return fmt.Errorf("rule target is required")
	}
	switch r.Kind {
	case CopyRuleKind, UppercaseRuleKind, DateFormatRuleKind:
		if r.Source == "" {
			return fmt.Errorf("%s rule requires a source", r.Kind)
		}
	case CurrencyFormatRuleKind:
		if r.Source == "" {
			return fmt.Errorf("%s rule requires a source", r.Kind)
		}
		if r.Units != MinorUnitsFormat && r.Units != DecimalFormat {
			return fmt.Errorf("currency_format rule requires units %q or %q", MinorUnitsFormat, DecimalFormat)
		}
	case ConstRuleKind:
		if r.Value == "" {
			return fmt.Errorf("const rule requires a value")
		}
	case UUIDGenerateRuleKind, NowRuleKind:
		// Target-only rules.
	case ConditionalRuleKind:
		if r.When == nil || r.When.Field == "" {
			return fmt.Errorf("conditional rule requires a when clause")
		}
	default:
		return fmt.Errorf("invalid rule kind %q", string(r.Kind))
	}
	return nil
}

type TransformationRules []TransformationRule

func (tr TransformationRules) Value() (driver.Value, error) {
	if tr == nil {
		return json.Marshal([]TransformationRule{})
	}
	return json.Marshal(tr)
}

func (tr *TransformationRules) Scan(value interface{}) error {
	if value == nil {
		*tr = TransformationRules{}
		return nil
	}
	data, ok := value.([]byte)
	if !ok {
		return fmt.Errorf("unexpected type %T for TransformationRules", value)
	}
	return json.Unmarshal(data, tr)
}

var (
	_ driver.Valuer = (*TransformationRules)(nil)
	_ sql.Scanner   = (*TransformationRules)(nil)
)

// PayloadMapping is a named, reusable set of transformation rules applied to
// requests before submission to a rail or to responses coming back from it.
type PayloadMapping struct {
	ID        string              `json:"id" db:"id"`
	TenantID  string              `json:"tenant_id,omitempty" db:"tenant_id"`
	Name      string              `json:"name" db:"name"`
	Direction MappingDirection    `json:"direction" db:"direction"`
	Rules     TransformationRules `json:"rules" db:"rules"`
	CreatedAt time.Time           `json:"created_at" db:"created_at"`
	UpdatedAt time.Time           `json:"updated_at" db:"updated_at"`
}

type PayloadMappingModel struct {
	dbConnectionPool db.DBConnectionPool
}

type PayloadMappingInsert struct {
	TenantID  *string             `db:"tenant_id"`
	Name      string              `db:"name"`
	Direction MappingDirection    `db:"direction"`
	Rules     TransformationRules `db:"rules"`
}

func (i *PayloadMappingInsert) Validate() error {
	if i.Name == "" {
		return fmt.Errorf("name is required")
	}
	if err := i.Direction.Validate(); err != nil {
		return err
	}
	for idx, rule := range i.Rules {
		if err := rule.Validate(); err != nil {
			return fmt.Errorf("validating rule %d: %w", idx, err)
		}
	}
	return nil
}

func (m *PayloadMappingModel) Get(ctx context.Context, sqlExec db.SQLExecuter, id string) (*PayloadMapping, error) {
	query := `
		SELECT
			id, COALESCE(tenant_id, '') AS tenant_id, name, direction, rules, created_at, updated_at
		FROM
			payload_mappings
		WHERE
			id = $1
	`

	var mapping PayloadMapping
	err := sqlExec.GetContext(ctx, &mapping, query, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrRecordNotFound
		}
		return nil, fmt.Errorf("getting payload mapping %s: %w", id, err)
	}

	return &mapping, nil
}

func (m *PayloadMappingModel) Insert(ctx context.Context, sqlExec db.SQLExecuter, insert PayloadMappingInsert) (*PayloadMapping, error) {
	if err := insert.Validate(); err != nil {
		return nil, fmt.Errorf("validating payload mapping insert: %w", err)
	}

	query := `
		INSERT INTO payload_mappings
			(tenant_id, name, direction, rules)
		VALUES
			($1, $2, $3, $4)
		RETURNING id
	`

	var id string
	err := sqlExec.GetContext(ctx, &id, query, insert.TenantID, insert.Name, insert.Direction, insert.Rules)
	if err != nil {
		return nil, fmt.Errorf("inserting payload mapping: %w", err)
	}

	return m.Get(ctx, sqlExec, id)
}

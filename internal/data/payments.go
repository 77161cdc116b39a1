package data

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"
	"github.com/shopspring/decimal"

	"github.com/paymenthub/payment-engine-backend/internal/db"
	"github.com/paymenthub/payment-engine-backend/internal/iso20022"
	"github.com/paymenthub/payment-engine-backend/internal/log"
)

// ResponseMode selects how the pain.002 outcome of a payment reaches the
// tenant. The column on the payment row is authoritative; tenant config JSON
// only supplies mode parameters.
type ResponseMode string

const (
	SynchronousResponseMode  ResponseMode = "SYNCHRONOUS"
	AsynchronousResponseMode ResponseMode = "ASYNCHRONOUS"
	KafkaTopicResponseMode   ResponseMode = "KAFKA_TOPIC"
)

// ParseResponseMode normalizes both column values ("KAFKA_TOPIC") and tenant
// config spellings ("KafkaTopic").
func ParseResponseMode(s string) (ResponseMode, error) {
	switch strings.ToUpper(strings.ReplaceAll(s, "_", "")) {
	case "SYNCHRONOUS":
		return SynchronousResponseMode, nil
	case "ASYNCHRONOUS":
		return AsynchronousResponseMode, nil
	case "KAFKATOPIC":
		return KafkaTopicResponseMode, nil
	default:
		return "", fmt.Errorf("invalid response mode: %s", s)
	}
}

func (m ResponseMode) Validate() error {
	_, err := ParseResponseMode(string(m))
	return err
}

type Payment struct {
	ID                     string               `json:"id" db:"id"`
	TenantID               string               `json:"tenant_id" db:"tenant_id"`
	BusinessUnitID         string               `json:"business_unit_id,omitempty" db:"business_unit_id"`
	CustomerID             string               `json:"customer_id,omitempty" db:"customer_id"`
	IdempotencyKey         string               `json:"idempotency_key" db:"idempotency_key"`
	UETR                   string               `json:"uetr" db:"uetr"`
	EndToEndID             string               `json:"end_to_end_id" db:"end_to_end_id"`
	InstructionID          string               `json:"instruction_id,omitempty" db:"instruction_id"`
	OriginalMessageID      string               `json:"original_message_id,omitempty" db:"original_message_id"`
	PaymentTypeCode        string               `json:"payment_type_code" db:"payment_type_code"`
	LocalInstrument        string               `json:"local_instrument,omitempty" db:"local_instrument"`
	Amount                 decimal.Decimal      `json:"amount" db:"amount"`
	Currency               string               `json:"currency" db:"currency"`
	DebtorName             string               `json:"debtor_name" db:"debtor_name"`
	DebtorAccount          string               `json:"debtor_account" db:"debtor_account"`
	DebtorAgentBIC         string               `json:"debtor_agent_bic,omitempty" db:"debtor_agent_bic"`
	CreditorName           string               `json:"creditor_name" db:"creditor_name"`
	CreditorAccount        string               `json:"creditor_account" db:"creditor_account"`
	CreditorAgentBIC       string               `json:"creditor_agent_bic,omitempty" db:"creditor_agent_bic"`
	RemittanceInfo         string               `json:"remittance_info,omitempty" db:"remittance_info"`
	RequestedExecutionDate *time.Time           `json:"requested_execution_date,omitempty" db:"requested_execution_date"`
	Status                 PaymentStatus        `json:"status" db:"status"`
	StatusReason           string               `json:"status_reason,omitempty" db:"status_reason"`
	StatusHistory          PaymentStatusHistory `json:"status_history,omitempty" db:"status_history"`
	ConfigVersion          int                  `json:"config_version" db:"config_version"`
	ResponseMode           ResponseMode         `json:"response_mode" db:"response_mode"`
	Rail                   Rail                 `json:"rail,omitempty" db:"rail"`
	ClearingReference      string               `json:"clearing_reference,omitempty" db:"clearing_reference"`
	ResponseSnapshot       []byte               `json:"-" db:"response_snapshot"`
	ResponseHTTPStatus     int                  `json:"-" db:"response_http_status"`
	CreatedAt              time.Time            `json:"created_at" db:"created_at"`
	UpdatedAt              time.Time            `json:"updated_at" db:"updated_at"`
	CompletedAt            *time.Time           `json:"completed_at,omitempty" db:"completed_at"`
}

// Money rebuilds the payment's monetary value from the stored columns.
func (p *Payment) Money() iso20022.Money {
	return iso20022.Money{Amount: p.Amount, Currency: p.Currency}
}

type PaymentStatusHistoryEntry struct {
	Status       PaymentStatus `json:"status"`
	StatusReason string        `json:"status_reason"`
	Timestamp    time.Time     `json:"timestamp"`
}

type PaymentStatusHistory []PaymentStatusHistoryEntry

// Value implements the driver.Valuer interface.
func (psh PaymentStatusHistory) Value() (driver.Value, error) {
	var statusHistoryJSON []string
	for _, sh := range psh {
		shJSONBytes, err := json.Marshal(sh)
		if err != nil {
			return nil, fmt.Errorf("converting status history to json: %w", err)
		}
		statusHistoryJSON = append(statusHistoryJSON, string(shJSONBytes))
	}

	return pq.Array(statusHistoryJSON).Value()
}

var _ driver.Valuer = (*PaymentStatusHistory)(nil)

// Scan implements the sql.Scanner interface.
func (psh *PaymentStatusHistory) Scan(src interface{}) error {
	var statusHistoryJSON []string
	if err := pq.Array(&statusHistoryJSON).Scan(src); err != nil {
		return fmt.Errorf("scanning status history value: %w", err)
	}

	for _, sh := range statusHistoryJSON {
		var shEntry PaymentStatusHistoryEntry
		err := json.Unmarshal([]byte(sh), &shEntry)
		if err != nil {
			return fmt.Errorf("unmarshaling status_history column: %w", err)
		}
		*psh = append(*psh, shEntry)
	}

	return nil
}

var _ sql.Scanner = (*PaymentStatusHistory)(nil)

type PaymentModel struct {
	dbConnectionPool db.DBConnectionPool
}

var (
	DefaultPaymentSortField = SortFieldCreatedAt
	DefaultPaymentSortOrder = SortOrderDESC
	AllowedPaymentFilters   = []FilterKey{FilterKeyStatus, FilterKeyPaymentType, FilterKeyRail, FilterKeyUETR, FilterKeyCreatedAtAfter, FilterKeyCreatedAtBefore}
	AllowedPaymentSorts     = []SortField{SortFieldCreatedAt, SortFieldUpdatedAt}
)

type PaymentInsert struct {
	TenantID               string          `db:"tenant_id"`
	BusinessUnitID         string          `db:"business_unit_id"`
	CustomerID             string          `db:"customer_id"`
	IdempotencyKey         string          `db:"idempotency_key"`
	UETR                   string          `db:"uetr"`
	EndToEndID             string          `db:"end_to_end_id"`
	InstructionID          string          `db:"instruction_id"`
	OriginalMessageID      string          `db:"original_message_id"`
	PaymentTypeCode        string          `db:"payment_type_code"`
	LocalInstrument        string          `db:"local_instrument"`
	Amount                 decimal.Decimal `db:"amount"`
	Currency               string          `db:"currency"`
	DebtorName             string          `db:"debtor_name"`
	DebtorAccount          string          `db:"debtor_account"`
	DebtorAgentBIC         string          `db:"debtor_agent_bic"`
	CreditorName           string          `db:"creditor_name"`
	CreditorAccount        string          `db:"creditor_account"`
	CreditorAgentBIC       string          `db:"creditor_agent_bic"`
	RemittanceInfo         string          `db:"remittance_info"`
	RequestedExecutionDate *time.Time      `db:"requested_execution_date"`
	ConfigVersion          int             `db:"config_version"`
	ResponseMode           ResponseMode    `db:"response_mode"`
}

func (p *PaymentInsert) Validate() error {
	if strings.TrimSpace(p.TenantID) == "" {
		return fmt.Errorf("tenant_id is required")
	}

	if strings.TrimSpace(p.IdempotencyKey) == "" {
		return fmt.Errorf("idempotency_key is required")
	}

	if _, err := iso20022.ParseUETR(p.UETR); err != nil {
		return fmt.Errorf("uetr is invalid: %w", err)
	}

	if strings.TrimSpace(p.EndToEndID) == "" {
		return fmt.Errorf("end_to_end_id is required")
	}

	if strings.TrimSpace(p.PaymentTypeCode) == "" {
		return fmt.Errorf("payment_type_code is required")
	}

	if _, err := iso20022.NewMoneyFromDecimal(p.Amount, p.Currency); err != nil {
		return fmt.Errorf("amount is invalid: %w", err)
	}

	if !p.Amount.IsPositive() {
		return fmt.Errorf("amount must be positive")
	}

	if strings.TrimSpace(p.DebtorAccount) == "" {
		return fmt.Errorf("debtor_account is required")
	}

	if strings.TrimSpace(p.CreditorAccount) == "" {
		return fmt.Errorf("creditor_account is required")
	}

	if p.ConfigVersion <= 0 {
		return fmt.Errorf("config_version is required")
	}

	if err := p.ResponseMode.Validate(); err != nil {
		return fmt.Errorf("response_mode is invalid: %w", err)
	}

	return nil
}

// PaymentColumnNames returns the SELECT list used everywhere a full payment
// row is scanned.
func PaymentColumnNames(tableReference, resultAlias string) string {
	columns := GenerateColumnNames(SQLColumnConfig{
		TableReference: tableReference,
		ResultAlias:    resultAlias,
		Columns: []string{
			"id",
			"tenant_id",
			"idempotency_key",
			"uetr",
			"end_to_end_id",
			"payment_type_code",
			"amount",
			"currency",
			"debtor_name",
			"debtor_account",
			"creditor_name",
			"creditor_account",
			"status",
			"status_history",
			"config_version",
			"response_mode",
			"requested_execution_date",
			"completed_at",
			"created_at",
			"updated_at",
		},
	})

	columns = append(columns, GenerateColumnNames(SQLColumnConfig{
		TableReference:        tableReference,
		ResultAlias:           resultAlias,
		CoalesceToEmptyString: true,
		Columns: []string{
			"business_unit_id",
			"customer_id",
			"instruction_id",
			"original_message_id",
			"local_instrument",
			"debtor_agent_bic",
			"creditor_agent_bic",
			"remittance_info",
			"status_reason",
			"rail",
			"clearing_reference",
		},
	})...)

	return strings.Join(columns, ",\n")
}

// Get returns the payment with the given id, scoped to the tenant. A payment
// owned by another tenant is indistinguishable from a missing one.
func (p *PaymentModel) Get(ctx context.Context, sqlExec db.SQLExecuter, tenantID, id string) (*Payment, error) {
	payment := Payment{}

	query := fmt.Sprintf(`
		SELECT
			%s
		FROM
			payments p
		WHERE
			p.tenant_id = $1
			AND p.id = $2
		`, PaymentColumnNames("p", ""))

	err := sqlExec.GetContext(ctx, &payment, query, tenantID, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrRecordNotFound
		}
		return nil, fmt.Errorf("querying payment ID %s: %w", id, err)
	}

	return &payment, nil
}

// GetByUETR returns the payment carrying the given UETR for the tenant.
func (p *PaymentModel) GetByUETR(ctx context.Context, sqlExec db.SQLExecuter, tenantID, uetr string) (*Payment, error) {
	payment := Payment{}

	query := fmt.Sprintf(`
		SELECT
			%s
		FROM
			payments p
		WHERE
			p.tenant_id = $1
			AND p.uetr = $2
		ORDER BY p.created_at DESC
		LIMIT 1
		`, PaymentColumnNames("p", ""))

	err := sqlExec.GetContext(ctx, &payment, query, tenantID, uetr)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrRecordNotFound
		}
		return nil, fmt.Errorf("querying payment by UETR: %w", err)
	}

	return &payment, nil
}

// GetByClearingReference resolves async rail callbacks back to a payment.
// Clearing references are rail-scoped, not tenant-scoped.
func (p *PaymentModel) GetByClearingReference(ctx context.Context, sqlExec db.SQLExecuter, rail Rail, clearingReference string) (*Payment, error) {
	payment := Payment{}

	query := fmt.Sprintf(`
		SELECT
			%s
		FROM
			payments p
		WHERE
			p.rail = $1
			AND p.clearing_reference = $2
		`, PaymentColumnNames("p", ""))

	err := sqlExec.GetContext(ctx, &payment, query, rail, clearingReference)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrRecordNotFound
		}
		return nil, fmt.Errorf("querying payment by clearing reference: %w", err)
	}

	return &payment, nil
}

// GetByIdempotencyKey serves replay detection on POST /payments.
func (p *PaymentModel) GetByIdempotencyKey(ctx context.Context, sqlExec db.SQLExecuter, tenantID, idempotencyKey string) (*Payment, error) {
	payment := Payment{}

	query := fmt.Sprintf(`
		SELECT
			%s,
			p.response_snapshot,
			COALESCE(p.response_http_status, 0) AS response_http_status
		FROM
			payments p
		WHERE
			p.tenant_id = $1
			AND p.idempotency_key = $2
		`, PaymentColumnNames("p", ""))

	err := sqlExec.GetContext(ctx, &payment, query, tenantID, idempotencyKey)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrRecordNotFound
		}
		return nil, fmt.Errorf("querying payment by idempotency key: %w", err)
	}

	return &payment, nil
}

// Insert creates the payment in INITIATED state. A (tenant_id,
// idempotency_key) collision surfaces as ErrDuplicateIdempotencyKey so the
// handler can replay the stored response instead.
func (p *PaymentModel) Insert(ctx context.Context, sqlExec db.SQLExecuter, insert PaymentInsert) (*Payment, error) {
	if err := insert.Validate(); err != nil {
		return nil, fmt.Errorf("validating payment insert: %w", err)
	}

	query := `
		INSERT INTO payments (
			tenant_id,
			business_unit_id,
			customer_id,
			idempotency_key,
			uetr,
			end_to_end_id,
			instruction_id,
			original_message_id,
			payment_type_code,
			local_instrument,
			amount,
			currency,
			debtor_name,
			debtor_account,
			debtor_agent_bic,
			creditor_name,
			creditor_account,
			creditor_agent_bic,
			remittance_info,
			requested_execution_date,
			config_version,
			response_mode
		) VALUES (
			$1, NULLIF($2, ''), NULLIF($3, ''), $4, $5, $6, NULLIF($7, ''), NULLIF($8, ''), $9, NULLIF($10, ''),
			$11, $12, $13, $14, NULLIF($15, ''), $16, $17, NULLIF($18, ''), NULLIF($19, ''), $20, $21, $22
		)
		RETURNING id
	`

	var paymentID string
	err := sqlExec.GetContext(ctx, &paymentID, query,
		insert.TenantID, insert.BusinessUnitID, insert.CustomerID, insert.IdempotencyKey,
		insert.UETR, insert.EndToEndID, insert.InstructionID, insert.OriginalMessageID,
		insert.PaymentTypeCode, insert.LocalInstrument, insert.Amount, insert.Currency,
		insert.DebtorName, insert.DebtorAccount, insert.DebtorAgentBIC,
		insert.CreditorName, insert.CreditorAccount, insert.CreditorAgentBIC,
		insert.RemittanceInfo, insert.RequestedExecutionDate, insert.ConfigVersion, insert.ResponseMode)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" && pqErr.Constraint == "payments_tenant_idempotency_key_unq" {
			return nil, ErrDuplicateIdempotencyKey
		}
		return nil, fmt.Errorf("inserting payment: %w", err)
	}

	return p.Get(ctx, sqlExec, insert.TenantID, paymentID)
}

// UpdateStatus transitions the payment and appends to its status history.
func (p *PaymentModel) UpdateStatus(ctx context.Context, sqlExec db.SQLExecuter, payment *Payment, targetStatus PaymentStatus, statusReason string) error {
	if err := payment.Status.TransitionTo(targetStatus); err != nil {
		return fmt.Errorf("cannot transition from %s to %s for payment %s: %w", payment.Status, targetStatus, payment.ID, err)
	}

	query := `
		UPDATE payments
		SET status = $1,
			status_reason = NULLIF($2, ''),
			status_history = array_append(status_history, create_payment_status_history(NOW(), $1, NULLIF($2, ''))),
			completed_at = CASE WHEN $3 THEN NOW() ELSE completed_at END
		WHERE id = $4 AND tenant_id = $5
	`

	result, err := sqlExec.ExecContext(ctx, query, targetStatus, statusReason, targetStatus.IsTerminal(), payment.ID, payment.TenantID)
	if err != nil {
		return fmt.Errorf("updating payment %s status: %w", payment.ID, err)
	}
	numRowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("getting number of rows affected: %w", err)
	}
	if numRowsAffected == 0 {
		return fmt.Errorf("payment %s status was not updated from %s to %s: %w", payment.ID, payment.Status, targetStatus, ErrRecordNotFound)
	}

	log.Ctx(ctx).Infof("Set payment %s status from %s to %s", payment.ID, payment.Status, targetStatus)
	payment.Status = targetStatus
	payment.StatusReason = statusReason

	return nil
}

// SetRouting records the rail the resolver elected.
func (p *PaymentModel) SetRouting(ctx context.Context, sqlExec db.SQLExecuter, paymentID string, rail Rail) error {
	query := `UPDATE payments SET rail = $1 WHERE id = $2`

	result, err := sqlExec.ExecContext(ctx, query, rail, paymentID)
	if err != nil {
		return fmt.Errorf("setting rail for payment %s: %w", paymentID, err)
	}
	if numRowsAffected, _ := result.RowsAffected(); numRowsAffected == 0 {
		return ErrRecordNotFound
	}
	return nil
}

// SetClearingReference records the rail reference returned on submit.
func (p *PaymentModel) SetClearingReference(ctx context.Context, sqlExec db.SQLExecuter, paymentID, clearingReference string) error {
	query := `UPDATE payments SET clearing_reference = $1 WHERE id = $2`

	result, err := sqlExec.ExecContext(ctx, query, clearingReference, paymentID)
	if err != nil {
		return fmt.Errorf("setting clearing reference for payment %s: %w", paymentID, err)
	}
	if numRowsAffected, _ := result.RowsAffected(); numRowsAffected == 0 {
		return ErrRecordNotFound
	}
	return nil
}

// SetResponseSnapshot stores the exact body and HTTP status returned to the
// tenant so idempotent replays can serve it verbatim.
func (p *PaymentModel) SetResponseSnapshot(ctx context.Context, sqlExec db.SQLExecuter, paymentID string, snapshot []byte, httpStatus int) error {
	query := `UPDATE payments SET response_snapshot = $1, response_http_status = $2 WHERE id = $3`

	result, err := sqlExec.ExecContext(ctx, query, snapshot, httpStatus, paymentID)
	if err != nil {
		return fmt.Errorf("setting response snapshot for payment %s: %w", paymentID, err)
	}
	if numRowsAffected, _ := result.RowsAffected(); numRowsAffected == 0 {
		return ErrRecordNotFound
	}
	return nil
}

// Count returns the number of payments matching the given query parameters.
func (p *PaymentModel) Count(ctx context.Context, sqlExec db.SQLExecuter, tenantID string, queryParams *QueryParams) (int, error) {
	var count int
	baseQuery := `
		SELECT
			count(*)
		FROM
			payments p
		`

	query, params := newPaymentQuery(baseQuery, tenantID, queryParams, false, sqlExec)

	err := sqlExec.GetContext(ctx, &count, query, params...)
	if err != nil {
		return 0, fmt.Errorf("counting payments: %w", err)
	}
	return count, nil
}

// GetAll returns all payments of the tenant matching the given query parameters.
func (p *PaymentModel) GetAll(ctx context.Context, sqlExec db.SQLExecuter, tenantID string, queryParams *QueryParams) ([]Payment, error) {
	payments := []Payment{}

	baseQuery := fmt.Sprintf(`
		SELECT
			%s
		FROM
			payments p
		`, PaymentColumnNames("p", ""))

	query, params := newPaymentQuery(baseQuery, tenantID, queryParams, true, sqlExec)

	err := sqlExec.SelectContext(ctx, &payments, query, params...)
	if err != nil {
		return nil, fmt.Errorf("querying payments: %w", err)
	}

	return payments, nil
}

// newPaymentQuery builds the filtered query. tenantID is always applied;
// cross-tenant listings do not exist.
func newPaymentQuery(baseQuery string, tenantID string, queryParams *QueryParams, paginated bool, sqlExec db.SQLExecuter) (string, []interface{}) {
	qb := NewQueryBuilder(baseQuery)

	qb.AddCondition("p.tenant_id = ?", tenantID)
	if queryParams.Filters[FilterKeyStatus] != nil {
		qb.AddCondition("p.status = ?", queryParams.Filters[FilterKeyStatus])
	}
	if queryParams.Filters[FilterKeyPaymentType] != nil {
		qb.AddCondition("p.payment_type_code = ?", queryParams.Filters[FilterKeyPaymentType])
	}
	if queryParams.Filters[FilterKeyRail] != nil {
		qb.AddCondition("p.rail = ?", queryParams.Filters[FilterKeyRail])
	}
	if queryParams.Filters[FilterKeyUETR] != nil {
		qb.AddCondition("p.uetr = ?", queryParams.Filters[FilterKeyUETR])
	}
	if queryParams.Filters[FilterKeyCreatedAtAfter] != nil {
		qb.AddCondition("p.created_at >= ?", queryParams.Filters[FilterKeyCreatedAtAfter])
	}
	if queryParams.Filters[FilterKeyCreatedAtBefore] != nil {
		qb.AddCondition("p.created_at <= ?", queryParams.Filters[FilterKeyCreatedAtBefore])
	}

	if paginated {
		qb.AddSorting(queryParams.SortBy, queryParams.SortOrder, "p")
		qb.AddPagination(queryParams.Page, queryParams.PageLimit)
	}

	return qb.BuildAndRebind(sqlExec)
}

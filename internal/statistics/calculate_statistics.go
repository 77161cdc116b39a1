package statistics

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/paymenthub/payment-engine-backend/internal/data"
	"github.com/paymenthub/payment-engine-backend/internal/db"
	"github.com/paymenthub/payment-engine-backend/internal/utils"
)

var ErrResourcesNotFound = errors.New("resources not found")

// PaymentCounters aggregates one tenant's payments by status.
type PaymentCounters struct {
	Initiated         int64 `json:"initiated"`
	Validated         int64 `json:"validated"`
	FundsReserved     int64 `json:"funds_reserved"`
	Routed            int64 `json:"routed"`
	ClearingSubmitted int64 `json:"clearing_submitted"`
	ClearingAccepted  int64 `json:"clearing_accepted"`
	Settled           int64 `json:"settled"`
	ClearingRejected  int64 `json:"clearing_rejected"`
	Failed            int64 `json:"failed"`
	Reversed          int64 `json:"reversed"`
	Cancelled         int64 `json:"cancelled"`
	Total             int64 `json:"total"`
}

// PaymentAmounts carries the settled/failed/total sums for one payment type.
type PaymentAmounts struct {
	Settled string `json:"settled"`
	Failed  string `json:"failed"`
	Average string `json:"average"`
	Total   string `json:"total"`
}

type PaymentAmountsByType struct {
	PaymentTypeCode string         `json:"payment_type_code"`
	Currency        string         `json:"currency"`
	PaymentAmounts  PaymentAmounts `json:"payment_amounts"`
}

// TenantStatistics is the per-tenant aggregate behind GET /statistics. All
// queries are tenant-scoped; there is no cross-tenant rollup on purpose.
type TenantStatistics struct {
	PaymentCounters      PaymentCounters        `json:"payment_counters"`
	PaymentAmountsByType []PaymentAmountsByType `json:"payment_amounts_by_type"`
	SuccessRatio         string                 `json:"success_ratio"`
	DeadLetteredSagas    int64                  `json:"dead_lettered_sagas"`
}

// CalculateStatistics aggregates the tenant's payments by status and by
// payment type, the terminal success ratio and the dead letter backlog.
func CalculateStatistics(ctx context.Context, dbConnectionPool db.DBConnectionPool, tenantID string) (*TenantStatistics, error) {
	return db.RunInTransactionWithResult(ctx, dbConnectionPool, nil, func(dbTx db.DBTransaction) (*TenantStatistics, error) {
		counters, err := getPaymentCounters(ctx, dbTx, tenantID)
		if err != nil {
			return nil, fmt.Errorf("getting payment counters: %w", err)
		}

		amountsByType, err := getPaymentAmountsByType(ctx, dbTx, tenantID)
		if err != nil {
			return nil, fmt.Errorf("getting payment amounts: %w", err)
		}

		deadLettered, err := getDeadLetteredSagasCount(ctx, dbTx, tenantID)
		if err != nil {
			return nil, fmt.Errorf("getting dead letter count: %w", err)
		}

		return &TenantStatistics{
			PaymentCounters:      *counters,
			PaymentAmountsByType: amountsByType,
			SuccessRatio:         successRatio(counters),
			DeadLetteredSagas:    deadLettered,
		}, nil
	})
}

func getPaymentCounters(ctx context.Context, sqlExec db.SQLExecuter, tenantID string) (*PaymentCounters, error) {
	query := `
		SELECT p.status, Count(*)
		FROM payments p
		WHERE p.tenant_id = $1
		GROUP BY p.status
	`

	rows, err := sqlExec.QueryxContext(ctx, query, tenantID)
	if err != nil {
		return nil, fmt.Errorf("querying payment counters: %w", err)
	}
	defer db.CloseRows(ctx, rows)

	counters := PaymentCounters{}
	for rows.Next() {
		var (
			status string
			count  int64
		)
		if err = rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("scanning payment counter row: %w", err)
		}

		switch data.PaymentStatus(status) {
		case data.InitiatedPaymentStatus:
			counters.Initiated += count
		case data.ValidatedPaymentStatus:
			counters.Validated += count
		case data.FundsReservedPaymentStatus:
			counters.FundsReserved += count
		case data.RoutedPaymentStatus:
			counters.Routed += count
		case data.ClearingSubmittedPaymentStatus:
			counters.ClearingSubmitted += count
		case data.ClearingAcceptedPaymentStatus:
			counters.ClearingAccepted += count
		case data.SettledPaymentStatus:
			counters.Settled += count
		case data.ClearingRejectedPaymentStatus:
			counters.ClearingRejected += count
		case data.FailedPaymentStatus:
			counters.Failed += count
		case data.ReversedPaymentStatus:
			counters.Reversed += count
		case data.CancelledPaymentStatus:
			counters.Cancelled += count
		default:
			return nil, fmt.Errorf("status %v is not a valid payment status", status)
		}
		counters.Total += count
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("end scanning: %w", err)
	}

	return &counters, nil
}

func getPaymentAmountsByType(ctx context.Context, sqlExec db.SQLExecuter, tenantID string) ([]PaymentAmountsByType, error) {
	query := `
		SELECT
			p.payment_type_code,
			p.currency,
			Count(*),
			Sum(p.amount),
			Sum(p.amount) FILTER (WHERE p.status = 'SETTLED'),
			Sum(p.amount) FILTER (WHERE p.status IN ('CLEARING_REJECTED', 'FAILED'))
		FROM payments p
		WHERE p.tenant_id = $1
		GROUP BY (p.payment_type_code, p.currency)
		ORDER BY (p.payment_type_code, p.currency)
	`

	rows, err := sqlExec.QueryxContext(ctx, query, tenantID)
	if err != nil {
		return nil, fmt.Errorf("querying payment amounts: %w", err)
	}
	defer db.CloseRows(ctx, rows)

	amountsByType := []PaymentAmountsByType{}
	for rows.Next() {
		var (
			paymentType, currency   string
			count                   int64
			total, settled, failed  *string
		)
		if err = rows.Scan(&paymentType, &currency, &count, &total, &settled, &failed); err != nil {
			return nil, fmt.Errorf("scanning payment amounts row: %w", err)
		}

		amounts := PaymentAmounts{
			Settled: orZero(settled),
			Failed:  orZero(failed),
			Total:   orZero(total),
		}
		if totalValue, parseErr := strconv.ParseFloat(amounts.Total, 64); parseErr == nil && count > 0 {
			amounts.Average = utils.FloatToString(totalValue / float64(count))
		}

		amountsByType = append(amountsByType, PaymentAmountsByType{
			PaymentTypeCode: paymentType,
			Currency:        currency,
			PaymentAmounts:  amounts,
		})
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("end scanning: %w", err)
	}

	return amountsByType, nil
}

func getDeadLetteredSagasCount(ctx context.Context, sqlExec db.SQLExecuter, tenantID string) (int64, error) {
	var count int64
	query := "SELECT Count(*) FROM sagas s WHERE s.tenant_id = $1 AND s.dead_lettered = TRUE"
	if err := sqlExec.GetContext(ctx, &count, query, tenantID); err != nil {
		return 0, fmt.Errorf("querying dead-lettered sagas: %w", err)
	}
	return count, nil
}

// successRatio is settled over terminal payments. Payments still in flight do
// not count either way.
func successRatio(counters *PaymentCounters) string {
	terminal := counters.Settled + counters.ClearingRejected + counters.Failed + counters.Reversed + counters.Cancelled
	if terminal == 0 {
		return "0"
	}
	return utils.FloatToString(float64(counters.Settled) / float64(terminal))
}

func orZero(value *string) string {
	if value == nil {
		return "0"
	}
	return *value
}

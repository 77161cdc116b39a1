package data

import (
	"errors"

	"github.com/paymenthub/payment-engine-backend/internal/db"
)

var (
	ErrRecordNotFound          = errors.New("record not found")
	ErrRecordAlreadyExists     = errors.New("record already exists")
	ErrMismatchNumRowsAffected = errors.New("mismatch number of rows affected")
	ErrMissingInput            = errors.New("missing input")
	ErrStaleLock               = errors.New("saga lease is held by another worker")
	ErrDuplicateUETR           = errors.New("a payment with this UETR was already accepted")
	ErrDuplicateIdempotencyKey = errors.New("a payment with this idempotency key already exists")
)

type Models struct {
	Payment            *PaymentModel
	UETRDedupe         *UETRDedupeModel
	Sagas              *SagaModel
	SagaSteps          *SagaStepModel
	Outbox             *OutboxModel
	RoutingRules       *RoutingRuleModel
	ClearingAdapters   *ClearingAdapterModel
	PayloadMappings    *PayloadMappingModel
	ResponseDeliveries *ResponseDeliveryModel
	ClearingCallbacks  *ClearingCallbackModel
	DBConnectionPool   db.DBConnectionPool
}

func NewModels(dbConnectionPool db.DBConnectionPool) (*Models, error) {
	if dbConnectionPool == nil {
		return nil, errors.New("dbConnectionPool is required for NewModels")
	}
	return &Models{
		Payment:            &PaymentModel{dbConnectionPool: dbConnectionPool},
		UETRDedupe:         &UETRDedupeModel{dbConnectionPool: dbConnectionPool},
		Sagas:              &SagaModel{dbConnectionPool: dbConnectionPool},
		SagaSteps:          &SagaStepModel{dbConnectionPool: dbConnectionPool},
		Outbox:             &OutboxModel{dbConnectionPool: dbConnectionPool},
		RoutingRules:       &RoutingRuleModel{dbConnectionPool: dbConnectionPool},
		ClearingAdapters:   &ClearingAdapterModel{dbConnectionPool: dbConnectionPool},
		PayloadMappings:    &PayloadMappingModel{dbConnectionPool: dbConnectionPool},
		ResponseDeliveries: &ResponseDeliveryModel{dbConnectionPool: dbConnectionPool},
		ClearingCallbacks:  &ClearingCallbackModel{dbConnectionPool: dbConnectionPool},
		DBConnectionPool:   dbConnectionPool,
	}, nil
}

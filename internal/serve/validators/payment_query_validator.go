package validators

import (
	"strings"

	"github.com/paymenthub/payment-engine-backend/internal/data"
)

type PaymentQueryValidator struct {
	QueryValidator
}

// NewPaymentQueryValidator creates a new PaymentQueryValidator with the provided configuration.
func NewPaymentQueryValidator() *PaymentQueryValidator {
	return &PaymentQueryValidator{
		QueryValidator: QueryValidator{
			DefaultSortField:  data.DefaultPaymentSortField,
			DefaultSortOrder:  data.DefaultPaymentSortOrder,
			AllowedSortFields: data.AllowedPaymentSorts,
			AllowedFilters:    data.AllowedPaymentFilters,
			Validator:         NewValidator(),
		},
	}
}

// ValidateAndGetPaymentFilters validates the filters and returns a map of valid filters.
func (qv *PaymentQueryValidator) ValidateAndGetPaymentFilters(filters map[data.FilterKey]interface{}) map[data.FilterKey]interface{} {
	validFilters := make(map[data.FilterKey]interface{})
	if filters[data.FilterKeyStatus] != nil {
		validFilters[data.FilterKeyStatus] = qv.validateAndGetPaymentStatus(filters[data.FilterKeyStatus].(string))
	}
	if filters[data.FilterKeyRail] != nil {
		validFilters[data.FilterKeyRail] = qv.validateAndGetRail(filters[data.FilterKeyRail].(string))
	}
	if filters[data.FilterKeyPaymentType] != nil {
		validFilters[data.FilterKeyPaymentType] = strings.ToUpper(filters[data.FilterKeyPaymentType].(string))
	}
	if filters[data.FilterKeyUETR] != nil {
		validFilters[data.FilterKeyUETR] = strings.ToLower(filters[data.FilterKeyUETR].(string))
	}

	createdAtAfter := qv.ValidateAndGetTimeParams(string(data.FilterKeyCreatedAtAfter), filters[data.FilterKeyCreatedAtAfter])
	createdAtBefore := qv.ValidateAndGetTimeParams(string(data.FilterKeyCreatedAtBefore), filters[data.FilterKeyCreatedAtBefore])

	if qv.HasErrors() {
		return validFilters
	}

	if !createdAtAfter.IsZero() && !createdAtBefore.IsZero() {
		qv.Check(createdAtAfter.Before(createdAtBefore), string(data.FilterKeyCreatedAtAfter), "created_at_after must be before created_at_before")
	}

	if !createdAtAfter.IsZero() {
		validFilters[data.FilterKeyCreatedAtAfter] = createdAtAfter
	}
	if !createdAtBefore.IsZero() {
		validFilters[data.FilterKeyCreatedAtBefore] = createdAtBefore
	}
	return validFilters
}

// validateAndGetPaymentStatus validates the status parameter and returns the corresponding PaymentStatus.
func (qv *PaymentQueryValidator) validateAndGetPaymentStatus(status string) data.PaymentStatus {
	s := data.PaymentStatus(strings.ToUpper(status))
	if err := s.Validate(); err != nil {
		qv.Check(false, string(data.FilterKeyStatus), "invalid parameter. valid values are: initiated, validated, funds_reserved, routed, clearing_submitted, clearing_accepted, settled, clearing_rejected, failed, reversed, cancelled")
		return ""
	}
	return s
}

// validateAndGetRail validates the rail parameter and returns the corresponding Rail.
func (qv *PaymentQueryValidator) validateAndGetRail(rail string) data.Rail {
	r := data.Rail(strings.ToUpper(rail))
	if err := r.Validate(); err != nil {
		qv.Check(false, string(data.FilterKeyRail), "invalid parameter. valid values are: samos, bankserv, rtc, payshap, swift")
		return ""
	}
	return r
}

package schema

import (
	"slices"
	"time"
)

// Tenant is the engine-wide view of an onboarded financial institution. The
// full row (config versions included) lives in internal/tenant; this snapshot
// is what request contexts and events carry.
type Tenant struct {
	ID          string       `json:"id" db:"id"`
	Name        string       `json:"name" db:"name"`
	Code        string       `json:"code" db:"code"`
	Status      TenantStatus `json:"status" db:"status"`
	CallbackURL *string      `json:"callback_url" db:"callback_url"`
	IsDefault   bool         `json:"is_default" db:"is_default"`
	CreatedAt   time.Time    `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time    `json:"updated_at" db:"updated_at"`
	DeletedAt   *time.Time   `json:"deleted_at" db:"deleted_at"`
}

type TenantStatus string

const (
	CreatedTenantStatus     TenantStatus = "TENANT_CREATED"
	ActivatedTenantStatus   TenantStatus = "TENANT_ACTIVATED"
	SuspendedTenantStatus   TenantStatus = "TENANT_SUSPENDED"
	DeactivatedTenantStatus TenantStatus = "TENANT_DEACTIVATED"
)

func (s TenantStatus) IsValid() bool {
	validStatuses := []TenantStatus{CreatedTenantStatus, ActivatedTenantStatus, SuspendedTenantStatus, DeactivatedTenantStatus}
	return slices.Contains(validStatuses, s)
}

// CanAcceptPayments reports whether payment intake is allowed for the tenant.
// Suspended tenants keep read access to historic payments but cannot submit.
func (s TenantStatus) CanAcceptPayments() bool {
	return s == ActivatedTenantStatus
}

// TenantContext is the identity triple stamped on every payment operation.
// BusinessUnitID and CustomerID scope the payment inside the tenant and are
// supplied by the caller; TenantID always comes from the resolved tenant.
type TenantContext struct {
	TenantID       string `json:"tenant_id" db:"tenant_id"`
	BusinessUnitID string `json:"business_unit_id" db:"business_unit_id"`
	CustomerID     string `json:"customer_id" db:"customer_id"`
}

// Validate ensures the triple is complete enough to attribute a payment.
func (tc TenantContext) Validate() bool {
	return tc.TenantID != "" && tc.BusinessUnitID != "" && tc.CustomerID != ""
}

// Package tenantctx carries per-request identity through context.Context:
// the resolved tenant, the tenant/business-unit/customer triple, and the
// correlation ID that ties log lines and events back to one intake request.
package tenantctx

import (
	"context"
	"errors"

	"github.com/paymenthub/payment-engine-backend/pkg/schema"
)

var (
	ErrTenantNotFoundInContext        = errors.New("tenant not found in context")
	ErrTenantContextNotFoundInContext = errors.New("tenant context not found in context")
	ErrCorrelationIDNotFoundInContext = errors.New("correlation ID not found in context")
)

type (
	tenantContextKey        struct{}
	tenantTripleContextKey  struct{}
	correlationIDContextKey struct{}
)

const (
	NoTenantName = "no_tenant"
)

// GetTenantFromContext retrieves the resolved tenant from the context.
func GetTenantFromContext(ctx context.Context) (*schema.Tenant, error) {
	currentTenant, ok := ctx.Value(tenantContextKey{}).(*schema.Tenant)
	if !ok {
		return nil, ErrTenantNotFoundInContext
	}
	return currentTenant, nil
}

// MustGetTenantNameFromContext retrieves the tenant name from the context and
// defaults to no_tenant if not found, so metric labels never end up empty.
func MustGetTenantNameFromContext(ctx context.Context) string {
	t, err := GetTenantFromContext(ctx)
	if err != nil || t == nil {
		return NoTenantName
	}
	return t.Name
}

// SetTenantInContext stores the resolved tenant in the context.
func SetTenantInContext(ctx context.Context, t *schema.Tenant) context.Context {
	return context.WithValue(ctx, tenantContextKey{}, t)
}

// GetTenantContext retrieves the tenant/business-unit/customer triple from the context.
func GetTenantContext(ctx context.Context) (schema.TenantContext, error) {
	tc, ok := ctx.Value(tenantTripleContextKey{}).(schema.TenantContext)
	if !ok || tc.TenantID == "" {
		return schema.TenantContext{}, ErrTenantContextNotFoundInContext
	}
	return tc, nil
}

// SetTenantContext stores the tenant/business-unit/customer triple in the context.
func SetTenantContext(ctx context.Context, tc schema.TenantContext) context.Context {
	return context.WithValue(ctx, tenantTripleContextKey{}, tc)
}

// GetCorrelationIDFromContext retrieves the request correlation ID from the context.
func GetCorrelationIDFromContext(ctx context.Context) (string, error) {
	correlationID, ok := ctx.Value(correlationIDContextKey{}).(string)
	if !ok || correlationID == "" {
		return "", ErrCorrelationIDNotFoundInContext
	}
	return correlationID, nil
}

// SetCorrelationIDInContext stores the request correlation ID in the context.
func SetCorrelationIDInContext(ctx context.Context, correlationID string) context.Context {
	return context.WithValue(ctx, correlationIDContextKey{}, correlationID)
}

package tenant

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/paymenthub/payment-engine-backend/pkg/schema"
)

type TenantManagerMock struct {
	mock.Mock
}

func (m *TenantManagerMock) AddTenant(ctx context.Context, name, code string) (*schema.Tenant, error) {
	args := m.Called(ctx, name, code)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*schema.Tenant), args.Error(1)
}

func (m *TenantManagerMock) GetAllTenants(ctx context.Context) ([]schema.Tenant, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]schema.Tenant), args.Error(1)
}

func (m *TenantManagerMock) GetTenantByID(ctx context.Context, id string) (*schema.Tenant, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*schema.Tenant), args.Error(1)
}

func (m *TenantManagerMock) GetTenantByCode(ctx context.Context, code string) (*schema.Tenant, error) {
	args := m.Called(ctx, code)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*schema.Tenant), args.Error(1)
}

func (m *TenantManagerMock) GetTenantByIDOrCode(ctx context.Context, arg string) (*schema.Tenant, error) {
	args := m.Called(ctx, arg)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*schema.Tenant), args.Error(1)
}

func (m *TenantManagerMock) GetDefault(ctx context.Context) (*schema.Tenant, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*schema.Tenant), args.Error(1)
}

func (m *TenantManagerMock) SetDefault(ctx context.Context, id string) (*schema.Tenant, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*schema.Tenant), args.Error(1)
}

func (m *TenantManagerMock) UpdateTenant(ctx context.Context, tu *TenantUpdate) (*schema.Tenant, error) {
	args := m.Called(ctx, tu)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*schema.Tenant), args.Error(1)
}

var _ ManagerInterface = (*TenantManagerMock)(nil)

type ConfigStoreMock struct {
	mock.Mock
}

func (m *ConfigStoreMock) GetConfig(ctx context.Context, tenantID string, version int) (*TenantConfig, error) {
	args := m.Called(ctx, tenantID, version)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*TenantConfig), args.Error(1)
}

func (m *ConfigStoreMock) GetLatestConfig(ctx context.Context, tenantID string) (*TenantConfig, error) {
	args := m.Called(ctx, tenantID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*TenantConfig), args.Error(1)
}

func (m *ConfigStoreMock) PutConfig(ctx context.Context, tenantID string, payload ConfigPayload, createdBy string) (*TenantConfig, error) {
	args := m.Called(ctx, tenantID, payload, createdBy)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*TenantConfig), args.Error(1)
}

var _ ConfigStoreInterface = (*ConfigStoreMock)(nil)

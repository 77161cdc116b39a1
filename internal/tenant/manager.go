package tenant

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/lib/pq"

	"github.com/paymenthub/payment-engine-backend/internal/db"
	"github.com/paymenthub/payment-engine-backend/pkg/schema"
)

var (
	ErrEmptyTenantName      = errors.New("tenant name cannot be empty")
	ErrEmptyTenantCode      = errors.New("tenant code cannot be empty")
	ErrDuplicatedTenantName = errors.New("duplicated tenant name")
	ErrDuplicatedTenantCode = errors.New("duplicated tenant code")
	ErrTenantDoesNotExist   = errors.New("tenant does not exist")
	ErrEmptyUpdateTenant    = errors.New("provide at least one field to update the tenant")
)

type ManagerInterface interface {
	AddTenant(ctx context.Context, name, code string) (*schema.Tenant, error)
	GetAllTenants(ctx context.Context) ([]schema.Tenant, error)
	GetTenantByID(ctx context.Context, id string) (*schema.Tenant, error)
	GetTenantByCode(ctx context.Context, code string) (*schema.Tenant, error)
	GetTenantByIDOrCode(ctx context.Context, arg string) (*schema.Tenant, error)
	GetDefault(ctx context.Context) (*schema.Tenant, error)
	SetDefault(ctx context.Context, id string) (*schema.Tenant, error)
	UpdateTenant(ctx context.Context, tu *TenantUpdate) (*schema.Tenant, error)
}

// Manager is the SQL store for tenant rows. Config versions live in
// ConfigStore; the two split so the hot read path (config) can cache without
// dragging tenant status reads through the cache.
type Manager struct {
	db db.DBConnectionPool
}

var _ ManagerInterface = (*Manager)(nil)

type Option func(m *Manager)

func NewManager(opts ...Option) *Manager {
	m := Manager{}
	for _, opt := range opts {
		opt(&m)
	}
	return &m
}

func WithDatabase(dbConnectionPool db.DBConnectionPool) Option {
	return func(m *Manager) {
		m.db = dbConnectionPool
	}
}

func (m *Manager) AddTenant(ctx context.Context, name, code string) (*schema.Tenant, error) {
	name = strings.TrimSpace(name)
	code = strings.TrimSpace(strings.ToUpper(code))
	if name == "" {
		return nil, ErrEmptyTenantName
	}
	if code == "" {
		return nil, ErrEmptyTenantCode
	}

	const q = "INSERT INTO tenants (name, code) VALUES ($1, $2) RETURNING *"
	var t schema.Tenant
	if err := m.db.GetContext(ctx, &t, q, name, code); err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			switch pqErr.Constraint {
			case "tenants_name_unq":
				return nil, ErrDuplicatedTenantName
			case "tenants_code_unq":
				return nil, ErrDuplicatedTenantCode
			}
		}
		return nil, fmt.Errorf("inserting tenant %s: %w", name, err)
	}
	return &t, nil
}

func (m *Manager) GetAllTenants(ctx context.Context) ([]schema.Tenant, error) {
	const q = "SELECT * FROM tenants WHERE deleted_at IS NULL ORDER BY name ASC"

	tenants := []schema.Tenant{}
	if err := m.db.SelectContext(ctx, &tenants, q); err != nil {
		return nil, fmt.Errorf("getting all tenants: %w", err)
	}
	return tenants, nil
}

func (m *Manager) GetTenantByID(ctx context.Context, id string) (*schema.Tenant, error) {
	const q = "SELECT * FROM tenants WHERE id = $1 AND deleted_at IS NULL"
	return m.getTenant(ctx, q, id)
}

func (m *Manager) GetTenantByCode(ctx context.Context, code string) (*schema.Tenant, error) {
	const q = "SELECT * FROM tenants WHERE code = $1 AND deleted_at IS NULL"
	return m.getTenant(ctx, q, strings.ToUpper(code))
}

// GetTenantByIDOrCode is the admin-surface lookup: route parameters accept
// either the tenant UUID or its short code.
func (m *Manager) GetTenantByIDOrCode(ctx context.Context, arg string) (*schema.Tenant, error) {
	const q = "SELECT * FROM tenants WHERE (id = $1 OR code = $2) AND deleted_at IS NULL"
	return m.getTenant(ctx, q, arg, strings.ToUpper(arg))
}

func (m *Manager) GetDefault(ctx context.Context) (*schema.Tenant, error) {
	const q = "SELECT * FROM tenants WHERE is_default IS TRUE AND deleted_at IS NULL"
	return m.getTenant(ctx, q)
}

// SetDefault promotes one tenant to default, demoting the previous holder in
// the same transaction so the partial unique index never trips.
func (m *Manager) SetDefault(ctx context.Context, id string) (*schema.Tenant, error) {
	return db.RunInTransactionWithResult(ctx, m.db, nil, func(dbTx db.DBTransaction) (*schema.Tenant, error) {
		if _, err := dbTx.ExecContext(ctx, "UPDATE tenants SET is_default = FALSE WHERE is_default IS TRUE"); err != nil {
			return nil, fmt.Errorf("unsetting default tenant: %w", err)
		}

		const q = "UPDATE tenants SET is_default = TRUE WHERE id = $1 AND deleted_at IS NULL RETURNING *"
		var t schema.Tenant
		if err := dbTx.GetContext(ctx, &t, q, id); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, ErrTenantDoesNotExist
			}
			return nil, fmt.Errorf("setting tenant %s as default: %w", id, err)
		}
		return &t, nil
	})
}

type TenantUpdate struct {
	ID          string               `db:"id"`
	Status      *schema.TenantStatus `db:"status"`
	CallbackURL *string              `db:"callback_url"`
}

func (tu *TenantUpdate) Validate() error {
	if tu.ID == "" {
		return fmt.Errorf("tenant ID is required")
	}
	if tu.areAllFieldsEmpty() {
		return ErrEmptyUpdateTenant
	}
	if tu.Status != nil && !tu.Status.IsValid() {
		return fmt.Errorf("invalid tenant status: %q", *tu.Status)
	}
	if tu.CallbackURL != nil && *tu.CallbackURL != "" {
		if _, err := url.ParseRequestURI(*tu.CallbackURL); err != nil {
			return fmt.Errorf("invalid callback URL")
		}
	}
	return nil
}

func (tu *TenantUpdate) areAllFieldsEmpty() bool {
	return tu.Status == nil && tu.CallbackURL == nil
}

func (m *Manager) UpdateTenant(ctx context.Context, tu *TenantUpdate) (*schema.Tenant, error) {
	if tu == nil {
		return nil, ErrEmptyUpdateTenant
	}
	if err := tu.Validate(); err != nil {
		return nil, fmt.Errorf("validating tenant update: %w", err)
	}

	q := "UPDATE tenants SET %s WHERE id = ? AND deleted_at IS NULL RETURNING *"
	fields := make([]string, 0, 2)
	args := make([]interface{}, 0, 3)
	if tu.Status != nil {
		fields = append(fields, "status = ?")
		args = append(args, *tu.Status)
	}
	if tu.CallbackURL != nil {
		fields = append(fields, "callback_url = NULLIF(?, '')")
		args = append(args, *tu.CallbackURL)
	}
	args = append(args, tu.ID)
	q = fmt.Sprintf(q, strings.Join(fields, ", "))
	q = m.db.Rebind(q)

	var t schema.Tenant
	if err := m.db.GetContext(ctx, &t, q, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrTenantDoesNotExist
		}
		return nil, fmt.Errorf("updating tenant %s: %w", tu.ID, err)
	}
	return &t, nil
}

func (m *Manager) getTenant(ctx context.Context, query string, args ...interface{}) (*schema.Tenant, error) {
	var t schema.Tenant
	if err := m.db.GetContext(ctx, &t, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrTenantDoesNotExist
		}
		return nil, fmt.Errorf("getting tenant: %w", err)
	}
	return &t, nil
}

package db

import (
	"context"
	"database/sql"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/mock"
)

// MockDBConnectionPool is a mock implementation of DBConnectionPool.
type MockDBConnectionPool struct {
	mock.Mock
}

var _ DBConnectionPool = new(MockDBConnectionPool)

func (m *MockDBConnectionPool) BeginTxx(ctx context.Context, opts *sql.TxOptions) (DBTransaction, error) {
	args := m.Called(ctx, opts)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(DBTransaction), args.Error(1)
}

func (m *MockDBConnectionPool) Close() error {
	return m.Called().Error(0)
}

func (m *MockDBConnectionPool) Ping(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func (m *MockDBConnectionPool) SqlDB(ctx context.Context) (*sql.DB, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*sql.DB), args.Error(1)
}

func (m *MockDBConnectionPool) SqlxDB(ctx context.Context) (*sqlx.DB, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*sqlx.DB), args.Error(1)
}

func (m *MockDBConnectionPool) DSN(ctx context.Context) (string, error) {
	args := m.Called(ctx)
	return args.String(0), args.Error(1)
}

func (m *MockDBConnectionPool) DriverName() string {
	return m.Called().String(0)
}

func (m *MockDBConnectionPool) ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error) {
	mArgs := m.Called(append([]interface{}{ctx, query}, args...)...)
	if mArgs.Get(0) == nil {
		return nil, mArgs.Error(1)
	}
	return mArgs.Get(0).(sql.Result), mArgs.Error(1)
}

func (m *MockDBConnectionPool) GetContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error {
	mArgs := m.Called(append([]interface{}{ctx, dest, query}, args...)...)
	return mArgs.Error(0)
}

func (m *MockDBConnectionPool) SelectContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error {
	mArgs := m.Called(append([]interface{}{ctx, dest, query}, args...)...)
	return mArgs.Error(0)
}

func (m *MockDBConnectionPool) PrepareContext(ctx context.Context, query string) (*sql.Stmt, error) {
	args := m.Called(ctx, query)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*sql.Stmt), args.Error(1)
}

func (m *MockDBConnectionPool) QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error) {
	mArgs := m.Called(append([]interface{}{ctx, query}, args...)...)
	if mArgs.Get(0) == nil {
		return nil, mArgs.Error(1)
	}
	return mArgs.Get(0).(*sql.Rows), mArgs.Error(1)
}

func (m *MockDBConnectionPool) QueryxContext(ctx context.Context, query string, args ...interface{}) (*sqlx.Rows, error) {
	mArgs := m.Called(append([]interface{}{ctx, query}, args...)...)
	if mArgs.Get(0) == nil {
		return nil, mArgs.Error(1)
	}
	return mArgs.Get(0).(*sqlx.Rows), mArgs.Error(1)
}

func (m *MockDBConnectionPool) QueryRowxContext(ctx context.Context, query string, args ...interface{}) *sqlx.Row {
	mArgs := m.Called(append([]interface{}{ctx, query}, args...)...)
	if mArgs.Get(0) == nil {
		return nil
	}
	return mArgs.Get(0).(*sqlx.Row)
}

func (m *MockDBConnectionPool) Rebind(query string) string {
	return m.Called(query).String(0)
}

// MockDBTransaction is a mock implementation of DBTransaction.
type MockDBTransaction struct {
	mock.Mock
}

var _ DBTransaction = new(MockDBTransaction)

func (m *MockDBTransaction) Commit() error {
	return m.Called().Error(0)
}

func (m *MockDBTransaction) Rollback() error {
	return m.Called().Error(0)
}

func (m *MockDBTransaction) DriverName() string {
	return m.Called().String(0)
}

func (m *MockDBTransaction) ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error) {
	mArgs := m.Called(append([]interface{}{ctx, query}, args...)...)
	if mArgs.Get(0) == nil {
		return nil, mArgs.Error(1)
	}
	return mArgs.Get(0).(sql.Result), mArgs.Error(1)
}

func (m *MockDBTransaction) GetContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error {
	mArgs := m.Called(append([]interface{}{ctx, dest, query}, args...)...)
	return mArgs.Error(0)
}

func (m *MockDBTransaction) SelectContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error {
	mArgs := m.Called(append([]interface{}{ctx, dest, query}, args...)...)
	return mArgs.Error(0)
}

func (m *MockDBTransaction) PrepareContext(ctx context.Context, query string) (*sql.Stmt, error) {
	args := m.Called(ctx, query)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*sql.Stmt), args.Error(1)
}

func (m *MockDBTransaction) QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error) {
	mArgs := m.Called(append([]interface{}{ctx, query}, args...)...)
	if mArgs.Get(0) == nil {
		return nil, mArgs.Error(1)
	}
	return mArgs.Get(0).(*sql.Rows), mArgs.Error(1)
}

func (m *MockDBTransaction) QueryxContext(ctx context.Context, query string, args ...interface{}) (*sqlx.Rows, error) {
	mArgs := m.Called(append([]interface{}{ctx, query}, args...)...)
	if mArgs.Get(0) == nil {
		return nil, mArgs.Error(1)
	}
	return mArgs.Get(0).(*sqlx.Rows), mArgs.Error(1)
}

func (m *MockDBTransaction) QueryRowxContext(ctx context.Context, query string, args ...interface{}) *sqlx.Row {
	mArgs := m.Called(append([]interface{}{ctx, query}, args...)...)
	if mArgs.Get(0) == nil {
		return nil
	}
	return mArgs.Get(0).(*sqlx.Row)
}

func (m *MockDBTransaction) Rebind(query string) string {
	return m.Called(query).String(0)
}

type testInterface interface {
	mock.TestingT
	Cleanup(func())
}

// NewMockDBConnectionPool creates a new instance of MockDBConnectionPool and registers the test cleanup that asserts
// the mock's expectations.
func NewMockDBConnectionPool(t testInterface) *MockDBConnectionPool {
	mockPool := &MockDBConnectionPool{}
	mockPool.Mock.Test(t)

	t.Cleanup(func() { mockPool.AssertExpectations(t) })

	return mockPool
}

// NewMockDBTransaction creates a new instance of MockDBTransaction and registers the test cleanup that asserts the
// mock's expectations.
func NewMockDBTransaction(t testInterface) *MockDBTransaction {
	mockTx := &MockDBTransaction{}
	mockTx.Mock.Test(t)

	t.Cleanup(func() { mockTx.AssertExpectations(t) })

	return mockTx
}

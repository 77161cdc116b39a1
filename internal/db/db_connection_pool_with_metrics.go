package db

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/paymenthub/payment-engine-backend/internal/log"
	"github.com/paymenthub/payment-engine-backend/internal/monitor"
)

func NewDBConnectionPoolWithMetrics(ctx context.Context, dbConnectionPool DBConnectionPool, monitorServiceInterface monitor.MonitorServiceInterface) (*DBConnectionPoolWithMetrics, error) {
	sqlExec, err := NewSQLExecuterWithMetrics(dbConnectionPool, monitorServiceInterface)
	if err != nil {
		return nil, fmt.Errorf("error creating SQLExecuterWithMetrics: %w", err)
	}

	registerMetrics(ctx, dbConnectionPool, monitorServiceInterface)

	return &DBConnectionPoolWithMetrics{
		dbConnectionPool:       dbConnectionPool,
		SQLExecuterWithMetrics: *sqlExec,
	}, nil
}

func registerMetrics(ctx context.Context, dbConnectionPool DBConnectionPool, monitorServiceInterface monitor.MonitorServiceInterface) {
	labels := map[string]string{
		"pool": detectSchemaFromDBCP(ctx, dbConnectionPool),
	}

	db, err := dbConnectionPool.SqlDB(ctx)
	if err != nil {
		log.Ctx(ctx).Errorf("Error getting SQL DB for connection pool metrics: %s", err)
		return
	}

	registerFunctionMetric := func(metricType monitor.FuncMetricType, name monitor.MetricTag, help string, fn func() float64) {
		err = monitorServiceInterface.RegisterFunctionMetric(
			metricType,
			monitor.FuncMetricOptions{
				Namespace: monitor.DefaultNamespace, Subservice: string(monitor.DBSubservice), Name: string(name),
				Help:     help,
				Labels:   labels,
				Function: fn,
			})
		if err != nil {
			log.Ctx(ctx).Errorf("Error registering %s metric: %s", name, err)
		}
	}

	// Pool status gauges
	registerFunctionMetric(monitor.FuncGaugeType, monitor.DBMaxOpenConnectionsTag,
		"Maximum number of open connections to the database",
		func() float64 { return float64(db.Stats().MaxOpenConnections) })

	registerFunctionMetric(monitor.FuncGaugeType, monitor.DBInUseConnectionsTag,
		"The number of established connections currently in use",
		func() float64 { return float64(db.Stats().InUse) })

	registerFunctionMetric(monitor.FuncGaugeType, monitor.DBIdleConnectionsTag,
		"The number of idle connections",
		func() float64 { return float64(db.Stats().Idle) })

	// Counters
	registerFunctionMetric(monitor.FuncCounterType, monitor.DBWaitCountTotalTag,
		"The total number of connections waited for",
		func() float64 { return float64(db.Stats().WaitCount) })

	registerFunctionMetric(monitor.FuncCounterType, monitor.DBWaitDurationSecondsTotalTag,
		"The total time blocked waiting for a new connection",
		func() float64 { return db.Stats().WaitDuration.Seconds() })

	registerFunctionMetric(monitor.FuncCounterType, monitor.DBMaxIdleClosedTotalTag,
		"The total number of connections closed due to SetMaxIdleConns",
		func() float64 { return float64(db.Stats().MaxIdleClosed) })

	registerFunctionMetric(monitor.FuncCounterType, monitor.DBMaxIdleTimeClosedTotalTag,
		"The total number of connections closed due to SetConnMaxIdleTime",
		func() float64 { return float64(db.Stats().MaxIdleTimeClosed) })

	registerFunctionMetric(monitor.FuncCounterType, monitor.DBMaxLifetimeClosedTotalTag,
		"The total number of connections closed due to SetConnMaxLifetime",
		func() float64 { return float64(db.Stats().MaxLifetimeClosed) })
}

// DBConnectionPoolWithMetrics is a wrapper around sqlx.DB that implements DBConnectionPool with the monitoring service.
type DBConnectionPoolWithMetrics struct {
	dbConnectionPool DBConnectionPool
	SQLExecuterWithMetrics
}

// make sure *DBConnectionPoolWithMetrics implements DBConnectionPool:
var _ DBConnectionPool = (*DBConnectionPoolWithMetrics)(nil)

func (dbc *DBConnectionPoolWithMetrics) BeginTxx(ctx context.Context, opts *sql.TxOptions) (DBTransaction, error) {
	dbTransaction, err := dbc.dbConnectionPool.BeginTxx(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("error starting a new transaction: %w", err)
	}

	return NewDBTransactionWithMetrics(dbTransaction, dbc.monitorServiceInterface)
}

func (dbc *DBConnectionPoolWithMetrics) Close() error {
	return dbc.dbConnectionPool.Close()
}

func (dbc *DBConnectionPoolWithMetrics) Ping(ctx context.Context) error {
	return dbc.dbConnectionPool.Ping(ctx)
}

func (dbc *DBConnectionPoolWithMetrics) SqlDB(ctx context.Context) (*sql.DB, error) {
	return dbc.dbConnectionPool.SqlDB(ctx)
}

func (dbc *DBConnectionPoolWithMetrics) SqlxDB(ctx context.Context) (*sqlx.DB, error) {
	return dbc.dbConnectionPool.SqlxDB(ctx)
}

func (dbc *DBConnectionPoolWithMetrics) DSN(ctx context.Context) (string, error) {
	return dbc.dbConnectionPool.DSN(ctx)
}

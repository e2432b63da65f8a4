package db

import (
	"context"
	"fmt"
	"sync"

	"github.com/dkhoanguyen/playground/internal/env"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

const (
	PostgresName = "postgres"
	OracleName   = "oracle"
)

// OpenFunc creates and connects a connector for one database.
type OpenFunc func(ctx context.Context, name string, config env.DatabaseConfig, logger *zap.Logger) (Connector, error)

func openPostgres(ctx context.Context, name string, config env.DatabaseConfig, logger *zap.Logger) (Connector, error) {
	conn := NewPostgresConnector(name, config.DSN(), logger)
	if err := conn.Connect(ctx); err != nil {
		return nil, err
	}
	return conn, nil
}

// Provider hands out the application's connections. A nil Connector means
// the database is unavailable.
type Provider interface {
	Postgres(ctx context.Context) Connector
	Oracle(ctx context.Context) Connector
}

var _ Provider = (*Manager)(nil)

// Manager owns the application's connections and opens each one on first
// use. A failed open is retried on the next call.
type Manager struct {
	mu       sync.Mutex
	config   *env.Config
	open     OpenFunc
	logger   *zap.Logger
	postgres Connector
	oracle   Connector
}

func NewManager(config *env.Config, logger *zap.Logger) *Manager {
	return NewManagerWith(config, openPostgres, logger)
}

func NewManagerWith(config *env.Config, open OpenFunc, logger *zap.Logger) *Manager {
	return &Manager{config: config, open: open, logger: logger}
}

// Postgres returns the primary connection, or nil when it cannot be opened.
func (m *Manager) Postgres(ctx context.Context) Connector {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.postgres == nil {
		m.postgres = m.connect(ctx, PostgresName, m.config.Postgres)
	}
	return m.postgres
}

// Oracle returns the secondary connection. It is nil when ORACLE_DB_* is not
// set or the connection cannot be opened.
func (m *Manager) Oracle(ctx context.Context) Connector {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.oracle == nil && m.config.Oracle.Configured() {
		m.oracle = m.connect(ctx, OracleName, m.config.Oracle)
	}
	return m.oracle
}

func (m *Manager) connect(ctx context.Context, name string, config env.DatabaseConfig) Connector {
	m.logger.Debug(fmt.Sprintf("Lazy initializing %s connector for %s", name, config))
	conn, err := m.open(ctx, name, config, m.logger)
	if err != nil {
		m.logger.Error(fmt.Sprintf("Failed to connect to %s: %s", name, err))
		return nil
	}
	return conn
}

// Close closes every connection that was opened.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	var errs error
	if m.postgres != nil {
		if err := m.postgres.Close(); err != nil {
			m.logger.Error(fmt.Sprintf("Failed to close %s connection: %s", PostgresName, err))
			errs = multierr.Append(errs, err)
		}
		m.postgres = nil
	}
	if m.oracle != nil {
		if err := m.oracle.Close(); err != nil {
			m.logger.Error(fmt.Sprintf("Failed to close %s connection: %s", OracleName, err))
			errs = multierr.Append(errs, err)
		}
		m.oracle = nil
	}
	return errs
}

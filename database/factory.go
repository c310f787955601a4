/*
 * Copyright 2025 tomoncle.
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/uptrace/bun"
)

var (
	ErrEmptyConnectionString = errors.New("connection string is empty")
	ErrFactoryClosed         = errors.New("database client factory is closed")
)

// ClientFactory is the registered database client. It owns the pool, binds
// every client to SchemaName and the migrations-history table, and hands
// out per-unit-of-work scopes.
type ClientFactory struct {
	cfg        ConnectionConfig
	info       *ConnectionInfo
	sqlDB      *sql.DB
	db         *bun.DB
	logger     Logger
	models     *ModelRegistry
	migrations []Migration

	openScopes atomic.Int64
	mu         sync.RWMutex
	closed     bool
}

type FactoryOption func(*ClientFactory)

func WithLogger(logger Logger) FactoryOption {
	return func(f *ClientFactory) {
		if logger != nil {
			f.logger = logger
		}
	}
}

// WithModels registers models whose tables the initial migration creates.
func WithModels(models ...SQLModel) FactoryOption {
	return func(f *ClientFactory) {
		for _, m := range models {
			f.models.Register(m)
		}
	}
}

// WithMigrations adds migrations applied after the initial one.
func WithMigrations(migrations ...Migration) FactoryOption {
	return func(f *ClientFactory) {
		f.migrations = append(f.migrations, migrations...)
	}
}

// NewClientFactory validates the connection string and prepares the pool.
// It does not contact the database.
func NewClientFactory(cfg *ConnectionConfig, opts ...FactoryOption) (*ClientFactory, error) {
	if cfg == nil {
		return nil, fmt.Errorf("database configuration cannot be empty")
	}
	c := *cfg
	if c.Provider == "" {
		c.Provider = ProviderPostgres
	}
	provider, err := ParseProvider(string(c.Provider))
	if err != nil {
		return nil, err
	}
	c.Provider = provider

	info, err := ParseConnectionString(c.Provider, c.ConnectionString)
	if err != nil {
		return nil, err
	}

	f := &ClientFactory{
		cfg:    c,
		info:   info,
		logger: nopLogger{},
		models: NewModelRegistry(),
	}
	for _, opt := range opts {
		opt(f)
	}

	f.sqlDB, f.db, err = openDB(&f.cfg, info, f.logger)
	if err != nil {
		return nil, err
	}
	f.db.RegisterModel(f.models.Instances()...)

	f.logger.Info("Database client registered",
		"provider", c.Provider,
		"schema", SchemaName,
		"history", f.MigrationsHistory().String(),
	)
	return f, nil
}

func (f *ClientFactory) Provider() Provider {
	return f.cfg.Provider
}

// Schema is the default schema of every client produced by the factory.
func (f *ClientFactory) Schema() string {
	return SchemaName
}

func (f *ClientFactory) MigrationsHistory() HistoryTable {
	return HistoryTable{Name: MigrationsHistoryTableName, Schema: SchemaName}
}

// DB returns the shared pool. Units of work should prefer scopes.
func (f *ClientFactory) DB() *bun.DB {
	return f.db
}

func (f *ClientFactory) Models() []SQLModel {
	return f.models.Models()
}

// NewScope starts a unit of work. The caller must Close it.
func (f *ClientFactory) NewScope() (*Scope, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if f.closed {
		return nil, ErrFactoryClosed
	}
	f.openScopes.Add(1)
	return &Scope{factory: f}, nil
}

// WithScope runs fn inside a fresh scope and releases it on every exit
// path, panics included.
func (f *ClientFactory) WithScope(ctx context.Context, fn func(ctx context.Context, scope *Scope) error) (err error) {
	scope, err := f.NewScope()
	if err != nil {
		return err
	}
	defer func() {
		if cerr := scope.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("release scope: %w", cerr)
		}
	}()
	return fn(ctx, scope)
}

// OpenScopes reports scopes that have been created but not yet closed.
func (f *ClientFactory) OpenScopes() int64 {
	return f.openScopes.Load()
}

func (f *ClientFactory) releaseScope() {
	f.openScopes.Add(-1)
}

// Migrator returns a migrator bound to this factory's history table.
func (f *ClientFactory) Migrator() *Migrator {
	return newMigrator(f.db, f.cfg.Provider, f.MigrationsHistory(), f.models, f.migrations, f.logger)
}

// HealthCheck pings the pool once and reports pool usage.
func (f *ClientFactory) HealthCheck(ctx context.Context) *HealthStatus {
	start := time.Now()
	status := &HealthStatus{LastCheckTime: start}

	f.mu.RLock()
	closed := f.closed
	f.mu.RUnlock()
	if closed {
		status.LastError = ErrFactoryClosed.Error()
		return status
	}

	err := f.db.PingContext(ctx)
	status.ResponseTime = time.Since(start)
	if err != nil {
		status.LastError = err.Error()
	} else {
		status.Healthy = true
	}

	stats := f.sqlDB.Stats()
	status.ActiveConns = stats.InUse
	status.IdleConns = stats.Idle
	status.MaxOpenConns = stats.MaxOpenConnections
	return status
}

func (f *ClientFactory) Stats() *DBStats {
	stats := f.sqlDB.Stats()
	return &DBStats{
		MaxOpenConns:      stats.MaxOpenConnections,
		OpenConns:         stats.OpenConnections,
		InUse:             stats.InUse,
		Idle:              stats.Idle,
		WaitCount:         stats.WaitCount,
		WaitDuration:      stats.WaitDuration,
		MaxIdleClosed:     stats.MaxIdleClosed,
		MaxIdleTimeClosed: stats.MaxIdleTimeClosed,
		MaxLifetimeClosed: stats.MaxLifetimeClosed,
		OpenScopes:        f.OpenScopes(),
	}
}

// Close shuts the pool down. Calling it more than once is a no-op.
func (f *ClientFactory) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return nil
	}
	f.closed = true

	if n := f.openScopes.Load(); n > 0 {
		f.logger.Warn("Closing database client with open scopes", "open_scopes", n)
	}
	if err := f.db.Close(); err != nil {
		f.logger.Error("Failed to close database connection", "error", err)
		return err
	}
	f.logger.Info("Database connection closed")
	return nil
}

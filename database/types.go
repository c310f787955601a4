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
	"errors"
	"fmt"
	"strings"
	"time"
)

const (
	// SchemaName is the default schema every client is bound to.
	SchemaName = "ManagementApp"
	// MigrationsHistoryTableName records applied migrations inside SchemaName.
	MigrationsHistoryTableName = "__EFMigrationsHistory"
)

var ErrUnsupportedProvider = errors.New("unsupported database provider")

// Provider identifies the database engine behind a connection string.
type Provider string

const (
	ProviderPostgres Provider = "postgres"
	ProviderMySQL    Provider = "mysql"
	ProviderSQLite   Provider = "sqlite"
)

// ParseProvider accepts the common aliases of each engine name.
func ParseProvider(s string) (Provider, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "postgres", "postgresql", "pg":
		return ProviderPostgres, nil
	case "mysql":
		return ProviderMySQL, nil
	case "sqlite", "sqlite3":
		return ProviderSQLite, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnsupportedProvider, s)
}

// DisplayName is the human-readable engine name used in diagnostics.
func (p Provider) DisplayName() string {
	switch p {
	case ProviderPostgres:
		return "PostgreSQL"
	case ProviderMySQL:
		return "MySQL"
	case ProviderSQLite:
		return "SQLite"
	}
	return string(p)
}

// PostgreSQL drivers.
const (
	DriverPQ  = "pq"
	DriverPGX = "pgx"
)

// HistoryTable names the migrations-history table and its schema.
type HistoryTable struct {
	Name   string
	Schema string
}

func (h HistoryTable) String() string {
	return h.Schema + "." + h.Name
}

// ConnectionConfig describes how to reach a database and tune its pool.
type ConnectionConfig struct {
	Provider         Provider
	Driver           string
	ConnectionString string
	MaxIdleConns     int
	MaxOpenConns     int
	ConnMaxLifetime  time.Duration
	ConnMaxIdleTime  time.Duration
	ConnectTimeout   time.Duration
	EnableQueryLog   bool
	SlowQueryTime    time.Duration
}

// DefaultConnectionConfig returns a PostgreSQL config with the default pool settings.
func DefaultConnectionConfig() *ConnectionConfig {
	return &ConnectionConfig{
		Provider:        ProviderPostgres,
		Driver:          DriverPQ,
		MaxIdleConns:    10,
		MaxOpenConns:    100,
		ConnMaxLifetime: time.Hour,
		ConnMaxIdleTime: time.Minute * 30,
		ConnectTimeout:  time.Second * 10,
		SlowQueryTime:   time.Second * 2,
	}
}

// HealthStatus holds the result of a health check against the database.
type HealthStatus struct {
	Healthy       bool          `json:"healthy"`
	ResponseTime  time.Duration `json:"response_time"`
	ActiveConns   int           `json:"active_conns"`
	IdleConns     int           `json:"idle_conns"`
	MaxOpenConns  int           `json:"max_open_conns"`
	LastError     string        `json:"last_error,omitempty"`
	LastCheckTime time.Time     `json:"last_check_time"`
}

// DBStats mirrors database/sql pool stats.
type DBStats struct {
	MaxOpenConns      int           `json:"max_open_conns"`
	OpenConns         int           `json:"open_conns"`
	InUse             int           `json:"in_use"`
	Idle              int           `json:"idle"`
	WaitCount         int64         `json:"wait_count"`
	WaitDuration      time.Duration `json:"wait_duration"`
	MaxIdleClosed     int64         `json:"max_idle_closed"`
	MaxIdleTimeClosed int64         `json:"max_idle_time_closed"`
	MaxLifetimeClosed int64         `json:"max_lifetime_closed"`
	OpenScopes        int64         `json:"open_scopes"`
}

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
	"database/sql"
	"fmt"
	"strings"

	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/lib/pq"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/mysqldialect"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
	"github.com/uptrace/bun/extra/bundebug"
)

// openDB prepares the pool for the configured provider. database/sql dials
// lazily, so no network I/O happens here.
func openDB(cfg *ConnectionConfig, info *ConnectionInfo, logger Logger) (*sql.DB, *bun.DB, error) {
	var (
		sqlDB *sql.DB
		db    *bun.DB
		err   error
	)
	switch cfg.Provider {
	case ProviderPostgres:
		if sqlDB, err = openPostgres(cfg, info); err == nil {
			db = bun.NewDB(sqlDB, pgdialect.New())
		}
	case ProviderMySQL:
		if sqlDB, err = openMySQL(cfg, info); err == nil {
			db = bun.NewDB(sqlDB, mysqldialect.New())
		}
	case ProviderSQLite:
		if sqlDB, err = openSQLite(info); err == nil {
			db = bun.NewDB(sqlDB, sqlitedialect.New())
		}
	default:
		return nil, nil, fmt.Errorf("%w: %q", ErrUnsupportedProvider, cfg.Provider)
	}
	if err != nil {
		return nil, nil, err
	}

	configurePool(sqlDB, cfg, info)

	if cfg.EnableQueryLog {
		db.AddQueryHook(bundebug.NewQueryHook(
			bundebug.WithVerbose(true),
			bundebug.FromEnv("BUNDEBUG"),
		))
	}
	if cfg.SlowQueryTime > 0 {
		db.AddQueryHook(NewSlowQueryHook(cfg.SlowQueryTime, logger))
	}
	return sqlDB, db, nil
}

func openPostgres(cfg *ConnectionConfig, info *ConnectionInfo) (*sql.DB, error) {
	dsn := info.PostgresDSN(cfg.Driver, cfg.ConnectTimeout)
	switch strings.ToLower(cfg.Driver) {
	case DriverPGX:
		connConfig, err := pgx.ParseConfig(dsn)
		if err != nil {
			return nil, fmt.Errorf("invalid postgres connection string: %w", err)
		}
		return stdlib.OpenDB(*connConfig), nil
	case DriverPQ, "":
		connector, err := pq.NewConnector(dsn)
		if err != nil {
			return nil, fmt.Errorf("invalid postgres connection string: %w", err)
		}
		return sql.OpenDB(connector), nil
	}
	return nil, fmt.Errorf("unsupported postgres driver %q", cfg.Driver)
}

func openMySQL(cfg *ConnectionConfig, info *ConnectionInfo) (*sql.DB, error) {
	mysqlCfg, err := mysql.ParseDSN(info.MySQLDSN(cfg.ConnectTimeout))
	if err != nil {
		return nil, fmt.Errorf("invalid mysql connection string: %w", err)
	}
	connector, err := mysql.NewConnector(mysqlCfg)
	if err != nil {
		return nil, fmt.Errorf("invalid mysql connection string: %w", err)
	}
	return sql.OpenDB(connector), nil
}

func openSQLite(info *ConnectionInfo) (*sql.DB, error) {
	sqlDB, err := sql.Open(sqliteshim.ShimName, info.SQLiteDSN())
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	return sqlDB, nil
}

func configurePool(sqlDB *sql.DB, cfg *ConnectionConfig, info *ConnectionInfo) {
	maxOpen := cfg.MaxOpenConns
	if info.MaxPoolSize > 0 {
		maxOpen = info.MaxPoolSize
	}
	maxIdle := cfg.MaxIdleConns
	if info.MinPoolSize > maxIdle {
		maxIdle = info.MinPoolSize
	}
	if maxOpen > 0 && maxIdle > maxOpen {
		maxIdle = maxOpen
	}
	sqlDB.SetMaxOpenConns(maxOpen)
	sqlDB.SetMaxIdleConns(maxIdle)
	sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	sqlDB.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)
}

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
	"fmt"
	"sort"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/schema"
)

const (
	// InitialMigrationID creates the tables of every registered model.
	InitialMigrationID = "00000000000000_InitialCreate"
	// ProductVersion is written next to every applied migration.
	ProductVersion = "managementapp/1.0.0"

	migrationIDColumn    = "MigrationId"
	productVersionColumn = "ProductVersion"
)

// MigrationFunc is a migration step executed within a transaction.
type MigrationFunc func(ctx context.Context, db bun.IDB) error

// Migration is one schema step. IDs sort lexically, so prefix them with a
// timestamp.
type Migration struct {
	ID          string
	Description string
	Up          MigrationFunc
}

// Migrator applies migrations and records them in the history table.
type Migrator struct {
	db         *bun.DB
	provider   Provider
	history    HistoryTable
	models     *ModelRegistry
	migrations []Migration
	logger     Logger
}

func newMigrator(db *bun.DB, provider Provider, history HistoryTable, models *ModelRegistry, migrations []Migration, logger Logger) *Migrator {
	return &Migrator{
		db:         db,
		provider:   provider,
		history:    history,
		models:     models,
		migrations: migrations,
		logger:     logger,
	}
}

// HistoryTable is the table applied migrations are recorded in.
func (m *Migrator) HistoryTable() HistoryTable {
	return m.history
}

// Migrations lists every known migration in apply order.
func (m *Migrator) Migrations() ([]Migration, error) {
	all := make([]Migration, 0, len(m.migrations)+1)
	all = append(all, Migration{
		ID:          InitialMigrationID,
		Description: "Create tables of registered models",
		Up:          m.createModelTables,
	})
	all = append(all, m.migrations...)
	sort.SliceStable(all, func(i, j int) bool { return all[i].ID < all[j].ID })

	seen := make(map[string]struct{}, len(all))
	for _, mig := range all {
		if mig.ID == "" || mig.Up == nil {
			return nil, fmt.Errorf("migration %q is missing an id or up step", mig.ID)
		}
		if _, dup := seen[mig.ID]; dup {
			return nil, fmt.Errorf("duplicate migration id %q", mig.ID)
		}
		seen[mig.ID] = struct{}{}
	}
	return all, nil
}

// Applied returns the recorded migration ids in order. A missing history
// table means nothing has been applied.
func (m *Migrator) Applied(ctx context.Context) ([]string, error) {
	var ids []string
	err := m.db.NewSelect().
		ColumnExpr("?", bun.Ident(migrationIDColumn)).
		TableExpr("?", m.tableIdent()).
		OrderExpr("? ASC", bun.Ident(migrationIDColumn)).
		Scan(ctx, &ids)
	if err != nil {
		if isUndefinedTable(err) {
			return []string{}, nil
		}
		return nil, fmt.Errorf("read migrations history: %w", err)
	}
	return ids, nil
}

// Pending returns the migrations not yet recorded in the history table.
func (m *Migrator) Pending(ctx context.Context) ([]Migration, error) {
	all, err := m.Migrations()
	if err != nil {
		return nil, err
	}
	applied, err := m.Applied(ctx)
	if err != nil {
		return nil, err
	}
	done := make(map[string]struct{}, len(applied))
	for _, id := range applied {
		done[id] = struct{}{}
	}
	pending := make([]Migration, 0, len(all))
	for _, mig := range all {
		if _, ok := done[mig.ID]; !ok {
			pending = append(pending, mig)
		}
	}
	return pending, nil
}

// Apply creates the schema and history table if needed, then applies each
// pending migration in its own transaction. It returns the ids it applied.
func (m *Migrator) Apply(ctx context.Context) ([]string, error) {
	if err := m.ensureHistory(ctx); err != nil {
		return nil, err
	}
	pending, err := m.Pending(ctx)
	if err != nil {
		return nil, err
	}

	applied := make([]string, 0, len(pending))
	for _, mig := range pending {
		if err := m.apply(ctx, mig); err != nil {
			return applied, fmt.Errorf("failed to execute migration %s: %w", mig.ID, err)
		}
		applied = append(applied, mig.ID)
		m.logger.Info("Applied migration", "id", mig.ID, "history", m.history.String())
	}
	if len(applied) == 0 {
		m.logger.Debug("Database is up to date", "history", m.history.String())
	}
	return applied, nil
}

func (m *Migrator) apply(ctx context.Context, mig Migration) error {
	return m.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if err := mig.Up(ctx, tx); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx, "INSERT INTO ? (?, ?) VALUES (?, ?)",
			m.tableIdent(), bun.Ident(migrationIDColumn), bun.Ident(productVersionColumn),
			mig.ID, ProductVersion,
		)
		return err
	})
}

func (m *Migrator) ensureHistory(ctx context.Context) error {
	if m.provider == ProviderPostgres {
		if _, err := m.db.ExecContext(ctx, "CREATE SCHEMA IF NOT EXISTS ?", bun.Ident(m.history.Schema)); err != nil {
			return fmt.Errorf("create schema %s: %w", m.history.Schema, err)
		}
	}
	id, version := bun.Ident(migrationIDColumn), bun.Ident(productVersionColumn)
	_, err := m.db.ExecContext(ctx,
		"CREATE TABLE IF NOT EXISTS ? (? varchar(150) NOT NULL, ? varchar(32) NOT NULL, CONSTRAINT ? PRIMARY KEY (?))",
		m.tableIdent(), id, version, bun.Ident("PK_"+m.history.Name), id,
	)
	if err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}
	return nil
}

// tableIdent qualifies the history table with its schema on PostgreSQL.
// MySQL and SQLite have no schema separate from the database.
func (m *Migrator) tableIdent() schema.QueryAppender {
	if m.provider == ProviderPostgres {
		return schema.SafeQuery("?.?", []interface{}{bun.Ident(m.history.Schema), bun.Ident(m.history.Name)})
	}
	return bun.Ident(m.history.Name)
}

func (m *Migrator) createModelTables(ctx context.Context, db bun.IDB) error {
	for _, model := range m.models.Models() {
		if _, err := db.NewCreateTable().Model(model.Instance()).IfNotExists().Exec(ctx); err != nil {
			return fmt.Errorf("create table for %T: %w", model.Instance(), err)
		}
	}
	return nil
}

// Package database registers the application's database client: it parses
// connection strings, opens a Bun pool for PostgreSQL, MySQL or SQLite,
// binds every client to the ManagementApp schema and its
// __EFMigrationsHistory table, hands out per-unit-of-work scopes, applies
// migrations and monitors health.
package database

// Package repository provides a generic Bun repository for downstream code.
// Bind it to a database.Scope with ForScope so each unit of work uses its
// own connection.
package repository

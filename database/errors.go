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
	"database/sql/driver"
	"errors"
	"io"
	"net"
	"strings"
	"syscall"

	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
)

// ConnectErrorKind groups the ways opening a connection can fail.
type ConnectErrorKind int

const (
	ConnectErrNone ConnectErrorKind = iota
	ConnectErrUnreachable
	ConnectErrAuthFailed
	ConnectErrUnknownDatabase
	ConnectErrTimeout
	ConnectErrOther
)

func (k ConnectErrorKind) String() string {
	switch k {
	case ConnectErrNone:
		return "none"
	case ConnectErrUnreachable:
		return "unreachable"
	case ConnectErrAuthFailed:
		return "auth_failed"
	case ConnectErrUnknownDatabase:
		return "unknown_database"
	case ConnectErrTimeout:
		return "timeout"
	default:
		return "other"
	}
}

// Expected reports whether the kind means "cannot connect" rather than an
// unexpected failure.
func (k ConnectErrorKind) Expected() bool {
	switch k {
	case ConnectErrUnreachable, ConnectErrAuthFailed, ConnectErrUnknownDatabase:
		return true
	}
	return false
}

// ClassifyConnectError maps driver and network errors from lib/pq, pgx and
// go-sql-driver/mysql onto a ConnectErrorKind.
func ClassifyConnectError(err error) ConnectErrorKind {
	if err == nil {
		return ConnectErrNone
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return ConnectErrTimeout
	}
	if pgconn.Timeout(err) {
		return ConnectErrTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return ConnectErrTimeout
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return classifySQLState(string(pqErr.Code))
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return classifySQLState(pgErr.Code)
	}
	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		switch myErr.Number {
		case 1044, 1045, 1698:
			return ConnectErrAuthFailed
		case 1049:
			return ConnectErrUnknownDatabase
		case 1040, 1129, 1130:
			return ConnectErrUnreachable
		}
		return ConnectErrOther
	}

	var dnsErr *net.DNSError
	var opErr *net.OpError
	switch {
	case errors.As(err, &dnsErr),
		errors.As(err, &opErr),
		errors.Is(err, syscall.ECONNREFUSED),
		errors.Is(err, syscall.ECONNRESET),
		errors.Is(err, syscall.EHOSTUNREACH),
		errors.Is(err, syscall.ENETUNREACH),
		errors.Is(err, driver.ErrBadConn),
		errors.Is(err, mysql.ErrInvalidConn),
		errors.Is(err, io.EOF),
		errors.Is(err, io.ErrUnexpectedEOF):
		return ConnectErrUnreachable
	}

	// pgx wraps dial failures in its own connect error type.
	var connectErr *pgconn.ConnectError
	if errors.As(err, &connectErr) {
		return ConnectErrUnreachable
	}
	return ConnectErrOther
}

func classifySQLState(code string) ConnectErrorKind {
	switch {
	case code == "3D000":
		return ConnectErrUnknownDatabase
	case strings.HasPrefix(code, "28"):
		return ConnectErrAuthFailed
	case strings.HasPrefix(code, "08"), code == "57P03", code == "53300":
		return ConnectErrUnreachable
	}
	return ConnectErrOther
}

// isUndefinedTable recognises "table does not exist" across engines.
func isUndefinedTable(err error) bool {
	if err == nil {
		return false
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "42P01"
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "42P01"
	}
	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		return myErr.Number == 1146
	}
	s := strings.ToLower(err.Error())
	return strings.Contains(s, "no such table") ||
		strings.Contains(s, "undefined table") ||
		strings.Contains(s, "sqlstate 42p01")
}

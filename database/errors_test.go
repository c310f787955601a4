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
	"fmt"
	"net"
	"syscall"
	"testing"

	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
)

func TestClassifyConnectError(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		want ConnectErrorKind
	}{
		{name: "nil", err: nil, want: ConnectErrNone},
		{name: "deadline", err: fmt.Errorf("ping: %w", context.DeadlineExceeded), want: ConnectErrTimeout},
		{name: "dns", err: &net.OpError{Op: "dial", Net: "tcp", Err: &net.DNSError{Err: "no such host", Name: "db.invalid", IsNotFound: true}}, want: ConnectErrUnreachable},
		{name: "refused", err: fmt.Errorf("dial: %w", syscall.ECONNREFUSED), want: ConnectErrUnreachable},
		{name: "bad conn", err: driver.ErrBadConn, want: ConnectErrUnreachable},
		{name: "pq auth", err: &pq.Error{Code: "28P01", Message: "password authentication failed"}, want: ConnectErrAuthFailed},
		{name: "pq unknown db", err: &pq.Error{Code: "3D000"}, want: ConnectErrUnknownDatabase},
		{name: "pq connection exception", err: &pq.Error{Code: "08006"}, want: ConnectErrUnreachable},
		{name: "pq starting up", err: &pq.Error{Code: "57P03"}, want: ConnectErrUnreachable},
		{name: "pq syntax", err: &pq.Error{Code: "42601"}, want: ConnectErrOther},
		{name: "pgx auth", err: &pgconn.PgError{Code: "28000"}, want: ConnectErrAuthFailed},
		{name: "pgx unknown db", err: fmt.Errorf("connect: %w", &pgconn.PgError{Code: "3D000"}), want: ConnectErrUnknownDatabase},
		{name: "mysql access denied", err: &mysql.MySQLError{Number: 1045}, want: ConnectErrAuthFailed},
		{name: "mysql unknown db", err: &mysql.MySQLError{Number: 1049}, want: ConnectErrUnknownDatabase},
		{name: "mysql invalid conn", err: mysql.ErrInvalidConn, want: ConnectErrUnreachable},
		{name: "mysql other", err: &mysql.MySQLError{Number: 1064}, want: ConnectErrOther},
		{name: "plain", err: errors.New("boom"), want: ConnectErrOther},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, ClassifyConnectError(tt.err))
		})
	}
}

func TestConnectErrorKindExpected(t *testing.T) {
	t.Parallel()

	assert.True(t, ConnectErrUnreachable.Expected())
	assert.True(t, ConnectErrAuthFailed.Expected())
	assert.True(t, ConnectErrUnknownDatabase.Expected())
	assert.False(t, ConnectErrTimeout.Expected())
	assert.False(t, ConnectErrOther.Expected())
	assert.Equal(t, "auth_failed", ConnectErrAuthFailed.String())
}

func TestIsUndefinedTable(t *testing.T) {
	t.Parallel()

	assert.True(t, isUndefinedTable(&pq.Error{Code: "42P01"}))
	assert.True(t, isUndefinedTable(&pgconn.PgError{Code: "42P01"}))
	assert.True(t, isUndefinedTable(&mysql.MySQLError{Number: 1146}))
	assert.True(t, isUndefinedTable(errors.New("SQL logic error: no such table: __EFMigrationsHistory (1)")))
	assert.False(t, isUndefinedTable(errors.New("disk full")))
	assert.False(t, isUndefinedTable(nil))
}

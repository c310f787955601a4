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
	"errors"
	"sync"

	"github.com/uptrace/bun"
)

var ErrScopeClosed = errors.New("database scope is closed")

// Scope is one unit of work. It checks a dedicated connection out of the
// pool on first use and returns it on Close.
type Scope struct {
	factory *ClientFactory

	mu       sync.Mutex
	conn     bun.Conn
	acquired bool
	closed   bool
}

// DB returns the scope's connection, acquiring it if needed.
func (s *Scope) DB(ctx context.Context) (bun.IDB, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.acquire(ctx); err != nil {
		return nil, err
	}
	return &s.conn, nil
}

func (s *Scope) acquire(ctx context.Context) error {
	if s.closed {
		return ErrScopeClosed
	}
	if s.acquired {
		return nil
	}
	conn, err := s.factory.db.Conn(ctx)
	if err != nil {
		return err
	}
	s.conn = conn
	s.acquired = true
	return nil
}

// RunInTx runs fn in a transaction on the scope's connection. fn's error
// rolls the transaction back.
func (s *Scope) RunInTx(ctx context.Context, fn func(ctx context.Context, tx bun.Tx) error) error {
	db, err := s.DB(ctx)
	if err != nil {
		return err
	}
	return db.RunInTx(ctx, nil, fn)
}

// CanConnect reports whether the database accepts connections. Expected
// failures (unreachable host, rejected credentials, missing database) give
// false with a nil error; anything else is returned.
func (s *Scope) CanConnect(ctx context.Context) (bool, error) {
	err := s.ping(ctx)
	if err == nil {
		return true, nil
	}
	kind := ClassifyConnectError(err)
	s.factory.logger.Debug("Database connectivity check failed", "kind", kind, "error", err)
	if kind.Expected() {
		return false, nil
	}
	return false, err
}

func (s *Scope) ping(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.acquire(ctx); err != nil {
		return err
	}
	return s.conn.PingContext(ctx)
}

// Close returns the connection to the pool. It is safe to call repeatedly.
func (s *Scope) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	s.factory.releaseScope()
	if !s.acquired {
		return nil
	}
	s.acquired = false
	return s.conn.Close()
}

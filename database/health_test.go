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
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubChecker struct {
	healthy atomic.Bool
	calls   atomic.Int32
}

func (s *stubChecker) HealthCheck(context.Context) *HealthStatus {
	s.calls.Add(1)
	if s.healthy.Load() {
		return &HealthStatus{Healthy: true, LastCheckTime: time.Now()}
	}
	return &HealthStatus{LastError: "connection refused", LastCheckTime: time.Now()}
}

func TestHealthMonitor_TicksOnInterval(t *testing.T) {
	t.Parallel()

	clock := clockwork.NewFakeClock()
	checker := &stubChecker{}
	checker.healthy.Store(true)
	m := NewHealthMonitor(checker, time.Minute, WithClock(clock))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- m.Run(ctx) }()

	require.NoError(t, clock.BlockUntilContext(ctx, 1))
	clock.Advance(time.Minute)
	require.Eventually(t, func() bool { return m.Checks() == 1 }, time.Second, 5*time.Millisecond)

	clock.Advance(time.Minute)
	require.Eventually(t, func() bool { return m.Checks() == 2 }, time.Second, 5*time.Millisecond)
	assert.True(t, m.Last().Healthy)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("monitor did not stop")
	}
}

func TestHealthMonitor_LogsTransitions(t *testing.T) {
	t.Parallel()

	logger := &recordingLogger{}
	checker := &stubChecker{}
	checker.healthy.Store(true)
	m := NewHealthMonitor(checker, time.Minute, WithHealthLogger(logger))
	ctx := context.Background()

	assert.True(t, m.Check(ctx).Healthy)

	checker.healthy.Store(false)
	status := m.Check(ctx)
	assert.False(t, status.Healthy)
	assert.Equal(t, "connection refused", status.LastError)
	assert.Contains(t, logger.messages("warn"), "Database health check failed")

	checker.healthy.Store(true)
	assert.True(t, m.Check(ctx).Healthy)
	assert.Contains(t, logger.messages("info"), "Database connection recovered")
}

func TestHealthMonitor_BreakerOpensAfterConsecutiveFailures(t *testing.T) {
	t.Parallel()

	checker := &stubChecker{}
	m := NewHealthMonitor(checker, time.Minute)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		m.Check(ctx)
	}
	assert.Equal(t, gobreaker.StateOpen, m.BreakerState())

	status := m.Check(ctx)
	assert.False(t, status.Healthy)
	assert.Equal(t, gobreaker.ErrOpenState.Error(), status.LastError)
	assert.Equal(t, int32(3), checker.calls.Load(), "open breaker skips the ping")
}

func TestHealthMonitor_DisabledIntervalWaitsForCancel(t *testing.T) {
	t.Parallel()

	m := NewHealthMonitor(&stubChecker{}, 0)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.NoError(t, m.Run(ctx))
	assert.Equal(t, 0, m.Checks())
}

func TestHealthMonitor_AgainstFactory(t *testing.T) {
	t.Parallel()

	f := newSQLiteFactory(t)
	m := NewHealthMonitor(f, time.Second)
	assert.True(t, m.Check(context.Background()).Healthy)
	assert.Equal(t, "database-health", m.Name())
}

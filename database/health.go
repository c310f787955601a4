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
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/sony/gobreaker"
)

const defaultHealthCheckTimeout = 5 * time.Second

// HealthChecker is what the monitor pings; *ClientFactory implements it.
type HealthChecker interface {
	HealthCheck(ctx context.Context) *HealthStatus
}

// HealthMonitor pings the database on an interval through a circuit
// breaker and logs whenever health flips. It never reconnects or retries.
type HealthMonitor struct {
	checker  HealthChecker
	interval time.Duration
	timeout  time.Duration
	clock    clockwork.Clock
	breaker  *gobreaker.CircuitBreaker
	logger   Logger

	mu     sync.RWMutex
	last   *HealthStatus
	checks int
}

type HealthMonitorOption func(*HealthMonitor)

// WithClock swaps the ticker clock; tests pass a fake clock.
func WithClock(clock clockwork.Clock) HealthMonitorOption {
	return func(m *HealthMonitor) { m.clock = clock }
}

func WithHealthLogger(logger Logger) HealthMonitorOption {
	return func(m *HealthMonitor) {
		if logger != nil {
			m.logger = logger
		}
	}
}

func WithCheckTimeout(timeout time.Duration) HealthMonitorOption {
	return func(m *HealthMonitor) {
		if timeout > 0 {
			m.timeout = timeout
		}
	}
}

func NewHealthMonitor(checker HealthChecker, interval time.Duration, opts ...HealthMonitorOption) *HealthMonitor {
	m := &HealthMonitor{
		checker:  checker,
		interval: interval,
		timeout:  defaultHealthCheckTimeout,
		clock:    clockwork.NewRealClock(),
		logger:   nopLogger{},
	}
	for _, opt := range opts {
		opt(m)
	}
	m.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "database-health",
		MaxRequests: 1,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			m.logger.Warn("Circuit breaker state changed", "breaker", name, "from", from.String(), "to", to.String())
		},
	})
	return m
}

func (m *HealthMonitor) Name() string { return "database-health" }

// Run checks health every interval until ctx is done.
func (m *HealthMonitor) Run(ctx context.Context) error {
	if m.interval <= 0 {
		<-ctx.Done()
		return nil
	}
	ticker := m.clock.NewTicker(m.interval)
	defer ticker.Stop()

	m.logger.Info("Database health monitor started", "interval", m.interval)
	for {
		select {
		case <-ctx.Done():
			m.logger.Info("Database health monitor stopped")
			return nil
		case <-ticker.Chan():
			m.Check(ctx)
		}
	}
}

// Check runs a single health check and records the result.
func (m *HealthMonitor) Check(ctx context.Context) *HealthStatus {
	checkCtx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	result, err := m.breaker.Execute(func() (interface{}, error) {
		status := m.checker.HealthCheck(checkCtx)
		if !status.Healthy {
			return status, errors.New(status.LastError)
		}
		return status, nil
	})

	status, _ := result.(*HealthStatus)
	if status == nil {
		status = &HealthStatus{LastCheckTime: m.clock.Now()}
		if err != nil {
			status.LastError = err.Error()
		}
	}
	m.record(status)
	return status
}

func (m *HealthMonitor) record(status *HealthStatus) {
	m.mu.Lock()
	prev := m.last
	m.last = status
	m.checks++
	m.mu.Unlock()

	switch {
	case prev == nil && status.Healthy:
		m.logger.Debug("Database healthy", "response_time", status.ResponseTime)
	case status.Healthy && !prev.Healthy:
		m.logger.Info("Database connection recovered", "response_time", status.ResponseTime)
	case !status.Healthy && (prev == nil || prev.Healthy):
		m.logger.Warn("Database health check failed", "error", status.LastError)
	}
}

// Last returns the most recent status, or nil before the first check.
func (m *HealthMonitor) Last() *HealthStatus {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.last
}

// Checks counts completed health checks.
func (m *HealthMonitor) Checks() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.checks
}

// BreakerState exposes the breaker state for diagnostics.
func (m *HealthMonitor) BreakerState() gobreaker.State {
	return m.breaker.State()
}

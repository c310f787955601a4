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

package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/tomoncle/managementapp/config"
	"github.com/tomoncle/managementapp/database"
	"github.com/tomoncle/managementapp/utils"
)

const loggerName = "STARTUP"

// Options configures a startup.
type Options struct {
	// ConfigDir holds appsettings.json and its environment overrides.
	ConfigDir string
	// Environment overrides APP_ENV when non-empty.
	Environment string
	// Stdout receives the diagnostic lines; os.Stdout when nil.
	Stdout io.Writer
	// Logger overrides the structured logger.
	Logger database.Logger

	Models     []database.SQLModel
	Migrations []database.Migration
	// Services run alongside the host until shutdown.
	Services []Service
	// Clock drives the health monitor ticker.
	Clock clockwork.Clock
}

// App is a configured application: its configuration, the registered
// database client and the result of the startup probe.
type App struct {
	cfg     *config.Config
	factory *database.ClientFactory
	diag    *Diagnostics
	logger  database.Logger
	opts    Options

	state     atomic.Int32
	probeOnce sync.Once
	probe     ProbeResult
	runOnce   sync.Once
}

// Configure resolves the environment, loads the layered configuration,
// prints the redacted connection string and registers the database client.
// A missing connection string aborts startup after printing a warning.
func Configure(opts Options) (*App, error) {
	diag := NewDiagnostics(opts.Stdout)
	logger := opts.Logger
	if logger == nil {
		logger = database.NewLogger(loggerName)
	}

	if err := config.LoadDotEnv(opts.ConfigDir); err != nil {
		return nil, err
	}
	environment := config.ResolveEnvironment(opts.Environment)
	diag.Environment(environment)
	diag.Sources(environment)

	cfg, err := config.Load(config.LoadOptions{Dir: opts.ConfigDir, Environment: environment})
	if err != nil {
		if errors.Is(err, config.ErrMissingConnectionString) {
			diag.MissingConnectionString()
		}
		return nil, fmt.Errorf("load configuration: %w", err)
	}
	utils.ConfigureConsoleLogFormat(cfg.Logging.Format)
	utils.ConfigureLogLevel(cfg.Logging.Level)

	diag.ConnectionString(cfg.DefaultConnectionString())

	factory, err := database.NewClientFactory(connectionConfig(cfg),
		database.WithLogger(logger),
		database.WithModels(opts.Models...),
		database.WithMigrations(opts.Migrations...),
	)
	if err != nil {
		return nil, fmt.Errorf("register database client: %w", err)
	}

	app := &App{cfg: cfg, factory: factory, diag: diag, logger: logger, opts: opts}
	app.state.Store(int32(StateConfigured))
	logger.Debug("Configuration loaded", "environment", environment, "sources", cfg.Sources)
	return app, nil
}

func connectionConfig(cfg *config.Config) *database.ConnectionConfig {
	return &database.ConnectionConfig{
		Provider:         database.Provider(cfg.Database.Provider),
		Driver:           cfg.Database.Driver,
		ConnectionString: cfg.DefaultConnectionString(),
		MaxIdleConns:     cfg.Database.MaxIdleConns,
		MaxOpenConns:     cfg.Database.MaxOpenConns,
		ConnMaxLifetime:  cfg.Database.ConnMaxLifetime,
		ConnMaxIdleTime:  cfg.Database.ConnMaxIdleTime,
		ConnectTimeout:   dialTimeout(cfg.Database),
		EnableQueryLog:   cfg.Database.EnableQueryLog,
		SlowQueryTime:    cfg.Database.SlowQueryThreshold,
	}
}

// dialTimeout caps the driver's connect timeout at ProbeTimeout so an
// abandoned probe does not keep a dial open for longer than the probe ran.
func dialTimeout(db config.DatabaseConfig) time.Duration {
	if db.ProbeTimeout > 0 && (db.ConnectTimeout <= 0 || db.ConnectTimeout > db.ProbeTimeout) {
		return db.ProbeTimeout
	}
	return db.ConnectTimeout
}

func (a *App) Config() *config.Config { return a.cfg }

func (a *App) Factory() *database.ClientFactory { return a.factory }

func (a *App) State() State { return State(a.state.Load()) }

// Readiness is ReadinessUnknown until Probe has run.
func (a *App) Readiness() Readiness {
	if a.State() < StateProbing {
		return ReadinessUnknown
	}
	return a.probe.Readiness
}

func (a *App) advance(to State) {
	for {
		cur := a.state.Load()
		if State(cur) >= to || a.state.CompareAndSwap(cur, int32(to)) {
			return
		}
	}
}

// Probe checks connectivity once in a fresh scope. Later calls return the
// first result. Failures are reported, never returned. The probe gives up
// when ProbeTimeout elapses even if the driver is still dialling.
func (a *App) Probe(ctx context.Context) ProbeResult {
	a.probeOnce.Do(func() {
		timeout := a.cfg.Database.ProbeTimeout
		if timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, timeout)
			defer cancel()
		}

		start := time.Now()
		connected, err := a.canConnect(ctx)
		if err != nil && timeout > 0 && errors.Is(ctx.Err(), context.DeadlineExceeded) {
			err = fmt.Errorf("connectivity check timed out after %s: %w", timeout, context.DeadlineExceeded)
		}

		result := ProbeResult{Err: err, Kind: database.ClassifyConnectError(err), Duration: time.Since(start)}
		switch {
		case err != nil:
			result.Readiness = ReadinessFailed
			a.diag.ConnectionError(err)
			a.logger.Warn("Database connectivity probe failed", "kind", result.Kind, "error", err)
		case connected:
			result.Readiness = ReadinessConnected
			a.diag.Connected(a.factory.Provider().DisplayName())
		default:
			result.Readiness = ReadinessUnreachable
			a.diag.NotConnected()
		}
		a.probe = result
		a.advance(StateProbing)
		a.logger.Debug("Database connectivity probe finished", "readiness", result.Readiness, "duration", result.Duration)
	})
	return a.probe
}

// canConnect runs the check in its own goroutine. lib/pq does not watch the
// context while it performs the startup handshake, so the caller selects on
// ctx instead of waiting for the driver. An abandoned check releases its
// scope once the driver returns.
func (a *App) canConnect(ctx context.Context) (bool, error) {
	type outcome struct {
		connected bool
		err       error
	}
	done := make(chan outcome, 1)
	go func() {
		var connected bool
		err := a.factory.WithScope(ctx, func(ctx context.Context, scope *database.Scope) error {
			var err error
			connected, err = scope.CanConnect(ctx)
			return err
		})
		done <- outcome{connected: connected, err: err}
	}()

	select {
	case o := <-done:
		return o.connected, o.err
	case <-ctx.Done():
		return false, ctx.Err()
	}
}

// Run starts the hosted services and blocks until ctx is cancelled or a
// termination signal arrives, then closes the database client. A failed
// probe does not stop the host.
func (a *App) Run(ctx context.Context) error {
	started := false
	a.runOnce.Do(func() { started = true })
	if !started {
		return errors.New("application has already run")
	}

	a.Probe(ctx)
	a.advance(StateRunning)
	defer func() {
		if err := a.factory.Close(); err != nil {
			a.logger.Error("Failed to close database client", "error", err)
		}
		a.advance(StateTerminated)
	}()

	if a.cfg.Database.MigrateOnStartup {
		if err := a.migrate(ctx); err != nil {
			return err
		}
	}

	services := append([]Service(nil), a.opts.Services...)
	if interval := a.cfg.Database.HealthCheckInterval; interval > 0 {
		clock := a.opts.Clock
		if clock == nil {
			clock = clockwork.NewRealClock()
		}
		services = append(services, database.NewHealthMonitor(a.factory, interval,
			database.WithClock(clock),
			database.WithHealthLogger(a.logger),
		))
	}

	host := NewHost(a.logger, a.cfg.Host.ShutdownTimeout, services...)
	return host.Run(ctx)
}

func (a *App) migrate(ctx context.Context) error {
	if a.probe.Readiness != ReadinessConnected {
		a.logger.Warn("Skipping migrations on startup: database is not reachable", "readiness", a.probe.Readiness)
		return nil
	}
	applied, err := a.factory.Migrator().Apply(ctx)
	if err != nil {
		return fmt.Errorf("apply migrations: %w", err)
	}
	a.logger.Info("Migrations applied on startup", "count", len(applied))
	return nil
}

// Start is Configure, Probe and Run in sequence.
func Start(ctx context.Context, opts Options) error {
	app, err := Configure(opts)
	if err != nil {
		return err
	}
	app.Probe(ctx)
	return app.Run(ctx)
}

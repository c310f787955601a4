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

package config

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

const (
	// DefaultConnectionName is the connection string every entry point resolves.
	DefaultConnectionName = "DefaultConnection"
	// EnvironmentVariable selects the environment-specific override file.
	EnvironmentVariable = "APP_ENV"
	DefaultEnvironment  = "Production"
	BaseFileName        = "appsettings.json"

	connectionKey = "connectionstrings.defaultconnection"
)

var ErrMissingConnectionString = errors.New("connection string 'DefaultConnection' not found")

// Config is the typed snapshot of every configuration layer after merging.
type Config struct {
	Environment       string            `mapstructure:"-" yaml:"environment"`
	Sources           []string          `mapstructure:"-" yaml:"sources"`
	ConnectionStrings map[string]string `mapstructure:"connectionstrings" yaml:"connection_strings"`
	Database          DatabaseConfig    `mapstructure:"database" yaml:"database"`
	Logging           LoggingConfig     `mapstructure:"logging" yaml:"logging"`
	Host              HostConfig        `mapstructure:"host" yaml:"host"`

	snapshot Snapshot
}

type DatabaseConfig struct {
	Provider            string        `mapstructure:"provider" yaml:"provider"`
	Driver              string        `mapstructure:"driver" yaml:"driver"`
	MaxOpenConns        int           `mapstructure:"maxopenconns" yaml:"max_open_conns"`
	MaxIdleConns        int           `mapstructure:"maxidleconns" yaml:"max_idle_conns"`
	ConnMaxLifetime     time.Duration `mapstructure:"connmaxlifetime" yaml:"conn_max_lifetime"`
	ConnMaxIdleTime     time.Duration `mapstructure:"connmaxidletime" yaml:"conn_max_idle_time"`
	ConnectTimeout      time.Duration `mapstructure:"connecttimeout" yaml:"connect_timeout"`
	ProbeTimeout        time.Duration `mapstructure:"probetimeout" yaml:"probe_timeout"`
	EnableQueryLog      bool          `mapstructure:"enablequerylog" yaml:"enable_query_log"`
	SlowQueryThreshold  time.Duration `mapstructure:"slowquerythreshold" yaml:"slow_query_threshold"`
	MigrateOnStartup    bool          `mapstructure:"migrateonstartup" yaml:"migrate_on_startup"`
	HealthCheckInterval time.Duration `mapstructure:"healthcheckinterval" yaml:"health_check_interval"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
}

type HostConfig struct {
	ShutdownTimeout time.Duration `mapstructure:"shutdowntimeout" yaml:"shutdown_timeout"`
}

// LoadOptions controls where configuration files are read from.
type LoadOptions struct {
	// Dir holds appsettings.json, the environment override and an optional .env.
	Dir string
	// Environment overrides APP_ENV when non-empty.
	Environment string
}

// ResolveEnvironment returns the explicit name, else APP_ENV, else Production.
func ResolveEnvironment(explicit string) string {
	if env := strings.TrimSpace(explicit); env != "" {
		return env
	}
	if env := strings.TrimSpace(os.Getenv(EnvironmentVariable)); env != "" {
		return env
	}
	return DefaultEnvironment
}

// EnvironmentFileName returns appsettings.<environment>.json.
func EnvironmentFileName(environment string) string {
	return fmt.Sprintf("appsettings.%s.json", environment)
}

// LoadDotEnv loads <dir>/.env into the process environment without
// overriding variables that are already set. A missing file is not an error.
func LoadDotEnv(dir string) error {
	if dir == "" {
		dir = "."
	}
	if err := godotenv.Load(filepath.Join(dir, ".env")); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("reading .env: %w", err)
	}
	return nil
}

// Load merges defaults, appsettings.json, appsettings.<env>.json and the
// process environment, then validates the result.
func Load(opts LoadOptions) (*Config, error) {
	dir := opts.Dir
	if dir == "" {
		dir = "."
	}
	if err := LoadDotEnv(dir); err != nil {
		return nil, err
	}
	environment := ResolveEnvironment(opts.Environment)

	v := viper.New()
	setDefaults(v)

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "__"))
	v.AutomaticEnv()
	if err := v.BindEnv(connectionKey, "ConnectionStrings__DefaultConnection", "CONNECTIONSTRINGS__DEFAULTCONNECTION"); err != nil {
		return nil, fmt.Errorf("binding connection string variable: %w", err)
	}

	v.SetConfigType("json")
	var sources []string
	for _, name := range []string{BaseFileName, EnvironmentFileName(environment)} {
		path := filepath.Join(dir, name)
		if _, err := os.Stat(path); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return nil, fmt.Errorf("checking config file %s: %w", path, err)
		}
		v.SetConfigFile(path)
		if err := v.MergeInConfig(); err != nil {
			return nil, fmt.Errorf("reading config file %s: %w", path, err)
		}
		sources = append(sources, path)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshalling config: %w", err)
	}
	cfg.Environment = environment
	cfg.Sources = sources
	cfg.snapshot = newSnapshot(v.AllSettings())

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault(connectionKey, "")

	v.SetDefault("database.provider", "postgres")
	v.SetDefault("database.driver", "pq")
	v.SetDefault("database.maxopenconns", 100)
	v.SetDefault("database.maxidleconns", 10)
	v.SetDefault("database.connmaxlifetime", time.Hour)
	v.SetDefault("database.connmaxidletime", 30*time.Minute)
	v.SetDefault("database.connecttimeout", 10*time.Second)
	v.SetDefault("database.probetimeout", 30*time.Second)
	v.SetDefault("database.enablequerylog", false)
	v.SetDefault("database.slowquerythreshold", 2*time.Second)
	v.SetDefault("database.migrateonstartup", false)
	v.SetDefault("database.healthcheckinterval", time.Duration(0))

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")

	v.SetDefault("host.shutdowntimeout", 10*time.Second)
}

// Validate reports every problem at once; errors.Is works on each of them.
func (c *Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.ConnectionString(DefaultConnectionName)) == "" {
		errs = append(errs, ErrMissingConnectionString)
	}

	switch strings.ToLower(c.Database.Provider) {
	case "postgres", "postgresql", "pg", "mysql", "sqlite", "sqlite3":
	default:
		errs = append(errs, fmt.Errorf("unsupported database provider %q", c.Database.Provider))
	}
	switch strings.ToLower(c.Database.Driver) {
	case "", "pq", "pgx":
	default:
		errs = append(errs, fmt.Errorf("unsupported postgres driver %q", c.Database.Driver))
	}

	durations := map[string]time.Duration{
		"Database:ConnMaxLifetime":     c.Database.ConnMaxLifetime,
		"Database:ConnMaxIdleTime":     c.Database.ConnMaxIdleTime,
		"Database:ConnectTimeout":      c.Database.ConnectTimeout,
		"Database:ProbeTimeout":        c.Database.ProbeTimeout,
		"Database:SlowQueryThreshold":  c.Database.SlowQueryThreshold,
		"Database:HealthCheckInterval": c.Database.HealthCheckInterval,
		"Host:ShutdownTimeout":         c.Host.ShutdownTimeout,
	}
	for _, key := range sortedKeys(durations) {
		if durations[key] < 0 {
			errs = append(errs, fmt.Errorf("%s must not be negative", key))
		}
	}
	if c.Database.MaxOpenConns < 0 || c.Database.MaxIdleConns < 0 {
		errs = append(errs, errors.New("database pool sizes must not be negative"))
	}
	return errors.Join(errs...)
}

// ConnectionString looks a named connection string up case-insensitively.
func (c *Config) ConnectionString(name string) string {
	return c.ConnectionStrings[strings.ToLower(name)]
}

// DefaultConnectionString is ConnectionStrings:DefaultConnection.
func (c *Config) DefaultConnectionString() string {
	return c.ConnectionString(DefaultConnectionName)
}

// Snapshot exposes the merged key/value view behind the typed sections.
func (c *Config) Snapshot() Snapshot {
	return c.snapshot
}

// Redacted returns a copy that is safe to print.
func (c *Config) Redacted() *Config {
	cp := *c
	cp.ConnectionStrings = make(map[string]string, len(c.ConnectionStrings))
	for name, value := range c.ConnectionStrings {
		cp.ConnectionStrings[name] = Redact(value)
	}
	cp.Sources = append([]string(nil), c.Sources...)
	cp.snapshot = c.snapshot.redacted()
	return &cp
}

// WriteYAML dumps the redacted effective configuration.
func (c *Config) WriteYAML(w io.Writer) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(c.Redacted()); err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}
	return enc.Close()
}

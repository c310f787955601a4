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
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const connectionVariable = "ConnectionStrings__DefaultConnection"

func writeFile(t *testing.T, dir, name, body string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(body), 0o600))
}

// isolateEnv clears variables a developer machine might carry.
func isolateEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{EnvironmentVariable, connectionVariable, "CONNECTIONSTRINGS__DEFAULTCONNECTION", "DATABASE__PROVIDER"} {
		t.Setenv(key, "")
		require.NoError(t, os.Unsetenv(key))
	}
}

func TestResolveEnvironment(t *testing.T) {
	isolateEnv(t)
	assert.Equal(t, "Production", ResolveEnvironment(""))

	t.Setenv(EnvironmentVariable, "Development")
	assert.Equal(t, "Development", ResolveEnvironment(""))
	assert.Equal(t, "Staging", ResolveEnvironment(" Staging "))
	assert.Equal(t, "appsettings.Staging.json", EnvironmentFileName("Staging"))
}

func TestLoad_EnvironmentFileOverridesBase(t *testing.T) {
	isolateEnv(t)
	dir := t.TempDir()
	writeFile(t, dir, "appsettings.json", `{
  "ConnectionStrings": {"DefaultConnection": "Host=prod;Password=prod"},
  "Database": {"ProbeTimeout": "5s", "MaxOpenConns": 20},
  "Logging": {"Level": "warn"}
}`)
	writeFile(t, dir, "appsettings.Development.json", `{
  "ConnectionStrings": {"DefaultConnection": "Host=localhost;Password=dev"},
  "Logging": {"Level": "debug"}
}`)

	cfg, err := Load(LoadOptions{Dir: dir, Environment: "Development"})
	require.NoError(t, err)
	assert.Equal(t, "Development", cfg.Environment)
	assert.Equal(t, "Host=localhost;Password=dev", cfg.DefaultConnectionString())
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, 5*time.Second, cfg.Database.ProbeTimeout)
	assert.Equal(t, 20, cfg.Database.MaxOpenConns)
	assert.Equal(t, "postgres", cfg.Database.Provider)
	assert.Equal(t, 10*time.Second, cfg.Host.ShutdownTimeout)
	assert.Equal(t, []string{
		filepath.Join(dir, "appsettings.json"),
		filepath.Join(dir, "appsettings.Development.json"),
	}, cfg.Sources)

	v, ok := cfg.Snapshot().Get("ConnectionStrings:DefaultConnection")
	assert.True(t, ok)
	assert.Equal(t, "Host=localhost;Password=dev", v)
	v, ok = cfg.Snapshot().Get("Logging__Level")
	assert.True(t, ok)
	assert.Equal(t, "debug", v)
}

func TestLoad_MissingEnvironmentFileIsIgnored(t *testing.T) {
	isolateEnv(t)
	dir := t.TempDir()
	writeFile(t, dir, "appsettings.json", `{"ConnectionStrings": {"DefaultConnection": "Host=h"}}`)

	cfg, err := Load(LoadOptions{Dir: dir, Environment: "Nowhere"})
	require.NoError(t, err)
	assert.Equal(t, "Host=h", cfg.DefaultConnectionString())
	assert.Len(t, cfg.Sources, 1)
}

func TestLoad_EnvironmentVariablesWin(t *testing.T) {
	isolateEnv(t)
	dir := t.TempDir()
	writeFile(t, dir, "appsettings.json", `{"ConnectionStrings": {"DefaultConnection": "Host=file"}}`)
	t.Setenv(connectionVariable, "Host=env;Password=x")
	t.Setenv("DATABASE__PROVIDER", "mysql")

	cfg, err := Load(LoadOptions{Dir: dir, Environment: "Development"})
	require.NoError(t, err)
	assert.Equal(t, "Host=env;Password=x", cfg.DefaultConnectionString())
	assert.Equal(t, "mysql", cfg.Database.Provider)
}

func TestLoad_AppEnvSelectsOverrideFile(t *testing.T) {
	isolateEnv(t)
	dir := t.TempDir()
	writeFile(t, dir, "appsettings.json", `{"ConnectionStrings": {"DefaultConnection": "Host=base"}}`)
	writeFile(t, dir, "appsettings.Staging.json", `{"ConnectionStrings": {"DefaultConnection": "Host=staging"}}`)
	t.Setenv(EnvironmentVariable, "Staging")

	cfg, err := Load(LoadOptions{Dir: dir})
	require.NoError(t, err)
	assert.Equal(t, "Staging", cfg.Environment)
	assert.Equal(t, "Host=staging", cfg.DefaultConnectionString())
}

func TestLoad_DotEnvFile(t *testing.T) {
	isolateEnv(t)
	dir := t.TempDir()
	writeFile(t, dir, ".env", connectionVariable+"=Host=dotenv;Password=x\n")

	cfg, err := Load(LoadOptions{Dir: dir, Environment: "Development"})
	require.NoError(t, err)
	assert.Equal(t, "Host=dotenv;Password=x", cfg.DefaultConnectionString())
}

func TestLoad_MissingConnectionString(t *testing.T) {
	isolateEnv(t)
	dir := t.TempDir()
	writeFile(t, dir, "appsettings.json", `{"ConnectionStrings": {"DefaultConnection": "   "}}`)

	_, err := Load(LoadOptions{Dir: dir, Environment: "Development"})
	assert.ErrorIs(t, err, ErrMissingConnectionString)

	_, err = Load(LoadOptions{Dir: t.TempDir(), Environment: "Development"})
	assert.ErrorIs(t, err, ErrMissingConnectionString)
}

func TestLoad_InvalidSettings(t *testing.T) {
	isolateEnv(t)
	dir := t.TempDir()
	writeFile(t, dir, "appsettings.json", `{
  "ConnectionStrings": {"DefaultConnection": "Host=h"},
  "Database": {"Provider": "oracle", "Driver": "odbc", "ProbeTimeout": "-1s", "MaxOpenConns": -1}
}`)

	_, err := Load(LoadOptions{Dir: dir, Environment: "Development"})
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrMissingConnectionString)
	assert.ErrorContains(t, err, `unsupported database provider "oracle"`)
	assert.ErrorContains(t, err, `unsupported postgres driver "odbc"`)
	assert.ErrorContains(t, err, "Database:ProbeTimeout must not be negative")
	assert.ErrorContains(t, err, "pool sizes must not be negative")
}

func TestLoad_MalformedFile(t *testing.T) {
	isolateEnv(t)
	dir := t.TempDir()
	writeFile(t, dir, "appsettings.json", `{"ConnectionStrings": `)

	_, err := Load(LoadOptions{Dir: dir, Environment: "Development"})
	assert.ErrorContains(t, err, "appsettings.json")
}

func TestWriteYAML_RedactsConnectionStrings(t *testing.T) {
	isolateEnv(t)
	dir := t.TempDir()
	writeFile(t, dir, "appsettings.json", `{"ConnectionStrings": {"DefaultConnection": "Host=h;Password=secret123;Other=x"}}`)

	cfg, err := Load(LoadOptions{Dir: dir, Environment: "Development"})
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, cfg.WriteYAML(&buf))
	assert.Contains(t, buf.String(), "defaultconnection: Host=h;Password=***")
	assert.Contains(t, buf.String(), "probe_timeout: 30s")
	assert.NotContains(t, buf.String(), "secret123")

	redacted, _ := cfg.Redacted().Snapshot().Get("ConnectionStrings:DefaultConnection")
	assert.Equal(t, "Host=h;Password=***", redacted)
	assert.Equal(t, "Host=h;Password=secret123;Other=x", cfg.DefaultConnectionString(), "original is untouched")
}

func TestWriteYAML_RedactsPasswordSpellings(t *testing.T) {
	isolateEnv(t)
	dir := t.TempDir()
	writeFile(t, dir, "appsettings.json", `{"ConnectionStrings": {
  "DefaultConnection": "Host=h;password=secret123;Database=d",
  "Reporting": "Server=r; Pwd = secret456"
}}`)

	cfg, err := Load(LoadOptions{Dir: dir, Environment: "Development"})
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, cfg.WriteYAML(&buf))
	assert.Contains(t, buf.String(), "defaultconnection: Host=h;password=***")
	assert.NotContains(t, buf.String(), "secret123")
	assert.NotContains(t, buf.String(), "secret456")
}

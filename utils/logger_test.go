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

package utils

import (
	"bytes"
	"encoding/json"
	"os"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLogLevel(t *testing.T) {
	cases := map[string]logrus.Level{
		"debug":   logrus.DebugLevel,
		" WARN ":  logrus.WarnLevel,
		"warning": logrus.WarnLevel,
		"error":   logrus.ErrorLevel,
		"":        logrus.InfoLevel,
		"verbose": logrus.InfoLevel,
	}
	for in, want := range cases {
		assert.Equal(t, want, ParseLogLevel(in), in)
	}
}

func TestNewLogger_ReturnsRegisteredInstance(t *testing.T) {
	a := NewLogger("registry-test")
	b := NewLogger("registry-test")
	assert.Same(t, a, b)
	assert.True(t, SetLoggerLevel("registry-test", "error"))
	assert.Equal(t, logrus.ErrorLevel, a.GetLevel())
	assert.False(t, SetLoggerLevel("never-created", "error"))
}

func TestJSONLogFormatter(t *testing.T) {
	var buf bytes.Buffer
	SetConsoleOutput(&buf)
	ConfigureConsoleLogFormat("json")
	t.Cleanup(func() {
		SetConsoleOutput(nil)
		ConfigureConsoleLogFormat("text")
	})

	lg := NewLogger("json-test")
	lg.SetLevel(logrus.InfoLevel)
	lg.WithField("environment", "Development").Info("Configuration loaded")

	var rec map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "info", rec["level"])
	assert.Equal(t, "json-test", rec["model"])
	assert.Equal(t, "Configuration loaded", rec["message"])
	assert.Equal(t, map[string]interface{}{"environment": "Development"}, rec["fields"])
	assert.Contains(t, rec["caller"], "utils/logger_test.go:")
}

func TestLog4jColorFormatter(t *testing.T) {
	f := &Log4jColorFormatter{LoggerName: "STARTUP", NameWidth: 10}
	entry := logrus.NewEntry(logrus.New())
	entry.Level = logrus.WarnLevel
	entry.Message = "Database health check failed"
	entry.Data = logrus.Fields{"kind": "Unreachable", "attempt": 2}

	out, err := f.Format(entry)
	require.NoError(t, err)
	line := string(out)
	assert.Contains(t, line, "WARN")
	assert.Contains(t, line, "   STARTUP")
	assert.Contains(t, line, "Database health check failed attempt=2 kind=Unreachable")
	assert.True(t, strings.HasSuffix(line, "\n"))
}

func TestEnvDefaults(t *testing.T) {
	t.Setenv("UTILS_TEST_STRING", "value")
	t.Setenv("UTILS_TEST_BOOL", "nope")
	assert.Equal(t, "value", EnvDefaultString("UTILS_TEST_STRING", "def"))
	assert.Equal(t, "def", EnvDefaultString("UTILS_TEST_MISSING", "def"))
	assert.True(t, EnvDefaultBool("UTILS_TEST_BOOL", true))
	assert.False(t, EnvDefaultBool("UTILS_TEST_MISSING", false))
}

func TestNewLogger_WritesToStderrByDefault(t *testing.T) {
	SetConsoleOutput(nil)
	lg := NewLogger("stderr-test")
	assert.Equal(t, os.Stderr, lg.Out)
}

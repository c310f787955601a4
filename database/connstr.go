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
	"fmt"
	"math"
	"net"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
)

// ConnectionInfo is a parsed connection string. Only the keys the drivers
// understand are kept; anything else lands in Extra.
type ConnectionInfo struct {
	Host            string
	Port            int
	Database        string
	Username        string
	Password        string
	SSLMode         string
	SearchPath      string
	ApplicationName string
	Timeout         time.Duration
	MaxPoolSize     int
	MinPoolSize     int
	DataSource      string
	InMemory        bool
	Extra           map[string]string

	rawURL string
}

// ParseConnectionString accepts "Key=Value;..." strings and, for PostgreSQL,
// postgres:// URLs. Keys are case-insensitive and ignore spaces.
func ParseConnectionString(provider Provider, s string) (*ConnectionInfo, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, ErrEmptyConnectionString
	}
	if provider == ProviderPostgres && (strings.HasPrefix(s, "postgres://") || strings.HasPrefix(s, "postgresql://")) {
		return parsePostgresURL(s)
	}

	info := &ConnectionInfo{Extra: map[string]string{}}
	for i, segment := range Segments(s) {
		if strings.TrimSpace(segment.Raw) == "" {
			continue
		}
		key, value, ok := strings.Cut(segment.Raw, "=")
		if !ok {
			return nil, fmt.Errorf("connection string segment %d has no '='", i+1)
		}
		if err := info.set(NormalizeKeyword(key), unquote(strings.TrimSpace(value))); err != nil {
			return nil, err
		}
	}
	return info, nil
}

// Segment is one "Key=Value" part of a keyword connection string.
type Segment struct {
	// Offset is the byte position of Raw in the original string.
	Offset int
	Raw    string
}

// Segments splits s on ';' outside single or double quotes, so quoted
// values may contain ';'. An unterminated quote runs to the end of s.
func Segments(s string) []Segment {
	var segments []Segment
	start, valueStart := 0, -1
	var quote byte
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case quote != 0:
			if c == quote {
				quote = 0
			}
		case c == '=' && valueStart < 0:
			valueStart = i + 1
		case (c == '"' || c == '\'') && valueStart >= 0 && strings.TrimSpace(s[valueStart:i]) == "":
			quote = c
		case c == ';':
			segments = append(segments, Segment{Offset: start, Raw: s[start:i]})
			start, valueStart = i+1, -1
		}
	}
	return append(segments, Segment{Offset: start, Raw: s[start:]})
}

// NormalizeKeyword lowercases key and drops spaces and underscores, so
// "SSL Mode", "ssl_mode" and "SSLMODE" compare equal.
func NormalizeKeyword(key string) string {
	key = strings.ToLower(strings.TrimSpace(key))
	return strings.NewReplacer(" ", "", "_", "").Replace(key)
}

// IsPasswordKeyword reports whether key names the password.
func IsPasswordKeyword(key string) bool {
	switch NormalizeKeyword(key) {
	case "password", "pwd":
		return true
	}
	return false
}

func unquote(v string) string {
	if len(v) >= 2 && (v[0] == '"' || v[0] == '\'') && v[len(v)-1] == v[0] {
		return v[1 : len(v)-1]
	}
	return v
}

func (ci *ConnectionInfo) set(key, value string) error {
	switch key {
	case "host", "server", "address", "addr":
		ci.Host = value
	case "port":
		port, err := strconv.Atoi(value)
		if err != nil || port <= 0 || port > 65535 {
			return fmt.Errorf("invalid port %q", value)
		}
		ci.Port = port
	case "database", "db", "initialcatalog":
		ci.Database = value
	case "username", "userid", "user", "uid":
		ci.Username = value
	case "password", "pwd":
		ci.Password = value
	case "sslmode":
		ci.SSLMode = normalizeSSLMode(value)
	case "searchpath":
		ci.SearchPath = value
	case "applicationname":
		ci.ApplicationName = value
	case "timeout", "connecttimeout", "connectiontimeout":
		secs, err := strconv.Atoi(value)
		if err != nil || secs < 0 {
			return fmt.Errorf("invalid timeout %q", value)
		}
		ci.Timeout = time.Duration(secs) * time.Second
	case "maximumpoolsize", "maxpoolsize":
		n, err := strconv.Atoi(value)
		if err != nil || n < 0 {
			return fmt.Errorf("invalid maximum pool size %q", value)
		}
		ci.MaxPoolSize = n
	case "minimumpoolsize", "minpoolsize":
		n, err := strconv.Atoi(value)
		if err != nil || n < 0 {
			return fmt.Errorf("invalid minimum pool size %q", value)
		}
		ci.MinPoolSize = n
	case "datasource", "filename":
		ci.DataSource = value
	case "mode":
		ci.InMemory = strings.EqualFold(value, "memory")
	default:
		ci.Extra[key] = value
	}
	return nil
}

func normalizeSSLMode(mode string) string {
	switch strings.ToLower(strings.ReplaceAll(mode, "-", "")) {
	case "disable", "disabled", "false":
		return "disable"
	case "allow":
		return "allow"
	case "prefer", "preferred":
		return "prefer"
	case "require", "required", "true":
		return "require"
	case "verifyca":
		return "verify-ca"
	case "verifyfull":
		return "verify-full"
	}
	return strings.ToLower(mode)
}

func parsePostgresURL(s string) (*ConnectionInfo, error) {
	u, err := url.Parse(s)
	if err != nil {
		// url errors echo the input, which may carry a password.
		return nil, fmt.Errorf("invalid postgres connection URL")
	}
	info := &ConnectionInfo{Extra: map[string]string{}, rawURL: s}
	info.Host = u.Hostname()
	if p := u.Port(); p != "" {
		if info.Port, err = strconv.Atoi(p); err != nil {
			return nil, fmt.Errorf("invalid port %q", p)
		}
	}
	if u.User != nil {
		info.Username = u.User.Username()
		info.Password, _ = u.User.Password()
	}
	info.Database = strings.TrimPrefix(u.Path, "/")
	q := u.Query()
	info.SSLMode = q.Get("sslmode")
	info.SearchPath = q.Get("search_path")
	info.ApplicationName = q.Get("application_name")
	return info, nil
}

// PostgresDSN renders a postgres:// URL understood by both lib/pq and pgx.
// search_path defaults to the bound schema so unqualified tables land there.
func (ci *ConnectionInfo) PostgresDSN(driver string, connectTimeout time.Duration) string {
	var u *url.URL
	if ci.rawURL != "" {
		u, _ = url.Parse(ci.rawURL)
	}
	if u == nil {
		host := ci.Host
		if host == "" {
			host = ci.DataSource
		}
		if host == "" {
			host = "localhost"
		}
		port := ci.Port
		if port == 0 {
			port = 5432
		}
		u = &url.URL{
			Scheme: "postgres",
			Host:   net.JoinHostPort(host, strconv.Itoa(port)),
			Path:   "/" + ci.Database,
		}
		if ci.Username != "" {
			if ci.Password != "" {
				u.User = url.UserPassword(ci.Username, ci.Password)
			} else {
				u.User = url.User(ci.Username)
			}
		}
	}

	q := u.Query()
	sslMode := ci.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	// lib/pq has no opportunistic TLS modes.
	if driver != DriverPGX && (sslMode == "allow" || sslMode == "prefer") {
		sslMode = "disable"
	}
	q.Set("sslmode", sslMode)

	timeout := ci.Timeout
	if timeout == 0 {
		timeout = connectTimeout
	}
	if timeout > 0 && q.Get("connect_timeout") == "" {
		// Whole seconds only; round up so sub-second timeouts still apply.
		q.Set("connect_timeout", strconv.Itoa(int(math.Ceil(timeout.Seconds()))))
	}
	if ci.ApplicationName != "" {
		q.Set("application_name", ci.ApplicationName)
	}
	q.Set("search_path", boundSearchPath(ci.SearchPath))
	u.RawQuery = q.Encode()
	return u.String()
}

// boundSearchPath puts the bound schema first. A configured path is kept
// after it; without one, public follows.
func boundSearchPath(configured string) string {
	pinned := fmt.Sprintf("%q", SchemaName)
	if strings.TrimSpace(configured) == "" {
		return pinned + ",public"
	}
	path := []string{pinned}
	for _, part := range strings.Split(configured, ",") {
		part = strings.TrimSpace(part)
		if part == "" || strings.Trim(part, `"`) == SchemaName {
			continue
		}
		path = append(path, part)
	}
	return strings.Join(path, ",")
}

// MySQLDSN renders a go-sql-driver/mysql DSN.
func (ci *ConnectionInfo) MySQLDSN(connectTimeout time.Duration) string {
	host := ci.Host
	if host == "" {
		host = ci.DataSource
	}
	if host == "" {
		host = "localhost"
	}
	port := ci.Port
	if port == 0 {
		port = 3306
	}
	cfg := mysql.NewConfig()
	cfg.User = ci.Username
	cfg.Passwd = ci.Password
	cfg.Net = "tcp"
	cfg.Addr = net.JoinHostPort(host, strconv.Itoa(port))
	cfg.DBName = ci.Database
	cfg.ParseTime = true
	cfg.Loc = time.Local
	cfg.Timeout = ci.Timeout
	if cfg.Timeout == 0 {
		cfg.Timeout = connectTimeout
	}
	if cfg.Params == nil {
		cfg.Params = map[string]string{}
	}
	cfg.Params["charset"] = "utf8mb4"
	return cfg.FormatDSN()
}

// SQLiteDSN returns a file path, or a shared-cache memory URI when
// Mode=Memory or Data Source=:memory: is given.
func (ci *ConnectionInfo) SQLiteDSN() string {
	source := ci.DataSource
	if source == "" {
		source = ci.Database
	}
	if source == ":memory:" || ci.InMemory {
		name := source
		if name == "" || name == ":memory:" {
			name = strings.ToLower(SchemaName)
		}
		return fmt.Sprintf("file:%s?mode=memory&cache=shared", name)
	}
	return source
}

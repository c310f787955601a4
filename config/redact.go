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
	"net/url"
	"strings"

	"github.com/tomoncle/managementapp/database"
)

const redactedValue = "***"

// Redact returns a display-only form of a connection string. The first
// password segment ("Password=", "pwd =" and other spellings the parser
// accepts) and everything after it become "<key>=***". URL-style strings get
// the userinfo password and any password query parameter masked instead.
func Redact(connectionString string) string {
	if isURL(connectionString) {
		return redactURL(connectionString)
	}
	for _, segment := range database.Segments(connectionString) {
		key, _, ok := strings.Cut(segment.Raw, "=")
		if ok && database.IsPasswordKeyword(key) {
			return connectionString[:segment.Offset] + strings.TrimSpace(key) + "=" + redactedValue
		}
	}
	return connectionString
}

func isURL(s string) bool {
	i := strings.Index(s, "://")
	return i > 0 && !strings.ContainsAny(s[:i], "=; ")
}

func redactURL(s string) string {
	u, err := url.Parse(s)
	if err != nil {
		// Unparseable: keep only the scheme.
		return s[:strings.Index(s, "://")+3] + redactedValue
	}
	if u.User != nil {
		if _, ok := u.User.Password(); ok {
			u.User = url.UserPassword(u.User.Username(), redactedValue)
		}
	}
	if u.RawQuery != "" {
		params := strings.Split(u.RawQuery, "&")
		for i, param := range params {
			if key, _, ok := strings.Cut(param, "="); ok && database.IsPasswordKeyword(key) {
				params[i] = key + "=" + redactedValue
			}
		}
		u.RawQuery = strings.Join(params, "&")
	}
	return u.String()
}

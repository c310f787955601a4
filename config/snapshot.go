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
	"fmt"
	"sort"
	"strings"
)

// Snapshot is an immutable view of the merged settings keyed by
// colon-separated paths such as "ConnectionStrings:DefaultConnection".
// Keys are case-insensitive.
type Snapshot struct {
	values map[string]string
}

func newSnapshot(settings map[string]interface{}) Snapshot {
	values := make(map[string]string)
	flatten("", settings, values)
	return Snapshot{values: values}
}

func flatten(prefix string, in map[string]interface{}, out map[string]string) {
	for k, v := range in {
		key := strings.ToLower(k)
		if prefix != "" {
			key = prefix + ":" + key
		}
		if nested, ok := v.(map[string]interface{}); ok {
			flatten(key, nested, out)
			continue
		}
		out[key] = fmt.Sprint(v)
	}
}

// Get returns the value stored under key and whether it was present.
func (s Snapshot) Get(key string) (string, bool) {
	v, ok := s.values[normalizeKey(key)]
	return v, ok
}

// Keys lists every key in sorted order.
func (s Snapshot) Keys() []string {
	keys := make([]string, 0, len(s.values))
	for k := range s.values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (s Snapshot) redacted() Snapshot {
	values := make(map[string]string, len(s.values))
	for k, v := range s.values {
		if strings.HasPrefix(k, "connectionstrings:") {
			v = Redact(v)
		}
		values[k] = v
	}
	return Snapshot{values: values}
}

func normalizeKey(key string) string {
	key = strings.ReplaceAll(key, "__", ":")
	return strings.ToLower(strings.TrimSpace(key))
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

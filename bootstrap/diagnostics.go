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
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/tomoncle/managementapp/config"
)

// Diagnostics writes the plain-text startup lines operators grep for.
// They are not routed through the structured logger.
type Diagnostics struct {
	mu sync.Mutex
	w  io.Writer
}

func NewDiagnostics(w io.Writer) *Diagnostics {
	if w == nil {
		w = os.Stdout
	}
	return &Diagnostics{w: w}
}

func (d *Diagnostics) println(format string, args ...interface{}) {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, _ = fmt.Fprintf(d.w, format+"\n", args...)
}

func (d *Diagnostics) Environment(environment string) {
	d.println("🔧 Environment: %s", environment)
}

func (d *Diagnostics) Sources(environment string) {
	d.println("📁 Reading from: %s and %s", config.BaseFileName, config.EnvironmentFileName(environment))
}

// ConnectionString prints the redacted form; the raw value never reaches w.
func (d *Diagnostics) ConnectionString(connectionString string) {
	d.println("🔗 Connection String: %s", config.Redact(connectionString))
}

func (d *Diagnostics) MissingConnectionString() {
	d.println("⚠️ WARNING: Connection string is empty!")
}

func (d *Diagnostics) Connected(engine string) {
	d.println("✅ Connected to %s database successfully!", engine)
}

func (d *Diagnostics) NotConnected() {
	d.println("❌ Could not connect to the database.")
}

func (d *Diagnostics) ConnectionError(err error) {
	d.println("❌ Database connection error: %v", err)
}

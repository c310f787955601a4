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
	"time"

	"github.com/tomoncle/managementapp/database"
)

// State is the startup lifecycle position. It only moves forward.
type State int32

const (
	StateBuilding State = iota
	StateConfigured
	StateProbing
	StateRunning
	StateTerminated
)

func (s State) String() string {
	switch s {
	case StateBuilding:
		return "Building"
	case StateConfigured:
		return "Configured"
	case StateProbing:
		return "Probing"
	case StateRunning:
		return "Running"
	case StateTerminated:
		return "Terminated"
	}
	return "Unknown"
}

// Readiness is the outcome of the startup connectivity probe.
type Readiness int

const (
	ReadinessUnknown Readiness = iota
	// ReadinessConnected means the probe reached the database.
	ReadinessConnected
	// ReadinessUnreachable means the database could not be reached or
	// refused the credentials.
	ReadinessUnreachable
	// ReadinessFailed means the probe itself errored.
	ReadinessFailed
)

func (r Readiness) String() string {
	switch r {
	case ReadinessConnected:
		return "Connected"
	case ReadinessUnreachable:
		return "Unreachable"
	case ReadinessFailed:
		return "Failed"
	}
	return "Unknown"
}

// ProbeResult records the single startup connectivity check.
type ProbeResult struct {
	Readiness Readiness
	Err       error
	Kind      database.ConnectErrorKind
	Duration  time.Duration
}

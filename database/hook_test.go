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
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/uptrace/bun"
)

func TestSlowQueryHook(t *testing.T) {
	t.Parallel()

	start := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	logger := &recordingLogger{}
	hook := NewSlowQueryHook(time.Second, logger)
	hook.now = func() time.Time { return start.Add(1500 * time.Millisecond) }

	hook.AfterQuery(context.Background(), &bun.QueryEvent{Query: "SELECT 1", StartTime: start})
	assert.Equal(t, []string{"Database slow query detected"}, logger.messages("warn"))

	hook.AfterQuery(context.Background(), &bun.QueryEvent{Query: "SELECT 1", StartTime: start.Add(time.Second)})
	hook.AfterQuery(context.Background(), &bun.QueryEvent{Query: "SELECT 1", StartTime: start, Err: errors.New("boom")})
	assert.Len(t, logger.messages("warn"), 1)
}

func TestModelRegistryOrdersByPriority(t *testing.T) {
	t.Parallel()

	r := NewModelRegistry(
		NewModelAdapter((*testUser)(nil), 5),
		NewModelAdapter((*testRole)(nil), 1),
		nil,
	)
	instances := r.Instances()
	if assert.Len(t, instances, 2) {
		assert.IsType(t, (*testRole)(nil), instances[0])
		assert.IsType(t, (*testUser)(nil), instances[1])
	}
}

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

package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewPageRequestClamps(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name             string
		page, size       int
		wantPage, wantSz int
		wantOffset       int
	}{
		{name: "defaults", page: 0, size: 0, wantPage: 1, wantSz: DefaultPageSize, wantOffset: 0},
		{name: "third page", page: 3, size: 20, wantPage: 3, wantSz: 20, wantOffset: 40},
		{name: "too large", page: 1, size: 10_000, wantPage: 1, wantSz: MaxPageSize, wantOffset: 0},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			p := NewDefaultPageRequest(tt.page, tt.size)
			assert.Equal(t, tt.wantPage, p.GetPage())
			assert.Equal(t, tt.wantSz, p.GetPageSize())
			assert.Equal(t, tt.wantOffset, p.GetOffset())
		})
	}
}

func TestPaginationTotalPages(t *testing.T) {
	t.Parallel()

	p := NewDefaultPagination[struct{}](1, 10)
	assert.Equal(t, 0, p.TotalPages())
	assert.False(t, p.HasNext())

	p.Total = 21
	assert.Equal(t, 3, p.TotalPages())
	assert.True(t, p.HasNext())
}

// Copyright 2023 The Cockroach Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
//
// SPDX-License-Identifier: Apache-2.0

package writer

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/monitoring-ido/dbwriter/internal/dbtype"
	"github.com/monitoring-ido/dbwriter/internal/driver"
)

func TestStatsReportsQueueDepthAndVersion(t *testing.T) {
	cfg := testConfig()
	cfg.InstanceName = "prod1"
	w := New(cfg, &fakeGraph{}, func() driver.Conn { return &fakeConn{} })

	stats := w.Stats()
	assert.Equal(t, SchemaVersion, stats.Version)
	assert.Equal(t, "prod1", stats.InstanceName)
	assert.Equal(t, 0, stats.QueryQueueItems)
}

func TestOnQueryEnqueuesNonDroppedCategory(t *testing.T) {
	cfg := testConfig()
	w := New(cfg, &fakeGraph{}, func() driver.Conn { return &fakeConn{} })

	w.OnQuery(dbtype.DbQuery{Category: dbtype.CategoryConfig, Type: dbtype.Insert, Table: "hosts"})
	assert.Equal(t, 1, w.queue.Len())
}

func TestOnQueryDropsStateHistoryOnceOverCapacity(t *testing.T) {
	cfg := testConfig()
	cfg.MaxQueueDepth = 1
	w := New(cfg, &fakeGraph{}, func() driver.Conn { return &fakeConn{} })

	w.OnQuery(dbtype.DbQuery{Category: dbtype.CategoryConfig, Type: dbtype.Insert, Table: "hosts"})
	assert.Equal(t, 1, w.queue.Len())

	w.OnQuery(dbtype.DbQuery{Category: dbtype.CategoryStateHistory, Type: dbtype.Insert, Table: "statehistory"})
	assert.Equal(t, 1, w.queue.Len(), "a state-history query must be shed once the queue is at capacity")
}

func TestOnQueryNeverDropsConfigCategoryRegardlessOfCapacity(t *testing.T) {
	cfg := testConfig()
	cfg.MaxQueueDepth = 1
	w := New(cfg, &fakeGraph{}, func() driver.Conn { return &fakeConn{} })

	w.OnQuery(dbtype.DbQuery{Category: dbtype.CategoryConfig, Type: dbtype.Insert, Table: "hosts"})
	w.OnQuery(dbtype.DbQuery{Category: dbtype.CategoryConfig, Type: dbtype.Insert, Table: "hosts"})
	assert.Equal(t, 2, w.queue.Len(), "config-category queries are never subject to the soft bound")
}

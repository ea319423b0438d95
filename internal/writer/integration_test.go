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

//go:build mysql

package writer

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/stretchr/testify/require"

	"github.com/monitoring-ido/dbwriter/internal/config"
	"github.com/monitoring-ido/dbwriter/internal/dbtype"
	"github.com/monitoring-ido/dbwriter/internal/driver"
)

// dsn returns the DSN of a running MySQL instance carrying an IDO-shaped
// schema, set by IDO_TEST_DSN (e.g. in CI). Tests in this file are
// skipped when it is unset, matching the teacher corpus's convention
// for driver-level end-to-end tests that need a live server.
func dsn(t *testing.T) string {
	v := os.Getenv("IDO_TEST_DSN")
	if v == "" {
		t.Skip("skipping MySQL integration test because IDO_TEST_DSN is not set")
	}
	return v
}

func liveConfig(t *testing.T) *config.Config {
	cfg, err := mysql.ParseDSN(dsn(t))
	require.NoError(t, err)

	host := cfg.Addr
	port := 3306
	if i := indexOfColon(cfg.Addr); i >= 0 {
		host = cfg.Addr[:i]
	}

	return &config.Config{
		Host:                host,
		Port:                port,
		User:                cfg.User,
		Password:            cfg.Passwd,
		Database:            cfg.DBName,
		TablePrefix:         "icinga_",
		InstanceName:        "integration-test",
		InstanceDescription: "writer integration test",
		CommitInterval:      5 * time.Second,
		ReconnectInterval:   10 * time.Second,
	}
}

func indexOfColon(s string) int {
	for i := 0; i < len(s); i++ {
		if s[i] == ':' {
			return i
		}
	}
	return -1
}

// TestIntegrationReconnectAndUpsert exercises the full Connection
// Lifecycle against a live server: connect, compose an upsert through
// the Query Composer, and reconnect cleanly a second time (SPEC_FULL.md
// §8 S1/S3/S5).
func TestIntegrationReconnectAndUpsert(t *testing.T) {
	cfg := liveConfig(t)
	require.NoError(t, cfg.Preflight())

	graph := &fakeGraph{}
	w := New(cfg, graph, func() driver.Conn { return &driver.MySQL{WaitForStartup: true} })
	w.registry.BindWorker()

	ctx := context.Background()
	require.NoError(t, w.connect(ctx))
	require.True(t, w.isConnected())

	host := &fakeLiveObject{objectType: "host", name1: "integration-host"}
	obj := w.registry.Entry(host)

	err := w.composer.Run(ctx, dbtype.DbQuery{
		Category:     dbtype.CategoryConfig,
		Type:         dbtype.Upsert,
		Table:        "hosts",
		Object:       obj,
		ConfigUpdate: true,
		Fields: []dbtype.Field{
			{Column: "display_name", Value: dbtype.ScalarString("Integration Host")},
		},
	})
	require.NoError(t, err)
	require.True(t, w.registry.ConfigWritten(host))

	require.NoError(t, w.connect(ctx))
	require.True(t, w.isConnected())
}

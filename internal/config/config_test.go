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

package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/monitoring-ido/dbwriter/internal/dbtype"
)

func TestPreflightDefaultsCategoriesToAll(t *testing.T) {
	c := &Config{Host: "db", Database: "icinga", InstanceName: "default"}
	require.NoError(t, c.Preflight())
	assert.Equal(t, dbtype.CategoryAll, c.EnabledCategories())
}

func TestPreflightParsesExplicitCategoryList(t *testing.T) {
	c := &Config{
		Host: "db", Database: "icinga", InstanceName: "default",
		Categories: "config,state",
	}
	require.NoError(t, c.Preflight())
	assert.Equal(t, dbtype.CategoryConfig|dbtype.CategoryState, c.EnabledCategories())
}

func TestPreflightRejectsUnknownCategory(t *testing.T) {
	c := &Config{Host: "db", Database: "icinga", InstanceName: "default", Categories: "bogus"}
	assert.Error(t, c.Preflight())
}

func TestPreflightRequiresHost(t *testing.T) {
	c := &Config{Database: "icinga", InstanceName: "default"}
	assert.Error(t, c.Preflight())
}

func TestPreflightDefaultsTablePrefix(t *testing.T) {
	c := &Config{Host: "db", Database: "icinga", InstanceName: "default", TablePrefix: ""}
	require.NoError(t, c.Preflight())
	assert.Equal(t, "icinga_", c.TablePrefix)
}

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

// Package ident provides small, comparable identifier types for SQL
// columns and logical table names, along with table-prefix application.
package ident

import "fmt"

// Column is the name of a column within a DbQuery's Fields or Where map.
type Column string

// Table is a logical table name as used by DbQuery, before the
// connection's configured prefix is applied.
type Table string

// Prefixed returns the physical table name, e.g. "hosts" with prefix
// "icinga_" becomes "icinga_hosts".
func (t Table) Prefixed(prefix string) string {
	return prefix + string(t)
}

// String implements fmt.Stringer.
func (t Table) String() string { return string(t) }

// Qualify formats a prefixed, fully qualified reference suitable for
// error messages and logging.
func Qualify(prefix string, t Table) string {
	return fmt.Sprintf("%s (logical %q)", t.Prefixed(prefix), t)
}

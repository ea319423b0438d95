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

package dbtype

import "github.com/monitoring-ido/dbwriter/internal/ident"

// Field is a single column/value pair. DbQuery keeps Fields and Where
// as ordered slices rather than maps so that composed SQL has a
// deterministic column order, which makes the query log and test
// fixtures reproducible.
type Field struct {
	Column ident.Column
	Value  Value
}

// DbQuery is the logical write request produced by the domain and
// carried through the Write Queue to the Composer (SPEC_FULL.md §3).
type DbQuery struct {
	Category Category
	Type     QueryType
	Table    ident.Table

	Fields []Field
	Where  []Field

	// Object is the entity this query concerns, if any. Required
	// whenever Type is Upsert (the Composer consults its
	// ConfigWritten/StatusWritten flags).
	Object *DbObject

	// ConfigUpdate and StatusUpdate are mutually exclusive hints
	// driving upsert resolution; exactly one must be set when Type is
	// Upsert and Object is non-nil.
	ConfigUpdate bool
	StatusUpdate bool

	// NotificationObject, if set and Table is registered in the
	// Composer's CrossRowTables, receives the statement's
	// last-insert-id into its InsertID field (SPEC_FULL.md §4.4 step 8,
	// §9 cross-row FK rule).
	NotificationObject *DbObject
}

// FieldValue returns the Value for the named column in Fields, or nil
// if absent.
func (q DbQuery) FieldValue(col ident.Column) (Value, bool) {
	for _, f := range q.Fields {
		if f.Column == col {
			return f.Value, true
		}
	}
	return nil, false
}

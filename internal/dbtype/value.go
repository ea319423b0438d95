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

// Value is the closed sum type carried by a DbQuery's Fields and Where
// lists. Design Notes (SPEC_FULL.md §9) call for this to replace a
// dynamic-cast chain with an exhaustively-switched sum type; the
// unexported marker method is what closes the set to the variants
// declared in this file.
type Value interface {
	isValue()
}

// NullValue represents SQL NULL.
type NullValue struct{}

func (NullValue) isValue() {}

// Null is the shared NullValue instance.
var Null Value = NullValue{}

// ScalarString is a string scalar, single-quoted and escaped by the
// Encoder.
type ScalarString string

func (ScalarString) isValue() {}

// ScalarInt is an integer scalar, rendered unquoted.
type ScalarInt int64

func (ScalarInt) isValue() {}

// ScalarDouble is a floating point scalar, rendered unquoted.
type ScalarDouble float64

func (ScalarDouble) isValue() {}

// Timestamp is a Unix-epoch-seconds value rendered through
// FROM_UNIXTIME at encode time.
type Timestamp int64

func (Timestamp) isValue() {}

// Now is the sentinel value rendered as the literal SQL NOW().
type Now struct{}

func (Now) isValue() {}

// TimestampNow is the shared Now instance.
var TimestampNow Value = Now{}

// ObjectRef asks the Encoder to resolve the given live object to its
// persistent objects.object_id, activating it on demand if necessary
// (SPEC_FULL.md §4.3 rule 3).
type ObjectRef struct {
	Object LiveObject
}

func (ObjectRef) isValue() {}

// InsertIDRef asks the Encoder to resolve the given live object to the
// last auto-increment id captured for it in the current batch, rather
// than its persistent object_id. The Registry entry for Object must
// already carry a valid InsertID; if it does not, encoding is a
// ProgrammerError (SPEC_FULL.md §4.3 rule 3, §7).
type InsertIDRef struct {
	Object LiveObject
}

func (InsertIDRef) isValue() {}

// IsEmpty reports whether a Value should be skipped entirely when
// composing a query (SPEC_FULL.md §3: "Empty values are skipped").
// Only a nil Value is considered empty; NullValue is a deliberate SQL
// NULL and is not skipped.
func IsEmpty(v Value) bool {
	return v == nil
}

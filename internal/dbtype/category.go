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

import (
	"fmt"
	"strings"
)

// Category is a bitmask classifying a DbQuery for the purposes of the
// connection-level category filter (SPEC_FULL.md §3, I6).
type Category uint32

// The closed set of categories named by the spec.
const (
	CategoryConfig Category = 1 << iota
	CategoryState
	CategoryAcknowledgement
	CategoryComment
	CategoryDowntime
	CategoryEventHandler
	CategoryExternalCommand
	CategoryFlapping
	CategoryCheck
	CategoryLog
	CategoryNotification
	CategoryProgramStatus
	CategoryRetention
	CategoryStateHistory

	// CategoryAll enables every category; it is the config default.
	CategoryAll = CategoryConfig | CategoryState | CategoryAcknowledgement |
		CategoryComment | CategoryDowntime | CategoryEventHandler |
		CategoryExternalCommand | CategoryFlapping | CategoryCheck |
		CategoryLog | CategoryNotification | CategoryProgramStatus |
		CategoryRetention | CategoryStateHistory
)

var categoryNames = [...]struct {
	bit  Category
	name string
}{
	{CategoryConfig, "config"},
	{CategoryState, "state"},
	{CategoryAcknowledgement, "acknowledgement"},
	{CategoryComment, "comment"},
	{CategoryDowntime, "downtime"},
	{CategoryEventHandler, "eventhandler"},
	{CategoryExternalCommand, "externalcommand"},
	{CategoryFlapping, "flapping"},
	{CategoryCheck, "check"},
	{CategoryLog, "log"},
	{CategoryNotification, "notification"},
	{CategoryProgramStatus, "programstatus"},
	{CategoryRetention, "retention"},
	{CategoryStateHistory, "statehistory"},
}

// String renders the set bits for logging, e.g. "config|state".
func (c Category) String() string {
	if c == 0 {
		return "none"
	}
	var names []string
	for _, cn := range categoryNames {
		if c&cn.bit != 0 {
			names = append(names, cn.name)
		}
	}
	return strings.Join(names, "|")
}

// Enabled reports whether any of the bits in c are present in mask;
// this is the connection's category filter (SPEC_FULL.md §4.4 step 1).
func (c Category) Enabled(mask Category) bool {
	return c&mask != 0
}

// ParseCategory looks up a category by its lower-case name, for config
// parsing.
func ParseCategory(name string) (Category, error) {
	for _, cn := range categoryNames {
		if cn.name == name {
			return cn.bit, nil
		}
	}
	return 0, fmt.Errorf("unknown category %q", name)
}

// QueryType is a bitmask over the three primitive DML operations a
// DbQuery can request. Insert|Update means "upsert" (SPEC_FULL.md §3).
type QueryType uint8

const (
	Insert QueryType = 1 << iota
	Update
	Delete

	// Upsert is shorthand for Insert|Update.
	Upsert = Insert | Update
)

// String renders the type for logging.
func (t QueryType) String() string {
	switch t {
	case Insert:
		return "INSERT"
	case Update:
		return "UPDATE"
	case Delete:
		return "DELETE"
	case Upsert:
		return "UPSERT"
	default:
		return fmt.Sprintf("QueryType(%d)", uint8(t))
	}
}

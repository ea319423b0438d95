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

// LiveObject is a weak handle to a live monitoring object. The IDO
// writer never owns or inspects the concrete type; it only needs it as
// a stable, comparable map key for the Identity Registry. Any object
// graph implementation that can hand out stable pointers or equivalent
// comparable handles satisfies this.
type LiveObject interface {
	// ObjectType identifies the objecttype_id this object is stored
	// under in the objects table, e.g. "host", "service", "endpoint".
	ObjectType() string

	// Names returns the one or two naming components used to look the
	// object up (name1 for hosts/commands/..., name1+name2 for
	// services).
	Names() (name1, name2 string)
}

// DbObject is the per-live-object companion entry maintained by the
// Identity Registry (internal/registry). It is never constructed
// directly by callers outside that package; DbObject handles are handed
// out by the Registry and passed back into DbQuery.Object.
type DbObject struct {
	// Owner is a weak relation to the live monitoring object; the
	// registry does not own its lifetime.
	Owner LiveObject

	ObjectID DbReference
	InsertID DbReference

	ConfigWritten bool
	StatusWritten bool
	Active        bool
}

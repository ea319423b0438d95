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

// Package domain declares the contracts the IDO database writer expects
// from its surroundings: the live object graph, the check engine, the
// rest of the monitoring core. None of it is implemented here — per
// SPEC_FULL.md §1, the object graph, its dynamic types and its
// attribute-change notifications are out of scope for this subsystem.
// Keeping these as small, composable interfaces (rather than one
// monolithic "core" type) mirrors the teacher's internal/types package,
// which declares Applier, Stager, Watcher, Leases, Memo, etc.
// separately even though a single production binary implements them all
// together.
package domain

import (
	"context"
	"time"

	"github.com/monitoring-ido/dbwriter/internal/dbtype"
)

// ObjectGraph is the live monitoring object model, owned elsewhere in
// the process. The writer calls into it only during the Connection
// Lifecycle's reconnect sequence (SPEC_FULL.md §4.6).
type ObjectGraph interface {
	// Lookup resolves an objects-table row (as loaded during the
	// post-reconnect load, step 10) back to a live object, so its
	// Identity Registry entry can be populated. ok is false if no live
	// object currently corresponds to that row; such rows are
	// candidates for the strays set.
	Lookup(objectType, name1, name2 string) (dbtype.LiveObject, bool)

	// UpdateAllObjects asks the object graph to re-emit a config and
	// status DbQuery for every live object, flowing back in through
	// the Ingress Bridge's OnQuery. Called once per reconnect, after
	// the standing transaction has been opened (step 12).
	UpdateAllObjects(ctx context.Context) error

	// Known reports whether o is still a live object in the domain's
	// current view. The Value Encoder calls this before resolving an
	// ObjectRef (SPEC_FULL.md §4.3 rule 3): a reference to an object the
	// domain has already forgotten encodes as the literal 0 rather than
	// triggering activation.
	Known(o dbtype.LiveObject) bool

	// PrepareDatabase clears whatever config-category tables the
	// embedding process considers authoritative-on-dump, so that the
	// UpdateAllObjects pass that follows is a complete config dump
	// rather than a delta. The exact table list is owned outside this
	// subsystem (SPEC_FULL.md §9 Open Question); this subsystem only
	// guarantees it is called at the right point in the reconnect
	// sequence (step 9, before the object load in step 10).
	PrepareDatabase(ctx context.Context) error
}

// Sink is the capability set the IDO writer presents to the rest of the
// process, replacing inheritance from a generic base connection type
// (SPEC_FULL.md §9 Design Notes).
type Sink interface {
	// OnQuery enqueues a DbQuery for asynchronous processing by the
	// writer's single worker (the Ingress Bridge, SPEC_FULL.md §2).
	OnQuery(q dbtype.DbQuery)

	// ActivateObject and DeactivateObject drive InternalActivateObject
	// / DeactivateObject (SPEC_FULL.md §4.6) for a live object outside
	// the ordinary DbQuery flow, e.g. when the object graph wants to
	// flip is_active without composing a full row.
	ActivateObject(o *dbtype.DbObject)
	DeactivateObject(o *dbtype.DbObject)

	// Cleanup enqueues a retention deletion (SPEC_FULL.md §4.7).
	Cleanup(table string, timeColumn string, maxAge time.Time)

	// Stats returns a snapshot of the connection's observable state
	// (SPEC_FULL.md §4.9).
	Stats() Stats
}

// Stats is the Stats Surface snapshot (SPEC_FULL.md §6).
type Stats struct {
	Version         string
	InstanceName    string
	QueryQueueItems int
}

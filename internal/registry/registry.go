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

// Package registry is the Identity Registry (SPEC_FULL.md §4.2): the
// process-wide mapping from a live object to its database identity. By
// invariant I1, every method here runs on a single worker goroutine;
// Registry enforces that at runtime rather than serializing internally,
// the same division of responsibility the teacher gives its noCopy
// marker in internal/types/types.go (catch misuse rather than silently
// tolerate it).
package registry

import (
	"bytes"
	"runtime"
	"strconv"
	"sync/atomic"

	"github.com/monitoring-ido/dbwriter/internal/dbtype"
	"github.com/monitoring-ido/dbwriter/internal/idoerr"
)

// Registry is the Identity Registry. The zero value is not usable;
// construct with New.
type Registry struct {
	ownerGoroutine atomic.Int64

	entries map[dbtype.LiveObject]*dbtype.DbObject
}

// New constructs an empty Registry. BindWorker must be called once,
// from the goroutine that will own all subsequent access, before any
// other method is used.
func New() *Registry {
	return &Registry{entries: make(map[dbtype.LiveObject]*dbtype.DbObject)}
}

// BindWorker records the calling goroutine as the sole permitted
// accessor. It is called once by the Write Queue's worker at startup
// (SPEC_FULL.md §4.5).
func (r *Registry) BindWorker() {
	r.ownerGoroutine.Store(goroutineID())
}

// goroutineID extracts the calling goroutine's id from its own stack
// trace header ("goroutine 123 [running]:"). The runtime exposes no
// public API for this; SPEC_FULL.md's testable property ("Registry
// operation r is not executed on any worker-external goroutine")
// requires some way to instrument the accessing goroutine, and this is
// the standard (if unidiomatic) way Go code does that outside of the
// runtime package itself.
func goroutineID() int64 {
	var buf [64]byte
	n := runtime.Stack(buf[:], false)
	b := buf[:n]
	b = bytes.TrimPrefix(b, []byte("goroutine "))
	if i := bytes.IndexByte(b, ' '); i >= 0 {
		b = b[:i]
	}
	id, err := strconv.ParseInt(string(b), 10, 64)
	if err != nil {
		return -1
	}
	return id
}

// assertWorker panics with a ProgrammerError if called from a goroutine
// other than the one that last called BindWorker (I1).
func (r *Registry) assertWorker() {
	bound := r.ownerGoroutine.Load()
	if bound == 0 {
		panic(idoerr.NewProgrammerError("registry accessed before BindWorker"))
	}
	if goroutineID() != bound {
		panic(idoerr.NewProgrammerError("registry accessed from a non-worker goroutine"))
	}
}

// Clear drops all entries, called at the start of every reconnect
// (SPEC_FULL.md §4.6 step 2).
func (r *Registry) Clear() {
	r.assertWorker()
	r.entries = make(map[dbtype.LiveObject]*dbtype.DbObject)
}

// lookup returns the entry for o, creating one on first reference
// (SPEC_FULL.md §3 "Lifecycles").
func (r *Registry) lookup(o dbtype.LiveObject) *dbtype.DbObject {
	e, ok := r.entries[o]
	if !ok {
		e = &dbtype.DbObject{Owner: o}
		r.entries[o] = e
	}
	return e
}

// Entry returns the DbObject handle for a live object, creating it if
// this is the first reference.
func (r *Registry) Entry(o dbtype.LiveObject) *dbtype.DbObject {
	r.assertWorker()
	return r.lookup(o)
}

// SetObjectID records the persistent objects.object_id for o.
func (r *Registry) SetObjectID(o dbtype.LiveObject, ref dbtype.DbReference) {
	r.assertWorker()
	r.lookup(o).ObjectID = ref
}

// ObjectID returns the persistent objects.object_id for o, if known.
func (r *Registry) ObjectID(o dbtype.LiveObject) dbtype.DbReference {
	r.assertWorker()
	return r.lookup(o).ObjectID
}

// SetInsertID records the last auto-increment id produced by a detail
// row representing o in the current batch.
func (r *Registry) SetInsertID(o dbtype.LiveObject, ref dbtype.DbReference) {
	r.assertWorker()
	r.lookup(o).InsertID = ref
}

// InsertID returns the last auto-increment id recorded for o.
func (r *Registry) InsertID(o dbtype.LiveObject) dbtype.DbReference {
	r.assertWorker()
	return r.lookup(o).InsertID
}

// SetInsertIDByType bulk-populates InsertID entries for every live
// object resolvable through resolve, keyed by its persistent
// object_id. Used by FillIDCache (SPEC_FULL.md §4.8) to avoid
// re-querying per detail row.
func (r *Registry) SetInsertIDByType(
	resolve func(objectID dbtype.DbReference) (dbtype.LiveObject, bool),
	fill map[dbtype.DbReference]dbtype.DbReference,
) {
	r.assertWorker()
	for objectID, insertID := range fill {
		o, ok := resolve(objectID)
		if !ok {
			continue
		}
		r.lookup(o).InsertID = insertID
	}
}

// SetConfigWritten records whether o's config row has been emitted in
// the current session.
func (r *Registry) SetConfigWritten(o dbtype.LiveObject, written bool) {
	r.assertWorker()
	r.lookup(o).ConfigWritten = written
}

// ConfigWritten reports whether o's config row has been emitted.
func (r *Registry) ConfigWritten(o dbtype.LiveObject) bool {
	r.assertWorker()
	return r.lookup(o).ConfigWritten
}

// SetStatusWritten records whether o's status row has been emitted in
// the current session.
func (r *Registry) SetStatusWritten(o dbtype.LiveObject, written bool) {
	r.assertWorker()
	r.lookup(o).StatusWritten = written
}

// StatusWritten reports whether o's status row has been emitted.
func (r *Registry) StatusWritten(o dbtype.LiveObject) bool {
	r.assertWorker()
	return r.lookup(o).StatusWritten
}

// SetActive records the registry's view of objects.is_active for o.
// DeactivateObject (SPEC_FULL.md §4.6) only ever calls this with false;
// it never clears ConfigWritten/StatusWritten, since the row survives
// and its identity must hold across future reconnects.
func (r *Registry) SetActive(o dbtype.LiveObject, active bool) {
	r.assertWorker()
	r.lookup(o).Active = active
}

// Active reports the registry's view of objects.is_active for o.
func (r *Registry) Active(o dbtype.LiveObject) bool {
	r.assertWorker()
	return r.lookup(o).Active
}

// Range visits every entry currently held, in unspecified order. Used
// by the reconnect sequence to find strays (SPEC_FULL.md §4.6 step 13).
func (r *Registry) Range(fn func(o dbtype.LiveObject, entry *dbtype.DbObject)) {
	r.assertWorker()
	for o, e := range r.entries {
		fn(o, e)
	}
}

// Len reports how many entries the registry currently holds. Exposed
// for tests and stats; does not require the worker assertion since it
// is a read of the map header size via an atomic-free snapshot taken
// under the same single-writer discipline as everything else (callers
// outside the worker must not call this on a live Registry).
func (r *Registry) Len() int {
	return len(r.entries)
}

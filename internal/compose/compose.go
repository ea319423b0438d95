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

// Package compose is the Query Composer (SPEC_FULL.md §4.4): it turns a
// logical DbQuery into concrete SQL and drives the upsert-convergence
// retry. Statement-building style (strings.Builder, log the composed
// statement before executing) is grounded on the teacher's sink.go
// (upsertRow/deleteRow); unlike the teacher, values are embedded as
// escaped literals rather than placeholders, per SPEC_FULL.md §4.3/§4.4.
package compose

import (
	"context"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/monitoring-ido/dbwriter/internal/dbtype"
	"github.com/monitoring-ido/dbwriter/internal/driver"
	"github.com/monitoring-ido/dbwriter/internal/ident"
	"github.com/monitoring-ido/dbwriter/internal/idoerr"
	"github.com/monitoring-ido/dbwriter/internal/metrics"
)

// Registry is the subset of *registry.Registry the Composer mutates
// after a successful execution (SPEC_FULL.md §4.4 step 8).
type Registry interface {
	ConfigWritten(o dbtype.LiveObject) bool
	StatusWritten(o dbtype.LiveObject) bool
	SetConfigWritten(o dbtype.LiveObject, written bool)
	SetStatusWritten(o dbtype.LiveObject, written bool)
	SetInsertID(o dbtype.LiveObject, ref dbtype.DbReference)
}

// Encoder is the subset of *sqlval.Encoder the Composer needs.
type Encoder interface {
	Encode(column ident.Column, value dbtype.Value) (string, bool)
}

// Composer implements SPEC_FULL.md §4.4.
type Composer struct {
	Conn     driver.Conn
	Registry Registry
	Encoder  Encoder

	// Prefix is the configured table_prefix (SPEC_FULL.md §6), applied
	// uniformly to every logical table name.
	Prefix string

	// EnabledCategories is the connection's category filter (I6).
	EnabledCategories dbtype.Category

	// Connected reports whether the connection is currently Up; the
	// Composer drops all work while it is false (SPEC_FULL.md §4.4
	// step 2).
	Connected func() bool

	// CrossRowTables names the tables whose INSERT captures its
	// last-insert-id into DbQuery.NotificationObject (SPEC_FULL.md §4.4
	// step 8). The base configuration registers exactly "notifications"
	// here; see DESIGN.md's Open Question decision on the
	// "FIXME remove hardcoded table name" note.
	CrossRowTables map[ident.Table]bool

	InstanceName string
}

// Run executes q, applying the category filter, the WHERE/upsert
// resolution, and the post-execute Registry update (SPEC_FULL.md
// §4.4 steps 1-8). Run never returns an error for a silently dropped
// query (I6). It returns an error for a DatabaseError that escaped
// Exec, which the caller (the Write Queue's worker) treats as fatal to
// the connection, and a ProgrammerError from resolveType for a
// malformed upsert, which the worker treats as a halt.
func (c *Composer) Run(ctx context.Context, q dbtype.DbQuery) error {
	return c.run(ctx, q, nil)
}

func (c *Composer) run(ctx context.Context, q dbtype.DbQuery, typeOverride *dbtype.QueryType) error {
	if !q.Category.Enabled(c.EnabledCategories) {
		metrics.QueriesDroppedTotal.WithLabelValues(c.InstanceName, "category").Inc()
		return nil
	}
	if c.Connected != nil && !c.Connected() {
		return nil
	}

	where, ok := c.encodeWhere(q.Where)
	if !ok {
		log.WithField("table", q.Table).Debug("dropping query: could not encode WHERE clause")
		return nil
	}

	queryType, upsert, err := c.resolveType(q, typeOverride)
	if err != nil {
		return err
	}

	sql, ok := c.buildStatement(q, queryType, where)
	if !ok {
		log.WithField("table", q.Table).Debug("dropping query: could not encode fields")
		return nil
	}

	log.WithFields(log.Fields{
		"table": q.Table,
		"type":  queryType,
	}).Trace(sql)

	start := time.Now()
	res, err := c.Conn.Exec(ctx, sql)
	metrics.QueryDurations.WithLabelValues(c.InstanceName).Observe(time.Since(start).Seconds())
	if err != nil {
		return err
	}

	if upsert && res.RowsAffected() == 0 {
		metrics.UpsertFallbackTotal.WithLabelValues(c.InstanceName).Inc()
		insertType := dbtype.Insert
		return c.run(ctx, q, &insertType)
	}

	c.postExecute(q, queryType, res)
	return nil
}

func (c *Composer) encodeWhere(where []dbtype.Field) (string, bool) {
	if len(where) == 0 {
		return "", true
	}
	var parts []string
	for _, f := range where {
		frag, ok := c.Encoder.Encode(f.Column, f.Value)
		if !ok {
			return "", false
		}
		parts = append(parts, string(f.Column)+" = "+frag)
	}
	return strings.Join(parts, " AND "), true
}

// resolveType implements SPEC_FULL.md §4.4 step 4.
func (c *Composer) resolveType(
	q dbtype.DbQuery, override *dbtype.QueryType,
) (queryType dbtype.QueryType, upsert bool, err error) {
	if override != nil {
		return *override, false, nil
	}
	if q.Type != dbtype.Upsert {
		return q.Type, false, nil
	}

	if q.Object == nil {
		return 0, false, idoerr.NewProgrammerError("upsert query has no Object to consult ConfigWritten/StatusWritten on")
	}
	if q.ConfigUpdate == q.StatusUpdate {
		return 0, false, idoerr.NewProgrammerError(
			"upsert query must set exactly one of ConfigUpdate or StatusUpdate")
	}

	var written bool
	if q.ConfigUpdate {
		written = c.Registry.ConfigWritten(q.Object.Owner)
	} else {
		written = c.Registry.StatusWritten(q.Object.Owner)
	}
	if written {
		return dbtype.Update, false, nil
	}
	return dbtype.Update, true, nil
}

// buildStatement implements SPEC_FULL.md §4.4 step 5.
func (c *Composer) buildStatement(
	q dbtype.DbQuery, queryType dbtype.QueryType, where string,
) (string, bool) {
	table := q.Table.Prefixed(c.Prefix)

	switch queryType {
	case dbtype.Insert:
		return c.buildInsert(table, q.Fields)
	case dbtype.Update:
		return c.buildUpdate(table, q.Fields, where)
	case dbtype.Delete:
		var b strings.Builder
		b.WriteString("DELETE FROM ")
		b.WriteString(table)
		if where != "" {
			b.WriteString(" WHERE ")
			b.WriteString(where)
		}
		return b.String(), true
	default:
		panic(idoerr.NewProgrammerError("buildStatement: invalid QueryType"))
	}
}

func (c *Composer) buildInsert(table string, fields []dbtype.Field) (string, bool) {
	var cols, vals []string
	for _, f := range fields {
		if dbtype.IsEmpty(f.Value) {
			continue
		}
		frag, ok := c.Encoder.Encode(f.Column, f.Value)
		if !ok {
			return "", false
		}
		cols = append(cols, string(f.Column))
		vals = append(vals, frag)
	}
	var b strings.Builder
	b.WriteString("INSERT INTO ")
	b.WriteString(table)
	b.WriteString(" (")
	b.WriteString(strings.Join(cols, ", "))
	b.WriteString(") VALUES (")
	b.WriteString(strings.Join(vals, ", "))
	b.WriteString(")")
	return b.String(), true
}

func (c *Composer) buildUpdate(table string, fields []dbtype.Field, where string) (string, bool) {
	var sets []string
	for _, f := range fields {
		if dbtype.IsEmpty(f.Value) {
			continue
		}
		frag, ok := c.Encoder.Encode(f.Column, f.Value)
		if !ok {
			return "", false
		}
		sets = append(sets, string(f.Column)+" = "+frag)
	}
	var b strings.Builder
	b.WriteString("UPDATE ")
	b.WriteString(table)
	b.WriteString(" SET ")
	b.WriteString(strings.Join(sets, ", "))
	if where != "" {
		b.WriteString(" WHERE ")
		b.WriteString(where)
	}
	return b.String(), true
}

// postExecute implements SPEC_FULL.md §4.4 step 8.
func (c *Composer) postExecute(q dbtype.DbQuery, queryType dbtype.QueryType, res driver.Result) {
	if q.Object != nil {
		if q.ConfigUpdate {
			c.Registry.SetConfigWritten(q.Object.Owner, true)
		}
		if q.StatusUpdate {
			c.Registry.SetStatusWritten(q.Object.Owner, true)
		}
	}

	if queryType != dbtype.Insert {
		return
	}

	lastID, ok := res.LastInsertID()
	if !ok {
		return
	}

	if q.ConfigUpdate && q.Object != nil {
		c.Registry.SetInsertID(q.Object.Owner, dbtype.NewReference(lastID))
	}

	if c.CrossRowTables[q.Table] && q.NotificationObject != nil {
		c.Registry.SetInsertID(q.NotificationObject.Owner, dbtype.NewReference(lastID))
	}
}

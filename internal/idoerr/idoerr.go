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

// Package idoerr declares the error taxonomy of SPEC_FULL.md §7, shared
// by internal/driver, internal/registry, internal/sqlval,
// internal/compose and internal/writer. Each variant is a distinct Go
// type so callers can classify with errors.As rather than string
// matching, the way the teacher classifies types.LeaseBusyError.
package idoerr

import (
	"fmt"

	"github.com/pkg/errors"
)

// DatabaseError wraps a driver or server rejection of a statement. It
// is always fatal to the current operation; the queue's exception
// callback closes the driver and relies on the next reconnect tick.
type DatabaseError struct {
	Query   string
	Message string
	cause   error
}

func (e *DatabaseError) Error() string {
	return "database error: " + e.Message + " (query: " + e.Query + ")"
}

// Unwrap exposes the underlying driver error for errors.Is/As.
func (e *DatabaseError) Unwrap() error { return e.cause }

// NewDatabaseError constructs a DatabaseError, recording a stack trace
// at the point the driver/server rejection was observed.
func NewDatabaseError(query string, cause error) error {
	return errors.WithStack(&DatabaseError{
		Query:   query,
		Message: cause.Error(),
		cause:   cause,
	})
}

// SchemaError indicates the dbversion row is missing, empty, or older
// than the compile-time SchemaVersion. It is fatal to the connection:
// reconnect ticks will keep retrying and keep failing until an operator
// migrates the schema.
type SchemaError struct {
	Message string
}

func (e *SchemaError) Error() string { return "schema error: " + e.Message }

// NewSchemaError constructs a SchemaError.
func NewSchemaError(format string, args ...any) error {
	return errors.WithStack(&SchemaError{Message: fmt.Sprintf(format, args...)})
}

// EncoderAbort indicates an ObjectRef could not be resolved even after
// implicit activation. The offending DbQuery is dropped silently by the
// Composer. The Value Encoder signals this path with a false ok result
// and does not construct this error.
type EncoderAbort struct {
	Column string
}

func (e *EncoderAbort) Error() string {
	return "encoder abort: could not resolve object reference for column " + e.Column
}

// NewEncoderAbort constructs an EncoderAbort.
func NewEncoderAbort(column string) error {
	return &EncoderAbort{Column: column}
}

// ProgrammerError indicates an assertion failure: off-worker Registry
// access, both or neither of ConfigUpdate/StatusUpdate set on an
// upsert, or an invalid QueryType. These are bugs, not operational
// failures; SPEC_FULL.md §7 says to halt rather than retry.
type ProgrammerError struct {
	Message string
}

func (e *ProgrammerError) Error() string { return "programmer error: " + e.Message }

// NewProgrammerError constructs a ProgrammerError.
func NewProgrammerError(message string) error {
	return errors.WithStack(&ProgrammerError{Message: message})
}

// DriverTransient wraps a Ping failure, which triggers a reconnect
// rather than halting.
type DriverTransient struct {
	cause error
}

func (e *DriverTransient) Error() string { return "driver transient: " + e.cause.Error() }
func (e *DriverTransient) Unwrap() error { return e.cause }

// NewDriverTransient constructs a DriverTransient.
func NewDriverTransient(cause error) error {
	return errors.WithStack(&DriverTransient{cause: cause})
}

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

package idoerr

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDatabaseErrorUnwrapsToCauseAndClassifiesWithErrorsAs(t *testing.T) {
	cause := errors.New("duplicate entry")
	err := NewDatabaseError("INSERT INTO hosts ...", cause)

	var de *DatabaseError
	require.True(t, errors.As(err, &de))
	assert.Equal(t, "INSERT INTO hosts ...", de.Query)
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "duplicate entry")
}

func TestSchemaErrorFormatsMessage(t *testing.T) {
	err := NewSchemaError("schema version %s older than required %s", "1.13.0", "1.14.0")

	var se *SchemaError
	require.True(t, errors.As(err, &se))
	assert.Contains(t, se.Error(), "1.13.0")
	assert.Contains(t, se.Error(), "1.14.0")
}

func TestEncoderAbortNamesTheOffendingColumn(t *testing.T) {
	err := NewEncoderAbort("host_object_id")

	var ea *EncoderAbort
	require.True(t, errors.As(err, &ea))
	assert.Equal(t, "host_object_id", ea.Column)
	assert.Contains(t, err.Error(), "host_object_id")
}

func TestProgrammerErrorCarriesMessage(t *testing.T) {
	err := NewProgrammerError("Registry accessed off the write-queue worker goroutine")

	var pe *ProgrammerError
	require.True(t, errors.As(err, &pe))
	assert.Contains(t, err.Error(), "Registry accessed off the write-queue worker goroutine")
}

func TestDriverTransientUnwrapsToPingFailure(t *testing.T) {
	cause := errors.New("connection refused")
	err := NewDriverTransient(cause)

	var dt *DriverTransient
	require.True(t, errors.As(err, &dt))
	assert.ErrorIs(t, err, cause)
}

func TestErrorTaxonomyVariantsAreDistinguishable(t *testing.T) {
	dbErr := NewDatabaseError("q", errors.New("x"))
	schemaErr := NewSchemaError("bad schema")

	var se *SchemaError
	assert.False(t, errors.As(dbErr, &se), "a DatabaseError must not classify as a SchemaError")

	var de *DatabaseError
	assert.False(t, errors.As(schemaErr, &de), "a SchemaError must not classify as a DatabaseError")
}

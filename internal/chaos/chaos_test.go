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

package chaos

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/monitoring-ido/dbwriter/internal/driver"
)

type countingConn struct {
	driver.Conn
	pings  int
	closes int
}

func (c *countingConn) Ping(ctx context.Context) error { c.pings++; return nil }
func (c *countingConn) Close() error                   { c.closes++; return nil }

func TestWrapReturnsDelegateUnchangedWhenProbabilityIsZero(t *testing.T) {
	delegate := &countingConn{}
	wrapped := Wrap(delegate, 0)
	assert.Same(t, driver.Conn(delegate), wrapped)
}

func TestWrapAlwaysInjectsFailureAtProbabilityOne(t *testing.T) {
	delegate := &countingConn{}
	wrapped := Wrap(delegate, 1)

	err := wrapped.Ping(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrChaos)
	assert.Equal(t, 0, delegate.pings, "a chaos hit must not reach the delegate")
}

func TestWrapNeverInjectsFailureIntoClose(t *testing.T) {
	delegate := &countingConn{}
	wrapped := Wrap(delegate, 1)

	err := wrapped.Close()
	require.NoError(t, err)
	assert.Equal(t, 1, delegate.closes, "Close must always reach the delegate regardless of probability")
}

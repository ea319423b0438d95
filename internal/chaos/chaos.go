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

// Package chaos wraps a driver.Conn with randomly injected failures,
// for exercising the reconnect-recovery scenario (SPEC_FULL.md S5)
// without a flaky live network. Adapted from the teacher's
// internal/source/logical/chaos.go, which does the same thing for a
// logical.Dialect; here the wrapped contract is driver.Conn.
package chaos

import (
	"context"
	"math/rand"

	"github.com/pkg/errors"

	"github.com/monitoring-ido/dbwriter/internal/driver"
)

// ErrChaos is the sentinel error injected by Wrap.
var ErrChaos = errors.New("chaos")

// Wrap returns a driver.Conn that injects a failure into each method
// call with probability prob. If prob <= 0, delegate is returned
// unchanged.
func Wrap(delegate driver.Conn, prob float32) driver.Conn {
	if prob <= 0 {
		return delegate
	}
	return &conn{delegate: delegate, prob: prob}
}

type conn struct {
	delegate driver.Conn
	prob     float32
}

var _ driver.Conn = (*conn)(nil)

func (c *conn) hit() bool { return rand.Float32() < c.prob }

func doChaos(op string) error { return errors.WithMessage(ErrChaos, op) }

func (c *conn) Connect(ctx context.Context, host string, port int, user, password, database string) error {
	if c.hit() {
		return doChaos("Connect")
	}
	return c.delegate.Connect(ctx, host, port, user, password, database)
}

func (c *conn) Ping(ctx context.Context) error {
	if c.hit() {
		return doChaos("Ping")
	}
	return c.delegate.Ping(ctx)
}

func (c *conn) Close() error {
	// Close is never chaos-injected: the reconnect path must always be
	// able to release a handle it is discarding.
	return c.delegate.Close()
}

func (c *conn) Exec(ctx context.Context, query string, args ...any) (driver.Result, error) {
	if c.hit() {
		return driver.Result{}, doChaos("Exec")
	}
	return c.delegate.Exec(ctx, query, args...)
}

func (c *conn) Query(ctx context.Context, query string, args ...any) (driver.Rows, error) {
	if c.hit() {
		return nil, doChaos("Query")
	}
	return c.delegate.Query(ctx, query, args...)
}

func (c *conn) Escape(s string) string { return c.delegate.Escape(s) }

func (c *conn) Begin(ctx context.Context) error {
	if c.hit() {
		return doChaos("Begin")
	}
	return c.delegate.Begin(ctx)
}

func (c *conn) Commit(ctx context.Context) error {
	if c.hit() {
		return doChaos("Commit")
	}
	return c.delegate.Commit(ctx)
}

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

//go:build wireinject
// +build wireinject

package writer

import (
	"github.com/google/wire"

	"github.com/monitoring-ido/dbwriter/internal/config"
	"github.com/monitoring-ido/dbwriter/internal/domain"
	"github.com/monitoring-ido/dbwriter/internal/driver"
)

// Set is used by Wire.
var Set = wire.NewSet(
	ProvideNewConn,
	ProvideWriter,
)

// ProvideNewConn builds the NewConn factory the Writer uses for each
// (re)connect attempt: a fresh *driver.MySQL. Fault injection
// (internal/chaos) is applied by Writer.dialConn, not here.
func ProvideNewConn(cfg *config.Config) NewConn {
	return func() driver.Conn {
		return &driver.MySQL{WaitForStartup: true}
	}
}

// ProvideWriter assembles a *Writer from its dependencies.
func ProvideWriter(cfg *config.Config, graph domain.ObjectGraph, newConn NewConn) *Writer {
	return New(cfg, graph, newConn)
}

// InitializeWriter is the Wire injector. Since `wire`/`go generate`
// cannot run in this environment, internal/writer/wire_gen.go supplies
// the hand-authored equivalent of what this function would generate —
// mirroring the relationship between the teacher's
// internal/source/logical/provider.go and its wire_gen.go files.
func InitializeWriter(cfg *config.Config, graph domain.ObjectGraph) (*Writer, error) {
	wire.Build(Set)
	return nil, nil
}

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

// Command idowriter runs a single IDO MySQL connection as a standalone
// process, reading DbQuery entries from the embedding monitoring core
// over the domain.Sink contract. It exists to exercise internal/writer
// end to end; a real deployment links the writer package directly into
// the core binary instead.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/pflag"

	"github.com/monitoring-ido/dbwriter/internal/config"
	"github.com/monitoring-ido/dbwriter/internal/dbtype"
	"github.com/monitoring-ido/dbwriter/internal/domain"
	"github.com/monitoring-ido/dbwriter/internal/writer"
)

var metricsAddr string

func main() {
	cfg := &config.Config{}
	cfg.Bind(pflag.CommandLine)
	pflag.StringVar(&metricsAddr, "metricsAddr", ":9120", "address to serve /metrics on")
	pflag.Parse()

	if err := cfg.Preflight(); err != nil {
		log.WithError(err).Fatal("invalid configuration")
	}

	if err := run(cfg); err != nil {
		log.WithError(err).Fatal("idowriter exited with an error")
	}
}

// run wires the writer against a no-op object graph and blocks until an
// interrupt or terminate signal arrives. A real embedding process
// passes its own domain.ObjectGraph in place of noopGraph{}.
func run(cfg *config.Config) error {
	go func() {
		http.Handle("/metrics", promhttp.Handler())
		log.WithField("addr", metricsAddr).Info("serving /metrics")
		if err := http.ListenAndServe(metricsAddr, nil); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Error("metrics server stopped")
		}
	}()

	w, err := writer.InitializeWriter(cfg, noopGraph{})
	if err != nil {
		return errors.Wrap(err, "could not initialize writer")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	w.Start(ctx)
	log.WithField("instance", cfg.InstanceName).Info("idowriter started")

	<-ctx.Done()
	log.Info("shutting down")
	w.Stop()
	return nil
}

// noopGraph is a placeholder domain.ObjectGraph for running this binary
// standalone; it reports every object unknown and never re-emits
// config/status. A real embedding process supplies the live object
// model instead.
type noopGraph struct{}

func (noopGraph) Lookup(objectType, name1, name2 string) (dbtype.LiveObject, bool) {
	return nil, false
}

func (noopGraph) UpdateAllObjects(ctx context.Context) error { return nil }
func (noopGraph) Known(o dbtype.LiveObject) bool             { return false }
func (noopGraph) PrepareDatabase(ctx context.Context) error  { return nil }

var _ domain.ObjectGraph = noopGraph{}

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

// Package config declares the writer's external configuration
// (SPEC_FULL.md §6), following the teacher's Bind(*pflag.FlagSet) /
// Preflight() error pattern from internal/source/server/config.go.
package config

import (
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/pflag"

	"github.com/monitoring-ido/dbwriter/internal/dbtype"
)

// Config is the user-visible configuration for a single IDO MySQL
// connection.
type Config struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string

	TablePrefix         string
	InstanceName        string
	InstanceDescription string
	Categories          string

	// MaxQueueDepth is the soft backpressure bound (SPEC_FULL.md §5
	// expansion); 0 means unbounded.
	MaxQueueDepth int

	CommitInterval    time.Duration
	ReconnectInterval time.Duration

	// ChaosProbability wires internal/chaos into a live config for
	// integration testing of the reconnect path (SPEC_FULL.md §8 S5);
	// 0 disables it, which is the only acceptable production value.
	ChaosProbability float32

	categories dbtype.Category
}

// Bind registers flags on flags, mirroring the teacher's
// server.Config.Bind layout: one flag per exported field, with the
// same defaults this struct's zero value does not already carry.
func (c *Config) Bind(flags *pflag.FlagSet) {
	flags.StringVar(&c.Host, "idoHost", "localhost", "IDO MySQL host")
	flags.IntVar(&c.Port, "idoPort", 3306, "IDO MySQL port")
	flags.StringVar(&c.User, "idoUser", "icinga", "IDO MySQL user")
	flags.StringVar(&c.Password, "idoPassword", "", "IDO MySQL password")
	flags.StringVar(&c.Database, "idoDatabase", "icinga", "IDO MySQL database name")
	flags.StringVar(&c.TablePrefix, "idoTablePrefix", "icinga_", "table name prefix")
	flags.StringVar(&c.InstanceName, "idoInstanceName", "default", "instance name recorded in the instances table")
	flags.StringVar(&c.InstanceDescription, "idoInstanceDescription", "", "instance description recorded in the instances table")
	flags.StringVar(&c.Categories, "idoCategories", "all", "comma-separated category list, or \"all\"")
	flags.IntVar(&c.MaxQueueDepth, "idoMaxQueueDepth", 0, "soft write-queue depth bound; 0 is unbounded")
	flags.DurationVar(&c.CommitInterval, "idoCommitInterval", 5*time.Second, "standing-transaction commit interval")
	flags.DurationVar(&c.ReconnectInterval, "idoReconnectInterval", 10*time.Second, "reconnect-if-needed tick interval")
	flags.Float32Var(&c.ChaosProbability, "idoChaosProbability", 0, "probability of injected driver failure; for testing only")
}

// Preflight validates the configuration and resolves derived fields
// (the parsed category bitmask). It must be called once before the
// Config is used to construct a Connection Lifecycle.
func (c *Config) Preflight() error {
	if c.Host == "" {
		return errors.New("idoHost must not be empty")
	}
	if c.Database == "" {
		return errors.New("idoDatabase must not be empty")
	}
	if c.InstanceName == "" {
		return errors.New("idoInstanceName must not be empty")
	}
	if c.TablePrefix == "" {
		c.TablePrefix = "icinga_"
	}
	if c.CommitInterval <= 0 {
		c.CommitInterval = 5 * time.Second
	}
	if c.ReconnectInterval <= 0 {
		c.ReconnectInterval = 10 * time.Second
	}

	cats, err := parseCategories(c.Categories)
	if err != nil {
		return errors.Wrap(err, "idoCategories")
	}
	c.categories = cats
	return nil
}

// EnabledCategories returns the parsed category bitmask; only valid
// after Preflight has succeeded.
func (c *Config) EnabledCategories() dbtype.Category {
	return c.categories
}

func parseCategories(spec string) (dbtype.Category, error) {
	if spec == "" || spec == "all" {
		return dbtype.CategoryAll, nil
	}
	var result dbtype.Category
	start := 0
	for i := 0; i <= len(spec); i++ {
		if i == len(spec) || spec[i] == ',' {
			name := spec[start:i]
			start = i + 1
			if name == "" {
				continue
			}
			cat, err := dbtype.ParseCategory(name)
			if err != nil {
				return 0, err
			}
			result |= cat
		}
	}
	return result, nil
}

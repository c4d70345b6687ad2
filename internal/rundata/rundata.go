// Copyright 2026 Google LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package rundata collects the properties of a bgpngpf run so that a run
// can be traced back to the binary and workspace that produced it. The
// properties are logged at the start of a run and attached to its root
// span.
//
// Properties:
//
//   - build.go_version, build.path, build.main.* and build.settings.* from
//     debug.ReadBuildInfo.
//   - git.origin, git.commit, git.commit_timestamp (Unix epoch seconds),
//     git.clean and git.status of the working directory, when it is a git
//     working tree.
//   - run.id - the identifier of the run, also recorded as the bgpngpf.run_id
//     attribute of the trace resource.
//   - server.kind and server.address - the API server of the run.
//   - ports - the port locations of the scenario, comma separated.
//   - topology - a summary of the scenario formatted as a comma separated
//     list of ports and the number of devices on them, ordered by port
//     name, e.g. "Port1:1,Port2:1".
//   - flag.<name> - every flag changed from its default, except secrets.
//   - time.begin and time.end (Unix epoch seconds).
package rundata

import (
	"fmt"
	"slices"
	"sort"
	"strings"

	"github.com/open-traffic-generator/snappi/gosnappi"
	"github.com/openconfig/ngpfbgp/internal/ixnet"
	flag "github.com/spf13/pflag"
	"go.opentelemetry.io/otel/attribute"
)

// Run describes the run whose properties are collected.
type Run struct {
	ID     string
	Kind   ixnet.ServerKind
	Server string
	// Scenario may be nil.
	Scenario gosnappi.Config
	// Flags may be nil.
	Flags *flag.FlagSet
}

// topology summarizes the ports of cfg and the devices on them.
func topology(cfg gosnappi.Config) string {
	top := make(map[string]int)
	for _, p := range cfg.Ports().Items() {
		top[p.Name()] = 0
	}
	for _, d := range cfg.Devices().Items() {
		for _, eth := range d.Ethernets().Items() {
			if eth.Connection().HasPortName() {
				top[eth.Connection().PortName()]++
				break
			}
		}
	}

	var keys []string
	for k := range top {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var parts []string
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s:%d", k, top[k]))
	}
	return strings.Join(parts, ",")
}

func locations(cfg gosnappi.Config) string {
	var locs []string
	for _, p := range cfg.Ports().Items() {
		if p.HasLocation() {
			locs = append(locs, p.Location())
		}
	}
	return strings.Join(locs, ",")
}

// Properties builds the properties map of r.
func Properties(r Run) map[string]string {
	m := make(map[string]string)
	local(m)
	if r.Flags != nil {
		flagInfo(m, r.Flags)
	}

	if r.ID != "" {
		m["run.id"] = r.ID
	}
	m["server.kind"] = r.Kind.String()
	if r.Server != "" {
		m["server.address"] = r.Server
	}
	if r.Scenario == nil {
		return m
	}
	m["ports"] = locations(r.Scenario)
	m["topology"] = topology(r.Scenario)
	return m
}

// Attributes returns m as span attributes, ordered by key.
func Attributes(m map[string]string) []attribute.KeyValue {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	attrs := make([]attribute.KeyValue, 0, len(keys))
	for _, k := range keys {
		attrs = append(attrs, attribute.String(k, m[k]))
	}
	return attrs
}

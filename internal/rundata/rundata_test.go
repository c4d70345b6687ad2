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

package rundata

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/open-traffic-generator/snappi/gosnappi"
	"github.com/openconfig/ngpfbgp/internal/ixnet"
	"github.com/openconfig/ngpfbgp/internal/scenario"
	"go.opentelemetry.io/otel/attribute"
)

func TestTopology(t *testing.T) {
	def, err := scenario.Default(scenario.DefaultPorts)
	if err != nil {
		t.Fatalf("scenario.Default() failed: %v", err)
	}

	shared := gosnappi.NewConfig()
	shared.Ports().Add().SetName("p1")
	shared.Ports().Add().SetName("p2")
	for _, name := range []string{"d1", "d2", "d3"} {
		d := shared.Devices().Add().SetName(name)
		d.Ethernets().Add().SetName(name + ".eth").Connection().SetPortName("p1")
	}

	cases := []struct {
		name string
		cfg  gosnappi.Config
		want string
	}{{
		name: "empty",
		cfg:  gosnappi.NewConfig(),
		want: "",
	}, {
		name: "back to back",
		cfg:  def,
		want: "Port1:1,Port2:1",
	}, {
		name: "shared port",
		cfg:  shared,
		want: "p1:3,p2:0",
	}}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			got := topology(c.cfg)
			if got != c.want {
				t.Errorf("topology got %q, want %q", got, c.want)
			}
		})
	}
}

func TestProperties(t *testing.T) {
	cfg, err := scenario.Default(scenario.DefaultPorts)
	if err != nil {
		t.Fatalf("scenario.Default() failed: %v", err)
	}
	got := Properties(Run{
		ID:       "run-1",
		Kind:     ixnet.Linux,
		Server:   "192.0.2.8",
		Scenario: cfg,
	})
	t.Log(got)

	for wantk, wantv := range map[string]string{
		"run.id":         "run-1",
		"server.kind":    "linux",
		"server.address": "192.0.2.8",
		"ports":          scenario.DefaultPorts[0] + "," + scenario.DefaultPorts[1],
		"topology":       "Port1:1,Port2:1",
	} {
		if gotv := got[wantk]; gotv != wantv {
			t.Errorf("Property %s got %q, want %q", wantk, gotv, wantv)
		}
	}
	for _, wantk := range []string{"time.begin", "time.end"} {
		if _, ok := got[wantk]; !ok {
			t.Errorf("Missing key from Properties: %s", wantk)
		}
	}
}

func TestPropertiesWithoutScenario(t *testing.T) {
	got := Properties(Run{Kind: ixnet.Windows})
	for _, k := range []string{"ports", "topology", "run.id"} {
		if _, ok := got[k]; ok {
			t.Errorf("Properties() has %s without a scenario or id", k)
		}
	}
}

func TestAttributes(t *testing.T) {
	got := Attributes(map[string]string{"server.kind": "linux", "run.id": "r"})
	want := []attribute.KeyValue{
		attribute.String("run.id", "r"),
		attribute.String("server.kind", "linux"),
	}
	if diff := cmp.Diff(want, got, cmp.Comparer(func(a, b attribute.KeyValue) bool {
		return a.Key == b.Key && a.Value.Emit() == b.Value.Emit()
	})); diff != "" {
		t.Errorf("Attributes() diff (-want +got):\n%s", diff)
	}
}

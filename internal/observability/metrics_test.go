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

package observability

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestResource(t *testing.T) {
	cases := []struct {
		desc string
		in   string
		want string
	}{
		{
			desc: "session root",
			in:   "/api/v1/sessions/1/ixnetwork",
			want: "/api/v1/sessions/:id/ixnetwork",
		},
		{
			desc: "nested objects",
			in:   "/api/v1/sessions/3/ixnetwork/topology/1/deviceGroup/2",
			want: "/api/v1/sessions/:id/ixnetwork/topology/:id/deviceGroup/:id",
		},
		{
			desc: "query dropped",
			in:   "/api/v1/sessions/1/ixnetwork/vport?includes=assignedTo",
			want: "/api/v1/sessions/:id/ixnetwork/vport",
		},
		{
			desc: "empty",
			in:   "",
			want: "",
		},
	}
	for _, tc := range cases {
		t.Run(tc.desc, func(t *testing.T) {
			if got := Resource(tc.in); got != tc.want {
				t.Errorf("Resource(%q): got %q, want %q", tc.in, got, tc.want)
			}
		})
	}
}

func TestCollector(t *testing.T) {
	reg := prometheus.NewRegistry()
	c, err := NewCollector(reg)
	if err != nil {
		t.Fatalf("NewCollector: %v", err)
	}
	c.ObserveRequest("GET", "/api/v1/sessions/1/ixnetwork/topology/1", 200, 10*time.Millisecond)
	c.ObserveRequest("GET", "/api/v1/sessions/1/ixnetwork/topology/2", 200, 10*time.Millisecond)
	c.ObservePoll("bgp sessions up", 3, nil)
	c.ObservePoll("traffic stopped", 10, errors.New("timeout"))
	c.ObserveStage("assign ports", time.Second, nil)

	if got := testutil.ToFloat64(c.Requests.WithLabelValues("GET", "/api/v1/sessions/:id/ixnetwork/topology/:id", "200")); got != 2 {
		t.Errorf("requests: got %v, want 2", got)
	}
	if got := testutil.ToFloat64(c.Polls.WithLabelValues("traffic stopped", "failed")); got != 1 {
		t.Errorf("failed polls: got %v, want 1", got)
	}
	if got := testutil.ToFloat64(c.Stages.WithLabelValues("assign ports", "ok")); got != 1 {
		t.Errorf("stages: got %v, want 1", got)
	}

	file := filepath.Join(t.TempDir(), "bgpngpf.prom")
	if err := c.WriteTextfile(file); err != nil {
		t.Fatalf("WriteTextfile: %v", err)
	}
	b, err := os.ReadFile(file)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if !strings.Contains(string(b), "ixnet_rest_requests_total") {
		t.Errorf("textfile does not contain request counter:\n%s", b)
	}
}

func TestCollectorReRegister(t *testing.T) {
	reg := prometheus.NewRegistry()
	if _, err := NewCollector(reg); err != nil {
		t.Fatalf("NewCollector: %v", err)
	}
	if _, err := NewCollector(reg); err != nil {
		t.Errorf("second NewCollector on the same registry: got err %v, want nil", err)
	}
}

func TestNilCollector(t *testing.T) {
	var c *Collector
	c.ObserveRequest("GET", "/", 200, time.Second)
	c.ObservePoll("x", 1, nil)
	c.ObserveStage("x", time.Second, nil)
	if err := c.WriteTextfile("unused"); err != nil {
		t.Errorf("WriteTextfile on nil collector: got err %v, want nil", err)
	}
}

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

package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/open-traffic-generator/snappi/gosnappi"
	"github.com/openconfig/ngpfbgp/internal/ixnet"
	"github.com/openconfig/ngpfbgp/internal/ixnet/ixnettest"
	"github.com/openconfig/ngpfbgp/internal/ngpf"
	"github.com/openconfig/ngpfbgp/internal/observability"
	"github.com/openconfig/ngpfbgp/internal/scenario"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

// stubSession records the calls made on it in order.
type stubSession struct {
	kind  ixnet.ServerKind
	inUse int
	// fail makes the named call return an error.
	fail  map[string]error
	stats ixnet.FlowStats
	calls []string
	ids   int
	// expected is the last traffic state awaited.
	expected []string
}

func (s *stubSession) call(name string) error {
	s.calls = append(s.calls, name)
	return s.fail[name]
}

func (s *stubSession) href(kind string) ixnet.Href {
	s.ids++
	return ixnet.Href(fmt.Sprintf("/api/v1/sessions/1/ixnetwork/%s/%d", kind, s.ids))
}

func (s *stubSession) Kind() ixnet.ServerKind { return s.kind }

func (s *stubSession) NewBlankConfig(context.Context) error { return s.call("NewBlankConfig") }

func (s *stubSession) ConfigLicenseServer(context.Context, ixnet.License) error {
	return s.call("ConfigLicenseServer")
}

func (s *stubSession) DeleteSession(context.Context) error { return s.call("DeleteSession") }

func (s *stubSession) ConnectChassis(context.Context, string, time.Duration) error {
	return s.call("ConnectChassis")
}

func (s *stubSession) PortsInUse(context.Context, []ixnet.Port) (int, error) {
	return s.inUse, s.call("PortsInUse")
}

func (s *stubSession) ReleasePorts(context.Context, []ixnet.Port) error {
	return s.call("ReleasePorts")
}

func (s *stubSession) ReleaseAllPorts(context.Context) error { return s.call("ReleaseAllPorts") }

func (s *stubSession) ClearPortOwnership(context.Context, []ixnet.Port) error {
	return s.call("ClearPortOwnership")
}

func (s *stubSession) AssignPorts(_ context.Context, ports []ixnet.Port, _ bool) ([]ixnet.Href, error) {
	if err := s.call("AssignPorts"); err != nil {
		return nil, err
	}
	var out []ixnet.Href
	for range ports {
		out = append(out, s.href("vport"))
	}
	return out, nil
}

func (s *stubSession) CreateTopology(context.Context, string, []ixnet.Href) (ixnet.Href, error) {
	return s.href("topology"), s.call("CreateTopology")
}

func (s *stubSession) CreateDeviceGroup(context.Context, ixnet.Href, ixnet.DeviceGroupConfig) (ixnet.Href, error) {
	return s.href("deviceGroup"), s.call("CreateDeviceGroup")
}

func (s *stubSession) CreateEthernet(context.Context, ixnet.Href, ixnet.EthernetConfig) (ixnet.Href, error) {
	return s.href("ethernet"), s.call("CreateEthernet")
}

func (s *stubSession) CreateIPv4(context.Context, ixnet.Href, ixnet.IPv4Config) (ixnet.Href, error) {
	return s.href("ipv4"), s.call("CreateIPv4")
}

func (s *stubSession) ConfigBGP(context.Context, ixnet.Href, ixnet.BGPConfig) (ixnet.Href, error) {
	return s.href("bgpIpv4Peer"), s.call("ConfigBGP")
}

func (s *stubSession) ConfigNetworkGroup(context.Context, ixnet.Href, ixnet.NetworkGroupConfig) (ixnet.Href, ixnet.Href, error) {
	return s.href("networkGroup"), s.href("ipv4PrefixPools"), s.call("ConfigNetworkGroup")
}

func (s *stubSession) StartAllProtocols(context.Context) error { return s.call("StartAllProtocols") }

func (s *stubSession) StopAllProtocols(context.Context) error { return s.call("StopAllProtocols") }

func (s *stubSession) VerifyProtocolSessions(context.Context, []ixnet.Href, time.Duration) error {
	return s.call("VerifyProtocolSessions")
}

func (s *stubSession) ConfigTrafficItem(context.Context, ixnet.TrafficItem, []ixnet.EndpointSet, []ixnet.ConfigElement) (*ixnet.TrafficItemHandles, error) {
	if err := s.call("ConfigTrafficItem"); err != nil {
		return nil, err
	}
	return &ixnet.TrafficItemHandles{TrafficItem: s.href("trafficItem")}, nil
}

func (s *stubSession) RegenerateTrafficItems(context.Context, []ixnet.Href) error {
	return s.call("RegenerateTrafficItems")
}

func (s *stubSession) ApplyTraffic(context.Context) error { return s.call("ApplyTraffic") }

func (s *stubSession) StartTraffic(context.Context) error { return s.call("StartTraffic") }

func (s *stubSession) StopTraffic(context.Context) error { return s.call("StopTraffic") }

func (s *stubSession) CheckTrafficState(_ context.Context, expected []string, _ time.Duration) error {
	s.expected = expected
	return s.call("CheckTrafficState")
}

func (s *stubSession) GetStats(context.Context, string, time.Duration) (ixnet.FlowStats, error) {
	return s.stats, s.call("GetStats")
}

// configCalls are the calls that change the configuration of the session.
var configCalls = []string{
	"NewBlankConfig", "ConfigLicenseServer", "ReleaseAllPorts", "AssignPorts",
	"CreateTopology", "CreateDeviceGroup", "CreateEthernet", "CreateIPv4",
	"ConfigBGP", "ConfigNetworkGroup", "ConfigTrafficItem",
}

func (s *stubSession) called(name string) bool { return slices.Contains(s.calls, name) }

func (s *stubSession) index(name string) int { return slices.Index(s.calls, name) }

func actions(res *Result) []string {
	var out []string
	for _, a := range res.Teardown {
		out = append(out, a.Action)
	}
	return out
}

func stubConnect(s *stubSession) ConnectFunc {
	return func(context.Context) (Session, error) { return s, nil }
}

func testScenario(t *testing.T) gosnappi.Config {
	t.Helper()
	cfg, err := scenario.Default(scenario.DefaultPorts)
	if err != nil {
		t.Fatalf("scenario.Default() failed: %v", err)
	}
	return cfg
}

func testOptions(t *testing.T, kind ixnet.ServerKind, prefs Preferences) Options {
	t.Helper()
	return Options{
		Kind:        kind,
		Preferences: prefs,
		License:     ixnet.License{Servers: []string{"192.0.2.3"}, Model: "subscription", Tier: "tier3"},
		Traffic:     ngpf.DefaultTrafficOptions(),
		Scenario:    testScenario(t),
	}
}

func TestRunStages(t *testing.T) {
	stats := ixnet.FlowStats{1: {"Tx Port": "Port1"}, 2: {"Tx Port": "Port2"}}
	s := &stubSession{kind: ixnet.Windows, stats: stats}
	res, err := Run(context.Background(), testOptions(t, ixnet.Windows, DefaultPreferences()), stubConnect(s))
	if err != nil {
		t.Fatalf("Run() failed: %v", err)
	}
	want := []Stage{
		StageValidate, StageConnect, StageConnectChassis, StageCheckPorts,
		StageBlankConfig, StageLicense, StageAssignPorts, StageConfigProtocols,
		StageStartProtocols, StageVerifyProtocols, StageConfigTraffic,
		StageStartTraffic, StageCheckTrafficState, StageReadStats,
	}
	if diff := cmp.Diff(want, res.Stages); diff != "" {
		t.Errorf("Run() stages diff (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(stats, res.Stats); diff != "" {
		t.Errorf("Run() stats diff (-want +got):\n%s", diff)
	}
	if len(res.Topologies) != 2 || len(res.TrafficItems) != 1 || len(res.Vports) != 2 {
		t.Errorf("Run() built %d topologies, %d traffic items, %d vports; want 2, 1, 2",
			len(res.Topologies), len(res.TrafficItems), len(res.Vports))
	}
	// One chassis for both default ports.
	if got := strings.Count(strings.Join(s.calls, " "), "ConnectChassis"); got != 1 {
		t.Errorf("ConnectChassis called %d times, want 1", got)
	}
	wantOrder := []string{"ReleaseAllPorts", "ConfigLicenseServer", "AssignPorts", "StartAllProtocols",
		"VerifyProtocolSessions", "ConfigTrafficItem", "RegenerateTrafficItems", "ApplyTraffic",
		"StartTraffic", "CheckTrafficState", "GetStats"}
	for i := 1; i < len(wantOrder); i++ {
		if s.index(wantOrder[i-1]) > s.index(wantOrder[i]) {
			t.Errorf("%s called after %s; calls: %v", wantOrder[i-1], wantOrder[i], s.calls)
		}
	}
}

func TestRunOptionalStages(t *testing.T) {
	prefs := DefaultPreferences()
	prefs.ConfigLicense = false
	prefs.CheckTrafficState = false
	s := &stubSession{kind: ixnet.Windows}
	res, err := Run(context.Background(), testOptions(t, ixnet.Windows, prefs), stubConnect(s))
	if err != nil {
		t.Fatalf("Run() failed: %v", err)
	}
	for _, st := range []Stage{StageLicense, StageCheckTrafficState} {
		if res.Completed(st) {
			t.Errorf("Run() completed stage %q, want skipped", st)
		}
	}
	for _, c := range []string{"ConfigLicenseServer", "ReleaseAllPorts", "CheckTrafficState"} {
		if s.called(c) {
			t.Errorf("Run() called %s, want not called", c)
		}
	}
	if !res.Completed(StageReadStats) {
		t.Errorf("Run() did not read statistics")
	}
}

func TestRunOwnershipConflict(t *testing.T) {
	prefs := DefaultPreferences()
	prefs.ForceTakePortOwnership = false
	prefs.ReleasePortsWhenDone = true
	s := &stubSession{kind: ixnet.Windows, inUse: 2}
	res, err := Run(context.Background(), testOptions(t, ixnet.Windows, prefs), stubConnect(s))
	if err == nil {
		t.Fatalf("Run() succeeded with ports owned by another user")
	}
	var rerr *Error
	if !errors.As(err, &rerr) {
		t.Fatalf("Run() error %T is not an *Error", err)
	}
	if rerr.Stage != StageCheckPorts || rerr.Kind != ixnet.KindOwnership {
		t.Errorf("Run() failed at %q with kind %v, want %q with %v", rerr.Stage, rerr.Kind, StageCheckPorts, ixnet.KindOwnership)
	}
	if !ixnet.IsKind(err, ixnet.KindOwnership) {
		t.Errorf("ixnet.IsKind(%v, KindOwnership) = false", err)
	}
	for _, c := range append(configCalls, "ReleasePorts", "ClearPortOwnership") {
		if s.called(c) {
			t.Errorf("Run() called %s after an ownership conflict; calls: %v", c, s.calls)
		}
	}
	if res.Conflicts != 2 || res.PortsAssigned {
		t.Errorf("Run() result conflicts %d, assigned %v; want 2, false", res.Conflicts, res.PortsAssigned)
	}
}

func TestRunForceOwnership(t *testing.T) {
	s := &stubSession{kind: ixnet.Windows, inUse: 1}
	res, err := Run(context.Background(), testOptions(t, ixnet.Windows, DefaultPreferences()), stubConnect(s))
	if err != nil {
		t.Fatalf("Run() failed: %v", err)
	}
	release, clear, assign := s.index("ReleasePorts"), s.index("ClearPortOwnership"), s.index("AssignPorts")
	if release < 0 || clear < 0 {
		t.Fatalf("Run() calls %v, want ReleasePorts and ClearPortOwnership", s.calls)
	}
	if !(release < clear && clear < assign) {
		t.Errorf("Run() calls %v, want ReleasePorts, ClearPortOwnership, AssignPorts in order", s.calls)
	}
	if !(clear < s.index("NewBlankConfig")) {
		t.Errorf("Run() calls %v, want ownership cleared before the blank config", s.calls)
	}
	if !res.ForceOwned {
		t.Errorf("Run() result ForceOwned = false, want true")
	}
}

func TestRunNoConflictSkipsRelease(t *testing.T) {
	s := &stubSession{kind: ixnet.Windows}
	if _, err := Run(context.Background(), testOptions(t, ixnet.Windows, DefaultPreferences()), stubConnect(s)); err != nil {
		t.Fatalf("Run() failed: %v", err)
	}
	for _, c := range []string{"ReleasePorts", "ClearPortOwnership"} {
		if s.called(c) {
			t.Errorf("Run() called %s without ownership conflicts", c)
		}
	}
}

func TestTeardown(t *testing.T) {
	failProtocols := map[string]error{"VerifyProtocolSessions": &ixnet.Error{Kind: ixnet.KindTimeout, Op: "wait", Err: errors.New("sessions down")}}
	failConnect := errors.New("unused")
	cases := []struct {
		desc    string
		kind    ixnet.ServerKind
		release bool
		force   bool
		delete  bool
		// stop sets StopProtocolsWhenDone.
		stop bool
		// continuous makes the flow of the scenario continuous.
		continuous bool
		fail       map[string]error
		// noSession makes the connection fail.
		noSession bool
		want      []string
	}{{
		desc: "windows defaults",
		kind: ixnet.Windows, force: true, delete: true,
		want: nil,
	}, {
		desc: "windows release",
		kind: ixnet.Windows, release: true, force: true, delete: true,
		want: []string{ActionReleasePorts},
	}, {
		desc: "release needs force",
		kind: ixnet.Windows, release: true, force: false,
		want: nil,
	}, {
		desc: "connection manager deletes session",
		kind: ixnet.WindowsConnectionMgr, force: true, delete: true,
		want: []string{ActionDeleteSession},
	}, {
		desc: "linux deletes session",
		kind: ixnet.Linux, release: true, force: true, delete: true,
		want: []string{ActionReleasePorts, ActionDeleteSession},
	}, {
		desc: "linux keeps session",
		kind: ixnet.Linux, force: true, delete: false,
		want: nil,
	}, {
		desc: "failure after assignment",
		kind: ixnet.Linux, release: true, force: true, delete: true,
		fail: failProtocols,
		want: []string{ActionReleasePorts, ActionDeleteSession},
	}, {
		desc: "failure before assignment",
		kind: ixnet.Linux, release: true, force: true, delete: true,
		fail: map[string]error{"NewBlankConfig": errors.New("boom")},
		want: []string{ActionDeleteSession},
	}, {
		desc: "no session",
		kind: ixnet.Linux, release: true, force: true, delete: true,
		noSession: true,
		want:      nil,
	}, {
		desc: "stop protocols",
		kind: ixnet.Windows, force: true, stop: true,
		want: []string{ActionStopProtocols},
	}, {
		desc: "stop protocols before start",
		kind: ixnet.Windows, force: true, stop: true,
		fail: map[string]error{"NewBlankConfig": errors.New("boom")},
		want: nil,
	}, {
		desc: "continuous traffic",
		kind: ixnet.Linux, force: true, delete: true, continuous: true,
		want: []string{ActionStopTraffic, ActionDeleteSession},
	}, {
		desc: "continuous traffic after failed check",
		kind: ixnet.Windows, force: true, continuous: true,
		fail: map[string]error{"CheckTrafficState": &ixnet.Error{Kind: ixnet.KindTimeout, Op: "wait", Err: errors.New("not started")}},
		want: []string{ActionStopTraffic},
	}, {
		desc: "continuous traffic never started",
		kind: ixnet.Windows, force: true, continuous: true,
		fail: failProtocols,
		want: nil,
	}}
	for _, tc := range cases {
		t.Run(tc.desc, func(t *testing.T) {
			prefs := DefaultPreferences()
			prefs.ReleasePortsWhenDone = tc.release
			prefs.ForceTakePortOwnership = tc.force
			prefs.DeleteSessionAfterTest = tc.delete
			prefs.StopProtocolsWhenDone = tc.stop
			opts := testOptions(t, tc.kind, prefs)
			if tc.continuous {
				opts.Scenario.Flows().Items()[0].Duration().Continuous()
			}
			s := &stubSession{kind: tc.kind, fail: tc.fail}
			connect := stubConnect(s)
			if tc.noSession {
				connect = func(context.Context) (Session, error) {
					return nil, &ixnet.Error{Kind: ixnet.KindConnection, Op: "connect", Err: failConnect}
				}
			}
			res, err := Run(context.Background(), opts, connect)
			if wantErr := tc.fail != nil || tc.noSession; (err != nil) != wantErr {
				t.Fatalf("Run() error = %v, want error %v", err, wantErr)
			}
			var got []string
			for _, a := range res.Teardown {
				got = append(got, a.Action)
			}
			if diff := cmp.Diff(tc.want, got, cmpopts.EquateEmpty()); diff != "" {
				t.Errorf("teardown actions diff (-want +got):\n%s", diff)
			}
			if !tc.noSession {
				if got, want := s.called("DeleteSession"), slices.Contains(tc.want, ActionDeleteSession); got != want {
					t.Errorf("DeleteSession called = %v, want %v", got, want)
				}
			}
		})
	}
}

func TestExpectedTrafficState(t *testing.T) {
	cases := []struct {
		desc       string
		continuous bool
		expected   []string
		want       []string
	}{{
		desc: "fixed frame count",
		want: []string{ixnet.TrafficStopped, ixnet.TrafficStoppedWaitingForStats},
	}, {
		desc:       "continuous",
		continuous: true,
		want:       []string{ixnet.TrafficStarted},
	}, {
		desc:       "configured",
		continuous: true,
		expected:   []string{ixnet.TrafficStopped},
		want:       []string{ixnet.TrafficStopped},
	}}
	for _, tc := range cases {
		t.Run(tc.desc, func(t *testing.T) {
			opts := testOptions(t, ixnet.Windows, DefaultPreferences())
			opts.ExpectedTrafficState = tc.expected
			if tc.continuous {
				opts.Scenario.Flows().Items()[0].Duration().Continuous()
			}
			s := &stubSession{kind: ixnet.Windows}
			if _, err := Run(context.Background(), opts, stubConnect(s)); err != nil {
				t.Fatalf("Run() failed: %v", err)
			}
			if diff := cmp.Diff(tc.want, s.expected); diff != "" {
				t.Errorf("CheckTrafficState() expected states diff (-want +got):\n%s", diff)
			}
		})
	}
}

func TestTeardownErrorKeepsRunError(t *testing.T) {
	prefs := DefaultPreferences()
	prefs.ReleasePortsWhenDone = true
	runErr := &ixnet.Error{Kind: ixnet.KindTimeout, Op: "wait", Err: errors.New("sessions down")}
	s := &stubSession{
		kind: ixnet.Linux,
		fail: map[string]error{
			"VerifyProtocolSessions": runErr,
			"ReleasePorts":           errors.New("release failed"),
			"DeleteSession":          errors.New("delete failed"),
		},
	}
	res, err := Run(context.Background(), testOptions(t, ixnet.Linux, prefs), stubConnect(s))
	var rerr *Error
	if !errors.As(err, &rerr) {
		t.Fatalf("Run() error = %v, want *Error", err)
	}
	if rerr.Stage != StageVerifyProtocols || rerr.Kind != ixnet.KindTimeout {
		t.Errorf("Run() failed at %q (%v), want %q (%v)", rerr.Stage, rerr.Kind, StageVerifyProtocols, ixnet.KindTimeout)
	}
	if !errors.Is(err, runErr) {
		t.Errorf("Run() error %v does not wrap %v", err, runErr)
	}
	if len(res.Teardown) != 2 {
		t.Fatalf("Run() teardown %v, want 2 actions", res.Teardown)
	}
	for _, a := range res.Teardown {
		if a.Err == nil {
			t.Errorf("teardown %s recorded no error", a.Action)
		}
	}
	if res.Completed(StageVerifyProtocols) || !res.Completed(StageStartProtocols) {
		t.Errorf("Run() stages %v, want to end at %q", res.Stages, StageStartProtocols)
	}
}

func TestRunInvalidScenario(t *testing.T) {
	cfg := testScenario(t)
	cfg.Flows().Items()[0].TxRx().Device().SetRxNames([]string{"nowhere"})
	opts := testOptions(t, ixnet.Linux, DefaultPreferences())
	opts.Scenario = cfg
	connected := false
	connect := func(context.Context) (Session, error) {
		connected = true
		return &stubSession{}, nil
	}
	res, err := Run(context.Background(), opts, connect)
	var rerr *Error
	if !errors.As(err, &rerr) || rerr.Stage != StageValidate || rerr.Kind != ixnet.KindConfig {
		t.Fatalf("Run() error = %v, want a config error at %q", err, StageValidate)
	}
	if connected {
		t.Errorf("Run() connected with an invalid scenario")
	}
	if len(res.Teardown) != 0 {
		t.Errorf("Run() teardown %v without a session", res.Teardown)
	}
}

func TestRunNoScenario(t *testing.T) {
	_, err := Run(context.Background(), Options{}, stubConnect(&stubSession{}))
	if !ixnet.IsKind(err, ixnet.KindConfig) {
		t.Errorf("Run() error = %v, want a config error", err)
	}
}

func TestErrorFormat(t *testing.T) {
	cause := &ixnet.Error{Kind: ixnet.KindHTTP, Op: "GET /x", StatusCode: 500, Err: errors.New("boom")}
	err := newError(StageReadStats, cause)
	if got, want := err.Error(), "read statistics failed: "+cause.Error(); got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
	if got := fmt.Sprintf("%v", err); got != err.Error() {
		t.Errorf("%%v = %q, want %q", got, err.Error())
	}
	detailed := fmt.Sprintf("%+v", err)
	if !strings.Contains(detailed, "http error") || !strings.Contains(detailed, "orchestrator_test.go") {
		t.Errorf("%%+v = %q, want the kind and a stack trace", detailed)
	}
}

func TestStageMetrics(t *testing.T) {
	m, err := observability.NewCollector(nil)
	if err != nil {
		t.Fatalf("NewCollector() failed: %v", err)
	}
	opts := testOptions(t, ixnet.Windows, DefaultPreferences())
	opts.Metrics = m
	s := &stubSession{kind: ixnet.Windows, fail: map[string]error{"GetStats": errors.New("no view")}}
	if _, err := Run(context.Background(), opts, stubConnect(s)); err == nil {
		t.Fatalf("Run() succeeded, want statistics failure")
	}
	if got := testutil.CollectAndCount(m.Stages); got == 0 {
		t.Errorf("no stage metrics collected")
	}
}

func fakeOptions(t *testing.T, kind ixnet.ServerKind, prefs Preferences) Options {
	t.Helper()
	opts := testOptions(t, kind, prefs)
	opts.Timeouts = Timeouts{Chassis: 5 * time.Second, Protocols: 5 * time.Second, TrafficState: 5 * time.Second, Stats: 5 * time.Second}
	return opts
}

func fakeConnect(srv *ixnettest.Server, kind ixnet.ServerKind, username, password string) ConnectFunc {
	return Dial(ixnet.ConnectOptions{
		Kind:             kind,
		Host:             srv.URL,
		Username:         username,
		Password:         password,
		PollInterval:     time.Millisecond,
		OperationTimeout: 5 * time.Second,
	})
}

func TestRunAgainstServer(t *testing.T) {
	srv := ixnettest.New(t, ixnettest.Options{TrafficPolls: 2, AsyncPolls: 1, ChassisPolls: 1})
	res, err := Run(context.Background(), fakeOptions(t, ixnet.Windows, DefaultPreferences()), fakeConnect(srv, ixnet.Windows, "", ""))
	if err != nil {
		t.Fatalf("Run() failed: %v", err)
	}
	if len(res.Stats) != 2 {
		t.Fatalf("Run() stats %v, want 2 flow groups", res.Stats)
	}
	for k, row := range res.Stats {
		if row["Tx Frames"] != "50000" || row["Rx Frames"] != "50000" || row["Frames Delta"] != "0" {
			t.Errorf("flow group %d row %v, want 50000 frames without loss", k, row)
		}
	}
	for _, loc := range scenario.DefaultPorts {
		if got := srv.PortOwner(loc); got != ixnettest.Owner {
			t.Errorf("PortOwner(%q) = %q, want %q", loc, got, ixnettest.Owner)
		}
	}
	if got := srv.Count("PATCH", "/globals/licensing"); got != 1 {
		t.Errorf("license configured %d times, want 1", got)
	}
}

func TestRunAgainstServerContinuous(t *testing.T) {
	srv := ixnettest.New(t, ixnettest.Options{TrafficPolls: -1, AsyncPolls: 1})
	opts := fakeOptions(t, ixnet.Windows, DefaultPreferences())
	opts.Scenario.Flows().Items()[0].Duration().Continuous()
	res, err := Run(context.Background(), opts, fakeConnect(srv, ixnet.Windows, "", ""))
	if err != nil {
		t.Fatalf("Run() failed: %v", err)
	}
	if len(res.Stats) != 2 {
		t.Errorf("Run() stats %v, want 2 flow groups", res.Stats)
	}
	if got := srv.Count("POST", "/traffic/operations/stop"); got != 1 {
		t.Errorf("traffic stopped %d times, want 1", got)
	}
	if diff := cmp.Diff([]string{ActionStopTraffic}, actions(res)); diff != "" {
		t.Errorf("teardown actions diff (-want +got):\n%s", diff)
	}
}

func TestRunAgainstServerOwnership(t *testing.T) {
	owners := map[string]string{scenario.DefaultPorts[0]: "someone"}
	cases := []struct {
		desc    string
		force   bool
		wantErr bool
		owner   string
	}{{
		desc: "conflict", force: false, wantErr: true, owner: "someone",
	}, {
		desc: "forced", force: true, owner: ixnettest.Owner,
	}}
	for _, tc := range cases {
		t.Run(tc.desc, func(t *testing.T) {
			srv := ixnettest.New(t, ixnettest.Options{PortOwners: owners})
			prefs := DefaultPreferences()
			prefs.ForceTakePortOwnership = tc.force
			_, err := Run(context.Background(), fakeOptions(t, ixnet.Windows, prefs), fakeConnect(srv, ixnet.Windows, "", ""))
			if (err != nil) != tc.wantErr {
				t.Fatalf("Run() error = %v, want error %v", err, tc.wantErr)
			}
			if tc.wantErr {
				if !ixnet.IsKind(err, ixnet.KindOwnership) {
					t.Errorf("Run() error = %v, want an ownership error", err)
				}
				if got := srv.Count("POST", "/operations/newconfig"); got != 0 {
					t.Errorf("newconfig called %d times after an ownership conflict", got)
				}
			}
			if got := srv.PortOwner(scenario.DefaultPorts[0]); got != tc.owner {
				t.Errorf("PortOwner() = %q, want %q", got, tc.owner)
			}
		})
	}
}

func TestRunAgainstLinuxServer(t *testing.T) {
	srv := ixnettest.New(t, ixnettest.Options{Username: "admin", Password: "admin", APIKey: "key", FirstSessionID: 4})
	res, err := Run(context.Background(), fakeOptions(t, ixnet.Linux, DefaultPreferences()), fakeConnect(srv, ixnet.Linux, "admin", "admin"))
	if err != nil {
		t.Fatalf("Run() failed: %v", err)
	}
	if diff := cmp.Diff([]TeardownAction{{Action: ActionDeleteSession}}, res.Teardown); diff != "" {
		t.Errorf("teardown diff (-want +got):\n%s", diff)
	}
	if srv.SessionExists(4) {
		t.Errorf("session 4 still exists after teardown")
	}
}

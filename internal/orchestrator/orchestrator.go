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

// Package orchestrator runs a back-to-back BGP NGPF test against an
// IxNetwork API server: it owns the ports, builds the protocol and traffic
// configuration from an OTG scenario, runs traffic and collects flow
// statistics, then tears down according to the run preferences.
package orchestrator

import (
	"context"
	"fmt"
	"io"
	"slices"
	"time"

	"github.com/golang/glog"
	"github.com/open-traffic-generator/snappi/gosnappi"
	"github.com/openconfig/ngpfbgp/internal/ixnet"
	"github.com/openconfig/ngpfbgp/internal/ngpf"
	"github.com/openconfig/ngpfbgp/internal/observability"
	"github.com/openconfig/ngpfbgp/internal/scenario"
	"github.com/pkg/errors"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Session is the API server session a run drives. *ixnet.Session
// implements it.
type Session interface {
	ngpf.Protocols
	ngpf.Traffic

	Kind() ixnet.ServerKind
	NewBlankConfig(ctx context.Context) error
	ConfigLicenseServer(ctx context.Context, l ixnet.License) error
	DeleteSession(ctx context.Context) error

	ConnectChassis(ctx context.Context, ip string, timeout time.Duration) error
	PortsInUse(ctx context.Context, ports []ixnet.Port) (int, error)
	ReleasePorts(ctx context.Context, ports []ixnet.Port) error
	ReleaseAllPorts(ctx context.Context) error
	ClearPortOwnership(ctx context.Context, ports []ixnet.Port) error
	AssignPorts(ctx context.Context, ports []ixnet.Port, createVports bool) ([]ixnet.Href, error)

	StartAllProtocols(ctx context.Context) error
	StopAllProtocols(ctx context.Context) error
	VerifyProtocolSessions(ctx context.Context, protocols []ixnet.Href, timeout time.Duration) error

	RegenerateTrafficItems(ctx context.Context, items []ixnet.Href) error
	ApplyTraffic(ctx context.Context) error
	StartTraffic(ctx context.Context) error
	StopTraffic(ctx context.Context) error
	CheckTrafficState(ctx context.Context, expected []string, timeout time.Duration) error

	GetStats(ctx context.Context, viewName string, timeout time.Duration) (ixnet.FlowStats, error)
}

var _ Session = (*ixnet.Session)(nil)

// ConnectFunc opens the session of a run.
type ConnectFunc func(ctx context.Context) (Session, error)

// Dial returns a ConnectFunc that connects with opts.
func Dial(opts ixnet.ConnectOptions) ConnectFunc {
	return func(ctx context.Context) (Session, error) {
		s, err := ixnet.Connect(ctx, opts)
		if err != nil {
			return nil, err
		}
		return s, nil
	}
}

// Preferences are the switches of a run.
type Preferences struct {
	// ForceTakePortOwnership releases and clears ports owned by another
	// user instead of failing.
	ForceTakePortOwnership bool
	// ReleasePortsWhenDone releases force owned ports at teardown.
	ReleasePortsWhenDone bool
	// DeleteSessionAfterTest deletes the session at teardown on servers
	// that host one session per client.
	DeleteSessionAfterTest bool
	// ConfigLicense points the session at the license servers before the
	// ports are assigned.
	ConfigLicense bool
	// EnableDebugTracing prints detailed errors and REST bodies.
	EnableDebugTracing bool
	// CheckTrafficState waits for the traffic to reach ExpectedTrafficState
	// before statistics are read.
	CheckTrafficState bool
	// StopProtocolsWhenDone stops the protocols at teardown.
	StopProtocolsWhenDone bool
}

// DefaultPreferences mirrors the settings of the lab this tool was written
// for.
func DefaultPreferences() Preferences {
	return Preferences{
		ForceTakePortOwnership: true,
		ReleasePortsWhenDone:   false,
		DeleteSessionAfterTest: true,
		ConfigLicense:          true,
		EnableDebugTracing:     true,
		CheckTrafficState:      true,
	}
}

// Timeouts bound the convergence polls of a run.
type Timeouts struct {
	Chassis      time.Duration
	Protocols    time.Duration
	TrafficState time.Duration
	Stats        time.Duration
	Teardown     time.Duration
}

// DefaultTimeouts returns the timeouts used for zero fields.
func DefaultTimeouts() Timeouts {
	return Timeouts{
		Chassis:      2 * time.Minute,
		Protocols:    2 * time.Minute,
		TrafficState: 45 * time.Second,
		Stats:        90 * time.Second,
		Teardown:     time.Minute,
	}
}

func (t Timeouts) withDefaults() Timeouts {
	d := DefaultTimeouts()
	if t.Chassis <= 0 {
		t.Chassis = d.Chassis
	}
	if t.Protocols <= 0 {
		t.Protocols = d.Protocols
	}
	if t.TrafficState <= 0 {
		t.TrafficState = d.TrafficState
	}
	if t.Stats <= 0 {
		t.Stats = d.Stats
	}
	if t.Teardown <= 0 {
		t.Teardown = d.Teardown
	}
	return t
}

// Options describe one run. Run does not modify them.
type Options struct {
	Kind        ixnet.ServerKind
	Preferences Preferences
	License     ixnet.License
	Timeouts    Timeouts
	// Chassis are connected before the ports are checked; the chassis of
	// the scenario ports when empty.
	Chassis []string
	// StatsView is the statistics view read at the end of the run,
	// ixnet.FlowStatisticsView when empty.
	StatsView string
	// ExpectedTrafficState is the traffic state awaited when
	// Preferences.CheckTrafficState is set. When empty it is derived from
	// the flows of the scenario by ngpf.ExpectedTrafficState.
	ExpectedTrafficState []string
	Traffic              ngpf.TrafficOptions
	// Scenario is the desired configuration. Its port locations are the
	// ports of the run.
	Scenario gosnappi.Config
	// Metrics receives per stage measurements; may be nil.
	Metrics *observability.Collector
}

// Stage names one step of a run.
type Stage string

// Stages of a run, in execution order.
const (
	StageValidate          Stage = "validate"
	StageConnect           Stage = "connect"
	StageConnectChassis    Stage = "connect chassis"
	StageCheckPorts        Stage = "check ports"
	StageBlankConfig       Stage = "blank config"
	StageLicense           Stage = "license"
	StageAssignPorts       Stage = "assign ports"
	StageConfigProtocols   Stage = "configure protocols"
	StageStartProtocols    Stage = "start protocols"
	StageVerifyProtocols   Stage = "verify protocols"
	StageConfigTraffic     Stage = "configure traffic"
	StageStartTraffic      Stage = "start traffic"
	StageCheckTrafficState Stage = "check traffic state"
	StageReadStats         Stage = "read statistics"
)

// Teardown actions.
const (
	ActionStopTraffic   = "stop traffic"
	ActionStopProtocols = "stop protocols"
	ActionReleasePorts  = "release ports"
	ActionDeleteSession = "delete session"
)

// TeardownAction is one cleanup call made after the run. Err is nil when
// the call succeeded.
type TeardownAction struct {
	Action string
	Err    error
}

// Result records what a run did. It is returned on failure as well, and
// teardown is decided from it alone.
type Result struct {
	Kind ixnet.ServerKind
	// Connected is set once a session exists.
	Connected bool
	Ports     []ixnet.Port
	// Conflicts is the number of ports owned by another user when checked.
	Conflicts int
	// ForceOwned is set when conflicting ports were released and cleared.
	ForceOwned bool
	// PortsAssigned is set once assignment was requested; a failed
	// assignment may still leave ports owned by the session.
	PortsAssigned bool
	// ProtocolsStarted is set once the protocols were asked to start.
	ProtocolsStarted bool
	// TrafficStarted is set once the traffic was asked to start.
	TrafficStarted bool
	Vports         []ixnet.Href
	Topologies     []ngpf.Topology
	TrafficItems   []ixnet.TrafficItemHandles
	Stats          ixnet.FlowStats
	// Stages lists the completed stages in order.
	Stages   []Stage
	Teardown []TeardownAction
}

// Completed reports whether stage st finished.
func (r *Result) Completed(st Stage) bool {
	return slices.Contains(r.Stages, st)
}

// Error is the failure of a run.
type Error struct {
	Stage Stage
	Kind  ixnet.Kind
	// Err carries the stack of the point where the stage failed.
	Err error
}

func newError(st Stage, err error) *Error {
	return &Error{Stage: st, Kind: ixnet.KindOf(err), Err: errors.WithStack(err)}
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s failed: %v", e.Stage, errors.Cause(e.Err))
}

func (e *Error) Unwrap() error { return e.Err }

// Format prints the stack trace of the failure for %+v.
func (e *Error) Format(s fmt.State, verb rune) {
	if verb == 'v' && s.Flag('+') {
		fmt.Fprintf(s, "%s failed (%s error): %+v", e.Stage, e.Kind, e.Err)
		return
	}
	io.WriteString(s, e.Error())
}

type runner struct {
	opts Options
	res  *Result
	sess Session
}

// Run executes the test described by opts on the session opened by
// connect. Teardown runs whether or not the run failed; its failures are
// recorded in the Result and never replace the error of the run. A non-nil
// error is always an *Error.
func Run(ctx context.Context, opts Options, connect ConnectFunc) (*Result, error) {
	opts.Timeouts = opts.Timeouts.withDefaults()
	if opts.StatsView == "" {
		opts.StatsView = ixnet.FlowStatisticsView
	}
	if len(opts.ExpectedTrafficState) == 0 && opts.Scenario != nil {
		opts.ExpectedTrafficState = ngpf.ExpectedTrafficState(opts.Scenario)
	}

	ctx, span := observability.Tracer().Start(ctx, "bgpngpf.run",
		trace.WithAttributes(attribute.String("ixnet.server_kind", opts.Kind.String())))
	defer span.End()

	r := &runner{opts: opts, res: &Result{Kind: opts.Kind}}
	err := r.run(ctx, connect)
	r.teardown(ctx)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return r.res, err
	}
	return r.res, nil
}

func (r *runner) stage(ctx context.Context, st Stage, fn func(context.Context) error) error {
	ctx, span := observability.Tracer().Start(ctx, string(st))
	defer span.End()

	glog.Infof("Stage %q", st)
	start := time.Now()
	err := fn(ctx)
	r.opts.Metrics.ObserveStage(string(st), time.Since(start), err)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return newError(st, err)
	}
	r.res.Stages = append(r.res.Stages, st)
	return nil
}

func (r *runner) run(ctx context.Context, connect ConnectFunc) error {
	var (
		cfg   = r.opts.Scenario
		prefs = r.opts.Preferences
		t     = r.opts.Timeouts
		res   = r.res
	)

	if err := r.stage(ctx, StageValidate, func(context.Context) error {
		if cfg == nil {
			return &ixnet.Error{Kind: ixnet.KindConfig, Op: "validate", Err: fmt.Errorf("no scenario")}
		}
		if err := ngpf.Validate(cfg); err != nil {
			return err
		}
		ports, err := scenario.Ports(cfg)
		if err != nil {
			return &ixnet.Error{Kind: ixnet.KindConfig, Op: "validate", Err: err}
		}
		res.Ports = ports
		return nil
	}); err != nil {
		return err
	}

	if err := r.stage(ctx, StageConnect, func(ctx context.Context) error {
		s, err := connect(ctx)
		if err != nil {
			return err
		}
		r.sess = s
		res.Connected = true
		return nil
	}); err != nil {
		return err
	}

	if err := r.stage(ctx, StageConnectChassis, func(ctx context.Context) error {
		chassis := r.opts.Chassis
		if len(chassis) == 0 {
			chassis = scenario.Chassis(res.Ports)
		}
		for _, ip := range chassis {
			if err := r.sess.ConnectChassis(ctx, ip, t.Chassis); err != nil {
				return err
			}
		}
		return nil
	}); err != nil {
		return err
	}

	if err := r.stage(ctx, StageCheckPorts, func(ctx context.Context) error {
		n, err := r.sess.PortsInUse(ctx, res.Ports)
		if err != nil {
			return err
		}
		res.Conflicts = n
		if n == 0 {
			return nil
		}
		if !prefs.ForceTakePortOwnership {
			return &ixnet.Error{
				Kind: ixnet.KindOwnership,
				Op:   "check ports",
				Err:  fmt.Errorf("%d of %d ports are owned by another user and ForceTakePortOwnership is false", n, len(res.Ports)),
			}
		}
		glog.Infof("%d ports owned by another user, taking ownership", n)
		if err := r.sess.ReleasePorts(ctx, res.Ports); err != nil {
			return err
		}
		if err := r.sess.ClearPortOwnership(ctx, res.Ports); err != nil {
			return err
		}
		res.ForceOwned = true
		return nil
	}); err != nil {
		return err
	}

	if err := r.stage(ctx, StageBlankConfig, r.sess.NewBlankConfig); err != nil {
		return err
	}

	if prefs.ConfigLicense {
		if err := r.stage(ctx, StageLicense, func(ctx context.Context) error {
			if err := r.sess.ReleaseAllPorts(ctx); err != nil {
				return err
			}
			return r.sess.ConfigLicenseServer(ctx, r.opts.License)
		}); err != nil {
			return err
		}
	}

	vports := map[string]ixnet.Href{}
	if err := r.stage(ctx, StageAssignPorts, func(ctx context.Context) error {
		res.PortsAssigned = true
		hrefs, err := r.sess.AssignPorts(ctx, res.Ports, true)
		if err != nil {
			return err
		}
		items := cfg.Ports().Items()
		if len(hrefs) != len(items) {
			return &ixnet.Error{Kind: ixnet.KindOperation, Op: "assign ports", Err: fmt.Errorf("got %d vports for %d ports", len(hrefs), len(items))}
		}
		for i, p := range items {
			vports[p.Name()] = hrefs[i]
		}
		res.Vports = hrefs
		return nil
	}); err != nil {
		return err
	}

	if err := r.stage(ctx, StageConfigProtocols, func(ctx context.Context) error {
		topologies, err := ngpf.BuildProtocols(ctx, r.sess, cfg, vports)
		res.Topologies = topologies
		return err
	}); err != nil {
		return err
	}

	if err := r.stage(ctx, StageStartProtocols, func(ctx context.Context) error {
		res.ProtocolsStarted = true
		return r.sess.StartAllProtocols(ctx)
	}); err != nil {
		return err
	}

	if err := r.stage(ctx, StageVerifyProtocols, func(ctx context.Context) error {
		return r.sess.VerifyProtocolSessions(ctx, ngpf.BGPPeers(res.Topologies), t.Protocols)
	}); err != nil {
		return err
	}

	if err := r.stage(ctx, StageConfigTraffic, func(ctx context.Context) error {
		items, err := ngpf.BuildTraffic(ctx, r.sess, cfg, res.Topologies, r.opts.Traffic)
		res.TrafficItems = items
		return err
	}); err != nil {
		return err
	}
	if len(res.TrafficItems) == 0 {
		glog.Info("Scenario has no flows, skipping traffic")
		return nil
	}

	if err := r.stage(ctx, StageStartTraffic, func(ctx context.Context) error {
		if err := r.sess.RegenerateTrafficItems(ctx, ngpf.TrafficItems(res.TrafficItems)); err != nil {
			return err
		}
		if err := r.sess.ApplyTraffic(ctx); err != nil {
			return err
		}
		res.TrafficStarted = true
		return r.sess.StartTraffic(ctx)
	}); err != nil {
		return err
	}

	if prefs.CheckTrafficState {
		if err := r.stage(ctx, StageCheckTrafficState, func(ctx context.Context) error {
			return r.sess.CheckTrafficState(ctx, r.opts.ExpectedTrafficState, t.TrafficState)
		}); err != nil {
			return err
		}
	}

	if err := r.stage(ctx, StageReadStats, func(ctx context.Context) error {
		stats, err := r.sess.GetStats(ctx, r.opts.StatsView, t.Stats)
		if err != nil {
			return err
		}
		res.Stats = stats
		return nil
	}); err != nil {
		return err
	}
	return nil
}

// teardown runs on a context that survives cancellation of the run, so an
// interrupted run still releases what it owns.
func (r *runner) teardown(ctx context.Context) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.opts.Timeouts.Teardown)
	defer cancel()

	prefs := r.opts.Preferences
	if r.sess != nil && r.res.TrafficStarted && ngpf.Continuous(r.opts.Scenario) {
		r.cleanup(ctx, ActionStopTraffic, r.sess.StopTraffic)
	}
	if r.sess != nil && prefs.StopProtocolsWhenDone && r.res.ProtocolsStarted {
		r.cleanup(ctx, ActionStopProtocols, r.sess.StopAllProtocols)
	}
	if r.sess != nil && prefs.ReleasePortsWhenDone && prefs.ForceTakePortOwnership && r.res.PortsAssigned {
		r.cleanup(ctx, ActionReleasePorts, func(ctx context.Context) error {
			return r.sess.ReleasePorts(ctx, r.res.Ports)
		})
	}
	if r.sess != nil && r.opts.Kind.OwnsSessions() && prefs.DeleteSessionAfterTest {
		r.cleanup(ctx, ActionDeleteSession, r.sess.DeleteSession)
	}
}

func (r *runner) cleanup(ctx context.Context, action string, fn func(context.Context) error) {
	ctx, span := observability.Tracer().Start(ctx, "teardown "+action)
	defer span.End()

	err := fn(ctx)
	if err != nil {
		glog.Errorf("Teardown %s failed: %v", action, err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		glog.Infof("Teardown %s done", action)
	}
	r.res.Teardown = append(r.res.Teardown, TeardownAction{Action: action, Err: err})
}

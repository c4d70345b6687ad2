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

package cmd

import (
	"fmt"
	"strings"
	"time"

	"github.com/open-traffic-generator/snappi/gosnappi"
	"github.com/openconfig/ngpfbgp/internal/ixnet"
	"github.com/openconfig/ngpfbgp/internal/ngpf"
	"github.com/openconfig/ngpfbgp/internal/orchestrator"
	"github.com/openconfig/ngpfbgp/internal/scenario"
	flag "github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Defaults of the lab this tool was written for.
const (
	defaultWindowsServer = "192.168.70.3"
	defaultLinuxServer   = "192.168.70.108"
	defaultLinuxUser     = "admin"
	defaultLicenseServer = "192.168.70.3"
	defaultLicenseModel  = "subscription"
	defaultLicenseTier   = "tier3"
	envPrefix            = "BGPNGPF"
)

// duration prints as "90s" rather than nanoseconds.
type duration time.Duration

func (d duration) MarshalYAML() (any, error) { return time.Duration(d).String(), nil }

// Config is the effective configuration of a run, merged from flags, the
// BGPNGPF_* environment and the config file, in that order of precedence.
type Config struct {
	ServerKind string `yaml:"server-kind"`
	APIServer  string `yaml:"api-server"`
	APIPort    int    `yaml:"api-port"`
	Username   string `yaml:"username,omitempty"`
	Password   string `yaml:"-"`
	APIKey     string `yaml:"-"`
	VerifyTLS  bool   `yaml:"verify-tls"`
	SessionID  int    `yaml:"session-id,omitempty"`

	Chassis  []string `yaml:"chassis,omitempty"`
	Ports    []string `yaml:"ports,omitempty"`
	Scenario string   `yaml:"scenario,omitempty"`

	LicenseServers []string `yaml:"license-servers"`
	LicenseModel   string   `yaml:"license-model"`
	LicenseTier    string   `yaml:"license-tier"`

	ForceTakePortOwnership bool `yaml:"force-take-port-ownership"`
	ReleasePortsWhenDone   bool `yaml:"release-ports-when-done"`
	DeleteSessionAfterTest bool `yaml:"delete-session-after-test"`
	ConfigLicense          bool `yaml:"config-license"`
	EnableDebugTracing     bool `yaml:"enable-debug-tracing"`
	CheckTrafficState      bool `yaml:"check-traffic-state"`
	StopProtocolsWhenDone  bool `yaml:"stop-protocols-when-done"`

	ExpectedTrafficState []string `yaml:"expected-traffic-state,omitempty"`

	BiDirectional bool     `yaml:"bidirectional"`
	TrackBy       []string `yaml:"track-by"`
	StatsView     string   `yaml:"stats-view"`

	PollInterval        duration `yaml:"poll-interval"`
	RequestTimeout      duration `yaml:"request-timeout"`
	ChassisTimeout      duration `yaml:"chassis-timeout"`
	ProtocolTimeout     duration `yaml:"protocol-timeout"`
	TrafficStateTimeout duration `yaml:"traffic-state-timeout"`
	StatsTimeout        duration `yaml:"stats-timeout"`
	TeardownTimeout     duration `yaml:"teardown-timeout"`

	MetricsFile   string `yaml:"metrics-file,omitempty"`
	TraceExporter string `yaml:"trace-exporter,omitempty"`
	TraceEndpoint string `yaml:"trace-endpoint,omitempty"`
}

// registerFlags adds the run flags to fs.
func registerFlags(fs *flag.FlagSet) {
	prefs := orchestrator.DefaultPreferences()
	timeouts := orchestrator.DefaultTimeouts()
	traffic := ngpf.DefaultTrafficOptions()

	fs.String("config", "", "YAML file with the settings below, keyed by flag name")
	fs.Bool("print-config", false, "print the effective configuration and exit")
	fs.Bool("print-scenario", false, "print the OTG scenario as YAML and exit")

	fs.String("server-kind", ixnet.Windows.String(), "API server kind when no argument is given: "+strings.Join(ixnet.ServerKinds(), ", "))
	fs.String("api-server", "", "API server address or base URL (default "+defaultWindowsServer+" for windows servers, "+defaultLinuxServer+" for linux)")
	fs.Int("api-port", 0, "API server REST port (default 11009, 443 for linux)")
	fs.String("username", "", "linux API server user (default "+defaultLinuxUser+")")
	fs.String("password", "", "linux API server password (default "+defaultLinuxUser+")")
	fs.String("api-key", "", "linux API server key; skips the login")
	fs.Bool("verify-tls", false, "verify the API server certificate")
	fs.Int("session-id", 0, "session of a windows API server (default 1)")

	fs.StringSlice("chassis", nil, "chassis to connect (default the chassis of the ports)")
	fs.StringSlice("ports", nil, "port locations as chassis;card;port (default "+strings.Join(scenario.DefaultPorts, ",")+")")
	fs.String("scenario", "", "OTG configuration file (YAML or JSON) replacing the built-in scenario")

	fs.StringSlice("license-servers", []string{defaultLicenseServer}, "license servers")
	fs.String("license-model", defaultLicenseModel, "license model")
	fs.String("license-tier", defaultLicenseTier, "license tier")

	fs.Bool("force-take-port-ownership", prefs.ForceTakePortOwnership, "take ports owned by another user")
	fs.Bool("release-ports-when-done", prefs.ReleasePortsWhenDone, "release force owned ports when done")
	fs.Bool("delete-session-after-test", prefs.DeleteSessionAfterTest, "delete the session when done (windowsConnectionMgr and linux)")
	fs.Bool("config-license", prefs.ConfigLicense, "configure the license servers")
	fs.Bool("enable-debug-tracing", prefs.EnableDebugTracing, "print error stacks and REST bodies (with -v=2)")
	fs.Bool("check-traffic-state", prefs.CheckTrafficState, "wait for the expected traffic state before reading statistics")
	fs.Bool("stop-protocols-when-done", prefs.StopProtocolsWhenDone, "stop the protocols when done")
	fs.StringSlice("expected-traffic-state", nil, "traffic states to wait for (default started for continuous flows, else stopped or stoppedWaitingForStats)")

	fs.Bool("bidirectional", traffic.BiDirectional, "send traffic in both directions")
	fs.StringSlice("track-by", traffic.TrackBy, "traffic tracking fields")
	fs.String("stats-view", ixnet.FlowStatisticsView, "statistics view to read")

	fs.Duration("poll-interval", time.Second, "interval of every convergence poll")
	fs.Duration("request-timeout", 2*time.Minute, "timeout of a single REST request")
	fs.Duration("chassis-timeout", timeouts.Chassis, "timeout for the chassis to become ready")
	fs.Duration("protocol-timeout", timeouts.Protocols, "timeout for protocol sessions to come up")
	fs.Duration("traffic-state-timeout", timeouts.TrafficState, "timeout for traffic to stop")
	fs.Duration("stats-timeout", timeouts.Stats, "timeout for the statistics view")
	fs.Duration("teardown-timeout", timeouts.Teardown, "timeout of the teardown")

	fs.String("metrics-file", "", "write Prometheus metrics of the run to this file")
	fs.String("trace-exporter", "", "OpenTelemetry span exporter: stdout or otlp; empty disables tracing")
	fs.String("trace-endpoint", "", "OTLP gRPC endpoint (default localhost:4317)")
}

// newViper returns a viper instance reading fs, the environment and the
// config file named by the config flag.
func newViper(fs *flag.FlagSet) (*viper.Viper, error) {
	v := viper.New()
	if err := v.BindPFlags(fs); err != nil {
		return nil, err
	}
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	if file := v.GetString("config"); file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config %s: %w", file, err)
		}
	}
	return v, nil
}

// loadConfig resolves the settings of v. kindArg is the positional server
// kind, empty when not given.
func loadConfig(v *viper.Viper, kindArg string) (*Config, error) {
	kindName := kindArg
	if kindName == "" {
		kindName = v.GetString("server-kind")
	}
	kind, err := ixnet.ParseServerKind(kindName)
	if err != nil {
		return nil, err
	}

	c := &Config{
		ServerKind: kind.String(),
		APIServer:  v.GetString("api-server"),
		APIPort:    v.GetInt("api-port"),
		Username:   v.GetString("username"),
		Password:   v.GetString("password"),
		APIKey:     v.GetString("api-key"),
		VerifyTLS:  v.GetBool("verify-tls"),
		SessionID:  v.GetInt("session-id"),

		Chassis:  v.GetStringSlice("chassis"),
		Ports:    v.GetStringSlice("ports"),
		Scenario: v.GetString("scenario"),

		LicenseServers: v.GetStringSlice("license-servers"),
		LicenseModel:   v.GetString("license-model"),
		LicenseTier:    v.GetString("license-tier"),

		ForceTakePortOwnership: v.GetBool("force-take-port-ownership"),
		ReleasePortsWhenDone:   v.GetBool("release-ports-when-done"),
		DeleteSessionAfterTest: v.GetBool("delete-session-after-test"),
		ConfigLicense:          v.GetBool("config-license"),
		EnableDebugTracing:     v.GetBool("enable-debug-tracing"),
		CheckTrafficState:      v.GetBool("check-traffic-state"),
		StopProtocolsWhenDone:  v.GetBool("stop-protocols-when-done"),

		ExpectedTrafficState: v.GetStringSlice("expected-traffic-state"),

		BiDirectional: v.GetBool("bidirectional"),
		TrackBy:       v.GetStringSlice("track-by"),
		StatsView:     v.GetString("stats-view"),

		PollInterval:        duration(v.GetDuration("poll-interval")),
		RequestTimeout:      duration(v.GetDuration("request-timeout")),
		ChassisTimeout:      duration(v.GetDuration("chassis-timeout")),
		ProtocolTimeout:     duration(v.GetDuration("protocol-timeout")),
		TrafficStateTimeout: duration(v.GetDuration("traffic-state-timeout")),
		StatsTimeout:        duration(v.GetDuration("stats-timeout")),
		TeardownTimeout:     duration(v.GetDuration("teardown-timeout")),

		MetricsFile:   v.GetString("metrics-file"),
		TraceExporter: v.GetString("trace-exporter"),
		TraceEndpoint: v.GetString("trace-endpoint"),
	}

	if c.APIServer == "" {
		c.APIServer = defaultWindowsServer
		if kind == ixnet.Linux {
			c.APIServer = defaultLinuxServer
		}
	}
	if c.APIPort == 0 {
		c.APIPort = kind.DefaultPort()
	}
	if kind == ixnet.Linux && c.APIKey == "" {
		if c.Username == "" {
			c.Username = defaultLinuxUser
		}
		if c.Password == "" {
			c.Password = defaultLinuxUser
		}
	}
	if len(c.Ports) == 0 && c.Scenario == "" {
		c.Ports = append([]string(nil), scenario.DefaultPorts...)
	}
	return c, nil
}

func (c *Config) kind() ixnet.ServerKind {
	k, _ := ixnet.ParseServerKind(c.ServerKind)
	return k
}

// connectOptions returns how to reach the API server.
func (c *Config) connectOptions() ixnet.ConnectOptions {
	return ixnet.ConnectOptions{
		Kind:           c.kind(),
		Host:           c.APIServer,
		Port:           c.APIPort,
		Username:       c.Username,
		Password:       c.Password,
		APIKey:         c.APIKey,
		VerifyTLS:      c.VerifyTLS,
		SessionID:      c.SessionID,
		RequestTimeout: time.Duration(c.RequestTimeout),
		PollInterval:   time.Duration(c.PollInterval),
		DebugTracing:   c.EnableDebugTracing,
	}
}

// loadScenario returns the scenario file, or the built-in scenario, on the
// configured ports.
func (c *Config) loadScenario() (gosnappi.Config, error) {
	if c.Scenario == "" {
		return scenario.Default(c.Ports)
	}
	cfg, err := scenario.Load(c.Scenario)
	if err != nil {
		return nil, err
	}
	if len(c.Ports) > 0 {
		if err := scenario.SetPorts(cfg, c.Ports); err != nil {
			return nil, fmt.Errorf("scenario %s: %w", c.Scenario, err)
		}
	}
	return cfg, nil
}

// options returns the orchestration options for scenario cfg.
func (c *Config) options(cfg gosnappi.Config) orchestrator.Options {
	return orchestrator.Options{
		Kind: c.kind(),
		Preferences: orchestrator.Preferences{
			ForceTakePortOwnership: c.ForceTakePortOwnership,
			ReleasePortsWhenDone:   c.ReleasePortsWhenDone,
			DeleteSessionAfterTest: c.DeleteSessionAfterTest,
			ConfigLicense:          c.ConfigLicense,
			EnableDebugTracing:     c.EnableDebugTracing,
			CheckTrafficState:      c.CheckTrafficState,
			StopProtocolsWhenDone:  c.StopProtocolsWhenDone,
		},
		License: ixnet.License{
			Servers: c.LicenseServers,
			Model:   c.LicenseModel,
			Tier:    c.LicenseTier,
		},
		Timeouts: orchestrator.Timeouts{
			Chassis:      time.Duration(c.ChassisTimeout),
			Protocols:    time.Duration(c.ProtocolTimeout),
			TrafficState: time.Duration(c.TrafficStateTimeout),
			Stats:        time.Duration(c.StatsTimeout),
			Teardown:     time.Duration(c.TeardownTimeout),
		},
		Chassis:              c.Chassis,
		StatsView:            c.StatsView,
		ExpectedTrafficState: c.ExpectedTrafficState,
		Traffic: ngpf.TrafficOptions{
			BiDirectional:      c.BiDirectional,
			TrackBy:            c.TrackBy,
			PortDistribution:   ixnet.DistributeApplyToAll,
			StreamDistribution: ixnet.DistributeSplitEvenly,
		},
		Scenario: cfg,
	}
}

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

// Package scenario provides the desired configuration of a back-to-back
// BGP test as an OTG configuration: the built-in default and loading one
// from a YAML or JSON file.
package scenario

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/open-traffic-generator/snappi/gosnappi"
	"github.com/openconfig/ngpfbgp/internal/attrs"
	"github.com/openconfig/ngpfbgp/internal/ixnet"
)

// Defaults of the built-in scenario.
const (
	DefaultChassis = "192.168.70.11"
	DefaultFlow    = "Topo1 to Topo2"

	localAS     = 101
	holdTime    = 90
	restartTime = 45
	routeCount  = 100
	frameCount  = 50000
	frameSize   = 128
	lineRate    = 88
)

// DefaultPorts are the port locations of the built-in scenario.
var DefaultPorts = []string{DefaultChassis + ";1;1", DefaultChassis + ";2;1"}

var (
	topo1 = attrs.Attributes{
		Name:     "Topo1",
		PortName: "Port1",
		EthName:  "MyEth1",
		MAC:      "00:01:01:00:00:01",
		VLAN:     103,
		IPv4Name: "MyIPv4-1",
		IPv4:     "1.1.1.1",
		IPv4Len:  24,
	}
	topo2 = attrs.Attributes{
		Name:     "Topo2",
		PortName: "Port2",
		EthName:  "MyEth2",
		MAC:      "00:01:02:00:00:01",
		VLAN:     103,
		IPv4Name: "MyIPv4-2",
		IPv4:     "1.1.1.2",
		IPv4Len:  24,
	}
)

// Default returns the built-in scenario on the given two port locations:
// two devices with a tagged IPv4 interface and an IBGP peer each, every
// peer advertising 100 host routes, and one fixed size flow from Topo1 to
// Topo2.
func Default(ports []string) (gosnappi.Config, error) {
	if len(ports) != 2 {
		return nil, fmt.Errorf("the default scenario needs 2 ports, got %d", len(ports))
	}
	cfg := gosnappi.NewConfig()
	endpoints := []struct {
		a      attrs.Attributes
		peer   *attrs.Attributes
		bgp    string
		routes string
		start  string
	}{
		{topo1, &topo2, "bgp_1", "networkGroup1", "160.1.0.0"},
		{topo2, &topo1, "bgp_2", "networkGroup2", "180.1.0.0"},
	}
	for i, ep := range endpoints {
		a := ep.a
		a.Location = ports[i]
		dev := a.AddToOTG(cfg, ep.peer)
		peer := attrs.AddBGPV4Peer(dev, a.IPv4Intf(),
			attrs.WithBGPName(ep.bgp),
			attrs.WithBGPRouterID(a.IPv4),
			attrs.WithBGPPeerAddress(ep.peer.IPv4),
			attrs.WithBGPASNumber(localAS),
			attrs.WithBGPHoldTime(holdTime),
		)
		attrs.AddV4Routes(peer, attrs.RouteAttrs{
			Name:    ep.routes,
			Address: ep.start,
			Prefix:  32,
			Count:   routeCount,
			Step:    1,
		})
	}

	flow := cfg.Flows().Add().SetName(DefaultFlow)
	flow.TxRx().Device().SetTxNames([]string{topo1.Name}).SetRxNames([]string{topo2.Name})
	flow.Size().SetFixed(frameSize)
	flow.Rate().SetPercentage(lineRate)
	flow.Duration().FixedPackets().SetPackets(frameCount)
	flow.Metrics().SetEnable(true)
	return cfg, nil
}

// Load reads an OTG configuration from a file. Files ending in .json are
// parsed as JSON, anything else as YAML.
func Load(path string) (gosnappi.Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading scenario: %w", err)
	}
	cfg := gosnappi.NewConfig()
	if strings.EqualFold(filepath.Ext(path), ".json") {
		err = cfg.Unmarshal().FromJson(string(data))
	} else {
		err = cfg.Unmarshal().FromYaml(string(data))
	}
	if err != nil {
		return nil, fmt.Errorf("parsing scenario %s: %w", path, err)
	}
	return cfg, nil
}

// SetPorts replaces the locations of the configuration's ports, in order.
func SetPorts(cfg gosnappi.Config, locations []string) error {
	items := cfg.Ports().Items()
	if len(locations) != len(items) {
		return fmt.Errorf("%d port locations for %d ports", len(locations), len(items))
	}
	for i, p := range items {
		p.SetLocation(locations[i])
	}
	return nil
}

// Ports parses the locations of the configuration's ports, in order.
func Ports(cfg gosnappi.Config) ([]ixnet.Port, error) {
	var ports []ixnet.Port
	for _, p := range cfg.Ports().Items() {
		if !p.HasLocation() {
			return nil, fmt.Errorf("port %q has no location", p.Name())
		}
		port, err := ixnet.ParsePort(p.Location())
		if err != nil {
			return nil, fmt.Errorf("port %q: %w", p.Name(), err)
		}
		ports = append(ports, port)
	}
	if len(ports) == 0 {
		return nil, fmt.Errorf("configuration has no ports")
	}
	return ports, nil
}

// Chassis returns the distinct chassis addresses of ports in first use
// order.
func Chassis(ports []ixnet.Port) []string {
	var out []string
	seen := map[string]bool{}
	for _, p := range ports {
		if !seen[p.Chassis] {
			seen[p.Chassis] = true
			out = append(out, p.Chassis)
		}
	}
	return out
}

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

// Package ngpf maps an OTG configuration onto the NGPF object tree of an
// IxNetwork session: one topology per device holding a device group with an
// Ethernet, IPv4 and BGP stack and one network group per route block, and
// one traffic item per flow between the topologies.
package ngpf

import (
	"context"
	"fmt"
	"strconv"

	"github.com/golang/glog"
	"github.com/open-traffic-generator/snappi/gosnappi"
	"github.com/openconfig/ngpfbgp/internal/iputil"
	"github.com/openconfig/ngpfbgp/internal/ixnet"
)

// Protocols creates NGPF protocol objects. *ixnet.Session implements it.
type Protocols interface {
	CreateTopology(ctx context.Context, name string, vports []ixnet.Href) (ixnet.Href, error)
	CreateDeviceGroup(ctx context.Context, topology ixnet.Href, cfg ixnet.DeviceGroupConfig) (ixnet.Href, error)
	CreateEthernet(ctx context.Context, deviceGroup ixnet.Href, cfg ixnet.EthernetConfig) (ixnet.Href, error)
	CreateIPv4(ctx context.Context, ethernet ixnet.Href, cfg ixnet.IPv4Config) (ixnet.Href, error)
	ConfigBGP(ctx context.Context, ipv4 ixnet.Href, cfg ixnet.BGPConfig) (ixnet.Href, error)
	ConfigNetworkGroup(ctx context.Context, deviceGroup ixnet.Href, cfg ixnet.NetworkGroupConfig) (group, pool ixnet.Href, err error)
}

// Traffic creates traffic items. *ixnet.Session implements it.
type Traffic interface {
	ConfigTrafficItem(ctx context.Context, item ixnet.TrafficItem, endpoints []ixnet.EndpointSet, elements []ixnet.ConfigElement) (*ixnet.TrafficItemHandles, error)
}

// Topology holds the handles created for one device.
type Topology struct {
	Name          string
	Topology      ixnet.Href
	DeviceGroup   ixnet.Href
	Ethernet      ixnet.Href
	IPv4          ixnet.Href
	BGPPeers      []ixnet.Href
	NetworkGroups []ixnet.Href
	PrefixPools   []ixnet.Href
}

// BGPPeers returns the BGP peer handles of all topologies.
func BGPPeers(topologies []Topology) []ixnet.Href {
	var out []ixnet.Href
	for _, t := range topologies {
		out = append(out, t.BGPPeers...)
	}
	return out
}

const (
	macStep  = "00:00:00:00:00:01"
	ipv4Step = "0.0.0.1"
	noStep   = "0.0.0.0"

	maxAS2Bytes = 65535
)

func configError(op, format string, args ...any) error {
	return &ixnet.Error{Kind: ixnet.KindConfig, Op: op, Err: fmt.Errorf(format, args...)}
}

// Validate checks that cfg can be mapped onto NGPF objects: every device
// has exactly one Ethernet interface on a known port with exactly one IPv4
// address, BGP peers sit on that address and every flow names devices or
// their interfaces at both ends.
func Validate(cfg gosnappi.Config) error {
	if _, err := cfg.Marshal().ToJson(); err != nil {
		return configError("validate configuration", "%v", err)
	}
	ports := map[string]bool{}
	for _, p := range cfg.Ports().Items() {
		ports[p.Name()] = true
	}
	devices := cfg.Devices().Items()
	if len(devices) == 0 {
		return configError("validate configuration", "no devices")
	}
	for _, d := range devices {
		op := "validate device " + d.Name()
		eths := d.Ethernets().Items()
		if len(eths) != 1 {
			return configError(op, "%d ethernet interfaces, want 1", len(eths))
		}
		if port := eths[0].Connection().PortName(); !ports[port] {
			return configError(op, "ethernet %q is on unknown port %q", eths[0].Name(), port)
		}
		ips := eths[0].Ipv4Addresses().Items()
		if len(ips) != 1 {
			return configError(op, "%d IPv4 addresses, want 1", len(ips))
		}
		if len(eths[0].Vlans().Items()) > 1 {
			return configError(op, "stacked VLANs are not supported")
		}
		if _, err := iputil.MaskLen(ips[0].Prefix()); err != nil {
			return configError(op, "%v", err)
		}
		if !d.HasBgp() {
			continue
		}
		for _, intf := range d.Bgp().Ipv4Interfaces().Items() {
			if intf.Ipv4Name() != ips[0].Name() {
				return configError(op, "BGP interface %q is not IPv4 address %q", intf.Ipv4Name(), ips[0].Name())
			}
			for _, peer := range intf.Peers().Items() {
				if peer.AsNumberWidth() == gosnappi.BgpV4PeerAsNumberWidth.TWO && peer.AsNumber() > maxAS2Bytes {
					return configError(op, "BGP peer %q: AS %d does not fit in 2 bytes", peer.Name(), peer.AsNumber())
				}
				for _, rr := range peer.V4Routes().Items() {
					for _, a := range rr.Addresses().Items() {
						if _, err := iputil.LastPrefix(a.Address(), int(a.Prefix()), int(a.Count()), int(a.Step())); err != nil {
							return configError(op, "route range %q: %v", rr.Name(), err)
						}
					}
				}
			}
		}
	}
	owners := endpointOwners(cfg)
	for _, f := range cfg.Flows().Items() {
		op := "validate flow " + f.Name()
		if f.TxRx().Choice() != gosnappi.FlowTxRxChoice.DEVICE {
			return configError(op, "only device flows are supported")
		}
		for _, names := range [][]string{f.TxRx().Device().TxNames(), f.TxRx().Device().RxNames()} {
			if len(names) == 0 {
				return configError(op, "flow has no tx or rx endpoints")
			}
			for _, n := range names {
				if _, ok := owners[n]; !ok {
					return configError(op, "endpoint %q is not a device or one of its interfaces", n)
				}
			}
		}
		if _, err := configElement(f); err != nil {
			return configError(op, "%v", err)
		}
	}
	return nil
}

// endpointOwners maps every device, interface, peer and route range name to
// the name of the device it belongs to.
func endpointOwners(cfg gosnappi.Config) map[string]string {
	owners := map[string]string{}
	for _, d := range cfg.Devices().Items() {
		owners[d.Name()] = d.Name()
		for _, e := range d.Ethernets().Items() {
			owners[e.Name()] = d.Name()
			for _, ip := range e.Ipv4Addresses().Items() {
				owners[ip.Name()] = d.Name()
			}
		}
		if !d.HasBgp() {
			continue
		}
		for _, intf := range d.Bgp().Ipv4Interfaces().Items() {
			for _, peer := range intf.Peers().Items() {
				owners[peer.Name()] = d.Name()
				for _, rr := range peer.V4Routes().Items() {
					owners[rr.Name()] = d.Name()
				}
			}
		}
	}
	return owners
}

// BuildProtocols creates the NGPF tree of every device in cfg. vports maps
// OTG port names to the assigned virtual ports. cfg must have passed
// Validate.
func BuildProtocols(ctx context.Context, p Protocols, cfg gosnappi.Config, vports map[string]ixnet.Href) ([]Topology, error) {
	var out []Topology
	for _, d := range cfg.Devices().Items() {
		t, err := buildDevice(ctx, p, d, vports)
		if err != nil {
			return out, fmt.Errorf("building topology %q: %w", d.Name(), err)
		}
		glog.Infof("Built topology %q: %d BGP peers, %d network groups", t.Name, len(t.BGPPeers), len(t.NetworkGroups))
		out = append(out, *t)
	}
	return out, nil
}

func buildDevice(ctx context.Context, p Protocols, d gosnappi.Device, vports map[string]ixnet.Href) (*Topology, error) {
	eth := d.Ethernets().Items()[0]
	vport, ok := vports[eth.Connection().PortName()]
	if !ok {
		return nil, configError("build "+d.Name(), "port %q has no virtual port", eth.Connection().PortName())
	}
	t := &Topology{Name: d.Name()}
	var err error
	if t.Topology, err = p.CreateTopology(ctx, d.Name(), []ixnet.Href{vport}); err != nil {
		return nil, err
	}
	if t.DeviceGroup, err = p.CreateDeviceGroup(ctx, t.Topology, ixnet.DeviceGroupConfig{Name: d.Name() + ".DG", Multiplier: 1}); err != nil {
		return nil, err
	}

	ethCfg := ixnet.EthernetConfig{
		Name: eth.Name(),
		MAC:  ixnet.Counter{Start: eth.Mac(), Step: macStep},
	}
	if vlans := eth.Vlans().Items(); len(vlans) == 1 {
		ethCfg.VLAN = &ixnet.Counter{Start: strconv.Itoa(int(vlans[0].Id())), Step: "0"}
	}
	if t.Ethernet, err = p.CreateEthernet(ctx, t.DeviceGroup, ethCfg); err != nil {
		return nil, err
	}

	ip := eth.Ipv4Addresses().Items()[0]
	t.IPv4, err = p.CreateIPv4(ctx, t.Ethernet, ixnet.IPv4Config{
		Name:           ip.Name(),
		Address:        ixnet.Counter{Start: ip.Address(), Step: ipv4Step},
		Gateway:        ixnet.Counter{Start: ip.Gateway(), Step: noStep},
		Prefix:         int(ip.Prefix()),
		ResolveGateway: true,
	})
	if err != nil {
		return nil, err
	}

	if !d.HasBgp() {
		return t, nil
	}
	for _, intf := range d.Bgp().Ipv4Interfaces().Items() {
		for _, peer := range intf.Peers().Items() {
			bgp, err := p.ConfigBGP(ctx, t.IPv4, bgpConfig(peer))
			if err != nil {
				return nil, err
			}
			t.BGPPeers = append(t.BGPPeers, bgp)
			if err := buildRoutes(ctx, p, t, peer); err != nil {
				return nil, err
			}
		}
	}
	return t, nil
}

func bgpConfig(peer gosnappi.BgpV4Peer) ixnet.BGPConfig {
	typ := ixnet.BGPInternal
	if peer.AsType() == gosnappi.BgpV4PeerAsType.EBGP {
		typ = ixnet.BGPExternal
	}
	gr := peer.GracefulRestart()
	c := ixnet.BGPConfig{
		Name:                  peer.Name(),
		Enable:                true,
		HoldTimer:             int(peer.Advanced().HoldTimeInterval()),
		DUTIP:                 ixnet.Counter{Start: peer.PeerAddress(), Step: noStep},
		EnableGracefulRestart: gr.EnableGr(),
		RestartTime:           int(gr.RestartTime()),
		StaleTime:             int(gr.StaleTime()),
		Type:                  typ,
		BGPIDSameAsRouterID:   true,
	}
	if peer.AsNumberWidth() == gosnappi.BgpV4PeerAsNumberWidth.TWO {
		c.LocalAS2Bytes = int(peer.AsNumber())
	} else {
		c.Enable4ByteAS = true
		c.LocalAS4Bytes = int64(peer.AsNumber())
	}
	return c
}

// buildRoutes creates one network group per address block of the peer's
// route ranges. The NGPF network group lives in the device group, not under
// the peer.
func buildRoutes(ctx context.Context, p Protocols, t *Topology, peer gosnappi.BgpV4Peer) error {
	for _, rr := range peer.V4Routes().Items() {
		addrs := rr.Addresses().Items()
		for i, a := range addrs {
			name := rr.Name()
			if len(addrs) > 1 {
				name = fmt.Sprintf("%s-%d", rr.Name(), i+1)
			}
			step, err := iputil.PrefixStep(int(a.Prefix()), int(a.Step()))
			if err != nil {
				return configError("build route range "+name, "%v", err)
			}
			group, pool, err := p.ConfigNetworkGroup(ctx, t.DeviceGroup, ixnet.NetworkGroupConfig{
				Name:           name,
				Multiplier:     int(a.Count()),
				NetworkAddress: ixnet.Counter{Start: a.Address(), Step: step},
				PrefixLength:   int(a.Prefix()),
			})
			if err != nil {
				return err
			}
			t.NetworkGroups = append(t.NetworkGroups, group)
			t.PrefixPools = append(t.PrefixPools, pool)
		}
	}
	return nil
}

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

package ixnet

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"strings"
	"time"

	"github.com/golang/glog"
)

// Pattern is a value for an NGPF multivalue attribute.
type Pattern interface {
	apply(ctx context.Context, s *Session, multivalue Href) error
}

// Counter is a multivalue that starts at Start and moves by Step for each
// device, e.g. MAC, IP or VLAN sequences.
type Counter struct {
	Start string `json:"start"`
	Step  string `json:"step"`
	// Direction is "increment" or "decrement"; empty means increment.
	Direction string `json:"direction"`
}

func (c Counter) apply(ctx context.Context, s *Session, mv Href) error {
	if c.Direction == "" {
		c.Direction = "increment"
	}
	return s.patch(ctx, mv.Join("counter"), c)
}

// Single is a multivalue with the same value for every device.
type Single struct {
	Value any `json:"value"`
}

func (v Single) apply(ctx context.Context, s *Session, mv Href) error {
	return s.patch(ctx, mv.Join("singleValue"), v)
}

// setMultivalues sets the given multivalue attributes of obj. Attributes
// are applied in name order.
func (s *Session) setMultivalues(ctx context.Context, obj Href, attrs map[string]Pattern) error {
	var fields map[string]any
	if err := s.get(ctx, obj, &fields); err != nil {
		return err
	}
	for _, name := range slices.Sorted(maps.Keys(attrs)) {
		mv, ok := fields[name].(string)
		if !ok || !strings.Contains(mv, "/multivalue/") {
			return newError(KindOperation, "configure "+string(obj), "attribute %q is not a multivalue", name)
		}
		if err := attrs[name].apply(ctx, s, Href(mv)); err != nil {
			return fmt.Errorf("setting %s.%s: %w", obj, name, err)
		}
	}
	return nil
}

// CreateTopology creates a topology bound to vports.
func (s *Session) CreateTopology(ctx context.Context, name string, vports []Href) (Href, error) {
	glog.Infof("Creating topology %q on %v", name, vports)
	return s.create(ctx, s.root.Join("topology"), map[string]any{"name": name, "vports": vports})
}

// DeviceGroupConfig describes an NGPF device group.
type DeviceGroupConfig struct {
	Name       string
	Multiplier int
}

// CreateDeviceGroup creates a device group in topology.
func (s *Session) CreateDeviceGroup(ctx context.Context, topology Href, cfg DeviceGroupConfig) (Href, error) {
	if cfg.Multiplier < 1 {
		cfg.Multiplier = 1
	}
	glog.Infof("Creating device group %q (multiplier %d) in %s", cfg.Name, cfg.Multiplier, topology)
	return s.create(ctx, topology.Join("deviceGroup"), map[string]any{"name": cfg.Name, "multiplier": cfg.Multiplier})
}

// EthernetConfig describes an NGPF Ethernet stack.
type EthernetConfig struct {
	Name string
	MAC  Counter
	// VLAN is nil for untagged interfaces.
	VLAN *Counter
}

// CreateEthernet creates an Ethernet stack in deviceGroup.
func (s *Session) CreateEthernet(ctx context.Context, deviceGroup Href, cfg EthernetConfig) (Href, error) {
	glog.Infof("Creating ethernet %q in %s", cfg.Name, deviceGroup)
	eth, err := s.create(ctx, deviceGroup.Join("ethernet"), map[string]any{"name": cfg.Name})
	if err != nil {
		return "", err
	}
	attrs := map[string]Pattern{"mac": cfg.MAC}
	if cfg.VLAN != nil {
		attrs["enableVlans"] = Single{Value: true}
	}
	if err := s.setMultivalues(ctx, eth, attrs); err != nil {
		return "", err
	}
	if cfg.VLAN != nil {
		if err := s.setMultivalues(ctx, eth.Join("vlan", "1"), map[string]Pattern{"vlanId": *cfg.VLAN}); err != nil {
			return "", err
		}
	}
	return eth, nil
}

// IPv4Config describes an NGPF IPv4 stack.
type IPv4Config struct {
	Name           string
	Address        Counter
	Gateway        Counter
	Prefix         int
	ResolveGateway bool
}

// CreateIPv4 creates an IPv4 stack on ethernet.
func (s *Session) CreateIPv4(ctx context.Context, ethernet Href, cfg IPv4Config) (Href, error) {
	glog.Infof("Creating IPv4 %q (%s/%d gw %s) on %s", cfg.Name, cfg.Address.Start, cfg.Prefix, cfg.Gateway.Start, ethernet)
	ip, err := s.create(ctx, ethernet.Join("ipv4"), map[string]any{"name": cfg.Name})
	if err != nil {
		return "", err
	}
	return ip, s.setMultivalues(ctx, ip, map[string]Pattern{
		"address":        cfg.Address,
		"gatewayIp":      cfg.Gateway,
		"prefix":         Single{Value: cfg.Prefix},
		"resolveGateway": Single{Value: cfg.ResolveGateway},
	})
}

// BGP session types.
const (
	BGPInternal = "internal"
	BGPExternal = "external"
)

// BGPConfig describes an NGPF BGP IPv4 peer.
type BGPConfig struct {
	Name          string
	Enable        bool
	HoldTimer     int
	DUTIP         Counter
	LocalAS2Bytes int
	// Enable4ByteAS selects LocalAS4Bytes instead of LocalAS2Bytes.
	Enable4ByteAS         bool
	LocalAS4Bytes         int64
	EnableGracefulRestart bool
	RestartTime           int
	StaleTime             int
	// Type is BGPInternal or BGPExternal.
	Type                string
	BGPIDSameAsRouterID bool
	Flap                bool
}

// ConfigBGP creates a BGP IPv4 peer on ipv4.
func (s *Session) ConfigBGP(ctx context.Context, ipv4 Href, cfg BGPConfig) (Href, error) {
	if cfg.Type != BGPInternal && cfg.Type != BGPExternal {
		return "", newError(KindConfig, "config bgp "+cfg.Name, "unknown BGP type %q", cfg.Type)
	}
	as := int64(cfg.LocalAS2Bytes)
	if cfg.Enable4ByteAS {
		as = cfg.LocalAS4Bytes
	}
	glog.Infof("Creating BGP peer %q (%s, AS %d, DUT %s) on %s", cfg.Name, cfg.Type, as, cfg.DUTIP.Start, ipv4)
	bgp, err := s.create(ctx, ipv4.Join("bgpIpv4Peer"), map[string]any{"name": cfg.Name})
	if err != nil {
		return "", err
	}
	if err := s.patch(ctx, bgp, map[string]any{"enableBgpIdSameasRouterId": cfg.BGPIDSameAsRouterID}); err != nil {
		return "", err
	}
	mv := map[string]Pattern{
		"active":                Single{Value: cfg.Enable},
		"holdTimer":             Single{Value: cfg.HoldTimer},
		"dutIp":                 cfg.DUTIP,
		"enableGracefulRestart": Single{Value: cfg.EnableGracefulRestart},
		"restartTime":           Single{Value: cfg.RestartTime},
		"staleTime":             Single{Value: cfg.StaleTime},
		"type":                  Single{Value: cfg.Type},
		"flap":                  Single{Value: cfg.Flap},
	}
	if cfg.Enable4ByteAS {
		mv["enable4ByteAs"] = Single{Value: true}
		mv["localAs4Bytes"] = Single{Value: cfg.LocalAS4Bytes}
	} else {
		mv["localAs2Bytes"] = Single{Value: cfg.LocalAS2Bytes}
	}
	return bgp, s.setMultivalues(ctx, bgp, mv)
}

// NetworkGroupConfig describes an NGPF network group with one IPv4 prefix
// pool.
type NetworkGroupConfig struct {
	Name           string
	Multiplier     int
	NetworkAddress Counter
	PrefixLength   int
}

// ConfigNetworkGroup creates a network group behind deviceGroup and returns
// the handles of the group and of its prefix pool.
func (s *Session) ConfigNetworkGroup(ctx context.Context, deviceGroup Href, cfg NetworkGroupConfig) (group, pool Href, err error) {
	if cfg.Multiplier < 1 {
		cfg.Multiplier = 1
	}
	glog.Infof("Creating network group %q (%d x %s/%d) in %s", cfg.Name, cfg.Multiplier, cfg.NetworkAddress.Start, cfg.PrefixLength, deviceGroup)
	group, err = s.create(ctx, deviceGroup.Join("networkGroup"), map[string]any{"name": cfg.Name, "multiplier": cfg.Multiplier})
	if err != nil {
		return "", "", err
	}
	pool, err = s.create(ctx, group.Join("ipv4PrefixPools"), struct{}{})
	if err != nil {
		return "", "", err
	}
	err = s.setMultivalues(ctx, pool, map[string]Pattern{
		"networkAddress": cfg.NetworkAddress,
		"prefixLength":   Single{Value: cfg.PrefixLength},
	})
	if err != nil {
		return "", "", err
	}
	return group, pool, nil
}

// StartAllProtocols starts every protocol in the session.
func (s *Session) StartAllProtocols(ctx context.Context) error {
	glog.Info("Starting all protocols")
	_, err := s.operation(ctx, s.root.Join("operations", "startallprotocols"), map[string]string{"arg1": "sync"})
	return err
}

// StopAllProtocols stops every protocol in the session.
func (s *Session) StopAllProtocols(ctx context.Context) error {
	glog.Info("Stopping all protocols")
	_, err := s.operation(ctx, s.root.Join("operations", "stopallprotocols"), map[string]string{"arg1": "sync"})
	return err
}

type protocolObject struct {
	Name          string   `json:"name"`
	SessionStatus []string `json:"sessionStatus"`
}

// VerifyProtocolSessions polls the session status of every protocol in
// protocols until all of their sessions are up.
func (s *Session) VerifyProtocolSessions(ctx context.Context, protocols []Href, timeout time.Duration) error {
	if len(protocols) == 0 {
		return nil
	}
	return s.waitFor(ctx, fmt.Sprintf("%d protocol sessions up", len(protocols)), timeout, func() (bool, error) {
		allUp := true
		for _, href := range protocols {
			var p protocolObject
			if err := s.get(ctx, href, &p); err != nil {
				return false, err
			}
			up := sessionsUp(p.SessionStatus)
			if !up {
				glog.V(1).Infof("%s (%s) session status %v", p.Name, href, p.SessionStatus)
				allUp = false
			}
		}
		return allUp, nil
	})
}

func sessionsUp(status []string) bool {
	if len(status) == 0 {
		return false
	}
	for _, st := range status {
		if st != "up" {
			return false
		}
	}
	return true
}

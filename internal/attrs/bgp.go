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

package attrs

import (
	"fmt"

	"github.com/open-traffic-generator/snappi/gosnappi"
)

// BGPGracefulRestartAttrs defines attributes for BGP Graceful Restart.
type BGPGracefulRestartAttrs struct {
	Enabled     bool
	RestartTime uint32
	StaleTime   uint32
}

// BGPPeerAttrs defines attributes for a BGP peer.
type BGPPeerAttrs struct {
	Name            string
	PeerAddress     string
	ASNumber        uint32
	ASType          gosnappi.BgpV4PeerAsTypeEnum
	RouterID        string
	GracefulRestart *BGPGracefulRestartAttrs
	HoldTime        uint32
}

// BGPPeerOption is a function to set BGPPeerAttrs options.
type BGPPeerOption func(*BGPPeerAttrs)

// DefaultBGPPeerAttrs returns default BGP peer attributes: an IBGP peer
// with a 90 second hold time and graceful restart disabled.
func DefaultBGPPeerAttrs() *BGPPeerAttrs {
	return &BGPPeerAttrs{
		ASType: gosnappi.BgpV4PeerAsType.IBGP,
		GracefulRestart: &BGPGracefulRestartAttrs{
			RestartTime: 45,
		},
		HoldTime: 90,
	}
}

// WithBGPName sets the BGP peer name.
func WithBGPName(name string) BGPPeerOption {
	return func(attrs *BGPPeerAttrs) {
		attrs.Name = name
	}
}

// WithBGPPeerAddress sets the BGP peer address.
func WithBGPPeerAddress(addr string) BGPPeerOption {
	return func(attrs *BGPPeerAttrs) {
		attrs.PeerAddress = addr
	}
}

// WithBGPASNumber sets the BGP AS number.
func WithBGPASNumber(as uint32) BGPPeerOption {
	return func(attrs *BGPPeerAttrs) {
		attrs.ASNumber = as
	}
}

// WithBGPEBGP sets the BGP session type to EBGP.
func WithBGPEBGP() BGPPeerOption {
	return func(attrs *BGPPeerAttrs) {
		attrs.ASType = gosnappi.BgpV4PeerAsType.EBGP
	}
}

// WithBGPRouterID sets the BGP Router ID.
func WithBGPRouterID(routerID string) BGPPeerOption {
	return func(attrs *BGPPeerAttrs) {
		attrs.RouterID = routerID
	}
}

// WithBGPGR enables Graceful Restart with the given timers.
func WithBGPGR(restartTime, staleTime uint32) BGPPeerOption {
	return func(attrs *BGPPeerAttrs) {
		attrs.GracefulRestart = &BGPGracefulRestartAttrs{Enabled: true, RestartTime: restartTime, StaleTime: staleTime}
	}
}

// WithBGPHoldTime sets the BGP hold time.
func WithBGPHoldTime(holdTime uint32) BGPPeerOption {
	return func(attrs *BGPPeerAttrs) {
		attrs.HoldTime = holdTime
	}
}

// AddBGPV4Peer configures a BGPv4 peer with a two byte AS number on the
// IPv4 interface intfName of dev.
func AddBGPV4Peer(dev gosnappi.Device, intfName string, opts ...BGPPeerOption) gosnappi.BgpV4Peer {
	attrs := DefaultBGPPeerAttrs()
	for _, opt := range opts {
		opt(attrs)
	}

	bgp := dev.Bgp()
	if attrs.RouterID != "" {
		bgp.SetRouterId(attrs.RouterID)
	}

	var bgp4Intf gosnappi.BgpV4Interface
	for _, item := range bgp.Ipv4Interfaces().Items() {
		if item.Ipv4Name() == intfName {
			bgp4Intf = item
			break
		}
	}
	if bgp4Intf == nil {
		bgp4Intf = bgp.Ipv4Interfaces().Add().SetIpv4Name(intfName)
	}

	bgp4Peer := bgp4Intf.Peers().Add()
	peerName := attrs.Name
	if peerName == "" {
		peerName = fmt.Sprintf("%s.%s.BGP4.peer%d", dev.Name(), intfName, len(bgp4Intf.Peers().Items()))
	}
	bgp4Peer.SetName(peerName)
	if attrs.PeerAddress != "" {
		bgp4Peer.SetPeerAddress(attrs.PeerAddress)
	}
	bgp4Peer.SetAsNumber(attrs.ASNumber)
	bgp4Peer.SetAsType(attrs.ASType)
	bgp4Peer.SetAsNumberWidth(gosnappi.BgpV4PeerAsNumberWidth.TWO)

	if attrs.GracefulRestart != nil {
		gr := bgp4Peer.GracefulRestart().SetEnableGr(attrs.GracefulRestart.Enabled)
		if attrs.GracefulRestart.RestartTime > 0 {
			gr.SetRestartTime(attrs.GracefulRestart.RestartTime)
		}
		if attrs.GracefulRestart.StaleTime > 0 {
			gr.SetStaleTime(attrs.GracefulRestart.StaleTime)
		}
	}
	if attrs.HoldTime > 0 {
		bgp4Peer.Advanced().SetHoldTimeInterval(attrs.HoldTime)
	}
	return bgp4Peer
}

// RouteAttrs describes a range of IPv4 routes advertised by a peer.
type RouteAttrs struct {
	Name    string
	Address string
	Prefix  uint32
	Count   uint32
	Step    uint32
}

// AddV4Routes adds a route range to peer.
func AddV4Routes(peer gosnappi.BgpV4Peer, r RouteAttrs) gosnappi.BgpV4RouteRange {
	rr := peer.V4Routes().Add().SetName(r.Name)
	addr := rr.Addresses().Add().SetAddress(r.Address).SetPrefix(r.Prefix)
	if r.Count > 0 {
		addr.SetCount(r.Count)
	}
	if r.Step > 0 {
		addr.SetStep(r.Step)
	}
	return rr
}

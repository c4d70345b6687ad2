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

// Package attrs bundles the attributes of one back-to-back test endpoint
// and renders them into an OTG configuration: a port, a device with one
// Ethernet interface and one IPv4 address, and optionally a BGPv4 peer with
// route ranges.
package attrs

import (
	"fmt"

	"github.com/open-traffic-generator/snappi/gosnappi"
)

// Attributes bundles the interface attributes of one endpoint. Name is
// used as the device name and as the NGPF topology name.
type Attributes struct {
	Name     string
	PortName string // Defaults to Name + ".Port".
	Location string // Port location, "chassis;card;port".
	EthName  string // Defaults to Name + ".Eth".
	MAC      string
	VLAN     uint32 // Zero leaves the interface untagged.
	IPv4Name string // Defaults to Name + ".IPv4".
	IPv4     string
	IPv4Len  uint8 // Prefix length for IPv4.
}

// IPv4CIDR constructs the IPv4 CIDR notation with the given prefix
// length, e.g. "192.0.2.1/30".
func (a *Attributes) IPv4CIDR() string {
	return fmt.Sprintf("%s/%d", a.IPv4, a.IPv4Len)
}

func orDefault(v, def string) string {
	if v != "" {
		return v
	}
	return def
}

// Port returns the OTG port name of the endpoint.
func (a *Attributes) Port() string { return orDefault(a.PortName, a.Name+".Port") }

// Eth returns the OTG Ethernet name of the endpoint.
func (a *Attributes) Eth() string { return orDefault(a.EthName, a.Name+".Eth") }

// IPv4Intf returns the OTG IPv4 interface name of the endpoint.
func (a *Attributes) IPv4Intf() string { return orDefault(a.IPv4Name, a.Name+".IPv4") }

// AddToOTG adds a port and a device with these attributes to cfg. The
// gateway of the IPv4 address is peer's address.
func (a *Attributes) AddToOTG(cfg gosnappi.Config, peer *Attributes) gosnappi.Device {
	port := cfg.Ports().Add().SetName(a.Port())
	if a.Location != "" {
		port.SetLocation(a.Location)
	}
	dev := cfg.Devices().Add().SetName(a.Name)
	eth := dev.Ethernets().Add().SetName(a.Eth())
	eth.Connection().SetPortName(port.Name())
	if a.MAC != "" {
		eth.SetMac(a.MAC)
	}
	if a.VLAN != 0 {
		eth.Vlans().Add().SetName(a.Eth() + ".Vlan").SetId(a.VLAN)
	}
	if a.IPv4 != "" {
		ip := eth.Ipv4Addresses().Add().SetName(a.IPv4Intf())
		ip.SetAddress(a.IPv4).SetPrefix(uint32(a.IPv4Len))
		if peer != nil && peer.IPv4 != "" {
			ip.SetGateway(peer.IPv4)
		}
	}
	return dev
}

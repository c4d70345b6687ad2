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

// Package iputil converts between IPv4 addresses, prefixes and the address
// form steps that NGPF counters expect.
package iputil

import (
	"encoding/binary"
	"fmt"
	"net"
)

// GenerateIPs creates list of n IPs using ipBlock
func GenerateIPs(ipBlock string, n int) []string {
	var entries []string
	_, netCIDR, err := net.ParseCIDR(ipBlock)
	if err != nil || netCIDR.IP.To4() == nil {
		return entries
	}
	netMask := binary.BigEndian.Uint32(netCIDR.Mask)
	firstIP := binary.BigEndian.Uint32(netCIDR.IP.To4())
	lastIP := (firstIP & netMask) | (netMask ^ 0xffffffff)

	for i := firstIP; i <= lastIP && n > 0; i++ {
		entries = append(entries, intToIP(i).String())
		if i == lastIP {
			break
		}
		n--
	}
	return entries
}

func ipToInt(ip net.IP) uint32 {
	return binary.BigEndian.Uint32(ip.To4())
}

func intToIP(n uint32) net.IP {
	return net.IPv4(byte(n>>24), byte(n>>16), byte(n>>8), byte(n))
}

func parseIPv4(s, what string) (net.IP, error) {
	ip := net.ParseIP(s).To4()
	if ip == nil {
		return nil, fmt.Errorf("invalid %s IPv4 address %q", what, s)
	}
	return ip, nil
}

// GenerateIPsWithStep returns count addresses starting at startIP, each
// stepIP apart.
func GenerateIPsWithStep(startIP string, count int, stepIP string) ([]string, error) {
	ip, err := parseIPv4(startIP, "start")
	if err != nil {
		return nil, err
	}
	step, err := parseIPv4(stepIP, "step")
	if err != nil {
		return nil, err
	}

	var ips []string
	ipInt := ipToInt(ip)
	stepInt := ipToInt(step)
	for i := range count {
		ips = append(ips, intToIP(ipInt+uint32(i)*stepInt).String())
	}
	return ips, nil
}

// PrefixStep returns the address form of moving step prefixes of length
// prefixLen, e.g. "0.0.1.0" for step 1 of a /24. It is the counter step of
// an NGPF prefix pool.
func PrefixStep(prefixLen, step int) (string, error) {
	if prefixLen < 1 || prefixLen > 32 {
		return "", fmt.Errorf("invalid IPv4 prefix length %d", prefixLen)
	}
	if step < 0 {
		return "", fmt.Errorf("invalid prefix step %d", step)
	}
	v := uint64(step) << (32 - prefixLen)
	if v > 0xffffffff {
		return "", fmt.Errorf("step %d of /%d prefixes exceeds the IPv4 space", step, prefixLen)
	}
	return intToIP(uint32(v)).String(), nil
}

// LastPrefix returns the last of count prefixes of length prefixLen that
// start at startIP and are step prefixes apart. It fails when the range
// runs past 255.255.255.255.
func LastPrefix(startIP string, prefixLen, count, step int) (string, error) {
	ip, err := parseIPv4(startIP, "start")
	if err != nil {
		return "", err
	}
	if count < 1 {
		return "", fmt.Errorf("invalid prefix count %d", count)
	}
	stepIP, err := PrefixStep(prefixLen, step)
	if err != nil {
		return "", err
	}
	last := uint64(ipToInt(ip)) + uint64(count-1)*uint64(ipToInt(net.ParseIP(stepIP)))
	if last > 0xffffffff {
		return "", fmt.Errorf("%d prefixes from %s/%d step %d exceed the IPv4 space", count, startIP, prefixLen, step)
	}
	return fmt.Sprintf("%s/%d", intToIP(uint32(last)), prefixLen), nil
}

// MaskLen validates an IPv4 prefix length given as an unsigned value, as
// device configurations carry it.
func MaskLen(prefix uint32) (int, error) {
	if prefix < 1 || prefix > 32 {
		return 0, fmt.Errorf("invalid IPv4 prefix length %d", prefix)
	}
	return int(prefix), nil
}

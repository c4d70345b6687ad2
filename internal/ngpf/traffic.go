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

package ngpf

import (
	"context"
	"fmt"

	"github.com/golang/glog"
	"github.com/open-traffic-generator/snappi/gosnappi"
	"github.com/openconfig/ngpfbgp/internal/ixnet"
)

// TrafficOptions are the traffic item settings OTG flows do not carry.
type TrafficOptions struct {
	// BiDirectional makes each traffic item also send from rx to tx.
	BiDirectional bool
	TrackBy       []string
	// PortDistribution and StreamDistribution spread the frame rate;
	// empty leaves the server default.
	PortDistribution   string
	StreamDistribution string
}

// DefaultTrafficOptions returns bidirectional traffic tracked by flow group
// and VLAN id.
func DefaultTrafficOptions() TrafficOptions {
	return TrafficOptions{
		BiDirectional:      true,
		TrackBy:            []string{"flowGroup0", "vlanVlanId0"},
		PortDistribution:   ixnet.DistributeApplyToAll,
		StreamDistribution: ixnet.DistributeSplitEvenly,
	}
}

// Continuous reports whether any flow of cfg transmits until stopped.
func Continuous(cfg gosnappi.Config) bool {
	for _, f := range cfg.Flows().Items() {
		if f.HasDuration() && f.Duration().Choice() == gosnappi.FlowDurationChoice.CONTINUOUS {
			return true
		}
	}
	return false
}

// ExpectedTrafficState returns the traffic states in which the statistics
// of cfg can be read: started while a continuous flow runs, stopped once
// every flow has sent its frames.
func ExpectedTrafficState(cfg gosnappi.Config) []string {
	if Continuous(cfg) {
		return []string{ixnet.TrafficStarted}
	}
	return []string{ixnet.TrafficStopped, ixnet.TrafficStoppedWaitingForStats}
}

// configElement derives the transmission settings of f.
func configElement(f gosnappi.Flow) (ixnet.ConfigElement, error) {
	var el ixnet.ConfigElement
	switch d := f.Duration(); d.Choice() {
	case gosnappi.FlowDurationChoice.FIXED_PACKETS:
		el.TransmissionType = ixnet.TransmissionFixedFrameCount
		el.FrameCount = int(d.FixedPackets().Packets())
	case gosnappi.FlowDurationChoice.CONTINUOUS:
		el.TransmissionType = ixnet.TransmissionContinuous
	default:
		return el, fmt.Errorf("unsupported duration %q", d.Choice())
	}
	switch r := f.Rate(); r.Choice() {
	case gosnappi.FlowRateChoice.PERCENTAGE:
		el.FrameRateType = ixnet.RatePercentLineRate
		el.FrameRate = float64(r.Percentage())
	case gosnappi.FlowRateChoice.PPS:
		el.FrameRateType = ixnet.RateFramesPerSecond
		el.FrameRate = float64(r.Pps())
	default:
		return el, fmt.Errorf("unsupported rate %q", r.Choice())
	}
	if s := f.Size(); s.Choice() == gosnappi.FlowSizeChoice.FIXED {
		el.FrameSize = int(s.Fixed())
	} else {
		return el, fmt.Errorf("unsupported frame size %q", s.Choice())
	}
	return el, nil
}

func resolve(names []string, owners map[string]string, byDevice map[string]ixnet.Href) ([]ixnet.Href, error) {
	var out []ixnet.Href
	seen := map[ixnet.Href]bool{}
	for _, n := range names {
		href, ok := byDevice[owners[n]]
		if !ok {
			return nil, fmt.Errorf("endpoint %q has no topology", n)
		}
		if !seen[href] {
			seen[href] = true
			out = append(out, href)
		}
	}
	return out, nil
}

// BuildTraffic creates one traffic item per flow of cfg. Flow endpoints
// resolve to the topology of the device they name. cfg must have passed
// Validate.
func BuildTraffic(ctx context.Context, tr Traffic, cfg gosnappi.Config, topologies []Topology, opts TrafficOptions) ([]ixnet.TrafficItemHandles, error) {
	byDevice := map[string]ixnet.Href{}
	for _, t := range topologies {
		byDevice[t.Name] = t.Topology
	}
	owners := endpointOwners(cfg)

	var out []ixnet.TrafficItemHandles
	for _, f := range cfg.Flows().Items() {
		op := "build traffic item " + f.Name()
		src, err := resolve(f.TxRx().Device().TxNames(), owners, byDevice)
		if err != nil {
			return out, configError(op, "%v", err)
		}
		dst, err := resolve(f.TxRx().Device().RxNames(), owners, byDevice)
		if err != nil {
			return out, configError(op, "%v", err)
		}
		el, err := configElement(f)
		if err != nil {
			return out, configError(op, "%v", err)
		}
		el.PortDistribution = opts.PortDistribution
		el.StreamDistribution = opts.StreamDistribution

		item := ixnet.TrafficItem{
			Name:          f.Name(),
			TrafficType:   "ipv4",
			BiDirectional: opts.BiDirectional,
			SrcDestMesh:   ixnet.MeshOneToOne,
			RouteMesh:     ixnet.RouteMeshOneToOne,
			TrackBy:       opts.TrackBy,
		}
		endpoints := []ixnet.EndpointSet{{Name: "Flow-Group-1", Sources: src, Destinations: dst}}
		h, err := tr.ConfigTrafficItem(ctx, item, endpoints, []ixnet.ConfigElement{el})
		if err != nil {
			return out, fmt.Errorf("building traffic item %q: %w", f.Name(), err)
		}
		glog.Infof("Built traffic item %q: %v -> %v", f.Name(), src, dst)
		out = append(out, *h)
	}
	return out, nil
}

// TrafficItems returns the traffic item handles of items.
func TrafficItems(items []ixnet.TrafficItemHandles) []ixnet.Href {
	out := make([]ixnet.Href, 0, len(items))
	for _, h := range items {
		out = append(out, h.TrafficItem)
	}
	return out
}

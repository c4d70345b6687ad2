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
	"slices"
	"strconv"
	"time"

	"github.com/golang/glog"
)

// Traffic item defaults used for protocol endpoint traffic.
const (
	MeshOneToOne      = "one-to-one"
	RouteMeshOneToOne = "oneToOne"

	TransmissionFixedFrameCount = "fixedFrameCount"
	TransmissionContinuous      = "continuous"

	RatePercentLineRate   = "percentLineRate"
	RateFramesPerSecond   = "framesPerSecond"
	DistributeApplyToAll  = "applyRateToAll"
	DistributeSplitEvenly = "splitRateEvenly"
)

// Traffic states reported by the API server.
const (
	TrafficStarted                = "started"
	TrafficStopped                = "stopped"
	TrafficStoppedWaitingForStats = "stoppedWaitingForStats"
	TrafficUnapplied              = "unapplied"
)

// TrafficItem declares a traffic item.
type TrafficItem struct {
	Name              string   `json:"name"`
	TrafficType       string   `json:"trafficType"`
	BiDirectional     bool     `json:"biDirectional"`
	SrcDestMesh       string   `json:"srcDestMesh"`
	RouteMesh         string   `json:"routeMesh"`
	AllowSelfDestined bool     `json:"allowSelfDestined"`
	TrackBy           []string `json:"-"`
}

// EndpointSet is one source/destination pairing of a traffic item. The
// endpoints are NGPF handles such as topologies or device groups.
type EndpointSet struct {
	Name         string `json:"name"`
	Sources      []Href `json:"sources"`
	Destinations []Href `json:"destinations"`
}

// ConfigElement sets the transmission parameters of one endpoint set.
type ConfigElement struct {
	TransmissionType   string
	FrameCount         int
	FrameRate          float64
	FrameRateType      string
	FrameSize          int
	PortDistribution   string
	StreamDistribution string
}

// TrafficItemHandles are the objects created by ConfigTrafficItem.
type TrafficItemHandles struct {
	TrafficItem    Href
	EndpointSets   []Href
	ConfigElements []Href
}

func (s *Session) trafficHref() Href { return s.root.Join("traffic") }

// ConfigTrafficItem creates a traffic item with one endpoint set per entry
// of endpoints. elements[i], when present, configures the config element
// the server derives from endpoints[i].
func (s *Session) ConfigTrafficItem(ctx context.Context, item TrafficItem, endpoints []EndpointSet, elements []ConfigElement) (*TrafficItemHandles, error) {
	if len(endpoints) == 0 {
		return nil, newError(KindConfig, "config traffic item "+item.Name, "no endpoint sets")
	}
	if len(elements) > len(endpoints) {
		return nil, newError(KindConfig, "config traffic item "+item.Name, "%d config elements for %d endpoint sets", len(elements), len(endpoints))
	}
	glog.Infof("Creating traffic item %q (%s, %s)", item.Name, item.TrafficType, item.SrcDestMesh)
	ti, err := s.create(ctx, s.trafficHref().Join("trafficItem"), item)
	if err != nil {
		return nil, err
	}
	h := &TrafficItemHandles{TrafficItem: ti}
	for _, ep := range endpoints {
		es, err := s.create(ctx, ti.Join("endpointSet"), ep)
		if err != nil {
			return nil, err
		}
		h.EndpointSets = append(h.EndpointSets, es)
	}
	if len(item.TrackBy) > 0 {
		if err := s.patch(ctx, ti.Join("tracking", "1"), map[string]any{"trackBy": item.TrackBy}); err != nil {
			return nil, err
		}
	}
	for i, el := range elements {
		ce := ti.Join("configElement", strconv.Itoa(i+1))
		if err := s.configElement(ctx, ce, el); err != nil {
			return nil, fmt.Errorf("configuring %s: %w", ce, err)
		}
		h.ConfigElements = append(h.ConfigElements, ce)
	}
	return h, nil
}

func (s *Session) configElement(ctx context.Context, ce Href, el ConfigElement) error {
	tc := map[string]any{"type": el.TransmissionType}
	if el.TransmissionType == TransmissionFixedFrameCount {
		tc["frameCount"] = el.FrameCount
	}
	if err := s.patch(ctx, ce.Join("transmissionControl"), tc); err != nil {
		return err
	}
	if el.FrameRateType != "" {
		if err := s.patch(ctx, ce.Join("frameRate"), map[string]any{"type": el.FrameRateType, "rate": el.FrameRate}); err != nil {
			return err
		}
	}
	if el.FrameSize > 0 {
		if err := s.patch(ctx, ce.Join("frameSize"), map[string]any{"type": "fixed", "fixedSize": el.FrameSize}); err != nil {
			return err
		}
	}
	if el.PortDistribution != "" || el.StreamDistribution != "" {
		dist := map[string]any{}
		if el.PortDistribution != "" {
			dist["portDistribution"] = el.PortDistribution
		}
		if el.StreamDistribution != "" {
			dist["streamDistribution"] = el.StreamDistribution
		}
		if err := s.patch(ctx, ce.Join("frameRateDistribution"), dist); err != nil {
			return err
		}
	}
	return nil
}

// RegenerateTrafficItems regenerates the flows of the given traffic items
// on the server.
func (s *Session) RegenerateTrafficItems(ctx context.Context, items []Href) error {
	glog.Infof("Regenerating traffic items %v", items)
	_, err := s.operation(ctx, s.trafficHref().Join("trafficItem", "operations", "generate"), map[string]any{"arg1": items})
	return err
}

// ApplyTraffic pushes the generated traffic to the ports.
func (s *Session) ApplyTraffic(ctx context.Context) error {
	glog.Info("Applying traffic")
	_, err := s.operation(ctx, s.trafficHref().Join("operations", "apply"), map[string]any{"arg1": s.trafficHref()})
	return err
}

// StartTraffic starts transmission of all applied traffic.
func (s *Session) StartTraffic(ctx context.Context) error {
	state, err := s.TrafficState(ctx)
	if err != nil {
		return err
	}
	if state == TrafficUnapplied {
		return newError(KindOperation, "start traffic", "traffic is not applied")
	}
	glog.Info("Starting traffic")
	_, err = s.operation(ctx, s.trafficHref().Join("operations", "start"), map[string]any{"arg1": s.trafficHref()})
	return err
}

// StopTraffic stops transmission of all traffic.
func (s *Session) StopTraffic(ctx context.Context) error {
	glog.Info("Stopping traffic")
	_, err := s.operation(ctx, s.trafficHref().Join("operations", "stop"), map[string]any{"arg1": s.trafficHref()})
	return err
}

// TrafficState returns the current traffic state, e.g. "started".
func (s *Session) TrafficState(ctx context.Context) (string, error) {
	var t struct {
		State string `json:"state"`
	}
	if err := s.get(ctx, s.trafficHref(), &t); err != nil {
		return "", err
	}
	return t.State, nil
}

// CheckTrafficState polls the traffic state until it is one of expected.
func (s *Session) CheckTrafficState(ctx context.Context, expected []string, timeout time.Duration) error {
	return s.waitFor(ctx, fmt.Sprintf("traffic state in %v", expected), timeout, func() (bool, error) {
		state, err := s.TrafficState(ctx)
		if err != nil {
			return false, err
		}
		glog.V(1).Infof("Traffic state %q", state)
		return slices.Contains(expected, state), nil
	})
}

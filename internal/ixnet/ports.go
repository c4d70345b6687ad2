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
	"strconv"
	"time"

	"github.com/golang/glog"
)

type chassisObject struct {
	ID       int    `json:"id"`
	Hostname string `json:"hostname"`
	State    string `json:"state"`
}

type portObject struct {
	Owner string `json:"owner"`
	State string `json:"state"`
}

type vportObject struct {
	ID         int    `json:"id"`
	Name       string `json:"name"`
	AssignedTo string `json:"assignedTo"`
}

func (s *Session) chassisCollection() Href {
	return s.root.Join("availableHardware", "chassis")
}

func (s *Session) findChassis(ctx context.Context, ip string) (Href, bool, error) {
	var all []chassisObject
	if err := s.get(ctx, s.chassisCollection(), &all); err != nil {
		return "", false, err
	}
	for _, c := range all {
		if c.Hostname == ip {
			return s.chassisCollection().Join(strconv.Itoa(c.ID)), true, nil
		}
	}
	return "", false, nil
}

// ConnectChassis adds the chassis at ip to the session hardware, if it is
// not there already, and waits for it to become ready.
func (s *Session) ConnectChassis(ctx context.Context, ip string, timeout time.Duration) error {
	href, ok, err := s.findChassis(ctx, ip)
	if err != nil {
		return err
	}
	if !ok {
		glog.Infof("Connecting to chassis %s", ip)
		if href, err = s.create(ctx, s.chassisCollection(), map[string]string{"hostname": ip}); err != nil {
			return err
		}
	}
	return s.waitFor(ctx, "chassis "+ip+" ready", timeout, func() (bool, error) {
		var c chassisObject
		if err := s.get(ctx, href, &c); err != nil {
			return false, err
		}
		return c.State == "ready", nil
	})
}

// portHref returns the href of the physical port p and of the port
// collection it belongs to.
func (s *Session) portHref(ctx context.Context, p Port) (href, collection Href, err error) {
	chassis, ok, err := s.findChassis(ctx, p.Chassis)
	if err != nil {
		return "", "", err
	}
	if !ok {
		return "", "", newError(KindConfig, "port "+p.Location(), "chassis %s is not connected", p.Chassis)
	}
	collection = chassis.Join("card", strconv.Itoa(p.Card), "port")
	return collection.Join(strconv.Itoa(p.Port)), collection, nil
}

// PortsInUse returns how many of ports are owned by some user, including
// the current one.
func (s *Session) PortsInUse(ctx context.Context, ports []Port) (int, error) {
	inUse := 0
	for _, p := range ports {
		href, _, err := s.portHref(ctx, p)
		if err != nil {
			return 0, err
		}
		var po portObject
		if err := s.get(ctx, href, &po); err != nil {
			return 0, err
		}
		if po.Owner != "" {
			glog.Infof("Port %s is owned by %q", p, po.Owner)
			inUse++
		}
	}
	return inUse, nil
}

func (s *Session) vports(ctx context.Context) ([]vportObject, error) {
	var vps []vportObject
	if err := s.get(ctx, s.root.Join("vport"), &vps); err != nil {
		return nil, err
	}
	return vps, nil
}

func (s *Session) releaseVports(ctx context.Context, hrefs []Href) error {
	if len(hrefs) == 0 {
		return nil
	}
	_, err := s.operation(ctx, s.root.Join("vport", "operations", "releaseport"), map[string]any{"arg1": hrefs})
	return err
}

// ReleasePorts releases the virtual ports assigned to ports. Ports not
// assigned in this session are skipped.
func (s *Session) ReleasePorts(ctx context.Context, ports []Port) error {
	vps, err := s.vports(ctx)
	if err != nil {
		return err
	}
	want := map[string]bool{}
	for _, p := range ports {
		want[p.assignedTo()] = true
	}
	var hrefs []Href
	for _, vp := range vps {
		if want[vp.AssignedTo] {
			hrefs = append(hrefs, s.root.Join("vport", strconv.Itoa(vp.ID)))
		}
	}
	glog.Infof("Releasing ports %v (%d vports)", ports, len(hrefs))
	return s.releaseVports(ctx, hrefs)
}

// ReleaseAllPorts releases every virtual port of the session.
func (s *Session) ReleaseAllPorts(ctx context.Context) error {
	vps, err := s.vports(ctx)
	if err != nil {
		return err
	}
	hrefs := make([]Href, 0, len(vps))
	for _, vp := range vps {
		hrefs = append(hrefs, s.root.Join("vport", strconv.Itoa(vp.ID)))
	}
	glog.Infof("Releasing all %d vports", len(hrefs))
	return s.releaseVports(ctx, hrefs)
}

// ClearPortOwnership takes ownership away from whoever holds ports.
func (s *Session) ClearPortOwnership(ctx context.Context, ports []Port) error {
	for _, p := range ports {
		href, collection, err := s.portHref(ctx, p)
		if err != nil {
			return err
		}
		glog.Infof("Clearing ownership of port %s", p)
		if _, err := s.operation(ctx, collection.Join("operations", "clearownership"), map[string]any{"arg1": []Href{href}}); err != nil {
			return err
		}
	}
	return nil
}

// AssignPorts connects ports to virtual ports and returns the virtual port
// handles in port order. With createVports one new vport is created per
// port; otherwise the session's existing vports are used in order.
func (s *Session) AssignPorts(ctx context.Context, ports []Port, createVports bool) ([]Href, error) {
	var vports []Href
	if createVports {
		for _, p := range ports {
			href, err := s.create(ctx, s.root.Join("vport"), map[string]string{"name": p.Location()})
			if err != nil {
				return nil, err
			}
			vports = append(vports, href)
		}
	} else {
		vps, err := s.vports(ctx)
		if err != nil {
			return nil, err
		}
		if len(vps) < len(ports) {
			return nil, newError(KindConfig, "assign ports", "%d ports but only %d vports in the configuration", len(ports), len(vps))
		}
		for _, vp := range vps[:len(ports)] {
			vports = append(vports, s.root.Join("vport", strconv.Itoa(vp.ID)))
		}
	}

	type portArg struct {
		Chassis string `json:"arg1"`
		Card    string `json:"arg2"`
		Port    string `json:"arg3"`
	}
	args := make([]portArg, 0, len(ports))
	for _, p := range ports {
		args = append(args, portArg{Chassis: p.Chassis, Card: strconv.Itoa(p.Card), Port: strconv.Itoa(p.Port)})
	}
	glog.Infof("Assigning ports %v", ports)
	_, err := s.operation(ctx, s.root.Join("operations", "assignports"), map[string]any{
		"arg1": args,
		"arg2": []string{},
		"arg3": vports,
		"arg4": true,
	})
	if err != nil {
		return nil, fmt.Errorf("assigning ports: %w", err)
	}
	return vports, nil
}

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
	"fmt"
	"path"
	"strconv"
	"strings"
)

// Href is a REST resource locator returned by the API server, for example
// "/api/v1/sessions/1/ixnetwork/topology/1". Hrefs are opaque handles; the
// client never builds one for an object it did not create, except for the
// well-known session roots.
type Href string

// Join appends path elements to h.
func (h Href) Join(elem ...string) Href {
	return Href(path.Join(append([]string{string(h)}, elem...)...))
}

// ID returns the trailing numeric id of h, or 0 when h does not end in one.
func (h Href) ID() int {
	id, err := strconv.Atoi(path.Base(string(h)))
	if err != nil {
		return 0
	}
	return id
}

func (h Href) String() string { return string(h) }

// Port is a physical test port, identified by chassis address, card and
// port number.
type Port struct {
	Chassis string
	Card    int
	Port    int
}

// ParsePort parses a location in the "chassis;card;port" form used by OTG
// port locations. A "/" separated card/port is accepted as well, for
// example "192.0.2.10;1/1".
func ParsePort(location string) (Port, error) {
	parts := strings.Split(location, ";")
	if len(parts) == 2 {
		parts = append(parts[:1], strings.Split(parts[1], "/")...)
	}
	if len(parts) != 3 || parts[0] == "" {
		return Port{}, &Error{Kind: KindConfig, Op: "parse port", Err: fmt.Errorf("location %q is not chassis;card;port", location)}
	}
	card, err := strconv.Atoi(parts[1])
	if err != nil || card < 1 {
		return Port{}, &Error{Kind: KindConfig, Op: "parse port", Err: fmt.Errorf("location %q has invalid card %q", location, parts[1])}
	}
	port, err := strconv.Atoi(parts[2])
	if err != nil || port < 1 {
		return Port{}, &Error{Kind: KindConfig, Op: "parse port", Err: fmt.Errorf("location %q has invalid port %q", location, parts[2])}
	}
	return Port{Chassis: parts[0], Card: card, Port: port}, nil
}

// Location renders p in "chassis;card;port" form.
func (p Port) Location() string {
	return fmt.Sprintf("%s;%d;%d", p.Chassis, p.Card, p.Port)
}

// assignedTo is the form the API server reports in vport.assignedTo.
func (p Port) assignedTo() string {
	return fmt.Sprintf("%s:%d:%d", p.Chassis, p.Card, p.Port)
}

func (p Port) String() string { return p.Location() }

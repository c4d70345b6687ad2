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
	"strings"
)

// ServerKind selects how a session is established with the API server.
type ServerKind int

const (
	// Windows is an IxNetwork GUI or API server with a single fixed session.
	Windows ServerKind = iota
	// WindowsConnectionMgr is a Windows connection manager that hosts one
	// session per client.
	WindowsConnectionMgr
	// Linux is the Linux API server; it authenticates and hosts many
	// sessions.
	Linux
)

var serverKindNames = []string{
	Windows:              "windows",
	WindowsConnectionMgr: "windowsConnectionMgr",
	Linux:                "linux",
}

// ServerKinds lists the accepted command line spellings in order.
func ServerKinds() []string {
	return append([]string(nil), serverKindNames...)
}

func (k ServerKind) String() string {
	if int(k) >= 0 && int(k) < len(serverKindNames) {
		return serverKindNames[k]
	}
	return fmt.Sprintf("ServerKind(%d)", int(k))
}

// ParseServerKind resolves s to a ServerKind. The error names the invalid
// value and the accepted choices.
func ParseServerKind(s string) (ServerKind, error) {
	for i, name := range serverKindNames {
		if s == name {
			return ServerKind(i), nil
		}
	}
	return 0, &Error{
		Kind: KindConfig,
		Op:   "parse server kind",
		Err:  fmt.Errorf("%q is not a known option; choices are %s", s, strings.Join(serverKindNames, ", ")),
	}
}

// OwnsSessions reports whether sessions on this kind of server are created
// by the client and may therefore be deleted by it.
func (k ServerKind) OwnsSessions() bool {
	return k == WindowsConnectionMgr || k == Linux
}

// Secure reports whether the server is reached over HTTPS by default.
func (k ServerKind) Secure() bool {
	return k == Linux
}

// DefaultPort returns the REST port used when none is configured.
func (k ServerKind) DefaultPort() int {
	if k == Linux {
		return 443
	}
	return 11009
}

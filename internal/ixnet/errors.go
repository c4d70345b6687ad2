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
	"errors"
	"fmt"
)

// Kind classifies a failure so callers can decide cleanup without
// inspecting error strings.
type Kind int

const (
	// KindUnknown is any failure not classified below.
	KindUnknown Kind = iota
	// KindConnection is a transport level failure reaching the API server.
	KindConnection
	// KindHTTP is a non-2xx response from the API server.
	KindHTTP
	// KindOperation is an asynchronous operation that finished in error.
	KindOperation
	// KindTimeout is a state that did not converge before its deadline.
	KindTimeout
	// KindOwnership is a port owned by another user.
	KindOwnership
	// KindConfig is invalid input detected before any request is sent.
	KindConfig
)

var kindNames = map[Kind]string{
	KindUnknown:    "unknown",
	KindConnection: "connection",
	KindHTTP:       "http",
	KindOperation:  "operation",
	KindTimeout:    "timeout",
	KindOwnership:  "ownership",
	KindConfig:     "config",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Error is returned by every Session method that talks to the API server.
type Error struct {
	Kind Kind
	// Op names the failed call, e.g. "POST /api/v1/sessions".
	Op string
	// StatusCode is set for KindHTTP.
	StatusCode int
	Err        error
}

func (e *Error) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s: %s error (status %d): %v", e.Op, e.Kind, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s: %s error: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

func newError(kind Kind, op string, format string, args ...any) *Error {
	return &Error{Kind: kind, Op: op, Err: fmt.Errorf(format, args...)}
}

// KindOf returns the Kind of the first *Error in err's chain, or
// KindUnknown.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// IsKind reports whether err carries the given Kind.
func IsKind(err error, k Kind) bool {
	return err != nil && KindOf(err) == k
}

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
	"testing"
)

func TestKindOf(t *testing.T) {
	timeout := &Error{Kind: KindTimeout, Op: "wait for x", Err: errors.New("not reached")}
	cases := []struct {
		desc string
		err  error
		want Kind
	}{
		{desc: "nil", err: nil, want: KindUnknown},
		{desc: "plain", err: errors.New("boom"), want: KindUnknown},
		{desc: "direct", err: timeout, want: KindTimeout},
		{desc: "wrapped", err: fmt.Errorf("starting protocols: %w", timeout), want: KindTimeout},
		{desc: "http", err: &Error{Kind: KindHTTP, StatusCode: 404, Err: errors.New("no")}, want: KindHTTP},
	}
	for _, tc := range cases {
		t.Run(tc.desc, func(t *testing.T) {
			if got := KindOf(tc.err); got != tc.want {
				t.Errorf("KindOf(%v) = %v, want %v", tc.err, got, tc.want)
			}
			if tc.err != nil && tc.want != KindUnknown && !IsKind(tc.err, tc.want) {
				t.Errorf("IsKind(%v, %v) = false, want true", tc.err, tc.want)
			}
		})
	}
	if IsKind(nil, KindUnknown) {
		t.Error("IsKind(nil, KindUnknown) = true, want false")
	}
}

func TestErrorMessage(t *testing.T) {
	cases := []struct {
		err  *Error
		want string
	}{
		{
			err:  &Error{Kind: KindHTTP, Op: "GET /x", StatusCode: 500, Err: errors.New("oops")},
			want: "GET /x: http error (status 500): oops",
		},
		{
			err:  newError(KindOwnership, "check ports", "%d ports in use", 2),
			want: "check ports: ownership error: 2 ports in use",
		},
	}
	for _, tc := range cases {
		if got := tc.err.Error(); got != tc.want {
			t.Errorf("Error() = %q, want %q", got, tc.want)
		}
	}
	if got := Kind(42).String(); got != "Kind(42)" {
		t.Errorf("Kind(42).String() = %q", got)
	}
}

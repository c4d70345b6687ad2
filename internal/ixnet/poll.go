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
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/golang/glog"
)

// WaitForOpts configures WaitFor.
type WaitForOpts struct {
	Condition string
	Interval  time.Duration
	Timeout   time.Duration
}

var errNotYet = errors.New("condition not met")

// WaitFor calls fn at a fixed interval until it reports done, returns an
// error, the timeout elapses or ctx is done. It returns the number of
// attempts made. A timeout is reported as a KindTimeout *Error.
func WaitFor(ctx context.Context, fn func() (bool, error), opts *WaitForOpts) (int, error) {
	if opts == nil {
		opts = &WaitForOpts{Condition: "condition to be true"}
	}
	interval := opts.Interval
	if interval == 0 {
		interval = 500 * time.Millisecond
	}
	timeout := opts.Timeout
	if timeout == 0 {
		timeout = 120 * time.Second
	}

	start := time.Now()
	glog.V(1).Infof("Waiting up to %v for %s", timeout, opts.Condition)
	attempts := 0
	b := backoff.WithContext(backoff.NewConstantBackOff(interval), ctx)
	err := backoff.Retry(func() error {
		attempts++
		done, err := fn()
		if err != nil {
			return backoff.Permanent(err)
		}
		if done {
			return nil
		}
		if time.Since(start) >= timeout {
			return backoff.Permanent(&Error{
				Kind: KindTimeout,
				Op:   "wait for " + opts.Condition,
				Err:  fmt.Errorf("not reached after %v (%d attempts)", timeout, attempts),
			})
		}
		return errNotYet
	}, b)
	switch {
	case err == nil:
		glog.V(1).Infof("Done waiting for %s after %v", opts.Condition, time.Since(start).Round(time.Millisecond))
		return attempts, nil
	case errors.Is(err, context.DeadlineExceeded):
		return attempts, &Error{Kind: KindTimeout, Op: "wait for " + opts.Condition, Err: err}
	case errors.Is(err, context.Canceled):
		return attempts, fmt.Errorf("waiting for %s: %w", opts.Condition, err)
	}
	return attempts, err
}

func (s *Session) waitFor(ctx context.Context, condition string, timeout time.Duration, fn func() (bool, error)) error {
	attempts, err := WaitFor(ctx, fn, &WaitForOpts{
		Condition: condition,
		Interval:  s.opts.PollInterval,
		Timeout:   timeout,
	})
	s.opts.Metrics.ObservePoll(condition, attempts, err)
	return err
}

// operationStatus is the body returned by asynchronous REST operations.
type operationStatus struct {
	ID      string `json:"id"`
	URL     string `json:"url"`
	State   string `json:"state"`
	Message string `json:"message"`
	Result  any    `json:"result"`
}

// operation POSTs an operation request and, when the server answers that it
// is still in progress, polls its status url until it finishes.
func (s *Session) operation(ctx context.Context, href Href, body any) (*operationStatus, error) {
	st := &operationStatus{}
	if err := s.do(ctx, http.MethodPost, href, body, st); err != nil {
		return nil, err
	}
	op := "POST " + string(href)
	poll := st.URL
	err := s.waitFor(ctx, "operation "+string(href), s.opts.OperationTimeout, func() (bool, error) {
		switch strings.ToUpper(st.State) {
		case "", "SUCCESS", "COMPLETED":
			return true, nil
		case "ERROR", "EXCEPTION":
			msg := st.Message
			if msg == "" {
				msg = fmt.Sprint(st.Result)
			}
			return false, newError(KindOperation, op, "operation finished in state %s: %s", st.State, msg)
		}
		if poll == "" {
			return false, newError(KindOperation, op, "operation in state %s has no status url", st.State)
		}
		next := &operationStatus{}
		if err := s.get(ctx, hrefOf(poll), next); err != nil {
			return false, err
		}
		if next.URL == "" {
			next.URL = poll
		}
		st = next
		return false, nil
	})
	if err != nil {
		return nil, err
	}
	return st, nil
}

// hrefOf strips scheme and host from a url the server returned.
func hrefOf(raw string) Href {
	if u, err := url.Parse(raw); err == nil && u.Host != "" {
		return Href(u.RequestURI())
	}
	return Href(raw)
}

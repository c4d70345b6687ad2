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

// Package ixnet is a client for the IxNetwork REST API. It covers the
// session, port, NGPF protocol, traffic and statistics calls needed to run
// a back-to-back protocol test.
//
// All methods block until the server has converged or a timeout expires;
// asynchronous REST operations are polled at a fixed interval.
package ixnet

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/golang/glog"
	"github.com/kr/pretty"
	"github.com/openconfig/ngpfbgp/internal/observability"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const (
	apiRoot       = "/api/v1"
	sessionsHref  = Href(apiRoot + "/sessions")
	authHref      = Href(apiRoot + "/auth/session")
	apiKeyHeader  = "X-Api-Key"
	maxErrorBytes = 512
)

// ConnectOptions describes how to reach and authenticate with the API
// server.
type ConnectOptions struct {
	Kind ServerKind
	// Host is the API server address. A full base URL such as
	// "https://192.0.2.1:443" is accepted as well, in which case Port is
	// ignored.
	Host string
	// Port defaults to Kind.DefaultPort.
	Port int
	// Username and Password authenticate with a Linux API server.
	Username string
	Password string
	// APIKey skips the Linux login when set.
	APIKey string
	// VerifyTLS enables server certificate verification for HTTPS.
	VerifyTLS bool
	// SessionID selects the session on a Windows API server, default 1.
	SessionID int

	// RequestTimeout bounds a single HTTP round trip, default 2 minutes.
	RequestTimeout time.Duration
	// PollInterval is the fixed interval of every convergence poll, default
	// 1 second.
	PollInterval time.Duration
	// OperationTimeout bounds an asynchronous REST operation, default 5
	// minutes.
	OperationTimeout time.Duration

	// DebugTracing logs request and response bodies at verbosity 2.
	DebugTracing bool
	// HTTPClient overrides the client built from the options above.
	HTTPClient *http.Client
	// Metrics receives per request measurements; may be nil.
	Metrics *observability.Collector
}

func (o *ConnectOptions) setDefaults() {
	if o.Port == 0 {
		o.Port = o.Kind.DefaultPort()
	}
	if o.SessionID == 0 {
		o.SessionID = 1
	}
	if o.RequestTimeout == 0 {
		o.RequestTimeout = 2 * time.Minute
	}
	if o.PollInterval == 0 {
		o.PollInterval = time.Second
	}
	if o.OperationTimeout == 0 {
		o.OperationTimeout = 5 * time.Minute
	}
}

func (o *ConnectOptions) baseURL() (string, error) {
	if o.Host == "" {
		return "", &Error{Kind: KindConfig, Op: "connect", Err: fmt.Errorf("no API server host")}
	}
	if strings.Contains(o.Host, "://") {
		u, err := url.Parse(o.Host)
		if err != nil {
			return "", &Error{Kind: KindConfig, Op: "connect", Err: err}
		}
		return strings.TrimSuffix(u.String(), "/"), nil
	}
	scheme := "http"
	if o.Kind.Secure() {
		scheme = "https"
	}
	return fmt.Sprintf("%s://%s:%d", scheme, o.Host, o.Port), nil
}

func (o *ConnectOptions) httpClient() *http.Client {
	if o.HTTPClient != nil {
		return o.HTTPClient
	}
	tr := http.DefaultTransport.(*http.Transport).Clone()
	tr.TLSClientConfig = &tls.Config{InsecureSkipVerify: !o.VerifyTLS} //nolint:gosec // lab API servers use self-signed certificates
	return &http.Client{
		Transport: otelhttp.NewTransport(tr),
		Timeout:   o.RequestTimeout,
	}
}

// Session is an open session on an API server. Its methods are not safe
// for concurrent use; a test run drives one session from one goroutine.
type Session struct {
	opts    ConnectOptions
	baseURL string
	client  *http.Client
	apiKey  string
	id      int
	root    Href
}

// Connect opens a session on the server described by opts, using the
// procedure the server kind requires.
func Connect(ctx context.Context, opts ConnectOptions) (*Session, error) {
	opts.setDefaults()
	base, err := opts.baseURL()
	if err != nil {
		return nil, err
	}
	s := &Session{
		opts:    opts,
		baseURL: base,
		client:  opts.httpClient(),
		apiKey:  opts.APIKey,
	}
	glog.Infof("Connecting to %s API server %s", opts.Kind, base)
	switch opts.Kind {
	case Windows:
		err = s.connectWindows(ctx)
	case WindowsConnectionMgr:
		err = s.connectConnectionMgr(ctx)
	case Linux:
		err = s.connectLinux(ctx)
	default:
		err = &Error{Kind: KindConfig, Op: "connect", Err: fmt.Errorf("unsupported server kind %v", opts.Kind)}
	}
	if err != nil {
		return nil, err
	}
	glog.Infof("Using session %s", s.root)
	return s, nil
}

func (s *Session) setSession(id int) {
	s.id = id
	s.root = sessionsHref.Join(fmt.Sprint(id), "ixnetwork")
}

func (s *Session) connectWindows(ctx context.Context) error {
	s.setSession(s.opts.SessionID)
	return s.get(ctx, sessionsHref.Join(fmt.Sprint(s.id)), nil)
}

type sessionResponse struct {
	ID    int    `json:"id"`
	State string `json:"state"`
}

func (s *Session) connectConnectionMgr(ctx context.Context) error {
	var resp sessionResponse
	if err := s.do(ctx, http.MethodPost, sessionsHref, struct{}{}, &resp); err != nil {
		return err
	}
	if resp.ID == 0 {
		return newError(KindOperation, "POST "+string(sessionsHref), "connection manager returned no session id")
	}
	s.setSession(resp.ID)
	return nil
}

func (s *Session) connectLinux(ctx context.Context) error {
	if s.apiKey == "" {
		var auth struct {
			APIKey string `json:"apiKey"`
		}
		body := map[string]string{"username": s.opts.Username, "password": s.opts.Password}
		if err := s.do(ctx, http.MethodPost, authHref, body, &auth); err != nil {
			return err
		}
		if auth.APIKey == "" {
			return newError(KindOperation, "POST "+string(authHref), "login returned no API key")
		}
		s.apiKey = auth.APIKey
	}

	var resp sessionResponse
	if err := s.do(ctx, http.MethodPost, sessionsHref, map[string]string{"applicationType": "ixnrest"}, &resp); err != nil {
		return err
	}
	if resp.ID == 0 {
		return newError(KindOperation, "POST "+string(sessionsHref), "API server returned no session id")
	}
	s.setSession(resp.ID)
	if _, err := s.operation(ctx, sessionsHref.Join(fmt.Sprint(resp.ID), "operations", "start"), struct{}{}); err != nil {
		return fmt.Errorf("starting session %d: %w", resp.ID, err)
	}
	return nil
}

// Kind returns the server kind of the session.
func (s *Session) Kind() ServerKind { return s.opts.Kind }

// ID returns the session id on the API server.
func (s *Session) ID() int { return s.id }

// Root returns the ixnetwork root of the session, e.g.
// "/api/v1/sessions/1/ixnetwork".
func (s *Session) Root() Href { return s.root }

// NewBlankConfig clears the session configuration.
func (s *Session) NewBlankConfig(ctx context.Context) error {
	glog.Info("Loading a new blank configuration")
	_, err := s.operation(ctx, s.root.Join("operations", "newconfig"), struct{}{})
	return err
}

// License describes the license server settings of a session.
type License struct {
	Servers []string
	Model   string
	Tier    string
}

// ConfigLicenseServer points the session at license servers. All ports must
// be released before the licensing settings can change.
func (s *Session) ConfigLicenseServer(ctx context.Context, l License) error {
	if len(l.Servers) == 0 {
		return &Error{Kind: KindConfig, Op: "config license server", Err: fmt.Errorf("no license server")}
	}
	glog.Infof("Configuring license servers %v, model %q, tier %q", l.Servers, l.Model, l.Tier)
	return s.patch(ctx, s.root.Join("globals", "licensing"), map[string]any{
		"licensingServers": l.Servers,
		"mode":             l.Model,
		"tier":             l.Tier,
	})
}

// DeleteSession removes the session from a connection manager or Linux API
// server. The single session of a Windows API server cannot be deleted.
func (s *Session) DeleteSession(ctx context.Context) error {
	href := sessionsHref.Join(fmt.Sprint(s.id))
	switch s.opts.Kind {
	case Linux:
		glog.Infof("Stopping and deleting session %d", s.id)
		if _, err := s.operation(ctx, href.Join("operations", "stop"), struct{}{}); err != nil {
			return fmt.Errorf("stopping session %d: %w", s.id, err)
		}
	case WindowsConnectionMgr:
		glog.Infof("Deleting session %d", s.id)
	default:
		return &Error{Kind: KindConfig, Op: "delete session", Err: fmt.Errorf("sessions on a %s API server cannot be deleted", s.opts.Kind)}
	}
	return s.do(ctx, http.MethodDelete, href, nil, nil)
}

func (s *Session) get(ctx context.Context, href Href, out any) error {
	return s.do(ctx, http.MethodGet, href, nil, out)
}

func (s *Session) patch(ctx context.Context, href Href, body any) error {
	return s.do(ctx, http.MethodPatch, href, body, nil)
}

type link struct {
	Href string `json:"href"`
}

type linksResponse struct {
	Links []link `json:"links"`
}

// create POSTs body to a collection and returns the href of the new object.
func (s *Session) create(ctx context.Context, collection Href, body any) (Href, error) {
	var resp linksResponse
	if err := s.do(ctx, http.MethodPost, collection, body, &resp); err != nil {
		return "", err
	}
	if len(resp.Links) == 0 || resp.Links[0].Href == "" {
		return "", newError(KindOperation, "POST "+string(collection), "response carries no object link")
	}
	return Href(resp.Links[0].Href), nil
}

// do sends one request. body and out are JSON encoded and decoded when not
// nil.
func (s *Session) do(ctx context.Context, method string, href Href, body, out any) error {
	op := method + " " + string(href)
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return &Error{Kind: KindConfig, Op: op, Err: err}
		}
		rd = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, s.baseURL+string(href), rd)
	if err != nil {
		return &Error{Kind: KindConfig, Op: op, Err: err}
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if s.apiKey != "" {
		req.Header.Set(apiKeyHeader, s.apiKey)
	}
	if s.opts.DebugTracing && bool(glog.V(2)) {
		glog.Infof("%s\n%s", op, pretty.Sprint(body))
	}

	start := time.Now()
	resp, err := s.client.Do(req)
	if err != nil {
		s.opts.Metrics.ObserveRequest(method, string(href), 0, time.Since(start))
		return &Error{Kind: KindConnection, Op: op, Err: err}
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	s.opts.Metrics.ObserveRequest(method, string(href), resp.StatusCode, time.Since(start))
	if err != nil {
		return &Error{Kind: KindConnection, Op: op, Err: err}
	}
	if s.opts.DebugTracing && bool(glog.V(2)) {
		glog.Infof("%s -> %d\n%s", op, resp.StatusCode, data)
	}
	if resp.StatusCode >= http.StatusBadRequest {
		msg := strings.TrimSpace(string(data))
		if len(msg) > maxErrorBytes {
			msg = msg[:maxErrorBytes] + "..."
		}
		return &Error{Kind: KindHTTP, Op: op, StatusCode: resp.StatusCode, Err: fmt.Errorf("%s", msg)}
	}
	if out == nil || len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return &Error{Kind: KindOperation, Op: op, Err: fmt.Errorf("decoding response: %w", err)}
	}
	return nil
}

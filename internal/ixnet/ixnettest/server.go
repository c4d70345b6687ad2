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

// Package ixnettest provides an in-memory IxNetwork REST API server for
// tests. It implements the subset of the API used by package ixnet: session
// management, hardware and port ownership, generic NGPF object creation
// with multivalues, protocol and traffic operations and the flow statistics
// view.
package ixnettest

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"path"
	"strconv"
	"strings"
	"sync"
	"testing"
)

// Owner is the owner recorded on ports assigned through the fake.
const Owner = "ixnettest"

// Options configures the behaviour of a Server.
type Options struct {
	// Username, Password and APIKey enable authentication as done by a
	// Linux API server. Requests other than login must carry APIKey.
	Username string
	Password string
	APIKey   string
	// FirstSessionID is the id given to the first created session. Session
	// 1 always exists for Windows API servers.
	FirstSessionID int
	// PortOwners maps "chassis;card;port" to the user owning that port.
	PortOwners map[string]string
	// AsyncPolls is how many status polls an operation stays IN_PROGRESS.
	AsyncPolls int
	// ChassisPolls is how many GETs a new chassis stays in "polling".
	ChassisPolls int
	// SessionsDown leaves BGP sessions down after protocols start.
	SessionsDown bool
	// TrafficPolls is how many GETs of the traffic state report "started"
	// before traffic stops; a negative value never stops.
	TrafficPolls int
	// StatsPolls is how many GETs of the traffic state or statistics page
	// see "stoppedWaitingForStats" once traffic stops on its own.
	StatsPolls int
	// PagePolls is how many GETs of the statistics page report it not ready
	// after the current page changes.
	PagePolls int
	// LossFrames is subtracted from every flow's received frames.
	LossFrames int
	// PageSize is the number of rows per statistics page, default 25.
	PageSize int
	// Failures maps "METHOD /path" to an HTTP status returned instead of
	// handling the request.
	Failures map[string]int
}

// Request is a request received by the Server.
type Request struct {
	Method string
	Path   string
	Body   map[string]any
}

type operation struct {
	polls  int
	result string
}

// Server is a fake IxNetwork API server.
type Server struct {
	*httptest.Server

	mu       sync.Mutex
	opts     Options
	requests []Request
	sessions map[int]string
	nextSess int
	objects  map[string]map[string]any
	members  map[string][]string
	nextID   map[string]int
	nextMV   int
	ops      map[string]*operation
	nextOp   int
	owners   map[string]string
	traffic  string
	polls    int
	// endless is set when continuous traffic is started.
	endless    bool
	statsPolls int
	shownPage  int
	pagePolls  int
}

// New starts a fake server; it is closed when the test ends.
func New(t testing.TB, opts Options) *Server {
	t.Helper()
	if opts.PageSize == 0 {
		opts.PageSize = 25
	}
	if opts.FirstSessionID == 0 {
		opts.FirstSessionID = 2
	}
	s := &Server{
		opts:     opts,
		sessions: map[int]string{1: "ACTIVE"},
		nextSess: opts.FirstSessionID,
		objects:  map[string]map[string]any{},
		members:  map[string][]string{},
		nextID:   map[string]int{},
		ops:      map[string]*operation{},
		owners:   map[string]string{},
		traffic:  "unapplied",
	}
	for k, v := range opts.PortOwners {
		s.owners[k] = v
	}
	s.Server = httptest.NewServer(http.HandlerFunc(s.serve))
	t.Cleanup(s.Close)
	return s
}

// Requests returns every request received so far.
func (s *Server) Requests() []Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Request(nil), s.requests...)
}

// Count returns how many requests matched method and had a path ending in
// suffix.
func (s *Server) Count(method, suffix string) int {
	n := 0
	for _, r := range s.Requests() {
		if r.Method == method && strings.HasSuffix(r.Path, suffix) {
			n++
		}
	}
	return n
}

// Object returns a copy of the fields of the object at href.
func (s *Server) Object(href string) map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()
	obj, ok := s.objects[href]
	if !ok {
		return nil
	}
	out := map[string]any{}
	for k, v := range obj {
		out[k] = v
	}
	return out
}

// Multivalue returns the pattern set on attribute attr of the object at
// href: the counter or single value body, or nil when none was set.
func (s *Server) Multivalue(href, attr string) map[string]any {
	mv, _ := s.Object(href)[attr].(string)
	if mv == "" {
		return nil
	}
	if c := s.Object(mv + "/counter"); c != nil {
		return c
	}
	return s.Object(mv + "/singleValue")
}

// PortOwner returns the owner of the port at location "chassis;card;port".
func (s *Server) PortOwner(location string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.owners[location]
}

// SessionExists reports whether session id exists.
func (s *Server) SessionExists(id int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.sessions[id]
	return ok
}

func (s *Server) serve(w http.ResponseWriter, r *http.Request) {
	var body map[string]any
	if b, err := io.ReadAll(r.Body); err == nil && len(b) > 0 {
		if err := json.Unmarshal(b, &body); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
			return
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	p := r.URL.Path
	s.requests = append(s.requests, Request{Method: r.Method, Path: p, Body: body})

	if code, ok := s.opts.Failures[r.Method+" "+p]; ok {
		writeJSON(w, code, map[string]string{"error": "injected failure"})
		return
	}
	if p == "/api/v1/auth/session" && r.Method == http.MethodPost {
		s.login(w, body)
		return
	}
	if s.opts.APIKey != "" && r.Header.Get("X-Api-Key") != s.opts.APIKey {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "missing or invalid API key"})
		return
	}
	if op, ok := s.ops[p]; ok && r.Method == http.MethodGet {
		s.pollOperation(w, p, op)
		return
	}

	rest, ok := strings.CutPrefix(p, "/api/v1/sessions")
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "not found"})
		return
	}
	if rest == "" || rest == "/" {
		if r.Method != http.MethodPost {
			writeJSON(w, http.StatusMethodNotAllowed, nil)
			return
		}
		id := s.nextSess
		s.nextSess++
		s.sessions[id] = "INITIAL"
		writeJSON(w, http.StatusCreated, map[string]any{"id": id, "state": "INITIAL"})
		return
	}

	parts := strings.SplitN(strings.TrimPrefix(rest, "/"), "/", 2)
	id, err := strconv.Atoi(parts[0])
	if _, exists := s.sessions[id]; err != nil || !exists {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "no such session"})
		return
	}
	sub := ""
	if len(parts) == 2 {
		sub = parts[1]
	}
	switch {
	case sub == "":
		switch r.Method {
		case http.MethodGet:
			writeJSON(w, http.StatusOK, map[string]any{"id": id, "state": s.sessions[id]})
		case http.MethodDelete:
			delete(s.sessions, id)
			w.WriteHeader(http.StatusNoContent)
		default:
			writeJSON(w, http.StatusMethodNotAllowed, nil)
		}
	case sub == "operations/start":
		s.sessions[id] = "ACTIVE"
		s.startOperation(w, p)
	case sub == "operations/stop":
		s.sessions[id] = "STOPPED"
		s.startOperation(w, p)
	case strings.HasPrefix(sub, "ixnetwork"):
		s.serveIxNetwork(w, r.Method, "/api/v1/sessions/"+parts[0]+"/ixnetwork", p, body)
	default:
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "not found"})
	}
}

func (s *Server) login(w http.ResponseWriter, body map[string]any) {
	if body["username"] != s.opts.Username || body["password"] != s.opts.Password {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid credentials"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"apiKey": s.opts.APIKey, "username": s.opts.Username})
}

func (s *Server) startOperation(w http.ResponseWriter, href string) {
	s.startOperationResult(w, href, "")
}

// startOperationResult answers an operation request, asynchronously when
// AsyncPolls is set. A non-empty failure makes the operation end in ERROR.
func (s *Server) startOperationResult(w http.ResponseWriter, href, failure string) {
	if s.opts.AsyncPolls == 0 {
		if failure != "" {
			writeJSON(w, http.StatusOK, map[string]any{"state": "ERROR", "message": failure})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"state": "SUCCESS"})
		return
	}
	s.nextOp++
	url := fmt.Sprintf("%s/%d", href, s.nextOp)
	s.ops[url] = &operation{polls: s.opts.AsyncPolls, result: failure}
	writeJSON(w, http.StatusAccepted, map[string]any{"id": strconv.Itoa(s.nextOp), "state": "IN_PROGRESS", "url": url})
}

func (s *Server) pollOperation(w http.ResponseWriter, url string, op *operation) {
	op.polls--
	switch {
	case op.polls > 0:
		writeJSON(w, http.StatusOK, map[string]any{"state": "IN_PROGRESS", "url": url})
	case op.result != "":
		writeJSON(w, http.StatusOK, map[string]any{"state": "ERROR", "message": op.result, "url": url})
	default:
		writeJSON(w, http.StatusOK, map[string]any{"state": "SUCCESS", "url": url})
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if v != nil {
		json.NewEncoder(w).Encode(v)
	}
}

func isID(s string) bool {
	_, err := strconv.Atoi(s)
	return err == nil
}

func (s *Server) multivalue(root string) string {
	s.nextMV++
	href := fmt.Sprintf("%s/multivalue/%d", root, s.nextMV)
	s.objects[href] = map[string]any{"id": s.nextMV}
	return href
}

// multivalueAttrs lists the multivalue attributes of the NGPF objects the
// fake knows about, by collection name.
var multivalueAttrs = map[string][]string{
	"ethernet":        {"mac", "enableVlans"},
	"vlan":            {"vlanId"},
	"ipv4":            {"address", "gatewayIp", "prefix", "resolveGateway"},
	"bgpIpv4Peer":     {"active", "holdTimer", "dutIp", "localAs2Bytes", "enable4ByteAs", "localAs4Bytes", "enableGracefulRestart", "restartTime", "staleTime", "type", "flap"},
	"ipv4PrefixPools": {"networkAddress", "prefixLength"},
}

func (s *Server) addObject(root, collection string, fields map[string]any) string {
	s.nextID[collection]++
	id := s.nextID[collection]
	href := fmt.Sprintf("%s/%d", collection, id)
	obj := map[string]any{"id": id}
	for k, v := range fields {
		obj[k] = v
	}
	for _, attr := range multivalueAttrs[path.Base(collection)] {
		obj[attr] = s.multivalue(root)
	}
	s.objects[href] = obj
	s.members[collection] = append(s.members[collection], href)
	return href
}

func (s *Server) create(root, collection string, body map[string]any) string {
	href := s.addObject(root, collection, body)
	switch path.Base(collection) {
	case "ethernet":
		s.addObject(root, href+"/vlan", nil)
	case "bgpIpv4Peer":
		s.objects[href]["sessionStatus"] = []string{"notStarted"}
	case "vport":
		s.objects[href]["assignedTo"] = ""
	case "chassis":
		state := "ready"
		if s.opts.ChassisPolls > 0 {
			state = "polling"
		}
		s.objects[href]["state"] = state
		s.objects[href]["polls"] = s.opts.ChassisPolls
	case "trafficItem":
		s.addObject(root, href+"/tracking", nil)
	case "endpointSet":
		s.addObject(root, path.Dir(collection)+"/configElement", nil)
	}
	return href
}

func (s *Server) serveIxNetwork(w http.ResponseWriter, method, root, p string, body map[string]any) {
	if i := strings.Index(p, "/operations/"); i >= 0 {
		if method != http.MethodPost {
			writeJSON(w, http.StatusMethodNotAllowed, nil)
			return
		}
		s.startOperationResult(w, p, s.runOperation(root, p[:i], path.Base(p), body))
		return
	}

	switch method {
	case http.MethodPost:
		if isID(path.Base(p)) {
			writeJSON(w, http.StatusMethodNotAllowed, nil)
			return
		}
		href := s.create(root, p, body)
		writeJSON(w, http.StatusCreated, map[string]any{"links": []map[string]string{{"rel": "self", "method": "GET", "href": href}}})
	case http.MethodPatch:
		if strings.HasSuffix(p, "/page") {
			s.objects[p] = body
			w.WriteHeader(http.StatusOK)
			return
		}
		obj, ok := s.objects[p]
		if !ok {
			if !s.hasAncestor(p) && !strings.HasPrefix(p, root+"/globals") {
				writeJSON(w, http.StatusNotFound, map[string]string{"error": "no such object " + p})
				return
			}
			obj = map[string]any{}
			s.objects[p] = obj
		}
		for k, v := range body {
			obj[k] = v
		}
		w.WriteHeader(http.StatusOK)
	case http.MethodGet:
		s.get(w, root, p)
	case http.MethodDelete:
		delete(s.objects, p)
		w.WriteHeader(http.StatusNoContent)
	default:
		writeJSON(w, http.StatusMethodNotAllowed, nil)
	}
}

func (s *Server) get(w http.ResponseWriter, root, p string) {
	switch {
	case p == root+"/traffic":
		switch {
		case s.traffic == "started" && s.opts.TrafficPolls >= 0 && !s.endless:
			if s.polls <= 0 {
				s.traffic = "stopped"
				if s.opts.StatsPolls > 0 {
					s.traffic = "stoppedWaitingForStats"
					s.statsPolls = s.opts.StatsPolls - 1
				}
			}
			s.polls--
		case s.traffic == "stoppedWaitingForStats":
			s.collectStats()
		}
		writeJSON(w, http.StatusOK, map[string]any{"state": s.traffic})
		return
	case p == root+"/statistics/view":
		views := []map[string]any{}
		if s.traffic != "unapplied" {
			views = append(views, map[string]any{"id": 1, "caption": "Flow Statistics"})
		}
		writeJSON(w, http.StatusOK, views)
		return
	case p == root+"/statistics/view/1/page":
		writeJSON(w, http.StatusOK, s.page(root, p))
		return
	}
	if p == root {
		writeJSON(w, http.StatusOK, map[string]any{})
		return
	}
	if obj, ok := s.objects[p]; ok {
		if path.Base(path.Dir(p)) == "chassis" {
			s.advanceChassis(obj)
		}
		writeJSON(w, http.StatusOK, obj)
		return
	}
	if strings.Contains(p, "/availableHardware/chassis/") && strings.Contains(p, "/card/") {
		s.getPort(w, root, p)
		return
	}
	if !isID(path.Base(p)) {
		list := []map[string]any{}
		for _, href := range s.members[p] {
			if obj, ok := s.objects[href]; ok {
				list = append(list, obj)
			}
		}
		writeJSON(w, http.StatusOK, list)
		return
	}
	writeJSON(w, http.StatusNotFound, map[string]string{"error": "no such object " + p})
}

func (s *Server) advanceChassis(obj map[string]any) {
	n, _ := obj["polls"].(int)
	if n > 0 {
		obj["polls"] = n - 1
		return
	}
	obj["state"] = "ready"
}

// portLocation maps ".../chassis/1/card/2/port/3" to "host;2;3".
func (s *Server) portLocation(root, p string) (string, bool) {
	parts := strings.Split(strings.TrimPrefix(p, root+"/availableHardware/chassis/"), "/")
	if len(parts) != 5 || parts[1] != "card" || parts[3] != "port" {
		return "", false
	}
	chassis, ok := s.objects[root+"/availableHardware/chassis/"+parts[0]]
	if !ok {
		return "", false
	}
	return fmt.Sprintf("%v;%s;%s", chassis["hostname"], parts[2], parts[4]), true
}

func (s *Server) getPort(w http.ResponseWriter, root, p string) {
	loc, ok := s.portLocation(root, p)
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "no such port " + p})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"owner": s.owners[loc], "state": "up"})
}

func hrefs(v any) []string {
	var out []string
	list, _ := v.([]any)
	for _, e := range list {
		if s, ok := e.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

// runOperation applies an operation and returns a failure message, empty on
// success.
func (s *Server) runOperation(root, target, name string, body map[string]any) string {
	switch name {
	case "newconfig":
		for href := range s.objects {
			if strings.HasPrefix(href, root+"/") && !strings.HasPrefix(href, root+"/availableHardware") {
				delete(s.objects, href)
			}
		}
		for coll := range s.members {
			if strings.HasPrefix(coll, root+"/") && !strings.HasPrefix(coll, root+"/availableHardware") {
				delete(s.members, coll)
				delete(s.nextID, coll)
			}
		}
		s.traffic = "unapplied"
	case "assignports":
		ports, _ := body["arg1"].([]any)
		vports := hrefs(body["arg3"])
		if len(ports) != len(vports) {
			return fmt.Sprintf("%d ports for %d vports", len(ports), len(vports))
		}
		for i, p := range ports {
			m, _ := p.(map[string]any)
			loc := fmt.Sprintf("%v;%v;%v", m["arg1"], m["arg2"], m["arg3"])
			if owner := s.owners[loc]; owner != "" && owner != Owner && body["arg4"] != true {
				return fmt.Sprintf("port %s is owned by %s", loc, owner)
			}
			vp, ok := s.objects[vports[i]]
			if !ok {
				return "no such vport " + vports[i]
			}
			vp["assignedTo"] = fmt.Sprintf("%v:%v:%v", m["arg1"], m["arg2"], m["arg3"])
			s.owners[loc] = Owner
		}
	case "releaseport":
		for _, href := range hrefs(body["arg1"]) {
			vp, ok := s.objects[href]
			if !ok {
				return "no such vport " + href
			}
			if at, _ := vp["assignedTo"].(string); at != "" {
				delete(s.owners, strings.ReplaceAll(at, ":", ";"))
			}
			vp["assignedTo"] = ""
		}
	case "clearownership":
		for _, href := range hrefs(body["arg1"]) {
			loc, ok := s.portLocation(root, href)
			if !ok {
				return "no such port " + href
			}
			delete(s.owners, loc)
		}
	case "startallprotocols", "stopallprotocols":
		status := "notStarted"
		if name == "startallprotocols" {
			status = "up"
			if s.opts.SessionsDown {
				status = "down"
			}
		}
		for href, obj := range s.objects {
			if path.Base(path.Dir(href)) == "bgpIpv4Peer" {
				obj["sessionStatus"] = []string{status}
			}
		}
	case "generate":
		for _, href := range hrefs(body["arg1"]) {
			ti, ok := s.objects[href]
			if !ok {
				return "no such traffic item " + href
			}
			ti["generated"] = true
		}
	case "apply":
		s.traffic = "stopped"
	case "start":
		if target == root+"/traffic" {
			if s.traffic == "unapplied" {
				return "traffic is not applied"
			}
			s.traffic = "started"
			s.polls = s.opts.TrafficPolls
			s.endless = s.continuous(root)
		}
	case "stop":
		if target == root+"/traffic" {
			s.traffic = "stopped"
		}
	default:
		return "unsupported operation " + name
	}
	return ""
}

func (s *Server) hasAncestor(p string) bool {
	for dir := path.Dir(p); dir != "/" && dir != "."; dir = path.Dir(dir) {
		if _, ok := s.objects[dir]; ok {
			return true
		}
	}
	return false
}

// vportName returns the name of the first vport of the topology at href.
func (s *Server) vportName(topology string) string {
	vports := hrefs(s.objects[topology]["vports"])
	if len(vports) == 0 {
		return ""
	}
	name, _ := s.objects[vports[0]]["name"].(string)
	return name
}

// endpointName returns the vport name behind the first endpoint of list.
func (s *Server) endpointName(list any) string {
	eps := hrefs(list)
	if len(eps) == 0 {
		return ""
	}
	href := eps[0]
	for href != "/" && path.Base(path.Dir(href)) != "topology" {
		href = path.Dir(href)
	}
	return s.vportName(href)
}

func (s *Server) collectStats() {
	if s.statsPolls <= 0 {
		s.traffic = "stopped"
	}
	s.statsPolls--
}

// continuous reports whether any traffic item transmits until stopped.
func (s *Server) continuous(root string) bool {
	for _, ti := range s.members[root+"/traffic/trafficItem"] {
		for i := range s.members[ti+"/endpointSet"] {
			tc := s.objects[fmt.Sprintf("%s/configElement/%d/transmissionControl", ti, i+1)]
			if tc["type"] == "continuous" {
				return true
			}
		}
	}
	return false
}

var flowColumns = []string{"Tx Port", "Rx Port", "Traffic Item", "Tx Frames", "Rx Frames", "Frames Delta", "Loss %"}

// flowRows derives one row per endpoint set and direction from the traffic
// configuration.
func (s *Server) flowRows(root string) [][]string {
	var rows [][]string
	for _, ti := range s.members[root+"/traffic/trafficItem"] {
		item := s.objects[ti]
		for i, es := range s.members[ti+"/endpointSet"] {
			ep := s.objects[es]
			tc := s.objects[fmt.Sprintf("%s/configElement/%d/transmissionControl", ti, i+1)]
			frames := 0
			if f, ok := tc["frameCount"].(float64); ok {
				frames = int(f)
			}
			rx := max(frames-s.opts.LossFrames, 0)
			row := func(tx, rxPort string) []string {
				loss := "0.000"
				if frames > 0 {
					loss = fmt.Sprintf("%.3f", float64(frames-rx)*100/float64(frames))
				}
				return []string{tx, rxPort, fmt.Sprint(item["name"]), strconv.Itoa(frames), strconv.Itoa(rx), strconv.Itoa(frames - rx), loss}
			}
			src, dst := s.endpointName(ep["sources"]), s.endpointName(ep["destinations"])
			rows = append(rows, row(src, dst))
			if item["biDirectional"] == true {
				rows = append(rows, row(dst, src))
			}
		}
	}
	return rows
}

func (s *Server) page(root, p string) map[string]any {
	rows := s.flowRows(root)
	total := max((len(rows)+s.opts.PageSize-1)/s.opts.PageSize, 1)
	current := 1
	if c, ok := s.objects[p]["currentPage"].(float64); ok && int(c) >= 1 && int(c) <= total {
		current = int(c)
	}
	if current != s.shownPage {
		s.shownPage = current
		s.pagePolls = s.opts.PagePolls
	}
	ready := s.traffic != "stoppedWaitingForStats"
	if !ready {
		s.collectStats()
	}
	values := [][][]string{}
	if s.pagePolls > 0 {
		s.pagePolls--
		ready = false
	} else {
		for i := (current - 1) * s.opts.PageSize; i < len(rows) && i < current*s.opts.PageSize; i++ {
			values = append(values, [][]string{rows[i]})
		}
	}
	return map[string]any{
		"isReady":        ready,
		"columnCaptions": flowColumns,
		"pageValues":     values,
		"totalPages":     total,
		"currentPage":    current,
	}
}

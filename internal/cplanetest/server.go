// Package cplanetest provides in-process fakes of the console and
// control-plane pageserver APIs. The fakes record every call so tests can
// assert on what was sent.
package cplanetest

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"

	"github.com/go-chi/chi/v5"
)

const (
	pageserversPath      = "/management/api/v2/pageservers"
	adminPageserversPath = "/api/v1/admin/pageservers"
)

// Call is a recorded request.
type Call struct {
	Method string
	Path   string
	Header http.Header
	Body   []byte
}

// Payload decodes the recorded body as a JSON object.
func (c Call) Payload() map[string]any {
	var m map[string]any
	_ = json.Unmarshal(c.Body, &m)
	return m
}

type recorder struct {
	mu    sync.Mutex
	calls []Call
}

func (rec *recorder) record(r *http.Request) []byte {
	body, _ := io.ReadAll(r.Body)
	rec.mu.Lock()
	defer rec.mu.Unlock()
	rec.calls = append(rec.calls, Call{
		Method: r.Method,
		Path:   r.URL.Path,
		Header: r.Header.Clone(),
		Body:   body,
	})
	return body
}

// Calls returns a copy of every recorded request.
func (rec *recorder) Calls() []Call {
	rec.mu.Lock()
	defer rec.mu.Unlock()
	out := make([]Call, len(rec.calls))
	copy(out, rec.calls)
	return out
}

// CallsWithMethod returns recorded requests using method.
func (rec *recorder) CallsWithMethod(method string) []Call {
	var out []Call
	for _, c := range rec.Calls() {
		if c.Method == method {
			out = append(out, c)
		}
	}
	return out
}

func authorized(r *http.Request, token string) bool {
	return r.Header.Get("Authorization") == "Bearer "+token
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// ControlPlane fakes the pageserver management API of a control plane.
type ControlPlane struct {
	*httptest.Server
	recorder

	token string

	mu             sync.Mutex
	nodes          map[string]json.RawMessage
	nextID         int64
	stringIDs      bool
	omitNodeID     bool
	registerStatus int
}

// NewControlPlane starts a fake control plane accepting token. Assigned node
// ids start at firstID.
func NewControlPlane(token string, firstID int64) *ControlPlane {
	cp := &ControlPlane{
		token:  token,
		nodes:  make(map[string]json.RawMessage),
		nextID: firstID,
	}

	r := chi.NewRouter()
	r.Route(pageserversPath, func(r chi.Router) {
		r.Post("/", cp.register)
		r.Get("/{host}", cp.lookup)
	})
	cp.Server = httptest.NewServer(r)
	return cp
}

// BaseURL is the value the registrar expects in *_CPLANE_URL.
func (cp *ControlPlane) BaseURL() string {
	return cp.URL
}

// PageserversURL is the fully qualified registration endpoint.
func (cp *ControlPlane) PageserversURL() string {
	return cp.URL + pageserversPath
}

// Seed marks host as already registered with id.
func (cp *ControlPlane) Seed(host string, id any) {
	raw, _ := json.Marshal(id)
	cp.mu.Lock()
	defer cp.mu.Unlock()
	cp.nodes[host] = raw
}

// SetStringIDs makes assigned node ids JSON strings instead of numbers.
func (cp *ControlPlane) SetStringIDs(v bool) {
	cp.mu.Lock()
	defer cp.mu.Unlock()
	cp.stringIDs = v
}

// SetOmitNodeID drops node_id from registration responses.
func (cp *ControlPlane) SetOmitNodeID(v bool) {
	cp.mu.Lock()
	defer cp.mu.Unlock()
	cp.omitNodeID = v
}

// SetRegisterStatus makes registration fail with status. Zero restores success.
func (cp *ControlPlane) SetRegisterStatus(status int) {
	cp.mu.Lock()
	defer cp.mu.Unlock()
	cp.registerStatus = status
}

// NodeID returns the raw id stored for host.
func (cp *ControlPlane) NodeID(host string) (json.RawMessage, bool) {
	cp.mu.Lock()
	defer cp.mu.Unlock()
	id, ok := cp.nodes[host]
	return id, ok
}

func (cp *ControlPlane) lookup(w http.ResponseWriter, r *http.Request) {
	cp.record(r)
	if !authorized(r, cp.token) {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
		return
	}
	host := chi.URLParam(r, "host")
	id, ok := cp.NodeID(host)
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "pageserver not found"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"node_id": id, "host": host})
}

func (cp *ControlPlane) register(w http.ResponseWriter, r *http.Request) {
	body := cp.record(r)
	if !authorized(r, cp.token) {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
		return
	}
	cp.mu.Lock()
	status := cp.registerStatus
	cp.mu.Unlock()
	if status != 0 {
		writeJSON(w, status, map[string]string{"error": "registration rejected"})
		return
	}

	var payload map[string]any
	if err := json.Unmarshal(body, &payload); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON"})
		return
	}
	host, _ := payload["host"].(string)
	if strings.TrimSpace(host) == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "host is required"})
		return
	}

	cp.mu.Lock()
	var raw json.RawMessage
	if cp.stringIDs {
		raw, _ = json.Marshal("ps-" + strconv.FormatInt(cp.nextID, 10))
	} else {
		raw = json.RawMessage(strconv.FormatInt(cp.nextID, 10))
	}
	cp.nextID++
	cp.nodes[host] = raw
	omit := cp.omitNodeID
	cp.mu.Unlock()

	resp := map[string]any{"host": host, "active": false}
	if !omit {
		resp["node_id"] = raw
	}
	writeJSON(w, http.StatusCreated, resp)
}

// Console fakes the console's admin pageserver listing.
type Console struct {
	*httptest.Server
	recorder

	apiKey string

	mu       sync.Mutex
	response any
}

// ConsoleEntry is one pageserver in the listing.
type ConsoleEntry struct {
	RegionID string `json:"region_id"`
	Version  any    `json:"version"`
}

// NewConsole starts a fake console that lists entries under "data".
func NewConsole(apiKey string, entries ...ConsoleEntry) *Console {
	c := &Console{apiKey: apiKey}
	c.SetEntries(entries...)

	r := chi.NewRouter()
	r.Get(adminPageserversPath, c.list)
	c.Server = httptest.NewServer(r)
	return c
}

// BaseURL is the value the registrar expects in CONSOLE_URL.
func (c *Console) BaseURL() string {
	return c.URL
}

// SetEntries replaces the listing.
func (c *Console) SetEntries(entries ...ConsoleEntry) {
	if entries == nil {
		entries = []ConsoleEntry{}
	}
	c.SetResponse(map[string]any{"data": entries})
}

// SetResponse replaces the whole response body, e.g. to drop "data".
func (c *Console) SetResponse(v any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.response = v
}

func (c *Console) list(w http.ResponseWriter, r *http.Request) {
	c.record(r)
	if !authorized(r, c.apiKey) {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
		return
	}
	c.mu.Lock()
	resp := c.response
	c.mu.Unlock()
	writeJSON(w, http.StatusOK, resp)
}

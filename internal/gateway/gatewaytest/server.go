// Package gatewaytest provides an in-process fake of the remote messaging
// gateway for tests. It answers the newest response shapes on the first
// candidate of every capability and records every call it receives.
package gatewaytest

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/matheus3301/wppgw/internal/config"
)

// Routes, keyed by method and chi pattern.
const (
	RouteFetchInstances  = "GET /instance/fetchInstances"
	RouteConnectionState = "GET /instance/connectionState/{instance}"
	RouteConnect         = "GET /instance/connect/{instance}"
	RouteQRCode          = "GET /instance/qrcode/{instance}"
	RouteCreate          = "POST /instance/create"
	RouteLogout          = "DELETE /instance/logout/{instance}"
	RouteFindChats       = "POST /chat/findChats/{instance}"
	RouteFindChatsGet    = "GET /chat/findChats/{instance}"
	RouteFindContacts    = "POST /chat/findContacts/{instance}"
	RouteFindMessages    = "POST /chat/findMessages/{instance}"
	RouteFindMessagesGet = "GET /chat/findMessages/{instance}"
	RouteSendText        = "POST /message/sendText/{instance}"
)

// APIKey is the key the fake expects in the apikey header.
const APIKey = "test-api-key"

// Instance is the fake's view of one remote instance.
type Instance struct {
	Name  string
	State string // open, connecting, close
	Owner string // owner JID once open
	QR    string
}

// Call is one recorded request.
type Call struct {
	Route string
	Path  string
	Body  string
}

// Sent is one accepted outbound message.
type Sent struct {
	Instance string
	Number   string
	Text     string
}

type override struct {
	status int
	html   bool
}

// Server is a fake gateway backed by httptest.
type Server struct {
	*httptest.Server

	mu        sync.Mutex
	instances map[string]*Instance
	contacts  map[string][]map[string]any
	messages  map[string][]map[string]any // by instance + remote JID
	overrides map[string]override
	calls     []Call
	sent      []Sent

	// conflictOnCreate makes the next create answer 403 "already in use"
	// while a concurrent actor creates the instance.
	conflictOnCreate bool
	qrSeq            int
}

// New starts a fake gateway. It is closed when the test ends.
func New(t testing.TB) *Server {
	t.Helper()
	s := &Server{
		instances: make(map[string]*Instance),
		contacts:  make(map[string][]map[string]any),
		messages:  make(map[string][]map[string]any),
		overrides: make(map[string]override),
	}
	s.Server = httptest.NewServer(s.router())
	t.Cleanup(s.Close)
	return s
}

// Config returns a gateway config pointing at the fake.
func (s *Server) Config() config.GatewayConfig {
	return config.GatewayConfig{
		BaseURL:     s.URL,
		APIKey:      APIKey,
		Timeout:     config.Duration{Duration: 2 * time.Second},
		Integration: "WHATSAPP-BAILEYS",
	}
}

func (s *Server) router() http.Handler {
	r := chi.NewRouter()
	r.Use(s.requireAPIKey)

	s.route(r, RouteFetchInstances, s.fetchInstances)
	s.route(r, RouteConnectionState, s.connectionState)
	s.route(r, RouteConnect, s.connect)
	s.route(r, RouteQRCode, s.qrcode)
	s.route(r, RouteCreate, s.create)
	s.route(r, RouteLogout, s.logout)
	s.route(r, RouteFindChats, s.findChats)
	s.route(r, RouteFindChatsGet, s.findChats)
	s.route(r, RouteFindContacts, s.findChats)
	s.route(r, RouteFindMessages, s.findMessages)
	s.route(r, RouteFindMessagesGet, s.findMessages)
	s.route(r, RouteSendText, s.sendText)
	return r
}

func (s *Server) route(r chi.Router, route string, h http.HandlerFunc) {
	method, pattern, _ := strings.Cut(route, " ")
	r.Method(method, pattern, http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		var body []byte
		if req.Body != nil {
			body, _ = io.ReadAll(req.Body)
		}

		s.mu.Lock()
		s.calls = append(s.calls, Call{Route: route, Path: req.URL.Path, Body: string(body)})
		o, hasOverride := s.overrides[route]
		s.mu.Unlock()

		if hasOverride {
			if o.html {
				w.Header().Set("Content-Type", "text/html; charset=utf-8")
				w.WriteHeader(http.StatusOK)
				_, _ = w.Write([]byte("<html><body>Bad Gateway</body></html>"))
				return
			}
			writeJSON(w, o.status, map[string]any{"status": o.status, "error": http.StatusText(o.status)})
			return
		}

		req.Body = io.NopCloser(bytes.NewReader(body))
		h(w, req)
	}))
}

func (s *Server) requireAPIKey(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("apikey") != APIKey {
			writeJSON(w, http.StatusUnauthorized, map[string]any{"status": 401, "error": "Unauthorized"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Fail makes route answer status until Clear is called.
func (s *Server) Fail(route string, status int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.overrides[route] = override{status: status}
}

// ServeHTML makes route answer a 200 HTML page until Clear is called.
func (s *Server) ServeHTML(route string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.overrides[route] = override{html: true}
}

// Clear removes the override of route.
func (s *Server) Clear(route string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.overrides, route)
}

// ConflictOnCreate makes the next create lose a race against another actor.
func (s *Server) ConflictOnCreate() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conflictOnCreate = true
}

// AddInstance registers an existing instance.
func (s *Server) AddInstance(name, state, owner string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.instances[name] = &Instance{Name: name, State: state, Owner: owner}
}

// SetState changes the remote state of an instance, as the phone would by
// scanning the QR or logging out.
func (s *Server) SetState(name, state, owner string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	inst, ok := s.instances[name]
	if !ok {
		inst = &Instance{Name: name}
		s.instances[name] = inst
	}
	inst.State = state
	inst.Owner = owner
}

// Instance returns a copy of the named instance.
func (s *Server) Instance(name string) (Instance, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	inst, ok := s.instances[name]
	if !ok {
		return Instance{}, false
	}
	return *inst, true
}

// SetContacts sets the chat records returned for instance.
func (s *Server) SetContacts(instance string, records []map[string]any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.contacts[instance] = records
}

// SetMessages sets the message records of the conversation with remoteJID.
func (s *Server) SetMessages(instance, remoteJID string, records []map[string]any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages[instance+"|"+remoteJID] = records
}

// Calls returns the recorded calls of route, or every call if route is empty.
func (s *Server) Calls(route string) []Call {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Call
	for _, c := range s.calls {
		if route == "" || c.Route == route {
			out = append(out, c)
		}
	}
	return out
}

// Routes returns the routes hit so far, in order.
func (s *Server) Routes() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.calls))
	for i, c := range s.calls {
		out[i] = c.Route
	}
	return out
}

// ResetCalls forgets recorded calls.
func (s *Server) ResetCalls() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = nil
}

// Sent returns every accepted outbound message.
func (s *Server) Sent() []Sent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Sent(nil), s.sent...)
}

func (s *Server) nextQR(name string) string {
	s.qrSeq++
	return fmt.Sprintf("2@%s-%d", name, s.qrSeq)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func newMessageID() string {
	return strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", ""))[:20]
}

// Package fetchtest provides in-memory doubles for the fetch-service daemon,
// build instances and the process launcher.
package fetchtest

import (
	"bytes"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/edvin/fetchctl/internal/fetch"
)

// Call is one request received by the fake daemon.
type Call struct {
	Method string
	Path   string
	Body   []byte
}

func (c Call) String() string { return c.Method + " " + c.Path }

type fakeSession struct {
	token   string
	revoked bool
}

// Daemon is a fake fetch-service control API backed by httptest.
type Daemon struct {
	Username string
	Password string

	mu         sync.Mutex
	calls      []Call
	sessions   map[string]*fakeSession
	online     bool
	statusBody map[string]any
	failures   map[string]int
	delay      time.Duration

	server *httptest.Server
}

// NewDaemon starts an online fake daemon accepting craft:craft, closed when
// the test ends.
func NewDaemon(t testing.TB) *Daemon {
	t.Helper()
	d := &Daemon{
		Username: "craft",
		Password: "craft",
		sessions: make(map[string]*fakeSession),
		online:   true,
		failures: make(map[string]int),
	}
	d.server = httptest.NewServer(d.routes())
	t.Cleanup(d.server.Close)
	return d
}

func (d *Daemon) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(d.record, d.auth, d.inject)

	r.Get("/status", d.status)
	r.Post("/session", d.createSession)
	r.Delete("/session/{id}/token", d.revokeToken)
	r.Get("/session/{id}", d.report)
	r.Delete("/session/{id}", d.deleteSession)
	r.Delete("/resources/{id}", d.deleteResources)
	return r
}

// Endpoint returns a ServiceEndpoint addressing this daemon's control API.
func (d *Daemon) Endpoint(proxyPort int) fetch.ServiceEndpoint {
	host, port, _ := net.SplitHostPort(d.server.Listener.Addr().String())
	p, _ := strconv.Atoi(port)
	return fetch.ServiceEndpoint{
		Host:        host,
		ProxyPort:   proxyPort,
		ControlPort: p,
		Username:    d.Username,
		Password:    d.Password,
	}
}

// SetOnline switches GET status between {"uptime": N} and 503.
func (d *Daemon) SetOnline(online bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.online = online
}

// SetStatusBody makes GET status answer 200 with body, uptime or not.
func (d *Daemon) SetStatusBody(body map[string]any) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.statusBody = body
}

// Fail makes requests for method and path answer status.
func (d *Daemon) Fail(method, path string, status int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.failures[method+" "+path] = status
}

// SetDelay delays every response.
func (d *Daemon) SetDelay(delay time.Duration) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.delay = delay
}

// Calls returns every request received so far.
func (d *Daemon) Calls() []Call {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]Call(nil), d.calls...)
}

// CallNames returns "METHOD path" for every request received so far.
func (d *Daemon) CallNames() []string {
	calls := d.Calls()
	names := make([]string, len(calls))
	for i, c := range calls {
		names[i] = c.String()
	}
	return names
}

// Sessions returns the number of live sessions.
func (d *Daemon) Sessions() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.sessions)
}

func (d *Daemon) record(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		r.Body.Close()

		d.mu.Lock()
		d.calls = append(d.calls, Call{Method: r.Method, Path: r.URL.Path[1:], Body: body})
		delay := d.delay
		d.mu.Unlock()

		if delay > 0 {
			time.Sleep(delay)
		}
		r.Body = io.NopCloser(bytes.NewReader(body))
		next.ServeHTTP(w, r)
	})
}

func (d *Daemon) auth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		if !ok || user != d.Username || pass != d.Password {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (d *Daemon) inject(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		d.mu.Lock()
		status, ok := d.failures[r.Method+" "+r.URL.Path[1:]]
		d.mu.Unlock()
		if ok {
			http.Error(w, "injected failure", status)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (d *Daemon) status(w http.ResponseWriter, _ *http.Request) {
	d.mu.Lock()
	online, body := d.online, d.statusBody
	d.mu.Unlock()

	switch {
	case body != nil:
		writeJSON(w, http.StatusOK, body)
	case online:
		writeJSON(w, http.StatusOK, map[string]any{"uptime": 5})
	default:
		http.Error(w, "starting", http.StatusServiceUnavailable)
	}
}

func (d *Daemon) createSession(w http.ResponseWriter, _ *http.Request) {
	id, token := uuid.NewString(), uuid.NewString()

	d.mu.Lock()
	d.sessions[id] = &fakeSession{token: token}
	d.mu.Unlock()

	writeJSON(w, http.StatusOK, map[string]string{"id": id, "token": token})
}

func (d *Daemon) revokeToken(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Token string `json:"token"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	s, ok := d.sessions[chi.URLParam(r, "id")]
	switch {
	case !ok:
		http.Error(w, "no such session", http.StatusNotFound)
	case s.token != req.Token:
		http.Error(w, "token mismatch", http.StatusForbidden)
	default:
		s.revoked = true
		writeJSON(w, http.StatusOK, map[string]any{})
	}
}

func (d *Daemon) report(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	d.mu.Lock()
	s, ok := d.sessions[id]
	d.mu.Unlock()
	if !ok {
		http.Error(w, "no such session", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"id":        id,
		"revoked":   s.revoked,
		"artefacts": []any{},
	})
}

func (d *Daemon) deleteSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.sessions[id]; !ok {
		http.Error(w, "no such session", http.StatusNotFound)
		return
	}
	delete(d.sessions, id)
	writeJSON(w, http.StatusOK, map[string]any{})
}

func (d *Daemon) deleteResources(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

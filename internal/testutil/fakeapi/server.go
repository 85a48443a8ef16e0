// Package fakeapi is an in-process stand-in for the task service: the REST
// API plus the /ws push endpoint with peer fan-out. It is used by tests
// across packages.
package fakeapi

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/felixge/httpsnoop"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"github.com/nhle/taskboard/internal/model"
)

// CookieName is the session cookie set on login and register.
const CookieName = "token"

// Request is one served HTTP request as observed by the middleware.
type Request struct {
	Method        string
	Path          string
	Query         url.Values
	Authorization string
	HasCookie     bool
	Status        int
}

// Frame is a push message as seen by the server.
type Frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

type account struct {
	user     model.User
	password string
}

type failure struct {
	status  int
	message string
}

type peer struct {
	conn    *websocket.Conn
	writeMu sync.Mutex
	userID  string
}

func (p *peer) send(f Frame) error {
	p.writeMu.Lock()
	defer p.writeMu.Unlock()
	return p.conn.WriteJSON(f)
}

// Option configures a Server.
type Option func(*Server)

// WithBroadcastToSender fans client events back to the sender too.
func WithBroadcastToSender() Option {
	return func(s *Server) { s.toSender = true }
}

// WithServerEvents makes REST writes emit task-created, task-updated and
// task-deleted to every connected peer.
func WithServerEvents() Option {
	return func(s *Server) { s.serverEvents = true }
}

// WithClock overrides the server clock used for tokens and timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Server) { s.now = now }
}

// Server is the fake task service.
type Server struct {
	URL string

	srv          *httptest.Server
	secret       []byte
	now          func() time.Time
	toSender     bool
	serverEvents bool
	upgrader     websocket.Upgrader

	mu            sync.Mutex
	accounts      map[string]*account
	tasks         []model.Task
	requests      []Request
	failures      map[string]failure
	delay         time.Duration
	rejectSockets bool
	peers         map[*peer]struct{}
	joins         []string
	frames        []Frame
}

// New starts a Server and stops it when the test ends.
func New(t testing.TB, opts ...Option) *Server {
	t.Helper()

	s := &Server{
		secret:   []byte("fakeapi-secret-" + uuid.NewString()),
		now:      time.Now,
		accounts: make(map[string]*account),
		failures: make(map[string]failure),
		peers:    make(map[*peer]struct{}),
		upgrader: websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }},
	}
	for _, opt := range opts {
		opt(s)
	}

	s.srv = httptest.NewServer(s.record(s.routes()))
	s.URL = s.srv.URL
	t.Cleanup(s.Close)
	return s
}

// Close disconnects every peer and stops the listener.
func (s *Server) Close() {
	s.RejectSockets(true)
	s.DropPeers()
	s.srv.Close()
}

func (s *Server) routes() http.Handler {
	r := mux.NewRouter()
	r.Use(s.inject)

	r.HandleFunc("/ws", s.handleSocket)

	r.HandleFunc("/api/auth/register", s.handleRegister).Methods(http.MethodPost)
	r.HandleFunc("/api/auth/login", s.handleLogin).Methods(http.MethodPost)
	r.HandleFunc("/api/auth/logout", s.handleLogout).Methods(http.MethodPost)

	r.HandleFunc("/api/users/me", s.authed(s.handleMe)).Methods(http.MethodGet)
	r.HandleFunc("/api/users/me", s.authed(s.handleUpdateMe)).Methods(http.MethodPut)
	r.HandleFunc("/api/users", s.authed(s.handleUsers)).Methods(http.MethodGet)

	// Dashboard routes first so {id} does not swallow them.
	r.HandleFunc("/api/tasks/dashboard/{kind}", s.authed(s.handleDashboard)).Methods(http.MethodGet)
	r.HandleFunc("/api/tasks", s.authed(s.handleListTasks)).Methods(http.MethodGet)
	r.HandleFunc("/api/tasks", s.authed(s.handleCreateTask)).Methods(http.MethodPost)
	r.HandleFunc("/api/tasks/{id}", s.authed(s.handleGetTask)).Methods(http.MethodGet)
	r.HandleFunc("/api/tasks/{id}", s.authed(s.handleUpdateTask)).Methods(http.MethodPut)
	r.HandleFunc("/api/tasks/{id}", s.authed(s.handleDeleteTask)).Methods(http.MethodDelete)

	return r
}

// record captures every request with its final status.
func (s *Server) record(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, err := r.Cookie(CookieName)
		req := Request{
			Method:        r.Method,
			Path:          r.URL.Path,
			Query:         r.URL.Query(),
			Authorization: r.Header.Get("Authorization"),
			HasCookie:     err == nil,
		}
		m := httpsnoop.CaptureMetrics(next, w, r)
		req.Status = m.Code

		s.mu.Lock()
		s.requests = append(s.requests, req)
		s.mu.Unlock()
	})
}

// inject applies configured delays and one-shot failures.
func (s *Server) inject(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := r.Method + " " + r.URL.Path

		s.mu.Lock()
		delay := s.delay
		f, failing := s.failures[key]
		delete(s.failures, key)
		s.mu.Unlock()

		if delay > 0 {
			select {
			case <-time.After(delay):
			case <-r.Context().Done():
				return
			}
		}
		if failing {
			writeError(w, f.status, f.message)
			return
		}
		next.ServeHTTP(w, r)
	})
}

type authedHandler func(w http.ResponseWriter, r *http.Request, me model.User)

func (s *Server) authed(h authedHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		me, ok := s.authenticate(r)
		if !ok {
			writeError(w, http.StatusUnauthorized, "Not authorized, no token")
			return
		}
		h(w, r, me)
	}
}

func (s *Server) authenticate(r *http.Request) (model.User, bool) {
	raw := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
	if raw == "" {
		if c, err := r.Cookie(CookieName); err == nil {
			raw = c.Value
		}
	}
	if raw == "" {
		return model.User{}, false
	}

	claims := jwt.MapClaims{}
	_, err := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(s.now),
	).ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
		return s.secret, nil
	})
	if err != nil {
		return model.User{}, false
	}
	id, _ := claims["user_id"].(string)

	s.mu.Lock()
	defer s.mu.Unlock()
	acct, ok := s.accounts[id]
	if !ok {
		return model.User{}, false
	}
	return acct.user, true
}

// Token issues a signed credential for userID valid for ttl.
func (s *Server) Token(userID string, ttl time.Duration) string {
	now := s.now()
	claims := jwt.MapClaims{
		"user_id": userID,
		"iat":     now.Unix(),
		"exp":     now.Add(ttl).Unix(),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		panic(err)
	}
	return signed
}

// AddUser registers an account directly.
func (s *Server) AddUser(name, email, password string) model.User {
	u := model.User{ID: uuid.NewString(), Name: name, Email: email}
	s.mu.Lock()
	s.accounts[u.ID] = &account{user: u, password: password}
	s.mu.Unlock()
	return u
}

// SeedTask stores t as if it had been created remotely. Missing ids and
// timestamps are filled in.
func (s *Server) SeedTask(t model.Task) model.Task {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = s.now()
	}
	if t.UpdatedAt.IsZero() {
		t.UpdatedAt = t.CreatedAt
	}
	if t.Priority == "" {
		t.Priority = model.DefaultPriority
	}
	if t.Status == "" {
		t.Status = model.DefaultStatus
	}
	if t.Version == 0 {
		t.Version = 1
	}
	s.tasks = append(s.tasks, t)
	return s.expandLocked(t)
}

// Tasks returns the stored tasks in insertion order.
func (s *Server) Tasks() []model.Task {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.Task, len(s.tasks))
	copy(out, s.tasks)
	return out
}

// Requests returns every request served so far.
func (s *Server) Requests() []Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Request, len(s.requests))
	copy(out, s.requests)
	return out
}

// LastRequest returns the most recent request to path, if any.
func (s *Server) LastRequest(method, path string) (Request, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := len(s.requests) - 1; i >= 0; i-- {
		if s.requests[i].Method == method && s.requests[i].Path == path {
			return s.requests[i], true
		}
	}
	return Request{}, false
}

// FailNext makes the next method+path request fail with status and message.
func (s *Server) FailNext(method, path string, status int, message string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[method+" "+path] = failure{status: status, message: message}
}

// SetDelay holds every REST response for d.
func (s *Server) SetDelay(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.delay = d
}

// RejectSockets makes /ws refuse upgrades while on is true.
func (s *Server) RejectSockets(on bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rejectSockets = on
}

func (s *Server) expandLocked(t model.Task) model.Task {
	if t.AssignedTo != nil {
		if acct, ok := s.accounts[t.AssignedTo.ID]; ok {
			u := acct.user
			t.AssignedTo = &u
		}
	}
	if t.CreatedBy != nil {
		if acct, ok := s.accounts[t.CreatedBy.ID]; ok {
			u := acct.user
			t.CreatedBy = &u
		}
	}
	return t
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"message": message})
}

// Package nvxtest provides an in-process fake NVX endpoint for tests.
package nvxtest

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"

	"github.com/dokzlo13/nvxd/internal/nvx"
)

// Post is a recorded command request.
type Post struct {
	Path string
	Body map[string]any
}

// Server is a TLS test server speaking the NVX login and REST protocol.
type Server struct {
	*httptest.Server

	Login    string
	Password string

	mu       sync.Mutex
	bodies   map[string][]byte
	failures map[string]int
	statuses []int
	posts    []Post
	counts   map[string]int
	sessions map[string]bool
	holds    map[string]*hold
	logins   int
	seq      int
}

type hold struct {
	reached chan struct{}
	release chan struct{}
	once    sync.Once
}

// New starts a fake device accepting admin/admin.
func New() *Server {
	s := &Server{
		Login:    "admin",
		Password: "admin",
		bodies:   make(map[string][]byte),
		failures: make(map[string]int),
		counts:   make(map[string]int),
		sessions: make(map[string]bool),
		holds:    make(map[string]*hold),
	}
	s.Server = httptest.NewTLSServer(http.HandlerFunc(s.handle))
	return s
}

// Options returns client options pointing at the server.
func (s *Server) Options() nvx.Options {
	s.mu.Lock()
	defer s.mu.Unlock()
	return nvx.Options{
		BaseURL:            s.URL,
		Login:              s.Login,
		Password:           s.Password,
		InsecureSkipVerify: true,
	}
}

// SetGroup serves doc as the content of the slash separated path, wrapped
// the way the device nests it, e.g. Device/DeviceInfo -> {"Device":{"DeviceInfo":doc}}.
func (s *Server) SetGroup(path string, doc any) {
	segs := strings.Split(path, "/")
	node := doc
	for i := len(segs) - 1; i >= 0; i-- {
		node = map[string]any{segs[i]: node}
	}
	data, err := json.Marshal(node)
	if err != nil {
		panic(err)
	}
	s.SetRaw(path, string(data))
}

// SetJSON serves doc, given as JSON text, at path.
func (s *Server) SetJSON(path, doc string) {
	var v any
	if err := json.Unmarshal([]byte(doc), &v); err != nil {
		panic(fmt.Sprintf("nvxtest: bad JSON for %s: %v", path, err))
	}
	s.SetGroup(path, v)
}

// SetRaw serves body verbatim at path.
func (s *Server) SetRaw(path, body string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bodies["/"+strings.TrimPrefix(path, "/")] = []byte(body)
	delete(s.failures, "/"+strings.TrimPrefix(path, "/"))
}

// Fail makes every GET of path answer with status.
func (s *Server) Fail(path string, status int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures["/"+strings.TrimPrefix(path, "/")] = status
}

// QueueStatus sets the StatusId returned by the next command replies, one per
// POST. Once drained, commands succeed with status 0.
func (s *Server) QueueStatus(ids ...int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.statuses = append(s.statuses, ids...)
}

// ExpireSessions invalidates every issued session cookie.
func (s *Server) ExpireSessions() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions = make(map[string]bool)
}

// SetPassword changes the accepted password. Issued sessions stay valid.
func (s *Server) SetPassword(password string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Password = password
}

// Hold stalls every GET of path until release is called. reached receives
// once a held request has arrived. release may be called more than once.
func (s *Server) Hold(path string) (reached <-chan struct{}, release func()) {
	h := &hold{reached: make(chan struct{}, 1), release: make(chan struct{})}
	s.mu.Lock()
	s.holds["/"+strings.TrimPrefix(path, "/")] = h
	s.mu.Unlock()
	return h.reached, func() {
		h.once.Do(func() { close(h.release) })
	}
}

// Requests returns the number of non-login requests served.
func (s *Server) Requests() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, c := range s.counts {
		n += c
	}
	return n
}

// Count returns how many requests hit path.
func (s *Server) Count(path string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.counts["/"+strings.TrimPrefix(path, "/")]
}

// Logins returns the number of login attempts.
func (s *Server) Logins() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.logins
}

// Posts returns the recorded commands.
func (s *Server) Posts() []Post {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Post(nil), s.posts...)
}

func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path == "/userlogin.html" {
		s.handleLogin(w, r)
		return
	}

	if r.Method == http.MethodGet {
		s.wait(r)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.counts[r.URL.Path]++

	if !s.authorized(r) {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}

	switch r.Method {
	case http.MethodGet:
		if status, ok := s.failures[r.URL.Path]; ok {
			w.WriteHeader(status)
			return
		}
		body, ok := s.bodies[r.URL.Path]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write(body)
	case http.MethodPost:
		s.handlePost(w, r)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

// wait blocks a held request without holding mu.
func (s *Server) wait(r *http.Request) {
	s.mu.Lock()
	h := s.holds[r.URL.Path]
	s.mu.Unlock()
	if h == nil {
		return
	}
	select {
	case h.reached <- struct{}{}:
	default:
	}
	select {
	case <-h.release:
	case <-r.Context().Done():
	}
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.logins++

	if err := r.ParseForm(); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	if r.PostForm.Get("login") != s.Login || r.PostForm.Get("passwd") != s.Password {
		w.WriteHeader(http.StatusForbidden)
		return
	}

	s.seq++
	id := fmt.Sprintf("track-%d", s.seq)
	s.sessions[id] = true
	http.SetCookie(w, &http.Cookie{Name: "TRACKID", Value: id, Path: "/", Secure: true, HttpOnly: true})
	w.Header().Add("Set-Cookie", "userstr=admin; Path=/; Secure")
	w.Header().Set("CREST-XSRF-TOKEN", "xsrf-"+id)
	w.WriteHeader(http.StatusOK)
}

func (s *Server) authorized(r *http.Request) bool {
	c, err := r.Cookie("TRACKID")
	if err != nil || !s.sessions[c.Value] {
		return false
	}
	return r.Header.Get("X-CREST-XSRF-TOKEN") == "xsrf-"+c.Value
}

func (s *Server) handlePost(w http.ResponseWriter, r *http.Request) {
	data, err := io.ReadAll(r.Body)
	if err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	var body map[string]any
	if err := json.Unmarshal(data, &body); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	s.posts = append(s.posts, Post{Path: r.URL.Path, Body: body})

	status := 0
	if len(s.statuses) > 0 {
		status = s.statuses[0]
		s.statuses = s.statuses[1:]
	}
	info := "OK"
	if status < 0 {
		info = "Error"
	}

	target := strings.TrimPrefix(strings.TrimPrefix(r.URL.Path, "/"), "Device/")
	reply := map[string]any{
		"Actions": []any{map[string]any{
			"Operation":    "SetPartial",
			"TargetObject": target,
			"Version":      "2.0.0",
			"Results": []any{map[string]any{
				"Path":       "Device." + strings.ReplaceAll(target, "/", "."),
				"Property":   target,
				"StatusId":   status,
				"StatusInfo": info,
			}},
		}},
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(reply)
}

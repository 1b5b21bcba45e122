// Package userstest provides an in-memory user-management API for tests.
package userstest

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"slices"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/wolfeidau/userdesk/internal/users"
)

// Server is a fake user-management API. Requests outside /auth must carry
// "Authorization: Bearer <Token>" or get a 401. Logging in with a seeded
// user's email and password returns Token.
type Server struct {
	*httptest.Server

	Token string

	mu           sync.Mutex
	nextID       int64
	users        map[int64]users.User
	calls        []string
	cacheControl string
	passwords    map[string]string
}

// NewServer starts a fake API accepting token.
func NewServer(t *testing.T, token string, seed ...users.User) *Server {
	t.Helper()

	s := &Server{
		Token:  token,
		nextID: 1,
		users:     make(map[int64]users.User),
		passwords: make(map[string]string),
	}
	for _, u := range seed {
		s.add(u)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /users", s.list)
	mux.HandleFunc("POST /users", s.create)
	mux.HandleFunc("GET /users/{id}", s.get)
	mux.HandleFunc("PUT /users/{id}", s.update)
	mux.HandleFunc("DELETE /users/{id}", s.delete)

	root := http.NewServeMux()
	root.HandleFunc("POST /auth/login", s.login)
	root.HandleFunc("POST /auth/register", s.register)
	root.Handle("/", s.authenticate(mux))

	s.Server = httptest.NewServer(root)
	t.Cleanup(s.Close)

	return s
}

// Users returns the stored users ordered by id.
func (s *Server) Users() []users.User {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]users.User, 0, len(s.users))
	for _, u := range s.users {
		out = append(out, u)
	}
	slices.SortFunc(out, func(a, b users.User) int { return int(a.ID - b.ID) })
	return out
}

// SetCacheControl sets the Cache-Control header sent with reads.
func (s *Server) SetCacheControl(value string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.cacheControl = value
}

// Calls returns "METHOD path" for every request received.
func (s *Server) Calls() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	return slices.Clone(s.calls)
}

func (s *Server) add(u users.User) users.User {
	u.ID = s.nextID
	if u.Password != "" {
		s.passwords[strings.ToLower(u.Email)] = u.Password
	}
	u.Password = ""
	if u.Roles == nil {
		u.Roles = []string{}
	}
	s.nextID++
	s.users[u.ID] = u
	return u
}

func (s *Server) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		s.calls = append(s.calls, r.Method+" "+r.URL.Path)
		cacheControl := s.cacheControl
		s.mu.Unlock()

		if r.Header.Get("Authorization") != "Bearer "+s.Token {
			writeError(w, http.StatusUnauthorized, "Unauthorized")
			return
		}

		if r.Method == http.MethodGet && cacheControl != "" {
			w.Header().Set("Cache-Control", cacheControl)
		}
		next.ServeHTTP(w, r)
	})
}

// login answers POST /auth/login with Token for a seeded email and
// password.
func (s *Server) login(w http.ResponseWriter, r *http.Request) {
	s.record(r)

	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	password, ok := s.passwords[strings.ToLower(req.Email)]
	if !ok {
		writeError(w, http.StatusBadRequest, "User not found")
		return
	}
	if password != req.Password {
		writeError(w, http.StatusUnauthorized, "Bad credentials")
		return
	}

	for _, u := range s.users {
		if strings.EqualFold(u.Email, req.Email) {
			writeJSON(w, http.StatusOK, s.authResponse(u))
			return
		}
	}
	writeError(w, http.StatusBadRequest, "User not found")
}

func (s *Server) register(w http.ResponseWriter, r *http.Request) {
	s.record(r)

	var u users.User
	if err := json.NewDecoder(r.Body).Decode(&u); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.users {
		if strings.EqualFold(existing.Email, u.Email) {
			writeError(w, http.StatusBadRequest, "Email already exists")
			return
		}
	}

	if len(u.Roles) == 0 {
		u.Roles = []string{users.RoleUser}
	}
	u.Active = true

	writeJSON(w, http.StatusOK, s.authResponse(s.add(u)))
}

func (s *Server) authResponse(u users.User) users.AuthResponse {
	role := users.RoleUser
	if len(u.Roles) > 0 {
		role = u.Roles[0]
	}
	return users.AuthResponse{Token: s.Token, Name: u.Name, Email: u.Email, Role: role}
}

func (s *Server) record(r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.calls = append(s.calls, r.Method+" "+r.URL.Path)
}

func (s *Server) list(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.Users())
}

func (s *Server) get(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	s.mu.Lock()
	u, found := s.users[id]
	s.mu.Unlock()

	if !found {
		writeError(w, http.StatusNotFound, "User not found")
		return
	}
	writeJSON(w, http.StatusOK, u)
}

func (s *Server) create(w http.ResponseWriter, r *http.Request) {
	var u users.User
	if err := json.NewDecoder(r.Body).Decode(&u); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.users {
		if strings.EqualFold(existing.Email, u.Email) {
			writeError(w, http.StatusBadRequest, "Email already exists")
			return
		}
	}

	writeJSON(w, http.StatusOK, s.add(u))
}

func (s *Server) update(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	var u users.User
	if err := json.NewDecoder(r.Body).Decode(&u); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, found := s.users[id]; !found {
		writeError(w, http.StatusNotFound, "User not found")
		return
	}

	u.ID = id
	u.Password = ""
	s.users[id] = u
	writeJSON(w, http.StatusOK, u)
}

func (s *Server) delete(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, found := s.users[id]; !found {
		writeError(w, http.StatusNotFound, "User not found")
		return
	}

	delete(s.users, id)
	w.WriteHeader(http.StatusNoContent)
}

func pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return 0, false
	}
	return id, true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]any{
		"status":  status,
		"error":   http.StatusText(status),
		"message": message,
	})
}

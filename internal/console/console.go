// Package console serves the local web console: a public login page and
// the protected user management view.
package console

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"filippo.io/csrf"
	"github.com/rs/cors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/wolfeidau/userdesk/internal/guard"
	"github.com/wolfeidau/userdesk/internal/session"
	"github.com/wolfeidau/userdesk/internal/users"
)

// Sessions is the part of session.Manager the console drives.
type Sessions interface {
	Current() session.Session
	Login(ctx context.Context, raw string) (session.Result, error)
	Logout(ctx context.Context) error
}

// UserService is the user-management API.
type UserService interface {
	List(ctx context.Context) ([]users.User, error)
	Create(ctx context.Context, u users.User) (*users.User, error)
	Update(ctx context.Context, id int64, u users.User) (*users.User, error)
	Delete(ctx context.Context, id int64) error
}

// Authenticator exchanges an email and password for a token.
type Authenticator interface {
	Login(ctx context.Context, email, password string) (*users.AuthResponse, error)
}

// Config wires a Server. Auth is optional, without it the login page only
// accepts a pasted token.
type Config struct {
	Sessions    Sessions
	Users       UserService
	Auth        Authenticator
	LoginPath   string
	CORSOrigins []string
}

// Server handles console requests.
type Server struct {
	sessions    Sessions
	users       UserService
	auth        Authenticator
	guard       *guard.Guard
	corsOrigins []string
}

// New creates a console server.
func New(cfg Config) (*Server, error) {
	if cfg.Sessions == nil {
		return nil, errors.New("sessions are required")
	}
	if cfg.Users == nil {
		return nil, errors.New("user service is required")
	}

	return &Server{
		sessions:    cfg.Sessions,
		users:       cfg.Users,
		auth:        cfg.Auth,
		guard:       guard.New(cfg.Sessions, cfg.LoginPath),
		corsOrigins: cfg.CORSOrigins,
	}, nil
}

// Handler returns the console's routes. HTML routes get CSRF protection,
// the JSON API gets CORS.
func (s *Server) Handler() http.Handler {
	pages := http.NewServeMux()

	loginPath := s.guard.LoginPath()
	pages.HandleFunc("GET "+loginPath, s.loginPage)
	pages.HandleFunc("POST "+loginPath, s.login)
	pages.HandleFunc("POST /logout", s.logout)
	pages.Handle("GET /users", s.guard.Require(http.HandlerFunc(s.listUsers)))
	pages.Handle("POST /users", s.guard.Require(http.HandlerFunc(s.createUser)))
	pages.Handle("POST /users/{id}", s.guard.Require(http.HandlerFunc(s.updateUser)))
	pages.Handle("POST /users/{id}/delete", s.guard.Require(http.HandlerFunc(s.deleteUser)))
	pages.HandleFunc("GET /{$}", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/users", http.StatusFound)
	})

	api := http.NewServeMux()
	api.HandleFunc("GET /api/session", s.currentSession)

	protection := csrf.New()
	html := protection.Handler(pages)
	apiHandler := withCORS(s.corsOrigins, api)

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if isAPIRoute(r.URL.Path) {
			apiHandler.ServeHTTP(w, r)
			return
		}
		html.ServeHTTP(w, r)
	})
}

func isAPIRoute(path string) bool {
	return strings.HasPrefix(path, "/api/")
}

// withCORS lets a separately hosted frontend read the session state.
func withCORS(allowedOrigins []string, h http.Handler) http.Handler {
	middleware := cors.New(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{http.MethodGet},
		AllowCredentials: true,
	})
	return middleware.Handler(h)
}

type pageData struct {
	LoginPath string
	Passwords bool
	Email     string
	Next      string
	Error     string
	Notice    string
	Session   session.Session
	Users     []users.User
	Roles     []string
}

func (s *Server) render(w http.ResponseWriter, r *http.Request, status int, name string, data pageData) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := pageTemplates.ExecuteTemplate(w, name, data); err != nil {
		zerolog.Ctx(r.Context()).Error().Err(err).Str("template", name).Msg("failed to render page")
	}
}

var loginErrors = map[string]string{
	"expired":     "Your session has expired, please sign in again.",
	"malformed":   "The access token could not be read.",
	"rejected":    "The server rejected your session, please sign in again.",
	"missing":     "An access token or an email and password are required.",
	"storage":     "The session could not be saved.",
	"credentials": "Invalid email or password.",
	"unavailable": "The authentication service could not be reached.",
}

func (s *Server) loginPage(w http.ResponseWriter, r *http.Request) {
	next := guard.SafeNext(r.URL.Query().Get("next"))

	if s.sessions.Current().Authenticated {
		http.Redirect(w, r, nextOrDefault(next), http.StatusFound)
		return
	}

	s.render(w, r, http.StatusOK, "login", pageData{
		LoginPath: s.guard.LoginPath(),
		Passwords: s.auth != nil,
		Next:      next,
		Error:     loginErrors[r.URL.Query().Get("error_code")],
	})
}

func (s *Server) login(w http.ResponseWriter, r *http.Request) {
	logger := zerolog.Ctx(r.Context())
	next := guard.SafeNext(r.PostFormValue("next"))
	raw := strings.TrimSpace(r.PostFormValue("token"))
	email := strings.TrimSpace(r.PostFormValue("email"))
	password := r.PostFormValue("password")

	fail := func(status int, code string) {
		s.render(w, r, status, "login", pageData{
			LoginPath: s.guard.LoginPath(),
			Passwords: s.auth != nil,
			Email:     email,
			Next:      next,
			Error:     loginErrors[code],
		})
	}

	if raw == "" && s.auth != nil && email != "" && password != "" {
		resp, err := s.auth.Login(r.Context(), email, password)
		switch {
		case errors.Is(err, users.ErrInvalidCredentials):
			logger.Info().Err(err).Str("email", email).Msg("console login refused")
			fail(http.StatusUnauthorized, "credentials")
			return
		case err != nil:
			logger.Error().Err(err).Msg("failed to reach authentication service")
			fail(http.StatusBadGateway, "unavailable")
			return
		}
		raw = resp.Token
	}

	if raw == "" {
		fail(http.StatusBadRequest, "missing")
		return
	}

	res, err := s.sessions.Login(r.Context(), raw)
	if err != nil {
		logger.Error().Err(err).Msg("failed to store session")
		fail(http.StatusInternalServerError, "storage")
		return
	}

	switch res.Outcome {
	case session.OutcomeLoggedIn:
		logger.Info().Str("identity", res.Session.Identity).Msg("console login")
		http.Redirect(w, r, nextOrDefault(next), http.StatusSeeOther)
	case session.OutcomeExpired:
		fail(http.StatusUnauthorized, "expired")
	default:
		logger.Info().Err(res.Err).Str("outcome", res.Outcome.String()).Msg("console login rejected")
		fail(http.StatusUnauthorized, "malformed")
	}
}

func (s *Server) logout(w http.ResponseWriter, r *http.Request) {
	if err := s.sessions.Logout(r.Context()); err != nil {
		zerolog.Ctx(r.Context()).Error().Err(err).Msg("failed to clear session")
	}
	http.Redirect(w, r, s.guard.LoginPath(), http.StatusSeeOther)
}

func (s *Server) currentSession(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	if err := json.NewEncoder(w).Encode(s.sessions.Current()); err != nil {
		log.Error().Err(err).Msg("failed to encode session")
	}
}

func (s *Server) listUsers(w http.ResponseWriter, r *http.Request) {
	current, _ := guard.SessionFromContext(r.Context())
	data := pageData{
		Session: current,
		Roles:   users.KnownRoles,
		Notice:  r.URL.Query().Get("notice"),
		Error:   r.URL.Query().Get("error"),
	}

	list, err := s.users.List(r.Context())
	if err != nil {
		if s.handleRejected(w, r, err) {
			return
		}
		zerolog.Ctx(r.Context()).Error().Err(err).Msg("failed to fetch users")
		data.Error = "Failed to fetch users."
	}
	data.Users = list

	s.render(w, r, http.StatusOK, "users", data)
}

func (s *Server) createUser(w http.ResponseWriter, r *http.Request) {
	u, err := userFromForm(r)
	if err != nil {
		s.back(w, r, "", err.Error())
		return
	}

	if _, err := s.users.Create(r.Context(), u); err != nil {
		s.crudFailed(w, r, err, "Failed to save user")
		return
	}

	s.back(w, r, "User created.", "")
}

func (s *Server) updateUser(w http.ResponseWriter, r *http.Request) {
	id, ok := s.pathID(w, r)
	if !ok {
		return
	}

	u, err := userFromForm(r)
	if err != nil {
		s.back(w, r, "", err.Error())
		return
	}

	if _, err := s.users.Update(r.Context(), id, u); err != nil {
		s.crudFailed(w, r, err, "Failed to save user")
		return
	}

	s.back(w, r, "User updated.", "")
}

func (s *Server) deleteUser(w http.ResponseWriter, r *http.Request) {
	id, ok := s.pathID(w, r)
	if !ok {
		return
	}

	if err := s.users.Delete(r.Context(), id); err != nil {
		s.crudFailed(w, r, err, "Failed to delete user")
		return
	}

	s.back(w, r, "User deleted.", "")
}

func (s *Server) pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		http.Error(w, "invalid user id", http.StatusBadRequest)
		return 0, false
	}
	return id, true
}

// crudFailed logs a failed API call and reports it on the user list.
func (s *Server) crudFailed(w http.ResponseWriter, r *http.Request, err error, message string) {
	if s.handleRejected(w, r, err) {
		return
	}

	zerolog.Ctx(r.Context()).Error().Err(err).Msg(strings.ToLower(message))

	var apiErr *users.APIError
	if errors.As(err, &apiErr) && apiErr.Message != "" {
		message += ": " + apiErr.Message
	} else if errors.Is(err, users.ErrInvalidUser) || errors.Is(err, users.ErrUnknownRole) {
		message += ": " + err.Error()
	}

	s.back(w, r, "", message+".")
}

// handleRejected logs out when the API no longer accepts the token.
func (s *Server) handleRejected(w http.ResponseWriter, r *http.Request, err error) bool {
	if !errors.Is(err, users.ErrUnauthorized) {
		return false
	}

	zerolog.Ctx(r.Context()).Warn().Err(err).Msg("token rejected by user API, logging out")
	if err := s.sessions.Logout(r.Context()); err != nil {
		zerolog.Ctx(r.Context()).Error().Err(err).Msg("failed to clear session")
	}

	http.Redirect(w, r, s.guard.LoginPath()+"?error_code=rejected", http.StatusSeeOther)
	return true
}

func (s *Server) back(w http.ResponseWriter, r *http.Request, notice, failure string) {
	q := url.Values{}
	if notice != "" {
		q.Set("notice", notice)
	}
	if failure != "" {
		q.Set("error", failure)
	}

	target := "/users"
	if len(q) > 0 {
		target += "?" + q.Encode()
	}
	http.Redirect(w, r, target, http.StatusSeeOther)
}

func userFromForm(r *http.Request) (users.User, error) {
	if err := r.ParseForm(); err != nil {
		return users.User{}, err
	}

	roles, err := users.ParseRoles(strings.Join(r.PostForm["roles"], ","))
	if err != nil {
		return users.User{}, err
	}

	return users.User{
		Name:     strings.TrimSpace(r.PostFormValue("name")),
		Email:    strings.TrimSpace(r.PostFormValue("email")),
		Password: r.PostFormValue("password"),
		Roles:    roles,
		Active:   r.PostFormValue("active") != "",
	}, nil
}

func nextOrDefault(next string) string {
	if next == "" {
		return "/users"
	}
	return next
}

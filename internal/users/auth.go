package users

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// ErrInvalidCredentials is returned when the authentication service refuses
// an email and password.
var ErrInvalidCredentials = errors.New("invalid email or password")

// AuthResponse is returned by the authentication service on login and
// registration.
type AuthResponse struct {
	Token string `json:"token"`
	Name  string `json:"name"`
	Email string `json:"email"`
	Role  string `json:"role"`
}

type credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// AuthClient exchanges credentials for a token at the authentication
// endpoints of the API (POST /auth/login, POST /auth/register).
type AuthClient struct {
	baseURL    string
	httpClient *http.Client
}

// NewAuthClient creates an AuthClient for the API rooted at baseURL.
func NewAuthClient(baseURL string, httpClient *http.Client) (*AuthClient, error) {
	base, err := parseBaseURL(baseURL)
	if err != nil {
		return nil, err
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	return &AuthClient{baseURL: base, httpClient: httpClient}, nil
}

// Login returns a token for email and password.
func (c *AuthClient) Login(ctx context.Context, email, password string) (*AuthResponse, error) {
	if email == "" || password == "" {
		return nil, fmt.Errorf("%w: email and password are required", ErrInvalidCredentials)
	}

	var out AuthResponse
	if err := c.post(ctx, "/auth/login", credentials{Email: email, Password: password}, &out); err != nil {
		return nil, fmt.Errorf("failed to log in: %w", rejectedCredentials(err))
	}
	if out.Token == "" {
		return nil, errors.New("failed to log in: no token in response")
	}

	return &out, nil
}

// Register creates an account and returns a token for it. The API assigns
// the USER role when u has none.
func (c *AuthClient) Register(ctx context.Context, u User) (*AuthResponse, error) {
	if err := u.Validate(true); err != nil {
		return nil, err
	}

	u.ID = 0
	var out AuthResponse
	if err := c.post(ctx, "/auth/register", &u, &out); err != nil {
		return nil, fmt.Errorf("failed to register: %w", err)
	}
	if out.Token == "" {
		return nil, errors.New("failed to register: no token in response")
	}

	return &out, nil
}

func (c *AuthClient) post(ctx context.Context, path string, in, out any) error {
	req, err := newJSONRequest(ctx, http.MethodPost, c.baseURL+path, in)
	if err != nil {
		return err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	return readJSONResponse(resp, http.MethodPost, path, out)
}

// rejectedCredentials marks client errors from the login endpoint as
// ErrInvalidCredentials. The API answers unknown users with 400 and bad
// passwords with 401 or 403.
func rejectedCredentials(err error) error {
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return err
	}
	switch apiErr.StatusCode {
	case http.StatusBadRequest, http.StatusUnauthorized, http.StatusForbidden:
		return fmt.Errorf("%w: %w", ErrInvalidCredentials, err)
	}
	return err
}

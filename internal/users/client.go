package users

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync/atomic"

	"github.com/rs/zerolog/log"
)

var (
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")
	ErrNotFound     = errors.New("not found")
)

// APIError is returned for non-2xx responses.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("user API returned HTTP %d", e.StatusCode)
	}
	return fmt.Sprintf("user API returned HTTP %d: %s", e.StatusCode, e.Message)
}

// Is maps well known status codes onto the package sentinels.
func (e *APIError) Is(target error) bool {
	switch target {
	case ErrUnauthorized:
		return e.StatusCode == http.StatusUnauthorized
	case ErrForbidden:
		return e.StatusCode == http.StatusForbidden
	case ErrNotFound:
		return e.StatusCode == http.StatusNotFound
	}
	return false
}

// TokenSource supplies the bearer token for each request.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// Client calls the user-management API.
type Client struct {
	baseURL    string
	httpClient *http.Client
	tokens     TokenSource

	// revalidate is set by a successful write so the next read bypasses
	// any cached copy.
	revalidate atomic.Bool
}

// NewClient creates a client for the API rooted at baseURL, for example
// http://localhost:8080/api.
func NewClient(baseURL string, httpClient *http.Client, tokens TokenSource) (*Client, error) {
	base, err := parseBaseURL(baseURL)
	if err != nil {
		return nil, err
	}
	if tokens == nil {
		return nil, errors.New("token source is required")
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	return &Client{
		baseURL:    base,
		httpClient: httpClient,
		tokens:     tokens,
	}, nil
}

func parseBaseURL(baseURL string) (string, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return "", fmt.Errorf("invalid server URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("invalid server URL %q: scheme must be http or https", baseURL)
	}
	return strings.TrimRight(baseURL, "/"), nil
}

// List returns all users.
func (c *Client) List(ctx context.Context) ([]User, error) {
	var out []User
	if err := c.do(ctx, http.MethodGet, "/users", nil, &out); err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	return out, nil
}

// Get returns a single user.
func (c *Client) Get(ctx context.Context, id int64) (*User, error) {
	var out User
	if err := c.do(ctx, http.MethodGet, userPath(id), nil, &out); err != nil {
		return nil, fmt.Errorf("failed to get user %d: %w", id, err)
	}
	return &out, nil
}

// Create adds a user and returns the stored record.
func (c *Client) Create(ctx context.Context, u User) (*User, error) {
	if err := u.Validate(true); err != nil {
		return nil, err
	}

	u.ID = 0
	var out User
	if err := c.do(ctx, http.MethodPost, "/users", &u, &out); err != nil {
		return nil, fmt.Errorf("failed to create user: %w", err)
	}
	return &out, nil
}

// Update replaces the user with id and returns the stored record.
func (c *Client) Update(ctx context.Context, id int64, u User) (*User, error) {
	if err := u.Validate(false); err != nil {
		return nil, err
	}

	u.ID = id
	var out User
	if err := c.do(ctx, http.MethodPut, userPath(id), &u, &out); err != nil {
		return nil, fmt.Errorf("failed to update user %d: %w", id, err)
	}
	return &out, nil
}

// Delete removes the user with id.
func (c *Client) Delete(ctx context.Context, id int64) error {
	if err := c.do(ctx, http.MethodDelete, userPath(id), nil, nil); err != nil {
		return fmt.Errorf("failed to delete user %d: %w", id, err)
	}
	return nil
}

func userPath(id int64) string {
	return "/users/" + strconv.FormatInt(id, 10)
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	bearer, err := c.tokens.Token(ctx)
	if err != nil {
		return err
	}

	req, err := newJSONRequest(ctx, method, c.baseURL+path, in)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+bearer)

	read := method == http.MethodGet
	revalidate := read && c.revalidate.Swap(false)
	if revalidate {
		req.Header.Set("Cache-Control", "no-cache")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if revalidate {
			c.revalidate.Store(true)
		}
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if !read && resp.StatusCode < 300 {
		c.revalidate.Store(true)
	}

	return readJSONResponse(resp, method, path, out)
}

func newJSONRequest(ctx context.Context, method, target string, in any) (*http.Request, error) {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	return req, nil
}

// readJSONResponse maps non-2xx statuses to *APIError and decodes the body
// into out, if given.
func readJSONResponse(resp *http.Response, method, path string, out any) error {
	log.Debug().
		Str("method", method).
		Str("path", path).
		Int("status", resp.StatusCode).
		Msg("user API call")

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return decodeAPIError(resp)
	}

	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	return nil
}

// decodeAPIError reads the {"message": ...} body the API sends with errors.
func decodeAPIError(resp *http.Response) error {
	apiErr := &APIError{StatusCode: resp.StatusCode}

	data, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil || len(data) == 0 {
		return apiErr
	}

	var payload struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if json.Unmarshal(data, &payload) == nil {
		apiErr.Message = payload.Message
		if apiErr.Message == "" {
			apiErr.Message = payload.Error
		}
		return apiErr
	}

	apiErr.Message = strings.TrimSpace(string(data))
	return apiErr
}

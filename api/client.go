// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/bureau-foundation/parley/lib/netutil"
	"github.com/bureau-foundation/parley/lib/secret"
)

// ClientConfig holds configuration for creating a Client.
type ClientConfig struct {
	// BaseURL is the base URL of the Parley server (e.g., "http://localhost:3000").
	BaseURL string
	// HTTPClient is used for all requests. If nil, http.DefaultClient is used.
	HTTPClient *http.Client
	// Logger is used for structured logging. If nil, slog.Default() is used.
	Logger *slog.Logger
}

// Client is an unauthenticated Parley API client. It holds the server
// URL and HTTP transport, shared across Sessions.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a new unauthenticated API client.
func NewClient(config ClientConfig) (*Client, error) {
	if config.BaseURL == "" {
		return nil, fmt.Errorf("api: BaseURL is required")
	}

	// Validate the URL structure. We store the string form (with
	// trailing slash stripped) and build request URLs by direct
	// concatenation — path segments here are opaque identifiers that
	// are individually escaped at the call sites.
	if _, err := url.Parse(config.BaseURL); err != nil {
		return nil, fmt.Errorf("api: invalid BaseURL %q: %w", config.BaseURL, err)
	}

	httpClient := config.HTTPClient
	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Client{
		baseURL:    strings.TrimRight(config.BaseURL, "/"),
		httpClient: httpClient,
		logger:     logger,
	}, nil
}

// CloseIdleConnections closes idle HTTP connections in the underlying
// transport's connection pool. Call this after a network disruption to
// force subsequent requests to establish fresh TCP connections instead
// of reusing a poisoned pooled connection.
func (c *Client) CloseIdleConnections() {
	c.httpClient.CloseIdleConnections()
}

// Register creates a new account and returns an authenticated Session.
// The password buffer is read but not closed — the caller retains
// ownership.
func (c *Client) Register(ctx context.Context, request RegisterRequest) (*Session, error) {
	if request.Username == "" {
		return nil, fmt.Errorf("api: username is required for registration")
	}
	if request.Password == nil {
		return nil, fmt.Errorf("api: password is required for registration")
	}

	// Password is converted to string at the JSON serialization
	// boundary. The heap copy is short-lived — it exists only during
	// the HTTP call.
	body, err := c.doRequest(ctx, http.MethodPost, "/api/auth/register", nil, map[string]any{
		"username": request.Username,
		"password": request.Password.String(),
		"profile": map[string]any{
			"firstName": request.FirstName,
			"lastName":  request.LastName,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("api: registration failed: %w", err)
	}

	var authResponse AuthResponse
	if err := json.Unmarshal(body, &authResponse); err != nil {
		return nil, fmt.Errorf("api: failed to parse register response: %w", err)
	}

	c.logger.Info("registered account",
		"user_id", authResponse.User.ID,
		"username", request.Username,
	)

	return c.sessionFromAuth(&authResponse)
}

// Login authenticates with username and password, returning a Session.
// The password buffer is read but not closed — the caller retains
// ownership.
func (c *Client) Login(ctx context.Context, username string, password *secret.Buffer) (*Session, error) {
	if username == "" {
		return nil, fmt.Errorf("api: username is required for login")
	}
	if password == nil {
		return nil, fmt.Errorf("api: password is required for login")
	}

	// Password is converted to string at the JSON serialization boundary.
	body, err := c.doRequest(ctx, http.MethodPost, "/api/auth/login", nil, map[string]any{
		"username": username,
		"password": password.String(),
	})
	if err != nil {
		return nil, fmt.Errorf("api: login failed: %w", err)
	}

	var authResponse AuthResponse
	if err := json.Unmarshal(body, &authResponse); err != nil {
		return nil, fmt.Errorf("api: failed to parse login response: %w", err)
	}

	c.logger.Info("logged in",
		"user_id", authResponse.User.ID,
	)

	return c.sessionFromAuth(&authResponse)
}

// SessionFromToken creates a Session from an existing bearer token
// string (e.g., one saved from a previous login). The token is moved
// into mmap-backed memory; the original string remains on the heap
// briefly until collected.
//
// This does NOT validate the token — the first API call will fail if
// it is invalid or expired. The caller must call Close on the returned
// Session when done.
func (c *Client) SessionFromToken(user User, token string) (*Session, error) {
	tokenBuffer, err := secret.NewFromString(token)
	if err != nil {
		return nil, fmt.Errorf("api: protecting bearer token: %w", err)
	}
	return &Session{
		client: c,
		token:  tokenBuffer,
		user:   user,
	}, nil
}

func (c *Client) sessionFromAuth(auth *AuthResponse) (*Session, error) {
	tokenBuffer, err := secret.NewFromString(auth.Token)
	if err != nil {
		return nil, fmt.Errorf("api: protecting bearer token: %w", err)
	}
	return &Session{
		client: c,
		token:  tokenBuffer,
		user:   auth.User,
	}, nil
}

// doRequest performs an HTTP request and returns the response body.
// On 2xx, returns the body. On 4xx/5xx, returns a *APIError.
// token may be nil for unauthenticated endpoints. query may be omitted
// for endpoints without query parameters.
func (c *Client) doRequest(ctx context.Context, method, path string, token *secret.Buffer, requestBody any, query ...url.Values) ([]byte, error) {
	requestURL := c.baseURL + path
	if len(query) > 0 && query[0] != nil {
		requestURL += "?" + query[0].Encode()
	}

	var bodyReader io.Reader
	if requestBody != nil {
		encoded, err := json.Marshal(requestBody)
		if err != nil {
			return nil, fmt.Errorf("api: failed to encode request body: %w", err)
		}
		bodyReader = bytes.NewReader(encoded)
	}

	request, err := http.NewRequestWithContext(ctx, method, requestURL, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("api: failed to create request: %w", err)
	}

	if requestBody != nil {
		request.Header.Set("Content-Type", "application/json")
	}
	if token != nil {
		request.Header.Set("Authorization", "Bearer "+token.String())
	}

	response, err := c.httpClient.Do(request)
	if err != nil {
		return nil, fmt.Errorf("api: request to %s %s failed: %w", method, path, err)
	}
	defer response.Body.Close()

	responseBody, err := netutil.ReadResponse(response.Body)
	if err != nil {
		return nil, fmt.Errorf("api: failed to read response body: %w", err)
	}

	if response.StatusCode >= 200 && response.StatusCode < 300 {
		return responseBody, nil
	}

	// All server error responses use the same JSON shape.
	var apiErr APIError
	if jsonErr := json.Unmarshal(responseBody, &apiErr); jsonErr != nil || apiErr.Message == "" && apiErr.Code == "" {
		// Server returned a non-JSON or shapeless error. Fail loud
		// with the raw body so the problem is diagnosable.
		return nil, &APIError{
			Code:       ErrCodeInternal,
			Message:    fmt.Sprintf("unexpected %d response from %s %s: %s", response.StatusCode, method, path, string(responseBody)),
			StatusCode: response.StatusCode,
		}
	}
	apiErr.StatusCode = response.StatusCode

	return responseBody, &apiErr
}

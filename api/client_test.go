// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/bureau-foundation/parley/lib/secret"
)

// testBuffer creates a secret.Buffer from a string for testing. The buffer
// is automatically closed when the test completes.
func testBuffer(t *testing.T, value string) *secret.Buffer {
	t.Helper()
	buffer, err := secret.NewFromString(value)
	if err != nil {
		t.Fatalf("creating test buffer: %v", err)
	}
	t.Cleanup(func() { buffer.Close() })
	return buffer
}

func TestNewClient(t *testing.T) {
	t.Run("valid URL", func(t *testing.T) {
		client, err := NewClient(ClientConfig{BaseURL: "http://localhost:3000"})
		if err != nil {
			t.Fatalf("NewClient failed: %v", err)
		}
		if client == nil {
			t.Fatal("NewClient returned nil")
		}
	})

	t.Run("empty URL", func(t *testing.T) {
		_, err := NewClient(ClientConfig{})
		if err == nil {
			t.Fatal("expected error for empty URL")
		}
	})

	t.Run("invalid URL", func(t *testing.T) {
		_, err := NewClient(ClientConfig{BaseURL: "://invalid"})
		if err == nil {
			t.Fatal("expected error for invalid URL")
		}
	})
}

func TestRegister(t *testing.T) {
	t.Run("successful registration", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
			if request.URL.Path != "/api/auth/register" {
				t.Errorf("unexpected path: %s", request.URL.Path)
				writer.WriteHeader(http.StatusNotFound)
				return
			}

			var body map[string]any
			if err := json.NewDecoder(request.Body).Decode(&body); err != nil {
				t.Fatalf("failed to decode request body: %v", err)
			}
			if body["username"] != "alice" {
				t.Errorf("unexpected username: %v", body["username"])
			}
			if body["password"] != "password123" {
				t.Errorf("unexpected password: %v", body["password"])
			}
			profile, ok := body["profile"].(map[string]any)
			if !ok {
				t.Fatal("register request missing profile")
			}
			if profile["firstName"] != "Alice" {
				t.Errorf("unexpected first name: %v", profile["firstName"])
			}

			writer.Header().Set("Content-Type", "application/json")
			json.NewEncoder(writer).Encode(map[string]any{
				"token": "jwt-alice-token",
				"user": map[string]any{
					"id":    "user-alice",
					"email": "alice@example.com",
					"profile": map[string]any{
						"firstName": "Alice",
						"lastName":  "Adler",
					},
				},
			})
		}))
		defer server.Close()

		client, err := NewClient(ClientConfig{BaseURL: server.URL})
		if err != nil {
			t.Fatalf("NewClient failed: %v", err)
		}

		session, err := client.Register(context.Background(), RegisterRequest{
			Username:  "alice",
			Password:  testBuffer(t, "password123"),
			FirstName: "Alice",
			LastName:  "Adler",
		})
		if err != nil {
			t.Fatalf("Register failed: %v", err)
		}
		defer session.Close()

		if session.UserID().String() != "user-alice" {
			t.Errorf("unexpected user ID: %s", session.UserID())
		}
		if session.Token() != "jwt-alice-token" {
			t.Errorf("unexpected token: %s", session.Token())
		}
		if session.User().Profile.DisplayName() != "Alice Adler" {
			t.Errorf("unexpected display name: %s", session.User().Profile.DisplayName())
		}
	})

	t.Run("username already taken", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(writer http.ResponseWriter, _ *http.Request) {
			writer.Header().Set("Content-Type", "application/json")
			writer.WriteHeader(http.StatusConflict)
			json.NewEncoder(writer).Encode(APIError{
				Code:    ErrCodeConflict,
				Message: "username already taken",
			})
		}))
		defer server.Close()

		client, err := NewClient(ClientConfig{BaseURL: server.URL})
		if err != nil {
			t.Fatalf("NewClient failed: %v", err)
		}

		_, err = client.Register(context.Background(), RegisterRequest{
			Username: "alice",
			Password: testBuffer(t, "password123"),
		})
		if err == nil {
			t.Fatal("expected error for taken username")
		}
		if !IsAPIError(err, ErrCodeConflict) {
			t.Errorf("expected CONFLICT error, got: %v", err)
		}
		if IsTransient(err) {
			t.Error("conflict should be a permanent error")
		}
	})

	t.Run("missing username", func(t *testing.T) {
		client, err := NewClient(ClientConfig{BaseURL: "http://localhost:3000"})
		if err != nil {
			t.Fatalf("NewClient failed: %v", err)
		}
		_, err = client.Register(context.Background(), RegisterRequest{
			Password: testBuffer(t, "password123"),
		})
		if err == nil {
			t.Fatal("expected error for missing username")
		}
	})
}

func TestLogin(t *testing.T) {
	t.Run("successful login", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
			if request.URL.Path != "/api/auth/login" {
				t.Errorf("unexpected path: %s", request.URL.Path)
				writer.WriteHeader(http.StatusNotFound)
				return
			}

			var body map[string]any
			if err := json.NewDecoder(request.Body).Decode(&body); err != nil {
				t.Fatalf("failed to decode request body: %v", err)
			}
			if body["username"] != "bob" {
				t.Errorf("unexpected username: %v", body["username"])
			}

			writer.Header().Set("Content-Type", "application/json")
			json.NewEncoder(writer).Encode(map[string]any{
				"token": "jwt-bob-token",
				"user": map[string]any{
					"id": "user-bob",
					"profile": map[string]any{
						"firstName": "Bob",
					},
				},
			})
		}))
		defer server.Close()

		client, err := NewClient(ClientConfig{BaseURL: server.URL})
		if err != nil {
			t.Fatalf("NewClient failed: %v", err)
		}

		session, err := client.Login(context.Background(), "bob", testBuffer(t, "hunter2hunter2"))
		if err != nil {
			t.Fatalf("Login failed: %v", err)
		}
		defer session.Close()

		if session.UserID().String() != "user-bob" {
			t.Errorf("unexpected user ID: %s", session.UserID())
		}
	})

	t.Run("wrong password", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(writer http.ResponseWriter, _ *http.Request) {
			writer.Header().Set("Content-Type", "application/json")
			writer.WriteHeader(http.StatusUnauthorized)
			json.NewEncoder(writer).Encode(APIError{
				Code:    ErrCodeUnauthorized,
				Message: "invalid credentials",
			})
		}))
		defer server.Close()

		client, err := NewClient(ClientConfig{BaseURL: server.URL})
		if err != nil {
			t.Fatalf("NewClient failed: %v", err)
		}

		_, err = client.Login(context.Background(), "bob", testBuffer(t, "wrong"))
		if err == nil {
			t.Fatal("expected error for wrong password")
		}
		if !IsAPIError(err, ErrCodeUnauthorized) {
			t.Errorf("expected UNAUTHORIZED error, got: %v", err)
		}
	})

	t.Run("non-JSON error response", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(writer http.ResponseWriter, _ *http.Request) {
			writer.WriteHeader(http.StatusBadGateway)
			writer.Write([]byte("upstream timed out"))
		}))
		defer server.Close()

		client, err := NewClient(ClientConfig{BaseURL: server.URL})
		if err != nil {
			t.Fatalf("NewClient failed: %v", err)
		}

		_, err = client.Login(context.Background(), "bob", testBuffer(t, "hunter2hunter2"))
		if err == nil {
			t.Fatal("expected error for 502 response")
		}
		if !IsTransient(err) {
			t.Errorf("502 should be transient, got: %v", err)
		}
	})
}

func TestSessionFromToken(t *testing.T) {
	client, err := NewClient(ClientConfig{BaseURL: "http://localhost:3000"})
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}

	session, err := client.SessionFromToken(User{}, "saved-jwt-token")
	if err != nil {
		t.Fatalf("SessionFromToken failed: %v", err)
	}
	defer session.Close()

	if session.Token() != "saved-jwt-token" {
		t.Errorf("unexpected token: %s", session.Token())
	}
}

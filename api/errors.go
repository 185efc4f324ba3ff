// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package api

import (
	"errors"
	"fmt"
)

// APIError represents a structured error response from the Parley
// server. Callers can use errors.As to extract the structured
// information:
//
//	var apiErr *api.APIError
//	if errors.As(err, &apiErr) {
//	    if apiErr.Code == api.ErrCodeNotFound { ... }
//	}
type APIError struct {
	// Code is the machine-readable error code (e.g., "UNAUTHORIZED").
	Code string `json:"code"`
	// Message is the human-readable error description from the server.
	Message string `json:"error"`
	// StatusCode is the HTTP status code of the response.
	StatusCode int `json:"-"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api: %s (%d): %s", e.Code, e.StatusCode, e.Message)
}

// Error codes returned by the server.
const (
	ErrCodeUnauthorized   = "UNAUTHORIZED"
	ErrCodeForbidden      = "FORBIDDEN"
	ErrCodeNotFound       = "NOT_FOUND"
	ErrCodeConflict       = "CONFLICT"
	ErrCodeInvalidRequest = "INVALID_REQUEST"
	ErrCodeRateLimited    = "RATE_LIMITED"
	ErrCodeInternal       = "INTERNAL"
)

// IsAPIError checks whether err is a *APIError with the given error code.
func IsAPIError(err error, code string) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Code == code
	}
	return false
}

// IsTransient returns true for errors that are likely transient and
// worth retrying: connection failures, rate limiting (429), and server
// errors (5xx). Returns false for client errors (4xx except 429),
// which indicate a permanent problem.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}

	var apiErr *APIError
	if errors.As(err, &apiErr) {
		// 429 Too Many Requests — rate limit, transient.
		if apiErr.StatusCode == 429 {
			return true
		}
		// 5xx — server error, transient.
		if apiErr.StatusCode >= 500 {
			return true
		}
		// 4xx (except 429) — client error, permanent.
		if apiErr.StatusCode >= 400 {
			return false
		}
	}

	// Non-API errors (connection refused, timeout, EOF) are transient.
	return true
}

// Copyright 2026 The medswitch Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package provider

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
)

// ErrorKind classifies an adapter failure for fallback routing.
type ErrorKind string

const (
	// KindConnection covers network and transport failures.
	KindConnection ErrorKind = "connection"
	// KindTimeout covers deadline and provider timeout failures.
	KindTimeout ErrorKind = "timeout"
	// KindValidation covers malformed requests and unsupported model ids.
	// Validation failures are never retried.
	KindValidation ErrorKind = "validation"
	// KindProviderError covers non-2xx responses from the remote service.
	KindProviderError ErrorKind = "provider_error"
	// KindExhaustedFallback marks a request whose whole fallback chain failed.
	KindExhaustedFallback ErrorKind = "exhausted_fallback"
	// KindUnknown covers anything the classifier cannot place.
	KindUnknown ErrorKind = "unknown"
)

// Error is a classified provider failure.
type Error struct {
	Kind     ErrorKind
	Provider string
	Err      error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("provider %s: %s", e.Provider, e.Kind)
	}
	return fmt.Sprintf("provider %s: %s: %v", e.Provider, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Retryable reports whether this failure should drive the fallback chain.
func (e *Error) Retryable() bool {
	return e.Kind != KindValidation
}

// StatusError carries a non-2xx upstream response.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("upstream status %d: %s", e.Code, e.Body)
}

// NewValidationError builds a validation failure for a provider.
func NewValidationError(providerID, msg string) *Error {
	return &Error{Kind: KindValidation, Provider: providerID, Err: errors.New(msg)}
}

// Classify maps an arbitrary adapter error into the taxonomy. Errors that
// are already classified pass through unchanged.
func Classify(providerID string, err error) *Error {
	var pe *Error
	if errors.As(err, &pe) {
		return pe
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return &Error{Kind: KindTimeout, Provider: providerID, Err: err}
	}

	var se *StatusError
	if errors.As(err, &se) {
		switch {
		case se.Code == http.StatusRequestTimeout || se.Code == http.StatusGatewayTimeout:
			return &Error{Kind: KindTimeout, Provider: providerID, Err: err}
		case se.Code == http.StatusBadRequest || se.Code == http.StatusNotFound ||
			se.Code == http.StatusUnprocessableEntity:
			return &Error{Kind: KindValidation, Provider: providerID, Err: err}
		default:
			return &Error{Kind: KindProviderError, Provider: providerID, Err: err}
		}
	}

	var ne net.Error
	if errors.As(err, &ne) {
		if ne.Timeout() {
			return &Error{Kind: KindTimeout, Provider: providerID, Err: err}
		}
		return &Error{Kind: KindConnection, Provider: providerID, Err: err}
	}

	return &Error{Kind: KindUnknown, Provider: providerID, Err: err}
}
